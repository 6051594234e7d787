package cli

import (
	"smarthub/internal/global"

	"github.com/spf13/pflag"
)

// Current verbosity is the default so a subcommand keeps what the root flags set
func SetGlobalArguments(fs *pflag.FlagSet) {
	fs.IntVarP(&global.Verbosity, "verbosity", "v", global.Verbosity, "Increase detailed progress messages (Higher is more verbose) <0...5>")
}

func SetCommon(fs *pflag.FlagSet, configPath, envPath *string) {
	fs.StringVarP(configPath, "config", "c", global.DefaultConfigPath, "Path to the configuration file")
	fs.StringVarP(envPath, "env-file", "e", global.DefaultEnvPath, "Path to the environment override file (optional)")
}

// New subcommand flag set with help wired to the standard menu
func newCommandFlags(command string, cliOpts *CommandSet) (fs *pflag.FlagSet) {
	fs = pflag.NewFlagSet(command, pflag.ExitOnError)
	fs.SortFlags = false
	fs.Usage = func() {
		PrintHelpMenu(fs, command, cliOpts)
	}
	return
}
