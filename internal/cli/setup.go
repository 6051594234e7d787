package cli

import (
	"fmt"
	"os"
	"smarthub/internal/install"
)

func SetupMode(cliOpts *CommandSet, commandname string, args []string) {
	var newConf bool
	var installDaemon bool
	var uninstallDaemon bool
	var templateConfPath string

	commandFlags := newCommandFlags(commandname, cliOpts)
	commandFlags.BoolVar(&installDaemon, "install", false, "Install/Upgrade the hub daemon (binary, template config, systemd unit)")
	commandFlags.BoolVar(&uninstallDaemon, "uninstall", false, "Remove the hub daemon along with its configuration and state")
	commandFlags.BoolVar(&newConf, "config-template", false, "Create new template config (using config-path argument)")
	commandFlags.StringVarP(&templateConfPath, "config", "c", "", "Path to template config file")

	if len(args) < 1 {
		PrintHelpMenu(commandFlags, commandname, cliOpts)
		os.Exit(1)
	}
	commandFlags.Parse(args)

	var err error
	switch {
	case newConf:
		err = install.CreateTemplateConfig(templateConfPath)
	case installDaemon:
		err = install.Run()
	case uninstallDaemon:
		err = install.Remove()
	default:
		PrintHelpMenu(commandFlags, commandname, cliOpts)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
