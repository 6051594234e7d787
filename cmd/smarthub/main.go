package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"smarthub/internal/cli"
	"smarthub/internal/global"
	"smarthub/internal/logctx"

	"github.com/spf13/pflag"
)

func main() {
	cliOpts := cli.DefineOptions()

	global.Verbosity = global.VerbosityStandard
	commandFlags := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	commandFlags.SetInterspersed(false) // stop at the command name
	cli.SetGlobalArguments(commandFlags)

	commandFlags.Usage = func() {
		cli.PrintHelpMenu(commandFlags, cli.RootCLICommand, cliOpts)
	}
	commandFlags.Parse(os.Args[1:])
	if commandFlags.NArg() < 1 {
		cli.PrintHelpMenu(commandFlags, cli.RootCLICommand, cliOpts)
		os.Exit(1)
	}

	command := commandFlags.Arg(0)
	args := commandFlags.Args()[1:]

	// Setting global logging
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logctx.New(ctx, "global", global.Verbosity, ctx.Done())
	logger := logctx.GetLogger(ctx)
	logctx.StartWatcher(logger, os.Stdout)

	switch command {
	case "run":
		cli.RunMode(ctx, cliOpts, command, args)
	case "check":
		cli.CheckMode(ctx, cliOpts, command, args)
	case "configure":
		cli.SetupMode(cliOpts, command, args)
	case "version":
		if global.Verbosity > global.VerbosityStandard || (len(args) > 0 && (args[0] == "--verbosity" || args[0] == "-v")) {
			fmt.Printf("smarthub %s\n", global.ProgVersion)
			fmt.Printf("Built using %s(%s) for %s on %s\n", runtime.Version(), runtime.Compiler, runtime.GOOS, runtime.GOARCH)
		} else {
			fmt.Println(global.ProgVersion)
		}
	default:
		cli.PrintHelpMenu(commandFlags, cli.RootCLICommand, cliOpts)
		os.Exit(1)
	}

	// Finish up any stdout writes for global logger
	cancel()
	logger.Wake()
	logger.Wait()
}
