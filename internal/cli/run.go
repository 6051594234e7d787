package cli

import (
	"context"
	"fmt"
	"os"
	"smarthub/internal/global"
	"smarthub/internal/hub"
	"smarthub/internal/lifecycle"
	"smarthub/internal/logctx"
)

func RunMode(ctx context.Context, cliOpts *CommandSet, commandname string, args []string) {
	var configPath, envPath string
	commandFlags := newCommandFlags(commandname, cliOpts)
	SetGlobalArguments(commandFlags)
	SetCommon(commandFlags, &configPath, &envPath)
	commandFlags.Parse(args)

	// Subcommand may have raised or lowered verbosity
	logctx.SetLogLevel(ctx, global.Verbosity)

	fileCfg, err := hub.LoadConfig(configPath, envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	daemonConfig, err := fileCfg.NewDaemonConf()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	daemon := hub.NewDaemon(daemonConfig, configPath, envPath)
	err = daemon.Start(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting hub daemon: %v\n", err)
		os.Exit(1)
	}

	go lifecycle.SignalHandler(ctx, daemon)

	err = lifecycle.NotifyReady(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify ready failed: %v\n", err)
	}

	daemon.Run()
}
