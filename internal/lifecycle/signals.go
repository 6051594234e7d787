package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"smarthub/internal/global"
	"smarthub/internal/logctx"
	"syscall"
)

type DaemonLike interface {
	Reload(ctx context.Context) (err error)
	Shutdown()
}

// Handles incoming signals until the daemon is told to stop.
// SIGHUP reloads configuration in place; SIGINT, SIGQUIT and SIGTERM shut the daemon down.
func SignalHandler(ctx context.Context, daemon DaemonLike) {
	sigChan := make(chan os.Signal, 10)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	handleSignals(ctx, sigChan, daemon)
}

func handleSignals(ctx context.Context, sigChan <-chan os.Signal, daemon DaemonLike) {
	for {
		var sig os.Signal
		select {
		case <-ctx.Done():
			return
		case sig = <-sigChan:
		}
		logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "Received signal: %v\n", sig)

		if sig == syscall.SIGHUP {
			reload(ctx, daemon)
			continue
		}

		err := NotifyStopping(ctx)
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify stopping failed: %v\n", err)
		}
		daemon.Shutdown()
		return
	}
}

func reload(ctx context.Context, daemon DaemonLike) {
	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "Beginning reload...\n")

	err := NotifyReload(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify reload failed: %v\n", err)
	}

	err = daemon.Reload(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "Reload failed: %v\n", err)

		err = NotifyStatus(ctx, "Reload failed due to internal error. Check daemon logs.")
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify status failed: %v\n", err)
		}
	} else {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "Reload complete\n")
	}

	err = NotifyReady(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify ready failed: %v\n", err)
	}
}
