package connectivity

import (
	"context"
	"runtime/debug"
	"smarthub/internal/global"
	"smarthub/internal/logctx"
	"smarthub/internal/status"
	"sync/atomic"
	"time"
)

// Hooks run on the supervisor goroutine when the uplink changes state
type Hooks struct {
	OnUp   func(ctx context.Context)
	OnDown func(ctx context.Context)
}

// Polls the uplink and retries joining while it is down
type Supervisor struct {
	ctrl      Controller
	hooks     Hooks
	indicator status.Indicator

	poll  time.Duration
	retry time.Duration

	up        atomic.Bool
	lastRetry time.Time
}

func NewSupervisor(ctrl Controller, hooks Hooks, indicator status.Indicator) (supervisor *Supervisor) {
	supervisor = &Supervisor{
		ctrl:      ctrl,
		hooks:     hooks,
		indicator: indicator,
		poll:      global.ConnectivityPoll,
		retry:     global.ConnectRetryInterval,
	}
	return
}

// Last observed uplink state
func (supervisor *Supervisor) IsConnected() (connected bool) {
	connected = supervisor.up.Load()
	return
}

func (supervisor *Supervisor) Run(ctx context.Context) {
	ctx = logctx.AppendCtxTag(ctx, global.NSConnect)

	ticker := time.NewTicker(supervisor.poll)
	defer ticker.Stop()

	supervisor.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			supervisor.check(ctx)
		}
	}
}

func (supervisor *Supervisor) check(ctx context.Context) {
	defer func() {
		if fatalError := recover(); fatalError != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"panic in connectivity check: %v\n%s", fatalError, debug.Stack())
		}
	}()

	connected, err := supervisor.ctrl.Connected(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog,
			"failed to query uplink state: %v\n", err)
		connected = false
	}

	was := supervisor.up.Swap(connected)
	if supervisor.indicator != nil {
		supervisor.indicator.Uplink(connected)
	}

	switch {
	case connected && !was:
		logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "Uplink connected\n")
		if supervisor.hooks.OnUp != nil {
			supervisor.hooks.OnUp(ctx)
		}
	case !connected && was:
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Uplink lost\n")
		if supervisor.hooks.OnDown != nil {
			supervisor.hooks.OnDown(ctx)
		}
	}

	if connected || time.Since(supervisor.lastRetry) < supervisor.retry {
		return
	}
	supervisor.lastRetry = time.Now()

	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "Trying to join network\n")
	err = supervisor.ctrl.Connect(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"failed to join network: %v\n", err)
	}
}
