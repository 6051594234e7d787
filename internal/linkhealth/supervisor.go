// Tracks consecutive link send failures and wakes a rescan task once they cross a threshold.
package linkhealth

import (
	"context"
	"runtime/debug"
	"smarthub/internal/global"
	"smarthub/internal/link"
	"smarthub/internal/logctx"
	"sync/atomic"
	"time"
)

type Supervisor struct {
	threshold uint32
	failures  atomic.Uint32
	rescans   atomic.Uint64
	wake      chan struct{} // one pending signal at most
	delay     time.Duration
}

func New(threshold uint32) (supervisor *Supervisor) {
	if threshold == 0 {
		threshold = global.LinkFailThreshold
	}
	supervisor = &Supervisor{
		threshold: threshold,
		wake:      make(chan struct{}, 1),
		delay:     global.LinkRescanDelay,
	}
	return
}

// Send status callback. Any success resets the count; every failure past the threshold
// signals, and signals coalesce while the rescan task is busy.
func (supervisor *Supervisor) Observe(_ link.Address, status link.SendStatus) {
	if status == link.SendSuccess {
		supervisor.failures.Store(0)
		return
	}

	count := supervisor.failures.Add(1)
	if count == 0 {
		// Wrapped around
		supervisor.failures.Store(supervisor.threshold + 1)
		count = supervisor.threshold + 1
	}
	if count <= supervisor.threshold {
		return
	}

	select {
	case supervisor.wake <- struct{}{}:
	default:
	}
}

// Consecutive failures since the last success
func (supervisor *Supervisor) Failures() (count uint32) {
	count = supervisor.failures.Load()
	return
}

// Completed rescans
func (supervisor *Supervisor) Rescans() (count uint64) {
	count = supervisor.rescans.Load()
	return
}

// Blocks on the wake signal and runs rescan for each one until ctx ends
func (supervisor *Supervisor) Run(ctx context.Context, rescan func(ctx context.Context) error) {
	ctx = logctx.AppendCtxTag(ctx, global.NSHealth)

	for {
		select {
		case <-ctx.Done():
			return
		case <-supervisor.wake:
		}

		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"%d consecutive link send failures, rescanning\n", supervisor.failures.Load())

		// Let the link settle before touching peers
		select {
		case <-ctx.Done():
			return
		case <-time.After(supervisor.delay):
		}

		supervisor.runOnce(ctx, rescan)
	}
}

func (supervisor *Supervisor) runOnce(ctx context.Context, rescan func(ctx context.Context) error) {
	defer func() {
		if fatalError := recover(); fatalError != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"panic during link rescan: %v\n%s", fatalError, debug.Stack())
		}
	}()

	err := rescan(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "link rescan failed: %v\n", err)
		return
	}
	supervisor.failures.Store(0)
	supervisor.rescans.Add(1)
}
