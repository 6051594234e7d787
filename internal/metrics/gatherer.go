package metrics

import (
	"context"
	"runtime/debug"
	"smarthub/internal/global"
	"smarthub/internal/logctx"
	"time"
)

// Periodically collects every source into the registry
type Gatherer struct {
	Interval  time.Duration // Polling interval to gather metrics at
	Retention time.Duration // Maximum time to maintain metrics for
	Registry  *Registry

	// Evaluated every interval; components come and go (e.g. a reopened log store)
	Sources func() []Collector

	// Optional hook after each collection
	OnCollected func(ctx context.Context, timeSlice time.Time)
}

func NewGatherer(interval, retention time.Duration, sources func() []Collector) (gatherer *Gatherer) {
	if interval <= 0 {
		interval = global.DefaultMetricInterval
	}
	if retention <= 0 {
		retention = global.DefaultMetricMaxAge
	}
	gatherer = &Gatherer{
		Interval:  interval,
		Retention: retention,
		Registry:  New(),
		Sources:   sources,
	}
	return
}

func (gatherer *Gatherer) Run(ctx context.Context) {
	ctx = logctx.AppendCtxTag(ctx, global.NSMetric)

	lastRun := time.Now()

	ticker := time.NewTicker(gatherer.Interval / 2) // Use polling interval half of desired record interval
	defer ticker.Stop()

	// Counter to track how many ticks have passed (for retention)
	var tickCount int

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Sub(lastRun) >= gatherer.Interval {
				lastRun = now
				gatherer.Collect(ctx, now)
			}

			tickCount++
			if tickCount >= 30 {
				gatherer.Registry.Prune(now, gatherer.Retention)
				tickCount = 0
			}
		}
	}
}

// Records one interval of every source under the slice containing now
func (gatherer *Gatherer) Collect(ctx context.Context, now time.Time) {
	// Record panics and continue on next interval
	defer func() {
		if fatalError := recover(); fatalError != nil {
			stack := debug.Stack()
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"panic in metric collector: %v\n%s", fatalError, stack)
		}
	}()

	timeSlice := gatherer.Registry.NewTimeSlice(now, gatherer.Interval)
	if gatherer.Sources != nil {
		for _, source := range gatherer.Sources() {
			if source == nil {
				continue
			}
			gatherer.Registry.Add(timeSlice, source.CollectMetrics(gatherer.Interval))
		}
	}

	if gatherer.OnCollected != nil {
		gatherer.OnCollected(ctx, timeSlice)
	}
}
