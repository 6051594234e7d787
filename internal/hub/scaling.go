package hub

import (
	"context"
	"smarthub/internal/global"
	"smarthub/internal/logctx"
	"smarthub/internal/metrics"
	"smarthub/internal/queue/mpmc"
	"time"
)

// Depth samples needed before the receive queue is resized
const pastNSamples = 5

// Watches recorded queue depth and resizes the receive queue within its bounds
type scaler struct {
	registry     *metrics.Registry
	pollInterval time.Duration
	sampleEvery  time.Duration // metric collection interval
	inbox        *mpmc.Queue[Datagram]
}

func newScaler(registry *metrics.Registry, pollInterval, sampleEvery time.Duration, inbox *mpmc.Queue[Datagram]) (new *scaler) {
	new = &scaler{
		registry:     registry,
		pollInterval: pollInterval,
		sampleEvery:  sampleEvery,
		inbox:        inbox,
	}
	return
}

func (s *scaler) Run(ctx context.Context) {
	ctx = logctx.AppendCtxTag(ctx, global.NSQueue)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.check(ctx, now)
		}
	}
}

func (s *scaler) check(ctx context.Context, now time.Time) (newCapacity int) {
	namespace := s.inbox.ActiveWrite.Load().Namespace
	newCapacity = s.inbox.Cap()

	samples := s.registry.Search("depth", namespace,
		now.Add(-time.Duration(pastNSamples)*s.sampleEvery), now)
	if len(samples) < pastNSamples {
		return
	}
	samples = samples[len(samples)-pastNSamples:]

	depths := make([]uint64, len(samples))
	for i, sample := range samples {
		depths[i] = sample.Value.Raw
	}

	scaleUp, scaleDown := mpmc.Trend(depths, newCapacity)
	if !scaleUp && !scaleDown {
		return
	}
	newCapacity = s.inbox.ScaleCapacity(ctx, scaleUp, scaleDown)
	return
}
