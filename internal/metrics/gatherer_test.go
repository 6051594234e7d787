package metrics

import (
	"context"
	"testing"
	"time"
)

type staticCollector struct {
	name  string
	value uint64
	calls int
}

func (collector *staticCollector) CollectMetrics(interval time.Duration) []Metric {
	collector.calls++
	return []Metric{{
		Name:      collector.name,
		Namespace: []string{"Hub", "Test"},
		Type:      Counter,
		Timestamp: time.Now(),
		Value:     MetricValue{Raw: collector.value, Unit: "count", Interval: interval},
	}}
}

func TestGatherer_Collect(t *testing.T) {
	first := &staticCollector{name: "frames_sent", value: 7}
	second := &staticCollector{name: "frames_written", value: 3}

	sources := []Collector{first}
	gatherer := NewGatherer(time.Second, time.Minute, func() []Collector { return sources })

	var hooked int
	gatherer.OnCollected = func(context.Context, time.Time) { hooked++ }

	base := time.Now().Truncate(time.Second)
	gatherer.Collect(context.Background(), base)

	// Sources are re-evaluated each interval; nil entries are skipped
	sources = []Collector{first, second, nil}
	gatherer.Collect(context.Background(), base.Add(time.Second))

	if first.calls != 2 || second.calls != 1 {
		t.Fatalf("expected 2 and 1 collections, got %d and %d", first.calls, second.calls)
	}
	if hooked != 2 {
		t.Fatalf("expected hook after each collection, got %d", hooked)
	}

	start, end := base.Add(-time.Second), base.Add(2*time.Second)
	if got := gatherer.Registry.Total("frames_sent", []string{"Hub"}, start, end); got != 14 {
		t.Fatalf("expected 14 frames sent, got %d", got)
	}
	if got := gatherer.Registry.Total("frames_written", []string{"Hub", "Test"}, start, end); got != 3 {
		t.Fatalf("expected 3 frames written, got %d", got)
	}
}

func TestNewGatherer_Defaults(t *testing.T) {
	gatherer := NewGatherer(0, 0, nil)
	if gatherer.Interval <= 0 || gatherer.Retention <= 0 {
		t.Fatalf("expected defaults, got interval %v retention %v", gatherer.Interval, gatherer.Retention)
	}
	// No sources is valid
	gatherer.Collect(context.Background(), time.Now())
}
