package mpmc

import (
	"smarthub/internal/metrics"
	"sync/atomic"
	"time"
)

type MetricStorage struct {
	Depth     atomic.Uint64 // Current items in queue
	HighWater atomic.Uint64 // Deepest the queue got since last collection

	PushSuccess atomic.Uint64
	PushFull    atomic.Uint64 // rejected because the queue was full
	PopSuccess  atomic.Uint64
}

func (container *Queue[T]) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	queues := []*QueueInst[T]{container.ActiveWrite.Load()}
	if read := container.ActiveRead.Load(); read != queues[0] {
		queues = append(queues, read)
	}

	var depth, high, pushed, full, popped uint64
	for _, q := range queues {
		depth += q.Metrics.Depth.Load()
		high = max(high, q.Metrics.HighWater.Swap(0))
		pushed += q.Metrics.PushSuccess.Swap(0)
		full += q.Metrics.PushFull.Swap(0)
		popped += q.Metrics.PopSuccess.Swap(0)
	}

	recordTime := time.Now()
	add := func(name string, raw uint64, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   queues[0].Namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     "count",
				Interval: interval,
			},
		})
	}

	add("depth", depth, metrics.Gauge, "Current number of items in the queue")
	add("capacity", uint64(queues[0].Size), metrics.Gauge, "Capacity of the instance accepting writes")
	add("high_water", high, metrics.Gauge, "Deepest queue depth in the interval")
	add("push_success", pushed, metrics.Counter, "Items accepted in the interval")
	add("push_full", full, metrics.Counter, "Items rejected because the queue was full")
	add("pop_success", popped, metrics.Counter, "Items consumed in the interval")
	return
}
