package hub

import (
	"smarthub/internal/global"
	"smarthub/internal/metrics"
	"sync/atomic"
	"time"
)

type MetricStorage struct {
	DatagramsIn   atomic.Uint64
	InboxFull     atomic.Uint64 // datagrams refused by the receive queue
	FramesDecoded atomic.Uint64
	DecodeResets  atomic.Uint64
	FramesDropped atomic.Uint64

	FramesSent   atomic.Uint64
	SendFailed   atomic.Uint64
	FramesStored atomic.Uint64
	BacklogRead  atomic.Uint64

	PingSent         atomic.Uint64
	PingFailed       atomic.Uint64
	StorageRecovered atomic.Uint64
	Panics           atomic.Uint64
}

// Loop counters plus those of the durable log while one is open
func (loop *Loop) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()
	namespace := []string{global.NSHub, global.NSIngest}

	add := func(name string, raw uint64, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     "count",
				Interval: interval,
			},
		})
	}

	add("datagrams_in", loop.Metrics.DatagramsIn.Swap(0), metrics.Counter, "Link payloads taken from the receive queue")
	add("inbox_full", loop.Metrics.InboxFull.Swap(0), metrics.Counter, "Link payloads refused because the receive queue was full")
	add("frames_decoded", loop.Metrics.FramesDecoded.Swap(0), metrics.Counter, "Frames decoded from link payloads")
	add("decode_resets", loop.Metrics.DecodeResets.Swap(0), metrics.Counter, "Per-origin buffers discarded after bad input")
	add("frames_dropped", loop.Metrics.FramesDropped.Swap(0), metrics.Counter, "Frames neither delivered nor stored")
	add("frames_sent", loop.Metrics.FramesSent.Swap(0), metrics.Counter, "Frames handed to the backend")
	add("send_failed", loop.Metrics.SendFailed.Swap(0), metrics.Counter, "Frames the backend write rejected")
	add("frames_stored", loop.Metrics.FramesStored.Swap(0), metrics.Counter, "Frames written to the durable log")
	add("backlog_read", loop.Metrics.BacklogRead.Swap(0), metrics.Counter, "Frames replayed from the durable log")
	add("ping_sent", loop.Metrics.PingSent.Swap(0), metrics.Counter, "Keepalive broadcasts sent")
	add("ping_failed", loop.Metrics.PingFailed.Swap(0), metrics.Counter, "Keepalive broadcasts the link refused")
	add("storage_recovered", loop.Metrics.StorageRecovered.Swap(0), metrics.Counter, "Times the durable log was (re)opened")
	add("panics", loop.Metrics.Panics.Swap(0), metrics.Counter, "Ticks aborted by a recovered panic")

	var available uint64
	loop.storeMu.Lock()
	if loop.store != nil {
		available = 1
		collection = append(collection, loop.store.CollectMetrics(interval)...)
	}
	loop.storeMu.Unlock()
	add("storage_available", available, metrics.Gauge, "1 while the durable log is open")
	return
}
