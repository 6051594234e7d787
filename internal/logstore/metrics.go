package logstore

import (
	"smarthub/internal/global"
	"smarthub/internal/metrics"
	"time"
)

func (store *Store) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()
	namespace := []string{global.NSHub, global.NSLogStore}

	add := func(name string, raw uint64, t metrics.MetricType, unit string, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     unit,
				Interval: interval,
			},
		})
	}

	add("frames_written", store.Metrics.FramesWritten.Swap(0), metrics.Counter, "count", "Frames accepted for the log")
	add("frames_read", store.Metrics.FramesRead.Swap(0), metrics.Counter, "count", "Frames decoded from the log")
	add("blocks_written", store.Metrics.BlocksWritten.Swap(0), metrics.Counter, "count", "Blocks appended to the log file")
	add("blocks_read", store.Metrics.BlocksRead.Swap(0), metrics.Counter, "count", "Blocks read from the log file")
	add("compactions", store.Metrics.Compactions.Swap(0), metrics.Counter, "count", "Drained log files recreated empty")
	add("bytes_discarded", store.Metrics.BytesDiscarded.Swap(0), metrics.Counter, "bytes", "Undecodable log bytes dropped")
	add("size", uint64(max(store.size, 0)), metrics.Gauge, "bytes", "Current size of the log file")
	return
}
