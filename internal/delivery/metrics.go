package delivery

import (
	"smarthub/internal/global"
	"smarthub/internal/metrics"
	"sync/atomic"
	"time"
)

type MetricStorage struct {
	Sent          atomic.Uint64
	SendFailed    atomic.Uint64
	Rejected      atomic.Uint64 // frames that could not be converted
	Connects      atomic.Uint64
	ConnectFailed atomic.Uint64
}

func (manager *Manager) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()
	namespace := []string{global.NSHub, global.NSDelivery}

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

	var connected uint64
	if manager.Connected() {
		connected = 1
	}

	add("frames_sent", manager.Metrics.Sent.Swap(0), metrics.Counter, "Frames written to the backend")
	add("send_failed", manager.Metrics.SendFailed.Swap(0), metrics.Counter, "Frames the backend write rejected")
	add("rejected", manager.Metrics.Rejected.Swap(0), metrics.Counter, "Frames that failed conversion to the backend format")
	add("connects", manager.Metrics.Connects.Swap(0), metrics.Counter, "Backend connections established")
	add("connect_failed", manager.Metrics.ConnectFailed.Swap(0), metrics.Counter, "Connection attempts that reached no backend")
	add("connected", connected, metrics.Gauge, "1 while a backend connection is live")
	return
}
