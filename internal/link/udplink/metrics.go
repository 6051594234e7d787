package udplink

import (
	"smarthub/internal/global"
	"smarthub/internal/metrics"
	"sync/atomic"
	"time"
)

type MetricStorage struct {
	Sent       atomic.Uint64
	SendFailed atomic.Uint64
	Received   atomic.Uint64
	Rejected   atomic.Uint64 // bad header, wrong key, unsealed on a sealed link
	Truncated  atomic.Uint64 // payload cut down to the link maximum
}

func (transport *Transport) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()
	namespace := []string{global.NSHub, global.NSLink}

	add := func(name string, raw uint64, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   namespace,
			Type:        metrics.Counter,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     "count",
				Interval: interval,
			},
		})
	}

	add("datagrams_sent", transport.Metrics.Sent.Swap(0), "Datagrams written to the link")
	add("send_failed", transport.Metrics.SendFailed.Swap(0), "Datagrams the link refused")
	add("datagrams_received", transport.Metrics.Received.Swap(0), "Datagrams accepted from peers")
	add("datagrams_rejected", transport.Metrics.Rejected.Swap(0), "Datagrams dropped as invalid")
	add("datagrams_truncated", transport.Metrics.Truncated.Swap(0), "Oversized payloads cut to the link maximum")
	return
}
