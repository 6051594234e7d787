package metrics

import (
	"sync"
	"time"
)

type Registry struct {
	mu      sync.RWMutex
	metrics map[time.Time]map[string]map[string]Metric // key0=time slice, key1=namespace, key2=name
}

type MetricType string

const (
	Counter MetricType = "counter" // events within the interval
	Gauge   MetricType = "gauge"   // point in time value
)

// Container for a metric and associated data
type Metric struct {
	Name        string // e.g. frames_decoded, depth
	Description string
	Namespace   []string // e.g. "Hub/Ingest"
	Value       MetricValue
	Type        MetricType
	Timestamp   time.Time // time when the metric was recorded
}

// Specific value of a metric
type MetricValue struct {
	Raw      uint64
	Unit     string        // e.g. "count", "bytes"
	Interval time.Duration // measurement window
}

// Anything able to report its counters for one interval
type Collector interface {
	CollectMetrics(interval time.Duration) []Metric
}
