// In-memory time sliced registry of pipeline counters
package metrics

import (
	"sort"
	"strings"
	"time"
)

// Creates new metric registry storage
func New() (new *Registry) {
	new = &Registry{
		metrics: make(map[time.Time]map[string]map[string]Metric),
	}
	return
}

// Prepares storage for the interval containing now and returns its key
func (registry *Registry) NewTimeSlice(now time.Time, interval time.Duration) (timeSlice time.Time) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	timeSlice = now
	if interval > 0 {
		timeSlice = now.Truncate(interval)
	}
	if registry.metrics[timeSlice] == nil {
		registry.metrics[timeSlice] = make(map[string]map[string]Metric)
	}
	return
}

// Adds batch of metrics to an existing time slice
func (registry *Registry) Add(timeSlice time.Time, batch []Metric) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	slice := registry.metrics[timeSlice]
	if slice == nil {
		return
	}

	for _, metric := range batch {
		namespace := strings.Join(metric.Namespace, "/")
		if slice[namespace] == nil {
			slice[namespace] = make(map[string]Metric)
		}
		slice[namespace][metric.Name] = metric
	}
}

// Deletes time slices older than maxAge relative to currentTime
func (registry *Registry) Prune(currentTime time.Time, maxAge time.Duration) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	for timeSlice := range registry.metrics {
		if currentTime.Sub(timeSlice) > maxAge {
			delete(registry.metrics, timeSlice)
		}
	}
}

// Returns metrics matching name (empty = all) under namespacePrefix (empty = all), oldest first.
// Zero start/end disable the respective bound.
func (registry *Registry) Search(name string, namespacePrefix []string, start, end time.Time) (results []Metric) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	var slices []time.Time
	for ts := range registry.metrics {
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && ts.After(end) {
			continue
		}
		slices = append(slices, ts)
	}
	sort.Slice(slices, func(i, j int) bool { return slices[i].Before(slices[j]) })

	for _, ts := range slices {
		namespaces := make([]string, 0, len(registry.metrics[ts]))
		for ns := range registry.metrics[ts] {
			namespaces = append(namespaces, ns)
		}
		sort.Strings(namespaces)

		for _, ns := range namespaces {
			if !hasPrefix(strings.Split(ns, "/"), namespacePrefix) {
				continue
			}
			byName := registry.metrics[ts][ns]
			names := make([]string, 0, len(byName))
			for metricName := range byName {
				names = append(names, metricName)
			}
			sort.Strings(names)

			for _, metricName := range names {
				if name == "" || metricName == name {
					results = append(results, byName[metricName])
				}
			}
		}
	}
	return
}

// Sums a counter (or averages a gauge) across every slice in the window
func (registry *Registry) Total(name string, namespacePrefix []string, start, end time.Time) (total uint64) {
	found := registry.Search(name, namespacePrefix, start, end)
	if len(found) == 0 {
		return
	}

	for _, metric := range found {
		total += metric.Value.Raw
	}
	if found[0].Type == Gauge {
		total /= uint64(len(found))
	}
	return
}

func hasPrefix(metricNS, queryNS []string) (matches bool) {
	if len(metricNS) < len(queryNS) {
		return
	}
	for i := range queryNS {
		if metricNS[i] != queryNS[i] {
			return
		}
	}
	matches = true
	return
}
