package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter MetricType = "counter"
	Timer   MetricType = "timer"
	Gauge   MetricType = "gauge"
)

// Metric represents a single counter or gauge with its metadata
type Metric struct {
	Name       string            `json:"name"`
	Type       MetricType        `json:"type"`
	Value      float64           `json:"value"`
	Labels     map[string]string `json:"labels,omitempty"`
	LastUpdate time.Time         `json:"last_update"`
}

// TimerMetric stores timing information
type TimerMetric struct {
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum_ms"`
	Min     float64 `json:"min_ms"`
	Max     float64 `json:"max_ms"`
	Average float64 `json:"avg_ms"`
	P95     float64 `json:"p95_ms,omitempty"`
	P99     float64 `json:"p99_ms,omitempty"`
	samples []float64
}

// Registry manages all metrics in memory
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Metric
	timers    map[string]*TimerMetric
	gauges    map[string]*Metric
	startTime time.Time
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Metric),
		timers:    make(map[string]*TimerMetric),
		gauges:    make(map[string]*Metric),
		startTime: time.Now(),
	}
}

// Global registry instance
var globalRegistry = NewRegistry()

// GetRegistry returns the global registry instance
func GetRegistry() *Registry {
	return globalRegistry
}

// IncrementCounter increments a counter metric
func (r *Registry) IncrementCounter(name string, labels map[string]string) {
	r.AddToCounter(name, 1, labels)
}

// AddToCounter adds a value to a counter metric
func (r *Registry) AddToCounter(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	if counter, exists := r.counters[key]; exists {
		counter.Value += value
		counter.LastUpdate = time.Now()
		return
	}
	r.counters[key] = &Metric{
		Name:       name,
		Type:       Counter,
		Value:      value,
		Labels:     copyLabels(labels),
		LastUpdate: time.Now(),
	}
}

// RecordTimer records a timing measurement
func (r *Registry) RecordTimer(name string, duration time.Duration, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	durationMs := float64(duration.Nanoseconds()) / 1e6

	timer, exists := r.timers[key]
	if !exists {
		r.timers[key] = &TimerMetric{
			Count:   1,
			Sum:     durationMs,
			Min:     durationMs,
			Max:     durationMs,
			Average: durationMs,
			samples: []float64{durationMs},
		}
		return
	}

	timer.Count++
	timer.Sum += durationMs
	timer.samples = append(timer.samples, durationMs)

	if durationMs < timer.Min {
		timer.Min = durationMs
	}
	if durationMs > timer.Max {
		timer.Max = durationMs
	}
	timer.Average = timer.Sum / float64(timer.Count)

	// Keep only the last 1000 samples for percentile calculation
	if len(timer.samples) > 1000 {
		timer.samples = timer.samples[len(timer.samples)-1000:]
	}
	if len(timer.samples) >= 10 {
		timer.P95 = percentile(timer.samples, 0.95)
		timer.P99 = percentile(timer.samples, 0.99)
	}
}

// SetGauge sets a gauge metric value
func (r *Registry) SetGauge(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	r.gauges[key] = &Metric{
		Name:       name,
		Type:       Gauge,
		Value:      value,
		Labels:     copyLabels(labels),
		LastUpdate: time.Now(),
	}
}

// GetCounter returns the current value of a counter, or 0 when unset.
func (r *Registry) GetCounter(name string, labels map[string]string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if counter, exists := r.counters[metricKey(name, labels)]; exists {
		return counter.Value
	}
	return 0
}

// GetTimer returns a copy of a timer's aggregate values, or nil when unset.
func (r *Registry) GetTimer(name string, labels map[string]string) *TimerMetric {
	r.mu.RLock()
	defer r.mu.RUnlock()

	timer, exists := r.timers[metricKey(name, labels)]
	if !exists {
		return nil
	}
	snapshot := *timer
	snapshot.samples = nil
	return &snapshot
}

// Snapshot is a point-in-time copy of every metric in a registry.
type Snapshot struct {
	Counters  map[string]*Metric      `json:"counters"`
	Timers    map[string]*TimerMetric `json:"timers"`
	Gauges    map[string]*Metric      `json:"gauges"`
	UptimeMs  int64                   `json:"uptime_ms"`
	Timestamp int64                   `json:"timestamp"`
}

// GetAllMetrics returns all metrics in a structured format
func (r *Registry) GetAllMetrics() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counters := make(map[string]*Metric, len(r.counters))
	for key, counter := range r.counters {
		c := *counter
		counters[key] = &c
	}
	timers := make(map[string]*TimerMetric, len(r.timers))
	for key, timer := range r.timers {
		tm := *timer
		tm.samples = nil
		timers[key] = &tm
	}
	gauges := make(map[string]*Metric, len(r.gauges))
	for key, gauge := range r.gauges {
		g := *gauge
		gauges[key] = &g
	}

	return Snapshot{
		Counters:  counters,
		Timers:    timers,
		Gauges:    gauges,
		UptimeMs:  time.Since(r.startTime).Milliseconds(),
		Timestamp: time.Now().Unix(),
	}
}

// Reset clears all recorded metrics. Intended for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters = make(map[string]*Metric)
	r.timers = make(map[string]*TimerMetric)
	r.gauges = make(map[string]*Metric)
	r.startTime = time.Now()
}

// metricKey generates a stable unique key for a metric with labels
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("_%s:%s", k, labels[k]))
	}
	return b.String()
}

// percentile calculates the specified percentile from samples
func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

// copyLabels creates a copy of the labels map
func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}

	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// Convenience functions for the global registry

// IncrementCounter increments a counter in the global registry
func IncrementCounter(name string, labels map[string]string) {
	globalRegistry.IncrementCounter(name, labels)
}

// AddToCounter adds to a counter in the global registry
func AddToCounter(name string, value float64, labels map[string]string) {
	globalRegistry.AddToCounter(name, value, labels)
}

// RecordTimer records timing in the global registry
func RecordTimer(name string, duration time.Duration, labels map[string]string) {
	globalRegistry.RecordTimer(name, duration, labels)
}

// SetGauge sets a gauge in the global registry
func SetGauge(name string, value float64, labels map[string]string) {
	globalRegistry.SetGauge(name, value, labels)
}

// GetAllMetrics returns all metrics from the global registry
func GetAllMetrics() Snapshot {
	return globalRegistry.GetAllMetrics()
}
