package obs

import (
	"sort"
	"strings"
	"sync"
)

// Label is a key/value pair attached to measurements.
type Label struct {
	Key   string
	Value string
}

// Meter is a very small interface for emitting counters/histograms.
// Implementations may no-op or bridge to a metrics system.
type Meter interface {
	Counter(name string, value float64, labels ...Label)
	Histogram(name string, value float64, labels ...Label)
}

// NopMeter is a Meter that discards all measurements.
type NopMeter struct{}

func (NopMeter) Counter(name string, value float64, labels ...Label)   {}
func (NopMeter) Histogram(name string, value float64, labels ...Label) {}

// MemMeter keeps counter totals and histogram observations in memory.
// Series are keyed by name plus sorted labels, e.g. `responses{status=200}`.
type MemMeter struct {
	mu       sync.Mutex
	counters map[string]float64
	samples  map[string][]float64
}

func (m *MemMeter) Counter(name string, value float64, labels ...Label) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]float64)
	}
	m.counters[SeriesKey(name, labels...)] += value
}

func (m *MemMeter) Histogram(name string, value float64, labels ...Label) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.samples == nil {
		m.samples = make(map[string][]float64)
	}
	k := SeriesKey(name, labels...)
	m.samples[k] = append(m.samples[k], value)
}

// Count returns the total of a counter series.
func (m *MemMeter) Count(series string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[series]
}

// Observations returns the number of samples recorded for a histogram series.
func (m *MemMeter) Observations(series string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples[series])
}

// Snapshot returns a copy of all counter totals.
func (m *MemMeter) Snapshot() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

func SeriesKey(name string, labels ...Label) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l.Key + "=" + l.Value
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}
