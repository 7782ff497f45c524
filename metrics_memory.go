package mqtt311

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryMetrics keeps metrics in process memory. Intended for tests and for
// reading counters back from a running client.
type MemoryMetrics struct {
	mu         sync.Mutex
	counters   map[string]*atomicFloat
	gauges     map[string]*atomicFloat
	histograms map[string]*memoryHistogram
}

// NewMemoryMetrics creates an empty MemoryMetrics.
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{
		counters:   make(map[string]*atomicFloat),
		gauges:     make(map[string]*atomicFloat),
		histograms: make(map[string]*memoryHistogram),
	}
}

// metricKey joins the name with the labels sorted by key.
func metricKey(name string, labels MetricLabels) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(name)
	for _, k := range keys {
		sb.WriteByte('|')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
	}
	return sb.String()
}

func lookup[T any](mu *sync.Mutex, m map[string]*T, key string, create bool) *T {
	mu.Lock()
	defer mu.Unlock()

	v, ok := m[key]
	if !ok && create {
		v = new(T)
		m[key] = v
	}
	return v
}

// Counter returns the counter for name and labels, creating it on first use.
func (m *MemoryMetrics) Counter(name string, labels MetricLabels) Counter {
	return memoryCounter{lookup(&m.mu, m.counters, metricKey(name, labels), true)}
}

// Gauge returns the gauge for name and labels, creating it on first use.
func (m *MemoryMetrics) Gauge(name string, labels MetricLabels) Gauge {
	return memoryGauge{lookup(&m.mu, m.gauges, metricKey(name, labels), true)}
}

// Histogram returns the histogram for name and labels, creating it on first use.
func (m *MemoryMetrics) Histogram(name string, labels MetricLabels) Histogram {
	return lookup(&m.mu, m.histograms, metricKey(name, labels), true)
}

// CounterValue returns the value of a counter, or 0 if it was never used.
func (m *MemoryMetrics) CounterValue(name string, labels MetricLabels) float64 {
	if v := lookup(&m.mu, m.counters, metricKey(name, labels), false); v != nil {
		return v.load()
	}
	return 0
}

// GaugeValue returns the value of a gauge, or 0 if it was never used.
func (m *MemoryMetrics) GaugeValue(name string, labels MetricLabels) float64 {
	if v := lookup(&m.mu, m.gauges, metricKey(name, labels), false); v != nil {
		return v.load()
	}
	return 0
}

// HistogramCount returns the number of observations of a histogram.
func (m *MemoryMetrics) HistogramCount(name string, labels MetricLabels) uint64 {
	if h := lookup(&m.mu, m.histograms, metricKey(name, labels), false); h != nil {
		return h.Count()
	}
	return 0
}

// atomicFloat stores a float64 as its bit pattern.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat) store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

func (f *atomicFloat) add(delta float64) {
	for {
		old := f.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if f.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

type memoryCounter struct{ v *atomicFloat }

func (c memoryCounter) Inc() { c.v.add(1) }

func (c memoryCounter) Add(delta float64) {
	if delta > 0 {
		c.v.add(delta)
	}
}

func (c memoryCounter) Value() float64 { return c.v.load() }

type memoryGauge struct{ v *atomicFloat }

func (g memoryGauge) Set(value float64) { g.v.store(value) }
func (g memoryGauge) Inc()              { g.v.add(1) }
func (g memoryGauge) Dec()              { g.v.add(-1) }
func (g memoryGauge) Add(delta float64) { g.v.add(delta) }
func (g memoryGauge) Value() float64    { return g.v.load() }

type memoryHistogram struct {
	count atomic.Uint64
	sum   atomicFloat
}

func (h *memoryHistogram) Observe(value float64) {
	h.count.Add(1)
	h.sum.add(value)
}

func (h *memoryHistogram) ObserveDuration(d time.Duration) { h.Observe(d.Seconds()) }

func (h *memoryHistogram) Count() uint64 { return h.count.Load() }

func (h *memoryHistogram) Sum() float64 { return h.sum.load() }
