package mqtt311

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// PrometheusMetrics exports client metrics through a Prometheus registerer.
//
// One vector is registered per metric name; its label names are fixed by the
// first call for that name. Calls whose labels do not match the vector are
// dropped.
type PrometheusMetrics struct {
	reg        prometheus.Registerer
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics creates a PrometheusMetrics registering on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func labelNames(labels MetricLabels) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// register adds c to the registry, reusing an already registered collector
// of the same description.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// Counter returns a counter for name and labels.
func (p *PrometheusMetrics) Counter(name string, labels MetricLabels) Counter {
	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = register(p.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name,
			Help: "MQTT client counter " + name,
		}, labelNames(labels)))
		p.counters[name] = vec
	}
	p.mu.Unlock()

	c, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return noOpCounter{}
	}
	return promCounter{c}
}

// Gauge returns a gauge for name and labels.
func (p *PrometheusMetrics) Gauge(name string, labels MetricLabels) Gauge {
	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = register(p.reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: "MQTT client gauge " + name,
		}, labelNames(labels)))
		p.gauges[name] = vec
	}
	p.mu.Unlock()

	g, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return noOpGauge{}
	}
	return promGauge{g}
}

// Histogram returns a histogram for name and labels using the default buckets.
func (p *PrometheusMetrics) Histogram(name string, labels MetricLabels) Histogram {
	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = register(p.reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    "MQTT client histogram " + name,
			Buckets: prometheus.DefBuckets,
		}, labelNames(labels)))
		p.histograms[name] = vec
	}
	p.mu.Unlock()

	o, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return noOpHistogram{}
	}

	h, ok := o.(prometheus.Histogram)
	if !ok {
		return noOpHistogram{}
	}
	return promHistogram{h}
}

func readMetric(m prometheus.Metric) *dto.Metric {
	out := &dto.Metric{}
	if err := m.Write(out); err != nil {
		return &dto.Metric{}
	}
	return out
}

type promCounter struct{ c prometheus.Counter }

func (c promCounter) Inc() { c.c.Inc() }

func (c promCounter) Add(delta float64) {
	if delta > 0 {
		c.c.Add(delta)
	}
}

func (c promCounter) Value() float64 { return readMetric(c.c).GetCounter().GetValue() }

type promGauge struct{ g prometheus.Gauge }

func (g promGauge) Set(value float64) { g.g.Set(value) }
func (g promGauge) Inc()              { g.g.Inc() }
func (g promGauge) Dec()              { g.g.Dec() }
func (g promGauge) Add(delta float64) { g.g.Add(delta) }
func (g promGauge) Value() float64    { return readMetric(g.g).GetGauge().GetValue() }

type promHistogram struct{ h prometheus.Histogram }

func (h promHistogram) Observe(value float64)           { h.h.Observe(value) }
func (h promHistogram) ObserveDuration(d time.Duration) { h.h.Observe(d.Seconds()) }
func (h promHistogram) Count() uint64                   { return readMetric(h.h).GetHistogram().GetSampleCount() }
func (h promHistogram) Sum() float64                    { return readMetric(h.h).GetHistogram().GetSampleSum() }
