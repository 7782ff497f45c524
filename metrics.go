package mqtt311

import (
	"strconv"
	"time"
)

// MetricLabels are the label pairs attached to a metric.
type MetricLabels map[string]string

// Metrics is the sink the client reports to.
type Metrics interface {
	Counter(name string, labels MetricLabels) Counter
	Gauge(name string, labels MetricLabels) Gauge
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter only goes up.
type Counter interface {
	Inc()
	Add(delta float64)
	Value() float64
}

// Gauge holds a value that can go up and down.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(delta float64)
	Value() float64
}

// Histogram records observations.
type Histogram interface {
	Observe(value float64)

	// ObserveDuration records d in seconds.
	ObserveDuration(d time.Duration)

	Count() uint64
	Sum() float64
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

// Counter returns a no-op counter.
func (n *NoOpMetrics) Counter(_ string, _ MetricLabels) Counter { return noOpCounter{} }

// Gauge returns a no-op gauge.
func (n *NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge { return noOpGauge{} }

// Histogram returns a no-op histogram.
func (n *NoOpMetrics) Histogram(_ string, _ MetricLabels) Histogram { return noOpHistogram{} }

type noOpCounter struct{}

func (noOpCounter) Inc()           {}
func (noOpCounter) Add(float64)    {}
func (noOpCounter) Value() float64 { return 0 }

type noOpGauge struct{}

func (noOpGauge) Set(float64)    {}
func (noOpGauge) Inc()           {}
func (noOpGauge) Dec()           {}
func (noOpGauge) Add(float64)    {}
func (noOpGauge) Value() float64 { return 0 }

type noOpHistogram struct{}

func (noOpHistogram) Observe(float64)               {}
func (noOpHistogram) ObserveDuration(time.Duration) {}
func (noOpHistogram) Count() uint64                 { return 0 }
func (noOpHistogram) Sum() float64                  { return 0 }

// Client metric names.
const (
	MetricPacketsSent     = "mqtt_packets_sent_total"
	MetricPacketsReceived = "mqtt_packets_received_total"
	MetricBytesSent       = "mqtt_bytes_sent_total"
	MetricBytesReceived   = "mqtt_bytes_received_total"
	MetricConnected       = "mqtt_connected"
	MetricPingsSent       = "mqtt_pings_sent_total"
	MetricDecodeErrors    = "mqtt_decode_errors_total"
	MetricMessages        = "mqtt_messages_received_total"
	MetricConnectLatency  = "mqtt_connect_latency_seconds"
)

// Metric labels.
const (
	LabelPacketType = "type"
	LabelQoS        = "qos"
)

// ClientMetrics records client events on a Metrics sink.
type ClientMetrics struct {
	metrics Metrics
}

// NewClientMetrics wraps m. A nil m discards everything.
func NewClientMetrics(m Metrics) *ClientMetrics {
	if m == nil {
		m = &NoOpMetrics{}
	}
	return &ClientMetrics{metrics: m}
}

// PacketSent counts one outgoing packet.
func (c *ClientMetrics) PacketSent(t PacketType) {
	c.metrics.Counter(MetricPacketsSent, MetricLabels{LabelPacketType: t.String()}).Inc()
}

// PacketReceived counts one incoming packet.
func (c *ClientMetrics) PacketReceived(t PacketType) {
	c.metrics.Counter(MetricPacketsReceived, MetricLabels{LabelPacketType: t.String()}).Inc()
}

// BytesSent adds n to the outgoing byte count.
func (c *ClientMetrics) BytesSent(n int) {
	c.metrics.Counter(MetricBytesSent, nil).Add(float64(n))
}

// BytesReceived adds n to the incoming byte count.
func (c *ClientMetrics) BytesReceived(n int) {
	c.metrics.Counter(MetricBytesReceived, nil).Add(float64(n))
}

// Connected sets the connection gauge to 1 or 0.
func (c *ClientMetrics) Connected(up bool) {
	var v float64
	if up {
		v = 1
	}
	c.metrics.Gauge(MetricConnected, nil).Set(v)
}

// PingSent counts one PINGREQ.
func (c *ClientMetrics) PingSent() {
	c.metrics.Counter(MetricPingsSent, nil).Inc()
}

// DecodeError counts one frame that could not be decoded.
func (c *ClientMetrics) DecodeError() {
	c.metrics.Counter(MetricDecodeErrors, nil).Inc()
}

// MessageReceived counts one delivered application message.
func (c *ClientMetrics) MessageReceived(qos QoS) {
	c.metrics.Counter(MetricMessages, MetricLabels{LabelQoS: strconv.Itoa(int(qos))}).Inc()
}

// ConnectLatency records the time between CONNECT and a successful CONNACK.
func (c *ClientMetrics) ConnectLatency(d time.Duration) {
	c.metrics.Histogram(MetricConnectLatency, nil).ObserveDuration(d)
}
