package mqtt311

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	t.Run("counter", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := NewPrometheusMetrics(reg)

		c := m.Counter(MetricPacketsSent, MetricLabels{LabelPacketType: "PUBLISH"})
		c.Inc()
		c.Add(2)
		c.Add(-1)
		assert.Equal(t, float64(3), c.Value())

		again := m.Counter(MetricPacketsSent, MetricLabels{LabelPacketType: "PUBLISH"})
		assert.Equal(t, float64(3), again.Value())

		count, err := testutil.GatherAndCount(reg, MetricPacketsSent)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("gauge", func(t *testing.T) {
		m := NewPrometheusMetrics(prometheus.NewRegistry())

		g := m.Gauge(MetricConnected, nil)
		g.Set(1)
		g.Inc()
		g.Dec()
		g.Add(2)
		assert.Equal(t, float64(3), g.Value())
	})

	t.Run("histogram", func(t *testing.T) {
		m := NewPrometheusMetrics(prometheus.NewRegistry())

		h := m.Histogram(MetricConnectLatency, nil)
		h.Observe(0.25)
		h.ObserveDuration(750 * time.Millisecond)
		assert.Equal(t, uint64(2), h.Count())
		assert.InDelta(t, 1.0, h.Sum(), 1e-9)
	})

	t.Run("mismatched labels are dropped", func(t *testing.T) {
		m := NewPrometheusMetrics(prometheus.NewRegistry())

		m.Counter("series", MetricLabels{"a": "1"}).Inc()
		c := m.Counter("series", MetricLabels{"b": "1"})
		assert.NotPanics(t, func() { c.Inc() })
		assert.Zero(t, c.Value())
	})

	t.Run("shared registry reuses collectors", func(t *testing.T) {
		reg := prometheus.NewRegistry()

		NewPrometheusMetrics(reg).Counter(MetricPingsSent, nil).Inc()
		NewPrometheusMetrics(reg).Counter(MetricPingsSent, nil).Inc()

		expected := `
# HELP mqtt_pings_sent_total MQTT client counter mqtt_pings_sent_total
# TYPE mqtt_pings_sent_total counter
mqtt_pings_sent_total 2
`
		assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), MetricPingsSent))
	})
}

func TestPrometheusMetricsWithClient(t *testing.T) {
	reg := prometheus.NewRegistry()
	cm := NewClientMetrics(NewPrometheusMetrics(reg))

	cm.PacketSent(PacketCONNECT)
	cm.BytesSent(14)
	cm.Connected(true)

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
