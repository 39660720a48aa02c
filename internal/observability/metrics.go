package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the server.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	Messages          *prometheus.CounterVec
	RateLimited       prometheus.Counter
	PluginInvocations *prometheus.CounterVec
	PluginFaults      *prometheus.CounterVec
	PluginLatency     prometheus.Histogram
	AdminNotifies     prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live user sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		Messages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Mesh messages by direction and kind.",
		}, []string{"direction", "kind"}),
		RateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Inbound messages denied by the rate limiter.",
		}),
		PluginInvocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_invocations_total",
			Help:      "Plugin calls by plugin and operation.",
		}, []string{"plugin", "op"}),
		PluginFaults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_faults_total",
			Help:      "Plugin faults by plugin and cause.",
		}, []string{"plugin", "cause"}),
		PluginLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plugin_latency_ms",
			Help:      "Plugin call latency in milliseconds.",
			Buckets:   []float64{5, 20, 50, 100, 250, 500, 1000, 5000, 15000, 30000},
		}),
		AdminNotifies: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_notifications_total",
			Help:      "New-node notifications delivered to admins.",
		}),
	}
}

func (m *Metrics) ObservePluginLatency(d time.Duration) {
	m.PluginLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
