package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records enrichment request and poll session activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	ticks    *prometheus.CounterVec
	active   prometheus.Gauge
	duration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contactctl_enrichment_requests_total",
			Help: "Finished enrichment requests by terminal outcome",
		}, []string{"outcome"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contactctl_poll_ticks_total",
			Help: "Status checks performed by poll sessions, by result",
		}, []string{"result"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "contactctl_poll_sessions_active",
			Help: "Poll sessions currently running",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "contactctl_enrichment_duration_seconds",
			Help:    "Wall-clock time from enrichment request to terminal outcome",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 90, 120, 300},
		}),
	}
	reg.MustRegister(m.requests, m.ticks, m.active, m.duration)
	return m
}

// SessionStarted marks a poll session as running.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

// SessionEnded marks a running poll session as finished.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.active.Dec()
}

// TickObserved counts one status check; err is the absorbed fetch error, if any.
func (m *Metrics) TickObserved(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ticks.WithLabelValues(result).Inc()
}

// RequestFinished records the outcome of one enrichment request.
func (m *Metrics) RequestFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
