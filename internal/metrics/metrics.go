// Package metrics exposes Prometheus collectors for the monitor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pagewatch/internal/model"
)

// Namespace prefixes every metric name.
const Namespace = "pagewatch"

// Check results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Notification statuses.
const (
	StatusSent          = "sent"
	StatusFailed        = "failed"
	StatusNoCredentials = "no_credentials"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ChecksTotal          *prometheus.CounterVec
	EventsTotal          *prometheus.CounterVec
	NotificationsTotal   *prometheus.CounterVec
	CheckDurationSeconds prometheus.Histogram
	SchedulerRunning     prometheus.Gauge
}

// New creates the collectors and registers them with reg, or with the
// default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "checks_total",
			Help:      "Total number of target checks by result",
		}, []string{"result"}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_total",
			Help:      "Total number of classified check events",
		}, []string{"event"}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notifications_total",
			Help:      "Total number of notification sends by status",
		}, []string{"status"}),
		CheckDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "check_duration_seconds",
			Help:      "Duration of a single target check including the settle delay",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
		}),
		SchedulerRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "scheduler_running",
			Help:      "1 while the polling loop is active",
		}),
	}
}

// ObserveCheck records one finished check.
func (m *Metrics) ObserveCheck(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(result).Inc()
	m.CheckDurationSeconds.Observe(d.Seconds())
}

// IncEvent counts a classified event.
func (m *Metrics) IncEvent(e model.Event) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(e.String()).Inc()
}

// IncNotification counts one notification send attempt.
func (m *Metrics) IncNotification(status string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(status).Inc()
}

// SetRunning flips the scheduler gauge.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.SchedulerRunning.Set(1)
		return
	}
	m.SchedulerRunning.Set(0)
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
