// Package telemetry holds the Prometheus collectors and OpenTelemetry tracer
// setup shared by the HTTP layer, the domain services and the sweeps.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hospital"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	sweepRuns     *prometheus.CounterVec
	sweepRecords  *prometheus.CounterVec
	sweepLatency  *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	bookings      *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route template and status",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions attempted on appointments and prescriptions",
		}, []string{"entity", "action", "result"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Scheduled sweep executions",
		}, []string{"sweep", "result"}),
		sweepRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "records_total",
			Help:      "Records touched by sweeps, by outcome",
		}, []string{"sweep", "outcome"}),
		sweepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Sweep run time",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"sweep"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "sent_total",
			Help:      "Notifications handed to the email provider",
		}, []string{"kind", "status"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Public booking wizard requests by step",
		}, []string{"step", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.httpRequests, m.httpLatency, m.transitions, m.sweepRuns,
		m.sweepRecords, m.sweepLatency, m.notifications, m.bookings)
	return m
}

func (m *Metrics) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveTransition counts a lifecycle action; err == nil is "ok".
func (m *Metrics) ObserveTransition(entity, action string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, action, result(err)).Inc()
}

func (m *Metrics) ObserveSweep(name string, processed, failed int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(name, result(err)).Inc()
	m.sweepRecords.WithLabelValues(name, "processed").Add(float64(processed))
	m.sweepRecords.WithLabelValues(name, "failed").Add(float64(failed))
	m.sweepLatency.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveNotification(kind string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, result(err)).Inc()
}

func (m *Metrics) ObserveBooking(step string, err error) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(step, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
