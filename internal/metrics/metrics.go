package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Booking outcomes recorded by appointment_bookings_total.
const (
	OutcomeBooked            = "booked"
	OutcomeSlotTaken         = "slot_taken"
	OutcomeDoctorUnavailable = "doctor_unavailable"
	OutcomeDateInPast        = "date_in_past"
	OutcomeInvalid           = "invalid"
	OutcomeError             = "error"
)

// Metrics holds all application metrics
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	Bookings            *prometheus.CounterVec
	DenylistFailures    prometheus.Counter
}

// New creates the metrics on a private registry, so tests and multiple
// servers in one process never collide on registration.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		Bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appointment_bookings_total",
			Help: "Appointment booking attempts by outcome",
		}, []string{"outcome"}),
		DenylistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "token_denylist_failures_total",
			Help: "Denylist lookups that failed open",
		}),
	}

	reg.MustRegister(m.HTTPRequests, m.HTTPRequestDuration, m.Bookings, m.DenylistFailures)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveBooking counts one booking attempt. Safe on a nil receiver.
func (m *Metrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(outcome).Inc()
}

// ObserveDenylistFailure counts a denylist lookup that failed open. Safe on a
// nil receiver.
func (m *Metrics) ObserveDenylistFailure() {
	if m == nil {
		return
	}
	m.DenylistFailures.Inc()
}
