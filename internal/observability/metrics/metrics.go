package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking lifecycle.
type BookingMetrics struct {
	createdTotal     *prometheus.CounterVec
	capacityRejected prometheus.Counter
	verifiedTotal    *prometheus.CounterVec
	cancelledTotal   prometheus.Counter
	requestLatency   *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		createdTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careslot",
			Subsystem: "bookings",
			Name:      "created_total",
			Help:      "Total bookings created",
		}, []string{"flow"}),
		capacityRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "careslot",
			Subsystem: "bookings",
			Name:      "capacity_rejected_total",
			Help:      "Booking attempts rejected because the time window was full",
		}),
		verifiedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careslot",
			Subsystem: "bookings",
			Name:      "verification_total",
			Help:      "OTP verification outcomes",
		}, []string{"outcome"}),
		cancelledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "careslot",
			Subsystem: "bookings",
			Name:      "cancelled_total",
			Help:      "Bookings cancelled by clinic operators",
		}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "careslot",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP request handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.createdTotal, m.capacityRejected, m.verifiedTotal, m.cancelledTotal, m.requestLatency)
	return m
}

func (m *BookingMetrics) ObserveCreated(flow string) {
	if m == nil {
		return
	}
	m.createdTotal.WithLabelValues(flow).Inc()
}

func (m *BookingMetrics) ObserveCapacityRejected() {
	if m == nil {
		return
	}
	m.capacityRejected.Inc()
}

func (m *BookingMetrics) ObserveVerification(outcome string) {
	if m == nil {
		return
	}
	m.verifiedTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveCancelled() {
	if m == nil {
		return
	}
	m.cancelledTotal.Inc()
}

func (m *BookingMetrics) ObserveRequestLatency(method, route string, seconds float64) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(method, route).Observe(seconds)
}
