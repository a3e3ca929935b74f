package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewBookingMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveCreated("public")
	m.ObserveCapacityRejected()
	m.ObserveVerification("success")
	m.ObserveCancelled()
	m.ObserveRequestLatency("POST", "/api/public/bookings", 0.05)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) < 5 {
		t.Fatalf("expected at least 5 metric families, got %d", len(families))
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *BookingMetrics
	// Handlers may run before metrics are wired; nil must not panic.
	m.ObserveCreated("public")
	m.ObserveCapacityRejected()
	m.ObserveVerification("expired")
	m.ObserveCancelled()
	m.ObserveRequestLatency("GET", "/health", 0.01)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewBookingMetrics(reg)

	defer func() {
		if recover() == nil {
			t.Fatal("expected MustRegister to panic on duplicate registration")
		}
	}()
	NewBookingMetrics(reg)
}
