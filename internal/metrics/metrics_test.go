package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	if m == nil {
		t.Fatal("NewMetricsWithRegistry returned nil")
	}
	if m.PathsActive == nil {
		t.Error("PathsActive metric is nil")
	}
	if m.ClientHandshakeLatency == nil {
		t.Error("ClientHandshakeLatency metric is nil")
	}
}

func TestRecordConnectDisconnect(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordConnect("initiator")
	m.RecordConnect("responder")
	m.RecordConnect("responder")

	if got := testutil.ToFloat64(m.ConnectionsActive.WithLabelValues("responder")); got != 2 {
		t.Errorf("ConnectionsActive[responder] = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ConnectionsTotal.WithLabelValues("initiator")); got != 1 {
		t.Errorf("ConnectionsTotal[initiator] = %v, want 1", got)
	}

	m.RecordDisconnect("responder")
	if got := testutil.ToFloat64(m.ConnectionsActive.WithLabelValues("responder")); got != 1 {
		t.Errorf("ConnectionsActive[responder] after disconnect = %v, want 1", got)
	}
}

func TestRecordHandshake(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordHandshake("initiator", 0.01)
	m.RecordHandshake("initiator", 0.02)

	if got := testutil.ToFloat64(m.ClientHandshakes.WithLabelValues("initiator")); got != 2 {
		t.Errorf("ClientHandshakes[initiator] = %v, want 2", got)
	}

	m.RecordHandshakeError("path_full")
	if got := testutil.ToFloat64(m.ClientHandshakeErrors.WithLabelValues("path_full")); got != 1 {
		t.Errorf("ClientHandshakeErrors[path_full] = %v, want 1", got)
	}
}

func TestRecordRelayedFrame(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordRelayedFrame(100)
	m.RecordRelayedFrame(50)

	if got := testutil.ToFloat64(m.FramesRelayed); got != 2 {
		t.Errorf("FramesRelayed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BytesRelayed); got != 150 {
		t.Errorf("BytesRelayed = %v, want 150", got)
	}
}

func TestRecordSendError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordSendError()
	m.RecordSendError()

	if got := testutil.ToFloat64(m.SendErrors); got != 2 {
		t.Errorf("SendErrors = %v, want 2", got)
	}
}

func TestRecordResponderDrop(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordResponderDrop("dropped_by_initiator")
	m.RecordResponderDrop("path_full")
	m.RecordResponderDrop("dropped_by_initiator")

	if got := testutil.ToFloat64(m.ResponderDrops.WithLabelValues("dropped_by_initiator")); got != 2 {
		t.Errorf("ResponderDrops[dropped_by_initiator] = %v, want 2", got)
	}
}

func TestSetPathsActive(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.SetPathsActive(5)
	if got := testutil.ToFloat64(m.PathsActive); got != 5 {
		t.Errorf("PathsActive = %v, want 5", got)
	}
}

func TestDefault(t *testing.T) {
	m1 := Default()
	m2 := Default()
	if m1 != m2 {
		t.Error("Default() should return the same instance across calls")
	}
}
