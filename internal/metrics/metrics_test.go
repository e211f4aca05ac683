package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New(WithRegistry(prometheus.NewRegistry()), WithNamespace("test"))

	m.Received("NetVarUpdate")
	m.Received("NetVarUpdate")
	m.Sent("SceneChange")
	m.Dropped(ReasonFilter)
	m.SetPeers(3)
	m.SetObjects(12)
	m.SetBuffered(2)
	m.ObserveTick(2 * time.Millisecond)

	if got := testutil.ToFloat64(m.received.WithLabelValues("NetVarUpdate")); got != 2 {
		t.Fatalf("received = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.sent.WithLabelValues("SceneChange")); got != 1 {
		t.Fatalf("sent = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.dropped.WithLabelValues(ReasonFilter)); got != 1 {
		t.Fatalf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.peers); got != 3 {
		t.Fatalf("peers = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.objects); got != 12 {
		t.Fatalf("objects = %v, want 12", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Received("x")
	m.Sent("x")
	m.Dropped(ReasonDecode)
	m.SetPeers(1)
	m.SetObjects(1)
	m.SetBuffered(1)
	m.ObserveTick(time.Second)
}
