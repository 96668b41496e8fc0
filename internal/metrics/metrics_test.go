package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	// None of these may panic.
	m.SetConnected(true)
	m.ReconnectAttempt()
	m.TransportError()
	m.SetQueueDepths(1, 2)
	m.MessageSent()
	m.MessageQueued("disconnected")
	m.MessageReceived()
	m.MessageDrained()
	m.HookDispatched("chat")
	m.ArchiveWritten(3)
	m.ArchiveFailed()

	if m.Registry() != nil {
		t.Error("Registry() on nil Metrics should be nil")
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.SetConnected(true)
	m.MessageSent()
	m.MessageSent()
	m.MessageQueued("disconnected")
	m.SetQueueDepths(4, 7)

	if got := testutil.ToFloat64(m.connected); got != 1 {
		t.Errorf("connected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.messagesSent); got != 2 {
		t.Errorf("messagesSent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.messagesQueued.WithLabelValues("disconnected")); got != 1 {
		t.Errorf("messagesQueued{disconnected} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.pendingDepth); got != 4 {
		t.Errorf("pendingDepth = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.incomingDepth); got != 7 {
		t.Errorf("incomingDepth = %v, want 7", got)
	}

	m.SetConnected(false)
	if got := testutil.ToFloat64(m.connected); got != 0 {
		t.Errorf("connected = %v, want 0 after disconnect", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.MessageReceived()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "umsg_messages_received_total 1") {
		t.Errorf("exposition missing received counter:\n%s", rec.Body.String())
	}
}
