package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCall(t *testing.T) {
	m := New(nil)
	m.ObserveCall("Invoke", 0.01, nil)
	m.ObserveCall("Invoke", 0.02, errors.New("boom"))
	m.ObserveCall("Query", 0.03, nil)

	if got := testutil.ToFloat64(m.calls.WithLabelValues("Invoke", "ok")); got != 1 {
		t.Errorf("metrics:metrics_test - Invoke ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.calls.WithLabelValues("Invoke", "error")); got != 1 {
		t.Errorf("metrics:metrics_test - Invoke error = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.callDuration); got != 2 {
		t.Errorf("metrics:metrics_test - duration series = %d, want 2", got)
	}
}

func TestObserveOutcomeAndDispatch(t *testing.T) {
	m := New(nil)
	m.ObserveOutcome("invoke", "success")
	m.ObserveOutcome("invoke", "success")
	m.ObserveDispatch("http", true)
	m.ObserveDispatch("comms", false)

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("invoke", "success")); got != 2 {
		t.Errorf("metrics:metrics_test - invoke success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.dispatches.WithLabelValues("comms", "false")); got != 1 {
		t.Errorf("metrics:metrics_test - comms unmatched = %v, want 1", got)
	}
}

func TestPendingGauge(t *testing.T) {
	n := 3
	m := New(func() int { return n })
	if got := testutil.ToFloat64(m.pending); got != 3 {
		t.Errorf("metrics:metrics_test - pending = %v, want 3", got)
	}
	n = 0
	if got := testutil.ToFloat64(m.pending); got != 0 {
		t.Errorf("metrics:metrics_test - pending = %v, want 0", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCall("Invoke", 1, nil)
	m.ObserveOutcome("invoke", "success")
	m.ObserveDispatch("http", true)
}

func TestHandler(t *testing.T) {
	m := New(func() int { return 1 })
	m.ObserveCall("Subscribe", 0.1, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics:metrics_test - status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"scip_client_rpc_calls_total", "scip_client_pending_correlations 1"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics:metrics_test - exposition missing %q", want)
		}
	}
}
