package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.ObserveExtraction("success", 1500*time.Millisecond)
	m.ObserveExtraction("unavailable", time.Second)
	m.ObserveExtraction("success", time.Second)
	m.IncAllocations()
	m.IncTransition("upload", "members")
	m.SetActiveSessions(3)
	m.IncSettlements()

	if got := testutil.ToFloat64(m.extractions.WithLabelValues("success")); got != 2 {
		t.Errorf("successful extractions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.activeSessions); got != 3 {
		t.Errorf("active sessions = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("upload", "members")); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics handler status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "splitit_allocation_runs_total 1") {
		t.Errorf("exposition missing allocation counter:\n%s", rec.Body.String())
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	// Must not panic
	m.ObserveExtraction("success", time.Second)
	m.IncAllocations()
	m.IncTransition("a", "b")
	m.SetActiveSessions(1)
	m.IncSettlements()
}
