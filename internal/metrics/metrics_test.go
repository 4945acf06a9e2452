package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("Failed to read metrics: %v", err)
	}
	return string(body)
}

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "user.ini", 200, "", 0, 10*time.Millisecond)
	m.ObserveRequest("GET", "user.ini", 200, "", time.Second, time.Second)
	m.ObserveRequest("POST", "", 500, "call", 0, time.Millisecond)

	out := scrape(t, m)
	for _, want := range []string{
		`servicesim_requests_total{call="user.ini",method="GET",status="200"} 2`,
		`servicesim_requests_total{call="",method="POST",status="500"} 1`,
		`servicesim_no_match_total{kind="call"} 1`,
		`servicesim_simulated_timeouts_total{call="user.ini"} 1`,
		`servicesim_request_duration_seconds_count{call="user.ini",method="GET"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected metrics to contain %q", want)
		}
	}
}

func TestObserveReload(t *testing.T) {
	m := New()
	m.ObserveReload(nil, 3)
	m.ObserveReload(errors.New("boom"), 0)

	out := scrape(t, m)
	for _, want := range []string{
		`servicesim_reloads_total{result="ok"} 1`,
		`servicesim_reloads_total{result="error"} 1`,
		`servicesim_loaded_calls 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected metrics to contain %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "x", 200, "", 0, 0)
	m.ObserveReload(nil, 1)
}

func TestSeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveReload(nil, 1)
	if strings.Contains(scrape(t, b), `servicesim_reloads_total{result="ok"}`) {
		t.Error("Expected registries to be independent")
	}
}
