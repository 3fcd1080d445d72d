package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveProxyCall(t *testing.T) {
	m := New()

	m.ObserveProxyCall("screenshot", 0.12, nil)
	m.ObserveProxyCall("screenshot", 0.34, nil)
	m.ObserveProxyCall("launch", 2.1, errors.New("gateway: device offline"))

	if got := testutil.ToFloat64(m.proxyCalls.WithLabelValues("screenshot", "ok")); got != 2 {
		t.Errorf("screenshot ok count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.proxyCalls.WithLabelValues("launch", "error")); got != 1 {
		t.Errorf("launch error count = %v, want 1", got)
	}
}

func TestJobAndRunCounters(t *testing.T) {
	m := New()

	m.JobCompleted("succeeded")
	m.JobCompleted("succeeded")
	m.JobCompleted("timed_out")
	m.RunCompleted("completed")
	m.RunCompleted("failed")

	if got := testutil.ToFloat64(m.jobsTotal.WithLabelValues("succeeded")); got != 2 {
		t.Errorf("succeeded jobs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
}

func TestHandlerServesGauges(t *testing.T) {
	m := New()
	m.RegisterQueueDepth(func() float64 { return 7 })
	m.RegisterDeviceCount(func() float64 { return 3 })
	m.RunCompleted("completed")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	body := string(raw)

	for _, want := range []string{
		"raptorx_inference_queue_depth 7",
		"raptorx_devices_registered 3",
		`raptorx_orchestrator_runs_total{status="completed"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
