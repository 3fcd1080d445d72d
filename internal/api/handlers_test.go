package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ShreyX24/Raptor-X-sub001/internal/device"
	"github.com/ShreyX24/Raptor-X-sub001/internal/gateway"
	"github.com/ShreyX24/Raptor-X-sub001/internal/inference"
	"github.com/ShreyX24/Raptor-X-sub001/internal/orchestrator"
)

// jsonBody wraps a JSON string for request construction.
func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

// registerTestDevice registers a device directly through the registry and
// returns it.
func registerTestDevice(t *testing.T, registry *device.Registry, name string) *device.Device {
	t.Helper()

	d, err := registry.RegisterOrHeartbeat(context.Background(), device.Info{
		Name:         name,
		Host:         "10.0.0.5",
		Port:         8189,
		Capabilities: []device.Capability{device.CapScreenshot, device.CapInput, device.CapLaunch},
	})
	if err != nil {
		t.Fatalf("RegisterOrHeartbeat: %v", err)
	}
	return d
}

// ─── Device Registration Tests ─────────────────────────────────────

func TestRegisterDevice(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"name": "bench-01", "host": "10.0.0.5", "port": 8189, "capabilities": ["screenshot", "input"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/register", jsonBody(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Agent-Key", "test-agent-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp registerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Device == nil || resp.Device.ID == "" {
		t.Fatal("expected device with generated ID")
	}
	if resp.Device.Status != device.StatusOnline {
		t.Errorf("status = %q, want online", resp.Device.Status)
	}
	if resp.HeartbeatInterval != 10 {
		t.Errorf("heartbeat_interval = %d, want 10", resp.HeartbeatInterval)
	}
}

func TestRegisterDevice_WrongAgentKey(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"name": "bench-01", "host": "10.0.0.5", "port": 8189}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/register", jsonBody(body))
	req.Header.Set("X-Agent-Key", "wrong-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRegisterDevice_MissingAgentKey(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"name": "bench-01", "host": "10.0.0.5", "port": 8189}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/register", jsonBody(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRegisterDevice_InvalidInfo(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	// Missing host and port
	body := `{"name": "bench-01"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/register", jsonBody(body))
	req.Header.Set("X-Agent-Key", "test-agent-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestRegisterDevice_PairedHeartbeatHint(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	d := registerTestDevice(t, deps.registry, "bench-paired")
	if err := deps.registry.SetPaired(context.Background(), d.ID, true); err != nil {
		t.Fatalf("SetPaired: %v", err)
	}

	// Heartbeat with the persisted ID; paired devices get the shorter hint
	body := fmt.Sprintf(`{"id": %q, "name": "bench-paired", "host": "10.0.0.5", "port": 8189}`, d.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/register", jsonBody(body))
	req.Header.Set("X-Agent-Key", "test-agent-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp registerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.HeartbeatInterval != 3 {
		t.Errorf("heartbeat_interval = %d, want 3", resp.HeartbeatInterval)
	}
}

// ─── Device Listing Tests ──────────────────────────────────────────

func TestListDevices(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	registerTestDevice(t, deps.registry, "bench-01")
	registerTestDevice(t, deps.registry, "bench-02")

	req := authedRequest(t, http.MethodGet, "/api/v1/devices", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 2 {
		t.Errorf("count = %v, want 2", resp["count"])
	}
}

func TestListDevices_FilterByStatus(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	d := registerTestDevice(t, deps.registry, "bench-01")
	registerTestDevice(t, deps.registry, "bench-02")
	if err := deps.registry.MarkOffline(context.Background(), d.ID); err != nil {
		t.Fatalf("MarkOffline: %v", err)
	}

	req := authedRequest(t, http.MethodGet, "/api/v1/devices?status=offline", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 1 {
		t.Errorf("offline count = %v, want 1", resp["count"])
	}
}

func TestListDevices_FilterByPaired(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	d := registerTestDevice(t, deps.registry, "bench-01")
	registerTestDevice(t, deps.registry, "bench-02")
	if err := deps.registry.SetPaired(context.Background(), d.ID, true); err != nil {
		t.Fatalf("SetPaired: %v", err)
	}

	req := authedRequest(t, http.MethodGet, "/api/v1/devices?paired=true", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 1 {
		t.Errorf("paired count = %v, want 1", resp["count"])
	}
}

func TestGetDevice(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	d := registerTestDevice(t, deps.registry, "bench-01")

	req := authedRequest(t, http.MethodGet, "/api/v1/devices/"+d.ID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var got device.Device
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Name != "bench-01" {
		t.Errorf("name = %q, want bench-01", got.Name)
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := authedRequest(t, http.MethodGet, "/api/v1/devices/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestPairUnpairDevice(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	d := registerTestDevice(t, deps.registry, "bench-01")

	req := authedRequest(t, http.MethodPost, "/api/v1/devices/"+d.ID+"/pair", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pair status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var paired device.Device
	if err := json.Unmarshal(w.Body.Bytes(), &paired); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !paired.Paired {
		t.Error("expected device to be paired")
	}

	req = authedRequest(t, http.MethodPost, "/api/v1/devices/"+d.ID+"/unpair", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var unpaired device.Device
	if err := json.Unmarshal(w.Body.Bytes(), &unpaired); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if unpaired.Paired {
		t.Error("expected device to be unpaired")
	}
}

// ─── Proxy Error Mapping Tests ─────────────────────────────────────

func TestProxy_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unknown device", gateway.ErrDeviceNotFound, http.StatusNotFound},
		{"offline device", gateway.ErrDeviceOffline, http.StatusServiceUnavailable},
		{"call timeout", gateway.ErrTimeout, http.StatusGatewayTimeout},
		{"unreachable agent", gateway.ErrUnreachable, http.StatusBadGateway},
		{"remote failure", &gateway.RemoteError{Code: "screenshot_failed", Message: "no display"}, http.StatusBadGateway},
		{"missing capability", gateway.ErrCapabilityMissing, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, deps := testServer(t)
			router := srv.buildRouter()
			deps.gateway.err = tt.err

			req := authedRequest(t, http.MethodGet, "/api/v1/devices/dev-1/screenshot", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestScreenshot(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.gateway.screenshot = []byte("png-bytes")

	req := authedRequest(t, http.MethodGet, "/api/v1/devices/dev-1/screenshot", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if w.Body.String() != "png-bytes" {
		t.Errorf("body = %q, want raw image bytes", w.Body.String())
	}
}

func TestSendAction(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	body := `{"type": "click", "x": 640, "y": 360}`
	req := authedRequest(t, http.MethodPost, "/api/v1/devices/dev-1/action", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if deps.gateway.lastAction.Type != "click" || deps.gateway.lastAction.X != 640 {
		t.Errorf("forwarded action = %+v, want click at 640,360", deps.gateway.lastAction)
	}
}

func TestLaunch(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	body := `{"path": "C:\\Games\\game.exe", "args": ["-benchmark"]}`
	req := authedRequest(t, http.MethodPost, "/api/v1/devices/dev-1/launch", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if deps.gateway.lastLaunch.Path == "" {
		t.Error("expected launch request to be forwarded")
	}
}

func TestCheckProcess(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.gateway.processStatus = &gateway.ProcessStatus{Name: "game.exe", Running: true, PID: 4242}

	body := `{"name": "game.exe"}`
	req := authedRequest(t, http.MethodPost, "/api/v1/devices/dev-1/check-process", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var status gateway.ProcessStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !status.Running || status.PID != 4242 {
		t.Errorf("status = %+v, want running with pid 4242", status)
	}
}

func TestCheckProcess_MissingName(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{}`
	req := authedRequest(t, http.MethodPost, "/api/v1/devices/dev-1/check-process", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDisplayModes(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.gateway.displayState = &gateway.DisplayState{
		Current:   gateway.DisplayMode{Width: 2560, Height: 1440, RefreshHz: 165},
		Supported: []gateway.DisplayMode{{Width: 1920, Height: 1080, RefreshHz: 60}},
	}

	req := authedRequest(t, http.MethodGet, "/api/v1/devices/dev-1/display/modes", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var state gateway.DisplayState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if state.Current.Width != 2560 {
		t.Errorf("current width = %d, want 2560", state.Current.Width)
	}
}

func TestSetDisplayMode(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	body := `{"width": 1920, "height": 1080, "refresh_hz": 60}`
	req := authedRequest(t, http.MethodPost, "/api/v1/devices/dev-1/display/mode", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if deps.gateway.lastMode.Width != 1920 {
		t.Errorf("forwarded mode = %+v, want 1920x1080@60", deps.gateway.lastMode)
	}
}

// ─── Inference Job Tests ───────────────────────────────────────────

func TestSubmitJob_Async(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.queue.submitID = "job-1"

	image := base64.StdEncoding.EncodeToString([]byte("fake-png"))
	body := fmt.Sprintf(`{"image": %q}`, image)
	req := authedRequest(t, http.MethodPost, "/api/v1/jobs", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["job_id"] != "job-1" {
		t.Errorf("job_id = %q, want job-1", resp["job_id"])
	}
	if resp["status"] != "queued" {
		t.Errorf("status = %q, want queued", resp["status"])
	}
	if string(deps.queue.lastImage) != "fake-png" {
		t.Error("expected decoded image bytes to reach the queue")
	}
	if deps.queue.awaited {
		t.Error("async submission must not block on Await")
	}
}

func TestSubmitJob_Wait(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.queue.submitID = "job-1"
	deps.queue.job = inference.Job{
		ID:     "job-1",
		Status: inference.JobSucceeded,
		Elements: []inference.Element{
			{Type: "button", Text: "PLAY", Confidence: 0.93},
		},
	}

	image := base64.StdEncoding.EncodeToString([]byte("fake-png"))
	body := fmt.Sprintf(`{"image": %q, "wait": true}`, image)
	req := authedRequest(t, http.MethodPost, "/api/v1/jobs", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var job inference.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if job.Status != inference.JobSucceeded {
		t.Errorf("status = %q, want succeeded", job.Status)
	}
	if len(job.Elements) != 1 || job.Elements[0].Text != "PLAY" {
		t.Errorf("elements = %+v, want PLAY button", job.Elements)
	}
	if !deps.queue.awaited {
		t.Error("wait=true must block on Await")
	}
}

func TestSubmitJob_QueueFull(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.queue.submitErr = inference.ErrQueueFull

	image := base64.StdEncoding.EncodeToString([]byte("fake-png"))
	body := fmt.Sprintf(`{"image": %q}`, image)
	req := authedRequest(t, http.MethodPost, "/api/v1/jobs", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

func TestSubmitJob_Timeout(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.queue.submitID = "job-1"
	deps.queue.awaitErr = inference.ErrJobTimeout

	image := base64.StdEncoding.EncodeToString([]byte("fake-png"))
	body := fmt.Sprintf(`{"image": %q, "wait": true}`, image)
	req := authedRequest(t, http.MethodPost, "/api/v1/jobs", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want %d", w.Code, http.StatusGatewayTimeout)
	}
}

func TestSubmitJob_MissingImage(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"wait": true}`
	req := authedRequest(t, http.MethodPost, "/api/v1/jobs", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSubmitJob_BadBase64(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"image": "not valid base64!!!"}`
	req := authedRequest(t, http.MethodPost, "/api/v1/jobs", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGetJob(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.queue.job = inference.Job{ID: "job-1", Status: inference.JobRunning, Attempts: 1}

	req := authedRequest(t, http.MethodGet, "/api/v1/jobs/job-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var job inference.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if job.Status != inference.JobRunning {
		t.Errorf("status = %q, want running", job.Status)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.queue.getErr = inference.ErrJobNotFound

	req := authedRequest(t, http.MethodGet, "/api/v1/jobs/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestQueueStats(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.queue.stats = inference.QueueStats{Depth: 3, Total: 42, Succeeded: 39}

	req := authedRequest(t, http.MethodGet, "/api/v1/queue/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var stats inference.QueueStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Depth != 3 || stats.Total != 42 {
		t.Errorf("stats = %+v, want depth 3 total 42", stats)
	}
}

func TestQueueHealth(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.queue.health = []inference.BackendStatus{
		{URL: "http://10.0.0.9:8501", Enabled: true, Healthy: true, Load: 1},
		{URL: "http://10.0.0.9:8502", Enabled: true, Healthy: false},
	}

	req := authedRequest(t, http.MethodGet, "/api/v1/queue/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Backends []inference.BackendStatus `json:"backends"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Backends) != 2 {
		t.Errorf("backends = %d, want 2", len(resp.Backends))
	}
}

// ─── Run Tests ─────────────────────────────────────────────────────

func TestSubmitRun(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.scheduler.run = &orchestrator.Run{
		ID:           "run-1",
		DeviceID:     "dev-1",
		WorkflowName: "benchmark_loop",
		Iterations:   3,
		Status:       orchestrator.RunQueued,
		CreatedAt:    time.Now(),
	}

	body := `{"device": "dev-1", "workflow": "benchmark_loop", "iterations": 3}`
	req := authedRequest(t, http.MethodPost, "/api/v1/runs", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var run orchestrator.Run
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if run.ID != "run-1" || run.Status != orchestrator.RunQueued {
		t.Errorf("run = %+v, want queued run-1", run)
	}
}

func TestSubmitRun_Invalid(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.scheduler.submitErr = orchestrator.ErrInvalidRequest

	body := `{"device": "", "workflow": ""}`
	req := authedRequest(t, http.MethodPost, "/api/v1/runs", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSubmitRun_DeviceNotFound(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.scheduler.submitErr = device.ErrNotFound

	body := `{"device": "ghost", "workflow": "benchmark_loop"}`
	req := authedRequest(t, http.MethodPost, "/api/v1/runs", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// Pairing is operator bookkeeping, not a run gate: submission must accept a
// registered device whose paired flag was never set.
func TestSubmitRun_UnpairedDeviceAccepted(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	d := registerTestDevice(t, deps.registry, "bench-01")
	deps.scheduler.run = &orchestrator.Run{
		ID:           "run-1",
		DeviceID:     d.ID,
		WorkflowName: "benchmark_loop",
		Status:       orchestrator.RunQueued,
	}

	body := `{"device": "` + d.ID + `", "workflow": "benchmark_loop"}`
	req := authedRequest(t, http.MethodPost, "/api/v1/runs", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}
}

func TestListRuns(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.scheduler.runs = []orchestrator.Run{
		{ID: "run-2", Status: orchestrator.RunRunning},
		{ID: "run-1", Status: orchestrator.RunCompleted},
	}

	req := authedRequest(t, http.MethodGet, "/api/v1/runs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 2 {
		t.Errorf("count = %v, want 2", resp["count"])
	}
}

func TestGetRun_NotFound(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.scheduler.getRunErr = orchestrator.ErrRunNotFound

	req := authedRequest(t, http.MethodGet, "/api/v1/runs/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestStopRun(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	// Empty body is fine
	req := authedRequest(t, http.MethodPost, "/api/v1/runs/run-1/stop", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if deps.scheduler.lastStopID != "run-1" {
		t.Errorf("stopped run = %q, want run-1", deps.scheduler.lastStopID)
	}
	if deps.scheduler.lastKillFlag {
		t.Error("kill_process must default to false")
	}
}

func TestStopRun_KillProcess(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	body := `{"kill_process": true}`
	req := authedRequest(t, http.MethodPost, "/api/v1/runs/run-1/stop", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if !deps.scheduler.lastKillFlag {
		t.Error("expected kill_process flag to be forwarded")
	}
}

func TestStopRun_AlreadyTerminal(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.scheduler.stopErr = orchestrator.ErrRunNotStoppable

	req := authedRequest(t, http.MethodPost, "/api/v1/runs/run-1/stop", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestRunLogs(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.scheduler.logs = []orchestrator.LogEntry{
		{RunID: "run-1", Level: "info", Message: "step 0: launch"},
		{RunID: "run-1", Level: "info", Message: "step 1: detection attempt 1 hit"},
	}

	req := authedRequest(t, http.MethodGet, "/api/v1/runs/run-1/logs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 2 {
		t.Errorf("count = %v, want 2", resp["count"])
	}
}

// ─── Campaign Tests ────────────────────────────────────────────────

func TestSubmitCampaign(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.scheduler.campaign = &orchestrator.Campaign{
		ID:     "camp-1",
		Name:   "nightly",
		Status: orchestrator.CampaignQueued,
		RunIDs: []string{"run-1", "run-2", "run-3", "run-4"},
	}

	body := `{"name": "nightly", "devices": ["dev-1", "dev-2"], "workflows": ["wf-a", "wf-b"], "iterations": 1}`
	req := authedRequest(t, http.MethodPost, "/api/v1/campaigns", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var campaign orchestrator.Campaign
	if err := json.Unmarshal(w.Body.Bytes(), &campaign); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(campaign.RunIDs) != 4 {
		t.Errorf("run_ids = %d, want 4 (devices x workflows)", len(campaign.RunIDs))
	}
}

func TestGetCampaign_NotFound(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()
	deps.scheduler.campaignErr = orchestrator.ErrCampaignNotFound

	req := authedRequest(t, http.MethodGet, "/api/v1/campaigns/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestStopCampaign(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	body := `{"kill_process": true}`
	req := authedRequest(t, http.MethodPost, "/api/v1/campaigns/camp-1/stop", &body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if deps.scheduler.lastStopID != "camp-1" || !deps.scheduler.lastKillFlag {
		t.Errorf("stop forwarded as (%q, %v), want (camp-1, true)",
			deps.scheduler.lastStopID, deps.scheduler.lastKillFlag)
	}
}
