package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ShreyX24/Raptor-X-sub001/internal/device"
)

// maxScreenshotSize caps screenshot downloads; a 4K PNG is well under this.
const maxScreenshotSize = 32 << 20

// DeviceResolver is the narrow slice of the registry the gateway needs.
type DeviceResolver interface {
	Get(ctx context.Context, id string) (*device.Device, error)
}

// Logger defines the logging interface used by the Gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics receives one observation per forwarded call.
type Metrics interface {
	ObserveProxyCall(op string, seconds float64, err error)
}

type noopMetrics struct{}

func (noopMetrics) ObserveProxyCall(string, float64, error) {}

// Config holds the gateway timeout classes.
type Config struct {
	// ShortTimeout bounds screenshot, input and process-check calls.
	ShortTimeout time.Duration

	// LongTimeout bounds launch and display-mode calls.
	LongTimeout time.Duration
}

// Gateway forwards device-bound calls to SUT agents.
//
// All methods are safe for concurrent use.
type Gateway struct {
	resolver DeviceResolver
	short    *http.Client
	long     *http.Client
	logger   Logger
	metrics  Metrics
}

// New creates a gateway backed by the given device resolver.
func New(resolver DeviceResolver, cfg Config) *Gateway {
	return &Gateway{
		resolver: resolver,
		short:    &http.Client{Timeout: cfg.ShortTimeout},
		long:     &http.Client{Timeout: cfg.LongTimeout},
		logger:   noopLogger{},
		metrics:  noopMetrics{},
	}
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	g.logger = logger
}

// SetMetrics sets the metrics sink for the gateway.
func (g *Gateway) SetMetrics(m Metrics) {
	g.metrics = m
}

// Screenshot captures the device's current screen as PNG bytes.
func (g *Gateway) Screenshot(ctx context.Context, id string) ([]byte, error) {
	d, err := g.resolve(ctx, id, device.CapScreenshot)
	if err != nil {
		return nil, err
	}

	var image []byte
	err = g.observe("screenshot", func() error {
		var callErr error
		image, callErr = g.getRaw(ctx, g.short, agentURL(d, "/v1/screenshot"))
		return callErr
	})
	return image, err
}

// SendInput executes one synthetic input action on the device.
func (g *Gateway) SendInput(ctx context.Context, id string, action InputAction) error {
	d, err := g.resolve(ctx, id, device.CapInput)
	if err != nil {
		return err
	}

	return g.observe("send_input", func() error {
		return g.postJSON(ctx, g.short, agentURL(d, "/v1/input"), action, nil)
	})
}

// Launch starts the target application on the device. Launch is slow on
// game titles, so it uses the long timeout class.
func (g *Gateway) Launch(ctx context.Context, id string, req LaunchRequest) error {
	d, err := g.resolve(ctx, id, device.CapLaunch)
	if err != nil {
		return err
	}

	return g.observe("launch", func() error {
		return g.postJSON(ctx, g.long, agentURL(d, "/v1/launch"), req, nil)
	})
}

// CheckProcess reports whether the named process is running on the device.
func (g *Gateway) CheckProcess(ctx context.Context, id, name string) (*ProcessStatus, error) {
	d, err := g.resolve(ctx, id, device.CapProcess)
	if err != nil {
		return nil, err
	}

	var status ProcessStatus
	err = g.observe("check_process", func() error {
		return g.postJSON(ctx, g.short, agentURL(d, "/v1/process/check"),
			map[string]string{"name": name}, &status)
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// KillProcess terminates the named process on the device.
func (g *Gateway) KillProcess(ctx context.Context, id, name string) error {
	d, err := g.resolve(ctx, id, device.CapProcess)
	if err != nil {
		return err
	}

	return g.observe("kill_process", func() error {
		return g.postJSON(ctx, g.short, agentURL(d, "/v1/process/kill"),
			map[string]string{"name": name}, nil)
	})
}

// DisplayModes returns the device's current and supported display modes.
func (g *Gateway) DisplayModes(ctx context.Context, id string) (*DisplayState, error) {
	d, err := g.resolve(ctx, id, device.CapDisplay)
	if err != nil {
		return nil, err
	}

	var state DisplayState
	err = g.observe("display_modes", func() error {
		body, callErr := g.getRaw(ctx, g.short, agentURL(d, "/v1/display/modes"))
		if callErr != nil {
			return callErr
		}
		if unmarshalErr := json.Unmarshal(body, &state); unmarshalErr != nil {
			return fmt.Errorf("decoding display state: %w", unmarshalErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// SetDisplayMode switches the device to the given display mode. Mode
// switches can take several seconds, so this uses the long timeout class.
func (g *Gateway) SetDisplayMode(ctx context.Context, id string, mode DisplayMode) error {
	d, err := g.resolve(ctx, id, device.CapDisplay)
	if err != nil {
		return err
	}

	return g.observe("set_display_mode", func() error {
		return g.postJSON(ctx, g.long, agentURL(d, "/v1/display/mode"), mode, nil)
	})
}

// resolve looks up the device and applies the fail-fast policy: unknown or
// offline devices never cause a network call. Stale devices are still tried;
// the agent may simply be between heartbeats.
func (g *Gateway) resolve(ctx context.Context, id string, cap device.Capability) (*device.Device, error) {
	d, err := g.resolver.Get(ctx, id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
		}
		return nil, fmt.Errorf("resolving device %s: %w", id, err)
	}

	if d.Status == device.StatusOffline {
		return nil, fmt.Errorf("%w: %s", ErrDeviceOffline, id)
	}

	if len(d.Capabilities) > 0 && !d.HasCapability(cap) {
		return nil, fmt.Errorf("%w: %s needs %q", ErrCapabilityMissing, id, cap)
	}

	return d, nil
}

// observe wraps a forwarded call with latency/error metrics.
func (g *Gateway) observe(op string, call func() error) error {
	start := time.Now()
	err := call()
	g.metrics.ObserveProxyCall(op, time.Since(start).Seconds(), err)
	if err != nil {
		g.logger.Warn("proxy call failed", "op", op, "error", err)
	}
	return err
}

// agentURL builds the agent endpoint URL for a device.
func agentURL(d *device.Device, path string) string {
	return fmt.Sprintf("http://%s:%d%s", d.Host, d.Port, path)
}

// getRaw performs a GET and returns the raw response body.
func (g *Gateway) getRaw(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, translateTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, remoteErrorFromBody(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScreenshotSize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}

// postJSON performs a POST with a JSON body, optionally decoding a JSON reply.
func (g *Gateway) postJSON(ctx context.Context, client *http.Client, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return translateTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remoteErrorFromBody(resp)
	}

	if out != nil {
		if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
			return fmt.Errorf("decoding response: %w", decodeErr)
		}
	}
	return nil
}

// translateTransportError maps raw net/http failures onto the gateway's
// closed error taxonomy.
func translateTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	// http.Client wraps its own timeout in a *url.Error with Timeout()=true.
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// remoteErrorFromBody parses the agent's JSON error body. Agents reply
// {"code": "...", "message": "..."} on failure; anything else becomes a
// generic remote error carrying the HTTP status.
func remoteErrorFromBody(resp *http.Response) error {
	var remote RemoteError
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck // best-effort diagnostics
	if err := json.Unmarshal(body, &remote); err != nil || remote.Code == "" {
		remote = RemoteError{
			Code:    fmt.Sprintf("http_%d", resp.StatusCode),
			Message: string(body),
		}
	}
	return &remote
}
