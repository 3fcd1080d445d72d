package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteRunDuration records the wall-clock duration of a completed run.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: The SUT that executed the run
//   - workflow: The workflow name (e.g. "cyberpunk-benchmark")
//   - status: Terminal run status (completed, failed, stopped)
//   - seconds: Duration from start to terminal state
func (c *Client) WriteRunDuration(deviceID, workflow, status string, seconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"run_duration",
		map[string]string{
			"device_id": deviceID,
			"workflow":  workflow,
			"status":    status,
		},
		map[string]interface{}{
			"seconds": seconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteInferenceLatency records queue wait and backend processing time
// for one detection job.
//
// Parameters:
//   - backendURL: The backend that served the job (empty if none did)
//   - status: Terminal job status (succeeded, failed, timed_out)
//   - waitMS: Milliseconds from submission to dispatch
//   - processMS: Milliseconds the backend spent on the call
func (c *Client) WriteInferenceLatency(backendURL, status string, waitMS, processMS float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"inference_latency",
		map[string]string{
			"backend": backendURL,
			"status":  status,
		},
		map[string]interface{}{
			"wait_ms":    waitMS,
			"process_ms": processMS,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteProxyLatency records the latency of one proxied SUT call.
//
// Parameters:
//   - op: Gateway operation name (screenshot, input, launch, ...)
//   - outcome: "ok" or "error"
//   - seconds: Call duration
func (c *Client) WriteProxyLatency(op, outcome string, seconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"proxy_latency",
		map[string]string{
			"op":      op,
			"outcome": outcome,
		},
		map[string]interface{}{
			"seconds": seconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
