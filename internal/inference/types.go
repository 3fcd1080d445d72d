package inference

import (
	"time"

	"github.com/google/uuid"
)

// BBox is an element bounding box in screen pixels.
type BBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Center returns the pixel at the middle of the box. Click actions resolve
// to this point.
func (b BBox) Center() (int, int) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Element is one detected UI element on a screenshot.
type Element struct {
	// Type is the detector's element class: button, icon, text, field, ...
	Type string `json:"type"`

	// Text is the OCR result inside the element's box, if any.
	Text string `json:"text,omitempty"`

	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// DetectConfig is the effective detection configuration sent to a backend.
type DetectConfig struct {
	ConfThreshold    float64 `json:"conf_threshold"    yaml:"conf_threshold"`
	OverlapThreshold float64 `json:"overlap_threshold" yaml:"overlap_threshold"`
	OCREngine        string  `json:"ocr_engine"        yaml:"ocr_engine"`
	OCRConfThreshold float64 `json:"ocr_conf_threshold" yaml:"ocr_conf_threshold"`
	PreScale         bool    `json:"pre_scale"         yaml:"pre_scale"`
	InputSize        int     `json:"input_size"        yaml:"input_size"`
}

// Override is a partial DetectConfig. Nil fields inherit from the layer
// below (server defaults, then workflow defaults, then step override).
type Override struct {
	ConfThreshold    *float64 `json:"conf_threshold,omitempty"    yaml:"conf_threshold,omitempty"`
	OverlapThreshold *float64 `json:"overlap_threshold,omitempty" yaml:"overlap_threshold,omitempty"`
	OCREngine        *string  `json:"ocr_engine,omitempty"        yaml:"ocr_engine,omitempty"`
	OCRConfThreshold *float64 `json:"ocr_conf_threshold,omitempty" yaml:"ocr_conf_threshold,omitempty"`
	PreScale         *bool    `json:"pre_scale,omitempty"         yaml:"pre_scale,omitempty"`
	InputSize        *int     `json:"input_size,omitempty"        yaml:"input_size,omitempty"`
}

// Apply returns a copy of base with the override's non-nil fields replaced.
func (o *Override) Apply(base DetectConfig) DetectConfig {
	if o == nil {
		return base
	}
	if o.ConfThreshold != nil {
		base.ConfThreshold = *o.ConfThreshold
	}
	if o.OverlapThreshold != nil {
		base.OverlapThreshold = *o.OverlapThreshold
	}
	if o.OCREngine != nil {
		base.OCREngine = *o.OCREngine
	}
	if o.OCRConfThreshold != nil {
		base.OCRConfThreshold = *o.OCRConfThreshold
	}
	if o.PreScale != nil {
		base.PreScale = *o.PreScale
	}
	if o.InputSize != nil {
		base.InputSize = *o.InputSize
	}
	return base
}

// Merge layers another override on top of this one. Fields set in next win.
func (o *Override) Merge(next *Override) *Override {
	if o == nil {
		return next
	}
	if next == nil {
		return o
	}
	merged := *o
	if next.ConfThreshold != nil {
		merged.ConfThreshold = next.ConfThreshold
	}
	if next.OverlapThreshold != nil {
		merged.OverlapThreshold = next.OverlapThreshold
	}
	if next.OCREngine != nil {
		merged.OCREngine = next.OCREngine
	}
	if next.OCRConfThreshold != nil {
		merged.OCRConfThreshold = next.OCRConfThreshold
	}
	if next.PreScale != nil {
		merged.PreScale = next.PreScale
	}
	if next.InputSize != nil {
		merged.InputSize = next.InputSize
	}
	return &merged
}

// JobStatus is the lifecycle state of one inference job.
type JobStatus string

// JobStatus constants.
const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobTimedOut  JobStatus = "timed_out"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobTimedOut
}

// Job is one vision-inference request tracked by the queue.
type Job struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`

	// Effective configuration after merging defaults and overrides.
	Config DetectConfig `json:"config"`

	// Backend is the URL of the instance that produced the final outcome.
	Backend  string `json:"backend,omitempty"`
	Attempts int    `json:"attempts"`

	EnqueuedAt   time.Time  `json:"enqueued_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	Elements []Element `json:"elements,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Snapshot returns a copy of the job safe to hand outside the queue.
func (j *Job) Snapshot() Job {
	cpy := *j
	if j.Elements != nil {
		cpy.Elements = make([]Element, len(j.Elements))
		copy(cpy.Elements, j.Elements)
	}
	return cpy
}

// GenerateID creates a new UUID for a job.
func GenerateID() string {
	return uuid.NewString()
}

// BackendStatus is the externally visible health of one backend instance.
type BackendStatus struct {
	URL       string `json:"url"`
	Enabled   bool   `json:"enabled"`
	Healthy   bool   `json:"healthy"`
	Load      int    `json:"load"`
	Assigned  int64  `json:"assigned_total"`
	Failures  int    `json:"consecutive_failures"`
}

// QueueStats is the aggregate queue view exposed at GET /queue/stats.
type QueueStats struct {
	Depth         int     `json:"depth"`
	Total         int64   `json:"total"`
	Succeeded     int64   `json:"succeeded"`
	Failed        int64   `json:"failed"`
	TimedOut      int64   `json:"timed_out"`
	AvgWaitMS     float64 `json:"avg_wait_ms"`
	AvgProcessMS  float64 `json:"avg_process_ms"`
}
