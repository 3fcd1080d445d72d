package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of an automation run.
type RunStatus string

// RunStatus values.
const (
	RunQueued             RunStatus = "queued"
	RunRunning            RunStatus = "running"
	RunCompleted          RunStatus = "completed"
	RunFailed             RunStatus = "failed"
	RunStopped            RunStatus = "stopped"
	RunPartiallyCompleted RunStatus = "partially_completed"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunStopped, RunPartiallyCompleted:
		return true
	}
	return false
}

// Run is one execution of a workflow against one device.
type Run struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	WorkflowName string    `json:"workflow_name"`
	Iterations   int       `json:"iterations"`
	Status       RunStatus `json:"status"`

	// Iteration and StepIndex are the execution cursor, advanced only by
	// the run's own worker.
	Iteration int `json:"iteration"`
	StepIndex int `json:"step_index"`

	FailureReason string `json:"failure_reason,omitempty"`
	FailureStep   int    `json:"failure_step,omitempty"`

	// CredentialKey names the pool pair held for the run's lifetime.
	CredentialKey string `json:"credential_key,omitempty"`

	// CampaignID groups runs submitted as one batch.
	CampaignID string `json:"campaign_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the run.
func (r *Run) Clone() *Run {
	cpy := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		cpy.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cpy.CompletedAt = &t
	}
	return &cpy
}

// LogEntry is one line of a run's execution log. Detection attempts record
// which fallback configuration, if any, located the element.
type LogEntry struct {
	ID        int64          `json:"id"`
	RunID     string         `json:"run_id"`
	At        time.Time      `json:"at"`
	Level     string         `json:"level"`
	Iteration int            `json:"iteration"`
	StepIndex int            `json:"step_index"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// CampaignStatus is the aggregate state of a batch of runs.
type CampaignStatus string

// CampaignStatus values.
const (
	CampaignQueued             CampaignStatus = "queued"
	CampaignRunning            CampaignStatus = "running"
	CampaignCompleted          CampaignStatus = "completed"
	CampaignFailed             CampaignStatus = "failed"
	CampaignStopped            CampaignStatus = "stopped"
	CampaignPartiallyCompleted CampaignStatus = "partially_completed"
)

// Campaign groups runs over devices and workflows for unified progress
// tracking and shared cancellation.
type Campaign struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Status      CampaignStatus `json:"status"`
	RunIDs      []string       `json:"run_ids"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Event is a run lifecycle transition broadcast to subscribers.
type Event struct {
	RunID      string    `json:"run_id"`
	DeviceID   string    `json:"device_id"`
	CampaignID string    `json:"campaign_id,omitempty"`
	Status     RunStatus `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// EventFunc receives run lifecycle events. Callbacks must not block; they
// are invoked inline from run workers.
type EventFunc func(Event)

// GenerateID creates a new UUID for a run or campaign.
func GenerateID() string {
	return uuid.NewString()
}
