package workflow

import "errors"

// Workflow errors. Parse wraps these with field context; callers match with
// errors.Is.
var (
	// ErrNotFound indicates no workflow with the requested name is loaded.
	ErrNotFound = errors.New("workflow: not found")

	// ErrInvalidWorkflow indicates a document-level schema violation.
	ErrInvalidWorkflow = errors.New("workflow: invalid workflow")

	// ErrInvalidStep indicates a step-level schema violation.
	ErrInvalidStep = errors.New("workflow: invalid step")

	// ErrInvalidSelector indicates a malformed element selector.
	ErrInvalidSelector = errors.New("workflow: invalid selector")

	// ErrInvalidAction indicates a malformed or unknown action.
	ErrInvalidAction = errors.New("workflow: invalid action")
)
