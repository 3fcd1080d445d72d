package orchestrator

import "errors"

// Orchestrator errors. Run failures record the matched sentinel as the
// failure reason; callers match with errors.Is.
var (
	// ErrRunNotFound indicates the requested run does not exist.
	ErrRunNotFound = errors.New("orchestrator: run not found")

	// ErrCampaignNotFound indicates the requested campaign does not exist.
	ErrCampaignNotFound = errors.New("orchestrator: campaign not found")

	// ErrRunNotStoppable indicates a stop request for a run that already
	// reached a terminal status.
	ErrRunNotStoppable = errors.New("orchestrator: run already terminal")

	// ErrInvalidRequest indicates a malformed run or campaign request.
	ErrInvalidRequest = errors.New("orchestrator: invalid request")

	// ErrElementNotFound indicates a step's target was not located after
	// the primary detection config and every fallback.
	ErrElementNotFound = errors.New("orchestrator: element not found")

	// ErrVerificationFailed indicates a post-action verify condition was
	// not satisfied within the step timeout.
	ErrVerificationFailed = errors.New("orchestrator: verification failed")

	// ErrUnsupportedDisplayMode indicates the workflow requires a display
	// mode the device does not support.
	ErrUnsupportedDisplayMode = errors.New("orchestrator: unsupported display mode")

	// ErrNoCredentialAvailable indicates the credential pool is exhausted.
	ErrNoCredentialAvailable = errors.New("orchestrator: no credential available")

	// ErrSideloadFailed indicates a sideload script failed. Fatal to the
	// run only when the sideload is marked critical.
	ErrSideloadFailed = errors.New("orchestrator: sideload failed")

	// ErrStopped indicates the run observed its cancellation flag.
	ErrStopped = errors.New("orchestrator: run stopped")
)
