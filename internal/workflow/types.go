package workflow

import (
	"strings"
	"time"

	"github.com/ShreyX24/Raptor-X-sub001/internal/gateway"
	"github.com/ShreyX24/Raptor-X-sub001/internal/inference"
)

// SelectorKind restricts which detected element types a selector considers.
type SelectorKind string

// SelectorKind values.
const (
	KindIcon SelectorKind = "icon"
	KindText SelectorKind = "text"
	KindAny  SelectorKind = "any"
)

// MatchStrategy is how selector text is compared against element text.
type MatchStrategy string

// MatchStrategy values.
const (
	MatchExact      MatchStrategy = "exact"
	MatchContains   MatchStrategy = "contains"
	MatchStartsWith MatchStrategy = "starts_with"
	MatchEndsWith   MatchStrategy = "ends_with"
)

// ActionType identifies the variant of an Action.
type ActionType string

// ActionType values.
const (
	ActionClick       ActionType = "click"
	ActionDoubleClick ActionType = "double_click"
	ActionRightClick  ActionType = "right_click"
	ActionMove        ActionType = "move"
	ActionKey         ActionType = "key"
	ActionHotkey      ActionType = "hotkey"
	ActionTypeText    ActionType = "type_text"
	ActionScroll      ActionType = "scroll"
	ActionDrag        ActionType = "drag"
	ActionWait        ActionType = "wait"
)

// elementActions are the action types that resolve against a found element.
var elementActions = map[ActionType]bool{
	ActionClick:       true,
	ActionDoubleClick: true,
	ActionRightClick:  true,
	ActionMove:        true,
	ActionDrag:        true,
}

// NeedsElement reports whether the action type targets a detected element.
func (t ActionType) NeedsElement() bool {
	return elementActions[t]
}

// Selector locates one target element among detection results.
type Selector struct {
	Kind  SelectorKind  `yaml:"kind"`
	Text  string        `yaml:"text"`
	Match MatchStrategy `yaml:"match"`
}

// Matches reports whether the element satisfies the selector. Text
// comparison is case-insensitive; game UIs render the same label in
// different cases across screens.
func (s *Selector) Matches(el inference.Element) bool {
	if s.Kind != KindAny && !strings.EqualFold(string(s.Kind), el.Type) {
		return false
	}
	if s.Text == "" {
		return true
	}

	want := strings.ToLower(strings.TrimSpace(s.Text))
	got := strings.ToLower(strings.TrimSpace(el.Text))

	switch s.Match {
	case MatchContains:
		return strings.Contains(got, want)
	case MatchStartsWith:
		return strings.HasPrefix(got, want)
	case MatchEndsWith:
		return strings.HasSuffix(got, want)
	default:
		return got == want
	}
}

// Point is a screen coordinate used by drag destinations.
type Point struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// Action is a tagged variant: Type selects which parameter fields apply.
type Action struct {
	Type ActionType `yaml:"type"`

	// Click variants and move.
	JitterPX       int `yaml:"jitter_px,omitempty"`
	MoveDurationMS int `yaml:"move_duration_ms,omitempty"`

	// Key / hotkey / type_text.
	Key  string   `yaml:"key,omitempty"`
	Keys []string `yaml:"keys,omitempty"`
	Text string   `yaml:"text,omitempty"`

	// Scroll.
	ScrollDX int `yaml:"scroll_dx,omitempty"`
	ScrollDY int `yaml:"scroll_dy,omitempty"`

	// Drag destination; the found element is the source.
	To *Point `yaml:"to,omitempty"`

	// Wait duration in seconds.
	Seconds float64 `yaml:"seconds,omitempty"`
}

// Verify is a post-action condition: the selector must match against a
// fresh screenshot within the owning step's timeout.
type Verify struct {
	Find Selector            `yaml:"find"`
	OCR  *inference.Override `yaml:"ocr_config,omitempty"`
}

// Sideload runs an external script alongside a step.
type Sideload struct {
	Path              string   `yaml:"path"`
	Args              []string `yaml:"args,omitempty"`
	Timeout           float64  `yaml:"timeout,omitempty"` // seconds
	WaitForCompletion bool     `yaml:"wait_for_completion,omitempty"`
	Persistent        bool     `yaml:"persistent,omitempty"`
	Critical          bool     `yaml:"critical,omitempty"`
}

// TimeoutDuration returns the sideload timeout, or the fallback when unset.
func (s *Sideload) TimeoutDuration(fallback time.Duration) time.Duration {
	if s.Timeout <= 0 {
		return fallback
	}
	return time.Duration(s.Timeout * float64(time.Second))
}

// Step is one entry in a workflow's ordered step list.
type Step struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// Find locates the action's target. Required for element actions.
	Find *Selector `yaml:"find,omitempty"`

	Action Action `yaml:"action"`

	// Timeout bounds detection and verification for this step, in seconds.
	// Zero inherits the workflow default.
	Timeout float64 `yaml:"timeout,omitempty"`

	// ExpectedDelay is the inter-step delay in seconds. Zero inherits the
	// workflow default.
	ExpectedDelay float64 `yaml:"expected_delay,omitempty"`

	// Optional steps log a missing target and continue instead of failing
	// the run.
	Optional bool `yaml:"optional,omitempty"`

	// OCR overrides the workflow's default detection config for this step.
	OCR *inference.Override `yaml:"ocr_config,omitempty"`

	Verify   []Verify  `yaml:"verify_success,omitempty"`
	Sideload *Sideload `yaml:"sideload,omitempty"`
}

// TimeoutDuration returns the step timeout, falling back to the workflow
// default.
func (s *Step) TimeoutDuration(def time.Duration) time.Duration {
	if s.Timeout <= 0 {
		return def
	}
	return time.Duration(s.Timeout * float64(time.Second))
}

// DelayDuration returns the inter-step delay, falling back to the workflow
// default.
func (s *Step) DelayDuration(def time.Duration) time.Duration {
	if s.ExpectedDelay <= 0 {
		return def
	}
	return time.Duration(s.ExpectedDelay * float64(time.Second))
}

// ProcessInfo identifies the application a workflow drives.
type ProcessInfo struct {
	// Name is the process name as reported by the SUT, used for
	// check-process and kill-process calls.
	Name string `yaml:"name"`

	// Exe is the launch path on the SUT.
	Exe string `yaml:"exe"`

	// Args are extra launch arguments.
	Args []string `yaml:"args,omitempty"`
}

// Hooks are scripts run on the SUT around the whole run.
type Hooks struct {
	PreRun  string `yaml:"pre_run,omitempty"`
	PostRun string `yaml:"post_run,omitempty"`
}

// Tracing configures optional screenshot tracing of a run.
type Tracing struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// Metadata is the workflow's document-level configuration block.
type Metadata struct {
	Process ProcessInfo `yaml:"process"`

	// DefaultDelay is the inter-step delay in seconds for steps that do
	// not set their own.
	DefaultDelay float64 `yaml:"default_delay,omitempty"`

	// DefaultTimeout bounds detection per step, in seconds.
	DefaultTimeout float64 `yaml:"default_timeout,omitempty"`

	// DefaultOCR layers over the server's detection defaults for every
	// step in this workflow.
	DefaultOCR *inference.Override `yaml:"default_ocr,omitempty"`

	// DisplayMode is the resolution the workflow requires, if any.
	DisplayMode *gateway.DisplayMode `yaml:"display_mode,omitempty"`

	// RequiresCredential marks workflows whose application needs a pooled
	// login. The workflow name is the credential partition key.
	RequiresCredential bool `yaml:"requires_credential,omitempty"`

	Hooks   Hooks   `yaml:"hooks,omitempty"`
	Tracing Tracing `yaml:"tracing,omitempty"`
}

// Fallbacks holds workflow-level recovery configuration.
type Fallbacks struct {
	// Recovery is an action (typically pressing escape) a retry policy may
	// issue to bring the UI back to a known state.
	Recovery *Action `yaml:"recovery,omitempty"`
}

// Workflow is one loaded automation document.
type Workflow struct {
	Name      string    `yaml:"name"`
	Metadata  Metadata  `yaml:"metadata"`
	Steps     []Step    `yaml:"steps"`
	Fallbacks Fallbacks `yaml:"fallbacks,omitempty"`
}

// DefaultDelayDuration returns the workflow's inter-step delay default.
func (w *Workflow) DefaultDelayDuration() time.Duration {
	if w.Metadata.DefaultDelay <= 0 {
		return 2 * time.Second
	}
	return time.Duration(w.Metadata.DefaultDelay * float64(time.Second))
}

// DefaultTimeoutDuration returns the workflow's per-step timeout default.
func (w *Workflow) DefaultTimeoutDuration() time.Duration {
	if w.Metadata.DefaultTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(w.Metadata.DefaultTimeout * float64(time.Second))
}

// FallbackConfigs is the ordered list of alternate detection configurations
// tried, in order, when the primary config fails to find a step's target:
// progressively lower confidence thresholds, then the alternate OCR engine.
// The orchestrator consumes the list in one retry loop.
func FallbackConfigs() []inference.Override {
	conf40 := 0.40
	conf30 := 0.30
	tesseract := "tesseract"
	return []inference.Override{
		{ConfThreshold: &conf40},
		{ConfThreshold: &conf30},
		{ConfThreshold: &conf30, OCREngine: &tesseract},
	}
}
