package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pre-computed validation sets for O(1) lookups.
var (
	validKinds      map[SelectorKind]struct{}
	validMatches    map[MatchStrategy]struct{}
	validActionType map[ActionType]struct{}
)

func init() {
	validKinds = map[SelectorKind]struct{}{
		KindIcon: {}, KindText: {}, KindAny: {},
	}
	validMatches = map[MatchStrategy]struct{}{
		MatchExact: {}, MatchContains: {}, MatchStartsWith: {}, MatchEndsWith: {},
	}
	validActionType = map[ActionType]struct{}{
		ActionClick: {}, ActionDoubleClick: {}, ActionRightClick: {},
		ActionMove: {}, ActionKey: {}, ActionHotkey: {}, ActionTypeText: {},
		ActionScroll: {}, ActionDrag: {}, ActionWait: {},
	}
}

// Load reads and parses a workflow document from disk.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML workflow document and validates it in full. Unknown
// fields are rejected. Validation does not stop at the first problem; the
// returned error joins every violation found so authors can fix a document
// in one pass.
func Parse(data []byte) (*Workflow, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var w Workflow
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkflow, err)
	}

	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Validate checks the whole document and returns all violations joined.
func (w *Workflow) Validate() error {
	var errs []error

	if w.Name == "" {
		errs = append(errs, fmt.Errorf("%w: name is required", ErrInvalidWorkflow))
	}
	if w.Metadata.Process.Name == "" {
		errs = append(errs, fmt.Errorf("%w: metadata.process.name is required", ErrInvalidWorkflow))
	}
	if w.Metadata.Process.Exe == "" {
		errs = append(errs, fmt.Errorf("%w: metadata.process.exe is required", ErrInvalidWorkflow))
	}
	if w.Metadata.DefaultDelay < 0 {
		errs = append(errs, fmt.Errorf("%w: metadata.default_delay cannot be negative", ErrInvalidWorkflow))
	}
	if w.Metadata.DefaultTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: metadata.default_timeout cannot be negative", ErrInvalidWorkflow))
	}
	if dm := w.Metadata.DisplayMode; dm != nil && (dm.Width <= 0 || dm.Height <= 0) {
		errs = append(errs, fmt.Errorf("%w: metadata.display_mode requires positive width and height", ErrInvalidWorkflow))
	}

	if len(w.Steps) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one step is required", ErrInvalidWorkflow))
	}

	seen := make(map[string]int, len(w.Steps))
	for i := range w.Steps {
		step := &w.Steps[i]
		label := fmt.Sprintf("steps[%d]", i)
		if step.Name != "" {
			label = fmt.Sprintf("steps[%d] %q", i, step.Name)
			if prev, dup := seen[step.Name]; dup {
				errs = append(errs, fmt.Errorf("%w: %s duplicates steps[%d]", ErrInvalidStep, label, prev))
			}
			seen[step.Name] = i
		}
		errs = append(errs, step.validate(label)...)
	}

	if rec := w.Fallbacks.Recovery; rec != nil {
		if rec.Type.NeedsElement() {
			errs = append(errs, fmt.Errorf("%w: fallbacks.recovery cannot target an element", ErrInvalidAction))
		} else {
			errs = append(errs, validateAction(rec, "fallbacks.recovery")...)
		}
	}

	return errors.Join(errs...)
}

func (s *Step) validate(label string) []error {
	var errs []error

	if s.Name == "" {
		errs = append(errs, fmt.Errorf("%w: %s: name is required", ErrInvalidStep, label))
	}
	if s.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w: %s: timeout cannot be negative", ErrInvalidStep, label))
	}
	if s.ExpectedDelay < 0 {
		errs = append(errs, fmt.Errorf("%w: %s: expected_delay cannot be negative", ErrInvalidStep, label))
	}

	if s.Action.Type.NeedsElement() && s.Find == nil {
		errs = append(errs, fmt.Errorf("%w: %s: action %q requires a find selector", ErrInvalidStep, label, s.Action.Type))
	}

	if s.Find != nil {
		errs = append(errs, validateSelector(s.Find, label+".find")...)
	}
	errs = append(errs, validateAction(&s.Action, label+".action")...)

	for i := range s.Verify {
		errs = append(errs, validateSelector(&s.Verify[i].Find, fmt.Sprintf("%s.verify_success[%d]", label, i))...)
	}

	if s.Sideload != nil {
		if s.Sideload.Path == "" {
			errs = append(errs, fmt.Errorf("%w: %s.sideload: path is required", ErrInvalidStep, label))
		}
		if s.Sideload.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%w: %s.sideload: timeout cannot be negative", ErrInvalidStep, label))
		}
		if s.Sideload.Persistent && s.Sideload.WaitForCompletion {
			errs = append(errs, fmt.Errorf("%w: %s.sideload: persistent and wait_for_completion are mutually exclusive", ErrInvalidStep, label))
		}
	}

	return errs
}

func validateSelector(sel *Selector, label string) []error {
	var errs []error

	if _, ok := validKinds[sel.Kind]; !ok {
		errs = append(errs, fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidSelector, label, sel.Kind))
	}
	if sel.Match != "" {
		if _, ok := validMatches[sel.Match]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s: unknown match strategy %q", ErrInvalidSelector, label, sel.Match))
		}
	}
	if sel.Text == "" && sel.Kind != KindIcon {
		errs = append(errs, fmt.Errorf("%w: %s: text is required for kind %q", ErrInvalidSelector, label, sel.Kind))
	}

	return errs
}

func validateAction(a *Action, label string) []error {
	var errs []error

	if _, ok := validActionType[a.Type]; !ok {
		return []error{fmt.Errorf("%w: %s: unknown type %q", ErrInvalidAction, label, a.Type)}
	}

	switch a.Type {
	case ActionKey:
		if a.Key == "" {
			errs = append(errs, fmt.Errorf("%w: %s: key is required", ErrInvalidAction, label))
		}
	case ActionHotkey:
		if len(a.Keys) < 2 {
			errs = append(errs, fmt.Errorf("%w: %s: hotkey requires at least two keys", ErrInvalidAction, label))
		}
	case ActionTypeText:
		if a.Text == "" {
			errs = append(errs, fmt.Errorf("%w: %s: text is required", ErrInvalidAction, label))
		}
	case ActionScroll:
		if a.ScrollDX == 0 && a.ScrollDY == 0 {
			errs = append(errs, fmt.Errorf("%w: %s: scroll requires a non-zero delta", ErrInvalidAction, label))
		}
	case ActionDrag:
		if a.To == nil {
			errs = append(errs, fmt.Errorf("%w: %s: drag requires a destination", ErrInvalidAction, label))
		}
	case ActionWait:
		if a.Seconds <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s: wait requires positive seconds", ErrInvalidAction, label))
		}
	}

	if a.JitterPX < 0 {
		errs = append(errs, fmt.Errorf("%w: %s: jitter_px cannot be negative", ErrInvalidAction, label))
	}
	if a.MoveDurationMS < 0 {
		errs = append(errs, fmt.Errorf("%w: %s: move_duration_ms cannot be negative", ErrInvalidAction, label))
	}

	return errs
}
