package gateway

// InputAction describes one synthetic input event executed on the SUT.
// Fields are interpreted per Type; unused fields are ignored by the agent.
type InputAction struct {
	// Type is one of: click, double_click, right_click, move, key, hotkey,
	// type_text, scroll, drag.
	Type string `json:"type"`

	// Pointer target (click variants, move, drag source)
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`

	// Drag destination
	ToX int `json:"to_x,omitempty"`
	ToY int `json:"to_y,omitempty"`

	// Pointer motion tuning
	MoveDurationMS int `json:"move_duration_ms,omitempty"`
	JitterPX       int `json:"jitter_px,omitempty"`

	// Keyboard
	Key  string   `json:"key,omitempty"`
	Keys []string `json:"keys,omitempty"` // hotkey chord, e.g. ["ctrl","shift","esc"]
	Text string   `json:"text,omitempty"`

	// Scroll
	ScrollDX int `json:"scroll_dx,omitempty"`
	ScrollDY int `json:"scroll_dy,omitempty"`
}

// LaunchRequest asks the agent to start the target application.
type LaunchRequest struct {
	Path    string   `json:"path"`
	Args    []string `json:"args,omitempty"`
	WorkDir string   `json:"work_dir,omitempty"`
}

// ProcessStatus is the agent's answer to a process check.
type ProcessStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
}

// DisplayMode describes one display resolution/refresh combination.
// Carries yaml tags as well: workflows pin a required mode in metadata.
type DisplayMode struct {
	Width     int `json:"width"      yaml:"width"`
	Height    int `json:"height"     yaml:"height"`
	RefreshHz int `json:"refresh_hz" yaml:"refresh_hz"`
}

// Equal reports whether two modes are the same resolution and refresh rate.
func (m DisplayMode) Equal(other DisplayMode) bool {
	return m.Width == other.Width && m.Height == other.Height && m.RefreshHz == other.RefreshHz
}

// DisplayState is the agent's report of current and supported display modes.
type DisplayState struct {
	Current   DisplayMode   `json:"current"`
	Supported []DisplayMode `json:"supported"`
}
