package device

import "time"

// Device represents one SUT (system under test) known to the control plane.
// This matches the devices table in the initial schema migration.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Network address of the agent running on the SUT
	Host string `json:"host"`
	Port int    `json:"port"`

	// Capabilities the agent advertises
	Capabilities []Capability `json:"capabilities"`

	// Liveness
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"last_seen"`

	// Paired marks a priority device; paired agents are told to heartbeat
	// at a shorter interval, liveness semantics are unchanged.
	Paired bool `json:"paired"`

	// Timestamps
	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns an independent copy of the Device. The capability slice is
// duplicated so modifications to the copy do not affect the original. This
// is essential for cache isolation.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.Capabilities != nil {
		cpy.Capabilities = make([]Capability, len(d.Capabilities))
		copy(cpy.Capabilities, d.Capabilities)
	}
	return &cpy
}

// HasCapability reports whether the device advertises the given capability.
func (d *Device) HasCapability(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Info is the payload an agent sends when registering or heartbeating.
type Info struct {
	// ID is optional; agents that persist their identity send it so the
	// record survives re-IP and reconnects. Empty means first registration.
	ID           string       `json:"id,omitempty"`
	Name         string       `json:"name"`
	Host         string       `json:"host"`
	Port         int          `json:"port"`
	Capabilities []Capability `json:"capabilities"`
}

// Status represents the liveness state of a device.
type Status string

// Status constants.
const (
	StatusOnline  Status = "online"
	StatusStale   Status = "stale"
	StatusOffline Status = "offline"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{StatusOnline, StatusStale, StatusOffline}
}

// Capability represents one remotely invokable SUT operation class.
type Capability string

// Capability constants. These correspond one-to-one with the proxy gateway
// operations that can be forwarded to an agent.
const (
	CapScreenshot Capability = "screenshot"
	CapInput      Capability = "input"
	CapLaunch     Capability = "launch"
	CapProcess    Capability = "process"
	CapDisplay    Capability = "display"
)

// AllCapabilities returns all valid capability values.
func AllCapabilities() []Capability {
	return []Capability{CapScreenshot, CapInput, CapLaunch, CapProcess, CapDisplay}
}

// Event records one liveness transition, emitted by the Monitor and by
// RegisterOrHeartbeat when a device returns from stale/offline.
type Event struct {
	DeviceID string    `json:"device_id"`
	Name     string    `json:"name"`
	From     Status    `json:"from"`
	To       Status    `json:"to"`
	At       time.Time `json:"at"`
}
