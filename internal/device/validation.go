package device

import (
	"fmt"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength   = 100
	maxCapabilities = 16
	maxPort         = 65535
)

// validCapabilities is a pre-computed set for O(1) lookups.
var validCapabilities map[Capability]struct{}

func init() {
	validCapabilities = make(map[Capability]struct{}, len(AllCapabilities()))
	for _, c := range AllCapabilities() {
		validCapabilities[c] = struct{}{}
	}
}

// ValidateInfo checks registration info before it is applied to the registry.
// Returns an error describing the first validation failure found.
func ValidateInfo(info Info) error {
	if info.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(info.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}

	if info.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidAddress)
	}
	if info.Port < 1 || info.Port > maxPort {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, info.Port)
	}

	if len(info.Capabilities) > maxCapabilities {
		return fmt.Errorf("%w: too many capabilities", ErrInvalidCapability)
	}
	for _, c := range info.Capabilities {
		if _, ok := validCapabilities[c]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidCapability, c)
		}
	}

	return nil
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.NewString()
}
