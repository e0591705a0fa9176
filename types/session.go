package types

import (
	"fmt"
	"strings"
)

// Role identifies which end of the bridge a process is.
type Role string

// Bridge roles.
const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// SessionMeta identifies one bridge session for logging and metrics.
// Both processes of a session share the same SessionID.
type SessionMeta struct {
	// SessionID is a ULID shared by client and server.
	SessionID string
	// Role is this process's end of the bridge.
	Role Role
	// PID is this process's id.
	PID int
}

// ForwardPolicy controls whether captured device input is replayed into the
// intercepted window procedure.
type ForwardPolicy int

// Forward policies.
const (
	ForwardNever ForwardPolicy = iota
	ForwardOnlyWhenOverlayActive
	ForwardOnlyWhenOverlayInactive
	ForwardAlways
)

// Allows reports whether input should be forwarded given the overlay state.
func (p ForwardPolicy) Allows(overlayActive bool) bool {
	switch p {
	case ForwardAlways:
		return true
	case ForwardOnlyWhenOverlayActive:
		return overlayActive
	case ForwardOnlyWhenOverlayInactive:
		return !overlayActive
	default:
		return false
	}
}

func (p ForwardPolicy) String() string {
	switch p {
	case ForwardNever:
		return "never"
	case ForwardOnlyWhenOverlayActive:
		return "overlay_active"
	case ForwardOnlyWhenOverlayInactive:
		return "overlay_inactive"
	case ForwardAlways:
		return "always"
	default:
		return fmt.Sprintf("ForwardPolicy(%d)", int(p))
	}
}

// ParseForwardPolicy parses the config spelling of a ForwardPolicy.
// Numeric values 0-3 are accepted for compatibility with older config files.
func ParseForwardPolicy(s string) (ForwardPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "never", "0":
		return ForwardNever, nil
	case "overlay_active", "1":
		return ForwardOnlyWhenOverlayActive, nil
	case "overlay_inactive", "2", "":
		return ForwardOnlyWhenOverlayInactive, nil
	case "always", "3":
		return ForwardAlways, nil
	default:
		return ForwardNever, fmt.Errorf("invalid forward policy %q (must be never, overlay_active, overlay_inactive, or always)", s)
	}
}

// DeviceClass is a class of captured input device.
type DeviceClass int

// Device classes.
const (
	DevicePointer DeviceClass = iota
	DeviceKeyboard
)

func (d DeviceClass) String() string {
	if d == DeviceKeyboard {
		return "keyboard"
	}
	return "pointer"
}
