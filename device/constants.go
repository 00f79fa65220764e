package device

import (
	"fmt"
	"time"
)

// Fixed limits of the single-configuration device.
const (
	// MaxPacketSize0 is the control endpoint packet size.
	MaxPacketSize0 = 64

	// MaxDescriptorSize is the largest descriptor served by GET_DESCRIPTOR.
	// The EP0 FIFO holds one packet and descriptors are sent in one go.
	MaxDescriptorSize = MaxPacketSize0

	// MaxStrings is the number of string descriptor slots, index 0 being the
	// language table.
	MaxStrings = 4

	// EndpointDataIn is the address of the interrupt IN endpoint that
	// carries sample packets (EP3-IN).
	EndpointDataIn = 0x83

	// ConfigurationValue is the only configuration this device offers.
	ConfigurationValue = 1
)

// Default bounded-wait limits.
const (
	DefaultOscillatorTimeout = 100 * time.Millisecond
	DefaultWakeupTimeout     = 50 * time.Millisecond
	DefaultResumeTimeout     = 100 * time.Millisecond
	DefaultPollInterval      = time.Millisecond

	// wakeupSettle separates the end of K-state signaling from the bus
	// activity check.
	wakeupSettle = 5 * time.Millisecond
)

// Device states as defined in USB 2.0 specification section 9.1, restricted
// to those this firmware distinguishes.
const (
	StateDefault    State = 0 // Reset, default address
	StateAddress    State = 1 // Address latched by the controller
	StateConfigured State = 2 // Configured and operational
	StateSuspended  State = 3 // Bus suspended
)

// State represents USB device state.
type State uint8

// String returns a human-readable state description.
func (s State) String() string {
	switch s {
	case StateDefault:
		return "Default"
	case StateAddress:
		return "Address"
	case StateConfigured:
		return "Configured"
	case StateSuspended:
		return "Suspended"
	default:
		return fmt.Sprintf("Unknown State (%d)", s)
	}
}
