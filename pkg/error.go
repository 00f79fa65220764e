package pkg

import (
	"errors"
	"fmt"
	"time"
)

// USB protocol errors.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrTimeout indicates a bounded wait expired.
	ErrTimeout = errors.New("operation timeout")

	// ErrProtocol indicates a protocol error.
	ErrProtocol = errors.New("protocol error")

	// ErrNoDevice indicates the device is not present.
	ErrNoDevice = errors.New("device not present")

	// ErrNotConfigured indicates the device is not configured.
	ErrNotConfigured = errors.New("device not configured")

	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidState indicates an invalid state for the operation.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates an unexpected descriptor type.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")

	// ErrDescriptorTooLong indicates a descriptor does not fit in one EP0 packet.
	ErrDescriptorTooLong = errors.New("descriptor exceeds one packet")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrAlreadyRunning indicates the controller is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrOutOfRange indicates a position or index outside its valid range.
	ErrOutOfRange = errors.New("out of range")

	// ErrReset indicates a bus reset was received.
	ErrReset = errors.New("bus reset")
)

// TimeoutError reports a bounded hardware wait that expired.
type TimeoutError struct {
	Op    string        // Operation being waited on
	After time.Duration // Configured limit
}

// Error implements error.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %v after %s", e.Op, ErrTimeout, e.After)
}

// Unwrap returns ErrTimeout so callers can match with errors.Is.
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}
