package device

// ConfigState is the device configuration as negotiated through standard
// requests. It returns to zero at power-on and on every bus reset.
type ConfigState struct {
	// Value is the active configuration value, 0 when unconfigured.
	Value uint8

	// Addressed is set once the host has assigned a non-zero address.
	Addressed bool

	// DataHalted mirrors the EP3-IN stall bit.
	DataHalted bool

	// RemoteWakeup is set when the host enabled DEVICE_REMOTE_WAKEUP.
	RemoteWakeup bool
}

// Reset returns s to its power-on value.
func (s *ConfigState) Reset() {
	*s = ConfigState{}
}

// Configured reports whether a configuration is active.
func (s ConfigState) Configured() bool {
	return s.Value != 0
}

// State maps s onto the USB device state machine.
func (s ConfigState) State() State {
	switch {
	case s.Configured():
		return StateConfigured
	case s.Addressed:
		return StateAddress
	default:
		return StateDefault
	}
}
