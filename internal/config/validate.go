package config

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf16"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	t := cfg.Transport
	if t.ClockHz <= 0 || t.ClockHz > 26_000_000 {
		return fmt.Errorf("transport: clock_hz %d outside (0, 26000000]", t.ClockHz)
	}
	if t.DebounceMs < 0 || t.SettleUs < 0 {
		return fmt.Errorf("transport: debounce_ms and settle_us must not be negative")
	}
	if t.WakeupPin != "" && t.WakeupPin == t.IntPin {
		return fmt.Errorf("transport: wakeup_pin and int_pin are both %q", t.IntPin)
	}

	c := cfg.Controller
	for _, f := range []struct {
		name  string
		value int
	}{
		{"oscillator_timeout_ms", c.OscillatorTimeoutMs},
		{"wakeup_timeout_ms", c.WakeupTimeoutMs},
		{"resume_timeout_ms", c.ResumeTimeoutMs},
		{"poll_interval_us", c.PollIntervalUs},
	} {
		if f.value <= 0 {
			return fmt.Errorf("controller: %s must be positive", f.name)
		}
	}

	p := cfg.Provider
	if v := float64(p.BatteryVolts); math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("provider: battery_volts %v must be a positive voltage", p.BatteryVolts)
	}
	if p.DelayMs < 0 {
		return fmt.Errorf("provider: delay_ms must not be negative")
	}

	id := cfg.Identity
	for _, f := range []struct {
		name  string
		value string
	}{
		{"manufacturer", id.Manufacturer},
		{"product", id.Product},
		{"serial_number", id.SerialNumber},
	} {
		// string descriptors must fit one 64-byte packet
		if n := len(utf16.Encode([]rune(f.value))); n > 31 {
			return fmt.Errorf("identity: %s is %d UTF-16 units, at most 31 fit a descriptor", f.name, n)
		}
	}

	l := cfg.Log
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log: unknown level %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", l.Format)
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 {
		return fmt.Errorf("log: max_size_mb and max_backups must not be negative")
	}

	h := cfg.Host
	if h.TimeoutMs <= 0 || h.PollIntervalMs <= 0 {
		return fmt.Errorf("host: timeout_ms and poll_interval_ms must be positive")
	}
	return nil
}
