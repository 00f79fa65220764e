package config

import (
	"github.com/ardnew/eisusb/device"
	"github.com/ardnew/eisusb/device/class/eis"
)

// Defaults applied by Normalize.
const (
	DefaultClockHz             = 26_000_000
	DefaultDebounceMs          = 20
	DefaultOscillatorTimeoutMs = 100
	DefaultWakeupTimeoutMs     = 50
	DefaultResumeTimeoutMs     = 100
	DefaultPollIntervalUs      = 1000
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultLogMaxSizeMB        = 10
	DefaultLogMaxBackups       = 3
	DefaultHostTimeoutMs       = 5000
	DefaultHostPollIntervalMs  = 10
)

// Normalize fills unset fields with defaults.
// It is allowed to mutate configuration.
// It MUST be called before Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	t := &cfg.Transport
	setDefault(&t.ClockHz, DefaultClockHz)
	if t.WakeupPin != "" {
		setDefault(&t.DebounceMs, DefaultDebounceMs)
	}

	c := &cfg.Controller
	setDefault(&c.OscillatorTimeoutMs, DefaultOscillatorTimeoutMs)
	setDefault(&c.WakeupTimeoutMs, DefaultWakeupTimeoutMs)
	setDefault(&c.ResumeTimeoutMs, DefaultResumeTimeoutMs)
	setDefault(&c.PollIntervalUs, DefaultPollIntervalUs)

	setDefault(&cfg.Provider.BatteryVolts, eis.DefaultBatteryVoltage)

	id := &cfg.Identity
	setDefault(&id.VendorID, device.DefaultVendorID)
	setDefault(&id.ProductID, device.DefaultProductID)
	setDefault(&id.Product, "EIS Potentiostat")

	l := &cfg.Log
	setDefault(&l.Level, DefaultLogLevel)
	setDefault(&l.Format, DefaultLogFormat)
	if l.File != "" {
		setDefault(&l.MaxSizeMB, DefaultLogMaxSizeMB)
		setDefault(&l.MaxBackups, DefaultLogMaxBackups)
	}

	h := &cfg.Host
	setDefault(&h.VendorID, id.VendorID)
	setDefault(&h.ProductID, id.ProductID)
	setDefault(&h.TimeoutMs, DefaultHostTimeoutMs)
	setDefault(&h.PollIntervalMs, DefaultHostPollIntervalMs)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}
