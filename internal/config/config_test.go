package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardnew/eisusb/device"
)

const sample = `
transport:
  spi_port: SPI0.0
  clock_hz: 12000000
  int_pin: GPIO17
  wakeup_pin: GPIO27
controller:
  poll_interval_us: 500
provider:
  seed: 42
  delay_ms: 5
identity:
  serial_number: "0001"
log:
  level: debug
  format: json
  file: /var/log/eisfw.log
host:
  timeout_ms: 2000
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eis.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	Normalize(cfg)
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"spi_port", cfg.Transport.SPIPort, "SPI0.0"},
		{"clock_hz", cfg.Transport.ClockHz, int64(12_000_000)},
		{"debounce_ms", cfg.Transport.DebounceMs, DefaultDebounceMs},
		{"poll_interval_us", cfg.Controller.PollIntervalUs, 500},
		{"oscillator_timeout_ms", cfg.Controller.OscillatorTimeoutMs, DefaultOscillatorTimeoutMs},
		{"seed", cfg.Provider.Seed, uint64(42)},
		{"battery_volts", cfg.Provider.BatteryVolts, float32(4.5)},
		{"vendor_id", cfg.Identity.VendorID, uint16(device.DefaultVendorID)},
		{"serial_number", cfg.Identity.SerialNumber, "0001"},
		{"log max_size_mb", cfg.Log.MaxSizeMB, DefaultLogMaxSizeMB},
		{"host vendor_id", cfg.Host.VendorID, uint16(device.DefaultVendorID)},
		{"host timeout_ms", cfg.Host.TimeoutMs, 2000},
		{"host poll_interval_ms", cfg.Host.PollIntervalMs, DefaultHostPollIntervalMs},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("Load() error = %v, want not-exist", err)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse([]byte("\n  \n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	Normalize(cfg)
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate(defaults) error = %v", err)
	}
	if cfg.Log.MaxSizeMB != 0 {
		t.Errorf("MaxSizeMB = %d without a log file", cfg.Log.MaxSizeMB)
	}
}

func TestParseUnknownKey(t *testing.T) {
	if _, err := Parse([]byte("transport:\n  spi_clock: 1\n")); err == nil {
		t.Fatal("Parse() accepted an unknown key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"clock too fast", func(c *Config) { c.Transport.ClockHz = 30_000_000 }, "clock_hz"},
		{"shared pin", func(c *Config) { c.Transport.IntPin, c.Transport.WakeupPin = "GPIO4", "GPIO4" }, "wakeup_pin"},
		{"negative debounce", func(c *Config) { c.Transport.DebounceMs = -1 }, "debounce_ms"},
		{"negative settle", func(c *Config) { c.Transport.SettleUs = -1 }, "settle_us"},
		{"zero poll", func(c *Config) { c.Controller.PollIntervalUs = -5 }, "poll_interval_us"},
		{"negative battery", func(c *Config) { c.Provider.BatteryVolts = -1 }, "battery_volts"},
		{"negative delay", func(c *Config) { c.Provider.DelayMs = -1 }, "delay_ms"},
		{"long product", func(c *Config) { c.Identity.Product = strings.Repeat("x", 32) }, "product"},
		{"long supplementary serial", func(c *Config) { c.Identity.SerialNumber = strings.Repeat("🔋", 16) }, "serial_number"},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "format"},
		{"host timeout", func(c *Config) { c.Host.TimeoutMs = -1 }, "timeout_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			Normalize(cfg)
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}

	if err := Validate(nil); err == nil {
		t.Error("Validate(nil) succeeded")
	}
}

func TestNormalizeKeepsValues(t *testing.T) {
	cfg := &Config{Controller: ControllerConfig{WakeupTimeoutMs: 7}, Log: LogConfig{Level: "warn"}}
	Normalize(cfg)
	if cfg.Controller.WakeupTimeoutMs != 7 || cfg.Log.Level != "warn" {
		t.Errorf("Normalize() overwrote set fields: %+v", cfg)
	}
	Normalize(nil)
}
