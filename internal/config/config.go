// Package config loads the YAML configuration shared by the firmware daemon
// and the host tool.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Transport  TransportConfig  `yaml:"transport"`
	Controller ControllerConfig `yaml:"controller"`
	Provider   ProviderConfig   `yaml:"provider"`
	Identity   IdentityConfig   `yaml:"identity"`
	Log        LogConfig        `yaml:"log"`
	Host       HostConfig       `yaml:"host"`
}

// ---- TRANSPORT ----

type TransportConfig struct {
	SPIPort    string `yaml:"spi_port"`    // spireg name, "" = first port
	ClockHz    int64  `yaml:"clock_hz"`    // SPI clock
	IntPin     string `yaml:"int_pin"`     // gpioreg name of the INT line, "" = poll registers
	WakeupPin  string `yaml:"wakeup_pin"`  // gpioreg name of the wakeup button, "" = none
	DebounceMs int    `yaml:"debounce_ms"` // wakeup button debounce
	SettleUs   int    `yaml:"settle_us"`   // delay after every SPI transaction
}

// ---- CONTROLLER ----

type ControllerConfig struct {
	OscillatorTimeoutMs int `yaml:"oscillator_timeout_ms"`
	WakeupTimeoutMs     int `yaml:"wakeup_timeout_ms"`
	ResumeTimeoutMs     int `yaml:"resume_timeout_ms"`
	PollIntervalUs      int `yaml:"poll_interval_us"`
}

// ---- SAMPLE PROVIDER ----

type ProviderConfig struct {
	Seed         uint64  `yaml:"seed"`
	BatteryVolts float32 `yaml:"battery_volts"`
	DelayMs      int     `yaml:"delay_ms"`
}

// ---- DESCRIPTORS ----

type IdentityConfig struct {
	VendorID     uint16 `yaml:"vendor_id"`
	ProductID    uint16 `yaml:"product_id"`
	Version      uint16 `yaml:"version"`
	Manufacturer string `yaml:"manufacturer"`
	Product      string `yaml:"product"`
	SerialNumber string `yaml:"serial_number"`
}

// ---- LOGGING ----

type LogConfig struct {
	Level      string `yaml:"level"`  // debug | info | warn | error
	Format     string `yaml:"format"` // text | json
	File       string `yaml:"file"`   // "" = stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// ---- HOST TOOL ----

type HostConfig struct {
	VendorID       uint16 `yaml:"vendor_id"`
	ProductID      uint16 `yaml:"product_id"`
	TimeoutMs      int    `yaml:"timeout_ms"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
}

// Load reads and decodes the configuration at path. Unknown keys are
// rejected. An empty file yields the zero Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if len(bytes.TrimSpace(data)) == 0 {
		return &cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
