//go:build linux

// Command eisfw runs the EIS instrument firmware on a Linux board wired to
// the USB peripheral controller over SPI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/eisusb/device"
	"github.com/ardnew/eisusb/device/class/eis"
	"github.com/ardnew/eisusb/device/hal/periph"
	"github.com/ardnew/eisusb/internal/config"
	"github.com/ardnew/eisusb/pkg"
)

const componentDaemon pkg.Component = "eisfw"

var (
	configPath = flag.String("config", "", "Path to YAML configuration")
	verbose    = flag.Bool("v", false, "Enable verbose logging")
	jsonOut    = flag.Bool("json", false, "Output logs as JSON")
	spiPort    = flag.String("spi", "", "SPI port name (overrides config)")
	intPin     = flag.String("int", "", "INT gpio name (overrides config)")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "eisfw: %v\n", err)
		os.Exit(2)
	}
	closeLog := setupLogging(cfg.Log)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		pkg.LogError(componentDaemon, "firmware stopped", "error", err)
		closeLog()
		os.Exit(1)
	}
	pkg.LogInfo(componentDaemon, "firmware stopped")
}

func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if *spiPort != "" {
		cfg.Transport.SPIPort = *spiPort
	}
	if *intPin != "" {
		cfg.Transport.IntPin = *intPin
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *jsonOut {
		cfg.Log.Format = "json"
	}
	config.Normalize(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging routes component logs to stderr, or to a rotating file.
func setupLogging(l config.LogConfig) func() {
	pkg.SetLogLevel(pkg.ParseLogLevel(l.Level))
	var w io.Writer = os.Stderr
	closer := func() {}
	if l.File != "" {
		lj := &lumberjack.Logger{
			Filename:   l.File,
			MaxSize:    l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
		}
		w = lj
		closer = func() { lj.Close() }
	}
	pkg.SetLogOutput(w, pkg.ParseLogFormat(l.Format))
	return closer
}

func run(ctx context.Context, cfg *config.Config) error {
	t := cfg.Transport
	port, err := periph.Open(periph.Config{
		Port:   t.SPIPort,
		Clock:  physic.Frequency(t.ClockHz) * physic.Hertz,
		IntPin: t.IntPin,
		Settle: time.Duration(t.SettleUs) * time.Microsecond,
	})
	if err != nil {
		return err
	}
	defer port.Close()

	id := cfg.Identity
	descriptors, err := device.DefaultDescriptors(device.IdentityConfig{
		VendorID:     id.VendorID,
		ProductID:    id.ProductID,
		Version:      id.Version,
		Manufacturer: id.Manufacturer,
		Product:      id.Product,
		SerialNumber: id.SerialNumber,
	})
	if err != nil {
		return fmt.Errorf("build descriptors: %w", err)
	}

	p := cfg.Provider
	provider := eis.NewSynthetic(p.Seed,
		eis.WithBatteryVoltage(p.BatteryVolts),
		eis.WithDelay(time.Duration(p.DelayMs)*time.Millisecond))
	defer provider.Wait()
	session := eis.NewSession(provider, provider)

	c := cfg.Controller
	ctrl := device.NewController(port, descriptors, session,
		device.WithOscillatorTimeout(time.Duration(c.OscillatorTimeoutMs)*time.Millisecond),
		device.WithWakeupTimeout(time.Duration(c.WakeupTimeoutMs)*time.Millisecond),
		device.WithResumeTimeout(time.Duration(c.ResumeTimeoutMs)*time.Millisecond),
		device.WithPollInterval(time.Duration(c.PollIntervalUs)*time.Microsecond))
	if err := ctrl.Init(ctx); err != nil {
		return fmt.Errorf("controller init: %w", err)
	}
	pkg.LogInfo(componentDaemon, "firmware running",
		"vid", fmt.Sprintf("0x%04X", id.VendorID),
		"pid", fmt.Sprintf("0x%04X", id.ProductID),
		"level", pkg.GetLogLevel().String())

	var button *periph.Button
	if t.WakeupPin != "" {
		button, err = periph.OpenButton(t.WakeupPin, time.Duration(t.DebounceMs)*time.Millisecond)
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(ctx) })
	if button != nil {
		g.Go(func() error {
			return button.Watch(ctx, ctrl.RequestWakeup)
		})
	}
	return g.Wait()
}
