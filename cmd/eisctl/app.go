package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ardnew/eisusb/device"
	"github.com/ardnew/eisusb/device/class/eis"
	"github.com/ardnew/eisusb/device/hal/sim"
	"github.com/ardnew/eisusb/host"
	"github.com/ardnew/eisusb/internal/config"
	"github.com/ardnew/eisusb/pkg"
)

var (
	configFlag = &cli.PathFlag{
		Name:  "config",
		Usage: "YAML configuration file",
	}
	vidFlag = &cli.StringFlag{
		Name:  "vid",
		Usage: "Vendor ID of the instrument (overrides config)",
	}
	pidFlag = &cli.StringFlag{
		Name:  "pid",
		Usage: "Product ID of the instrument (overrides config)",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Bound on transfers and status waits (overrides config)",
	}
	simFlag = &cli.BoolFlag{
		Name:  "sim",
		Usage: "Talk to an in-process simulated instrument instead of USB",
	}
	seedFlag = &cli.Uint64Flag{
		Name:  "seed",
		Usage: "Sample generator seed of the simulated instrument",
		Value: 1,
	}
	verboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Enable debug logging",
	}

	maskFlag = &cli.StringFlag{
		Name:     "mask",
		Usage:    "Frequency selection mask, 24 bits (e.g. 0x000003)",
		Required: true,
	}
	amplitudeFlag = &cli.UintFlag{
		Name:  "amplitude",
		Usage: "Excitation amplitude",
		Value: 100,
	}
	exponentFlag = &cli.UintFlag{
		Name:  "exp",
		Usage: "Samples per period as a power of two",
		Value: 2,
	}
	periodsFlag = &cli.UintFlag{
		Name:  "periods",
		Usage: "Periods per frequency",
		Value: 3,
	}
	rangingFlag = &cli.UintFlag{
		Name:  "ranging",
		Usage: "Current ranging selector",
	}
	frequencyFlag = &cli.IntFlag{
		Name:  "frequency",
		Usage: "Index of the frequency to fetch among the selected ones",
	}
	outputFlag = &cli.PathFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Write CSV to this file instead of standard output",
	}

	paramFlags = []cli.Flag{maskFlag, amplitudeFlag, exponentFlag, periodsFlag, rangingFlag}
)

func newApp(stdout io.Writer) *cli.App {
	return &cli.App{
		Name:   "eisctl",
		Usage:  "control an EIS instrument over USB",
		Writer: stdout,
		Flags: []cli.Flag{
			configFlag, vidFlag, pidFlag, timeoutFlag, simFlag, seedFlag, verboseFlag,
		},
		Before: func(ctx *cli.Context) error {
			if ctx.Bool(verboseFlag.Name) {
				pkg.SetLogLevel(pkg.ParseLogLevel("debug"))
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Print the instrument's descriptors",
				Action: withClient(infoCmd),
			},
			{
				Name:   "status",
				Usage:  "Poll the session status once",
				Action: withClient(statusCmd),
			},
			{
				Name:   "start",
				Usage:  "Start a measurement",
				Flags:  paramFlags,
				Action: withClient(startCmd),
			},
			{
				Name:   "fetch",
				Usage:  "Fetch the available samples of one frequency as CSV",
				Flags:  []cli.Flag{frequencyFlag, outputFlag},
				Action: withClient(fetchCmd),
			},
			{
				Name:   "abort",
				Usage:  "Abort the running measurement",
				Action: withClient(abortCmd),
			},
			{
				Name:   "clear",
				Usage:  "Clear a latched error",
				Action: withClient(clearCmd),
			},
			{
				Name:   "run",
				Usage:  "Perform a complete measurement and write it as CSV",
				Flags:  append([]cli.Flag{outputFlag}, paramFlags...),
				Action: withClient(runCmd),
			},
		},
	}
}

type clientAction func(ctx *cli.Context, c *host.Client) error

// withClient opens the instrument named by the global flags for the length
// of one command.
func withClient(action clientAction) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		opts := []host.Option{
			host.WithTimeout(time.Duration(cfg.Host.TimeoutMs) * time.Millisecond),
			host.WithPollInterval(time.Duration(cfg.Host.PollIntervalMs) * time.Millisecond),
		}

		var dev host.Device
		if ctx.Bool(simFlag.Name) {
			dev, err = openSim(ctx.Context, ctx.Uint64(seedFlag.Name), cfg)
			if err != nil {
				return err
			}
		} else {
			usb, err := host.OpenUSB(cfg.Host.VendorID, cfg.Host.ProductID,
				time.Duration(cfg.Host.TimeoutMs)*time.Millisecond)
			if err != nil {
				return err
			}
			defer usb.Close()
			dev = usb
		}
		return action(ctx, host.NewClient(dev, opts...))
	}
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := ctx.Path(configFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	for _, o := range []struct {
		flag string
		dst  *uint16
	}{
		{vidFlag.Name, &cfg.Host.VendorID},
		{pidFlag.Name, &cfg.Host.ProductID},
	} {
		if s := ctx.String(o.flag); s != "" {
			v, err := strconv.ParseUint(s, 0, 16)
			if err != nil {
				return nil, fmt.Errorf("--%s %q: %w", o.flag, s, err)
			}
			*o.dst = uint16(v)
		}
	}
	if d := ctx.Duration(timeoutFlag.Name); d > 0 {
		cfg.Host.TimeoutMs = int(d / time.Millisecond)
	}
	config.Normalize(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSim brings up the firmware against a simulated controller and returns
// the host side of its bus.
func openSim(ctx context.Context, seed uint64, cfg *config.Config) (host.Device, error) {
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
		return nil, err
	}
	provider := eis.NewSynthetic(seed, eis.WithBatteryVoltage(cfg.Provider.BatteryVolts))
	chip := sim.New()
	ctrl := device.NewController(chip, descriptors, eis.NewSession(provider, provider))
	if err := ctrl.Init(ctx); err != nil {
		return nil, err
	}
	return sim.NewBus(chip, ctrl.Poll), nil
}

func parseParams(ctx *cli.Context) (eis.Params, error) {
	var p eis.Params
	s := ctx.String(maskFlag.Name)
	mask, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return p, fmt.Errorf("--%s %q: %w", maskFlag.Name, s, err)
	}
	for _, f := range []struct {
		name string
		max  uint
	}{
		{amplitudeFlag.Name, 0xFFFF},
		{exponentFlag.Name, 0x0F},
		{periodsFlag.Name, 0x0F},
		{rangingFlag.Name, 0xFF},
	} {
		if v := ctx.Uint(f.name); v > f.max {
			return p, fmt.Errorf("--%s %d exceeds %d: %w", f.name, v, f.max, pkg.ErrInvalidParameter)
		}
	}
	p = eis.Params{
		Frequencies:     uint32(mask),
		Amplitude:       uint16(ctx.Uint(amplitudeFlag.Name)),
		SamplesExponent: uint8(ctx.Uint(exponentFlag.Name)),
		Periods:         uint8(ctx.Uint(periodsFlag.Name)),
		CurrentRanging:  uint8(ctx.Uint(rangingFlag.Name)),
	}
	return p, nil
}

// output returns the CSV destination of a command and its closer.
func output(ctx *cli.Context) (io.Writer, func() error, error) {
	path := ctx.Path(outputFlag.Name)
	if path == "" {
		return ctx.App.Writer, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
