package periph

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ardnew/eisusb/pkg"
)

// Config selects the hardware lines of the controller.
type Config struct {
	Port   string           // spireg port name, "" for the first port
	Clock  physic.Frequency // SPI clock
	IntPin string           // gpioreg name of INT, "" to poll registers
	Settle time.Duration    // delay after every transaction
}

// Port is a Transport bound to an opened SPI port.
type Port struct {
	*Transport
	port spi.PortCloser
}

// Open initializes the host drivers and opens the controller's SPI port in
// mode 0 with 8-bit words.
func Open(cfg Config) (*Port, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}

	p, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("could not open spi port %q: %w", cfg.Port, err)
	}
	c, err := p.Connect(cfg.Clock, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("could not connect spi port %q: %w", cfg.Port, err)
	}

	var irq Level
	if cfg.IntPin != "" {
		pin := gpioreg.ByName(cfg.IntPin)
		if pin == nil {
			p.Close()
			return nil, fmt.Errorf("int gpio %q not found: %w", cfg.IntPin, pkg.ErrNoDevice)
		}
		if err := pin.In(gpio.PullDown, gpio.NoEdge); err != nil {
			p.Close()
			return nil, fmt.Errorf("int gpio %q: %w", cfg.IntPin, err)
		}
		irq = pin
	}

	pkg.LogInfo(pkg.ComponentHAL, "spi transport open",
		"port", p.String(), "clock", cfg.Clock.String(), "int", cfg.IntPin)
	return &Port{Transport: New(c, irq, cfg.Settle), port: p}, nil
}

// Close releases the SPI port.
func (p *Port) Close() error {
	return p.port.Close()
}

// EdgePin is an input line that reports edges.
type EdgePin interface {
	Level
	WaitForEdge(timeout time.Duration) bool
}

// Button is an active-low push button, such as the remote-wakeup button.
type Button struct {
	pin      EdgePin
	debounce time.Duration
}

// edgePoll bounds each edge wait so Watch notices cancellation.
const edgePoll = 100 * time.Millisecond

// NewButton returns a button on pin.
func NewButton(pin EdgePin, debounce time.Duration) *Button {
	return &Button{pin: pin, debounce: debounce}
}

// OpenButton configures the named GPIO as a pulled-up input with
// falling-edge detection.
func OpenButton(name string, debounce time.Duration) (*Button, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("button gpio %q not found: %w", name, pkg.ErrNoDevice)
	}
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("button gpio %q: %w", name, err)
	}
	return NewButton(pin, debounce), nil
}

// Watch calls press for every debounced press until ctx ends.
func (b *Button) Watch(ctx context.Context, press func()) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !b.pin.WaitForEdge(edgePoll) {
			continue
		}
		if b.debounce > 0 {
			timer := time.NewTimer(b.debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if b.pin.Read() == gpio.Low {
			pkg.LogDebug(pkg.ComponentHAL, "button pressed")
			press()
		}
	}
}
