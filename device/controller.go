package device

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ardnew/eisusb/device/hal"
	"github.com/ardnew/eisusb/pkg"
)

// VendorHandler handles vendor-type control requests. The handler owns the
// status stage: it must acknowledge through p, or return an error wrapping
// [pkg.ErrStall] to have EP0 stalled. A handler that returns nil without
// completing the transfer is acknowledged on its behalf.
type VendorHandler interface {
	HandleVendor(ctx context.Context, p *Pipe, setup *SetupPacket) error
}

// ResumeHandler is implemented by a VendorHandler that reacts when the host
// resumes a suspended bus. It is not called after a remote wakeup.
type ResumeHandler interface {
	HostResumed()
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	oscillatorTimeout time.Duration
	wakeupTimeout     time.Duration
	resumeTimeout     time.Duration
	pollInterval      time.Duration
}

func defaultOptions() options {
	return options{
		oscillatorTimeout: DefaultOscillatorTimeout,
		wakeupTimeout:     DefaultWakeupTimeout,
		resumeTimeout:     DefaultResumeTimeout,
		pollInterval:      DefaultPollInterval,
	}
}

// WithOscillatorTimeout bounds the wait for the controller's oscillator
// after chip reset.
func WithOscillatorTimeout(d time.Duration) Option {
	return func(o *options) { o.oscillatorTimeout = d }
}

// WithWakeupTimeout bounds the wait for remote-wakeup signaling to finish.
func WithWakeupTimeout(d time.Duration) Option {
	return func(o *options) { o.wakeupTimeout = d }
}

// WithResumeTimeout bounds the wait for host bus activity after remote
// wakeup.
func WithResumeTimeout(d time.Duration) Option {
	return func(o *options) { o.resumeTimeout = d }
}

// WithPollInterval sets the idle delay of Run and of bounded register waits.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// Controller is the firmware main loop: it owns the transport, services the
// controller's interrupt requests, and dispatches control transfers.
type Controller struct {
	t           hal.Transport
	descriptors *Descriptors
	vendor      VendorHandler
	handler     *StandardRequestHandler
	link        *LinkPower
	state       ConfigState
	opts        options

	running atomic.Bool

	setupBuf [SetupPacketSize]byte
}

// NewController creates a controller over t. vendor may be nil, in which
// case every vendor request stalls.
func NewController(t hal.Transport, descriptors *Descriptors, vendor VendorHandler, opts ...Option) *Controller {
	c := &Controller{
		t:           t,
		descriptors: descriptors,
		vendor:      vendor,
		opts:        defaultOptions(),
	}
	for _, opt := range opts {
		opt(&c.opts)
	}
	c.handler = NewStandardRequestHandler(descriptors, &c.state)
	c.link = newLinkPower(t, &c.opts)
	return c
}

// Link returns the link power state machine.
func (c *Controller) Link() *LinkPower {
	return c.link
}

// Config returns a copy of the negotiated configuration state.
func (c *Controller) Config() ConfigState {
	return c.state
}

// State returns the USB device state.
func (c *Controller) State() State {
	if c.link.Suspended() {
		return StateSuspended
	}
	return c.state.State()
}

// RequestWakeup latches a remote-wakeup request. Safe for concurrent use.
func (c *Controller) RequestWakeup() {
	c.link.RequestWakeup()
}

// Init brings the controller chip up: pin configuration, chip reset with a
// bounded wait for the oscillator, GPIO outputs off, bus connect, interrupt
// enables, and finally the INT pin.
func (c *Controller) Init(ctx context.Context) error {
	c.state.Reset()
	c.link.reset()

	if err := c.t.WriteRegister(hal.RegPINCTL, hal.BitFDUPSPI|hal.BitPOSINT|hal.GPXSOF); err != nil {
		return err
	}
	if err := c.resetChip(ctx); err != nil {
		return err
	}
	if rev, err := c.t.ReadRegister(hal.RegREVISION); err == nil {
		pkg.LogInfo(pkg.ComponentController, "controller ready", "revision", rev)
	}
	if err := c.t.WriteRegister(hal.RegGPIO, 0); err != nil {
		return err
	}
	if err := c.t.WriteRegister(hal.RegUSBCTL, hal.BitCONNECT|hal.BitVBGATE); err != nil {
		return err
	}
	if err := c.enableIRQs(); err != nil {
		return err
	}
	return c.t.WriteRegister(hal.RegCPUCTL, hal.BitIE)
}

func (c *Controller) resetChip(ctx context.Context) error {
	if err := c.t.WriteRegister(hal.RegUSBCTL, hal.BitCHIPRES); err != nil {
		return err
	}
	if err := c.t.WriteRegister(hal.RegUSBCTL, 0); err != nil {
		return err
	}
	return waitFor(ctx, c.t, hal.RegUSBIRQ, hal.BitOSCOK,
		c.opts.oscillatorTimeout, c.opts.pollInterval, "oscillator start")
}

// enableIRQs arms SETUP, IN3-buffer and bus-reset interrupts, plus suspend
// once configured.
func (c *Controller) enableIRQs() error {
	if err := c.t.WriteRegister(hal.RegEPIEN, hal.BitSUDAV|hal.BitIN3BAV); err != nil {
		return err
	}
	usb := byte(hal.BitURES | hal.BitURESDN)
	if c.state.Configured() {
		usb |= hal.BitSUSP
	}
	return c.t.WriteRegister(hal.RegUSBIEN, usb)
}

// Poll runs one iteration of the main loop: a resume check while suspended,
// then one service pass if the INT line is asserted.
func (c *Controller) Poll(ctx context.Context) error {
	if c.link.Suspended() {
		resumed, err := c.link.CheckResume(ctx, c.state.RemoteWakeup)
		if err != nil {
			return err
		}
		if r, ok := c.vendor.(ResumeHandler); ok && resumed {
			r.HostResumed()
		}
	}
	pending, err := c.t.InterruptPending()
	if err != nil || !pending {
		return err
	}
	return c.ServiceIRQs(ctx)
}

// Run calls Poll until ctx ends. Timeouts from resume handling are logged
// and the loop continues; transport errors end it.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return pkg.ErrAlreadyRunning
	}
	defer c.running.Store(false)

	pkg.LogDebug(pkg.ComponentController, "controller loop started")
	defer pkg.LogDebug(pkg.ComponentController, "controller loop stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.Poll(ctx)
		switch {
		case err == nil:
		case errors.Is(err, pkg.ErrTimeout):
			pkg.LogWarn(pkg.ComponentController, "bounded wait expired", "error", err)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return err
		}
		if err := sleep(ctx, c.opts.pollInterval); err != nil {
			return err
		}
	}
}

// ServiceIRQs handles every pending interrupt request in priority order:
// SETUP, VBUS loss, IN3 buffer, suspend, bus reset, bus reset done.
func (c *Controller) ServiceIRQs(ctx context.Context) error {
	epirq, err := c.t.ReadRegister(hal.RegEPIRQ)
	if err != nil {
		return err
	}
	usbirq, err := c.t.ReadRegister(hal.RegUSBIRQ)
	if err != nil {
		return err
	}

	if epirq&hal.BitSUDAV != 0 {
		if err := c.t.WriteRegister(hal.RegEPIRQ, hal.BitSUDAV); err != nil {
			return err
		}
		if err := c.dispatch(ctx); err != nil {
			return err
		}
	}
	if usbirq&hal.BitNOVBUS != 0 {
		if err := c.t.WriteRegister(hal.RegUSBIRQ, hal.BitNOVBUS); err != nil {
			return err
		}
		pkg.LogWarn(pkg.ComponentController, "bus power lost")
	}
	// IN3BAV needs no action: sample packets are loaded on request.
	if c.state.Configured() && usbirq&hal.BitSUSP != 0 {
		if err := c.link.suspend(); err != nil {
			return err
		}
	}
	if usbirq&hal.BitURES != 0 {
		if err := c.t.WriteRegister(hal.RegUSBIRQ, hal.BitURES); err != nil {
			return err
		}
		pkg.LogDebug(pkg.ComponentController, "bus reset")
	}
	if usbirq&hal.BitURESDN != 0 {
		if err := c.t.WriteRegister(hal.RegUSBIRQ, hal.BitURESDN); err != nil {
			return err
		}
		c.state.Reset()
		c.link.reset()
		if err := c.enableIRQs(); err != nil {
			return err
		}
		pkg.LogInfo(pkg.ComponentController, "bus reset complete")
	}
	return nil
}

// dispatch reads the SETUP packet and routes it on request type.
func (c *Controller) dispatch(ctx context.Context) error {
	if err := c.t.ReadBytes(hal.RegSUDFIFO, c.setupBuf[:]); err != nil {
		return err
	}
	var setup SetupPacket
	if err := ParseSetupPacket(c.setupBuf[:], &setup); err != nil {
		return err
	}
	pkg.LogDebug(pkg.ComponentDispatch, "setup received", "request", setup.String())

	p := newPipe(c.t)
	var err error
	switch setup.Type() {
	case RequestTypeStandard:
		err = c.handler.HandleSetup(p, &setup)
	case RequestTypeVendor:
		if c.vendor == nil {
			err = stall(&setup, "no vendor handler")
		} else {
			err = c.vendor.HandleVendor(ctx, p, &setup)
		}
	default:
		err = stall(&setup, "class and reserved requests unsupported")
	}

	switch {
	case errors.Is(err, pkg.ErrStall):
		pkg.LogDebug(pkg.ComponentDispatch, "stalling EP0", "reason", err)
		if p.Acked() || p.Stalled() {
			return nil
		}
		return p.Stall()
	case err != nil:
		return err
	case !p.Acked() && !p.Stalled():
		return p.Ack()
	}
	return nil
}
