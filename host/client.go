package host

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"time"

	"github.com/ardnew/eisusb/device"
	"github.com/ardnew/eisusb/device/class/eis"
	"github.com/ardnew/eisusb/pkg"
)

// Device is the host's view of an attached instrument: control transfers on
// EP0 and packet reads from the sample endpoint. [*USBDevice] and
// [github.com/ardnew/eisusb/device/hal/sim.Bus] implement it.
type Device interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
	ReadData(ctx context.Context, buf []byte) (int, error)
}

// DeviceError is a session error reported by the instrument.
type DeviceError struct {
	Code eis.ErrorCode
}

// Error implements error.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error %s (0x%02X)", e.Code, uint8(e.Code))
}

// Report is a decoded UPDATE_EIS reply.
type Report struct {
	Status         eis.Status
	Error          eis.ErrorCode // Valid when Status is StatusError
	CurrentRanging uint8         // Valid when Status is StatusSign
	Battery        float32       // Valid when Status is StatusSign
}

// Err returns the reported session error, or nil.
func (r *Report) Err() error {
	if r.Status != eis.StatusError {
		return nil
	}
	return &DeviceError{Code: r.Error}
}

// ParseReport decodes an UPDATE_EIS reply into out.
func ParseReport(data []byte, out *Report) error {
	if len(data) < 2 {
		return fmt.Errorf("%d-byte status reply: %w", len(data), pkg.ErrProtocol)
	}
	*out = Report{Status: eis.Status(data[0])}
	switch out.Status {
	case eis.StatusError:
		out.Error = eis.ErrorCode(data[1])
	case eis.StatusSign:
		if len(data) < eis.StatusReplySize {
			return fmt.Errorf("%d-byte signature reply: %w", len(data), pkg.ErrProtocol)
		}
		out.CurrentRanging = data[1]
		out.Battery = math.Float32frombits(binary.LittleEndian.Uint32(data[2:]))
	}
	return nil
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each wait for a device status.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPollInterval sets the delay between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// Client drives the EIS vendor protocol on a Device.
type Client struct {
	dev          Device
	timeout      time.Duration
	pollInterval time.Duration

	reply  [eis.StatusReplySize]byte
	packet [eis.PacketSize]byte
}

// NewClient creates a client for dev.
func NewClient(dev Device, opts ...Option) *Client {
	c := &Client{
		dev:          dev,
		timeout:      DefaultTimeout,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// control issues setup on EP0 with data as its data stage.
func (c *Client) control(setup *device.SetupPacket, data []byte) (int, error) {
	return c.dev.Control(setup.RequestType, setup.Request, setup.Value, setup.Index, data[:setup.Length])
}

func (c *Client) vendor(direction, request uint8, value, index uint16, data []byte) (int, error) {
	var setup device.SetupPacket
	device.VendorSetup(&setup, direction, request, value, index, uint16(len(data)))
	return c.control(&setup, data)
}

// Start sends INITIATE_EIS with params.
func (c *Client) Start(ctx context.Context, params eis.Params) error {
	var cmd [eis.StartCommandSize]byte
	params.MarshalTo(cmd[:])
	if _, err := c.vendor(device.RequestDirectionHostToDevice, eis.RequestInitiate, 0, 0, cmd[:]); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	pkg.LogInfo(pkg.ComponentHost, "session started", "params", params.String())
	return nil
}

// Status polls UPDATE_EIS once. A poll while the device is busy and waiting
// for samples makes it acquire them.
func (c *Client) Status(ctx context.Context) (Report, error) {
	var r Report
	if err := ctx.Err(); err != nil {
		return r, err
	}
	n, err := c.vendor(device.RequestDirectionDeviceToHost, eis.RequestUpdate, 0, 0, c.reply[:])
	if err != nil {
		return r, fmt.Errorf("update: %w", err)
	}
	if err := ParseReport(c.reply[:n], &r); err != nil {
		return r, err
	}
	pkg.LogDebug(pkg.ComponentHost, "status", "status", r.Status, "error", r.Error)
	return r, nil
}

// Abort sends INITIATE_ABORT_EIS.
func (c *Client) Abort(ctx context.Context) error {
	if _, err := c.vendor(device.RequestDirectionHostToDevice, eis.RequestAbort, 0, 0, nil); err != nil {
		return fmt.Errorf("abort: %w", err)
	}
	return nil
}

// Clear sends CLEAR_EIS_ERR.
func (c *Client) Clear(ctx context.Context) (eis.Status, error) {
	n, err := c.vendor(device.RequestDirectionDeviceToHost, eis.RequestClearError, 0, 0, c.reply[:2])
	if err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}
	if n < 1 {
		return 0, fmt.Errorf("empty clear reply: %w", pkg.ErrProtocol)
	}
	return eis.Status(c.reply[0]), nil
}

// WaitFor polls the device until it reports want. An error report fails
// with *DeviceError; the wait is bounded by the client timeout.
func (c *Client) WaitFor(ctx context.Context, want eis.Status) (Report, error) {
	deadline := time.Now().Add(c.timeout)
	for {
		r, err := c.Status(ctx)
		if err != nil {
			return r, err
		}
		if err := r.Err(); err != nil {
			return r, err
		}
		if r.Status == want {
			return r, nil
		}
		if time.Now().After(deadline) {
			return r, &pkg.TimeoutError{Op: "wait for " + want.String(), After: c.timeout}
		}
		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return r, ctx.Err()
		case <-timer.C:
		}
	}
}

// requestChunk sends DATA_TRANSFER for the chunk at code of the given
// frequency.
func (c *Client) requestChunk(code, frequency int) error {
	if code < 0 || code > maxCode {
		return fmt.Errorf("resume code %d: %w", code, pkg.ErrOutOfRange)
	}
	vl := min(code, 0xFF)
	sel := [1]byte{byte(frequency)}
	_, err := c.vendor(device.RequestDirectionHostToDevice, eis.RequestDataTransfer, uint16(vl), uint16(code-vl), sel[:])
	return err
}

// Fetch transfers the sample buffer of frequency, which the device must
// have available, and returns the voltage and current channels.
func (c *Client) Fetch(ctx context.Context, frequency int) ([]float32, []float32, error) {
	if frequency < 0 || frequency >= eis.MaxFrequencies {
		return nil, nil, fmt.Errorf("frequency index %d: %w", frequency, pkg.ErrOutOfRange)
	}

	var (
		samples []float32
		chunk   eis.Chunk
	)
	code := 0
	for range maxChunks {
		if err := c.requestChunk(code, frequency); err != nil {
			return nil, nil, fmt.Errorf("data transfer: %w", err)
		}
		n, err := c.dev.ReadData(ctx, c.packet[:])
		if err != nil {
			return nil, nil, c.explain(ctx, fmt.Errorf("read sample packet: %w", err))
		}
		if err := eis.ParsePacket(c.packet[:n], &chunk); err != nil {
			return nil, nil, err
		}
		samples = append(samples, chunk.Samples...)
		if chunk.Finished {
			if len(samples)%2 != 0 {
				return nil, nil, fmt.Errorf("odd sample count %d: %w", len(samples), pkg.ErrProtocol)
			}
			half := len(samples) / 2
			pkg.LogDebug(pkg.ComponentHost, "frequency fetched", "frequency", frequency, "samples", half)
			return samples[:half:half], samples[half:], nil
		}
		if chunk.Code <= code {
			return nil, nil, fmt.Errorf("resume code %d after %d: %w", chunk.Code, code, pkg.ErrProtocol)
		}
		code = chunk.Code
	}
	return nil, nil, fmt.Errorf("no final packet after %d chunks: %w", maxChunks, pkg.ErrProtocol)
}

// explain replaces a failed packet read with the device's error record when
// the device holds one.
func (c *Client) explain(ctx context.Context, err error) error {
	r, serr := c.Status(ctx)
	if serr == nil {
		if derr := r.Err(); derr != nil {
			return errors.Join(derr, err)
		}
	}
	return err
}

// Sweep is the data of one frequency of a measurement.
type Sweep struct {
	Index   int // Position among the selected frequencies
	Bit     int // Bit of the selection mask
	Voltage []float32
	Current []float32
}

// Measurement is the result of a complete session.
type Measurement struct {
	Params         eis.Params
	Sweeps         []Sweep
	CurrentRanging uint8
	Battery        float32
}

// Run performs a complete session: start, then for each selected frequency
// wait for data and fetch it, then collect the signature.
func (c *Client) Run(ctx context.Context, params eis.Params) (*Measurement, error) {
	if code := params.Check(); code != eis.ErrorNone {
		return nil, &DeviceError{Code: code}
	}
	if err := c.Start(ctx, params); err != nil {
		return nil, err
	}

	m := &Measurement{Params: params}
	selected := Selected(params.Frequencies)
	for i, bit := range selected {
		if _, err := c.WaitFor(ctx, eis.StatusDAV); err != nil {
			return m, fmt.Errorf("frequency %d: %w", i, err)
		}
		voltage, current, err := c.Fetch(ctx, i)
		if err != nil {
			return m, fmt.Errorf("frequency %d: %w", i, err)
		}
		m.Sweeps = append(m.Sweeps, Sweep{Index: i, Bit: bit, Voltage: voltage, Current: current})
	}

	r, err := c.WaitFor(ctx, eis.StatusSign)
	if err != nil {
		return m, fmt.Errorf("signature: %w", err)
	}
	m.CurrentRanging = r.CurrentRanging
	m.Battery = r.Battery
	pkg.LogInfo(pkg.ComponentHost, "measurement complete",
		"frequencies", len(m.Sweeps), "battery", m.Battery)
	return m, nil
}

// Selected returns the bit positions set in a frequency mask, lowest first.
func Selected(mask uint32) []int {
	mask &= 1<<eis.MaxFrequencies - 1
	out := make([]int, 0, bits.OnesCount32(mask))
	for mask != 0 {
		b := bits.TrailingZeros32(mask)
		out = append(out, b)
		mask &^= 1 << b
	}
	return out
}
