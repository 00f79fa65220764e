package device

import (
	"fmt"

	"github.com/ardnew/eisusb/device/hal"
	"github.com/ardnew/eisusb/pkg"
)

// Pipe is the control endpoint as seen by a request handler for the
// duration of one control transfer. It tracks the status stage so that a
// transfer is acknowledged at most once and never both acknowledged and
// stalled.
type Pipe struct {
	t       hal.Transport
	acked   bool
	stalled bool
}

func newPipe(t hal.Transport) *Pipe {
	return &Pipe{t: t}
}

// Transport returns the underlying register transport.
func (p *Pipe) Transport() hal.Transport {
	return p.t
}

// Acked reports whether the status stage has been acknowledged.
func (p *Pipe) Acked() bool {
	return p.acked
}

// Stalled reports whether EP0 has been stalled.
func (p *Pipe) Stalled() bool {
	return p.stalled
}

func (p *Pipe) complete() error {
	if p.acked || p.stalled {
		return fmt.Errorf("status stage already completed: %w", pkg.ErrInvalidState)
	}
	p.acked = true
	return nil
}

// OutLength returns the byte count of the EP0-OUT data stage.
func (p *Pipe) OutLength() (int, error) {
	n, err := p.t.ReadRegister(hal.RegEP0BC)
	return int(n), err
}

// Read drains len(buf) bytes of the OUT data stage without completing the
// transfer.
func (p *Pipe) Read(buf []byte) error {
	return p.t.ReadBytes(hal.RegEP0FIFO, buf)
}

// ReadAck drains len(buf) bytes of the OUT data stage, reading the final
// byte with the acknowledging access, then clears the OUT0DAV request.
// An empty buf only acknowledges.
func (p *Pipe) ReadAck(buf []byte) error {
	if len(buf) == 0 {
		return p.AckOut()
	}
	if err := p.complete(); err != nil {
		return err
	}
	last := len(buf) - 1
	if err := p.t.ReadBytes(hal.RegEP0FIFO, buf[:last]); err != nil {
		return err
	}
	b, err := p.t.ReadRegisterAck(hal.RegEP0FIFO)
	if err != nil {
		return err
	}
	buf[last] = b
	return p.t.WriteRegister(hal.RegEPIRQ, hal.BitOUT0DAV)
}

// Ack acknowledges a transfer with no data stage (or whose data stage the
// handler will not read) with a dummy acknowledging read.
func (p *Pipe) Ack() error {
	if err := p.complete(); err != nil {
		return err
	}
	_, err := p.t.ReadRegisterAck(hal.RegFNADDR)
	return err
}

// AckOut acknowledges the transfer while clearing the OUT0DAV request,
// releasing any unread OUT data.
func (p *Pipe) AckOut() error {
	if err := p.complete(); err != nil {
		return err
	}
	return p.t.WriteRegisterAck(hal.RegEPIRQ, hal.BitOUT0DAV)
}

// Write loads data into the EP0 FIFO, truncated to length (the host's
// wLength), and arms it with an acknowledging byte-count write.
func (p *Pipe) Write(data []byte, length uint16) error {
	n := min(len(data), int(length), hal.FIFOSize)
	if err := p.complete(); err != nil {
		return err
	}
	if err := p.t.WriteBytes(hal.RegEP0FIFO, data[:n]); err != nil {
		return err
	}
	return p.t.WriteRegisterAck(hal.RegEP0BC, byte(n))
}

// Stall stalls every stage of EP0. The controller clears the stall on the
// next SETUP.
func (p *Pipe) Stall() error {
	if p.acked {
		return fmt.Errorf("stall after acknowledge: %w", pkg.ErrInvalidState)
	}
	p.stalled = true
	return p.t.WriteRegister(hal.RegEPSTALLS, hal.StallEP0)
}

// WriteData loads one packet into the EP3-IN FIFO and arms it. The host
// collects it with an interrupt IN transfer.
func (p *Pipe) WriteData(data []byte) error {
	if len(data) > hal.FIFOSize {
		return fmt.Errorf("%d-byte packet: %w", len(data), pkg.ErrBufferTooSmall)
	}
	if err := p.t.WriteBytes(hal.RegEP3INFIFO, data); err != nil {
		return err
	}
	return p.t.WriteRegister(hal.RegEP3INBC, byte(len(data)))
}

// WriteStallsAck writes the stall register with ACKSTAT set, updating
// endpoint stall bits and completing the status stage in one access.
func (p *Pipe) WriteStallsAck(value byte) error {
	if err := p.complete(); err != nil {
		return err
	}
	return p.t.WriteRegister(hal.RegEPSTALLS, value|hal.BitACKSTAT)
}
