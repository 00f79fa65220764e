package periph

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"

	"github.com/ardnew/eisusb/device/hal"
)

// Level is an input line whose level can be sampled.
type Level interface {
	Read() gpio.Level
}

// Transport implements [hal.Transport] over a full-duplex SPI connection.
// Each register access is one transaction: the command byte followed by the
// data bytes.
type Transport struct {
	c      conn.Conn
	irq    Level
	settle time.Duration

	w, r [1 + hal.FIFOSize]byte
}

var _ hal.Transport = (*Transport)(nil)

// New returns a transport over c. irq is the controller's INT line, active
// high; when nil, interrupt state is polled from the interrupt registers.
// settle is a delay after every transaction.
func New(c conn.Conn, irq Level, settle time.Duration) *Transport {
	return &Transport{c: c, irq: irq, settle: settle}
}

func (t *Transport) tx(n int) error {
	err := t.c.Tx(t.w[:n], t.r[:n])
	if t.settle > 0 {
		time.Sleep(t.settle)
	}
	if err != nil {
		return fmt.Errorf("spi transaction 0x%02X: %w", t.w[0], err)
	}
	return nil
}

func (t *Transport) write(reg hal.Register, value byte, ack bool) error {
	t.w[0] = hal.Command(reg, true, ack)
	t.w[1] = value
	return t.tx(2)
}

func (t *Transport) read(reg hal.Register, ack bool) (byte, error) {
	t.w[0] = hal.Command(reg, false, ack)
	t.w[1] = 0
	if err := t.tx(2); err != nil {
		return 0, err
	}
	return t.r[1], nil
}

// WriteRegister implements [hal.Transport].
func (t *Transport) WriteRegister(reg hal.Register, value byte) error {
	return t.write(reg, value, false)
}

// WriteRegisterAck implements [hal.Transport].
func (t *Transport) WriteRegisterAck(reg hal.Register, value byte) error {
	return t.write(reg, value, true)
}

// ReadRegister implements [hal.Transport].
func (t *Transport) ReadRegister(reg hal.Register) (byte, error) {
	return t.read(reg, false)
}

// ReadRegisterAck implements [hal.Transport].
func (t *Transport) ReadRegisterAck(reg hal.Register) (byte, error) {
	return t.read(reg, true)
}

// ReadBytes implements [hal.Transport]. Reads longer than one FIFO are split
// into several transactions.
func (t *Transport) ReadBytes(reg hal.Register, buf []byte) error {
	for len(buf) > 0 {
		n := min(len(buf), hal.FIFOSize)
		t.w[0] = hal.Command(reg, false, false)
		clear(t.w[1 : n+1])
		if err := t.tx(n + 1); err != nil {
			return err
		}
		copy(buf, t.r[1:n+1])
		buf = buf[n:]
	}
	return nil
}

// WriteBytes implements [hal.Transport].
func (t *Transport) WriteBytes(reg hal.Register, data []byte) error {
	for len(data) > 0 {
		n := min(len(data), hal.FIFOSize)
		t.w[0] = hal.Command(reg, true, false)
		copy(t.w[1:], data[:n])
		if err := t.tx(n + 1); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// InterruptPending implements [hal.Transport].
func (t *Transport) InterruptPending() (bool, error) {
	if t.irq != nil {
		return t.irq.Read() == gpio.High, nil
	}

	var regs [5]byte
	for i, reg := range []hal.Register{hal.RegCPUCTL, hal.RegEPIRQ, hal.RegEPIEN, hal.RegUSBIRQ, hal.RegUSBIEN} {
		v, err := t.read(reg, false)
		if err != nil {
			return false, err
		}
		regs[i] = v
	}
	if regs[0]&hal.BitIE == 0 {
		return false, nil
	}
	return regs[1]&regs[2] != 0 || regs[3]&regs[4] != 0, nil
}
