package sim

import (
	"sync"

	"github.com/ardnew/eisusb/device/hal"
)

// Revision is the silicon revision reported by the model.
const Revision = 0x13

// Transfer is the device-side outcome of one control transfer as observed by
// the chip: how many status-stage acknowledgements it received, whether EP0
// was stalled, and the IN data armed on EP0.
type Transfer struct {
	Acks    int
	Stalled bool
	In      []byte
}

// Done reports whether the device has either acknowledged or stalled the
// transfer.
func (t *Transfer) Done() bool {
	return t.Acks > 0 || t.Stalled
}

// Chip is an in-memory model of the USB peripheral controller. It implements
// [hal.Transport] for the firmware side and exposes host-side operations
// (SETUP injection, bus reset, suspend, EP3-IN reads) for the test or
// simulation driving it.
//
// Chip is safe for concurrent use.
type Chip struct {
	mu sync.Mutex

	regs [hal.NumRegisters]byte

	sud     [hal.FIFOSize]byte
	sudLen  int
	sudRead int

	ep0Out      []byte
	ep0OutCount int
	ep0In       []byte

	ep3In      []byte
	ep3Packets [][]byte

	transfer     Transfer
	toggleClears int
	wakeups      int
	resuming     bool

	// OscillatorFault keeps OSCOK from ever asserting after a chip reset.
	OscillatorFault bool
	// WakeupFault keeps RWUDN from asserting after SIGRWU.
	WakeupFault bool
	// HostIgnoresWakeup keeps the host from resuming bus activity after a
	// remote-wakeup signal.
	HostIgnoresWakeup bool
}

// New returns a powered chip with its oscillator already stable.
func New() *Chip {
	c := &Chip{}
	c.regs[hal.RegUSBIRQ] = hal.BitOSCOK | hal.BitVBUS
	c.regs[hal.RegREVISION] = Revision
	c.regs[hal.RegEPIRQ] = hal.BitIN3BAV | hal.BitIN2BAV | hal.BitIN0BAV
	return c
}

var _ hal.Transport = (*Chip)(nil)

// WriteRegister implements [hal.Transport].
func (c *Chip) WriteRegister(reg hal.Register, value byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.write(reg, value)
	return nil
}

// WriteRegisterAck implements [hal.Transport].
func (c *Chip) WriteRegisterAck(reg hal.Register, value byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.write(reg, value)
	c.transfer.Acks++
	return nil
}

// ReadRegister implements [hal.Transport].
func (c *Chip) ReadRegister(reg hal.Register) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(reg), nil
}

// ReadRegisterAck implements [hal.Transport].
func (c *Chip) ReadRegisterAck(reg hal.Register) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.read(reg)
	c.transfer.Acks++
	return v, nil
}

// ReadBytes implements [hal.Transport].
func (c *Chip) ReadBytes(reg hal.Register, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range buf {
		buf[i] = c.read(reg)
	}
	return nil
}

// WriteBytes implements [hal.Transport].
func (c *Chip) WriteBytes(reg hal.Register, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range data {
		c.write(reg, b)
	}
	return nil
}

// InterruptPending implements [hal.Transport]. The line follows the enabled
// interrupt requests and is gated by CPUCTL.IE.
func (c *Chip) InterruptPending() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending(), nil
}

func (c *Chip) pending() bool {
	if c.regs[hal.RegCPUCTL]&hal.BitIE == 0 {
		return false
	}
	return c.regs[hal.RegEPIRQ]&c.regs[hal.RegEPIEN] != 0 ||
		c.regs[hal.RegUSBIRQ]&c.regs[hal.RegUSBIEN] != 0
}

func (c *Chip) read(reg hal.Register) byte {
	switch reg {
	case hal.RegEP0FIFO:
		if len(c.ep0Out) == 0 {
			return 0
		}
		b := c.ep0Out[0]
		c.ep0Out = c.ep0Out[1:]
		return b
	case hal.RegSUDFIFO:
		if c.sudRead >= c.sudLen {
			return 0
		}
		b := c.sud[c.sudRead]
		c.sudRead++
		return b
	case hal.RegEP0BC:
		return byte(c.ep0OutCount)
	}
	if int(reg) >= len(c.regs) {
		return 0
	}
	return c.regs[reg]
}

func (c *Chip) write(reg hal.Register, value byte) {
	switch reg {
	case hal.RegEP0FIFO:
		if len(c.ep0In) < hal.FIFOSize {
			c.ep0In = append(c.ep0In, value)
		}
	case hal.RegEP3INFIFO:
		if len(c.ep3In) < hal.FIFOSize {
			c.ep3In = append(c.ep3In, value)
		}
	case hal.RegEP0BC:
		n := min(int(value), len(c.ep0In))
		c.transfer.In = append([]byte(nil), c.ep0In[:n]...)
		c.ep0In = nil
		c.regs[hal.RegEPIRQ] &^= hal.BitIN0BAV
	case hal.RegEP3INBC:
		n := min(int(value), len(c.ep3In))
		c.ep3Packets = append(c.ep3Packets, append([]byte(nil), c.ep3In[:n]...))
		c.ep3In = nil
		c.regs[hal.RegEPIRQ] &^= hal.BitIN3BAV
	case hal.RegEPSTALLS:
		if value&hal.BitACKSTAT != 0 {
			c.transfer.Acks++
		}
		if value&hal.StallEP0 != 0 {
			c.transfer.Stalled = true
		}
		c.regs[reg] = value &^ hal.BitACKSTAT
	case hal.RegCLRTOGS:
		if value&hal.BitCTGEP3IN != 0 {
			c.toggleClears++
		}
		c.regs[reg] = value &^ (hal.BitCTGEP3IN | hal.BitCTGEP2IN | hal.BitCTGEP1OUT)
	case hal.RegEPIRQ:
		c.regs[reg] &^= value
	case hal.RegUSBIRQ:
		c.regs[reg] &^= value
		if value&hal.BitBUSACT != 0 && c.resuming && !c.HostIgnoresWakeup {
			c.resuming = false
			c.regs[reg] |= hal.BitBUSACT
		}
	case hal.RegUSBCTL:
		c.writeUSBCTL(value)
	case hal.RegREVISION:
	default:
		if int(reg) < len(c.regs) {
			c.regs[reg] = value
		}
	}
}

func (c *Chip) writeUSBCTL(value byte) {
	prev := c.regs[hal.RegUSBCTL]
	c.regs[hal.RegUSBCTL] = value
	switch {
	case value&hal.BitCHIPRES != 0:
		c.reset()
		c.regs[hal.RegUSBCTL] = value
	case prev&hal.BitCHIPRES != 0 && !c.OscillatorFault:
		c.regs[hal.RegUSBIRQ] |= hal.BitOSCOK
	}
	if value&hal.BitSIGRWU != 0 && prev&hal.BitSIGRWU == 0 {
		c.wakeups++
		if !c.WakeupFault {
			c.regs[hal.RegUSBIRQ] |= hal.BitRWUDN
			c.resuming = true
		}
	}
}

// reset models CHIPRES: every register except pin control, the revision and
// the VBUS comparator returns to its power-on value.
func (c *Chip) reset() {
	vbus := c.regs[hal.RegUSBIRQ] & hal.BitVBUS
	pinctl := c.regs[hal.RegPINCTL]
	c.regs = [hal.NumRegisters]byte{}
	c.regs[hal.RegPINCTL] = pinctl
	c.regs[hal.RegREVISION] = Revision
	c.regs[hal.RegUSBIRQ] = vbus
	c.regs[hal.RegEPIRQ] = hal.BitIN3BAV | hal.BitIN2BAV | hal.BitIN0BAV
	c.ep0In, c.ep0Out, c.ep3In = nil, nil, nil
	c.ep3Packets = nil
	c.sudLen, c.sudRead = 0, 0
}
