package sim

import (
	"github.com/ardnew/eisusb/device/hal"
)

// Setup begins a control transfer: the 8-byte SETUP packet lands in the
// SETUP FIFO, out is made available as the EP0-OUT data stage, and SUDAV is
// raised. Any transfer in progress is abandoned.
func (c *Chip) Setup(setup [8]byte, out []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.sud[:], setup[:])
	c.sudLen, c.sudRead = len(setup), 0
	c.ep0Out = append([]byte(nil), out...)
	c.ep0OutCount = len(out)
	c.ep0In = nil
	c.transfer = Transfer{}
	c.regs[hal.RegEPSTALLS] &^= hal.StallEP0
	c.regs[hal.RegEPIRQ] |= hal.BitSUDAV | hal.BitIN0BAV
	if len(out) > 0 {
		c.regs[hal.RegEPIRQ] |= hal.BitOUT0DAV
	}
}

// Transfer returns the device-side outcome of the current control transfer.
func (c *Chip) Transfer() Transfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.transfer
	t.In = append([]byte(nil), c.transfer.In...)
	return t
}

// BusReset signals a complete USB bus reset: both URES and URESDN are raised.
// Like the real part, the reset clears every interrupt enable except the
// bus-reset pair.
func (c *Chip) BusReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[hal.RegEPIEN] = 0
	c.regs[hal.RegUSBIEN] &= hal.BitURES | hal.BitURESDN
	c.regs[hal.RegEPSTALLS] = 0
	c.regs[hal.RegFNADDR] = 0
	c.regs[hal.RegUSBIRQ] |= hal.BitURES | hal.BitURESDN
	c.ep3In, c.ep3Packets = nil, nil
	c.regs[hal.RegEPIRQ] |= hal.BitIN3BAV
}

// Suspend signals that the bus has been idle long enough to suspend.
func (c *Chip) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[hal.RegUSBIRQ] |= hal.BitSUSP
}

// BusActivity signals renewed bus traffic from the host.
func (c *Chip) BusActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[hal.RegUSBIRQ] |= hal.BitBUSACT
}

// DisconnectVBus signals loss of bus power.
func (c *Chip) DisconnectVBus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[hal.RegUSBIRQ] = c.regs[hal.RegUSBIRQ]&^hal.BitVBUS | hal.BitNOVBUS
}

// SetAddress latches a function address as the serial interface engine does
// during the SET_ADDRESS status stage.
func (c *Chip) SetAddress(addr byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[hal.RegFNADDR] = addr & 0x7F
}

// ReadEP3 takes the oldest packet loaded into the EP3-IN FIFO, as an IN token
// from the host would. It returns false if none is armed.
func (c *Chip) ReadEP3() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.ep3Packets) == 0 {
		return nil, false
	}
	if c.regs[hal.RegEPSTALLS]&hal.BitSTLEP3IN != 0 {
		return nil, false
	}
	p := c.ep3Packets[0]
	c.ep3Packets = c.ep3Packets[1:]
	if len(c.ep3Packets) == 0 {
		c.regs[hal.RegEPIRQ] |= hal.BitIN3BAV
	}
	return p, true
}

// PendingEP3 returns the number of armed EP3-IN packets.
func (c *Chip) PendingEP3() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ep3Packets)
}

// Register returns the raw value of reg without side effects.
func (c *Chip) Register(reg hal.Register) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(reg) >= len(c.regs) {
		return 0
	}
	return c.regs[reg]
}

// ToggleClears returns how many times the EP3-IN data toggle was reset.
func (c *Chip) ToggleClears() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toggleClears
}

// Wakeups returns how many times remote-wakeup signaling was asserted.
func (c *Chip) Wakeups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wakeups
}

// Pending reports whether the INT line is asserted.
func (c *Chip) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending()
}
