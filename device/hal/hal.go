package hal

// Transport is the register-level capability the firmware core needs from the
// serial link to the USB controller.
//
// Implementations settle the link after every transaction as the physical
// interface requires. None of the methods are safe for concurrent use; the
// controller loop is the single owner.
type Transport interface {
	// WriteRegister writes one byte to reg.
	WriteRegister(reg Register, value byte) error

	// WriteRegisterAck writes one byte to reg and sets the ACKSTAT bit,
	// completing the status stage of the current control transfer.
	WriteRegisterAck(reg Register, value byte) error

	// ReadRegister reads one byte from reg.
	ReadRegister(reg Register) (byte, error)

	// ReadRegisterAck reads one byte from reg and sets the ACKSTAT bit.
	ReadRegisterAck(reg Register) (byte, error)

	// ReadBytes fills buf with successive reads of reg (a FIFO register).
	ReadBytes(reg Register, buf []byte) error

	// WriteBytes writes data to reg (a FIFO register) one byte at a time.
	WriteBytes(reg Register, data []byte) error

	// InterruptPending reports whether the controller's INT line is asserted.
	InterruptPending() (bool, error)
}

// Command returns the serial command byte addressing reg.
func Command(reg Register, write, ack bool) byte {
	cmd := byte(reg) << 3
	if write {
		cmd |= commandWrite
	}
	if ack {
		cmd |= commandAckStat
	}
	return cmd
}

// ParseCommand splits a serial command byte into its register and flags.
func ParseCommand(cmd byte) (reg Register, write, ack bool) {
	return Register(cmd >> 3), cmd&commandWrite != 0, cmd&commandAckStat != 0
}

// Command byte flag bits.
const (
	commandWrite   = 0x02
	commandAckStat = 0x01
)

// SetBits performs a read-modify-write that sets mask in reg.
func SetBits(t Transport, reg Register, mask byte) error {
	v, err := t.ReadRegister(reg)
	if err != nil {
		return err
	}
	return t.WriteRegister(reg, v|mask)
}

// ClearBits performs a read-modify-write that clears mask in reg.
func ClearBits(t Transport, reg Register, mask byte) error {
	v, err := t.ReadRegister(reg)
	if err != nil {
		return err
	}
	return t.WriteRegister(reg, v&^mask)
}
