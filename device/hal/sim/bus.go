package sim

import (
	"context"
	"fmt"

	"github.com/ardnew/eisusb/pkg"
)

// DefaultMaxPolls bounds how many service passes a transfer may take.
const DefaultMaxPolls = 16

// Bus plays the host side of the wire against a [Chip]. Every host operation
// is followed by calls to Service (normally the firmware controller's Poll)
// until the device has completed its part.
//
// Bus has the same Control signature as a gousb device, so host-side code
// can be exercised against simulated firmware.
type Bus struct {
	Chip     *Chip
	Service  func(ctx context.Context) error
	MaxPolls int
}

// NewBus returns a Bus driving chip with service.
func NewBus(chip *Chip, service func(ctx context.Context) error) *Bus {
	return &Bus{Chip: chip, Service: service, MaxPolls: DefaultMaxPolls}
}

func (b *Bus) maxPolls() int {
	if b.MaxPolls <= 0 {
		return DefaultMaxPolls
	}
	return b.MaxPolls
}

// Control performs a control transfer. For device-to-host requests data
// receives the IN stage and its length is wLength; otherwise data is the OUT
// stage. A stalled transfer returns [pkg.ErrStall].
func (b *Bus) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	return b.ControlContext(context.Background(), rType, request, val, idx, data)
}

// ControlContext is Control with a context for the service passes.
func (b *Bus) ControlContext(ctx context.Context, rType, request uint8, val, idx uint16, data []byte) (int, error) {
	var setup [8]byte
	setup[0] = rType
	setup[1] = request
	setup[2], setup[3] = byte(val), byte(val>>8)
	setup[4], setup[5] = byte(idx), byte(idx>>8)
	setup[6], setup[7] = byte(len(data)), byte(len(data)>>8)

	in := rType&0x80 != 0
	var out []byte
	if !in {
		out = data
	}
	b.Chip.Setup(setup, out)

	t, err := b.complete(ctx)
	if err != nil {
		return 0, err
	}
	if t.Stalled {
		return 0, pkg.ErrStall
	}
	if !in {
		if rType&0x60 == 0 && request == 0x05 {
			b.Chip.SetAddress(byte(val))
		}
		return len(data), nil
	}
	return copy(data, t.In), nil
}

func (b *Bus) complete(ctx context.Context) (Transfer, error) {
	for range b.maxPolls() {
		if err := b.Service(ctx); err != nil {
			return Transfer{}, err
		}
		if t := b.Chip.Transfer(); t.Done() {
			return t, nil
		}
	}
	return Transfer{}, fmt.Errorf("control transfer not completed after %d polls: %w", b.maxPolls(), pkg.ErrTimeout)
}

// ReadData reads one EP3-IN packet into buf, servicing the firmware until a
// packet is armed.
func (b *Bus) ReadData(ctx context.Context, buf []byte) (int, error) {
	for range b.maxPolls() {
		if p, ok := b.Chip.ReadEP3(); ok {
			return copy(buf, p), nil
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := b.Service(ctx); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("no EP3-IN packet after %d polls: %w", b.maxPolls(), pkg.ErrTimeout)
}
