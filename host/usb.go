package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/ardnew/eisusb/device"
	"github.com/ardnew/eisusb/pkg"
)

// USBDevice is an instrument opened through libusb.
type USBDevice struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	intf *gousb.Interface
	done func()
	in   *gousb.InEndpoint
}

var _ Device = (*USBDevice)(nil)

// OpenUSB opens the first instrument matching vid and pid, claims its
// interface and opens the sample endpoint.
func OpenUSB(vid, pid uint16, timeout time.Duration) (*USBDevice, error) {
	d := &USBDevice{ctx: gousb.NewContext()}

	var err error
	d.dev, err = d.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("open %04x:%04x: %w", vid, pid, err)
	}
	if d.dev == nil {
		d.Close()
		return nil, fmt.Errorf("open %04x:%04x: %w", vid, pid, pkg.ErrNoDevice)
	}
	if timeout > 0 {
		d.dev.ControlTimeout = timeout
	}
	if err := d.dev.SetAutoDetach(true); err != nil {
		pkg.LogDebug(pkg.ComponentHost, "auto detach unavailable", "error", err)
	}

	// The instrument's only interface is #0 alt #0 of configuration 1.
	d.intf, d.done, err = d.dev.DefaultInterface()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("claim interface: %w", err)
	}
	d.in, err = d.intf.InEndpoint(int(device.EndpointDataIn & 0x0F))
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("open sample endpoint: %w", err)
	}

	pkg.LogInfo(pkg.ComponentHost, "device opened",
		"vid", fmt.Sprintf("%04x", vid), "pid", fmt.Sprintf("%04x", pid))
	return d, nil
}

// Control implements [Device]. A stalled request returns [pkg.ErrStall].
func (d *USBDevice) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	n, err := d.dev.Control(rType, request, val, idx, data)
	if errors.Is(err, gousb.ErrorPipe) {
		return n, fmt.Errorf("control 0x%02X: %w", request, pkg.ErrStall)
	}
	return n, err
}

// ReadData implements [Device].
func (d *USBDevice) ReadData(ctx context.Context, buf []byte) (int, error) {
	n, err := d.in.ReadContext(ctx, buf)
	if errors.Is(err, gousb.TransferStall) {
		return n, fmt.Errorf("sample endpoint: %w", pkg.ErrStall)
	}
	return n, err
}

// Close releases the interface, the device and the libusb context.
func (d *USBDevice) Close() error {
	if d.done != nil {
		d.done()
		d.done = nil
	}
	d.intf = nil
	var err error
	if d.dev != nil {
		err = d.dev.Close()
		d.dev = nil
	}
	if d.ctx != nil {
		err = errors.Join(err, d.ctx.Close())
		d.ctx = nil
	}
	return err
}
