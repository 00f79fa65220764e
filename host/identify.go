package host

import (
	"context"
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/ardnew/eisusb/device"
	"github.com/ardnew/eisusb/pkg"
)

// Identity describes an attached instrument.
type Identity struct {
	Device        device.DeviceDescriptor
	Configuration device.ConfigurationDescriptor
	Manufacturer  string
	Product       string
	SerialNumber  string
}

// Identify reads the device and configuration descriptors and the strings
// they name.
func (c *Client) Identify(ctx context.Context) (*Identity, error) {
	var (
		id  Identity
		buf [device.MaxDescriptorSize]byte
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, err := c.getDescriptor(device.DescriptorTypeDevice, 0, 0, buf[:device.DeviceDescriptorSize])
	if err != nil {
		return nil, fmt.Errorf("device descriptor: %w", err)
	}
	if err := device.ParseDeviceDescriptor(buf[:n], &id.Device); err != nil {
		return nil, fmt.Errorf("device descriptor: %w", err)
	}
	pkg.LogDebug(pkg.ComponentHost, "device descriptor",
		"vendorID", id.Device.VendorID,
		"productID", id.Device.ProductID)

	n, err = c.getDescriptor(device.DescriptorTypeConfiguration, 0, 0, buf[:device.ConfigurationDescriptorSize])
	if err != nil {
		return nil, fmt.Errorf("configuration descriptor: %w", err)
	}
	if err := device.ParseConfigurationDescriptor(buf[:n], &id.Configuration); err != nil {
		return nil, fmt.Errorf("configuration descriptor: %w", err)
	}

	for _, s := range []struct {
		index uint8
		out   *string
	}{
		{id.Device.ManufacturerIndex, &id.Manufacturer},
		{id.Device.ProductIndex, &id.Product},
		{id.Device.SerialNumberIndex, &id.SerialNumber},
	} {
		if s.index == 0 {
			continue
		}
		str, err := c.readString(s.index, buf[:])
		if err != nil {
			// Non-fatal, continue without the string
			pkg.LogDebug(pkg.ComponentHost, "string descriptor read failed", "index", s.index, "error", err)
			continue
		}
		*s.out = str
	}
	return &id, nil
}

func (c *Client) getDescriptor(descType, index uint8, lang uint16, buf []byte) (int, error) {
	var setup device.SetupPacket
	device.GetDescriptorSetup(&setup, descType, index, lang, uint16(len(buf)))
	return c.control(&setup, buf)
}

func (c *Client) readString(index uint8, buf []byte) (string, error) {
	n, err := c.getDescriptor(device.DescriptorTypeString, index, device.LangIDUSEnglish, buf)
	if err != nil {
		return "", err
	}
	if n < 2 || buf[1] != device.DescriptorTypeString {
		return "", pkg.ErrDescriptorTypeMismatch
	}
	length := min(int(buf[0]), n)
	if length < 2 {
		return "", pkg.ErrDescriptorTooShort
	}
	units := make([]uint16, 0, (length-2)/2)
	for i := 2; i+1 < length; i += 2 {
		units = append(units, binary.LittleEndian.Uint16(buf[i:]))
	}
	return string(utf16.Decode(units)), nil
}
