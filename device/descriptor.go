package device

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/ardnew/eisusb/pkg"
)

// USB Descriptor Types (USB 2.0 Spec Table 9-5, HID 1.11 Section 7.1).
const (
	DescriptorTypeDevice        = 0x01
	DescriptorTypeConfiguration = 0x02
	DescriptorTypeString        = 0x03
	DescriptorTypeInterface     = 0x04
	DescriptorTypeEndpoint      = 0x05
	DescriptorTypeHID           = 0x21
	DescriptorTypeHIDReport     = 0x22
)

// USB Class Codes.
const (
	ClassPerInterface = 0x00 // Class defined at interface level
	ClassHID          = 0x03 // Human Interface Device
	ClassVendor       = 0xFF // Vendor Specific
)

// Endpoint attribute transfer types.
const (
	EndpointTypeControl   = 0x00
	EndpointTypeInterrupt = 0x03
)

// DeviceDescriptor represents a USB device descriptor (18 bytes).
type DeviceDescriptor struct {
	USBVersion        uint16 // USB specification version (BCD)
	DeviceClass       uint8  // Class code
	DeviceSubClass    uint8  // Subclass code
	DeviceProtocol    uint8  // Protocol code
	MaxPacketSize0    uint8  // Max packet size for EP0
	VendorID          uint16 // Vendor ID
	ProductID         uint16 // Product ID
	DeviceVersion     uint16 // Device release number (BCD)
	ManufacturerIndex uint8  // Index of manufacturer string
	ProductIndex      uint8  // Index of product string
	SerialNumberIndex uint8  // Index of serial number string
	NumConfigurations uint8  // Number of configurations
}

// DeviceDescriptorSize is the size of a device descriptor in bytes.
const DeviceDescriptorSize = 18

// MarshalTo serializes the device descriptor to buf.
// Returns the number of bytes written (always 18 if buf is large enough).
func (d *DeviceDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < DeviceDescriptorSize {
		return 0
	}
	buf[0] = DeviceDescriptorSize
	buf[1] = DescriptorTypeDevice
	binary.LittleEndian.PutUint16(buf[2:4], d.USBVersion)
	buf[4] = d.DeviceClass
	buf[5] = d.DeviceSubClass
	buf[6] = d.DeviceProtocol
	buf[7] = d.MaxPacketSize0
	binary.LittleEndian.PutUint16(buf[8:10], d.VendorID)
	binary.LittleEndian.PutUint16(buf[10:12], d.ProductID)
	binary.LittleEndian.PutUint16(buf[12:14], d.DeviceVersion)
	buf[14] = d.ManufacturerIndex
	buf[15] = d.ProductIndex
	buf[16] = d.SerialNumberIndex
	buf[17] = d.NumConfigurations
	return DeviceDescriptorSize
}

// ParseDeviceDescriptor parses a device descriptor from bytes into out.
// Returns an error if the data is too short or the descriptor type is wrong.
func ParseDeviceDescriptor(data []byte, out *DeviceDescriptor) error {
	if len(data) < DeviceDescriptorSize {
		return pkg.ErrDescriptorTooShort
	}
	if data[1] != DescriptorTypeDevice {
		return pkg.ErrDescriptorTypeMismatch
	}
	out.USBVersion = binary.LittleEndian.Uint16(data[2:4])
	out.DeviceClass = data[4]
	out.DeviceSubClass = data[5]
	out.DeviceProtocol = data[6]
	out.MaxPacketSize0 = data[7]
	out.VendorID = binary.LittleEndian.Uint16(data[8:10])
	out.ProductID = binary.LittleEndian.Uint16(data[10:12])
	out.DeviceVersion = binary.LittleEndian.Uint16(data[12:14])
	out.ManufacturerIndex = data[14]
	out.ProductIndex = data[15]
	out.SerialNumberIndex = data[16]
	out.NumConfigurations = data[17]
	return nil
}

// ConfigurationDescriptor represents a USB configuration descriptor header
// (9 bytes).
type ConfigurationDescriptor struct {
	TotalLength        uint16 // Total length of configuration data
	NumInterfaces      uint8  // Number of interfaces
	ConfigurationValue uint8  // Configuration value for SET_CONFIGURATION
	ConfigurationIndex uint8  // Index of string descriptor
	Attributes         uint8  // Configuration attributes
	MaxPower           uint8  // Maximum power consumption (2mA units)
}

// Configuration attribute bits.
const (
	ConfigAttrBusPowered   = 0x80 // Bus-powered (required)
	ConfigAttrSelfPowered  = 0x40 // Self-powered
	ConfigAttrRemoteWakeup = 0x20 // Remote wakeup capable
)

// ConfigurationDescriptorSize is the size of a configuration descriptor in bytes.
const ConfigurationDescriptorSize = 9

// MarshalTo serializes the configuration descriptor to buf.
func (c *ConfigurationDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < ConfigurationDescriptorSize {
		return 0
	}
	buf[0] = ConfigurationDescriptorSize
	buf[1] = DescriptorTypeConfiguration
	binary.LittleEndian.PutUint16(buf[2:4], c.TotalLength)
	buf[4] = c.NumInterfaces
	buf[5] = c.ConfigurationValue
	buf[6] = c.ConfigurationIndex
	buf[7] = c.Attributes
	buf[8] = c.MaxPower
	return ConfigurationDescriptorSize
}

// ParseConfigurationDescriptor parses a configuration descriptor header into out.
func ParseConfigurationDescriptor(data []byte, out *ConfigurationDescriptor) error {
	if len(data) < ConfigurationDescriptorSize {
		return pkg.ErrDescriptorTooShort
	}
	if data[1] != DescriptorTypeConfiguration {
		return pkg.ErrDescriptorTypeMismatch
	}
	out.TotalLength = binary.LittleEndian.Uint16(data[2:4])
	out.NumInterfaces = data[4]
	out.ConfigurationValue = data[5]
	out.ConfigurationIndex = data[6]
	out.Attributes = data[7]
	out.MaxPower = data[8]
	return nil
}

// InterfaceDescriptor represents a USB interface descriptor (9 bytes).
type InterfaceDescriptor struct {
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8 // Excluding EP0
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8 // Index of string descriptor
}

// InterfaceDescriptorSize is the size of an interface descriptor in bytes.
const InterfaceDescriptorSize = 9

// MarshalTo serializes the interface descriptor to buf.
func (i *InterfaceDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < InterfaceDescriptorSize {
		return 0
	}
	buf[0] = InterfaceDescriptorSize
	buf[1] = DescriptorTypeInterface
	buf[2] = i.InterfaceNumber
	buf[3] = i.AlternateSetting
	buf[4] = i.NumEndpoints
	buf[5] = i.InterfaceClass
	buf[6] = i.InterfaceSubClass
	buf[7] = i.InterfaceProtocol
	buf[8] = i.InterfaceIndex
	return InterfaceDescriptorSize
}

// HIDDescriptor represents a HID class descriptor with a single report
// descriptor entry (9 bytes).
type HIDDescriptor struct {
	HIDVersion    uint16 // HID specification release (BCD)
	CountryCode   uint8
	ReportDescLen uint16 // Size of the report descriptor
}

// HIDDescriptorSize is the size of a HID class descriptor in bytes.
const HIDDescriptorSize = 9

// MarshalTo serializes the HID descriptor to buf.
func (h *HIDDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < HIDDescriptorSize {
		return 0
	}
	buf[0] = HIDDescriptorSize
	buf[1] = DescriptorTypeHID
	binary.LittleEndian.PutUint16(buf[2:4], h.HIDVersion)
	buf[4] = h.CountryCode
	buf[5] = 1
	buf[6] = DescriptorTypeHIDReport
	binary.LittleEndian.PutUint16(buf[7:9], h.ReportDescLen)
	return HIDDescriptorSize
}

// EndpointDescriptor represents a USB endpoint descriptor (7 bytes).
type EndpointDescriptor struct {
	EndpointAddress uint8  // Endpoint address (including direction)
	Attributes      uint8  // Transfer type
	MaxPacketSize   uint16 // Maximum packet size
	Interval        uint8  // Polling interval in frames
}

// EndpointDescriptorSize is the size of an endpoint descriptor in bytes.
const EndpointDescriptorSize = 7

// MarshalTo serializes the endpoint descriptor to buf.
func (e *EndpointDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < EndpointDescriptorSize {
		return 0
	}
	buf[0] = EndpointDescriptorSize
	buf[1] = DescriptorTypeEndpoint
	buf[2] = e.EndpointAddress
	buf[3] = e.Attributes
	binary.LittleEndian.PutUint16(buf[4:6], e.MaxPacketSize)
	buf[6] = e.Interval
	return EndpointDescriptorSize
}

// StringDescriptorSize returns the bLength of the string descriptor for s.
func StringDescriptorSize(s string) int {
	return 2 + 2*len(stringUnits(s))
}

// stringUnits returns the UTF-16 code units of s that fit one descriptor.
// A surrogate pair is never split by the cut.
func stringUnits(s string) []uint16 {
	units := utf16.Encode([]rune(s))
	if limit := (255 - 2) / 2; len(units) > limit {
		units = units[:limit]
		if u := units[limit-1]; u >= 0xD800 && u < 0xDC00 {
			units = units[:limit-1]
		}
	}
	return units
}

// StringDescriptorTo writes a USB string descriptor to buf, encoding s as
// UTF-16LE. Returns the number of bytes written, or 0 if buf is too small.
func StringDescriptorTo(buf []byte, s string) int {
	units := stringUnits(s)
	length := 2 + len(units)*2
	if len(buf) < length {
		return 0
	}
	buf[0] = uint8(length)
	buf[1] = DescriptorTypeString
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[2+i*2:], u)
	}
	return length
}

// LanguageDescriptorTo writes the language ID table (string descriptor 0)
// to buf. Returns the number of bytes written, or 0 if buf is too small.
func LanguageDescriptorTo(buf []byte, langIDs ...uint16) int {
	length := 2 + len(langIDs)*2
	if len(buf) < length {
		return 0
	}
	buf[0] = uint8(length)
	buf[1] = DescriptorTypeString
	for i, id := range langIDs {
		binary.LittleEndian.PutUint16(buf[2+i*2:], id)
	}
	return length
}

// LangIDUSEnglish is the language ID for US English.
const LangIDUSEnglish = 0x0409

// Descriptors is the read-only descriptor set served by GET_DESCRIPTOR.
// Every entry fits in a single EP0 packet.
type Descriptors struct {
	device        []byte
	configuration []byte
	hid           []byte
	report        []byte
	strings       [MaxStrings][]byte
	numStrings    int
}

type descriptorCheck struct {
	name string
	data []byte
	min  int
}

// NewDescriptors validates and stores a descriptor set. The configuration
// blob must carry a HID class descriptor when report is non-empty; it is
// located by walking the configuration's sub-descriptors. strings[0] is the
// language table.
func NewDescriptors(device, configuration, report []byte, strings ...[]byte) (*Descriptors, error) {
	if len(strings) > MaxStrings {
		return nil, fmt.Errorf("%d string descriptors: %w", len(strings), pkg.ErrOutOfRange)
	}
	d := &Descriptors{
		device:        device,
		configuration: configuration,
		report:        report,
		numStrings:    len(strings),
	}
	copy(d.strings[:], strings)

	check := []descriptorCheck{
		{"device", device, DeviceDescriptorSize},
		{"configuration", configuration, ConfigurationDescriptorSize},
		{"report", report, 0},
	}
	for i, s := range strings {
		check = append(check, descriptorCheck{fmt.Sprintf("string %d", i), s, 2})
	}
	for _, c := range check {
		if len(c.data) < c.min {
			return nil, fmt.Errorf("%s descriptor: %w", c.name, pkg.ErrDescriptorTooShort)
		}
		if len(c.data) > MaxDescriptorSize {
			return nil, fmt.Errorf("%s descriptor (%d bytes): %w", c.name, len(c.data), pkg.ErrDescriptorTooLong)
		}
	}

	if binary.LittleEndian.Uint16(configuration[2:4]) != uint16(len(configuration)) {
		return nil, fmt.Errorf("configuration total length mismatch: %w", pkg.ErrInvalidParameter)
	}
	for off := 0; off+1 < len(configuration); {
		n := int(configuration[off])
		if n < 2 || off+n > len(configuration) {
			return nil, fmt.Errorf("configuration sub-descriptor at %d: %w", off, pkg.ErrDescriptorTooShort)
		}
		if configuration[off+1] == DescriptorTypeHID {
			d.hid = configuration[off : off+n]
		}
		off += n
	}
	if len(report) > 0 && d.hid == nil {
		return nil, fmt.Errorf("report descriptor without HID descriptor: %w", pkg.ErrInvalidParameter)
	}
	return d, nil
}

// Lookup returns the descriptor selected by a GET_DESCRIPTOR wValue pair.
// It returns false for unknown types or string indices out of range.
func (d *Descriptors) Lookup(descType, index uint8) ([]byte, bool) {
	switch descType {
	case DescriptorTypeDevice:
		return d.device, true
	case DescriptorTypeConfiguration:
		return d.configuration, true
	case DescriptorTypeString:
		if int(index) >= d.numStrings {
			return nil, false
		}
		return d.strings[index], true
	case DescriptorTypeHID:
		return d.hid, d.hid != nil
	case DescriptorTypeHIDReport:
		return d.report, len(d.report) > 0
	}
	return nil, false
}

// Attributes returns the configuration descriptor's bmAttributes.
func (d *Descriptors) Attributes() uint8 {
	return d.configuration[7]
}

// SelfPowered reports whether the configuration advertises self power.
func (d *Descriptors) SelfPowered() bool {
	return d.Attributes()&ConfigAttrSelfPowered != 0
}

// IdentityConfig names the device for the default descriptor set.
type IdentityConfig struct {
	VendorID     uint16
	ProductID    uint16
	Version      uint16
	Manufacturer string
	Product      string
	SerialNumber string
}

// Default identity values.
const (
	DefaultVendorID  = 0x0B6A
	DefaultProductID = 0x5346
)

// reportDescriptor declares one vendor-defined 64-byte input report, the
// shape of the sample packets on EP3-IN.
var reportDescriptor = []byte{
	0x06, 0x00, 0xFF, // Usage Page (Vendor Defined 0xFF00)
	0x09, 0x01,       // Usage (0x01)
	0xA1, 0x01,       // Collection (Application)
	0x15, 0x00,       //   Logical Minimum (0)
	0x26, 0xFF, 0x00, //   Logical Maximum (255)
	0x75, 0x08,       //   Report Size (8)
	0x95, 0x40,       //   Report Count (64)
	0x09, 0x01,       //   Usage (0x01)
	0x81, 0x02,       //   Input (Data, Var, Abs)
	0xC0,             // End Collection
}

// DefaultDescriptors builds the device's descriptor set: one configuration
// with one HID-class interface whose only endpoint is the 64-byte interrupt
// IN endpoint EP3-IN. Remote wakeup is advertised.
func DefaultDescriptors(id IdentityConfig) (*Descriptors, error) {
	var dev [DeviceDescriptorSize]byte
	(&DeviceDescriptor{
		USBVersion:        0x0200,
		DeviceClass:       ClassPerInterface,
		MaxPacketSize0:    MaxPacketSize0,
		VendorID:          id.VendorID,
		ProductID:         id.ProductID,
		DeviceVersion:     id.Version,
		ManufacturerIndex: 1,
		ProductIndex:      2,
		SerialNumberIndex: 3,
		NumConfigurations: 1,
	}).MarshalTo(dev[:])

	const total = ConfigurationDescriptorSize + InterfaceDescriptorSize +
		HIDDescriptorSize + EndpointDescriptorSize
	cfg := make([]byte, total)
	off := (&ConfigurationDescriptor{
		TotalLength:        total,
		NumInterfaces:      1,
		ConfigurationValue: ConfigurationValue,
		Attributes:         ConfigAttrBusPowered | ConfigAttrRemoteWakeup,
		MaxPower:           50,
	}).MarshalTo(cfg)
	off += (&InterfaceDescriptor{
		NumEndpoints:   1,
		InterfaceClass: ClassHID,
	}).MarshalTo(cfg[off:])
	off += (&HIDDescriptor{
		HIDVersion:    0x0110,
		ReportDescLen: uint16(len(reportDescriptor)),
	}).MarshalTo(cfg[off:])
	(&EndpointDescriptor{
		EndpointAddress: EndpointDataIn,
		Attributes:      EndpointTypeInterrupt,
		MaxPacketSize:   MaxPacketSize0,
		Interval:        10,
	}).MarshalTo(cfg[off:])

	var lang [4]byte
	LanguageDescriptorTo(lang[:], LangIDUSEnglish)

	strs := [][]byte{lang[:]}
	for _, s := range []string{id.Manufacturer, id.Product, id.SerialNumber} {
		buf := make([]byte, StringDescriptorSize(s))
		n := StringDescriptorTo(buf, s)
		strs = append(strs, buf[:n])
	}
	return NewDescriptors(dev[:], cfg, reportDescriptor, strs...)
}
