package host

import (
	"time"

	"github.com/ardnew/eisusb/device"
	"github.com/ardnew/eisusb/device/class/eis"
)

// Vendor request types used by the EIS protocol.
const (
	RequestTypeVendorOut  = device.RequestDirectionHostToDevice | device.RequestTypeVendor | device.RequestRecipientDevice
	RequestTypeVendorIn   = device.RequestDirectionDeviceToHost | device.RequestTypeVendor | device.RequestRecipientDevice
	RequestTypeStandardIn = device.RequestDirectionDeviceToHost | device.RequestTypeStandard | device.RequestRecipientDevice
)

// Client defaults.
const (
	DefaultTimeout      = 5 * time.Second
	DefaultPollInterval = 10 * time.Millisecond
)

// maxCode is the largest resume code a DATA_TRANSFER request can carry:
// the code is split across the low bytes of wValue and wIndex.
const maxCode = 2 * 0xFF

// maxChunks bounds the packets of one frequency's buffer.
const maxChunks = 2*eis.MaxData/eis.ChunkSamples + 1
