package eis

import "fmt"

// Vendor request codes (bRequest).
const (
	RequestInitiate     = 0x01 // INITIATE_EIS: 7-byte start command
	RequestAbort        = 0x02 // INITIATE_ABORT_EIS
	RequestDataTransfer = 0x03 // INITIATE_EIS_DATA_TRANSFER: one packet on EP3-IN
	RequestUpdate       = 0x04 // UPDATE_EIS: status poll
	RequestClearError   = 0x05 // CLEAR_EIS_ERR
)

// Buffer and wire geometry.
const (
	// MaxData is the capacity of each sample channel.
	MaxData = 2048

	// MaxFrequencies is the width of the frequency selection mask.
	MaxFrequencies = 24

	// StartCommandSize is the byte count of an INITIATE_EIS data stage.
	StartCommandSize = 7

	// PacketSize is the size of one EP3-IN packet.
	PacketSize = 64

	// CodeSize is the size of the resume field at the start of a packet.
	CodeSize = 4

	// SampleSize is the serialized size of one sample.
	SampleSize = 4

	// PayloadSize is the sample area of a packet.
	PayloadSize = PacketSize - CodeSize

	// ChunkSamples is the number of samples in a full packet.
	ChunkSamples = PayloadSize / SampleSize

	// Finished is the resume code of the last packet of a buffer.
	Finished = -1

	// StatusReplySize is the length of an UPDATE_EIS reply; only the SIGN
	// reply uses all of it.
	StatusReplySize = 6
)

// Status is the session status code reported by UPDATE_EIS.
type Status uint8

// Session status codes.
const (
	StatusReady Status = 0x00
	StatusTrans Status = 0xA0
	StatusBusy  Status = 0xB0
	StatusSign  Status = 0xC0
	StatusDAV   Status = 0xD0
	StatusError Status = 0xE0
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "READY"
	case StatusTrans:
		return "TRANS"
	case StatusBusy:
		return "BUSY"
	case StatusSign:
		return "SIGN"
	case StatusDAV:
		return "DAV"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("Status(0x%02X)", uint8(s))
	}
}

// ErrorCode is the session error record reported with StatusError.
type ErrorCode uint8

// Session error codes.
const (
	ErrorNone           ErrorCode = 0x00
	ErrorWrongNumBytes  ErrorCode = 0x08
	ErrorRead           ErrorCode = 0x09
	ErrorNoFrequency    ErrorCode = 0x0A
	ErrorBatteryVoltage ErrorCode = 0x0B
	ErrorOther          ErrorCode = 0x0C
)

// String returns the error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrorNone:
		return "NONE"
	case ErrorWrongNumBytes:
		return "WRONG_NUM_BYTES"
	case ErrorRead:
		return "READ_ERROR_CODE"
	case ErrorNoFrequency:
		return "NO_FREQ_SPEC"
	case ErrorBatteryVoltage:
		return "WRITE_BATT_VOLTAGE"
	case ErrorOther:
		return "OTHER"
	default:
		return fmt.Sprintf("ErrorCode(0x%02X)", uint8(c))
	}
}
