package eis

import (
	"fmt"
	"math/bits"

	"github.com/ardnew/eisusb/pkg"
)

// Params are the session parameters carried by an INITIATE_EIS command.
//
// Wire layout (7 bytes):
//
//	0..2  frequency selection mask, big-endian, 24 bits
//	3..4  excitation amplitude, big-endian
//	5     samples exponent (high nibble) | periods (low nibble)
//	6     current ranging
type Params struct {
	Frequencies     uint32 // Bit i selects frequency i
	Amplitude       uint16
	SamplesExponent uint8 // 4 bits
	Periods         uint8 // 4 bits
	CurrentRanging  uint8
}

// ParseStartCommand decodes a start command into out.
func ParseStartCommand(data []byte, out *Params) error {
	if len(data) != StartCommandSize {
		return fmt.Errorf("start command of %d bytes: %w", len(data), pkg.ErrInvalidParameter)
	}
	out.Frequencies = uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
	out.Amplitude = uint16(data[3])<<8 | uint16(data[4])
	out.SamplesExponent = data[5] >> 4
	out.Periods = data[5] & 0x0F
	out.CurrentRanging = data[6]
	return nil
}

// MarshalTo encodes p as a start command into buf.
// Returns the number of bytes written (always 7 if buf is large enough).
func (p *Params) MarshalTo(buf []byte) int {
	if len(buf) < StartCommandSize {
		return 0
	}
	buf[0] = byte(p.Frequencies >> 16)
	buf[1] = byte(p.Frequencies >> 8)
	buf[2] = byte(p.Frequencies)
	buf[3] = byte(p.Amplitude >> 8)
	buf[4] = byte(p.Amplitude)
	buf[5] = p.SamplesExponent<<4 | p.Periods&0x0F
	buf[6] = p.CurrentRanging
	return StartCommandSize
}

// FrequencyCount returns the number of selected frequencies.
func (p *Params) FrequencyCount() int {
	return bits.OnesCount32(p.Frequencies & (1<<MaxFrequencies - 1))
}

// SampleCount returns the per-channel sample count n = 2^exponent * periods.
func (p *Params) SampleCount() int {
	return (1 << (p.SamplesExponent & 0x0F)) * int(p.Periods&0x0F)
}

// Check reports the error code a session with p would fail with, or
// ErrorNone if p describes a runnable session.
func (p *Params) Check() ErrorCode {
	if p.FrequencyCount() == 0 {
		return ErrorNoFrequency
	}
	if n := p.SampleCount(); n == 0 || n > MaxData {
		return ErrorOther
	}
	return ErrorNone
}

// String returns a compact description of p.
func (p *Params) String() string {
	return fmt.Sprintf("freqs=0x%06X (%d) amplitude=%d n=%d (2^%d*%d) ranging=0x%02X",
		p.Frequencies, p.FrequencyCount(), p.Amplitude, p.SampleCount(),
		p.SamplesExponent, p.Periods, p.CurrentRanging)
}
