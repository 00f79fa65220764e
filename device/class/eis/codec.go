package eis

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ardnew/eisusb/pkg"
)

// SampleBuffer holds the two channels of one frequency's measurement. Only
// the first Len samples of each channel are meaningful.
type SampleBuffer struct {
	Voltage [MaxData]float32
	Current [MaxData]float32
	n       int
}

// Len returns the per-channel sample count.
func (b *SampleBuffer) Len() int {
	return b.n
}

// Load copies both channels into b. The channels must have equal length of
// at most MaxData.
func (b *SampleBuffer) Load(voltage, current []float32) error {
	if len(voltage) != len(current) {
		return fmt.Errorf("channel lengths %d and %d: %w", len(voltage), len(current), pkg.ErrInvalidParameter)
	}
	if len(voltage) > MaxData {
		return fmt.Errorf("%d samples per channel: %w", len(voltage), pkg.ErrBufferTooSmall)
	}
	b.n = copy(b.Voltage[:], voltage)
	copy(b.Current[:], current)
	return nil
}

// Reset discards the buffered samples.
func (b *SampleBuffer) Reset() {
	b.n = 0
}

// at returns the sample at flattened index f: voltage first, then current.
func (b *SampleBuffer) at(f int) float32 {
	if f < b.n {
		return b.Voltage[f]
	}
	return b.Current[f-b.n]
}

// Cursor is a flattened position into a SampleBuffer: index f addresses
// voltage sample f when f < n and current sample f-n otherwise.
type Cursor int

// CursorFromCode returns the position addressed by a wire resume code.
func CursorFromCode(code int) Cursor {
	return Cursor(code * ChunkSamples)
}

// Code returns the wire resume code of c.
func (c Cursor) Code() int {
	return int(c) / ChunkSamples
}

// EncodeChunk writes the packet starting at position start into out, which
// must hold PacketSize bytes. It returns the packet length, the position of
// the next chunk, and whether the buffer has been fully traversed.
//
// The resume field at offset 0 carries the next chunk's code, or Finished
// once the traversal is complete, as a little-endian float32.
func EncodeChunk(buf *SampleBuffer, start Cursor, out []byte) (int, Cursor, bool, error) {
	if len(out) < PacketSize {
		return 0, start, false, fmt.Errorf("%d-byte packet buffer: %w", len(out), pkg.ErrBufferTooSmall)
	}
	total := 2 * buf.Len()
	if start < 0 || int(start) >= total {
		return 0, start, false, fmt.Errorf("position %d of %d: %w", start, total, pkg.ErrOutOfRange)
	}

	f := int(start)
	n := CodeSize
	for ; f < total && n < PacketSize; f++ {
		binary.LittleEndian.PutUint32(out[n:], math.Float32bits(buf.at(f)))
		n += SampleSize
	}

	finished := f >= total
	code := float32(Finished)
	if !finished {
		code = float32(Cursor(f).Code())
	}
	binary.LittleEndian.PutUint32(out[:CodeSize], math.Float32bits(code))

	pkg.LogDebug(pkg.ComponentCodec, "chunk encoded",
		"start", int(start), "next", f, "bytes", n, "finished", finished)
	return n, Cursor(f), finished, nil
}

// Chunk is a decoded sample packet.
type Chunk struct {
	Code     int // Resume code of the next chunk, or Finished
	Finished bool
	Samples  []float32
}

// Next returns the position of the chunk that follows c.
func (c *Chunk) Next() Cursor {
	return CursorFromCode(c.Code)
}

// ParsePacket decodes a sample packet into out. out.Samples is reused.
func ParsePacket(data []byte, out *Chunk) error {
	if len(data) < CodeSize {
		return fmt.Errorf("%d-byte packet: %w", len(data), pkg.ErrProtocol)
	}
	if len(data) > PacketSize || (len(data)-CodeSize)%SampleSize != 0 {
		return fmt.Errorf("%d-byte packet is not a whole number of samples: %w", len(data), pkg.ErrProtocol)
	}

	code := math.Float32frombits(binary.LittleEndian.Uint32(data))
	if code != float32(math.Trunc(float64(code))) || code < Finished || code > 2*MaxData/ChunkSamples {
		return fmt.Errorf("resume code %v: %w", code, pkg.ErrProtocol)
	}
	out.Code = int(code)
	out.Finished = out.Code == Finished

	count := (len(data) - CodeSize) / SampleSize
	out.Samples = out.Samples[:0]
	for i := range count {
		off := CodeSize + i*SampleSize
		out.Samples = append(out.Samples, math.Float32frombits(binary.LittleEndian.Uint32(data[off:])))
	}
	return nil
}
