// Package apa102 encodes pixel state into the APA102/SK9822 wire format.
//
// A transmission is a start frame of 32 zero bits, one 32-bit frame per
// pixel and an end frame of extra clock pulses. Each pixel frame is a
// brightness byte (0b111 marker plus a 5-bit level) followed by blue, green
// and red.
//
// The end frame has to push the last pixel's data through every downstream
// shift register. Each IC delays the data by half a clock, so ceil(n/2)
// pulses are needed for n pixels; byte-oriented transports round that up to
// whole bytes.
//
// # Datasheets
//
// https://cdn-shop.adafruit.com/datasheets/APA102.pdf
//
// https://cdn-shop.adafruit.com/product-files/2343/SK9822_SHIJI.pdf
package apa102

import (
	"github.com/coreman2200/blinkt/model"
)

const (
	StartFrameLen = 4
	PixelFrameLen = 4

	// Marker occupies the top 3 bits of every brightness byte.
	Marker byte = 0xE0

	// LatchBits is the extra zero frame SK9822 needs before it latches,
	// since it only updates on the following start frame.
	LatchBits = 32
)

// EndFrameBits returns the number of end-frame clock pulses for n pixels.
func EndFrameBits(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 1) / 2
}

// EndFrameBytes returns EndFrameBits(n) rounded up to whole bytes.
func EndFrameBytes(n int) int {
	return bitsToBytes(EndFrameBits(n))
}

// FrameLen is the wire length in bytes for n pixels over a byte transport.
func FrameLen(n int) int {
	return StartFrameLen + n*PixelFrameLen + EndFrameBytes(n)
}

// PixelFrame returns the 4 bytes sent for one pixel.
func PixelFrame(p model.Pixel) [PixelFrameLen]byte {
	return [PixelFrameLen]byte{
		Marker | p.GetBrightness(),
		p.GetB(),
		p.GetG(),
		p.GetR(),
	}
}

// Frame is one encoded transmission. Data holds the start frame and the
// pixel frames; EndBits is the number of trailing clock pulses to send with
// the data line low. Latch asks for LatchBits more zero pulses after those.
type Frame struct {
	Data    []byte
	EndBits int
	Latch   bool
}

// TrailingBits is the total number of zero pulses after Data.
func (f Frame) TrailingBits() int {
	if f.Latch {
		return f.EndBits + LatchBits
	}
	return f.EndBits
}

// EndBytes is the number of zero bytes a byte transport appends.
func (f Frame) EndBytes() int {
	return bitsToBytes(f.TrailingBits())
}

// AppendWire appends the byte-transport form of f to dst.
func (f Frame) AppendWire(dst []byte) []byte {
	dst = append(dst, f.Data...)
	for i := 0; i < f.EndBytes(); i++ {
		dst = append(dst, 0)
	}
	return dst
}

// Bytes returns the byte-transport form of f.
func (f Frame) Bytes() []byte {
	return f.AppendWire(make([]byte, 0, len(f.Data)+f.EndBytes()))
}

// Encoder turns pixels into Frames, reusing its internal buffer. The Data of
// a returned Frame is only valid until the next Encode call.
type Encoder struct {
	// SK9822Latch sets Latch on every Frame.
	SK9822Latch bool

	buf []byte
}

// Encode builds the frame for pixels, in order.
func (e *Encoder) Encode(pixels []model.Pixel) Frame {
	n := len(pixels)
	size := StartFrameLen + n*PixelFrameLen
	if cap(e.buf) < size {
		e.buf = make([]byte, size)
	}
	buf := e.buf[:size]

	copy(buf[:StartFrameLen], []byte{0, 0, 0, 0})
	off := StartFrameLen
	for _, p := range pixels {
		pf := PixelFrame(p)
		copy(buf[off:off+PixelFrameLen], pf[:])
		off += PixelFrameLen
	}

	return Frame{Data: buf, EndBits: EndFrameBits(n), Latch: e.SK9822Latch}
}

func bitsToBytes(bits int) int {
	return (bits + 7) / 8
}
