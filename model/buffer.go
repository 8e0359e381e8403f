package model

import (
	"errors"
	"fmt"
	"iter"
)

// DefaultPixelCount matches the 8 pixels of a Blinkt! board.
const DefaultPixelCount = 8

// ErrIndexOutOfRange is returned for any pixel index outside the buffer.
var ErrIndexOutOfRange = errors.New("pixel index out of range")

// Buffer is a fixed-length, ordered set of pixels. Its length never changes
// after NewBuffer.
type Buffer struct {
	pixels []Pixel
}

// NewBuffer allocates n pixels, all off at the given 5-bit brightness level.
func NewBuffer(n int, level uint8) *Buffer {
	if n < 0 {
		n = 0
	}
	v := Buffer{
		pixels: make([]Pixel, n),
	}
	for i := range v.pixels {
		v.pixels[i] = NewPixel(0, 0, 0, level)
	}
	return &v
}

func (b *Buffer) Len() int {
	return len(b.pixels)
}

func (b *Buffer) at(i int) (*Pixel, error) {
	if i < 0 || i >= len(b.pixels) {
		return nil, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(b.pixels))
	}
	return &b.pixels[i], nil
}

// Pixel returns a copy of pixel i.
func (b *Buffer) Pixel(i int) (Pixel, error) {
	p, err := b.at(i)
	if err != nil {
		return Pixel{}, err
	}
	return *p, nil
}

// Pixels returns a snapshot of the whole buffer.
func (b *Buffer) Pixels() []Pixel {
	out := make([]Pixel, len(b.pixels))
	copy(out, b.pixels)
	return out
}

// Raw exposes the backing slice to encoders. Callers must not retain it.
func (b *Buffer) Raw() []Pixel {
	return b.pixels
}

// SetPixel sets the colour of pixel i and leaves its brightness alone.
func (b *Buffer) SetPixel(i int, r, g, bl uint8) error {
	p, err := b.at(i)
	if err != nil {
		return err
	}
	p.SetRGB(r, g, bl)
	return nil
}

func (b *Buffer) SetPixelRGBB(i int, r, g, bl uint8, brightness float64) error {
	p, err := b.at(i)
	if err != nil {
		return err
	}
	p.SetRGBB(r, g, bl, brightness)
	return nil
}

func (b *Buffer) SetPixelBrightness(i int, brightness float64) error {
	p, err := b.at(i)
	if err != nil {
		return err
	}
	p.SetBrightness(brightness)
	return nil
}

func (b *Buffer) SetAllPixels(r, g, bl uint8) {
	for i := range b.pixels {
		b.pixels[i].SetRGB(r, g, bl)
	}
}

func (b *Buffer) SetAllPixelsRGBB(r, g, bl uint8, brightness float64) {
	level := BrightnessLevel(brightness)
	for i := range b.pixels {
		b.pixels[i].SetRGB(r, g, bl)
		b.pixels[i].setLevel(level)
	}
}

func (b *Buffer) SetAllPixelsBrightness(brightness float64) {
	level := BrightnessLevel(brightness)
	for i := range b.pixels {
		b.pixels[i].setLevel(level)
	}
}

// Clear turns every pixel off without touching its brightness.
func (b *Buffer) Clear() {
	b.SetAllPixels(0, 0, 0)
}

// All yields every pixel in index order. Writes through the pointer land in
// the buffer straight away.
func (b *Buffer) All() iter.Seq2[int, *Pixel] {
	return func(yield func(int, *Pixel) bool) {
		for i := range b.pixels {
			if !yield(i, &b.pixels[i]) {
				return
			}
		}
	}
}
