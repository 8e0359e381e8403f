package model

import (
	"math"
)

// MaxBrightness is the largest value of the 5-bit brightness field.
const MaxBrightness uint8 = 31

// DefaultBrightness is the brightness level a freshly allocated pixel starts at.
const DefaultBrightness uint8 = 7

const (
	BRIGHTNESS_OFFSET uint8 = 0x18
	BLUE_OFFSET       uint8 = 0x10
	GREEN_OFFSET      uint8 = 0x08
	RED_OFFSET        uint8 = 0x0
)

// Pixel is the state of one APA102/SK9822 driver IC, packed as
// brightness|blue|green|red.
type Pixel struct {
	val uint32
}

func NewPixel(r, g, b, level uint8) Pixel {
	var p Pixel
	p.SetRGB(r, g, b)
	p.setLevel(level)
	return p
}

// BrightnessLevel maps a 0.0-1.0 brightness onto the 5-bit hardware field.
// Values outside the range are clamped; NaN counts as 0.
func BrightnessLevel(b float64) uint8 {
	if math.IsNaN(b) {
		return 0
	}
	return uint8(math.Round(clamp(b, 0, 1) * float64(MaxBrightness)))
}

func setcolor(c uint32, n uint8, off uint8) uint32 {
	var val uint32 = uint32(n) << off
	var mask uint32 = 0xFF << off
	return (c & (^mask)) | val
}

func getcolor(c uint32, off uint8) uint8 {
	var mask uint32 = 0xFF << off
	return uint8((c & (mask)) >> off)
}

func (p *Pixel) SetRGB(r, g, b uint8) {
	p.val = setcolor(p.val, r, RED_OFFSET)
	p.val = setcolor(p.val, g, GREEN_OFFSET)
	p.val = setcolor(p.val, b, BLUE_OFFSET)
}

// SetBrightness stores b (0.0-1.0, clamped) as a 5-bit level.
func (p *Pixel) SetBrightness(b float64) {
	p.setLevel(BrightnessLevel(b))
}

func (p *Pixel) SetRGBB(r, g, b uint8, brightness float64) {
	p.SetRGB(r, g, b)
	p.SetBrightness(brightness)
}

func (p *Pixel) setLevel(level uint8) {
	if level > MaxBrightness {
		level = MaxBrightness
	}
	p.val = setcolor(p.val, level, BRIGHTNESS_OFFSET)
}

func (p Pixel) GetR() uint8 {
	return getcolor(p.val, RED_OFFSET)
}
func (p Pixel) GetG() uint8 {
	return getcolor(p.val, GREEN_OFFSET)
}
func (p Pixel) GetB() uint8 {
	return getcolor(p.val, BLUE_OFFSET)
}

// GetBrightness returns the raw 5-bit level, 0-31.
func (p Pixel) GetBrightness() uint8 {
	return getcolor(p.val, BRIGHTNESS_OFFSET)
}

// Brightness returns the level scaled back to 0.0-1.0.
func (p Pixel) Brightness() float64 {
	return float64(p.GetBrightness()) / float64(MaxBrightness)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
