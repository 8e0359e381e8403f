package blinkt_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/spi/spitest"

	. "github.com/coreman2200/blinkt"
	"github.com/coreman2200/blinkt/apa102"
	"github.com/coreman2200/blinkt/model"
)

var errBoom = errors.New("boom")

// fakeTransport keeps every frame it is handed.
type fakeTransport struct {
	frames [][]byte
	err    error
	closed int
}

func (t *fakeTransport) String() string { return "fake" }

func (t *fakeTransport) Transmit(f apa102.Frame) error {
	if t.err != nil {
		return t.err
	}
	t.frames = append(t.frames, f.Bytes())
	return nil
}

func (t *fakeTransport) Close() error {
	t.closed++
	return nil
}

// levelPin samples the data pin on every rising edge of the clock pin.
type levelPin struct {
	*gpiotest.Pin
	bits  *[]gpio.Level
	data  *levelPin
	clock bool
}

func (p *levelPin) Out(l gpio.Level) error {
	if p.clock && l == gpio.High && p.Pin.Read() == gpio.Low {
		*p.bits = append(*p.bits, p.data.Read())
	}
	return p.Pin.Out(l)
}

func newBitBangStrip(t *testing.T, o *Opts) (*Strip, *[]gpio.Level, *levelPin) {
	bits := &[]gpio.Level{}
	data := &levelPin{Pin: &gpiotest.Pin{N: "DAT"}}
	clock := &levelPin{Pin: &gpiotest.Pin{N: "CLK", L: gpio.High}, bits: bits, data: data, clock: true}
	s, err := NewBitBang(data, clock, o)
	require.NoError(t, err)
	*bits = nil
	return s, bits, clock
}

func fill(t *testing.T, s *Strip) {
	for i := 0; i < s.PixelCount(); i++ {
		require.NoError(t, s.SetPixelRGBB(i, uint8(36*i), uint8(255-36*i), 0x42, float64(i)/float64(s.PixelCount())))
	}
}

func TestShowSPIFrame(t *testing.T) {
	buf := bytes.Buffer{}
	s, err := NewSPI(spitest.NewRecordRaw(&buf), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, s.PixelCount())
	assert.True(t, s.ClearOnRelease())

	require.NoError(t, s.SetPixelRGBB(0, 10, 20, 30, 1.0))
	require.NoError(t, s.Show())

	got := buf.Bytes()
	require.Len(t, got, 37)
	assert.Equal(t, []byte{0, 0, 0, 0}, got[:4])
	assert.Equal(t, []byte{0xFF, 0x1E, 0x14, 0x0A}, got[4:8])
	for i := 1; i < 8; i++ {
		assert.Equal(t, []byte{0xE0 | 7, 0, 0, 0}, got[4+4*i:8+4*i])
	}
	assert.Equal(t, byte(0), got[36])
}

func TestShowIsIdempotent(t *testing.T) {
	ft := &fakeTransport{}
	s, err := NewStrip(ft, nil)
	require.NoError(t, err)
	fill(t, s)
	before := s.Pixels()

	require.NoError(t, s.Show())
	require.NoError(t, s.Show())
	require.Len(t, ft.frames, 2)
	assert.Equal(t, ft.frames[0], ft.frames[1])
	assert.Equal(t, before, s.Pixels(), "Show must not touch the buffer")
}

func TestIndexOutOfRange(t *testing.T) {
	s, err := NewStrip(&fakeTransport{}, nil)
	require.NoError(t, err)
	before := s.Pixels()

	assert.ErrorIs(t, s.SetPixel(8, 1, 2, 3), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.SetPixelRGBB(8, 1, 2, 3, 1), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.SetPixelBrightness(-1, 1), ErrIndexOutOfRange)
	_, err = s.Pixel(42)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Equal(t, before, s.Pixels())
}

func TestCloseClearsAtLastBrightness(t *testing.T) {
	ft := &fakeTransport{}
	s, err := NewStrip(ft, nil)
	require.NoError(t, err)
	fill(t, s)
	require.NoError(t, s.Show())
	levels := make([]uint8, s.PixelCount())
	for i, p := range s.Pixels() {
		levels[i] = p.GetBrightness()
	}

	require.NoError(t, s.Close())
	require.Len(t, ft.frames, 2)
	last := ft.frames[1]
	for i := range levels {
		assert.Equal(t, []byte{apa102.Marker | levels[i], 0, 0, 0}, last[4+4*i:8+4*i])
	}
	assert.Equal(t, 1, ft.closed)

	assert.ErrorIs(t, s.Show(), ErrReleased)
	require.NoError(t, s.Close())
	assert.Equal(t, 1, ft.closed, "second Close is a no-op")
}

func TestCloseWithoutClear(t *testing.T) {
	ft := &fakeTransport{}
	s, err := NewStrip(ft, nil)
	require.NoError(t, err)
	s.SetClearOnRelease(false)
	assert.False(t, s.ClearOnRelease())

	require.NoError(t, s.Close())
	assert.Empty(t, ft.frames)
	assert.Equal(t, 1, ft.closed)
}

func TestCloseSwallowsTransmitFailure(t *testing.T) {
	ft := &fakeTransport{err: errBoom}
	s, err := NewStrip(ft, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Show(), errBoom)
	assert.NoError(t, s.Close())
	assert.Equal(t, 1, ft.closed, "pins are released even when the last frame failed")
}

func TestBitBangRestoresPinsOnClose(t *testing.T) {
	s, bits, clock := newBitBangStrip(t, nil)
	fill(t, s)
	require.NoError(t, s.Close())
	// blank frame with its latch, plus the rising edge of the clock going back high
	data := (4 + 4*8) * 8
	require.Len(t, *bits, data+apa102.EndFrameBits(8)+apa102.LatchBits+1)
	for i, b := range (*bits)[data:] {
		assert.Equal(t, gpio.Low, b, "trailing bit %d", i)
	}
	assert.Equal(t, gpio.High, clock.Read(), "clock put back to its original level")
}

func TestBitBangMatchesSPI(t *testing.T) {
	for _, n := range []int{1, 2, 7, 8, 30} {
		o := DefaultOpts
		o.NumPixels = n

		bb, bits, _ := newBitBangStrip(t, &o)
		buf := bytes.Buffer{}
		hw, err := NewSPI(spitest.NewRecordRaw(&buf), 0, &o)
		require.NoError(t, err)

		fill(t, bb)
		fill(t, hw)
		require.NoError(t, bb.Show())
		require.NoError(t, hw.Show())

		logical := 4 + 4*n
		packed := make([]byte, logical)
		for i, b := range (*bits)[:logical*8] {
			if b {
				packed[i/8] |= 1 << uint(7-i%8)
			}
		}
		assert.Equal(t, buf.Bytes()[:logical], packed, "n=%d", n)
		assert.Len(t, *bits, logical*8+apa102.EndFrameBits(n)+apa102.LatchBits, "bit-bang end frame is pulse exact and latched")
		assert.Len(t, buf.Bytes(), apa102.FrameLen(n), "spi end frame is byte padded")
	}
}

func TestSK9822Latch(t *testing.T) {
	o := DefaultOpts
	o.SK9822Latch = true
	buf := bytes.Buffer{}
	s, err := NewSPI(spitest.NewRecordRaw(&buf), 0, &o)
	require.NoError(t, err)
	require.NoError(t, s.Show())
	assert.Len(t, buf.Bytes(), 37+4)
}

func TestInvalidPixelCount(t *testing.T) {
	_, err := NewStrip(&fakeTransport{}, &Opts{NumPixels: 0})
	assert.Error(t, err)
}

func TestDefaultBrightness(t *testing.T) {
	o := DefaultOpts
	o.Brightness = 1
	s, err := NewStrip(&fakeTransport{}, &o)
	require.NoError(t, err)
	for _, p := range s.Pixels() {
		assert.Equal(t, model.MaxBrightness, p.GetBrightness())
	}
}

func TestAllThroughStrip(t *testing.T) {
	ft := &fakeTransport{}
	s, err := NewStrip(ft, nil)
	require.NoError(t, err)
	for i, p := range s.All() {
		p.SetRGB(uint8(i), uint8(i), uint8(i))
	}
	require.NoError(t, s.Show())
	for i := 0; i < 8; i++ {
		assert.Equal(t, []byte{0xE7, uint8(i), uint8(i), uint8(i)}, ft.frames[0][4+4*i:8+4*i])
	}
}

func TestDrawImage(t *testing.T) {
	ft := &fakeTransport{}
	s, err := NewStrip(ft, nil)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 1), s.Bounds())

	im := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	for x := 0; x < 4; x++ {
		im.SetNRGBA(x, 0, color.NRGBA{R: uint8(x), G: 100, B: 200, A: 255})
	}
	require.NoError(t, s.Draw(image.Rect(2, 0, 6, 1), im, image.Point{}))
	require.Len(t, ft.frames, 1)

	for x := 0; x < 8; x++ {
		p, err := s.Pixel(x)
		require.NoError(t, err)
		if x >= 2 && x < 6 {
			assert.Equal(t, model.NewPixel(uint8(x-2), 100, 200, model.DefaultBrightness), p)
		} else {
			assert.Equal(t, model.NewPixel(0, 0, 0, model.DefaultBrightness), p)
		}
	}

	require.NoError(t, s.Halt())
	for _, p := range s.Pixels() {
		assert.Equal(t, model.NewPixel(0, 0, 0, model.DefaultBrightness), p)
	}
}
