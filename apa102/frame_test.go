package apa102_test

import (
	"strconv"
	"testing"

	. "github.com/coreman2200/blinkt/apa102"
	"github.com/coreman2200/blinkt/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var TestFrameLenForPixelCount = []struct {
	N       int
	EndBits int
	Len     int
}{
	{0, 0, 4},
	{1, 1, 9},
	{2, 1, 13},
	{8, 4, 37},
	{16, 8, 69},
	{17, 9, 4 + 68 + 2},
	{144, 72, 4 + 576 + 9},
}

func TestFrameLen(t *testing.T) {
	for _, v := range TestFrameLenForPixelCount {
		t.Run("Given N"+strconv.Itoa(v.N), func(t *testing.T) {
			assert.Equal(t, v.EndBits, EndFrameBits(v.N))
			assert.Equal(t, v.Len, FrameLen(v.N))

			var e Encoder
			f := e.Encode(model.NewBuffer(v.N, model.DefaultBrightness).Raw())
			assert.Equal(t, v.EndBits, f.EndBits)
			assert.Len(t, f.Bytes(), v.Len)
		})
	}
}

func TestChannelOrder(t *testing.T) {
	p := model.NewPixel(0, 0, 0, 0)
	p.SetRGBB(10, 20, 30, 1.0)
	assert.Equal(t, [4]byte{0xFF, 0x1E, 0x14, 0x0A}, PixelFrame(p))
}

func TestMarkerBitsAlwaysSet(t *testing.T) {
	for level := 0; level <= int(model.MaxBrightness); level++ {
		for _, c := range []uint8{0, 0x7F, 0xFF} {
			pf := PixelFrame(model.NewPixel(c, c, c, uint8(level)))
			assert.Equal(t, Marker, pf[0]&Marker)
			assert.Equal(t, uint8(level), pf[0]&0x1F)
		}
	}
}

func TestEncodeFullFrame(t *testing.T) {
	b := model.NewBuffer(2, model.DefaultBrightness)
	require.NoError(t, b.SetPixelRGBB(0, 10, 20, 30, 1.0))
	require.NoError(t, b.SetPixelRGBB(1, 1, 2, 3, 0))

	var e Encoder
	f := e.Encode(b.Raw())
	assert.Equal(t, []byte{
		0x00, 0x00, 0x00, 0x00,
		0xFF, 0x1E, 0x14, 0x0A,
		0xE0, 0x03, 0x02, 0x01,
		0x00,
	}, f.Bytes())
}

func TestEncodeLatch(t *testing.T) {
	e := Encoder{SK9822Latch: true}
	f := e.Encode(model.NewBuffer(8, model.DefaultBrightness).Raw())
	assert.Equal(t, 4, f.EndBits)
	assert.True(t, f.Latch)
	assert.Equal(t, 4+LatchBits, f.TrailingBits())
	assert.Len(t, f.Bytes(), 4+32+5)

	var plain Encoder
	f = plain.Encode(model.NewBuffer(8, model.DefaultBrightness).Raw())
	assert.False(t, f.Latch)
	assert.Equal(t, f.EndBits, f.TrailingBits())
}

func TestEncodeReusesBuffer(t *testing.T) {
	b := model.NewBuffer(3, model.DefaultBrightness)
	var e Encoder
	first := e.Encode(b.Raw()).Bytes()
	second := e.Encode(b.Raw()).Bytes()
	assert.Equal(t, first, second)
}
