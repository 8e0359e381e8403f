package blinkt

import (
	"image"
	"image/color"

	"periph.io/x/conn/v3/display"
)

var _ display.Drawer = (*Strip)(nil)

// ColorModel implements display.Drawer. Alpha is ignored; brightness stays
// whatever the pixel already had.
func (s *Strip) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer. The strip is one row of PixelCount
// pixels.
func (s *Strip) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.buf.Len(), 1)
}

// Draw implements display.Drawer: the part of src starting at sp is copied
// into dstRect's first row, then shown.
func (s *Strip) Draw(dstRect image.Rectangle, src image.Image, sp image.Point) error {
	r := dstRect.Intersect(s.Bounds())
	for x := r.Min.X; x < r.Max.X; x++ {
		c := color.NRGBAModel.Convert(src.At(sp.X+x-dstRect.Min.X, sp.Y+r.Min.Y-dstRect.Min.Y)).(color.NRGBA)
		if err := s.buf.SetPixel(x, c.R, c.G, c.B); err != nil {
			return err
		}
	}
	return s.Show()
}

// Halt implements conn.Resource. It blanks the strip but keeps it open.
func (s *Strip) Halt() error {
	s.Clear()
	return s.Show()
}
