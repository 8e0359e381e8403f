// Package blinkt drives a Pimoroni Blinkt! board, or any similar APA102 or
// SK9822 strip, from a single-board computer.
//
// Colour and brightness changes land in a local buffer; Show sends the
// buffer to the pixels. The strip is reached either by bit-banging two GPIO
// pins or through a hardware SPI port, chosen once at construction.
//
// Close the strip when done, usually with defer. By default Close blanks
// the pixels before the pins are put back the way they were found. Deferred
// calls do not run when the process dies on an uncaught signal, so handle
// SIGINT/SIGTERM if the strip must be cleared on Ctrl-C.
//
//	s, err := blinkt.New()
//	if err != nil {
//		log.Fatal().Err(err).Msg("blinkt")
//	}
//	defer s.Close()
//	s.SetAllPixels(255, 0, 0)
//	if err := s.Show(); err != nil {
//		log.Error().Err(err).Msg("show")
//	}
package blinkt

import (
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	spiconn "periph.io/x/conn/v3/spi"
	"periph.io/x/host/v3"

	"github.com/coreman2200/blinkt/apa102"
	"github.com/coreman2200/blinkt/bitbang"
	"github.com/coreman2200/blinkt/model"
	"github.com/coreman2200/blinkt/spi"
)

// Default wiring of the Blinkt! board, by BCM GPIO name.
const (
	DAT = "GPIO23"
	CLK = "GPIO24"
)

var (
	// ErrIndexOutOfRange is returned for a pixel index outside the strip.
	ErrIndexOutOfRange = model.ErrIndexOutOfRange
	// ErrReleased is returned by Show once the strip has been closed.
	ErrReleased = errors.New("blinkt: strip released")

	errNoPin = errors.New("no such pin")
)

// GPIOError is returned when a GPIO pin cannot be acquired or written.
type GPIOError = bitbang.Error

// SPIError is returned when the SPI port cannot be opened or written.
type SPIError = spi.Error

// Transport sends one encoded frame to the strip.
type Transport interface {
	Transmit(f apa102.Frame) error
	Close() error
	String() string
}

// PinConfig names the data and clock pins as understood by gpioreg.
type PinConfig struct {
	Data  string
	Clock string
}

// DefaultPins is the Blinkt! wiring.
var DefaultPins = PinConfig{Data: DAT, Clock: CLK}

// Opts configures a Strip.
type Opts struct {
	// NumPixels is the strip length. It cannot change afterwards.
	NumPixels int
	// ClearOnRelease blanks the strip in Close.
	ClearOnRelease bool
	// Brightness every pixel starts at, 0.0-1.0.
	Brightness float64
	// SK9822Latch adds 32 zero clocks after each SPI frame. SK9822 clones
	// only latch on the next start frame; APA102 ignores them. The bit-bang
	// transport always sends them.
	SK9822Latch bool
}

// DefaultOpts matches an 8 pixel Blinkt! board.
var DefaultOpts = Opts{
	NumPixels:      model.DefaultPixelCount,
	ClearOnRelease: true,
	Brightness:     float64(model.DefaultBrightness) / float64(model.MaxBrightness),
}

func (o *Opts) validate() error {
	if o.NumPixels < 1 {
		return fmt.Errorf("blinkt: invalid pixel count %d", o.NumPixels)
	}
	return nil
}

// hostInit loads the periph host drivers. Tests swap it out.
var hostInit = func() error {
	_, err := host.Init()
	return err
}

// Strip owns a pixel buffer and the transport that renders it.
//
// A Strip is meant to be used from one goroutine at a time.
type Strip struct {
	buf            *model.Buffer
	enc            apa102.Encoder
	t              Transport
	clearOnRelease bool
	released       bool
}

// New opens the default Blinkt! setup: 8 pixels bit-banged on GPIO23 (data)
// and GPIO24 (clock), cleared on release.
func New() (*Strip, error) {
	return WithSettings(DefaultPins, model.DefaultPixelCount, true)
}

// WithSettings bit-bangs a strip of pixelCount pixels on the given pins.
func WithSettings(pins PinConfig, pixelCount int, clearOnRelease bool) (*Strip, error) {
	o := DefaultOpts
	o.NumPixels = pixelCount
	o.ClearOnRelease = clearOnRelease
	return OpenGPIO(pins, &o)
}

// OpenGPIO is WithSettings with full options.
func OpenGPIO(pins PinConfig, o *Opts) (*Strip, error) {
	o, err := opts(o)
	if err != nil {
		return nil, err
	}
	if err := hostInit(); err != nil {
		return nil, &GPIOError{Op: "host init", Pin: pins.Data, Err: err}
	}
	data, err := lookupPin(pins.Data)
	if err != nil {
		return nil, err
	}
	clock, err := lookupPin(pins.Clock)
	if err != nil {
		return nil, err
	}
	return NewBitBang(data, clock, o)
}

// WithSPI drives a strip of pixelCount pixels through the first SPI port
// at the given clock frequency. A zero clock picks spi.DefaultFreq.
func WithSPI(clock physic.Frequency, pixelCount int) (*Strip, error) {
	o := DefaultOpts
	o.NumPixels = pixelCount
	return OpenSPI("", clock, &o)
}

// OpenSPI is WithSPI with an explicit spireg port name and options.
func OpenSPI(port string, clock physic.Frequency, o *Opts) (*Strip, error) {
	o, err := opts(o)
	if err != nil {
		return nil, err
	}
	if err := hostInit(); err != nil {
		return nil, &SPIError{Op: "host init", Port: port, Err: err}
	}
	t, err := spi.Open(port, clock)
	if err != nil {
		return nil, err
	}
	return newStrip(t, o), nil
}

// NewBitBang uses already acquired pins. The strip takes them over until
// Close.
func NewBitBang(data, clock bitbang.Pin, o *Opts) (*Strip, error) {
	o, err := opts(o)
	if err != nil {
		return nil, err
	}
	t, err := bitbang.New(data, clock)
	if err != nil {
		return nil, err
	}
	return newStrip(t, o), nil
}

// NewSPI connects to an already opened port. The caller keeps ownership of
// p and closes it after the strip.
func NewSPI(p spiconn.Port, clock physic.Frequency, o *Opts) (*Strip, error) {
	o, err := opts(o)
	if err != nil {
		return nil, err
	}
	t, err := spi.New(p, clock)
	if err != nil {
		return nil, err
	}
	return newStrip(t, o), nil
}

// NewStrip wraps any Transport.
func NewStrip(t Transport, o *Opts) (*Strip, error) {
	o, err := opts(o)
	if err != nil {
		return nil, err
	}
	return newStrip(t, o), nil
}

func opts(o *Opts) (*Opts, error) {
	if o == nil {
		d := DefaultOpts
		o = &d
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func newStrip(t Transport, o *Opts) *Strip {
	s := &Strip{
		buf:            model.NewBuffer(o.NumPixels, model.BrightnessLevel(o.Brightness)),
		enc:            apa102.Encoder{SK9822Latch: o.SK9822Latch},
		t:              t,
		clearOnRelease: o.ClearOnRelease,
	}
	log.Debug().Str("transport", t.String()).Int("pixels", o.NumPixels).Msg("strip ready")
	return s
}

func lookupPin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, &GPIOError{Op: "open", Pin: name, Err: errNoPin}
	}
	return p, nil
}

func (s *Strip) String() string {
	return fmt.Sprintf("blinkt{%s, %d pixels}", s.t, s.buf.Len())
}

// Transport names the transport in use.
func (s *Strip) Transport() string {
	return s.t.String()
}

func (s *Strip) PixelCount() int {
	return s.buf.Len()
}

func (s *Strip) ClearOnRelease() bool {
	return s.clearOnRelease
}

// SetClearOnRelease controls whether Close blanks the strip. Enabled by
// default.
func (s *Strip) SetClearOnRelease(v bool) {
	s.clearOnRelease = v
}

// SetPixel sets the red, green and blue values of one pixel in the local
// buffer. Its brightness is left alone.
func (s *Strip) SetPixel(i int, r, g, b uint8) error {
	return s.buf.SetPixel(i, r, g, b)
}

// SetPixelRGBB sets colour and brightness of one pixel. Brightness is
// clamped to 0.0-1.0 and stored as a 5-bit value.
func (s *Strip) SetPixelRGBB(i int, r, g, b uint8, brightness float64) error {
	return s.buf.SetPixelRGBB(i, r, g, b, brightness)
}

func (s *Strip) SetPixelBrightness(i int, brightness float64) error {
	return s.buf.SetPixelBrightness(i, brightness)
}

func (s *Strip) SetAllPixels(r, g, b uint8) {
	s.buf.SetAllPixels(r, g, b)
}

func (s *Strip) SetAllPixelsRGBB(r, g, b uint8, brightness float64) {
	s.buf.SetAllPixelsRGBB(r, g, b, brightness)
}

func (s *Strip) SetAllPixelsBrightness(brightness float64) {
	s.buf.SetAllPixelsBrightness(brightness)
}

// Clear turns every pixel off in the local buffer, keeping brightness.
func (s *Strip) Clear() {
	s.buf.Clear()
}

func (s *Strip) Pixel(i int) (model.Pixel, error) {
	return s.buf.Pixel(i)
}

func (s *Strip) Pixels() []model.Pixel {
	return s.buf.Pixels()
}

// All iterates the pixels in order. Changes made through the yielded
// pointers are picked up by the next Show.
func (s *Strip) All() iter.Seq2[int, *model.Pixel] {
	return s.buf.All()
}

// Show sends the local buffer to the pixels. It blocks until the whole frame
// is out, and never touches the buffer.
func (s *Strip) Show() error {
	if s.released {
		return ErrReleased
	}
	return s.t.Transmit(s.enc.Encode(s.buf.Raw()))
}

// Close releases the strip. With ClearOnRelease set, the pixels are blanked
// first. Pins are then put back to the level they had before the strip took
// them. Problems on the way are logged, never returned, so Close is safe to
// defer. Calling it again does nothing.
func (s *Strip) Close() error {
	if s.released {
		return nil
	}
	if s.clearOnRelease {
		s.buf.Clear()
		if err := s.Show(); err != nil {
			log.Warn().Err(err).Str("strip", s.String()).Msg("clear on release failed")
		}
	}
	s.released = true
	if err := s.t.Close(); err != nil {
		log.Warn().Err(err).Str("strip", s.String()).Msg("transport release failed")
	}
	return nil
}
