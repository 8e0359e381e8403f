// Package bitbang clocks APA102/SK9822 frames out over two plain GPIO pins.
//
// Every bit costs three pin writes: the data level, clock high, clock low.
// The ICs sample on the rising clock edge and tolerate any clock rate a
// userspace GPIO toggle can reach, so no delays are inserted.
//
// Each frame ends with apa102.LatchBits zero pulses on top of the end frame.
// SK9822 clones only show a frame once the next start frame arrives, and
// APA102 ignores the extra clocks, so one frame works for both.
package bitbang

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"

	"github.com/coreman2200/blinkt/apa102"
)

var errClosed = errors.New("transport closed")

// Pin is the part of gpio.PinIO the transport needs.
type Pin interface {
	Out(l gpio.Level) error
	Read() gpio.Level
	String() string
}

// Error reports a failed pin operation.
type Error struct {
	Op  string
	Pin string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gpio %s %s: %v", e.Op, e.Pin, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type line struct {
	pin     Pin
	initial gpio.Level
	level   gpio.Level
	dirty   bool
}

func (l *line) out(op string, v gpio.Level) error {
	if err := l.pin.Out(v); err != nil {
		return &Error{Op: op, Pin: l.pin.String(), Err: err}
	}
	l.level = v
	if v != l.initial {
		l.dirty = true
	}
	return nil
}

// Dev drives one strip through a data and a clock pin it owns exclusively.
type Dev struct {
	data   line
	clock  line
	closed bool
}

// New takes ownership of data and clock and drives both low. The level each
// pin had beforehand is remembered and put back by Close.
func New(data, clock Pin) (*Dev, error) {
	d := &Dev{
		data:  line{pin: data, initial: data.Read()},
		clock: line{pin: clock, initial: clock.Read()},
	}
	if err := d.data.out("init", gpio.Low); err != nil {
		return nil, err
	}
	if err := d.clock.out("init", gpio.Low); err != nil {
		d.restore()
		return nil, err
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("bitbang{%s, %s}", d.data.pin, d.clock.pin)
}

// Transmit shifts f.Data out MSB first, then pulses the clock with data held
// low for the end frame and the latch. The first failing pin write aborts
// the frame; whatever reached the strip stays there.
func (d *Dev) Transmit(f apa102.Frame) error {
	if d.closed {
		return &Error{Op: "transmit", Pin: d.data.pin.String(), Err: errClosed}
	}
	for _, b := range f.Data {
		if err := d.writeByte(b); err != nil {
			return err
		}
	}
	if err := d.data.out("end frame", gpio.Low); err != nil {
		return err
	}
	trailing := f.EndBits + apa102.LatchBits
	for i := 0; i < trailing; i++ {
		if err := d.pulse(); err != nil {
			return err
		}
	}
	log.Debug().Int("bytes", len(f.Data)).Int("end_bits", trailing).Msg("bitbang frame sent")
	return nil
}

func (d *Dev) writeByte(b byte) error {
	for n := 7; n >= 0; n-- {
		if err := d.data.out("write", gpio.Level(b&(1<<uint(n)) != 0)); err != nil {
			return err
		}
		if err := d.pulse(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dev) pulse() error {
	if err := d.clock.out("clock", gpio.High); err != nil {
		return err
	}
	return d.clock.out("clock", gpio.Low)
}

// Close puts every pin the driver changed back to its original level. It is
// safe to call more than once.
func (d *Dev) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.restore()
}

func (d *Dev) restore() error {
	// clock first, so a rising edge on restore samples data low
	var first error
	for _, l := range []*line{&d.clock, &d.data} {
		if !l.dirty || l.level == l.initial {
			continue
		}
		if err := l.out("restore", l.initial); err != nil && first == nil {
			first = err
		}
	}
	return first
}
