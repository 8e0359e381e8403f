// Package spi sends APA102/SK9822 frames through a hardware SPI port.
//
// The port generates the clock, so the end frame is realised as trailing
// zero bytes: clock pulses only exist while bytes are shifted out.
package spi

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	spiconn "periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"github.com/coreman2200/blinkt/apa102"
)

// DefaultFreq is well inside what both APA102 and SK9822 accept.
const DefaultFreq = 4 * physic.MegaHertz

var errClosed = errors.New("transport closed")

// Error reports a failed SPI operation.
type Error struct {
	Op   string
	Port string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("spi %s %s: %v", e.Op, e.Port, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Dev is an SPI connection dedicated to one strip.
type Dev struct {
	name   string
	c      spiconn.Conn
	closer io.Closer
	maxTx  int
	buf    []byte
	closed bool
}

// New connects to p in mode 0, 8 bits per word. A zero f selects
// DefaultFreq. The caller keeps ownership of p.
func New(p spiconn.Port, f physic.Frequency) (*Dev, error) {
	if f == 0 {
		f = DefaultFreq
	}
	c, err := p.Connect(f, spiconn.Mode0, 8)
	if err != nil {
		return nil, &Error{Op: "connect", Port: p.String(), Err: err}
	}
	d := &Dev{name: p.String(), c: c}
	if l, ok := c.(conn.Limits); ok {
		d.maxTx = l.MaxTxSize()
	}
	log.Debug().Str("port", d.name).Str("freq", f.String()).Int("max_tx", d.maxTx).Msg("spi connected")
	return d, nil
}

// Open opens the named port through spireg ("" picks the first one) and
// closes it again in Close.
func Open(name string, f physic.Frequency) (*Dev, error) {
	p, err := spireg.Open(name)
	if err != nil {
		return nil, &Error{Op: "open", Port: name, Err: err}
	}
	d, err := New(p, f)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	d.closer = p
	return d, nil
}

func (d *Dev) String() string {
	return "spi{" + d.name + "}"
}

// Transmit writes the start frame, the pixel frames and the end-frame
// padding in one Tx. Only when the connection reports a smaller maximum
// transfer size is the frame split; the strip is clocked by the bytes
// themselves so gaps between writes are harmless.
func (d *Dev) Transmit(f apa102.Frame) error {
	if d.closed {
		return &Error{Op: "tx", Port: d.name, Err: errClosed}
	}
	d.buf = f.AppendWire(d.buf[:0])
	for w := d.buf; len(w) > 0; {
		n := len(w)
		if d.maxTx > 0 && n > d.maxTx {
			n = d.maxTx
		}
		if err := d.c.Tx(w[:n], nil); err != nil {
			return &Error{Op: "tx", Port: d.name, Err: err}
		}
		w = w[n:]
	}
	log.Debug().Str("port", d.name).Int("bytes", len(d.buf)).Msg("spi frame sent")
	return nil
}

// Close releases the port if Open acquired it.
func (d *Dev) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.closer != nil {
		if err := d.closer.Close(); err != nil {
			return &Error{Op: "close", Port: d.name, Err: err}
		}
	}
	return nil
}
