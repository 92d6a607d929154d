// Package frame turns the board's serial byte stream into key events.
//
// The wire format is newline-delimited UTF-8 text, one compact JSON
// object per line:
//
//	{"e":<electrode>,"s":<1 press | 0 release>}\n
//
// Lines that do not decode are dropped without affecting the rest of the
// stream.
package frame

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/uset82/v0-banana-piano-app/internal/keys"
)

// MaxLineLength bounds a line. A longer line is dropped whole, whether it
// arrives in one chunk or across many.
const MaxLineLength = 4096

// Stats counts what the decoder has seen since construction.
type Stats struct {
	Decoded int // lines that produced an event
	Dropped int // malformed and overlong lines
}

// message mirrors one wire line. Pointers distinguish a missing field
// from a zero value.
type message struct {
	E *int `json:"e"`
	S *int `json:"s"`
}

// Decoder is a stateful line decoder. It is not safe for concurrent use;
// a transport session owns exactly one.
type Decoder struct {
	text    *encoding.Decoder
	pending []byte // incomplete UTF-8 sequence carried to the next chunk
	buf     []byte // decoded text after the last newline
	scratch []byte
	stats   Stats

	// discarding is set while skipping the rest of an overlong line.
	discarding bool
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{text: unicode.UTF8.NewDecoder()}
}

// Feed appends chunk to the receive buffer and returns the events of
// every complete line, in stream order. chunk may end anywhere, including
// inside a multi-byte character.
func (d *Decoder) Feed(chunk []byte) []keys.KeyEvent {
	d.decodeText(chunk)

	var out []keys.KeyEvent
	start := 0
	for {
		i := bytes.IndexByte(d.buf[start:], '\n')
		if i < 0 {
			break
		}
		raw := d.buf[start : start+i]
		start += i + 1
		if d.discarding {
			d.discarding = false
			continue
		}
		if len(raw) > MaxLineLength {
			d.stats.Dropped++
			continue
		}
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		if ev, ok := parseLine(line); ok {
			d.stats.Decoded++
			out = append(out, ev)
		} else {
			d.stats.Dropped++
		}
	}
	n := copy(d.buf, d.buf[start:])
	d.buf = d.buf[:n]

	switch {
	case d.discarding:
		d.buf = d.buf[:0]
	case len(d.buf) > MaxLineLength:
		d.stats.Dropped++
		d.discarding = true
		d.buf = d.buf[:0]
	}
	return out
}

// Buffered returns the partial line waiting for its newline.
func (d *Decoder) Buffered() string {
	return string(d.buf)
}

// Stats returns the running counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Reset drops any buffered text and decoder state.
func (d *Decoder) Reset() {
	d.text.Reset()
	d.pending = nil
	d.buf = d.buf[:0]
	d.discarding = false
}

func (d *Decoder) decodeText(chunk []byte) {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}
	// Worst case every byte becomes a 3-byte replacement character.
	if need := 3*len(src) + utf8.UTFMax; cap(d.scratch) < need {
		d.scratch = make([]byte, need)
	}
	dst := d.scratch[:cap(d.scratch)]

	for len(src) > 0 {
		nDst, nSrc, err := d.text.Transform(dst, src, false)
		d.buf = append(d.buf, dst[:nDst]...)
		src = src[nSrc:]
		switch err {
		case nil:
			return
		case transform.ErrShortSrc:
			d.pending = append([]byte(nil), src...)
			return
		case transform.ErrShortDst:
			if nDst == 0 && nSrc == 0 {
				return
			}
		default:
			return
		}
	}
}

func parseLine(line []byte) (keys.KeyEvent, bool) {
	var m message
	if err := json.Unmarshal(line, &m); err != nil {
		return keys.KeyEvent{}, false
	}
	if m.E == nil || m.S == nil {
		return keys.KeyEvent{}, false
	}
	switch *m.S {
	case 1:
		return keys.KeyEvent{Electrode: *m.E, Pressed: true}, true
	case 0:
		return keys.KeyEvent{Electrode: *m.E, Pressed: false}, true
	}
	return keys.KeyEvent{}, false
}
