package frame

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uset82/v0-banana-piano-app/internal/keys"
)

func press(e int) keys.KeyEvent   { return keys.KeyEvent{Electrode: e, Pressed: true} }
func release(e int) keys.KeyEvent { return keys.KeyEvent{Electrode: e, Pressed: false} }

func feedAll(d *Decoder, chunks ...[]byte) []keys.KeyEvent {
	var out []keys.KeyEvent
	for _, c := range chunks {
		out = append(out, d.Feed(c)...)
	}
	return out
}

func TestSingleFrame(t *testing.T) {
	d := NewDecoder()
	evs := d.Feed([]byte("{\"e\":0,\"s\":1}\n"))
	require.Len(t, evs, 1)
	assert.Equal(t, press(0), evs[0])

	evs = d.Feed([]byte("{\"e\":0,\"s\":0}\n"))
	require.Len(t, evs, 1)
	assert.Equal(t, release(0), evs[0])
	assert.Empty(t, d.Buffered())
	assert.Equal(t, Stats{Decoded: 2}, d.Stats())
}

func TestPartialFrameIsBuffered(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Feed([]byte(`{"e":3,`)))
	assert.Equal(t, `{"e":3,`, d.Buffered())

	evs := d.Feed([]byte("\"s\":1}\n{\"e\":4"))
	require.Len(t, evs, 1)
	assert.Equal(t, press(3), evs[0])
	assert.Equal(t, `{"e":4`, d.Buffered())
}

func TestMalformedLinesAreDropped(t *testing.T) {
	stream := "garbage\n" +
		"{\"e\":1,\"s\":1}\n" +
		"{\"e\":1,\"s\":\n" + // truncated object
		"{\"e\":2,\"s\":2}\n" + // unknown state
		"{\"e\":2}\n" + // missing state
		"{\"s\":1}\n" + // missing electrode
		"{\"e\":1.5,\"s\":1}\n" + // non-integer electrode
		"[1,2]\n" +
		"\n" +
		"   \r\n" +
		"  {\"e\":5,\"s\":0}\r\n" +
		"{\"e\":6,\"s\":1,\"extra\":true}\n"

	d := NewDecoder()
	evs := d.Feed([]byte(stream))
	assert.Equal(t, []keys.KeyEvent{press(1), release(5), press(6)}, evs)
	assert.Equal(t, 3, d.Stats().Decoded)
	assert.Equal(t, 7, d.Stats().Dropped)
}

func TestOutOfRangeElectrodeStillDecodes(t *testing.T) {
	d := NewDecoder()
	evs := d.Feed([]byte("{\"e\":9,\"s\":1}\n"))
	require.Len(t, evs, 1)
	assert.Equal(t, press(9), evs[0])
}

func TestMultiByteSplitAcrossChunks(t *testing.T) {
	// "é" is 0xC3 0xA9; "🍌" is four bytes.
	stream := []byte("{\"e\":1,\"s\":1,\"n\":\"é🍌\"}\n{\"e\":2,\"s\":0}\n")
	idx := -1
	for i, b := range stream {
		if b == 0xC3 {
			idx = i
			break
		}
	}
	require.Positive(t, idx)

	d := NewDecoder()
	evs := feedAll(d, stream[:idx+1], stream[idx+1:idx+4], stream[idx+4:])
	assert.Equal(t, []keys.KeyEvent{press(1), release(2)}, evs)
}

func TestArbitrarySplitsMatchWholeStream(t *testing.T) {
	var stream []byte
	stream = append(stream, Encode(press(0))...)
	stream = append(stream, "noise ñ 🍌\n"...)
	stream = append(stream, Encode(release(0))...)
	stream = append(stream, 0xff, 0xfe, '\n')
	stream = append(stream, "{\"e\":4,\"s\":1,\"tag\":\"日本\"}\r\n"...)
	stream = append(stream, 0xe6, 0x97, '\n') // truncated rune then newline
	stream = append(stream, Encode(release(4))...)
	stream = append(stream, `{"e":6,`...)

	whole := NewDecoder()
	want := whole.Feed(stream)
	require.Equal(t, []keys.KeyEvent{press(0), release(0), press(4), release(4)}, want)

	// Every two-way split.
	for i := 0; i <= len(stream); i++ {
		d := NewDecoder()
		got := feedAll(d, stream[:i], stream[i:])
		assert.Equal(t, want, got, "split at %d", i)
		assert.Equal(t, whole.Buffered(), d.Buffered(), "split at %d", i)
	}

	// Random many-way splits, including empty chunks.
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		d := NewDecoder()
		var got []keys.KeyEvent
		rest := stream
		for len(rest) > 0 {
			n := rng.Intn(6)
			if n > len(rest) {
				n = len(rest)
			}
			got = append(got, d.Feed(rest[:n])...)
			rest = rest[n:]
		}
		assert.Equal(t, want, got, "round %d", round)
		assert.Equal(t, whole.Stats(), d.Stats(), "round %d", round)
	}
}

func TestOverlongPartialIsDiscarded(t *testing.T) {
	d := NewDecoder()
	junk := make([]byte, MaxLineLength+1)
	for i := range junk {
		junk[i] = 'x'
	}
	assert.Empty(t, d.Feed(junk))
	assert.Empty(t, d.Buffered())
	assert.Equal(t, 1, d.Stats().Dropped)

	evs := d.Feed([]byte("\n{\"e\":2,\"s\":1}\n"))
	assert.Equal(t, []keys.KeyEvent{press(2)}, evs)
}

func TestOverlongLineTailIsNotAFrame(t *testing.T) {
	junk := bytes.Repeat([]byte("x"), MaxLineLength+1)
	stream := append(append([]byte(nil), junk...), "{\"e\":0,\"s\":1}\n{\"e\":3,\"s\":1}\n"...)

	whole := NewDecoder()
	assert.Equal(t, []keys.KeyEvent{press(3)}, whole.Feed(stream))
	assert.Equal(t, Stats{Decoded: 1, Dropped: 1}, whole.Stats())

	split := NewDecoder()
	evs := feedAll(split, stream[:MaxLineLength+1], stream[MaxLineLength+1:])
	assert.Equal(t, []keys.KeyEvent{press(3)}, evs)
	assert.Equal(t, Stats{Decoded: 1, Dropped: 1}, split.Stats())

	bytewise := NewDecoder()
	var chunks [][]byte
	for i := range stream {
		chunks = append(chunks, stream[i:i+1])
	}
	assert.Equal(t, []keys.KeyEvent{press(3)}, feedAll(bytewise, chunks...))
	assert.Equal(t, Stats{Decoded: 1, Dropped: 1}, bytewise.Stats())
}

func TestLineAtLimitIsKept(t *testing.T) {
	frame := []byte("{\"e\":1,\"s\":1}")
	line := append(bytes.Repeat([]byte(" "), MaxLineLength-len(frame)), frame...)
	require.Len(t, line, MaxLineLength)

	d := NewDecoder()
	evs := feedAll(d, line[:100], line[100:], []byte("\n"))
	assert.Equal(t, []keys.KeyEvent{press(1)}, evs)
}

func TestResetEndsDiscard(t *testing.T) {
	d := NewDecoder()
	d.Feed(bytes.Repeat([]byte("x"), MaxLineLength+1))
	d.Reset()
	assert.Equal(t, []keys.KeyEvent{press(2)}, d.Feed([]byte("{\"e\":2,\"s\":1}\n")))
}

func TestReset(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte{'{', '"', 0xC3})
	d.Reset()
	assert.Empty(t, d.Buffered())
	evs := d.Feed([]byte("{\"e\":1,\"s\":1}\n"))
	assert.Equal(t, []keys.KeyEvent{press(1)}, evs)
}

func TestEncode(t *testing.T) {
	assert.Equal(t, "{\"e\":0,\"s\":1}\n", string(Encode(press(0))))
	assert.Equal(t, "{\"e\":6,\"s\":0}\n", string(Encode(release(6))))
	assert.Equal(t, "{\"e\":1,\"s\":1}\n{\"e\":1,\"s\":0}\n", string(EncodeAll(press(1), release(1))))

	d := NewDecoder()
	assert.Equal(t, []keys.KeyEvent{press(3), release(3)}, d.Feed(EncodeAll(press(3), release(3))))
}
