package frame

import (
	"strconv"

	"github.com/uset82/v0-banana-piano-app/internal/keys"
)

// Encode builds the on-wire representation of ev, as the board sends it:
//
//	{"e":<electrode>,"s":<state>}\n
func Encode(ev keys.KeyEvent) []byte {
	state := byte('0')
	if ev.Pressed {
		state = '1'
	}
	out := make([]byte, 0, 16)
	out = append(out, `{"e":`...)
	out = strconv.AppendInt(out, int64(ev.Electrode), 10)
	out = append(out, `,"s":`...)
	out = append(out, state, '}', '\n')
	return out
}

// EncodeAll concatenates the encoding of every event.
func EncodeAll(evs ...keys.KeyEvent) []byte {
	var out []byte
	for _, ev := range evs {
		out = append(out, Encode(ev)...)
	}
	return out
}
