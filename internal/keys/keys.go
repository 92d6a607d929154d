// Package keys holds the fixed electrode → note table shared by every
// event source and the voice engine.
package keys

import "fmt"

// NumKeys is the number of touch electrodes on the board.
const NumKeys = 7

// KeyEvent is a single press or release of one electrode. The serial
// link, MIDI keyboard and terminal all produce the same value.
type KeyEvent struct {
	Electrode int
	Pressed   bool
}

func (e KeyEvent) String() string {
	state := "release"
	if e.Pressed {
		state = "press"
	}
	return fmt.Sprintf("%s e%d", state, e.Electrode)
}

// Note is a fixed pitch bound to one electrode.
type Note struct {
	Name      string
	Frequency float64 // Hz
	MIDIKey   uint8
}

var notes = [NumKeys]Note{
	{Name: "C4", Frequency: 261.63, MIDIKey: 60},
	{Name: "D4", Frequency: 293.66, MIDIKey: 62},
	{Name: "E4", Frequency: 329.63, MIDIKey: 64},
	{Name: "F4", Frequency: 349.23, MIDIKey: 65},
	{Name: "G4", Frequency: 392.00, MIDIKey: 67},
	{Name: "A4", Frequency: 440.00, MIDIKey: 69},
	{Name: "B4", Frequency: 493.88, MIDIKey: 71},
}

// Valid reports whether electrode is inside the table.
func Valid(electrode int) bool {
	return electrode >= 0 && electrode < NumKeys
}

// ForElectrode returns the note bound to electrode. ok is false for
// indices outside [0, NumKeys).
func ForElectrode(electrode int) (Note, bool) {
	if !Valid(electrode) {
		return Note{}, false
	}
	return notes[electrode], true
}

// Lookup finds a note by name ("C4".."B4").
func Lookup(name string) (Note, bool) {
	for _, n := range notes {
		if n.Name == name {
			return n, true
		}
	}
	return Note{}, false
}

// Frequency returns the fundamental for a note name, or 0 if unknown.
func Frequency(name string) float64 {
	n, _ := Lookup(name)
	return n.Frequency
}

// All returns a copy of the table in electrode order.
func All() []Note {
	out := make([]Note, NumKeys)
	copy(out, notes[:])
	return out
}

// ElectrodeForMIDIKey maps a MIDI key onto the board. Keys outside octave
// 4 are folded by octaves; black keys have no electrode.
func ElectrodeForMIDIKey(key int) (int, bool) {
	if key < 0 || key > 127 {
		return 0, false
	}
	p := key
	for p < 60 {
		p += 12
	}
	for p > 71 {
		p -= 12
	}
	for i, n := range notes {
		if int(n.MIDIKey) == p {
			return i, true
		}
	}
	return 0, false
}
