// Package input merges every key source (serial board, MIDI keyboard,
// terminal, programmatic clicks) into one stream of trigger/release calls.
package input

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/uset82/v0-banana-piano-app/internal/keys"
)

// Player is the voice side of the aggregator.
type Player interface {
	Trigger(note string)
	Release(note string)
}

// Source names where an event came from.
type Source string

const (
	Serial   Source = "serial"
	MIDI     Source = "midi"
	Keyboard Source = "keyboard"
	UI       Source = "ui"
)

// Aggregator translates electrode events into note calls. Sources are
// indistinguishable to the player; they are tracked only so a lost source
// can release what it held.
type Aggregator struct {
	mu     sync.Mutex
	player Player
	logger *slog.Logger
	held   map[Source]*Held
}

// New returns an aggregator driving player. A nil logger means
// slog.Default().
func New(player Player, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{player: player, logger: logger, held: make(map[Source]*Held)}
}

// OnKeyEvent is the programmatic entry point (UI clicks).
func (a *Aggregator) OnKeyEvent(electrode int, pressed bool) {
	a.Handle(UI, keys.KeyEvent{Electrode: electrode, Pressed: pressed})
}

// Source returns a callback that feeds events from src, suitable for
// transport.Session.Subscribe.
func (a *Aggregator) Source(src Source) func(keys.KeyEvent) {
	return func(ev keys.KeyEvent) { a.Handle(src, ev) }
}

// Handle applies one event. Electrodes outside the table are dropped.
func (a *Aggregator) Handle(src Source, ev keys.KeyEvent) {
	note, ok := keys.ForElectrode(ev.Electrode)
	if !ok {
		a.logger.Debug("input: electrode out of range", "source", string(src), "electrode", ev.Electrode)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.heldFor(src)
	if ev.Pressed {
		h.ApplyPress(ev.Electrode)
		a.player.Trigger(note.Name)
	} else {
		h.ApplyRelease(ev.Electrode)
		a.player.Release(note.Name)
	}
	a.logger.Debug("input: key", "source", string(src), "electrode", ev.Electrode, "note", note.Name, "pressed", ev.Pressed)
}

// ReleaseAll releases every key src holds. Used when a source goes away
// mid-press so no note sustains forever. Keys another source still holds
// keep sounding.
func (a *Aggregator) ReleaseAll(src Source) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.held[src]
	if !ok || h.Len() == 0 {
		return
	}
	cleared := h.ClearAll()
	released := 0
	for _, e := range cleared {
		if a.heldElsewhere(src, e) {
			continue
		}
		note, _ := keys.ForElectrode(e)
		a.player.Release(note.Name)
		released++
	}
	a.logger.Info("input: panic release", "source", string(src), "keys", released, "kept", len(cleared)-released)
}

// heldElsewhere reports whether a source other than src holds electrode.
// Caller holds a.mu.
func (a *Aggregator) heldElsewhere(src Source, electrode int) bool {
	for s, h := range a.held {
		if s != src && h.IsHeld(electrode) {
			return true
		}
	}
	return false
}

// Active returns the electrodes held by any source, ascending.
func (a *Aggregator) Active() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen := make(map[int]bool)
	for _, h := range a.held {
		for _, e := range h.Keys() {
			seen[e] = true
		}
	}
	out := make([]int, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Ints(out)
	return out
}

// IsActive reports whether any source holds electrode.
func (a *Aggregator) IsActive(electrode int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, h := range a.held {
		if h.IsHeld(electrode) {
			return true
		}
	}
	return false
}

func (a *Aggregator) heldFor(src Source) *Held {
	h, ok := a.held[src]
	if !ok {
		h = NewHeld()
		a.held[src] = h
	}
	return h
}
