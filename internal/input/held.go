package input

import "sort"

// Held tracks which electrodes one source currently holds down.
type Held struct {
	active map[int]bool
}

func NewHeld() *Held {
	return &Held{active: make(map[int]bool)}
}

func (h *Held) ApplyPress(electrode int) {
	h.active[electrode] = true
}

// ApplyRelease reports whether the electrode was held.
func (h *Held) ApplyRelease(electrode int) bool {
	if !h.active[electrode] {
		return false
	}
	delete(h.active, electrode)
	return true
}

func (h *Held) IsHeld(electrode int) bool {
	return h.active[electrode]
}

// ClearAll forgets every held electrode and returns them in ascending
// order (used for panic release).
func (h *Held) ClearAll() []int {
	out := h.Keys()
	h.active = make(map[int]bool)
	return out
}

// Keys returns the held electrodes in ascending order.
func (h *Held) Keys() []int {
	out := make([]int, 0, len(h.active))
	for e := range h.active {
		out = append(out, e)
	}
	sort.Ints(out)
	return out
}

func (h *Held) Len() int { return len(h.active) }
