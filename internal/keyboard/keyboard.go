// Package keyboard plays the board from a computer keyboard and exposes
// the performance controls (instrument, effects, connection).
//
// Terminals report key presses only. A tapped key is held for a fixed
// time; auto-repeat of the same key keeps extending the hold.
package keyboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/uset82/v0-banana-piano-app/internal/keys"
)

// Action is a control key.
type Action int

const (
	ActionNone Action = iota
	ActionPiano
	ActionGuitar
	ActionToggleDelay
	ActionVolumeUp
	ActionVolumeDown
	ActionDelayShorter
	ActionDelayLonger
	ActionFeedbackDown
	ActionFeedbackUp
	ActionConnect
	ActionDisconnect
	ActionQuit
)

var actionNames = map[Action]string{
	ActionNone:         "none",
	ActionPiano:        "piano",
	ActionGuitar:       "guitar",
	ActionToggleDelay:  "toggle-delay",
	ActionVolumeUp:     "volume-up",
	ActionVolumeDown:   "volume-down",
	ActionDelayShorter: "delay-shorter",
	ActionDelayLonger:  "delay-longer",
	ActionFeedbackDown: "feedback-down",
	ActionFeedbackUp:   "feedback-up",
	ActionConnect:      "connect",
	ActionDisconnect:   "disconnect",
	ActionQuit:         "quit",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

const ctrlC = 0x03

var noteKeys = map[byte]int{
	'a': 0, 's': 1, 'd': 2, 'f': 3, 'g': 4, 'h': 5, 'j': 6,
	'1': 0, '2': 1, '3': 2, '4': 3, '5': 4, '6': 5, '7': 6,
}

var controlKeys = map[byte]Action{
	'p': ActionPiano,
	't': ActionGuitar,
	'e': ActionToggleDelay,
	'+': ActionVolumeUp,
	'=': ActionVolumeUp,
	'-': ActionVolumeDown,
	'[': ActionDelayShorter,
	']': ActionDelayLonger,
	'{': ActionFeedbackDown,
	'}': ActionFeedbackUp,
	'c': ActionConnect,
	'x': ActionDisconnect,
	'q': ActionQuit,
}

// Help is printed when the terminal source starts.
const Help = "keys: a s d f g h j (or 1-7) play C4-B4 | p piano, t guitar | e delay on/off | " +
	"+/- volume | [ ] delay time | { } feedback | c connect, x disconnect | q quit"

// Lookup classifies one input byte. Letters are case-insensitive.
func Lookup(b byte) (electrode int, isNote bool, action Action) {
	if b == ctrlC {
		return 0, false, ActionQuit
	}
	if b >= 'A' && b <= 'Z' {
		b += 'a' - 'A'
	}
	if e, ok := noteKeys[b]; ok {
		return e, true, ActionNone
	}
	return 0, false, controlKeys[b]
}

// Config controls the terminal source.
type Config struct {
	Enabled bool          `yaml:"enabled"`
	Hold    time.Duration `yaml:"hold"`
}

func DefaultConfig() Config {
	return Config{Enabled: true, Hold: 350 * time.Millisecond}
}

// Source turns keystrokes into key events and actions.
type Source struct {
	in       io.Reader
	hold     time.Duration
	onKey    func(keys.KeyEvent)
	onAction func(Action)
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[int]*time.Timer
}

// New returns a source reading in. onKey and onAction may be nil.
func New(in io.Reader, hold time.Duration, onKey func(keys.KeyEvent), onAction func(Action), logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if hold <= 0 {
		hold = DefaultConfig().Hold
	}
	if onKey == nil {
		onKey = func(keys.KeyEvent) {}
	}
	if onAction == nil {
		onAction = func(Action) {}
	}
	return &Source{
		in:       in,
		hold:     hold,
		onKey:    onKey,
		onAction: onAction,
		logger:   logger,
		timers:   make(map[int]*time.Timer),
	}
}

// Run reads until ctx is done or the input ends. The blocked read itself
// cannot be interrupted and is abandoned on cancellation.
func (s *Source) Run(ctx context.Context) error {
	type chunk struct {
		b   []byte
		err error
	}
	ch := make(chan chunk, 1)
	go func() {
		for {
			buf := make([]byte, 16)
			n, err := s.in.Read(buf)
			select {
			case ch <- chunk{buf[:n], err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-ch:
			for _, b := range c.b {
				s.Handle(b)
			}
			if c.err != nil {
				if errors.Is(c.err, io.EOF) {
					return nil
				}
				return c.err
			}
		}
	}
}

// Handle processes one byte.
func (s *Source) Handle(b byte) {
	e, isNote, action := Lookup(b)
	switch {
	case isNote:
		s.tap(e)
	case action != ActionNone:
		s.logger.Debug("keyboard: action", "action", action.String())
		s.onAction(action)
	}
}

func (s *Source) tap(e int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[e]; ok && t.Stop() {
		t.Reset(s.hold)
		return
	}
	var t *time.Timer
	t = time.AfterFunc(s.hold, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.timers[e] != t {
			return
		}
		delete(s.timers, e)
		s.onKey(keys.KeyEvent{Electrode: e, Pressed: false})
	})
	s.timers[e] = t
	s.onKey(keys.KeyEvent{Electrode: e, Pressed: true})
}

// ReleaseAll releases every key still held.
func (s *Source) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for e, t := range s.timers {
		t.Stop()
		delete(s.timers, e)
		s.onKey(keys.KeyEvent{Electrode: e, Pressed: false})
	}
}

// Held returns how many keys are currently held.
func (s *Source) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
