package keyboard

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uset82/v0-banana-piano-app/internal/keys"
	"github.com/uset82/v0-banana-piano-app/internal/voice"
)

type sink struct {
	mu      sync.Mutex
	events  []keys.KeyEvent
	actions []Action
}

func (s *sink) key(ev keys.KeyEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *sink) action(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, a)
}

func (s *sink) snapshot() ([]keys.KeyEvent, []Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]keys.KeyEvent(nil), s.events...), append([]Action(nil), s.actions...)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLookup(t *testing.T) {
	tests := []struct {
		in        byte
		electrode int
		isNote    bool
		action    Action
	}{
		{'a', 0, true, ActionNone},
		{'J', 6, true, ActionNone},
		{'4', 3, true, ActionNone},
		{'p', 0, false, ActionPiano},
		{'T', 0, false, ActionGuitar},
		{'+', 0, false, ActionVolumeUp},
		{'}', 0, false, ActionFeedbackUp},
		{0x03, 0, false, ActionQuit},
		{'z', 0, false, ActionNone},
	}
	for _, tt := range tests {
		e, isNote, action := Lookup(tt.in)
		assert.Equal(t, tt.electrode, e, "%q", tt.in)
		assert.Equal(t, tt.isNote, isNote, "%q", tt.in)
		assert.Equal(t, tt.action, action, "%q", tt.in)
	}
}

func TestTapReleasesAfterHold(t *testing.T) {
	var s sink
	src := New(nil, 30*time.Millisecond, s.key, s.action, quiet())
	src.Handle('a')

	events, _ := s.snapshot()
	assert.Equal(t, []keys.KeyEvent{{Electrode: 0, Pressed: true}}, events)
	assert.Equal(t, 1, src.Held())

	require.Eventually(t, func() bool { return src.Held() == 0 }, time.Second, 5*time.Millisecond)
	events, _ = s.snapshot()
	assert.Equal(t, []keys.KeyEvent{{Electrode: 0, Pressed: true}, {Electrode: 0, Pressed: false}}, events)
}

func TestAutoRepeatExtendsHold(t *testing.T) {
	var s sink
	src := New(nil, time.Hour, s.key, nil, quiet())
	src.Handle('s')
	src.Handle('s')
	src.Handle('s')

	events, _ := s.snapshot()
	assert.Equal(t, []keys.KeyEvent{{Electrode: 1, Pressed: true}}, events)

	src.ReleaseAll()
	events, _ = s.snapshot()
	assert.Equal(t, []keys.KeyEvent{{Electrode: 1, Pressed: true}, {Electrode: 1, Pressed: false}}, events)
	assert.Zero(t, src.Held())
}

func TestRunDispatchesUntilEOF(t *testing.T) {
	var s sink
	src := New(strings.NewReader("ad+xq"), time.Hour, s.key, s.action, quiet())
	require.NoError(t, src.Run(context.Background()))

	events, actions := s.snapshot()
	assert.Equal(t, []keys.KeyEvent{{Electrode: 0, Pressed: true}, {Electrode: 2, Pressed: true}}, events)
	assert.Equal(t, []Action{ActionVolumeUp, ActionDisconnect, ActionQuit}, actions)
	src.ReleaseAll()
}

func TestRunStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	src := New(pr, time.Hour, nil, nil, quiet())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- src.Run(ctx) }()
	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}

func TestAdjustEffects(t *testing.T) {
	fx := voice.DefaultEffects()

	fx, ok := AdjustEffects(fx, ActionToggleDelay)
	require.True(t, ok)
	assert.True(t, fx.DelayEnabled)

	fx, _ = AdjustEffects(fx, ActionVolumeUp)
	fx, _ = AdjustEffects(fx, ActionVolumeUp)
	fx, _ = AdjustEffects(fx, ActionVolumeUp)
	fx, _ = AdjustEffects(fx, ActionVolumeUp)
	assert.Equal(t, 100, fx.VolumePct, "clamped")

	fx, _ = AdjustEffects(fx, ActionDelayLonger)
	assert.Equal(t, 350, fx.DelayTimeMs)
	fx, _ = AdjustEffects(fx, ActionFeedbackDown)
	assert.Equal(t, 35, fx.DelayFeedbackPct)

	_, ok = AdjustEffects(fx, ActionConnect)
	assert.False(t, ok)

	i, ok := Instrument(ActionGuitar)
	require.True(t, ok)
	assert.Equal(t, voice.Guitar, i)
	_, ok = Instrument(ActionQuit)
	assert.False(t, ok)
}

func TestCRLFWriter(t *testing.T) {
	var buf bytes.Buffer
	n, err := CRLFWriter{W: &buf}.Write([]byte("a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "a\r\nb\r\n", buf.String())
	assert.Equal(t, "toggle-delay", ActionToggleDelay.String())
}
