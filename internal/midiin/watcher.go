// Package midiin plays the board's notes from a MIDI keyboard. It keeps a
// connection to the preferred input across hot-plug and hot-unplug.
package midiin

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/uset82/v0-banana-piano-app/internal/keys"
)

// -------------------- Config --------------------

// Config controls device selection.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// Preferred: devices matching any of these are picked first.
	Preferred []string `yaml:"preferred"`
	// Excluded: virtual/system ports that are never auto-connected.
	Excluded []string `yaml:"excluded"`
	// Rescan is the minimum spacing between device scans.
	Rescan time.Duration `yaml:"rescan"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Preferred: []string{"Launchkey", "Novation"},
		Excluded:  []string{"Midi Through", "Through Port", "Dummy"},
		Rescan:    time.Second,
	}
}

// inputs is the device side of the watcher.
type inputs interface {
	Names() ([]string, error)
	// Listen opens name and delivers its messages until stop is called.
	Listen(name string, recv func(midi.Message), onErr func(error)) (stop func(), err error)
	Close() error
}

// -------------------- Watcher --------------------

// Watcher monitors available MIDI inputs and maintains a connection to the
// preferred device.
//
// onKey is called for every note on/off that lands on a board key.
// onDisconnect is called (from a goroutine) when the active device is
// lost; callers should use it to release held keys immediately.
type Watcher struct {
	mu           sync.Mutex
	in           inputs
	cfg          Config
	logger       *slog.Logger
	now          func() time.Time
	stopFn       func()
	connected    bool
	selectedName string
	lastRescanAt time.Time

	onKey        func(keys.KeyEvent)
	onDisconnect func()
}

// New creates a watcher over the rtmidi driver. Call Close when done.
func New(cfg Config, onKey func(keys.KeyEvent), onDisconnect func(), logger *slog.Logger) (*Watcher, error) {
	in, err := openRtmidi()
	if err != nil {
		return nil, err
	}
	return newWatcher(in, cfg, onKey, onDisconnect, logger), nil
}

func newWatcher(in inputs, cfg Config, onKey func(keys.KeyEvent), onDisconnect func(), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Rescan <= 0 {
		cfg.Rescan = DefaultConfig().Rescan
	}
	return &Watcher{
		in:           in,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		onKey:        onKey,
		onDisconnect: onDisconnect,
	}
}

// Close shuts down the active connection and the driver.
func (m *Watcher) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeConn()
	if err := m.in.Close(); err != nil {
		m.logger.Debug("midi: driver close", "err", err)
	}
}

// Connected returns the selected device name.
func (m *Watcher) Connected() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectedName, m.connected
}

// Tick should be called on a regular interval from the main loop. It
// scans for devices, auto-connects to a preferred one, and detects
// disappearances.
func (m *Watcher) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.lastRescanAt.IsZero() && now.Sub(m.lastRescanAt) < m.cfg.Rescan {
		return
	}
	m.lastRescanAt = now

	inputs := m.listInputs()

	if m.connected {
		for _, n := range inputs {
			if n == m.selectedName {
				return
			}
		}
		m.logger.Warn("midi: device disappeared", "device", m.selectedName)
		m.lost()
		return
	}

	if len(inputs) == 0 {
		return
	}
	cand, ok := m.pickPreferred(inputs)
	if !ok {
		return
	}
	if err := m.openByName(cand); err != nil {
		m.logger.Error("midi: connect failed", "device", cand, "err", err)
	}
}

// -------------------- internal --------------------

func (m *Watcher) listInputs() []string {
	all, err := m.in.Names()
	if err != nil {
		m.logger.Error("midi: list inputs failed", "err", err)
		return nil
	}
	var names []string
	for _, name := range all {
		if m.excluded(name) {
			m.logger.Debug("midi: input excluded", "device", name)
			continue
		}
		names = append(names, name)
	}
	m.logger.Debug("midi: inputs found", "count", len(names), "devices", strings.Join(names, ", "))
	return names
}

func (m *Watcher) excluded(name string) bool {
	for _, pat := range m.cfg.Excluded {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

func (m *Watcher) pickPreferred(inputs []string) (string, bool) {
	for _, pat := range m.cfg.Preferred {
		for _, name := range inputs {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(inputs) == 1 {
		return inputs[0], true
	}
	return "", false
}

// lost drops the connection and schedules an immediate rescan. Caller
// holds m.mu.
func (m *Watcher) lost() {
	m.closeConn()
	m.lastRescanAt = time.Time{}
	if m.onDisconnect != nil {
		go m.onDisconnect()
	}
}

func (m *Watcher) closeConn() {
	if m.stopFn != nil {
		m.stopFn()
		m.stopFn = nil
	}
	m.connected = false
	m.selectedName = ""
}

func (m *Watcher) openByName(name string) error {
	stop, err := m.in.Listen(name, m.handleMessage, func(listenErr error) {
		m.logger.Warn("midi: listener error", "device", name, "err", listenErr)
		// Must not close from within the listener goroutine.
		go func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.connected && m.selectedName == name {
				m.lost()
			}
		}()
	})
	if err != nil {
		return fmt.Errorf("listen %q: %w", name, err)
	}
	m.stopFn = stop
	m.connected = true
	m.selectedName = name
	m.logger.Info("midi: connected", "device", name)
	return nil
}

func (m *Watcher) handleMessage(msg midi.Message) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		m.emit(key, true)
	case msg.GetNoteEnd(&ch, &key):
		m.emit(key, false)
	default:
		m.logger.Debug("midi: unhandled message", "msg", msg.String())
	}
}

func (m *Watcher) emit(key uint8, pressed bool) {
	e, ok := keys.ElectrodeForMIDIKey(int(key))
	if !ok {
		m.logger.Debug("midi: key has no electrode", "key", key)
		return
	}
	m.logger.Debug("midi: note", "key", key, "electrode", e, "pressed", pressed)
	if m.onKey != nil {
		m.onKey(keys.KeyEvent{Electrode: e, Pressed: pressed})
	}
}

// -------------------- utility --------------------

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
