// Package voice turns note names into sounding oscillators: at most one
// voice per note, an attack/decay envelope on trigger, a release ramp on
// release, and a shared master gain and feedback delay bus.
package voice

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/uset82/v0-banana-piano-app/internal/audio"
	"github.com/uset82/v0-banana-piano-app/internal/keys"
)

// Envelope shape.
const (
	AttackPeak   = 0.3
	SustainLevel = 0.2
	AttackTime   = 10 * time.Millisecond
	DecayTime    = 90 * time.Millisecond
	ReleaseTime  = 200 * time.Millisecond

	// MaxDelaySeconds is the longest echo the delay bus can hold.
	MaxDelaySeconds = 2.0
)

// VoiceInfo describes a registered voice.
type VoiceInfo struct {
	Note      string
	Frequency float64
	Waveform  audio.Waveform
	Delayed   bool // routed into the delay bus at trigger time
	Envelope  []audio.Ramp
	Playing   bool
}

type voice struct {
	note    string
	osc     *audio.Oscillator
	env     *audio.Gain
	delayed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithInstrument sets the initial instrument. Default: Piano.
func WithInstrument(i Instrument) Option {
	return func(e *Engine) { e.instrument = i }
}

// WithEffects sets the initial effects. Default: DefaultEffects().
func WithEffects(fx Effects) Option {
	return func(e *Engine) { e.effects = fx.Clamp() }
}

// Engine owns the voice registry and the shared graph. Its methods are
// safe for concurrent use; failures inside Trigger and Release are logged
// at debug level and never returned.
type Engine struct {
	mu         sync.Mutex
	ctx        *audio.Context
	logger     *slog.Logger
	instrument Instrument
	effects    Effects
	voices     map[string]*voice
	shutdown   bool

	// built on first trigger
	master   *audio.Gain
	delay    *audio.Delay
	feedback *audio.Gain
}

// New returns an engine rendering into ctx.
func New(ctx *audio.Context, opts ...Option) *Engine {
	e := &Engine{
		ctx:        ctx,
		logger:     slog.Default(),
		instrument: Piano,
		effects:    DefaultEffects(),
		voices:     make(map[string]*voice),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// -------------------- Settings --------------------

// SetInstrument changes the waveform of voices triggered from now on.
func (e *Engine) SetInstrument(i Instrument) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.instrument = i
	e.logger.Debug("voice: instrument", "instrument", string(i))
}

// Instrument returns the current instrument.
func (e *Engine) Instrument() Instrument {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.instrument
}

// SetEffects stores fx (clamped) and applies volume, delay time and
// feedback to the graph immediately. Delay routing of sounding voices is
// left alone; only later triggers see a new DelayEnabled.
func (e *Engine) SetEffects(fx Effects) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.effects = fx.Clamp()
	if e.master != nil {
		e.applyEffects()
	}
}

// Effects returns the current effects.
func (e *Engine) Effects() Effects {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.effects
}

// -------------------- Graph --------------------

func (e *Engine) ensureGraph() {
	if e.master != nil {
		return
	}
	e.master = e.ctx.NewGain()
	e.master.Connect(e.ctx.Destination())

	e.delay = e.ctx.NewDelay(MaxDelaySeconds)
	e.feedback = e.ctx.NewGain()
	e.delay.Connect(e.feedback)
	e.feedback.Connect(e.delay)
	e.feedback.Connect(e.master)

	e.applyEffects()
	e.logger.Debug("voice: graph ready")
}

func (e *Engine) applyEffects() {
	e.master.Gain().Set(float64(e.effects.VolumePct) / 100)
	e.delay.DelayTime().Set(float64(e.effects.DelayTimeMs) / 1000)
	e.feedback.Gain().Set(float64(e.effects.DelayFeedbackPct) / 100)
}

// Master returns the master gain, nil until the first trigger.
func (e *Engine) Master() *audio.Gain {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.master
}

// DelayBus returns the delay node and its feedback gain, nil until the
// first trigger.
func (e *Engine) DelayBus() (*audio.Delay, *audio.Gain) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.delay, e.feedback
}

// -------------------- Voices --------------------

// Trigger starts note, replacing any voice already sounding for it.
// Unknown notes are ignored.
func (e *Engine) Trigger(note string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown || e.ctx.State() == audio.Closed {
		e.logger.Debug("voice: audio not available", "note", note)
		return
	}
	if e.ctx.State() == audio.Suspended {
		tryOrIgnore(e.logger, "resume", e.ctx.Resume)
	}
	e.ensureGraph()

	if old, ok := e.voices[note]; ok {
		tryOrIgnore(e.logger, "stop "+note, func() error { return old.osc.Stop(e.ctx.Now()) })
		delete(e.voices, note)
	}

	n, ok := keys.Lookup(note)
	if !ok {
		e.logger.Debug("voice: unknown note", "note", note)
		return
	}

	now := e.ctx.Now()
	osc := e.ctx.NewOscillator()
	osc.SetWaveform(e.instrument.Waveform())
	osc.Frequency().Set(n.Frequency)

	env := e.ctx.NewGain()
	env.Gain().Schedule(now, 0,
		audio.Segment{To: AttackPeak, Duration: AttackTime},
		audio.Segment{To: SustainLevel, Duration: DecayTime},
	)

	osc.Connect(env)
	env.Connect(e.master)
	delayed := e.effects.DelayEnabled
	if delayed {
		env.Connect(e.delay)
	}
	osc.OnEnded(env.Disconnect)

	if err := osc.Start(now); err != nil {
		e.logger.Debug("voice: start failed", "note", note, "err", err)
		env.Disconnect()
		return
	}
	e.voices[note] = &voice{note: note, osc: osc, env: env, delayed: delayed}
	e.logger.Debug("voice: trigger", "note", note, "hz", n.Frequency, "delay", delayed)
}

// Release fades note out over ReleaseTime. The voice leaves the registry
// at once even if scheduling the fade fails.
func (e *Engine) Release(note string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.voices[note]
	if !ok {
		return
	}
	delete(e.voices, note)

	now := e.ctx.Now()
	tryOrIgnore(e.logger, "release "+note, func() error {
		g := v.env.Gain()
		g.ScheduleRamp(g.ValueAt(now), 0, now, ReleaseTime)
		return v.osc.Stop(now + ReleaseTime.Seconds())
	})
	e.logger.Debug("voice: release", "note", note)
}

// Shutdown stops every voice at once and closes the audio context.
// Later calls are no-ops.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shutdown {
		return
	}
	e.shutdown = true
	for note, v := range e.voices {
		tryOrIgnore(e.logger, "stop "+note, func() error { return v.osc.Stop(e.ctx.Now()) })
	}
	clear(e.voices)
	tryOrIgnore(e.logger, "close audio", e.ctx.Close)
	e.logger.Info("voice: engine shut down")
}

// Notes returns the registered notes, sorted.
func (e *Engine) Notes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.voices))
	for note := range e.voices {
		out = append(out, note)
	}
	sort.Strings(out)
	return out
}

// Voice describes the registered voice for note.
func (e *Engine) Voice(note string) (VoiceInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.voices[note]
	if !ok {
		return VoiceInfo{}, false
	}
	return VoiceInfo{
		Note:      v.note,
		Frequency: v.osc.Frequency().Value(),
		Waveform:  v.osc.Waveform(),
		Delayed:   v.delayed,
		Envelope:  v.env.Gain().Ramps(),
		Playing:   v.osc.Playing(),
	}, true
}
