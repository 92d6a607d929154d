package voice

import (
	"errors"
	"fmt"

	"github.com/uset82/v0-banana-piano-app/internal/audio"
)

// Instrument selects the oscillator shape of new voices.
type Instrument string

const (
	Piano  Instrument = "piano"
	Guitar Instrument = "guitar"
)

// ErrUnknownInstrument is returned by ParseInstrument.
var ErrUnknownInstrument = errors.New("unknown instrument")

// ParseInstrument accepts "piano" or "guitar".
func ParseInstrument(s string) (Instrument, error) {
	switch Instrument(s) {
	case Piano, Guitar:
		return Instrument(s), nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownInstrument, s)
}

// Waveform maps the instrument onto an oscillator shape.
func (i Instrument) Waveform() audio.Waveform {
	if i == Guitar {
		return audio.Triangle
	}
	return audio.Sine
}

// Effect ranges.
const (
	MinDelayTimeMs     = 100
	MaxDelayTimeMs     = 1000
	MaxDelayFeedbackPc = 90
	MaxVolumePct       = 100
)

// Effects is the shared effects configuration read by the engine.
type Effects struct {
	DelayEnabled     bool `yaml:"delay_enabled"`
	DelayTimeMs      int  `yaml:"delay_time_ms"`
	DelayFeedbackPct int  `yaml:"delay_feedback_pct"`
	VolumePct        int  `yaml:"volume_pct"`
}

// DefaultEffects returns delay off at 300 ms / 40 %, volume 70 %.
func DefaultEffects() Effects {
	return Effects{
		DelayEnabled:     false,
		DelayTimeMs:      300,
		DelayFeedbackPct: 40,
		VolumePct:        70,
	}
}

// Clamp forces every field into its range.
func (fx Effects) Clamp() Effects {
	fx.DelayTimeMs = clamp(fx.DelayTimeMs, MinDelayTimeMs, MaxDelayTimeMs)
	fx.DelayFeedbackPct = clamp(fx.DelayFeedbackPct, 0, MaxDelayFeedbackPc)
	fx.VolumePct = clamp(fx.VolumePct, 0, MaxVolumePct)
	return fx
}

// Validate reports the first field out of range.
func (fx Effects) Validate() error {
	switch {
	case fx.DelayTimeMs < MinDelayTimeMs || fx.DelayTimeMs > MaxDelayTimeMs:
		return fmt.Errorf("delay time %d ms outside [%d, %d]", fx.DelayTimeMs, MinDelayTimeMs, MaxDelayTimeMs)
	case fx.DelayFeedbackPct < 0 || fx.DelayFeedbackPct > MaxDelayFeedbackPc:
		return fmt.Errorf("delay feedback %d%% outside [0, %d]", fx.DelayFeedbackPct, MaxDelayFeedbackPc)
	case fx.VolumePct < 0 || fx.VolumePct > MaxVolumePct:
		return fmt.Errorf("volume %d%% outside [0, %d]", fx.VolumePct, MaxVolumePct)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
