package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uset82/v0-banana-piano-app/internal/audio"
)

func TestDefaultEffects(t *testing.T) {
	fx := DefaultEffects()
	assert.False(t, fx.DelayEnabled)
	assert.Equal(t, 300, fx.DelayTimeMs)
	assert.Equal(t, 40, fx.DelayFeedbackPct)
	assert.Equal(t, 70, fx.VolumePct)
	assert.NoError(t, fx.Validate())
}

func TestEffectsValidate(t *testing.T) {
	tests := []struct {
		name string
		fx   Effects
		ok   bool
	}{
		{"bounds low", Effects{DelayTimeMs: 100, DelayFeedbackPct: 0, VolumePct: 0}, true},
		{"bounds high", Effects{DelayTimeMs: 1000, DelayFeedbackPct: 90, VolumePct: 100}, true},
		{"short delay", Effects{DelayTimeMs: 99, VolumePct: 50}, false},
		{"long delay", Effects{DelayTimeMs: 1001, VolumePct: 50}, false},
		{"runaway feedback", Effects{DelayTimeMs: 300, DelayFeedbackPct: 91}, false},
		{"loud", Effects{DelayTimeMs: 300, VolumePct: 101}, false},
		{"negative volume", Effects{DelayTimeMs: 300, VolumePct: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fx.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
			assert.NoError(t, tt.fx.Clamp().Validate())
		})
	}
}

func TestParseInstrument(t *testing.T) {
	i, err := ParseInstrument("guitar")
	require.NoError(t, err)
	assert.Equal(t, Guitar, i)
	assert.Equal(t, audio.Triangle, i.Waveform())
	assert.Equal(t, audio.Sine, Piano.Waveform())

	_, err = ParseInstrument("banjo")
	assert.ErrorIs(t, err, ErrUnknownInstrument)
}
