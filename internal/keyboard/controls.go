package keyboard

import "github.com/uset82/v0-banana-piano-app/internal/voice"

// Step sizes for the effect controls.
const (
	VolumeStep   = 10
	DelayStepMs  = 50
	FeedbackStep = 5
)

// AdjustEffects applies an effects action. ok is false for actions that
// do not touch effects. The result is clamped.
func AdjustEffects(fx voice.Effects, a Action) (voice.Effects, bool) {
	switch a {
	case ActionToggleDelay:
		fx.DelayEnabled = !fx.DelayEnabled
	case ActionVolumeUp:
		fx.VolumePct += VolumeStep
	case ActionVolumeDown:
		fx.VolumePct -= VolumeStep
	case ActionDelayShorter:
		fx.DelayTimeMs -= DelayStepMs
	case ActionDelayLonger:
		fx.DelayTimeMs += DelayStepMs
	case ActionFeedbackDown:
		fx.DelayFeedbackPct -= FeedbackStep
	case ActionFeedbackUp:
		fx.DelayFeedbackPct += FeedbackStep
	default:
		return fx, false
	}
	return fx.Clamp(), true
}

// Instrument maps an instrument action.
func Instrument(a Action) (voice.Instrument, bool) {
	switch a {
	case ActionPiano:
		return voice.Piano, true
	case ActionGuitar:
		return voice.Guitar, true
	}
	return "", false
}
