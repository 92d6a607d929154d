package audio

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peak(buf []float32) float64 {
	var m float64
	for _, s := range buf {
		m = math.Max(m, math.Abs(float64(s)))
	}
	return m
}

func running(t *testing.T, sr int) *Context {
	t.Helper()
	c := NewContext(sr)
	require.Equal(t, Suspended, c.State())
	require.NoError(t, c.Resume())
	return c
}

func TestSuspendedClockDoesNotMove(t *testing.T) {
	c := NewContext(1000)
	buf := make([]float32, 100)
	assert.Equal(t, 0, c.Render(buf))
	assert.Zero(t, c.Now())

	require.NoError(t, c.Resume())
	assert.Equal(t, 100, c.Render(buf))
	assert.InDelta(t, 0.1, c.Now(), eps)

	require.NoError(t, c.Suspend())
	c.Advance(time.Second)
	assert.InDelta(t, 0.1, c.Now(), eps)
}

func TestOscillatorThroughGain(t *testing.T) {
	c := running(t, 8000)
	osc := c.NewOscillator()
	osc.Frequency().Set(440)
	g := c.NewGain()
	g.Gain().Set(0.5)
	osc.Connect(g)
	g.Connect(c.Destination())
	require.NoError(t, osc.Start(0))

	buf := make([]float32, 800)
	c.Render(buf)
	assert.InDelta(t, 0.5, peak(buf), 0.01)
	assert.Equal(t, 1, c.ActiveSources())
	assert.True(t, g.ConnectedTo(c.Destination()))
	assert.Equal(t, 1, c.Destination().NumInputs())
}

func TestWaveforms(t *testing.T) {
	assert.InDelta(t, 0, Sine.at(0), eps)
	assert.InDelta(t, 1, Sine.at(0.25), eps)
	assert.InDelta(t, 0, Triangle.at(0), eps)
	assert.InDelta(t, 1, Triangle.at(0.25), eps)
	assert.InDelta(t, 0, Triangle.at(0.5), eps)
	assert.InDelta(t, -1, Triangle.at(0.75), eps)
	assert.InDelta(t, 1, Square.at(0.1), eps)
	assert.InDelta(t, -1, Square.at(0.6), eps)
	assert.InDelta(t, -1, Sawtooth.at(0), eps)
	assert.Equal(t, "triangle", Triangle.String())
}

func TestOscillatorLifecycleErrors(t *testing.T) {
	c := running(t, 1000)
	osc := c.NewOscillator()
	assert.ErrorIs(t, osc.Stop(0), ErrNotStarted)
	require.NoError(t, osc.Start(0))
	assert.ErrorIs(t, osc.Start(0), ErrAlreadyStarted)

	require.NoError(t, osc.Stop(0.5))
	require.NoError(t, osc.Stop(0.2), "a pending stop may move earlier")
	assert.InDelta(t, 0.2, osc.StopTime(), eps)

	c.Advance(300 * time.Millisecond)
	assert.False(t, osc.Playing())
	assert.ErrorIs(t, osc.Stop(1), ErrAlreadyStopped)
}

func TestStopNowSilencesImmediately(t *testing.T) {
	c := running(t, 1000)
	osc := c.NewOscillator()
	osc.Connect(c.Destination())
	require.NoError(t, osc.Start(0))
	c.Advance(50 * time.Millisecond)

	require.NoError(t, osc.Stop(c.Now()))
	assert.False(t, osc.Playing())
	assert.Equal(t, 0, c.ActiveSources())

	buf := make([]float32, 100)
	c.Render(buf)
	assert.Zero(t, peak(buf))
}

func TestOnEndedRunsOnce(t *testing.T) {
	c := running(t, 1000)
	osc := c.NewOscillator()
	g := c.NewGain()
	osc.Connect(g)
	g.Connect(c.Destination())
	calls := 0
	osc.OnEnded(func() {
		calls++
		g.Disconnect() // must not deadlock
	})
	require.NoError(t, osc.Start(0))
	require.NoError(t, osc.Stop(0.1))

	c.Advance(50 * time.Millisecond)
	assert.Zero(t, calls)
	c.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, c.Destination().NumInputs())
	c.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, calls)
}

func TestDelayFeedbackEchoes(t *testing.T) {
	const sr = 1000
	c := running(t, sr)

	delay := c.NewDelay(2)
	delay.DelayTime().Set(0.1)
	fb := c.NewGain()
	fb.Gain().Set(0.5)
	delay.Connect(fb)
	fb.Connect(delay)
	fb.Connect(c.Destination())

	// 10 ms impulse-ish burst of DC through a square at 0 Hz.
	osc := c.NewOscillator()
	osc.SetWaveform(Square)
	osc.Frequency().Set(0)
	osc.Connect(delay)
	require.NoError(t, osc.Start(0))
	require.NoError(t, osc.Stop(0.01))

	buf := make([]float32, 400)
	c.Render(buf)

	assert.Zero(t, peak(buf[:100]), "nothing before the first echo")
	assert.InDelta(t, 0.5, peak(buf[100:110]), eps, "first echo")
	assert.InDelta(t, 0.25, peak(buf[200:210]), eps, "second echo")
	assert.InDelta(t, 0.125, peak(buf[300:310]), eps, "third echo")
	assert.Equal(t, 2, delay.NumInputs(), "oscillator and feedback")
	assert.InDelta(t, 2.0, delay.MaxDelay(), eps)
}

func TestReadProducesFloat32LE(t *testing.T) {
	c := running(t, 1000)
	osc := c.NewOscillator()
	osc.SetWaveform(Square)
	osc.Frequency().Set(0)
	g := c.NewGain()
	g.Gain().Set(0.25)
	osc.Connect(g)
	g.Connect(c.Destination())
	require.NoError(t, osc.Start(0))

	p := make([]byte, 16)
	n, err := c.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	for i := 0; i < 4; i++ {
		v := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		assert.InDelta(t, 0.25, v, 1e-6)
	}
	assert.InDelta(t, 0.004, c.Now(), eps)
}

func TestClose(t *testing.T) {
	c := running(t, 1000)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Close(), ErrClosed)
	assert.ErrorIs(t, c.Resume(), ErrClosed)
	assert.ErrorIs(t, c.NewOscillator().Start(0), ErrClosed)

	_, err := c.Read(make([]byte, 8))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, Closed, c.State())
}
