// Package audio is a small declarative audio graph: nodes are wired
// once, parameters are automated against a monotonic sample clock, and
// the graph is rendered to mono float32 PCM on demand.
//
// The clock only advances while the context is running and something
// pulls samples, either an output device through Read or a test through
// Render. Scheduling never sleeps.
package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"time"
)

// DefaultSampleRate is used when NewContext is given a non-positive rate.
const DefaultSampleRate = 44100

var (
	ErrClosed         = errors.New("audio: context closed")
	ErrNotStarted     = errors.New("audio: oscillator not started")
	ErrAlreadyStarted = errors.New("audio: oscillator already started")
	ErrAlreadyStopped = errors.New("audio: oscillator already stopped")
)

// State is the lifecycle of a Context.
type State int

const (
	Suspended State = iota
	Running
	Closed
)

func (s State) String() string {
	switch s {
	case Suspended:
		return "suspended"
	case Running:
		return "running"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Context owns the clock and every node created from it. All node and
// parameter methods are safe for concurrent use with rendering.
type Context struct {
	mu         sync.Mutex
	sampleRate int
	frame      uint64
	state      State
	dest       *Gain
	delays     []*Delay
	sources    []*Oscillator // started and not yet ended
	scratch    []float32
}

// NewContext returns a suspended context. Resume it before expecting the
// clock to move.
func NewContext(sampleRate int) *Context {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	c := &Context{sampleRate: sampleRate}
	c.dest = &Gain{ctx: c}
	c.dest.gain = newParam(c, "gain", 1)
	return c
}

// SampleRate returns frames per second.
func (c *Context) SampleRate() int { return c.sampleRate }

// Now returns the clock in seconds.
func (c *Context) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

func (c *Context) now() float64 {
	return float64(c.frame) / float64(c.sampleRate)
}

// State returns the lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resume lets the clock run.
func (c *Context) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return ErrClosed
	}
	c.state = Running
	return nil
}

// Suspend freezes the clock; rendering yields silence meanwhile.
func (c *Context) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return ErrClosed
	}
	c.state = Suspended
	return nil
}

// Close releases the graph. Further rendering yields io.EOF.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return ErrClosed
	}
	c.state = Closed
	c.delays = nil
	c.sources = nil
	c.dest.srcs = nil
	return nil
}

// Destination is the node that reaches the output device.
func (c *Context) Destination() *Gain { return c.dest }

// NewGain creates a gain node with unity gain.
func (c *Context) NewGain() *Gain {
	g := &Gain{ctx: c}
	g.gain = newParam(c, "gain", 1)
	return g
}

// NewDelay creates a delay line able to hold maxDelay seconds.
func (c *Context) NewDelay(maxDelay float64) *Delay {
	if maxDelay <= 0 {
		maxDelay = 1
	}
	d := &Delay{
		ctx:      c,
		maxDelay: maxDelay,
		ring:     make([]float64, int(maxDelay*float64(c.sampleRate))+2),
	}
	d.delayTime = newParam(c, "delayTime", 0)
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.mu.Unlock()
	return d
}

// NewOscillator creates a 440 Hz sine oscillator, not yet started.
func (c *Context) NewOscillator() *Oscillator {
	o := &Oscillator{ctx: c, wave: Sine}
	o.frequency = newParam(c, "frequency", 440)
	return o
}

// ActiveSources returns how many oscillators are audible right now.
func (c *Context) ActiveSources() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	now := c.now()
	for _, o := range c.sources {
		if o.playingAt(now) {
			n++
		}
	}
	return n
}

// Render fills out with consecutive mono frames and advances the clock
// by len(out) frames. It returns the number of frames rendered, 0 when
// the context is not running (out is zeroed).
func (c *Context) Render(out []float32) int {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		for i := range out {
			out[i] = 0
		}
		return 0
	}
	sr := float64(c.sampleRate)
	for i := range out {
		f := c.frame
		t := float64(f) / sr
		v := c.dest.sample(f, t)
		for _, d := range c.delays {
			d.sample(f, t)
			d.advance(f, t)
		}
		out[i] = float32(math.Max(-1, math.Min(1, v)))
		c.frame++
	}
	ended := c.sweep()
	c.mu.Unlock()

	for _, fn := range ended {
		fn()
	}
	return len(out)
}

// Advance renders and discards d worth of audio.
func (c *Context) Advance(d time.Duration) {
	n := int(d.Seconds() * float64(c.sampleRate))
	buf := make([]float32, 1024)
	for n > 0 {
		k := min(n, len(buf))
		if c.Render(buf[:k]) == 0 {
			return
		}
		n -= k
	}
}

// Read implements io.Reader over float32 little-endian mono PCM, the
// format output devices pull.
func (c *Context) Read(p []byte) (int, error) {
	if c.State() == Closed {
		return 0, io.EOF
	}
	frames := len(p) / 4
	if cap(c.scratch) < frames {
		c.scratch = make([]float32, frames)
	}
	samples := c.scratch[:frames]
	c.Render(samples)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return frames * 4, nil
}

// sweep retires oscillators past their stop time and returns their
// ended callbacks. Caller holds c.mu.
func (c *Context) sweep() []func() {
	now := c.now()
	var ended []func()
	kept := c.sources[:0]
	for _, o := range c.sources {
		if now >= o.stop {
			o.ended = true
			if o.onEnded != nil {
				ended = append(ended, o.onEnded)
			}
			continue
		}
		kept = append(kept, o)
	}
	for i := len(kept); i < len(c.sources); i++ {
		c.sources[i] = nil
	}
	c.sources = kept
	return ended
}
