package audio

import "math"

// Node is anything that produces one sample per frame.
type Node interface {
	sample(frame uint64, t float64) float64
}

// Input is a node other nodes can connect into.
type Input interface {
	Node
	addInput(src Node)
	removeInput(src Node)
}

type inputs struct {
	srcs []Node
}

func (in *inputs) addInput(src Node) {
	for _, s := range in.srcs {
		if s == src {
			return
		}
	}
	in.srcs = append(in.srcs, src)
}

func (in *inputs) removeInput(src Node) {
	for i, s := range in.srcs {
		if s == src {
			in.srcs = append(in.srcs[:i], in.srcs[i+1:]...)
			return
		}
	}
}

func (in *inputs) sum(frame uint64, t float64) float64 {
	var v float64
	for _, s := range in.srcs {
		v += s.sample(frame, t)
	}
	return v
}

type outputs struct {
	dsts []Input
}

func (o *outputs) connect(self Node, dst Input) {
	for _, d := range o.dsts {
		if d == dst {
			return
		}
	}
	dst.addInput(self)
	o.dsts = append(o.dsts, dst)
}

func (o *outputs) disconnect(self Node) {
	for _, d := range o.dsts {
		d.removeInput(self)
	}
	o.dsts = nil
}

// memo caches a node's output for the frame being rendered, so a node
// feeding several destinations is evaluated once per frame.
type memo struct {
	stamp  uint64 // frame+1
	value  float64
	active bool
}

// -------------------- Gain --------------------

// Gain sums its inputs and scales them by its gain parameter.
type Gain struct {
	ctx  *Context
	gain *Param
	inputs
	outputs
	memo
}

// Gain returns the gain parameter.
func (g *Gain) Gain() *Param { return g.gain }

// Connect routes this node's output into dst.
func (g *Gain) Connect(dst Input) {
	g.ctx.mu.Lock()
	defer g.ctx.mu.Unlock()
	g.outputs.connect(g, dst)
}

// Disconnect removes every outgoing connection.
func (g *Gain) Disconnect() {
	g.ctx.mu.Lock()
	defer g.ctx.mu.Unlock()
	g.outputs.disconnect(g)
}

// NumInputs returns how many nodes feed this one.
func (g *Gain) NumInputs() int {
	g.ctx.mu.Lock()
	defer g.ctx.mu.Unlock()
	return len(g.srcs)
}

// ConnectedTo reports whether this node outputs into dst.
func (g *Gain) ConnectedTo(dst Input) bool {
	g.ctx.mu.Lock()
	defer g.ctx.mu.Unlock()
	for _, d := range g.dsts {
		if d == dst {
			return true
		}
	}
	return false
}

func (g *Gain) sample(frame uint64, t float64) float64 {
	if g.stamp == frame+1 {
		return g.value
	}
	// A cycle without a delay in it contributes silence.
	if g.active {
		return 0
	}
	g.active = true
	v := g.inputs.sum(frame, t) * g.gain.valueAt(t)
	g.active = false
	g.stamp, g.memo.value = frame+1, v
	return v
}

// -------------------- Delay --------------------

// Delay outputs its input delayed by delayTime seconds. Its output only
// depends on past input, so it may sit inside a feedback cycle.
type Delay struct {
	ctx       *Context
	delayTime *Param
	maxDelay  float64
	ring      []float64
	w         int
	inputs
	outputs
	memo
}

// DelayTime returns the delay parameter in seconds.
func (d *Delay) DelayTime() *Param { return d.delayTime }

// MaxDelay returns the longest supported delay in seconds.
func (d *Delay) MaxDelay() float64 { return d.maxDelay }

// Connect routes this node's output into dst.
func (d *Delay) Connect(dst Input) {
	d.ctx.mu.Lock()
	defer d.ctx.mu.Unlock()
	d.outputs.connect(d, dst)
}

// NumInputs returns how many nodes feed this one.
func (d *Delay) NumInputs() int {
	d.ctx.mu.Lock()
	defer d.ctx.mu.Unlock()
	return len(d.srcs)
}

func (d *Delay) sample(frame uint64, t float64) float64 {
	if d.stamp == frame+1 {
		return d.memo.value
	}
	lag := int(math.Round(d.delayTime.valueAt(t) * float64(d.ctx.sampleRate)))
	if lag < 1 {
		lag = 1
	}
	if lag > len(d.ring)-1 {
		lag = len(d.ring) - 1
	}
	n := len(d.ring)
	v := d.ring[(d.w-lag+n)%n]
	d.stamp, d.memo.value = frame+1, v
	return v
}

// advance writes this frame's input into the ring. It runs after every
// output of the frame has been read.
func (d *Delay) advance(frame uint64, t float64) {
	d.ring[d.w] = d.inputs.sum(frame, t)
	d.w = (d.w + 1) % len(d.ring)
}

// -------------------- Oscillator --------------------

// Waveform selects the oscillator shape.
type Waveform int

const (
	Sine Waveform = iota
	Triangle
	Square
	Sawtooth
)

func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Triangle:
		return "triangle"
	case Square:
		return "square"
	case Sawtooth:
		return "sawtooth"
	}
	return "unknown"
}

func (w Waveform) at(phase float64) float64 {
	switch w {
	case Triangle:
		// 0 at phase 0, peak at 1/4, trough at 3/4.
		switch {
		case phase < 0.25:
			return 4 * phase
		case phase < 0.75:
			return 2 - 4*phase
		default:
			return 4*phase - 4
		}
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		return 2*phase - 1
	}
	return math.Sin(2 * math.Pi * phase)
}

// Oscillator is a periodic source. It sounds between its start and stop
// times and can be started once.
type Oscillator struct {
	ctx       *Context
	frequency *Param
	wave      Waveform
	phase     float64
	start     float64
	stop      float64
	started   bool
	ended     bool
	onEnded   func()
	outputs
	memo
}

// Frequency returns the frequency parameter in Hz.
func (o *Oscillator) Frequency() *Param { return o.frequency }

// SetWaveform selects the shape.
func (o *Oscillator) SetWaveform(w Waveform) {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	o.wave = w
}

// Waveform returns the current shape.
func (o *Oscillator) Waveform() Waveform {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	return o.wave
}

// Connect routes this node's output into dst.
func (o *Oscillator) Connect(dst Input) {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	o.outputs.connect(o, dst)
}

// OnEnded registers fn to run once the oscillator has passed its stop
// time. fn runs on the rendering goroutine without the context lock held.
func (o *Oscillator) OnEnded(fn func()) {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	o.onEnded = fn
}

// Start begins playback at t (clamped to now).
func (o *Oscillator) Start(t float64) error {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if o.ctx.state == Closed {
		return ErrClosed
	}
	if o.started {
		return ErrAlreadyStarted
	}
	if now := o.ctx.now(); t < now {
		t = now
	}
	o.started = true
	o.start = t
	o.stop = math.Inf(1)
	o.ctx.sources = append(o.ctx.sources, o)
	return nil
}

// Stop schedules the end of playback at t (clamped to now). A stop that is
// still in the future may be moved; a stop that already happened may not.
func (o *Oscillator) Stop(t float64) error {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if !o.started {
		return ErrNotStarted
	}
	now := o.ctx.now()
	if o.ended || o.stop <= now {
		return ErrAlreadyStopped
	}
	if t < now {
		t = now
	}
	o.stop = t
	return nil
}

// StopTime returns the scheduled stop, +Inf when none.
func (o *Oscillator) StopTime() float64 {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if !o.started {
		return math.Inf(1)
	}
	return o.stop
}

// Playing reports whether the oscillator is audible at the current clock.
func (o *Oscillator) Playing() bool {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	return o.playingAt(o.ctx.now())
}

func (o *Oscillator) playingAt(t float64) bool {
	return o.started && !o.ended && t >= o.start && t < o.stop
}

func (o *Oscillator) sample(frame uint64, t float64) float64 {
	if o.stamp == frame+1 {
		return o.memo.value
	}
	var v float64
	if o.playingAt(t) {
		v = o.wave.at(o.phase)
		o.phase += o.frequency.valueAt(t) / float64(o.ctx.sampleRate)
		o.phase -= math.Floor(o.phase)
	}
	o.stamp, o.memo.value = frame+1, v
	return v
}
