package audio

import (
	"sort"
	"time"
)

type eventKind int

const (
	setValue eventKind = iota
	linearRamp
)

type event struct {
	kind  eventKind
	value float64
	time  float64 // seconds on the context clock
}

// Ramp describes one scheduled linear segment of a Param.
type Ramp struct {
	From, To   float64
	Start, End float64 // seconds on the context clock
}

// Duration returns the length of the segment.
func (r Ramp) Duration() time.Duration {
	return time.Duration((r.End - r.Start) * float64(time.Second))
}

// Segment is one linear stage of an envelope passed to Param.Schedule.
type Segment struct {
	To       float64
	Duration time.Duration
}

// Param is an automatable node parameter. Without scheduled events it
// holds a plain value; with events its value follows the timeline.
type Param struct {
	ctx    *Context
	name   string
	value  float64
	events []event // sorted by time
}

func newParam(ctx *Context, name string, value float64) *Param {
	return &Param{ctx: ctx, name: name, value: value}
}

// Name returns the parameter name ("gain", "frequency", "delayTime").
func (p *Param) Name() string { return p.name }

// Value returns the parameter value at the current clock time.
func (p *Param) Value() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.valueAt(p.ctx.now())
}

// ValueAt returns the value the timeline produces at t.
func (p *Param) ValueAt(t float64) float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.valueAt(t)
}

// Set drops every scheduled event and holds v from now on.
func (p *Param) Set(v float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.events = p.events[:0]
	p.value = v
}

// SetValueAtTime schedules a step to v at t.
func (p *Param) SetValueAtTime(v, t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.insert(event{kind: setValue, value: v, time: t})
}

// LinearRampToValueAtTime schedules a linear ramp from the previous event
// to v, ending at t.
func (p *Param) LinearRampToValueAtTime(v, t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	if len(p.events) == 0 {
		p.insert(event{kind: setValue, value: p.value, time: p.ctx.now()})
	}
	p.insert(event{kind: linearRamp, value: v, time: t})
}

// CancelScheduledValues removes every event at or after t.
func (p *Param) CancelScheduledValues(t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.cancel(t)
}

// ScheduleRamp replaces whatever is pending at or after start with a
// single linear ramp from `from` to `to` lasting d.
func (p *Param) ScheduleRamp(from, to, start float64, d time.Duration) Ramp {
	return p.Schedule(start, from, Segment{To: to, Duration: d})[0]
}

// Schedule replaces whatever is pending at or after start with an
// envelope: a step to from at start followed by each segment in turn.
// Events before start no longer influence the value and are discarded.
func (p *Param) Schedule(start, from float64, segs ...Segment) []Ramp {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()

	p.events = p.events[:0]
	p.value = from
	p.events = append(p.events, event{kind: setValue, value: from, time: start})

	ramps := make([]Ramp, 0, len(segs))
	t, v := start, from
	for _, s := range segs {
		end := t + s.Duration.Seconds()
		p.events = append(p.events, event{kind: linearRamp, value: s.To, time: end})
		ramps = append(ramps, Ramp{From: v, To: s.To, Start: t, End: end})
		t, v = end, s.To
	}
	return ramps
}

// Ramps returns the linear segments currently on the timeline.
func (p *Param) Ramps() []Ramp {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	var out []Ramp
	for i := 1; i < len(p.events); i++ {
		e := p.events[i]
		if e.kind != linearRamp {
			continue
		}
		prev := p.events[i-1]
		out = append(out, Ramp{From: prev.value, To: e.value, Start: prev.time, End: e.time})
	}
	return out
}

// Pending reports how many events are scheduled after t.
func (p *Param) Pending(t float64) int {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.time > t {
			n++
		}
	}
	return n
}

func (p *Param) insert(e event) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > e.time })
	p.events = append(p.events, event{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}

func (p *Param) cancel(t float64) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time >= t })
	p.events = p.events[:i]
}

func (p *Param) valueAt(t float64) float64 {
	if len(p.events) == 0 {
		return p.value
	}
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > t })
	if i == len(p.events) {
		return p.events[i-1].value
	}
	if i == 0 {
		return p.value
	}
	prev, next := p.events[i-1], p.events[i]
	if next.kind == linearRamp {
		frac := (t - prev.time) / (next.time - prev.time)
		return prev.value + (next.value-prev.value)*frac
	}
	return prev.value
}
