package audio

import (
	"errors"

	"github.com/cbegin/justchord-go/internal/osc"
)

var (
	ErrAlreadyStarted = errors.New("audio: oscillator already started")
	ErrNotStarted     = errors.New("audio: oscillator not started")
	ErrAlreadyStopped = errors.New("audio: oscillator already stopped")
	ErrForeignNode    = errors.New("audio: node belongs to another context")
	ErrNotSink        = errors.New("audio: destination node accepts no inputs")
)

// Node is anything that can be wired into a Context's render graph.
type Node interface {
	owner() *Context
	// sample returns the node output for frame. Caller holds ctx.mu.
	sample(frame int64, t float64) float64
}

type sink interface {
	Node
	addInput(Node)
	removeInput(Node)
}

// Oscillator is a single-use tone generator. It sounds between Start and
// Stop and cannot be restarted, like a Web Audio OscillatorNode.
type Oscillator struct {
	ctx       *Context
	osc       *osc.Osc
	frequency *Param
	started   bool
	stopped   bool
	startAt   float64
	stopAt    float64
	lastFrame int64
	lastValue float64
}

func (o *Oscillator) owner() *Context { return o.ctx }

// Frequency is the oscillator frequency in Hz.
func (o *Oscillator) Frequency() *Param { return o.frequency }

func (o *Oscillator) SetWaveform(w osc.Waveform) {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	o.osc.SetWaveform(w)
}

func (o *Oscillator) Waveform() osc.Waveform {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	return o.osc.Waveform()
}

// Start schedules the oscillator to begin at time at.
func (o *Oscillator) Start(at float64) error {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if o.started {
		return ErrAlreadyStarted
	}
	o.started = true
	o.startAt = at
	return nil
}

// Stop schedules the oscillator to end at time at. Stopping twice returns
// ErrAlreadyStopped.
func (o *Oscillator) Stop(at float64) error {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if !o.started {
		return ErrNotStarted
	}
	if o.stopped {
		return ErrAlreadyStopped
	}
	o.stopped = true
	o.stopAt = at
	return nil
}

// Playing reports whether the oscillator sounds at the current time.
func (o *Oscillator) Playing() bool {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	return o.activeAt(o.ctx.now())
}

func (o *Oscillator) activeAt(t float64) bool {
	if !o.started || t < o.startAt {
		return false
	}
	return !o.stopped || t < o.stopAt
}

func (o *Oscillator) sample(frame int64, t float64) float64 {
	if o.lastFrame == frame {
		return o.lastValue
	}
	o.lastFrame = frame
	o.lastValue = 0
	if o.activeAt(t) {
		o.lastValue = o.osc.Sample(o.frequency.valueAt(t), float64(o.ctx.sampleRate))
	}
	return o.lastValue
}

// Gain scales the sum of its inputs by Level.
type Gain struct {
	ctx    *Context
	level  *Param
	inputs []Node
}

func (g *Gain) owner() *Context { return g.ctx }

// Level is the linear amplitude factor, 1.0 being unity.
func (g *Gain) Level() *Param { return g.level }

func (g *Gain) addInput(n Node)    { g.inputs = appendUnique(g.inputs, n) }
func (g *Gain) removeInput(n Node) { g.inputs = removeNode(g.inputs, n) }

func (g *Gain) sample(frame int64, t float64) float64 {
	if len(g.inputs) == 0 {
		return 0
	}
	var sum float64
	for _, in := range g.inputs {
		sum += in.sample(frame, t)
	}
	return sum * g.level.valueAt(t)
}

// Destination is the final mix bus of a Context.
type Destination struct {
	ctx    *Context
	inputs []Node
}

func (d *Destination) owner() *Context { return d.ctx }

func (d *Destination) addInput(n Node)    { d.inputs = appendUnique(d.inputs, n) }
func (d *Destination) removeInput(n Node) { d.inputs = removeNode(d.inputs, n) }

func (d *Destination) sample(frame int64, t float64) float64 {
	var sum float64
	for _, in := range d.inputs {
		sum += in.sample(frame, t)
	}
	return sum
}

func appendUnique(nodes []Node, n Node) []Node {
	for _, x := range nodes {
		if x == n {
			return nodes
		}
	}
	return append(nodes, n)
}

func removeNode(nodes []Node, n Node) []Node {
	out := nodes[:0]
	for _, x := range nodes {
		if x != n {
			out = append(out, x)
		}
	}
	return out
}
