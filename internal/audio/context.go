package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/cbegin/justchord-go/internal/osc"
)

// State is the run state of a Context.
type State int

const (
	StateSuspended State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "suspended"
}

const DefaultSampleRate = 48000

// Options configures a Context.
type Options struct {
	SampleRate int
	Backend    Backend
}

func (o Options) withDefaults() Options {
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Backend == "" {
		o.Backend = BackendEbiten
	}
	return o
}

// Context owns a render graph and the output it feeds. It starts suspended;
// Resume must succeed before anything is heard. Control calls may come from
// any goroutine; the output pulls frames through Process on its own.
type Context struct {
	mu         sync.Mutex
	sampleRate int
	backend    Backend
	frame      int64
	state      State
	out        output
	dest       *Destination
	gains      map[*Gain]struct{}
}

// NewContext creates a suspended Context rendering to the configured backend.
// Prefer Shared outside tests: the hardware backends can be opened only once
// per process.
func NewContext(opts Options) (*Context, error) {
	opts = opts.withDefaults()
	c := &Context{
		sampleRate: opts.SampleRate,
		backend:    opts.Backend,
		gains:      make(map[*Gain]struct{}),
	}
	c.dest = &Destination{ctx: c}
	out, err := openOutput(opts.Backend, opts.SampleRate, c)
	if err != nil {
		return nil, err
	}
	c.out = out
	return c, nil
}

var (
	sharedMu      sync.Mutex
	sharedContext *Context
)

// Shared returns the process-wide Context, creating it on first use. A failed
// creation is not cached, so a later call may retry.
func Shared(opts Options) (*Context, error) {
	opts = opts.withDefaults()
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedContext != nil {
		if sharedContext.sampleRate != opts.SampleRate {
			return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", sharedContext.sampleRate, opts.SampleRate)
		}
		if sharedContext.backend != opts.Backend {
			return nil, fmt.Errorf("audio context already initialized with %s backend (requested %s)", sharedContext.backend, opts.Backend)
		}
		return sharedContext, nil
	}
	c, err := NewContext(opts)
	if err != nil {
		return nil, err
	}
	sharedContext = c
	return c, nil
}

func (c *Context) SampleRate() int  { return c.sampleRate }
func (c *Context) Backend() Backend { return c.backend }

func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentTime returns the number of seconds rendered so far. The clock only
// advances while the Context is running and its output is pulling frames.
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

func (c *Context) now() float64 {
	return float64(c.frame) / float64(c.sampleRate)
}

// Resume starts the output and blocks until it reports ready or ctx ends.
// It is a no-op on a running Context.
func (c *Context) Resume(ctx context.Context) error {
	if c.State() == StateRunning {
		return nil
	}
	if err := c.out.start(ctx); err != nil {
		return fmt.Errorf("resume %s output: %w", c.backend, err)
	}
	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()
	return nil
}

// Suspend pauses the output. The graph and clock are kept.
func (c *Context) Suspend() {
	c.out.pause()
	c.mu.Lock()
	c.state = StateSuspended
	c.mu.Unlock()
}

func (c *Context) Destination() *Destination { return c.dest }

func (c *Context) NewOscillator(w osc.Waveform, freq float64) *Oscillator {
	return &Oscillator{
		ctx:       c,
		osc:       osc.New(w),
		frequency: newParam(c, freq),
		lastFrame: -1,
	}
}

func (c *Context) NewGain(level float64) *Gain {
	g := &Gain{ctx: c, level: newParam(c, level)}
	c.mu.Lock()
	c.gains[g] = struct{}{}
	c.mu.Unlock()
	return g
}

// Connect routes the output of src into dst.
func (c *Context) Connect(src, dst Node) error {
	if src == nil || dst == nil {
		return fmt.Errorf("audio: connect nil node")
	}
	if src.owner() != c || dst.owner() != c {
		return ErrForeignNode
	}
	s, ok := dst.(sink)
	if !ok {
		return fmt.Errorf("audio: %T accepts no inputs", dst)
	}
	if _, isDest := src.(*Destination); isDest {
		return ErrNotSink
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s.addInput(src)
	return nil
}

// Disconnect removes n from every node it feeds. Disconnected gains also
// drop their own inputs and are forgotten by the Context.
func (c *Context) Disconnect(n Node) {
	if n == nil || n.owner() != c {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dest.removeInput(n)
	for g := range c.gains {
		g.removeInput(n)
	}
	if g, ok := n.(*Gain); ok {
		g.inputs = nil
		delete(c.gains, g)
	}
}

// Inputs returns how many nodes feed the destination directly.
func (c *Context) Inputs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dest.inputs)
}

// Process renders interleaved stereo frames into dst. A suspended Context
// renders silence and does not advance its clock.
func (c *Context) Process(dst []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	for i := 0; i+1 < len(dst); i += 2 {
		v := c.dest.sample(c.frame, c.now())
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		dst[i] = float32(v)
		dst[i+1] = float32(v)
		c.frame++
	}
}
