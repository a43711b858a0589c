package audio

import "sort"

type automationKind int

const (
	setValue automationKind = iota
	linearRamp
)

type automation struct {
	kind  automationKind
	value float64
	time  float64 // seconds on the context clock
}

// Param is a schedulable value read once per rendered frame, such as an
// oscillator frequency or a gain level. Times are seconds on the owning
// Context's clock (see Context.CurrentTime).
type Param struct {
	ctx      *Context
	value    float64 // value of the last elapsed automation point
	baseTime float64 // time of the last elapsed automation point
	events   []automation
}

func newParam(ctx *Context, v float64) *Param {
	return &Param{ctx: ctx, value: v}
}

// Value returns the parameter value at the context's current time.
func (p *Param) Value() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.valueAt(p.ctx.now())
}

// Target returns the value the parameter settles on once all scheduled
// automation has run.
func (p *Param) Target() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	if n := len(p.events); n > 0 {
		return p.events[n-1].value
	}
	return p.value
}

// SetValue drops all automation and sets the value immediately.
func (p *Param) SetValue(v float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.events = p.events[:0]
	p.value = v
	p.baseTime = p.ctx.now()
}

func (p *Param) SetValueAtTime(v, at float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.insert(automation{kind: setValue, value: v, time: at})
}

// LinearRampToValueAtTime glides from the previous scheduled point to v,
// arriving at time at.
func (p *Param) LinearRampToValueAtTime(v, at float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.insert(automation{kind: linearRamp, value: v, time: at})
}

// CancelScheduledValues removes every automation point at or after from.
func (p *Param) CancelScheduledValues(from float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	keep := p.events[:0]
	for _, e := range p.events {
		if e.time < from {
			keep = append(keep, e)
		}
	}
	p.events = keep
	p.prune(p.ctx.now())
}

// Pending reports how many automation points are scheduled.
func (p *Param) Pending() int {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return len(p.events)
}

func (p *Param) insert(e automation) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > e.time })
	p.events = append(p.events, automation{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
	p.prune(p.ctx.now())
}

// prune folds automation points at or before t into the base value. The
// clock never runs backwards, so only the last elapsed point matters.
func (p *Param) prune(t float64) {
	n := 0
	for n < len(p.events) && p.events[n].time <= t {
		p.value = p.events[n].value
		p.baseTime = p.events[n].time
		n++
	}
	if n > 0 {
		p.events = append(p.events[:0], p.events[n:]...)
	}
}

// valueAt evaluates the automation timeline. Caller holds ctx.mu.
func (p *Param) valueAt(t float64) float64 {
	prevT, prevV := p.baseTime, p.value
	for _, e := range p.events {
		if e.time <= t {
			prevT, prevV = e.time, e.value
			continue
		}
		if e.kind == linearRamp {
			span := e.time - prevT
			if span <= 0 {
				return e.value
			}
			frac := (t - prevT) / span
			if frac < 0 {
				frac = 0
			}
			return prevV + (e.value-prevV)*frac
		}
		return prevV
	}
	return prevV
}
