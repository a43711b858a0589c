package osc

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/constraints"
)

const twoPi = math.Pi * 2

// Waveform selects the periodic shape an Osc produces.
type Waveform int

const (
	Sine Waveform = iota
	Square
	Sawtooth
	Triangle
)

// Waveforms lists every supported shape in display order.
var Waveforms = []Waveform{Sine, Square, Sawtooth, Triangle}

func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Square:
		return "square"
	case Sawtooth:
		return "sawtooth"
	case Triangle:
		return "triangle"
	default:
		return fmt.Sprintf("Waveform(%d)", int(w))
	}
}

func (w Waveform) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

func (w *Waveform) UnmarshalText(b []byte) error {
	v, err := ParseWaveform(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sine", "sin":
		return Sine, nil
	case "square", "sqr":
		return Square, nil
	case "sawtooth", "saw":
		return Sawtooth, nil
	case "triangle", "tri":
		return Triangle, nil
	default:
		return Sine, fmt.Errorf("invalid waveform %q (expected sine|square|sawtooth|triangle)", s)
	}
}

// Next returns the waveform following w, wrapping around.
func (w Waveform) Next() Waveform {
	return Waveforms[(int(w)+1)%len(Waveforms)]
}

// Osc is a phase-accumulating oscillator producing values in [-1, 1].
// It holds no frequency of its own; callers pass the instantaneous frequency
// to Sample so that glides can be evaluated per frame.
type Osc struct {
	waveform Waveform
	phase    float64 // current phase [0, 1)
}

func New(w Waveform) *Osc {
	o := &Osc{}
	o.SetWaveform(w)
	return o
}

func (o *Osc) SetWaveform(w Waveform) {
	if w < Sine || w > Triangle {
		w = Sine
	}
	o.waveform = w
}

func (o *Osc) Waveform() Waveform { return o.waveform }

// Phase returns the current phase in [0, 1).
func (o *Osc) Phase() float64 { return o.phase }

// Sample returns the value at the current phase and advances it by one frame
// of freqHz at sampleRate. Returns 0 for non-positive frequency or rate.
func (o *Osc) Sample(freqHz, sampleRate float64) float64 {
	if freqHz <= 0 || sampleRate <= 0 {
		return 0
	}
	v := Shape(o.waveform, o.phase)

	o.phase += clamp(freqHz/sampleRate, 0, 0.5)
	for o.phase >= 1.0 {
		o.phase -= 1.0
	}
	return v
}

func (o *Osc) Reset() {
	o.phase = 0
}

// Shape evaluates one cycle of w at phase p in [0, 1).
func Shape(w Waveform, p float64) float64 {
	switch w {
	case Square:
		if p < 0.5 {
			return 1.0
		}
		return -1.0
	case Sawtooth:
		return 2.0*p - 1.0
	case Triangle:
		if p < 0.25 {
			return 4.0 * p
		}
		if p < 0.75 {
			return 2.0 - 4.0*p
		}
		return 4.0*p - 4.0
	default: // Sine
		return math.Sin(twoPi * p)
	}
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
