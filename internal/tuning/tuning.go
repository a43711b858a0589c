package tuning

import (
	"fmt"
	"math"
	"strings"
)

// PitchClass is one of the twelve chromatic steps, with its semitone offset
// from the reference pitch A.
type PitchClass struct {
	Label  string
	Offset int
}

// PitchClasses lists the chromatic scale from C, so that index order matches
// ascending semitones and A carries offset 0.
var PitchClasses = [12]PitchClass{
	{Label: "C", Offset: -9},
	{Label: "C#", Offset: -8},
	{Label: "D", Offset: -7},
	{Label: "D#", Offset: -6},
	{Label: "E", Offset: -5},
	{Label: "F", Offset: -4},
	{Label: "F#", Offset: -3},
	{Label: "G", Offset: -2},
	{Label: "G#", Offset: -1},
	{Label: "A", Offset: 0},
	{Label: "A#", Offset: 1},
	{Label: "B", Offset: 2},
}

// Placeholder is the note label used when a root pitch cannot be resolved.
const Placeholder = "?"

const (
	DefaultReference = 440.0
	DefaultRoot      = "A"
	MinOctave        = -2
	MaxOctave        = 2
)

// PitchIndex returns the index of label in PitchClasses.
func PitchIndex(label string) (int, bool) {
	for i, p := range PitchClasses {
		if p.Label == label {
			return i, true
		}
	}
	return -1, false
}

type Quality int

const (
	Major Quality = iota
	Minor
)

func (q Quality) String() string {
	switch q {
	case Major:
		return "major"
	case Minor:
		return "minor"
	default:
		return fmt.Sprintf("Quality(%d)", int(q))
	}
}

func (q Quality) MarshalText() ([]byte, error) { return []byte(q.String()), nil }

func (q *Quality) UnmarshalText(b []byte) error {
	v, err := ParseQuality(string(b))
	if err != nil {
		return err
	}
	*q = v
	return nil
}

func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "major", "maj":
		return Major, nil
	case "minor", "min":
		return Minor, nil
	default:
		return Major, fmt.Errorf("invalid chord quality %q (expected major|minor)", s)
	}
}

// Intervals returns the semitone distance of each chord tone from the root.
func (q Quality) Intervals() [3]int {
	if q == Minor {
		return [3]int{0, 3, 7}
	}
	return [3]int{0, 4, 7}
}

type System int

const (
	Equal System = iota
	Just
)

func (s System) String() string {
	switch s {
	case Equal:
		return "equal"
	case Just:
		return "just"
	default:
		return fmt.Sprintf("System(%d)", int(s))
	}
}

func (s System) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *System) UnmarshalText(b []byte) error {
	v, err := ParseSystem(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseSystem(s string) (System, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equal", "et", "12tet":
		return Equal, nil
	case "just", "ji":
		return Just, nil
	default:
		return Equal, fmt.Errorf("invalid tuning system %q (expected equal|just)", s)
	}
}

// Params selects a chord. Octave is a whole-octave shift applied to the root.
type Params struct {
	Reference float64
	Root      string
	Quality   Quality
	System    System
	Octave    int
}

func DefaultParams() Params {
	return Params{
		Reference: DefaultReference,
		Root:      DefaultRoot,
		Quality:   Major,
		System:    Equal,
	}
}

// RootFrequency returns the frequency of the chord root in Hz. An unknown
// root label yields the reference frequency unchanged.
func RootFrequency(p Params) float64 {
	idx, ok := PitchIndex(p.Root)
	if !ok {
		return p.Reference
	}
	offset := PitchClasses[idx].Offset
	return p.Reference * math.Pow(2, float64(offset)/12) * math.Pow(2, float64(p.Octave))
}

// Ratios returns the frequency ratio of each chord tone to the root.
func Ratios(q Quality, s System) [3]float64 {
	if s == Just {
		if q == Minor {
			return [3]float64{1, 6.0 / 5.0, 3.0 / 2.0}
		}
		return [3]float64{1, 5.0 / 4.0, 3.0 / 2.0}
	}
	iv := q.Intervals()
	var out [3]float64
	for i, semis := range iv {
		out[i] = math.Pow(2, float64(semis)/12)
	}
	return out
}

// ChordFrequencies returns root, third and fifth in Hz.
func ChordFrequencies(p Params) [3]float64 {
	root := RootFrequency(p)
	ratios := Ratios(p.Quality, p.System)
	var out [3]float64
	for i, r := range ratios {
		if i == 0 {
			out[i] = root
			continue
		}
		out[i] = root * r
	}
	return out
}

// ChordNoteNames returns the labels of root, third and fifth. An unknown root
// yields three placeholders.
func ChordNoteNames(root string, q Quality) [3]string {
	idx, ok := PitchIndex(root)
	if !ok {
		return [3]string{Placeholder, Placeholder, Placeholder}
	}
	var out [3]string
	for i, iv := range q.Intervals() {
		out[i] = PitchClasses[(idx+iv)%12].Label
	}
	return out
}

// Cents returns the signed distance from ref to f in cents.
func Cents(f, ref float64) float64 {
	if f <= 0 || ref <= 0 {
		return 0
	}
	return 1200 * math.Log2(f/ref)
}

// EqualDeviation returns, per chord tone, the distance in cents between the
// tuned frequency and the equal-tempered frequency of the same tone.
func EqualDeviation(p Params) [3]float64 {
	tuned := ChordFrequencies(p)
	eq := p
	eq.System = Equal
	ref := ChordFrequencies(eq)
	var out [3]float64
	for i := range tuned {
		out[i] = Cents(tuned[i], ref[i])
	}
	return out
}

// ClampOctave limits an octave shift to the supported range.
func ClampOctave(o int) int {
	if o < MinOctave {
		return MinOctave
	}
	if o > MaxOctave {
		return MaxOctave
	}
	return o
}
