// Package midiexport writes a chord as a Standard MIDI File. Each chord tone
// gets its own channel and a pitch bend, so just-intoned tones survive the
// trip through twelve-tone MIDI.
package midiexport

import (
	"fmt"
	"io"
	"math"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	ticksPerQuarter = 960
	maxBend         = 8191
	minBend         = -8192
)

type Options struct {
	Seconds   float64
	BPM       float64
	BendRange int // semitones, sent to every channel as RPN 0
	Velocity  uint8
	Name      string
}

func DefaultOptions() Options {
	return Options{Seconds: 4, BPM: 120, BendRange: 2, Velocity: 100, Name: "justchord"}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Seconds <= 0 {
		o.Seconds = d.Seconds
	}
	if o.BPM <= 0 {
		o.BPM = d.BPM
	}
	if o.BendRange <= 0 || o.BendRange > 24 {
		o.BendRange = d.BendRange
	}
	if o.Velocity == 0 || o.Velocity > 127 {
		o.Velocity = d.Velocity
	}
	return o
}

// Note is a frequency expressed as the nearest MIDI key plus a bend.
type Note struct {
	Key   uint8
	Cents float64
	Bend  int16
}

// NoteFor maps freqHz onto the nearest MIDI key (A4 = 69 = 440 Hz) and the
// pitch bend that covers the remainder at the given bend range.
func NoteFor(freqHz float64, bendRange int) (Note, error) {
	if freqHz <= 0 || math.IsNaN(freqHz) || math.IsInf(freqHz, 0) {
		return Note{}, fmt.Errorf("frequency %v out of range", freqHz)
	}
	if bendRange <= 0 {
		return Note{}, fmt.Errorf("bend range %d must be positive", bendRange)
	}
	exact := 69 + 12*math.Log2(freqHz/440)
	key := math.Round(exact)
	if key < 0 || key > 127 {
		return Note{}, fmt.Errorf("frequency %.2f Hz is outside the MIDI key range", freqHz)
	}
	cents := (exact - key) * 100
	bend := math.Round(cents / (float64(bendRange) * 100) * 8192)
	if bend > maxBend {
		bend = maxBend
	} else if bend < minBend {
		bend = minBend
	}
	return Note{Key: uint8(key), Cents: cents, Bend: int16(bend)}, nil
}

// Write encodes the sounding tones of freqs as a single-track SMF. Slot i
// plays on channel i.
func Write(w io.Writer, freqs [3]float64, sounding [3]bool, opts Options) error {
	opts = opts.withDefaults()

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(opts.Name))
	tr.Add(0, smf.MetaTempo(opts.BPM))

	type voice struct{ ch, key uint8 }
	var voices []voice
	for i, f := range freqs {
		if !sounding[i] {
			continue
		}
		n, err := NoteFor(f, opts.BendRange)
		if err != nil {
			return fmt.Errorf("tone %d: %w", i, err)
		}
		ch := uint8(i)
		tr.Add(0, midi.ControlChange(ch, 101, 0))
		tr.Add(0, midi.ControlChange(ch, 100, 0))
		tr.Add(0, midi.ControlChange(ch, 6, uint8(opts.BendRange)))
		tr.Add(0, midi.ControlChange(ch, 38, 0))
		tr.Add(0, midi.Pitchbend(ch, n.Bend))
		tr.Add(0, midi.NoteOn(ch, n.Key, opts.Velocity))
		voices = append(voices, voice{ch: ch, key: n.Key})
	}

	length := uint32(math.Round(opts.Seconds * opts.BPM / 60 * ticksPerQuarter))
	delta := length
	for _, v := range voices {
		tr.Add(delta, midi.NoteOff(v.ch, v.key))
		delta = 0
	}
	tr.Close(delta)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ticksPerQuarter)
	if err := s.Add(tr); err != nil {
		return err
	}
	_, err := s.WriteTo(w)
	return err
}
