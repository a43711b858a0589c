package midiexport

import (
	"bytes"
	"math"
	"testing"

	"gitlab.com/gomidi/midi/v2/smf"
)

func TestNoteFor(t *testing.T) {
	cases := []struct {
		freq  float64
		key   uint8
		bend  int16
		cents float64
	}{
		{440, 69, 0, 0},
		{550, 73, -561, -13.686},
		{660, 76, 80, 1.955},
		{261.6255653, 60, 0, 0},
	}
	for _, tc := range cases {
		n, err := NoteFor(tc.freq, 2)
		if err != nil {
			t.Fatalf("NoteFor(%v): %v", tc.freq, err)
		}
		if n.Key != tc.key || n.Bend != tc.bend {
			t.Fatalf("NoteFor(%v) = key %d bend %d, want key %d bend %d", tc.freq, n.Key, n.Bend, tc.key, tc.bend)
		}
		if math.Abs(n.Cents-tc.cents) > 1e-3 {
			t.Fatalf("NoteFor(%v) cents = %f, want %f", tc.freq, n.Cents, tc.cents)
		}
	}
}

func TestNoteForRejectsOutOfRange(t *testing.T) {
	for _, f := range []float64{0, -1, 1, 20000, math.NaN()} {
		if _, err := NoteFor(f, 2); err == nil {
			t.Fatalf("NoteFor(%v) should fail", f)
		}
	}
	if _, err := NoteFor(440, 0); err == nil {
		t.Fatal("zero bend range should fail")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	freqs := [3]float64{440, 550, 660}
	if err := Write(&buf, freqs, [3]bool{true, true, true}, Options{Seconds: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(s.Tracks) != 1 {
		t.Fatalf("tracks = %d, want 1", len(s.Tracks))
	}

	keys := map[uint8]uint8{}
	bends := map[uint8]int16{}
	var offTick int64
	var abs int64
	for _, ev := range s.Tracks[0] {
		abs += int64(ev.Delta)
		var ch, key, vel uint8
		var rel int16
		var absBend uint16
		switch {
		case ev.Message.GetNoteOn(&ch, &key, &vel):
			keys[ch] = key
		case ev.Message.GetNoteOff(&ch, &key, &vel):
			offTick = abs
		case ev.Message.GetPitchBend(&ch, &rel, &absBend):
			bends[ch] = rel
		}
	}
	if keys[0] != 69 || keys[1] != 73 || keys[2] != 76 {
		t.Fatalf("keys = %v", keys)
	}
	if bends[0] != 0 || bends[1] != -561 || bends[2] != 80 {
		t.Fatalf("bends = %v", bends)
	}
	// Two seconds at 120 BPM is four quarter notes.
	if offTick != 4*ticksPerQuarter {
		t.Fatalf("note off at tick %d, want %d", offTick, 4*ticksPerQuarter)
	}
}

func TestWriteSkipsSilentTones(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, [3]float64{440, 0, 660}, [3]bool{true, false, false}, DefaultOptions()); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	ons := 0
	for _, ev := range s.Tracks[0] {
		var ch, key, vel uint8
		if ev.Message.GetNoteOn(&ch, &key, &vel) {
			ons++
		}
	}
	if ons != 1 {
		t.Fatalf("note ons = %d, want 1", ons)
	}
}

func TestWriteReportsBadFrequency(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, [3]float64{440, -1, 660}, [3]bool{true, true, true}, DefaultOptions()); err == nil {
		t.Fatal("expected error for negative frequency")
	}
}
