package tone

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/Southclaws/fault/ftag"

	"github.com/cbegin/justchord-go/internal/audio"
	"github.com/cbegin/justchord-go/internal/osc"
	"github.com/cbegin/justchord-go/internal/tuning"
)

// fakeDevice wraps a headless context and injects failures.
type fakeDevice struct {
	Device
	resumeErr  error
	genErr     error
	connectErr error
	generators int
}

func (f *fakeDevice) Resume(ctx context.Context) error {
	if f.resumeErr != nil {
		return f.resumeErr
	}
	return f.Device.Resume(ctx)
}

func (f *fakeDevice) NewGenerator(w osc.Waveform, freqHz float64) (Generator, error) {
	f.generators++
	if f.genErr != nil {
		return nil, f.genErr
	}
	return f.Device.NewGenerator(w, freqHz)
}

func (f *fakeDevice) Connect(src, dst audio.Node) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	return f.Device.Connect(src, dst)
}

func newTestEngine(t *testing.T) (*Engine, *fakeDevice, *audio.Context) {
	t.Helper()
	c, err := audio.NewContext(audio.Options{SampleRate: 1000, Backend: audio.BackendHeadless})
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	dev := &fakeDevice{Device: FromContext(c)}
	e := New(func() (Device, error) { return dev, nil }, DefaultParams(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return e, dev, c
}

func assertConsistent(t *testing.T, e *Engine) {
	t.Helper()
	playing := e.Playing()
	for i := 0; i < NumSlots; i++ {
		if playing[i] != (e.Tone(Slot(i)) != nil) {
			t.Fatalf("slot %d: playing=%v but tone=%v", i, playing[i], e.Tone(Slot(i)))
		}
	}
}

func TestToggleStartsAndStopsTone(t *testing.T) {
	e, _, c := newTestEngine(t)
	if e.Unlocked() {
		t.Fatal("engine should start locked")
	}
	if !e.Toggle(context.Background(), Root) {
		t.Fatal("toggle should report sounding")
	}
	if !e.Unlocked() || !e.IsSounding(Root) {
		t.Fatalf("unlocked=%v sounding=%v", e.Unlocked(), e.IsSounding(Root))
	}
	if got := e.Tone(Root).Frequency(); math.Abs(got-440) > 1e-9 {
		t.Fatalf("root frequency = %f, want 440", got)
	}
	if c.Inputs() != 1 {
		t.Fatalf("destination inputs = %d, want 1", c.Inputs())
	}
	assertConsistent(t, e)

	if e.Toggle(context.Background(), Root) {
		t.Fatal("second toggle should report silent")
	}
	if e.IsSounding(Root) || c.Inputs() != 0 {
		t.Fatalf("sounding=%v inputs=%d after stop", e.IsSounding(Root), c.Inputs())
	}
	assertConsistent(t, e)
}

func TestToggleUsesChordFrequencies(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	for _, s := range []Slot{Root, Third, Fifth} {
		e.Toggle(ctx, s)
	}
	want := tuning.ChordFrequencies(DefaultParams().Params)
	for i, w := range want {
		if got := e.Tone(Slot(i)).Frequency(); math.Abs(got-w) > 1e-9 {
			t.Fatalf("slot %d frequency = %f, want %f", i, got, w)
		}
	}
	if e.Playing() != [NumSlots]bool{true, true, true} {
		t.Fatalf("playing = %v", e.Playing())
	}
}

func TestStopAll(t *testing.T) {
	e, _, c := newTestEngine(t)
	ctx := context.Background()
	e.Toggle(ctx, Root)
	e.Toggle(ctx, Fifth)
	e.StopAll()
	if e.Playing() != [NumSlots]bool{} {
		t.Fatalf("playing after StopAll = %v", e.Playing())
	}
	if c.Inputs() != 0 {
		t.Fatalf("inputs after StopAll = %d", c.Inputs())
	}
	e.StopAll()
	assertConsistent(t, e)
}

func TestUnlockFailureLeavesSlotSilent(t *testing.T) {
	e, dev, _ := newTestEngine(t)
	dev.resumeErr = errors.New("not allowed to start")
	if e.Toggle(context.Background(), Third) {
		t.Fatal("toggle should fail while locked")
	}
	if e.Unlocked() || e.IsSounding(Third) {
		t.Fatalf("unlocked=%v sounding=%v", e.Unlocked(), e.IsSounding(Third))
	}
	if dev.generators != 0 {
		t.Fatalf("created %d generators before unlock", dev.generators)
	}

	dev.resumeErr = nil
	if !e.Toggle(context.Background(), Third) {
		t.Fatal("toggle should succeed once the device resumes")
	}
	assertConsistent(t, e)
}

func TestUnlockErrorsAreTagged(t *testing.T) {
	e := New(func() (Device, error) { return nil, errors.New("no device") }, DefaultParams(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	err := e.Unlock(context.Background())
	if err == nil {
		t.Fatal("expected unlock error")
	}
	if ftag.Get(err) != TagUnlock {
		t.Fatalf("tag = %q, want %q", ftag.Get(err), TagUnlock)
	}
	if e.Device() != nil {
		t.Fatal("failed factory should not record a device")
	}

	e = New(nil, DefaultParams())
	if err := e.Unlock(context.Background()); ftag.Get(err) != TagUnlock {
		t.Fatalf("nil factory err = %v", err)
	}
}

func TestOpenDeviceWithoutFactory(t *testing.T) {
	e := New(nil, DefaultParams(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	dev, err := e.OpenDevice()
	if err == nil || dev != nil {
		t.Fatalf("OpenDevice() = %v, %v; want tagged error", dev, err)
	}
	if ftag.Get(err) != TagUnlock {
		t.Fatalf("tag = %q, want %q", ftag.Get(err), TagUnlock)
	}
	if e.Unlocked() {
		t.Fatal("engine must stay locked")
	}
}

func TestResumeDeviceLeavesEngineUntouched(t *testing.T) {
	e, dev, _ := newTestEngine(t)
	d, err := e.OpenDevice()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if e.Unlocked() || d.State() == audio.StateRunning {
		t.Fatal("OpenDevice must not resume")
	}

	dev.resumeErr = errors.New("blocked by platform")
	if err := ResumeDevice(context.Background(), d); ftag.Get(err) != TagUnlock {
		t.Fatalf("resume err = %v, want %q tag", err, TagUnlock)
	}
	dev.resumeErr = nil
	if err := ResumeDevice(context.Background(), d); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if e.Unlocked() {
		t.Fatal("ResumeDevice must not mark the engine unlocked")
	}
	if err := e.Unlock(context.Background()); err != nil || !e.Unlocked() {
		t.Fatalf("unlock after resume: err=%v unlocked=%v", err, e.Unlocked())
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	e, _, _ := newTestEngine(t)
	for i := 0; i < 3; i++ {
		if err := e.Unlock(context.Background()); err != nil {
			t.Fatalf("unlock %d: %v", i, err)
		}
	}
	if e.Device().State() != audio.StateRunning {
		t.Fatalf("state = %s", e.Device().State())
	}
}

func TestToneCreationFailureRollsBack(t *testing.T) {
	e, dev, c := newTestEngine(t)
	dev.genErr = errors.New("out of voices")
	if e.Toggle(context.Background(), Root) {
		t.Fatal("toggle should fail")
	}
	assertConsistent(t, e)

	dev.genErr = nil
	dev.connectErr = errors.New("graph busy")
	if e.Toggle(context.Background(), Fifth) {
		t.Fatal("toggle should fail on connect")
	}
	if e.IsSounding(Fifth) || c.Inputs() != 0 {
		t.Fatalf("sounding=%v inputs=%d after failed connect", e.IsSounding(Fifth), c.Inputs())
	}
	assertConsistent(t, e)
}

func TestRetuneGlidesSoundingTones(t *testing.T) {
	e, _, c := newTestEngine(t)
	ctx := context.Background()
	e.Toggle(ctx, Root)
	e.Toggle(ctx, Third)

	p := DefaultParams()
	p.Root = "C"
	p.Waveform = osc.Triangle
	e.RetuneAll(p)

	want := tuning.ChordFrequencies(p.Params)
	for _, s := range []Slot{Root, Third} {
		if got := e.Tone(s).Frequency(); math.Abs(got-want[s]) > 1e-9 {
			t.Fatalf("%s target = %f, want %f", s, got, want[s])
		}
		if w := e.Tone(s).gen.(*audio.Oscillator).Waveform(); w != osc.Triangle {
			t.Fatalf("%s waveform = %s, want triangle", s, w)
		}
	}
	if e.IsSounding(Fifth) {
		t.Fatal("retune must not start silent slots")
	}

	c.Process(make([]float32, 2*25)) // half of the 50 ms glide
	mid := e.Tone(Root).gen.Frequency().Value()
	if wantMid := (440 + want[Root]) / 2; math.Abs(mid-wantMid) > 1e-6 {
		t.Fatalf("mid-glide = %f, want %f", mid, wantMid)
	}
	c.Process(make([]float32, 2*50))
	if got := e.Tone(Root).gen.Frequency().Value(); math.Abs(got-want[Root]) > 1e-9 {
		t.Fatalf("after glide = %f, want %f", got, want[Root])
	}
}

func TestRetuneRestartsGlideFromCurrentValue(t *testing.T) {
	e, _, c := newTestEngine(t)
	e.Toggle(context.Background(), Root)

	p := DefaultParams()
	p.Reference = 880
	e.RetuneAll(p)
	c.Process(make([]float32, 2*25))

	p.Reference = 440
	e.RetuneAll(p)
	f := e.Tone(Root).gen.Frequency()
	if math.Abs(f.Value()-660) > 1e-6 {
		t.Fatalf("glide should restart from 660, got %f", f.Value())
	}
	if f.Target() != 440 {
		t.Fatalf("target = %f, want 440", f.Target())
	}
}

func TestRepeatedRetuneKeepsAutomationBounded(t *testing.T) {
	e, _, c := newTestEngine(t)
	e.Toggle(context.Background(), Root)

	p := DefaultParams()
	for i := 0; i < 1000; i++ {
		p.Reference = 440 + float64(i%2)
		e.RetuneAll(p)
		c.Process(make([]float32, 2*5))
	}
	if n := e.Tone(Root).gen.Frequency().Pending(); n > 1 {
		t.Fatalf("pending automation points = %d after 1000 retunes, want at most 1", n)
	}
}

func TestRetuneWhileSilent(t *testing.T) {
	e, _, _ := newTestEngine(t)
	p := DefaultParams()
	p.Quality = tuning.Minor
	e.RetuneAll(p)
	if e.Params().Quality != tuning.Minor {
		t.Fatal("params not adopted")
	}
	if e.Device() != nil || e.Playing() != [NumSlots]bool{} {
		t.Fatal("retune must not open the device or start tones")
	}
}

func TestToggleIgnoresUnknownSlot(t *testing.T) {
	e, dev, _ := newTestEngine(t)
	if e.Toggle(context.Background(), Slot(7)) {
		t.Fatal("unknown slot should never sound")
	}
	if dev.generators != 0 || e.IsSounding(Slot(7)) {
		t.Fatal("unknown slot should be a no-op")
	}
}

func TestToggleDiscardsStaleTone(t *testing.T) {
	e, _, c := newTestEngine(t)
	e.Toggle(context.Background(), Root)
	stale := e.Tone(Root)
	e.playing[Root] = false

	if !e.Toggle(context.Background(), Root) {
		t.Fatal("toggle should start a fresh tone")
	}
	if e.Tone(Root) == stale || e.Tone(Root).ID == stale.ID {
		t.Fatal("stale tone was reused")
	}
	if c.Inputs() != 1 {
		t.Fatalf("inputs = %d, want 1", c.Inputs())
	}
}

func TestToneCloseReportsAlreadyStopped(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Toggle(context.Background(), Root)
	tn := e.Tone(Root)
	if r := tn.Close(); r != Stopped {
		t.Fatalf("first close = %v, want Stopped", r)
	}
	if r := tn.Close(); r != AlreadyStopped {
		t.Fatalf("second close = %v, want AlreadyStopped", r)
	}
	// The engine still owns the slot and releases it without complaint.
	if e.Toggle(context.Background(), Root) {
		t.Fatal("toggle should stop the slot")
	}
	assertConsistent(t, e)
}

func TestSlotString(t *testing.T) {
	if Root.String() != "root" || Third.String() != "third" || Fifth.String() != "fifth" {
		t.Fatal("unexpected slot names")
	}
	if Slot(9).Valid() {
		t.Fatal("slot 9 should be invalid")
	}
}
