package audio

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/cbegin/justchord-go/internal/osc"
)

func newHeadless(t *testing.T) *Context {
	t.Helper()
	c, err := NewContext(Options{SampleRate: 1000, Backend: BackendHeadless})
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	return c
}

func running(t *testing.T) *Context {
	t.Helper()
	c := newHeadless(t)
	if err := c.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	return c
}

func TestContextStartsSuspended(t *testing.T) {
	c := newHeadless(t)
	if c.State() != StateSuspended {
		t.Fatalf("state = %s, want suspended", c.State())
	}
	buf := []float32{1, 1, 1, 1}
	c.Process(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("suspended output[%d] = %f, want 0", i, v)
		}
	}
	if c.CurrentTime() != 0 {
		t.Fatalf("clock advanced while suspended: %f", c.CurrentTime())
	}
}

func TestResumeHonoursCancelledContext(t *testing.T) {
	c := newHeadless(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Resume(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("resume err = %v, want context.Canceled", err)
	}
	if c.State() != StateSuspended {
		t.Fatalf("state = %s, want suspended", c.State())
	}
}

func TestProcessRendersConnectedOscillator(t *testing.T) {
	c := running(t)
	o := c.NewOscillator(osc.Square, 100)
	g := c.NewGain(0.5)
	if err := c.Connect(o, g); err != nil {
		t.Fatalf("connect osc: %v", err)
	}
	if err := c.Connect(g, c.Destination()); err != nil {
		t.Fatalf("connect gain: %v", err)
	}
	if err := o.Start(0); err != nil {
		t.Fatalf("start: %v", err)
	}
	buf := make([]float32, 20)
	c.Process(buf)
	if buf[0] != 0.5 || buf[1] != 0.5 {
		t.Fatalf("first frame = (%f, %f), want (0.5, 0.5)", buf[0], buf[1])
	}
	if got := c.CurrentTime(); math.Abs(got-0.01) > 1e-12 {
		t.Fatalf("clock = %f, want 0.01", got)
	}
}

func TestStoppedOscillatorIsSilent(t *testing.T) {
	c := running(t)
	o := c.NewOscillator(osc.Square, 100)
	if err := c.Connect(o, c.Destination()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := o.Start(0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := o.Stop(0.002); err != nil {
		t.Fatalf("stop: %v", err)
	}
	buf := make([]float32, 8)
	c.Process(buf)
	if buf[0] == 0 || buf[2] == 0 {
		t.Fatalf("expected sound before stop time, got %v", buf[:4])
	}
	if buf[4] != 0 || buf[6] != 0 {
		t.Fatalf("expected silence after stop time, got %v", buf[4:])
	}
	if o.Playing() {
		t.Fatal("oscillator should report not playing after stop time")
	}
}

func TestOscillatorLifecycleErrors(t *testing.T) {
	c := newHeadless(t)
	o := c.NewOscillator(osc.Sine, 440)
	if err := o.Stop(0); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("stop before start: %v, want ErrNotStarted", err)
	}
	if err := o.Start(0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := o.Start(0); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start: %v, want ErrAlreadyStarted", err)
	}
	if err := o.Stop(0); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := o.Stop(0); !errors.Is(err, ErrAlreadyStopped) {
		t.Fatalf("second stop: %v, want ErrAlreadyStopped", err)
	}
}

func TestConnectRules(t *testing.T) {
	a := newHeadless(t)
	b := newHeadless(t)
	o := a.NewOscillator(osc.Sine, 440)
	if err := a.Connect(o, b.Destination()); !errors.Is(err, ErrForeignNode) {
		t.Fatalf("cross-context connect: %v, want ErrForeignNode", err)
	}
	if err := a.Connect(a.Destination(), a.NewGain(1)); !errors.Is(err, ErrNotSink) {
		t.Fatalf("destination as source: %v, want ErrNotSink", err)
	}
	if err := a.Connect(a.NewGain(1), o); err == nil {
		t.Fatal("expected error connecting into an oscillator")
	}
}

func TestDisconnectDetachesGain(t *testing.T) {
	c := running(t)
	o := c.NewOscillator(osc.Square, 100)
	g := c.NewGain(1)
	_ = c.Connect(o, g)
	_ = c.Connect(g, c.Destination())
	_ = o.Start(0)
	if c.Inputs() != 1 {
		t.Fatalf("inputs = %d, want 1", c.Inputs())
	}
	c.Disconnect(o)
	c.Disconnect(g)
	if c.Inputs() != 0 {
		t.Fatalf("inputs = %d, want 0", c.Inputs())
	}
	buf := make([]float32, 4)
	c.Process(buf)
	if buf[0] != 0 {
		t.Fatalf("disconnected graph should be silent, got %f", buf[0])
	}
}

func TestParamLinearRamp(t *testing.T) {
	c := running(t)
	p := newParam(c, 100)
	p.SetValueAtTime(100, 0)
	p.LinearRampToValueAtTime(200, 0.1)
	if got := p.Target(); got != 200 {
		t.Fatalf("target = %f, want 200", got)
	}
	c.Process(make([]float32, 2*50)) // advance 50 ms
	if got := p.Value(); math.Abs(got-150) > 1e-9 {
		t.Fatalf("value mid-ramp = %f, want 150", got)
	}
	c.Process(make([]float32, 2*100))
	if got := p.Value(); got != 200 {
		t.Fatalf("value after ramp = %f, want 200", got)
	}
}

func TestParamCancelScheduledValues(t *testing.T) {
	c := newHeadless(t)
	p := newParam(c, 100)
	p.SetValueAtTime(100, 0)
	p.LinearRampToValueAtTime(300, 0.5)
	p.LinearRampToValueAtTime(400, 1.0)
	if n := p.Pending(); n != 2 {
		t.Fatalf("pending = %d, want 2 (elapsed point folded into the base)", n)
	}
	p.CancelScheduledValues(0.5)
	if n := p.Pending(); n != 0 {
		t.Fatalf("pending = %d, want 0", n)
	}
	if got := p.Target(); got != 100 {
		t.Fatalf("target after cancel = %f, want 100", got)
	}
	p.SetValue(50)
	if p.Pending() != 0 || p.Value() != 50 {
		t.Fatalf("SetValue should drop automation, pending=%d value=%f", p.Pending(), p.Value())
	}
}

func TestParamAutomationStaysBounded(t *testing.T) {
	c := running(t)
	p := newParam(c, 440)
	for i := 0; i < 1000; i++ {
		now := c.CurrentTime()
		cur := p.Value()
		p.CancelScheduledValues(now)
		p.SetValueAtTime(cur, now)
		p.LinearRampToValueAtTime(440+float64(i%2), now+0.05)
		c.Process(make([]float32, 2*10))
	}
	if n := p.Pending(); n > 1 {
		t.Fatalf("pending = %d after 1000 glides, want at most 1", n)
	}
	c.Process(make([]float32, 2*100))
	if got, want := p.Value(), 441.0; got != want {
		t.Fatalf("value = %f, want %f", got, want)
	}
}

func TestParamRampAfterPruneStartsAtAnchor(t *testing.T) {
	c := running(t)
	p := newParam(c, 100)
	c.Process(make([]float32, 2*200)) // now = 0.2 s
	p.SetValueAtTime(100, 0.2)
	p.LinearRampToValueAtTime(200, 0.3)
	c.Process(make([]float32, 2*50))
	if got := p.Value(); math.Abs(got-150) > 1e-9 {
		t.Fatalf("value = %f, want 150", got)
	}
}

func TestStreamReaderEncodesStereoFloat(t *testing.T) {
	c := running(t)
	o := c.NewOscillator(osc.Square, 100)
	_ = c.Connect(o, c.Destination())
	_ = o.Start(0)
	r := NewStreamReader(c)
	buf := make([]byte, 8*4+3)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 32 {
		t.Fatalf("read %d bytes, want 32", n)
	}
	if buf[0] != 0 || buf[1] != 0 || buf[2] != 0x80 || buf[3] != 0x3f {
		t.Fatalf("first sample bytes = % x, want 1.0f LE", buf[:4])
	}
}

func TestSharedReturnsSingleton(t *testing.T) {
	a, err := Shared(Options{SampleRate: 22050, Backend: BackendHeadless})
	if err != nil {
		t.Fatalf("shared: %v", err)
	}
	b, err := Shared(Options{SampleRate: 22050, Backend: BackendHeadless})
	if err != nil {
		t.Fatalf("shared again: %v", err)
	}
	if a != b {
		t.Fatal("Shared returned different contexts")
	}
	if _, err := Shared(Options{SampleRate: 44100, Backend: BackendHeadless}); err == nil {
		t.Fatal("expected sample rate mismatch error")
	}
	if _, err := Shared(Options{SampleRate: 22050, Backend: BackendOto}); err == nil {
		t.Fatal("expected backend mismatch error")
	}
	if c, err := Shared(Options{SampleRate: 22050, Backend: BackendHeadless}); err != nil || c != a {
		t.Fatalf("mismatched requests must not replace the context: %v", err)
	}
}

func TestParseBackend(t *testing.T) {
	for _, name := range []string{"ebiten", "oto", "headless"} {
		if _, err := ParseBackend(name); err != nil {
			t.Fatalf("ParseBackend(%q): %v", name, err)
		}
	}
	if _, err := ParseBackend("alsa"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
