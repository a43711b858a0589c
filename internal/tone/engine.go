package tone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/google/uuid"

	"github.com/cbegin/justchord-go/internal/audio"
	"github.com/cbegin/justchord-go/internal/osc"
	"github.com/cbegin/justchord-go/internal/tuning"
)

// Failure tags attached to errors reported by the Engine.
const (
	TagUnlock         ftag.Kind = "unlock_failure"
	TagToneCreation   ftag.Kind = "tone_creation_failure"
	TagAlreadyStopped ftag.Kind = "already_stopped"
)

const (
	DefaultGainLevel = 0.7
	DefaultGlide     = 50 * time.Millisecond
)

// Slot identifies a chord tone.
type Slot int

const (
	Root Slot = iota
	Third
	Fifth
)

const NumSlots = 3

func (s Slot) Valid() bool { return s >= Root && s <= Fifth }

func (s Slot) String() string {
	switch s {
	case Root:
		return "root"
	case Third:
		return "third"
	case Fifth:
		return "fifth"
	default:
		return fmt.Sprintf("Slot(%d)", int(s))
	}
}

// Params is everything that decides what the sounding tones play.
type Params struct {
	tuning.Params
	Waveform osc.Waveform
}

func DefaultParams() Params {
	return Params{Params: tuning.DefaultParams(), Waveform: osc.Sine}
}

// StopResult describes how a Tone ended.
type StopResult int

const (
	Stopped StopResult = iota
	AlreadyStopped
)

// Tone is one sounding chord tone. Its generator and amplifier are owned by
// the Tone and released together.
type Tone struct {
	ID   string
	Slot Slot
	dev  Device
	gen  Generator
	amp  Amplifier
}

// Frequency returns the frequency the tone is playing or gliding to.
func (t *Tone) Frequency() float64 { return t.gen.Frequency().Target() }

// Close stops the generator and unwires both nodes. A generator that already
// stopped is reported, never raised.
func (t *Tone) Close() StopResult {
	err := t.gen.Stop(t.dev.CurrentTime())
	t.dev.Disconnect(t.gen)
	t.dev.Disconnect(t.amp)
	if err != nil {
		return AlreadyStopped
	}
	return Stopped
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithGlide sets how long RetuneAll takes to reach a new frequency.
func WithGlide(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.glide = d.Seconds()
		}
	}
}

// WithGainLevel sets the fixed amplitude of every tone.
func WithGainLevel(level float64) Option {
	return func(e *Engine) {
		if level >= 0 && level <= 1 {
			e.gainLevel = level
		}
	}
}

// Engine starts, stops and retunes the three chord tones. It is not safe for
// concurrent use; callers serialize access.
type Engine struct {
	newDevice DeviceFunc
	dev       Device
	unlocked  bool
	playing   [NumSlots]bool
	tones     [NumSlots]*Tone
	params    Params
	gainLevel float64
	glide     float64 // seconds
	logger    *slog.Logger
}

func New(newDevice DeviceFunc, params Params, opts ...Option) *Engine {
	e := &Engine{
		newDevice: newDevice,
		params:    params,
		gainLevel: DefaultGainLevel,
		glide:     DefaultGlide.Seconds(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Unlock opens the device if needed and resumes it, blocking until it runs.
// It is idempotent. On failure the engine stays locked and a later call may
// retry.
func (e *Engine) Unlock(ctx context.Context) error {
	dev, err := e.OpenDevice()
	if err != nil {
		e.unlocked = false
		return err
	}
	if err := ResumeDevice(ctx, dev); err != nil {
		e.unlocked = false
		return err
	}
	e.logger.Debug("audio device running")
	e.unlocked = true
	return nil
}

// OpenDevice returns the device, creating it through the factory on first
// use. It does not resume it.
func (e *Engine) OpenDevice() (Device, error) {
	if e.dev != nil {
		return e.dev, nil
	}
	if e.newDevice == nil {
		return nil, fault.Wrap(errors.New("no audio device configured"), ftag.With(TagUnlock))
	}
	dev, err := e.newDevice()
	if err == nil && dev == nil {
		err = errors.New("device factory returned nil")
	}
	if err != nil {
		return nil, fault.Wrap(err, ftag.With(TagUnlock), fmsg.With("open audio device"))
	}
	e.dev = dev
	e.logger.Debug("audio device opened")
	return dev, nil
}

// ResumeDevice resumes dev unless it already runs. It touches no Engine
// state, so callers may run it without holding the lock that serializes the
// Engine.
func ResumeDevice(ctx context.Context, dev Device) error {
	if dev.State() == audio.StateRunning {
		return nil
	}
	if err := dev.Resume(ctx); err != nil {
		return fault.Wrap(err, ftag.With(TagUnlock), fmsg.With("resume audio device"))
	}
	return nil
}

// Toggle flips slot between silent and sounding and reports whether it is
// sounding afterwards. Failures are logged and leave the slot silent.
func (e *Engine) Toggle(ctx context.Context, slot Slot) bool {
	if !slot.Valid() {
		e.logger.Warn("ignoring toggle of unknown slot", "slot", int(slot))
		return false
	}
	if e.playing[slot] {
		e.release(slot)
		return false
	}

	freq := tuning.ChordFrequencies(e.params.Params)[slot]
	if err := e.Unlock(ctx); err != nil {
		e.report(err, slot)
		return false
	}
	if e.tones[slot] != nil {
		e.logger.Warn("discarding stale tone", "slot", slot, "tone", e.tones[slot].ID)
		e.release(slot)
	}

	t, err := e.build(slot, freq)
	if err != nil {
		e.tones[slot] = nil
		e.playing[slot] = false
		e.report(fault.Wrap(err, ftag.With(TagToneCreation), fmsg.With("start "+slot.String()+" tone")), slot)
		return false
	}
	e.tones[slot] = t
	e.playing[slot] = true
	e.logger.Debug("tone started", "slot", slot, "tone", t.ID, "freq", freq, "wave", e.params.Waveform)
	return true
}

func (e *Engine) build(slot Slot, freq float64) (*Tone, error) {
	dev := e.dev
	amp, err := dev.NewAmplifier(e.gainLevel)
	if err != nil {
		return nil, fmt.Errorf("create gain: %w", err)
	}
	gen, err := dev.NewGenerator(e.params.Waveform, freq)
	if err != nil {
		dev.Disconnect(amp)
		return nil, fmt.Errorf("create generator: %w", err)
	}
	t := &Tone{ID: uuid.NewString(), Slot: slot, dev: dev, gen: gen, amp: amp}
	if err := dev.Connect(gen, amp); err != nil {
		t.Close()
		return nil, fmt.Errorf("connect generator: %w", err)
	}
	if err := dev.Connect(amp, dev.Destination()); err != nil {
		t.Close()
		return nil, fmt.Errorf("connect gain: %w", err)
	}
	if err := gen.Start(dev.CurrentTime()); err != nil {
		t.Close()
		return nil, fmt.Errorf("start generator: %w", err)
	}
	return t, nil
}

// release stops and forgets the tone in slot.
func (e *Engine) release(slot Slot) {
	t := e.tones[slot]
	e.tones[slot] = nil
	e.playing[slot] = false
	if t == nil {
		return
	}
	if t.Close() == AlreadyStopped {
		e.logger.Debug("generator already stopped", "slot", slot, "tone", t.ID, "tag", TagAlreadyStopped)
		return
	}
	e.logger.Debug("tone stopped", "slot", slot, "tone", t.ID)
}

// RetuneAll adopts params and glides every sounding tone to its new
// frequency. It never starts or stops tones.
func (e *Engine) RetuneAll(params Params) {
	e.params = params
	if e.dev == nil {
		return
	}
	now := e.dev.CurrentTime()
	freqs := tuning.ChordFrequencies(params.Params)
	for i, t := range e.tones {
		if t == nil || !e.playing[i] {
			continue
		}
		f := t.gen.Frequency()
		current := f.Value()
		f.CancelScheduledValues(now)
		f.SetValueAtTime(current, now)
		f.LinearRampToValueAtTime(freqs[i], now+e.glide)
		t.gen.SetWaveform(params.Waveform)
		e.logger.Debug("tone retuned", "slot", Slot(i), "tone", t.ID, "from", current, "to", freqs[i])
	}
}

// StopAll silences every slot.
func (e *Engine) StopAll() {
	for i := range e.tones {
		e.release(Slot(i))
	}
}

func (e *Engine) IsSounding(slot Slot) bool {
	return slot.Valid() && e.playing[slot]
}

func (e *Engine) Playing() [NumSlots]bool { return e.playing }

func (e *Engine) Unlocked() bool { return e.unlocked }

func (e *Engine) Params() Params { return e.params }

// Tone returns the live tone in slot, or nil.
func (e *Engine) Tone(slot Slot) *Tone {
	if !slot.Valid() {
		return nil
	}
	return e.tones[slot]
}

// Device returns the opened device, or nil before the first unlock.
func (e *Engine) Device() Device { return e.dev }

func (e *Engine) report(err error, slot Slot) {
	tag := ftag.Get(err)
	if tag == TagUnlock {
		e.logger.Warn("audio device locked", "slot", slot, "tag", tag, "err", err)
		return
	}
	e.logger.Error("tone engine failure", "slot", slot, "tag", tag, "err", err)
}
