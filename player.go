package justchord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/Southclaws/fault/ftag"

	intaudio "github.com/cbegin/justchord-go/internal/audio"
	intosc "github.com/cbegin/justchord-go/internal/osc"
	inttone "github.com/cbegin/justchord-go/internal/tone"
	inttuning "github.com/cbegin/justchord-go/internal/tuning"
)

type (
	Slot         = inttone.Slot
	Params       = inttone.Params
	Device       = inttone.Device
	DeviceFunc   = inttone.DeviceFunc
	Quality      = inttuning.Quality
	TuningSystem = inttuning.System
	Waveform     = intosc.Waveform
	Backend      = intaudio.Backend
)

const (
	SlotRoot  = inttone.Root
	SlotThird = inttone.Third
	SlotFifth = inttone.Fifth
	NumSlots  = inttone.NumSlots
)

const (
	Major = inttuning.Major
	Minor = inttuning.Minor
	Equal = inttuning.Equal
	Just  = inttuning.Just
)

const (
	Sine     = intosc.Sine
	Square   = intosc.Square
	Sawtooth = intosc.Sawtooth
	Triangle = intosc.Triangle
)

const (
	BackendEbiten   = intaudio.BackendEbiten
	BackendOto      = intaudio.BackendOto
	BackendHeadless = intaudio.BackendHeadless
)

var ErrInvalidReference = errors.New("reference frequency must be a positive number")

// DefaultParams returns A4 = 440 Hz, A major, equal temperament, octave 0, sine.
func DefaultParams() Params { return inttone.DefaultParams() }

type PlayerOption func(*playerConfig)

type playerConfig struct {
	params     Params
	sampleRate int
	backend    Backend
	logger     *slog.Logger
	newDevice  DeviceFunc
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{
		params:     DefaultParams(),
		sampleRate: intaudio.DefaultSampleRate,
		backend:    BackendEbiten,
		logger:     slog.Default(),
	}
}

// WithReferenceFrequency sets A4. Non-positive values are ignored.
func WithReferenceFrequency(hz float64) PlayerOption {
	return func(cfg *playerConfig) {
		if validReference(hz) {
			cfg.params.Reference = hz
		}
	}
}

func WithRootPitch(label string) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params.Root = label
	}
}

func WithQuality(q Quality) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params.Quality = q
	}
}

func WithTuning(s TuningSystem) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params.System = s
	}
}

func WithOctave(octave int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params.Octave = inttuning.ClampOctave(octave)
	}
}

func WithWaveform(w Waveform) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params.Waveform = w
	}
}

func WithSampleRate(rate int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleRate = rate
	}
}

func WithBackend(b Backend) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.backend = b
	}
}

func WithLogger(l *slog.Logger) PlayerOption {
	return func(cfg *playerConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithDeviceFactory replaces the process-wide audio context with a custom
// device, opened on the first unlock.
func WithDeviceFactory(f DeviceFunc) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.newDevice = f
	}
}

// Update is a partial parameter change; nil fields are left alone.
type Update struct {
	ReferenceFrequency *float64
	RootPitch          *string
	Quality            *Quality
	Tuning             *TuningSystem
	Octave             *int
	Waveform           *Waveform
}

// Player is the chord demonstrator: three toggleable chord tones that follow
// the current tuning parameters. It is safe for concurrent use.
type Player struct {
	unlockMu sync.Mutex // serializes device resumes without holding mu
	mu       sync.Mutex
	engine   *inttone.Engine
	logger   *slog.Logger
}

func NewPlayer(opts ...PlayerOption) (*Player, error) {
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if cfg.newDevice == nil {
		backend, err := intaudio.ParseBackend(string(cfg.backend))
		if err != nil {
			return nil, err
		}
		cfg.newDevice = inttone.SharedDevice(intaudio.Options{SampleRate: cfg.sampleRate, Backend: backend})
	}
	return &Player{
		engine: inttone.New(cfg.newDevice, cfg.params, inttone.WithLogger(cfg.logger)),
		logger: cfg.logger,
	}, nil
}

// Unlock opens and resumes the audio device. UIs call it from the first user
// gesture; Toggle also calls it on demand. The wait for the device happens
// outside the state lock, so readers such as Parameters and Unlocked never
// block behind it.
func (p *Player) Unlock(ctx context.Context) error {
	p.unlockMu.Lock()
	defer p.unlockMu.Unlock()

	p.mu.Lock()
	dev, err := p.engine.OpenDevice()
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if err := inttone.ResumeDevice(ctx, dev); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Unlock(ctx)
}

func (p *Player) Unlocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Unlocked()
}

// Toggle flips a chord tone and reports whether it now sounds.
func (p *Player) Toggle(ctx context.Context, slot Slot) bool {
	if slot.Valid() && !p.IsSounding(slot) && !p.Unlocked() {
		if err := p.Unlock(ctx); err != nil {
			p.logger.Warn("audio device locked", "slot", slot, "tag", ftag.Get(err), "err", err)
			return false
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Toggle(ctx, slot)
}

func (p *Player) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.StopAll()
}

// Close silences every tone. The shared audio context stays open for the
// rest of the process.
func (p *Player) Close() error {
	p.StopAll()
	return nil
}

func (p *Player) IsSounding(slot Slot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.IsSounding(slot)
}

func (p *Player) Playing() [NumSlots]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Playing()
}

func (p *Player) Parameters() Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Params()
}

// SetParameters applies u and retunes the sounding tones if anything that
// affects pitch or timbre changed. An invalid reference rejects the whole
// update.
func (p *Player) SetParameters(u Update) error {
	if u.ReferenceFrequency != nil && !validReference(*u.ReferenceFrequency) {
		return fmt.Errorf("%w: %v", ErrInvalidReference, *u.ReferenceFrequency)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := p.engine.Params()
	next := cur
	if u.ReferenceFrequency != nil {
		next.Reference = *u.ReferenceFrequency
	}
	if u.RootPitch != nil {
		next.Root = *u.RootPitch
	}
	if u.Quality != nil {
		next.Quality = *u.Quality
	}
	if u.Tuning != nil {
		next.System = *u.Tuning
	}
	if u.Octave != nil {
		next.Octave = inttuning.ClampOctave(*u.Octave)
	}
	if u.Waveform != nil {
		next.Waveform = *u.Waveform
	}
	if next == cur {
		return nil
	}
	p.logger.Debug("parameters changed", "root", next.Root, "quality", next.Quality, "tuning", next.System,
		"ref", next.Reference, "octave", next.Octave, "wave", next.Waveform)
	p.engine.RetuneAll(next)
	return nil
}

func (p *Player) Frequencies() [NumSlots]float64 {
	return inttuning.ChordFrequencies(p.Parameters().Params)
}

func (p *Player) ChordNoteNames() [NumSlots]string {
	params := p.Parameters()
	return inttuning.ChordNoteNames(params.Root, params.Quality)
}

// Deviation returns each chord tone's distance from equal temperament in cents.
func (p *Player) Deviation() [NumSlots]float64 {
	return inttuning.EqualDeviation(p.Parameters().Params)
}

// Display formats the chord as a single status line, for example
// "A major · just  A 440.00  C# 550.00  E 660.00".
func (p *Player) Display() string {
	return FormatDisplay(p.Parameters())
}

func FormatDisplay(params Params) string {
	names := inttuning.ChordNoteNames(params.Root, params.Quality)
	freqs := inttuning.ChordFrequencies(params.Params)
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s · %s", params.Root, params.Quality, params.System)
	if params.Octave != 0 {
		fmt.Fprintf(&b, " %+d oct", params.Octave)
	}
	for i := range names {
		fmt.Fprintf(&b, "  %s %.2f", names[i], freqs[i])
	}
	return b.String()
}

func validReference(hz float64) bool {
	return hz > 0 && !math.IsInf(hz, 0) && !math.IsNaN(hz)
}
