// Package prefs persists the reference frequency and root pitch between
// sessions in a small JSON file.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/cbegin/justchord-go/internal/tuning"
)

const DefaultDelay = 500 * time.Millisecond

type Prefs struct {
	ReferenceFrequency float64 `json:"referenceFrequency"`
	RootPitch          string  `json:"rootPitch"`
}

func Defaults() Prefs {
	return Prefs{ReferenceFrequency: tuning.DefaultReference, RootPitch: tuning.DefaultRoot}
}

// sanitize replaces unusable fields with their defaults.
func (p Prefs) sanitize() Prefs {
	d := Defaults()
	if p.ReferenceFrequency <= 0 || math.IsNaN(p.ReferenceFrequency) || math.IsInf(p.ReferenceFrequency, 0) {
		p.ReferenceFrequency = d.ReferenceFrequency
	}
	if _, ok := tuning.PitchIndex(p.RootPitch); !ok {
		p.RootPitch = d.RootPitch
	}
	return p
}

// DefaultPath returns the preferences file under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "justchord", "prefs.json"), nil
}

// Load reads path. A missing file yields defaults without error; fields that
// are absent or unusable fall back individually.
func Load(path string) (Prefs, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), err
	}
	var p Prefs
	if err := json.Unmarshal(data, &p); err != nil {
		return Defaults(), fmt.Errorf("parse %s: %w", path, err)
	}
	return p.sanitize(), nil
}

// Save writes p to path atomically.
func Save(path string, p Prefs) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".prefs-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

type Option func(*Store)

func WithDelay(d time.Duration) Option {
	return func(s *Store) { s.delay = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store holds the current preferences and writes changes back after a quiet
// period, so dragging a frequency field does not rewrite the file per step.
type Store struct {
	path      string
	delay     time.Duration
	logger    *slog.Logger
	debounced func(func())

	mu    sync.Mutex
	cur   Prefs
	dirty bool
}

// Open loads path into a Store. A malformed file is logged and replaced by
// defaults on the next write.
func Open(path string, opts ...Option) *Store {
	s := &Store{path: path, delay: DefaultDelay, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.debounced = debounce.New(s.delay)
	p, err := Load(path)
	if err != nil {
		s.logger.Warn("ignoring unreadable preferences", "path", path, "err", err)
	}
	s.cur = p
	return s
}

func (s *Store) Path() string { return s.path }

func (s *Store) Get() Prefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Set records p and schedules a write. Unusable fields keep their previous
// value.
func (s *Store) Set(p Prefs) {
	s.mu.Lock()
	prev := s.cur
	if p.ReferenceFrequency <= 0 || math.IsNaN(p.ReferenceFrequency) || math.IsInf(p.ReferenceFrequency, 0) {
		p.ReferenceFrequency = prev.ReferenceFrequency
	}
	if _, ok := tuning.PitchIndex(p.RootPitch); !ok {
		p.RootPitch = prev.RootPitch
	}
	if p == prev {
		s.mu.Unlock()
		return
	}
	s.cur = p
	s.dirty = true
	s.mu.Unlock()
	s.debounced(func() {
		if err := s.Flush(); err != nil {
			s.logger.Warn("saving preferences failed", "path", s.path, "err", err)
		}
	})
}

// Flush writes pending changes immediately.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := Save(s.path, s.cur); err != nil {
		return err
	}
	s.dirty = false
	s.logger.Debug("preferences saved", "path", s.path)
	return nil
}
