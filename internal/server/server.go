// Package server exposes a Player over a small JSON API so a browser front
// end can drive the chord demonstrator.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/cbegin/justchord-go"
)

// Controller is the part of justchord.Player the API drives.
type Controller interface {
	Unlock(ctx context.Context) error
	Unlocked() bool
	Toggle(ctx context.Context, slot justchord.Slot) bool
	StopAll()
	SetParameters(u justchord.Update) error
	Parameters() justchord.Params
	Playing() [justchord.NumSlots]bool
	Frequencies() [justchord.NumSlots]float64
	ChordNoteNames() [justchord.NumSlots]string
	Deviation() [justchord.NumSlots]float64
	Display() string
}

type ToneState struct {
	Slot      string  `json:"slot"`
	Note      string  `json:"note"`
	Frequency float64 `json:"frequency"`
	Cents     float64 `json:"cents"`
	Playing   bool    `json:"playing"`
}

type State struct {
	ReferenceFrequency float64                `json:"referenceFrequency"`
	RootPitch          string                 `json:"rootPitch"`
	Quality            justchord.Quality      `json:"quality"`
	Tuning             justchord.TuningSystem `json:"tuning"`
	Octave             int                    `json:"octave"`
	Waveform           justchord.Waveform     `json:"waveform"`
	Unlocked           bool                   `json:"unlocked"`
	Tones              []ToneState            `json:"tones"`
	Display            string                 `json:"display"`
}

// ParamsRequest is the body of PUT /api/params. Omitted fields are unchanged.
type ParamsRequest struct {
	ReferenceFrequency *float64                `json:"referenceFrequency"`
	RootPitch          *string                 `json:"rootPitch"`
	Quality            *justchord.Quality      `json:"quality"`
	Tuning             *justchord.TuningSystem `json:"tuning"`
	Octave             *int                    `json:"octave"`
	Waveform           *justchord.Waveform     `json:"waveform"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAllowedOrigins sets the CORS origins; the default allows any.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithUnlockTimeout bounds how long a request waits for the audio device.
func WithUnlockTimeout(d time.Duration) Option {
	return func(s *Server) { s.unlockTimeout = d }
}

// WithParamsHook is called after every accepted parameter change.
func WithParamsHook(fn func(justchord.Params)) Option {
	return func(s *Server) { s.onParams = fn }
}

type Server struct {
	ctl           Controller
	logger        *slog.Logger
	origins       []string
	unlockTimeout time.Duration
	onParams      func(justchord.Params)
	handler       http.Handler
}

func New(ctl Controller, opts ...Option) *Server {
	s := &Server{
		ctl:           ctl,
		logger:        slog.Default(),
		origins:       []string{"*"},
		unlockTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := mux.NewRouter().StrictSlash(true)
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/params", s.handleParams).Methods(http.MethodPut)
	api.HandleFunc("/unlock", s.handleUnlock).Methods(http.MethodPost)
	api.HandleFunc("/tones/{slot}/toggle", s.handleToggle).Methods(http.MethodPost)
	api.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.handler = c.Handler(router)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) state() State {
	p := s.ctl.Parameters()
	names := s.ctl.ChordNoteNames()
	freqs := s.ctl.Frequencies()
	cents := s.ctl.Deviation()
	playing := s.ctl.Playing()
	tones := make([]ToneState, justchord.NumSlots)
	for i := range tones {
		tones[i] = ToneState{
			Slot:      justchord.Slot(i).String(),
			Note:      names[i],
			Frequency: freqs[i],
			Cents:     cents[i],
			Playing:   playing[i],
		}
	}
	return State{
		ReferenceFrequency: p.Reference,
		RootPitch:          p.Root,
		Quality:            p.Quality,
		Tuning:             p.System,
		Octave:             p.Octave,
		Waveform:           p.Waveform,
		Unlocked:           s.ctl.Unlocked(),
		Tones:              tones,
		Display:            s.ctl.Display(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	var req ParamsRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode params: %w", err))
		return
	}
	err := s.ctl.SetParameters(justchord.Update{
		ReferenceFrequency: req.ReferenceFrequency,
		RootPitch:          req.RootPitch,
		Quality:            req.Quality,
		Tuning:             req.Tuning,
		Octave:             req.Octave,
		Waveform:           req.Waveform,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.onParams != nil {
		s.onParams(s.ctl.Parameters())
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.unlockTimeout)
	defer cancel()
	if err := s.ctl.Unlock(ctx); err != nil {
		s.logger.Warn("unlock failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	slot, err := parseSlot(mux.Vars(r)["slot"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.unlockTimeout)
	defer cancel()
	s.ctl.Toggle(ctx, slot)
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctl.StopAll()
	writeJSON(w, http.StatusOK, s.state())
}

var errUnknownSlot = errors.New("unknown slot")

// parseSlot accepts a slot name or its index.
func parseSlot(v string) (justchord.Slot, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for i := 0; i < justchord.NumSlots; i++ {
		if slot := justchord.Slot(i); v == slot.String() {
			return slot, nil
		}
	}
	if n, err := strconv.Atoi(v); err == nil && justchord.Slot(n).Valid() {
		return justchord.Slot(n), nil
	}
	return 0, fmt.Errorf("%w %q", errUnknownSlot, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
