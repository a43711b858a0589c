package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cbegin/justchord-go"
	"github.com/cbegin/justchord-go/internal/audio"
	"github.com/cbegin/justchord-go/internal/osc"
	"github.com/cbegin/justchord-go/internal/prefs"
	"github.com/cbegin/justchord-go/internal/tone"
	"github.com/cbegin/justchord-go/internal/tuning"
)

var logger = slog.Default()

func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level, AddSource: debug})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

var flags struct {
	ref        float64
	root       string
	quality    string
	tuning     string
	octave     int
	wave       string
	backend    string
	sampleRate int
	prefsPath  string
	noPrefs    bool
	debug      bool
}

var rootCmd = &cobra.Command{
	Use:   "justchord",
	Short: "Hear a triad in equal temperament or just intonation",
	Long: `justchord plays the root, third and fifth of a major or minor triad and
lets you compare equal-tempered and just-intoned tunings by ear.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger(flags.debug)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.Float64Var(&flags.ref, "ref", tuning.DefaultReference, "reference frequency of A4 in Hz")
	pf.StringVar(&flags.root, "root", tuning.DefaultRoot, "root pitch class (C, C#, D ... B)")
	pf.StringVar(&flags.quality, "quality", "major", "chord quality: major|minor")
	pf.StringVar(&flags.tuning, "tuning", "equal", "tuning system: equal|just")
	pf.IntVar(&flags.octave, "octave", 0, "octave shift (-2..+2)")
	pf.StringVar(&flags.wave, "wave", "sine", "waveform: sine|square|sawtooth|triangle")
	pf.StringVar(&flags.backend, "backend", string(audio.BackendEbiten), "audio backend: ebiten|oto|headless")
	pf.IntVar(&flags.sampleRate, "sample-rate", audio.DefaultSampleRate, "output sample rate")
	pf.StringVar(&flags.prefsPath, "prefs", "", "preferences file (default: user config dir)")
	pf.BoolVar(&flags.noPrefs, "no-prefs", false, "do not read or write saved preferences")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging")
}

// openPrefs returns the preference store, or nil when disabled.
func openPrefs() *prefs.Store {
	if flags.noPrefs {
		return nil
	}
	path := flags.prefsPath
	if path == "" {
		p, err := prefs.DefaultPath()
		if err != nil {
			logger.Warn("no preferences location", "err", err)
			return nil
		}
		path = p
	}
	return prefs.Open(path, prefs.WithLogger(logger))
}

// params resolves the chord parameters from flags, falling back to saved
// preferences for the reference and root when those flags were not given.
func params(cmd *cobra.Command, store *prefs.Store) (justchord.Params, error) {
	p := justchord.DefaultParams()
	p.Reference = flags.ref
	p.Root = strings.ToUpper(strings.TrimSpace(flags.root))
	if store != nil {
		saved := store.Get()
		if !flagChanged(cmd, "ref") {
			p.Reference = saved.ReferenceFrequency
		}
		if !flagChanged(cmd, "root") {
			p.Root = saved.RootPitch
		}
	}
	if p.Reference <= 0 {
		return p, fmt.Errorf("invalid --ref %v (must be positive)", p.Reference)
	}
	if _, ok := tuning.PitchIndex(p.Root); !ok {
		return p, fmt.Errorf("invalid --root %q (expected one of C C# D D# E F F# G G# A A# B)", flags.root)
	}
	var err error
	if p.Quality, err = tuning.ParseQuality(flags.quality); err != nil {
		return p, err
	}
	if p.System, err = tuning.ParseSystem(flags.tuning); err != nil {
		return p, err
	}
	if p.Waveform, err = osc.ParseWaveform(flags.wave); err != nil {
		return p, err
	}
	p.Octave = tuning.ClampOctave(flags.octave)
	if p.Octave != flags.octave {
		logger.Warn("octave clamped", "requested", flags.octave, "octave", p.Octave)
	}
	return p, nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

func newPlayer(p justchord.Params) (*justchord.Player, error) {
	backend, err := audio.ParseBackend(flags.backend)
	if err != nil {
		return nil, err
	}
	return justchord.NewPlayer(
		justchord.WithReferenceFrequency(p.Reference),
		justchord.WithRootPitch(p.Root),
		justchord.WithQuality(p.Quality),
		justchord.WithTuning(p.System),
		justchord.WithOctave(p.Octave),
		justchord.WithWaveform(p.Waveform),
		justchord.WithBackend(backend),
		justchord.WithSampleRate(flags.sampleRate),
		justchord.WithLogger(logger),
	)
}

// saveParams records the persisted subset of p.
func saveParams(store *prefs.Store, p justchord.Params) {
	if store == nil {
		return
	}
	store.Set(prefs.Prefs{ReferenceFrequency: p.Reference, RootPitch: p.Root})
}

func flushPrefs(store *prefs.Store) {
	if store == nil {
		return
	}
	if err := store.Flush(); err != nil {
		logger.Warn("saving preferences failed", "err", err)
	}
}

// parseSlots turns tone names into a selection; no names selects all three.
func parseSlots(names []string) ([tone.NumSlots]bool, error) {
	var out [tone.NumSlots]bool
	if len(names) == 0 {
		return [tone.NumSlots]bool{true, true, true}, nil
	}
	for _, name := range names {
		found := false
		for i := 0; i < tone.NumSlots; i++ {
			if strings.EqualFold(strings.TrimSpace(name), tone.Slot(i).String()) {
				out[i] = true
				found = true
			}
		}
		if !found {
			return out, fmt.Errorf("invalid tone %q (expected root|third|fifth)", name)
		}
	}
	return out, nil
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
