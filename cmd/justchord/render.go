package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cbegin/justchord-go"
	"github.com/cbegin/justchord-go/internal/midiexport"
	"github.com/cbegin/justchord-go/internal/tuning"
)

var (
	renderOut     string
	renderSeconds float64
	midiOut       string
	midiSeconds   float64
	midiBPM       float64
	midiBend      int
)

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "chord.wav", "output WAV path")
	renderCmd.Flags().Float64Var(&renderSeconds, "seconds", 2, "duration in seconds")
	rootCmd.AddCommand(renderCmd)

	midiCmd.Flags().StringVarP(&midiOut, "out", "o", "chord.mid", "output MIDI path")
	midiCmd.Flags().Float64Var(&midiSeconds, "seconds", 4, "duration in seconds")
	midiCmd.Flags().Float64Var(&midiBPM, "bpm", 120, "tempo written to the file")
	midiCmd.Flags().IntVar(&midiBend, "bend-range", 2, "pitch bend range in semitones")
	rootCmd.AddCommand(midiCmd)
}

var renderCmd = &cobra.Command{
	Use:   "render [root|third|fifth ...]",
	Short: "Render the chord to a 32-bit float WAV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		slots, err := parseSlots(args)
		if err != nil {
			return err
		}
		p, err := params(cmd, openPrefs())
		if err != nil {
			return err
		}
		samples, err := justchord.RenderSamples(p, slots, flags.sampleRate, renderSeconds)
		if err != nil {
			return err
		}
		wav := justchord.EncodeWAVFloat32LE(samples, flags.sampleRate, 2)
		if err := os.WriteFile(renderOut, wav, 0o644); err != nil {
			return err
		}
		logger.Info("rendered", "path", renderOut, "frames", len(samples)/2, "chord", justchord.FormatDisplay(p))
		return nil
	},
}

var midiCmd = &cobra.Command{
	Use:   "midi [root|third|fifth ...]",
	Short: "Export the chord as a MIDI file with per-note pitch bend",
	RunE: func(cmd *cobra.Command, args []string) error {
		slots, err := parseSlots(args)
		if err != nil {
			return err
		}
		p, err := params(cmd, openPrefs())
		if err != nil {
			return err
		}
		f, err := os.Create(midiOut)
		if err != nil {
			return err
		}
		opts := midiexport.Options{Seconds: midiSeconds, BPM: midiBPM, BendRange: midiBend, Name: justchord.FormatDisplay(p)}
		if err := midiexport.Write(f, tuning.ChordFrequencies(p.Params), slots, opts); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", midiOut, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		logger.Info("exported", "path", midiOut)
		return nil
	},
}
