package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cbegin/justchord-go"
	"github.com/cbegin/justchord-go/internal/tone"
)

var freqsJSON bool

func init() {
	freqsCmd.Flags().BoolVar(&freqsJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(freqsCmd)
}

type freqRow struct {
	Tone      string  `json:"tone"`
	Note      string  `json:"note"`
	Frequency float64 `json:"frequency"`
	Cents     float64 `json:"cents"`
}

var freqsCmd = &cobra.Command{
	Use:   "freqs",
	Short: "Print the chord's note names and frequencies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := params(cmd, openPrefs())
		if err != nil {
			return err
		}
		pl, err := justchord.NewPlayer(
			justchord.WithReferenceFrequency(p.Reference),
			justchord.WithRootPitch(p.Root),
			justchord.WithQuality(p.Quality),
			justchord.WithTuning(p.System),
			justchord.WithOctave(p.Octave),
			justchord.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		names, freqs, cents := pl.ChordNoteNames(), pl.Frequencies(), pl.Deviation()
		rows := make([]freqRow, tone.NumSlots)
		for i := range rows {
			rows[i] = freqRow{Tone: tone.Slot(i).String(), Note: names[i], Frequency: freqs[i], Cents: cents[i]}
		}
		if freqsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}
		fmt.Println(pl.Display())
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TONE\tNOTE\tHZ\tCENTS vs ET")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%.3f\t%+.2f\n", r.Tone, r.Note, r.Frequency, r.Cents)
		}
		return tw.Flush()
	},
}
