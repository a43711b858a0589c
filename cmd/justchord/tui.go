package main

import (
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cbegin/justchord-go"
	"github.com/cbegin/justchord-go/internal/tui"
)

func init() {
	rootCmd.AddCommand(tuiCmd)
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal chord player",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("tui needs an interactive terminal")
		}
		store := openPrefs()
		defer flushPrefs(store)
		p, err := params(cmd, store)
		if err != nil {
			return err
		}
		pl, err := newPlayer(p)
		if err != nil {
			return err
		}
		defer pl.Close()

		model := tui.NewModel(pl)
		model.OnParams = func(p justchord.Params) { saveParams(store, p) }
		_, err = tea.NewProgram(model).Run()
		return err
	},
}
