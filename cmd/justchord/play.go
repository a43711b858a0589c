package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cbegin/justchord-go/internal/tone"
)

var playDuration time.Duration

func init() {
	playCmd.Flags().DurationVar(&playDuration, "for", 0, "stop after this long (default: until interrupted)")
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:   "play [root|third|fifth ...]",
	Short: "Sound the chord tones until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		slots, err := parseSlots(args)
		if err != nil {
			return err
		}
		store := openPrefs()
		p, err := params(cmd, store)
		if err != nil {
			return err
		}
		saveParams(store, p)
		defer flushPrefs(store)

		pl, err := newPlayer(p)
		if err != nil {
			return err
		}
		defer pl.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if playDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, playDuration)
			defer cancel()
		}

		unlockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = pl.Unlock(unlockCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("enable audio: %w", err)
		}
		for i, on := range slots {
			if on && !pl.Toggle(ctx, tone.Slot(i)) {
				return errors.New("could not start " + tone.Slot(i).String())
			}
		}
		fmt.Println(pl.Display())
		<-ctx.Done()
		return nil
	},
}
