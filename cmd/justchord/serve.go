package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cbegin/justchord-go"
	"github.com/cbegin/justchord-go/internal/server"
)

var (
	serveAddr    string
	serveOrigins []string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "listen address")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "origin", []string{"*"}, "allowed CORS origins")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a JSON control API for a browser front end",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		srv := server.New(pl,
			server.WithLogger(logger),
			server.WithAllowedOrigins(serveOrigins...),
			server.WithParamsHook(func(p justchord.Params) { saveParams(store, p) }),
		)
		return srv.ListenAndServe(ctx, serveAddr)
	},
}
