package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/vidown/internal/config"
	"github.com/tanq16/vidown/internal/control"
	"github.com/tanq16/vidown/internal/output"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the download queue as a daemon controlled over the socket",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			s := loadSettings(cmd)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, s, output.LogNotifier{})
			if err != nil {
				fatal("Error starting daemon", err)
			}
			defer a.Close()

			srv := control.NewServer(a.queue, s.Socket)
			if err := srv.Listen(); err != nil {
				if errors.Is(err, control.ErrDaemonRunning) {
					output.PrintError("A vidown daemon is already running on " + s.Socket)
					os.Exit(1)
				}
				fatal("Error opening control socket", err)
			}
			a.Start(ctx)
			log.Info().Str("op", "cmd/serve").Int("workers", s.Workers).Msg("daemon started")
			go reloadOnHangup(ctx, a)
			if err := srv.Serve(ctx); err != nil {
				log.Error().Str("op", "cmd/serve").Err(err).Msg("control socket failed")
			}
			log.Info().Str("op", "cmd/serve").Msg("daemon stopping")
		},
	}
}

func reloadOnHangup(ctx context.Context, a *app) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := a.Reload(path); err != nil {
				log.Error().Str("op", "cmd/serve").Err(err).Msg("config reload failed")
				continue
			}
			log.Info().Str("op", "cmd/serve").Str("path", path).Msg("config reloaded")
		}
	}
}
