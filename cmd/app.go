package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidown/internal/config"
	"github.com/tanq16/vidown/internal/history"
	"github.com/tanq16/vidown/internal/queue"
	"github.com/tanq16/vidown/internal/registry"
	"github.com/tanq16/vidown/internal/scheduler"
	"github.com/tanq16/vidown/internal/store"
	"github.com/tanq16/vidown/internal/worker"
	"github.com/tanq16/vidown/internal/ytdlp"
)

// app wires one registry, one scheduler and their collaborators.
type app struct {
	settings  *config.Provider
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	queue     *queue.Manager
	history   history.Log
}

func newApp(ctx context.Context, s config.Settings, notifier worker.Notifier) (*app, error) {
	ytdlpPath, err := ytdlp.EnsureYtdlp(ctx, s.YtdlpPath, filepath.Join(filepath.Dir(s.TempDir), "bin"))
	if err != nil {
		return nil, err
	}
	ffmpegPath, err := ytdlp.EnsureFFmpeg(s.FFmpegPath)
	if err != nil {
		log.Warn().Str("op", "cmd/app").Err(err).Msg("merged formats and audio extraction will fail")
	}
	st, err := openStore(ctx, s)
	if err != nil {
		return nil, err
	}
	hist, err := openHistory(s)
	if err != nil {
		return nil, err
	}

	provider := config.NewProvider(s)
	reg := registry.New()
	w := worker.New(worker.Deps{
		Registry:   reg,
		Downloader: &ytdlp.Client{Path: ytdlpPath, FFmpegPath: ffmpegPath},
		Store:      st,
		History:    hist,
		Notifier:   notifier,
		Settings:   provider,
	})
	sched := scheduler.New(w, s.Workers, s.RetryBackoff)
	reg.SetCanceller(sched)
	log.Debug().Str("op", "cmd/app").Str("ytdlp", ytdlpPath).Str("store", s.Store.Backend).Str("history", s.History.Backend).Msg("app ready")
	return &app{
		settings:  provider,
		registry:  reg,
		scheduler: sched,
		queue:     queue.New(reg, sched, provider),
		history:   hist,
	}, nil
}

// Reload re-reads path into the live settings. Workers, socket, store and
// history are fixed for the life of the process; jobs already running keep
// the settings they started with.
func (a *app) Reload(path string) error {
	fresh, err := config.Load(path)
	if err != nil {
		return err
	}
	a.settings.Update(func(s *config.Settings) {
		keep := *s
		*s = fresh
		s.Workers = keep.Workers
		s.Socket = keep.Socket
		s.Store = keep.Store
		s.History = keep.History
		s.YtdlpPath = keep.YtdlpPath
		s.FFmpegPath = keep.FFmpegPath
	})
	return nil
}

func (a *app) Start(ctx context.Context) {
	a.scheduler.Start(ctx)
}

// Close stops running attempts before releasing the registry and history.
func (a *app) Close() {
	a.scheduler.Stop()
	a.registry.Close()
	if err := a.history.Close(); err != nil {
		log.Warn().Str("op", "cmd/app").Err(err).Msg("error closing history")
	}
}

func openStore(ctx context.Context, s config.Settings) (store.Store, error) {
	switch s.Store.Backend {
	case "s3":
		return store.NewS3Store(ctx, s.Store.Profile, s.Store.Bucket, s.Store.Prefix)
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("error resolving home directory: %v", err)
		}
		return store.NewLocalStore(home), nil
	}
}

func openHistory(s config.Settings) (history.Log, error) {
	switch s.History.Backend {
	case "redis":
		return history.NewRedisSink(history.RedisOptions{
			Addr:     s.History.RedisAddr,
			Password: s.History.RedisPassword,
			DB:       s.History.RedisDB,
			Key:      s.History.RedisKey,
		})
	default:
		return history.NewFileSink(s.History.Path)
	}
}
