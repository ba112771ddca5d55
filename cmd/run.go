package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidown/internal/config"
	"github.com/tanq16/vidown/internal/control"
	"github.com/tanq16/vidown/internal/model"
	"github.com/tanq16/vidown/internal/output"
	"github.com/tanq16/vidown/internal/queue"
	"github.com/tanq16/vidown/internal/utils"
	"github.com/tanq16/vidown/internal/worker"
)

const logFileName = ".vidown.log"

// runForeground downloads reqs in this process and returns how many failed.
// The control socket is served while it runs, so jobs can be paused and
// resumed from another terminal; without it paused jobs end the run.
func runForeground(s config.Settings, reqs []model.Request) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var notifier worker.Notifier = output.LogNotifier{}
	var display *output.Manager
	if output.IsTerminal() {
		if err := os.MkdirAll(s.TempDir, 0755); err != nil {
			fatal("Error creating temp directory", err)
		}
		logFile, err := os.OpenFile(filepath.Join(s.TempDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			defer logFile.Close()
			utils.SetLogOutput(logFile)
			display = output.NewManager(nil)
			notifier = display
		} else {
			log.Warn().Str("op", "cmd/run").Err(err).Msg("no log file, falling back to log output")
		}
	}

	a, err := newApp(ctx, s, notifier)
	if err != nil {
		fatal("Error starting downloader", err)
	}
	defer a.Close()

	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		job, err := a.queue.Enqueue(req)
		if err != nil {
			output.PrintError(fmt.Sprintf("Skipping %s: %v", req.URL, err))
			continue
		}
		ids = append(ids, job.ID)
		if display != nil {
			display.Track(job.ID, job.Title)
		}
	}
	if len(ids) == 0 {
		return len(reqs)
	}

	srv := control.NewServer(a.queue, s.Socket)
	controllable := true
	if err := srv.Listen(); err != nil {
		controllable = false
		log.Debug().Str("op", "cmd/run").Err(err).Msg("control socket unavailable")
	} else {
		go srv.Serve(ctx)
		defer srv.Close()
	}

	if display != nil {
		display.StartDisplay()
		go func() {
			for snap := range a.queue.Subscribe(ctx) {
				display.Sync(snap.Jobs)
			}
		}()
	}
	a.Start(ctx)

	if controllable {
		err = waitTerminal(ctx, a.queue)
	} else {
		err = a.queue.WaitIdle(ctx)
	}
	if errors.Is(err, context.Canceled) {
		log.Info().Str("op", "cmd/run").Msg("interrupted, stopping downloads")
	}
	stop()
	if display != nil {
		display.StopDisplay()
	}

	failed := 0
	for _, id := range ids {
		if job, ok := a.queue.Get(id); !ok || job.Status != model.StatusSuccess {
			failed++
		}
	}
	return failed + len(reqs) - len(ids)
}

// waitTerminal blocks until every record reached a terminal status.
func waitTerminal(ctx context.Context, q *queue.Manager) error {
	sub, cancel := context.WithCancel(ctx)
	defer cancel()
	for snap := range q.Subscribe(sub) {
		done := true
		for _, job := range snap.Jobs {
			if !job.Status.IsTerminal() {
				done = false
				break
			}
		}
		if done {
			return nil
		}
	}
	return ctx.Err()
}
