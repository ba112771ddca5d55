// Package worker drives one download attempt of one job from start to a
// terminal or retryable outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidown/internal/config"
	"github.com/tanq16/vidown/internal/history"
	"github.com/tanq16/vidown/internal/model"
	"github.com/tanq16/vidown/internal/progress"
	"github.com/tanq16/vidown/internal/store"
	"github.com/tanq16/vidown/internal/ytdlp"
)

const commitAttempts = 3

var errRecordGone = errors.New("record removed or finished while saving")

type Registry interface {
	Get(id string) (model.Job, bool)
	UpdateStatus(id string, status model.Status) error
	UpdateProgress(id string, progress float64, downloaded, total int64, speed, eta string) error
}

type Downloader interface {
	Download(ctx context.Context, req ytdlp.Request, cb ytdlp.Callback) error
}

type Notifier interface {
	ShowProgress(n model.Notice)
	ShowTerminal(id, title string, success bool)
}

type SettingsSource interface {
	Snapshot() config.Settings
}

type Deps struct {
	Registry   Registry
	Downloader Downloader
	Store      store.Store
	History    history.Sink
	Notifier   Notifier
	Settings   SettingsSource
}

type Worker struct {
	Deps
	now func() time.Time
}

type Option func(*Worker)

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func New(deps Deps, opts ...Option) *Worker {
	w := &Worker{Deps: deps, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// TempTemplate is the yt-dlp output template for a job. Keying on the id keeps
// concurrent jobs with equal titles apart and lets a resumed job continue its
// partial file.
func TempTemplate(tempDir, id string) string {
	return filepath.Join(tempDir, id+".%(ext)s")
}

// Run executes attempt number attempt (1-based) of job id. It never returns an
// error: every failure becomes an outcome.
func (w *Worker) Run(ctx context.Context, id string, attempt int) model.Outcome {
	job, ok := w.Registry.Get(id)
	if !ok {
		log.Debug().Str("op", "worker/run").Str("job", id).Msg("job vanished before start")
		return model.OutcomeCancelled
	}
	switch {
	case job.Status == model.StatusPaused:
		return model.OutcomeSuspended
	case job.Status.IsTerminal():
		return model.OutcomeCancelled
	}
	settings := w.Settings.Snapshot()
	if err := w.Registry.UpdateStatus(id, model.StatusDownloading); err != nil {
		log.Debug().Str("op", "worker/run").Str("job", id).Err(err).Msg("could not start")
		return w.interrupted(ctx, id, settings.TempDir)
	}
	log.Info().Str("op", "worker/run").Str("job", id).Int("attempt", attempt).Msgf("downloading %s", job.URL)
	w.Notifier.ShowProgress(model.Notice{JobID: id, Title: job.Title})

	if err := os.MkdirAll(settings.TempDir, 0755); err != nil {
		return w.fail(ctx, job, attempt, settings, fmt.Errorf("error creating temp directory: %v", err))
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go w.poll(runCtx, ctx, id, settings.PollInterval, stop)

	t := &tick{total: job.TotalBytes, lastNotify: w.now()}
	err := w.Downloader.Download(runCtx, ytdlp.Request{
		URL:            job.URL,
		Format:         job.FormatID,
		OutputTemplate: TempTemplate(settings.TempDir, id),
	}, func(ev ytdlp.Event) error {
		return w.onEvent(ctx, job, settings, t, ev)
	})
	stop()

	if w.shouldStop(ctx, id) {
		return w.interrupted(ctx, id, settings.TempDir)
	}
	if err != nil {
		log.Error().Str("op", "worker/run").Str("job", id).Int("attempt", attempt).Err(err).Msg("download failed")
		return w.fail(ctx, job, attempt, settings, err)
	}
	_, total := t.totals()
	return w.finish(ctx, job, attempt, settings, total)
}

// tick is the state threaded through callbacks of a single attempt. Callbacks
// may arrive from both output streams, so it carries its own lock.
type tick struct {
	mu         sync.Mutex
	total      int64
	downloaded int64
	lastNotify time.Time
}

func (t *tick) totals() (int64, int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downloaded, t.total
}

func (w *Worker) onEvent(ctx context.Context, job model.Job, settings config.Settings, t *tick, ev ytdlp.Event) error {
	if w.shouldStop(ctx, job.ID) {
		return ytdlp.ErrStopped
	}
	hint, _ := progress.ParseLine(ev.Line)
	eta := hint.ETA
	if eta == "" && ev.ETASeconds >= 0 && strings.Contains(ev.Line, "ETA") {
		eta = formatETA(ev.ETASeconds)
	}
	pct := model.ClampPercent(ev.Percent)

	t.mu.Lock()
	t.total = progress.MergeTotal(t.total, hint.TotalBytes)
	downloaded := int64(float64(t.total) * pct / 100)
	if downloaded > t.downloaded {
		t.downloaded = downloaded
	}
	total, current := t.total, t.downloaded
	notify := w.now().Sub(t.lastNotify) >= settings.NotifyInterval
	if notify {
		t.lastNotify = w.now()
	}
	t.mu.Unlock()

	if err := w.Registry.UpdateProgress(job.ID, pct, current, total, hint.Speed, eta); err != nil {
		// paused between the check and the write
		return ytdlp.ErrStopped
	}
	if notify {
		cur, _ := w.Registry.Get(job.ID)
		w.Notifier.ShowProgress(model.Notice{
			JobID:   job.ID,
			Title:   job.Title,
			Percent: int(pct),
			Speed:   cur.Speed,
			ETA:     cur.ETA,
		})
	}
	return nil
}

// poll stops the attempt when the record leaves Downloading even if the tool
// goes quiet and no callback arrives.
func (w *Worker) poll(runCtx, parent context.Context, id string, every time.Duration, stop context.CancelFunc) {
	if every <= 0 {
		every = 500 * time.Millisecond
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			if w.shouldStop(parent, id) {
				log.Debug().Str("op", "worker/poll").Str("job", id).Msg("stop requested")
				stop()
				return
			}
		}
	}
}

func (w *Worker) shouldStop(ctx context.Context, id string) bool {
	if ctx.Err() != nil {
		return true
	}
	cur, ok := w.Registry.Get(id)
	return !ok || cur.Status != model.StatusDownloading
}

// interrupted maps a pause, removal or cancellation to its outcome. None of them
// count against the attempt budget.
func (w *Worker) interrupted(ctx context.Context, id, tempDir string) model.Outcome {
	cur, ok := w.Registry.Get(id)
	switch {
	case !ok, cur.Status == model.StatusCancelled:
		removeTemp(tempDir, id)
		log.Info().Str("op", "worker/run").Str("job", id).Msg("job cancelled")
		return model.OutcomeCancelled
	case cur.Status == model.StatusPaused, cur.Status == model.StatusPending:
		log.Info().Str("op", "worker/run").Str("job", id).Msg("job suspended")
		return model.OutcomeSuspended
	case cur.Status.IsTerminal():
		return model.OutcomeCancelled
	}
	if ctx.Err() != nil {
		// runner shutting down; the record keeps its partial file for later
		return model.OutcomeSuspended
	}
	return model.OutcomeCancelled
}

func (w *Worker) finish(ctx context.Context, job model.Job, attempt int, settings config.Settings, total int64) model.Outcome {
	path, err := findOutput(settings.TempDir, job.ID)
	if err != nil {
		return w.fail(ctx, job, attempt, settings, err)
	}
	if info, err := os.Stat(path); err == nil && info.Size() > total {
		total = info.Size()
	}
	if w.shouldStop(ctx, job.ID) {
		return w.interrupted(ctx, job.ID, settings.TempDir)
	}
	mimeType, isVideo := store.DetectMedia(path)
	location, err := store.Materialize(ctx, w.Store, store.Item{
		TempPath:        path,
		Title:           job.Title,
		MimeType:        mimeType,
		IsVideo:         isVideo,
		DestinationHint: settings.DownloadDir,
	})
	if err != nil {
		log.Error().Str("op", "worker/finish").Str("job", job.ID).Err(err).Msg("materialization failed")
		return w.fail(ctx, job, attempt, settings, err)
	}

	if err := w.commit(job.ID, total); err != nil {
		// removed or cancelled while saving: the durable copy must not outlive the record
		log.Debug().Str("op", "worker/finish").Str("job", job.ID).Err(err).Msg("discarding saved file")
		if !w.Store.Delete(ctx, location) {
			log.Warn().Str("op", "worker/finish").Str("job", job.ID).Str("location", location).Msg("failed to delete saved file")
		}
		return w.interrupted(ctx, job.ID, settings.TempDir)
	}
	removeTemp(settings.TempDir, job.ID)
	job.TotalBytes = total
	w.record(ctx, job, model.StatusSuccess, location)
	w.Notifier.ShowTerminal(job.ID, job.Title, true)
	log.Info().Str("op", "worker/finish").Str("job", job.ID).Str("location", location).Msg("download complete")
	return model.OutcomeSuccess
}

// commit marks a saved download Success. A pause that arrived while the file
// was being saved is overridden since nothing is left to resume; a record that
// is gone or terminal is an error.
func (w *Worker) commit(id string, total int64) error {
	var err error
	for i := 0; i < commitAttempts; i++ {
		cur, ok := w.Registry.Get(id)
		if !ok || cur.Status.IsTerminal() {
			return errRecordGone
		}
		if cur.Status == model.StatusPaused {
			if err = w.Registry.UpdateStatus(id, model.StatusPending); err != nil {
				continue
			}
		}
		if err = w.Registry.UpdateProgress(id, 100, total, total, "", ""); err != nil {
			continue
		}
		if err = w.Registry.UpdateStatus(id, model.StatusSuccess); err == nil {
			return nil
		}
	}
	return err
}

func (w *Worker) fail(ctx context.Context, job model.Job, attempt int, settings config.Settings, cause error) model.Outcome {
	if w.shouldStop(ctx, job.ID) {
		return w.interrupted(ctx, job.ID, settings.TempDir)
	}
	if attempt < settings.MaxAttempts {
		log.Warn().Str("op", "worker/fail").Str("job", job.ID).Int("attempt", attempt).Err(cause).Msg("attempt failed, will retry")
		return model.OutcomeRetry
	}
	if err := w.Registry.UpdateStatus(job.ID, model.StatusFailed); err != nil {
		return w.interrupted(ctx, job.ID, settings.TempDir)
	}
	removeTemp(settings.TempDir, job.ID)
	if cur, ok := w.Registry.Get(job.ID); ok {
		job.TotalBytes = cur.TotalBytes
	}
	w.record(ctx, job, model.StatusFailed, "")
	w.Notifier.ShowTerminal(job.ID, job.Title, false)
	log.Error().Str("op", "worker/fail").Str("job", job.ID).Int("attempts", attempt).Err(cause).Msg("job failed")
	return model.OutcomeFailed
}

func (w *Worker) record(ctx context.Context, job model.Job, status model.Status, location string) {
	if w.History == nil {
		return
	}
	if err := w.History.Append(ctx, history.NewEntry(job, status, location, w.now())); err != nil {
		log.Error().Str("op", "worker/history").Str("job", job.ID).Err(err).Msg("failed to append history")
	}
}

// findOutput picks the finished file yt-dlp left for id, ignoring partial and
// per-format intermediate files.
func findOutput(tempDir, id string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(tempDir, id+".*"))
	if err != nil {
		return "", fmt.Errorf("error listing temp directory: %v", err)
	}
	best := ""
	var bestSize int64 = -1
	for _, m := range matches {
		rest := strings.TrimPrefix(filepath.Base(m), id+".")
		if strings.Contains(rest, ".") || isPartial(rest) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = m, info.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no output file found for job %s", id)
	}
	return best, nil
}

func isPartial(ext string) bool {
	switch ext {
	case "part", "ytdl", "temp", "tmp":
		return true
	}
	return false
}

func removeTemp(tempDir, id string) {
	matches, _ := filepath.Glob(filepath.Join(tempDir, id+".*"))
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			log.Warn().Str("op", "worker/cleanup").Err(err).Str("path", m).Msg("failed to remove temp file")
		}
	}
}

func formatETA(secs int) string {
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
