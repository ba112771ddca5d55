// Package queue is the control surface over the registry and the job runner:
// every enqueue, pause, resume, cancel and removal goes through a Manager.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidown/internal/config"
	"github.com/tanq16/vidown/internal/model"
	"github.com/tanq16/vidown/internal/registry"
)

var (
	ErrInvalidRequest = errors.New("invalid download request")
	ErrNotRetryable   = errors.New("only failed or cancelled jobs can be retried")
)

// Runner is the job runner collaborator.
type Runner interface {
	Schedule(id string)
	Cancel(id string)
}

type SettingsSource interface {
	Snapshot() config.Settings
}

type Manager struct {
	reg      *registry.Registry
	runner   Runner
	settings SettingsSource
	now      func() time.Time
}

func New(reg *registry.Registry, runner Runner, settings SettingsSource) *Manager {
	return &Manager{reg: reg, runner: runner, settings: settings, now: time.Now}
}

// Enqueue creates a Pending record for req and hands it to the runner.
func (m *Manager) Enqueue(req model.Request) (model.Job, error) {
	req = req.Normalize(m.settings.Snapshot().DefaultFormat)
	if req.URL == "" {
		return model.Job{}, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	if !strings.Contains(req.URL, "://") {
		return model.Job{}, fmt.Errorf("%w: %q is not a url", ErrInvalidRequest, req.URL)
	}
	job := model.NewJob(req, m.now())
	if !m.reg.Add(job) {
		return model.Job{}, fmt.Errorf("job %s already exists", job.ID)
	}
	m.runner.Schedule(job.ID)
	log.Info().Str("op", "queue/enqueue").Str("job", job.ID).Str("format", job.FormatID).Msgf("queued %s", job.URL)
	return job, nil
}

// Pause performs a single status write; a running worker observes it on its
// next poll.
func (m *Manager) Pause(id string) error {
	if err := m.reg.Pause(id); err != nil {
		return err
	}
	log.Info().Str("op", "queue/pause").Str("job", id).Msg("job paused")
	return nil
}

func (m *Manager) Resume(id string) error {
	if err := m.reg.Resume(id); err != nil {
		return err
	}
	m.runner.Schedule(id)
	log.Info().Str("op", "queue/resume").Str("job", id).Msg("job resumed")
	return nil
}

// Cancel stops the job and keeps its record visible as Cancelled.
func (m *Manager) Cancel(id string) error {
	if err := m.reg.UpdateStatus(id, model.StatusCancelled); err != nil {
		return err
	}
	m.runner.Cancel(id)
	log.Info().Str("op", "queue/cancel").Str("job", id).Msg("job cancelled")
	return nil
}

// Remove deletes the record; the registry tells the runner to stop it.
func (m *Manager) Remove(id string) bool {
	return m.reg.Remove(id)
}

// Retry enqueues a fresh record with the parameters of a finished one.
func (m *Manager) Retry(id string) (model.Job, error) {
	old, ok := m.reg.Get(id)
	if !ok {
		return model.Job{}, registry.ErrNotFound
	}
	if old.Status != model.StatusFailed && old.Status != model.StatusCancelled {
		return model.Job{}, fmt.Errorf("%w: %s is %s", ErrNotRetryable, old.ShortID(), old.Status)
	}
	req := old.Request()
	req.TotalBytes = old.TotalBytes
	return m.Enqueue(req)
}

func (m *Manager) Get(id string) (model.Job, bool) {
	return m.reg.Get(id)
}

func (m *Manager) List() []model.Job {
	return m.reg.List()
}

func (m *Manager) Subscribe(ctx context.Context) <-chan *registry.Snapshot {
	return m.reg.Subscribe(ctx)
}

// Resolve finds a record by full id or unique id prefix.
func (m *Manager) Resolve(ref string) (model.Job, error) {
	if job, ok := m.reg.Get(ref); ok {
		return job, nil
	}
	var found []model.Job
	for _, job := range m.reg.List() {
		if ref != "" && strings.HasPrefix(job.ID, ref) {
			found = append(found, job)
		}
	}
	switch len(found) {
	case 0:
		return model.Job{}, fmt.Errorf("%w: %s", registry.ErrNotFound, ref)
	case 1:
		return found[0], nil
	default:
		return model.Job{}, fmt.Errorf("ambiguous job id %q matches %d jobs", ref, len(found))
	}
}

// Idle reports whether no record is waiting for or making progress.
func Idle(jobs []model.Job) bool {
	for _, job := range jobs {
		if job.Status == model.StatusPending || job.Status == model.StatusDownloading {
			return false
		}
	}
	return true
}

// WaitIdle blocks until every record is terminal or paused.
func (m *Manager) WaitIdle(ctx context.Context) error {
	sub, cancel := context.WithCancel(ctx)
	defer cancel()
	for snap := range m.reg.Subscribe(sub) {
		if Idle(snap.Jobs) {
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
