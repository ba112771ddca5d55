package control

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tanq16/vidown/internal/config"
	"github.com/tanq16/vidown/internal/model"
	"github.com/tanq16/vidown/internal/queue"
	"github.com/tanq16/vidown/internal/registry"
)

type noopRunner struct{}

func (noopRunner) Schedule(id string) {}
func (noopRunner) Cancel(id string)   {}

func startServer(t *testing.T) (*Client, *registry.Registry, string) {
	t.Helper()
	reg := registry.New()
	m := queue.New(reg, noopRunner{}, config.NewProvider(config.Default()))
	path := filepath.Join(t.TempDir(), "v.sock")
	srv := NewServer(m, path)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
		reg.Close()
	})
	return NewClient(path), reg, path
}

func TestControlActions(t *testing.T) {
	c, reg, _ := startServer(t)
	ctx := context.Background()

	job, err := c.Add(ctx, model.Request{URL: "https://youtu.be/abc", Title: "clip"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if job.Status != model.StatusPending {
		t.Errorf("expected pending, got %s", job.Status)
	}
	if _, err := c.Add(ctx, model.Request{URL: "nope"}); err == nil || !strings.Contains(err.Error(), "invalid download request") {
		t.Errorf("expected invalid request error, got %v", err)
	}

	tests := []struct {
		action   Action
		expected model.Status
	}{
		{ActionPause, model.StatusPaused},
		{ActionResume, model.StatusPending},
		{ActionCancel, model.StatusCancelled},
	}
	for _, test := range tests {
		got, err := c.Control(ctx, test.action, job.ShortID())
		if err != nil {
			t.Fatalf("%s: %v", test.action, err)
		}
		if got.Status != test.expected {
			t.Errorf("%s: expected %s, got %s", test.action, test.expected, got.Status)
		}
		if stored, _ := reg.Get(job.ID); stored.Status != test.expected {
			t.Errorf("%s: registry holds %s", test.action, stored.Status)
		}
	}

	fresh, err := c.Control(ctx, ActionRetry, job.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if fresh.ID == job.ID || fresh.Status != model.StatusPending {
		t.Errorf("unexpected retry record %+v", fresh)
	}
	jobs, err := c.List(ctx)
	if err != nil || len(jobs) != 2 {
		t.Fatalf("List = %d jobs, %v", len(jobs), err)
	}

	if _, err := c.Control(ctx, ActionRemove, job.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := c.Get(ctx, job.ID); err == nil {
		t.Error("expected removed job to be gone")
	}
	if _, err := c.Do(ctx, Request{Action: "explode"}); err == nil {
		t.Error("expected unknown action error")
	}
}

func TestWatchStreamsSnapshots(t *testing.T) {
	c, reg, _ := startServer(t)
	reg.Add(model.Job{ID: "w1", Title: "watched", Status: model.StatusPending})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errDone := errors.New("done")
	var versions []uint64
	err := c.Watch(ctx, func(version uint64, jobs []model.Job) error {
		versions = append(versions, version)
		if len(jobs) == 1 && jobs[0].Status == model.StatusPaused {
			return errDone
		}
		if len(versions) == 1 {
			go c.Control(context.Background(), ActionPause, "w1")
		}
		return nil
	})
	if !errors.Is(err, errDone) {
		t.Fatalf("Watch: %v", err)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("versions not increasing: %v", versions)
		}
	}
}

func TestListenRefusesLiveSocket(t *testing.T) {
	_, _, path := startServer(t)
	srv := NewServer(nil, path)
	if err := srv.Listen(); !errors.Is(err, ErrDaemonRunning) {
		t.Errorf("expected ErrDaemonRunning, got %v", err)
	}
}

func TestClientWithoutDaemon(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	if _, err := c.List(context.Background()); !errors.Is(err, ErrDaemonUnavailable) {
		t.Errorf("expected ErrDaemonUnavailable, got %v", err)
	}
	if _, err := c.Control(context.Background(), ActionAdd, "x"); err == nil {
		t.Error("expected add to be rejected as a control action")
	}
}
