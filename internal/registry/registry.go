package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidown/internal/model"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Canceller stops any in-flight execution for a job id. The scheduler implements it.
type Canceller interface {
	Cancel(id string)
}

// Snapshot is an immutable view of every known record in insertion order.
type Snapshot struct {
	Version uint64
	Jobs    []model.Job
}

func (s *Snapshot) index(id string) int {
	for i := range s.Jobs {
		if s.Jobs[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns a copy of the record for id.
func (s *Snapshot) Get(id string) (model.Job, bool) {
	if i := s.index(id); i >= 0 {
		return s.Jobs[i], true
	}
	return model.Job{}, false
}

func (s *Snapshot) replace(i int, job model.Job) *Snapshot {
	jobs := make([]model.Job, len(s.Jobs))
	copy(jobs, s.Jobs)
	jobs[i] = job
	return &Snapshot{Version: s.Version + 1, Jobs: jobs}
}

func (s *Snapshot) append(job model.Job) *Snapshot {
	jobs := make([]model.Job, len(s.Jobs), len(s.Jobs)+1)
	copy(jobs, s.Jobs)
	return &Snapshot{Version: s.Version + 1, Jobs: append(jobs, job)}
}

func (s *Snapshot) without(i int) *Snapshot {
	jobs := make([]model.Job, 0, len(s.Jobs)-1)
	jobs = append(jobs, s.Jobs[:i]...)
	jobs = append(jobs, s.Jobs[i+1:]...)
	return &Snapshot{Version: s.Version + 1, Jobs: jobs}
}

// Registry is the single source of truth for Job records. All writes are
// compare-and-swap over an immutable snapshot, so readers never see a partial
// record.
type Registry struct {
	current   atomic.Pointer[Snapshot]
	canceller atomic.Pointer[cancellerBox]
	now       func() time.Time

	mu      sync.Mutex // guards subs and serialises publishing
	subs    map[int]*subscriber
	nextSub int
	closed  bool
	done    chan struct{}
}

type cancellerBox struct{ c Canceller }

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithCanceller(c Canceller) Option {
	return func(r *Registry) { r.SetCanceller(c) }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		now:  time.Now,
		subs: make(map[int]*subscriber),
		done: make(chan struct{}),
	}
	r.current.Store(&Snapshot{})
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetCanceller wires the collaborator told about removals. The scheduler and the
// registry reference each other, so this is set after both are built.
func (r *Registry) SetCanceller(c Canceller) {
	r.canceller.Store(&cancellerBox{c: c})
}

// Add inserts job if its id is unknown. It reports whether the record was inserted.
func (r *Registry) Add(job model.Job) bool {
	if job.Status == "" {
		job.Status = model.StatusPending
	}
	for {
		old := r.current.Load()
		if old.index(job.ID) >= 0 {
			return false
		}
		if r.current.CompareAndSwap(old, old.append(job)) {
			log.Debug().Str("op", "registry/add").Str("job", job.ID).Msg("job added")
			r.publish()
			return true
		}
	}
}

// UpdateProgress sets the record to Downloading with the given counters. Unknown
// ids are ignored; an empty speed or eta keeps the last known value.
func (r *Registry) UpdateProgress(id string, progress float64, downloaded, total int64, speed, eta string) error {
	err := r.update(id, func(job *model.Job) error {
		if !model.CanTransition(job.Status, model.StatusDownloading) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, model.StatusDownloading)
		}
		job.Status = model.StatusDownloading
		job.Progress = model.ClampPercent(progress)
		if total < 0 {
			total = 0
		}
		if downloaded < 0 {
			downloaded = 0
		}
		if total > 0 && downloaded > total {
			downloaded = total
		}
		job.DownloadedBytes = downloaded
		job.TotalBytes = total
		if speed != "" {
			job.Speed = speed
		}
		if eta != "" {
			job.ETA = eta
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// UpdateStatus moves the record to status, rejecting edges the state machine
// does not allow.
func (r *Registry) UpdateStatus(id string, status model.Status) error {
	return r.update(id, func(job *model.Job) error {
		if !model.CanTransition(job.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
		}
		job.Status = status
		return nil
	})
}

func (r *Registry) Pause(id string) error {
	return r.UpdateStatus(id, model.StatusPaused)
}

func (r *Registry) Resume(id string) error {
	return r.UpdateStatus(id, model.StatusPending)
}

// Remove deletes the record and asks the canceller to stop its execution.
func (r *Registry) Remove(id string) bool {
	removed := false
	for {
		old := r.current.Load()
		i := old.index(id)
		if i < 0 {
			break
		}
		if r.current.CompareAndSwap(old, old.without(i)) {
			removed = true
			r.publish()
			break
		}
	}
	if box := r.canceller.Load(); box != nil && box.c != nil {
		box.c.Cancel(id)
	}
	if removed {
		log.Debug().Str("op", "registry/remove").Str("job", id).Msg("job removed")
	}
	return removed
}

func (r *Registry) Get(id string) (model.Job, bool) {
	return r.current.Load().Get(id)
}

// List returns every record in insertion order.
func (r *Registry) List() []model.Job {
	snap := r.current.Load()
	jobs := make([]model.Job, len(snap.Jobs))
	copy(jobs, snap.Jobs)
	return jobs
}

func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

func (r *Registry) update(id string, fn func(job *model.Job) error) error {
	for {
		old := r.current.Load()
		i := old.index(id)
		if i < 0 {
			return ErrNotFound
		}
		job := old.Jobs[i]
		if err := fn(&job); err != nil {
			return err
		}
		job.UpdatedAt = r.now()
		if r.current.CompareAndSwap(old, old.replace(i, job)) {
			r.publish()
			return nil
		}
	}
}

// Subscribe streams the current snapshot followed by every later one. A slow
// reader only misses intermediate snapshots, never sees them out of order. The
// channel closes when ctx is done or the registry is closed.
func (r *Registry) Subscribe(ctx context.Context) <-chan *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := &subscriber{ch: make(chan *Snapshot, 1)}
	if r.closed {
		close(sub.ch)
		return sub.ch
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = sub
	sub.offer(r.current.Load())
	go func() {
		select {
		case <-ctx.Done():
			r.unsubscribe(id)
		case <-r.done:
		}
	}()
	return sub.ch
}

func (r *Registry) unsubscribe(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subs[id]; ok {
		delete(r.subs, id)
		close(sub.ch)
	}
}

// Close ends every subscription. Reads and writes keep working.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.done)
	for id, sub := range r.subs {
		delete(r.subs, id)
		close(sub.ch)
	}
}

func (r *Registry) publish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.current.Load()
	for _, sub := range r.subs {
		sub.offer(snap)
	}
}

type subscriber struct {
	ch   chan *Snapshot
	last uint64
	sent bool
}

// offer keeps only the newest snapshot in the buffer. Callers hold Registry.mu.
func (s *subscriber) offer(snap *Snapshot) {
	if s.sent && snap.Version <= s.last {
		return
	}
	s.last = snap.Version
	s.sent = true
	select {
	case s.ch <- snap:
	default:
		select {
		case <-s.ch:
		default:
		}
		s.ch <- snap
	}
}
