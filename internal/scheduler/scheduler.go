package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidown/internal/model"
)

const maxBackoff = time.Minute

// Executor runs one attempt of one job.
type Executor interface {
	Run(ctx context.Context, id string, attempt int) model.Outcome
}

type entryState int

const (
	stateQueued entryState = iota
	stateRunning
	stateWaiting // retry backoff
	stateParked  // suspended until scheduled again
)

type entry struct {
	attempts  int // failed attempts so far
	state     entryState
	cancel    context.CancelFunc
	resched   bool
	cancelled bool
	timer     *time.Timer
}

// Scheduler is a fixed pool of workers pulling job ids from a FIFO queue. An id
// is never run twice at the same time.
type Scheduler struct {
	exec    Executor
	workers int
	backoff time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []string
	entries map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func New(exec Executor, workers int, backoff time.Duration) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	s := &Scheduler{
		exec:    exec,
		workers: workers,
		backoff: backoff,
		entries: make(map[string]*entry),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the workers. Ids scheduled earlier start running now.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func(workerID int) {
			defer s.wg.Done()
			s.processJobs(workerID)
		}(i)
	}
	go func(ctx context.Context) {
		<-ctx.Done()
		s.mu.Lock()
		s.stopped = true
		s.cond.Broadcast()
		s.mu.Unlock()
	}(s.ctx)
	log.Debug().Str("op", "scheduler/start").Int("workers", s.workers).Msg("scheduler started")
}

// Schedule queues id. Scheduling an id that is already queued is a no-op; one
// that is running is queued again once the current attempt ends.
func (s *Scheduler) Schedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	e, ok := s.entries[id]
	if !ok {
		s.entries[id] = &entry{state: stateQueued}
		s.push(id)
		return
	}
	switch e.state {
	case stateRunning:
		e.resched = true
	case stateWaiting:
		e.timer.Stop()
		e.state = stateQueued
		s.push(id)
	case stateParked:
		e.state = stateQueued
		s.push(id)
	}
}

// Cancel forgets id and cancels the context of a running attempt.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	switch e.state {
	case stateRunning:
		e.cancelled = true
		e.cancel()
		return
	case stateWaiting:
		e.timer.Stop()
	}
	delete(s.entries, id)
}

// Stop cancels running attempts and waits for every worker to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

// Len reports how many ids the scheduler still tracks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) push(id string) {
	s.queue = append(s.queue, id)
	s.cond.Signal()
}

func (s *Scheduler) processJobs(workerID int) {
	for {
		id, e, ctx, ok := s.next()
		if !ok {
			return
		}
		log.Debug().Str("op", "scheduler/run").Str("job", id).Int("worker", workerID).Int("attempt", e.attempts+1).Msg("running job")
		outcome := s.exec.Run(ctx, id, e.attempts+1)
		s.complete(id, e, outcome)
	}
}

func (s *Scheduler) next() (string, *entry, context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped {
			return "", nil, nil, false
		}
		id := s.queue[0]
		s.queue = s.queue[1:]
		e, ok := s.entries[id]
		if !ok || e.state != stateQueued {
			continue
		}
		ctx, cancel := context.WithCancel(s.ctx)
		e.state = stateRunning
		e.cancel = cancel
		return id, e, ctx, true
	}
}

func (s *Scheduler) complete(id string, e *entry, outcome model.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.cancel()
	if s.entries[id] != e {
		return
	}
	if e.cancelled || s.stopped || outcome.IsFinal() {
		delete(s.entries, id)
		log.Debug().Str("op", "scheduler/complete").Str("job", id).Str("outcome", outcome.String()).Msg("job done")
		return
	}
	switch outcome {
	case model.OutcomeRetry:
		e.attempts++
		e.resched = false
		e.state = stateWaiting
		delay := s.delay(e.attempts)
		log.Debug().Str("op", "scheduler/complete").Str("job", id).Dur("backoff", delay).Msg("retry scheduled")
		e.timer = time.AfterFunc(delay, func() { s.requeue(id, e) })
	case model.OutcomeSuspended:
		if e.resched {
			e.resched = false
			e.state = stateQueued
			s.push(id)
			return
		}
		e.state = stateParked
	}
}

func (s *Scheduler) requeue(id string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.entries[id] != e || e.state != stateWaiting {
		return
	}
	e.state = stateQueued
	s.push(id)
}

func (s *Scheduler) delay(attempts int) time.Duration {
	d := s.backoff
	for i := 1; i < attempts && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
