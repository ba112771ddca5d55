package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tanq16/vidown/internal/model"
)

type funcExecutor func(ctx context.Context, id string, attempt int) model.Outcome

func (f funcExecutor) Run(ctx context.Context, id string, attempt int) model.Outcome {
	return f(ctx, id, attempt)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunsEveryJobWithinWorkerBound(t *testing.T) {
	var running, peak, done int32
	exec := funcExecutor(func(ctx context.Context, id string, attempt int) model.Outcome {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		atomic.AddInt32(&done, 1)
		return model.OutcomeSuccess
	})
	s := New(exec, 2, time.Millisecond)
	for i := 0; i < 6; i++ {
		s.Schedule(fmt.Sprintf("job-%d", i))
	}
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, "all jobs", func() bool { return atomic.LoadInt32(&done) == 6 })
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("expected at most 2 concurrent runs, saw %d", p)
	}
	waitFor(t, "entries cleared", func() bool { return s.Len() == 0 })
}

func TestRetryIncrementsAttempt(t *testing.T) {
	var mu sync.Mutex
	var attempts []int
	exec := funcExecutor(func(ctx context.Context, id string, attempt int) model.Outcome {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return model.OutcomeRetry
		}
		return model.OutcomeFailed
	})
	s := New(exec, 1, time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()
	s.Schedule("a")

	waitFor(t, "three attempts", func() bool { return s.Len() == 0 })
	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(attempts) != "[1 2 3]" {
		t.Errorf("expected attempts [1 2 3], got %v", attempts)
	}
}

func TestSuspendedParksWithoutCountingAttempt(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	var attempts []int
	exec := funcExecutor(func(ctx context.Context, id string, attempt int) model.Outcome {
		mu.Lock()
		attempts = append(attempts, attempt)
		mu.Unlock()
		if atomic.AddInt32(&calls, 1) == 1 {
			return model.OutcomeSuspended
		}
		return model.OutcomeSuccess
	})
	s := New(exec, 1, time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()
	s.Schedule("a")

	waitFor(t, "first run", func() bool { return atomic.LoadInt32(&calls) == 1 })
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatal("suspended job must stay parked until scheduled")
	}
	if s.Len() != 1 {
		t.Fatalf("expected parked entry to be tracked, got %d", s.Len())
	}
	s.Schedule("a")
	waitFor(t, "resumed run", func() bool { return s.Len() == 0 })
	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(attempts) != "[1 1]" {
		t.Errorf("expected attempts [1 1], got %v", attempts)
	}
}

func TestScheduleWhileRunningRequeuesAfterSuspend(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	exec := funcExecutor(func(ctx context.Context, id string, attempt int) model.Outcome {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-release
			return model.OutcomeSuspended
		}
		return model.OutcomeSuccess
	})
	s := New(exec, 1, time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()
	s.Schedule("a")
	waitFor(t, "first run", func() bool { return atomic.LoadInt32(&calls) == 1 })
	s.Schedule("a")
	close(release)
	waitFor(t, "second run", func() bool { return atomic.LoadInt32(&calls) == 2 && s.Len() == 0 })
}

func TestCancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	var calls int32
	exec := funcExecutor(func(ctx context.Context, id string, attempt int) model.Outcome {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-ctx.Done()
		return model.OutcomeSuspended
	})
	s := New(exec, 1, time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()
	s.Schedule("a")
	<-started
	s.Cancel("a")
	waitFor(t, "cancelled entry removed", func() bool { return s.Len() == 0 })
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("cancelled job ran again")
	}
}

func TestCancelDuringBackoff(t *testing.T) {
	var calls int32
	exec := funcExecutor(func(ctx context.Context, id string, attempt int) model.Outcome {
		atomic.AddInt32(&calls, 1)
		return model.OutcomeRetry
	})
	s := New(exec, 1, 200*time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()
	s.Schedule("a")
	waitFor(t, "first run", func() bool { return atomic.LoadInt32(&calls) == 1 })
	s.Cancel("a")
	time.Sleep(300 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 1 || s.Len() != 0 {
		t.Errorf("expected no rerun after cancel, calls=%d len=%d", n, s.Len())
	}
}

func TestAtMostOneRunPerID(t *testing.T) {
	var running, overlap int32
	release := make(chan struct{})
	var once sync.Once
	exec := funcExecutor(func(ctx context.Context, id string, attempt int) model.Outcome {
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.StoreInt32(&overlap, 1)
		}
		once.Do(func() { <-release })
		atomic.AddInt32(&running, -1)
		return model.OutcomeSuccess
	})
	s := New(exec, 4, time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()
	for i := 0; i < 10; i++ {
		s.Schedule("same")
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	waitFor(t, "job finished", func() bool { return s.Len() == 0 })
	if atomic.LoadInt32(&overlap) != 0 {
		t.Error("same id ran concurrently")
	}
}

func TestStopIgnoresLaterSchedules(t *testing.T) {
	var calls int32
	exec := funcExecutor(func(ctx context.Context, id string, attempt int) model.Outcome {
		atomic.AddInt32(&calls, 1)
		return model.OutcomeSuccess
	})
	s := New(exec, 2, time.Millisecond)
	s.Start(context.Background())
	s.Stop()
	s.Schedule("late")
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("schedule after stop must not run")
	}
}

func TestDelayDoublesAndCaps(t *testing.T) {
	s := New(nil, 1, 2*time.Second)
	tests := []struct {
		attempts int
		expected time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{10, time.Minute},
	}
	for _, test := range tests {
		if got := s.delay(test.attempts); got != test.expected {
			t.Errorf("delay(%d) = %v, expected %v", test.attempts, got, test.expected)
		}
	}
}
