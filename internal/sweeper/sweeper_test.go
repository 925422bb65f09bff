package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeService struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeService) Sweep(_ context.Context, _ time.Time, _ int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 1, f.err
}

func (f *fakeService) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	svc := &fakeService{}
	s := New(svc, 5*time.Millisecond, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for svc.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("sweeper did not tick, calls=%d", svc.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

// A failing sweep is logged and does not stop the loop.
func TestRunContinuesAfterError(t *testing.T) {
	svc := &fakeService{err: errors.New("db down")}
	s := New(svc, 5*time.Millisecond, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for svc.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sweeper stopped after error, calls=%d", svc.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestNewDefaults(t *testing.T) {
	s := New(&fakeService{}, 0, 0, nil)
	if s.Interval != time.Minute {
		t.Fatalf("expected default interval, got %s", s.Interval)
	}
	if s.Batch != 100 {
		t.Fatalf("expected default batch, got %d", s.Batch)
	}
	if s.Log == nil {
		t.Fatal("expected non-nil logger")
	}
}
