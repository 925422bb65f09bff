package negotiation

import (
	"sync"
	"testing"
)

func TestLockTableSerializesPerSession(t *testing.T) {
	lt := newLockTable()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := lt.acquire("ses_1")
			defer release()
			counter++
		}()
	}
	wg.Wait()
	if counter != 100 {
		t.Fatalf("expected 100 serialized increments, got %d", counter)
	}

	lt.mu.Lock()
	remaining := len(lt.locks)
	lt.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected lock table drained after release, %d entries remain", remaining)
	}
}

func TestLockTableIndependentSessions(t *testing.T) {
	lt := newLockTable()
	releaseA := lt.acquire("ses_a")
	// a different session's lock must not block
	releaseB := lt.acquire("ses_b")
	releaseB()
	releaseA()
}
