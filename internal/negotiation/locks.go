package negotiation

import "sync"

// lockTable hands out one mutex per session id so round closure and session
// transitions are serialized within this process. Cross-process exclusion is
// the store's version CAS; the in-process lock just keeps local writers from
// burning CAS retries against each other.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sessionLock)}
}

// acquire blocks until the session lock is held and returns the release
// function. Entries are reference-counted and removed when unused so the
// table does not grow with session history.
func (t *lockTable) acquire(sessionID string) func() {
	t.mu.Lock()
	l, ok := t.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		t.locks[sessionID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, sessionID)
		}
		t.mu.Unlock()
	}
}
