package conversation

import "sync"

// sessionLocks serializes turn processing per session. Entries are
// reference counted and removed when the last holder releases, so the
// map does not grow with the number of sessions ever seen.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

func (l *sessionLocks) Lock(sessionID string) {
	l.mu.Lock()
	entry, ok := l.locks[sessionID]
	if !ok {
		entry = &sessionLock{}
		l.locks[sessionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

func (l *sessionLocks) Unlock(sessionID string) {
	l.mu.Lock()
	entry, ok := l.locks[sessionID]
	if !ok {
		l.mu.Unlock()
		panic("conversation: unlock of unheld session lock")
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, sessionID)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
