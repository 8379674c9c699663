package dispatch

import "sync"

// callLocker serializes dispatch per call id. Turns within one call must
// see each other's context writes in arrival order; turns of different
// calls never contend. Entries are reference counted so the map does not
// grow with call history.
type callLocker struct {
	mu    sync.Mutex
	locks map[string]*callLock
}

type callLock struct {
	mu   sync.Mutex
	refs int
}

func newCallLocker() *callLocker {
	return &callLocker{locks: make(map[string]*callLock)}
}

// acquire blocks until the caller holds the lock for callID and returns
// the release function.
func (l *callLocker) acquire(callID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[callID]
	if !ok {
		entry = &callLock{}
		l.locks[callID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, callID)
		}
		l.mu.Unlock()
	}
}
