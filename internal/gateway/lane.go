package gateway

import "sync"

// laneLock serialises calls per session while letting different sessions
// proceed in parallel. The global mutex is held only to find or create the
// per-session mutex.
type laneLock struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

// lane counts goroutines holding or waiting on it; it is dropped from the
// map when the count reaches zero.
type lane struct {
	mu   sync.Mutex
	refs int
}

func newLaneLock() *laneLock {
	return &laneLock{lanes: make(map[string]*lane)}
}

// acquire locks the lane for id. The caller must release it.
func (l *laneLock) acquire(id string) {
	l.mu.Lock()
	ln, ok := l.lanes[id]
	if !ok {
		ln = &lane{}
		l.lanes[id] = ln
	}
	ln.refs++
	l.mu.Unlock()

	// Lock outside the global mutex so other sessions are not blocked.
	ln.mu.Lock()
}

// release unlocks the lane for id.
func (l *laneLock) release(id string) {
	l.mu.Lock()
	ln, ok := l.lanes[id]
	if !ok {
		l.mu.Unlock()
		return
	}
	ln.refs--
	if ln.refs == 0 {
		delete(l.lanes, id)
	}
	l.mu.Unlock()

	ln.mu.Unlock()
}

// size returns the number of live lanes.
func (l *laneLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
