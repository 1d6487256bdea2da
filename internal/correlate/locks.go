package correlate

import "sync"

// lockTable hands out per-key mutexes that are dropped once the last
// holder releases them, so the table stays bounded by the number of
// users with in-flight correlations rather than every user ever seen.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// acquire locks the mutex for key, creating it on first use.
func (t *lockTable) acquire(key string) *userLock {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*userLock)
	}
	l, ok := t.locks[key]
	if !ok {
		l = &userLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return l
}

// release unlocks l and removes the table entry once no other
// goroutine holds or waits on it.
func (t *lockTable) release(key string, l *userLock) {
	l.mu.Unlock()

	t.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, key)
	}
	t.mu.Unlock()
}

// size returns the number of live entries.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
