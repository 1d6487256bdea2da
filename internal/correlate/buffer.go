package correlate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one inbound user message as seen by the correlation core.
type Message struct {
	UserID        string
	Text          string
	Forwarded     bool
	ForwardAuthor string // populated only for forwarded messages
	Origin        Origin // transport reply context, opaque to this package
}

// Entry is a buffered message waiting for a potential counterpart.
// At most one live entry exists per user at any time.
type Entry struct {
	ID         uuid.UUID
	Msg        Message
	EnqueuedAt time.Time
	consumed   bool
}

// Buffer is the per-user single-slot correlation buffer.
// All operations are atomic with respect to each other.
type Buffer struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewBuffer creates an empty correlation buffer.
func NewBuffer() *Buffer {
	return &Buffer{entries: make(map[string]*Entry)}
}

// Put stores msg as the buffered entry for its user, overwriting any
// previous entry, and returns the new entry's identity token.
func (b *Buffer) Put(msg Message, now time.Time) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New()
	b.entries[msg.UserID] = &Entry{
		ID:         id,
		Msg:        msg,
		EnqueuedAt: now,
	}
	return id
}

// Peek returns a snapshot of the current entry for userID without
// removing it. The snapshot's consumed flag reflects the state at call
// time; use MarkConsumed to claim the entry.
func (b *Buffer) Peek(userID string) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[userID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// MarkConsumed claims the entry for userID if it is still present, still
// the entry identified by id, and not yet consumed. It reports whether
// the flag was newly set. This is the sole synchronization point between
// a pairing arrival and a firing solo timeout: exactly one caller wins.
func (b *Buffer) MarkConsumed(userID string, id uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[userID]
	if !ok || e.ID != id || e.consumed {
		return false
	}
	e.consumed = true
	return true
}

// Take atomically removes and returns the entry for userID, but only if
// it is still the entry identified by id and has not been consumed by a
// pairing match. Used by the deferred solo check: a stale or consumed
// entry yields (Entry{}, false) and the wake-up is a harmless no-op.
func (b *Buffer) Take(userID string, id uuid.UUID) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[userID]
	if !ok || e.ID != id || e.consumed {
		return Entry{}, false
	}
	delete(b.entries, userID)
	return *e, true
}

// Remove deletes the entry for userID if it is the one identified by id.
// Called by the pairing path after a successful MarkConsumed.
func (b *Buffer) Remove(userID string, id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[userID]; ok && e.ID == id {
		delete(b.entries, userID)
	}
}

// Sweep removes all entries older than maxAge, consumed or not.
// Reclaims entries orphaned by failed resolution paths.
func (b *Buffer) Sweep(now time.Time, maxAge time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for userID, e := range b.entries {
		if now.Sub(e.EnqueuedAt) > maxAge {
			delete(b.entries, userID)
			removed++
		}
	}
	return removed
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
