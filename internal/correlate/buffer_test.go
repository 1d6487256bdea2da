package correlate

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBuffer_PutOverwritesSlot(t *testing.T) {
	b := NewBuffer()
	now := time.Now()

	first := b.Put(Message{UserID: "u1", Text: "old"}, now)
	second := b.Put(Message{UserID: "u1", Text: "new"}, now.Add(time.Second))

	if b.Len() != 1 {
		t.Fatalf("expected single entry per user, got %d", b.Len())
	}
	e, ok := b.Peek("u1")
	if !ok {
		t.Fatal("expected entry for u1")
	}
	if e.ID == first {
		t.Error("old entry identity survived overwrite")
	}
	if e.ID != second || e.Msg.Text != "new" {
		t.Errorf("slot holds %q (id %v), want the newer message", e.Msg.Text, e.ID)
	}
}

func TestBuffer_MarkConsumedExactlyOnce(t *testing.T) {
	b := NewBuffer()
	id := b.Put(Message{UserID: "u1"}, time.Now())

	if !b.MarkConsumed("u1", id) {
		t.Fatal("first MarkConsumed should win")
	}
	if b.MarkConsumed("u1", id) {
		t.Error("second MarkConsumed should report already consumed")
	}
}

func TestBuffer_MarkConsumedStaleIdentity(t *testing.T) {
	b := NewBuffer()
	old := b.Put(Message{UserID: "u1"}, time.Now())
	b.Put(Message{UserID: "u1"}, time.Now())

	if b.MarkConsumed("u1", old) {
		t.Error("MarkConsumed with superseded identity should fail")
	}
	if b.MarkConsumed("u1", uuid.New()) {
		t.Error("MarkConsumed with unknown identity should fail")
	}
	if b.MarkConsumed("nobody", old) {
		t.Error("MarkConsumed for absent user should fail")
	}
}

func TestBuffer_TakeSkipsConsumed(t *testing.T) {
	b := NewBuffer()
	id := b.Put(Message{UserID: "u1", Text: "hi"}, time.Now())

	if !b.MarkConsumed("u1", id) {
		t.Fatal("setup: consume failed")
	}
	if _, ok := b.Take("u1", id); ok {
		t.Error("Take must not return a consumed entry")
	}
	// The consuming path removes the entry itself.
	b.Remove("u1", id)
	if b.Len() != 0 {
		t.Errorf("expected empty buffer, got %d entries", b.Len())
	}
}

func TestBuffer_TakeRemoves(t *testing.T) {
	b := NewBuffer()
	id := b.Put(Message{UserID: "u1", Text: "hi"}, time.Now())

	e, ok := b.Take("u1", id)
	if !ok || e.Msg.Text != "hi" {
		t.Fatalf("Take = (%v, %v), want entry with text %q", e, ok, "hi")
	}
	if _, ok := b.Take("u1", id); ok {
		t.Error("second Take should find nothing")
	}
}

func TestBuffer_SweepPurgesOldEntries(t *testing.T) {
	b := NewBuffer()
	now := time.Now()

	stale := b.Put(Message{UserID: "old"}, now.Add(-2*time.Minute))
	b.MarkConsumed("old", stale) // consumed entries are swept too
	b.Put(Message{UserID: "fresh"}, now.Add(-time.Second))

	if removed := b.Sweep(now, time.Minute); removed != 1 {
		t.Fatalf("Sweep removed %d, want 1", removed)
	}
	if _, ok := b.Peek("old"); ok {
		t.Error("stale entry survived sweep")
	}
	if _, ok := b.Peek("fresh"); !ok {
		t.Error("fresh entry removed by sweep")
	}
}
