package correlate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// manualDebouncer captures scheduled callbacks so tests control when the
// solo timeout fires, without real sleeps.
type manualDebouncer struct {
	mu    sync.Mutex
	fns   []func()
	delay []time.Duration
}

func (d *manualDebouncer) After(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fns = append(d.fns, fn)
	d.delay = append(d.delay, delay)
}

// fire runs and clears all pending callbacks.
func (d *manualDebouncer) fire() {
	d.mu.Lock()
	fns := d.fns
	d.fns = nil
	d.delay = nil
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type assemblyCall struct {
	kind        string // "solo", "forwarded", "pair"
	explanation string
	forwarded   string
	author      string
}

// recordingAssembler records every assembly invocation.
type recordingAssembler struct {
	mu    sync.Mutex
	calls []assemblyCall
}

func (a *recordingAssembler) AssembleSolo(_ context.Context, msg Message) {
	a.record(assemblyCall{kind: "solo", explanation: msg.Text})
}

func (a *recordingAssembler) AssembleForwarded(_ context.Context, msg Message) {
	a.record(assemblyCall{kind: "forwarded", forwarded: msg.Text, author: msg.ForwardAuthor})
}

func (a *recordingAssembler) AssemblePair(_ context.Context, explanation, forwarded Message) {
	a.record(assemblyCall{
		kind:        "pair",
		explanation: explanation.Text,
		forwarded:   forwarded.Text,
		author:      forwarded.ForwardAuthor,
	})
}

func (a *recordingAssembler) record(c assemblyCall) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, c)
}

func (a *recordingAssembler) snapshot() []assemblyCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]assemblyCall, len(a.calls))
	copy(out, a.calls)
	return out
}

func newTestResolver(t *testing.T) (*Resolver, *manualDebouncer, *recordingAssembler, *fakeClock) {
	t.Helper()
	deb := &manualDebouncer{}
	asm := &recordingAssembler{}
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	r := NewResolver(context.Background(), DefaultConfig(), NewBuffer(), deb, asm)
	r.now = clock.Now
	return r, deb, asm, clock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestResolver_SoloPlainMessage(t *testing.T) {
	r, deb, asm, _ := newTestResolver(t)

	r.OnMessage(context.Background(), Message{UserID: "u1", Text: "remind me to call mom"})

	if calls := asm.snapshot(); len(calls) != 0 {
		t.Fatalf("assembly before solo wait elapsed: %v", calls)
	}

	deb.fire()

	calls := asm.snapshot()
	if len(calls) != 1 {
		t.Fatalf("got %d assembly calls, want 1", len(calls))
	}
	if calls[0].kind != "solo" || calls[0].explanation != "remind me to call mom" {
		t.Errorf("unexpected call %+v", calls[0])
	}
}

func TestResolver_SoloForwardedMessage(t *testing.T) {
	r, deb, asm, _ := newTestResolver(t)

	r.OnMessage(context.Background(), Message{
		UserID: "u1", Text: "meeting moved to 5pm", Forwarded: true, ForwardAuthor: "Alice",
	})
	deb.fire()

	calls := asm.snapshot()
	if len(calls) != 1 || calls[0].kind != "forwarded" {
		t.Fatalf("got %v, want one forwarded call", calls)
	}
	if calls[0].author != "Alice" {
		t.Errorf("author = %q, want Alice", calls[0].author)
	}
}

func TestResolver_PairExplanationThenForwarded(t *testing.T) {
	r, deb, asm, clock := newTestResolver(t)

	r.OnMessage(context.Background(), Message{UserID: "u1", Text: "call back the client"})
	clock.advance(10 * time.Second)
	r.OnMessage(context.Background(), Message{
		UserID: "u1", Text: "please call me back", Forwarded: true, ForwardAuthor: "Client",
	})

	calls := asm.snapshot()
	if len(calls) != 1 || calls[0].kind != "pair" {
		t.Fatalf("got %v, want one pair call", calls)
	}
	if calls[0].explanation != "call back the client" || calls[0].forwarded != "please call me back" {
		t.Errorf("pair sides wrong: %+v", calls[0])
	}

	// The explanation's stale solo timeout must be a no-op.
	deb.fire()
	if calls := asm.snapshot(); len(calls) != 1 {
		t.Errorf("stale solo timeout produced extra calls: %v", calls)
	}
}

func TestResolver_PairForwardedThenExplanation(t *testing.T) {
	r, deb, asm, clock := newTestResolver(t)

	r.OnMessage(context.Background(), Message{
		UserID: "u1", Text: "dinner friday?", Forwarded: true, ForwardAuthor: "Bob",
	})
	clock.advance(3 * time.Second)
	r.OnMessage(context.Background(), Message{UserID: "u1", Text: "remind me to answer this tomorrow"})

	calls := asm.snapshot()
	if len(calls) != 1 || calls[0].kind != "pair" {
		t.Fatalf("got %v, want one pair call", calls)
	}
	if calls[0].explanation != "remind me to answer this tomorrow" {
		t.Errorf("explanation = %q, want the plain message", calls[0].explanation)
	}
	if calls[0].forwarded != "dinner friday?" || calls[0].author != "Bob" {
		t.Errorf("forwarded side wrong: %+v", calls[0])
	}

	deb.fire()
	if calls := asm.snapshot(); len(calls) != 1 {
		t.Errorf("stale solo timeout produced extra calls: %v", calls)
	}
}

func TestResolver_OutsidePairingWindowNoMerge(t *testing.T) {
	r, deb, asm, clock := newTestResolver(t)

	r.OnMessage(context.Background(), Message{UserID: "u1", Text: "first"})
	deb.fire() // first goes out solo
	clock.advance(45 * time.Second)
	r.OnMessage(context.Background(), Message{UserID: "u1", Text: "fwd", Forwarded: true})
	deb.fire()

	calls := asm.snapshot()
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2 independent", len(calls))
	}
	if calls[0].kind != "solo" || calls[1].kind != "forwarded" {
		t.Errorf("kinds = %s, %s; want solo, forwarded", calls[0].kind, calls[1].kind)
	}
}

func TestResolver_SameProvenanceReplaces(t *testing.T) {
	r, deb, asm, clock := newTestResolver(t)

	r.OnMessage(context.Background(), Message{UserID: "u1", Text: "X", Forwarded: true})
	clock.advance(5 * time.Second)
	r.OnMessage(context.Background(), Message{UserID: "u1", Text: "Y", Forwarded: true})

	deb.fire() // both pending solo checks; X's identity is stale

	calls := asm.snapshot()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1 (X superseded)", len(calls))
	}
	if calls[0].kind != "forwarded" || calls[0].forwarded != "Y" {
		t.Errorf("call = %+v, want forwarded Y", calls[0])
	}
}

func TestResolver_DifferentUsersIndependent(t *testing.T) {
	r, deb, asm, _ := newTestResolver(t)

	r.OnMessage(context.Background(), Message{UserID: "u1", Text: "plain from u1"})
	r.OnMessage(context.Background(), Message{UserID: "u2", Text: "fwd from u2", Forwarded: true})

	if calls := asm.snapshot(); len(calls) != 0 {
		t.Fatalf("cross-user pairing happened: %v", calls)
	}
	deb.fire()

	calls := asm.snapshot()
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
}

func TestResolver_StaleEntryPurgedBySweep(t *testing.T) {
	r, deb, asm, clock := newTestResolver(t)

	r.OnMessage(context.Background(), Message{UserID: "u1", Text: "ancient"})
	// Simulate a debounce callback that never got to run before the
	// entry aged past twice the pairing window.
	clock.advance(2 * time.Minute)
	r.OnMessage(context.Background(), Message{UserID: "u2", Text: "trigger sweep"})

	deb.fire()

	for _, c := range asm.snapshot() {
		if c.explanation == "ancient" {
			t.Fatal("swept entry still reached the assembler")
		}
	}
}

func TestResolver_ConsumeRaceExactlyOneWinner(t *testing.T) {
	// Scenario: the solo timeout and a pairing arrival race for the same
	// buffered entry. Exactly one of the two paths may process it.
	for i := 0; i < 50; i++ {
		r, deb, asm, clock := newTestResolver(t)

		r.OnMessage(context.Background(), Message{UserID: "u1", Text: "explanation"})
		clock.advance(2 * time.Second)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			deb.fire()
		}()
		go func() {
			defer wg.Done()
			r.OnMessage(context.Background(), Message{UserID: "u1", Text: "fwd", Forwarded: true})
		}()
		wg.Wait()

		// Drain whatever the second arrival scheduled if it lost or was
		// re-buffered as fresh.
		deb.fire()

		soloExpl, pair := 0, 0
		for _, c := range asm.snapshot() {
			switch {
			case c.kind == "pair":
				pair++
			case c.kind == "solo" && c.explanation == "explanation":
				soloExpl++
			}
		}
		if soloExpl+pair != 1 {
			t.Fatalf("iteration %d: explanation processed %d times (solo=%d pair=%d)",
				i, soloExpl+pair, soloExpl, pair)
		}
	}
}

func TestResolver_LockTableStaysBounded(t *testing.T) {
	r, deb, asm, _ := newTestResolver(t)

	for i := 0; i < 200; i++ {
		r.OnMessage(context.Background(), Message{
			UserID: fmt.Sprintf("u%d", i),
			Text:   "remind me to stretch",
		})
	}
	deb.fire()

	if got := len(asm.snapshot()); got != 200 {
		t.Fatalf("assembled %d reminders, want 200", got)
	}
	if n := r.locks.size(); n != 0 {
		t.Errorf("lock table holds %d entries after all correlations resolved, want 0", n)
	}
}
