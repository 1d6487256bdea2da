// Package correlate decides whether temporally-close messages from one
// user (an explanation and a forwarded message) merge into a single
// reminder or get processed independently. A buffered message waits a
// short solo interval for a counterpart; a counterpart arriving within
// the pairing window claims it through an atomic consume handoff so that
// no message is ever processed twice or lost between the two paths.
package correlate

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Origin is the transport-level reply context of an inbound message.
// It lets downstream processing respond to the message later.
type Origin interface {
	// Reply sends a progress message in the message's chat and returns
	// a handle for subsequent edits.
	Reply(ctx context.Context, text string) (Editable, error)
}

// Editable is a sent message that can be edited in place.
type Editable interface {
	Edit(ctx context.Context, text string) error
}

// Assembler consumes resolved correlation output.
type Assembler interface {
	// AssembleSolo processes a plain message that found no counterpart.
	AssembleSolo(ctx context.Context, msg Message)
	// AssembleForwarded processes a forwarded message that found no
	// counterpart.
	AssembleForwarded(ctx context.Context, msg Message)
	// AssemblePair processes a matched explanation + forwarded pair.
	AssemblePair(ctx context.Context, explanation, forwarded Message)
}

// Config holds the correlation timing parameters.
type Config struct {
	// LinkTimeout is the pairing window: an explanation and a forwarded
	// message arriving within it are considered related.
	LinkTimeout time.Duration
	// SoloWait is how long a buffered message waits for a counterpart
	// before being committed to solo processing. Must be shorter than
	// LinkTimeout.
	SoloWait time.Duration
}

// DefaultConfig mirrors the service defaults: 30s window, 5s solo wait.
func DefaultConfig() Config {
	return Config{
		LinkTimeout: 30 * time.Second,
		SoloWait:    5 * time.Second,
	}
}

// Resolver drives the per-user pairing state machine.
type Resolver struct {
	cfg Config
	buf *Buffer
	deb Debouncer
	asm Assembler

	now func() time.Time

	// locks serializes buffer read-modify-write sequences per user.
	// Different users never contend; entries vanish with their holders.
	locks lockTable

	// ctx bounds assembler calls made from deferred timer callbacks,
	// which have no inbound request context of their own.
	ctx context.Context
}

// NewResolver creates a resolver. ctx bounds deferred assembler calls
// and should outlive all in-flight correlations (typically the process
// context).
func NewResolver(ctx context.Context, cfg Config, buf *Buffer, deb Debouncer, asm Assembler) *Resolver {
	if cfg.LinkTimeout <= 0 {
		cfg.LinkTimeout = DefaultConfig().LinkTimeout
	}
	if cfg.SoloWait <= 0 || cfg.SoloWait >= cfg.LinkTimeout {
		cfg.SoloWait = DefaultConfig().SoloWait
	}
	return &Resolver{
		cfg: cfg,
		buf: buf,
		deb: deb,
		asm: asm,
		now: time.Now,
		ctx: ctx,
	}
}

// OnMessage evaluates an inbound message against the buffer: it either
// merges with a waiting opposite-provenance message and triggers pair
// assembly, or is buffered with a deferred solo check. Assembly runs
// after the buffer transition completes, outside the critical section.
func (r *Resolver) OnMessage(ctx context.Context, msg Message) {
	now := r.now()

	// Entries older than twice the pairing window can never pair;
	// purge them before evaluating the new arrival.
	if n := r.buf.Sweep(now, 2*r.cfg.LinkTimeout); n > 0 {
		slog.Debug("correlation buffer swept", "removed", n)
	}

	l := r.locks.acquire(msg.UserID)

	if e, ok := r.buf.Peek(msg.UserID); ok &&
		now.Sub(e.EnqueuedAt) < r.cfg.LinkTimeout &&
		e.Msg.Forwarded != msg.Forwarded &&
		!e.consumed {

		if r.buf.MarkConsumed(msg.UserID, e.ID) {
			r.buf.Remove(msg.UserID, e.ID)
			r.locks.release(msg.UserID, l)

			slog.Debug("message pair matched",
				"user_id", msg.UserID,
				"buffered_forwarded", e.Msg.Forwarded,
			)
			if msg.Forwarded {
				r.asm.AssemblePair(ctx, e.Msg, msg)
			} else {
				r.asm.AssemblePair(ctx, msg, e.Msg)
			}
			return
		}
		// Lost the race against the solo timeout: the buffered entry is
		// being processed elsewhere. Treat this arrival as fresh.
		slog.Debug("pairing lost race to solo timeout", "user_id", msg.UserID)
	}

	id := r.buf.Put(msg, now)
	r.locks.release(msg.UserID, l)

	r.deb.After(r.cfg.SoloWait, func() {
		r.soloCheck(msg.UserID, id)
	})
}

// soloCheck fires after SoloWait. If the scheduled entry is still
// buffered, unconsumed, and the same one that was scheduled, it had no
// partner: process it solo. Otherwise a pair match or a later arrival
// already owns it and this wake-up does nothing.
func (r *Resolver) soloCheck(userID string, id uuid.UUID) {
	l := r.locks.acquire(userID)
	e, ok := r.buf.Take(userID, id)
	r.locks.release(userID, l)

	if !ok {
		return
	}

	slog.Debug("solo wait elapsed, no counterpart",
		"user_id", userID,
		"forwarded", e.Msg.Forwarded,
	)
	if e.Msg.Forwarded {
		r.asm.AssembleForwarded(r.ctx, e.Msg)
	} else {
		r.asm.AssembleSolo(r.ctx, e.Msg)
	}
}
