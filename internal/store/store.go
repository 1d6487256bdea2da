// Package store persists reminders as rows in a tabular sqlite store.
// Columns mirror the original reminder sheet: due time, task text,
// timezone, sent flag, status, forwarded comment, forward author, and
// the owning user. The integer rowid is the row handle carried through
// callback buttons.
package store

import (
	"context"
	"fmt"
	"time"
)

// TimeLayout is the wall-clock format for the due_at column. Times are
// local to the row's timezone, not UTC, matching the original store.
const TimeLayout = "2006-01-02 15:04:05"

// Reminder statuses. An empty status means the reminder is open.
const (
	StatusDone     = "done"
	StatusNotDone  = "not_done"
	StatusCanceled = "canceled"
)

// Reminder is one stored reminder row.
type Reminder struct {
	Row           int64  // sqlite rowid, the transport-visible handle
	ID            string // uuid
	DueAt         string // TimeLayout in the row's timezone; empty = undated
	Task          string
	Timezone      string
	Sent          bool
	Status        string
	Comment       string // original forwarded message text, if any
	ForwardAuthor string
	UserID        string
	CreatedAt     time.Time
}

// DueTime resolves DueAt against the row's timezone. Rows with an
// unknown timezone fall back to fallback (never fails the row).
func (r *Reminder) DueTime(fallback *time.Location) (time.Time, error) {
	if r.DueAt == "" {
		return time.Time{}, fmt.Errorf("reminder row %d has no due time", r.Row)
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		loc = fallback
	}
	t, err := time.ParseInLocation(TimeLayout, r.DueAt, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse due time %q for row %d: %w", r.DueAt, r.Row, err)
	}
	return t, nil
}

// NewReminder is the payload for appending a row.
type NewReminder struct {
	Task          string
	DueAt         string // TimeLayout or empty for undated reminders
	Timezone      string
	Comment       string
	ForwardAuthor string
	UserID        string
}

// Store is the row-oriented reminder store.
type Store interface {
	// Append adds a reminder row and returns its row handle.
	Append(ctx context.Context, r NewReminder) (int64, error)
	// MarkSent flags a delivered reminder so it is not delivered again.
	MarkSent(ctx context.Context, row int64) error
	// UpdateStatus sets the status cell for a row.
	UpdateStatus(ctx context.Context, row int64, status string) error
	// UpdateDueAt sets the due time cell, converting an undated reminder
	// into a scheduled one.
	UpdateDueAt(ctx context.Context, row int64, dueAt string) error
	// ListDue returns unsent dated reminders whose due time is at or
	// before the given instant.
	ListDue(ctx context.Context, before time.Time) ([]Reminder, error)
	// ListUndated returns reminders without a due time, excluding the
	// given statuses.
	ListUndated(ctx context.Context, excluding ...string) ([]Reminder, error)
	// GetByRow fetches a single row by handle.
	GetByRow(ctx context.Context, row int64) (*Reminder, error)
	Close() error
}
