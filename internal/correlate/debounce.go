package correlate

import "time"

// Debouncer schedules a callback to run once after a delay without
// blocking the caller. No cancellation: scheduled callbacks re-check
// buffer state at fire time and no-op when their target entry is gone.
type Debouncer interface {
	After(d time.Duration, fn func())
}

// TimerDebouncer runs callbacks on real timers.
type TimerDebouncer struct{}

func (TimerDebouncer) After(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}
