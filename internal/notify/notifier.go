// Package notify runs the scheduled delivery loops: the per-minute due
// sweep that pushes ripe reminders to their owners, and the weekly
// review of reminders that never got a due time.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/remind/internal/store"
)

// Button is one inline action attached to an outbound message.
type Button struct {
	Label string
	Data  string
}

// Transport delivers notifications. chatID is the recipient chat;
// buttons are rendered as inline keyboard rows.
type Transport interface {
	Send(ctx context.Context, chatID, text string, buttons [][]Button) error
}

// Config holds the notifier schedule.
type Config struct {
	// DueExpr is the cron expression for the due sweep.
	DueExpr string
	// WeeklyExpr is the cron expression for the undated-reminder review.
	WeeklyExpr string
	// DefaultChatID receives reminders whose row has no user id.
	DefaultChatID string
	// TickInterval is how often the schedule is checked.
	TickInterval time.Duration
}

// DefaultConfig returns the stock schedule: sweep every minute, review
// Sundays at 10:00.
func DefaultConfig() Config {
	return Config{
		DueExpr:      "* * * * *",
		WeeklyExpr:   "0 10 * * 0",
		TickInterval: 30 * time.Second,
	}
}

// Notifier owns the sweep and review loops.
type Notifier struct {
	st      store.Store
	tr      Transport
	cfg     Config
	gron    *gronx.Gronx
	limiter *rate.Limiter

	now func() time.Time
}

// New creates a notifier. Outbound messages are paced at one per
// second to stay under transport flood limits.
func New(st store.Store, tr Transport, cfg Config) *Notifier {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	return &Notifier{
		st:      st,
		tr:      tr,
		cfg:     cfg,
		gron:    gronx.New(),
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		now:     time.Now,
	}
}

// Run ticks until ctx is canceled, firing each cron expression at most
// once per minute.
func (n *Notifier) Run(ctx context.Context) error {
	if !n.gron.IsValid(n.cfg.DueExpr) {
		return fmt.Errorf("invalid due sweep expression %q", n.cfg.DueExpr)
	}
	if !n.gron.IsValid(n.cfg.WeeklyExpr) {
		return fmt.Errorf("invalid weekly review expression %q", n.cfg.WeeklyExpr)
	}

	slog.Info("notifier started", "due_expr", n.cfg.DueExpr, "weekly_expr", n.cfg.WeeklyExpr)

	ticker := time.NewTicker(n.cfg.TickInterval)
	defer ticker.Stop()

	var lastDue, lastWeekly time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := n.now()
			minute := now.Truncate(time.Minute)

			if minute.After(lastDue) {
				if due, err := n.gron.IsDue(n.cfg.DueExpr, now); err == nil && due {
					lastDue = minute
					n.SweepDue(ctx, now)
				}
			}
			if minute.After(lastWeekly) {
				if due, err := n.gron.IsDue(n.cfg.WeeklyExpr, now); err == nil && due {
					lastWeekly = minute
					n.WeeklyReview(ctx)
				}
			}
		}
	}
}

// SweepDue delivers every unsent reminder due at or before now. A row
// is marked sent only after its notification went out; failed rows are
// retried on the next sweep.
func (n *Notifier) SweepDue(ctx context.Context, now time.Time) {
	due, err := n.st.ListDue(ctx, now)
	if err != nil {
		slog.Error("due sweep: list failed", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	slog.Info("due sweep", "count", len(due))

	for i := range due {
		r := &due[i]
		if err := n.limiter.Wait(ctx); err != nil {
			return
		}
		if err := n.tr.Send(ctx, n.chatFor(r), reminderMessage(r), reminderButtons(r.Row)); err != nil {
			slog.Error("due sweep: send failed", "row", r.Row, "error", err)
			continue
		}
		if err := n.st.MarkSent(ctx, r.Row); err != nil {
			// Delivered but unflagged; the next sweep will resend.
			slog.Error("due sweep: mark sent failed", "row", r.Row, "error", err)
		}
	}
}

// WeeklyReview asks about every open reminder that has no due time.
func (n *Notifier) WeeklyReview(ctx context.Context) {
	undated, err := n.st.ListUndated(ctx, store.StatusDone, store.StatusCanceled)
	if err != nil {
		slog.Error("weekly review: list failed", "error", err)
		return
	}
	if len(undated) == 0 {
		return
	}
	slog.Info("weekly review", "count", len(undated))

	for i := range undated {
		r := &undated[i]
		if err := n.limiter.Wait(ctx); err != nil {
			return
		}
		if err := n.tr.Send(ctx, n.chatFor(r), reviewMessage(r), reviewButtons(r.Row)); err != nil {
			slog.Error("weekly review: send failed", "row", r.Row, "error", err)
		}
	}
}

func (n *Notifier) chatFor(r *store.Reminder) string {
	if r.UserID != "" {
		return r.UserID
	}
	return n.cfg.DefaultChatID
}

// reminderMessage renders a due notification in Telegram HTML.
func reminderMessage(r *store.Reminder) string {
	text := fmt.Sprintf("<b>Reminder:</b> %s", html.EscapeString(r.Task))
	if r.Comment != "" {
		text += fmt.Sprintf("\n\n<b>Original message:</b>\n<i>%s</i>", html.EscapeString(r.Comment))
		if r.ForwardAuthor != "" {
			text += fmt.Sprintf("\n<b>From:</b> %s", html.EscapeString(r.ForwardAuthor))
		}
	}
	return text
}

func reminderButtons(row int64) [][]Button {
	return [][]Button{{
		{Label: "Done", Data: fmt.Sprintf("done_%d", row)},
		{Label: "Not done", Data: fmt.Sprintf("notdone_%d", row)},
	}}
}

// reviewMessage renders a weekly review prompt for an undated row.
func reviewMessage(r *store.Reminder) string {
	text := fmt.Sprintf("<b>Still on your list:</b> %s", html.EscapeString(r.Task))
	if r.ForwardAuthor != "" {
		text += fmt.Sprintf("\n<b>From:</b> %s", html.EscapeString(r.ForwardAuthor))
	}
	text += "\n\nIs this still relevant?"
	return text
}

func reviewButtons(row int64) [][]Button {
	return [][]Button{
		{
			{Label: "Still relevant", Data: fmt.Sprintf("relevant_%d", row)},
			{Label: "No longer needed", Data: fmt.Sprintf("cancel_%d", row)},
		},
		{
			{Label: "Set deadline", Data: fmt.Sprintf("settime_%d", row)},
		},
	}
}
