package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/remind/internal/correlate"
)

// handleMessage routes one inbound message: commands, pending time
// input, voice, then regular text into the correlation resolver.
func (c *Channel) handleMessage(ctx context.Context, msg *telego.Message) {
	chatID := msg.Chat.ID
	userID := strconv.FormatInt(chatID, 10)

	if msg.Voice != nil {
		c.handleVoice(ctx, msg, userID)
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		slog.Debug("message without text skipped", "chat_id", chatID)
		return
	}

	if strings.HasPrefix(text, "/") {
		c.handleCommand(ctx, chatID, text)
		return
	}

	// A user who pressed "Set deadline" gets their next message parsed
	// as the new due time instead of a fresh reminder.
	if row, ok := c.pendingTime.LoadAndDelete(userID); ok {
		c.handlePendingTimeInput(ctx, chatID, userID, row.(int64), text)
		return
	}

	forwarded := msg.ForwardOrigin != nil
	c.resolver.OnMessage(ctx, correlate.Message{
		UserID:        userID,
		Text:          text,
		Forwarded:     forwarded,
		ForwardAuthor: forwardAuthor(msg),
		Origin:        &origin{bot: c.bot, chatID: chatID},
	})
}

// forwardAuthor extracts a display name for the original sender of a
// forwarded message, across the origin variants Telegram exposes.
func forwardAuthor(msg *telego.Message) string {
	switch o := msg.ForwardOrigin.(type) {
	case *telego.MessageOriginUser:
		name := o.SenderUser.FirstName
		if o.SenderUser.LastName != "" {
			name += " " + o.SenderUser.LastName
		}
		return name
	case *telego.MessageOriginHiddenUser:
		return o.SenderUserName
	case *telego.MessageOriginChat:
		return o.SenderChat.Title
	case *telego.MessageOriginChannel:
		return o.Chat.Title
	default:
		return ""
	}
}

// handlePendingTimeInput parses the user's time message and moves the
// reminder onto the schedule.
func (c *Channel) handlePendingTimeInput(ctx context.Context, chatID int64, userID string, row int64, text string) {
	org := &origin{bot: c.bot, chatID: chatID}
	ed, err := org.Reply(ctx, "Parsing the new time...")
	if err != nil {
		slog.Error("pending time input: reply failed", "chat_id", chatID, "error", err)
		return
	}

	reply, rearm := c.setDeadline(ctx, row, text)
	if rearm {
		// Re-arm so the user can simply send another time.
		c.pendingTime.Store(userID, row)
	}
	c.editOrLog(ctx, ed, reply)
}

// setDeadline extracts a due time from text and applies it to the row.
// The second return reports whether the pending state should be
// restored for another attempt.
func (c *Channel) setDeadline(ctx context.Context, row int64, text string) (string, bool) {
	candidate, reason, err := c.interp.ExtractChecked(ctx, "Remind me "+text)
	if err != nil {
		slog.Error("pending time input: extraction failed", "row", row, "error", err)
		return "Error parsing the time. Press Set deadline to try again.", false
	}
	if candidate == nil || candidate.DueAt == "" {
		if reason == "" {
			reason = "no time found in the message"
		}
		return "Could not set the deadline: " + reason + "\n\nSend another time, e.g. 'tomorrow at 15:00'.", true
	}

	if err := c.st.UpdateDueAt(ctx, row, candidate.DueAt); err != nil {
		slog.Error("pending time input: update failed", "row", row, "error", err)
		return "Error saving the deadline. Please try again.", false
	}

	slog.Info("deadline set", "row", row, "due_at", candidate.DueAt)
	if r, err := c.st.GetByRow(ctx, row); err == nil {
		return fmt.Sprintf("Deadline for <b>%s</b> set: %s (%s)",
			html.EscapeString(r.Task), candidate.DueAt, candidate.Timezone), false
	}
	return fmt.Sprintf("Deadline set: %s (%s)", candidate.DueAt, candidate.Timezone), false
}

func (c *Channel) editOrLog(ctx context.Context, ed correlate.Editable, text string) {
	if err := ed.Edit(ctx, text); err != nil {
		slog.Warn("failed to edit reply", "error", err)
	}
}
