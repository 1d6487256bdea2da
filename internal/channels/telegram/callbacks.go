package telegram

import (
	"context"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/remind/internal/notify"
	"github.com/nextlevelbuilder/remind/internal/store"
)

// handleCallbackQuery processes inline button presses. The query is
// always answered so the client stops its spinner; action outcomes are
// appended to the original message text, which also drops the keyboard.
func (c *Channel) handleCallbackQuery(ctx context.Context, query *telego.CallbackQuery) {
	defer func() {
		if err := c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
			CallbackQueryID: query.ID,
		}); err != nil {
			slog.Warn("answer callback query failed", "error", err)
		}
	}()

	msg, ok := query.Message.(*telego.Message)
	if !ok || msg == nil {
		slog.Warn("callback on inaccessible message", "data", query.Data)
		return
	}

	if query.Data == "confirm_ok" {
		c.clearKeyboard(ctx, msg)
		return
	}

	action, row, ok := parseCallbackData(query.Data)
	if !ok {
		slog.Warn("malformed callback data", "data", query.Data)
		return
	}

	userID := strconv.FormatInt(msg.Chat.ID, 10)
	switch action {
	case "done":
		c.setStatus(ctx, msg, row, store.StatusDone, "✅ Done")
	case "notdone":
		c.setStatus(ctx, msg, row, store.StatusNotDone, "❌ Not done")
	case "cancel":
		c.setStatus(ctx, msg, row, store.StatusCanceled, "🚫 Canceled")
	case "relevant":
		c.appendStatusLine(ctx, msg, "👌 Kept on the list")
	case "settime":
		c.pendingTime.Store(userID, row)
		c.appendStatusLine(ctx, msg, "🕐 Send the new time as a message, e.g. 'tomorrow at 15:00'")
	default:
		slog.Warn("unknown callback action", "action", action)
	}
}

// parseCallbackData splits "action_row" at the last underscore.
func parseCallbackData(data string) (action string, row int64, ok bool) {
	i := strings.LastIndex(data, "_")
	if i <= 0 {
		return "", 0, false
	}
	row, err := strconv.ParseInt(data[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return data[:i], row, true
}

func (c *Channel) setStatus(ctx context.Context, msg *telego.Message, row int64, status, line string) {
	if err := c.st.UpdateStatus(ctx, row, status); err != nil {
		slog.Error("status update failed", "row", row, "status", status, "error", err)
		c.appendStatusLine(ctx, msg, "Error updating the reminder. Please try again.")
		return
	}
	slog.Info("reminder status updated", "row", row, "status", status)
	c.appendStatusLine(ctx, msg, line)
}

// appendStatusLine rewrites the message with the outcome appended.
// Editing without reply markup removes the inline keyboard.
func (c *Channel) appendStatusLine(ctx context.Context, msg *telego.Message, line string) {
	if _, err := c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(msg.Chat.ID),
		MessageID: msg.MessageID,
		Text:      statusLineText(msg.Text, line),
		ParseMode: telego.ModeHTML,
	}); err != nil {
		slog.Warn("failed to append status line", "message_id", msg.MessageID, "error", err)
	}
}

// statusLineText appends a bold outcome line to the original message
// text. The original arrives as plain text from the API and needs
// escaping before it re-enters HTML parse mode.
func statusLineText(original, line string) string {
	return html.EscapeString(original) + "\n\n<b>" + line + "</b>"
}

func (c *Channel) clearKeyboard(ctx context.Context, msg *telego.Message) {
	if _, err := c.bot.EditMessageReplyMarkup(ctx, &telego.EditMessageReplyMarkupParams{
		ChatID:    tu.ID(msg.Chat.ID),
		MessageID: msg.MessageID,
	}); err != nil {
		slog.Warn("failed to clear keyboard", "message_id", msg.MessageID, "error", err)
	}
}

// buildKeyboard converts transport-neutral button rows into a Telegram
// inline keyboard. Nil for no buttons.
func buildKeyboard(buttons [][]notify.Button) *telego.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]telego.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		r := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			r = append(r, tu.InlineKeyboardButton(b.Label).WithCallbackData(b.Data))
		}
		rows = append(rows, r)
	}
	return tu.InlineKeyboard(rows...)
}
