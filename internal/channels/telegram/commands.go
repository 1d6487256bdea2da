package telegram

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const welcomeText = `<b>Hi! I'm your reminder assistant.</b>

Send me a message like "Call mom tomorrow at 15:00" and I'll remind you.

You can also:
- Send a voice message
- Forward a message (add an explanation within a few seconds to pair them)

See /help for details.`

const helpText = `<b>How to use me</b>

<b>Create a reminder</b>
Just write what and when: "Pay rent on the 1st at 10:00", "Call Alex in 2 hours".

<b>Voice messages</b>
Speak the reminder; I'll transcribe it and set it up.

<b>Forwarded messages</b>
Forward any message to save it as a reminder. Send an explanation right before or after ("remind me about this on Friday") and I'll combine the two.

<b>No time?</b>
Reminders without a time are kept on a list I review with you weekly.`

// handleCommand answers the bot commands.
func (c *Channel) handleCommand(ctx context.Context, chatID int64, text string) {
	cmd := strings.Fields(text)[0]
	cmd = strings.TrimSuffix(cmd, "@"+c.bot.Username())

	var reply string
	switch cmd {
	case "/start":
		reply = welcomeText
	case "/help":
		reply = helpText
	default:
		reply = "Unknown command. See /help."
	}

	msg := tu.Message(tu.ID(chatID), reply)
	msg.ParseMode = telego.ModeHTML
	if _, err := c.bot.SendMessage(ctx, msg); err != nil {
		slog.Error("command reply failed", "chat_id", chatID, "command", cmd, "error", err)
	}
}
