// Package telegram connects the reminder service to Telegram via the
// Bot API using long polling. Inbound messages feed the correlation
// resolver; outbound notifications implement the notify transport.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/remind/internal/assemble"
	"github.com/nextlevelbuilder/remind/internal/correlate"
	"github.com/nextlevelbuilder/remind/internal/interpret"
	"github.com/nextlevelbuilder/remind/internal/notify"
	"github.com/nextlevelbuilder/remind/internal/store"
)

// Channel is the Telegram front end.
type Channel struct {
	bot   *telego.Bot
	token string

	resolver    *correlate.Resolver
	asm         *assemble.Assembler
	transcriber *interpret.Transcriber
	interp      assemble.Interpreter
	st          store.Store

	// pendingTime maps a user id to the reminder row awaiting a due time
	// after the user pressed "Set deadline".
	pendingTime sync.Map // userID string → row int64

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates the channel. The resolver receives every plain and
// forwarded message; voice messages go straight to the assembler after
// transcription.
func New(token string, resolver *correlate.Resolver, asm *assemble.Assembler,
	transcriber *interpret.Transcriber, interp assemble.Interpreter, st store.Store) (*Channel, error) {

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{
		bot:         bot,
		token:       token,
		resolver:    resolver,
		asm:         asm,
		transcriber: transcriber,
		interp:      interp,
		st:          st,
	}, nil
}

// Start begins long polling for updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout: 30,
		AllowedUpdates: []string{
			"message",
			"callback_query",
		},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				c.dispatch(pollCtx, update)
			}
		}
	}()

	return nil
}

// dispatch hands each update to its own goroutine so one user's slow
// interpretation, transcription, or store write never holds back other
// users' updates. Ordering within a user is preserved by the
// resolver's per-user locks.
func (c *Channel) dispatch(ctx context.Context, update telego.Update) {
	switch {
	case update.Message != nil:
		go c.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		go c.handleCallbackQuery(ctx, update.CallbackQuery)
	default:
		slog.Debug("telegram update skipped", "update_id", update.UpdateID)
	}
}

// Stop cancels the long polling context and waits for the polling
// goroutine to exit so Telegram releases the getUpdates lock.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")

	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
			slog.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// Send delivers a notification with an optional inline keyboard. It is
// the notify transport.
func (c *Channel) Send(ctx context.Context, chatID, text string, buttons [][]notify.Button) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}

	msg := tu.Message(tu.ID(id), text)
	msg.ParseMode = telego.ModeHTML
	if kb := buildKeyboard(buttons); kb != nil {
		msg.ReplyMarkup = kb
	}

	if _, err := c.bot.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// origin is the reply context of one inbound message.
type origin struct {
	bot    *telego.Bot
	chatID int64
}

func (o *origin) Reply(ctx context.Context, text string) (correlate.Editable, error) {
	sent, err := o.bot.SendMessage(ctx, tu.Message(tu.ID(o.chatID), text))
	if err != nil {
		return nil, fmt.Errorf("send reply: %w", err)
	}
	return &editable{bot: o.bot, chatID: o.chatID, messageID: sent.MessageID}, nil
}

// editable is a sent message that later edits replace in place.
type editable struct {
	bot       *telego.Bot
	chatID    int64
	messageID int
}

func (e *editable) Edit(ctx context.Context, text string) error {
	_, err := e.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(e.chatID),
		MessageID: e.messageID,
		Text:      text,
		ParseMode: telego.ModeHTML,
	})
	if err != nil {
		return fmt.Errorf("edit message %d: %w", e.messageID, err)
	}
	return nil
}

// parseChatID converts a string chat ID to int64.
func parseChatID(chatIDStr string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(chatIDStr, "%d", &id)
	return id, err
}

var (
	_ notify.Transport   = (*Channel)(nil)
	_ correlate.Origin   = (*origin)(nil)
	_ correlate.Editable = (*editable)(nil)
)
