package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mymmrac/telego"
)

// handleVoice transcribes a voice message and hands the transcript to
// the assembler. Voice messages never participate in pairing.
func (c *Channel) handleVoice(ctx context.Context, msg *telego.Message, userID string) {
	org := &origin{bot: c.bot, chatID: msg.Chat.ID}
	ed, err := org.Reply(ctx, "Transcribing voice message...")
	if err != nil {
		slog.Error("voice: reply failed", "chat_id", msg.Chat.ID, "error", err)
		return
	}

	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: msg.Voice.FileID})
	if err != nil {
		slog.Error("voice: get file failed", "file_id", msg.Voice.FileID, "error", err)
		c.editOrLog(ctx, ed, "Error downloading the voice message. Please try again.")
		return
	}

	fileURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.token, file.FilePath)
	transcript, err := c.transcriber.TranscribeURL(ctx, fileURL)
	if err != nil {
		slog.Error("voice: transcription failed", "chat_id", msg.Chat.ID, "error", err)
		c.editOrLog(ctx, ed, "Error transcribing the voice message. Please try again.")
		return
	}
	if transcript == "" {
		c.editOrLog(ctx, ed, "Could not hear anything in the voice message.")
		return
	}

	c.asm.AssembleVoice(ctx, userID, transcript, ed)
}
