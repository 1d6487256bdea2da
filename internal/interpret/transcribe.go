package interpret

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// downloadTimeout bounds the audio fetch from the transport's file
	// server.
	downloadTimeout = 30 * time.Second

	// maxAudioBytes caps voice downloads (Telegram Bot API file limit).
	maxAudioBytes int64 = 20 * 1024 * 1024
)

// Transcriber converts voice messages to text via the Whisper API.
type Transcriber struct {
	client   *openai.Client
	language string
	httpc    *http.Client
}

// NewTranscriber creates a transcriber. language is an optional ISO 639-1
// hint for Whisper ("" = autodetect).
func NewTranscriber(apiKey, language string) *Transcriber {
	return &Transcriber{
		client:   openai.NewClient(apiKey),
		language: language,
		httpc:    &http.Client{Timeout: downloadTimeout},
	}
}

// TranscribeURL downloads an audio file and transcribes it.
func (t *Transcriber) TranscribeURL(ctx context.Context, fileURL string) (string, error) {
	path, err := t.download(ctx, fileURL)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: path,
		Language: t.language,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}

	text := resp.Text
	slog.Debug("voice transcribed", "length", len(text), "preview", truncate(text, 80))
	return text, nil
}

// download fetches the audio to a temp file, preserving the extension so
// the transcription API can detect the container format.
func (t *Transcriber) download(ctx context.Context, fileURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", fmt.Errorf("build audio request: %w", err)
	}

	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("audio download failed with status %d", resp.StatusCode)
	}

	ext := filepath.Ext(fileURL)
	if ext == "" {
		ext = ".ogg"
	}
	tmp, err := os.CreateTemp("", "remind_voice_*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer tmp.Close()

	written, err := io.Copy(tmp, io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save audio: %w", err)
	}
	if written > maxAudioBytes {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("audio exceeds max size: %d bytes", written)
	}
	return tmp.Name(), nil
}
