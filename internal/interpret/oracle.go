// Package interpret wraps the language-understanding service that turns
// free-form reminder text into a structured task with an optional due
// time. Extraction is delegated to an OpenAI chat model; validation is
// local and a past due time triggers exactly one recompute retry.
package interpret

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nextlevelbuilder/remind/internal/store"
)

// Candidate is the structured result extracted from a message.
type Candidate struct {
	Task     string `json:"text"`
	DueAt    string `json:"datetime"` // store.TimeLayout, empty = no time
	Timezone string `json:"timezone"`
}

// rawCandidate tolerates a JSON null datetime from the model.
type rawCandidate struct {
	Task     string  `json:"text"`
	DueAt    *string `json:"datetime"`
	Timezone string  `json:"timezone"`
}

// Oracle extracts and validates reminder candidates.
type Oracle struct {
	client   *openai.Client
	model    string
	timezone string
	loc      *time.Location
	language string

	now func() time.Time
}

// NewOracle creates an oracle. timezone is the default zone embedded in
// prompts and results; language is the language reminders are written
// in ("" lets the model mirror the user's language).
func NewOracle(apiKey, model, timezone, language string) (*Oracle, error) {
	if model == "" {
		model = openai.GPT4oMini
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("resolve timezone %q: %w", timezone, err)
	}
	return &Oracle{
		client:   openai.NewClient(apiKey),
		model:    model,
		timezone: timezone,
		loc:      loc,
		language: language,
		now:      time.Now,
	}, nil
}

const promptRules = `RULES FOR DATE/TIME CALCULATION:

1. RELATIVE TIME: "in X hours/minutes/days" = current time + X.
2. DATES WITHOUT YEAR: "on the 10th" = 10th of the CURRENT month if not
   passed, otherwise NEXT month. A named month means its nearest future
   occurrence.
3. DAYS OF WEEK: a weekday name means its NEAREST FUTURE occurrence;
   "next <weekday>" means next week's.
4. COMPLEX EXPRESSIONS: "X hours before <event time>" = event time - X.
5. NO TIME SPECIFIED: if the message carries no time or date at all,
   return datetime: null.
6. DEFAULT TIME: a date without a time of day means 09:00.

CRITICAL: never return a past date/time; always calculate relative to
the current time above.`

func (o *Oracle) systemPrompt() string {
	now := o.now().In(o.loc)
	lang := o.language
	if lang == "" {
		lang = "the same language as the user's message"
	}
	return fmt.Sprintf(`You are a precise date/time extraction assistant for a reminder bot.

CURRENT DATE AND TIME: %s (%s)
CURRENT DAY OF WEEK: %s

Your task: extract reminder information from user messages.

%s

EXTRACT:
1. text: the reminder content (what to remind about), in %s, starting with a capital letter
2. datetime: in format "2006-01-02 15:04:05" style "YYYY-MM-DD HH:MM:SS", or null if no time specified
3. timezone: %q

Return ONLY a JSON object:
{"text": "reminder text", "datetime": "YYYY-MM-DD HH:MM:SS" or null, "timezone": %q}`,
		now.Format(store.TimeLayout), o.timezone, now.Weekday(), promptRules, lang, o.timezone, o.timezone)
}

// Extract asks the model for a reminder candidate. A nil candidate with
// nil error means the model found no task signal.
func (o *Oracle) Extract(ctx context.Context, message string) (*Candidate, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		Temperature: 0.1,
		MaxTokens:   300,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	candidate, err := parseCandidate(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, nil
	}
	if candidate.Timezone == "" {
		candidate.Timezone = o.timezone
	}
	slog.Debug("reminder extracted", "task", candidate.Task, "due_at", candidate.DueAt)
	return candidate, nil
}

// parseCandidate decodes the model reply, stripping markdown fences the
// model sometimes wraps JSON in.
func parseCandidate(reply string) (*Candidate, error) {
	reply = strings.TrimSpace(reply)
	if strings.HasPrefix(reply, "```") {
		parts := strings.SplitN(reply, "```", 3)
		if len(parts) >= 2 {
			reply = parts[1]
		}
		reply = strings.TrimPrefix(reply, "json")
		reply = strings.TrimSpace(reply)
	}
	if reply == "" || reply == "null" {
		return nil, nil
	}

	var raw rawCandidate
	if err := json.Unmarshal([]byte(reply), &raw); err != nil {
		return nil, fmt.Errorf("parse model reply %q: %w", truncate(reply, 120), err)
	}
	if raw.Task == "" {
		return nil, nil
	}
	c := &Candidate{Task: raw.Task, Timezone: raw.Timezone}
	if raw.DueAt != nil {
		c.DueAt = *raw.DueAt
	}
	return c, nil
}

// Validate checks a candidate locally: non-empty task, and a due time
// that is either absent (undated reminders are allowed) or a well-formed
// future time in its timezone.
func (o *Oracle) Validate(c *Candidate) (bool, string) {
	if c == nil {
		return false, "no reminder information"
	}
	if c.Task == "" {
		return false, "missing reminder text"
	}
	if c.DueAt == "" {
		return true, ""
	}

	loc := o.loc
	if c.Timezone != "" {
		if l, err := time.LoadLocation(c.Timezone); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation(store.TimeLayout, c.DueAt, loc)
	if err != nil {
		return false, ReasonBadFormat
	}
	if t.Before(o.now()) {
		return false, ReasonPastTime
	}
	return true, ""
}

// Validation failure reasons surfaced to callers.
const (
	ReasonPastTime  = "reminder time is in the past"
	ReasonBadFormat = "invalid datetime format"
)

const recomputeHint = `

IMPORTANT: previous calculation resulted in a past time.
Recalculate to get the NEAREST FUTURE date/time while preserving the original intent.`

// ExtractChecked extracts and validates in one call. A past due time is
// retried once with an explicit recompute hint, then surfaced.
func (o *Oracle) ExtractChecked(ctx context.Context, message string) (*Candidate, string, error) {
	candidate, err := o.Extract(ctx, message)
	if err != nil {
		return nil, "", err
	}
	if candidate == nil {
		return nil, "could not parse a reminder from the message", nil
	}

	ok, reason := o.Validate(candidate)
	if ok {
		return candidate, "", nil
	}
	if reason != ReasonPastTime {
		return nil, reason, nil
	}

	slog.Debug("extracted time in the past, retrying with hint", "due_at", candidate.DueAt)
	candidate, err = o.Extract(ctx, message+recomputeHint)
	if err != nil {
		return nil, "", err
	}
	if candidate != nil {
		if ok, reason = o.Validate(candidate); ok {
			return candidate, "", nil
		}
	}
	return nil, ReasonPastTime, nil
}

// ExtractForwarded extracts a candidate from forwarded content that has
// no accompanying user explanation: the model turns the content into a
// short actionable task rather than treating it as an instruction.
func (o *Oracle) ExtractForwarded(ctx context.Context, forwardedText string) (*Candidate, error) {
	prompt := fmt.Sprintf(`Convert this forwarded message into a short, actionable reminder task.
Do NOT include words like "remind" - just the action itself.
If there's a date/time mentioned, extract it. If not, datetime should be null.

Forwarded message: %s`, forwardedText)
	return o.Extract(ctx, prompt)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
