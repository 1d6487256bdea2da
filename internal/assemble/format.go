package assemble

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/nextlevelbuilder/remind/internal/interpret"
	"github.com/nextlevelbuilder/remind/internal/store"
)

const displayTimeLayout = "02.01.2006 at 15:04"

// successMessage renders the confirmation shown after a reminder is
// stored. Telegram HTML parse mode; all user content is escaped.
func successMessage(c *interpret.Candidate, transcript, forwardedText, forwardAuthor string) string {
	var b strings.Builder
	b.WriteString("<b>Reminder created!</b>\n")

	if transcript != "" {
		fmt.Fprintf(&b, "<b>Voice:</b> <i>%s</i>\n", html.EscapeString(transcript))
	}

	fmt.Fprintf(&b, "<b>Task:</b> %s", html.EscapeString(c.Task))

	if c.DueAt != "" {
		if t, err := time.Parse(store.TimeLayout, c.DueAt); err == nil {
			fmt.Fprintf(&b, "\n<b>Time:</b> %s", t.Format(displayTimeLayout))
		} else {
			fmt.Fprintf(&b, "\n<b>Time:</b> %s", html.EscapeString(c.DueAt))
		}
		fmt.Fprintf(&b, "\n<b>Timezone:</b> %s", html.EscapeString(c.Timezone))
	} else {
		b.WriteString("\n<i>No time set - will be reviewed weekly</i>")
	}

	if forwardedText != "" {
		preview := forwardedText
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		fmt.Fprintf(&b, "\n\n<b>Original message:</b> %s", html.EscapeString(preview))
		if forwardAuthor != "" {
			fmt.Fprintf(&b, "\n<b>From:</b> %s", html.EscapeString(forwardAuthor))
		}
	}

	return b.String()
}

// failureMessage renders an assembly failure for the user, with input
// examples where they help.
func failureMessage(e *Error) string {
	switch e.Kind {
	case KindInterpretation:
		return fmt.Sprintf("Could not create reminder: %s\n\n"+
			"Examples:\n"+
			"- 'Remind me tomorrow at 15:00 about the meeting'\n"+
			"- 'Call mom in 2 hours'", e.Reason)
	case KindValidation:
		return fmt.Sprintf("Could not create reminder: %s\n\n"+
			"Try a time in the future, e.g. 'tomorrow at 15:00'.", e.Reason)
	case KindPersistence:
		return "Error saving reminder. Please try again."
	default:
		return "Error processing message. Please try again."
	}
}

// forwardedFailureMessage is the variant for a forwarded message with no
// explanation, suggesting the pairing flow.
func forwardedFailureMessage(e *Error) string {
	if e.Kind == KindInterpretation {
		return "Could not create reminder from forwarded message.\n" +
			"Try adding an explanation message before forwarding."
	}
	return failureMessage(e)
}
