// Package assemble turns resolved correlation output into persisted
// reminders: it calls the interpretation oracle, validates the result,
// writes the row, and reports the outcome back through the message's
// reply context. No partial row is ever persisted on failure.
package assemble

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/remind/internal/correlate"
	"github.com/nextlevelbuilder/remind/internal/interpret"
	"github.com/nextlevelbuilder/remind/internal/store"
)

// Interpreter is the narrow oracle contract the assembler depends on.
type Interpreter interface {
	ExtractChecked(ctx context.Context, message string) (*interpret.Candidate, string, error)
	ExtractForwarded(ctx context.Context, forwardedText string) (*interpret.Candidate, error)
	Validate(c *interpret.Candidate) (bool, string)
}

// Assembler builds reminders from resolved messages. It implements
// correlate.Assembler.
type Assembler struct {
	interp Interpreter
	st     store.Store
	tracer trace.Tracer
}

// New creates an assembler.
func New(interp Interpreter, st store.Store) *Assembler {
	return &Assembler{
		interp: interp,
		st:     st,
		tracer: otel.Tracer("remind/assemble"),
	}
}

// AssembleSolo processes a plain message with no counterpart.
func (a *Assembler) AssembleSolo(ctx context.Context, msg correlate.Message) {
	ctx, span := a.span(ctx, "assemble.solo", msg.UserID)
	defer span.End()

	ed := a.reply(ctx, msg.Origin, "Processing...", msg.UserID)
	if ed == nil {
		return
	}

	candidate, aerr := a.extractChecked(ctx, msg.Text)
	if aerr != nil {
		a.fail(ctx, span, ed, msg.UserID, aerr, failureMessage(aerr))
		return
	}

	a.persistAndConfirm(ctx, span, ed, msg.UserID, candidate, "", "", "")
}

// AssembleForwarded processes a forwarded message with no explanation:
// the task is derived from the forwarded content itself, and the content
// is preserved as the reminder's comment.
func (a *Assembler) AssembleForwarded(ctx context.Context, msg correlate.Message) {
	ctx, span := a.span(ctx, "assemble.forwarded", msg.UserID)
	defer span.End()

	ed := a.reply(ctx, msg.Origin, "Processing forwarded message...", msg.UserID)
	if ed == nil {
		return
	}

	candidate, err := a.interp.ExtractForwarded(ctx, msg.Text)
	if err != nil {
		aerr := &Error{Kind: KindInterpretation, Reason: "interpretation service unavailable", Err: err}
		a.fail(ctx, span, ed, msg.UserID, aerr, forwardedFailureMessage(aerr))
		return
	}
	if candidate == nil {
		aerr := &Error{Kind: KindInterpretation, Reason: "no task signal in forwarded content"}
		a.fail(ctx, span, ed, msg.UserID, aerr, forwardedFailureMessage(aerr))
		return
	}

	// A forwarded message without any time reference is fine; an invalid
	// extracted time is not.
	if ok, reason := a.interp.Validate(candidate); !ok && candidate.DueAt != "" {
		aerr := &Error{Kind: KindValidation, Reason: reason}
		a.fail(ctx, span, ed, msg.UserID, aerr, failureMessage(aerr))
		return
	}

	a.persistAndConfirm(ctx, span, ed, msg.UserID, candidate, "", msg.Text, msg.ForwardAuthor)
}

// AssemblePair processes a matched explanation + forwarded pair: the
// explanation drives interpretation, the forwarded content becomes the
// reminder's comment.
func (a *Assembler) AssemblePair(ctx context.Context, explanation, forwarded correlate.Message) {
	ctx, span := a.span(ctx, "assemble.pair", explanation.UserID)
	defer span.End()

	ed := a.reply(ctx, explanation.Origin, "Processing message pair...", explanation.UserID)
	if ed == nil {
		return
	}

	candidate, aerr := a.extractChecked(ctx, explanation.Text)
	if aerr != nil {
		a.fail(ctx, span, ed, explanation.UserID, aerr, failureMessage(aerr))
		return
	}

	a.persistAndConfirm(ctx, span, ed, explanation.UserID, candidate, "",
		forwarded.Text, forwarded.ForwardAuthor)
}

// AssembleVoice processes a transcribed voice message. The channel has
// already shown the transcript on the progress message; the confirmation
// echoes it.
func (a *Assembler) AssembleVoice(ctx context.Context, userID, transcript string, ed correlate.Editable) {
	ctx, span := a.span(ctx, "assemble.voice", userID)
	defer span.End()

	candidate, aerr := a.extractChecked(ctx, transcript)
	if aerr != nil {
		a.fail(ctx, span, ed, userID, aerr, failureMessage(aerr))
		return
	}

	a.persistAndConfirm(ctx, span, ed, userID, candidate, transcript, "", "")
}

// extractChecked wraps the oracle call into the error taxonomy.
func (a *Assembler) extractChecked(ctx context.Context, text string) (*interpret.Candidate, *Error) {
	candidate, reason, err := a.interp.ExtractChecked(ctx, text)
	if err != nil {
		return nil, &Error{Kind: KindInterpretation, Reason: "interpretation service unavailable", Err: err}
	}
	if candidate == nil {
		kind := KindInterpretation
		if reason == interpret.ReasonPastTime || reason == interpret.ReasonBadFormat {
			kind = KindValidation
		}
		return nil, &Error{Kind: kind, Reason: reason}
	}
	return candidate, nil
}

// persistAndConfirm writes the row and edits the progress message into a
// confirmation.
func (a *Assembler) persistAndConfirm(ctx context.Context, span trace.Span, ed correlate.Editable,
	userID string, c *interpret.Candidate, transcript, forwardedText, forwardAuthor string) {

	row, err := a.st.Append(ctx, store.NewReminder{
		Task:          c.Task,
		DueAt:         c.DueAt,
		Timezone:      c.Timezone,
		Comment:       forwardedText,
		ForwardAuthor: forwardAuthor,
		UserID:        userID,
	})
	if err != nil {
		aerr := &Error{Kind: KindPersistence, Reason: "store append failed", Err: err}
		a.fail(ctx, span, ed, userID, aerr, failureMessage(aerr))
		return
	}

	span.SetAttributes(attribute.Int64("reminder.row", row))
	slog.Info("reminder assembled", "row", row, "user_id", userID, "due_at", c.DueAt)

	if err := ed.Edit(ctx, successMessage(c, transcript, forwardedText, forwardAuthor)); err != nil {
		// The reminder is stored; a lost confirmation is not fatal.
		slog.Warn("failed to edit confirmation", "user_id", userID, "error", err)
	}
}

// reply sends the initial progress message. A transport failure here
// aborts the assembly for this message; nothing has been persisted yet.
func (a *Assembler) reply(ctx context.Context, origin correlate.Origin, text, userID string) correlate.Editable {
	ed, err := origin.Reply(ctx, text)
	if err != nil {
		aerr := &Error{Kind: KindTransport, Reason: "reply failed", Err: err}
		slog.Error("assembly aborted", "user_id", userID, "error", aerr)
		return nil
	}
	return ed
}

// fail records the failure and surfaces it to the user.
func (a *Assembler) fail(ctx context.Context, span trace.Span, ed correlate.Editable,
	userID string, aerr *Error, userText string) {

	span.SetStatus(codes.Error, aerr.Error())
	span.SetAttributes(attribute.String("error.kind", string(aerr.Kind)))
	slog.Warn("assembly failed", "user_id", userID, "kind", aerr.Kind, "error", aerr)

	if err := ed.Edit(ctx, userText); err != nil {
		slog.Warn("failed to deliver failure message", "user_id", userID, "error", err)
	}
}

func (a *Assembler) span(ctx context.Context, name, userID string) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("user.id", userID),
	))
}

var _ correlate.Assembler = (*Assembler)(nil)
