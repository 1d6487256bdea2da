package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/remind/internal/interpret"
	"github.com/nextlevelbuilder/remind/internal/notify"
	"github.com/nextlevelbuilder/remind/internal/store"
)

func TestForwardAuthor(t *testing.T) {
	tests := []struct {
		name string
		msg  *telego.Message
		want string
	}{
		{
			name: "user origin with full name",
			msg: &telego.Message{ForwardOrigin: &telego.MessageOriginUser{
				SenderUser: telego.User{FirstName: "Jane", LastName: "Doe"},
			}},
			want: "Jane Doe",
		},
		{
			name: "user origin first name only",
			msg: &telego.Message{ForwardOrigin: &telego.MessageOriginUser{
				SenderUser: telego.User{FirstName: "Jane"},
			}},
			want: "Jane",
		},
		{
			name: "hidden user",
			msg: &telego.Message{ForwardOrigin: &telego.MessageOriginHiddenUser{
				SenderUserName: "Anonymous Sender",
			}},
			want: "Anonymous Sender",
		},
		{
			name: "chat origin",
			msg: &telego.Message{ForwardOrigin: &telego.MessageOriginChat{
				SenderChat: telego.Chat{Title: "Team Chat"},
			}},
			want: "Team Chat",
		},
		{
			name: "channel origin",
			msg: &telego.Message{ForwardOrigin: &telego.MessageOriginChannel{
				Chat: telego.Chat{Title: "News Channel"},
			}},
			want: "News Channel",
		},
		{
			name: "not forwarded",
			msg:  &telego.Message{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := forwardAuthor(tt.msg); got != tt.want {
				t.Errorf("forwardAuthor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		data       string
		wantAction string
		wantRow    int64
		wantOK     bool
	}{
		{"done_12", "done", 12, true},
		{"notdone_7", "notdone", 7, true},
		{"cancel_1", "cancel", 1, true},
		{"relevant_42", "relevant", 42, true},
		{"settime_3", "settime", 3, true},
		{"done_", "", 0, false},
		{"done_abc", "", 0, false},
		{"noseparator", "", 0, false},
		{"_5", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			action, row, ok := parseCallbackData(tt.data)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (action != tt.wantAction || row != tt.wantRow) {
				t.Errorf("got (%q, %d), want (%q, %d)", action, row, tt.wantAction, tt.wantRow)
			}
		})
	}
}

func TestParseChatID(t *testing.T) {
	id, err := parseChatID("-100123456")
	if err != nil || id != -100123456 {
		t.Errorf("parseChatID = (%d, %v)", id, err)
	}
	if _, err := parseChatID("not-a-number"); err == nil {
		t.Error("expected error for non-numeric chat id")
	}
}

func TestBuildKeyboard(t *testing.T) {
	kb := buildKeyboard([][]notify.Button{
		{{Label: "Done", Data: "done_1"}, {Label: "Not done", Data: "notdone_1"}},
		{{Label: "Set deadline", Data: "settime_1"}},
	})
	if kb == nil {
		t.Fatal("keyboard is nil")
	}
	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(kb.InlineKeyboard))
	}
	if len(kb.InlineKeyboard[0]) != 2 || len(kb.InlineKeyboard[1]) != 1 {
		t.Errorf("row sizes = %d, %d", len(kb.InlineKeyboard[0]), len(kb.InlineKeyboard[1]))
	}
	if kb.InlineKeyboard[0][0].CallbackData != "done_1" {
		t.Errorf("first button data = %q", kb.InlineKeyboard[0][0].CallbackData)
	}

	if buildKeyboard(nil) != nil {
		t.Error("empty keyboard should be nil")
	}
}

type fakeInterp struct {
	candidates map[string]*interpret.Candidate
	reason     string
	err        error
}

func (f *fakeInterp) ExtractChecked(_ context.Context, message string) (*interpret.Candidate, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if c, ok := f.candidates[message]; ok {
		return c, "", nil
	}
	return nil, f.reason, nil
}

func (f *fakeInterp) ExtractForwarded(_ context.Context, text string) (*interpret.Candidate, error) {
	return f.candidates[text], f.err
}

func (f *fakeInterp) Validate(c *interpret.Candidate) (bool, string) {
	return c != nil && c.Task != "", ""
}

// deadlineStore tracks due-time updates and serves one row.
type deadlineStore struct {
	task       string
	updatedRow int64
	updatedDue string
	updateErr  error
}

func (s *deadlineStore) UpdateDueAt(_ context.Context, row int64, dueAt string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updatedRow = row
	s.updatedDue = dueAt
	return nil
}

func (s *deadlineStore) GetByRow(_ context.Context, row int64) (*store.Reminder, error) {
	return &store.Reminder{Row: row, Task: s.task}, nil
}

func (s *deadlineStore) Append(context.Context, store.NewReminder) (int64, error) { return 0, nil }
func (s *deadlineStore) MarkSent(context.Context, int64) error                    { return nil }
func (s *deadlineStore) UpdateStatus(context.Context, int64, string) error        { return nil }
func (s *deadlineStore) ListDue(context.Context, time.Time) ([]store.Reminder, error) {
	return nil, nil
}
func (s *deadlineStore) ListUndated(context.Context, ...string) ([]store.Reminder, error) {
	return nil, nil
}
func (s *deadlineStore) Close() error { return nil }

func TestSetDeadline_Success(t *testing.T) {
	interp := &fakeInterp{candidates: map[string]*interpret.Candidate{
		"Remind me tomorrow at 10": {Task: "Call mom", DueAt: "2030-01-02 10:00:00", Timezone: "UTC"},
	}}
	st := &deadlineStore{task: "Call mom"}
	c := &Channel{interp: interp, st: st}

	reply, rearm := c.setDeadline(context.Background(), 7, "tomorrow at 10")

	if rearm {
		t.Error("success should not re-arm pending input")
	}
	if st.updatedRow != 7 || st.updatedDue != "2030-01-02 10:00:00" {
		t.Errorf("update = row %d due %q", st.updatedRow, st.updatedDue)
	}
	if !strings.Contains(reply, "Call mom") || !strings.Contains(reply, "2030-01-02 10:00:00") {
		t.Errorf("reply should echo the task and time: %q", reply)
	}
}

func TestSetDeadline_NoTimeRearms(t *testing.T) {
	interp := &fakeInterp{reason: "no time found in the message"}
	st := &deadlineStore{}
	c := &Channel{interp: interp, st: st}

	reply, rearm := c.setDeadline(context.Background(), 7, "whenever")

	if !rearm {
		t.Error("missing time should re-arm pending input")
	}
	if st.updatedDue != "" {
		t.Errorf("no update expected, got %q", st.updatedDue)
	}
	if !strings.Contains(reply, "Send another time") {
		t.Errorf("reply = %q", reply)
	}
}

func TestSetDeadline_UpdateFailure(t *testing.T) {
	interp := &fakeInterp{candidates: map[string]*interpret.Candidate{
		"Remind me tomorrow at 10": {Task: "Call mom", DueAt: "2030-01-02 10:00:00", Timezone: "UTC"},
	}}
	st := &deadlineStore{updateErr: errors.New("disk full")}
	c := &Channel{interp: interp, st: st}

	reply, rearm := c.setDeadline(context.Background(), 7, "tomorrow at 10")

	if rearm {
		t.Error("persistence failure should not re-arm pending input")
	}
	if !strings.Contains(reply, "Error saving the deadline") {
		t.Errorf("reply = %q", reply)
	}
}

func TestStatusLineText(t *testing.T) {
	got := statusLineText("Reminder: buy <milk> & eggs", "✅ Done")

	if strings.Contains(got, "<milk>") {
		t.Errorf("original text not escaped: %q", got)
	}
	if !strings.Contains(got, "&lt;milk&gt;") || !strings.Contains(got, "&amp; eggs") {
		t.Errorf("expected escaped original in %q", got)
	}
	if !strings.HasSuffix(got, "<b>✅ Done</b>") {
		t.Errorf("status line should be bold: %q", got)
	}
}
