package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sim-chatter/internal/auth"
	"sim-chatter/internal/conversation"
	"sim-chatter/internal/logging"
	"sim-chatter/internal/persona"
	"sim-chatter/internal/storage"
	"sim-chatter/internal/tags"
)

type sentMessage struct {
	chatID int64
	text   string
	markup any
}

type fakeSender struct{ sent []sentMessage }

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m := c.(tgbotapi.MessageConfig)
	f.sent = append(f.sent, sentMessage{chatID: m.ChatID, text: m.Text, markup: m.ReplyMarkup})
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) to(chatID int64) []string {
	var out []string
	for _, m := range f.sent {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

type fakeReplier struct {
	reqs    []conversation.Request
	replies []string
	err     error
	n       int
}

func (f *fakeReplier) GenerateReply(ctx context.Context, req conversation.Request) conversation.TurnResult {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return conversation.TurnResult{Error: f.err.Error(), Err: f.err}
	}
	raw := f.replies[f.n]
	f.n++
	return conversation.TurnResult{
		ConversationID: "conv-1",
		TurnID:         fmt.Sprintf("turn-%d", f.n),
		Response:       raw,
		Persona:        req.Persona,
		Tags:           tags.Clean(raw),
	}
}

type memRecorder struct{ entries []storage.Entry }

func (m *memRecorder) AppendEntry(ctx context.Context, e storage.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memRecorder) LoadEntries(ctx context.Context, from, to time.Time) ([]storage.Entry, error) {
	var out []storage.Entry
	for _, e := range m.entries {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

const (
	adminID     = int64(999)
	candidateID = int64(42)
)

func newTestBot(t *testing.T, r Replier, rec storage.Recorder) (*Bot, *fakeSender) {
	t.Helper()
	svc, err := auth.NewWithRepo(nil, adminID, []int64{candidateID})
	if err != nil {
		t.Fatalf("auth init: %v", err)
	}
	fs := &fakeSender{}
	return newBot(fs, svc, r, persona.Default(), rec, logging.Discard()), fs
}

func textMsg(from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{From: &tgbotapi.User{ID: from, UserName: "cand"}, Chat: &tgbotapi.Chat{ID: from}, Text: text}
}

func commandMsg(from int64, text string) *tgbotapi.Message {
	m := textMsg(from, text)
	cmd := strings.Fields(text)[0]
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	return m
}

func TestStartPicksPersona(t *testing.T) {
	b, fs := newTestBot(t, &fakeReplier{}, nil)
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: commandMsg(candidateID, "/start elena")})

	if st := b.state(candidateID); st.persona != "Elena" || st.continuation != nil {
		t.Fatalf("unexpected state: %+v", st)
	}
	if got := fs.to(candidateID); len(got) != 1 || !strings.Contains(got[0], "Elena") {
		t.Fatalf("unexpected messages: %+v", got)
	}

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: commandMsg(candidateID, "/start 2")})
	if st := b.state(candidateID); st.persona != "Jake" {
		t.Fatalf("index lookup failed: %+v", st)
	}

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: commandMsg(candidateID, "/start Nobody")})
	if got := fs.to(candidateID); !strings.HasPrefix(got[len(got)-1], "Unknown persona") {
		t.Fatalf("unknown persona not reported: %q", got[len(got)-1])
	}
}

func TestConversationFlowAndOutcome(t *testing.T) {
	r := &fakeReplier{replies: []string{"Hmm, go on.", "Fine, deal. [Bought] [Price: $300]"}}
	b, fs := newTestBot(t, r, nil)
	ctx := context.Background()

	b.handleUpdate(ctx, tgbotapi.Update{Message: commandMsg(candidateID, "/start Marcus")})
	b.handleUpdate(ctx, tgbotapi.Update{Message: textMsg(candidateID, "Hello Marcus")})

	if r.reqs[0].Continuation != nil || r.reqs[0].Persona != "Marcus" {
		t.Fatalf("first turn must start a conversation: %+v", r.reqs[0])
	}
	if len(r.reqs[0].Messages) != 1 || r.reqs[0].Messages[0].Content != "Hello Marcus" {
		t.Fatalf("only the user message is sent: %+v", r.reqs[0].Messages)
	}

	b.handleUpdate(ctx, tgbotapi.Update{Message: textMsg(candidateID, "Here is my offer")})
	c := r.reqs[1].Continuation
	if c == nil || c.ConversationID != "conv-1" || c.ParentResponseID != "turn-1" {
		t.Fatalf("continuation not carried: %+v", c)
	}

	got := fs.to(candidateID)
	if got[2] != "Fine, deal." {
		t.Fatalf("tags not stripped: %q", got[2])
	}
	if !strings.Contains(got[3], "bought") {
		t.Fatalf("outcome not announced: %q", got[3])
	}
	if st := b.state(candidateID); st.persona != "" {
		t.Fatalf("state not reset after outcome: %+v", st)
	}

	admin := fs.to(adminID)
	if len(admin) != 1 || !strings.Contains(admin[0], "Marcus: bought at $300") || !strings.Contains(admin[0], "conv-1") {
		t.Fatalf("admin not notified: %+v", admin)
	}
}

func TestVendorFailureKeepsState(t *testing.T) {
	r := &fakeReplier{err: errors.New("exhausted")}
	b, fs := newTestBot(t, r, nil)
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: textMsg(candidateID, "hi")})

	got := fs.to(candidateID)
	if len(got) != 1 || !strings.Contains(got[0], "not available") {
		t.Fatalf("unexpected: %+v", got)
	}
	if r.reqs[0].Persona != "Marcus" {
		t.Fatalf("fallback persona not used: %q", r.reqs[0].Persona)
	}
}

func TestUnauthorizedFlow_RequestAndAllow(t *testing.T) {
	b, fs := newTestBot(t, &fakeReplier{}, nil)
	stranger := int64(123)

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: textMsg(stranger, "hi")})
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: textMsg(stranger, "hi again")})

	if got := fs.to(stranger); len(got) != 2 || !strings.Contains(got[1], "waiting") {
		t.Fatalf("unexpected stranger messages: %+v", got)
	}
	admin := fs.to(adminID)
	if len(admin) != 1 || !strings.Contains(admin[0], "wants to use the bot") {
		t.Fatalf("admin notify not sent: %+v", admin)
	}

	b.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		From: &tgbotapi.User{ID: adminID}, Data: allowPrefix + "123",
	}})
	if !b.authSvc.IsAllowed(stranger) {
		t.Fatalf("callback did not allow user")
	}
	if got := fs.to(stranger); !strings.Contains(got[len(got)-1], "Access granted") {
		t.Fatalf("user not notified: %+v", got)
	}
}

func TestAdminCommands(t *testing.T) {
	day := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &memRecorder{entries: []storage.Entry{
		{Timestamp: day, ConversationID: "a", Persona: "Marcus", Bought: true},
		{Timestamp: day.AddDate(0, 0, -1), ConversationID: "old", Persona: "Elena", Bought: true},
	}}
	b, fs := newTestBot(t, &fakeReplier{}, rec)
	b.now = func() time.Time { return day }
	ctx := context.Background()

	b.handleUpdate(ctx, tgbotapi.Update{Message: commandMsg(candidateID, "/report")})
	if got := fs.to(candidateID); len(got) != 1 || !strings.Contains(got[0], "administrator only") {
		t.Fatalf("non-admin report allowed: %+v", got)
	}

	b.handleUpdate(ctx, tgbotapi.Update{Message: commandMsg(adminID, "/report")})
	b.handleUpdate(ctx, tgbotapi.Update{Message: commandMsg(adminID, "/allow 555")})
	b.handleUpdate(ctx, tgbotapi.Update{Message: commandMsg(adminID, "/allow abc")})

	admin := fs.to(adminID)
	if len(admin) != 3 {
		t.Fatalf("want 3 admin messages, got %+v", admin)
	}
	if !strings.Contains(admin[0], "2026-05-01") || !strings.Contains(admin[0], "Bought: 1") {
		t.Fatalf("report content: %q", admin[0])
	}
	if admin[1] != "User 555 allowed" || !b.authSvc.IsAllowed(555) {
		t.Fatalf("allow failed: %q", admin[1])
	}
	if admin[2] != "Invalid user_id" {
		t.Fatalf("bad id not rejected: %q", admin[2])
	}
}

func TestSendDailyReport(t *testing.T) {
	b, fs := newTestBot(t, &fakeReplier{}, nil)
	if err := b.SendDailyReport(context.Background()); err == nil {
		t.Fatalf("expected error without storage")
	}
	b.recorder = &memRecorder{}
	if err := b.SendDailyReport(context.Background()); err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(fs.to(adminID)) != 1 {
		t.Fatalf("report not sent to admin")
	}
}

// gatedReplier holds the first reply until release is closed.
type gatedReplier struct {
	mu      sync.Mutex
	reqs    []conversation.Request
	entered chan struct{}
	release chan struct{}
}

func (g *gatedReplier) GenerateReply(ctx context.Context, req conversation.Request) conversation.TurnResult {
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	n := len(g.reqs)
	g.mu.Unlock()

	g.entered <- struct{}{}
	if n == 1 {
		<-g.release
	}
	return conversation.TurnResult{
		ConversationID: "conv-1",
		TurnID:         fmt.Sprintf("turn-%d", n),
		Response:       "go on",
		Persona:        req.Persona,
		Tags:           tags.Clean("go on"),
	}
}

func TestQuickMessagesShareOneConversation(t *testing.T) {
	g := &gatedReplier{entered: make(chan struct{}, 2), release: make(chan struct{})}
	b, _ := newTestBot(t, g, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	send := func(text string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.handleUpdate(ctx, tgbotapi.Update{Message: textMsg(candidateID, text)})
		}()
	}

	send("first")
	<-g.entered
	send("second")
	select {
	case <-g.entered:
		t.Fatal("second message reached the replier while the first reply was pending")
	case <-time.After(50 * time.Millisecond):
	}
	close(g.release)
	wg.Wait()

	if len(g.reqs) != 2 {
		t.Fatalf("want 2 requests, got %d", len(g.reqs))
	}
	if g.reqs[0].Continuation != nil {
		t.Fatalf("first message must start a conversation: %+v", g.reqs[0].Continuation)
	}
	c := g.reqs[1].Continuation
	if c == nil || c.ConversationID != "conv-1" || c.ParentResponseID != "turn-1" {
		t.Fatalf("second message must continue the first conversation: %+v", c)
	}
}
