// Package conversation decides, for every incoming chat message, whether to
// start, recover or continue a vendor conversation.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"sim-chatter/internal/llm"
	"sim-chatter/internal/persona"
	"sim-chatter/internal/retry"
	"sim-chatter/internal/session"
	"sim-chatter/internal/storage"
	"sim-chatter/internal/tags"
)

var ErrInvalidInput = errors.New("invalid input")

// Continuation identifies the conversation a caller wants to resume.
type Continuation struct {
	ConversationID   string
	ParentResponseID string
}

type Request struct {
	Messages     []llm.Message
	Continuation *Continuation
	SystemPrompt string
	Persona      string
	ChatIndex    *int
}

// TurnResult is what a caller gets back for one message. Exactly one of
// Response and Error is set.
type TurnResult struct {
	ConversationID string
	TurnID         string
	Response       string
	Persona        string
	Tags           tags.Cleaned
	Error          string

	// Err keeps the underlying error for classification.
	Err error
}

func (r TurnResult) Failed() bool { return r.Error != "" }

type Orchestrator struct {
	vendor   llm.Vendor
	store    session.Store
	personas *persona.Catalog
	exec     *retry.Executor
	recorder storage.Recorder
	logger   *slog.Logger
	locks    *keyedMutex
	now      func() time.Time
	newID    func() string

	callTimeout time.Duration
}

type Option func(*Orchestrator)

func WithRecorder(r storage.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) { o.newID = f }
}

// WithCallTimeout bounds every single vendor call. Zero means no bound
// beyond the caller's context.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.callTimeout = d }
}

func New(vendor llm.Vendor, store session.Store, personas *persona.Catalog, exec *retry.Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		vendor:   vendor,
		store:    store,
		personas: personas,
		exec:     exec,
		logger:   slog.Default(),
		locks:    newKeyedMutex(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Vendor() string { return o.vendor.Name() }

// prompt is the persona/system prompt pair a conversation runs with.
type prompt struct {
	persona string
	system  string
}

// GenerateReply sends the last user message of req to the vendor and returns
// the reply. It never panics or returns an error value; failures are carried
// in TurnResult.Error.
func (o *Orchestrator) GenerateReply(ctx context.Context, req Request) TurnResult {
	userMsg, err := validate(req)
	if err != nil {
		return failed("", err)
	}

	if req.Continuation == nil || strings.TrimSpace(req.Continuation.ConversationID) == "" {
		id := o.newID()
		res := o.start(ctx, id, o.newPrompt(req), userMsg, nil)
		if res.Failed() {
			res.ConversationID = ""
		}
		return res
	}

	id := strings.TrimSpace(req.Continuation.ConversationID)
	unlock := o.locks.Lock(id)
	defer unlock()

	log := o.logger.With("conversation_id", id, "vendor", o.vendor.Name())

	sess, ok := o.store.Get(id)
	if !ok {
		p := o.recoveryPrompt(id, req)
		log.Info("session not in registry, recreating", "persona", p.persona)
		return o.start(ctx, id, p, userMsg, nil)
	}

	if parent := req.Continuation.ParentResponseID; parent != "" && parent != sess.LastTurnID {
		log.Debug("caller sent stale parent response id", "parent_response_id", parent, "last_turn_id", sess.LastTurnID)
	}
	return o.continueSession(ctx, sess, userMsg)
}

func validate(req Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("%w: messages are required", ErrInvalidInput)
	}
	msg, ok := llm.LastUserMessage(req.Messages)
	if !ok {
		return "", fmt.Errorf("%w: no user message found", ErrInvalidInput)
	}
	if strings.TrimSpace(msg) == "" {
		return "", fmt.Errorf("%w: user message is empty", ErrInvalidInput)
	}
	return msg, nil
}

func (o *Orchestrator) identifyPersona(req Request) (persona.Persona, bool) {
	if req.Persona != "" {
		if p, ok := o.personas.ByName(req.Persona); ok {
			return p, true
		}
	}
	if req.ChatIndex != nil {
		if p, ok := o.personas.ByIndex(*req.ChatIndex); ok {
			return p, true
		}
	}
	return persona.Persona{}, false
}

// newPrompt picks the system prompt for a fresh conversation: the explicit
// parameter, then a system message in the input, then the persona.
func (o *Orchestrator) newPrompt(req Request) prompt {
	p, identified := o.identifyPersona(req)
	var out prompt
	if identified {
		out.persona = p.Name
	}
	if s := strings.TrimSpace(req.SystemPrompt); s != "" {
		out.system = req.SystemPrompt
		return out
	}
	if s, ok := llm.SystemMessage(req.Messages); ok {
		out.system = s
		return out
	}
	if !identified {
		p = o.personas.Fallback()
		out.persona = p.Name
	}
	out.system = p.SystemPrompt
	return out
}

// recoveryPrompt re-derives the prompt of a conversation the registry lost:
// bound role, then the persona in the request, then the fallback persona.
func (o *Orchestrator) recoveryPrompt(id string, req Request) prompt {
	if role, ok := o.store.LookupRole(id); ok {
		if p, ok := o.personas.ByName(role); ok {
			return prompt{persona: p.Name, system: p.SystemPrompt}
		}
	}
	if p, ok := o.identifyPersona(req); ok {
		return prompt{persona: p.Name, system: p.SystemPrompt}
	}
	p := o.personas.Fallback()
	return prompt{persona: p.Name, system: p.SystemPrompt}
}

func (o *Orchestrator) start(ctx context.Context, id string, p prompt, userMsg string, prior []llm.Message) TurnResult {
	turn, rerr := retry.Do(ctx, o.exec, o.vendor.Name()+".start", func(ctx context.Context) (llm.Turn, error) {
		ctx, cancel := o.attemptContext(ctx)
		defer cancel()
		return classify(o.vendor.StartConversation(ctx, userMsg, p.system))
	})
	if rerr != nil {
		o.logger.Error("start conversation failed",
			"conversation_id", id,
			"vendor", o.vendor.Name(),
			"attempts", rerr.Attempts,
			"error", rerr.Err,
		)
		return failed(id, rerr)
	}

	now := o.now()
	sess := &session.Session{
		ConversationID: id,
		Vendor:         o.vendor.Name(),
		Handle:         turn.Handle,
		LastTurnID:     turn.ID,
		History:        prior,
		SystemPrompt:   p.system,
		Persona:        p.persona,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	sess.Append(
		llm.Message{Role: llm.RoleUser, Content: userMsg},
		llm.Message{Role: llm.RoleAssistant, Content: turn.Reply.Content},
	)
	o.store.Put(id, sess)
	if p.persona != "" {
		if _, bound := o.store.LookupRole(id); !bound {
			o.store.BindRole(id, p.persona)
		}
	}

	o.logger.Info("conversation started",
		"conversation_id", id,
		"vendor", o.vendor.Name(),
		"persona", p.persona,
		"turn_id", turn.ID,
		"total_tokens", turn.Reply.TotalTokens,
	)
	return o.succeed(ctx, sess, userMsg, turn)
}

func (o *Orchestrator) continueSession(ctx context.Context, sess *session.Session, userMsg string) TurnResult {
	turn, rerr := retry.Do(ctx, o.exec, o.vendor.Name()+".continue", func(ctx context.Context) (llm.Turn, error) {
		ctx, cancel := o.attemptContext(ctx)
		defer cancel()
		return classify(o.vendor.ContinueConversation(ctx, sess.Handle, userMsg))
	})
	if rerr != nil {
		if ctx.Err() != nil {
			return failed(sess.ConversationID, rerr)
		}
		o.logger.Warn("continue failed, restarting conversation",
			"conversation_id", sess.ConversationID,
			"vendor", o.vendor.Name(),
			"attempts", rerr.Attempts,
			"error", rerr.Err,
		)
		return o.start(ctx, sess.ConversationID, prompt{persona: sess.Persona, system: sess.SystemPrompt}, userMsg, sess.History)
	}

	sess.Append(
		llm.Message{Role: llm.RoleUser, Content: userMsg},
		llm.Message{Role: llm.RoleAssistant, Content: turn.Reply.Content},
	)
	sess.LastTurnID = turn.ID
	if turn.Handle != nil {
		sess.Handle = turn.Handle
	}
	sess.UpdatedAt = o.now()
	o.store.Put(sess.ConversationID, sess)

	o.logger.Info("conversation continued",
		"conversation_id", sess.ConversationID,
		"vendor", o.vendor.Name(),
		"turn_id", turn.ID,
		"history_len", len(sess.History),
		"total_tokens", turn.Reply.TotalTokens,
	)
	return o.succeed(ctx, sess, userMsg, turn)
}

func (o *Orchestrator) succeed(ctx context.Context, sess *session.Session, userMsg string, turn llm.Turn) TurnResult {
	cleaned := tags.Clean(turn.Reply.Content)
	if o.recorder != nil {
		entry := storage.Entry{
			Timestamp:         o.now().UTC(),
			Vendor:            o.vendor.Name(),
			ConversationID:    sess.ConversationID,
			TurnID:            turn.ID,
			Persona:           sess.Persona,
			UserMessage:       userMsg,
			AssistantResponse: turn.Reply.Content,
			CleanedResponse:   cleaned.Text,
			Bought:            cleaned.Bought,
			NotBought:         cleaned.NotBought,
			Price:             cleaned.Price,
		}
		if err := o.recorder.AppendEntry(context.WithoutCancel(ctx), entry); err != nil {
			o.logger.Error("failed to record transcript entry", "conversation_id", sess.ConversationID, "error", err)
		}
	}
	return TurnResult{
		ConversationID: sess.ConversationID,
		TurnID:         turn.ID,
		Response:       turn.Reply.Content,
		Persona:        sess.Persona,
		Tags:           cleaned,
	}
}

func (o *Orchestrator) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.callTimeout)
}

// classify marks vendor errors that cannot succeed on retry.
func classify(turn llm.Turn, err error) (llm.Turn, error) {
	if err != nil && errors.Is(err, llm.ErrHandleMismatch) {
		return turn, retry.Permanent(err)
	}
	return turn, err
}

func failed(id string, err error) TurnResult {
	return TurnResult{ConversationID: id, Error: err.Error(), Err: err}
}
