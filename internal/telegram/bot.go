// Package telegram lets candidates run a sales conversation from Telegram and
// keeps the admin informed about outcomes.
package telegram

import (
	"context"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sim-chatter/internal/auth"
	"sim-chatter/internal/conversation"
	"sim-chatter/internal/persona"
	"sim-chatter/internal/storage"
)

// Replier produces one chat turn. *conversation.Orchestrator implements it.
type Replier interface {
	GenerateReply(ctx context.Context, req conversation.Request) conversation.TurnResult
}

// chatState is the conversation a Telegram chat is currently in.
type chatState struct {
	persona      string
	continuation *conversation.Continuation
}

type Bot struct {
	api      *tgbotapi.BotAPI
	s        sender
	authSvc  *auth.Service
	replier  Replier
	personas *persona.Catalog
	recorder storage.Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	chats     map[int64]*chatState
	chatLocks map[int64]*sync.Mutex
	pending   map[int64]auth.User
	wg        sync.WaitGroup
}

func New(botToken string, authSvc *auth.Service, replier Replier, personas *persona.Catalog, recorder storage.Recorder, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	b := newBot(botAPISender{api: api}, authSvc, replier, personas, recorder, logger)
	b.api = api
	return b, nil
}

func newBot(s sender, authSvc *auth.Service, replier Replier, personas *persona.Catalog, recorder storage.Recorder, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		s:        s,
		authSvc:  authSvc,
		replier:  replier,
		personas: personas,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
		chats:     make(map[int64]*chatState),
		chatLocks: make(map[int64]*sync.Mutex),
		pending:   make(map[int64]auth.User),
	}
}

// Start polls for updates until ctx is cancelled. Every update is handled on
// its own goroutine; Start waits for them before returning.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("telegram bot started", "username", b.api.Self.UserName)
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		if update.Message.IsCommand() {
			b.handleCommand(ctx, update.Message)
			return
		}
		b.handleIncomingMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery)
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	for _, part := range splitMessage(text, maxMessageLen) {
		msg := tgbotapi.NewMessage(chatID, part)
		if _, err := b.s.Send(msg); err != nil {
			b.logger.Error("failed to send telegram message", "chat_id", chatID, "error", err)
			return
		}
	}
}

// lockChat serializes state changes of one chat, so a message sent while the
// previous reply is still pending continues that conversation instead of
// starting a second one.
func (b *Bot) lockChat(chatID int64) (unlock func()) {
	b.mu.Lock()
	l, ok := b.chatLocks[chatID]
	if !ok {
		l = &sync.Mutex{}
		b.chatLocks[chatID] = l
	}
	b.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (b *Bot) state(chatID int64) chatState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.chats[chatID]; ok {
		return *st
	}
	return chatState{}
}

func (b *Bot) setState(chatID int64, st chatState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chats[chatID] = &st
}

func (b *Bot) resetState(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.chats, chatID)
}
