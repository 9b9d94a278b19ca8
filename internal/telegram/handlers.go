package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sim-chatter/internal/analytics"
	"sim-chatter/internal/auth"
	"sim-chatter/internal/conversation"
	"sim-chatter/internal/llm"
	"sim-chatter/internal/persona"
	"sim-chatter/internal/storage"
)

const (
	allowPrefix = "allow:"
	denyPrefix  = "deny:"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(msg)
		return
	case "personas":
		b.sendMessage(msg.Chat.ID, b.personaList())
		return
	}

	if !b.authSvc.IsAdmin(msg.From.ID) {
		b.sendMessage(msg.Chat.ID, "This command is available to the administrator only.")
		return
	}
	switch msg.Command() {
	case "report":
		if err := b.generateDailyReport(ctx, msg.Chat.ID); err != nil {
			b.logger.Error("report generation failed", "error", err)
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("Report failed: %v", err))
		}
	case "allow", "deny":
		args := strings.Fields(msg.CommandArguments())
		if len(args) != 1 {
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("Usage: /%s <user_id>", msg.Command()))
			return
		}
		uid, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			b.sendMessage(msg.Chat.ID, "Invalid user_id")
			return
		}
		if msg.Command() == "allow" {
			b.approveUser(uid)
		} else {
			b.denyUser(uid)
		}
	case "allowlist":
		var sb strings.Builder
		sb.WriteString("Allowlist:\n")
		for _, u := range b.authSvc.List() {
			fmt.Fprintf(&sb, "- id=%d @%s %s %s\n", u.ID, u.Username, u.FirstName, u.LastName)
		}
		b.sendMessage(msg.Chat.ID, sb.String())
	default:
		b.sendMessage(msg.Chat.ID, "Unknown command")
	}
}

// handleStart begins a fresh conversation. The optional argument picks the
// persona by name or by list position.
func (b *Bot) handleStart(msg *tgbotapi.Message) {
	if !b.authSvc.IsAllowed(msg.From.ID) {
		b.requestAccess(msg)
		return
	}

	p, ok := b.resolvePersona(strings.TrimSpace(msg.CommandArguments()))
	if !ok {
		b.sendMessage(msg.Chat.ID, "Unknown persona.\n\n"+b.personaList())
		return
	}
	unlock := b.lockChat(msg.Chat.ID)
	b.setState(msg.Chat.ID, chatState{persona: p.Name})
	unlock()
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("You are now talking to %s, %s. Start your pitch.", p.Name, strings.ToLower(p.Title)))
}

func (b *Bot) resolvePersona(arg string) (persona.Persona, bool) {
	if arg == "" {
		return b.personas.Fallback(), true
	}
	if i, err := strconv.Atoi(arg); err == nil {
		return b.personas.ByIndex(i)
	}
	return b.personas.ByName(arg)
}

func (b *Bot) personaList() string {
	var sb strings.Builder
	sb.WriteString("Personas:\n")
	for i, p := range b.personas.List() {
		fmt.Fprintf(&sb, "%d. %s, %s\n", i, p.Name, p.Title)
	}
	sb.WriteString("\nUse /start <name> to begin.")
	return sb.String()
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !b.authSvc.IsAllowed(msg.From.ID) {
		b.requestAccess(msg)
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		b.sendMessage(msg.Chat.ID, "Only text messages are supported.")
		return
	}

	unlock := b.lockChat(msg.Chat.ID)
	defer unlock()

	st := b.state(msg.Chat.ID)
	if st.persona == "" {
		st.persona = b.personas.Fallback().Name
	}
	b.logger.Info("candidate message", "user_id", msg.From.ID, "persona", st.persona)

	res := b.replier.GenerateReply(ctx, conversation.Request{
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: msg.Text}},
		Continuation: st.continuation,
		Persona:      st.persona,
	})
	if res.Failed() {
		if errors.Is(res.Err, conversation.ErrInvalidInput) {
			b.sendMessage(msg.Chat.ID, "Please send a non-empty text message.")
			return
		}
		b.sendMessage(msg.Chat.ID, "The client is not available right now. Please try again in a moment.")
		return
	}

	text := res.Tags.Text
	if text == "" {
		text = "..."
	}
	b.sendMessage(msg.Chat.ID, text)

	outcome := res.Tags.Outcome()
	if outcome == "" {
		st.continuation = &conversation.Continuation{ConversationID: res.ConversationID, ParentResponseID: res.TurnID}
		b.setState(msg.Chat.ID, st)
		return
	}

	b.resetState(msg.Chat.ID)
	if outcome == "bought" {
		b.sendMessage(msg.Chat.ID, "The client bought. Well done! Send /start to try another persona.")
	} else {
		b.sendMessage(msg.Chat.ID, "The client decided not to buy. Send /start to try again.")
	}
	b.notifyAdminOutcome(msg.From, res)
}

func (b *Bot) notifyAdminOutcome(from *tgbotapi.User, res conversation.TurnResult) {
	admin := b.authSvc.AdminID()
	if admin == 0 {
		return
	}
	text := fmt.Sprintf("Candidate @%s (id %d) finished a conversation with %s: %s",
		from.UserName, from.ID, res.Persona, strings.ReplaceAll(res.Tags.Outcome(), "_", " "))
	if res.Tags.Price != "" {
		text += " at " + res.Tags.Price
	}
	text += "\nConversation: " + res.ConversationID
	b.sendMessage(admin, text)
}

func (b *Bot) requestAccess(msg *tgbotapi.Message) {
	b.logger.Warn("unauthorized access attempt", "user_id", msg.From.ID, "username", msg.From.UserName)
	b.mu.Lock()
	_, already := b.pending[msg.From.ID]
	if !already {
		b.pending[msg.From.ID] = auth.User{ID: msg.From.ID, Username: msg.From.UserName, FirstName: msg.From.FirstName, LastName: msg.From.LastName}
	}
	b.mu.Unlock()

	if already {
		b.sendMessage(msg.Chat.ID, "Your access request is waiting for the administrator.")
		return
	}
	b.sendMessage(msg.Chat.ID, "Access request sent to the administrator. You will be notified once it is approved.")
	b.notifyAdminRequest(msg.From.ID, msg.From.UserName)
}

func (b *Bot) notifyAdminRequest(userID int64, username string) {
	admin := b.authSvc.AdminID()
	if admin == 0 {
		return
	}
	id := strconv.FormatInt(userID, 10)
	msg := tgbotapi.NewMessage(admin, fmt.Sprintf("User @%s with id %d wants to use the bot", username, userID))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("allow", allowPrefix+id),
			tgbotapi.NewInlineKeyboardButtonData("deny", denyPrefix+id),
		),
	)
	if _, err := b.s.Send(msg); err != nil {
		b.logger.Error("failed to notify admin", "error", err)
	}
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || !b.authSvc.IsAdmin(cb.From.ID) {
		return
	}
	switch {
	case strings.HasPrefix(cb.Data, allowPrefix):
		if id, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, allowPrefix), 10, 64); err == nil {
			b.approveUser(id)
		}
	case strings.HasPrefix(cb.Data, denyPrefix):
		if id, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, denyPrefix), 10, 64); err == nil {
			b.denyUser(id)
		}
	}
}

func (b *Bot) approveUser(userID int64) {
	b.mu.Lock()
	user, ok := b.pending[userID]
	delete(b.pending, userID)
	b.mu.Unlock()
	if !ok {
		user = auth.User{ID: userID}
	}

	admin := b.authSvc.AdminID()
	if err := b.authSvc.Upsert(user); err != nil {
		b.logger.Error("failed to persist allowlist", "user_id", userID, "error", err)
		b.sendMessage(admin, fmt.Sprintf("Failed to allow %d: %v", userID, err))
		return
	}
	b.sendMessage(admin, fmt.Sprintf("User %d allowed", userID))
	b.sendMessage(userID, "Access granted. Send /start to begin a conversation.")
}

func (b *Bot) denyUser(userID int64) {
	b.mu.Lock()
	delete(b.pending, userID)
	b.mu.Unlock()
	b.sendMessage(b.authSvc.AdminID(), fmt.Sprintf("User %d denied", userID))
	b.sendMessage(userID, "Your access request was declined.")
}

// SendDailyReport sends today's results to the admin.
func (b *Bot) SendDailyReport(ctx context.Context) error {
	admin := b.authSvc.AdminID()
	if admin == 0 {
		return errors.New("admin user is not configured")
	}
	return b.generateDailyReport(ctx, admin)
}

func (b *Bot) generateDailyReport(ctx context.Context, chatID int64) error {
	if b.recorder == nil {
		return errors.New("transcript storage is not configured")
	}
	day := b.now().UTC()
	from, to := storage.DayRange(day)
	entries, err := b.recorder.LoadEntries(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	stats := analytics.AnalyzeDay(entries, day)
	b.sendMessage(chatID, stats.GenerateReportSummary())
	return nil
}
