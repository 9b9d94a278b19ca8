package llm

import (
	"context"
	"errors"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrHandleMismatch is returned when a vendor is asked to continue a chat
	// handle created by a different vendor.
	ErrHandleMismatch = errors.New("chat handle does not belong to this vendor")
	ErrEmptyReply     = errors.New("vendor returned empty reply")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Reply struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatHandle is the vendor-side conversation state. Callers treat it as
// opaque and hand it back to the vendor that created it.
type ChatHandle interface {
	Vendor() string
}

// Turn is the outcome of one successful exchange with a vendor.
type Turn struct {
	Handle ChatHandle
	ID     string
	Reply  Reply
}

// Vendor is a conversational LLM API with server- or client-side sessions.
type Vendor interface {
	Name() string
	StartConversation(ctx context.Context, message, systemPrompt string) (Turn, error)
	ContinueConversation(ctx context.Context, handle ChatHandle, message string) (Turn, error)
}

// LastUserMessage returns the content of the last user-role message.
func LastUserMessage(messages []Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(messages[i].Role, RoleUser) {
			return messages[i].Content, true
		}
	}
	return "", false
}

// SystemMessage returns the content of the first non-empty system message.
func SystemMessage(messages []Message) (string, bool) {
	for _, m := range messages {
		if strings.EqualFold(m.Role, RoleSystem) && strings.TrimSpace(m.Content) != "" {
			return m.Content, true
		}
	}
	return "", false
}
