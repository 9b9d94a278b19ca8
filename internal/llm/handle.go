package llm

import (
	"sync"

	"github.com/google/uuid"
)

// transcriptHandle carries the client-side transcript for vendors whose API
// is stateless and needs the whole exchange resent on every call.
type transcriptHandle struct {
	vendor string

	mu       sync.Mutex
	system   string
	messages []Message
}

func newTranscriptHandle(vendor, systemPrompt string) *transcriptHandle {
	return &transcriptHandle{vendor: vendor, system: systemPrompt}
}

func (h *transcriptHandle) Vendor() string { return h.vendor }

// request returns the messages to send for a new user turn without mutating
// the handle; commit records the turn once the vendor has answered.
func (h *transcriptHandle) request(user string) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, 0, len(h.messages)+2)
	if h.system != "" {
		out = append(out, Message{Role: RoleSystem, Content: h.system})
	}
	out = append(out, h.messages...)
	out = append(out, Message{Role: RoleUser, Content: user})
	return out
}

func (h *transcriptHandle) commit(user, assistant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages,
		Message{Role: RoleUser, Content: user},
		Message{Role: RoleAssistant, Content: assistant},
	)
	if len(h.messages) > maxHandleMessages {
		h.messages = append([]Message(nil), h.messages[len(h.messages)-keepHandleMessages:]...)
	}
}

// Same bounds the session registry applies to its history.
const (
	maxHandleMessages  = 100
	keepHandleMessages = 50
)

func turnID(vendorID string) string {
	if vendorID != "" {
		return vendorID
	}
	return uuid.NewString()
}
