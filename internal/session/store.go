package session

import (
	"sync"
	"time"

	"sim-chatter/internal/llm"
)

const (
	// MaxHistory is the history length that triggers truncation.
	MaxHistory = 100
	// KeepHistory is how many of the most recent entries survive truncation.
	KeepHistory = 50
)

// Session is one conversation between a persona and a candidate.
type Session struct {
	ConversationID string
	Vendor         string
	Handle         llm.ChatHandle
	LastTurnID     string
	History        []llm.Message
	SystemPrompt   string
	Persona        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Append adds messages to the history, keeping the most recent KeepHistory
// entries once the history grows past MaxHistory.
func (s *Session) Append(msgs ...llm.Message) {
	s.History = append(s.History, msgs...)
	if len(s.History) > MaxHistory {
		s.History = append([]llm.Message(nil), s.History[len(s.History)-KeepHistory:]...)
	}
}

func (s *Session) clone() *Session {
	c := *s
	c.History = append([]llm.Message(nil), s.History...)
	return &c
}

// Store holds conversation sessions and persona bindings.
type Store interface {
	Get(conversationID string) (*Session, bool)
	Put(conversationID string, s *Session)
	BindRole(conversationID, role string)
	LookupRole(conversationID string) (string, bool)
}

// MemoryStore keeps sessions for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	roles    map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		roles:    make(map[string]string),
	}
}

// Get returns a copy of the stored session; mutate it and Put it back.
func (m *MemoryStore) Get(conversationID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[conversationID]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

func (m *MemoryStore) Put(conversationID string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[conversationID] = s.clone()
}

func (m *MemoryStore) BindRole(conversationID, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[conversationID] = role
}

func (m *MemoryStore) LookupRole(conversationID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	role, ok := m.roles[conversationID]
	return role, ok
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
