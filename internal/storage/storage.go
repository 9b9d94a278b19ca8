package storage

import (
	"context"
	"time"
)

// Entry is one recorded turn of a test conversation. Tag flags are stored
// next to the raw reply so result screens never have to re-parse it.
type Entry struct {
	Timestamp         time.Time `json:"timestamp"`
	Vendor            string    `json:"vendor"`
	ConversationID    string    `json:"conversation_id"`
	TurnID            string    `json:"turn_id"`
	Persona           string    `json:"persona,omitempty"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	CleanedResponse   string    `json:"cleaned_response"`
	Bought            bool      `json:"bought"`
	NotBought         bool      `json:"not_bought"`
	Price             string    `json:"price,omitempty"`
}

// Recorder abstracts persistence of transcript entries.
// LoadEntries returns the entries with from <= Timestamp < to in
// chronological order.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendEntry(ctx context.Context, entry Entry) error
	LoadEntries(ctx context.Context, from, to time.Time) ([]Entry, error)
}

// DayRange returns the UTC bounds of the calendar day containing t.
func DayRange(t time.Time) (from, to time.Time) {
	t = t.UTC()
	from = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}

func inRange(ts, from, to time.Time) bool {
	return !ts.Before(from) && ts.Before(to)
}
