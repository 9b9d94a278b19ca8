package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"sim-chatter/internal/storage"
)

const (
	OutcomeBought    = "bought"
	OutcomeNotBought = "not_bought"
	OutcomePending   = "pending"
)

// DailyStats summarises test conversations for one day.
type DailyStats struct {
	Date          string                  `json:"date"`
	TotalTurns    int                     `json:"total_turns"`
	Conversations int                     `json:"conversations"`
	Bought        int                     `json:"bought"`
	NotBought     int                     `json:"not_bought"`
	Pending       int                     `json:"pending"`
	PurchaseRate  float64                 `json:"purchase_rate"`
	ByPersona     map[string]PersonaStats `json:"by_persona"`
	ByVendor      map[string]int          `json:"by_vendor"`
	Results       []ConversationResult    `json:"results"`
}

type PersonaStats struct {
	Conversations int `json:"conversations"`
	Bought        int `json:"bought"`
	NotBought     int `json:"not_bought"`
}

// ConversationResult is one row of the review dashboard.
type ConversationResult struct {
	ConversationID string    `json:"conversation_id"`
	Persona        string    `json:"persona"`
	Vendor         string    `json:"vendor"`
	Turns          int       `json:"turns"`
	Outcome        string    `json:"outcome"`
	Price          string    `json:"price,omitempty"`
	LastReply      string    `json:"last_reply"`
	LastActivity   time.Time `json:"last_activity"`
}

// AnalyzeDay aggregates entries whose timestamp falls on targetDate. The
// outcome of a conversation is the last purchase tag it carried.
func AnalyzeDay(entries []storage.Entry, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:      startOfDay.Format("2006-01-02"),
		ByPersona: make(map[string]PersonaStats),
		ByVendor:  make(map[string]int),
	}

	byConv := make(map[string]*ConversationResult)
	var order []string

	for _, e := range entries {
		if e.Timestamp.Before(startOfDay) || !e.Timestamp.Before(endOfDay) {
			continue
		}
		stats.TotalTurns++

		r, ok := byConv[e.ConversationID]
		if !ok {
			r = &ConversationResult{ConversationID: e.ConversationID, Vendor: e.Vendor, Outcome: OutcomePending}
			byConv[e.ConversationID] = r
			order = append(order, e.ConversationID)
		}
		r.Turns++
		if e.Persona != "" {
			r.Persona = e.Persona
		}
		switch {
		case e.NotBought:
			r.Outcome = OutcomeNotBought
		case e.Bought:
			r.Outcome = OutcomeBought
		}
		if e.Price != "" {
			r.Price = e.Price
		}
		r.LastReply = e.CleanedResponse
		r.LastActivity = e.Timestamp
	}

	for _, id := range order {
		r := byConv[id]
		stats.Conversations++
		stats.ByVendor[r.Vendor]++
		ps := stats.ByPersona[r.Persona]
		ps.Conversations++
		switch r.Outcome {
		case OutcomeBought:
			stats.Bought++
			ps.Bought++
		case OutcomeNotBought:
			stats.NotBought++
			ps.NotBought++
		default:
			stats.Pending++
		}
		stats.ByPersona[r.Persona] = ps
		stats.Results = append(stats.Results, *r)
	}
	if decided := stats.Bought + stats.NotBought; decided > 0 {
		stats.PurchaseRate = float64(stats.Bought) / float64(decided)
	}
	return stats
}

// GenerateReportSummary renders the stats as a short plain-text report.
func (ds *DailyStats) GenerateReportSummary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Test results for %s\n\n", ds.Date)
	fmt.Fprintf(&sb, "Conversations: %d (turns: %d)\n", ds.Conversations, ds.TotalTurns)
	fmt.Fprintf(&sb, "Bought: %d, not bought: %d, undecided: %d\n", ds.Bought, ds.NotBought, ds.Pending)
	fmt.Fprintf(&sb, "Purchase rate: %.0f%%\n", ds.PurchaseRate*100)

	if len(ds.ByPersona) > 0 {
		sb.WriteString("\nBy persona:\n")
		names := make([]string, 0, len(ds.ByPersona))
		for name := range ds.ByPersona {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ps := ds.ByPersona[name]
			label := name
			if label == "" {
				label = "(custom prompt)"
			}
			fmt.Fprintf(&sb, "- %s: %d conversations, %d bought, %d not bought\n", label, ps.Conversations, ps.Bought, ps.NotBought)
		}
	}
	return sb.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
