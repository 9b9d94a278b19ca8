package httpapi

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"sim-chatter/internal/analytics"
	"sim-chatter/internal/conversation"
	"sim-chatter/internal/llm"
	"sim-chatter/internal/storage"
	"sim-chatter/internal/tags"
)

const (
	personasKey    = "personas"
	resultsPrefix  = "results:"
	unavailableMsg = "The client is not available right now. Please try again in a moment."
)

type conversationDetails struct {
	ConversationID   string `json:"conversationId"`
	ParentResponseID string `json:"parentResponseId"`
}

type chatRequest struct {
	Messages            []llm.Message        `json:"messages"`
	ConversationDetails *conversationDetails `json:"conversationDetails,omitempty"`
	SystemPrompt        string               `json:"systemPrompt,omitempty"`
	Persona             string               `json:"persona,omitempty"`
	ChatIndex           *int                 `json:"chatIndex,omitempty"`
}

type chatResponse struct {
	ConversationID   string `json:"conversation_id"`
	ParentResponseID string `json:"parent_response_id"`
	Response         string `json:"response"`
	BoughtTag        bool   `json:"boughtTag"`
	NotBoughtTag     bool   `json:"notBoughtTag"`
	Price            string `json:"price,omitempty"`
	Error            string `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	vendor := r.PathValue("vendor")
	if vendor == "" {
		vendor = s.defaultVendor
	}
	replier, ok := s.repliers[strings.ToLower(vendor)]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown vendor: "+vendor)
		return
	}

	var body chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req := conversation.Request{
		Messages:     body.Messages,
		SystemPrompt: body.SystemPrompt,
		Persona:      body.Persona,
		ChatIndex:    body.ChatIndex,
	}
	if d := body.ConversationDetails; d != nil && d.ConversationID != "" {
		req.Continuation = &conversation.Continuation{
			ConversationID:   d.ConversationID,
			ParentResponseID: d.ParentResponseID,
		}
	}

	res := replier.GenerateReply(r.Context(), req)
	if res.Failed() {
		if errors.Is(res.Err, conversation.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, chatResponse{ConversationID: res.ConversationID, Error: res.Error})
			return
		}
		s.logger.Error("chat turn failed", "vendor", vendor, "conversation_id", res.ConversationID, "error", res.Error)
		writeJSON(w, http.StatusInternalServerError, chatResponse{ConversationID: res.ConversationID, Error: unavailableMsg})
		return
	}

	s.cache.Invalidate(func(key string) bool { return strings.HasPrefix(key, resultsPrefix) })
	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID:   res.ConversationID,
		ParentResponseID: res.TurnID,
		Response:         res.Tags.Text,
		BoughtTag:        res.Tags.Bought,
		NotBoughtTag:     res.Tags.NotBought,
		Price:            res.Tags.Price,
	})
}

type cleanRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	var body cleanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	writeJSON(w, http.StatusOK, tags.Clean(body.Text))
}

type personaView struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Title string `json:"title"`
}

func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	if cached, ok := s.cache.Get(personasKey); ok {
		writeRaw(w, cached)
		return
	}
	list := s.personas.List()
	views := make([]personaView, 0, len(list))
	for i, p := range list {
		views = append(views, personaView{Index: i, Name: p.Name, Title: p.Title})
	}
	s.writeCached(w, personasKey, views)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.recorder == nil {
		writeError(w, http.StatusServiceUnavailable, "transcript storage is not configured")
		return
	}

	day := s.now().UTC()
	if q := r.URL.Query().Get("date"); q != "" {
		parsed, err := time.Parse(time.DateOnly, q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	key := resultsPrefix + day.Format(time.DateOnly)
	if cached, ok := s.cache.Get(key); ok {
		writeRaw(w, cached)
		return
	}
	from, to := storage.DayRange(day)
	entries, err := s.recorder.LoadEntries(r.Context(), from, to)
	if err != nil {
		s.logger.Error("load transcript entries", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load results")
		return
	}
	s.writeCached(w, key, analytics.AnalyzeDay(entries, day))
}

type healthResponse struct {
	Status  string   `json:"status"`
	Vendors []string `json:"vendors"`
	Default string   `json:"default_vendor"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Vendors: s.vendors(), Default: s.defaultVendor})
}

// authorized checks the bearer token. An unset admin token closes the
// endpoint.
func (s *Server) authorized(r *http.Request) bool {
	if s.adminToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) == 1
}

func (s *Server) writeCached(w http.ResponseWriter, key string, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		writeError(w, http.StatusInternalServerError, "encode response")
		return
	}
	s.cache.Set(key, buf.Bytes())
	writeRaw(w, buf.Bytes())
}
