package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"sim-chatter/internal/conversation"
	"sim-chatter/internal/llm"
	"sim-chatter/internal/persona"
	"sim-chatter/internal/tags"
)

type replier interface {
	GenerateReply(ctx context.Context, req conversation.Request) conversation.TurnResult
}

type GenerateReplyParams struct {
	Message          string `json:"message" mcp:"the salesperson's message to the simulated client"`
	Vendor           string `json:"vendor,omitempty" mcp:"llm vendor: grok, gemini or yandex (default: server default)"`
	Persona          string `json:"persona,omitempty" mcp:"persona name for a new conversation"`
	ConversationID   string `json:"conversation_id,omitempty" mcp:"conversation to continue; empty starts a new one"`
	ParentResponseID string `json:"parent_response_id,omitempty" mcp:"turn id returned by the previous call"`
}

type CleanTagsParams struct {
	Text string `json:"text" mcp:"raw model reply to strip of control tags"`
}

type ListPersonasParams struct{}

// replyResult mirrors the HTTP chat response.
type replyResult struct {
	ConversationID   string `json:"conversation_id"`
	ParentResponseID string `json:"parent_response_id"`
	Response         string `json:"response"`
	BoughtTag        bool   `json:"boughtTag"`
	NotBoughtTag     bool   `json:"notBoughtTag"`
	Price            string `json:"price,omitempty"`
}

// ChatToolServer exposes the chat simulation as MCP tools.
type ChatToolServer struct {
	repliers      map[string]replier
	defaultVendor string
	personas      *persona.Catalog
	logger        *slog.Logger
}

func textResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errorResult(format string, args ...any) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func jsonResult(v any) (*mcp.CallToolResultFor[any], error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return textResult(string(data)), nil
}

func (s *ChatToolServer) GenerateReply(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[GenerateReplyParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments

	vendor := strings.ToLower(strings.TrimSpace(args.Vendor))
	if vendor == "" {
		vendor = s.defaultVendor
	}
	r, ok := s.repliers[vendor]
	if !ok {
		return errorResult("unknown vendor %q", vendor), nil
	}

	req := conversation.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: args.Message}},
		Persona:  args.Persona,
	}
	if id := strings.TrimSpace(args.ConversationID); id != "" {
		req.Continuation = &conversation.Continuation{ConversationID: id, ParentResponseID: args.ParentResponseID}
	}

	s.logger.Info("mcp generate_reply", "vendor", vendor, "conversation_id", args.ConversationID)
	res := r.GenerateReply(ctx, req)
	if res.Failed() {
		return errorResult("generate reply failed: %s", res.Error), nil
	}
	return jsonResult(replyResult{
		ConversationID:   res.ConversationID,
		ParentResponseID: res.TurnID,
		Response:         res.Tags.Text,
		BoughtTag:        res.Tags.Bought,
		NotBoughtTag:     res.Tags.NotBought,
		Price:            res.Tags.Price,
	})
}

func (s *ChatToolServer) CleanTags(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[CleanTagsParams]) (*mcp.CallToolResultFor[any], error) {
	return jsonResult(tags.Clean(params.Arguments.Text))
}

func (s *ChatToolServer) ListPersonas(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[ListPersonasParams]) (*mcp.CallToolResultFor[any], error) {
	var sb strings.Builder
	for i, p := range s.personas.List() {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i, p.Name, p.Title)
	}
	return textResult(sb.String()), nil
}

func (s *ChatToolServer) register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_reply",
		Description: "Sends a message to a simulated client persona and returns its reply with purchase tags decoded",
	}, s.GenerateReply)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clean_tags",
		Description: "Strips bracketed control tags from a model reply and reports the purchase decision",
	}, s.CleanTags)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_personas",
		Description: "Lists the simulated client personas in index order",
	}, s.ListPersonas)
}
