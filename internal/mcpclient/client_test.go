package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"sim-chatter/internal/tags"
)

type cleanArgs struct {
	Text string `json:"text"`
}

type replyArgs struct {
	Message          string `json:"message"`
	Vendor           string `json:"vendor"`
	Persona          string `json:"persona"`
	ConversationID   string `json:"conversation_id"`
	ParentResponseID string `json:"parent_response_id"`
}

func newServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "0.0.1"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: "clean_tags"}, func(ctx context.Context, s *mcp.ServerSession, p *mcp.CallToolParamsFor[cleanArgs]) (*mcp.CallToolResultFor[any], error) {
		data, _ := json.Marshal(tags.Clean(p.Arguments.Text))
		return &mcp.CallToolResultFor[any]{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, nil
	})
	mcp.AddTool(server, &mcp.Tool{Name: "generate_reply"}, func(ctx context.Context, s *mcp.ServerSession, p *mcp.CallToolParamsFor[replyArgs]) (*mcp.CallToolResultFor[any], error) {
		if p.Arguments.Message == "fail" {
			return &mcp.CallToolResultFor[any]{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: "vendor unavailable"}}}, nil
		}
		data, _ := json.Marshal(Reply{ConversationID: "c1", ParentResponseID: "t1", Response: "echo " + p.Arguments.Message})
		return &mcp.CallToolResultFor[any]{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, nil
	})
	return server
}

func connect(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	serverT, clientT := mcp.NewInMemoryTransports()
	if _, err := newServer().Connect(ctx, serverT); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	c := New()
	if err := c.Connect(ctx, clientT); err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_NotConnected(t *testing.T) {
	if _, err := New().ListPersonas(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("want ErrNotConnected, got %v", err)
	}
}

func TestClient_CleanTags(t *testing.T) {
	c := connect(t)
	got, err := c.CleanTags(context.Background(), "OK [Bought]")
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if got.Text != "OK" || !got.Bought {
		t.Fatalf("unexpected: %+v", got)
	}
}

func TestClient_GenerateReply(t *testing.T) {
	c := connect(t)
	r, err := c.GenerateReply(context.Background(), ReplyRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if r.ConversationID != "c1" || r.Response != "echo hi" {
		t.Fatalf("unexpected: %+v", r)
	}

	if _, err := c.GenerateReply(context.Background(), ReplyRequest{Message: "fail"}); err == nil || !strings.Contains(err.Error(), "vendor unavailable") {
		t.Fatalf("tool error not surfaced: %v", err)
	}
}
