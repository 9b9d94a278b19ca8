// Package mcpclient talks to the sim-chatter MCP server.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"sim-chatter/internal/tags"
)

var ErrNotConnected = errors.New("mcp session not connected")

// Reply is the decoded result of the generate_reply tool.
type Reply struct {
	ConversationID   string `json:"conversation_id"`
	ParentResponseID string `json:"parent_response_id"`
	Response         string `json:"response"`
	BoughtTag        bool   `json:"boughtTag"`
	NotBoughtTag     bool   `json:"notBoughtTag"`
	Price            string `json:"price,omitempty"`
}

type ReplyRequest struct {
	Message          string
	Vendor           string
	Persona          string
	ConversationID   string
	ParentResponseID string
}

type Client struct {
	client  *mcp.Client
	session *mcp.ClientSession
}

func New() *Client {
	return &Client{
		client: mcp.NewClient(&mcp.Implementation{
			Name:    "sim-chatter-client",
			Version: "1.0.0",
		}, nil),
	}
}

// Connect opens a session over an existing transport.
func (c *Client) Connect(ctx context.Context, transport mcp.Transport) error {
	session, err := c.client.Connect(ctx, transport)
	if err != nil {
		return fmt.Errorf("connect to mcp server: %w", err)
	}
	c.session = session
	return nil
}

// ConnectCommand starts the server binary at path and talks to it over stdio.
func (c *Client) ConnectCommand(ctx context.Context, path string, env ...string) error {
	cmd := exec.CommandContext(ctx, path)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stderr = os.Stderr
	return c.Connect(ctx, mcp.NewCommandTransport(cmd))
}

func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *Client) GenerateReply(ctx context.Context, req ReplyRequest) (Reply, error) {
	text, err := c.call(ctx, "generate_reply", map[string]any{
		"message":            req.Message,
		"vendor":             req.Vendor,
		"persona":            req.Persona,
		"conversation_id":    req.ConversationID,
		"parent_response_id": req.ParentResponseID,
	})
	if err != nil {
		return Reply{}, err
	}
	var r Reply
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return Reply{}, fmt.Errorf("decode generate_reply result: %w", err)
	}
	return r, nil
}

func (c *Client) CleanTags(ctx context.Context, text string) (tags.Cleaned, error) {
	out, err := c.call(ctx, "clean_tags", map[string]any{"text": text})
	if err != nil {
		return tags.Cleaned{}, err
	}
	var cleaned tags.Cleaned
	if err := json.Unmarshal([]byte(out), &cleaned); err != nil {
		return tags.Cleaned{}, fmt.Errorf("decode clean_tags result: %w", err)
	}
	return cleaned, nil
}

func (c *Client) ListPersonas(ctx context.Context) (string, error) {
	return c.call(ctx, "list_personas", map[string]any{})
}

// call invokes a tool and returns its concatenated text content. A tool-level
// error becomes a Go error carrying the tool's message.
func (c *Client) call(ctx context.Context, name string, args map[string]any) (string, error) {
	if c.session == nil {
		return "", ErrNotConnected
	}
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	var sb strings.Builder
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("%s: %s", name, sb.String())
	}
	return sb.String(), nil
}
