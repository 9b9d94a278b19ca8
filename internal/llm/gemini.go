package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const VendorGemini = "gemini"

// geminiChat is the subset of *genai.Chat used here.
type geminiChat interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type geminiHandle struct {
	chat geminiChat
}

func (geminiHandle) Vendor() string { return VendorGemini }

// GeminiClient keeps one SDK chat session per conversation; the SDK carries
// the history between turns.
type GeminiClient struct {
	model   string
	newChat func(ctx context.Context, model string, cfg *genai.GenerateContentConfig) (geminiChat, error)
}

func NewGemini(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		model: model,
		newChat: func(ctx context.Context, model string, cfg *genai.GenerateContentConfig) (geminiChat, error) {
			chat, err := client.Chats.Create(ctx, model, cfg, nil)
			if err != nil {
				return nil, err
			}
			return chat, nil
		},
	}, nil
}

func (c *GeminiClient) Name() string { return VendorGemini }

func (c *GeminiClient) StartConversation(ctx context.Context, message, systemPrompt string) (Turn, error) {
	var cfg *genai.GenerateContentConfig
	if strings.TrimSpace(systemPrompt) != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		}
	}
	chat, err := c.newChat(ctx, c.model, cfg)
	if err != nil {
		return Turn{}, fmt.Errorf("gemini create chat: %w", err)
	}
	return c.send(ctx, geminiHandle{chat: chat}, message)
}

func (c *GeminiClient) ContinueConversation(ctx context.Context, handle ChatHandle, message string) (Turn, error) {
	h, ok := handle.(geminiHandle)
	if !ok || h.chat == nil {
		return Turn{}, ErrHandleMismatch
	}
	return c.send(ctx, h, message)
}

func (c *GeminiClient) send(ctx context.Context, h geminiHandle, message string) (Turn, error) {
	resp, err := h.chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return Turn{}, fmt.Errorf("gemini send message: %w", err)
	}
	content := visibleText(resp)
	if content == "" {
		return Turn{}, ErrEmptyReply
	}

	out := Turn{
		Handle: h,
		ID:     turnID(resp.ResponseID),
		Reply:  Reply{Content: content, Model: c.model},
	}
	if u := resp.UsageMetadata; u != nil {
		out.Reply.PromptTokens = int(u.PromptTokenCount)
		out.Reply.CompletionTokens = int(u.CandidatesTokenCount)
		out.Reply.TotalTokens = int(u.TotalTokenCount)
	}
	return out, nil
}

func visibleText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
