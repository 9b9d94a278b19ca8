package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

const VendorGrok = "grok"

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// GrokClient talks to xAI through its OpenAI-compatible chat completions API.
// The API keeps no server-side session, so the chat handle holds the
// transcript.
type GrokClient struct {
	client chatCompleter
	model  string
}

func NewGrok(apiKey, baseURL, model string, timeout time.Duration) *GrokClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &GrokClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *GrokClient) Name() string { return VendorGrok }

func (c *GrokClient) StartConversation(ctx context.Context, message, systemPrompt string) (Turn, error) {
	h := newTranscriptHandle(VendorGrok, systemPrompt)
	return c.send(ctx, h, message)
}

func (c *GrokClient) ContinueConversation(ctx context.Context, handle ChatHandle, message string) (Turn, error) {
	h, ok := handle.(*transcriptHandle)
	if !ok || h.vendor != VendorGrok {
		return Turn{}, ErrHandleMismatch
	}
	return c.send(ctx, h, message)
}

func (c *GrokClient) send(ctx context.Context, h *transcriptHandle, message string) (Turn, error) {
	msgs := h.request(message)
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: oaMsgs,
	})
	if err != nil {
		return Turn{}, fmt.Errorf("grok chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Turn{}, ErrEmptyReply
	}

	content := resp.Choices[0].Message.Content
	h.commit(message, content)

	return Turn{
		Handle: h,
		ID:     turnID(resp.ID),
		Reply: Reply{
			Content:          content,
			Model:            c.model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
