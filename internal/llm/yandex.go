package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Morwran/yagpt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const VendorYandex = "yandex"

// IAM tokens live about 12 hours; they are renewed this long before expiry.
const iamRefreshMargin = 10 * time.Minute

type YandexClient struct {
	ya     yagpt.YaGPTFace
	tokens *iamTokens
}

func NewYandex(ctx context.Context, oauthToken, folderID string) (*YandexClient, error) {
	iam, err := yagpt.NewYaIamWithCtx(ctx, oauthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init yandex iam: %w", err)
	}
	tokens := newIAMTokens(iam)
	if _, err := tokens.get(ctx); err != nil {
		return nil, err
	}

	ya, err := yagpt.NewYagptWithCtx(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to init yagpt: %w", err)
	}

	return &YandexClient{ya: ya, tokens: tokens}, nil
}

type iamSource interface {
	CreateWithCtx(ctx context.Context) (*yagpt.IamTokenResponse, error)
}

// iamTokens caches the IAM token minted from the OAuth token and mints a new
// one when it is close to expiry or was rejected.
type iamTokens struct {
	mu        sync.Mutex
	src       iamSource
	token     string
	expiresAt time.Time
	now       func() time.Time
}

func newIAMTokens(src iamSource) *iamTokens {
	return &iamTokens{src: src, now: time.Now}
}

func (t *iamTokens) get(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" && t.now().Add(iamRefreshMargin).Before(t.expiresAt) {
		return t.token, nil
	}
	resp, err := t.src.CreateWithCtx(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create iam token: %w", err)
	}
	t.token, t.expiresAt = resp.IamToken, resp.ExpiresAt
	return t.token, nil
}

func (t *iamTokens) invalidate(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token == token {
		t.token = ""
	}
}

func (c *YandexClient) Name() string { return VendorYandex }

func (c *YandexClient) StartConversation(ctx context.Context, message, systemPrompt string) (Turn, error) {
	return c.send(ctx, newTranscriptHandle(VendorYandex, systemPrompt), message)
}

func (c *YandexClient) ContinueConversation(ctx context.Context, handle ChatHandle, message string) (Turn, error) {
	h, ok := handle.(*transcriptHandle)
	if !ok || h.vendor != VendorYandex {
		return Turn{}, ErrHandleMismatch
	}
	return c.send(ctx, h, message)
}

func (c *YandexClient) send(ctx context.Context, h *transcriptHandle, message string) (Turn, error) {
	var messages []yagpt.Message
	for _, m := range h.request(message) {
		messages = append(messages, yagpt.Message{Role: m.Role, Content: m.Content})
	}

	token, err := c.tokens.get(ctx)
	if err != nil {
		return Turn{}, err
	}
	resp, err := c.ya.CompletionWithCtx(ctx, token, messages)
	if err != nil {
		if status.Code(err) == codes.Unauthenticated {
			c.tokens.invalidate(token)
		}
		return Turn{}, fmt.Errorf("yagpt completion failed: %w", err)
	}
	if resp == nil || len(resp.Alternatives) == 0 || resp.Alternatives[0].Message.Content == "" {
		return Turn{}, ErrEmptyReply
	}

	content := resp.Alternatives[0].Message.Content
	h.commit(message, content)

	return Turn{
		Handle: h,
		ID:     turnID(""),
		Reply: Reply{
			Content:          content,
			Model:            yagpt.YaModelLite,
			PromptTokens:     int(resp.Usage.InputTextTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}
