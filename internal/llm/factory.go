package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sim-chatter/internal/config"
)

var ErrUnknownVendor = errors.New("unknown llm vendor")

// Factory creates vendor clients from configuration.
type Factory struct {
	cfg *config.Config
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{cfg: cfg}
}

func (f *Factory) CreateVendor(ctx context.Context, name string) (Vendor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case VendorGrok:
		if f.cfg.GrokAPIKey == "" {
			return nil, fmt.Errorf("grok api key is not configured")
		}
		return NewGrok(f.cfg.GrokAPIKey, f.cfg.GrokBaseURL, f.cfg.GrokModel, f.cfg.LLMCallTimeout), nil
	case VendorGemini:
		return NewGemini(ctx, f.cfg.GeminiAPIKey, f.cfg.GeminiModel)
	case VendorYandex:
		return NewYandex(ctx, f.cfg.YandexOAuthKey, f.cfg.YandexFolderID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownVendor, name)
	}
}

// Configured lists vendors that have credentials set, in a stable order.
func (f *Factory) Configured() []string {
	var out []string
	if f.cfg.GrokAPIKey != "" {
		out = append(out, VendorGrok)
	}
	if f.cfg.GeminiAPIKey != "" {
		out = append(out, VendorGemini)
	}
	if f.cfg.YandexOAuthKey != "" && f.cfg.YandexFolderID != "" {
		out = append(out, VendorYandex)
	}
	return out
}
