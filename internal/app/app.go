// Package app wires configuration into the components shared by the server
// and MCP binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"sim-chatter/internal/config"
	"sim-chatter/internal/conversation"
	"sim-chatter/internal/llm"
	"sim-chatter/internal/persona"
	"sim-chatter/internal/retry"
	"sim-chatter/internal/session"
	"sim-chatter/internal/storage"
)

type App struct {
	Personas      *persona.Catalog
	Recorder      storage.Recorder
	Orchestrators map[string]*conversation.Orchestrator
	DefaultVendor string
}

// Build creates one orchestrator per configured vendor. All of them share the
// persona catalogue, the transcript recorder and the retry policy. Each
// vendor gets its own session store because chat handles are vendor specific.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	personas, err := persona.Load(cfg.PersonasPath)
	if err != nil {
		return nil, err
	}

	rec, err := newRecorder(cfg, logger)
	if err != nil {
		return nil, err
	}

	exec := retry.New(retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		MaxJitter:   retry.DefaultMaxJitter,
	}, retry.WithLogger(logger))

	factory := llm.NewFactory(cfg)
	a := &App{
		Personas:      personas,
		Recorder:      rec,
		Orchestrators: make(map[string]*conversation.Orchestrator),
		DefaultVendor: string(cfg.DefaultVendor),
	}
	for _, name := range factory.Configured() {
		vendor, err := factory.CreateVendor(ctx, name)
		if err != nil {
			logger.Error("failed to create vendor client", "vendor", name, "error", err)
			continue
		}
		store := session.NewMemoryStore()
		opts := []conversation.Option{
			conversation.WithLogger(logger),
			conversation.WithCallTimeout(cfg.LLMCallTimeout),
		}
		if rec != nil {
			opts = append(opts, conversation.WithRecorder(rec))
		}
		a.Orchestrators[name] = conversation.New(vendor, store, personas, exec, opts...)
		logger.Info("vendor ready", "vendor", name)
	}

	if len(a.Orchestrators) == 0 {
		return nil, errors.New("no llm vendor is configured")
	}
	if _, ok := a.Orchestrators[a.DefaultVendor]; !ok {
		return nil, fmt.Errorf("default vendor %q is not configured", a.DefaultVendor)
	}
	return a, nil
}

// Default is the orchestrator of the default vendor.
func (a *App) Default() *conversation.Orchestrator {
	return a.Orchestrators[a.DefaultVendor]
}

func newRecorder(cfg *config.Config, logger *slog.Logger) (storage.Recorder, error) {
	var recs storage.Multi
	if cfg.TranscriptFilePath != "" {
		fr, err := storage.NewFileRecorder(cfg.TranscriptFilePath)
		if err != nil {
			return nil, fmt.Errorf("init transcript file: %w", err)
		}
		recs = append(recs, fr)
	}
	if cfg.SupabaseURL != "" {
		sr, err := storage.NewSupabaseRecorder(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseTable, supabaseClient(cfg))
		if err != nil {
			return nil, fmt.Errorf("init supabase: %w", err)
		}
		recs = append(recs, sr)
	}
	switch len(recs) {
	case 0:
		logger.Warn("transcript storage disabled")
		return nil, nil
	case 1:
		return recs[0], nil
	default:
		return recs, nil
	}
}

// supabaseClient bounds transcript reads and writes with SUPABASE_TIMEOUT.
func supabaseClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.SupabaseTimeout}
}
