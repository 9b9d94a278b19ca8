package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type Vendor string

const (
	VendorGrok   Vendor = "grok"
	VendorGemini Vendor = "gemini"
	VendorYandex Vendor = "yandex"
)

type Config struct {
	// HTTP
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	AdminAPIToken string `env:"ADMIN_API_TOKEN"`

	// Vendors
	DefaultVendor  Vendor        `env:"DEFAULT_VENDOR" envDefault:"grok"`
	GrokAPIKey     string        `env:"GROK_API_KEY"`
	GrokBaseURL    string        `env:"GROK_BASE_URL" envDefault:"https://api.x.ai/v1"`
	GrokModel      string        `env:"GROK_MODEL" envDefault:"grok-3-mini"`
	GeminiAPIKey   string        `env:"GEMINI_API_KEY"`
	GeminiModel    string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	YandexOAuthKey string        `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID string        `env:"YANDEX_FOLDER_ID"`
	LLMCallTimeout time.Duration `env:"LLM_CALL_TIMEOUT" envDefault:"60s"`

	// Retry policy
	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"50"`
	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	RetryMaxDelay    time.Duration `env:"RETRY_MAX_DELAY" envDefault:"30s"`

	// Personas
	PersonasPath string `env:"PERSONAS_PATH"`

	// Storage
	TranscriptFilePath string        `env:"TRANSCRIPT_FILE_PATH" envDefault:"data/transcripts.jsonl"`
	SupabaseURL        string        `env:"SUPABASE_URL"`
	SupabaseKey        string        `env:"SUPABASE_SERVICE_KEY"`
	SupabaseTable      string        `env:"SUPABASE_TRANSCRIPTS_TABLE" envDefault:"chat_messages"`
	SupabaseTimeout    time.Duration `env:"SUPABASE_TIMEOUT" envDefault:"15s"`

	// Cache
	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"30s"`
	CacheSweepEvery time.Duration `env:"CACHE_SWEEP_EVERY" envDefault:"1m"`

	// Telegram (optional)
	TelegramBotToken  string  `env:"TELEGRAM_BOT_TOKEN"`
	AllowedUsers      []int64 `env:"ALLOWED_USERS" envSeparator:":"`
	AdminUserID       int64   `env:"ADMIN_USER"`
	AllowlistFilePath string  `env:"ALLOWLIST_FILE_PATH" envDefault:"data/allowlist.json"`

	// Logging
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	LogFilePath string `env:"LOG_FILE_PATH" envDefault:"logs/sim-chatter.log"`
}

func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.RetryMaxAttempts <= 0 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive, got %d", cfg.RetryMaxAttempts)
	}
	return cfg, nil
}
