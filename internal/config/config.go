package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/character-chat/internal/service/ai/openaicompat"
)

const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// Config aggregates every configuration section of the service.
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	History HistoryConfig
	Session SessionConfig
	Log     LogConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	history, err := loadHistoryConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, History: history, Session: session, Log: logCfg}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port         string `env:"PORT" envDefault:"8080"`
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"false"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080"`

	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse server config: %w", err)
	}

	addr, err := normalizeAddr(cfg.Port)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.Addr = addr
	return cfg, nil
}

// normalizeAddr accepts "8080", ":8080" or "127.0.0.1:8080".
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	if strings.Contains(port, ":") {
		return port, nil
	}

	return ":" + port, nil
}

// AIConfig describes the hosted model.
type AIConfig struct {
	Provider    string        `env:"LLM_PROVIDER" envDefault:"openai"`
	APIKey      string        `env:"GROQ_API_KEY"`
	BaseURL     string        `env:"LLM_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	Model       string        `env:"LLM_MODEL" envDefault:"llama3-8b-8192"`
	Temperature float64       `env:"LLM_TEMPERATURE" envDefault:"0.1"`
	MaxTokens   int           `env:"LLM_MAX_TOKENS" envDefault:"0"`
	MaxRetries  int           `env:"LLM_MAX_RETRIES" envDefault:"2"`
	Timeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	ArkAPIKey    string `env:"ARK_API_KEY"`
	ArkAccessKey string `env:"ARK_ACCESS_KEY"`
	ArkSecretKey string `env:"ARK_SECRET_KEY"`
	ArkModel     string `env:"ARK_MODEL"`
	ArkBaseURL   string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	ArkRegion    string `env:"ARK_REGION" envDefault:"cn-beijing"`
}

func loadAIConfig() (AIConfig, error) {
	var cfg AIConfig
	if err := env.Parse(&cfg); err != nil {
		return AIConfig{}, fmt.Errorf("parse ai config: %w", err)
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	switch cfg.Provider {
	case ProviderOpenAI, ProviderArk:
	default:
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", cfg.Provider)
	}

	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return AIConfig{}, fmt.Errorf("invalid LLM_TEMPERATURE value %v: must be within [0, 2]", cfg.Temperature)
	}
	if cfg.MaxTokens < 0 {
		return AIConfig{}, fmt.Errorf("invalid LLM_MAX_TOKENS value %d", cfg.MaxTokens)
	}
	if cfg.MaxRetries < 0 {
		return AIConfig{}, fmt.Errorf("invalid LLM_MAX_RETRIES value %d", cfg.MaxRetries)
	}
	if cfg.Timeout <= 0 {
		return AIConfig{}, fmt.Errorf("invalid LLM_TIMEOUT value %s", cfg.Timeout)
	}

	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.ArkAPIKey = strings.TrimSpace(cfg.ArkAPIKey)
	return cfg, nil
}

// HasCredential reports whether a credential is configured for the selected provider.
// It is informational only: a missing credential surfaces on the first model call.
func (c AIConfig) HasCredential() bool {
	if c.Provider == ProviderArk {
		return c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != "")
	}
	return c.APIKey != ""
}

// NewChatModel builds the chat model for the selected provider.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	switch c.Provider {
	case ProviderArk:
		return c.newArkModel(ctx)
	case ProviderOpenAI, "":
		return openaicompat.New(openaicompat.Config{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: float32(c.Temperature),
			MaxTokens:   c.MaxTokens,
			MaxRetries:  c.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", c.Provider)
	}
}

func (c AIConfig) newArkModel(ctx context.Context) (model.ChatModel, error) {
	modelName := c.ArkModel
	if modelName == "" {
		modelName = c.Model
	}

	temperature := float32(c.Temperature)
	retries := c.MaxRetries
	timeout := c.Timeout

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.ArkBaseURL,
		Region:      c.ArkRegion,
		APIKey:      c.ArkAPIKey,
		AccessKey:   c.ArkAccessKey,
		SecretKey:   c.ArkSecretKey,
		Model:       modelName,
		Temperature: &temperature,
		RetryTimes:  &retries,
		Timeout:     &timeout,
	}
	if c.MaxTokens > 0 {
		maxTokens := c.MaxTokens
		cfg.MaxTokens = &maxTokens
	}

	return ark.NewChatModel(ctx, cfg)
}

// HistoryConfig locates the per-user history files.
type HistoryConfig struct {
	Dir string `env:"HISTORY_DIR" envDefault:"."`
}

func loadHistoryConfig() (HistoryConfig, error) {
	var cfg HistoryConfig
	if err := env.Parse(&cfg); err != nil {
		return HistoryConfig{}, fmt.Errorf("parse history config: %w", err)
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		cfg.Dir = "."
	}
	return cfg, nil
}

// SessionConfig controls browser session lifetime.
type SessionConfig struct {
	IdleTTL       time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	SweepSchedule string        `env:"SESSION_SWEEP_SCHEDULE" envDefault:"@every 1m"`
}

func loadSessionConfig() (SessionConfig, error) {
	var cfg SessionConfig
	if err := env.Parse(&cfg); err != nil {
		return SessionConfig{}, fmt.Errorf("parse session config: %w", err)
	}
	if cfg.IdleTTL <= 0 {
		return SessionConfig{}, fmt.Errorf("invalid SESSION_IDLE_TTL value %s", cfg.IdleTTL)
	}
	return cfg, nil
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

func loadLogConfig() (LogConfig, error) {
	var cfg LogConfig
	if err := env.Parse(&cfg); err != nil {
		return LogConfig{}, fmt.Errorf("parse log config: %w", err)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err != nil {
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL value %q: %w", cfg.Level, err)
	}
	switch cfg.Format {
	case "console", "json":
	default:
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q", cfg.Format)
	}
	return cfg, nil
}

// NewLogger builds the process logger. A nil writer means stderr.
func (c LogConfig) NewLogger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if c.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
