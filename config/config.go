package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"feedback-radar/llm"
	"feedback-radar/scheduler"
)

// Config holds all application configuration.
type Config struct {
	CompanyName      string         `yaml:"company_name"`
	SearchQueries    []string       `yaml:"search_queries"`
	MaxItems         int            `yaml:"max_items"`
	FetchTimeoutSecs int            `yaml:"fetch_timeout_secs"`
	LLM              LLMConfig      `yaml:"llm"`
	Classify         ClassifyConfig `yaml:"classify"`
	Schedule         string         `yaml:"schedule"`
	Timezone         string         `yaml:"timezone"`
	DBPath           string         `yaml:"db_path"`
	RedisURL         string         `yaml:"redis_url"`
	RedisTTLHours    int            `yaml:"redis_ttl_hours"`
	Telegram         TelegramConfig `yaml:"telegram"`
	HTTPAddr         string         `yaml:"http_addr"`
	LogLevel         string         `yaml:"log_level"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

// ClassifyConfig is the classification batch policy.
type ClassifyConfig struct {
	BatchSize    int `yaml:"batch_size"`
	BatchDelayMs int `yaml:"batch_delay_ms"`
}

// TelegramConfig enables digest delivery. An empty token disables it.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path from environment or default.
func GetConfigPath() string {
	if path := os.Getenv("FEEDBACK_RADAR_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

// LLMClientConfig converts the llm section for llm.New.
func (c *Config) LLMClientConfig() llm.Config {
	return llm.Config{
		Provider:  c.LLM.Provider,
		APIKey:    c.LLM.APIKey,
		BaseURL:   c.LLM.BaseURL,
		Model:     c.LLM.Model,
		MaxTokens: c.LLM.MaxTokens,
	}
}

// FetchTimeout returns the HTTP timeout for forum and article fetches.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// BatchDelay returns the pause between classification batches.
func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.Classify.BatchDelayMs) * time.Millisecond
}

// RedisTTL returns how long cached classifications live in Redis.
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.RedisTTLHours) * time.Hour
}

func applyDefaults(cfg *Config) {
	if len(cfg.SearchQueries) == 0 && cfg.CompanyName != "" {
		cfg.SearchQueries = []string{cfg.CompanyName}
	}
	if cfg.MaxItems == 0 {
		cfg.MaxItems = 100
	}
	if cfg.FetchTimeoutSecs == 0 {
		cfg.FetchTimeoutSecs = 10
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = llm.ProviderGemini
	}
	if cfg.Classify.BatchSize == 0 {
		cfg.Classify.BatchSize = 5
	}
	if cfg.Classify.BatchDelayMs == 0 {
		cfg.Classify.BatchDelayMs = 1000
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "09:00"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./feedback-radar.db"
	}
	if cfg.RedisTTLHours == 0 {
		cfg.RedisTTLHours = 24 * 7
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("FEEDBACK_RADAR_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.CompanyName) == "" {
		return fmt.Errorf("company_name is required")
	}
	switch cfg.LLM.Provider {
	case llm.ProviderGemini, llm.ProviderOpenAI, llm.ProviderAnthropic:
	default:
		return fmt.Errorf("llm.provider must be gemini, openai or anthropic, got %q", cfg.LLM.Provider)
	}
	if _, err := scheduler.ParseSpec(cfg.Schedule); err != nil {
		return err
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.Classify.BatchSize < 1 {
		return fmt.Errorf("classify.batch_size must be at least 1, got %d", cfg.Classify.BatchSize)
	}
	if cfg.MaxItems < 1 {
		return fmt.Errorf("max_items must be at least 1, got %d", cfg.MaxItems)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", cfg.LogLevel)
	}
	return nil
}
