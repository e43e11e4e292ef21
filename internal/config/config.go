// Package config loads gateway settings from an optional YAML file and
// environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds NopeNet gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	LLM       LLMConfig       `yaml:"llm"`
	Detection DetectionConfig `yaml:"detection"`
	Audit     AuditConfig     `yaml:"audit"`
	TLS       TLSConfig       `yaml:"tls"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port       string `yaml:"port"`
	Production bool   `yaml:"production"`
	// AllowedOrigin is sent as Access-Control-Allow-Origin.
	AllowedOrigin string `yaml:"allowed_origin"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

type LLMConfig struct {
	Provider  string `yaml:"provider"` // openai | anthropic | bedrock
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	MaxTokens int    `yaml:"max_tokens"`

	// APIKey is resolved from APIKeyEnv, never read from the file.
	APIKey string `yaml:"-"`
}

type DetectionConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type AuditConfig struct {
	DatabaseURL   string `yaml:"database_url"`
	RetentionDays int    `yaml:"retention_days"`
}

type TLSConfig struct {
	Domains []string `yaml:"domains"`
	Email   string   `yaml:"email"`
}

// RateLimitConfig maps bucket names (chat, predict, validate, sample) to
// requests per minute.
type RateLimitConfig struct {
	PerMinute map[string]int `yaml:"per_minute"`
}

// Load reads configuration from a YAML file, applies environment overrides
// and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	cfg.LLM.APIKey = strings.TrimSpace(os.Getenv(cfg.LLM.APIKeyEnv))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the config file location from NOPENET_CONFIG, defaulting to
// nopenet.yaml in the working directory.
func Path() string {
	if p := os.Getenv("NOPENET_CONFIG"); p != "" {
		return p
	}
	return "nopenet.yaml"
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.AllowedOrigin, "CORS_ALLOWED_ORIGIN")
	if os.Getenv("NOPENET_ENV") == "production" {
		cfg.Server.Production = true
	}
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.APIKeyEnv, "LLM_API_KEY_ENV")
	if v, err := strconv.Atoi(os.Getenv("LLM_MAX_TOKENS")); err == nil {
		cfg.LLM.MaxTokens = v
	}
	setString(&cfg.Detection.BaseURL, "DETECTION_API_URL")
	if v, err := time.ParseDuration(os.Getenv("DETECTION_API_TIMEOUT")); err == nil {
		cfg.Detection.Timeout = v
	}
	setString(&cfg.Audit.DatabaseURL, "DATABASE_URL")
	if v := os.Getenv("TLS_DOMAINS"); v != "" {
		cfg.TLS.Domains = splitList(v)
	}
	setString(&cfg.TLS.Email, "ACME_EMAIL")
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.AllowedOrigin == "" {
		cfg.Server.AllowedOrigin = "*"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case "anthropic":
			cfg.LLM.Model = "claude-sonnet-4-5"
		case "bedrock":
			cfg.LLM.Model = "global.anthropic.claude-sonnet-4-5-20250929-v1:0"
		default:
			cfg.LLM.Model = "gpt-3.5-turbo"
		}
	}
	if cfg.LLM.APIKeyEnv == "" {
		switch cfg.LLM.Provider {
		case "anthropic", "bedrock":
			cfg.LLM.APIKeyEnv = "ANTHROPIC_API_KEY"
		default:
			cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}

	if cfg.Detection.BaseURL == "" {
		cfg.Detection.BaseURL = "http://localhost:8000"
	}
	if cfg.Detection.Timeout == 0 {
		cfg.Detection.Timeout = 60 * time.Second
	}

	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 30
	}

	defaults := map[string]int{"chat": 20, "predict": 30, "validate": 60, "sample": 60}
	if cfg.RateLimit.PerMinute == nil {
		cfg.RateLimit.PerMinute = map[string]int{}
	}
	for k, v := range defaults {
		if _, ok := cfg.RateLimit.PerMinute[k]; !ok {
			cfg.RateLimit.PerMinute[k] = v
		}
	}
}

// Validate rejects settings the gateway cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case "openai", "anthropic", "bedrock":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not one of openai, anthropic, bedrock", c.LLM.Provider))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens))
	}
	if c.Detection.Timeout < 0 {
		errs = append(errs, fmt.Errorf("detection.timeout must be positive, got %s", c.Detection.Timeout))
	}
	if c.Audit.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("audit.retention_days must be positive, got %d", c.Audit.RetentionDays))
	}
	for name, n := range c.RateLimit.PerMinute {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.per_minute.%s must be positive, got %d", name, n))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
