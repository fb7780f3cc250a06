package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the PixelFix server and CLI.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Enhance  EnhanceConfig
	Limits   LimitsConfig
	LogLevel slog.Level
}

type ServerConfig struct {
	Port int
	Env  string
}

type StorageConfig struct {
	UploadDir string
	OutputDir string
	StaticDir string
}

// RedisConfig is optional. An empty URL disables rate limiting and progress.
type RedisConfig struct {
	URL string
}

type EnhanceConfig struct {
	Provider      string
	Mode          string
	RemoteTimeout time.Duration
	Replicate     ReplicateConfig
	DeepAI        DeepAIConfig
}

type ReplicateConfig struct {
	APIToken string
	BaseURL  string
}

type DeepAIConfig struct {
	APIKey  string
	BaseURL string
}

type LimitsConfig struct {
	MaxUploadBytes     int64
	MaxOutputBytes     int64
	RateLimitPerMinute int
}

var validProviders = map[string]bool{
	"replicate": true,
	"deepai":    true,
	"mock":      true,
}

var validModes = map[string]bool{
	"single": true,
	"chain":  true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	provider := strings.ToLower(envString("ENHANCE_PROVIDER", "replicate"))

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PIXELFIX_PORT", 5000),
			Env:  envString("PIXELFIX_ENV", "development"),
		},
		Storage: StorageConfig{
			UploadDir: envString("UPLOAD_DIR", "uploads"),
			OutputDir: envString("OUTPUT_DIR", "outputs"),
			StaticDir: envString("STATIC_DIR", "static"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Enhance: EnhanceConfig{
			Provider:      provider,
			Mode:          strings.ToLower(envString("ENHANCE_MODE", defaultMode(provider))),
			RemoteTimeout: envDuration("REMOTE_TIMEOUT", 60*time.Second),
			Replicate: ReplicateConfig{
				APIToken: os.Getenv("REPLICATE_API_TOKEN"),
				BaseURL:  strings.TrimRight(envString("REPLICATE_BASE_URL", "https://api.replicate.com/v1"), "/"),
			},
			DeepAI: DeepAIConfig{
				APIKey:  os.Getenv("DEEP_AI_KEY"),
				BaseURL: strings.TrimRight(envString("DEEPAI_BASE_URL", "https://api.deepai.org"), "/"),
			},
		},
		Limits: LimitsConfig{
			MaxUploadBytes:     envInt64("MAX_UPLOAD_BYTES", 32<<20),
			MaxOutputBytes:     envInt64("MAX_OUTPUT_BYTES", 64<<20),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 10),
		},
	}

	level, err := parseLevel(envString("PIXELFIX_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultMode chains face restoration into upscaling only where the provider
// offers both models.
func defaultMode(provider string) string {
	if provider == "deepai" {
		return "single"
	}
	return "chain"
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PIXELFIX_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if !validProviders[c.Enhance.Provider] {
		return fmt.Errorf("ENHANCE_PROVIDER must be one of replicate, deepai, mock; got %q", c.Enhance.Provider)
	}
	if !validModes[c.Enhance.Mode] {
		return fmt.Errorf("ENHANCE_MODE must be one of single, chain; got %q", c.Enhance.Mode)
	}

	switch c.Enhance.Provider {
	case "replicate":
		if c.Enhance.Replicate.APIToken == "" {
			return fmt.Errorf("REPLICATE_API_TOKEN is required when ENHANCE_PROVIDER is replicate")
		}
		if !isHTTPURL(c.Enhance.Replicate.BaseURL) {
			return fmt.Errorf("REPLICATE_BASE_URL must start with http:// or https://, got %q", c.Enhance.Replicate.BaseURL)
		}
	case "deepai":
		if c.Enhance.DeepAI.APIKey == "" {
			return fmt.Errorf("DEEP_AI_KEY is required when ENHANCE_PROVIDER is deepai")
		}
		if !isHTTPURL(c.Enhance.DeepAI.BaseURL) {
			return fmt.Errorf("DEEPAI_BASE_URL must start with http:// or https://, got %q", c.Enhance.DeepAI.BaseURL)
		}
		if c.Enhance.Mode == "chain" {
			return fmt.Errorf("ENHANCE_MODE chain is not supported by the deepai provider")
		}
	}

	if c.Enhance.RemoteTimeout <= 0 {
		return fmt.Errorf("REMOTE_TIMEOUT must be positive, got %s", c.Enhance.RemoteTimeout)
	}
	if c.Limits.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.Limits.MaxUploadBytes)
	}
	if c.Limits.MaxOutputBytes <= 0 {
		return fmt.Errorf("MAX_OUTPUT_BYTES must be positive, got %d", c.Limits.MaxOutputBytes)
	}
	if c.Limits.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %d", c.Limits.RateLimitPerMinute)
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("PIXELFIX_LOG_LEVEL must be one of debug, info, warn, error; got %q", s)
	}
	return level, nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
