package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/text/language"
)

// Config holds all runtime configuration. Values come from environment
// variables; a local .env file is loaded by the CLI before processing.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	HTTPHost string `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`

	// Catalog admin API (Shopify-style REST).
	CatalogBaseURL string `envconfig:"CATALOG_BASE_URL" required:"true"`
	CatalogToken   string `envconfig:"CATALOG_ACCESS_TOKEN" required:"true"`

	// Text detection and translation collaborators.
	VisionBaseURL    string `envconfig:"VISION_BASE_URL" default:"https://vision.googleapis.com"`
	VisionAPIKey     string `envconfig:"VISION_API_KEY" required:"true"`
	TranslateBaseURL string `envconfig:"TRANSLATE_BASE_URL" default:"https://translation.googleapis.com"`
	TranslateAPIKey  string `envconfig:"TRANSLATE_API_KEY" required:"true"`

	SourceLang string `envconfig:"SOURCE_LANG" default:"zh"`
	TargetLang string `envconfig:"TARGET_LANG" default:"en"`

	// Variant price conversion.
	ExchangeRate  float64 `envconfig:"EXCHANGE_RATE" default:"18.5"`
	MarkupPercent float64 `envconfig:"MARKUP_PERCENT" default:"20"`

	// Dispatch discipline.
	ChunkSize  int           `envconfig:"CHUNK_SIZE" default:"5"`
	ChunkPause time.Duration `envconfig:"CHUNK_PAUSE" default:"500ms"`

	// Timer trigger. Empty disables the schedule.
	CronExpr string `envconfig:"CRON_EXPR" default:"0 3 * * *"`

	RemoteTimeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"30s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.CatalogBaseURL) == "" {
		return fmt.Errorf("CATALOG_BASE_URL is required")
	}
	if strings.TrimSpace(c.CatalogToken) == "" {
		return fmt.Errorf("CATALOG_ACCESS_TOKEN is required")
	}
	if _, err := language.Parse(c.SourceLang); err != nil {
		return fmt.Errorf("parse SOURCE_LANG=%q: %w", c.SourceLang, err)
	}
	if _, err := language.Parse(c.TargetLang); err != nil {
		return fmt.Errorf("parse TARGET_LANG=%q: %w", c.TargetLang, err)
	}
	if c.ExchangeRate <= 0 {
		return fmt.Errorf("EXCHANGE_RATE must be > 0")
	}
	if c.MarkupPercent < 0 {
		return fmt.Errorf("MARKUP_PERCENT must be >= 0")
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("CHUNK_SIZE must be >= 1")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be a valid port, got %d", c.HTTPPort)
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}
