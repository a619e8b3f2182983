// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Coaching backends
const (
	BackendOpenAI = "openai"
	BackendMock   = "mock"
)

// Config holds all application configuration
type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	RedisAddr       string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"12h"`
	PromptPath      string        `env:"COACHING_PROMPT_PATH"`

	Coach   Coach
	Context Context
}

// Coach selects and configures the coaching backend
type Coach struct {
	Backend     string        `env:"COACH_BACKEND" envDefault:"openai"`
	APIKey      string        `env:"COACH_API_KEY"`
	BaseURL     string        `env:"COACH_BASE_URL"`
	Model       string        `env:"COACH_MODEL"`
	Temperature float64       `env:"COACH_TEMPERATURE" envDefault:"0.7"`
	MaxTokens   int           `env:"COACH_MAX_TOKENS" envDefault:"1000"`
	Timeout     time.Duration `env:"COACH_TIMEOUT" envDefault:"60s"`
	// CacheDir enables the structured completion cache when set
	CacheDir string        `env:"COACH_CACHE_DIR"`
	CacheTTL time.Duration `env:"COACH_CACHE_TTL" envDefault:"24h"`
}

// Context bounds assembled athlete context
type Context struct {
	Days      int `env:"CONTEXT_DAYS" envDefault:"14"`
	MaxTokens int `env:"CONTEXT_MAX_TOKENS" envDefault:"2000"`
}

// Load reads configuration from environment variables and validates it
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// HasCoachKey reports whether credentials for the real backend are present
func (c Config) HasCoachKey() bool {
	return c.Coach.APIKey != ""
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var err error
	switch strings.ToLower(c.Coach.Backend) {
	case BackendOpenAI, BackendMock:
	default:
		err = multierr.Append(err, fmt.Errorf("COACH_BACKEND: unknown backend %q", c.Coach.Backend))
	}
	if c.Coach.Temperature < 0 || c.Coach.Temperature > 2 {
		err = multierr.Append(err, fmt.Errorf("COACH_TEMPERATURE must be between 0 and 2, got %g", c.Coach.Temperature))
	}
	if c.Coach.MaxTokens <= 0 {
		err = multierr.Append(err, fmt.Errorf("COACH_MAX_TOKENS must be positive, got %d", c.Coach.MaxTokens))
	}
	if c.Coach.Timeout < 0 {
		err = multierr.Append(err, errors.New("COACH_TIMEOUT must not be negative"))
	}
	if _, perr := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); perr != nil {
		err = multierr.Append(err, fmt.Errorf("LOG_LEVEL: %w", perr))
	}
	if c.Context.Days <= 0 {
		err = multierr.Append(err, fmt.Errorf("CONTEXT_DAYS must be positive, got %d", c.Context.Days))
	}
	if c.Context.MaxTokens <= 0 {
		err = multierr.Append(err, fmt.Errorf("CONTEXT_MAX_TOKENS must be positive, got %d", c.Context.MaxTokens))
	}
	return err
}

// Level is the parsed LOG_LEVEL, info when it cannot be parsed
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
