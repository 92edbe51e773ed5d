// Package config loads application configuration from defaults, an optional
// YAML file, HIFZ_-prefixed environment variables, and command-line flags,
// in that order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/hmaged/hifz/internal/srs"
)

// Config is the full application configuration.
type Config struct {
	Database string       `koanf:"database" validate:"required"`
	Listen   string       `koanf:"listen" validate:"required"`
	Review   ReviewConfig `koanf:"review"`
	Goals    GoalsConfig  `koanf:"goals"`
}

// ReviewConfig tunes the scheduler and session batching.
type ReviewConfig struct {
	InitialInterval   int     `koanf:"initial_interval" validate:"gte=1"`
	InitialEaseFactor float64 `koanf:"initial_ease_factor" validate:"gt=0"`
	MinEaseFactor     float64 `koanf:"min_ease_factor" validate:"gt=0"`
	MaxInterval       int     `koanf:"max_interval" validate:"gte=1"`
	ClampHardInterval bool    `koanf:"clamp_hard_interval"`
	BatchSize         int     `koanf:"batch_size" validate:"gte=1,lte=1000"`
}

// GoalsConfig holds goal tracking settings.
type GoalsConfig struct {
	DailyCards int `koanf:"daily_cards" validate:"gte=1"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	p := srs.DefaultParams()
	return Config{
		Database: "hifz.db",
		Listen:   ":8080",
		Review: ReviewConfig{
			InitialInterval:   p.InitialInterval,
			InitialEaseFactor: p.InitialEaseFactor,
			MinEaseFactor:     p.MinEaseFactor,
			MaxInterval:       p.MaxInterval,
			BatchSize:         20,
		},
		Goals: GoalsConfig{DailyCards: 30},
	}
}

// Params maps the review settings onto scheduler parameters.
func (c Config) Params() srs.Params {
	return srs.Params{
		InitialInterval:   c.Review.InitialInterval,
		InitialEaseFactor: c.Review.InitialEaseFactor,
		MinEaseFactor:     c.Review.MinEaseFactor,
		MaxInterval:       c.Review.MaxInterval,
		ClampHardInterval: c.Review.ClampHardInterval,
	}
}

var validate = validator.New()

// Load builds the configuration. path may be empty to skip the file layer;
// flags may be nil to skip the flag layer. Flag names must match koanf keys
// (e.g. --database, --listen).
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// HIFZ_REVIEW_MAX_INTERVAL -> review.max_interval. Underscores inside
	// key names survive because only the section separator is mapped; keys
	// here are single-level under their section.
	err := k.Load(env.Provider("HIFZ_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "HIFZ_"))
		for _, section := range []string{"review_", "goals_"} {
			if strings.HasPrefix(s, section) {
				return strings.TrimSuffix(section, "_") + "." + strings.TrimPrefix(s, section)
			}
		}
		return s
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load environment config: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flag config: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
