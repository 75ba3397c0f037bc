package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CURATOR_CONFIG is set
//  3. env (prefix CURATOR_)
//
// Env keys nest on double underscores: CURATOR_ADMISSION__MAX_PER_DAY maps
// to admission.max_per_day.
func Load() (*Config, error) {
	cfg := *New()

	k := koanf.New(".")

	if path := os.Getenv("CURATOR_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	envProvider := env.Provider("CURATOR_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "curator_")
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.Store != StoreMemory && c.Store != StoreMongo {
		return fmt.Errorf("%w: store must be %q or %q, got %q", ErrInvalidConfig, StoreMemory, StoreMongo, c.Store)
	}
	if c.Store == StoreMongo && (c.Mongo.URI == "" || c.Mongo.Database == "") {
		return fmt.Errorf("%w: mongo.uri and mongo.database are required with store=mongo", ErrInvalidConfig)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	}
	if t := c.Dedupe.TitleSimilarityThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("%w: dedupe.title_similarity_threshold must be in (0,1]", ErrInvalidConfig)
	}
	if t := c.Dedupe.SemanticSimilarityThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("%w: dedupe.semantic_similarity_threshold must be in (0,1]", ErrInvalidConfig)
	}
	if c.Admission.MaxPerDay <= 0 || c.Admission.MaxPerHour <= 0 {
		return fmt.Errorf("%w: admission caps must be positive", ErrInvalidConfig)
	}
	for _, src := range c.Sources {
		if src.Name == "" || src.URL == "" || src.ItemSelector == "" {
			return fmt.Errorf("%w: each source needs name, url, and item_selector", ErrInvalidConfig)
		}
	}
	return nil
}
