// Package config loads the three-tier LLM provider configuration plus
// global orchestrator settings from YAML with environment-variable
// overrides, covering exactly the fields this kernel needs: per-tier
// provider connection details and the planner's retry budget.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fluxweave/conductor/conductorerr"
)

// ProviderConfig is one tier's connection details.
type ProviderConfig struct {
	Provider  string        `yaml:"provider"`
	ModelID   string        `yaml:"modelId"`
	BaseURL   string        `yaml:"baseUrl"`
	APIKey    string        `yaml:"apiKey"`
	Timeout   time.Duration `yaml:"timeout"`
	KeepAlive time.Duration `yaml:"keepAlive"`
}

// defaultProvider names the provider used when a tier is left unconfigured.
const defaultProvider = "local"

// Config is the full configuration tree: three LLM tiers plus the
// planner's retry budget and the history event publisher's replay
// backend.
type Config struct {
	Simple  ProviderConfig `yaml:"simple"`
	Medium  ProviderConfig `yaml:"medium"`
	Complex ProviderConfig `yaml:"complex"`

	MaxAttempts     int    `yaml:"maxAttempts"`
	MaxDepth        int    `yaml:"maxDepth"`
	RedisReplayAddr string `yaml:"redisReplayAddr"`
}

// Default returns conservative defaults: every tier points at a local
// runtime, five retry attempts, a maximum tree depth of ten, and no Redis
// replay backend (in-process publisher only).
func Default() *Config {
	local := ProviderConfig{
		Provider: defaultProvider,
		ModelID:  "local-model",
		BaseURL:  "http://localhost:11434/v1",
		Timeout:  30 * time.Second,
	}
	return &Config{
		Simple:      local,
		Medium:      local,
		Complex:     local,
		MaxAttempts: 5,
		MaxDepth:    10,
	}
}

// Load reads a YAML file at path and applies environment-variable
// overrides on top of it. A missing path falls back to Default() before
// overrides are applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides uses CONDUCTOR_<TIER>_<FIELD> names, e.g.
// CONDUCTOR_COMPLEX_API_KEY.
func applyEnvOverrides(cfg *Config) {
	override := func(tier *ProviderConfig, prefix string) {
		if v := os.Getenv(prefix + "_PROVIDER"); v != "" {
			tier.Provider = v
		}
		if v := os.Getenv(prefix + "_MODEL_ID"); v != "" {
			tier.ModelID = v
		}
		if v := os.Getenv(prefix + "_BASE_URL"); v != "" {
			tier.BaseURL = v
		}
		if v := os.Getenv(prefix + "_API_KEY"); v != "" {
			tier.APIKey = v
		}
		if v := os.Getenv(prefix + "_TIMEOUT"); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				tier.Timeout = d
			}
		}
	}
	override(&cfg.Simple, "CONDUCTOR_SIMPLE")
	override(&cfg.Medium, "CONDUCTOR_MEDIUM")
	override(&cfg.Complex, "CONDUCTOR_COMPLEX")

	if v := os.Getenv("CONDUCTOR_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv("CONDUCTOR_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDepth = n
		}
	}
	if v := os.Getenv("CONDUCTOR_REDIS_REPLAY_ADDR"); v != "" {
		cfg.RedisReplayAddr = v
	}
}

// Validate enforces the invariants the planner and validator assume hold:
// a positive retry budget and depth limit.
func (c *Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return conductorerr.New("config.Validate", "config", conductorerr.ErrInvalidConfiguration).WithID("maxAttempts")
	}
	if c.MaxDepth <= 0 {
		return conductorerr.New("config.Validate", "config", conductorerr.ErrInvalidConfiguration).WithID("maxDepth")
	}
	for name, tier := range map[string]ProviderConfig{"simple": c.Simple, "medium": c.Medium, "complex": c.Complex} {
		if tier.BaseURL == "" {
			return conductorerr.New("config.Validate", "config", conductorerr.ErrMissingConfiguration).WithID(name + ".baseUrl")
		}
	}
	return nil
}
