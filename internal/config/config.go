// Package config loads application configuration from file, environment,
// and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/everstacklabs/parley/internal/catalog"
	"github.com/everstacklabs/parley/internal/provider"
)

// ProviderConfig holds per-provider settings.
type ProviderConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Enabled bool          `mapstructure:"enabled"`
	MaxAge  time.Duration `mapstructure:"max_age"`
}

// Config holds all configuration for parley.
type Config struct {
	DataDir       string                    `mapstructure:"data_dir"`
	DefaultMaxAge time.Duration             `mapstructure:"default_max_age"`
	FetchTimeout  time.Duration             `mapstructure:"fetch_timeout"`
	RateLimit     float64                   `mapstructure:"rate_limit"`
	LogLevel      string                    `mapstructure:"log_level"`
	Providers     map[string]ProviderConfig `mapstructure:"providers"`
}

// Load reads configuration from file, environment, and defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("default_max_age", "24h")
	v.SetDefault("fetch_timeout", "30s")
	v.SetDefault("rate_limit", 10.0)
	v.SetDefault("log_level", "info")

	// The local runtime is cheap to query but its catalog barely moves;
	// cloud catalogs churn, so their windows are much shorter.
	v.SetDefault("providers.ollama.base_url", "http://localhost:11434")
	v.SetDefault("providers.ollama.max_age", "168h")
	v.SetDefault("providers.ollama.enabled", true)

	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.max_age", "24h")
	v.SetDefault("providers.openai.enabled", true)

	v.SetDefault("providers.groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("providers.groq.max_age", "24h")
	v.SetDefault("providers.groq.enabled", true)

	v.SetDefault("providers.openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("providers.openrouter.max_age", "12h")
	v.SetDefault("providers.openrouter.enabled", true)

	v.SetDefault("providers.anthropic.base_url", "https://api.anthropic.com/v1")
	v.SetDefault("providers.anthropic.max_age", "24h")
	v.SetDefault("providers.anthropic.enabled", true)

	v.SetDefault("providers.google.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("providers.google.max_age", "24h")
	v.SetDefault("providers.google.enabled", true)

	v.SetDefault("providers.github.base_url", "https://models.github.ai")
	v.SetDefault("providers.github.max_age", "24h")
	v.SetDefault("providers.github.enabled", false)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/parley")
	}

	// Environment variables
	v.SetEnvPrefix("PARLEY")
	v.AutomaticEnv()

	// Bind provider credentials to their conventional env vars
	_ = v.BindEnv("providers.ollama.base_url", "OLLAMA_HOST")
	_ = v.BindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("providers.groq.api_key", "GROQ_API_KEY")
	_ = v.BindEnv("providers.openrouter.api_key", "OPENROUTER_API_KEY")
	_ = v.BindEnv("providers.anthropic.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("providers.google.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("providers.github.api_key", "GITHUB_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if !filepath.IsAbs(cfg.DataDir) {
		abs, err := filepath.Abs(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("resolving data dir: %w", err)
		}
		cfg.DataDir = abs
	}

	return &cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/parley"
	}
	return filepath.Join(home, ".local", "share", "parley")
}

// CachePath returns the location of the provider model cache document.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache", "provider-models.json")
}

// Provider returns the settings for a provider id.
func (c *Config) Provider(id provider.ID) ProviderConfig {
	return c.Providers[string(id)]
}

// Freshness builds the per-provider max-age policy. Every known provider
// ends up with a window even if the user never set one.
func (c *Config) Freshness() catalog.Freshness {
	f := catalog.Freshness{
		Default:     c.DefaultMaxAge,
		PerProvider: make(map[provider.ID]time.Duration),
	}
	if f.Default <= 0 {
		f.Default = 24 * time.Hour
	}
	for _, id := range provider.Known() {
		if pc, ok := c.Providers[string(id)]; ok && pc.MaxAge > 0 {
			f.PerProvider[id] = pc.MaxAge
		}
	}
	return f
}

// EnabledSet returns the enabled flag per known provider.
func (c *Config) EnabledSet() map[provider.ID]bool {
	set := make(map[provider.ID]bool, len(provider.Known()))
	for _, id := range provider.Known() {
		pc, ok := c.Providers[string(id)]
		set[id] = ok && pc.Enabled
	}
	return set
}
