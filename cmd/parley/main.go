package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/everstacklabs/parley/internal/catalog"
	"github.com/everstacklabs/parley/internal/config"
	"github.com/everstacklabs/parley/internal/coordinator"
	"github.com/everstacklabs/parley/internal/fetch"
	"github.com/everstacklabs/parley/internal/httpclient"
	"github.com/everstacklabs/parley/internal/provider"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "parley",
		Short: "Chat with local and cloud LLMs from your terminal",
		Long:  "Browses, caches, and chats with models from a local Ollama runtime and several cloud providers.",
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/parley/config.yaml)")

	rootCmd.AddCommand(
		modelsCmd(),
		refreshCmd(),
		cacheCmd(),
		providersCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available models (cached when fresh)",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, coord, err := setup()
			if err != nil {
				return err
			}
			defer flush(coord)

			force, _ := cmd.Flags().GetBool("force")
			format, _ := cmd.Flags().GetString("format")
			providerName, _ := cmd.Flags().GetString("provider")

			targets := coord.EnabledProviders()
			if providerName != "" {
				p, err := provider.Parse(providerName)
				if err != nil {
					return err
				}
				targets = []provider.ID{p}
			}

			byProvider := make(map[provider.ID][]catalog.ModelDescriptor, len(targets))
			for _, p := range targets {
				models, status := coord.GetModels(cmd.Context(), p, force)
				byProvider[p] = models
				if status == coordinator.StatusStaleFallback || status == coordinator.StatusUnavailable {
					slog.Warn("serving degraded model list", "provider", p, "status", status.String())
				}
			}

			switch format {
			case "json":
				return json.NewEncoder(os.Stdout).Encode(byProvider)
			case "yaml":
				return yaml.NewEncoder(os.Stdout).Encode(byProvider)
			default:
				for _, p := range targets {
					for _, m := range byProvider[p] {
						fmt.Printf("%-12s %-50s %-10s %s\n", p, m.Name, m.ParameterSize, m.DisplayName)
					}
				}
				return nil
			}
		},
	}

	cmd.Flags().String("provider", "", "Only list models for this provider")
	cmd.Flags().String("format", "table", "Output format: table, json, or yaml")
	cmd.Flags().Bool("force", false, "Refresh even if the cached list is fresh")

	return cmd
}

func refreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh provider model lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, coord, err := setup()
			if err != nil {
				return err
			}
			defer flush(coord)

			providerName, _ := cmd.Flags().GetString("provider")
			if providerName != "" {
				p, err := provider.Parse(providerName)
				if err != nil {
					return err
				}
				models, status := coord.GetModels(cmd.Context(), p, true)
				fmt.Printf("%-12s %-28s %d models\n", p, status, len(models))
				return nil
			}

			results := coord.RefreshAll(cmd.Context())
			for _, p := range coord.EnabledProviders() {
				r := results[p]
				fmt.Printf("%-12s %-28s %d models\n", p, r.Status, len(r.Models))
			}
			return nil
		},
	}

	cmd.Flags().String("provider", "", "Refresh only this provider")

	return cmd
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or purge the model cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show per-provider cache state",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, coord, err := setup()
			if err != nil {
				return err
			}

			fmt.Printf("%-12s %-8s %-8s %-7s %-22s %s\n", "PROVIDER", "MODELS", "AGE", "STALE", "LAST REFRESH", "LAST ERROR")
			for _, p := range provider.Known() {
				info := coord.CacheInfo(p)
				lastRefresh := "never"
				age := "-"
				if info.LastSuccess != nil {
					lastRefresh = info.LastSuccess.Local().Format("2006-01-02 15:04:05")
					age = info.Age.Round(time.Minute).String()
				}
				lastErr := ""
				if info.LastError != nil {
					lastErr = fmt.Sprintf("[%s] %s", info.LastError.Kind, info.LastError.Message)
				}
				fmt.Printf("%-12s %-8d %-8s %-7t %-22s %s\n", p, info.ModelCount, age, info.Stale, lastRefresh, lastErr)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete the cached model document",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store := catalog.NewStore(cfg.CachePath())
			if err := store.Purge(); err != nil {
				return err
			}
			fmt.Println("cache purged")
			return nil
		},
	})

	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fresh := cfg.Freshness()
			enabled := cfg.EnabledSet()
			fmt.Printf("%-12s %-9s %-8s %s\n", "PROVIDER", "ENABLED", "MAX AGE", "BASE URL")
			for _, p := range provider.Known() {
				pc := cfg.Provider(p)
				fmt.Printf("%-12s %-9t %-8s %s\n", p, enabled[p], fresh.MaxAge(p), pc.BaseURL)
			}
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	configureLogging(cfg.LogLevel)
	return cfg, nil
}

func setup() (*config.Config, *coordinator.Coordinator, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	client := httpclient.New(
		httpclient.WithTimeout(cfg.FetchTimeout),
		httpclient.WithRateLimit(cfg.RateLimit),
		httpclient.WithRetries(2, 250*time.Millisecond),
	)

	registry := fetch.NewRegistry(
		fetch.NewOllama(cfg.Provider(provider.Ollama).BaseURL, client),
		fetch.NewOpenAICompat(provider.OpenAI, cfg.Provider(provider.OpenAI).BaseURL, cfg.Provider(provider.OpenAI).APIKey, client),
		fetch.NewOpenAICompat(provider.Groq, cfg.Provider(provider.Groq).BaseURL, cfg.Provider(provider.Groq).APIKey, client),
		fetch.NewOpenAICompat(provider.OpenRouter, cfg.Provider(provider.OpenRouter).BaseURL, cfg.Provider(provider.OpenRouter).APIKey, client),
		fetch.NewAnthropic(cfg.Provider(provider.Anthropic).BaseURL, cfg.Provider(provider.Anthropic).APIKey, client),
		fetch.NewGoogle(cfg.Provider(provider.Google).BaseURL, cfg.Provider(provider.Google).APIKey, client),
		fetch.NewGitHub(cfg.Provider(provider.GitHub).BaseURL, cfg.Provider(provider.GitHub).APIKey,
			httpclient.WithTimeout(cfg.FetchTimeout),
			httpclient.WithRateLimit(cfg.RateLimit),
			httpclient.WithRetries(2, 250*time.Millisecond),
		),
	)

	store := catalog.NewStore(cfg.CachePath())
	coord := coordinator.New(store, registry, cfg.Freshness(), cfg.EnabledSet(),
		coordinator.WithFetchTimeout(cfg.FetchTimeout),
		coordinator.WithNotifier(coordinator.NotifierFunc(func(msg string) {
			fmt.Fprintln(os.Stderr, msg)
		})),
	)

	return cfg, coord, nil
}

func flush(coord *coordinator.Coordinator) {
	if err := coord.Flush(); err != nil {
		slog.Warn("flushing cache on shutdown failed", "error", err)
	}
}

func configureLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
