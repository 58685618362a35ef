// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the magnet-engine CLI.
// Implements: prd001-providers, prd002-aggregation, prd003-extraction,
//             prd004-analysis, prd005-state (CLI surface).
// See docs/ARCHITECTURE § Pipeline Interface, § Project Structure.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/magnet-engine/internal/secrets"
	"github.com/pdiddy/magnet-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the magnet-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "magnet-engine",
	Short: "Magnet link search aggregation with AI curation",
	Long: `magnet-engine searches heterogeneous magnet-link engines in parallel,
merges and deduplicates the results, and curates them with a two-stage
AI pipeline: extraction turns raw markup into result records, analysis
produces cleaned titles, tags, and a purity score per result.

Engines, priority keywords, and AI settings live in a SQLite state
store managed through the engines and keywords subcommands.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./magnet-engine.yaml or ~/.config/magnet-engine/config.yaml)")
	rootCmd.PersistentFlags().String("state-dir", "", "state database directory (default: ./state)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("magnet-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "magnet-engine"))
		}
	}

	viper.SetEnvPrefix("MAGNET_ENGINE")
	viper.AutomaticEnv()

	viper.SetDefault("search.timeout", "20s")
	viper.SetDefault("search.user_agent", "magnet-engine/"+version)
	viper.SetDefault("search.max_pages", 1)
	viper.SetDefault("search.page_delay", "0s")
	viper.SetDefault("ai.model", "claude-sonnet-4-5")
	viper.SetDefault("ai.max_retries", 3)
	viper.SetDefault("ai.call_timeout", "60s")
	viper.SetDefault("state.dir", "state")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadAppConfig assembles the stage configurations from viper, flags,
// and secrets. Durable AI settings from the state store are overlaid
// later, once the store is open.
func loadAppConfig() types.AppConfig {
	ai := types.AIConfig{
		Model:       viper.GetString("ai.model"),
		APIKey:      secretDefault("anthropic-api-key", viper.GetString("ai.api_key")),
		MaxRetries:  viper.GetInt("ai.max_retries"),
		CallTimeout: viper.GetDuration("ai.call_timeout"),
	}

	stateDir, _ := rootCmd.PersistentFlags().GetString("state-dir")
	if stateDir == "" {
		stateDir = viper.GetString("state.dir")
	}

	return types.AppConfig{
		Search: types.SearchConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("search.timeout"),
				UserAgent: viper.GetString("search.user_agent"),
			},
			MaxPages:  viper.GetInt("search.max_pages"),
			PageDelay: viper.GetDuration("search.page_delay"),
		},
		Extraction: types.ExtractionConfig{
			AIConfig:        ai,
			MaxPayloadBytes: viper.GetInt("extraction.max_payload_bytes"),
			Workers:         viper.GetInt("extraction.workers"),
		},
		Analysis: types.AnalysisConfig{
			AIConfig:             ai,
			BatchSize:            viper.GetInt("analysis.batch_size"),
			MaxConcurrentBatches: viper.GetInt("analysis.max_concurrent_batches"),
		},
		State: types.StateConfig{StateDir: stateDir},
	}
}

// applyAISettings overlays durable AI settings onto the static config.
func applyAISettings(cfg *types.AppConfig, settings types.AISettings) {
	if settings.Model != "" {
		cfg.Extraction.Model = settings.Model
		cfg.Analysis.Model = settings.Model
	}
	if settings.BatchSize > 0 {
		cfg.Analysis.BatchSize = settings.BatchSize
	}
	if settings.MaxConcurrentBatches > 0 {
		cfg.Analysis.MaxConcurrentBatches = settings.MaxConcurrentBatches
	}
	if settings.ExtractWorkers > 0 {
		cfg.Extraction.Workers = settings.ExtractWorkers
	}
	if settings.MaxPayloadBytes > 0 {
		cfg.Extraction.MaxPayloadBytes = settings.MaxPayloadBytes
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
