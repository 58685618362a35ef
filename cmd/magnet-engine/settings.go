package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/magnet-engine/internal/state"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change durable AI settings",
	Long: `Settings stores the AI tuning knobs in the state database. Stored
values override the static config; unset values fall back to it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.NewStore(loadAppConfig().State)
		if err != nil {
			return err
		}
		defer store.Close()

		settings, err := store.LoadAISettings(cmd.Context())
		if err != nil {
			return err
		}

		changed := false
		if v, _ := cmd.Flags().GetString("model"); v != "" {
			settings.Model = v
			changed = true
		}
		if v, _ := cmd.Flags().GetInt("batch-size"); v > 0 {
			settings.BatchSize = v
			changed = true
		}
		if v, _ := cmd.Flags().GetInt("max-concurrent-batches"); v > 0 {
			settings.MaxConcurrentBatches = v
			changed = true
		}
		if v, _ := cmd.Flags().GetInt("extract-workers"); v > 0 {
			settings.ExtractWorkers = v
			changed = true
		}
		if v, _ := cmd.Flags().GetInt("max-payload-bytes"); v > 0 {
			settings.MaxPayloadBytes = v
			changed = true
		}

		if changed {
			if err := store.SaveAISettings(cmd.Context(), settings); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "settings saved")
		}

		fmt.Printf("model: %s\n", orDefault(settings.Model, "(config default)"))
		fmt.Printf("batch_size: %s\n", orDefaultInt(settings.BatchSize))
		fmt.Printf("max_concurrent_batches: %s\n", orDefaultInt(settings.MaxConcurrentBatches))
		fmt.Printf("extract_workers: %s\n", orDefaultInt(settings.ExtractWorkers))
		fmt.Printf("max_payload_bytes: %s\n", orDefaultInt(settings.MaxPayloadBytes))
		return nil
	},
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orDefaultInt(v int) string {
	if v <= 0 {
		return "(config default)"
	}
	return fmt.Sprintf("%d", v)
}

func init() {
	settingsCmd.Flags().String("model", "", "AI model identifier for extraction and analysis")
	settingsCmd.Flags().Int("batch-size", 0, "results per analysis call")
	settingsCmd.Flags().Int("max-concurrent-batches", 0, "in-flight analysis calls")
	settingsCmd.Flags().Int("extract-workers", 0, "concurrent extraction calls per engine")
	settingsCmd.Flags().Int("max-payload-bytes", 0, "markup truncation ceiling for extraction")

	rootCmd.AddCommand(settingsCmd)
}
