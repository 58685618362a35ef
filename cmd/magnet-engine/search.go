package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/magnet-engine/internal/aggregate"
	"github.com/pdiddy/magnet-engine/internal/analyze"
	"github.com/pdiddy/magnet-engine/internal/extract"
	"github.com/pdiddy/magnet-engine/internal/logging"
	"github.com/pdiddy/magnet-engine/internal/state"
	"github.com/pdiddy/magnet-engine/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Search all enabled engines for magnet links",
	Long: `Search fans a keyword out to every enabled engine, merges the result
streams, and deduplicates them by magnet link. Results print as they
arrive. Extraction engines run their raw markup through the AI
extraction stage; pass --analyze to also run the AI analysis stage
over the merged results.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyword := strings.Join(args, " ")
		maxPages, _ := cmd.Flags().GetInt("max-pages")
		jsonOut, _ := cmd.Flags().GetBool("json")
		runAnalysis, _ := cmd.Flags().GetBool("analyze")
		outPath, _ := cmd.Flags().GetString("out")
		logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")

		cfg := loadAppConfig()
		log := logging.New(os.Stderr, logLevel)

		store, err := state.NewStore(cfg.State)
		if err != nil {
			return err
		}
		defer store.Close()

		settings, err := store.LoadAISettings(cmd.Context())
		if err != nil {
			return err
		}
		applyAISettings(&cfg, settings)

		extractor := extract.NewStage(
			extract.NewClaudeBackend(cfg.Extraction.APIKey, cfg.Extraction.Model, cfg.Extraction.MaxRetries),
			cfg.Extraction, log)
		analyzer := analyze.NewStage(
			&analyze.ClaudeBackend{APIKey: cfg.Analysis.APIKey, Model: cfg.Analysis.Model},
			cfg.Analysis, log)

		sink := &cliSink{w: os.Stdout, jsonOut: jsonOut}
		orchestrator := aggregate.New(store, extractor, analyzer, sink, cfg.Search, log)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		session, err := orchestrator.StartSearch(ctx, keyword, maxPages)
		if err != nil {
			return err
		}
		// Wait without the signal context: an interrupt cancels the
		// session, and the drain still has to finish.
		if err := session.Wait(context.Background()); err != nil {
			return err
		}

		if runAnalysis && session.Status() != types.StatusCancelled {
			summary, err := orchestrator.Analyze(ctx, nil)
			if err != nil {
				return err
			}
			printAnalysisSummary(os.Stderr, summary)
		}

		printSearchSummary(os.Stderr, session)

		if outPath != "" {
			if err := aggregate.WriteSessionFile(outPath, session); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "session saved to %s\n", outPath)
		}

		if session.Status() == types.StatusPartiallyFailed {
			return fmt.Errorf("search finished with engine failures")
		}
		return nil
	},
}

// cliSink streams results to the terminal as the orchestrator emits
// them. It also receives analysis batch progress.
type cliSink struct {
	w       io.Writer
	jsonOut bool
}

func (s *cliSink) OnResult(r *types.SearchResult) {
	if s.jsonOut {
		data, err := json.Marshal(r)
		if err != nil {
			return
		}
		fmt.Fprintln(s.w, string(data))
		return
	}
	marker := " "
	if r.Priority {
		marker = "*"
	}
	size := "?"
	if r.SizeBytes > 0 {
		size = humanBytes(r.SizeBytes)
	}
	fmt.Fprintf(s.w, "%s [%s] %s (%s)\n    %s\n", marker, r.EngineID, r.Title, size, r.MagnetLink)
}

func (s *cliSink) OnProviderFailed(engineID string, err error) {
	fmt.Fprintf(os.Stderr, "engine %s failed: %v\n", engineID, err)
}

func (s *cliSink) OnStatusChanged(status types.SessionStatus) {
	fmt.Fprintf(os.Stderr, "status: %s\n", status)
}

func (s *cliSink) BatchAnalyzed(ids []string) {
	fmt.Fprintf(os.Stderr, "analysis batch: %d results analyzed\n", len(ids))
}

func (s *cliSink) BatchFailed(ids []string, err error) {
	fmt.Fprintf(os.Stderr, "analysis batch failed (%d results): %v\n", len(ids), err)
}

func printSearchSummary(w io.Writer, session *aggregate.Session) {
	results := session.Results()
	priority := 0
	for _, r := range results {
		if r.Priority {
			priority++
		}
	}
	fmt.Fprintf(w, "\n%d results (%d priority), status %s\n", len(results), priority, session.Status())
	if dups := session.DuplicatesSuppressed(); dups > 0 {
		fmt.Fprintf(w, "%d duplicates suppressed\n", dups)
	}
	if dropped := session.DroppedItems(); dropped > 0 {
		fmt.Fprintf(w, "%d raw items dropped during extraction\n", dropped)
	}
	for _, f := range session.Failures() {
		fmt.Fprintf(w, "failed engine %s: %v\n", f.EngineID, f.Err)
	}
	if ids := session.FailedAnalysisIDs(); len(ids) > 0 {
		fmt.Fprintf(w, "analysis failed for %d results: %s\n", len(ids), strings.Join(ids, ", "))
	}
}

func printAnalysisSummary(w io.Writer, summary analyze.Summary) {
	fmt.Fprintf(w, "analysis: %d analyzed, %d dropped, %d batches failed\n",
		summary.Analyzed, summary.Dropped, summary.FailedBatches)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	searchCmd.Flags().Int("max-pages", 0, "result pages to fetch per engine (default from config)")
	searchCmd.Flags().Bool("json", false, "print results as JSON lines")
	searchCmd.Flags().Bool("analyze", false, "run AI analysis over the merged results")
	searchCmd.Flags().String("out", "", "save the finished session to a YAML file")

	rootCmd.AddCommand(searchCmd)
}
