package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/magnet-engine/internal/state"
	"github.com/pdiddy/magnet-engine/pkg/types"
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "Manage the search engine registry",
	Long: `Engines lists, adds, removes, enables, and disables the search engines
the aggregator fans out to. Structured engines need CSS selectors for
row parsing; extraction engines hand their raw pages to the AI
extraction stage.`,
}

var enginesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered engines",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.NewStore(loadAppConfig().State)
		if err != nil {
			return err
		}
		defer store.Close()

		engines, err := store.Engines(cmd.Context())
		if err != nil {
			return err
		}
		if len(engines) == 0 {
			fmt.Fprintln(os.Stderr, "no engines registered")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tKIND\tENABLED\tENDPOINT")
		for _, ec := range engines {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n",
				ec.ID, ec.Name, ec.Kind, ec.Enabled, ec.EndpointTemplate)
		}
		return tw.Flush()
	},
}

var enginesAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Add or update an engine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		kind, _ := cmd.Flags().GetString("kind")
		endpoint, _ := cmd.Flags().GetString("endpoint")
		if name == "" {
			name = args[0]
		}

		ec := types.EngineConfig{
			ID:               args[0],
			Name:             name,
			Kind:             types.EngineKind(kind),
			EndpointTemplate: endpoint,
			Enabled:          true,
		}
		ec.Selectors.Row, _ = cmd.Flags().GetString("selector-row")
		ec.Selectors.Title, _ = cmd.Flags().GetString("selector-title")
		ec.Selectors.Magnet, _ = cmd.Flags().GetString("selector-magnet")
		ec.Selectors.Size, _ = cmd.Flags().GetString("selector-size")
		ec.Selectors.Link, _ = cmd.Flags().GetString("selector-link")

		store, err := state.NewStore(loadAppConfig().State)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.PutEngine(cmd.Context(), ec); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "engine %s saved\n", ec.ID)
		return nil
	},
}

var enginesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an engine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.NewStore(loadAppConfig().State)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.DeleteEngine(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "engine %s removed\n", args[0])
		return nil
	},
}

var enginesEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable an engine for searches",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd, args[0], true) },
}

var enginesDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable an engine without removing it",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd, args[0], false) },
}

func setEnabled(cmd *cobra.Command, id string, enabled bool) error {
	store, err := state.NewStore(loadAppConfig().State)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.SetEngineEnabled(cmd.Context(), id, enabled); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "engine %s enabled=%v\n", id, enabled)
	return nil
}

var enginesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import engines and priority keywords from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ef, err := state.ReadEngineFile(args[0])
		if err != nil {
			return err
		}
		store, err := state.NewStore(loadAppConfig().State)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Import(cmd.Context(), ef); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "imported %d engines, %d keywords\n",
			len(ef.Engines), len(ef.PriorityKeywords))
		return nil
	},
}

var enginesExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the engine registry to a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.NewStore(loadAppConfig().State)
		if err != nil {
			return err
		}
		defer store.Close()
		ef, err := store.Export(cmd.Context())
		if err != nil {
			return err
		}
		if err := state.WriteEngineFile(args[0], ef); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "exported %d engines, %d keywords to %s\n",
			len(ef.Engines), len(ef.PriorityKeywords), args[0])
		return nil
	},
}

func init() {
	enginesAddCmd.Flags().String("name", "", "display name (default: id)")
	enginesAddCmd.Flags().String("kind", "structured", "engine kind: structured or extraction")
	enginesAddCmd.Flags().String("endpoint", "", "search URL template with {keyword} and {page} placeholders")
	enginesAddCmd.Flags().String("selector-row", "", "CSS selector for result rows (structured)")
	enginesAddCmd.Flags().String("selector-title", "", "CSS selector for the title within a row")
	enginesAddCmd.Flags().String("selector-magnet", "", "CSS selector for the magnet anchor within a row")
	enginesAddCmd.Flags().String("selector-size", "", "CSS selector for the size text within a row")
	enginesAddCmd.Flags().String("selector-link", "", "CSS selector for the detail-page anchor within a row")

	enginesCmd.AddCommand(enginesListCmd, enginesAddCmd, enginesRemoveCmd,
		enginesEnableCmd, enginesDisableCmd, enginesImportCmd, enginesExportCmd)
	rootCmd.AddCommand(enginesCmd)
}
