package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/magnet-engine/internal/state"
)

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Manage priority keywords",
	Long: `Keywords manages the priority keyword list. Results whose title
contains a priority keyword are flagged so the consumer can surface
them first.`,
}

var keywordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List priority keywords",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.NewStore(loadAppConfig().State)
		if err != nil {
			return err
		}
		defer store.Close()

		keywords, err := store.PriorityKeywords(cmd.Context())
		if err != nil {
			return err
		}
		for _, kw := range keywords {
			fmt.Println(kw)
		}
		return nil
	},
}

var keywordsAddCmd = &cobra.Command{
	Use:   "add <keyword>",
	Short: "Add a priority keyword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.NewStore(loadAppConfig().State)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.AddPriorityKeyword(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "keyword %q added\n", args[0])
		return nil
	},
}

var keywordsRemoveCmd = &cobra.Command{
	Use:   "remove <keyword>",
	Short: "Remove a priority keyword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.NewStore(loadAppConfig().State)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.RemovePriorityKeyword(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "keyword %q removed\n", args[0])
		return nil
	},
}

func init() {
	keywordsCmd.AddCommand(keywordsListCmd, keywordsAddCmd, keywordsRemoveCmd)
	rootCmd.AddCommand(keywordsCmd)
}
