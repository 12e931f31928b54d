package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the reference-example retrieval index",
	Long: `Index embeds every .ord file in the configured examples directory and
stores the vectors in a local SQLite index used to enrich generation
prompts. Rebuilds are incremental: only new or modified files are
re-embedded, and rows for deleted files are dropped.

--watch keeps running and re-indexes whenever the directory changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		index, closeIndex, err := openIndex(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeIndex()

		stats, err := index.Rebuild(ctx)
		if err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %s: %d embedded, %d removed, %d total\n",
			cfg.Retrieval.ExamplesDir, stats.Embedded, stats.Removed, stats.Total)

		if !watch {
			return nil
		}
		logf := func(format string, fargs ...any) {
			fmt.Fprintf(cmd.OutOrStdout(), format+"\n", fargs...)
		}
		return index.Watch(ctx, logf)
	},
}

func init() {
	indexCmd.Flags().Bool("watch", false, "Keep watching the examples directory and re-index on changes")
}
