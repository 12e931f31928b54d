package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/ordpilot/internal/eval"
)

var evalCmd = &cobra.Command{
	Use:   "eval [corpus-dir]",
	Short: "Validate every .ord file in a corpus directory",
	Long: `Eval runs the full validation pipeline over each .ord file in a directory
and prints a pass/fail summary with failure counts by stage and by code.
Known-bad files are skipped via exclusion globs (defaults: reg_*.ord,
inverter_constraints.ord); --strict exits non-zero when any file fails.

Outcomes are also recorded to the event database for the analytics views.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		excludes, _ := cmd.Flags().GetStringArray("exclude")
		strict, _ := cmd.Flags().GetBool("strict")
		jsonOut, _ := cmd.Flags().GetString("json-out")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		cfg, err := requireConfig()
		if err != nil {
			return err
		}

		database, closeDB, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer closeDB()

		h := eval.New(newValidator(cfg), database, eval.Options{
			Dir:         args[0],
			Excludes:    excludes,
			Concurrency: concurrency,
			Strict:      strict,
			JSONOut:     jsonOut,
			Timeout:     cfg.Validation.Timeout(),
		})
		h.SetProgress(os.Stderr)

		report, err := h.Run(cmd.Context())
		if err != nil {
			return err
		}
		report.PrintSummary(cmd.OutOrStdout())

		if code := h.ExitCode(report); code != 0 {
			cmd.SilenceUsage = true
			return fmt.Errorf("%d of %d file(s) failed", report.Summary.Failed, report.Summary.Total)
		}
		return nil
	},
}

func init() {
	evalCmd.Flags().StringArray("exclude", nil, "Additional file-name globs to skip (repeatable)")
	evalCmd.Flags().Bool("strict", false, "Exit non-zero when any file fails")
	evalCmd.Flags().String("json-out", "", "Write the detailed report to a JSON file")
	evalCmd.Flags().Int("concurrency", 0, "Parallel validations (default 4)")
}
