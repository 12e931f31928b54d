package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/ordpilot/internal/stage"
	"github.com/lucasnoah/ordpilot/internal/worker"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Run one .ord file through the validation pipeline",
	Long: `Validate runs a candidate through the staged pipeline in an isolated worker
process and reports the per-stage results. Use "-" (or no argument) to read
the candidate from stdin.

--per-stage runs each stage in its own worker process instead of one process
for the whole sequence; --until stops the pipeline after the named stage.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		perStage, _ := cmd.Flags().GetBool("per-stage")
		until, _ := cmd.Flags().GetString("until")
		asJSON, _ := cmd.Flags().GetBool("json")
		svgPath, _ := cmd.Flags().GetString("svg")

		cfg, err := requireConfig()
		if err != nil {
			return err
		}

		source, err := readSource(args)
		if err != nil {
			return err
		}

		sel := worker.Selector{Mode: worker.ModeSequence}
		switch {
		case until != "":
			sel = worker.Selector{Mode: worker.ModeUntil, Until: stage.Stage(until)}
		case perStage:
			sel = worker.Selector{Mode: worker.ModePerStage}
		}

		host := newValidator(cfg)
		host.SetProgress(os.Stderr)
		rep, err := host.Run(cmd.Context(), source, worker.RunOpts{Selector: sel, Timeout: cfg.Validation.Timeout()})
		if err != nil {
			return fmt.Errorf("validate: %w", err)
		}

		if svgPath != "" && rep.SVG != "" {
			if err := os.WriteFile(svgPath, []byte(rep.SVG), 0o644); err != nil {
				return fmt.Errorf("write svg: %w", err)
			}
		}

		if asJSON {
			data, err := json.MarshalIndent(rep, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		} else {
			printReport(cmd.OutOrStdout(), rep)
		}

		if !rep.Passed {
			cmd.SilenceUsage = true
			return fmt.Errorf("validation failed")
		}
		return nil
	},
}

// readSource reads the candidate from the named file, or stdin for "-" and
// no argument.
func readSource(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}

// printReport writes the per-stage table and the first failure.
func printReport(w io.Writer, rep *stage.Report) {
	for _, r := range rep.Stages {
		icon := "PASS"
		if !r.OK {
			icon = "FAIL"
		}
		fmt.Fprintf(w, "[%s] %-11s %5dms", icon, r.Stage, r.DurationMS)
		if r.Message != "" {
			fmt.Fprintf(w, "  %s", r.Message)
		}
		fmt.Fprintln(w)
	}
	if rep.Passed {
		if len(rep.Cells) > 0 {
			fmt.Fprintf(w, "\nPASSED (cells: %v)\n", rep.Cells)
		} else {
			fmt.Fprintln(w, "\nPASSED")
		}
		return
	}
	if f := rep.Failure; f != nil {
		fmt.Fprintf(w, "\nFAILED at %s (%s): %s\n", f.Stage, f.Code, f.Message)
		for _, v := range f.Violations {
			fmt.Fprintf(w, "  - %s\n", v.Message)
		}
	} else {
		fmt.Fprintln(w, "\nFAILED")
	}
}

func init() {
	validateCmd.Flags().Bool("per-stage", false, "Run each stage in its own worker process")
	validateCmd.Flags().String("until", "", "Stop the pipeline after this stage (parse, compile, execute, discover, instantiate, render, spacing)")
	validateCmd.Flags().Bool("json", false, "Print the full report as JSON")
	validateCmd.Flags().String("svg", "", "Write the rendered schematic SVG to a file")
}
