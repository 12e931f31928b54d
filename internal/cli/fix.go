package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/ordpilot/internal/config"
	"github.com/lucasnoah/ordpilot/internal/ord"
	"github.com/lucasnoah/ordpilot/internal/orchestrator"
)

var fixCmd = &cobra.Command{
	Use:   "fix [file]",
	Short: "Repair spacing violations in an existing .ord file",
	Long: `Fix validates a file and, when the only problem is spacing, applies the
deterministic layout-fix rounds (position shifts, alignment snaps, route
directives) and re-checks the render and spacing stages after each round.
Circuit-class failures are reported unchanged; fix never regenerates code.

When the fixer gives up, the remaining violations are printed as feedback a
model could act on.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inPlace, _ := cmd.Flags().GetBool("in-place")
		outPath, _ := cmd.Flags().GetString("out")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		source, err := readSource(args)
		if err != nil {
			return err
		}
		if inPlace && (len(args) == 0 || args[0] == "-") {
			return fmt.Errorf("--in-place needs a file argument")
		}

		host := newValidator(cfg)
		host.SetProgress(os.Stderr)
		res, err := orchestrator.FixLayout(cmd.Context(), host, source, loopConfig(cfg))
		if err != nil {
			return err
		}

		if asJSON {
			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		}

		w := cmd.OutOrStdout()
		switch {
		case res.Passed && len(res.Rounds) == 0:
			if !asJSON {
				fmt.Fprintln(w, "No spacing violations; file passes as-is.")
			}
			return nil

		case res.Passed:
			target := outPath
			if inPlace {
				target = args[0]
			}
			if target != "" {
				if err := os.WriteFile(target, []byte(res.Source), 0o644); err != nil {
					return fmt.Errorf("write fixed source: %w", err)
				}
				if !asJSON {
					fmt.Fprintf(w, "Fixed in %d round(s); written to %s\n", len(res.Rounds), target)
				}
			} else if !asJSON {
				fmt.Fprint(w, res.Source)
			}
			return nil

		default:
			cmd.SilenceUsage = true
			if res.Report != nil && res.Report.Failure != nil && !asJSON {
				f := res.Report.Failure
				fmt.Fprintf(w, "Unfixed: %s at %s: %s\n", f.Code, f.Stage, f.Message)
				if feedback := spacingFeedback(cfg, res); feedback != "" {
					fmt.Fprintln(w)
					fmt.Fprintln(w, feedback)
				}
			}
			if res.Infeasible {
				return fmt.Errorf("layout fix infeasible after %d round(s)", len(res.Rounds))
			}
			return fmt.Errorf("file still failing after %d fix round(s)", len(res.Rounds))
		}
	},
}

// spacingFeedback renders the remaining violations and the edits already
// tried, for handing to a model (or a human) once the deterministic fixer
// has given up.
func spacingFeedback(cfg *config.Config, res *orchestrator.FixResult) string {
	f := res.Report.Failure
	if len(f.Violations) == 0 {
		return ""
	}
	var violations []string
	for _, v := range f.Violations {
		violations = append(violations, v.Message)
	}
	var edits []string
	for _, round := range res.Rounds {
		for _, e := range round.Edits {
			edits = append(edits, describeEdit(e))
		}
	}
	text, err := promptLibrary(cfg).SpacingFeedback(violations, edits, int(cfg.Validation.MinGap))
	if err != nil {
		return ""
	}
	return text
}

// describeEdit renders one layout edit as a short human-readable line.
func describeEdit(e ord.Edit) string {
	switch e.Kind {
	case ord.EditPosition:
		return fmt.Sprintf("moved %s to (%d, %d)", e.Element, e.X, e.Y)
	case ord.EditAlign:
		return fmt.Sprintf("aligned %s to %s", e.Element, e.Align)
	case ord.EditRoute:
		return fmt.Sprintf("disabled auto-routing for %s", e.Element)
	}
	return string(e.Kind) + " " + e.Element
}

func init() {
	fixCmd.Flags().Bool("in-place", false, "Overwrite the input file with the fixed source")
	fixCmd.Flags().String("out", "", "Write the fixed source to a file")
	fixCmd.Flags().Bool("json", false, "Print the fix session as JSON")
}
