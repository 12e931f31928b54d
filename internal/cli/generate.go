package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/ordpilot/internal/config"
	"github.com/lucasnoah/ordpilot/internal/generate"
	"github.com/lucasnoah/ordpilot/internal/intent"
	"github.com/lucasnoah/ordpilot/internal/orchestrator"
	"github.com/lucasnoah/ordpilot/internal/retrieval"
)

var generateCmd = &cobra.Command{
	Use:   "generate [request...]",
	Short: "Generate a validated circuit from a natural-language request",
	Long: `Generate asks the configured model for ORD circuit code and validates every
candidate through the full pipeline (parse, compile, execute, discover,
instantiate, render, spacing) in isolated worker processes. Circuit failures
regenerate with failure context up to the circuit budget; spacing failures go
through deterministic layout fixes up to the spacing budget.

Question-class requests ("what does .align do?") are answered directly
instead of entering the pipeline; --force-generate overrides the classifier.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		outPath, _ := cmd.Flags().GetString("out")
		svgPath, _ := cmd.Flags().GetString("svg")
		asJSON, _ := cmd.Flags().GetBool("json")
		force, _ := cmd.Flags().GetBool("force-generate")

		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		gen, err := buildGenerator(ctx, cfg)
		if err != nil {
			return fmt.Errorf("build generator: %w", err)
		}

		index, closeIndex, err := openIndex(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "retrieval disabled: %v\n", err)
			index = nil
		} else {
			defer closeIndex()
		}

		if !force {
			if res := intent.NewClassifier(gen).Classify(ctx, query); res.Intent == intent.Question {
				return answerQuestion(cmd, cfg, gen, index, query)
			}
		}

		database, closeDB, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer closeDB()

		store, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}

		var retriever orchestrator.Retriever
		if index != nil {
			retriever = index
		}
		loop := orchestrator.NewLoop(store, database, gen, retriever, newValidator(cfg), promptLibrary(cfg), loopConfig(cfg))
		loop.SetProgress(os.Stderr)

		out, err := loop.Run(ctx, query)
		if err != nil {
			return err
		}

		if svgPath != "" && out.Report != nil && out.Report.SVG != "" {
			if err := os.WriteFile(svgPath, []byte(out.Report.SVG), 0o644); err != nil {
				return fmt.Errorf("write svg: %w", err)
			}
		}

		if asJSON {
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		} else if out.State == orchestrator.Pass {
			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(out.Code), 0o644); err != nil {
					return fmt.Errorf("write code: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "run %s passed; code written to %s\n", out.RunID, outPath)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), out.Code)
			}
		}

		if out.State != orchestrator.Pass {
			cmd.SilenceUsage = true
			detail := ""
			if out.Report != nil && out.Report.Failure != nil {
				detail = fmt.Sprintf(": last failure %s at %s", out.Report.Failure.Code, out.Report.Failure.Stage)
			}
			return fmt.Errorf("run %s exhausted after %d attempt(s)%s", out.RunID, out.Attempts, detail)
		}
		return nil
	},
}

// answerQuestion handles a question-class request with the question prompt
// and retrieved context, skipping the pipeline entirely.
func answerQuestion(cmd *cobra.Command, cfg *config.Config, gen generate.Generator, index *retrieval.Index, query string) error {
	ctx := cmd.Context()
	prompts := promptLibrary(cfg)

	var examples string
	if index != nil {
		if text, err := index.ContextFor(ctx, query, cfg.Retrieval.TopK); err == nil {
			examples = text
		}
	}

	system, err := prompts.QuestionSystem()
	if err != nil {
		return fmt.Errorf("load question system prompt: %w", err)
	}
	user, err := prompts.Question(query, examples)
	if err != nil {
		return fmt.Errorf("build question prompt: %w", err)
	}

	reply, err := gen.Generate(ctx, generate.Request{System: system, Prompt: user})
	if err != nil {
		return fmt.Errorf("answer question: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(reply))
	return nil
}

func init() {
	generateCmd.Flags().String("out", "", "Write the final code to a file instead of stdout")
	generateCmd.Flags().String("svg", "", "Write the rendered schematic SVG to a file")
	generateCmd.Flags().Bool("json", false, "Print the full outcome as JSON")
	generateCmd.Flags().Bool("force-generate", false, "Skip intent classification and always generate")
}
