package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/ordpilot/internal/analytics"
	"github.com/lucasnoah/ordpilot/internal/db"
)

var analyticsSince string

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Query generation and validation analytics",
}

var analyticsOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Run counts and pass rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAnalyticsDB(func(d *db.DB) error {
			ov, err := analytics.QueryRunOverview(d, analyticsSince)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Runs:      %d\n", ov.Total)
			fmt.Fprintf(w, "Pass:      %d\n", ov.Pass)
			fmt.Fprintf(w, "Exhausted: %d\n", ov.Exhausted)
			fmt.Fprintf(w, "Failed:    %d\n", ov.Failed)
			fmt.Fprintf(w, "Active:    %d\n", ov.Active)
			fmt.Fprintf(w, "Pass rate: %.1f%%\n", ov.PassRate)
			return nil
		})
	},
}

var analyticsFailuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Failure counts by stage and by code",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAnalyticsDB(func(d *db.DB) error {
			byStage, err := analytics.QueryFailuresByStage(d, analyticsSince)
			if err != nil {
				return err
			}
			byCode, err := analytics.QueryFailuresByCode(d, analyticsSince)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "By stage:")
			printFailureCounts(cmd, byStage)
			fmt.Fprintln(w, "By code:")
			printFailureCounts(cmd, byCode)
			return nil
		})
	},
}

var analyticsAttemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "Distribution of generation attempts per finished run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAnalyticsDB(func(d *db.DB) error {
			dist, err := analytics.QueryAttemptDistribution(d, analyticsSince)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(dist) == 0 {
				fmt.Fprintln(w, "No finished runs.")
				return nil
			}
			fmt.Fprintf(w, "%-10s %-6s %s\n", "ATTEMPTS", "RUNS", "SHARE")
			for _, ad := range dist {
				fmt.Fprintf(w, "%-10d %-6d %.1f%%\n", ad.Attempts, ad.Runs, ad.Share)
			}
			return nil
		})
	},
}

var analyticsDurationsCmd = &cobra.Command{
	Use:   "durations",
	Short: "Average and percentile durations per validation stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAnalyticsDB(func(d *db.DB) error {
			durations, err := analytics.QueryStageDurations(d, analyticsSince)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(durations) == 0 {
				fmt.Fprintln(w, "No recorded stage results.")
				return nil
			}
			fmt.Fprintf(w, "%-12s %-6s %-9s %-9s %s\n", "STAGE", "RUNS", "AVG", "P50", "P95")
			for _, sd := range durations {
				fmt.Fprintf(w, "%-12s %-6d %-9s %-9s %s\n",
					sd.Stage, sd.Count, fmtMS(sd.Avg), fmtMS(sd.P50), fmtMS(sd.P95))
			}
			return nil
		})
	},
}

var analyticsTimelineCmd = &cobra.Command{
	Use:   "timeline [run-id]",
	Short: "Merged event and stage history of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAnalyticsDB(func(d *db.DB) error {
			timeline, err := analytics.QueryRunTimeline(d, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(timeline) == 0 {
				fmt.Fprintln(w, "No events recorded for this run.")
				return nil
			}
			for _, e := range timeline {
				line := fmt.Sprintf("%s  %-7s %s", e.Timestamp, e.Type, e.Event)
				if e.Attempt > 0 {
					line += fmt.Sprintf(" (attempt %d", e.Attempt)
					if e.FixRound > 0 {
						line += fmt.Sprintf(", fix %d", e.FixRound)
					}
					line += ")"
				}
				if e.Detail != "" {
					line += " - " + e.Detail
				}
				fmt.Fprintln(w, line)
			}
			return nil
		})
	},
}

// withAnalyticsDB opens the event database for one analytics query.
func withAnalyticsDB(fn func(*db.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, cleanup, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(d)
}

func printFailureCounts(cmd *cobra.Command, counts []analytics.FailureCount) {
	w := cmd.OutOrStdout()
	if len(counts) == 0 {
		fmt.Fprintln(w, "  - none")
		return
	}
	for _, fc := range counts {
		fmt.Fprintf(w, "  %-20s %d\n", fc.Key, fc.Count)
	}
}

func fmtMS(ms float64) string {
	return fmt.Sprintf("%.0fms", ms)
}

func init() {
	analyticsCmd.PersistentFlags().StringVar(&analyticsSince, "since", "", "Only count runs created at or after this timestamp (e.g. 2026-08-01)")

	analyticsCmd.AddCommand(analyticsOverviewCmd)
	analyticsCmd.AddCommand(analyticsFailuresCmd)
	analyticsCmd.AddCommand(analyticsAttemptsCmd)
	analyticsCmd.AddCommand(analyticsDurationsCmd)
	analyticsCmd.AddCommand(analyticsTimelineCmd)
}
