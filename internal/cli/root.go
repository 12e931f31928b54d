package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ordpilot",
	Short: "ordpilot - validated ORD circuit generation",
	Long: `ordpilot turns natural-language requests into ORD circuit code and proves
each candidate usable before showing it: parse, compile, execute, discover,
instantiate, render, and a deterministic spacing check, all run in isolated
worker processes with bounded retries.

State lives in ~/.ordpilot/ (SQLite for events, JSON for run artifacts).
Configuration is read from ordpilot.yaml or ~/.ordpilot/config.yaml.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: ordpilot.yaml, ~/.ordpilot/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
