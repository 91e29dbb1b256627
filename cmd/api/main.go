package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "automaton-review",
	Short: "Asynchronous static-analysis and AI review service for Python source trees",
	Long: `automaton-review accepts a source tree (zip upload or GitHub clone), runs
pylint, bandit, radon and ruff over it, normalizes their findings and adds an
AI-written summary. Clients poll the job resource for the report.

Examples:
  # Run the HTTP API (default command)
  automaton-review serve --config config.yaml

  # Analyze a local directory and print the report
  automaton-review analyze ./my-project`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default $CONFIG_PATH or ./config.yaml)")
}

// resolveConfigPath keeps the CONFIG_PATH convention; no file means defaults.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
