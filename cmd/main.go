package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "prover-api",
	Short: "Migration claim prover API",
	Long:  "HTTP service that validates signed migration claims and computes their zero-knowledge proofs through a bounded worker pool",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML config file (environment and defaults only when empty)")
	rootCmd.SilenceUsage = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
