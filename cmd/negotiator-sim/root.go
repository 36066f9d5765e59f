package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "negotiator-sim",
	Short: "Negotiator-sim runs negotiation component trees against each other",
	Long: `Negotiator-sim loads declarative component trees for providers and
requestors, negotiates them pairwise under a deterministic virtual clock, and
prints the resulting transcripts.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("workdir", "", "Root directory for per-instance state (empty disables persistence)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
}
