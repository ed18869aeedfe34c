// Package main provides the entry point for the bulk plasmid sequencing service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debugLogs  bool
)

var rootCmd = &cobra.Command{
	Use:   "plasmid_seq",
	Short: "Bulk plasmid sequencing run service",
	Long: `plasmid_seq stages sequencing reads and plasmid references, runs the consensus
pipeline over them and packages the results.

Settings come from built-in defaults, an optional --config file and PLASMIDSEQ_*
environment variables, in increasing order of precedence.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a yaml/json/toml settings file")
	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "Enable debug logs")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
