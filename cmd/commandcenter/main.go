package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "commandcenter",
	Short: "Multi-account Google dashboard backend",
	Long: `Command Center connects several Google accounts and serves their
mail, calendar, contacts and Drive files merged into one JSON API.

Running without a subcommand starts the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to commandcenter.yaml (default $CC_CONFIG or ./commandcenter.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
