// Package cli implements the akiba command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/akiba-network/akiba/internal/daemon"
)

// Version is set at build time via -ldflags.
var Version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "akiba",
	Short: "Akiba savings & chama engine",
	Long: `Akiba is the savings-goal and group-contribution engine behind a
WhatsApp Bitcoin SACCO. It tracks personal savings goals with milestone
celebrations, pooled chama accounts with contribution rules, and runs the
recurring jobs (reminders, sweeps, price refresh) that keep both moving.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", daemon.DefaultPath(), "path to config.toml")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the engine version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "akiba %s\n", Version)
	},
}

// ─── config ─────────────────────────────────────────────────────────────────

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage engine configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := daemon.WriteDefault(configPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "wrote %s\n", configPath)
		return nil
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
