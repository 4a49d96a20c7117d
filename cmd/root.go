package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var schemaFile string

var rootCmd = &cobra.Command{
	Use:   "tabledrift",
	Short: "Schema drift detection and migration for Postgres",
	Long: `tabledrift compares a declarative schema file against the live
database, generates the SQL to close the gap, and applies it safely.

Examples:

  tabledrift init
  tabledrift diff --table users
  tabledrift migrate --dry-run
  tabledrift migrate --backup
  tabledrift rollback --table users
`,
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("❌", err)
		os.Exit(1)
	}
}

// Register subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&schemaFile, "schema", "schema.yaml", "Path to the declarative schema file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(healthCmd)
}
