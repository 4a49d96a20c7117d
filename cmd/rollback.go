package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/tabledrift/database"
	"github.com/ridoystarlord/tabledrift/engine"
)

var (
	rollbackTable   string
	rollbackDryRun  bool
	rollbackForce   bool
	rollbackTimeout time.Duration
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Undo the most recent applied migration for a table",
	Long: `Execute the stored rollback statements of the latest applied
migration and mark it as rolled back.

Examples:
  tabledrift rollback --table users
  tabledrift rollback --table users --dry-run
  tabledrift rollback --table users --force   # Attempt even when full restore is not possible
`,
	Run: func(cmd *cobra.Command, args []string) {
		if rollbackTable == "" {
			fmt.Println("❌ --table is required")
			os.Exit(1)
		}

		app, err := newApp()
		if err != nil {
			fmt.Println("❌", err)
			os.Exit(1)
		}
		defer database.ClosePool()

		opts := engine.DefaultOptions()
		opts.DryRun = rollbackDryRun
		opts.Force = rollbackForce
		opts.Timeout = rollbackTimeout

		result, err := app.engine.Rollback(context.Background(), rollbackTable, opts)
		if err != nil {
			fmt.Println("❌ Rollback failed:", err)
			os.Exit(1)
		}
		printMigrationResult(result)
		if !result.Success {
			os.Exit(1)
		}
	},
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackTable, "table", "", "Table to roll back")
	rollbackCmd.Flags().BoolVar(&rollbackDryRun, "dry-run", false, "Preview the rollback SQL without executing it")
	rollbackCmd.Flags().BoolVar(&rollbackForce, "force", false, "Attempt rollback even when it cannot restore the previous state")
	rollbackCmd.Flags().DurationVar(&rollbackTimeout, "timeout", 0, "Abort the rollback after this long (0 = no limit)")
}
