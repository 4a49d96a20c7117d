package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/tabledrift/database"
	"github.com/ridoystarlord/tabledrift/engine"
)

var (
	migrateTable    string
	migrateDryRun   bool
	migrateForce    bool
	migrateBackup   bool
	migrateContinue bool
	migrateTimeout  time.Duration
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema changes to bring tables in line with the schema file",
	Long: `Compare declared tables against the live database and apply the
generated migration SQL.

Examples:
  tabledrift migrate                         # Migrate every declared table
  tabledrift migrate --table users           # Migrate one table
  tabledrift migrate --dry-run               # Preview without applying
  tabledrift migrate --backup                # Back up before destructive changes
  tabledrift migrate --force                 # Skip the destructive-change guard
`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fmt.Println("❌", err)
			os.Exit(1)
		}
		defer database.ClosePool()

		opts := engine.DefaultOptions()
		opts.DryRun = migrateDryRun
		opts.Force = migrateForce
		opts.Backup = migrateBackup
		opts.ContinueOnError = migrateContinue
		opts.Timeout = migrateTimeout

		ctx := context.Background()

		if migrateTable != "" {
			result, err := app.engine.Execute(ctx, migrateTable, opts)
			if err != nil {
				fmt.Println("❌ Migration failed:", err)
				os.Exit(1)
			}
			printMigrationResult(result)
			if !result.Success {
				os.Exit(1)
			}
			return
		}

		batch, err := app.engine.ExecuteAll(ctx, opts)
		if err != nil {
			fmt.Println("❌ Migration failed:", err)
			os.Exit(1)
		}
		for i := range batch.Results {
			printMigrationResult(&batch.Results[i])
		}
		fmt.Printf("\n📊 %d table(s): %d migrated, %d failed, %d skipped\n",
			batch.Total, batch.Succeeded, batch.Failed, batch.Skipped)
		if !batch.Success {
			os.Exit(1)
		}
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateTable, "table", "", "Migrate only this table")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Preview the SQL that would be executed without applying it")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "Apply destructive changes without a backup")
	migrateCmd.Flags().BoolVar(&migrateBackup, "backup", false, "Create a full table backup before destructive changes")
	migrateCmd.Flags().BoolVar(&migrateContinue, "continue-on-error", false, "Attempt every statement instead of stopping at the first failure")
	migrateCmd.Flags().DurationVar(&migrateTimeout, "timeout", 0, "Abort the migration after this long (0 = no limit)")
}

func printMigrationResult(result *engine.MigrationResult) {
	if result.Success {
		if len(result.SQL) == 0 {
			fmt.Printf("✅ %s: up to date\n", result.Table)
		} else {
			fmt.Printf("✅ %s: %d statement(s)", result.Table, len(result.SQL))
			if result.ExecutionTime > 0 {
				fmt.Printf(" in %s", result.ExecutionTime.Round(time.Millisecond))
			}
			fmt.Println()
		}
	} else {
		color.Red("❌ %s: migration failed", result.Table)
	}

	for _, sql := range result.SQL {
		fmt.Println("   ", sql)
	}
	if result.BackupPath != "" {
		fmt.Println("   💾 backup:", result.BackupPath)
	}
	for _, w := range result.Warnings {
		color.Yellow("   ⚠️  %s", w)
	}
	for _, e := range result.Errors {
		color.Red("   ❌ %s", e)
	}
}
