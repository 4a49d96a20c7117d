package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/tabledrift/database"
	"github.com/ridoystarlord/tabledrift/schema"
)

var (
	historyLimit    int
	historyTable    string
	historyDetailed bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show detailed migration history",
	Long: `Show migration attempts with timestamps, execution times and user
information, newest first.

Examples:
  tabledrift history                    # Show all migration history
  tabledrift history --limit 10         # Show last 10 attempts
  tabledrift history --table users      # Show attempts for one table
  tabledrift history --detailed         # Show SQL and environment details
`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fmt.Println("❌", err)
			os.Exit(1)
		}
		defer database.ClosePool()

		attempts, err := app.history.History(context.Background(), historyTable, historyLimit)
		if err != nil {
			fmt.Println("❌ Error getting migration history:", err)
			os.Exit(1)
		}

		if len(attempts) == 0 {
			fmt.Println("📋 No migration history found")
			return
		}

		fmt.Println("📋 Migration History")
		fmt.Println(strings.Repeat("=", 60))
		for _, a := range attempts {
			printAttempt(a, historyDetailed)
		}
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Maximum number of attempts to show (0 = all)")
	historyCmd.Flags().StringVar(&historyTable, "table", "", "Show attempts for this table only")
	historyCmd.Flags().BoolVar(&historyDetailed, "detailed", false, "Show SQL, rollback and environment details")
}

func printAttempt(a schema.AppliedMigration, detailed bool) {
	fmt.Printf("\n%s %s  %s  %s\n",
		statusIcon(a.Status), a.AppliedAt.Format("2006-01-02 15:04:05"), a.Table, statusColor(a.Status))
	fmt.Printf("   id: %s  version: %s  by: %s\n", a.ID, a.Version, a.AppliedBy)
	if a.ExecutionTime > 0 {
		fmt.Printf("   took %s, %d row(s) affected\n", a.ExecutionTime.Round(time.Millisecond), a.AffectedRows)
	}
	if a.Destructive {
		color.Yellow("   ⚠️  destructive")
	}
	if a.BackupPath != "" {
		fmt.Println("   💾 backup:", a.BackupPath)
	}
	if a.Error != "" {
		color.Red("   error: %s", a.Error)
	}
	if detailed {
		for _, sql := range a.ForwardSQL {
			fmt.Println("      ", sql)
		}
		if len(a.RollbackSQL) > 0 {
			fmt.Println("   rollback:")
			for _, sql := range a.RollbackSQL {
				fmt.Println("      ", sql)
			}
		}
		if host, ok := a.Environment["hostname"]; ok {
			fmt.Println("   host:", host)
		}
	}
}

func statusIcon(status schema.MigrationStatus) string {
	switch status {
	case schema.StatusApplied:
		return "✅"
	case schema.StatusFailed:
		return "❌"
	case schema.StatusRolledBack:
		return "↩️"
	default:
		return "🕒"
	}
}

func statusColor(status schema.MigrationStatus) string {
	switch status {
	case schema.StatusApplied:
		return color.GreenString(string(status))
	case schema.StatusFailed:
		return color.RedString(string(status))
	case schema.StatusRolledBack:
		return color.CyanString(string(status))
	default:
		return color.YellowString(string(status))
	}
}
