package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/tabledrift/database"
	"github.com/ridoystarlord/tabledrift/schema"
)

var (
	backupTable     string
	backupType      string
	backupColumn    string
	backupSince     time.Duration
	backupRetention time.Duration
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list and clean up table backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a backup of a table",
	Long: `Create a checksummed JSON backup of a table's structure and data.

Examples:
  tabledrift backup create --table users
  tabledrift backup create --table users --type COLUMN --column email
  tabledrift backup create --table users --type INCREMENTAL --since 24h
`,
	Run: func(cmd *cobra.Command, args []string) {
		if backupTable == "" {
			fmt.Println("❌ --table is required")
			os.Exit(1)
		}

		app, err := newApp()
		if err != nil {
			fmt.Println("❌", err)
			os.Exit(1)
		}
		defer database.ClosePool()

		ctx := context.Background()
		var info *schema.BackupInfo
		switch schema.BackupType(backupType) {
		case schema.BackupFull, schema.BackupSchema:
			info, err = app.backups.Create(ctx, backupTable, schema.BackupType(backupType))
		case schema.BackupColumn:
			if backupColumn == "" {
				fmt.Println("❌ --column is required for COLUMN backups")
				os.Exit(1)
			}
			info, err = app.backups.CreateColumn(ctx, backupTable, backupColumn)
		case schema.BackupIncremental:
			info, err = app.backups.CreateIncremental(ctx, backupTable, time.Now().Add(-backupSince))
		default:
			fmt.Println("❌ Unknown backup type:", backupType)
			os.Exit(1)
		}
		if err != nil {
			fmt.Println("❌ Backup failed:", err)
			os.Exit(1)
		}

		fmt.Printf("✅ Backup created: %s (%d record(s), %d bytes)\n", info.Path, info.RecordCount, info.Size)
		fmt.Println("   checksum:", info.Checksum)
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List existing backups",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fmt.Println("❌", err)
			os.Exit(1)
		}
		defer database.ClosePool()

		backups, err := app.backups.List()
		if err != nil {
			fmt.Println("❌ Listing backups failed:", err)
			os.Exit(1)
		}
		if len(backups) == 0 {
			fmt.Println("📋 No backups found")
			return
		}

		fmt.Println("📋 Backups")
		for _, b := range backups {
			fmt.Printf("   %s  %-12s %-6s %d record(s)  %s\n",
				b.CreatedAt.Format("2006-01-02 15:04:05"), b.Table, b.Type, b.RecordCount, b.Path)
		}
	},
}

var backupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete backups older than the retention window",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fmt.Println("❌", err)
			os.Exit(1)
		}
		defer database.ClosePool()

		removed, err := app.backups.CleanupOld(backupRetention)
		if err != nil {
			fmt.Println("❌ Cleanup failed:", err)
			os.Exit(1)
		}
		fmt.Printf("✅ Removed %d old backup(s)\n", removed)
	},
}

func init() {
	backupCreateCmd.Flags().StringVar(&backupTable, "table", "", "Table to back up")
	backupCreateCmd.Flags().StringVar(&backupType, "type", string(schema.BackupFull), "Backup type: FULL, COLUMN, SCHEMA or INCREMENTAL")
	backupCreateCmd.Flags().StringVar(&backupColumn, "column", "", "Column to back up (COLUMN type only)")
	backupCreateCmd.Flags().DurationVar(&backupSince, "since", 24*time.Hour, "Age window for INCREMENTAL backups")
	backupCleanupCmd.Flags().DurationVar(&backupRetention, "retention", 30*24*time.Hour, "Delete backups older than this")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupCleanupCmd)
}
