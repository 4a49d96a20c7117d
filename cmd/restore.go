package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/tabledrift/database"
)

var restoreFile string

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a table from a backup file",
	Long: `Verify a backup file's checksum and restore the table it holds.
The table is dropped and recreated with the backed up structure and data.

Examples:
  tabledrift restore --file backups/users_FULL_20250101_120000.json
`,
	Run: func(cmd *cobra.Command, args []string) {
		if restoreFile == "" {
			fmt.Println("❌ --file is required")
			os.Exit(1)
		}

		app, err := newApp()
		if err != nil {
			fmt.Println("❌", err)
			os.Exit(1)
		}
		defer database.ClosePool()

		result, err := app.backups.Restore(context.Background(), restoreFile)
		if err != nil {
			fmt.Println("❌ Restore failed:", err)
			os.Exit(1)
		}

		fmt.Printf("✅ Restored %s from %s (%d record(s))\n",
			result.Info.Table, restoreFile, result.Info.RecordCount)
		for _, w := range result.Warnings {
			color.Yellow("⚠️  %s", w)
		}
	},
}

func init() {
	restoreCmd.Flags().StringVar(&restoreFile, "file", "", "Backup file to restore from")
}
