package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/tabledrift/database"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration state for every declared table",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fmt.Println("❌", err)
			os.Exit(1)
		}
		defer database.ClosePool()

		ctx := context.Background()

		fmt.Println("📋 Migration status")
		for _, name := range app.provider.TableNames() {
			exists, err := app.inspector.TableExists(ctx, name)
			if err != nil {
				fmt.Println("❌ Status error:", err)
				os.Exit(1)
			}
			if !exists {
				color.Yellow("   %s: table does not exist", name)
				continue
			}

			stats, err := app.history.Stats(ctx, name)
			if err != nil {
				fmt.Println("❌ Status error:", err)
				os.Exit(1)
			}
			failed, err := app.history.HasUnresolvedFailure(ctx, name)
			if err != nil {
				fmt.Println("❌ Status error:", err)
				os.Exit(1)
			}

			switch {
			case failed:
				color.Red("   %s: last attempt FAILED (%d applied, %d failed)", name, stats.Applied, stats.Failed)
			case stats.Total == 0:
				fmt.Printf("   %s: no migrations recorded\n", name)
			default:
				fmt.Printf("   %s: %d applied, %d failed, %d rolled back (last %s)\n",
					name, stats.Applied, stats.Failed, stats.RolledBack,
					stats.LastMigration.Format(time.RFC3339))
			}
		}
	},
}
