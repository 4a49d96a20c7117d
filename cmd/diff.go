package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/tabledrift/compare"
	"github.com/ridoystarlord/tabledrift/database"
	"github.com/ridoystarlord/tabledrift/schema"
)

var diffTable string

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show structural differences between the schema file and the database",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fmt.Println("❌", err)
			os.Exit(1)
		}
		defer database.ClosePool()

		ctx := context.Background()
		comparator := compare.New(app.inspector, nil)
		opts := compare.Options{AnalyzeDataMigration: true, ValidateTypeCompatibility: true}

		tables := app.provider.TableNames()
		if diffTable != "" {
			tables = []string{diffTable}
		}

		drift := false
		for _, name := range tables {
			declared, err := app.provider.DeclaredTable(name)
			if err != nil {
				fmt.Println("❌", err)
				os.Exit(1)
			}
			exists, err := app.inspector.TableExists(ctx, name)
			if err != nil {
				fmt.Println("❌ Diff failed:", err)
				os.Exit(1)
			}
			if !exists {
				color.Yellow("⚠️  %s: table does not exist", name)
				continue
			}
			diff, err := comparator.Compare(ctx, declared, opts)
			if err != nil {
				fmt.Println("❌ Diff failed:", err)
				os.Exit(1)
			}
			if diff.Empty() {
				fmt.Printf("✅ %s: no changes\n", name)
				continue
			}
			drift = true
			printDiff(diff)
		}
		if drift {
			os.Exit(1)
		}
	},
}

func init() {
	diffCmd.Flags().StringVar(&diffTable, "table", "", "Diff only this table")
}

func printDiff(diff *schema.SchemaDiff) {
	fmt.Printf("📋 %s\n", diff.Table)
	for _, col := range diff.AddedColumns {
		color.Green("   + column %s %s", col.Name, col.Type)
	}
	for _, col := range diff.RemovedColumns {
		color.Red("   - column %s %s", col.Name, col.Type)
	}
	for _, rc := range diff.RenamedColumns {
		color.Cyan("   ~ column %s renamed to %s", rc.From, rc.To)
	}
	for _, fc := range diff.ModifiedColumns {
		for attr, change := range fc.Changes {
			color.Yellow("   ~ column %s: %s %v -> %v", fc.Fieldname, attr, change.From, change.To)
		}
		if fc.Destructive {
			color.Red("     ⚠️  destructive change")
		}
	}
	for _, idx := range diff.AddedIndexes {
		color.Green("   + index %s", idx.Name)
	}
	for _, idx := range diff.RemovedIndexes {
		color.Red("   - index %s", idx.Name)
	}
}
