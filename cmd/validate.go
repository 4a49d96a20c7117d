package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/tabledrift/database"
	"github.com/ridoystarlord/tabledrift/engine"
)

var validateTable string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate pending migrations without executing them",
	Long: `Generate the migration for a table and run the full validation
pipeline: structure checks, SQL checks, data loss analysis and rollback
assessment. Nothing is written to the database.

Examples:
  tabledrift validate --table users
`,
	Run: func(cmd *cobra.Command, args []string) {
		if validateTable == "" {
			fmt.Println("❌ --table is required")
			os.Exit(1)
		}

		app, err := newApp()
		if err != nil {
			fmt.Println("❌", err)
			os.Exit(1)
		}
		defer database.ClosePool()

		preview, err := app.engine.DryRun(context.Background(), validateTable, engine.DefaultOptions())
		if err != nil {
			fmt.Println("❌ Validation failed:", err)
			os.Exit(1)
		}

		if preview.Diff == nil {
			fmt.Printf("✅ %s: no schema changes detected\n", validateTable)
			return
		}

		fmt.Printf("📋 Validation for %s\n", validateTable)
		fmt.Println("\nSQL to be executed:")
		for _, sql := range preview.SQL {
			fmt.Println("   ", sql)
		}

		report := preview.Report
		fmt.Printf("\nScore: %d/100\n", report.Score)
		for _, e := range report.Errors {
			color.Red("❌ %s", e)
		}
		for _, w := range report.Warnings {
			color.Yellow("⚠️  %s", w)
		}
		for _, r := range report.Recommendations {
			fmt.Println("💡", r)
		}

		if len(preview.Risks) > 0 {
			fmt.Println("\nData loss risks:")
			for _, risk := range preview.Risks {
				color.Red("   [%s] %s", risk.Severity, risk.Description)
				for _, m := range risk.Mitigation {
					fmt.Println("      💡", m)
				}
			}
		}

		if preview.Rollback != nil {
			if preview.Rollback.Possible {
				fmt.Printf("\nRollback: possible (%s)\n", preview.Rollback.Difficulty)
			} else {
				color.Red("\nRollback: not possible")
				for _, b := range preview.Rollback.Blockers {
					color.Red("   - %s", b)
				}
			}
		}

		if report.Valid {
			fmt.Println("\n✅ Migration is valid")
		} else {
			fmt.Println("\n❌ Migration failed validation")
			os.Exit(1)
		}
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateTable, "table", "", "Table whose pending migration should be validated")
}
