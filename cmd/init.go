package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new tabledrift project",
	Long: `Create a starter schema.yaml in the current directory.

Examples:
  tabledrift init
`,
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(schemaFile); err == nil {
			fmt.Printf("❌ %s already exists!\n", schemaFile)
			return
		}

		content := `# Declared table schemas. Field types map to Postgres types:
# text -> varchar, int -> bigint, float -> numeric, check -> boolean,
# date, datetime, long_text, json.
tables:
  - name: tabusers
    fields:
      - name: email
        type: text
        length: 140
        required: true
        unique: true
      - name: full_name
        type: text
        length: 200
        indexed: true
      - name: active
        type: check
        default: "1"
      - name: balance
        type: float
        precision: 2
      - name: joined_on
        type: date
    indexes:
      - name: idx_tabusers_email_active
        columns: [email, active]
`
		if err := os.WriteFile(schemaFile, []byte(content), 0644); err != nil {
			fmt.Println("❌ Failed to create schema file:", err)
			os.Exit(1)
		}

		fmt.Printf("✅ Created %s\n", schemaFile)
		fmt.Println("📋 Next steps:")
		fmt.Println("   1. Set DATABASE_URL in your environment or a .env file")
		fmt.Println("   2. Edit", schemaFile, "to describe your tables")
		fmt.Println("   3. Run: tabledrift diff")
		fmt.Println("   4. Run: tabledrift migrate")
	},
}
