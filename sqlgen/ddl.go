package sqlgen

import (
	"fmt"
	"strings"

	"github.com/ridoystarlord/tabledrift/schema"
)

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ColumnDDL renders the column clause used inside CREATE TABLE and
// ADD COLUMN statements.
func ColumnDDL(col schema.ColumnDefinition) string {
	ddl := fmt.Sprintf(`%s %s`, quoteIdent(col.Name), col.Type)
	if col.Primary {
		ddl += " PRIMARY KEY"
	}
	if col.Unique && !col.Primary {
		ddl += " UNIQUE"
	}
	if !col.Nullable && !col.Primary {
		ddl += " NOT NULL"
	}
	if col.Default != nil {
		ddl += fmt.Sprintf(" DEFAULT %s", renderDefault(*col.Default))
	}
	if col.Check != "" {
		ddl += fmt.Sprintf(" CHECK (%s)", col.Check)
	}
	if col.ForeignKey != nil {
		fk := col.ForeignKey
		ddl += fmt.Sprintf(" REFERENCES %s (%s)", quoteIdent(fk.ReferencesTable), quoteIdent(fk.ReferencesColumn))
		if fk.OnDelete != "" {
			ddl += fmt.Sprintf(" ON DELETE %s", fk.OnDelete)
		}
		if fk.OnUpdate != "" {
			ddl += fmt.Sprintf(" ON UPDATE %s", fk.OnUpdate)
		}
	}
	return ddl
}

func CreateTableSQL(tableName string, columns []schema.ColumnDefinition) string {
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = ColumnDDL(col)
	}
	return fmt.Sprintf(`CREATE TABLE %s (%s);`, quoteIdent(tableName), strings.Join(parts, ", "))
}

func CreateIndexSQL(idx schema.IndexDefinition) string {
	stmt := "CREATE"
	if idx.Unique {
		stmt += " UNIQUE"
	}
	stmt += fmt.Sprintf(` INDEX %s ON %s`, quoteIdent(idx.Name), quoteIdent(idx.Table))
	if idx.Type != "" && idx.Type != "btree" {
		stmt += fmt.Sprintf(" USING %s", idx.Type)
	}
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = quoteIdent(c)
	}
	stmt += fmt.Sprintf(" (%s)", strings.Join(cols, ", "))
	if idx.Where != "" {
		stmt += fmt.Sprintf(" WHERE %s", idx.Where)
	}
	return stmt + ";"
}

func DropIndexSQL(name string) string {
	return fmt.Sprintf(`DROP INDEX IF EXISTS %s;`, quoteIdent(name))
}

// renderDefault quotes string defaults; function calls and numerics go
// through unchanged.
func renderDefault(v string) string {
	if v == "" {
		return "''"
	}
	if strings.HasSuffix(v, ")") || strings.HasPrefix(v, "'") {
		return v
	}
	if isNumeric(v) || isKeywordDefault(v) {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func isNumeric(v string) bool {
	dot := false
	for i, r := range v {
		switch {
		case r >= '0' && r <= '9':
		case r == '-' && i == 0:
		case r == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return len(v) > 0
}

func isKeywordDefault(v string) bool {
	switch strings.ToUpper(v) {
	case "TRUE", "FALSE", "NULL", "CURRENT_TIMESTAMP", "CURRENT_DATE":
		return true
	}
	return false
}
