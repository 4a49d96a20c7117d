package introspect

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ridoystarlord/tabledrift/schema"
	"github.com/ridoystarlord/tabledrift/sqlgen"
)

// Rows reads every row of a table in column order. The column list is
// returned alongside so the backup document preserves ordering.
func (in *Inspector) Rows(ctx context.Context, tableName string) ([]string, [][]any, error) {
	query := fmt.Sprintf(`SELECT * FROM %s;`, quoteIdent(tableName))
	rows, err := in.pool.Query(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("reading rows from %s: %w", tableName, err)
	}
	defer rows.Close()

	var columns []string
	for _, fd := range rows.FieldDescriptions() {
		columns = append(columns, fd.Name)
	}

	var data [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("scanning row from %s: %w", tableName, err)
		}
		data = append(data, values)
	}
	if rows.Err() != nil {
		return nil, nil, fmt.Errorf("iterating rows of %s: %w", tableName, rows.Err())
	}

	return columns, data, nil
}

// Restore drops and recreates the table from the backed-up structure,
// then bulk-inserts the saved rows. Everything runs in one transaction.
func (in *Inspector) Restore(ctx context.Context, tableName string, columns []schema.ColumnDefinition, indexes []schema.IndexDefinition, columnNames []string, data [][]any) error {
	tx, err := in.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin restore transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, quoteIdent(tableName))); err != nil {
		return fmt.Errorf("dropping %s: %w", tableName, err)
	}
	if _, err := tx.Exec(ctx, sqlgen.CreateTableSQL(tableName, columns)); err != nil {
		return fmt.Errorf("recreating %s: %w", tableName, err)
	}
	for _, idx := range indexes {
		if _, err := tx.Exec(ctx, sqlgen.CreateIndexSQL(idx)); err != nil {
			return fmt.Errorf("recreating index %s: %w", idx.Name, err)
		}
	}

	if len(data) > 0 {
		insert := buildInsert(tableName, columnNames)
		batch := &pgx.Batch{}
		for _, row := range data {
			batch.Queue(insert, row...)
		}
		results := tx.SendBatch(ctx, batch)
		for range data {
			if _, err := results.Exec(); err != nil {
				results.Close() //nolint:errcheck
				return fmt.Errorf("re-inserting rows into %s: %w", tableName, err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("closing insert batch for %s: %w", tableName, err)
		}
	}

	return tx.Commit(ctx)
}

func buildInsert(tableName string, columnNames []string) string {
	quoted := make([]string, len(columnNames))
	placeholders := make([]string, len(columnNames))
	for i, c := range columnNames {
		quoted[i] = quoteIdent(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s);`,
		quoteIdent(tableName), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}
