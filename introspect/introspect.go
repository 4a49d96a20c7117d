package introspect

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ridoystarlord/tabledrift/schema"
)

// Inspector reads live table metadata out of the database catalog.
type Inspector struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Inspector {
	return &Inspector{pool: pool}
}

func (in *Inspector) TableExists(ctx context.Context, tableName string) (bool, error) {
	var exists bool
	err := in.pool.QueryRow(ctx, `
	SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1 AND table_type = 'BASE TABLE'
	);`, tableName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", tableName, err)
	}
	return exists, nil
}

func (in *Inspector) Columns(ctx context.Context, tableName string) ([]schema.ColumnDefinition, error) {
	columnsQuery := `
	SELECT
		c.column_name,
		c.data_type,
		(c.is_nullable = 'YES') as is_nullable,
		c.column_default,
		COALESCE(c.character_maximum_length, 0),
		COALESCE(c.numeric_scale, 0),
		(CASE WHEN tc.constraint_type = 'PRIMARY KEY' THEN true ELSE false END) as is_primary,
		(CASE WHEN tc.constraint_type = 'UNIQUE' THEN true ELSE false END) as is_unique
	FROM information_schema.columns c
	LEFT JOIN information_schema.key_column_usage kcu
		ON c.table_name = kcu.table_name AND c.column_name = kcu.column_name
	LEFT JOIN information_schema.table_constraints tc
		ON kcu.constraint_name = tc.constraint_name AND kcu.table_name = tc.table_name
	WHERE c.table_schema = 'public' AND c.table_name = $1
	ORDER BY c.ordinal_position;
	`

	rows, err := in.pool.Query(ctx, columnsQuery, tableName)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()

	var columns []schema.ColumnDefinition
	for rows.Next() {
		var col schema.ColumnDefinition
		var dataType string
		if err := rows.Scan(
			&col.Name,
			&dataType,
			&col.Nullable,
			&col.Default,
			&col.Length,
			&col.Precision,
			&col.Primary,
			&col.Unique,
		); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		col.Type = normalizeType(dataType, col.Length, col.Precision)
		col.AutoIncrement = col.Default != nil && strings.HasPrefix(*col.Default, "nextval(")
		columns = append(columns, col)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterating column rows: %w", rows.Err())
	}

	return columns, nil
}

func (in *Inspector) Indexes(ctx context.Context, tableName string) ([]schema.IndexDefinition, error) {
	indexesQuery := `
	SELECT
		i.indexname,
		i.tablename,
		array_to_string(array_agg(a.attname ORDER BY array_position(idx.indkey, a.attnum)), ',') as column_names,
		idx.indisunique,
		am.amname as index_type
	FROM pg_indexes i
	JOIN pg_class c ON c.relname = i.indexname
	JOIN pg_index idx ON idx.indexrelid = c.oid
	JOIN pg_attribute a ON a.attrelid = idx.indrelid AND a.attnum = ANY(idx.indkey)
	JOIN pg_am am ON am.oid = c.relam
	WHERE i.tablename = $1 AND i.schemaname = 'public' AND NOT idx.indisprimary
	GROUP BY i.indexname, i.tablename, idx.indisunique, am.amname
	ORDER BY i.indexname;
	`

	rows, err := in.pool.Query(ctx, indexesQuery, tableName)
	if err != nil {
		return nil, fmt.Errorf("querying indexes: %w", err)
	}
	defer rows.Close()

	var indexes []schema.IndexDefinition
	for rows.Next() {
		var idx schema.IndexDefinition
		var columnNames string
		if err := rows.Scan(
			&idx.Name,
			&idx.Table,
			&columnNames,
			&idx.Unique,
			&idx.Type,
		); err != nil {
			return nil, fmt.Errorf("scanning index: %w", err)
		}
		idx.Columns = splitColumnList(columnNames)
		indexes = append(indexes, idx)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterating index rows: %w", rows.Err())
	}

	return indexes, nil
}

func (in *Inspector) ForeignKeys(ctx context.Context, tableName string) ([]schema.ForeignKey, error) {
	foreignKeysQuery := `
	SELECT
		kcu.column_name,
		ccu.table_name AS foreign_table_name,
		ccu.column_name AS foreign_column_name,
		rc.delete_rule,
		rc.update_rule
	FROM information_schema.table_constraints AS tc
	JOIN information_schema.key_column_usage AS kcu
		ON tc.constraint_name = kcu.constraint_name
		AND tc.table_schema = kcu.table_schema
	JOIN information_schema.constraint_column_usage AS ccu
		ON ccu.constraint_name = tc.constraint_name
		AND ccu.table_schema = tc.table_schema
	LEFT JOIN information_schema.referential_constraints AS rc
		ON tc.constraint_name = rc.constraint_name
	WHERE tc.constraint_type = 'FOREIGN KEY'
		AND tc.table_schema = 'public'
		AND tc.table_name = $1;
	`

	rows, err := in.pool.Query(ctx, foreignKeysQuery, tableName)
	if err != nil {
		return nil, fmt.Errorf("querying foreign keys: %w", err)
	}
	defer rows.Close()

	var foreignKeys []schema.ForeignKey
	for rows.Next() {
		var fk schema.ForeignKey
		var columnName string
		if err := rows.Scan(
			&columnName,
			&fk.ReferencesTable,
			&fk.ReferencesColumn,
			&fk.OnDelete,
			&fk.OnUpdate,
		); err != nil {
			return nil, fmt.Errorf("scanning foreign key: %w", err)
		}
		foreignKeys = append(foreignKeys, fk)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterating foreign key rows: %w", rows.Err())
	}

	return foreignKeys, nil
}

func (in *Inspector) RowCount(ctx context.Context, tableName string) (int, error) {
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s;`, quoteIdent(tableName))
	if err := in.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", tableName, err)
	}
	return count, nil
}

// OversizedValueCount reports how many rows hold a value in the column
// longer than maxLength. Used to estimate rows affected by a narrowing.
func (in *Inspector) OversizedValueCount(ctx context.Context, tableName, columnName string, maxLength int) (int, error) {
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE length(%s::text) > $1;`,
		quoteIdent(tableName), quoteIdent(columnName))
	if err := in.pool.QueryRow(ctx, query, maxLength).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting oversized values in %s.%s: %w", tableName, columnName, err)
	}
	return count, nil
}

func normalizeType(dataType string, length, precision int) string {
	switch schema.BaseType(dataType) {
	case "varchar":
		if length > 0 {
			return fmt.Sprintf("varchar(%d)", length)
		}
		return "varchar"
	case "numeric":
		if precision > 0 {
			return fmt.Sprintf("numeric(21,%d)", precision)
		}
		return "numeric"
	default:
		return schema.BaseType(dataType)
	}
}

func splitColumnList(raw string) []string {
	columns := strings.Split(raw, ",")
	for i, col := range columns {
		columns[i] = strings.TrimSpace(col)
	}
	return columns
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
