package sqlgen

import (
	"fmt"
	"time"

	"github.com/ridoystarlord/tabledrift/schema"
)

type StatementKind string

const (
	KindAddColumn    StatementKind = "add_column"
	KindDropColumn   StatementKind = "drop_column"
	KindAlterColumn  StatementKind = "alter_column"
	KindRenameColumn StatementKind = "rename_column"
	KindCreateIndex  StatementKind = "create_index"
	KindDropIndex    StatementKind = "drop_index"
	KindRebuild      StatementKind = "rebuild_table"
)

type Statement struct {
	SQL         string        `json:"sql"`
	Kind        StatementKind `json:"kind"`
	Destructive bool          `json:"destructive"`
	Table       string        `json:"table"`
	Comment     string        `json:"comment"`
}

// Batch is an ordered forward plan plus its inverse. Rollback statements
// are already listed in application order (the reverse of forward order).
type Batch struct {
	Table          string
	Statements     []Statement
	Rollback       []Statement
	Destructive    bool
	RequiresBackup bool
	Warnings       []string
	EstimatedTime  time.Duration
}

// Coarse per-statement cost estimates. A rebuild copies the whole table,
// index creation scans it, a simple alter only touches the catalog.
const (
	costAlter   = 2 * time.Second
	costIndex   = 30 * time.Second
	costRebuild = 10 * time.Minute
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate turns a diff into an ordered statement batch. The live column
// and index lists are needed to render a shadow-table rebuild when a
// column cannot be altered in place.
func (g *Generator) Generate(diff *schema.SchemaDiff, liveColumns []schema.ColumnDefinition, liveIndexes []schema.IndexDefinition) (*Batch, error) {
	if diff == nil {
		return nil, fmt.Errorf("nil diff")
	}
	batch := &Batch{Table: diff.Table}

	if needsRebuild(diff) {
		if err := g.generateRebuild(batch, diff, liveColumns, liveIndexes); err != nil {
			return nil, err
		}
	} else {
		g.generateInPlace(batch, diff)
	}

	for _, stmt := range batch.Statements {
		if stmt.Destructive {
			batch.Destructive = true
		}
		switch stmt.Kind {
		case KindRebuild:
			batch.EstimatedTime += costRebuild
		case KindCreateIndex:
			batch.EstimatedTime += costIndex
		default:
			batch.EstimatedTime += costAlter
		}
	}
	if batch.Destructive {
		batch.RequiresBackup = true
	}

	return batch, nil
}

func needsRebuild(diff *schema.SchemaDiff) bool {
	for _, fc := range diff.ModifiedColumns {
		if !schema.CanAlterInPlace(fc.OldColumn.Type, fc.NewColumn.Type) {
			return true
		}
	}
	return false
}

// generateInPlace orders statements so renames land before type and
// constraint changes, index drops before their column drops, and column
// adds before the indexes that cover them.
func (g *Generator) generateInPlace(batch *Batch, diff *schema.SchemaDiff) {
	table := diff.Table

	for _, r := range diff.RenamedColumns {
		batch.add(Statement{
			SQL:     fmt.Sprintf(`ALTER TABLE %s RENAME COLUMN %s TO %s;`, quoteIdent(table), quoteIdent(r.From), quoteIdent(r.To)),
			Kind:    KindRenameColumn,
			Table:   table,
			Comment: fmt.Sprintf("rename %s to %s", r.From, r.To),
		}, Statement{
			SQL:     fmt.Sprintf(`ALTER TABLE %s RENAME COLUMN %s TO %s;`, quoteIdent(table), quoteIdent(r.To), quoteIdent(r.From)),
			Kind:    KindRenameColumn,
			Table:   table,
			Comment: fmt.Sprintf("rename %s back to %s", r.To, r.From),
		})
	}

	for _, idx := range diff.RemovedIndexes {
		batch.add(Statement{
			SQL:     DropIndexSQL(idx.Name),
			Kind:    KindDropIndex,
			Table:   table,
			Comment: fmt.Sprintf("drop index %s", idx.Name),
		}, Statement{
			SQL:     CreateIndexSQL(idx),
			Kind:    KindCreateIndex,
			Table:   table,
			Comment: fmt.Sprintf("recreate index %s", idx.Name),
		})
	}

	for _, fc := range diff.ModifiedColumns {
		g.generateColumnAlters(batch, table, fc)
	}

	for _, col := range diff.RemovedColumns {
		batch.add(Statement{
			SQL:         fmt.Sprintf(`ALTER TABLE %s DROP COLUMN %s;`, quoteIdent(table), quoteIdent(col.Name)),
			Kind:        KindDropColumn,
			Destructive: true,
			Table:       table,
			Comment:     fmt.Sprintf("drop column %s", col.Name),
		}, Statement{
			SQL:     fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s;`, quoteIdent(table), ColumnDDL(col)),
			Kind:    KindAddColumn,
			Table:   table,
			Comment: fmt.Sprintf("restore column %s (values are not recovered)", col.Name),
		})
		batch.warn(fmt.Sprintf("dropping column %s discards its data; rollback restores the column empty", col.Name))
	}

	for _, col := range diff.AddedColumns {
		add := col
		if !col.Nullable && col.Default == nil {
			// cannot enforce NOT NULL on existing rows without a default
			add.Nullable = true
			batch.warn(fmt.Sprintf("column %s declared required without a default; added as nullable", col.Name))
		}
		batch.add(Statement{
			SQL:     fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s;`, quoteIdent(table), ColumnDDL(add)),
			Kind:    KindAddColumn,
			Table:   table,
			Comment: fmt.Sprintf("add column %s", col.Name),
		}, Statement{
			SQL:         fmt.Sprintf(`ALTER TABLE %s DROP COLUMN %s;`, quoteIdent(table), quoteIdent(col.Name)),
			Kind:        KindDropColumn,
			Destructive: true,
			Table:       table,
			Comment:     fmt.Sprintf("drop added column %s", col.Name),
		})
	}

	for _, idx := range diff.AddedIndexes {
		batch.add(Statement{
			SQL:     CreateIndexSQL(idx),
			Kind:    KindCreateIndex,
			Table:   table,
			Comment: fmt.Sprintf("create index %s", idx.Name),
		}, Statement{
			SQL:     DropIndexSQL(idx.Name),
			Kind:    KindDropIndex,
			Table:   table,
			Comment: fmt.Sprintf("drop index %s", idx.Name),
		})
		if idx.Unique {
			batch.warn(fmt.Sprintf("unique index %s may fail to build if existing rows contain duplicates", idx.Name))
		}
	}
}

func (g *Generator) generateColumnAlters(batch *Batch, table string, fc schema.FieldChange) {
	col := quoteIdent(fc.Fieldname)
	alter := func(clause string) string {
		return fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s %s;`, quoteIdent(table), col, clause)
	}

	if _, ok := fc.Changes["type"]; ok {
		g.typeChange(batch, table, fc)
	} else if _, ok := fc.Changes["length"]; ok {
		g.typeChange(batch, table, fc)
	} else if _, ok := fc.Changes["precision"]; ok {
		g.typeChange(batch, table, fc)
	}

	if _, ok := fc.Changes["nullable"]; ok {
		fwd, back := "SET NOT NULL", "DROP NOT NULL"
		if fc.NewColumn.Nullable {
			fwd, back = back, fwd
		}
		batch.add(Statement{
			SQL: alter(fwd), Kind: KindAlterColumn, Table: table,
			Comment: fmt.Sprintf("%s on %s", fwd, fc.Fieldname),
		}, Statement{
			SQL: alter(back), Kind: KindAlterColumn, Table: table,
			Comment: fmt.Sprintf("%s on %s", back, fc.Fieldname),
		})
	}

	if _, ok := fc.Changes["default"]; ok {
		fwd := "DROP DEFAULT"
		if fc.NewColumn.Default != nil {
			fwd = fmt.Sprintf("SET DEFAULT %s", renderDefault(*fc.NewColumn.Default))
		}
		back := "DROP DEFAULT"
		if fc.OldColumn.Default != nil {
			back = fmt.Sprintf("SET DEFAULT %s", renderDefault(*fc.OldColumn.Default))
		}
		destructive := fc.NewColumn.Default == nil && fc.OldColumn.Default != nil
		batch.add(Statement{
			SQL: alter(fwd), Kind: KindAlterColumn, Destructive: destructive, Table: table,
			Comment: fmt.Sprintf("change default of %s", fc.Fieldname),
		}, Statement{
			SQL: alter(back), Kind: KindAlterColumn, Table: table,
			Comment: fmt.Sprintf("restore default of %s", fc.Fieldname),
		})
	}

	if _, ok := fc.Changes["unique"]; ok {
		constraint := quoteIdent(fmt.Sprintf("%s_%s_key", diffTableBare(table), fc.Fieldname))
		addSQL := fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s);`, quoteIdent(table), constraint, col)
		dropSQL := fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s;`, quoteIdent(table), constraint)
		fwd, back := addSQL, dropSQL
		if !fc.NewColumn.Unique {
			fwd, back = dropSQL, addSQL
		}
		batch.add(Statement{
			SQL: fwd, Kind: KindAlterColumn, Table: table,
			Comment: fmt.Sprintf("change uniqueness of %s", fc.Fieldname),
		}, Statement{
			SQL: back, Kind: KindAlterColumn, Table: table,
			Comment: fmt.Sprintf("restore uniqueness of %s", fc.Fieldname),
		})
		if fc.NewColumn.Unique {
			batch.warn(fmt.Sprintf("unique constraint on %s may fail if existing rows contain duplicates", fc.Fieldname))
		}
	}
}

// typeChange emits a single ALTER TYPE covering type, length, and
// precision changes together (they all resolve to the new storage type).
func (g *Generator) typeChange(batch *Batch, table string, fc schema.FieldChange) {
	col := quoteIdent(fc.Fieldname)
	fwd := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s;`,
		quoteIdent(table), col, fc.NewColumn.Type, col, fc.NewColumn.Type)
	back := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s;`,
		quoteIdent(table), col, fc.OldColumn.Type, col, fc.OldColumn.Type)
	batch.add(Statement{
		SQL: fwd, Kind: KindAlterColumn, Destructive: fc.Destructive, Table: table,
		Comment: fmt.Sprintf("retype %s from %s to %s", fc.Fieldname, fc.OldColumn.Type, fc.NewColumn.Type),
	}, Statement{
		SQL: back, Kind: KindAlterColumn, Table: table,
		Comment: fmt.Sprintf("retype %s back to %s", fc.Fieldname, fc.OldColumn.Type),
	})
	if fc.RequiresDataMigration {
		batch.warn(fmt.Sprintf("retyping %s converts stored values; rows that cannot cast will fail the migration", fc.Fieldname))
	}
}

// add appends a forward statement and prepends its inverse, keeping the
// rollback list in reverse application order.
func (b *Batch) add(forward, inverse Statement) {
	b.Statements = append(b.Statements, forward)
	b.Rollback = append([]Statement{inverse}, b.Rollback...)
}

func (b *Batch) warn(msg string) {
	b.Warnings = append(b.Warnings, msg)
}

func diffTableBare(table string) string {
	if len(table) > 3 && table[:3] == "tab" {
		return table[3:]
	}
	return table
}
