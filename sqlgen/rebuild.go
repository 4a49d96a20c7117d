package sqlgen

import (
	"fmt"
	"strings"

	"github.com/ridoystarlord/tabledrift/schema"
)

// generateRebuild emits the shadow-table strategy: create a shadow table
// with the target schema, copy and convert every row, drop the original,
// and rename the shadow into place. Indexes are recreated afterwards. The
// whole batch is destructive because all table data is duplicated and
// replaced.
func (g *Generator) generateRebuild(batch *Batch, diff *schema.SchemaDiff, liveColumns []schema.ColumnDefinition, liveIndexes []schema.IndexDefinition) error {
	if len(liveColumns) == 0 {
		return fmt.Errorf("rebuild of %s requires the live column list", diff.Table)
	}

	table := diff.Table
	shadow := table + "__rebuild"

	target, copyExprs := rebuildPlan(diff, liveColumns)
	targetIndexes := rebuildIndexes(diff, liveIndexes)

	forward := []Statement{
		{
			SQL:         CreateTableSQL(shadow, target),
			Kind:        KindRebuild,
			Destructive: true,
			Table:       table,
			Comment:     "create shadow table with target schema",
		},
		{
			SQL:         copySQL(shadow, table, target, copyExprs),
			Kind:        KindRebuild,
			Destructive: true,
			Table:       table,
			Comment:     "copy and convert rows into shadow table",
		},
		{
			SQL:         fmt.Sprintf(`DROP TABLE %s;`, quoteIdent(table)),
			Kind:        KindRebuild,
			Destructive: true,
			Table:       table,
			Comment:     "drop original table",
		},
		{
			SQL:         fmt.Sprintf(`ALTER TABLE %s RENAME TO %s;`, quoteIdent(shadow), quoteIdent(table)),
			Kind:        KindRebuild,
			Destructive: true,
			Table:       table,
			Comment:     "rename shadow table into place",
		},
	}
	for _, idx := range targetIndexes {
		forward = append(forward, Statement{
			SQL:     CreateIndexSQL(idx),
			Kind:    KindCreateIndex,
			Table:   table,
			Comment: fmt.Sprintf("recreate index %s", idx.Name),
		})
	}
	batch.Statements = forward

	// Rollback rebuilds the original structure the same way. Values
	// narrowed or converted by the forward copy cannot be recovered.
	restoreShadow := table + "__restore"
	restoreExprs := restorePlan(diff, liveColumns)
	rollback := []Statement{
		{
			SQL:         CreateTableSQL(restoreShadow, liveColumns),
			Kind:        KindRebuild,
			Destructive: true,
			Table:       table,
			Comment:     "create shadow table with original schema",
		},
		{
			SQL:         copySQL(restoreShadow, table, liveColumns, restoreExprs),
			Kind:        KindRebuild,
			Destructive: true,
			Table:       table,
			Comment:     "copy rows back into original schema",
		},
		{
			SQL:         fmt.Sprintf(`DROP TABLE %s;`, quoteIdent(table)),
			Kind:        KindRebuild,
			Destructive: true,
			Table:       table,
			Comment:     "drop rebuilt table",
		},
		{
			SQL:         fmt.Sprintf(`ALTER TABLE %s RENAME TO %s;`, quoteIdent(restoreShadow), quoteIdent(table)),
			Kind:        KindRebuild,
			Destructive: true,
			Table:       table,
			Comment:     "rename restored table into place",
		},
	}
	for _, idx := range liveIndexes {
		rollback = append(rollback, Statement{
			SQL:     CreateIndexSQL(idx),
			Kind:    KindCreateIndex,
			Table:   table,
			Comment: fmt.Sprintf("recreate original index %s", idx.Name),
		})
	}
	batch.Rollback = rollback

	batch.warn("table rebuild required: the table is copied, dropped, and replaced")
	batch.warn("rollback of a rebuild restores structure only; values truncated or converted by the forward copy are not recovered")
	batch.RequiresBackup = true

	return nil
}

// rebuildPlan derives the target column list from the live columns plus
// the diff, and the matching source expression for each target column.
func rebuildPlan(diff *schema.SchemaDiff, liveColumns []schema.ColumnDefinition) ([]schema.ColumnDefinition, []string) {
	renamedFrom := map[string]schema.RenamedColumn{}
	for _, r := range diff.RenamedColumns {
		renamedFrom[r.From] = r
	}
	modified := map[string]schema.FieldChange{}
	for _, fc := range diff.ModifiedColumns {
		modified[fc.Fieldname] = fc
	}
	removed := map[string]bool{}
	for _, col := range diff.RemovedColumns {
		removed[col.Name] = true
	}

	var target []schema.ColumnDefinition
	var exprs []string
	for _, col := range liveColumns {
		if removed[col.Name] {
			continue
		}
		if r, ok := renamedFrom[col.Name]; ok {
			target = append(target, r.Column)
			exprs = append(exprs, convertExpr(col, r.Column))
			continue
		}
		if fc, ok := modified[col.Name]; ok {
			target = append(target, fc.NewColumn)
			exprs = append(exprs, convertExpr(fc.OldColumn, fc.NewColumn))
			continue
		}
		target = append(target, col)
		exprs = append(exprs, quoteIdent(col.Name))
	}
	for _, col := range diff.AddedColumns {
		added := col
		if !col.Nullable && col.Default == nil {
			added.Nullable = true
		}
		target = append(target, added)
		if col.Default != nil {
			exprs = append(exprs, renderDefault(*col.Default))
		} else {
			exprs = append(exprs, "NULL")
		}
	}
	return target, exprs
}

// rebuildIndexes derives the indexes to recreate once the shadow table is
// renamed into place: surviving live indexes with renamed columns remapped,
// plus the declared additions. Removed indexes and indexes over dropped
// columns are skipped.
func rebuildIndexes(diff *schema.SchemaDiff, liveIndexes []schema.IndexDefinition) []schema.IndexDefinition {
	removed := map[string]bool{}
	for _, idx := range diff.RemovedIndexes {
		removed[idx.Name] = true
	}
	dropped := map[string]bool{}
	for _, col := range diff.RemovedColumns {
		dropped[col.Name] = true
	}
	renamed := map[string]string{}
	for _, r := range diff.RenamedColumns {
		renamed[r.From] = r.To
	}

	var target []schema.IndexDefinition
	for _, idx := range liveIndexes {
		if removed[idx.Name] {
			continue
		}
		keep := idx
		keep.Columns = append([]string(nil), idx.Columns...)
		orphaned := false
		for i, col := range keep.Columns {
			if dropped[col] {
				orphaned = true
				break
			}
			if to, ok := renamed[col]; ok {
				keep.Columns[i] = to
			}
		}
		if orphaned {
			continue
		}
		target = append(target, keep)
	}
	return append(target, diff.AddedIndexes...)
}

// restorePlan maps each original column back to its source in the rebuilt
// table, for the rollback copy.
func restorePlan(diff *schema.SchemaDiff, liveColumns []schema.ColumnDefinition) []string {
	renamedFrom := map[string]schema.RenamedColumn{}
	for _, r := range diff.RenamedColumns {
		renamedFrom[r.From] = r
	}
	modified := map[string]schema.FieldChange{}
	for _, fc := range diff.ModifiedColumns {
		modified[fc.Fieldname] = fc
	}
	removed := map[string]bool{}
	for _, col := range diff.RemovedColumns {
		removed[col.Name] = true
	}

	var exprs []string
	for _, col := range liveColumns {
		if removed[col.Name] {
			// dropped by the forward rebuild; nothing to copy back
			exprs = append(exprs, "NULL")
			continue
		}
		if r, ok := renamedFrom[col.Name]; ok {
			exprs = append(exprs, convertExpr(r.Column, col))
			continue
		}
		if fc, ok := modified[col.Name]; ok {
			exprs = append(exprs, convertExpr(fc.NewColumn, col))
			continue
		}
		exprs = append(exprs, quoteIdent(col.Name))
	}
	return exprs
}

// convertExpr renders the cast of a source column into the target type,
// truncating character data when the target is narrower.
func convertExpr(from, to schema.ColumnDefinition) string {
	src := quoteIdent(from.Name)
	if from.Type == to.Type {
		return src
	}
	fromLen, toLen := schema.TypeLength(from.Type), schema.TypeLength(to.Type)
	if schema.BaseType(from.Type) == schema.BaseType(to.Type) && toLen > 0 && (fromLen == 0 || toLen < fromLen) {
		return fmt.Sprintf(`left(%s, %d)::%s`, src, toLen, to.Type)
	}
	return fmt.Sprintf(`%s::%s`, src, to.Type)
}

func copySQL(dest, src string, columns []schema.ColumnDefinition, exprs []string) string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = quoteIdent(c.Name)
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) SELECT %s FROM %s;`,
		quoteIdent(dest), strings.Join(names, ", "), strings.Join(exprs, ", "), quoteIdent(src))
}
