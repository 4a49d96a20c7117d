package compare

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ridoystarlord/tabledrift/schema"
)

// Inspector is the slice of live-metadata access the comparator needs.
type Inspector interface {
	TableExists(ctx context.Context, table string) (bool, error)
	Columns(ctx context.Context, table string) ([]schema.ColumnDefinition, error)
	Indexes(ctx context.Context, table string) ([]schema.IndexDefinition, error)
}

type Options struct {
	CaseSensitive             bool
	IncludeSystemColumns      bool
	AnalyzeDataMigration      bool
	ValidateTypeCompatibility bool
}

// systemColumns are framework-managed and never dropped by a diff.
var systemColumns = map[string]bool{
	"id":          true,
	"name":        true,
	"owner":       true,
	"creation":    true,
	"modified":    true,
	"modified_by": true,
	"docstatus":   true,
	"idx":         true,
}

// Comparator builds a SchemaDiff between declared fields and the live
// table. Construct with New; pass a nil detector to use the default.
type Comparator struct {
	inspector Inspector
	renames   RenameDetector
}

func New(inspector Inspector, detector RenameDetector) *Comparator {
	if detector == nil {
		detector = NewRenameDetector()
	}
	return &Comparator{inspector: inspector, renames: detector}
}

func (c *Comparator) Compare(ctx context.Context, table schema.Table, opts Options) (*schema.SchemaDiff, error) {
	exists, err := c.inspector.TableExists(ctx, table.Name)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", table.Name, err)
	}
	if !exists {
		return nil, fmt.Errorf("table %q does not exist", table.Name)
	}

	liveColumns, err := c.inspector.Columns(ctx, table.Name)
	if err != nil {
		return nil, fmt.Errorf("reading live columns of %s: %w", table.Name, err)
	}
	liveIndexes, err := c.inspector.Indexes(ctx, table.Name)
	if err != nil {
		return nil, fmt.Errorf("reading live indexes of %s: %w", table.Name, err)
	}

	diff := &schema.SchemaDiff{Table: table.Name}

	norm := func(name string) string {
		if opts.CaseSensitive {
			return name
		}
		return strings.ToLower(name)
	}

	declared := persistedFields(table.Fields)
	declaredByName := map[string]schema.Field{}
	for _, f := range declared {
		declaredByName[norm(f.Name)] = f
	}
	liveByName := map[string]schema.ColumnDefinition{}
	for _, col := range liveColumns {
		liveByName[norm(col.Name)] = col
	}

	// Additions keep declaration order.
	for _, f := range declared {
		if _, ok := liveByName[norm(f.Name)]; !ok {
			diff.AddedColumns = append(diff.AddedColumns, schema.ColumnFromField(f))
		}
	}

	// Removals are sorted by column name for deterministic output.
	for _, col := range liveColumns {
		if _, ok := declaredByName[norm(col.Name)]; ok {
			continue
		}
		if !opts.IncludeSystemColumns && systemColumns[strings.ToLower(col.Name)] {
			continue
		}
		if col.Primary || col.AutoIncrement {
			continue
		}
		diff.RemovedColumns = append(diff.RemovedColumns, col)
	}
	sort.Slice(diff.RemovedColumns, func(i, j int) bool {
		return diff.RemovedColumns[i].Name < diff.RemovedColumns[j].Name
	})

	// Modifications: one FieldChange per field, one entry per attribute.
	for _, f := range declared {
		live, ok := liveByName[norm(f.Name)]
		if !ok {
			continue
		}
		if fc := c.compareColumn(f, live, opts); fc != nil {
			diff.ModifiedColumns = append(diff.ModifiedColumns, *fc)
		}
	}

	// Rename detection runs after add/remove classification and pulls
	// matched pairs out of both lists.
	if renames := c.renames.DetectRenames(diff.AddedColumns, diff.RemovedColumns); len(renames) > 0 {
		diff.RenamedColumns = renames
		renamedTo := map[string]bool{}
		renamedFrom := map[string]bool{}
		for _, r := range renames {
			renamedTo[r.To] = true
			renamedFrom[r.From] = true
		}
		diff.AddedColumns = filterColumns(diff.AddedColumns, renamedTo)
		diff.RemovedColumns = filterColumns(diff.RemovedColumns, renamedFrom)
	}

	c.compareIndexes(table, declared, liveIndexes, diff)

	return diff, nil
}

func (c *Comparator) compareColumn(f schema.Field, live schema.ColumnDefinition, opts Options) *schema.FieldChange {
	want := schema.ColumnFromField(f)
	changes := map[string]schema.AttributeChange{}
	destructive := false
	dataMigration := false

	oldBase, newBase := schema.BaseType(live.Type), schema.BaseType(want.Type)
	if oldBase != newBase {
		changes["type"] = schema.AttributeChange{From: oldBase, To: newBase}
		if opts.ValidateTypeCompatibility && schema.ConversionRisk(live.Type, want.Type) == schema.RiskHigh {
			destructive = true
		}
		if opts.AnalyzeDataMigration && schema.RequiresValueTransform(live.Type, want.Type) {
			dataMigration = true
		}
	}

	oldLen, newLen := schema.TypeLength(live.Type), schema.TypeLength(want.Type)
	if oldLen != newLen && (oldLen > 0 || newLen > 0) {
		changes["length"] = schema.AttributeChange{From: oldLen, To: newLen}
		if newLen > 0 && oldLen > 0 && newLen < oldLen {
			destructive = true
		}
	}

	oldPrec, newPrec := schema.TypePrecision(live.Type), schema.TypePrecision(want.Type)
	if oldPrec != newPrec && (oldPrec > 0 || newPrec > 0) {
		changes["precision"] = schema.AttributeChange{From: oldPrec, To: newPrec}
		if newPrec < oldPrec {
			destructive = true
		}
	}

	if live.Nullable != want.Nullable {
		changes["required"] = schema.AttributeChange{From: !live.Nullable, To: !want.Nullable}
		changes["nullable"] = schema.AttributeChange{From: live.Nullable, To: want.Nullable}
	}

	if live.Unique != want.Unique {
		changes["unique"] = schema.AttributeChange{From: live.Unique, To: want.Unique}
	}

	oldDefault := normalizeDefault(live.Default)
	newDefault := normalizeDefault(want.Default)
	if oldDefault != newDefault {
		changes["default"] = schema.AttributeChange{From: oldDefault, To: newDefault}
		if oldDefault != "" && newDefault == "" {
			// dropping a default leaves future inserts without a safety net
			destructive = true
		}
	}

	if len(changes) == 0 {
		return nil
	}
	return &schema.FieldChange{
		Fieldname:             f.Name,
		Changes:               changes,
		RequiresDataMigration: dataMigration,
		Destructive:           destructive,
		OldColumn:             live,
		NewColumn:             want,
	}
}

func (c *Comparator) compareIndexes(table schema.Table, declared []schema.Field, live []schema.IndexDefinition, diff *schema.SchemaDiff) {
	wanted := declaredIndexes(table, declared)

	liveMatched := make([]bool, len(live))
	for _, want := range wanted {
		found := false
		for i, have := range live {
			if liveMatched[i] {
				continue
			}
			if want.Matches(have) {
				liveMatched[i] = true
				found = true
				break
			}
		}
		if !found {
			diff.AddedIndexes = append(diff.AddedIndexes, want)
		}
	}

	for i, have := range live {
		if liveMatched[i] {
			continue
		}
		// indexes backing unique constraints are dropped with the
		// constraint, not by the diff
		if strings.HasSuffix(have.Name, "_key") || strings.HasSuffix(have.Name, "_pkey") {
			continue
		}
		diff.RemovedIndexes = append(diff.RemovedIndexes, have)
	}
	sort.Slice(diff.RemovedIndexes, func(i, j int) bool {
		return diff.RemovedIndexes[i].Name < diff.RemovedIndexes[j].Name
	})
}

// declaredIndexes merges table-level indexes with per-field Indexed flags.
func declaredIndexes(table schema.Table, declared []schema.Field) []schema.IndexDefinition {
	var out []schema.IndexDefinition
	for _, idx := range table.Indexes {
		if idx.Name == "" {
			idx.Name = indexName(table.Name, idx.Columns)
		}
		if idx.Type == "" {
			idx.Type = "btree"
		}
		idx.Table = table.Name
		out = append(out, idx)
	}
	for _, f := range declared {
		if !f.Indexed {
			continue
		}
		out = append(out, schema.IndexDefinition{
			Name:    indexName(table.Name, []string{f.Name}),
			Table:   table.Name,
			Columns: []string{f.Name},
			Type:    "btree",
		})
	}
	return out
}

func indexName(table string, columns []string) string {
	return fmt.Sprintf("idx_%s_%s", strings.TrimPrefix(table, "tab"), strings.Join(columns, "_"))
}

func persistedFields(fields []schema.Field) []schema.Field {
	var out []schema.Field
	for _, f := range fields {
		if f.IsLayout() {
			continue
		}
		out = append(out, f)
	}
	return out
}

func filterColumns(cols []schema.ColumnDefinition, exclude map[string]bool) []schema.ColumnDefinition {
	var out []schema.ColumnDefinition
	for _, col := range cols {
		if !exclude[col.Name] {
			out = append(out, col)
		}
	}
	return out
}

func normalizeDefault(d *string) string {
	if d == nil {
		return ""
	}
	v := *d
	// live defaults come back with a cast suffix: 'x'::character varying
	if i := strings.Index(v, "::"); i >= 0 {
		v = v[:i]
	}
	return strings.Trim(v, "'")
}
