package schema

// AttributeChange records a single attribute moving from one value to
// another on an existing column.
type AttributeChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// FieldChange collects every changed attribute for one field.
type FieldChange struct {
	Fieldname             string                     `json:"fieldname"`
	Changes               map[string]AttributeChange `json:"changes"` // keys: type, length, required, unique, default, precision, nullable
	RequiresDataMigration bool                       `json:"requires_data_migration"`
	Destructive           bool                       `json:"destructive"`

	// Full before/after definitions, carried so the generator can emit
	// the forward alter and its exact inverse.
	OldColumn ColumnDefinition `json:"old_column"`
	NewColumn ColumnDefinition `json:"new_column"`
}

// RenamedColumn pairs a removed column with the added column it was
// reclassified into.
type RenamedColumn struct {
	From   string           `json:"from"`
	To     string           `json:"to"`
	Column ColumnDefinition `json:"column"`
}

// SchemaDiff is the structured difference between the declared fields and
// the live table. A field name appears in at most one of the four column
// change categories.
type SchemaDiff struct {
	Table           string             `json:"table"`
	AddedColumns    []ColumnDefinition `json:"added_columns"`
	RemovedColumns  []ColumnDefinition `json:"removed_columns"`
	ModifiedColumns []FieldChange      `json:"modified_columns"`
	AddedIndexes    []IndexDefinition  `json:"added_indexes"`
	RemovedIndexes  []IndexDefinition  `json:"removed_indexes"`
	RenamedColumns  []RenamedColumn    `json:"renamed_columns"`
}

func (d *SchemaDiff) Empty() bool {
	return len(d.AddedColumns) == 0 &&
		len(d.RemovedColumns) == 0 &&
		len(d.ModifiedColumns) == 0 &&
		len(d.AddedIndexes) == 0 &&
		len(d.RemovedIndexes) == 0 &&
		len(d.RenamedColumns) == 0
}

// HasDestructiveChanges reports whether any modification can discard
// stored data. Column removals and renames-away are always candidates.
func (d *SchemaDiff) HasDestructiveChanges() bool {
	if len(d.RemovedColumns) > 0 {
		return true
	}
	for _, fc := range d.ModifiedColumns {
		if fc.Destructive {
			return true
		}
	}
	return false
}
