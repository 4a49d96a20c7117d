package schema

// Field is a declared field as supplied by the form-schema layer.
type Field struct {
	Name      string
	Type      string // logical type: text, long_text, int, float, currency, check, date, datetime, select, link, json, uuid
	Length    int
	Precision int
	Required  bool
	Unique    bool
	Indexed   bool
	Default   *string
}

// Layout-only field types never persist to a table column.
var layoutTypes = map[string]bool{
	"section_break": true,
	"column_break":  true,
	"tab_break":     true,
	"fold":          true,
}

func (f Field) IsLayout() bool {
	return layoutTypes[f.Type]
}

type ColumnDefinition struct {
	Name          string
	Type          string // storage type, e.g. varchar(140), bigint
	Nullable      bool
	Default       *string
	Primary       bool
	AutoIncrement bool
	Unique        bool
	Length        int
	Precision     int
	ForeignKey    *ForeignKey
	Check         string
}

type ForeignKey struct {
	ReferencesTable  string
	ReferencesColumn string
	OnDelete         string // CASCADE, SET NULL, RESTRICT, etc.
	OnUpdate         string
}

type IndexDefinition struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
	Type    string // btree, hash, gin, etc.
	Where   string // partial index predicate, empty for a plain index
}

// Signature summarizes the parts of a column that must match for two
// columns to be considered rename candidates.
func (c ColumnDefinition) Signature() string {
	sig := c.Type
	if c.Nullable {
		sig += "|null"
	}
	if c.Unique {
		sig += "|unique"
	}
	if c.Default != nil {
		sig += "|default=" + *c.Default
	}
	return sig
}

// Matches reports whether two indexes cover the same columns in the
// same order with the same uniqueness and access method.
func (i IndexDefinition) Matches(other IndexDefinition) bool {
	if i.Unique != other.Unique {
		return false
	}
	it, ot := i.Type, other.Type
	if it == "" {
		it = "btree"
	}
	if ot == "" {
		ot = "btree"
	}
	if it != ot {
		return false
	}
	if len(i.Columns) != len(other.Columns) {
		return false
	}
	for n := range i.Columns {
		if i.Columns[n] != other.Columns[n] {
			return false
		}
	}
	return true
}
