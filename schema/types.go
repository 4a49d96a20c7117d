package schema

import (
	"fmt"
	"strings"
)

// defaultLengths for variable-length logical types when the declaration
// leaves Length at zero.
const DefaultVarcharLength = 140

// StorageType maps a declared logical field type onto the PostgreSQL
// storage type used for its column.
func StorageType(f Field) string {
	switch f.Type {
	case "text", "select", "link", "attach", "password":
		length := f.Length
		if length == 0 {
			length = DefaultVarcharLength
		}
		return fmt.Sprintf("varchar(%d)", length)
	case "long_text", "code", "markdown", "html":
		return "text"
	case "int":
		return "bigint"
	case "float":
		precision := f.Precision
		if precision == 0 {
			precision = 6
		}
		return fmt.Sprintf("numeric(21,%d)", precision)
	case "currency", "percent":
		precision := f.Precision
		if precision == 0 {
			precision = 2
		}
		return fmt.Sprintf("numeric(21,%d)", precision)
	case "check":
		return "boolean"
	case "date":
		return "date"
	case "datetime":
		return "timestamp"
	case "time":
		return "time"
	case "json", "table":
		return "jsonb"
	case "uuid":
		return "uuid"
	default:
		return "text"
	}
}

// BaseType strips length/precision qualifiers: varchar(140) -> varchar.
func BaseType(storageType string) string {
	t := strings.ToLower(strings.TrimSpace(storageType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch t {
	case "character varying":
		return "varchar"
	case "character":
		return "char"
	case "integer", "int", "int4", "int8", "smallint":
		return "bigint"
	case "double precision", "real", "decimal":
		return "numeric"
	case "timestamp with time zone", "timestamp without time zone", "timestamptz":
		return "timestamp"
	case "bool":
		return "boolean"
	}
	return t
}

// TypeLength extracts the declared length from a storage type such as
// varchar(140). Returns 0 when the type carries no length.
func TypeLength(storageType string) int {
	t := strings.TrimSpace(storageType)
	open := strings.IndexByte(t, '(')
	close := strings.IndexByte(t, ')')
	if open < 0 || close <= open {
		return 0
	}
	inner := t[open+1 : close]
	if i := strings.IndexByte(inner, ','); i >= 0 {
		inner = inner[:i]
	}
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(inner), "%d", &n); err != nil {
		return 0
	}
	return n
}

// TypePrecision extracts the scale from a storage type such as
// numeric(21,6). Returns 0 when the type carries no scale.
func TypePrecision(storageType string) int {
	t := strings.TrimSpace(storageType)
	open := strings.IndexByte(t, '(')
	close := strings.IndexByte(t, ')')
	if open < 0 || close <= open {
		return 0
	}
	inner := t[open+1 : close]
	comma := strings.IndexByte(inner, ',')
	if comma < 0 {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(inner[comma+1:]), "%d", &n); err != nil {
		return 0
	}
	return n
}

// ColumnFromField maps a declared field onto the column it persists as.
func ColumnFromField(f Field) ColumnDefinition {
	storage := StorageType(f)
	return ColumnDefinition{
		Name:      f.Name,
		Type:      storage,
		Nullable:  !f.Required,
		Default:   f.Default,
		Unique:    f.Unique,
		Length:    TypeLength(storage),
		Precision: TypePrecision(storage),
	}
}

type RiskSeverity string

const (
	RiskLow      RiskSeverity = "low"
	RiskMedium   RiskSeverity = "medium"
	RiskHigh     RiskSeverity = "high"
	RiskCritical RiskSeverity = "critical"
)

// conversionRisks is the fixed compatibility matrix for type conversions,
// keyed by base storage type.
var conversionRisks = map[[2]string]RiskSeverity{
	{"text", "bigint"}:     RiskHigh,
	{"varchar", "bigint"}:  RiskHigh,
	{"text", "numeric"}:    RiskHigh,
	{"varchar", "numeric"}: RiskHigh,
	{"text", "boolean"}:    RiskHigh,
	{"varchar", "boolean"}: RiskHigh,
	{"text", "date"}:       RiskHigh,
	{"varchar", "date"}:    RiskHigh,
	{"text", "timestamp"}:  RiskHigh,
	{"varchar", "timestamp"}: RiskHigh,
	{"numeric", "bigint"}:  RiskHigh,
	{"timestamp", "date"}:  RiskMedium,
	{"bigint", "varchar"}:  RiskMedium,
	{"bigint", "text"}:     RiskMedium,
	{"numeric", "varchar"}: RiskMedium,
	{"numeric", "text"}:    RiskMedium,
	{"bigint", "numeric"}:  RiskLow,
	{"varchar", "text"}:    RiskLow,
	{"date", "timestamp"}:  RiskLow,
}

// ConversionRisk classifies changing a column from one storage type to
// another. Identical base types are low risk; unknown pairs default low.
func ConversionRisk(from, to string) RiskSeverity {
	f, t := BaseType(from), BaseType(to)
	if f == t {
		return RiskLow
	}
	if sev, ok := conversionRisks[[2]string{f, t}]; ok {
		return sev
	}
	return RiskLow
}

// RequiresValueTransform reports whether converting stored values between
// the two types needs an explicit cast rather than an implicit one.
func RequiresValueTransform(from, to string) bool {
	f, t := BaseType(from), BaseType(to)
	if f == t {
		return false
	}
	// widening within the character family keeps values as-is
	if (f == "varchar" && t == "text") || (f == "char" && t == "varchar") {
		return false
	}
	return true
}

// CanAlterInPlace reports whether the storage engine can rewrite the
// column with a plain ALTER. Narrowing a length or a high-risk retype
// forces a shadow-table rebuild instead.
func CanAlterInPlace(from, to string) bool {
	fromLen, toLen := TypeLength(from), TypeLength(to)
	if BaseType(from) == BaseType(to) {
		if fromLen > 0 && toLen > 0 && toLen < fromLen {
			return false
		}
		return true
	}
	return ConversionRisk(from, to) != RiskHigh
}
