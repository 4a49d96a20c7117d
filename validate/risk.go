package validate

import (
	"context"
	"fmt"

	"github.com/ridoystarlord/tabledrift/schema"
)

const (
	RiskColumnRemoval  = "column_removal"
	RiskTypeConversion = "type_conversion"
	RiskTableRebuild   = "table_rebuild"
)

type DataLossRisk struct {
	Type                     string              `json:"type"`
	Severity                 schema.RiskSeverity `json:"severity"`
	Target                   string              `json:"target"`
	Description              string              `json:"description"`
	EstimatedAffectedRecords int                 `json:"estimated_affected_records"`
	Mitigation               []string            `json:"mitigation"`
}

// CheckDataLossRisks inspects a diff for changes that can discard stored
// data. Severity for type conversions comes from the fixed compatibility
// matrix; estimates are best-effort and zero when no estimator is wired.
func (v *Validator) CheckDataLossRisks(ctx context.Context, diff *schema.SchemaDiff) []DataLossRisk {
	var risks []DataLossRisk

	for _, col := range diff.RemovedColumns {
		risks = append(risks, DataLossRisk{
			Type:                     RiskColumnRemoval,
			Severity:                 schema.RiskHigh,
			Target:                   fmt.Sprintf("%s.%s", diff.Table, col.Name),
			Description:              fmt.Sprintf("dropping column %s discards all its values", col.Name),
			EstimatedAffectedRecords: v.rowCount(ctx, diff.Table),
			Mitigation: []string{
				"create a FULL backup before migrating",
				"archive the column into a side table if its values may be needed later",
			},
		})
	}

	rebuild := false
	for _, fc := range diff.ModifiedColumns {
		if !schema.CanAlterInPlace(fc.OldColumn.Type, fc.NewColumn.Type) {
			rebuild = true
		}

		if _, ok := fc.Changes["type"]; ok {
			sev := schema.ConversionRisk(fc.OldColumn.Type, fc.NewColumn.Type)
			risks = append(risks, DataLossRisk{
				Type:     RiskTypeConversion,
				Severity: sev,
				Target:   fmt.Sprintf("%s.%s", diff.Table, fc.Fieldname),
				Description: fmt.Sprintf("converting %s from %s to %s may lose or fail on incompatible values",
					fc.Fieldname, fc.OldColumn.Type, fc.NewColumn.Type),
				EstimatedAffectedRecords: v.rowCount(ctx, diff.Table),
				Mitigation: []string{
					"create a COLUMN backup of the affected column",
					"verify existing values convert cleanly before migrating",
				},
			})
			continue
		}

		if change, ok := fc.Changes["length"]; ok {
			oldLen, _ := change.From.(int)
			newLen, _ := change.To.(int)
			if newLen > 0 && (oldLen == 0 || newLen < oldLen) {
				risks = append(risks, DataLossRisk{
					Type:     RiskTypeConversion,
					Severity: schema.RiskHigh,
					Target:   fmt.Sprintf("%s.%s", diff.Table, fc.Fieldname),
					Description: fmt.Sprintf("narrowing %s to %d characters truncates longer values",
						fc.Fieldname, newLen),
					EstimatedAffectedRecords: v.oversized(ctx, diff.Table, fc.Fieldname, newLen),
					Mitigation: []string{
						"create a FULL backup before migrating",
						"shorten oversized values explicitly before narrowing the column",
					},
				})
			}
		}

		if change, ok := fc.Changes["precision"]; ok {
			oldPrec, _ := change.From.(int)
			newPrec, _ := change.To.(int)
			if newPrec < oldPrec {
				risks = append(risks, DataLossRisk{
					Type:                     RiskTypeConversion,
					Severity:                 schema.RiskMedium,
					Target:                   fmt.Sprintf("%s.%s", diff.Table, fc.Fieldname),
					Description:              fmt.Sprintf("reducing precision of %s rounds stored values", fc.Fieldname),
					EstimatedAffectedRecords: v.rowCount(ctx, diff.Table),
					Mitigation:               []string{"create a COLUMN backup of the affected column"},
				})
			}
		}
	}

	if rebuild {
		risks = append(risks, DataLossRisk{
			Type:                     RiskTableRebuild,
			Severity:                 schema.RiskHigh,
			Target:                   diff.Table,
			Description:              "table rebuild duplicates and replaces all table data",
			EstimatedAffectedRecords: v.rowCount(ctx, diff.Table),
			Mitigation: []string{
				"create a FULL backup before migrating",
				"run the migration inside a maintenance window",
			},
		})
	}

	return risks
}

func (v *Validator) rowCount(ctx context.Context, table string) int {
	if v.estimator == nil {
		return 0
	}
	n, err := v.estimator.RowCount(ctx, table)
	if err != nil {
		return 0
	}
	return n
}

func (v *Validator) oversized(ctx context.Context, table, column string, maxLength int) int {
	if v.estimator == nil {
		return 0
	}
	n, err := v.estimator.OversizedValueCount(ctx, table, column, maxLength)
	if err != nil {
		return 0
	}
	return n
}
