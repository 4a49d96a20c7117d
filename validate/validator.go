package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/ridoystarlord/tabledrift/schema"
)

// Estimator supplies row estimations for risk reporting. A nil estimator
// disables estimates; everything else still works.
type Estimator interface {
	RowCount(ctx context.Context, table string) (int, error)
	OversizedValueCount(ctx context.Context, table, column string, maxLength int) (int, error)
}

// ValidationReport is the scored outcome of validating one migration.
type ValidationReport struct {
	Valid           bool      `json:"valid"`
	Errors          []string  `json:"errors"`
	Warnings        []string  `json:"warnings"`
	Recommendations []string  `json:"recommendations"`
	Score           int       `json:"score"`
	ValidatedAt     time.Time `json:"validated_at"`
}

// Fixed score deductions per finding category.
const (
	deductStructural   = 20
	deductSQLHeuristic = 30
	deductSecurity     = 40
	deductDataLoss     = 50
	deductNoRollback   = 15
)

type Validator struct {
	estimator Estimator
}

func New(estimator Estimator) *Validator {
	return &Validator{estimator: estimator}
}

// ValidateMigration runs structural, heuristic SQL, security, data-loss,
// and rollback checks. The score starts at 100, each finding category
// applies its fixed deduction once, and the result floors at zero. The
// migration is valid iff no blocking error was found.
func (v *Validator) ValidateMigration(ctx context.Context, mig *schema.Migration) *ValidationReport {
	report := &ValidationReport{Score: 100, ValidatedAt: time.Now()}

	if v.checkStructure(mig, report) {
		report.Score -= deductStructural
	}

	sqlErrs, securityErrs := checkStatements(mig.ForwardSQL)
	if len(sqlErrs) > 0 {
		report.Errors = append(report.Errors, sqlErrs...)
		report.Score -= deductSQLHeuristic
	}
	if len(securityErrs) > 0 {
		report.Errors = append(report.Errors, securityErrs...)
		report.Score -= deductSecurity
	}

	if mig.Diff != nil {
		risks := v.CheckDataLossRisks(ctx, mig.Diff)
		high := false
		for _, r := range risks {
			if r.Severity == schema.RiskHigh || r.Severity == schema.RiskCritical {
				high = true
				report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %s", r.Type, r.Description))
				report.Recommendations = append(report.Recommendations, r.Mitigation...)
			}
		}
		if high {
			report.Score -= deductDataLoss
		}
	}

	rb := v.ValidateRollbackPossibility(mig)
	if !rb.Possible {
		report.Score -= deductNoRollback
		report.Warnings = append(report.Warnings, "rollback cannot restore the previous state")
		report.Recommendations = append(report.Recommendations, rb.Recommendations...)
	}

	if report.Score < 0 {
		report.Score = 0
	}
	report.Valid = len(report.Errors) == 0
	return report
}

// checkStructure reports true when the migration itself is malformed.
func (v *Validator) checkStructure(mig *schema.Migration, report *ValidationReport) bool {
	found := false
	if mig.Table == "" {
		report.Errors = append(report.Errors, "migration has no target table")
		found = true
	}
	if mig.Diff != nil && !mig.Diff.Empty() && len(mig.ForwardSQL) == 0 {
		report.Errors = append(report.Errors, "diff has changes but no forward SQL was generated")
		found = true
	}
	if mig.Diff != nil {
		if dup := duplicateFieldNames(mig.Diff); dup != "" {
			report.Errors = append(report.Errors, fmt.Sprintf("field %q appears in more than one change category", dup))
			found = true
		}
	}
	if len(mig.ForwardSQL) > 0 && len(mig.RollbackSQL) == 0 {
		report.Warnings = append(report.Warnings, "migration carries no rollback SQL")
	}
	return found
}

// duplicateFieldNames checks that a field name appears in at most one of
// added/removed/modified/renamed.
func duplicateFieldNames(diff *schema.SchemaDiff) string {
	seen := map[string]bool{}
	check := func(name string) string {
		if seen[name] {
			return name
		}
		seen[name] = true
		return ""
	}
	for _, c := range diff.AddedColumns {
		if d := check(c.Name); d != "" {
			return d
		}
	}
	for _, c := range diff.RemovedColumns {
		if d := check(c.Name); d != "" {
			return d
		}
	}
	for _, fc := range diff.ModifiedColumns {
		if d := check(fc.Fieldname); d != "" {
			return d
		}
	}
	for _, r := range diff.RenamedColumns {
		if d := check(r.From); d != "" {
			return d
		}
		if d := check(r.To); d != "" {
			return d
		}
	}
	return ""
}
