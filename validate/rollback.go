package validate

import (
	"fmt"

	"github.com/ridoystarlord/tabledrift/schema"
)

type RollbackDifficulty string

const (
	RollbackEasy       RollbackDifficulty = "easy"
	RollbackMedium     RollbackDifficulty = "medium"
	RollbackHard       RollbackDifficulty = "hard"
	RollbackImpossible RollbackDifficulty = "impossible"
)

type RollbackAssessment struct {
	Possible        bool               `json:"possible"`
	Blockers        []string           `json:"blockers"`
	Risks           []string           `json:"risks"`
	Recommendations []string           `json:"recommendations"`
	Difficulty      RollbackDifficulty `json:"difficulty"`
}

// ValidateRollbackPossibility judges whether rolling the migration back
// restores the previous state. Any operation that discards values the
// rollback would need (column drops, narrowing without preserved
// originals, a rebuild) makes rollback impossible.
func (v *Validator) ValidateRollbackPossibility(mig *schema.Migration) *RollbackAssessment {
	a := &RollbackAssessment{Possible: true, Difficulty: RollbackEasy}

	if len(mig.RollbackSQL) == 0 && len(mig.ForwardSQL) > 0 {
		a.Possible = false
		a.Difficulty = RollbackImpossible
		a.Blockers = append(a.Blockers, "no rollback SQL was generated")
		a.Recommendations = append(a.Recommendations, "create a FULL backup so the table can be restored manually")
		return a
	}

	diff := mig.Diff
	if diff == nil {
		return a
	}

	for _, col := range diff.RemovedColumns {
		a.Blockers = append(a.Blockers, fmt.Sprintf("column %s is dropped; its values cannot be restored", col.Name))
	}

	for _, fc := range diff.ModifiedColumns {
		if change, ok := fc.Changes["length"]; ok {
			oldLen, _ := change.From.(int)
			newLen, _ := change.To.(int)
			if newLen > 0 && (oldLen == 0 || newLen < oldLen) {
				a.Blockers = append(a.Blockers, fmt.Sprintf("narrowing %s truncates values the rollback cannot recover", fc.Fieldname))
				continue
			}
		}
		if !schema.CanAlterInPlace(fc.OldColumn.Type, fc.NewColumn.Type) {
			a.Blockers = append(a.Blockers, fmt.Sprintf("rebuild caused by %s replaces table data", fc.Fieldname))
			continue
		}
		if fc.RequiresDataMigration {
			a.Risks = append(a.Risks, fmt.Sprintf("reverting %s re-converts values; some may not round-trip", fc.Fieldname))
			a.Difficulty = RollbackHard
		} else if _, ok := fc.Changes["type"]; ok {
			if a.Difficulty == RollbackEasy {
				a.Difficulty = RollbackMedium
			}
		}
	}

	if len(diff.RenamedColumns) > 0 && a.Difficulty == RollbackEasy {
		a.Difficulty = RollbackMedium
	}

	if len(a.Blockers) > 0 {
		a.Possible = false
		a.Difficulty = RollbackImpossible
		a.Recommendations = append(a.Recommendations, "create a FULL backup before migrating; restore from it instead of rolling back")
	}

	return a
}
