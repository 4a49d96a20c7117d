package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ridoystarlord/tabledrift/execute"
	"github.com/ridoystarlord/tabledrift/schema"
	"github.com/ridoystarlord/tabledrift/sqlgen"
)

// Rollback undoes the most recent applied migration for a table by
// executing its stored rollback batch. On success the history row moves
// from APPLIED to ROLLED_BACK.
func (e *Engine) Rollback(ctx context.Context, table string, opts Options) (*MigrationResult, error) {
	result := &MigrationResult{Table: table, Status: schema.StatusPending}

	latest, err := e.history.LatestApplied(ctx, table)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		result.Errors = append(result.Errors, "no applied migration to roll back")
		return result, nil
	}
	result.MigrationID = latest.ID
	result.SQL = latest.RollbackSQL
	// until the rollback lands, the stored attempt keeps its status
	result.Status = latest.Status

	if len(latest.RollbackSQL) == 0 {
		result.Errors = append(result.Errors,
			schema.NewRollbackError(table, "migration has no rollback statements", nil).Error())
		return result, nil
	}

	assessment := e.validator.ValidateRollbackPossibility(&latest.Migration)
	result.Warnings = append(result.Warnings, assessment.Risks...)
	if !assessment.Possible && !opts.Force {
		for _, blocker := range assessment.Blockers {
			result.Errors = append(result.Errors, blocker)
		}
		result.Errors = append(result.Errors,
			schema.NewRollbackError(table, "rollback cannot restore the previous state; re-run with force to attempt it anyway", nil).Error())
		return result, nil
	}

	if opts.DryRun {
		result.Success = true
		result.Warnings = append(result.Warnings, "dry run, no changes applied")
		return result, nil
	}

	statements := make([]sqlgen.Statement, 0, len(latest.RollbackSQL))
	for _, sql := range latest.RollbackSQL {
		statements = append(statements, sqlgen.Statement{SQL: sql, Table: table})
	}

	e.logger.Info("rolling back migration", "table", table, "id", latest.ID, "statements", len(statements))
	start := time.Now()
	execResult, execErr := e.executor.ExecuteBatch(ctx, statements, execute.Options{
		FailFast: true,
		Timeout:  opts.Timeout,
	})
	result.ExecutionTime = time.Since(start)

	if execResult != nil {
		result.AffectedRows = execResult.AffectedRows
		result.Warnings = append(result.Warnings, execResult.Warnings...)
		for _, se := range execResult.Errors {
			result.Errors = append(result.Errors, fmt.Sprintf("statement %d: %s", se.Index+1, se.Error))
		}
	}
	if execErr != nil || execResult == nil || !execResult.Success {
		rollbackErr := schema.NewRollbackError(table, "rollback execution failed", execErr)
		rollbackErr.AttemptID = latest.ID
		if execErr != nil {
			result.Errors = append(result.Errors, rollbackErr.Error())
		}
		result.Status = latest.Status
		return result, nil
	}

	if err := e.history.UpdateStatus(ctx, latest.ID, schema.StatusRolledBack, ""); err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("rollback applied but history could not be updated: %v", err))
		e.logger.Error("updating rollback status failed", "id", latest.ID, "error", err)
	}
	result.Success = true
	result.Status = schema.StatusRolledBack
	return result, nil
}
