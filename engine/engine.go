package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"time"

	"github.com/google/uuid"

	"github.com/ridoystarlord/tabledrift/compare"
	"github.com/ridoystarlord/tabledrift/execute"
	"github.com/ridoystarlord/tabledrift/schema"
	"github.com/ridoystarlord/tabledrift/sqlgen"
	"github.com/ridoystarlord/tabledrift/validate"
)

// The engine talks to its collaborators through narrow interfaces so
// each can be replaced in tests.

type Comparator interface {
	Compare(ctx context.Context, table schema.Table, opts compare.Options) (*schema.SchemaDiff, error)
}

type Generator interface {
	Generate(diff *schema.SchemaDiff, liveColumns []schema.ColumnDefinition, liveIndexes []schema.IndexDefinition) (*sqlgen.Batch, error)
}

type Validator interface {
	ValidateMigration(ctx context.Context, mig *schema.Migration) *validate.ValidationReport
	CheckDataLossRisks(ctx context.Context, diff *schema.SchemaDiff) []validate.DataLossRisk
	ValidateRollbackPossibility(mig *schema.Migration) *validate.RollbackAssessment
}

type BackupCreator interface {
	Create(ctx context.Context, table string, typ schema.BackupType) (*schema.BackupInfo, error)
}

type Executor interface {
	ExecuteBatch(ctx context.Context, statements []sqlgen.Statement, opts execute.Options) (*execute.Result, error)
}

type Recorder interface {
	Record(ctx context.Context, attempt *schema.AppliedMigration) error
	UpdateStatus(ctx context.Context, id string, status schema.MigrationStatus, errMsg string) error
	LatestApplied(ctx context.Context, table string) (*schema.AppliedMigration, error)
	HasUnresolvedFailure(ctx context.Context, table string) (bool, error)
}

type Provider interface {
	DeclaredTable(name string) (schema.Table, error)
	TableNames() []string
}

type LiveSchema interface {
	TableExists(ctx context.Context, table string) (bool, error)
	Columns(ctx context.Context, table string) ([]schema.ColumnDefinition, error)
	Indexes(ctx context.Context, table string) ([]schema.IndexDefinition, error)
}

type Config struct {
	Comparator Comparator
	Generator  Generator
	Validator  Validator
	Backups    BackupCreator
	Executor   Executor
	History    Recorder
	Provider   Provider
	Live       LiveSchema
	Logger     *slog.Logger
}

type Options struct {
	DryRun          bool
	Force           bool
	Backup          bool
	ContinueOnError bool
	Timeout         time.Duration
	AppliedBy       string
	Compare         compare.Options
}

// DefaultOptions enables the analysis passes the validator depends on.
func DefaultOptions() Options {
	return Options{
		Compare: compare.Options{
			AnalyzeDataMigration:      true,
			ValidateTypeCompatibility: true,
		},
	}
}

type MigrationResult struct {
	Success       bool
	Table         string
	MigrationID   string
	Status        schema.MigrationStatus
	SQL           []string
	RollbackSQL   []string
	Warnings      []string
	Errors        []string
	AffectedRows  int64
	ExecutionTime time.Duration
	BackupPath    string
	Destructive   bool
}

type DryRunResult struct {
	Table         string
	Diff          *schema.SchemaDiff
	SQL           []string
	RollbackSQL   []string
	Warnings      []string
	Report        *validate.ValidationReport
	Risks         []validate.DataLossRisk
	Rollback      *validate.RollbackAssessment
	EstimatedTime time.Duration
	Destructive   bool
}

type BatchMigrationResult struct {
	Success   bool
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Results   []MigrationResult
}

type Engine struct {
	comparator Comparator
	generator  Generator
	validator  Validator
	backups    BackupCreator
	executor   Executor
	history    Recorder
	provider   Provider
	live       LiveSchema
	logger     *slog.Logger
}

func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		comparator: cfg.Comparator,
		generator:  cfg.Generator,
		validator:  cfg.Validator,
		backups:    cfg.Backups,
		executor:   cfg.Executor,
		history:    cfg.History,
		provider:   cfg.Provider,
		live:       cfg.Live,
		logger:     logger,
	}
}

// plan compares the declared table against the live one and renders the
// statement batch. A nil batch with a nil error means no drift.
func (e *Engine) plan(ctx context.Context, table string, opts Options) (*schema.Migration, *sqlgen.Batch, error) {
	declared, err := e.provider.DeclaredTable(table)
	if err != nil {
		return nil, nil, err
	}
	diff, err := e.comparator.Compare(ctx, declared, opts.Compare)
	if err != nil {
		return nil, nil, fmt.Errorf("comparing %s: %w", table, err)
	}
	if diff.Empty() {
		return nil, nil, nil
	}
	liveColumns, err := e.live.Columns(ctx, table)
	if err != nil {
		return nil, nil, fmt.Errorf("reading live columns for %s: %w", table, err)
	}
	liveIndexes, err := e.live.Indexes(ctx, table)
	if err != nil {
		return nil, nil, fmt.Errorf("reading live indexes for %s: %w", table, err)
	}
	batch, err := e.generator.Generate(diff, liveColumns, liveIndexes)
	if err != nil {
		return nil, nil, fmt.Errorf("generating sql for %s: %w", table, err)
	}

	now := time.Now().UTC()
	mig := &schema.Migration{
		ID:             uuid.New().String(),
		Table:          table,
		CreatedAt:      now,
		Diff:           diff,
		ForwardSQL:     statementSQL(batch.Statements),
		RollbackSQL:    statementSQL(batch.Rollback),
		Version:        now.Format("20060102150405"),
		Destructive:    batch.Destructive,
		RequiresBackup: batch.RequiresBackup,
		Description:    describeDiff(table, diff),
	}
	return mig, batch, nil
}

// Execute runs the full pipeline for one table: compare, generate,
// validate, back up when needed, execute, record. Business failures come
// back inside the result; a non-nil error means the engine itself could
// not proceed.
func (e *Engine) Execute(ctx context.Context, table string, opts Options) (*MigrationResult, error) {
	// paths that stop before execution leave the status at PENDING
	result := &MigrationResult{Table: table, Status: schema.StatusPending}

	if !opts.Force {
		failed, err := e.history.HasUnresolvedFailure(ctx, table)
		if err != nil {
			return nil, err
		}
		if failed {
			result.Errors = append(result.Errors,
				"previous migration attempt failed; resolve it or re-run with force")
			return result, nil
		}
	}

	mig, batch, err := e.plan(ctx, table, opts)
	if err != nil {
		return nil, err
	}
	if mig == nil {
		result.Success = true
		result.Warnings = append(result.Warnings, "no schema changes detected")
		return result, nil
	}
	result.MigrationID = mig.ID
	result.SQL = mig.ForwardSQL
	result.RollbackSQL = mig.RollbackSQL
	result.Destructive = mig.Destructive
	result.Warnings = append(result.Warnings, batch.Warnings...)

	report := e.validator.ValidateMigration(ctx, mig)
	result.Warnings = append(result.Warnings, report.Warnings...)
	if !report.Valid {
		result.Errors = append(result.Errors, report.Errors...)
		e.logger.Warn("validation failed", "table", table, "score", report.Score)
		return result, nil
	}

	if opts.DryRun {
		result.Success = true
		result.Warnings = append(result.Warnings, "dry run, no changes applied")
		return result, nil
	}

	if mig.Destructive {
		if opts.Backup {
			info, err := e.backups.Create(ctx, table, schema.BackupFull)
			if err != nil {
				result.Errors = append(result.Errors,
					schema.NewBackupError(table, "backup failed, migration aborted", err).Error())
				return result, nil
			}
			result.BackupPath = info.Path
			e.logger.Info("backup created", "table", table, "path", info.Path)
		} else if !opts.Force {
			risks := e.validator.CheckDataLossRisks(ctx, mig.Diff)
			descriptions := make([]string, 0, len(risks))
			for _, r := range risks {
				descriptions = append(descriptions, r.Description)
			}
			result.Errors = append(result.Errors, (&schema.DataLossError{
				MigrationError: schema.MigrationError{
					Code:    schema.ErrCodeDataLoss,
					Table:   table,
					Message: "destructive migration requires --force or --backup",
				},
				Risks: descriptions,
			}).Error())
			return result, nil
		}
	}

	attempt := &schema.AppliedMigration{
		Migration:   *mig,
		AppliedAt:   time.Now().UTC(),
		BackupPath:  result.BackupPath,
		AppliedBy:   appliedBy(opts.AppliedBy),
		Status:      schema.StatusPending,
		Environment: environment(),
	}
	if err := advance(attempt, schema.StatusRunning); err != nil {
		return nil, err
	}

	e.logger.Info("executing migration", "table", table, "id", mig.ID, "statements", len(batch.Statements))
	start := time.Now()
	execResult, execErr := e.executor.ExecuteBatch(ctx, batch.Statements, execute.Options{
		FailFast: !opts.ContinueOnError,
		Timeout:  opts.Timeout,
	})
	attempt.ExecutionTime = time.Since(start)
	result.ExecutionTime = attempt.ExecutionTime

	if execResult != nil {
		result.AffectedRows = execResult.AffectedRows
		result.Warnings = append(result.Warnings, execResult.Warnings...)
		for _, se := range execResult.Errors {
			result.Errors = append(result.Errors, fmt.Sprintf("statement %d: %s", se.Index+1, se.Error))
		}
		attempt.AffectedRows = execResult.AffectedRows
	}

	switch {
	case execErr == nil && execResult != nil && execResult.Success:
		if err := advance(attempt, schema.StatusApplied); err != nil {
			return nil, err
		}
		result.Success = true
	case errors.Is(execErr, context.DeadlineExceeded):
		if err := advance(attempt, schema.StatusFailed); err != nil {
			return nil, err
		}
		timeout := schema.NewTimeoutError(table, fmt.Sprintf("migration exceeded %s", opts.Timeout))
		timeout.AttemptID = mig.ID
		attempt.Error = timeout.Error()
		result.Errors = append(result.Errors, timeout.Error())
	default:
		if err := advance(attempt, schema.StatusFailed); err != nil {
			return nil, err
		}
		msg := "one or more statements failed"
		if execErr != nil {
			msg = execErr.Error()
		}
		execFailure := schema.NewExecutionError(table, msg, execErr)
		execFailure.AttemptID = mig.ID
		attempt.Error = execFailure.Error()
		if execErr != nil {
			result.Errors = append(result.Errors, execFailure.Error())
		}
	}
	result.Status = attempt.Status

	if err := e.history.Record(ctx, attempt); err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("migration %s but history could not be recorded: %v", verb(attempt.Status), err))
		e.logger.Error("recording migration failed", "id", mig.ID, "error", err)
	}

	return result, nil
}

// DryRun produces the full preview: diff, SQL, validation report, risk
// analysis and rollback assessment, with no database mutation at all.
func (e *Engine) DryRun(ctx context.Context, table string, opts Options) (*DryRunResult, error) {
	mig, batch, err := e.plan(ctx, table, opts)
	if err != nil {
		return nil, err
	}
	if mig == nil {
		return &DryRunResult{Table: table, Warnings: []string{"no schema changes detected"}}, nil
	}
	return &DryRunResult{
		Table:         table,
		Diff:          mig.Diff,
		SQL:           mig.ForwardSQL,
		RollbackSQL:   mig.RollbackSQL,
		Warnings:      batch.Warnings,
		Report:        e.validator.ValidateMigration(ctx, mig),
		Risks:         e.validator.CheckDataLossRisks(ctx, mig.Diff),
		Rollback:      e.validator.ValidateRollbackPossibility(mig),
		EstimatedTime: batch.EstimatedTime,
		Destructive:   mig.Destructive,
	}, nil
}

// ExecuteAll migrates every declared table in declaration order. One
// table's business failure does not stop the rest; an engine error does.
func (e *Engine) ExecuteAll(ctx context.Context, opts Options) (*BatchMigrationResult, error) {
	batch := &BatchMigrationResult{Success: true}
	for _, name := range e.provider.TableNames() {
		exists, err := e.live.TableExists(ctx, name)
		if err != nil {
			return nil, err
		}
		if !exists {
			batch.Skipped++
			batch.Results = append(batch.Results, MigrationResult{
				Table:    name,
				Warnings: []string{"table does not exist, skipped"},
			})
			continue
		}
		result, err := e.Execute(ctx, name, opts)
		if err != nil {
			return nil, err
		}
		batch.Results = append(batch.Results, *result)
		if result.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
			batch.Success = false
		}
	}
	batch.Total = len(batch.Results)
	return batch, nil
}

func advance(attempt *schema.AppliedMigration, next schema.MigrationStatus) error {
	if !attempt.Status.CanTransitionTo(next) {
		conflict := schema.NewConflictError(attempt.Table,
			fmt.Sprintf("illegal status transition %s -> %s", attempt.Status, next))
		conflict.AttemptID = attempt.ID
		return conflict
	}
	attempt.Status = next
	return nil
}

func statementSQL(statements []sqlgen.Statement) []string {
	out := make([]string, 0, len(statements))
	for _, s := range statements {
		out = append(out, s.SQL)
	}
	return out
}

func describeDiff(table string, diff *schema.SchemaDiff) string {
	return fmt.Sprintf("%s: %d added, %d removed, %d modified, %d renamed",
		table, len(diff.AddedColumns), len(diff.RemovedColumns),
		len(diff.ModifiedColumns), len(diff.RenamedColumns))
}

func appliedBy(override string) string {
	if override != "" {
		return override
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

func environment() map[string]string {
	env := map[string]string{}
	if host, err := os.Hostname(); err == nil {
		env["hostname"] = host
	}
	return env
}

func verb(status schema.MigrationStatus) string {
	if status == schema.StatusApplied {
		return "applied"
	}
	return "failed"
}
