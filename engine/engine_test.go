package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/tabledrift/compare"
	"github.com/ridoystarlord/tabledrift/execute"
	"github.com/ridoystarlord/tabledrift/schema"
	"github.com/ridoystarlord/tabledrift/sqlgen"
	"github.com/ridoystarlord/tabledrift/validate"
)

type fakeComparator struct {
	diff *schema.SchemaDiff
	err  error
}

func (f *fakeComparator) Compare(ctx context.Context, table schema.Table, opts compare.Options) (*schema.SchemaDiff, error) {
	return f.diff, f.err
}

type fakeBackups struct {
	created []string
	err     error
}

func (f *fakeBackups) Create(ctx context.Context, table string, typ schema.BackupType) (*schema.BackupInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, table)
	return &schema.BackupInfo{Table: table, Type: typ, Path: "backups/" + table + ".json"}, nil
}

type fakeExecutor struct {
	executed [][]sqlgen.Statement
	result   *execute.Result
	err      error
}

func (f *fakeExecutor) ExecuteBatch(ctx context.Context, statements []sqlgen.Statement, opts execute.Options) (*execute.Result, error) {
	f.executed = append(f.executed, statements)
	if f.result != nil || f.err != nil {
		return f.result, f.err
	}
	return &execute.Result{Success: true, Executed: len(statements), AffectedRows: int64(len(statements))}, nil
}

type fakeRecorder struct {
	attempts      []schema.AppliedMigration
	statusUpdates []schema.MigrationStatus
	latest        *schema.AppliedMigration
	hasFailure    bool
}

func (f *fakeRecorder) Record(ctx context.Context, attempt *schema.AppliedMigration) error {
	f.attempts = append(f.attempts, *attempt)
	return nil
}

func (f *fakeRecorder) UpdateStatus(ctx context.Context, id string, status schema.MigrationStatus, errMsg string) error {
	f.statusUpdates = append(f.statusUpdates, status)
	return nil
}

func (f *fakeRecorder) LatestApplied(ctx context.Context, table string) (*schema.AppliedMigration, error) {
	return f.latest, nil
}

func (f *fakeRecorder) HasUnresolvedFailure(ctx context.Context, table string) (bool, error) {
	return f.hasFailure, nil
}

type fakeProvider struct {
	tables []schema.Table
}

func (f *fakeProvider) DeclaredTable(name string) (schema.Table, error) {
	for _, t := range f.tables {
		if t.Name == name {
			return t, nil
		}
	}
	return schema.Table{}, errors.New("table not declared")
}

func (f *fakeProvider) TableNames() []string {
	names := make([]string, len(f.tables))
	for i, t := range f.tables {
		names[i] = t.Name
	}
	return names
}

type fakeLive struct {
	exists  bool
	columns []schema.ColumnDefinition
	indexes []schema.IndexDefinition
}

func (f *fakeLive) TableExists(ctx context.Context, table string) (bool, error) {
	return f.exists, nil
}

func (f *fakeLive) Columns(ctx context.Context, table string) ([]schema.ColumnDefinition, error) {
	return f.columns, nil
}

func (f *fakeLive) Indexes(ctx context.Context, table string) ([]schema.IndexDefinition, error) {
	return f.indexes, nil
}

type harness struct {
	engine   *Engine
	backups  *fakeBackups
	executor *fakeExecutor
	recorder *fakeRecorder
}

func newHarness(diff *schema.SchemaDiff) *harness {
	backups := &fakeBackups{}
	executor := &fakeExecutor{}
	recorder := &fakeRecorder{}
	eng := New(Config{
		Comparator: &fakeComparator{diff: diff},
		Generator:  sqlgen.NewGenerator(),
		Validator:  validate.New(nil),
		Backups:    backups,
		Executor:   executor,
		History:    recorder,
		Provider: &fakeProvider{tables: []schema.Table{
			{Name: "tabusers", Fields: []schema.Field{{Name: "email", Type: "text"}}},
		}},
		Live: &fakeLive{
			exists: true,
			columns: []schema.ColumnDefinition{
				{Name: "id", Type: "bigint", Primary: true},
				{Name: "legacy", Type: "varchar(140)", Nullable: true},
			},
		},
	})
	return &harness{engine: eng, backups: backups, executor: executor, recorder: recorder}
}

func additiveDiff() *schema.SchemaDiff {
	return &schema.SchemaDiff{
		Table: "tabusers",
		AddedColumns: []schema.ColumnDefinition{
			{Name: "email", Type: "varchar(140)", Nullable: true},
		},
	}
}

func destructiveDiff() *schema.SchemaDiff {
	return &schema.SchemaDiff{
		Table: "tabusers",
		RemovedColumns: []schema.ColumnDefinition{
			{Name: "legacy", Type: "varchar(140)", Nullable: true},
		},
	}
}

func TestExecuteAdditiveMigration(t *testing.T) {
	h := newHarness(additiveDiff())
	result, err := h.engine.Execute(context.Background(), "tabusers", DefaultOptions())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, schema.StatusApplied, result.Status)
	require.Len(t, h.executor.executed, 1)
	require.Len(t, h.recorder.attempts, 1)

	attempt := h.recorder.attempts[0]
	assert.Equal(t, schema.StatusApplied, attempt.Status)
	assert.Equal(t, "tabusers", attempt.Table)
	assert.NotEmpty(t, attempt.ID)
	assert.NotEmpty(t, attempt.AppliedBy)
	assert.NotEmpty(t, attempt.ForwardSQL)
	assert.NotEmpty(t, attempt.RollbackSQL)
}

func TestExecuteNoDrift(t *testing.T) {
	h := newHarness(&schema.SchemaDiff{Table: "tabusers"})
	result, err := h.engine.Execute(context.Background(), "tabusers", DefaultOptions())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, schema.StatusPending, result.Status)
	assert.Empty(t, result.SQL)
	assert.Contains(t, result.Warnings, "no schema changes detected")
	assert.Empty(t, h.executor.executed, "no statements run when nothing changed")
	assert.Empty(t, h.recorder.attempts, "no attempt recorded when nothing changed")
}

func TestExecuteDestructiveWithoutForceOrBackup(t *testing.T) {
	h := newHarness(destructiveDiff())
	result, err := h.engine.Execute(context.Background(), "tabusers", DefaultOptions())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, schema.StatusPending, result.Status)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[len(result.Errors)-1], "data_loss_risk")
	assert.Empty(t, h.executor.executed, "nothing executes without force or backup")
	assert.Empty(t, h.backups.created)
	assert.Empty(t, h.recorder.attempts)
}

func TestExecuteDestructiveWithBackup(t *testing.T) {
	h := newHarness(destructiveDiff())
	opts := DefaultOptions()
	opts.Backup = true
	result, err := h.engine.Execute(context.Background(), "tabusers", opts)
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, h.backups.created, 1)
	assert.Equal(t, "backups/tabusers.json", result.BackupPath)
	require.Len(t, h.recorder.attempts, 1)
	assert.Equal(t, result.BackupPath, h.recorder.attempts[0].BackupPath)
}

func TestExecuteDestructiveWithForce(t *testing.T) {
	h := newHarness(destructiveDiff())
	opts := DefaultOptions()
	opts.Force = true
	result, err := h.engine.Execute(context.Background(), "tabusers", opts)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, h.backups.created, "force skips the backup")
	require.Len(t, h.executor.executed, 1)
}

func TestExecuteBackupFailureAborts(t *testing.T) {
	h := newHarness(destructiveDiff())
	h.backups.err = errors.New("disk full")
	opts := DefaultOptions()
	opts.Backup = true
	result, err := h.engine.Execute(context.Background(), "tabusers", opts)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Empty(t, h.executor.executed, "a failed backup blocks execution")
	assert.Empty(t, h.recorder.attempts)
}

func TestExecuteDryRun(t *testing.T) {
	h := newHarness(destructiveDiff())
	opts := DefaultOptions()
	opts.DryRun = true
	result, err := h.engine.Execute(context.Background(), "tabusers", opts)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, schema.StatusPending, result.Status)
	assert.NotEmpty(t, result.SQL)
	assert.Contains(t, result.Warnings, "dry run, no changes applied")
	assert.Empty(t, h.executor.executed)
	assert.Empty(t, h.backups.created)
	assert.Empty(t, h.recorder.attempts)
}

func TestExecuteRefusesAfterFailedAttempt(t *testing.T) {
	h := newHarness(additiveDiff())
	h.recorder.hasFailure = true
	result, err := h.engine.Execute(context.Background(), "tabusers", DefaultOptions())
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "previous migration attempt failed")
	assert.Empty(t, h.executor.executed)

	// force overrides the refusal
	opts := DefaultOptions()
	opts.Force = true
	result, err = h.engine.Execute(context.Background(), "tabusers", opts)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestExecuteRecordsFailure(t *testing.T) {
	h := newHarness(additiveDiff())
	h.executor.result = &execute.Result{
		Success: false,
		Errors:  []execute.StatementError{{Index: 0, SQL: "x", Error: "syntax error"}},
	}
	result, err := h.engine.Execute(context.Background(), "tabusers", DefaultOptions())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, schema.StatusFailed, result.Status)
	require.Len(t, h.recorder.attempts, 1)
	assert.Equal(t, schema.StatusFailed, h.recorder.attempts[0].Status)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "syntax error")
}

func TestExecuteTimeout(t *testing.T) {
	h := newHarness(additiveDiff())
	opts := DefaultOptions()
	opts.Backup = true
	h.executor.result = &execute.Result{Success: false}
	h.executor.err = context.DeadlineExceeded
	result, err := h.engine.Execute(context.Background(), "tabusers", opts)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, schema.StatusFailed, result.Status)
	require.Len(t, h.recorder.attempts, 1)
	assert.Equal(t, schema.StatusFailed, h.recorder.attempts[0].Status)
	assert.Contains(t, h.recorder.attempts[0].Error, "timeout")
}

func TestExecuteValidationFailureBlocks(t *testing.T) {
	// a diff violating disjointness fails structural validation
	diff := additiveDiff()
	diff.RemovedColumns = []schema.ColumnDefinition{
		{Name: "email", Type: "varchar(140)", Nullable: true},
	}
	h := newHarness(diff)
	result, err := h.engine.Execute(context.Background(), "tabusers", DefaultOptions())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, schema.StatusPending, result.Status)
	require.NotEmpty(t, result.Errors)
	assert.Empty(t, h.executor.executed, "invalid migrations never execute")
	assert.Empty(t, h.recorder.attempts)
}

func TestDryRunReport(t *testing.T) {
	h := newHarness(destructiveDiff())
	preview, err := h.engine.DryRun(context.Background(), "tabusers", DefaultOptions())
	require.NoError(t, err)

	assert.NotEmpty(t, preview.SQL)
	assert.NotEmpty(t, preview.RollbackSQL)
	assert.True(t, preview.Destructive)
	require.NotNil(t, preview.Report)
	assert.NotEmpty(t, preview.Risks)
	require.NotNil(t, preview.Rollback)
	assert.False(t, preview.Rollback.Possible, "dropping a column cannot be fully rolled back")
	assert.Empty(t, h.executor.executed)
}

func TestRollbackAppliedMigration(t *testing.T) {
	h := newHarness(additiveDiff())
	h.recorder.latest = &schema.AppliedMigration{
		Migration: schema.Migration{
			ID:          "m1",
			Table:       "tabusers",
			Diff:        additiveDiff(),
			ForwardSQL:  []string{`ALTER TABLE "tabusers" ADD COLUMN "email" varchar(140);`},
			RollbackSQL: []string{`ALTER TABLE "tabusers" DROP COLUMN "email";`},
		},
		Status: schema.StatusApplied,
	}

	result, err := h.engine.Rollback(context.Background(), "tabusers", DefaultOptions())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, schema.StatusRolledBack, result.Status)
	require.Len(t, h.executor.executed, 1)
	assert.Equal(t, `ALTER TABLE "tabusers" DROP COLUMN "email";`, h.executor.executed[0][0].SQL)
	require.Len(t, h.recorder.statusUpdates, 1)
	assert.Equal(t, schema.StatusRolledBack, h.recorder.statusUpdates[0])
}

func TestRollbackWithNothingApplied(t *testing.T) {
	h := newHarness(additiveDiff())
	result, err := h.engine.Rollback(context.Background(), "tabusers", DefaultOptions())
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "no applied migration")
	assert.Empty(t, h.executor.executed)
}

func TestRollbackRefusedWhenImpossible(t *testing.T) {
	h := newHarness(additiveDiff())
	h.recorder.latest = &schema.AppliedMigration{
		Migration: schema.Migration{
			ID:          "m1",
			Table:       "tabusers",
			Diff:        destructiveDiff(),
			ForwardSQL:  []string{`ALTER TABLE "tabusers" DROP COLUMN "legacy";`},
			RollbackSQL: []string{`ALTER TABLE "tabusers" ADD COLUMN "legacy" varchar(140);`},
		},
		Status: schema.StatusApplied,
	}

	result, err := h.engine.Rollback(context.Background(), "tabusers", DefaultOptions())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, schema.StatusApplied, result.Status, "the refused attempt keeps its stored status")
	assert.Empty(t, h.executor.executed)

	// force attempts it anyway
	opts := DefaultOptions()
	opts.Force = true
	result, err = h.engine.Rollback(context.Background(), "tabusers", opts)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, h.executor.executed, 1)
}

func TestExecuteAll(t *testing.T) {
	h := newHarness(additiveDiff())
	batch, err := h.engine.ExecuteAll(context.Background(), DefaultOptions())
	require.NoError(t, err)

	assert.True(t, batch.Success)
	assert.Equal(t, 1, batch.Total)
	assert.Equal(t, 1, batch.Succeeded)
}

func TestExecuteUnknownTable(t *testing.T) {
	h := newHarness(additiveDiff())
	_, err := h.engine.Execute(context.Background(), "tabmissing", DefaultOptions())
	require.Error(t, err)
}
