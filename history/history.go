package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ridoystarlord/tabledrift/schema"
)

const historyTable = "tabledrift_migrations"

var createHistorySQL = []string{
	`CREATE TABLE IF NOT EXISTS tabledrift_migrations (
		id TEXT PRIMARY KEY,
		table_name TEXT NOT NULL,
		version TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		forward_sql JSONB NOT NULL DEFAULT '[]',
		rollback_sql JSONB NOT NULL DEFAULT '[]',
		destructive BOOLEAN NOT NULL DEFAULT FALSE,
		requires_backup BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL,
		execution_time_ms BIGINT NOT NULL DEFAULT 0,
		affected_rows BIGINT NOT NULL DEFAULT 0,
		backup_path TEXT NOT NULL DEFAULT '',
		applied_by TEXT NOT NULL DEFAULT '',
		rollback_info JSONB NOT NULL DEFAULT '{}',
		environment JSONB NOT NULL DEFAULT '{}',
		metadata JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tabledrift_migrations_table ON tabledrift_migrations (table_name)`,
	`CREATE INDEX IF NOT EXISTS idx_tabledrift_migrations_status ON tabledrift_migrations (status)`,
	`CREATE INDEX IF NOT EXISTS idx_tabledrift_migrations_applied_at ON tabledrift_migrations (applied_at)`,
}

// Manager persists migration attempts in tabledrift_migrations. The
// storage table is created lazily on first use, once per instance.
type Manager struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
}

func NewManager(pool *pgxpool.Pool, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{pool: pool, logger: logger}
}

func (m *Manager) ensureTable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}
	for _, stmt := range createHistorySQL {
		if _, err := m.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating history table: %w", err)
		}
	}
	m.initialized = true
	return nil
}

// Record inserts one row for the attempt. Re-running a migration after a
// failure produces a new row rather than overwriting the old one.
func (m *Manager) Record(ctx context.Context, attempt *schema.AppliedMigration) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	forward, err := json.Marshal(attempt.ForwardSQL)
	if err != nil {
		return fmt.Errorf("encoding forward sql: %v", err)
	}
	rollback, err := json.Marshal(attempt.RollbackSQL)
	if err != nil {
		return fmt.Errorf("encoding rollback sql: %v", err)
	}
	rollbackInfo, err := json.Marshal(orEmpty(attempt.RollbackInfo))
	if err != nil {
		return fmt.Errorf("encoding rollback info: %v", err)
	}
	environment, err := json.Marshal(orEmpty(attempt.Environment))
	if err != nil {
		return fmt.Errorf("encoding environment: %v", err)
	}
	metadata, err := json.Marshal(orEmpty(attempt.Metadata))
	if err != nil {
		return fmt.Errorf("encoding metadata: %v", err)
	}

	_, err = m.pool.Exec(ctx, `
		INSERT INTO tabledrift_migrations (
			id, table_name, version, description,
			forward_sql, rollback_sql, destructive, requires_backup,
			status, error, created_at, applied_at,
			execution_time_ms, affected_rows, backup_path, applied_by,
			rollback_info, environment, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		attempt.ID, attempt.Table, attempt.Version, attempt.Description,
		forward, rollback, attempt.Destructive, attempt.RequiresBackup,
		string(attempt.Status), attempt.Error, attempt.CreatedAt, attempt.AppliedAt,
		attempt.ExecutionTime.Milliseconds(), attempt.AffectedRows, attempt.BackupPath, attempt.AppliedBy,
		rollbackInfo, environment, metadata,
	)
	if err != nil {
		return fmt.Errorf("recording migration %s: %w", attempt.ID, err)
	}
	m.logger.Info("migration recorded", "id", attempt.ID, "table", attempt.Table, "status", string(attempt.Status))
	return nil
}

// UpdateStatus moves a recorded attempt to a new lifecycle status. The
// transition is checked against the legal lifecycle and refused with a
// conflict error when it does not apply.
func (m *Manager) UpdateStatus(ctx context.Context, id string, status schema.MigrationStatus, errMsg string) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	var current string
	err := m.pool.QueryRow(ctx,
		`SELECT status FROM tabledrift_migrations WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("migration %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	if !schema.MigrationStatus(current).CanTransitionTo(status) {
		conflict := schema.NewConflictError("",
			fmt.Sprintf("illegal status transition %s -> %s", current, status))
		conflict.AttemptID = id
		return conflict
	}
	_, err = m.pool.Exec(ctx,
		`UPDATE tabledrift_migrations SET status = $2, error = $3 WHERE id = $1`,
		id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("updating migration status: %w", err)
	}
	m.logger.Info("migration status updated", "id", id, "from", current, "to", string(status))
	return nil
}

// History returns attempts for a table, newest first. A limit of zero
// means no limit. An empty table name returns attempts for all tables.
func (m *Manager) History(ctx context.Context, table string, limit int) ([]schema.AppliedMigration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	query := selectColumns + ` FROM tabledrift_migrations`
	args := []any{}
	if table != "" {
		query += ` WHERE table_name = $1`
		args = append(args, table)
	}
	query += ` ORDER BY applied_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := m.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

func (m *Manager) Get(ctx context.Context, id string) (*schema.AppliedMigration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := m.pool.Query(ctx,
		selectColumns+` FROM tabledrift_migrations WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("querying migration: %w", err)
	}
	defer rows.Close()
	attempts, err := scanAttempts(rows)
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return nil, fmt.Errorf("migration %s not found", id)
	}
	return &attempts[0], nil
}

// LatestApplied returns the most recent attempt still in APPLIED state,
// or nil when the table has none.
func (m *Manager) LatestApplied(ctx context.Context, table string) (*schema.AppliedMigration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := m.pool.Query(ctx,
		selectColumns+` FROM tabledrift_migrations
		 WHERE table_name = $1 AND status = $2
		 ORDER BY applied_at DESC, id DESC LIMIT 1`,
		table, string(schema.StatusApplied))
	if err != nil {
		return nil, fmt.Errorf("querying latest applied: %w", err)
	}
	defer rows.Close()
	attempts, err := scanAttempts(rows)
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return nil, nil
	}
	return &attempts[0], nil
}

func (m *Manager) IsApplied(ctx context.Context, table, version string) (bool, error) {
	if err := m.ensureTable(ctx); err != nil {
		return false, err
	}
	var count int
	err := m.pool.QueryRow(ctx,
		`SELECT count(*) FROM tabledrift_migrations
		 WHERE table_name = $1 AND version = $2 AND status = $3`,
		table, version, string(schema.StatusApplied)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking applied version: %w", err)
	}
	return count > 0, nil
}

// Failed returns attempts stuck in FAILED state, newest first.
func (m *Manager) Failed(ctx context.Context, table string) ([]schema.AppliedMigration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	query := selectColumns + ` FROM tabledrift_migrations WHERE status = $1`
	args := []any{string(schema.StatusFailed)}
	if table != "" {
		query += ` AND table_name = $2`
		args = append(args, table)
	}
	query += ` ORDER BY applied_at DESC, id DESC`
	rows, err := m.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying failed migrations: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// HasUnresolvedFailure reports whether the table's most recent attempt
// ended in FAILED, which blocks new runs unless forced.
func (m *Manager) HasUnresolvedFailure(ctx context.Context, table string) (bool, error) {
	if err := m.ensureTable(ctx); err != nil {
		return false, err
	}
	var status string
	err := m.pool.QueryRow(ctx,
		`SELECT status FROM tabledrift_migrations
		 WHERE table_name = $1 ORDER BY applied_at DESC, id DESC LIMIT 1`,
		table).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking last attempt: %w", err)
	}
	return schema.MigrationStatus(status) == schema.StatusFailed, nil
}

// Stats aggregates attempt counts for one table, or for all tables when
// the table name is empty. Pending is derived, not stored.
func (m *Manager) Stats(ctx context.Context, table string) (*schema.MigrationStats, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	query := `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'APPLIED'),
			count(*) FILTER (WHERE status = 'FAILED'),
			count(*) FILTER (WHERE status = 'ROLLED_BACK'),
			count(*) FILTER (WHERE destructive),
			COALESCE(max(applied_at), 'epoch'::timestamptz),
			COALESCE(sum(execution_time_ms), 0)
		FROM tabledrift_migrations`
	args := []any{}
	if table != "" {
		query += ` WHERE table_name = $1`
		args = append(args, table)
	}
	stats := &schema.MigrationStats{}
	var lastMigration time.Time
	var totalMs int64
	err := m.pool.QueryRow(ctx, query, args...).Scan(
		&stats.Total, &stats.Applied, &stats.Failed, &stats.RolledBack,
		&stats.Destructive, &lastMigration, &totalMs)
	if err != nil {
		return nil, fmt.Errorf("aggregating stats: %w", err)
	}
	stats.Pending = stats.Total - stats.Applied - stats.Failed - stats.RolledBack
	stats.LastMigration = lastMigration
	stats.TotalExecutionTime = time.Duration(totalMs) * time.Millisecond
	return stats, nil
}

// TableHistory builds the full derived view for one table.
func (m *Manager) TableHistory(ctx context.Context, table string) (*schema.MigrationHistory, error) {
	attempts, err := m.History(ctx, table, 0)
	if err != nil {
		return nil, err
	}
	stats, err := m.Stats(ctx, table)
	if err != nil {
		return nil, err
	}
	view := &schema.MigrationHistory{
		Table:      table,
		Migrations: attempts,
		Stats:      *stats,
	}
	for i := range attempts {
		switch attempts[i].Status {
		case schema.StatusApplied:
			if view.LastApplied == nil {
				view.LastApplied = &attempts[i]
			}
		case schema.StatusFailed:
			view.Failed = append(view.Failed, attempts[i])
		}
	}
	return view, nil
}

const selectColumns = `
	SELECT id, table_name, version, description,
	       forward_sql, rollback_sql, destructive, requires_backup,
	       status, error, created_at, applied_at,
	       execution_time_ms, affected_rows, backup_path, applied_by,
	       rollback_info, environment, metadata`

func scanAttempts(rows pgx.Rows) ([]schema.AppliedMigration, error) {
	var attempts []schema.AppliedMigration
	for rows.Next() {
		var a schema.AppliedMigration
		var status string
		var forward, rollback, rollbackInfo, environment, metadata []byte
		var executionMs int64
		err := rows.Scan(
			&a.ID, &a.Table, &a.Version, &a.Description,
			&forward, &rollback, &a.Destructive, &a.RequiresBackup,
			&status, &a.Error, &a.CreatedAt, &a.AppliedAt,
			&executionMs, &a.AffectedRows, &a.BackupPath, &a.AppliedBy,
			&rollbackInfo, &environment, &metadata)
		if err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		a.Status = schema.MigrationStatus(status)
		a.ExecutionTime = time.Duration(executionMs) * time.Millisecond
		if err := json.Unmarshal(forward, &a.ForwardSQL); err != nil {
			return nil, fmt.Errorf("decoding forward sql: %v", err)
		}
		if err := json.Unmarshal(rollback, &a.RollbackSQL); err != nil {
			return nil, fmt.Errorf("decoding rollback sql: %v", err)
		}
		if err := json.Unmarshal(rollbackInfo, &a.RollbackInfo); err != nil {
			return nil, fmt.Errorf("decoding rollback info: %v", err)
		}
		if err := json.Unmarshal(environment, &a.Environment); err != nil {
			return nil, fmt.Errorf("decoding environment: %v", err)
		}
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %v", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading migration rows: %w", err)
	}
	return attempts, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
