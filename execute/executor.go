package execute

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ridoystarlord/tabledrift/sqlgen"
)

// DB is the transaction entry point. pgxpool.Pool satisfies it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Options struct {
	// FailFast aborts the batch on the first error. When false, every
	// statement is attempted and all errors are collected.
	FailFast bool
	// UseSavepoints wraps each statement in a named savepoint so one
	// failing statement can be undone without discarding earlier
	// successes. Forced on when FailFast is false, since a failed
	// statement otherwise poisons the shared transaction.
	UseSavepoints bool
	// Timeout is advisory for the whole batch; enforcement is the
	// storage layer's. Zero means no deadline.
	Timeout time.Duration
}

type StatementError struct {
	Index int    `json:"index"`
	SQL   string `json:"sql"`
	Error string `json:"error"`
}

type Result struct {
	Success      bool
	AffectedRows int64
	Executed     int
	Remaining    int
	Warnings     []string
	Errors       []StatementError
}

type Executor struct {
	db     DB
	logger *slog.Logger
}

func New(db DB, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{db: db, logger: logger}
}

// ExecuteBatch runs the statements in order inside one transaction.
// Statement order is semantically required and never parallelized.
func (e *Executor) ExecuteBatch(ctx context.Context, statements []sqlgen.Statement, opts Options) (*Result, error) {
	result := &Result{Success: true, Remaining: len(statements)}
	if len(statements) == 0 {
		return result, nil
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	useSavepoints := opts.UseSavepoints || !opts.FailFast

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for i, stmt := range statements {
		if err := ctx.Err(); err != nil {
			result.Success = false
			result.Errors = append(result.Errors, StatementError{Index: i, SQL: stmt.SQL, Error: err.Error()})
			return result, err
		}

		savepoint := fmt.Sprintf("tabledrift_sp_%d", i)
		if useSavepoints {
			if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
				result.Success = false
				result.Errors = append(result.Errors, StatementError{Index: i, SQL: stmt.SQL, Error: err.Error()})
				return result, fmt.Errorf("creating savepoint: %w", err)
			}
		}

		tag, err := tx.Exec(ctx, stmt.SQL)
		if err != nil {
			e.logger.Error("statement failed", "index", i, "kind", string(stmt.Kind), "error", err)
			result.Errors = append(result.Errors, StatementError{Index: i, SQL: stmt.SQL, Error: err.Error()})
			result.Success = false
			result.Remaining--

			if useSavepoints {
				if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
					return result, fmt.Errorf("rolling back to savepoint: %w", rbErr)
				}
			}
			if opts.FailFast {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("aborted at statement %d; %d statement(s) were not attempted", i+1, len(statements)-i-1))
				if !useSavepoints && result.Executed > 0 {
					result.Warnings = append(result.Warnings,
						"transaction rolled back; previously executed statements were undone")
					result.Executed = 0
				}
				return result, nil
			}
			continue
		}

		if useSavepoints {
			if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
				result.Success = false
				result.Errors = append(result.Errors, StatementError{Index: i, SQL: stmt.SQL, Error: err.Error()})
				return result, fmt.Errorf("releasing savepoint: %w", err)
			}
		}

		result.Executed++
		result.Remaining--
		result.AffectedRows += tag.RowsAffected()
	}

	if opts.FailFast && !result.Success {
		return result, nil
	}

	if err := tx.Commit(ctx); err != nil {
		result.Success = false
		return result, fmt.Errorf("commit transaction: %w", err)
	}

	return result, nil
}
