package schema

import "fmt"

type ErrorCode string

const (
	ErrCodeValidation ErrorCode = "validation_failed"
	ErrCodeExecution  ErrorCode = "execution_failed"
	ErrCodeRollback   ErrorCode = "rollback_failed"
	ErrCodeTimeout    ErrorCode = "timeout"
	ErrCodeBackup     ErrorCode = "backup_failed"
	ErrCodeRestore    ErrorCode = "restore_failed"
	ErrCodeDependency ErrorCode = "dependency_failed"
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeDataLoss   ErrorCode = "data_loss_risk"
)

// MigrationError is the base error for every engine failure. Validation
// and backup failures carry it before any destructive statement runs.
type MigrationError struct {
	Code      ErrorCode
	Table     string
	AttemptID string
	Message   string
	Details   map[string]any
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Table, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *MigrationError) Unwrap() error { return e.Err }

func newError(code ErrorCode, table, msg string, err error) *MigrationError {
	return &MigrationError{Code: code, Table: table, Message: msg, Err: err}
}

func NewValidationError(table, msg string) *MigrationError {
	return newError(ErrCodeValidation, table, msg, nil)
}

func NewExecutionError(table, msg string, err error) *MigrationError {
	return newError(ErrCodeExecution, table, msg, err)
}

func NewRollbackError(table, msg string, err error) *MigrationError {
	return newError(ErrCodeRollback, table, msg, err)
}

func NewTimeoutError(table, msg string) *MigrationError {
	return newError(ErrCodeTimeout, table, msg, nil)
}

func NewBackupError(table, msg string, err error) *MigrationError {
	return newError(ErrCodeBackup, table, msg, err)
}

func NewRestoreError(table, msg string, err error) *MigrationError {
	return newError(ErrCodeRestore, table, msg, err)
}

func NewConflictError(table, msg string) *MigrationError {
	return newError(ErrCodeConflict, table, msg, nil)
}

// DataLossError blocks a destructive migration that has neither a force
// flag nor a completed backup.
type DataLossError struct {
	MigrationError
	Risks []string
}

func NewDataLossError(table string, risks []string) *DataLossError {
	return &DataLossError{
		MigrationError: MigrationError{
			Code:    ErrCodeDataLoss,
			Table:   table,
			Message: fmt.Sprintf("%d unmitigated data loss risk(s)", len(risks)),
		},
		Risks: risks,
	}
}
