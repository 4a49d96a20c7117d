package schema

import "time"

type MigrationStatus string

const (
	StatusPending    MigrationStatus = "PENDING"
	StatusRunning    MigrationStatus = "RUNNING"
	StatusApplied    MigrationStatus = "APPLIED"
	StatusFailed     MigrationStatus = "FAILED"
	StatusRolledBack MigrationStatus = "ROLLED_BACK"
)

var legalTransitions = map[MigrationStatus][]MigrationStatus{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusApplied, StatusFailed},
	StatusApplied: {StatusRolledBack},
}

// CanTransitionTo enforces the migration lifecycle:
// PENDING -> RUNNING -> {APPLIED, FAILED}; APPLIED -> ROLLED_BACK.
func (s MigrationStatus) CanTransitionTo(next MigrationStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Migration is a planned schema change. It stays ephemeral until the
// executor applies it and the history manager records the attempt.
type Migration struct {
	ID             string
	Table          string
	CreatedAt      time.Time
	Diff           *SchemaDiff
	ForwardSQL     []string
	RollbackSQL    []string
	Version        string
	Destructive    bool
	RequiresBackup bool
	Description    string
	Metadata       map[string]string
}

// AppliedMigration is one persisted execution attempt. Only Status and
// Error mutate after insert.
type AppliedMigration struct {
	Migration
	AppliedAt     time.Time
	ExecutionTime time.Duration
	AffectedRows  int64
	BackupPath    string
	AppliedBy     string
	Status        MigrationStatus
	Error         string
	RollbackInfo  map[string]string
	Environment   map[string]string
}

type BackupType string

const (
	BackupFull        BackupType = "FULL"
	BackupColumn      BackupType = "COLUMN"
	BackupSchema      BackupType = "SCHEMA"
	BackupIncremental BackupType = "INCREMENTAL"
)

// BackupInfo describes one backup file. Checksum is the sha256 digest of
// the exact serialized file contents and is re-verified before restore.
type BackupInfo struct {
	ID          string            `json:"id"`
	Table       string            `json:"table"`
	Type        BackupType        `json:"type"`
	CreatedAt   time.Time         `json:"created_at"`
	Path        string            `json:"path"`
	Size        int64             `json:"size"`
	Checksum    string            `json:"checksum"`
	RecordCount int               `json:"record_count"`
	Compressed  bool              `json:"compressed"`
	Encrypted   bool              `json:"encrypted"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type MigrationStats struct {
	Total              int
	Applied            int
	Failed             int
	RolledBack         int
	Pending            int
	Destructive        int
	LastMigration      time.Time
	TotalExecutionTime time.Duration
}

// MigrationHistory is a derived view over the persisted attempts for one
// table. It is built on demand and never stored.
type MigrationHistory struct {
	Table       string
	Migrations  []AppliedMigration
	LastApplied *AppliedMigration
	Failed      []AppliedMigration
	Stats       MigrationStats
}
