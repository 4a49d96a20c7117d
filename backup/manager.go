package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ridoystarlord/tabledrift/schema"
)

// Store is the table access the backup manager needs. The introspect
// package provides the production implementation.
type Store interface {
	Columns(ctx context.Context, table string) ([]schema.ColumnDefinition, error)
	Indexes(ctx context.Context, table string) ([]schema.IndexDefinition, error)
	Rows(ctx context.Context, table string) ([]string, [][]any, error)
	Restore(ctx context.Context, table string, columns []schema.ColumnDefinition, indexes []schema.IndexDefinition, columnNames []string, rows [][]any) error
	RowCount(ctx context.Context, table string) (int, error)
}

// Document is the single-file backup format: an info block with an
// embedded checksum plus the structure and/or row data.
type Document struct {
	Info schema.BackupInfo `json:"info"`
	Data Payload           `json:"data"`
}

type Payload struct {
	Columns     []schema.ColumnDefinition `json:"columns,omitempty"`
	Indexes     []schema.IndexDefinition  `json:"indexes,omitempty"`
	ColumnNames []string                  `json:"column_names,omitempty"`
	Rows        [][]any                   `json:"rows,omitempty"`
}

type Manager struct {
	store  Store
	dir    string
	logger *slog.Logger
}

func NewManager(store Store, dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{store: store, dir: dir, logger: logger}
}

// Create serializes the table into a backup file. FULL captures structure
// and rows, SCHEMA structure only, INCREMENTAL rows modified since the
// given cutoff (falling back to FULL when the table has no modified
// column).
func (m *Manager) Create(ctx context.Context, table string, typ schema.BackupType) (*schema.BackupInfo, error) {
	return m.create(ctx, table, typ, "", time.Time{})
}

// CreateColumn backs up one column plus the row identifier columns, for
// cheap protection ahead of a single-column conversion.
func (m *Manager) CreateColumn(ctx context.Context, table, column string) (*schema.BackupInfo, error) {
	return m.create(ctx, table, schema.BackupColumn, column, time.Time{})
}

func (m *Manager) CreateIncremental(ctx context.Context, table string, since time.Time) (*schema.BackupInfo, error) {
	return m.create(ctx, table, schema.BackupIncremental, "", since)
}

func (m *Manager) create(ctx context.Context, table string, typ schema.BackupType, column string, since time.Time) (*schema.BackupInfo, error) {
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return nil, schema.NewBackupError(table, "creating backup directory", err)
	}

	columns, err := m.store.Columns(ctx, table)
	if err != nil {
		return nil, schema.NewBackupError(table, "reading table structure", err)
	}
	if len(columns) == 0 {
		return nil, schema.NewBackupError(table, "table has no columns", nil)
	}
	indexes, err := m.store.Indexes(ctx, table)
	if err != nil {
		return nil, schema.NewBackupError(table, "reading table indexes", err)
	}

	payload := Payload{Columns: columns, Indexes: indexes}
	recordCount := 0
	if typ != schema.BackupSchema {
		names, rows, err := m.store.Rows(ctx, table)
		if err != nil {
			return nil, schema.NewBackupError(table, "reading table rows", err)
		}
		switch typ {
		case schema.BackupColumn:
			names, rows = projectColumn(names, rows, column)
		case schema.BackupIncremental:
			names, rows = filterSince(names, rows, since)
		}
		payload.ColumnNames = names
		payload.Rows = rows
		recordCount = len(rows)
	}

	hostname, _ := os.Hostname()
	info := schema.BackupInfo{
		ID:          uuid.New().String(),
		Table:       table,
		Type:        typ,
		CreatedAt:   time.Now().UTC(),
		RecordCount: recordCount,
		Metadata: map[string]string{
			"host": hostname,
		},
	}
	if column != "" {
		info.Metadata["column"] = column
	}
	info.Path = filepath.Join(m.dir, fmt.Sprintf("%s_%s_%s.json",
		table, strings.ToLower(string(typ)), info.CreatedAt.Format("20060102150405")))

	doc := Document{Info: info, Data: payload}
	final, err := sealDocument(&doc)
	if err != nil {
		return nil, schema.NewBackupError(table, "serializing backup", err)
	}

	if err := os.WriteFile(doc.Info.Path, final, 0o640); err != nil {
		return nil, schema.NewBackupError(table, "writing backup file", err)
	}

	m.logger.Info("backup created",
		"table", table, "type", string(typ), "path", doc.Info.Path,
		"records", recordCount, "size", doc.Info.Size)

	return &doc.Info, nil
}

// digestHexLen is the length of a hex-encoded sha256 digest. The sealed
// file is exactly this much longer than its checksum-blank form.
const digestHexLen = 64

// sealDocument sizes and checksums the serialized document, then
// re-serializes with the digest embedded. Size records the length of the
// final file on disk; since the size field is itself part of the
// serialized bytes, the length is converged on before digesting.
func sealDocument(doc *Document) ([]byte, error) {
	doc.Info.Checksum = ""
	doc.Info.Size = 0

	var sized []byte
	for {
		blank, err := marshalDocument(doc)
		if err != nil {
			return nil, err
		}
		final := int64(len(blank)) + digestHexLen
		if doc.Info.Size == final {
			sized = blank
			break
		}
		doc.Info.Size = final
	}
	doc.Info.Checksum = fmt.Sprintf("%x", sha256.Sum256(sized))

	return marshalDocument(doc)
}

func marshalDocument(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// RestoreResult reports a restore that completed, with warnings for
// explainable discrepancies instead of hard failures.
type RestoreResult struct {
	Info      schema.BackupInfo
	Validated bool
	Warnings  []string
}

// Restore verifies the file checksum, replays structure and rows inside
// one transaction, then compares restored counts against the recorded
// ones. A digest mismatch refuses the restore outright.
func (m *Manager) Restore(ctx context.Context, path string) (*RestoreResult, error) {
	doc, raw, err := readDocument(path)
	if err != nil {
		return nil, err
	}

	if err := verifyChecksum(doc, raw); err != nil {
		return nil, err
	}

	if doc.Info.Type == schema.BackupSchema || doc.Info.Type == schema.BackupColumn || doc.Info.Type == schema.BackupIncremental {
		return nil, schema.NewRestoreError(doc.Info.Table,
			fmt.Sprintf("%s backups cannot be restored automatically; restore a FULL backup", doc.Info.Type), nil)
	}

	if err := m.store.Restore(ctx, doc.Info.Table, doc.Data.Columns, doc.Data.Indexes, doc.Data.ColumnNames, doc.Data.Rows); err != nil {
		return nil, schema.NewRestoreError(doc.Info.Table, "replaying backup", err)
	}

	result := &RestoreResult{Info: doc.Info, Validated: true}

	liveColumns, err := m.store.Columns(ctx, doc.Info.Table)
	if err == nil && len(liveColumns) != len(doc.Data.Columns) {
		result.Validated = false
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("restored column count %d differs from backup %d", len(liveColumns), len(doc.Data.Columns)))
	}
	liveRows, err := m.store.RowCount(ctx, doc.Info.Table)
	if err == nil && liveRows != doc.Info.RecordCount {
		result.Validated = false
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("restored row count %d differs from backup %d", liveRows, doc.Info.RecordCount))
	}

	m.logger.Info("backup restored", "table", doc.Info.Table, "path", path, "validated", result.Validated)
	return result, nil
}

func readDocument(path string) (*Document, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, schema.NewRestoreError("", "reading backup file", err)
	}
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(raw))
	// json.Number keeps numeric literals intact so the canonical
	// re-serialization is byte-stable
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, schema.NewRestoreError("", "backup file is not valid JSON", err)
	}
	return &doc, raw, nil
}

// verifyChecksum is fail-closed: the file must be byte-identical to its
// canonical serialization and the recomputed digest must match the one
// embedded at creation time.
func verifyChecksum(doc *Document, raw []byte) error {
	stored := doc.Info.Checksum
	if stored == "" {
		return schema.NewRestoreError(doc.Info.Table, "backup file carries no checksum", nil)
	}

	canonical, err := marshalDocument(doc)
	if err != nil {
		return schema.NewRestoreError(doc.Info.Table, "re-serializing backup", err)
	}
	if !bytes.Equal(canonical, raw) {
		return schema.NewRestoreError(doc.Info.Table, "backup file does not match its canonical serialization", nil)
	}

	doc.Info.Checksum = ""
	sized, err := marshalDocument(doc)
	doc.Info.Checksum = stored
	if err != nil {
		return schema.NewRestoreError(doc.Info.Table, "re-serializing backup", err)
	}
	if fmt.Sprintf("%x", sha256.Sum256(sized)) != stored {
		return schema.NewRestoreError(doc.Info.Table, "checksum mismatch: backup file was modified", nil)
	}
	return nil
}

// List returns the info block of every backup in the directory, newest
// first. Unreadable or corrupt files are skipped with a warning.
func (m *Manager) List() ([]schema.BackupInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var infos []schema.BackupInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		doc, _, err := readDocument(path)
		if err != nil {
			m.logger.Warn("skipping unreadable backup file", "path", path, "error", err)
			continue
		}
		infos = append(infos, doc.Info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// CleanupOld removes backups older than the retention window and returns
// how many files were deleted.
func (m *Manager) CleanupOld(retention time.Duration) (int, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, info := range infos {
		if info.CreatedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(info.Path); err != nil {
			m.logger.Warn("could not remove expired backup", "path", info.Path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// projectColumn keeps the target column plus the row identifiers so the
// values can be re-associated later.
func projectColumn(names []string, rows [][]any, column string) ([]string, [][]any) {
	var keep []int
	var outNames []string
	for i, n := range names {
		if n == column || n == "id" || n == "name" {
			keep = append(keep, i)
			outNames = append(outNames, n)
		}
	}
	outRows := make([][]any, len(rows))
	for r, row := range rows {
		projected := make([]any, len(keep))
		for i, idx := range keep {
			projected[i] = row[idx]
		}
		outRows[r] = projected
	}
	return outNames, outRows
}

// filterSince keeps rows whose modified timestamp is at or after the
// cutoff. Tables without a modified column fall back to all rows.
func filterSince(names []string, rows [][]any, since time.Time) ([]string, [][]any) {
	modIdx := -1
	for i, n := range names {
		if n == "modified" {
			modIdx = i
			break
		}
	}
	if modIdx < 0 || since.IsZero() {
		return names, rows
	}
	var out [][]any
	for _, row := range rows {
		if ts, ok := row[modIdx].(time.Time); ok && ts.Before(since) {
			continue
		}
		out = append(out, row)
	}
	return names, out
}
