package backup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/tabledrift/schema"
)

type fakeStore struct {
	columns []schema.ColumnDefinition
	indexes []schema.IndexDefinition
	names   []string
	rows    [][]any

	restored     bool
	restoredRows [][]any
	rowCount     int
}

func (f *fakeStore) Columns(ctx context.Context, table string) ([]schema.ColumnDefinition, error) {
	return f.columns, nil
}

func (f *fakeStore) Indexes(ctx context.Context, table string) ([]schema.IndexDefinition, error) {
	return f.indexes, nil
}

func (f *fakeStore) Rows(ctx context.Context, table string) ([]string, [][]any, error) {
	return f.names, f.rows, nil
}

func (f *fakeStore) Restore(ctx context.Context, table string, columns []schema.ColumnDefinition, indexes []schema.IndexDefinition, columnNames []string, rows [][]any) error {
	f.restored = true
	f.restoredRows = rows
	return nil
}

func (f *fakeStore) RowCount(ctx context.Context, table string) (int, error) {
	return f.rowCount, nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		columns: []schema.ColumnDefinition{
			{Name: "id", Type: "bigint", Primary: true},
			{Name: "email", Type: "varchar(140)", Nullable: true},
		},
		indexes: []schema.IndexDefinition{
			{Name: "idx_users_email", Table: "tabusers", Columns: []string{"email"}, Type: "btree"},
		},
		names: []string{"id", "email"},
		rows: [][]any{
			{int64(1), "a@example.com"},
			{int64(2), "b@example.com"},
		},
		rowCount: 2,
	}
}

func TestCreateFullBackup(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(newFakeStore(), dir, nil)

	info, err := m.Create(context.Background(), "tabusers", schema.BackupFull)
	require.NoError(t, err)

	assert.Equal(t, "tabusers", info.Table)
	assert.Equal(t, schema.BackupFull, info.Type)
	assert.Equal(t, 2, info.RecordCount)
	assert.NotEmpty(t, info.ID)
	assert.NotEmpty(t, info.Checksum)
	assert.Greater(t, info.Size, int64(0))

	raw, err := os.ReadFile(info.Path)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(raw, []byte("a@example.com")))

	// the recorded size is the size of the file on disk
	assert.Equal(t, int64(len(raw)), info.Size)
}

func TestCreateSchemaBackupSkipsRows(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(newFakeStore(), dir, nil)

	info, err := m.Create(context.Background(), "tabusers", schema.BackupSchema)
	require.NoError(t, err)
	assert.Equal(t, 0, info.RecordCount)

	raw, err := os.ReadFile(info.Path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("a@example.com")))
	assert.True(t, bytes.Contains(raw, []byte("varchar(140)")))
}

func TestCreateColumnBackupProjectsColumns(t *testing.T) {
	store := newFakeStore()
	store.columns = append(store.columns, schema.ColumnDefinition{Name: "secret", Type: "varchar(140)", Nullable: true})
	store.names = []string{"id", "email", "secret"}
	store.rows = [][]any{{int64(1), "a@example.com", "hunter2"}}

	dir := t.TempDir()
	m := NewManager(store, dir, nil)
	info, err := m.CreateColumn(context.Background(), "tabusers", "email")
	require.NoError(t, err)

	raw, err := os.ReadFile(info.Path)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(raw, []byte("a@example.com")))
	assert.False(t, bytes.Contains(raw, []byte("hunter2")))
}

func TestRestoreRoundTrip(t *testing.T) {
	store := newFakeStore()
	dir := t.TempDir()
	m := NewManager(store, dir, nil)

	info, err := m.Create(context.Background(), "tabusers", schema.BackupFull)
	require.NoError(t, err)

	result, err := m.Restore(context.Background(), info.Path)
	require.NoError(t, err)
	assert.True(t, store.restored)
	assert.True(t, result.Validated)
	assert.Empty(t, result.Warnings)
	assert.Len(t, store.restoredRows, 2)
}

func TestRestoreRefusesModifiedFile(t *testing.T) {
	store := newFakeStore()
	dir := t.TempDir()
	m := NewManager(store, dir, nil)

	info, err := m.Create(context.Background(), "tabusers", schema.BackupFull)
	require.NoError(t, err)

	raw, err := os.ReadFile(info.Path)
	require.NoError(t, err)

	// flip a single byte inside a data value
	tampered := bytes.Replace(raw, []byte("a@example.com"), []byte("x@example.com"), 1)
	require.NotEqual(t, raw, tampered)
	require.NoError(t, os.WriteFile(info.Path, tampered, 0o640))

	_, err = m.Restore(context.Background(), info.Path)
	require.Error(t, err)
	assert.False(t, store.restored, "a tampered backup must never be replayed")
}

func TestRestoreRefusesWhitespaceChange(t *testing.T) {
	store := newFakeStore()
	dir := t.TempDir()
	m := NewManager(store, dir, nil)

	info, err := m.Create(context.Background(), "tabusers", schema.BackupFull)
	require.NoError(t, err)

	raw, err := os.ReadFile(info.Path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(info.Path, append(raw, '\n'), 0o640))

	_, err = m.Restore(context.Background(), info.Path)
	require.Error(t, err)
	assert.False(t, store.restored)
}

func TestRestoreRefusesNonFullBackups(t *testing.T) {
	store := newFakeStore()
	dir := t.TempDir()
	m := NewManager(store, dir, nil)

	info, err := m.Create(context.Background(), "tabusers", schema.BackupSchema)
	require.NoError(t, err)

	_, err = m.Restore(context.Background(), info.Path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FULL")
}

func TestRestoreCountMismatchIsWarning(t *testing.T) {
	store := newFakeStore()
	dir := t.TempDir()
	m := NewManager(store, dir, nil)

	info, err := m.Create(context.Background(), "tabusers", schema.BackupFull)
	require.NoError(t, err)

	store.rowCount = 1
	result, err := m.Restore(context.Background(), info.Path)
	require.NoError(t, err)
	assert.False(t, result.Validated)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "row count")
}

func TestListSkipsCorruptFiles(t *testing.T) {
	store := newFakeStore()
	dir := t.TempDir()
	m := NewManager(store, dir, nil)

	_, err := m.Create(context.Background(), "tabusers", schema.BackupFull)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("not json"), 0o640))

	infos, err := m.List()
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestListEmptyDirectory(t *testing.T) {
	m := NewManager(newFakeStore(), filepath.Join(t.TempDir(), "missing"), nil)
	infos, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestCleanupOld(t *testing.T) {
	store := newFakeStore()
	dir := t.TempDir()
	m := NewManager(store, dir, nil)

	info, err := m.Create(context.Background(), "tabusers", schema.BackupFull)
	require.NoError(t, err)

	// nothing is younger than a day, so a 24h retention keeps the file
	removed, err := m.CleanupOld(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	// a zero retention window expires everything
	removed, err = m.CleanupOld(0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(info.Path)
	assert.True(t, os.IsNotExist(err))
}
