package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/tabledrift/schema"
)

func narrowingDiff() *schema.SchemaDiff {
	return &schema.SchemaDiff{
		Table: "tabusers",
		ModifiedColumns: []schema.FieldChange{{
			Fieldname: "title",
			Changes: map[string]schema.AttributeChange{
				"length": {From: 200, To: 100},
			},
			Destructive: true,
			OldColumn:   schema.ColumnDefinition{Name: "title", Type: "varchar(200)", Nullable: true},
			NewColumn:   schema.ColumnDefinition{Name: "title", Type: "varchar(100)", Nullable: true},
		}},
	}
}

func liveUserColumns() []schema.ColumnDefinition {
	return []schema.ColumnDefinition{
		{Name: "id", Type: "bigint", Primary: true},
		{Name: "title", Type: "varchar(200)", Nullable: true},
		{Name: "email", Type: "varchar(140)", Nullable: true},
	}
}

func TestRebuildRequiresLiveColumns(t *testing.T) {
	g := NewGenerator()
	_, err := g.Generate(narrowingDiff(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "live column list")
}

func TestRebuildForwardStatements(t *testing.T) {
	g := NewGenerator()
	batch, err := g.Generate(narrowingDiff(), liveUserColumns(), nil)
	require.NoError(t, err)

	require.Len(t, batch.Statements, 4)
	assert.Contains(t, batch.Statements[0].SQL, `CREATE TABLE "tabusers__rebuild"`)
	assert.Contains(t, batch.Statements[0].SQL, `"title" varchar(100)`)
	assert.Contains(t, batch.Statements[1].SQL, `INSERT INTO "tabusers__rebuild"`)
	assert.Contains(t, batch.Statements[1].SQL, `left("title", 100)::varchar(100)`)
	assert.Contains(t, batch.Statements[2].SQL, `DROP TABLE "tabusers"`)
	assert.Contains(t, batch.Statements[3].SQL, `ALTER TABLE "tabusers__rebuild" RENAME TO "tabusers"`)

	assert.True(t, batch.Destructive)
	assert.True(t, batch.RequiresBackup)
	assert.GreaterOrEqual(t, batch.EstimatedTime, costRebuild)
}

func TestRebuildUnchangedColumnsCopyStraightThrough(t *testing.T) {
	g := NewGenerator()
	batch, err := g.Generate(narrowingDiff(), liveUserColumns(), nil)
	require.NoError(t, err)

	copyStmt := batch.Statements[1].SQL
	assert.Contains(t, copyStmt, `"id"`)
	assert.Contains(t, copyStmt, `"email"`)
	assert.NotContains(t, copyStmt, `"email"::`)
}

func TestRebuildRollbackIsSymmetric(t *testing.T) {
	g := NewGenerator()
	liveIndexes := []schema.IndexDefinition{
		{Name: "idx_users_email", Table: "tabusers", Columns: []string{"email"}, Type: "btree"},
	}
	batch, err := g.Generate(narrowingDiff(), liveUserColumns(), liveIndexes)
	require.NoError(t, err)

	require.Len(t, batch.Rollback, 5)
	assert.Contains(t, batch.Rollback[0].SQL, `CREATE TABLE "tabusers__restore"`)
	assert.Contains(t, batch.Rollback[0].SQL, `"title" varchar(200)`)
	assert.Contains(t, batch.Rollback[1].SQL, `INSERT INTO "tabusers__restore"`)
	assert.Contains(t, batch.Rollback[3].SQL, `RENAME TO "tabusers"`)
	assert.Contains(t, batch.Rollback[4].SQL, `"idx_users_email"`)

	// the rollback warns that truncated values stay truncated
	found := false
	for _, w := range batch.Warnings {
		if w == "rollback of a rebuild restores structure only; values truncated or converted by the forward copy are not recovered" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRebuildRecreatesForwardIndexes(t *testing.T) {
	g := NewGenerator()
	diff := narrowingDiff()
	diff.RenamedColumns = []schema.RenamedColumn{{
		From:   "email",
		To:     "contact_email",
		Column: schema.ColumnDefinition{Name: "contact_email", Type: "varchar(140)", Nullable: true},
	}}
	diff.AddedColumns = []schema.ColumnDefinition{
		{Name: "score", Type: "bigint", Nullable: true},
	}
	diff.AddedIndexes = []schema.IndexDefinition{
		{Name: "idx_users_score", Table: "tabusers", Columns: []string{"score"}, Type: "btree"},
	}
	diff.RemovedIndexes = []schema.IndexDefinition{
		{Name: "idx_users_legacy", Table: "tabusers", Columns: []string{"id"}, Type: "btree"},
	}
	liveIndexes := []schema.IndexDefinition{
		{Name: "idx_users_email", Table: "tabusers", Columns: []string{"email"}, Type: "btree"},
		{Name: "idx_users_legacy", Table: "tabusers", Columns: []string{"id"}, Type: "btree"},
	}
	batch, err := g.Generate(diff, liveUserColumns(), liveIndexes)
	require.NoError(t, err)

	require.Len(t, batch.Statements, 6)
	assert.Contains(t, batch.Statements[3].SQL, `RENAME TO "tabusers"`)

	// surviving index follows the rename, declared index is created
	assert.Equal(t, KindCreateIndex, batch.Statements[4].Kind)
	assert.Contains(t, batch.Statements[4].SQL, `"idx_users_email"`)
	assert.Contains(t, batch.Statements[4].SQL, `("contact_email")`)
	assert.Equal(t, KindCreateIndex, batch.Statements[5].Kind)
	assert.Contains(t, batch.Statements[5].SQL, `"idx_users_score"`)

	// the removed index never comes back
	for _, st := range batch.Statements {
		assert.NotContains(t, st.SQL, `"idx_users_legacy"`)
	}
}

func TestRebuildSkipsIndexesOverDroppedColumns(t *testing.T) {
	g := NewGenerator()
	diff := narrowingDiff()
	diff.RemovedColumns = []schema.ColumnDefinition{
		{Name: "email", Type: "varchar(140)", Nullable: true},
	}
	liveIndexes := []schema.IndexDefinition{
		{Name: "idx_users_email", Table: "tabusers", Columns: []string{"email"}, Type: "btree"},
		{Name: "idx_users_title", Table: "tabusers", Columns: []string{"title"}, Type: "btree"},
	}
	batch, err := g.Generate(diff, liveUserColumns(), liveIndexes)
	require.NoError(t, err)

	require.Len(t, batch.Statements, 5)
	assert.Contains(t, batch.Statements[4].SQL, `"idx_users_title"`)
	for _, st := range batch.Statements {
		assert.NotContains(t, st.SQL, `"idx_users_email"`)
	}
}

func TestRebuildTriggeredByHighRiskRetype(t *testing.T) {
	g := NewGenerator()
	diff := &schema.SchemaDiff{
		Table: "tabusers",
		ModifiedColumns: []schema.FieldChange{{
			Fieldname: "qty",
			Changes: map[string]schema.AttributeChange{
				"type": {From: "varchar", To: "bigint"},
			},
			Destructive:           true,
			RequiresDataMigration: true,
			OldColumn:             schema.ColumnDefinition{Name: "qty", Type: "varchar(140)", Nullable: true},
			NewColumn:             schema.ColumnDefinition{Name: "qty", Type: "bigint", Nullable: true},
		}},
	}
	live := []schema.ColumnDefinition{
		{Name: "qty", Type: "varchar(140)", Nullable: true},
	}
	batch, err := g.Generate(diff, live, nil)
	require.NoError(t, err)

	assert.Equal(t, KindRebuild, batch.Statements[0].Kind)
	assert.Contains(t, batch.Statements[1].SQL, `"qty"::bigint`)
}

func TestRebuildIncludesAddedAndRemovedColumns(t *testing.T) {
	g := NewGenerator()
	diff := narrowingDiff()
	def := "0"
	diff.AddedColumns = []schema.ColumnDefinition{
		{Name: "score", Type: "bigint", Nullable: true, Default: &def},
	}
	diff.RemovedColumns = []schema.ColumnDefinition{
		{Name: "email", Type: "varchar(140)", Nullable: true},
	}
	batch, err := g.Generate(diff, liveUserColumns(), nil)
	require.NoError(t, err)

	createStmt := batch.Statements[0].SQL
	assert.Contains(t, createStmt, `"score" bigint`)
	assert.NotContains(t, createStmt, `"email"`)

	// the new column is backfilled from its default
	assert.Contains(t, batch.Statements[1].SQL, "SELECT")
	assert.Contains(t, batch.Statements[1].SQL, "0")
}
