package sqlgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/tabledrift/schema"
)

func TestGenerateNilDiff(t *testing.T) {
	g := NewGenerator()
	_, err := g.Generate(nil, nil, nil)
	require.Error(t, err)
}

func TestGenerateAddColumn(t *testing.T) {
	g := NewGenerator()
	diff := &schema.SchemaDiff{
		Table: "tabusers",
		AddedColumns: []schema.ColumnDefinition{
			{Name: "email", Type: "varchar(140)", Nullable: true},
		},
	}
	batch, err := g.Generate(diff, nil, nil)
	require.NoError(t, err)

	require.Len(t, batch.Statements, 1)
	assert.Contains(t, batch.Statements[0].SQL, `ADD COLUMN "email" varchar(140)`)
	assert.False(t, batch.Destructive)
	assert.False(t, batch.RequiresBackup)

	require.Len(t, batch.Rollback, 1)
	assert.Contains(t, batch.Rollback[0].SQL, `DROP COLUMN "email"`)
}

func TestGenerateRequiredColumnWithoutDefault(t *testing.T) {
	g := NewGenerator()
	diff := &schema.SchemaDiff{
		Table: "tabusers",
		AddedColumns: []schema.ColumnDefinition{
			{Name: "email", Type: "varchar(140)", Nullable: false},
		},
	}
	batch, err := g.Generate(diff, nil, nil)
	require.NoError(t, err)

	// added nullable so existing rows do not violate the constraint
	assert.NotContains(t, batch.Statements[0].SQL, "NOT NULL")
	require.NotEmpty(t, batch.Warnings)
	assert.Contains(t, batch.Warnings[0], "added as nullable")
}

func TestGenerateDropColumnIsDestructive(t *testing.T) {
	g := NewGenerator()
	diff := &schema.SchemaDiff{
		Table: "tabusers",
		RemovedColumns: []schema.ColumnDefinition{
			{Name: "legacy", Type: "varchar(140)", Nullable: true},
		},
	}
	batch, err := g.Generate(diff, nil, nil)
	require.NoError(t, err)

	assert.True(t, batch.Destructive)
	assert.True(t, batch.RequiresBackup, "destructive batches always demand a backup")
	assert.Contains(t, batch.Statements[0].SQL, `DROP COLUMN "legacy"`)

	// rollback restores structure, warning says values are gone
	assert.Contains(t, batch.Rollback[0].SQL, `ADD COLUMN "legacy"`)
	require.NotEmpty(t, batch.Warnings)
	assert.Contains(t, batch.Warnings[0], "restores the column empty")
}

func TestGenerateStatementOrdering(t *testing.T) {
	g := NewGenerator()
	diff := &schema.SchemaDiff{
		Table: "tabusers",
		AddedColumns: []schema.ColumnDefinition{
			{Name: "added", Type: "varchar(140)", Nullable: true},
		},
		RemovedColumns: []schema.ColumnDefinition{
			{Name: "legacy", Type: "varchar(140)", Nullable: true},
		},
		RenamedColumns: []schema.RenamedColumn{
			{From: "old_name", To: "new_name", Column: schema.ColumnDefinition{Name: "new_name", Type: "varchar(140)", Nullable: true}},
		},
		RemovedIndexes: []schema.IndexDefinition{
			{Name: "idx_users_legacy", Table: "tabusers", Columns: []string{"legacy"}},
		},
		AddedIndexes: []schema.IndexDefinition{
			{Name: "idx_users_added", Table: "tabusers", Columns: []string{"added"}},
		},
	}
	batch, err := g.Generate(diff, nil, nil)
	require.NoError(t, err)
	require.Len(t, batch.Statements, 5)

	kinds := make([]StatementKind, len(batch.Statements))
	for i, s := range batch.Statements {
		kinds[i] = s.Kind
	}
	assert.Equal(t, []StatementKind{
		KindRenameColumn, KindDropIndex, KindDropColumn, KindAddColumn, KindCreateIndex,
	}, kinds)

	// rollback runs in exact reverse order
	rollbackKinds := make([]StatementKind, len(batch.Rollback))
	for i, s := range batch.Rollback {
		rollbackKinds[i] = s.Kind
	}
	assert.Equal(t, []StatementKind{
		KindDropIndex, KindDropColumn, KindAddColumn, KindCreateIndex, KindRenameColumn,
	}, rollbackKinds)
}

func TestGenerateRenameRollbackSymmetry(t *testing.T) {
	g := NewGenerator()
	diff := &schema.SchemaDiff{
		Table: "tabusers",
		RenamedColumns: []schema.RenamedColumn{
			{From: "phone", To: "phone_no", Column: schema.ColumnDefinition{Name: "phone_no", Type: "varchar(140)", Nullable: true}},
		},
	}
	batch, err := g.Generate(diff, nil, nil)
	require.NoError(t, err)

	assert.Contains(t, batch.Statements[0].SQL, `RENAME COLUMN "phone" TO "phone_no"`)
	assert.Contains(t, batch.Rollback[0].SQL, `RENAME COLUMN "phone_no" TO "phone"`)
}

func TestGenerateModifiedColumn(t *testing.T) {
	g := NewGenerator()
	oldDefault := "draft"
	diff := &schema.SchemaDiff{
		Table: "tabusers",
		ModifiedColumns: []schema.FieldChange{{
			Fieldname: "status",
			Changes: map[string]schema.AttributeChange{
				"nullable": {From: true, To: false},
				"default":  {From: "draft", To: ""},
			},
			OldColumn: schema.ColumnDefinition{Name: "status", Type: "varchar(140)", Nullable: true, Default: &oldDefault},
			NewColumn: schema.ColumnDefinition{Name: "status", Type: "varchar(140)", Nullable: false},
		}},
	}
	batch, err := g.Generate(diff, nil, nil)
	require.NoError(t, err)

	joined := joinSQL(batch.Statements)
	assert.Contains(t, joined, "SET NOT NULL")
	assert.Contains(t, joined, "DROP DEFAULT")

	rollback := joinSQL(batch.Rollback)
	assert.Contains(t, rollback, "DROP NOT NULL")
	assert.Contains(t, rollback, "SET DEFAULT 'draft'")

	// removing a default is destructive
	assert.True(t, batch.Destructive)
}

func TestGenerateUniqueConstraintChange(t *testing.T) {
	g := NewGenerator()
	diff := &schema.SchemaDiff{
		Table: "tabusers",
		ModifiedColumns: []schema.FieldChange{{
			Fieldname: "email",
			Changes: map[string]schema.AttributeChange{
				"unique": {From: false, To: true},
			},
			OldColumn: schema.ColumnDefinition{Name: "email", Type: "varchar(140)", Nullable: true},
			NewColumn: schema.ColumnDefinition{Name: "email", Type: "varchar(140)", Nullable: true, Unique: true},
		}},
	}
	batch, err := g.Generate(diff, nil, nil)
	require.NoError(t, err)

	assert.Contains(t, batch.Statements[0].SQL, `ADD CONSTRAINT "users_email_key" UNIQUE ("email")`)
	assert.Contains(t, batch.Rollback[0].SQL, `DROP CONSTRAINT IF EXISTS "users_email_key"`)
	require.NotEmpty(t, batch.Warnings)
	assert.Contains(t, batch.Warnings[0], "duplicates")
}

func TestGenerateWideningStaysInPlace(t *testing.T) {
	g := NewGenerator()
	diff := &schema.SchemaDiff{
		Table: "tabusers",
		ModifiedColumns: []schema.FieldChange{{
			Fieldname: "title",
			Changes: map[string]schema.AttributeChange{
				"length": {From: 140, To: 200},
			},
			OldColumn: schema.ColumnDefinition{Name: "title", Type: "varchar(140)", Nullable: true},
			NewColumn: schema.ColumnDefinition{Name: "title", Type: "varchar(200)", Nullable: true},
		}},
	}
	batch, err := g.Generate(diff, nil, nil)
	require.NoError(t, err)

	require.Len(t, batch.Statements, 1)
	assert.Equal(t, KindAlterColumn, batch.Statements[0].Kind)
	assert.Contains(t, batch.Statements[0].SQL, "TYPE varchar(200)")
	assert.False(t, batch.Destructive)
}

func TestGenerateDestructiveAggregation(t *testing.T) {
	// one destructive statement makes the whole batch destructive
	g := NewGenerator()
	diff := &schema.SchemaDiff{
		Table: "tabusers",
		AddedColumns: []schema.ColumnDefinition{
			{Name: "added", Type: "varchar(140)", Nullable: true},
		},
		RemovedColumns: []schema.ColumnDefinition{
			{Name: "legacy", Type: "varchar(140)", Nullable: true},
		},
	}
	batch, err := g.Generate(diff, nil, nil)
	require.NoError(t, err)
	assert.True(t, batch.Destructive)
	assert.True(t, batch.RequiresBackup)
}

func TestGenerateEstimatedTime(t *testing.T) {
	g := NewGenerator()
	diff := &schema.SchemaDiff{
		Table: "tabusers",
		AddedColumns: []schema.ColumnDefinition{
			{Name: "added", Type: "varchar(140)", Nullable: true},
		},
		AddedIndexes: []schema.IndexDefinition{
			{Name: "idx_users_added", Table: "tabusers", Columns: []string{"added"}},
		},
	}
	batch, err := g.Generate(diff, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, costAlter+costIndex, batch.EstimatedTime)
}

func joinSQL(statements []Statement) string {
	var sb strings.Builder
	for _, s := range statements {
		sb.WriteString(s.SQL)
		sb.WriteString("\n")
	}
	return sb.String()
}
