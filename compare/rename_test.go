package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ridoystarlord/tabledrift/schema"
)

func TestDetectRenamesSimilarName(t *testing.T) {
	d := NewRenameDetector()
	added := []schema.ColumnDefinition{{Name: "customer_name", Type: "varchar(140)", Nullable: true}}
	removed := []schema.ColumnDefinition{{Name: "customer_nm", Type: "varchar(140)", Nullable: true}}

	renames := d.DetectRenames(added, removed)
	assert.Len(t, renames, 1)
	assert.Equal(t, "customer_nm", renames[0].From)
	assert.Equal(t, "customer_name", renames[0].To)
}

func TestDetectRenamesSignatureMismatch(t *testing.T) {
	d := NewRenameDetector()
	added := []schema.ColumnDefinition{{Name: "customer_name", Type: "varchar(200)", Nullable: true}}
	removed := []schema.ColumnDefinition{{Name: "customer_nm", Type: "varchar(140)", Nullable: true}}

	assert.Empty(t, d.DetectRenames(added, removed))
}

func TestDetectRenamesDissimilarName(t *testing.T) {
	d := NewRenameDetector()
	added := []schema.ColumnDefinition{{Name: "zzz", Type: "varchar(140)", Nullable: true}}
	removed := []schema.ColumnDefinition{{Name: "customer_nm", Type: "varchar(140)", Nullable: true}}

	assert.Empty(t, d.DetectRenames(added, removed))
}

func TestDetectRenamesAmbiguous(t *testing.T) {
	// two removed columns with the same signature both close to the
	// added name: neither is paired
	d := NewRenameDetector()
	added := []schema.ColumnDefinition{{Name: "contact", Type: "varchar(140)", Nullable: true}}
	removed := []schema.ColumnDefinition{
		{Name: "contact1", Type: "varchar(140)", Nullable: true},
		{Name: "contact2", Type: "varchar(140)", Nullable: true},
	}

	assert.Empty(t, d.DetectRenames(added, removed))
}

func TestDetectRenamesNeverPairsTwice(t *testing.T) {
	d := NewRenameDetector()
	added := []schema.ColumnDefinition{
		{Name: "phone_no", Type: "varchar(140)", Nullable: true},
		{Name: "phone_num", Type: "varchar(140)", Nullable: true},
	}
	removed := []schema.ColumnDefinition{{Name: "phone", Type: "varchar(140)", Nullable: true}}

	renames := d.DetectRenames(added, removed)
	assert.Len(t, renames, 1)
}

func TestNameSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, nameSimilarity("email", "EMAIL"))
	assert.InDelta(t, 0.8, nameSimilarity("email", "emails"), 0.05)
	assert.Less(t, nameSimilarity("email", "zzzzz"), 0.5)
}
