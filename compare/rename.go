package compare

import (
	"strings"

	"github.com/ridoystarlord/tabledrift/schema"
)

// RenameDetector reclassifies add+drop pairs that look like a single
// column rename. Implementations must never pair a column twice.
type RenameDetector interface {
	DetectRenames(added, removed []schema.ColumnDefinition) []schema.RenamedColumn
}

// SimilarityRenameDetector pairs an added and a removed column when their
// type/length/constraint signatures are identical and their names are
// similar enough. Ambiguous candidates (two removed columns with the same
// signature both above the threshold) are left as add+drop rather than
// guessed at.
type SimilarityRenameDetector struct {
	Threshold float64
}

func NewRenameDetector() *SimilarityRenameDetector {
	return &SimilarityRenameDetector{Threshold: 0.5}
}

func (d *SimilarityRenameDetector) DetectRenames(added, removed []schema.ColumnDefinition) []schema.RenamedColumn {
	var renames []schema.RenamedColumn
	usedRemoved := make(map[string]bool)

	for _, add := range added {
		var candidates []schema.ColumnDefinition
		for _, rem := range removed {
			if usedRemoved[rem.Name] {
				continue
			}
			if rem.Signature() != add.Signature() {
				continue
			}
			if nameSimilarity(rem.Name, add.Name) >= d.Threshold {
				candidates = append(candidates, rem)
			}
		}
		if len(candidates) != 1 {
			continue
		}
		usedRemoved[candidates[0].Name] = true
		renames = append(renames, schema.RenamedColumn{
			From:   candidates[0].Name,
			To:     add.Name,
			Column: add,
		})
	}

	return renames
}

// nameSimilarity returns 1 - normalizedEditDistance, in [0,1].
func nameSimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(editDistance(a, b))/float64(longest)
}

func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
