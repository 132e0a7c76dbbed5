package dataset

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

var (
	// ErrColumnNotFound is returned when a requested column is absent.
	ErrColumnNotFound = errors.New("column not found")
	// ErrLengthMismatch is returned when a new column has a different row count.
	ErrLengthMismatch = errors.New("column length does not match row count")
)

func missingColumn(name string, columns []string) error {
	err := errors.Mark(errors.Newf("column %q not found", name), ErrColumnNotFound)
	if s := Suggest(name, columns); s != "" {
		err = errors.WithHintf(err, "did you mean %q?", s)
	}
	return errors.WithDetailf(err, "available columns: %s", strings.Join(columns, ", "))
}

// Suggest returns the column name closest to name, or "" when nothing is close.
func Suggest(name string, columns []string) string {
	name = strings.TrimSpace(name)
	if name == "" || len(columns) == 0 {
		return ""
	}
	if ranks := fuzzy.RankFindNormalizedFold(name, columns); len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}
	best, bestDist := "", -1
	lower := strings.ToLower(name)
	for _, c := range columns {
		d := fuzzy.LevenshteinDistance(lower, strings.ToLower(c))
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	limit := utf8.RuneCountInString(name) / 3
	if limit < 2 {
		limit = 2
	}
	if bestDist > limit {
		return ""
	}
	return best
}
