package service

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/agnivade/levenshtein"
	"github.com/cockroachdb/errors"
	edlib "github.com/hbollon/go-edlib"
)

// Scorer returns the similarity of two strings in [0, 100].
type Scorer func(a, b string) float64

// DefaultScorerName is used when a request does not name a scorer.
const DefaultScorerName = "token_sort_ratio"

// ErrUnknownScorer is returned by ScorerByName.
var ErrUnknownScorer = errors.New("unknown scorer")

var scorers = map[string]Scorer{
	"ratio":            Ratio,
	"token_sort_ratio": TokenSortRatio,
	"token_set_ratio":  TokenSetRatio,
	"partial_ratio":    PartialRatio,
	"jaro_winkler":     JaroWinkler,
	"levenshtein":      Levenshtein,
	"damerau":          Damerau,
}

// ScorerByName resolves a scorer; "" means the default.
func ScorerByName(name string) (Scorer, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultScorerName
	}
	if s, ok := scorers[name]; ok {
		return s, nil
	}
	return nil, errors.WithHintf(errors.Wrapf(ErrUnknownScorer, "%q", name),
		"available scorers: %s", strings.Join(ScorerNames(), ", "))
}

func ScorerNames() []string {
	out := make([]string, 0, len(scorers))
	for n := range scorers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Ratio is the normalized Indel similarity: 100 * 2*LCS / (len(a)+len(b)), over runes.
func Ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	return 100 * float64(2*edlib.LCS(a, b)) / float64(total)
}

// indel distance: insertions + deletions only
func indel(a, b string) int {
	return utf8.RuneCountInString(a) + utf8.RuneCountInString(b) - 2*edlib.LCS(a, b)
}

// tokenSort: сортируем токены по алфавиту (устойчиво к порядку слов)
func tokenSort(s string) string {
	t := strings.Fields(s)
	sort.Strings(t)
	return strings.Join(t, " ")
}

// TokenSortRatio compares the strings after sorting their whitespace tokens,
// so "Store A, Building 11" and "Building 11, Store A" score 100.
func TokenSortRatio(a, b string) float64 {
	return Ratio(tokenSort(a), tokenSort(b))
}

func tokenSet(s string) map[string]struct{} {
	m := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		m[t] = struct{}{}
	}
	return m
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// TokenSetRatio compares the shared tokens against each side's remainder;
// a string whose tokens are a subset of the other's scores 100.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	var inter, diffAB, diffBA []string
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter = append(inter, t)
		} else {
			diffAB = append(diffAB, t)
		}
	}
	for t := range tb {
		if _, ok := ta[t]; !ok {
			diffBA = append(diffBA, t)
		}
	}
	if len(inter) > 0 && (len(diffAB) == 0 || len(diffBA) == 0) {
		return 100
	}
	sort.Strings(inter)
	sort.Strings(diffAB)
	sort.Strings(diffBA)

	ab := strings.Join(diffAB, " ")
	ba := strings.Join(diffBA, " ")
	abLen, baLen := utf8.RuneCountInString(ab), utf8.RuneCountInString(ba)
	sectLen := utf8.RuneCountInString(strings.Join(inter, " "))
	sep := 0
	if sectLen > 0 {
		sep = 1
	}
	sectAB := sectLen + sep + abLen
	sectBA := sectLen + sep + baLen

	result := normalized(indel(ab, ba), sectAB+sectBA)
	if sectLen == 0 {
		return result
	}
	result = math.Max(result, normalized(sep+abLen, sectLen+sectAB))
	return math.Max(result, normalized(sep+baLen, sectLen+sectBA))
}

func normalized(dist, total int) float64 {
	if total == 0 {
		return 100
	}
	return 100 * (1 - float64(dist)/float64(total))
}

// PartialRatio slides the shorter string over the longer one and keeps the best Ratio.
func PartialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		if len(rb) == 0 {
			return 100
		}
		return 0
	}
	short := string(ra)
	best := 0.0
	for i := 0; i+len(ra) <= len(rb); i++ {
		if s := Ratio(short, string(rb[i:i+len(ra)])); s > best {
			best = s
			if best == 100 {
				break
			}
		}
	}
	return best
}

var jaroWinkler = metrics.NewJaroWinkler()

func JaroWinkler(a, b string) float64 {
	return 100 * strutil.Similarity(a, b, jaroWinkler)
}

// Levenshtein is the edit distance normalized by the longer string.
func Levenshtein(a, b string) float64 {
	return byMaxLen(levenshtein.ComputeDistance(a, b), a, b)
}

// Damerau is the optimal-string-alignment distance (adjacent transpositions
// count once) normalized by the longer string.
func Damerau(a, b string) float64 {
	return byMaxLen(edlib.OSADamerauLevenshteinDistance(a, b), a, b)
}

func byMaxLen(dist int, a, b string) float64 {
	m := utf8.RuneCountInString(a)
	if mb := utf8.RuneCountInString(b); mb > m {
		m = mb
	}
	if m == 0 {
		return 100
	}
	return 100 * (1 - float64(dist)/float64(m))
}
