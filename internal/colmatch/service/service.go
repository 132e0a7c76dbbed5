package service

import (
	"context"
	"math"
	"strconv"

	"github.com/cockroachdb/errors"

	"colmatch-service/internal/dataset"
)

const (
	DefaultMatchColumn = "best match"
	DefaultScoreColumn = "similarity score"
)

// ctx проверяем не на каждой строке
const cancelCheckEvery = 64

// Progress receives (rows done, total rows) while matching runs.
type Progress interface {
	Report(done, total int)
}

type Options struct {
	Scorer      Scorer    // nil: TokenSortRatio
	Processor   Processor // нормализация перед сравнением; по умолчанию выключена
	MatchColumn string    // "": DefaultMatchColumn
	ScoreColumn string    // "": DefaultScoreColumn
	ScoreCutoff float64   // лучший результат ниже порога не выдаётся; 0: без порога
	Progress    Progress  // optional
}

func (o Options) withDefaults() Options {
	if o.Scorer == nil {
		o.Scorer = TokenSortRatio
	}
	if o.MatchColumn == "" {
		o.MatchColumn = DefaultMatchColumn
	}
	if o.ScoreColumn == "" {
		o.ScoreColumn = DefaultScoreColumn
	}
	return o
}

type candidate struct {
	text string // что попадёт в колонку результата
	key  string // что сравнивается (после Processor)
}

// Match pairs every source-column value with its best fuzzy match among the
// distinct values of the candidate column. The input is not modified: the
// result is a copy with two extra columns holding the match and its score
// formatted with two decimals. Null sources and empty candidate sets yield
// Null in both columns.
func Match(ds *dataset.Dataset, source, candidateCol string, opt Options) (*dataset.Dataset, error) {
	return MatchContext(context.Background(), ds, source, candidateCol, opt)
}

// MatchContext is Match that stops with ctx.Err() when ctx is done.
func MatchContext(ctx context.Context, ds *dataset.Dataset, source, candidateCol string, opt Options) (*dataset.Dataset, error) {
	if ds == nil {
		return nil, errors.New("match: nil dataset")
	}
	src, err := ds.Column(source)
	if err != nil {
		return nil, errors.Wrap(err, "source column")
	}
	pool, err := ds.Column(candidateCol)
	if err != nil {
		return nil, errors.Wrap(err, "candidate column")
	}
	opt = opt.withDefaults()
	if opt.MatchColumn == opt.ScoreColumn {
		return nil, errors.Newf("match and score columns must differ, both are %q", opt.MatchColumn)
	}

	cands := distinctCandidates(pool, opt.Processor)
	matches := make([]dataset.Value, len(src))
	scores := make([]dataset.Value, len(src))

	for i, v := range src {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !v.IsNull() {
			query := opt.Processor.Apply(v.String())
			if best, score, ok := extractOne(query, cands, opt.Scorer, opt.ScoreCutoff); ok {
				matches[i] = dataset.TextValue(best)
				scores[i] = dataset.TextValue(FormatScore(score))
			}
		}
		if opt.Progress != nil {
			opt.Progress.Report(i+1, len(src))
		}
	}

	out := ds.Clone()
	if err := out.SetColumn(opt.MatchColumn, matches); err != nil {
		return nil, err
	}
	if err := out.SetColumn(opt.ScoreColumn, scores); err != nil {
		return nil, err
	}
	return out, nil
}

// distinctCandidates: уникальные непустые значения в порядке первого появления.
func distinctCandidates(col []dataset.Value, p Processor) []candidate {
	seen := make(map[string]struct{}, len(col))
	out := make([]candidate, 0, len(col))
	for _, v := range col {
		if v.IsNull() {
			continue
		}
		s := v.String()
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, candidate{text: s, key: p.Apply(s)})
	}
	return out
}

// extractOne scans candidates in order and keeps the first maximum.
func extractOne(query string, cands []candidate, scorer Scorer, cutoff float64) (string, float64, bool) {
	best, bestScore, found := "", 0.0, false
	for _, c := range cands {
		s := clampScore(scorer(query, c.key))
		if s < cutoff {
			continue
		}
		if !found || s > bestScore {
			best, bestScore, found = c.text, s, true
		}
	}
	return best, bestScore, found
}

func clampScore(s float64) float64 {
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 100:
		return 100
	}
	return s
}

// FormatScore renders a score the way it is stored in the score column.
func FormatScore(s float64) string {
	return strconv.FormatFloat(s, 'f', 2, 64)
}
