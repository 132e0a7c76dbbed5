package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"colmatch-service/internal/colmatch/service"
	"colmatch-service/internal/config"
	"colmatch-service/internal/dataset"
	"colmatch-service/internal/fileio"
	"colmatch-service/internal/loader"
)

type matchFlags struct {
	file      string
	sheet     string
	headerRow int
	source    string
	candidate string
	scorer    string
	matchCol  string
	scoreCol  string
	cutoff    float64
	process   bool
	unify     bool
}

func (f *matchFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.file, "file", "f", "", "input table (.xlsx/.xls/.csv); default is the last opened file")
	fl.StringVar(&f.sheet, "sheet", "", "sheet name (default: first sheet)")
	fl.IntVar(&f.headerRow, "header-row", 1, "header row, 1-based")
	fl.StringVarP(&f.source, "source", "s", "", "column to find matches for")
	fl.StringVarP(&f.candidate, "candidate", "c", "", "column with the candidate values")
	fl.StringVar(&f.scorer, "scorer", service.DefaultScorerName, "similarity scorer")
	fl.StringVar(&f.matchCol, "match-col", service.DefaultMatchColumn, "name of the match column")
	fl.StringVar(&f.scoreCol, "score-col", service.DefaultScoreColumn, "name of the score column")
	fl.Float64Var(&f.cutoff, "cutoff", 0, "drop matches scoring below this value (0..100)")
	fl.BoolVar(&f.process, "process", false, "ignore case, punctuation and full-width forms")
	fl.BoolVar(&f.unify, "unify", false, "treat Latin look-alikes as Cyrillic letters and ё as е")
}

var (
	mf       matchFlags
	matchOut string
	matchTop int
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match two columns of a table",
	Example: `  colmatch match -f stores.xlsx -s "Store name" -c "Directory name"
  colmatch match -f stores.xlsx -s name -c alias --scorer token_set_ratio --out result.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig(true)
		start := time.Now()

		out, err := runMatch(cmd.Context(), cfg, &mf, logger)
		if err != nil {
			return err
		}

		if matchOut != "" {
			if err := writeTable(matchOut, out); err != nil {
				return err
			}
			pterm.Success.Printfln("%d rows written to %s in %s", out.Len(), matchOut, time.Since(start).Round(time.Millisecond))
			return nil
		}
		return printMatches(out, mf.source, mf.matchCol, mf.scoreCol, matchTop)
	},
}

func init() {
	mf.register(matchCmd)
	matchCmd.Flags().StringVarP(&matchOut, "out", "o", "", "write the result to .xlsx or .csv instead of printing")
	matchCmd.Flags().IntVar(&matchTop, "limit", 50, "rows to print (0 = all)")
	_ = matchCmd.MarkFlagRequired("source")
	_ = matchCmd.MarkFlagRequired("candidate")
}

// runMatch читает таблицу и прогоняет сопоставление с прогресс-баром.
func runMatch(ctx context.Context, cfg config.Config, f *matchFlags, logger zerolog.Logger) (*dataset.Dataset, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	scorer, err := service.ScorerByName(f.scorer)
	if err != nil {
		return nil, err
	}
	if f.cutoff < 0 || f.cutoff > 100 {
		return nil, errors.Newf("--cutoff must be within 0..100, got %v", f.cutoff)
	}

	state, err := config.LoadState(cfg.StateFile)
	if err != nil {
		logger.Warn().Err(err).Msg("state ignored")
	}
	path := f.file
	if path == "" {
		path = state.LastOpened()
		if path == "" {
			return nil, errors.WithHint(errors.New("no input file"), "pass --file")
		}
		pterm.Info.Printfln("Using last opened file %s", path)
	}

	ds, err := readTable(ctx, path, f.headerRow, f.sheet, logger)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		if err := state.Remember(abs); err != nil {
			logger.Warn().Err(err).Msg("save state")
		}
	}

	opt := service.Options{
		Scorer:      scorer,
		MatchColumn: f.matchCol,
		ScoreColumn: f.scoreCol,
		ScoreCutoff: f.cutoff,
	}
	if f.process {
		opt.Processor = service.DefaultProcessor
	}
	opt.Processor.Unify = f.unify

	bar, _ := pterm.DefaultProgressbar.WithTotal(max(ds.Len(), 1)).WithTitle("Matching").WithWriter(os.Stderr).Start()
	opt.Progress = barProgress{bar}
	out, err := service.MatchContext(ctx, ds, f.source, f.candidate, opt)
	if bar != nil {
		_, _ = bar.Stop()
	}
	return out, err
}

func readTable(ctx context.Context, path string, headerRow int, sheet string, logger zerolog.Logger) (*dataset.Dataset, error) {
	events := loader.Load(ctx, loader.FromFile(path), loader.Options{HeaderRow: headerRow, Sheet: sheet, PreviewRows: -1}, logger)
	for ev := range events {
		switch ev.Kind {
		case loader.FullReady:
			return ev.Dataset, nil
		case loader.Failed:
			return nil, ev.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, errors.Newf("%s: loader stopped without result", path)
}

type barProgress struct{ bar *pterm.ProgressbarPrinter }

func (p barProgress) Report(done, total int) {
	if p.bar == nil {
		return
	}
	if d := done - p.bar.Current; d > 0 {
		p.bar.Add(d)
	}
}

func writeTable(path string, ds *dataset.Dataset) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return fileio.WriteAny(f, path, ds)
}

func printMatches(ds *dataset.Dataset, source, matchCol, scoreCol string, limit int) error {
	cols := []string{source, matchCol, scoreCol}
	idx := make([]int, len(cols))
	for i, c := range cols {
		if idx[i] = ds.ColumnIndex(c); idx[i] < 0 {
			return errors.Wrapf(dataset.ErrColumnNotFound, "%q", c)
		}
	}

	view := ds
	if limit > 0 {
		view = ds.Head(limit)
	}
	data := pterm.TableData{cols}
	matched := 0
	for _, row := range view.Rows {
		line := make([]string, len(idx))
		for i, j := range idx {
			line[i] = row[j].String()
		}
		data = append(data, line)
	}
	for _, row := range ds.Rows {
		if !row[idx[1]].IsNull() {
			matched++
		}
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	if view.Len() < ds.Len() {
		pterm.Info.Printfln("showing %d of %d rows, use --out to save all", view.Len(), ds.Len())
	}
	pterm.Success.Printfln("%d of %d rows matched", matched, ds.Len())
	return nil
}
