package handler

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"colmatch-service/internal/colmatch/model"
	"colmatch-service/internal/colmatch/service"
	"colmatch-service/internal/config"
	"colmatch-service/internal/dataset"
	"colmatch-service/internal/export"
	"colmatch-service/internal/fileio"
	"colmatch-service/internal/loader"
	"colmatch-service/internal/middleware"
	"colmatch-service/internal/worker"
	"colmatch-service/internal/workspace"
)

// Deps: всё, что нужно обработчикам. State может быть nil.
type Deps struct {
	Cfg   config.Config
	Log   zerolog.Logger
	Store *workspace.Store
	Jobs  *worker.Pool
	State *config.State
}

func (d *Deps) logger(r *http.Request) zerolog.Logger {
	if rid := middleware.GetRequestID(r); rid != "" {
		return d.Log.With().Str("rid", rid).Logger()
	}
	return d.Log
}

func (d *Deps) fail(w http.ResponseWriter, r *http.Request, err error) {
	d.failStatus(w, r, statusFor(err), err)
}

func (d *Deps) failStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	log := d.logger(r)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	_ = writeJSON(w, status, errorBody(err))
}

func (d *Deps) previewRows() int {
	if d.Cfg.PreviewRows > 0 {
		return d.Cfg.PreviewRows
	}
	return loader.DefaultPreviewRows
}

func (d *Deps) batchSize() int {
	if d.Cfg.BatchSize > 0 {
		return d.Cfg.BatchSize
	}
	return loader.DefaultBatchSize
}

// Upload принимает файл (multipart "file"), запускает фоновую загрузку
// и отвечает превью.
func Upload(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := d.logger(r)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(int64(d.Cfg.MaxUploadMB) << 20); err != nil {
			d.fail(w, r, badRequest("bad multipart form: %v", err))
			return
		}
		src, err := uploadSource(r)
		if err != nil {
			d.fail(w, r, err)
			return
		}

		opt := loader.Options{
			HeaderRow:   atoi(r.FormValue("header_row"), 1),
			Sheet:       r.FormValue("sheet"),
			PreviewRows: d.Cfg.PreviewRows,
		}
		e := d.Store.Create(src.Name)
		log = log.With().Str("dataset", e.ID).Str("file", src.Name).Logger()

		// загрузка переживает запрос, поэтому не r.Context()
		events := loader.Load(context.Background(), src, opt, log)
		first, ok := <-events
		if !ok {
			d.fail(w, r, errors.New("loader stopped without result"))
			return
		}
		e, _ = d.Store.Apply(e.ID, first)
		if first.Kind == loader.Failed {
			d.fail(w, r, errors.Mark(first.Err, errBadRequest))
			return
		}

		go d.Store.Follow(e.ID, events, func(ready workspace.Entry) {
			log.Info().Int("rows", ready.Dataset.Len()).Msg("dataset ready")
		})

		_ = writeJSON(w, http.StatusAccepted, d.view(e, true))
	}
}

func uploadSource(r *http.Request) (loader.Source, error) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return loader.Source{}, badRequest("missing file")
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return loader.Source{}, badRequest("read upload: %v", err)
	}
	return loader.FromBytes(hdr.Filename, b), nil
}

func (d *Deps) view(e workspace.Entry, withPreview bool) model.DatasetView {
	v := model.DatasetView{
		ID:       e.ID,
		FileName: e.FileName,
		State:    string(e.State),
		Error:    e.Error,
		Version:  e.Version,
		Updated:  e.Updated,
	}
	if e.Dataset != nil {
		v.Columns = e.Dataset.Columns
		v.RowCount = e.Dataset.Len()
		if withPreview {
			head := e.Dataset.Head(d.previewRows())
			v.Preview = dataset.Records(head.Columns, head.Rows)
		}
	}
	return v
}

func Dataset(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := d.Store.Get(chi.URLParam(r, "id"))
		if err != nil {
			d.fail(w, r, err)
			return
		}
		_ = writeJSON(w, http.StatusOK, d.view(e, toBool(r.URL.Query().Get("preview"), false)))
	}
}

// List: все открытые таблицы, свежие первыми, без превью.
func List(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := d.Store.List()
		out := make([]model.DatasetView, 0, len(entries))
		for _, e := range entries {
			out = append(out, d.view(e, false))
		}
		_ = writeJSON(w, http.StatusOK, out)
	}
}

// Delete закрывает таблицу; начатое сопоставление потом упадёт с not found.
func Delete(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !d.Store.Delete(id) {
			d.fail(w, r, errors.Wrapf(workspace.ErrNotFound, "%s", id))
			return
		}
		log := d.logger(r)
		log.Info().Str("dataset", id).Msg("dataset closed")
		w.WriteHeader(http.StatusNoContent)
	}
}

// Rows отдаёт страницу таблицы; доступно уже на этапе превью.
func Rows(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := d.Store.Get(chi.URLParam(r, "id"))
		if err != nil {
			d.fail(w, r, err)
			return
		}
		if e.Dataset == nil {
			if e.State == workspace.Failed {
				d.fail(w, r, errors.Mark(errors.Newf("dataset %s failed to load: %s", e.ID, e.Error), workspace.ErrLoadFailed))
				return
			}
			d.fail(w, r, errors.Wrapf(workspace.ErrNotReady, "%s", e.ID))
			return
		}

		q := r.URL.Query()
		offset := atoi(q.Get("offset"), 0)
		limit := atoi(q.Get("limit"), d.batchSize())
		if offset < 0 || limit <= 0 {
			d.fail(w, r, badRequest("offset must be >= 0 and limit > 0"))
			return
		}
		if most := 10 * d.batchSize(); limit > most {
			limit = most
		}

		page := model.RowsPage{
			Columns: e.Dataset.Columns,
			Offset:  offset,
			Limit:   limit,
			Total:   e.Dataset.Len(),
			Rows:    [][]dataset.Value{},
		}
		if rows := e.Dataset.Slice(offset, limit); rows != nil {
			page.Rows = rows
		}
		_ = writeJSON(w, http.StatusOK, page)
	}
}

// Match запускает сопоставление колонок как фоновую задачу.
func Match(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := d.logger(r)
		id := chi.URLParam(r, "id")

		var req model.MatchRequest
		if err := decodeJSON(r, &req); err != nil {
			d.fail(w, r, err)
			return
		}
		if strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.Candidate) == "" {
			d.fail(w, r, badRequest("source and candidate columns are required"))
			return
		}
		if req.ScoreCutoff < 0 || req.ScoreCutoff > 100 {
			d.fail(w, r, badRequest("score_cutoff must be within 0..100, got %v", req.ScoreCutoff))
			return
		}
		scorer, err := service.ScorerByName(req.Scorer)
		if err != nil {
			d.fail(w, r, err)
			return
		}
		e, err := d.Store.Ready(id)
		if err != nil {
			d.fail(w, r, err)
			return
		}

		src := resolveColumn(e.Dataset.Columns, req.Source)
		cand := resolveColumn(e.Dataset.Columns, req.Candidate)
		// колонки проверяем сразу, чтобы 422 пришёл в этом же ответе
		if _, err := e.Dataset.Column(src); err != nil {
			d.fail(w, r, errors.Wrap(err, "source column"))
			return
		}
		if _, err := e.Dataset.Column(cand); err != nil {
			d.fail(w, r, errors.Wrap(err, "candidate column"))
			return
		}

		opt := service.Options{
			Scorer:      scorer,
			MatchColumn: strings.TrimSpace(req.MatchColumn),
			ScoreColumn: strings.TrimSpace(req.ScoreColumn),
			ScoreCutoff: req.ScoreCutoff,
		}
		if req.Process {
			opt.Processor = service.DefaultProcessor
		}
		opt.Processor.Unify = req.Unify
		if opt.MatchColumn == "" {
			opt.MatchColumn = service.DefaultMatchColumn
		}
		if opt.ScoreColumn == "" {
			opt.ScoreColumn = service.DefaultScoreColumn
		}
		if opt.MatchColumn == opt.ScoreColumn {
			d.fail(w, r, badRequest("match_column and score_column must differ, both are %q", opt.MatchColumn))
			return
		}
		scorerName := strings.ToLower(strings.TrimSpace(req.Scorer))
		if scorerName == "" {
			scorerName = service.DefaultScorerName
		}

		job := d.Jobs.Submit("match "+e.FileName, func(ctx context.Context, rep worker.Reporter) (any, error) {
			opt.Progress = rep
			out, err := service.MatchContext(ctx, e.Dataset, src, cand, opt)
			if err != nil {
				return nil, err
			}
			ne, err := d.Store.Replace(id, e.Version, out)
			if err != nil {
				return nil, err
			}
			sum := model.MatchSummary{
				DatasetID:   id,
				Version:     ne.Version,
				Rows:        out.Len(),
				Matched:     countFilled(out, opt.MatchColumn),
				Scorer:      scorerName,
				MatchColumn: opt.MatchColumn,
				ScoreColumn: opt.ScoreColumn,
				Columns:     out.Columns,
			}
			log.Info().
				Str("dataset", id).
				Str("source", src).
				Str("candidate", cand).
				Int("rows", sum.Rows).
				Int("matched", sum.Matched).
				Dur("elapsed", time.Since(start)).
				Msg("match done")
			return sum, nil
		})

		w.Header().Set("Location", "/jobs/"+job.ID())
		if !req.Wait {
			_ = writeJSON(w, http.StatusAccepted, model.JobAccepted{JobID: job.ID(), Status: string(worker.Pending)})
			return
		}
		snap, err := d.Jobs.Wait(r.Context(), job.ID())
		if err != nil {
			d.fail(w, r, err)
			return
		}
		if snap.Status != worker.Done {
			err := snap.Err()
			if err == nil {
				err = errors.Newf("job %s %s", snap.ID, snap.Status)
			}
			d.fail(w, r, err)
			return
		}
		_ = writeJSON(w, http.StatusOK, snap)
	}
}

func countFilled(ds *dataset.Dataset, col string) int {
	vals, err := ds.Column(col)
	if err != nil {
		return 0
	}
	n := 0
	for _, v := range vals {
		if !v.IsNull() {
			n++
		}
	}
	return n
}

func Job(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		j, ok := d.Jobs.Get(id)
		if !ok {
			d.fail(w, r, errors.Wrapf(worker.ErrNotFound, "%s", id))
			return
		}
		_ = writeJSON(w, http.StatusOK, j.Snapshot())
	}
}

func CancelJob(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := d.Jobs.Cancel(id); err != nil {
			d.fail(w, r, err)
			return
		}
		j, _ := d.Jobs.Get(id)
		_ = writeJSON(w, http.StatusAccepted, j.Snapshot())
	}
}

var contentTypes = map[string]string{
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"csv":  "text/csv; charset=utf-8",
}

// Download отдаёт текущую версию таблицы (вместе с колонками результата).
func Download(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
		if format == "" {
			format = "xlsx"
		}
		ct, ok := contentTypes[format]
		if !ok {
			d.fail(w, r, badRequest("unknown format %q", format))
			return
		}
		e, err := d.Store.Ready(chi.URLParam(r, "id"))
		if err != nil {
			d.fail(w, r, err)
			return
		}

		name := e.Dataset.Name
		if name == "" {
			name = "table"
		}
		name += "." + format

		var buf bytes.Buffer
		if err := fileio.WriteAny(&buf, name, e.Dataset); err != nil {
			d.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

// Export пишет таблицу в MySQL/SQLite.
func Export(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := d.logger(r)

		var req model.ExportRequest
		if err := decodeJSON(r, &req); err != nil {
			d.fail(w, r, err)
			return
		}
		dialect, err := export.ParseDialect(req.Dialect)
		if err != nil {
			d.fail(w, r, err)
			return
		}
		mode, err := export.ParseIfExists(req.IfExists)
		if err != nil {
			d.fail(w, r, errors.Mark(err, errBadRequest))
			return
		}
		table := strings.TrimSpace(req.Table)
		if table == "" {
			d.fail(w, r, badRequest("table is required"))
			return
		}
		dsn, err := exportDSN(req, dialect, d.Cfg)
		if err != nil {
			d.fail(w, r, err)
			return
		}
		e, err := d.Store.Ready(chi.URLParam(r, "id"))
		if err != nil {
			d.fail(w, r, err)
			return
		}

		db, err := export.Open(r.Context(), dialect, dsn)
		if err != nil {
			d.failStatus(w, r, http.StatusBadGateway, err)
			return
		}
		defer db.Close()

		ex := export.New(db, dialect, log)
		ex.BatchSize = d.batchSize()
		n, err := ex.Export(r.Context(), e.Dataset, table, mode)
		if err != nil {
			d.fail(w, r, err)
			return
		}
		_ = writeJSON(w, http.StatusOK, model.ExportResult{Table: table, Rows: n})
	}
}

func exportDSN(req model.ExportRequest, d export.Dialect, cfg config.Config) (string, error) {
	switch {
	case d == export.SQLite:
		return sqlitePath(cfg.ExportDir, req.DSN)
	case strings.TrimSpace(req.DSN) != "":
		return strings.TrimSpace(req.DSN), nil
	case req.Credentials != nil:
		if d != export.MySQL {
			return "", badRequest("credentials are only supported for mysql")
		}
		if err := req.Credentials.Validate(); err != nil {
			return "", errors.Mark(err, errBadRequest)
		}
		return req.Credentials.DSN(), nil
	case cfg.MySQLDSN != "":
		return cfg.MySQLDSN, nil
	}
	return "", badRequest("dsn or credentials required")
}

// sqlitePath: клиент передаёт только имя файла, база создаётся внутри dir.
func sqlitePath(dir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", badRequest("dsn (database file name) is required for sqlite")
	}
	if dir == "" {
		return "", badRequest("sqlite export is disabled: EXPORT_DIR is not set")
	}
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" || strings.ContainsAny(clean, ":?") ||
		clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.WithHint(badRequest("sqlite dsn %q must be a file name inside the export directory", name),
			"pass a relative name such as stores.db")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "export dir")
	}
	return filepath.Join(dir, clean), nil
}
