// Package export writes a table into a SQL database, one TEXT column per
// dataset column.
package export

import (
	"context"
	"database/sql"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"colmatch-service/internal/dataset"
	"colmatch-service/internal/loader"
)

type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// IfExists decides what happens when the target table already exists.
type IfExists string

const (
	Fail    IfExists = "fail"
	Replace IfExists = "replace"
	Append  IfExists = "append"
)

const DefaultBatchSize = 500

// лимиты плейсхолдеров на один запрос: SQLITE_MAX_VARIABLE_NUMBER и
// 16-битный счётчик параметров в протоколе MySQL
const (
	maxParamsSQLite = 32766
	maxParamsMySQL  = 65535
)

var (
	ErrTableExists       = errors.New("table already exists")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrUnknownDialect    = errors.New("unknown dialect")
	ErrNoColumns         = errors.New("dataset has no columns")
)

func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(s))) {
	case MySQL, "":
		return MySQL, nil
	case SQLite, "sqlite3":
		return SQLite, nil
	}
	return "", errors.Wrapf(ErrUnknownDialect, "%q", s)
}

func ParseIfExists(s string) (IfExists, error) {
	switch m := IfExists(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Fail, nil
	case Fail, Replace, Append:
		return m, nil
	}
	return "", errors.Newf("if_exists must be fail, replace or append, got %q", s)
}

type Exporter struct {
	DB        *sql.DB
	Dialect   Dialect
	BatchSize int
	Log       zerolog.Logger
}

func New(db *sql.DB, d Dialect, logger zerolog.Logger) *Exporter {
	return &Exporter{DB: db, Dialect: d, BatchSize: DefaultBatchSize, Log: logger}
}

// Export writes ds into table and returns the number of inserted rows.
func (e *Exporter) Export(ctx context.Context, ds *dataset.Dataset, table string, mode IfExists) (int64, error) {
	if len(ds.Columns) == 0 {
		return 0, ErrNoColumns
	}
	if err := validIdent(table); err != nil {
		return 0, err
	}
	for _, c := range ds.Columns {
		if err := validIdent(c); err != nil {
			return 0, errors.Wrap(err, "column")
		}
	}

	exists, err := e.tableExists(ctx, table)
	if err != nil {
		return 0, errors.Wrap(err, "check table")
	}
	if exists && mode == Fail {
		return 0, errors.Wrapf(ErrTableExists, "%s", table)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	// MySQL коммитит DDL неявно: после DROP/CREATE откат уже не вернёт
	// старую таблицу, упавший replace оставит её пустой или заполненной частично.
	// В SQLite DDL транзакционный.
	if exists && mode == Replace {
		if _, err := tx.ExecContext(ctx, "DROP TABLE "+e.quote(table)); err != nil {
			return 0, errors.Wrap(err, "drop table")
		}
	}
	if !exists || mode == Replace {
		if _, err := tx.ExecContext(ctx, e.createSQL(table, ds.Columns)); err != nil {
			return 0, errors.Wrap(err, "create table")
		}
	}

	var n int64
	for _, b := range loader.Batches(ds.Len(), 0, e.rowsPerStmt(len(ds.Columns))) {
		rows := ds.Slice(b.Start, b.End-b.Start)
		res, err := tx.ExecContext(ctx, e.insertSQL(table, ds.Columns, len(rows)), args(rows, len(ds.Columns))...)
		if err != nil {
			return n, errors.Wrapf(err, "insert rows %d-%d", b.Start+1, b.End)
		}
		if affected, err := res.RowsAffected(); err == nil {
			n += affected
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	e.Log.Info().Str("table", table).Str("dialect", string(e.Dialect)).Int64("rows", n).Msg("export done")
	return n, nil
}

// rowsPerStmt ограничивает пачку так, чтобы rows*cols не превысил лимит драйвера.
func (e *Exporter) rowsPerStmt(cols int) int {
	size := e.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	limit := maxParamsMySQL
	if e.Dialect == SQLite {
		limit = maxParamsSQLite
	}
	if cols > 0 {
		size = min(size, limit/cols)
	}
	return max(size, 1)
}

func (e *Exporter) tableExists(ctx context.Context, table string) (bool, error) {
	var q string
	switch e.Dialect {
	case MySQL:
		q = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	case SQLite:
		q = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	default:
		return false, errors.Wrapf(ErrUnknownDialect, "%q", e.Dialect)
	}
	var cnt int
	if err := e.DB.QueryRowContext(ctx, q, table).Scan(&cnt); err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (e *Exporter) quote(ident string) string {
	if e.Dialect == MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (e *Exporter) createSQL(table string, cols []string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(e.quote(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.quote(c))
		b.WriteString(" TEXT")
	}
	b.WriteString(")")
	if e.Dialect == MySQL {
		b.WriteString(" DEFAULT CHARSET=utf8mb4")
	}
	return b.String()
}

func (e *Exporter) insertSQL(table string, cols []string, rows int) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = e.quote(c)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(e.quote(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES ")
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}
	return b.String()
}

// args: Null → SQL NULL, остальное текстом, как в таблице
func args(rows [][]dataset.Value, width int) []any {
	out := make([]any, 0, len(rows)*width)
	for _, r := range rows {
		for i := 0; i < width; i++ {
			if i >= len(r) || r[i].IsNull() {
				out = append(out, nil)
				continue
			}
			out = append(out, r[i].String())
		}
	}
	return out
}

// MySQL limits identifiers to 64 characters; both dialects reject NUL.
func validIdent(s string) error {
	switch {
	case strings.TrimSpace(s) == "":
		return errors.Wrap(ErrInvalidIdentifier, "empty name")
	case utf8.RuneCountInString(s) > 64:
		return errors.Wrapf(ErrInvalidIdentifier, "%q is longer than 64 characters", s)
	case strings.ContainsRune(s, 0):
		return errors.Wrapf(ErrInvalidIdentifier, "%q contains NUL", s)
	}
	return nil
}
