package export

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colmatch-service/internal/dataset"
)

func matched() *dataset.Dataset {
	ds := dataset.New("orders", []string{"订单地址", "best match", "similarity score"})
	ds.AppendRow([]dataset.Value{dataset.TextValue("广州店天河路123号"), dataset.TextValue("广州店-天河路123"), dataset.TextValue("90.00")})
	ds.AppendRow([]dataset.Value{dataset.TextValue("x"), {}, {}})
	ds.AppendRow([]dataset.Value{dataset.NumberValue(7), dataset.TextValue("7"), dataset.TextValue("100.00")})
	return ds
}

const mysqlExists = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"

func TestMySQLExportCreatesTableAndInsertsInBatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(mysqlExists)).
		WithArgs("matches").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE `matches` (`订单地址` TEXT, `best match` TEXT, `similarity score` TEXT) DEFAULT CHARSET=utf8mb4")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `matches` (`订单地址`, `best match`, `similarity score`) VALUES (?, ?, ?), (?, ?, ?)")).
		WithArgs("广州店天河路123号", "广州店-天河路123", "90.00", "x", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `matches` (`订单地址`, `best match`, `similarity score`) VALUES (?, ?, ?)")).
		WithArgs("7", "7", "100.00").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e := New(db, MySQL, zerolog.Nop())
	e.BatchSize = 2
	n, err := e.Export(context.Background(), matched(), "matches", Fail)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLExportFailsWhenTableExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(mysqlExists)).
		WithArgs("matches").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(1))

	_, err = New(db, MySQL, zerolog.Nop()).Export(context.Background(), matched(), "matches", Fail)
	assert.True(t, errors.Is(err, ErrTableExists))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLExportReplaceDropsTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(mysqlExists)).
		WithArgs("my`table").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE `my``table`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE `my``table`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `my``table`")).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := New(db, MySQL, zerolog.Nop()).Export(context.Background(), matched(), "my`table", Replace)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLExportRollsBackOnInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(mysqlExists)).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	_, err = New(db, MySQL, zerolog.Nop()).Export(context.Background(), matched(), "matches", Append)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert rows 1-3")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, SQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	e := New(db, SQLite, zerolog.Nop())
	n, err := e.Export(ctx, matched(), "matches", Fail)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = e.Export(ctx, matched(), "matches", Fail)
	assert.True(t, errors.Is(err, ErrTableExists))

	_, err = e.Export(ctx, matched(), "matches", Append)
	require.NoError(t, err)

	var cnt int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "matches"`).Scan(&cnt))
	assert.Equal(t, 6, cnt)

	_, err = e.Export(ctx, matched(), "matches", Replace)
	require.NoError(t, err)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "matches" WHERE "best match" IS NULL`).Scan(&cnt))
	assert.Equal(t, 1, cnt)

	var best string
	require.NoError(t, db.QueryRow(`SELECT "best match" FROM "matches" WHERE "订单地址" = ?`, "广州店天河路123号").Scan(&best))
	assert.Equal(t, "广州店-天河路123", best)
}

func TestRowsPerStmtStaysUnderPlaceholderLimit(t *testing.T) {
	e := &Exporter{Dialect: SQLite, BatchSize: 500}
	assert.Equal(t, 500, e.rowsPerStmt(3))
	assert.Equal(t, 468, e.rowsPerStmt(70))
	assert.Equal(t, 1, e.rowsPerStmt(40000))

	e.Dialect = MySQL
	assert.Equal(t, 500, e.rowsPerStmt(70))
	assert.Equal(t, 327, e.rowsPerStmt(200))

	e.BatchSize = 0
	assert.Equal(t, DefaultBatchSize, e.rowsPerStmt(3))
}

func TestSQLiteExportWideTable(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, SQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	cols := make([]string, 70)
	for i := range cols {
		cols[i] = fmt.Sprintf("c%02d", i)
	}
	ds := dataset.New("wide", cols)
	for r := 0; r < 600; r++ {
		row := make([]dataset.Value, len(cols))
		for i := range row {
			row[i] = dataset.TextValue(fmt.Sprintf("%d-%d", r, i))
		}
		ds.AppendRow(row)
	}

	e := New(db, SQLite, zerolog.Nop())
	n, err := e.Export(ctx, ds, "wide", Fail)
	require.NoError(t, err)
	assert.Equal(t, int64(600), n)

	var last string
	require.NoError(t, db.QueryRow(`SELECT "c69" FROM "wide" WHERE "c00" = ?`, "599-0").Scan(&last))
	assert.Equal(t, "599-69", last)
}

func TestExportValidation(t *testing.T) {
	e := &Exporter{Dialect: SQLite}
	_, err := e.Export(context.Background(), dataset.New("empty", nil), "t", Fail)
	assert.True(t, errors.Is(err, ErrNoColumns))

	_, err = e.Export(context.Background(), matched(), " ", Fail)
	assert.True(t, errors.Is(err, ErrInvalidIdentifier))
}

func TestParseOptions(t *testing.T) {
	d, err := ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, MySQL, d)
	d, err = ParseDialect("SQLite3")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)
	_, err = ParseDialect("oracle")
	assert.True(t, errors.Is(err, ErrUnknownDialect))

	m, err := ParseIfExists("")
	require.NoError(t, err)
	assert.Equal(t, Fail, m)
	_, err = ParseIfExists("truncate")
	assert.Error(t, err)
}

func TestCredentials(t *testing.T) {
	c := Credentials{Host: "db.local", User: "app", Password: "p@ss", Database: "stores"}
	require.NoError(t, c.Validate())
	dsn := c.DSN()
	assert.Contains(t, dsn, "app:p@ss@tcp(db.local:3306)/stores")
	assert.Contains(t, dsn, "charset=utf8mb4")

	err := Credentials{Port: 70000}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host, user, database")
	assert.Error(t, Credentials{Host: "h", User: "u", Database: "d", Port: 70000}.Validate())
}
