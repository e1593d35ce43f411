package sql

import (
	"context"
	"errors"
	"testing"

	"github.com/syssam/graphsync/dialect"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"id", "payload"}).
			AddRow(int64(1), []byte(`[{"id":2}]`)).
			AddRow(int64(3), nil))

	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT id, payload FROM t", []any{}, rows))
	records, err := ScanRows(rows)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0]["id"])
	assert.Equal(t, `[{"id":2}]`, records[0]["payload"])
	assert.Nil(t, records[1]["payload"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRowsLastResultSet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.MSSQL, db)

	first := sqlmock.NewRows([]string{"n"}).AddRow(1)
	second := sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "a")
	mock.ExpectQuery("INSERT").WillReturnRows(first, second)

	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "INSERT INTO t; SELECT * FROM #out", []any{}, rows))
	records, err := ScanRows(rows)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, dialect.Row{"id": int64(7), "name": "a"}, records[0])
}

func TestScanRowsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT id FROM t", []any{}, rows))
	records, err := ScanRows(rows)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestScanRowsError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(1).RowError(0, errors.New("broken row")))
	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT id FROM t", []any{}, rows))
	_, err = ScanRows(rows)
	require.EqualError(t, err, "broken row")
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"users"`, QuoteIdent("users", '"', '"'))
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`, '"', '"'))
	assert.Equal(t, `[users]`, QuoteIdent("users", '[', ']'))
	assert.Equal(t, `[a]]b]`, QuoteIdent("a]b", '[', ']'))
}

func TestTemplateExpand(t *testing.T) {
	tmpl := Template(`UPDATE "t" SET {{set}} WHERE {{where}} RETURNING *`)
	got := tmpl.Expand(Parts{Set: `"name" = $1`, Where: `"id" = $2`})
	assert.Equal(t, `UPDATE "t" SET "name" = $1 WHERE "id" = $2 RETURNING *`, got)

	tmpl = Template(`INSERT INTO "t" ({{fields}}) VALUES ({{values}})`)
	assert.Equal(t, `INSERT INTO "t" ("a", "b") VALUES ($1, $2)`,
		tmpl.Expand(Parts{Fields: `"a", "b"`, Values: "$1, $2"}))
}
