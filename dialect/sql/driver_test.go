package sql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/graphsync/dialect"
)

func newMockDriver(t *testing.T, name string) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return OpenDB(name, db), mock
}

func TestOpenDB(t *testing.T) {
	for _, name := range []string{dialect.Postgres, dialect.MSSQL} {
		drv, _ := newMockDriver(t, name)
		assert.Equal(t, name, drv.Dialect())
		assert.NotNil(t, drv.DB())
	}
}

func TestDriverQuery(t *testing.T) {
	drv, mock := newMockDriver(t, dialect.Postgres)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT name FROM users WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ada"))
	rows := &Rows{}
	require.NoError(t, drv.Query(ctx, "SELECT name FROM users WHERE id = $1", []any{1}, rows))
	records, err := ScanRows(rows)
	require.NoError(t, err)
	assert.Equal(t, []dialect.Row{{"name": "ada"}}, records)

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	require.NoError(t, drv.Query(ctx, "SELECT 1", nil, rows), "nil args")
	require.NoError(t, rows.Close())

	cause := errors.New("connection reset")
	mock.ExpectQuery("SELECT").WillReturnError(cause)
	err = drv.Query(ctx, "SELECT", []any{}, rows)
	assert.ErrorIs(t, err, cause)
	assert.ErrorContains(t, err, "dialect/sql: query")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverQueryBadArguments(t *testing.T) {
	drv, mock := newMockDriver(t, dialect.Postgres)
	ctx := context.Background()
	assert.ErrorContains(t, drv.Query(ctx, "SELECT 1", []any{}, nil), "unexpected destination <nil>")
	assert.ErrorContains(t, drv.Query(ctx, "SELECT 1", []string{"a"}, &Rows{}), "unexpected arguments []string")
	assert.ErrorContains(t, drv.Exec(ctx, "DELETE", 1, nil), "unexpected arguments int")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverExec(t *testing.T) {
	drv, mock := newMockDriver(t, dialect.Postgres)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE users SET name = \$1 WHERE id = \$2`).
		WithArgs("ada", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	var res Result
	require.NoError(t, drv.Exec(ctx, "UPDATE users SET name = $1 WHERE id = $2", []any{"ada", 1}, &res))
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 3))
	require.NoError(t, drv.Exec(ctx, "DELETE FROM users", []any{}, nil))

	mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorContains(t, drv.Exec(ctx, "DELETE FROM users", []any{}, &Rows{}), "unexpected destination *sql.Rows")

	cause := errors.New("constraint violation")
	mock.ExpectExec("DELETE").WillReturnError(cause)
	assert.ErrorIs(t, drv.Exec(ctx, "DELETE FROM users", []any{}, nil), cause)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverTx(t *testing.T) {
	drv, mock := newMockDriver(t, dialect.MSSQL)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM users").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	assert.Equal(t, dialect.MSSQL, tx.(*Tx).Dialect())
	rows := &Rows{}
	require.NoError(t, tx.Query(ctx, "SELECT id FROM users", []any{}, rows))
	require.NoError(t, rows.Close())
	require.NoError(t, tx.Exec(ctx, "DELETE FROM users", []any{}, nil))
	require.NoError(t, tx.Commit())

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
	_, err = drv.Tx(ctx)
	assert.ErrorContains(t, err, "too many connections")
	require.NoError(t, mock.ExpectationsWereMet())
}
