package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/graphsync/dialect"
	"github.com/syssam/graphsync/dialect/sql"
)

func TestBuilder(t *testing.T) {
	var b Builder
	assert.Equal(t, dialect.Postgres, b.Dialect())
	assert.Equal(t, `"users"`, b.Wrap("users"))
	assert.Equal(t, `"we""ird"`, b.Wrap(`we"ird`))
	assert.Equal(t, "$3", b.Placeholder(3))
	assert.Equal(t, `INSERT INTO "t"{{fields}} {{values}} RETURNING *`, b.InsertTemplate(`"t"`))
	assert.Equal(t, `UPDATE "t" SET {{set}} WHERE {{where}} RETURNING *`, b.UpdateTemplate(`"t"`))
	assert.Equal(t, `DELETE FROM "t" WHERE {{where}} RETURNING *`, b.DeleteTemplate(`"t"`))
	assert.Equal(t, "(SELECT coalesce(json_agg(row_to_json(_n)), '[]'::json) FROM (SELECT 1) AS _n)", b.Nested("SELECT 1"))
	assert.Equal(t, "SELECT * FROM x LIMIT 5", b.Limit("SELECT * FROM x", 5))
}

func TestAdapterExecute(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	a := New(sql.OpenDB(dialect.Postgres, db))

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "users" ("name") VALUES ($1) RETURNING *`)).
		WithArgs("a8m").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, []byte("a8m")))
	rows, err := a.Execute(context.Background(), `INSERT INTO "users" ("name") VALUES ($1) RETURNING *`, []any{"a8m"}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0]["id"])
	assert.Equal(t, "a8m", rows[0]["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapterTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	a := New(sql.OpenDB(dialect.Postgres, db))
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM "users" WHERE "id" = $1 RETURNING *`)).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()
	err = a.Transaction(ctx, func(ctx context.Context, tx dialect.Tx) error {
		rows, err := a.Execute(ctx, `DELETE FROM "users" WHERE "id" = $1 RETURNING *`, []any{1}, tx)
		if err != nil {
			return err
		}
		assert.Len(t, rows, 1)
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = a.Transaction(ctx, func(context.Context, dialect.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecodeNested(t *testing.T) {
	var b Builder
	rows, err := b.DecodeNested(nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = b.DecodeNested(`[{"id": 1, "notes": [{"id": 7}]}, {"id": 2, "notes": []}]`)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, json.Number("1"), rows[0]["id"])

	nested, err := b.DecodeNested(rows[0]["notes"])
	require.NoError(t, err)
	require.Len(t, nested, 1)
	assert.Equal(t, json.Number("7"), nested[0]["id"])

	rows, err = b.DecodeNested("[]")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	_, err = b.DecodeNested("{not json")
	assert.Error(t, err)
	_, err = b.DecodeNested(42)
	assert.Error(t, err)
	_, err = b.DecodeNested([]any{"x"})
	assert.Error(t, err)
}
