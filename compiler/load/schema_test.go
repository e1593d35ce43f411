package load_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/graphsync"
	"github.com/syssam/graphsync/compiler/load"
	"github.com/syssam/graphsync/descriptor"
	"github.com/syssam/graphsync/dialect"
	"github.com/syssam/graphsync/dialect/postgres"
	"github.com/syssam/graphsync/dialect/sql"
	"github.com/syssam/graphsync/schema/field"
)

func newMapper(t *testing.T) *graphsync.Mapper {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return graphsync.New(
		postgres.New(sql.OpenDB(dialect.Postgres, db)),
		graphsync.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestLoad(t *testing.T) {
	m := newMapper(t)
	entities, err := load.Load(m, "testdata/orders.yaml")
	require.NoError(t, err)
	require.Len(t, entities, 2)

	orders := entities[0].Table()
	assert.Equal(t, "orders", orders.Table)
	assert.Equal(t, "order", orders.Alias)
	assert.True(t, orders.Timestamps)
	assert.Equal(t, []string{"id"}, orders.PrimaryKeyAttributes)
	require.Len(t, orders.Associations, 2)
	items, ok := orders.Association("items")
	require.True(t, ok)
	assert.Equal(t, descriptor.ToMany, items.Kind)
	assert.Equal(t, "orderId", items.Child.ForeignKey)
	shipping, ok := orders.Association("shipping")
	require.True(t, ok)
	assert.Equal(t, descriptor.ToOne, shipping.Kind)

	customer, ok := orders.Property("customer")
	require.True(t, ok)
	assert.True(t, customer.Required)
	assert.Equal(t, 80, customer.MaxLength)
	require.Len(t, customer.Validations, 2)
	assert.Equal(t, "minLength", customer.Validations[1].Name)
	assert.Equal(t, []any{2}, customer.Validations[1].Args)
	assert.Equal(t, "customer is too short", customer.Validations[1].Message)

	status, ok := orders.Property("status")
	require.True(t, ok)
	assert.Equal(t, field.TypeEnum, status.Type)
	assert.Equal(t, []string{"ACTIVE", "INACTIVE"}, status.Enum)
	assert.Equal(t, "ACTIVE", status.Default)

	users := entities[1].Table()
	assert.Equal(t, "app_users", users.Table)
	assert.Equal(t, map[string]any{"deletedAt": nil}, users.Scope)
	_, ok = users.Property("deletedAt")
	assert.True(t, ok)
	confirm, ok := users.Property("confirm")
	require.True(t, ok)
	require.Len(t, confirm.Validations, 1)
	assert.Equal(t, []any{field.Sibling("password")}, confirm.Validations[0].Args)
	assert.True(t, confirm.Hidden())

	got, ok := m.Entity("users")
	require.True(t, ok)
	assert.Same(t, entities[1], got)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "entities:\n  - name: a\n    colour: red\n"},
		{"missing name", "entities:\n  - fields: []\n"},
		{"missing field name", "entities:\n  - name: a\n    fields:\n      - {type: string}\n"},
		{"unknown mixin", "entities:\n  - name: a\n    mixins: [magic]\n"},
		{"nested missing name", "entities:\n  - name: a\n    hasMany:\n      - fields: []\n"},
		{"not yaml", "entities: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load.Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	f, err := load.Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, f.Entities)
}

func TestDefineInvalidType(t *testing.T) {
	f, err := load.Parse([]byte("entities:\n  - name: a\n    fields:\n      - {name: id, type: uuid, primaryKey: true}\n"))
	require.NoError(t, err)
	m := newMapper(t)
	_, err = f.Define(m)
	assert.ErrorContains(t, err, "invalid type")
	assert.Empty(t, m.Entities())
}

func TestDefineConfigurationError(t *testing.T) {
	f, err := load.Parse([]byte("entities:\n  - name: a\n    fields:\n      - {name: label, type: string}\n"))
	require.NoError(t, err)
	m := newMapper(t)
	_, err = f.Define(m)
	assert.True(t, graphsync.IsConfigurationError(err))
	assert.Empty(t, m.Entities())
}

func TestReadFileMissing(t *testing.T) {
	_, err := load.ReadFile("testdata/missing.yaml")
	assert.Error(t, err)
}
