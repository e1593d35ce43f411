package graphsync_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/graphsync"
	"github.com/syssam/graphsync/criteria"
	"github.com/syssam/graphsync/schema/field"
)

func TestDefine(t *testing.T) {
	m, _ := newMapper(t)
	users, err := m.Define("users", []graphsync.Field{
		field.Integer("id").Identity(),
		field.String("name").Column("full_name"),
	}, graphsync.Table("app_users"), graphsync.Alias("member"))
	require.NoError(t, err)
	assert.Equal(t, "users", users.Name())
	assert.Nil(t, users.Parent())
	assert.Equal(t, "app_users", users.Table().Table)
	assert.Equal(t, []string{"id"}, users.Table().PrimaryKeyAttributes)

	got, ok := m.Entity("users")
	require.True(t, ok)
	assert.Same(t, users, got)
	_, ok = m.Entity("nope")
	assert.False(t, ok)
	assert.Len(t, m.Entities(), 1)
}

func TestDefineErrors(t *testing.T) {
	m, _ := newMapper(t)
	_, err := m.Define("nokey", []graphsync.Field{field.String("name")})
	require.Error(t, err)
	assert.True(t, graphsync.IsConfigurationError(err))
	assert.ErrorIs(t, err, graphsync.ErrConfiguration)
	assert.Empty(t, m.Entities())

	_, err = m.Define("badenum", []graphsync.Field{
		field.Integer("id").Identity(),
		field.Enum("status"),
	})
	assert.True(t, graphsync.IsConfigurationError(err))

	orders, err := m.Define("orders", []graphsync.Field{field.Integer("id").Identity()})
	require.NoError(t, err)
	_, err = orders.HasMany("lines", []graphsync.Field{field.String("sku")})
	assert.True(t, graphsync.IsConfigurationError(err))
	assert.Empty(t, orders.Table().Associations)
	assert.Empty(t, orders.Table().Unlinked)
}

func TestDeclarationCalls(t *testing.T) {
	m, _ := newMapper(t)
	orders, err := m.Define("orders", []graphsync.Field{field.Integer("id").Identity()})
	require.NoError(t, err)
	lines, err := orders.HasMany("lines", []graphsync.Field{
		field.Integer("id").Identity(),
		field.Integer("parent"),
	})
	require.NoError(t, err)
	assert.Same(t, orders, lines.Parent())
	assert.Empty(t, orders.Table().Associations)
	assert.Equal(t, []string{"lines"}, orders.Table().Unlinked)

	require.NoError(t, lines.ForeignKey("parent"))
	require.Len(t, orders.Table().Associations, 1)
	assert.Equal(t, "parent", orders.Table().Associations[0].Child.ForeignKey)

	require.NoError(t, orders.UseTimestamps())
	_, ok := orders.Table().Property("updatedAt")
	assert.True(t, ok)

	require.NoError(t, orders.SetProperties(field.String("note").MaxLength(20)))
	fd, ok := orders.Table().Property("note")
	require.True(t, ok)
	assert.Equal(t, 20, fd.MaxLength)

	require.NoError(t, orders.SetScope(criteria.Where{"note": nil}))
	assert.Equal(t, map[string]any{"note": nil}, orders.Table().Scope)

	err = lines.ForeignKey("missing")
	assert.True(t, graphsync.IsConfigurationError(err))
	// A failed declaration leaves the previous graph in place.
	require.Len(t, orders.Table().Associations, 1)
	assert.Equal(t, "parent", orders.Table().Associations[0].Child.ForeignKey)
}

func TestAssociationCycle(t *testing.T) {
	m, _ := newMapper(t)
	a, err := m.Define("a", []graphsync.Field{field.Integer("id").Identity()})
	require.NoError(t, err)
	b, err := a.HasMany("b", []graphsync.Field{
		field.Integer("id").Identity(),
		field.Integer("aId").References("a"),
	})
	require.NoError(t, err)
	err = b.HasManyOf("a", a)
	require.Error(t, err)
	assert.True(t, graphsync.IsConfigurationError(err))
	require.Len(t, a.Table().Associations, 1)
	assert.Empty(t, b.Table().Associations)
}

func TestUnlinkedWarning(t *testing.T) {
	var buf bytes.Buffer
	m, _ := newMapper(t, graphsync.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	orders, err := m.Define("orders", []graphsync.Field{field.Integer("id").Identity()})
	require.NoError(t, err)
	_, err = orders.HasMany("notes", []graphsync.Field{field.Integer("id").Identity()})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(buf.String(), "graphsync: unlinked association"))
	assert.Contains(t, buf.String(), "entity=orders")

	// Unchanged warnings are not logged again.
	require.NoError(t, orders.UseTimestamps())
	assert.Equal(t, 1, strings.Count(buf.String(), "graphsync: unlinked association"))
}

func TestSchema(t *testing.T) {
	f := newFixture(t)
	s := f.orders.Schema()
	assert.Equal(t, "Orders", s["title"])
	assert.Equal(t, "object", s["type"])
	assert.Equal(t, []string{"id"}, s["primaryKey"])
	assert.Equal(t, []string{"customer"}, s["required"])
	props := s["properties"].(map[string]any)
	assert.Equal(t, map[string]any{
		"type":    "string",
		"enum":    []string{"ACTIVE", "INACTIVE"},
		"title":   "Status",
		"default": "ACTIVE",
	}, props["status"])
	items := props["items"].(map[string]any)
	assert.Equal(t, "array", items["type"])
	assert.Equal(t, "Item", items["items"].(map[string]any)["title"])
	shipping := props["shipping"].(map[string]any)
	assert.Equal(t, "object", shipping["type"])
	assert.Equal(t, "Shipping", shipping["title"])
	created := props["createdAt"].(map[string]any)
	assert.Equal(t, "date-time", created["format"])
	assert.Equal(t, "Created At", created["title"])
}
