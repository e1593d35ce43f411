package descriptor_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/graphsync/descriptor"
	"github.com/syssam/graphsync/dialect"
	"github.com/syssam/graphsync/dialect/mssql"
	"github.com/syssam/graphsync/dialect/postgres"
	"github.com/syssam/graphsync/schema/field"
)

func ordersArena(t *testing.T) (*descriptor.Arena, descriptor.ID) {
	t.Helper()
	a := descriptor.NewArena()
	orders := a.Add(descriptor.Declaration{
		Name: "orders",
		Fields: []*field.Descriptor{
			field.Integer("id").Column("ID").Identity().Descriptor(),
			field.String("name").Descriptor(),
		},
	})
	items := a.Add(descriptor.Declaration{
		Name: "items",
		Fields: []*field.Descriptor{
			field.Integer("id").Identity().Descriptor(),
			field.Integer("orderId").References("orders").Descriptor(),
			field.String("sku").Descriptor(),
		},
	})
	require.NoError(t, a.Associate(orders, "items", descriptor.ToMany, items))
	return a, orders
}

func TestCompileProjection(t *testing.T) {
	a, orders := ordersArena(t)
	g, err := descriptor.Compile(a, orders, postgres.Builder{})
	require.NoError(t, err)
	require.Empty(t, g.Warnings)

	root := g.Root
	assert.Equal(t, []string{"id"}, root.PrimaryKeyAttributes)
	assert.Equal(t, []string{"ID"}, root.PrimaryKeyFields)
	assert.Equal(t,
		`SELECT t0."ID" AS "id", t0."name" AS "name", `+
			`(SELECT coalesce(json_agg(row_to_json(_n)), '[]'::json) FROM (`+
			`SELECT t1."id" AS "id", t1."orderId" AS "orderId", t1."sku" AS "sku" FROM "items" AS t1 WHERE t1."orderId" = t0."ID" ORDER BY t1."id"`+
			`) AS _n) AS "items" FROM "orders" AS t0`,
		root.Select)
	assert.Equal(t, `SELECT t0."ID" AS "id", t0."name" AS "name" FROM "orders" AS t0`, root.FlatSelect)

	items, ok := root.Association("items")
	require.True(t, ok)
	assert.Equal(t, "orderId", items.Child.ForeignKey)
	assert.Equal(t, "id", items.Child.ParentKey)
	assert.Len(t, g.Tables(), 2)

	// Compiling again yields the same artifacts.
	g2, err := descriptor.Compile(a, orders, postgres.Builder{})
	require.NoError(t, err)
	assert.Equal(t, root.Select, g2.Root.Select)
	assert.Equal(t, root.Insert, g2.Root.Insert)
}

func TestCompilePrimaryKey(t *testing.T) {
	a := descriptor.NewArena()
	id := a.Add(descriptor.Declaration{
		Name:       "users",
		Fields:     []*field.Descriptor{field.String("code").Column("CODE").Descriptor(), field.String("region").Descriptor()},
		PrimaryKey: []string{"CODE", "region"},
	})
	g, err := descriptor.Compile(a, id, postgres.Builder{})
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "region"}, g.Root.PrimaryKeyAttributes)
	assert.Equal(t, []string{"CODE", "region"}, g.Root.PrimaryKeyFields)

	require.NoError(t, a.Update(id, func(d *descriptor.Declaration) { d.PrimaryKey = []string{"missing"} }))
	_, err = descriptor.Compile(a, id, postgres.Builder{})
	var derr *descriptor.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "users", derr.Entity)

	none := a.Add(descriptor.Declaration{Name: "logs", Fields: []*field.Descriptor{field.String("line").Descriptor()}})
	_, err = descriptor.Compile(a, none, postgres.Builder{})
	assert.EqualError(t, err, `descriptor: entity "logs": no primary key`)
}

func TestCompileForeignKey(t *testing.T) {
	a, orders := ordersArena(t)
	ambiguous := a.Add(descriptor.Declaration{
		Name: "notes",
		Fields: []*field.Descriptor{
			field.Integer("id").Identity().Descriptor(),
			field.Integer("orderId").References("orders").Descriptor(),
			field.Integer("otherOrderId").References("orders").Descriptor(),
		},
	})
	require.NoError(t, a.Associate(orders, "notes", descriptor.ToMany, ambiguous))

	g, err := descriptor.Compile(a, orders, postgres.Builder{})
	require.NoError(t, err)
	require.Len(t, g.Warnings, 1)
	assert.Equal(t, []string{"notes"}, g.Root.Unlinked)
	_, ok := g.Root.Association("notes")
	assert.False(t, ok)
	assert.NotContains(t, g.Root.Select, `"notes"`)
	assert.NotContains(t, g.Root.JSONSchema()["properties"], "notes")

	// An explicit foreign key links the association on the next compile.
	require.NoError(t, a.Update(ambiguous, func(d *descriptor.Declaration) { d.ForeignKey = "otherOrderId" }))
	g, err = descriptor.Compile(a, orders, postgres.Builder{})
	require.NoError(t, err)
	assert.Empty(t, g.Warnings)
	notes, ok := g.Root.Association("notes")
	require.True(t, ok)
	assert.Equal(t, "otherOrderId", notes.Child.ForeignKey)

	require.NoError(t, a.Update(ambiguous, func(d *descriptor.Declaration) { d.ForeignKey = "nope" }))
	_, err = descriptor.Compile(a, orders, postgres.Builder{})
	assert.Error(t, err)
}

func TestCompileCompositeParent(t *testing.T) {
	a := descriptor.NewArena()
	users := a.Add(descriptor.Declaration{
		Name:       "users",
		Fields:     []*field.Descriptor{field.String("code").Descriptor(), field.String("region").Descriptor()},
		PrimaryKey: []string{"code", "region"},
	})
	logins := a.Add(descriptor.Declaration{
		Name: "logins",
		Fields: []*field.Descriptor{
			field.Integer("id").Identity().Descriptor(),
			field.String("userCode").References("users").Descriptor(),
		},
	})
	require.NoError(t, a.Associate(users, "logins", descriptor.ToMany, logins))

	_, err := descriptor.Compile(a, users, postgres.Builder{})
	var derr *descriptor.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "users", derr.Entity)
	assert.Contains(t, derr.Msg, "single-column primary key")
}

func TestCompileIdempotent(t *testing.T) {
	a, orders := ordersArena(t)
	for _, b := range []dialect.Builder{postgres.Builder{}, mssql.Builder{}} {
		g1, err := descriptor.Compile(a, orders, b)
		require.NoError(t, err)
		g2, err := descriptor.Compile(a, orders, b)
		require.NoError(t, err)
		items1, _ := g1.Root.Association("items")
		items2, _ := g2.Root.Association("items")
		for _, pair := range [][2]*descriptor.Table{{g1.Root, g2.Root}, {items1.Child, items2.Child}} {
			assert.Equal(t, pair[0].Insert, pair[1].Insert, b.Dialect())
			assert.Equal(t, pair[0].Update, pair[1].Update, b.Dialect())
			assert.Equal(t, pair[0].Delete, pair[1].Delete, b.Dialect())
			assert.Equal(t, pair[0].Select, pair[1].Select, b.Dialect())
		}
	}
}

func TestCompileCycle(t *testing.T) {
	a := descriptor.NewArena()
	node := a.Add(descriptor.Declaration{
		Name: "nodes",
		Fields: []*field.Descriptor{
			field.Integer("id").Identity().Descriptor(),
			field.Integer("parentId").References("nodes").Descriptor(),
		},
	})
	require.NoError(t, a.Associate(node, "children", descriptor.ToMany, node))
	_, err := descriptor.Compile(a, node, postgres.Builder{})
	var derr *descriptor.Error
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Msg, "cycle")

	// The same table reached through distinct declarations is fine.
	b := descriptor.NewArena()
	root := b.Add(descriptor.Declaration{Name: "nodes", Fields: []*field.Descriptor{field.Integer("id").Identity().Descriptor()}})
	child := b.Add(descriptor.Declaration{
		Name: "nodes",
		Fields: []*field.Descriptor{
			field.Integer("id").Identity().Descriptor(),
			field.Integer("parentId").References("nodes").Descriptor(),
		},
	})
	require.NoError(t, b.Associate(root, "children", descriptor.ToMany, child))
	g, err := descriptor.Compile(b, root, postgres.Builder{})
	require.NoError(t, err)
	assert.Contains(t, g.Root.Select, `WHERE t1."parentId" = t0."id"`)
}

func TestTimestamps(t *testing.T) {
	a := descriptor.NewArena()
	id := a.Add(descriptor.Declaration{
		Name:       "posts",
		Fields:     []*field.Descriptor{field.Integer("id").Identity().Descriptor()},
		Timestamps: true,
	})
	g, err := descriptor.Compile(a, id, postgres.Builder{})
	require.NoError(t, err)
	_, ok := g.Root.Property(descriptor.CreatedAt)
	assert.True(t, ok)
	fd, ok := g.Root.Property(descriptor.UpdatedAt)
	require.True(t, ok)
	assert.Equal(t, field.TypeDateTime, fd.Type)
}

func TestStatements(t *testing.T) {
	a, orders := ordersArena(t)
	g, err := descriptor.Compile(a, orders, postgres.Builder{})
	require.NoError(t, err)
	root := g.Root

	values, err := root.Own(map[string]any{"name": "A", "items": []any{}})
	require.NoError(t, err)
	query, args := root.InsertStatement(values)
	assert.Equal(t, `INSERT INTO "orders" ("name") VALUES ($1) RETURNING *`, query)
	assert.Equal(t, []any{"A"}, args)

	query, args = root.InsertStatement(nil)
	assert.Equal(t, `INSERT INTO "orders" DEFAULT VALUES RETURNING *`, query)
	assert.Empty(t, args)

	query, args = root.UpdateStatement(
		[]descriptor.Pair{{Property: "name", Value: "B"}},
		[]descriptor.Pair{{Property: "id", Value: 1}, {Property: "name", Value: nil}},
	)
	assert.Equal(t, `UPDATE "orders" SET "name" = $1 WHERE "ID" = $2 AND "name" IS NULL RETURNING *`, query)
	assert.Equal(t, []any{"B", int64(1)}, args)

	query, _ = root.UpdateStatement(nil, root.Key(map[string]any{"id": 1}))
	assert.Equal(t, `UPDATE "orders" SET "name" = "name" WHERE "ID" = $1 RETURNING *`, query)

	query, args = root.DeleteStatement(root.Key(map[string]any{"id": 9}))
	assert.Equal(t, `DELETE FROM "orders" WHERE "ID" = $1 RETURNING *`, query)
	assert.Equal(t, []any{int64(9)}, args)
}

func TestKeys(t *testing.T) {
	a, orders := ordersArena(t)
	g, err := descriptor.Compile(a, orders, postgres.Builder{})
	require.NoError(t, err)
	root := g.Root
	assert.True(t, root.HasKey(map[string]any{"id": 1}))
	assert.False(t, root.HasKey(map[string]any{"id": nil}))
	assert.False(t, root.HasKey(map[string]any{}))
	assert.True(t, root.SameKey(map[string]any{"id": 1}, map[string]any{"id": "1"}))
	assert.True(t, root.SameKey(map[string]any{"id": float64(2)}, map[string]any{"id": int64(2)}))
	assert.False(t, root.SameKey(map[string]any{"id": 1}, map[string]any{"id": 2}))
	assert.False(t, root.SameKey(map[string]any{}, map[string]any{}))
}

func TestReadRow(t *testing.T) {
	a, orders := ordersArena(t)
	g, err := descriptor.Compile(a, orders, postgres.Builder{})
	require.NoError(t, err)

	rec, err := g.Root.ReadRow(dialect.Row{
		"id":    int64(1),
		"name":  "A",
		"items": `[{"id": 3, "orderId": 1, "sku": "S"}]`,
	}, postgres.Builder{}.DecodeNested)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec["id"])
	items, ok := rec["items"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, int64(3), items[0]["id"])
	assert.Equal(t, "S", items[0]["sku"])

	rec, err = g.Root.ReadColumns(dialect.Row{"ID": int64(5), "name": []byte("Z")})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": int64(5), "name": "Z"}, rec)
}

func TestEnumRoundTrip(t *testing.T) {
	fd := field.Enum("status", "ACTIVE", "INACTIVE").MaxLength(1).Descriptor()
	v, err := descriptor.WriteValue(fd, "ACTIVE")
	require.NoError(t, err)
	assert.Equal(t, "A", v)
	v, err = descriptor.WriteValue(fd, "INACTIVE")
	require.NoError(t, err)
	assert.Equal(t, "I", v)

	v, err = descriptor.ReadValue(fd, "A")
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", v)
	v, err = descriptor.ReadValue(fd, "I ")
	require.NoError(t, err)
	assert.Equal(t, "INACTIVE", v)
	v, err = descriptor.ReadValue(fd, "X")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = descriptor.WriteValue(fd, 3)
	assert.Error(t, err)
}

func TestCoercion(t *testing.T) {
	date := field.Date("day").Descriptor()
	v, err := descriptor.ReadValue(date, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", v)
	v, err = descriptor.ReadValue(date, "2024-02-29T00:00:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", v)

	aware := field.DateTime("at").Descriptor()
	v, err = descriptor.ReadValue(aware, "2024-01-02T03:04:05.123456+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 1, 4, 5, 123456000, time.UTC), v)

	naive := field.DateTime("seen").Naive().Descriptor()
	v, err = descriptor.ReadValue(naive, "2024-01-02T03:04:05.1234567")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 123456700, time.UTC), v)
	v, err = descriptor.WriteValue(naive, time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600)))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), v)

	integer := field.Integer("n").Descriptor()
	v, err = descriptor.ReadValue(integer, json.Number("42"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
	v, err = descriptor.ReadValue(integer, "7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
	_, err = descriptor.ReadValue(integer, "seven")
	assert.Error(t, err)

	number := field.Number("price").Decimals(2).Descriptor()
	v, err = descriptor.ReadValue(number, []byte("12.50"))
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	boolean := field.Bool("ok").Descriptor()
	v, err = descriptor.ReadValue(boolean, "1")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = descriptor.ReadValue(field.String("s").Descriptor(), nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestJSONSchema(t *testing.T) {
	a := descriptor.NewArena()
	users := a.Add(descriptor.Declaration{
		Name: "users",
		Fields: []*field.Descriptor{
			field.Integer("id").Identity().Descriptor(),
			field.String("name").MaxLength(20).Required().Descriptor(),
			field.String("secret").Hidden().Descriptor(),
			field.Enum("status", "ACTIVE", "INACTIVE").MaxLength(1).Default("ACTIVE").Descriptor(),
		},
	})
	comments := a.Add(descriptor.Declaration{
		Name: "comments",
		Fields: []*field.Descriptor{
			field.Integer("id").Identity().Descriptor(),
			field.Integer("userId").References("users").Descriptor(),
		},
	})
	require.NoError(t, a.Associate(users, "comments", descriptor.ToMany, comments))
	g, err := descriptor.Compile(a, users, postgres.Builder{})
	require.NoError(t, err)

	s := g.Root.JSONSchema()
	assert.Equal(t, "Users", s["title"])
	assert.Equal(t, "object", s["type"])
	assert.Equal(t, []string{"name"}, s["required"])
	assert.Equal(t, []string{"id"}, s["primaryKey"])
	props := s["properties"].(map[string]any)
	assert.NotContains(t, props, "secret")
	assert.Equal(t, map[string]any{"type": "string", "maxLength": 20, "title": "Name"}, props["name"])
	status := props["status"].(map[string]any)
	assert.Equal(t, []string{"ACTIVE", "INACTIVE"}, status["enum"])
	assert.Equal(t, "ACTIVE", status["default"])
	assert.Equal(t, true, props["id"].(map[string]any)["readOnly"])

	list := props["comments"].(map[string]any)
	assert.Equal(t, "array", list["type"])
	items := list["items"].(map[string]any)
	assert.Equal(t, "Comment", items["title"])
	assert.Contains(t, items["properties"], "userId")
}
