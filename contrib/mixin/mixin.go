// Package mixin provides reusable property sets for graphsync entities.
//
// These mixins are OPTIONAL and provided as convenient starting points.
// Users are encouraged to create their own mixins tailored to their needs.
//
// Available mixins:
//   - Time: adds createdAt and updatedAt and enables optimistic concurrency
//   - ID: adds a UUID primary key generated on insert
//   - SoftDelete: adds deletedAt and scopes fetches to live records
//   - TenantID: adds a required tenantId property
//   - Audit: adds createdBy and updatedBy
//
// Usage:
//
//	fields, opts := mixin.Apply([]graphsync.Field{
//		field.String("name").Required(),
//	}, mixin.ID{}, mixin.Time{})
//	users, err := m.Define("users", fields, opts...)
//
// Custom mixins implement Mixin, and optionally Optioner:
//
//	type Revision struct{}
//
//	func (Revision) Fields() []graphsync.Field {
//		return []graphsync.Field{field.Integer("revision").Default(1)}
//	}
package mixin

import (
	"github.com/google/uuid"

	"github.com/syssam/graphsync"
	"github.com/syssam/graphsync/schema/field"
)

// Mixin contributes properties to an entity.
type Mixin interface {
	Fields() []graphsync.Field
}

// Optioner is implemented by mixins that also configure the declaration.
type Optioner interface {
	Options() []graphsync.DefineOption
}

// Apply returns fields followed by the properties of every mixin, and the
// declaration options the mixins carry.
func Apply(fields []graphsync.Field, mixins ...Mixin) ([]graphsync.Field, []graphsync.DefineOption) {
	out := append([]graphsync.Field(nil), fields...)
	var opts []graphsync.DefineOption
	for _, m := range mixins {
		out = append(out, m.Fields()...)
		if o, ok := m.(Optioner); ok {
			opts = append(opts, o.Options()...)
		}
	}
	return out, opts
}

// Time adds the createdAt and updatedAt properties. Updates and deletes
// of the entity then check updatedAt against the last fetched value.
type Time struct{}

// Fields of the time mixin.
func (Time) Fields() []graphsync.Field {
	return []graphsync.Field{
		field.DateTime("createdAt").Title("Created At"),
		field.DateTime("updatedAt").Title("Updated At"),
	}
}

// Options of the time mixin.
func (Time) Options() []graphsync.DefineOption {
	return []graphsync.DefineOption{graphsync.Timestamps()}
}

// ID adds a UUID primary key generated with github.com/google/uuid.
//
// For custom ID types, create your own mixin:
//
//	type SerialID struct{}
//
//	func (SerialID) Fields() []graphsync.Field {
//		return []graphsync.Field{field.Integer("id").Identity()}
//	}
type ID struct{}

// Fields of the ID mixin.
func (ID) Fields() []graphsync.Field {
	return []graphsync.Field{
		field.String("id").
			PrimaryKey().
			MaxLength(36).
			Default(func() any { return uuid.NewString() }),
	}
}

// SoftDelete adds a deletedAt property and scopes every fetch to records
// where it is unset. Marking a record deleted is an update of deletedAt.
type SoftDelete struct{}

// Fields of the SoftDelete mixin.
func (SoftDelete) Fields() []graphsync.Field {
	return []graphsync.Field{
		field.DateTime("deletedAt"),
	}
}

// Options of the SoftDelete mixin.
func (SoftDelete) Options() []graphsync.DefineOption {
	return []graphsync.DefineOption{graphsync.Scope(map[string]any{"deletedAt": nil})}
}

// TenantID adds a required tenantId property.
type TenantID struct{}

// Fields of the TenantID mixin.
func (TenantID) Fields() []graphsync.Field {
	return []graphsync.Field{
		field.String("tenantId").Required(),
	}
}

// Audit adds the createdBy and updatedBy properties.
type Audit struct{}

// Fields of the Audit mixin.
func (Audit) Fields() []graphsync.Field {
	return []graphsync.Field{
		field.String("createdBy"),
		field.String("updatedBy"),
	}
}

var (
	_ Optioner = Time{}
	_ Optioner = SoftDelete{}
	_ Mixin    = ID{}
	_ Mixin    = TenantID{}
	_ Mixin    = Audit{}
)
