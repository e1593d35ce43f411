// Package field provides fluent builders for declaring entity properties.
//
// A property has a semantic type, an optional physical column and a list of
// named validation rules:
//
//	field.Integer("id").Identity()
//	field.String("name").Column("NAME").MaxLength(40).Required()
//	field.Number("price").Decimals(2).Validate("min", 0)
//	field.Date("birthday")
//	field.DateTime("seenAt").Naive()
//	field.Enum("status", "ACTIVE", "INACTIVE").MaxLength(1)
//
// # Enums
//
// Enum values are stored truncated to MaxLength and restored on read by
// finding the first declared value whose own truncation matches the stored
// code. Values without a match read back as nil.
//
// # Foreign keys
//
// A child property declared with References(parentTable) is adopted as the
// foreign key of the association that links the child to that parent, as
// long as exactly one such property exists.
//
// # Validation
//
// Rules name a validator registered on the mapper. Sibling arguments are
// resolved against the record being validated:
//
//	field.String("password").Validate("minLength", 8)
//	field.String("confirm").
//	    Validate("equalsField", field.Sibling("password")).
//	    Message("passwords do not match")
//
// A Format other than FormatHidden implies the validator of the same name,
// when one is registered.
package field
