package field

import (
	"fmt"
	"slices"
)

// Format values with a meaning of their own.
const (
	// FormatHidden excludes the property from the published JSON schema.
	FormatHidden = "hidden"
	// FormatEmail implies the "email" validator.
	FormatEmail = "email"
)

// A Descriptor holds the compiled declaration of one property.
type Descriptor struct {
	Name        string // property name, as seen by records.
	Column      string // physical column; defaults to Name.
	Type        Type
	MaxLength   int      // string and enum columns; 0 means unbounded.
	Decimals    int      // number columns.
	Enum        []string // declared enum values, in order.
	Default     any      // literal default, or a func() any called per insert.
	Format      string
	Title       string
	Comment     string
	PrimaryKey  bool
	Generated   bool   // the store assigns the value (identity / serial).
	Required    bool   // implies the "required" validator.
	References  string // table the column points to, for foreign-key inference.
	Timezone    bool   // datetime columns: true for timezone-aware values.
	Validations []*Rule
	Err         error
}

// A Rule is a named property validation. Arguments of type Ref are resolved
// against the record under validation before the validator runs.
type Rule struct {
	Name    string
	Args    []any
	Message string
}

// Ref refers to a sibling property of the record being validated.
type Ref struct {
	Field string
}

// Sibling returns a rule argument that resolves to the value of the sibling
// property name.
func Sibling(name string) Ref {
	return Ref{Field: name}
}

// DefaultValue returns the default value of the property, calling it when
// it is a function.
func (d *Descriptor) DefaultValue() (any, bool) {
	switch v := d.Default.(type) {
	case nil:
		return nil, false
	case func() any:
		return v(), true
	default:
		return v, true
	}
}

// Hidden reports if the property is left out of the published schema.
func (d *Descriptor) Hidden() bool {
	return d.Format == FormatHidden
}

// HasEnum reports if v is one of the declared enum values.
func (d *Descriptor) HasEnum(v string) bool {
	return slices.Contains(d.Enum, v)
}

// Builder is the fluent builder for property declarations.
type Builder struct {
	desc *Descriptor
}

func newBuilder(name string, t Type) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Column: name, Type: t}}
}

// String returns a new string property.
func String(name string) *Builder { return newBuilder(name, TypeString) }

// Integer returns a new integer property.
func Integer(name string) *Builder { return newBuilder(name, TypeInteger) }

// Number returns a new decimal number property.
func Number(name string) *Builder { return newBuilder(name, TypeNumber) }

// Bool returns a new boolean property.
func Bool(name string) *Builder { return newBuilder(name, TypeBool) }

// Date returns a new date-only property, read back as "YYYY-MM-DD".
func Date(name string) *Builder { return newBuilder(name, TypeDate) }

// DateTime returns a new timezone-aware datetime property.
// Use Naive for columns that store wall-clock time without a zone.
func DateTime(name string) *Builder {
	b := newBuilder(name, TypeDateTime)
	b.desc.Timezone = true
	return b
}

// Enum returns a new enum property with the given values.
//
//	field.Enum("status", "ACTIVE", "INACTIVE").MaxLength(1)
func Enum(name string, values ...string) *Builder {
	b := newBuilder(name, TypeEnum)
	b.desc.Enum = values
	return b
}

// New returns a builder for a property of the given type.
func New(name string, t Type) *Builder {
	b := newBuilder(name, t)
	if !t.Valid() {
		b.desc.Err = fmt.Errorf("field: %q has invalid type", name)
	}
	if t == TypeDateTime {
		b.desc.Timezone = true
	}
	return b
}

// Column sets the physical column name of the property.
func (b *Builder) Column(name string) *Builder {
	b.desc.Column = name
	return b
}

// PrimaryKey marks the property as part of the primary key.
func (b *Builder) PrimaryKey() *Builder {
	b.desc.PrimaryKey = true
	return b
}

// Generated marks the property as assigned by the store.
func (b *Builder) Generated() *Builder {
	b.desc.Generated = true
	return b
}

// Identity is a shorthand for PrimaryKey().Generated().
func (b *Builder) Identity() *Builder {
	return b.PrimaryKey().Generated()
}

// References records that the column points at the given table.
// A child association uses it to infer its foreign key.
func (b *Builder) References(table string) *Builder {
	b.desc.References = table
	return b
}

// MaxLength sets the maximum stored length of a string or enum column.
// Enum values are stored truncated to this length.
func (b *Builder) MaxLength(n int) *Builder {
	if b.desc.Type != TypeString && b.desc.Type != TypeEnum {
		b.desc.Err = fmt.Errorf("field: MaxLength is not supported by %s property %q", b.desc.Type, b.desc.Name)
		return b
	}
	b.desc.MaxLength = n
	return b
}

// Decimals sets the number of decimal places of a number column.
func (b *Builder) Decimals(n int) *Builder {
	if b.desc.Type != TypeNumber {
		b.desc.Err = fmt.Errorf("field: Decimals is not supported by %s property %q", b.desc.Type, b.desc.Name)
		return b
	}
	b.desc.Decimals = n
	return b
}

// Naive marks a datetime column as timezone-naive.
func (b *Builder) Naive() *Builder {
	if b.desc.Type != TypeDateTime {
		b.desc.Err = fmt.Errorf("field: Naive is not supported by %s property %q", b.desc.Type, b.desc.Name)
		return b
	}
	b.desc.Timezone = false
	return b
}

// Values appends enum values.
func (b *Builder) Values(values ...string) *Builder {
	if b.desc.Type != TypeEnum {
		b.desc.Err = fmt.Errorf("field: Values is not supported by %s property %q", b.desc.Type, b.desc.Name)
		return b
	}
	b.desc.Enum = append(b.desc.Enum, values...)
	return b
}

// Default sets the default value used when a new record omits the property.
// A func() any is called for every insert.
func (b *Builder) Default(v any) *Builder {
	b.desc.Default = v
	return b
}

// Format sets the property format. FormatHidden hides the property from the
// published schema; any other format implies the validator of the same name.
func (b *Builder) Format(f string) *Builder {
	b.desc.Format = f
	return b
}

// Hidden is a shorthand for Format(FormatHidden).
func (b *Builder) Hidden() *Builder {
	return b.Format(FormatHidden)
}

// Title sets the schema title.
func (b *Builder) Title(s string) *Builder {
	b.desc.Title = s
	return b
}

// Comment sets the schema description.
func (b *Builder) Comment(s string) *Builder {
	b.desc.Comment = s
	return b
}

// Required adds the "required" validation.
func (b *Builder) Required() *Builder {
	b.desc.Required = true
	return b.Validate("required")
}

// Validate appends a named validation rule.
//
//	field.String("confirm").Validate("equalsField", field.Sibling("password"))
func (b *Builder) Validate(name string, args ...any) *Builder {
	b.desc.Validations = append(b.desc.Validations, &Rule{Name: name, Args: args})
	return b
}

// Message sets the failure message of the last added rule.
func (b *Builder) Message(msg string) *Builder {
	if n := len(b.desc.Validations); n > 0 {
		b.desc.Validations[n-1].Message = msg
	} else {
		b.desc.Err = fmt.Errorf("field: Message called on %q without a rule", b.desc.Name)
	}
	return b
}

// Descriptor implements the graphsync.Field interface by returning its descriptor.
func (b *Builder) Descriptor() *Descriptor {
	if b.desc.Err == nil && b.desc.Type == TypeEnum && len(b.desc.Enum) == 0 {
		b.desc.Err = fmt.Errorf("field: enum %q declares no values", b.desc.Name)
	}
	return b.desc
}
