// Package load reads entity declarations from YAML files and defines them
// on a graphsync.Mapper.
//
//	entities:
//	  - name: orders
//	    timestamps: true
//	    fields:
//	      - {name: id, type: integer, primaryKey: true, generated: true}
//	      - {name: customer, type: string, required: true}
//	    hasMany:
//	      - name: items
//	        fields:
//	          - {name: id, type: integer, primaryKey: true, generated: true}
//	          - {name: orderId, type: integer, references: orders}
//	          - {name: sku, type: string}
package load

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/syssam/graphsync"
	"github.com/syssam/graphsync/contrib/mixin"
	"github.com/syssam/graphsync/schema/field"
)

// File is a declaration file.
type File struct {
	Entities []*Entity `yaml:"entities"`
}

// Entity is the declaration of an entity and its child entities.
type Entity struct {
	Name       string         `yaml:"name"`
	Table      string         `yaml:"table,omitempty"`
	Alias      string         `yaml:"alias,omitempty"`
	PrimaryKey []string       `yaml:"primaryKey,omitempty"`
	ForeignKey string         `yaml:"foreignKey,omitempty"`
	Timestamps bool           `yaml:"timestamps,omitempty"`
	Scope      map[string]any `yaml:"scope,omitempty"`
	Mixins     []string       `yaml:"mixins,omitempty"`
	Fields     []*Field       `yaml:"fields"`
	HasMany    []*Entity      `yaml:"hasMany,omitempty"`
	HasOne     []*Entity      `yaml:"hasOne,omitempty"`
}

// Field is the declaration of a property.
type Field struct {
	Name       string   `yaml:"name"`
	Column     string   `yaml:"column,omitempty"`
	Type       string   `yaml:"type"`
	MaxLength  int      `yaml:"maxLength,omitempty"`
	Decimals   int      `yaml:"decimals,omitempty"`
	Enum       []string `yaml:"enum,omitempty"`
	Default    any      `yaml:"default,omitempty"`
	Format     string   `yaml:"format,omitempty"`
	Title      string   `yaml:"title,omitempty"`
	Comment    string   `yaml:"comment,omitempty"`
	PrimaryKey bool     `yaml:"primaryKey,omitempty"`
	Generated  bool     `yaml:"generated,omitempty"`
	Required   bool     `yaml:"required,omitempty"`
	Naive      bool     `yaml:"naive,omitempty"`
	References string   `yaml:"references,omitempty"`
	Validate   []*Rule  `yaml:"validate,omitempty"`
}

// Rule is a property validation. An argument of the form {field: name}
// refers to a sibling property.
type Rule struct {
	Name    string `yaml:"name"`
	Args    []any  `yaml:"args,omitempty"`
	Message string `yaml:"message,omitempty"`
}

var mixins = map[string]mixin.Mixin{
	"time":       mixin.Time{},
	"id":         mixin.ID{},
	"softDelete": mixin.SoftDelete{},
	"tenantId":   mixin.TenantID{},
	"audit":      mixin.Audit{},
}

// Parse decodes a declaration file. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	f := &File{}
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("load: decode declarations: %w", err)
	}
	for i, e := range f.Entities {
		if err := e.check(fmt.Sprintf("entities[%d]", i)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ReadFile reads and parses the declaration file at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Load reads the declaration file at path and defines its entities on m.
func Load(m *graphsync.Mapper, path string) ([]*graphsync.Entity, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return f.Define(m)
}

func (e *Entity) check(at string) error {
	if e.Name == "" {
		return fmt.Errorf("load: %s: missing entity name", at)
	}
	for i, fd := range e.Fields {
		if fd.Name == "" {
			return fmt.Errorf("load: %s.fields[%d]: missing field name", e.Name, i)
		}
	}
	for _, name := range e.Mixins {
		if _, ok := mixins[name]; !ok {
			return fmt.Errorf("load: %s: unknown mixin %q", e.Name, name)
		}
	}
	for i, c := range e.HasMany {
		if err := c.check(fmt.Sprintf("%s.hasMany[%d]", e.Name, i)); err != nil {
			return err
		}
	}
	for i, c := range e.HasOne {
		if err := c.check(fmt.Sprintf("%s.hasOne[%d]", e.Name, i)); err != nil {
			return err
		}
	}
	return nil
}

// Define defines every root entity of f on m, in file order, and returns
// them.
func (f *File) Define(m *graphsync.Mapper) ([]*graphsync.Entity, error) {
	out := make([]*graphsync.Entity, 0, len(f.Entities))
	for _, e := range f.Entities {
		fields, opts, err := e.declaration()
		if err != nil {
			return nil, err
		}
		root, err := m.Define(e.Name, fields, opts...)
		if err != nil {
			return nil, err
		}
		if err := e.children(root); err != nil {
			return nil, err
		}
		out = append(out, root)
	}
	return out, nil
}

func (e *Entity) children(parent *graphsync.Entity) error {
	define := func(list []*Entity, fn func(string, []graphsync.Field, ...graphsync.DefineOption) (*graphsync.Entity, error)) error {
		for _, c := range list {
			fields, opts, err := c.declaration()
			if err != nil {
				return err
			}
			child, err := fn(c.Name, fields, opts...)
			if err != nil {
				return err
			}
			if err := c.children(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := define(e.HasMany, parent.HasMany); err != nil {
		return err
	}
	return define(e.HasOne, parent.HasOne)
}

func (e *Entity) declaration() ([]graphsync.Field, []graphsync.DefineOption, error) {
	fields := make([]graphsync.Field, 0, len(e.Fields))
	for _, fd := range e.Fields {
		b, err := fd.Builder()
		if err != nil {
			return nil, nil, fmt.Errorf("load: %s: %w", e.Name, err)
		}
		fields = append(fields, b)
	}
	list := make([]mixin.Mixin, len(e.Mixins))
	for i, name := range e.Mixins {
		list[i] = mixins[name]
	}
	fields, opts := mixin.Apply(fields, list...)
	if e.Table != "" {
		opts = append(opts, graphsync.Table(e.Table))
	}
	if e.Alias != "" {
		opts = append(opts, graphsync.Alias(e.Alias))
	}
	if len(e.PrimaryKey) > 0 {
		opts = append(opts, graphsync.PrimaryKey(e.PrimaryKey...))
	}
	if e.ForeignKey != "" {
		opts = append(opts, graphsync.ForeignKey(e.ForeignKey))
	}
	if e.Timestamps {
		opts = append(opts, graphsync.Timestamps())
	}
	if len(e.Scope) > 0 {
		opts = append(opts, graphsync.Scope(e.Scope))
	}
	return fields, opts, nil
}

// Builder returns the property builder of fd.
func (fd *Field) Builder() (*field.Builder, error) {
	b := field.New(fd.Name, field.ParseType(fd.Type))
	if fd.Column != "" {
		b.Column(fd.Column)
	}
	if len(fd.Enum) > 0 {
		b.Values(fd.Enum...)
	}
	if fd.MaxLength > 0 {
		b.MaxLength(fd.MaxLength)
	}
	if fd.Decimals > 0 {
		b.Decimals(fd.Decimals)
	}
	if fd.Naive {
		b.Naive()
	}
	if fd.Default != nil {
		b.Default(fd.Default)
	}
	if fd.Format != "" {
		b.Format(fd.Format)
	}
	if fd.Title != "" {
		b.Title(fd.Title)
	}
	if fd.Comment != "" {
		b.Comment(fd.Comment)
	}
	if fd.PrimaryKey {
		b.PrimaryKey()
	}
	if fd.Generated {
		b.Generated()
	}
	if fd.References != "" {
		b.References(fd.References)
	}
	if fd.Required {
		b.Required()
	}
	for _, r := range fd.Validate {
		args := make([]any, len(r.Args))
		for i, arg := range r.Args {
			args[i] = argument(arg)
		}
		b.Validate(r.Name, args...)
		if r.Message != "" {
			b.Message(r.Message)
		}
	}
	if err := b.Descriptor().Err; err != nil {
		return nil, err
	}
	return b, nil
}

// argument converts a {field: name} mapping into a sibling reference.
func argument(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	if name, ok := m["field"].(string); ok {
		return field.Sibling(name)
	}
	return v
}
