package descriptor

import (
	"fmt"
	"strings"

	"github.com/syssam/graphsync/dialect"
	"github.com/syssam/graphsync/dialect/sql"
	"github.com/syssam/graphsync/schema/field"
)

// Table is the compiled descriptor of one entity, either the root of a
// graph or a child reached through an association. It is read-only.
type Table struct {
	ID    ID
	Name  string // record key of the entity; the association name for children.
	Table string
	Alias string

	// Properties in declaration order, timestamps last.
	Properties           []*field.Descriptor
	PrimaryKeyAttributes []string
	PrimaryKeyFields     []string

	// ForeignKey is the property of this table holding ParentKey of the
	// parent row. Both are empty for the root table.
	ForeignKey string
	ParentKey  string

	Timestamps   bool
	Scope        map[string]any
	Associations []*Association
	// Unlinked lists declared associations excluded for lack of a foreign key.
	Unlinked []string

	Insert sql.Template
	Update sql.Template
	Delete sql.Template
	// Select projects the table and every linked association as nested
	// columns. It is only set on the root of a graph.
	Select string
	// FlatSelect projects the own columns of the table only.
	FlatSelect string

	props        map[string]*field.Descriptor
	columns      map[string]*field.Descriptor
	parentColumn string
	builder      dialect.Builder
}

// Association is a linked child of a table.
type Association struct {
	Name  string
	Kind  Kind
	Child *Table
}

// Pair is a property and the value it is compared with or set to.
type Pair struct {
	Property string
	Value    any
}

// Property returns the declared property with the given name.
func (t *Table) Property(name string) (*field.Descriptor, bool) {
	fd, ok := t.props[name]
	return fd, ok
}

// Association returns the linked association with the given name.
func (t *Table) Association(name string) (*Association, bool) {
	for _, a := range t.Associations {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Builder returns the dialect builder the table was compiled with.
func (t *Table) Builder() dialect.Builder {
	return t.builder
}

// IsPrimaryKey reports if name is a primary key attribute.
func (t *Table) IsPrimaryKey(name string) bool {
	for _, k := range t.PrimaryKeyAttributes {
		if k == name {
			return true
		}
	}
	return false
}

// Own returns the own properties of rec that are set, in declaration order,
// after applying write coercions. Omitted properties take their default
// value. Unset generated properties are left out.
func (t *Table) Own(rec map[string]any) ([]Pair, error) {
	var out []Pair
	for _, fd := range t.Properties {
		v, ok := rec[fd.Name]
		if !ok {
			if v, ok = fd.DefaultValue(); !ok {
				continue
			}
		}
		if v == nil && fd.Generated {
			continue
		}
		w, err := WriteValue(fd, v)
		if err != nil {
			return nil, err
		}
		out = append(out, Pair{Property: fd.Name, Value: w})
	}
	return out, nil
}

// InsertStatement expands the insert template for the given values.
func (t *Table) InsertStatement(values []Pair) (string, []any) {
	if len(values) == 0 {
		return t.Insert.Expand(sql.Parts{Values: "DEFAULT VALUES"}), nil
	}
	cols := make([]string, len(values))
	marks := make([]string, len(values))
	args := make([]any, len(values))
	for i, p := range values {
		cols[i] = t.builder.Wrap(t.props[p.Property].Column)
		marks[i] = t.builder.Placeholder(i + 1)
		args[i] = p.Value
	}
	return t.Insert.Expand(sql.Parts{
		Fields: " (" + strings.Join(cols, ", ") + ")",
		Values: "VALUES (" + strings.Join(marks, ", ") + ")",
	}), args
}

// UpdateStatement expands the update template, setting values on the rows
// matching keys. With no values, a column is set to itself so the
// statement still reports the matched row.
func (t *Table) UpdateStatement(values, keys []Pair) (string, []any) {
	var (
		set  []string
		args []any
	)
	for _, p := range values {
		args = append(args, p.Value)
		set = append(set, t.builder.Wrap(t.props[p.Property].Column)+" = "+t.builder.Placeholder(len(args)))
	}
	if len(set) == 0 {
		col := t.builder.Wrap(t.noopColumn())
		set = append(set, col+" = "+col)
	}
	where, wargs := t.KeyPredicate(keys, len(args)+1)
	args = append(args, wargs...)
	return t.Update.Expand(sql.Parts{Set: strings.Join(set, ", "), Where: where}), args
}

// noopColumn returns the column assigned to itself by an empty update.
// Store-generated columns are avoided since engines may refuse to write them.
func (t *Table) noopColumn() string {
	for _, fd := range t.Properties {
		if !fd.Generated {
			return fd.Column
		}
	}
	return t.PrimaryKeyFields[0]
}

// DeleteStatement expands the delete template for the rows matching keys.
func (t *Table) DeleteStatement(keys []Pair) (string, []any) {
	where, args := t.KeyPredicate(keys, 1)
	return t.Delete.Expand(sql.Parts{Where: where}), args
}

// KeyPredicate returns the conjunction of column equalities for keys, with
// parameters numbered from start. Nil values compile to IS NULL and add no
// parameter.
func (t *Table) KeyPredicate(keys []Pair, start int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	for _, p := range keys {
		col := t.builder.Wrap(t.props[p.Property].Column)
		if p.Value == nil {
			conds = append(conds, col+" IS NULL")
			continue
		}
		fd := t.props[p.Property]
		v, err := WriteValue(fd, p.Value)
		if err != nil {
			v = p.Value
		}
		args = append(args, v)
		conds = append(conds, col+" = "+t.builder.Placeholder(start+len(args)-1))
	}
	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), args
}

// Key returns the primary key pairs of rec.
func (t *Table) Key(rec map[string]any) []Pair {
	keys := make([]Pair, len(t.PrimaryKeyAttributes))
	for i, k := range t.PrimaryKeyAttributes {
		keys[i] = Pair{Property: k, Value: rec[k]}
	}
	return keys
}

// HasKey reports if every primary key attribute of rec is set.
func (t *Table) HasKey(rec map[string]any) bool {
	for _, k := range t.PrimaryKeyAttributes {
		if v, ok := rec[k]; !ok || v == nil {
			return false
		}
	}
	return true
}

// SameKey reports if a and b carry equal primary keys. Values are compared
// by their string form so that 1, int64(1) and "1" match.
func (t *Table) SameKey(a, b map[string]any) bool {
	if !t.HasKey(a) || !t.HasKey(b) {
		return false
	}
	for _, k := range t.PrimaryKeyAttributes {
		if keyString(a[k]) != keyString(b[k]) {
			return false
		}
	}
	return true
}

// SameValue reports if a and b are equal key values, compared the way
// SameKey compares them.
func SameValue(a, b any) bool {
	return keyString(a) == keyString(b)
}

func keyString(v any) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprint(int64(f))
	}
	return fmt.Sprint(v)
}

// ReadColumns converts a row keyed by column names, as returned by a
// mutation, into a record keyed by property names.
func (t *Table) ReadColumns(row dialect.Row) (map[string]any, error) {
	rec := make(map[string]any, len(t.Properties))
	for _, fd := range t.Properties {
		v, ok := row[fd.Column]
		if !ok {
			continue
		}
		r, err := ReadValue(fd, v)
		if err != nil {
			return nil, fmt.Errorf("descriptor: %s.%s: %w", t.Name, fd.Name, err)
		}
		rec[fd.Name] = r
	}
	return rec, nil
}

// Decoder turns a nested association column into its rows.
type Decoder func(v any) ([]dialect.Row, error)

// ReadRow converts a row of the Select projection into a record, decoding
// nested association columns with decode.
func (t *Table) ReadRow(row dialect.Row, decode Decoder) (map[string]any, error) {
	rec := make(map[string]any, len(t.Properties)+len(t.Associations))
	for _, fd := range t.Properties {
		r, err := ReadValue(fd, row[fd.Name])
		if err != nil {
			return nil, fmt.Errorf("descriptor: %s.%s: %w", t.Name, fd.Name, err)
		}
		rec[fd.Name] = r
	}
	for _, a := range t.Associations {
		rows, err := decode(row[a.Name])
		if err != nil {
			return nil, fmt.Errorf("descriptor: %s.%s: %w", t.Name, a.Name, err)
		}
		children := make([]map[string]any, 0, len(rows))
		for _, r := range rows {
			c, err := a.Child.ReadRow(r, decode)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		switch {
		case a.Kind == ToMany:
			rec[a.Name] = children
		case len(children) > 0:
			rec[a.Name] = children[0]
		default:
			rec[a.Name] = nil
		}
	}
	return rec, nil
}
