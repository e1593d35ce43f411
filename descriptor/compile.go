package descriptor

import (
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/graphsync/dialect"
	"github.com/syssam/graphsync/dialect/sql"
	"github.com/syssam/graphsync/schema/field"
)

// Timestamp property names added by Declaration.Timestamps.
const (
	CreatedAt = "createdAt"
	UpdatedAt = "updatedAt"
)

// Graph is the compiled form of a declaration and every declaration
// reachable from it through linked associations.
type Graph struct {
	Root *Table
	// Warnings lists associations left out of the graph because no
	// foreign key could be resolved for them.
	Warnings []string
}

// Tables returns every table of the graph, parents before children.
func (g *Graph) Tables() []*Table {
	var out []*Table
	var walk func(*Table)
	walk = func(t *Table) {
		out = append(out, t)
		for _, a := range t.Associations {
			walk(a.Child)
		}
	}
	walk(g.Root)
	return out
}

// Compile builds the graph rooted at the given declaration. It does not
// modify the arena, and compiling the same declarations twice yields the
// same graph.
func Compile(a *Arena, root ID, b dialect.Builder) (*Graph, error) {
	c := &compiler{arena: a, builder: b}
	t, err := c.table(root, nil, nil)
	if err != nil {
		return nil, err
	}
	t.Select = c.projection(t, 0)
	return &Graph{Root: t, Warnings: c.warnings}, nil
}

type compiler struct {
	arena    *Arena
	builder  dialect.Builder
	stack    []ID
	warnings []string
}

func (c *compiler) table(id ID, parent *Table, link *Link) (*Table, error) {
	d, ok := c.arena.Get(id)
	if !ok {
		return nil, fmt.Errorf("descriptor: unknown declaration %d", id)
	}
	if slices.Contains(c.stack, id) {
		return nil, errorf(d.Name, "association cycle through %q", d.Name)
	}
	c.stack = append(c.stack, id)
	defer func() { c.stack = c.stack[:len(c.stack)-1] }()

	t := &Table{
		ID:         id,
		Name:       d.Name,
		Table:      d.Table,
		Alias:      d.Alias,
		Timestamps: d.Timestamps,
		Scope:      d.Scope,
		props:      make(map[string]*field.Descriptor),
		columns:    make(map[string]*field.Descriptor),
		builder:    c.builder,
	}
	if link != nil {
		t.Name = link.Name
	}
	if err := t.addProperties(d); err != nil {
		return nil, err
	}
	if err := t.resolvePrimaryKey(d); err != nil {
		return nil, err
	}
	if parent != nil {
		fk, err := t.resolveForeignKey(d, parent)
		if err != nil {
			return nil, err
		}
		if fk == nil {
			c.warnings = append(c.warnings,
				fmt.Sprintf("association %q of %q has no foreign key and is excluded", link.Name, parent.Name))
			return nil, nil
		}
		if len(parent.PrimaryKeyAttributes) != 1 {
			return nil, errorf(parent.Name, "association %q needs a single-column primary key, have %v", link.Name, parent.PrimaryKeyAttributes)
		}
		t.ForeignKey = fk.Name
		t.ParentKey = parent.PrimaryKeyAttributes[0]
		t.parentColumn = parent.PrimaryKeyFields[0]
	}
	for i := range d.Links {
		l := d.Links[i]
		child, err := c.table(l.Child, t, &l)
		if err != nil {
			return nil, err
		}
		if child == nil {
			t.Unlinked = append(t.Unlinked, l.Name)
			continue
		}
		t.Associations = append(t.Associations, &Association{Name: l.Name, Kind: l.Kind, Child: child})
	}
	table := c.builder.Wrap(t.Table)
	t.Insert = sql.Template(c.builder.InsertTemplate(table))
	t.Update = sql.Template(c.builder.UpdateTemplate(table))
	t.Delete = sql.Template(c.builder.DeleteTemplate(table))
	t.FlatSelect = c.flat(t)
	return t, nil
}

func (t *Table) addProperties(d *Declaration) error {
	add := func(fd *field.Descriptor) error {
		if fd.Err != nil {
			return errorf(d.Name, "%v", fd.Err)
		}
		if fd.Name == "" || !fd.Type.Valid() {
			return errorf(d.Name, "property %q has no valid type", fd.Name)
		}
		if _, ok := t.props[fd.Name]; ok {
			return errorf(d.Name, "duplicate property %q", fd.Name)
		}
		if fd.Column == "" {
			c := *fd
			c.Column = fd.Name
			fd = &c
		}
		if _, ok := t.columns[fd.Column]; ok {
			return errorf(d.Name, "duplicate column %q", fd.Column)
		}
		t.Properties = append(t.Properties, fd)
		t.props[fd.Name] = fd
		t.columns[fd.Column] = fd
		return nil
	}
	for _, fd := range d.Fields {
		if err := add(fd); err != nil {
			return err
		}
	}
	if d.Timestamps {
		for _, name := range []string{CreatedAt, UpdatedAt} {
			if _, ok := t.props[name]; ok {
				continue
			}
			if err := add(field.DateTime(name).Descriptor()); err != nil {
				return err
			}
		}
	}
	for _, l := range d.Links {
		if _, ok := t.props[l.Name]; ok {
			return errorf(d.Name, "association %q shadows a property", l.Name)
		}
	}
	return nil
}

func (t *Table) resolvePrimaryKey(d *Declaration) error {
	if len(d.PrimaryKey) > 0 {
		for _, name := range d.PrimaryKey {
			fd, ok := t.lookup(name)
			if !ok {
				return errorf(d.Name, "primary key %q is not a declared property", name)
			}
			t.PrimaryKeyAttributes = append(t.PrimaryKeyAttributes, fd.Name)
			t.PrimaryKeyFields = append(t.PrimaryKeyFields, fd.Column)
		}
		return nil
	}
	for _, fd := range t.Properties {
		if fd.PrimaryKey {
			t.PrimaryKeyAttributes = append(t.PrimaryKeyAttributes, fd.Name)
			t.PrimaryKeyFields = append(t.PrimaryKeyFields, fd.Column)
		}
	}
	if len(t.PrimaryKeyAttributes) == 0 {
		return errorf(d.Name, "no primary key")
	}
	return nil
}

// resolveForeignKey returns the child property holding the parent key, or
// nil when none can be inferred.
func (t *Table) resolveForeignKey(d *Declaration, parent *Table) (*field.Descriptor, error) {
	if d.ForeignKey != "" {
		fd, ok := t.lookup(d.ForeignKey)
		if !ok {
			return nil, errorf(d.Name, "foreign key %q is not a declared property", d.ForeignKey)
		}
		return fd, nil
	}
	var found []*field.Descriptor
	for _, fd := range t.Properties {
		if fd.References != "" && (fd.References == parent.Table || fd.References == parent.Name) {
			found = append(found, fd)
		}
	}
	if len(found) != 1 {
		return nil, nil
	}
	return found[0], nil
}

// lookup resolves a property by name, then by column.
func (t *Table) lookup(name string) (*field.Descriptor, bool) {
	if fd, ok := t.props[name]; ok {
		return fd, true
	}
	fd, ok := t.columns[name]
	return fd, ok
}

func (c *compiler) columnList(t *Table, depth int) []string {
	alias := fmt.Sprintf("t%d", depth)
	cols := make([]string, 0, len(t.Properties)+len(t.Associations))
	for _, fd := range t.Properties {
		cols = append(cols, alias+"."+c.builder.Wrap(fd.Column)+" AS "+c.builder.Wrap(fd.Name))
	}
	return cols
}

func (c *compiler) flat(t *Table) string {
	return "SELECT " + strings.Join(c.columnList(t, 0), ", ") + " FROM " + c.builder.Wrap(t.Table) + " AS t0"
}

// projection returns the SELECT of t at the given depth. Children are
// projected as nested columns correlated with their parent row.
func (c *compiler) projection(t *Table, depth int) string {
	cols := c.columnList(t, depth)
	for _, a := range t.Associations {
		sub := c.projection(a.Child, depth+1)
		cols = append(cols, c.builder.Nested(sub)+" AS "+c.builder.Wrap(a.Name))
	}
	alias := fmt.Sprintf("t%d", depth)
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(c.builder.Wrap(t.Table))
	b.WriteString(" AS ")
	b.WriteString(alias)
	if depth > 0 {
		fk := t.props[t.ForeignKey]
		b.WriteString(fmt.Sprintf(" WHERE %s.%s = t%d.%s", alias, c.builder.Wrap(fk.Column), depth-1, c.builder.Wrap(t.parentColumn)))
		order := make([]string, len(t.PrimaryKeyFields))
		for i, col := range t.PrimaryKeyFields {
			order[i] = alias + "." + c.builder.Wrap(col)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(order, ", "))
	}
	return b.String()
}
