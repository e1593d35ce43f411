package criteria

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/syssam/graphsync/descriptor"
	"github.com/syssam/graphsync/dialect"
	"github.com/syssam/graphsync/schema/field"
)

// RowNumber is the column added by paged statements. Read drops it.
const RowNumber = "_rn"

// Statement is a compiled criteria.
type Statement struct {
	SQL       string
	Args      []any
	Aggregate bool

	table *descriptor.Table
	kinds map[string]aggregate
}

type aggregate struct {
	fd  *field.Descriptor
	num bool // the value is read as a number regardless of the property type.
}

// Compile compiles c against the nested projection of t. A nil c selects
// every row.
func Compile(c *Criteria, t *descriptor.Table) (*Statement, error) {
	if c == nil {
		c = &Criteria{}
	}
	if c.Aggregate() {
		return compileAggregate(c, t)
	}
	b := t.Builder()
	w := &whereBuilder{table: t, builder: b}
	cond, err := w.compile(c.Where)
	if err != nil {
		return nil, err
	}
	order, err := orderBy(c.Sort, t, nil)
	if err != nil {
		return nil, err
	}
	if c.Limit < 0 || c.Skip < 0 {
		return nil, fmt.Errorf("%w: negative limit or skip", ErrInvalid)
	}
	base := "(" + t.Select + ") AS _q"
	var query string
	switch {
	case c.Skip > 0:
		if len(order) == 0 {
			for _, k := range t.PrimaryKeyAttributes {
				order = append(order, b.Wrap(k)+" ASC")
			}
		}
		inner := "SELECT _q.*, ROW_NUMBER() OVER (ORDER BY " + strings.Join(order, ", ") + ") AS " + b.Wrap(RowNumber) + " FROM " + base + where(cond)
		rn := "_p." + b.Wrap(RowNumber)
		query = "SELECT * FROM (" + inner + ") AS _p WHERE " + rn + " > " + strconv.Itoa(c.Skip)
		if c.Limit > 0 {
			query += " AND " + rn + " <= " + strconv.Itoa(c.Skip+c.Limit)
		}
		query += " ORDER BY " + rn
	default:
		query = "SELECT * FROM " + base + where(cond)
		if len(order) > 0 {
			query += " ORDER BY " + strings.Join(order, ", ")
		}
		if c.Limit > 0 {
			query = b.Limit(query, c.Limit)
		}
	}
	return &Statement{SQL: query, Args: w.args, table: t}, nil
}

// CompileCount compiles a statement counting the rows matching w.
func CompileCount(w Where, t *descriptor.Table) (*Statement, error) {
	b := t.Builder()
	wb := &whereBuilder{table: t, builder: b}
	cond, err := wb.compile(w)
	if err != nil {
		return nil, err
	}
	return &Statement{
		SQL:       "SELECT COUNT(*) AS " + b.Wrap("count") + " FROM (" + t.FlatSelect + ") AS _q" + where(cond),
		Args:      wb.args,
		Aggregate: true,
		table:     t,
		kinds:     map[string]aggregate{"count": {fd: field.Integer("count").Descriptor()}},
	}, nil
}

func compileAggregate(c *Criteria, t *descriptor.Table) (*Statement, error) {
	b := t.Builder()
	kinds := make(map[string]aggregate)
	var cols []string
	for _, g := range c.GroupBy {
		fd, ok := t.Property(g)
		if !ok {
			return nil, fmt.Errorf("%w: unknown group by property %q", ErrInvalid, g)
		}
		cols = append(cols, b.Wrap(g))
		kinds[g] = aggregate{fd: fd}
	}
	for _, agg := range []struct {
		prefix, fn string
		fields     []string
		num        bool
	}{
		{"sum_", "SUM", c.Sum, true},
		{"average_", "AVG", c.Average, true},
		{"min_", "MIN", c.Min, false},
		{"max_", "MAX", c.Max, false},
	} {
		for _, f := range agg.fields {
			fd, ok := t.Property(f)
			if !ok {
				return nil, fmt.Errorf("%w: unknown aggregate property %q", ErrInvalid, f)
			}
			key := agg.prefix + f
			cols = append(cols, agg.fn+"("+b.Wrap(f)+") AS "+b.Wrap(key))
			kinds[key] = aggregate{fd: fd, num: agg.num}
		}
	}
	w := &whereBuilder{table: t, builder: b}
	cond, err := w.compile(c.Where)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + strings.Join(cols, ", ") + " FROM (" + t.FlatSelect + ") AS _q" + where(cond)
	if len(c.GroupBy) > 0 {
		groups := make([]string, len(c.GroupBy))
		for i, g := range c.GroupBy {
			groups[i] = b.Wrap(g)
		}
		query += " GROUP BY " + strings.Join(groups, ", ")
	}
	order, err := orderBy(c.Sort, t, kinds)
	if err != nil {
		return nil, err
	}
	if len(order) > 0 {
		query += " ORDER BY " + strings.Join(order, ", ")
	}
	return &Statement{SQL: query, Args: w.args, Aggregate: true, table: t, kinds: kinds}, nil
}

func where(cond string) string {
	if cond == "" {
		return ""
	}
	return " WHERE " + cond
}

// orderBy compiles sort orders. In aggregate mode only selected keys may
// be sorted on.
func orderBy(sort []Order, t *descriptor.Table, kinds map[string]aggregate) ([]string, error) {
	order := make([]string, 0, len(sort))
	for _, o := range sort {
		if kinds != nil {
			if _, ok := kinds[o.Field]; !ok {
				return nil, fmt.Errorf("%w: cannot sort aggregate on %q", ErrInvalid, o.Field)
			}
		} else if _, ok := t.Property(o.Field); !ok {
			return nil, fmt.Errorf("%w: unknown sort property %q", ErrInvalid, o.Field)
		}
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		order = append(order, t.Builder().Wrap(o.Field)+dir)
	}
	return order, nil
}

// Read converts a row returned by the statement into a record. Row
// statements decode nested associations with decode.
func (s *Statement) Read(row dialect.Row, decode descriptor.Decoder) (map[string]any, error) {
	if !s.Aggregate {
		delete(row, RowNumber)
		return s.table.ReadRow(row, decode)
	}
	rec := make(map[string]any, len(row))
	for k, v := range row {
		kind, ok := s.kinds[k]
		if !ok {
			continue
		}
		fd := kind.fd
		if kind.num {
			fd = field.Number(k).Descriptor()
		}
		r, err := descriptor.ReadValue(fd, v)
		if err != nil {
			return nil, fmt.Errorf("criteria: %s: %w", k, err)
		}
		rec[k] = r
	}
	return rec, nil
}

type whereBuilder struct {
	table   *descriptor.Table
	builder dialect.Builder
	args    []any
}

func (w *whereBuilder) arg(v any) string {
	w.args = append(w.args, v)
	return w.builder.Placeholder(len(w.args))
}

// compile returns the conjunction of every key of where, in key order.
func (w *whereBuilder) compile(where Where) (string, error) {
	keys := slices.Sorted(maps.Keys(where))
	conds := make([]string, 0, len(keys))
	for _, k := range keys {
		var (
			cond string
			err  error
		)
		switch k {
		case And, Or:
			cond, err = w.group(k, where[k])
		default:
			cond, err = w.condition(k, where[k])
		}
		if err != nil {
			return "", err
		}
		if cond != "" {
			conds = append(conds, cond)
		}
	}
	switch len(conds) {
	case 0:
		return "", nil
	case 1:
		return conds[0], nil
	default:
		return strings.Join(conds, " AND "), nil
	}
}

func (w *whereBuilder) group(op string, v any) (string, error) {
	subs, err := asWheres(v)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalid, op, err)
	}
	parts := make([]string, 0, len(subs))
	for _, sub := range subs {
		cond, err := w.compile(sub)
		if err != nil {
			return "", err
		}
		if cond != "" {
			parts = append(parts, "("+cond+")")
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " "+strings.ToUpper(op)+" ") + ")", nil
}

func asWheres(v any) ([]Where, error) {
	switch v := v.(type) {
	case []Where:
		return v, nil
	case []map[string]any:
		out := make([]Where, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, nil
	case []any:
		out := make([]Where, len(v))
		for i, e := range v {
			switch e := e.(type) {
			case Where:
				out[i] = e
			case map[string]any:
				out[i] = e
			default:
				return nil, fmt.Errorf("element of type %T", e)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expect a list of criteria, got %T", v)
	}
}

func (w *whereBuilder) condition(prop string, v any) (string, error) {
	fd, ok := w.table.Property(prop)
	if !ok {
		return "", fmt.Errorf("%w: unknown property %q", ErrInvalid, prop)
	}
	col := w.builder.Wrap(prop)
	var ops Ops
	switch v := v.(type) {
	case Ops:
		ops = v
	case map[string]any:
		ops = v
	default:
		return w.equal(col, fd, v, false)
	}
	names := slices.Sorted(maps.Keys(ops))
	conds := make([]string, 0, len(ops))
	for _, op := range names {
		cond, err := w.operator(col, fd, op, ops[op])
		if err != nil {
			return "", err
		}
		conds = append(conds, cond)
	}
	return strings.Join(conds, " AND "), nil
}

func (w *whereBuilder) operator(col string, fd *field.Descriptor, op string, v any) (string, error) {
	switch op {
	case "=":
		return w.equal(col, fd, v, false)
	case "!":
		return w.equal(col, fd, v, true)
	case "<", "<=", ">", ">=":
		if v == nil {
			return "", fmt.Errorf("%w: %q %s nil", ErrInvalid, fd.Name, op)
		}
		return col + " " + op + " " + w.arg(value(fd, v)), nil
	case "like":
		return col + " LIKE " + w.arg(fmt.Sprint(v)), nil
	case "contains":
		return col + " LIKE " + w.arg("%"+fmt.Sprint(v)+"%"), nil
	case "startsWith":
		return col + " LIKE " + w.arg(fmt.Sprint(v)+"%"), nil
	case "endsWith":
		return col + " LIKE " + w.arg("%"+fmt.Sprint(v)), nil
	default:
		return "", fmt.Errorf("%w: unknown operator %q on %q", ErrInvalid, op, fd.Name)
	}
}

// equal compiles equality, or inequality when not is set.
func (w *whereBuilder) equal(col string, fd *field.Descriptor, v any, not bool) (string, error) {
	if v == nil {
		if not {
			return col + " IS NOT NULL", nil
		}
		return col + " IS NULL", nil
	}
	if list, ok := asList(v); ok {
		if len(list) == 0 {
			if not {
				return "1 = 1", nil
			}
			return "1 = 0", nil
		}
		marks := make([]string, len(list))
		for i, e := range list {
			marks[i] = w.arg(value(fd, e))
		}
		in := " IN ("
		if not {
			in = " NOT IN ("
		}
		return col + in + strings.Join(marks, ", ") + ")", nil
	}
	if not {
		return col + " <> " + w.arg(value(fd, v)), nil
	}
	return col + " = " + w.arg(value(fd, v)), nil
}

// value converts an operand like a written value, so enum operands match
// their stored codes.
func value(fd *field.Descriptor, v any) any {
	if w, err := descriptor.WriteValue(fd, v); err == nil {
		return w
	}
	return v
}

func asList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
