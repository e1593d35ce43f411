package graphsync

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/graphsync/criteria"
	"github.com/syssam/graphsync/descriptor"
	"github.com/syssam/graphsync/dialect"
)

// OpOption configures a single operation.
type OpOption func(*opConfig)

type opConfig struct {
	tx dialect.Tx
}

// WithTx runs the operation inside tx. Without it, every mutation runs in
// a transaction of its own.
func WithTx(tx dialect.Tx) OpOption {
	return func(c *opConfig) {
		c.tx = tx
	}
}

func newOpConfig(opts []OpOption) *opConfig {
	c := &opConfig{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Locator identifies the row targeted by Update and Destroy.
type Locator struct {
	key   any
	where criteria.Where
	at    any
}

// Key locates a row by primary key. Composite keys are given as a Record
// holding every key property.
func Key(v any) Locator {
	return Locator{key: v}
}

// Match locates the single row matching w.
func Match(w criteria.Where) Locator {
	return Locator{where: w}
}

// At constrains the located row to the given updatedAt value.
func (l Locator) At(updatedAt any) Locator {
	l.at = updatedAt
	return l
}

func (l Locator) zero() bool {
	return l.key == nil && l.where == nil
}

// predicate returns the filter selecting the located row. A zero locator
// falls back to the primary key carried by rec.
func (e *Entity) predicate(t *descriptor.Table, l Locator, rec Record) (criteria.Where, error) {
	var w criteria.Where
	switch {
	case l.where != nil:
		w = maps.Clone(l.where)
	case l.key != nil:
		w = criteria.Where{}
		if r, ok := l.key.(Record); ok {
			if !t.HasKey(r) {
				return nil, &InvalidArgumentError{Entity: e.name, Msg: "locator misses primary key properties"}
			}
			for _, p := range t.Key(r) {
				w[p.Property] = p.Value
			}
		} else {
			if len(t.PrimaryKeyAttributes) != 1 {
				return nil, &InvalidArgumentError{Entity: e.name, Msg: "composite primary key needs a record locator"}
			}
			w[t.PrimaryKeyAttributes[0]] = l.key
		}
	case rec != nil && t.HasKey(rec):
		w = criteria.Where{}
		for _, p := range t.Key(rec) {
			w[p.Property] = p.Value
		}
	default:
		return nil, &InvalidArgumentError{Entity: e.name, Msg: "missing locator"}
	}
	if l.at != nil {
		if !t.Timestamps {
			return nil, &InvalidArgumentError{Entity: e.name, Msg: "updatedAt locator on an entity without timestamps"}
		}
		w = criteria.Merge(w, criteria.Where{descriptor.UpdatedAt: l.at})
	}
	return w, nil
}

// locate fetches the current state of the located row, bypassing the
// fetch cache.
func (e *Entity) locate(ctx context.Context, l Locator, rec Record, cfg *opConfig) (Record, error) {
	t := e.Table()
	w, err := e.predicate(t, l, rec)
	if err != nil {
		return nil, err
	}
	rows, err := e.fetch(ctx, t, &criteria.Criteria{Where: w}, cfg, false)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, NewNotFoundError(e.name, 0)
	case 1:
		return rows[0], nil
	default:
		return nil, &InvalidArgumentError{Entity: e.name, Msg: fmt.Sprintf("locator matched %d rows", len(rows))}
	}
}

// Create inserts rec and its associated records.
func (e *Entity) Create(ctx context.Context, rec Record, opts ...OpOption) (Record, error) {
	cfg := newOpConfig(opts)
	t := e.Table()
	if err := checkShape(t, rec, ""); err != nil {
		return nil, err
	}
	if err := e.m.validate(ctx, t, rec, nil); err != nil {
		return nil, err
	}
	var out Record
	err := e.m.cascade(ctx, e, opCreate, cfg, func(ctx context.Context, s *syncer) (err error) {
		out, err = s.create(ctx, t, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update locates the persisted row, merges rec over it and writes the
// difference. Associations present in rec replace the persisted ones:
// missing items are deleted, matched items updated and new items created.
// Associations absent from rec are left unchanged. A zero Locator locates
// the row by the primary key in rec. On entities with timestamps, an
// updatedAt carried by rec constrains the located row like Locator.At.
func (e *Entity) Update(ctx context.Context, rec Record, loc Locator, opts ...OpOption) (Record, error) {
	cfg := newOpConfig(opts)
	if at := rec[descriptor.UpdatedAt]; at != nil && loc.at == nil && e.Table().Timestamps {
		loc = loc.At(at)
	}
	was, err := e.locate(ctx, loc, rec, cfg)
	if err != nil {
		return nil, err
	}
	is := maps.Clone(was)
	for _, a := range e.Table().Associations {
		if _, ok := rec[a.Name]; !ok {
			delete(is, a.Name)
		}
	}
	maps.Copy(is, rec)
	return e.update(ctx, is, was, cfg)
}

func (e *Entity) update(ctx context.Context, is, was Record, cfg *opConfig) (Record, error) {
	t := e.Table()
	if err := checkShape(t, is, ""); err != nil {
		return nil, err
	}
	if err := e.m.validate(ctx, t, is, was); err != nil {
		return nil, err
	}
	var out Record
	err := e.m.cascade(ctx, e, opUpdate, cfg, func(ctx context.Context, s *syncer) (err error) {
		out, err = s.update(ctx, t, is, was)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Destroy locates the persisted row and deletes it with its associated
// records, children first.
func (e *Entity) Destroy(ctx context.Context, loc Locator, opts ...OpOption) error {
	cfg := newOpConfig(opts)
	if loc.zero() {
		return &InvalidArgumentError{Entity: e.name, Msg: "missing locator"}
	}
	was, err := e.locate(ctx, loc, nil, cfg)
	if err != nil {
		return err
	}
	return e.destroy(ctx, was, cfg)
}

func (e *Entity) destroy(ctx context.Context, was Record, cfg *opConfig) error {
	t := e.Table()
	if err := e.m.validate(ctx, t, nil, was); err != nil {
		return err
	}
	return e.m.cascade(ctx, e, opDestroy, cfg, func(ctx context.Context, s *syncer) error {
		_, err := s.destroy(ctx, t, was)
		return err
	})
}

// cascade runs fn in the transaction of cfg, or in a new one, and drops
// the cached fetches of the tables involved.
func (m *Mapper) cascade(ctx context.Context, e *Entity, op operation, cfg *opConfig, fn func(context.Context, *syncer) error) error {
	id := uuid.NewString()
	m.logger.DebugContext(ctx, "graphsync: cascade", "entity", e.name, "op", op.String(), "tx", id)
	run := func(ctx context.Context, tx dialect.Tx) error {
		return fn(ctx, &syncer{m: m, tx: tx, now: m.clock().UTC().Truncate(time.Microsecond)})
	}
	var err error
	if cfg.tx != nil {
		err = run(ctx, cfg.tx)
	} else {
		err = m.adapter.Transaction(ctx, run)
	}
	if err != nil {
		m.logger.DebugContext(ctx, "graphsync: cascade failed", "entity", e.name, "op", op.String(), "tx", id, "error", err)
		return err
	}
	m.invalidate(ctx, e.Graph())
	return nil
}

// checkShape rejects association values that do not fit the declared
// associations of t before any statement runs.
func checkShape(t *descriptor.Table, rec Record, path string) error {
	for _, a := range t.Associations {
		v, ok := rec[a.Name]
		if !ok {
			continue
		}
		at := join(path, a.Name)
		items, err := asRecords(v)
		if err != nil {
			return &InvalidDataError{Entity: t.Name, Path: at, Msg: err.Error()}
		}
		if a.Kind == descriptor.ToOne && len(items) > 1 {
			return &InvalidDataError{Entity: t.Name, Path: at, Msg: fmt.Sprintf("to-one association received %d items", len(items))}
		}
		parent := rec[a.Child.ParentKey]
		for i, item := range items {
			p := at
			if a.Kind == descriptor.ToMany {
				p = fmt.Sprintf("%s[%d]", at, i)
			}
			if fk := item[a.Child.ForeignKey]; fk != nil && parent != nil && !descriptor.SameValue(fk, parent) {
				return &InvalidDataError{Entity: t.Name, Path: p, Msg: fmt.Sprintf("%s references another %s", a.Child.ForeignKey, t.Name)}
			}
			if err := checkShape(a.Child, item, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// syncer performs the statements of one cascade. Statements run one at a
// time on tx.
type syncer struct {
	m   *Mapper
	tx  dialect.Tx
	now time.Time
}

func (s *syncer) event(t *descriptor.Table, is, was Record) (*HookEvent, hooks) {
	e := s.m.entityOf(t)
	return &HookEvent{Entity: e, Record: is, Was: was, Tx: s.tx}, e.hooks()
}

// exec runs a mutation expected to affect exactly one row and returns that
// row as a record.
func (s *syncer) exec(ctx context.Context, t *descriptor.Table, query string, args []any) (Record, error) {
	rows, err := s.m.adapter.Execute(ctx, query, args, s.tx)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, NewNotFoundError(t.Name, len(rows))
	}
	return t.ReadColumns(rows[0])
}

func (s *syncer) create(ctx context.Context, t *descriptor.Table, rec Record) (Record, error) {
	is := maps.Clone(rec)
	if t.Timestamps {
		is[descriptor.CreatedAt] = s.now
		is[descriptor.UpdatedAt] = s.now
	}
	ev, hs := s.event(t, is, nil)
	if err := hs.run(ctx, ev, BeforeCreate, BeforeSave); err != nil {
		return nil, err
	}
	values, err := t.Own(is)
	if err != nil {
		return nil, &InvalidDataError{Entity: t.Name, Msg: err.Error()}
	}
	query, args := t.InsertStatement(values)
	out, err := s.exec(ctx, t, query, args)
	if err != nil {
		return nil, err
	}
	for _, a := range t.Associations {
		items, err := asRecords(is[a.Name])
		if err != nil {
			return nil, &InvalidDataError{Entity: t.Name, Path: a.Name, Msg: err.Error()}
		}
		if a.Kind == descriptor.ToOne && len(items) > 1 {
			return nil, &InvalidDataError{Entity: t.Name, Path: a.Name, Msg: fmt.Sprintf("to-one association received %d items", len(items))}
		}
		children := make([]Record, 0, len(items))
		for _, item := range items {
			c, err := s.create(ctx, a.Child, s.adopt(a, item, out))
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		out[a.Name] = assemble(a, children)
	}
	ev.Result = out
	if err := hs.run(ctx, ev, AfterCreate, AfterSave); err != nil {
		return nil, err
	}
	return out, nil
}

// adopt returns a copy of item pointing at parent.
func (s *syncer) adopt(a *descriptor.Association, item, parent Record) Record {
	c := maps.Clone(item)
	c[a.Child.ForeignKey] = parent[a.Child.ParentKey]
	return c
}

func assemble(a *descriptor.Association, children []Record) any {
	if a.Kind == descriptor.ToMany {
		if children == nil {
			children = []Record{}
		}
		return children
	}
	if len(children) == 0 {
		return nil
	}
	return children[0]
}

// writable reports if an update may set the property.
func writable(t *descriptor.Table, name string) bool {
	if t.IsPrimaryKey(name) {
		return false
	}
	if t.Timestamps && (name == descriptor.CreatedAt || name == descriptor.UpdatedAt) {
		return false
	}
	fd, _ := t.Property(name)
	return !fd.Generated
}

// concurrencyKeys returns the predicate of a mutation on the persisted
// state was: its primary key, plus its updatedAt with timestamps enabled.
func concurrencyKeys(t *descriptor.Table, was Record) []descriptor.Pair {
	keys := t.Key(was)
	if t.Timestamps {
		keys = append(keys, descriptor.Pair{Property: descriptor.UpdatedAt, Value: was[descriptor.UpdatedAt]})
	}
	return keys
}

func (s *syncer) update(ctx context.Context, t *descriptor.Table, rec, was Record) (Record, error) {
	is := maps.Clone(rec)
	ev, hs := s.event(t, is, was)
	if err := hs.run(ctx, ev, BeforeUpdate, BeforeSave); err != nil {
		return nil, err
	}
	var values []descriptor.Pair
	for _, fd := range t.Properties {
		v, ok := is[fd.Name]
		if !ok || !writable(t, fd.Name) {
			continue
		}
		w, err := descriptor.WriteValue(fd, v)
		if err != nil {
			return nil, &InvalidDataError{Entity: t.Name, Path: fd.Name, Msg: err.Error()}
		}
		values = append(values, descriptor.Pair{Property: fd.Name, Value: w})
	}
	if t.Timestamps {
		fd, _ := t.Property(descriptor.UpdatedAt)
		w, err := descriptor.WriteValue(fd, s.now)
		if err != nil {
			return nil, err
		}
		is[descriptor.UpdatedAt] = s.now
		values = append(values, descriptor.Pair{Property: descriptor.UpdatedAt, Value: w})
	}
	query, args := t.UpdateStatement(values, concurrencyKeys(t, was))
	out, err := s.exec(ctx, t, query, args)
	if err != nil {
		return nil, err
	}
	for _, a := range t.Associations {
		v, err := s.sync(ctx, a, is, was, out)
		if err != nil {
			return nil, err
		}
		out[a.Name] = v
	}
	ev.Result = out
	if err := hs.run(ctx, ev, AfterUpdate, AfterSave); err != nil {
		return nil, err
	}
	return out, nil
}

// sync brings one association of an updated record in line with the
// candidate: prior items missing from it are destroyed, matched items
// updated and the remaining candidates created, in that order.
func (s *syncer) sync(ctx context.Context, a *descriptor.Association, is, was, parent Record) (any, error) {
	priors, err := asRecords(was[a.Name])
	if err != nil {
		return nil, &InvalidDataError{Entity: a.Child.Name, Path: a.Name, Msg: err.Error()}
	}
	v, ok := is[a.Name]
	if !ok {
		return assemble(a, priors), nil
	}
	candidates, err := asRecords(v)
	if err != nil {
		return nil, &InvalidDataError{Entity: a.Child.Name, Path: a.Name, Msg: err.Error()}
	}
	if a.Kind == descriptor.ToOne && len(candidates) > 1 {
		return nil, &InvalidDataError{Entity: a.Child.Name, Path: a.Name, Msg: fmt.Sprintf("to-one association received %d items", len(candidates))}
	}
	var (
		matched = make([]bool, len(priors))
		pairs   = make([]int, len(candidates)) // index of the matched prior, or -1.
	)
	for i, c := range candidates {
		pairs[i] = matchPrior(a.Child, c, priors, matched)
	}
	for j, p := range priors {
		if matched[j] {
			continue
		}
		if _, err := s.destroy(ctx, a.Child, p); err != nil {
			return nil, err
		}
	}
	results := make([]Record, len(candidates))
	for i, j := range pairs {
		if j < 0 {
			continue
		}
		r, err := s.update(ctx, a.Child, candidates[i], priors[j])
		if err != nil {
			return nil, err
		}
		results[i] = r
	}
	for i, j := range pairs {
		if j >= 0 {
			continue
		}
		r, err := s.create(ctx, a.Child, s.adopt(a, candidates[i], parent))
		if err != nil {
			return nil, err
		}
		results[i] = r
	}
	return assemble(a, results), nil
}

func (s *syncer) destroy(ctx context.Context, t *descriptor.Table, was Record) (Record, error) {
	ev, hs := s.event(t, maps.Clone(was), was)
	if err := hs.run(ctx, ev, BeforeDelete, BeforeDestroy); err != nil {
		return nil, err
	}
	for _, a := range t.Associations {
		items, err := asRecords(was[a.Name])
		if err != nil {
			return nil, &InvalidDataError{Entity: t.Name, Path: a.Name, Msg: err.Error()}
		}
		for _, item := range items {
			if _, err := s.destroy(ctx, a.Child, item); err != nil {
				return nil, err
			}
		}
	}
	query, args := t.DeleteStatement(concurrencyKeys(t, was))
	out, err := s.exec(ctx, t, query, args)
	if err != nil {
		return nil, err
	}
	ev.Result = out
	if err := hs.run(ctx, ev, AfterDelete, AfterDestroy); err != nil {
		return nil, err
	}
	return out, nil
}
