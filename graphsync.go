// Package graphsync persists nested object graphs to a relational store and
// reads them back in the same shape.
//
// Entities are declared as property sets plus parent/child associations.
// Every declaration call recompiles the affected descriptors into SQL
// templates and projections; at runtime records go in and come out as
// plain maps:
//
//	m := graphsync.New(postgres.New(drv))
//	orders, err := m.Define("orders", []graphsync.Field{
//		field.Integer("id").Identity(),
//		field.String("customer").Required(),
//	}, graphsync.Timestamps())
//	items, err := orders.HasMany("items", []graphsync.Field{
//		field.Integer("id").Identity(),
//		field.Integer("orderId").References("orders"),
//		field.String("sku"),
//	})
//
//	order, err := orders.Create(ctx, graphsync.Record{
//		"customer": "ada",
//		"items":    []graphsync.Record{{"sku": "A"}, {"sku": "B"}},
//	})
//
// Create inserts the order and both items in one transaction. Update diffs
// the submitted graph against the persisted one and deletes, updates and
// creates children in that order. Destroy removes the subtree depth-first.
// With timestamps enabled, updatedAt is checked on every update and delete
// so that concurrent modifications fail with a NotFoundError.
package graphsync

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/syssam/graphsync/descriptor"
	"github.com/syssam/graphsync/dialect"
	"github.com/syssam/graphsync/schema/field"
)

// Record is a single entity, keyed by property and association names.
// To-many associations hold []Record, to-one associations a Record or nil.
type Record = map[string]any

// Field is the interface implemented by property builders, such as the
// ones in the schema/field package.
type Field interface {
	Descriptor() *field.Descriptor
}

// Mapper owns the declarations of a set of entities and the adapter they
// are persisted through.
type Mapper struct {
	adapter    dialect.Adapter
	arena      *descriptor.Arena
	logger     *slog.Logger
	clock      func() time.Time
	cache      *fetchCache
	validators sync.Map // name => Validator

	mu       sync.Mutex // serializes declaration calls.
	entities []*Entity
	byID     map[descriptor.ID]*Entity
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithLogger sets the logger. It defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Mapper) {
		m.logger = l
	}
}

// WithClock sets the time source of createdAt and updatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Mapper) {
		m.clock = now
	}
}

// WithCache caches fetch results outside transactions for ttl. Every
// mutation drops the cached results of the tables it touched.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(m *Mapper) {
		m.cache = &fetchCache{cache: c, ttl: ttl}
	}
}

// WithValidator registers a property validator.
func WithValidator(name string, fn Validator) Option {
	return func(m *Mapper) {
		m.validators.Store(name, fn)
	}
}

// New returns a mapper persisting through adapter.
func New(adapter dialect.Adapter, opts ...Option) *Mapper {
	m := &Mapper{
		adapter: adapter,
		arena:   descriptor.NewArena(),
		logger:  slog.Default(),
		clock:   time.Now,
		byID:    make(map[descriptor.ID]*Entity),
	}
	for name, fn := range builtinValidators {
		m.validators.Store(name, fn)
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache != nil {
		m.cache.logger = m.logger
	}
	return m
}

// Adapter returns the adapter of the mapper.
func (m *Mapper) Adapter() dialect.Adapter {
	return m.adapter
}

// RegisterValidator registers, or replaces, a property validator.
func (m *Mapper) RegisterValidator(name string, fn Validator) {
	m.validators.Store(name, fn)
}

func (m *Mapper) validator(name string) (Validator, bool) {
	v, ok := m.validators.Load(name)
	if !ok {
		return nil, false
	}
	return v.(Validator), true
}

// Entity returns the root entity defined with the given name.
func (m *Mapper) Entity(name string) (*Entity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entities {
		if e.parent == nil && e.name == name {
			return e, true
		}
	}
	return nil, false
}

// Entities returns every root entity in definition order.
func (m *Mapper) Entities() []*Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Entity
	for _, e := range m.entities {
		if e.parent == nil {
			out = append(out, e)
		}
	}
	return out
}

// DefineOption configures a declaration.
type DefineOption func(*descriptor.Declaration)

// Table sets the physical table name. It defaults to the entity name.
func Table(name string) DefineOption {
	return func(d *descriptor.Declaration) {
		d.Table = name
	}
}

// Alias sets the public name used in the published schema.
func Alias(name string) DefineOption {
	return func(d *descriptor.Declaration) {
		d.Alias = name
	}
}

// PrimaryKey sets the primary key, by property or column names. Without
// it, the properties declared with PrimaryKey() form the key.
func PrimaryKey(names ...string) DefineOption {
	return func(d *descriptor.Declaration) {
		d.PrimaryKey = names
	}
}

// Timestamps adds createdAt and updatedAt, and enables optimistic
// concurrency on updatedAt.
func Timestamps() DefineOption {
	return func(d *descriptor.Declaration) {
		d.Timestamps = true
	}
}

// Scope sets an implicit filter merged into every fetch.
func Scope(w map[string]any) DefineOption {
	return func(d *descriptor.Declaration) {
		d.Scope = w
	}
}

// ForeignKey sets the foreign key of a child entity.
func ForeignKey(name string) DefineOption {
	return func(d *descriptor.Declaration) {
		d.ForeignKey = name
	}
}

// Define declares a root entity.
func (m *Mapper) Define(name string, fields []Field, opts ...DefineOption) (*Entity, error) {
	return m.define(nil, name, descriptor.ToMany, fields, opts)
}

func (m *Mapper) define(parent *Entity, name string, kind descriptor.Kind, fields []Field, opts []DefineOption) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := descriptor.Declaration{Name: name, Fields: descriptors(fields)}
	for _, opt := range opts {
		opt(&d)
	}
	id := m.arena.Add(d)
	e := newEntity(m, id, name, parent)
	if parent != nil {
		if err := m.arena.Associate(parent.id, name, kind, id); err != nil {
			return nil, &ConfigurationError{Entity: parent.name, Err: err}
		}
	}
	m.entities = append(m.entities, e)
	m.byID[id] = e
	if err := m.rebuild(); err != nil {
		m.entities = m.entities[:len(m.entities)-1]
		delete(m.byID, id)
		if parent != nil {
			_ = m.arena.Update(parent.id, func(pd *descriptor.Declaration) {
				pd.Links = pd.Links[:len(pd.Links)-1]
			})
			_ = m.rebuild()
		}
		return nil, err
	}
	return e, nil
}

// declare applies fn to the declaration of e and recompiles. A change that
// does not compile is reverted.
func (m *Mapper) declare(e *Entity, fn func(*descriptor.Declaration)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.arena.Get(e.id)
	if !ok {
		return &ConfigurationError{Entity: e.name, Err: ErrConfiguration}
	}
	if err := m.arena.Update(e.id, fn); err != nil {
		return &ConfigurationError{Entity: e.name, Err: err}
	}
	if err := m.rebuild(); err != nil {
		_ = m.arena.Update(e.id, func(d *descriptor.Declaration) { *d = *prev })
		_ = m.rebuild()
		return err
	}
	return nil
}

// rebuild recompiles the graph of every entity. Graphs are swapped in only
// when all of them compile.
func (m *Mapper) rebuild() error {
	graphs := make([]*descriptor.Graph, len(m.entities))
	for i, e := range m.entities {
		g, err := descriptor.Compile(m.arena, e.id, m.adapter)
		if err != nil {
			return &ConfigurationError{Entity: e.name, Err: err}
		}
		graphs[i] = g
	}
	for i, e := range m.entities {
		old := e.graph.Swap(graphs[i])
		if e.parent != nil {
			continue
		}
		if old != nil && slices.Equal(old.Warnings, graphs[i].Warnings) {
			continue
		}
		for _, w := range graphs[i].Warnings {
			m.logger.Warn("graphsync: unlinked association", "entity", e.name, "warning", w)
		}
	}
	return nil
}

func (m *Mapper) entityOf(t *descriptor.Table) *Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[t.ID]
}

func descriptors(fields []Field) []*field.Descriptor {
	out := make([]*field.Descriptor, len(fields))
	for i, f := range fields {
		out[i] = f.Descriptor()
	}
	return out
}
