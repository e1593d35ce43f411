package graphsync

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/syssam/graphsync/criteria"
	"github.com/syssam/graphsync/descriptor"
	"github.com/syssam/graphsync/schema/field"
)

// Entity is the handle of a declared entity. Root entities are created by
// Mapper.Define, child entities by HasMany and HasOne. Handles are safe for
// concurrent use; declaration calls recompile the graphs they affect.
type Entity struct {
	m      *Mapper
	id     descriptor.ID
	name   string
	parent *Entity

	graph atomic.Pointer[descriptor.Graph]

	mu       sync.Mutex // serializes behavior updates.
	behavior atomic.Pointer[behavior]
}

// behavior is replaced as a whole on every registration.
type behavior struct {
	hooks       hooks
	validations []*recordRule
	methods     map[string]Method
}

func newEntity(m *Mapper, id descriptor.ID, name string, parent *Entity) *Entity {
	e := &Entity{m: m, id: id, name: name, parent: parent}
	e.behavior.Store(&behavior{hooks: hooks{}, methods: map[string]Method{}})
	return e
}

// Name returns the entity name.
func (e *Entity) Name() string { return e.name }

// Parent returns the entity e was declared under, or nil for root entities.
func (e *Entity) Parent() *Entity { return e.parent }

// Mapper returns the mapper owning e.
func (e *Entity) Mapper() *Mapper { return e.m }

// Graph returns the compiled graph rooted at e.
func (e *Entity) Graph() *descriptor.Graph { return e.graph.Load() }

// Table returns the compiled table of e.
func (e *Entity) Table() *descriptor.Table { return e.Graph().Root }

// Schema returns the JSON-Schema description of e, including its linked
// associations.
func (e *Entity) Schema() map[string]any {
	return e.Table().JSONSchema()
}

// HasMany declares a to-many child entity stored in its own table.
func (e *Entity) HasMany(name string, fields []Field, opts ...DefineOption) (*Entity, error) {
	return e.m.define(e, name, descriptor.ToMany, fields, opts)
}

// HasOne declares a to-one child entity stored in its own table.
func (e *Entity) HasOne(name string, fields []Field, opts ...DefineOption) (*Entity, error) {
	return e.m.define(e, name, descriptor.ToOne, fields, opts)
}

// HasManyOf links an already declared entity as a to-many association.
func (e *Entity) HasManyOf(name string, child *Entity) error {
	return e.associate(name, descriptor.ToMany, child)
}

// HasOneOf links an already declared entity as a to-one association.
func (e *Entity) HasOneOf(name string, child *Entity) error {
	return e.associate(name, descriptor.ToOne, child)
}

func (e *Entity) associate(name string, kind descriptor.Kind, child *Entity) error {
	if child == nil || child.m != e.m {
		return &ConfigurationError{Entity: e.name, Err: fmt.Errorf("association %q: entity of another mapper", name)}
	}
	return e.m.declare(e, func(d *descriptor.Declaration) {
		d.Links = append(d.Links, descriptor.Link{Name: name, Kind: kind, Child: child.id})
	})
}

// ForeignKey sets the property pointing at the parent entity, for
// children whose foreign key cannot be inferred.
func (e *Entity) ForeignKey(name string) error {
	return e.m.declare(e, func(d *descriptor.Declaration) {
		d.ForeignKey = name
	})
}

// SetScope sets the filter merged into every fetch of e.
func (e *Entity) SetScope(w criteria.Where) error {
	return e.m.declare(e, func(d *descriptor.Declaration) {
		d.Scope = maps.Clone(w)
	})
}

// UseTimestamps adds createdAt and updatedAt to e, and enables optimistic
// concurrency on updatedAt.
func (e *Entity) UseTimestamps() error {
	return e.m.declare(e, func(d *descriptor.Declaration) {
		d.Timestamps = true
	})
}

// SetProperties adds properties to e. A property with the name of an
// existing one replaces it.
func (e *Entity) SetProperties(fields ...Field) error {
	return e.m.declare(e, func(d *descriptor.Declaration) {
		for _, fd := range descriptors(fields) {
			d.Fields = replaceField(d.Fields, fd)
		}
	})
}

func replaceField(fields []*field.Descriptor, fd *field.Descriptor) []*field.Descriptor {
	for i := range fields {
		if fields[i].Name == fd.Name {
			fields[i] = fd
			return fields
		}
	}
	return append(fields, fd)
}

func (e *Entity) modify(fn func(*behavior)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.behavior.Load()
	b := &behavior{
		hooks:       old.hooks.clone(),
		validations: append([]*recordRule(nil), old.validations...),
		methods:     maps.Clone(old.methods),
	}
	fn(b)
	e.behavior.Store(b)
}

// On registers fn for the given event. Hooks of one event run in
// registration order; registering an id again replaces the hook in place.
// An empty id is assigned one.
func (e *Entity) On(ev Event, id string, fn HookFunc) error {
	if !ev.valid() {
		return &ConfigurationError{Entity: e.name, Err: fmt.Errorf("unknown event %q", ev)}
	}
	if fn == nil {
		return &ConfigurationError{Entity: e.name, Err: fmt.Errorf("nil hook for event %q", ev)}
	}
	e.modify(func(b *behavior) {
		b.hooks.add(ev, id, fn)
	})
	return nil
}

func (e *Entity) on(ev Event, id string, fn HookFunc) *Entity {
	if err := e.On(ev, id, fn); err != nil {
		panic(err)
	}
	return e
}

// BeforeCreate registers a hook run before the record is inserted.
func (e *Entity) BeforeCreate(id string, fn HookFunc) *Entity { return e.on(BeforeCreate, id, fn) }

// AfterCreate registers a hook run after the record and its children are inserted.
func (e *Entity) AfterCreate(id string, fn HookFunc) *Entity { return e.on(AfterCreate, id, fn) }

// BeforeUpdate registers a hook run before the record is updated.
func (e *Entity) BeforeUpdate(id string, fn HookFunc) *Entity { return e.on(BeforeUpdate, id, fn) }

// AfterUpdate registers a hook run after the record and its children are updated.
func (e *Entity) AfterUpdate(id string, fn HookFunc) *Entity { return e.on(AfterUpdate, id, fn) }

// BeforeSave registers a hook run before both creates and updates.
func (e *Entity) BeforeSave(id string, fn HookFunc) *Entity { return e.on(BeforeSave, id, fn) }

// AfterSave registers a hook run after both creates and updates.
func (e *Entity) AfterSave(id string, fn HookFunc) *Entity { return e.on(AfterSave, id, fn) }

// BeforeDelete registers a hook run before the record is deleted.
func (e *Entity) BeforeDelete(id string, fn HookFunc) *Entity { return e.on(BeforeDelete, id, fn) }

// AfterDelete registers a hook run after the record is deleted.
func (e *Entity) AfterDelete(id string, fn HookFunc) *Entity { return e.on(AfterDelete, id, fn) }

// BeforeDestroy is BeforeDelete under another name.
func (e *Entity) BeforeDestroy(id string, fn HookFunc) *Entity { return e.on(BeforeDestroy, id, fn) }

// AfterDestroy is AfterDelete under another name.
func (e *Entity) AfterDestroy(id string, fn HookFunc) *Entity { return e.on(AfterDestroy, id, fn) }

// Validate registers a whole-record validation. By default it runs on
// create and update.
func (e *Entity) Validate(id string, fn RecordValidator, opts ...ValidateOption) *Entity {
	r := &recordRule{id: id, fn: fn, onCreate: true, onUpdate: true}
	for _, opt := range opts {
		opt(r)
	}
	e.modify(func(b *behavior) {
		if r.id == "" {
			r.id = fmt.Sprintf("validation#%d", len(b.validations)+1)
		}
		for i, v := range b.validations {
			if v.id == r.id {
				b.validations[i] = r
				return
			}
		}
		b.validations = append(b.validations, r)
	})
	return e
}

// Method is an instance method declared with InstanceMethod.
type Method func(ctx context.Context, i *Instance, args ...any) (any, error)

// InstanceMethod declares a method callable on instances of e.
func (e *Entity) InstanceMethod(name string, fn Method) *Entity {
	e.modify(func(b *behavior) {
		b.methods[name] = fn
	})
	return e
}

func (e *Entity) hooks() hooks { return e.behavior.Load().hooks }
