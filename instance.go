package graphsync

import (
	"context"
	"fmt"
	"maps"

	"github.com/syssam/graphsync/criteria"
)

// Instance wraps a record of an entity together with its last persisted
// state.
type Instance struct {
	entity *Entity
	rec    Record
	was    Record
}

// New returns an unsaved instance holding rec.
func (e *Entity) New(rec Record) *Instance {
	if rec == nil {
		rec = Record{}
	}
	return &Instance{entity: e, rec: rec}
}

// Load fetches the records matching c as persisted instances.
func (e *Entity) Load(ctx context.Context, c *criteria.Criteria, opts ...OpOption) ([]*Instance, error) {
	recs, err := e.Fetch(ctx, c, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]*Instance, len(recs))
	for i, rec := range recs {
		out[i] = e.persisted(rec)
	}
	return out, nil
}

func (e *Entity) persisted(rec Record) *Instance {
	return &Instance{entity: e, rec: rec, was: deepCopy(rec)}
}

// Entity returns the entity of the instance.
func (i *Instance) Entity() *Entity { return i.entity }

// Record returns the current record of the instance.
func (i *Instance) Record() Record { return i.rec }

// Get returns the value of a property or association.
func (i *Instance) Get(name string) any { return i.rec[name] }

// Set sets the value of a property or association.
func (i *Instance) Set(name string, v any) *Instance {
	i.rec[name] = v
	return i
}

// Was returns a copy of the last persisted state, or nil for unsaved
// instances.
func (i *Instance) Was() Record {
	if i.was == nil {
		return nil
	}
	return deepCopy(i.was)
}

// Persisted reports if the instance was loaded or saved.
func (i *Instance) Persisted() bool { return i.was != nil }

// Save creates the record when it was never persisted, and updates it
// against its last persisted state otherwise. The instance holds the
// stored record afterwards.
func (i *Instance) Save(ctx context.Context, opts ...OpOption) error {
	var (
		out Record
		err error
	)
	if i.was == nil {
		out, err = i.entity.Create(ctx, i.rec, opts...)
	} else {
		out, err = i.entity.update(ctx, i.rec, i.was, newOpConfig(opts))
	}
	if err != nil {
		return err
	}
	i.rec = out
	i.was = deepCopy(out)
	return nil
}

// Destroy deletes the persisted record and its associated records.
func (i *Instance) Destroy(ctx context.Context, opts ...OpOption) error {
	if i.was == nil {
		return &InvalidArgumentError{Entity: i.entity.name, Msg: "instance is not persisted"}
	}
	if err := i.entity.destroy(ctx, i.was, newOpConfig(opts)); err != nil {
		return err
	}
	i.was = nil
	return nil
}

// Validate runs the validations a Save would run, without writing.
func (i *Instance) Validate(ctx context.Context) error {
	t := i.entity.Table()
	if err := checkShape(t, i.rec, ""); err != nil {
		return err
	}
	return i.entity.m.validate(ctx, t, i.rec, i.was)
}

// Call invokes the instance method name.
func (i *Instance) Call(ctx context.Context, name string, args ...any) (any, error) {
	fn, ok := i.entity.behavior.Load().methods[name]
	if !ok {
		return nil, &InvalidArgumentError{Entity: i.entity.name, Msg: fmt.Sprintf("unknown instance method %q", name)}
	}
	return fn(ctx, i, args...)
}

func deepCopy(rec Record) Record {
	if rec == nil {
		return nil
	}
	c := maps.Clone(rec)
	for k, v := range c {
		switch v := v.(type) {
		case Record:
			c[k] = deepCopy(v)
		case []Record:
			list := make([]Record, len(v))
			for j, r := range v {
				list[j] = deepCopy(r)
			}
			c[k] = list
		}
	}
	return c
}
