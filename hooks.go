package graphsync

import (
	"context"
	"fmt"

	"github.com/syssam/graphsync/dialect"
)

// Event names a point in the lifecycle of a record.
type Event string

// Lifecycle events. Save events fire for both creates and updates; destroy
// events fire together with the delete events of the same record.
const (
	BeforeCreate  Event = "beforeCreate"
	AfterCreate   Event = "afterCreate"
	BeforeUpdate  Event = "beforeUpdate"
	AfterUpdate   Event = "afterUpdate"
	BeforeSave    Event = "beforeSave"
	AfterSave     Event = "afterSave"
	BeforeDelete  Event = "beforeDelete"
	AfterDelete   Event = "afterDelete"
	BeforeDestroy Event = "beforeDestroy"
	AfterDestroy  Event = "afterDestroy"
)

// Events lists every lifecycle event.
var Events = []Event{
	BeforeCreate, AfterCreate,
	BeforeUpdate, AfterUpdate,
	BeforeSave, AfterSave,
	BeforeDelete, AfterDelete,
	BeforeDestroy, AfterDestroy,
}

func (e Event) valid() bool {
	for _, v := range Events {
		if v == e {
			return true
		}
	}
	return false
}

// HookEvent is passed to hooks.
type HookEvent struct {
	Event  Event
	Entity *Entity
	// Record is the candidate record. Before-hooks may modify it, and the
	// modified record is what gets written.
	Record Record
	// Was is the prior persisted state; nil on create.
	Was Record
	// Tx is the transaction of the running operation.
	Tx dialect.Tx
	// Result is the record returned by the store. Set for after-hooks only.
	Result Record
}

// HookFunc is a lifecycle hook. A non-nil error aborts the operation and
// rolls back its transaction.
type HookFunc func(ctx context.Context, ev *HookEvent) error

type hook struct {
	id string
	fn HookFunc
}

// hooks holds the ordered hooks of one entity, per event.
type hooks map[Event][]hook

func (h hooks) clone() hooks {
	c := make(hooks, len(h))
	for ev, list := range h {
		c[ev] = append([]hook(nil), list...)
	}
	return c
}

// add appends, or replaces in place, the hook with the given id.
func (h hooks) add(ev Event, id string, fn HookFunc) string {
	list := h[ev]
	if id == "" {
		id = fmt.Sprintf("%s#%d", ev, len(list)+1)
	}
	for i := range list {
		if list[i].id == id {
			list[i].fn = fn
			return id
		}
	}
	h[ev] = append(list, hook{id: id, fn: fn})
	return id
}

// run calls the hooks of every event in order. The first failure stops the
// chain.
func (h hooks) run(ctx context.Context, ev *HookEvent, events ...Event) error {
	for _, name := range events {
		for _, hk := range h[name] {
			ev.Event = name
			if err := hk.fn(ctx, ev); err != nil {
				return &HookError{Entity: ev.Entity.Name(), Event: name, ID: hk.id, Err: err}
			}
		}
	}
	return nil
}
