package descriptor

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/syssam/graphsync/schema/field"
)

// ID identifies a declaration inside an Arena. IDs are stable for the
// lifetime of the arena.
type ID int

// Kind is the cardinality of an association.
type Kind uint8

// Association kinds.
const (
	ToMany Kind = iota
	ToOne
)

// String returns the kind name.
func (k Kind) String() string {
	if k == ToOne {
		return "toOne"
	}
	return "toMany"
}

// Link is a declared association from a parent declaration to a child.
type Link struct {
	Name  string
	Kind  Kind
	Child ID
}

// Declaration is the uncompiled definition of one entity.
type Declaration struct {
	Name       string // entity name; also the record key when used as a child.
	Table      string // physical table; defaults to Name.
	Alias      string // public name used in the published schema.
	Fields     []*field.Descriptor
	PrimaryKey []string // explicit key, by property or column name.
	ForeignKey string   // explicit foreign key, by property or column name.
	Timestamps bool
	Scope      map[string]any
	Links      []Link
}

func (d *Declaration) clone() *Declaration {
	c := *d
	c.Fields = slices.Clone(d.Fields)
	c.PrimaryKey = slices.Clone(d.PrimaryKey)
	c.Scope = maps.Clone(d.Scope)
	c.Links = slices.Clone(d.Links)
	return &c
}

// Arena owns every declaration of a mapper. Declarations reference each
// other through IDs, so associations may point back at an ancestor.
type Arena struct {
	mu    sync.RWMutex
	decls []*Declaration
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Add stores a copy of d and returns its ID.
func (a *Arena) Add(d Declaration) ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d.Table == "" {
		d.Table = d.Name
	}
	a.decls = append(a.decls, d.clone())
	return ID(len(a.decls) - 1)
}

// Get returns a copy of the declaration with the given ID.
func (a *Arena) Get(id ID) (*Declaration, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if id < 0 || int(id) >= len(a.decls) {
		return nil, false
	}
	return a.decls[id].clone(), true
}

// Update applies fn to the declaration with the given ID.
func (a *Arena) Update(id ID, fn func(*Declaration)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id < 0 || int(id) >= len(a.decls) {
		return fmt.Errorf("descriptor: unknown declaration %d", id)
	}
	d := a.decls[id].clone()
	fn(d)
	a.decls[id] = d
	return nil
}

// Associate adds a link from parent to child.
func (a *Arena) Associate(parent ID, name string, kind Kind, child ID) error {
	if _, ok := a.Get(child); !ok {
		return fmt.Errorf("descriptor: unknown declaration %d", child)
	}
	return a.Update(parent, func(d *Declaration) {
		d.Links = append(d.Links, Link{Name: name, Kind: kind, Child: child})
	})
}

// Len returns the number of declarations.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.decls)
}
