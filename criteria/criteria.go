// Package criteria compiles declarative filters, sorting, paging and
// aggregates into SQL over the projection of a compiled table.
//
//	c := &criteria.Criteria{
//		Where: criteria.Where{
//			"status": "ACTIVE",
//			"age":    criteria.Ops{">=": 18},
//			"or": []criteria.Where{
//				{"name": criteria.Ops{"startsWith": "a"}},
//				{"name": nil},
//			},
//		},
//		Sort:  []criteria.Order{criteria.Desc("age")},
//		Skip:  20,
//		Limit: 10,
//	}
//	stmt, err := criteria.Compile(c, table)
package criteria

import (
	"errors"
	"maps"
)

// ErrInvalid is the error wrapped by every compile failure.
var ErrInvalid = errors.New("criteria: invalid criteria")

// Where maps property names to conditions. A plain value compiles to an
// equality (nil to IS NULL, a slice to IN), an Ops value to comparisons.
// The "and" and "or" keys hold lists of nested Where values.
type Where map[string]any

// Ops maps operators to operands. Supported operators are <, <=, >, >=,
// ! (not equal, NOT IN with a slice, IS NOT NULL with nil), like,
// contains, startsWith and endsWith.
type Ops map[string]any

// Boolean group keys of Where.
const (
	And = "and"
	Or  = "or"
)

// Order sorts by one property.
type Order struct {
	Field string
	Desc  bool
}

// Asc returns an ascending order on field.
func Asc(field string) Order { return Order{Field: field} }

// Desc returns a descending order on field.
func Desc(field string) Order { return Order{Field: field, Desc: true} }

// Criteria selects rows of an entity. Setting GroupBy or any aggregate
// switches to aggregate mode, in which Limit and Skip are ignored.
type Criteria struct {
	Where   Where
	Sort    []Order
	Limit   int
	Skip    int
	GroupBy []string
	Sum     []string
	Average []string
	Min     []string
	Max     []string
}

// Aggregate reports if c selects aggregates instead of rows.
func (c *Criteria) Aggregate() bool {
	return len(c.GroupBy)+len(c.Sum)+len(c.Average)+len(c.Min)+len(c.Max) > 0
}

// Merge returns the conjunction of scope and w. Empty operands are dropped.
func Merge(scope map[string]any, w Where) Where {
	switch {
	case len(scope) == 0:
		return w
	case len(w) == 0:
		return maps.Clone(Where(scope))
	default:
		return Where{And: []Where{Where(scope), w}}
	}
}
