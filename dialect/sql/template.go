package sql

import (
	"strings"

	"github.com/syssam/graphsync/dialect"
)

// Template is a statement compiled once per descriptor. Its tokens are
// replaced with concrete field lists and parameter positions per call.
type Template string

// Parts holds the fragments substituted into a Template.
type Parts struct {
	Fields string
	Values string
	Set    string
	Where  string
}

// Expand returns the statement with every token replaced.
func (t Template) Expand(p Parts) string {
	return strings.NewReplacer(
		dialect.TokenFields, p.Fields,
		dialect.TokenValues, p.Values,
		dialect.TokenSet, p.Set,
		dialect.TokenWhere, p.Where,
	).Replace(string(t))
}

// String returns the raw template text.
func (t Template) String() string { return string(t) }
