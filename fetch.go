package graphsync

import (
	"context"
	"errors"

	"github.com/syssam/graphsync/criteria"
	"github.com/syssam/graphsync/descriptor"
	"github.com/syssam/graphsync/dialect"
)

// Fetch returns the records matching c, with their associations nested.
// The scope of the entity is merged into the filter. A nil c fetches every
// record.
func (e *Entity) Fetch(ctx context.Context, c *criteria.Criteria, opts ...OpOption) ([]Record, error) {
	return e.fetch(ctx, e.Table(), c, newOpConfig(opts), true)
}

// FetchOne returns the single record matching w. It fails with a
// NotFoundError when nothing matches, and with a NotSingularError when
// several records do.
func (e *Entity) FetchOne(ctx context.Context, w criteria.Where, opts ...OpOption) (Record, error) {
	rows, err := e.Fetch(ctx, &criteria.Criteria{Where: w, Limit: 2}, opts...)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, NewNotFoundError(e.name, 0)
	case 1:
		return rows[0], nil
	default:
		return nil, &NotSingularError{entity: e.name, count: len(rows)}
	}
}

// Count returns the number of records matching w.
func (e *Entity) Count(ctx context.Context, w criteria.Where, opts ...OpOption) (int64, error) {
	t := e.Table()
	stmt, err := criteria.CompileCount(criteria.Merge(t.Scope, w), t)
	if err != nil {
		return 0, e.criteriaError(err)
	}
	recs, err := e.m.query(ctx, t, stmt, newOpConfig(opts), true)
	if err != nil {
		return 0, err
	}
	if len(recs) != 1 {
		return 0, NewNotFoundError(e.name, len(recs))
	}
	n, _ := recs[0]["count"].(int64)
	return n, nil
}

func (e *Entity) fetch(ctx context.Context, t *descriptor.Table, c *criteria.Criteria, cfg *opConfig, cached bool) ([]Record, error) {
	var cc criteria.Criteria
	if c != nil {
		cc = *c
	}
	cc.Where = criteria.Merge(t.Scope, cc.Where)
	stmt, err := criteria.Compile(&cc, t)
	if err != nil {
		return nil, e.criteriaError(err)
	}
	return e.m.query(ctx, t, stmt, cfg, cached)
}

func (e *Entity) criteriaError(err error) error {
	if errors.Is(err, criteria.ErrInvalid) {
		return &InvalidArgumentError{Entity: e.name, Msg: err.Error()}
	}
	return err
}

// query runs stmt and reads its rows. Queries outside a transaction go
// through the fetch cache when one is configured and cached is set.
func (m *Mapper) query(ctx context.Context, t *descriptor.Table, stmt *criteria.Statement, cfg *opConfig, cached bool) ([]Record, error) {
	load := func() ([]dialect.Row, error) {
		return m.adapter.Query(ctx, stmt.SQL, stmt.Args, cfg.tx)
	}
	var (
		rows []dialect.Row
		err  error
	)
	if cached && cfg.tx == nil && m.cache != nil {
		rows, err = m.cache.rows(ctx, t.Table, stmt, load)
	} else {
		rows, err = load()
	}
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := stmt.Read(row, m.adapter.DecodeNested)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
