package graphsync

import (
	"bytes"
	"context"
	"hash/fnv"
	"log/slog"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/graphsync/criteria"
	"github.com/syssam/graphsync/descriptor"
	"github.com/syssam/graphsync/dialect"
)

// Cache is the interface for caching fetch results.
// Users should implement this interface with their preferred caching solution
// (e.g., Redis, Memcached, in-memory).
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey returns the key of the cached result of stmt on table. Keys of
// one table share the prefix table + ":".
func CacheKey(table string, stmt *criteria.Statement) (string, error) {
	b, err := msgpack.Marshal([]any{stmt.SQL, stmt.Args})
	if err != nil {
		return "", err
	}
	h := fnv.New64a()
	h.Write(b)
	return table + ":" + strconv.FormatUint(h.Sum64(), 16), nil
}

// fetchCache stores the raw rows of fetch statements. Rows are decoded
// into records on every read.
type fetchCache struct {
	cache  Cache
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// rows returns the cached rows of stmt, or loads and caches them.
// Concurrent misses on one key share a single load. Cache failures fall
// back to load.
func (c *fetchCache) rows(ctx context.Context, table string, stmt *criteria.Statement, load func() ([]dialect.Row, error)) ([]dialect.Row, error) {
	key, err := CacheKey(table, stmt)
	if err != nil {
		c.logger.WarnContext(ctx, "graphsync: cache key", "table", table, "error", err)
		return load()
	}
	b, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "graphsync: cache get", "key", key, "error", err)
	}
	if b == nil {
		v, err, _ := c.group.Do(key, func() (any, error) {
			rows, err := load()
			if err != nil {
				return nil, err
			}
			b, err := msgpack.Marshal(rows)
			if err != nil {
				return nil, err
			}
			if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
				c.logger.WarnContext(ctx, "graphsync: cache set", "key", key, "error", err)
			}
			return b, nil
		})
		if err != nil {
			return nil, err
		}
		b = v.([]byte)
	}
	rows, err := decodeRows(b)
	if err != nil {
		c.logger.WarnContext(ctx, "graphsync: cache decode", "key", key, "error", err)
		return load()
	}
	return rows, nil
}

func decodeRows(b []byte) ([]dialect.Row, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	var rows []dialect.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		for k, v := range row {
			// Times decode in the local zone.
			if t, ok := v.(time.Time); ok {
				row[k] = t.UTC()
			}
		}
	}
	if rows == nil {
		rows = []dialect.Row{}
	}
	return rows, nil
}

// invalidate drops the cached fetches of every entity whose graph shares
// a table with g.
func (m *Mapper) invalidate(ctx context.Context, g *descriptor.Graph) {
	if m.cache == nil {
		return
	}
	touched := make(map[string]bool)
	for _, t := range g.Tables() {
		touched[t.Table] = true
	}
	prefixes := make(map[string]bool)
	m.mu.Lock()
	for _, e := range m.entities {
		eg := e.Graph()
		if eg == nil {
			continue
		}
		for _, t := range eg.Tables() {
			if touched[t.Table] {
				prefixes[eg.Root.Table] = true
				break
			}
		}
	}
	m.mu.Unlock()
	for p := range prefixes {
		if err := m.cache.cache.DeletePrefix(ctx, p+":"); err != nil {
			m.logger.WarnContext(ctx, "graphsync: cache invalidate", "prefix", p, "error", err)
		}
	}
}
