package sql

import (
	"strings"

	"github.com/syssam/graphsync/dialect"
)

// ScanRows reads every result set of rows into records keyed by column name
// and closes rows. When a batch yields several result sets, the last one that
// carries columns wins; earlier sets (e.g. row counts of DDL) are drained.
func ScanRows(rows ColumnScanner) (_ []dialect.Row, rerr error) {
	defer func() {
		if err := rows.Close(); err != nil && rerr == nil {
			rerr = err
		}
	}()
	var out []dialect.Row
	for {
		columns, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		var set []dialect.Row
		for rows.Next() {
			values := make([]any, len(columns))
			ptrs := make([]any, len(columns))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return nil, err
			}
			row := make(dialect.Row, len(columns))
			for i, c := range columns {
				row[c] = normalizeValue(values[i])
			}
			set = append(set, row)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if len(columns) > 0 {
			out = set
		}
		if !rows.NextResultSet() {
			break
		}
	}
	if out == nil {
		out = []dialect.Row{}
	}
	return out, nil
}

// normalizeValue converts driver byte slices (text, numeric, json and xml
// columns) to strings so records compare and serialize uniformly.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// QuoteIdent quotes an identifier with the given delimiters, doubling any
// closing delimiter found inside it.
func QuoteIdent(ident string, open, close byte) string {
	var b strings.Builder
	b.Grow(len(ident) + 2)
	b.WriteByte(open)
	for i := 0; i < len(ident); i++ {
		if ident[i] == close {
			b.WriteByte(close)
		}
		b.WriteByte(ident[i])
	}
	b.WriteByte(close)
	return b.String()
}
