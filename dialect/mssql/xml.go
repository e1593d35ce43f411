package mssql

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/syssam/graphsync/dialect"
)

// DecodeNested implements dialect.Adapter. A nested column holds a
// sequence of <row> elements, one child element per projected column.
// Columns holding <row> elements are nested associations themselves and
// decode to rows; other columns decode to their text. NULL columns are
// omitted by FOR XML PATH and so are missing from the row.
func (Builder) DecodeNested(v any) ([]dialect.Row, error) {
	switch v := v.(type) {
	case nil:
		return []dialect.Row{}, nil
	case []dialect.Row:
		return v, nil
	case string:
		return decodeXML(v)
	case []byte:
		return decodeXML(string(v))
	default:
		return nil, fmt.Errorf("mssql: unexpected nested value of type %T", v)
	}
}

func decodeXML(s string) ([]dialect.Row, error) {
	// FOR XML PATH without ROOT yields a fragment.
	dec := xml.NewDecoder(strings.NewReader("<rows>" + s + "</rows>"))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("mssql: decode nested rows: %w", err)
	}
	rows, err := decodeRows(dec)
	if err != nil {
		return nil, fmt.Errorf("mssql: decode nested rows: %w", err)
	}
	return rows, nil
}

// decodeRows reads <row> elements up to the end of the enclosing element.
func decodeRows(dec *xml.Decoder) ([]dialect.Row, error) {
	rows := []dialect.Row{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, unexpectedEOF(err)
		}
		switch tok.(type) {
		case xml.StartElement:
			r, err := decodeRow(dec)
			if err != nil {
				return nil, err
			}
			rows = append(rows, r)
		case xml.EndElement:
			return rows, nil
		}
	}
}

func decodeRow(dec *xml.Decoder) (dialect.Row, error) {
	row := dialect.Row{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, unexpectedEOF(err)
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			row[decodeName(tok.Name.Local)] = v
		case xml.EndElement:
			return row, nil
		}
	}
}

// decodeValue returns the text of a column element, or its rows when the
// element holds nested <row> elements.
func decodeValue(dec *xml.Decoder) (any, error) {
	var (
		text strings.Builder
		rows []dialect.Row
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, unexpectedEOF(err)
		}
		switch tok := tok.(type) {
		case xml.CharData:
			text.Write(tok)
		case xml.StartElement:
			r, err := decodeRow(dec)
			if err != nil {
				return nil, err
			}
			rows = append(rows, r)
		case xml.EndElement:
			if rows != nil {
				return rows, nil
			}
			return text.String(), nil
		}
	}
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

var escapedName = regexp.MustCompile(`_x([0-9A-Fa-f]{4})_`)

// decodeName reverses the _xHHHH_ escaping SQL Server applies to column
// aliases that are not valid XML names.
func decodeName(name string) string {
	if !strings.Contains(name, "_x") {
		return name
	}
	return escapedName.ReplaceAllStringFunc(name, func(m string) string {
		n, err := strconv.ParseUint(m[2:6], 16, 32)
		if err != nil {
			return m
		}
		return string(rune(n))
	})
}
