// Package dataset holds the immutable columnar snapshot handed over by the
// host document and resolves its logical fields to concrete columns.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/errors"
)

// Snapshot is a columnar view of the dataset: column name to values, every
// column having the same length. A Snapshot is never modified after it is
// built; a change in the host produces a new Snapshot.
type Snapshot struct {
	id      string
	columns map[string][]any
	rows    int
}

// FromColumns builds a snapshot from the columns shape. All columns must
// have the same length.
func FromColumns(cols map[string][]any) (*Snapshot, error) {
	rows := -1
	names := sortedNames(cols)
	for _, name := range names {
		n := len(cols[name])
		if rows == -1 {
			rows = n
			continue
		}
		if n != rows {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
				"column %q has %d values, expected %d", name, n, rows)
		}
	}
	if rows == -1 {
		rows = 0
	}
	s := &Snapshot{columns: make(map[string][]any, len(cols)), rows: rows}
	for name, values := range cols {
		s.columns[name] = values
	}
	s.id = fingerprint(s)
	return s, nil
}

// FromRows transposes the rows shape into columns. A field missing from a
// row is stored as nil in that row's slot.
func FromRows(rows []map[string]any) *Snapshot {
	cols := make(map[string][]any)
	for i, row := range rows {
		for name, v := range row {
			col, ok := cols[name]
			if !ok {
				col = make([]any, len(rows))
				cols[name] = col
			}
			col[i] = v
		}
	}
	s := &Snapshot{columns: cols, rows: len(rows)}
	s.id = fingerprint(s)
	return s
}

// Decode parses a JSON document in either shape: an object of column arrays
// or an array of row objects. Numbers are kept as json.Number.
func Decode(data []byte) (*Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "empty snapshot document")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	switch trimmed[0] {
	case '{':
		var cols map[string][]any
		if err := dec.Decode(&cols); err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "decoding columns: %v", err)
		}
		return FromColumns(cols)
	case '[':
		var rows []map[string]any
		if err := dec.Decode(&rows); err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "decoding rows: %v", err)
		}
		return FromRows(rows), nil
	default:
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"snapshot must be a JSON object of columns or an array of rows")
	}
}

// ID is a content fingerprint of the snapshot.
func (s *Snapshot) ID() string { return s.id }

// Len returns the row count.
func (s *Snapshot) Len() int { return s.rows }

// Column returns the values of the named column.
func (s *Snapshot) Column(name string) ([]any, bool) {
	col, ok := s.columns[name]
	return col, ok
}

// Names returns the column names in sorted order.
func (s *Snapshot) Names() []string {
	return sortedNames(s.columns)
}

func sortedNames(cols map[string][]any) []string {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fingerprint hashes column names and values in a fixed order so equal
// content yields the same id regardless of the input shape.
func fingerprint(s *Snapshot) string {
	d := xxhash.New()
	var buf []byte
	for _, name := range sortedNames(s.columns) {
		_, _ = d.WriteString(name)
		_, _ = d.Write([]byte{0})
		for _, v := range s.columns[name] {
			buf = appendValue(buf[:0], v)
			_, _ = d.Write(buf)
			_, _ = d.Write([]byte{0x1f})
		}
		_, _ = d.Write([]byte{0x1e})
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

func appendValue(buf []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return append(buf, "null"...)
	case string:
		return strconv.AppendQuote(buf, x)
	case json.Number:
		return append(buf, x...)
	case bool:
		return strconv.AppendBool(buf, x)
	case float64:
		return strconv.AppendFloat(buf, x, 'g', -1, 64)
	case int64:
		return strconv.AppendInt(buf, x, 10)
	case int:
		return strconv.AppendInt(buf, int64(x), 10)
	default:
		return fmt.Appendf(buf, "%v", x)
	}
}
