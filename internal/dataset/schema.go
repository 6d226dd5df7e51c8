package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/errors"
)

// Field is a logical field the engine reads.
type Field string

const (
	FieldCategory Field = "category"
	FieldDate     Field = "date"
	FieldRowID    Field = "rowId"
	FieldArchive  Field = "archive"
)

// RowID identifies a row in the host document. It is the raw identifier
// cell, passed back to the host untouched except that integral numbers are
// canonicalized to int64 so ids compare equal whatever their decoded form.
type RowID = any

// Schema lists, per logical field, the column names tried in order; the
// first one present in the snapshot wins.
type Schema struct {
	Category []string
	Date     []string
	RowID    []string
	Archive  []string
}

// DefaultSchema returns the aliases used by the reception table.
func DefaultSchema() Schema {
	return Schema{
		Category: []string{"NomProjetString", "NomProjet"},
		Date:     []string{"Recu", "RecuString"},
		RowID:    []string{"id", "ID", "Id"},
		Archive:  []string{"Archive"},
	}
}

// View is a snapshot with every logical field resolved once. Category, Date
// and RowID are required; Archive is nil when the snapshot has no such column.
type View struct {
	Snapshot *Snapshot
	Columns  map[Field]string
	Category []any
	Date     []any
	RowID    []any
	Archive  []any
	Missing  []Field
}

// Resolve maps the schema onto snap. Missing required fields are recorded
// on the view rather than returned, so the snapshot can still be accepted
// and the condition reported to whoever asks for a series.
func (s Schema) Resolve(snap *Snapshot) *View {
	v := &View{Snapshot: snap, Columns: make(map[Field]string, 4)}
	lookup := func(f Field, aliases []string, required bool) []any {
		for _, name := range aliases {
			if col, ok := snap.Column(name); ok {
				v.Columns[f] = name
				return col
			}
		}
		if required {
			v.Missing = append(v.Missing, f)
		}
		return nil
	}
	v.Category = lookup(FieldCategory, s.Category, true)
	v.Date = lookup(FieldDate, s.Date, true)
	v.RowID = lookup(FieldRowID, s.RowID, true)
	v.Archive = lookup(FieldArchive, s.Archive, false)
	return v
}

// Len returns the row count of the underlying snapshot.
func (v *View) Len() int { return v.Snapshot.Len() }

// Err reports the missing-columns condition, nil when every required field
// resolved.
func (v *View) Err() error {
	if len(v.Missing) == 0 {
		return nil
	}
	names := make([]string, len(v.Missing))
	for i, f := range v.Missing {
		names[i] = string(f)
	}
	return apperrors.MissingColumns(names)
}

// MissingNames lists the unresolved fields as strings.
func (v *View) MissingNames() []string {
	out := make([]string, len(v.Missing))
	for i, f := range v.Missing {
		out[i] = string(f)
	}
	return out
}

// Archived reports whether row i carries a true archive flag.
func (v *View) Archived(i int) bool {
	if v.Archive == nil {
		return false
	}
	return IsTruthy(v.Archive[i])
}

// ID returns the identifier of row i.
func (v *View) ID(i int) RowID {
	return NormalizeRowID(v.RowID[i])
}

// NormalizeLabel trims a category cell; empty cells and the "-" placeholder
// normalize to "".
func NormalizeLabel(raw any) string {
	var s string
	switch x := raw.(type) {
	case nil:
		return ""
	case string:
		s = x
	case json.Number:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	s = strings.TrimSpace(s)
	if s == "-" {
		return ""
	}
	return s
}

// IsTruthy accepts true, "true" and the number 1.
func IsTruthy(raw any) bool {
	switch x := raw.(type) {
	case bool:
		return x
	case string:
		return x == "true"
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 1
	case float64:
		return x == 1
	case int:
		return x == 1
	case int64:
		return x == 1
	}
	return false
}

// NormalizeRowID canonicalizes an identifier cell. Integral numbers in any
// encoding become int64; every other value, nil included, is kept as is.
func NormalizeRowID(raw any) RowID {
	switch x := raw.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1<<63 {
			return int64(x)
		}
		return x
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	}
	return raw
}
