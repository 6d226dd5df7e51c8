// Package dates turns the heterogeneous date encodings a host document hands
// over into a single UTC instant.
package dates

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Converter is implemented by values that know how to produce an instant
// themselves.
type Converter interface {
	Time() time.Time
}

// Encoded kinds used by the host for [kind, epochSeconds, ...] cells.
const (
	KindDate     = "d"
	KindDateTime = "D"
)

const sentinelPrefix = "1900-01-01"

var dayMonthYear = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)

// literalLayouts are tried in order for strings that are not dd/mm/yyyy.
// Literals without a zone are read as UTC.
var literalLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006-01",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.RFC822Z,
	time.RFC822,
	time.ANSIC,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// Normalize returns the instant encoded by raw, or false when raw carries no
// usable date: unsupported shapes, placeholders, unparseable strings and the
// 1900-01-01 "no value" sentinel.
func Normalize(raw any) (time.Time, bool) {
	var t time.Time
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		t = *v
	case Converter:
		t = v.Time()
	case []any:
		var ok bool
		if t, ok = decodeEncoded(v); !ok {
			return time.Time{}, false
		}
	case string:
		var ok bool
		if t, ok = parseString(v); !ok {
			return time.Time{}, false
		}
	default:
		return time.Time{}, false
	}
	if t.IsZero() {
		return time.Time{}, false
	}
	t = t.UTC()
	if IsSentinel(t) {
		return time.Time{}, false
	}
	return t, true
}

// IsSentinel reports whether t is the source system's 1900-01-01 placeholder.
func IsSentinel(t time.Time) bool {
	y, m, d := t.UTC().Date()
	return y == 1900 && m == time.January && d == 1
}

// IsPlaceholder reports whether s is one of the markers the host uses for an
// empty cell.
func IsPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == "-" || strings.EqualFold(s, "unset")
}

func decodeEncoded(v []any) (time.Time, bool) {
	if len(v) < 2 {
		return time.Time{}, false
	}
	kind, ok := v[0].(string)
	if !ok || (kind != KindDate && kind != KindDateTime) {
		return time.Time{}, false
	}
	secs, ok := seconds(v[1])
	if !ok {
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), true
}

func seconds(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if IsPlaceholder(s) || strings.HasPrefix(s, sentinelPrefix) {
		return time.Time{}, false
	}
	if m := dayMonthYear.FindStringSubmatch(s); m != nil {
		dd, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		yyyy, _ := strconv.Atoi(m[3])
		return time.Date(yyyy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC), true
	}
	for _, layout := range literalLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
