// Package calendar maps instants onto week, month and year buckets: the
// bucket start, a sortable key, bucket arithmetic and display labels.
//
// All computations are done in UTC. Weeks start on Monday and week keys use
// ISO 8601 year/week numbering, so 2021-01-01 belongs to 2020-W53.
package calendar

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/errors"
)

// Granularity is the size of a bucket.
type Granularity string

const (
	Week  Granularity = "week"
	Month Granularity = "month"
	Year  Granularity = "year"
)

// All lists the supported granularities, finest first.
var All = []Granularity{Week, Month, Year}

var (
	monthKeyRe = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	yearKeyRe  = regexp.MustCompile(`^(\d{4})$`)
	weekKeyRe  = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)
)

// Parse returns the granularity named by s. Anything other than "week",
// "month" or "year" yields Month.
func Parse(s string) Granularity {
	g := Granularity(strings.ToLower(strings.TrimSpace(s)))
	if g.Valid() {
		return g
	}
	return Month
}

// Valid reports whether g is one of the supported granularities.
func (g Granularity) Valid() bool {
	switch g {
	case Week, Month, Year:
		return true
	}
	return false
}

func (g Granularity) String() string { return string(g) }

// Start returns the first instant of the bucket containing t.
func (g Granularity) Start(t time.Time) time.Time {
	t = t.UTC()
	y, m, d := t.Date()
	switch g {
	case Year:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	case Week:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	}
}

// Key returns the canonical key of the bucket starting at start:
// YYYY-Www, YYYY-MM or YYYY.
func (g Granularity) Key(start time.Time) string {
	start = start.UTC()
	switch g {
	case Year:
		return fmt.Sprintf("%04d", start.Year())
	case Week:
		y, w := start.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	default:
		return fmt.Sprintf("%04d-%02d", start.Year(), int(start.Month()))
	}
}

// Add moves a bucket start by delta buckets.
func (g Granularity) Add(start time.Time, delta int) time.Time {
	start = start.UTC()
	switch g {
	case Year:
		return time.Date(start.Year()+delta, time.January, 1, 0, 0, 0, 0, time.UTC)
	case Week:
		return start.AddDate(0, 0, 7*delta)
	default:
		idx := start.Year()*12 + int(start.Month()) - 1 + delta
		y := floorDiv(idx, 12)
		return time.Date(y, time.Month(idx-y*12+1), 1, 0, 0, 0, 0, time.UTC)
	}
}

// ParseKey returns the bucket start named by key.
func (g Granularity) ParseKey(key string) (time.Time, error) {
	switch g {
	case Year:
		if m := yearKeyRe.FindStringSubmatch(key); m != nil {
			y, _ := strconv.Atoi(m[1])
			return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), nil
		}
	case Week:
		if m := weekKeyRe.FindStringSubmatch(key); m != nil {
			y, _ := strconv.Atoi(m[1])
			w, _ := strconv.Atoi(m[2])
			start := isoWeekStart(y, w)
			if w >= 1 && g.Key(start) == key {
				return start, nil
			}
		}
	default:
		if m := monthKeyRe.FindStringSubmatch(key); m != nil {
			y, _ := strconv.Atoi(m[1])
			mo, _ := strconv.Atoi(m[2])
			if mo >= 1 && mo <= 12 {
				return time.Date(y, time.Month(mo), 1, 0, 0, 0, 0, time.UTC), nil
			}
		}
	}
	return time.Time{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%q is not a %s key", key, g)
}

// isoWeekStart returns the Monday of ISO week w of ISO year y. Week 1 is the
// week containing January 4th.
func isoWeekStart(y, w int) time.Time {
	jan4 := time.Date(y, time.January, 4, 0, 0, 0, 0, time.UTC)
	return Week.Start(jan4).AddDate(0, 0, 7*(w-1))
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
