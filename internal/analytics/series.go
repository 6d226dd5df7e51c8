package analytics

import (
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/calendar"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dataset"
)

// Series is the bucketed histogram of one category at one granularity.
// Keys, Labels and Counts are parallel; Keys is contiguous under the
// granularity's successor; Total is the sum of Counts. RowIDs holds, for
// every non-empty visible bucket, the identifiers of the rows counted in it.
type Series struct {
	Category    string                     `json:"category"`
	Granularity calendar.Granularity       `json:"granularity"`
	Keys        []string                   `json:"keys"`
	Labels      []string                   `json:"labels"`
	Counts      []int                      `json:"counts"`
	RowIDs      map[string][]dataset.RowID `json:"rowIds"`
	Total       int                        `json:"total"`
}

func emptySeries(category string, g calendar.Granularity) *Series {
	return &Series{
		Category:    category,
		Granularity: g,
		Keys:        []string{},
		Labels:      []string{},
		Counts:      []int{},
		RowIDs:      map[string][]dataset.RowID{},
	}
}

// Len returns the number of visible buckets.
func (s *Series) Len() int { return len(s.Keys) }

// Empty reports whether no row contributed to the series.
func (s *Series) Empty() bool { return len(s.Keys) == 0 }

// Rows returns the identifiers counted in the bucket key, in row order. The
// result is a copy and is empty, never nil, for unknown or zero buckets.
func (s *Series) Rows(key string) []dataset.RowID {
	ids := s.RowIDs[key]
	out := make([]dataset.RowID, len(ids))
	copy(out, ids)
	return out
}
