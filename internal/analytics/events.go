package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dataset"
)

type EventType string

const (
	EventSelect EventType = "select"
	EventClear  EventType = "clear"
)

// SelectionEvent is what the selection sink publishes: the rows behind a
// clicked bucket, or a clear when RowIDs is empty.
type SelectionEvent struct {
	Type        EventType       `json:"type"`
	SnapshotID  string          `json:"snapshot_id,omitempty"`
	Category    string          `json:"category,omitempty"`
	Granularity string          `json:"granularity,omitempty"`
	Key         string          `json:"key,omitempty"`
	RowIDs      []dataset.RowID `json:"row_ids"`
	Timestamp   time.Time       `json:"timestamp"`
	RequestID   string          `json:"request_id,omitempty"`
}

// NewSelectionEvent builds a select event, or a clear event for no rows.
func NewSelectionEvent(ids []dataset.RowID) SelectionEvent {
	ev := SelectionEvent{Type: EventSelect, RowIDs: ids, Timestamp: time.Now().UTC()}
	if len(ids) == 0 {
		ev.Type = EventClear
		ev.RowIDs = []dataset.RowID{}
	}
	return ev
}
