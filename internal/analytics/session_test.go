package analytics

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/calendar"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/coop"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dataset"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/health"
)

type recordingSink struct {
	mu     sync.Mutex
	events []SelectionEvent
	err    error
}

func (r *recordingSink) Push(_ context.Context, ev SelectionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) last() SelectionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func newTestSession(sink SelectionSink, sched coop.Scheduler) *Session {
	return NewSession(SessionConfig{
		ScanChunk: 2,
		Scheduler: sched,
		Sink:      sink,
		Now:       fixedNow,
	})
}

func TestSessionSelectBeforeLoad(t *testing.T) {
	s := newTestSession(nil, coop.Inline{})
	_, err := s.Select(context.Background(), "Proj1", calendar.Month)
	if !errors.Is(err, apperrors.ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if _, err := s.Load(context.Background(), snapshotOf(t, exampleRows())); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Engine().Cached("Proj1", calendar.Month); !ok {
		t.Error("load should recompute the remembered selection")
	}
}

func TestSessionLoadInvalidatesCache(t *testing.T) {
	s := newTestSession(nil, coop.Inline{})
	ctx := context.Background()
	if _, err := s.Load(ctx, snapshotOf(t, exampleRows())); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Select(ctx, "Proj2", calendar.Year); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Select(ctx, "Proj1", calendar.Month); err != nil {
		t.Fatal(err)
	}
	if s.Engine().CacheLen() != 2 {
		t.Fatalf("CacheLen = %d", s.Engine().CacheLen())
	}

	rows := append(exampleRows(), row{10, "Proj1", "2025-02-01", false})
	if _, err := s.Load(ctx, snapshotOf(t, rows)); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Engine().Cached("Proj2", calendar.Year); ok {
		t.Error("cache must be cleared in full on a new snapshot")
	}
	series, ok := s.Engine().Cached("Proj1", calendar.Month)
	if !ok || series.Total != 6 {
		t.Fatalf("current selection not recomputed against the new snapshot: %+v", series)
	}
}

func TestSessionLoadDuringSelectCachesOnlyNewSnapshot(t *testing.T) {
	var s *Session
	var fresh []row
	armed := false
	var loadErr error
	sched := coop.SchedulerFunc(func(ctx context.Context) error {
		if armed {
			armed = false
			_, loadErr = s.Load(ctx, snapshotOf(t, fresh))
		}
		return nil
	})
	s = newTestSession(nil, sched)
	ctx := context.Background()
	if _, err := s.Load(ctx, snapshotOf(t, exampleRows())); err != nil {
		t.Fatal(err)
	}
	fresh = append(exampleRows(), row{10, "Proj1", "2025-02-01", false})

	armed = true
	_, err := s.Select(ctx, "Proj1", calendar.Month)
	if loadErr != nil {
		t.Fatalf("Load: %v", loadErr)
	}
	if !errors.Is(err, coop.ErrSuperseded) {
		t.Fatalf("select over the replaced snapshot: err = %v, want superseded", err)
	}
	series, ok := s.Engine().Cached("Proj1", calendar.Month)
	if !ok || series.Total != 6 {
		t.Fatalf("cache holds %+v, want the new snapshot's series", series)
	}
	got, err := s.Select(ctx, "Proj1", calendar.Month)
	if err != nil || got.Total != 6 {
		t.Fatalf("Select after load: %+v, %v", got, err)
	}
}

func TestSessionSelectNormalizesCategory(t *testing.T) {
	s := newTestSession(nil, coop.Inline{})
	ctx := context.Background()
	if _, err := s.Load(ctx, snapshotOf(t, exampleRows())); err != nil {
		t.Fatal(err)
	}
	series, err := s.Select(ctx, "  Proj1 ", calendar.Month)
	if err != nil {
		t.Fatal(err)
	}
	if series.Category != "Proj1" || series.Total != 5 {
		t.Errorf("series = %s/%d, want Proj1/5", series.Category, series.Total)
	}
	if st := s.Status(); st.Category != "Proj1" {
		t.Errorf("current selection = %q", st.Category)
	}

	series, err = s.Select(ctx, "-", calendar.Month)
	if err != nil || !series.Empty() {
		t.Errorf("placeholder category: %+v, %v", series, err)
	}
}

func TestSessionNewestRequestWins(t *testing.T) {
	var s *Session
	armed := false
	var nested *Series
	var nestedErr error
	sched := coop.SchedulerFunc(func(ctx context.Context) error {
		if armed {
			armed = false
			nested, nestedErr = s.Select(ctx, "Proj2", calendar.Month)
		}
		return nil
	})
	s = newTestSession(nil, sched)
	ctx := context.Background()
	if _, err := s.Load(ctx, snapshotOf(t, exampleRows())); err != nil {
		t.Fatal(err)
	}

	armed = true
	_, err := s.Select(ctx, "Proj1", calendar.Month)
	if !errors.Is(err, coop.ErrSuperseded) || !IsSuperseded(err) {
		t.Fatalf("err = %v, want superseded", err)
	}
	if apperrors.HTTPStatusCode(err) != 409 {
		t.Errorf("status = %d, want 409", apperrors.HTTPStatusCode(err))
	}
	if nestedErr != nil || nested == nil || nested.Category != "Proj2" {
		t.Fatalf("nested = %+v, %v", nested, nestedErr)
	}
	if _, ok := s.Engine().Cached("Proj1", calendar.Month); ok {
		t.Error("abandoned computation must not reach the cache")
	}
	if st := s.Status(); st.Category != "Proj2" {
		t.Errorf("current selection = %q, want Proj2", st.Category)
	}
}

func TestSessionDrill(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSession(sink, coop.Inline{})
	ctx := context.Background()
	if _, err := s.Load(ctx, snapshotOf(t, exampleRows())); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Select(ctx, "Proj1", calendar.Month); err != nil {
		t.Fatal(err)
	}

	ids, err := s.Drill(ctx, "2024-03")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []dataset.RowID{int64(3), int64(4)}) {
		t.Errorf("ids = %v", ids)
	}
	ev := sink.last()
	if ev.Type != EventSelect || ev.Key != "2024-03" || ev.Category != "Proj1" || !reflect.DeepEqual(ev.RowIDs, ids) {
		t.Errorf("event = %+v", ev)
	}

	ids, err = s.Drill(ctx, "2024-02")
	if err != nil || len(ids) != 0 {
		t.Fatalf("empty bucket: %v, %v", ids, err)
	}
	if sink.last().Type != EventClear {
		t.Errorf("empty bucket should clear the host selection, got %s", sink.last().Type)
	}

	if _, err := s.Drill(ctx, "2024-W03"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("malformed key err = %v", err)
	}
}

func TestSessionSinkFailuresAreSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("host unavailable")}
	s := newTestSession(sink, coop.Inline{})
	ctx := context.Background()
	if _, err := s.Load(ctx, snapshotOf(t, exampleRows())); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Select(ctx, "Proj1", calendar.Month); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Drill(ctx, "2024-01"); err != nil {
		t.Fatalf("sink failure surfaced: %v", err)
	}
}

func TestSessionEmptySelectionClears(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSession(sink, coop.Inline{})
	series, err := s.Select(context.Background(), "", calendar.Week)
	if err != nil || !series.Empty() {
		t.Fatalf("series=%+v err=%v", series, err)
	}
	if sink.last().Type != EventClear {
		t.Errorf("event = %+v", sink.last())
	}
}

func TestSessionCategoriesCollated(t *testing.T) {
	rows := []row{
		{1, "Zeta", "2024-01-01", nil},
		{2, "Élan", "2024-01-01", nil},
		{3, "abc", "2024-01-01", nil},
		{4, "Bravo", "2024-01-01", nil},
		{5, " Bravo ", "2024-01-01", nil},
		{6, "-", "2024-01-01", nil},
	}
	s := newTestSession(nil, coop.Inline{})
	if _, err := s.Categories(context.Background()); !errors.Is(err, apperrors.ErrNotReady) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.Load(context.Background(), snapshotOf(t, rows)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Categories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"abc", "Bravo", "Élan", "Zeta"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Categories = %v, want %v", got, want)
	}
}

func TestSessionStatusAndHealth(t *testing.T) {
	s := newTestSession(nil, coop.Inline{})
	ctx := context.Background()
	if h := s.HealthCheck(ctx); h.Status != health.StatusDegraded {
		t.Errorf("before load: %+v", h)
	}

	snap, err := dataset.FromColumns(map[string][]any{"NomProjet": {"P"}, "Id": {1}})
	if err != nil {
		t.Fatal(err)
	}
	st, err := s.Load(ctx, snap)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Loaded || st.Rows != 1 || st.Categories != 1 || !reflect.DeepEqual(st.MissingColumns, []string{"date"}) {
		t.Errorf("status = %+v", st)
	}
	if st.Columns["rowId"] != "Id" {
		t.Errorf("columns = %v", st.Columns)
	}
	if h := s.HealthCheck(ctx); h.Status != health.StatusDegraded {
		t.Errorf("missing columns: %+v", h)
	}
	if _, err := s.Select(ctx, "P", calendar.Month); !errors.Is(err, apperrors.ErrMissingColumns) {
		t.Errorf("err = %v", err)
	}

	if _, err := s.Load(ctx, snapshotOf(t, exampleRows())); err != nil {
		t.Fatal(err)
	}
	if h := s.HealthCheck(ctx); h.Status != health.StatusUp {
		t.Errorf("complete snapshot: %+v", h)
	}
}
