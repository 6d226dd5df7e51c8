// Package analytics turns a dataset snapshot into per-category time series.
// The Session loads snapshots and tracks the current selection; the Engine
// owns the current Data and its series cache, computes series cooperatively
// and abandons work that a newer request or snapshot has overtaken.
package analytics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/calendar"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/coop"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/metrics"
)

type SessionConfig struct {
	Schema      dataset.Schema
	IndexChunk  int
	ScanChunk   int
	MaxBuckets  int
	Granularity calendar.Granularity
	Locale      calendar.Locale
	Scheduler   coop.Scheduler
	Metrics     *metrics.Metrics
	Shared      SharedCache
	Sink        SelectionSink
	Now         func() time.Time
}

// Status describes the session for the presentation layer.
type Status struct {
	Loaded         bool              `json:"loaded"`
	SnapshotID     string            `json:"snapshot_id,omitempty"`
	Rows           int               `json:"rows"`
	Categories     int               `json:"categories"`
	Columns        map[string]string `json:"columns,omitempty"`
	MissingColumns []string          `json:"missing_columns,omitempty"`
	Category       string            `json:"category"`
	Granularity    string            `json:"granularity"`
	Generation     uint64            `json:"generation"`
}

type Session struct {
	cfg     SessionConfig
	indexer *indexer.Indexer
	engine  *Engine
	dataGen coop.Generation
	group   singleflight.Group
	logger  *slog.Logger

	mu          sync.RWMutex
	data        *Data
	categories  []string
	category    string
	granularity calendar.Granularity
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Scheduler == nil {
		cfg.Scheduler = coop.Gosched{}
	}
	if cfg.Locale.Name == "" {
		cfg.Locale = calendar.French
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.Schema.Category) == 0 {
		cfg.Schema = dataset.DefaultSchema()
	}
	if !cfg.Granularity.Valid() {
		cfg.Granularity = calendar.Month
	}
	return &Session{
		cfg:     cfg,
		indexer: indexer.New(cfg.Scheduler, cfg.IndexChunk, cfg.Metrics),
		engine: NewEngine(EngineConfig{
			ScanChunk:  cfg.ScanChunk,
			MaxBuckets: cfg.MaxBuckets,
			Scheduler:  cfg.Scheduler,
			Labeler:    calendar.Labeler{Locale: cfg.Locale, Now: cfg.Now},
			Metrics:    cfg.Metrics,
			Shared:     cfg.Shared,
		}),
		granularity: cfg.Granularity,
		logger:      logger.WithComponent("session"),
	}
}

// Engine exposes the session's engine, mainly for inspection.
func (s *Session) Engine() *Engine { return s.engine }

// Load replaces the current snapshot. The category index is rebuilt, the
// series cache is cleared, and the current selection, if any, is recomputed.
// A load overtaken by a newer one returns coop.ErrSuperseded and publishes
// nothing.
func (s *Session) Load(ctx context.Context, snap *dataset.Snapshot) (Status, error) {
	tok := s.dataGen.Next()
	view := s.cfg.Schema.Resolve(snap)
	idx, err := s.indexer.Build(ctx, tok, view)
	if err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	if !tok.Valid() {
		s.mu.Unlock()
		return Status{}, coop.ErrSuperseded
	}
	s.data = &Data{Snapshot: snap, View: view, Index: idx}
	s.categories = nil
	s.engine.Reset(s.data)
	category, g := s.category, s.granularity
	s.mu.Unlock()

	if s.cfg.Shared != nil {
		s.cfg.Shared.Invalidate(ctx)
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SnapshotRows.Set(float64(snap.Len()))
		s.cfg.Metrics.SnapshotCategories.Set(float64(idx.Len()))
	}
	if len(view.Missing) > 0 {
		s.logger.Warn("snapshot loaded with missing columns", "missing", view.MissingNames())
	}
	s.logger.Info("snapshot loaded",
		"snapshot_id", snap.ID(),
		"rows", snap.Len(),
		"categories", idx.Len(),
		"generation", tok.Value(),
	)

	if category != "" {
		if _, err := s.engine.Compute(ctx, category, g); err != nil {
			s.logger.Debug("recompute of current selection did not complete",
				"category", category,
				"granularity", g,
				"error", err,
			)
		}
	}
	return s.Status(), nil
}

// Select makes (category, g) the current selection and returns its series.
// The category is normalized the way index labels are. An empty category
// clears the host selection and yields an empty series.
func (s *Session) Select(ctx context.Context, category string, g calendar.Granularity) (*Series, error) {
	if !g.Valid() {
		g = s.cfg.Granularity
	}
	category = dataset.NormalizeLabel(category)
	s.mu.Lock()
	s.category, s.granularity = category, g
	s.mu.Unlock()

	if category == "" {
		s.push(ctx, "", NewSelectionEvent(nil))
	}
	return s.engine.Compute(ctx, category, g)
}

// Drill returns the identifiers counted in bucket key of the current
// selection and reflects them to the host selection. An empty result
// clears the host selection.
func (s *Session) Drill(ctx context.Context, key string) ([]dataset.RowID, error) {
	s.mu.RLock()
	data, category, g := s.data, s.category, s.granularity
	s.mu.RUnlock()

	if data == nil {
		return nil, notReady()
	}
	if _, err := g.ParseKey(key); err != nil {
		return nil, err
	}
	if category == "" {
		s.push(ctx, key, NewSelectionEvent(nil))
		return []dataset.RowID{}, nil
	}

	v, err, _ := s.group.Do("drill|"+data.Snapshot.ID()+"|"+category+"|"+string(g)+"|"+key, func() (any, error) {
		series, err := s.engine.Compute(ctx, category, g)
		if err != nil {
			return nil, err
		}
		ids := series.Rows(key)
		s.push(ctx, key, NewSelectionEvent(ids))
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]dataset.RowID), nil
}

// Categories lists the distinct category labels in locale collation order.
func (s *Session) Categories(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	data, cached := s.data, s.categories
	s.mu.RUnlock()
	if data == nil {
		return nil, notReady()
	}
	if cached != nil {
		return cached, nil
	}

	v, err, _ := s.group.Do("categories|"+data.Snapshot.ID(), func() (any, error) {
		labels := data.Index.Categories()
		collate.New(language.Make(s.cfg.Locale.Name)).SortStrings(labels)
		s.mu.Lock()
		if s.data == data {
			s.categories = labels
		}
		s.mu.Unlock()
		return labels, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Status reports what is loaded and selected.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Category:    s.category,
		Granularity: string(s.granularity),
		Generation:  s.dataGen.Current(),
	}
	if s.data == nil {
		return st
	}
	st.Loaded = true
	st.SnapshotID = s.data.Snapshot.ID()
	st.Rows = s.data.Snapshot.Len()
	st.Categories = s.data.Index.Len()
	st.Columns = make(map[string]string, len(s.data.View.Columns))
	for f, name := range s.data.View.Columns {
		st.Columns[string(f)] = name
	}
	st.MissingColumns = s.data.View.MissingNames()
	return st
}

// HealthCheck reports readiness: up once a complete snapshot is loaded,
// degraded while none is loaded or columns are missing.
func (s *Session) HealthCheck(_ context.Context) health.ComponentHealth {
	st := s.Status()
	switch {
	case !st.Loaded:
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "no snapshot loaded"}
	case len(st.MissingColumns) > 0:
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "missing columns"}
	}
	return health.ComponentHealth{Status: health.StatusUp}
}

// push forwards ev to the sink. Failures are logged and dropped.
func (s *Session) push(ctx context.Context, key string, ev SelectionEvent) {
	if s.cfg.Sink == nil {
		return
	}
	s.mu.RLock()
	ev.Category, ev.Granularity, ev.Key = s.category, string(s.granularity), key
	if s.data != nil {
		ev.SnapshotID = s.data.Snapshot.ID()
	}
	s.mu.RUnlock()
	ev.RequestID = logger.RequestID(ctx)
	if err := s.cfg.Sink.Push(ctx, ev); err != nil {
		logger.FromContext(ctx).Debug("selection push failed",
			"component", "session",
			"type", ev.Type,
			"error", err,
		)
	}
}

func notReady() error {
	return apperrors.New(apperrors.ErrNotReady, http.StatusServiceUnavailable, "no snapshot loaded yet")
}

// IsSuperseded reports whether err means a newer request took over.
func IsSuperseded(err error) bool {
	return errors.Is(err, apperrors.ErrSuperseded)
}
