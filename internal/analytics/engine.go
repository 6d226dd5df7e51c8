package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/calendar"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/coop"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dates"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/metrics"
)

const (
	DefaultScanChunk  = 12000
	DefaultMaxBuckets = 2400

	// padBuckets is how far the observed range is widened on each side
	// before the walk, and how much is trimmed back afterwards.
	padBuckets = 2
)

// SharedCache is an optional second cache tier, shared between processes
// and namespaced by snapshot id. Implementations handle their own transport
// errors; a failed Get is a miss and a failed Put is dropped.
type SharedCache interface {
	Get(ctx context.Context, snapshotID, category string, g calendar.Granularity) (*Series, bool)
	Put(ctx context.Context, snapshotID string, s *Series)
	Invalidate(ctx context.Context)
}

// Data is everything derived from one snapshot. It is never modified once
// published, so scans read it without locks.
type Data struct {
	Snapshot *dataset.Snapshot
	View     *dataset.View
	Index    *index.CategoryIndex
}

type EngineConfig struct {
	ScanChunk  int
	MaxBuckets int
	Scheduler  coop.Scheduler
	Labeler    calendar.Labeler
	Metrics    *metrics.Metrics
	Shared     SharedCache
}

type cacheKey struct {
	category    string
	granularity calendar.Granularity
}

// Engine computes and memoizes series over the current Data. Each cache miss
// starts a new compute generation; a computation whose generation has been
// overtaken, by a newer request or by Reset, abandons at its next suspension
// point and never writes to the cache.
type Engine struct {
	cfg    EngineConfig
	gen    coop.Generation
	mu     sync.Mutex
	data   *Data
	cache  map[cacheKey]*Series
	scans  atomic.Int64
	logger *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.ScanChunk <= 0 {
		cfg.ScanChunk = DefaultScanChunk
	}
	if cfg.MaxBuckets <= 0 {
		cfg.MaxBuckets = DefaultMaxBuckets
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = coop.Gosched{}
	}
	if cfg.Labeler.Locale.Name == "" {
		cfg.Labeler.Locale = calendar.French
	}
	if cfg.Labeler.Now == nil {
		cfg.Labeler.Now = time.Now
	}
	return &Engine{
		cfg:    cfg,
		cache:  make(map[cacheKey]*Series),
		logger: logger.WithComponent("aggregation-engine"),
	}
}

// Compute returns the series for (category, granularity) over the current
// Data. An empty category yields an empty series without touching the index.
// Missing columns yield an ErrMissingColumns error, no Data an ErrNotReady
// error, and a computation overtaken by a newer one coop.ErrSuperseded.
func (e *Engine) Compute(ctx context.Context, category string, g calendar.Granularity) (*Series, error) {
	if !g.Valid() {
		g = calendar.Month
	}
	key := cacheKey{category: category, granularity: g}

	// The token and the data it covers are taken together so that a Reset
	// cannot slip between them.
	e.mu.Lock()
	if s, ok := e.cache[key]; ok {
		e.mu.Unlock()
		e.cacheHit("local")
		e.result("cached")
		return s, nil
	}
	tok := e.gen.Next()
	data := e.data
	e.mu.Unlock()
	e.cacheMiss("local")

	if category == "" {
		e.result("empty")
		return emptySeries("", g), nil
	}
	if data == nil {
		return nil, notReady()
	}
	if err := data.View.Err(); err != nil {
		e.result("missing_columns")
		e.logger.Warn("series refused, snapshot is missing columns",
			"category", category,
			"missing", data.View.MissingNames(),
		)
		return nil, err
	}

	if e.cfg.Shared != nil {
		if s, ok := e.cfg.Shared.Get(ctx, data.Snapshot.ID(), category, g); ok {
			e.cacheHit("shared")
			if !e.storeIf(tok, key, s) {
				e.result("superseded")
				return nil, coop.ErrSuperseded
			}
			e.result("cached")
			return s, nil
		}
		e.cacheMiss("shared")
	}

	start := time.Now()
	s, err := e.scan(ctx, tok, data, category, g)
	if err == nil && !e.storeIf(tok, key, s) {
		err = coop.ErrSuperseded
	}
	if err != nil {
		if errors.Is(err, coop.ErrSuperseded) {
			e.result("superseded")
			e.logger.Debug("computation superseded",
				"category", category,
				"granularity", g,
				"generation", tok.Value(),
			)
			return nil, err
		}
		e.result("error")
		return nil, err
	}

	if e.cfg.Shared != nil {
		e.cfg.Shared.Put(ctx, data.Snapshot.ID(), s)
	}
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.SeriesComputeDuration.WithLabelValues(string(g)).Observe(time.Since(start).Seconds())
	}
	e.result("computed")
	e.logger.Debug("series computed",
		"category", category,
		"granularity", g,
		"buckets", s.Len(),
		"total", s.Total,
		"duration", time.Since(start),
	)
	return s, nil
}

// Cached returns the memoized series without computing.
func (e *Engine) Cached(category string, g calendar.Granularity) (*Series, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.cache[cacheKey{category: category, granularity: g}]
	return s, ok
}

// Reset makes data current, clears the cache in full and supersedes every
// computation in flight.
func (e *Engine) Reset(data *Data) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen.Next()
	e.data = data
	e.cache = make(map[cacheKey]*Series)
}

// Data returns the Data series are computed over, or nil before the first
// Reset.
func (e *Engine) Data() *Data {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data
}

// CacheLen returns the number of memoized series.
func (e *Engine) CacheLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

// ScanCount returns how many row scans have been started.
func (e *Engine) ScanCount() int64 { return e.scans.Load() }

// Generation returns the current compute generation.
func (e *Engine) Generation() uint64 { return e.gen.Current() }

func (e *Engine) storeIf(tok coop.Token, key cacheKey, s *Series) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !tok.Valid() {
		return false
	}
	e.cache[key] = s
	return true
}

func (e *Engine) scan(ctx context.Context, tok coop.Token, data *Data, category string, g calendar.Granularity) (*Series, error) {
	e.scans.Add(1)
	view := data.View
	positions := data.Index.Lookup(category)

	counts := make(map[string]int)
	rows := make(map[string][]dataset.RowID)
	var lo, hi time.Time
	seen := false

	err := coop.Chunked(ctx, e.cfg.Scheduler, tok, len(positions), e.cfg.ScanChunk, func(k int) {
		i := positions[k]
		if view.Archived(i) {
			return
		}
		t, ok := dates.Normalize(view.Date[i])
		if !ok || t.Year() == 1900 {
			return
		}
		start := g.Start(t)
		key := g.Key(start)
		counts[key]++
		rows[key] = append(rows[key], view.ID(i))
		if !seen || start.Before(lo) {
			lo = start
		}
		if !seen || start.After(hi) {
			hi = start
		}
		seen = true
	})
	if err != nil {
		return nil, err
	}
	if !seen {
		return emptySeries(category, g), nil
	}
	return e.walk(ctx, tok, category, g, lo, hi, counts, rows)
}

// walk lays out every bucket from lo-pad to hi+pad, bounded by MaxBuckets,
// then trims the padding that was walked back off.
func (e *Engine) walk(ctx context.Context, tok coop.Token, category string, g calendar.Granularity,
	lo, hi time.Time, counts map[string]int, rows map[string][]dataset.RowID) (*Series, error) {
	first := g.Add(lo, -padBuckets)
	last := g.Add(hi, padBuckets)

	var starts []time.Time
	capped := false
	p := coop.NewPacer(e.cfg.Scheduler, tok, e.cfg.ScanChunk)
	for cur := first; !cur.After(last); cur = g.Add(cur, 1) {
		if len(starts) == e.cfg.MaxBuckets {
			e.logger.Warn("bucket walk capped",
				"category", category,
				"granularity", g,
				"max_buckets", e.cfg.MaxBuckets,
			)
			capped = true
			break
		}
		starts = append(starts, cur)
		if err := p.Step(ctx); err != nil {
			return nil, err
		}
	}
	if err := tok.Err(); err != nil {
		return nil, err
	}
	if capped {
		// The walk stopped before the trailing padding, so only the leading
		// padding is dropped.
		starts = starts[min(padBuckets, len(starts)):]
	} else {
		starts = trimPadding(starts)
	}

	s := emptySeries(category, g)
	s.Keys = make([]string, len(starts))
	s.Labels = make([]string, len(starts))
	s.Counts = make([]int, len(starts))
	for i, start := range starts {
		key := g.Key(start)
		s.Keys[i] = key
		s.Labels[i] = e.cfg.Labeler.Label(g, start)
		s.Counts[i] = counts[key]
		s.Total += counts[key]
		if ids, ok := rows[key]; ok {
			s.RowIDs[key] = ids
		}
	}
	return s, nil
}

// trimPadding drops padBuckets from each end when the range is long enough
// to keep at least one bucket; shorter ranges are kept whole.
func trimPadding[T any](buckets []T) []T {
	if len(buckets) <= 2*padBuckets {
		return buckets
	}
	return buckets[padBuckets : len(buckets)-padBuckets]
}

func (e *Engine) result(r string) {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.SeriesRequestsTotal.WithLabelValues(r).Inc()
	}
}

func (e *Engine) cacheHit(tier string) {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.SeriesCacheHits.WithLabelValues(tier).Inc()
	}
}

func (e *Engine) cacheMiss(tier string) {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.SeriesCacheMisses.WithLabelValues(tier).Inc()
	}
}
