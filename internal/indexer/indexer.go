// Package indexer builds the category index for a snapshot, cooperatively
// so that large scans never hold the processor for more than one chunk.
package indexer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/coop"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/metrics"
)

// DefaultChunk is the number of rows scanned between suspensions.
const DefaultChunk = 8000

type Indexer struct {
	sched   coop.Scheduler
	chunk   int
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns an Indexer. A nil sched suspends nowhere; m may be nil.
func New(sched coop.Scheduler, chunk int, m *metrics.Metrics) *Indexer {
	if sched == nil {
		sched = coop.Inline{}
	}
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	return &Indexer{
		sched:   sched,
		chunk:   chunk,
		metrics: m,
		logger:  logger.WithComponent("indexer"),
	}
}

// Build scans the category column of view. Rows with an empty or placeholder
// label are left out of every category. If tok is superseded while the scan
// is suspended, Build returns coop.ErrSuperseded and no index.
func (ix *Indexer) Build(ctx context.Context, tok coop.Token, view *dataset.View) (*index.CategoryIndex, error) {
	start := time.Now()
	if view.Category == nil {
		ix.observe("ok", start)
		return index.Empty(), nil
	}

	b := index.NewBuilder(view.Len())
	labels := view.Category
	err := coop.Chunked(ctx, ix.sched, tok, len(labels), ix.chunk, func(i int) {
		b.Add(dataset.NormalizeLabel(labels[i]), i)
	})
	if err != nil {
		if errors.Is(err, coop.ErrSuperseded) {
			ix.logger.Debug("index build superseded", "generation", tok.Value())
			ix.observe("superseded", start)
		}
		return nil, err
	}

	idx := b.Finish()
	ix.observe("ok", start)
	ix.logger.Info("category index built",
		"rows", idx.Rows(),
		"indexed", idx.Indexed(),
		"categories", idx.Len(),
		"duration", time.Since(start),
	)
	return idx, nil
}

func (ix *Indexer) observe(status string, start time.Time) {
	if ix.metrics == nil {
		return
	}
	ix.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		ix.metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
	}
}
