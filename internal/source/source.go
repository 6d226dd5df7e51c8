// Package source feeds snapshots into the session from outside the HTTP
// API: a PostgreSQL table polled on an interval, and Kafka change
// notifications that either carry a snapshot or ask for a re-read.
package source

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dataset"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/resilience"
)

// Loader produces a complete snapshot.
type Loader interface {
	Load(ctx context.Context) (*dataset.Snapshot, error)
}

// Sink accepts snapshots; *analytics.Session is the production Sink.
type Sink interface {
	Load(ctx context.Context, snap *dataset.Snapshot) (analytics.Status, error)
	Status() analytics.Status
}

// Poller loads from a Loader at startup and then every interval, handing the
// snapshot to the sink only when its fingerprint changed.
type Poller struct {
	loader   Loader
	sink     Sink
	interval time.Duration
	retry    resilience.RetryConfig
	logger   *slog.Logger
}

func NewPoller(loader Loader, sink Sink, interval time.Duration) *Poller {
	return &Poller{
		loader:   loader,
		sink:     sink,
		interval: interval,
		retry:    resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, Jitter: 0.1},
		logger:   logger.WithComponent("source-poller"),
	}
}

// Run performs the initial load, retrying transient failures, then polls
// until ctx is cancelled. A zero interval disables polling.
func (p *Poller) Run(ctx context.Context) error {
	err := resilience.Retry(ctx, "initial snapshot load", p.retry, func(ctx context.Context) error {
		err := p.Refresh(ctx)
		if errors.Is(err, apperrors.ErrInvalidInput) {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		return err
	}
	if p.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.Info("snapshot polling started", "interval", p.interval)
	for {
		select {
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("periodic snapshot load failed", "error", err)
			}
		case <-ctx.Done():
			p.logger.Info("snapshot polling stopped")
			return nil
		}
	}
}

// Refresh loads once and forwards the snapshot if it differs from the one
// the sink holds.
func (p *Poller) Refresh(ctx context.Context) error {
	snap, err := p.loader.Load(ctx)
	if err != nil {
		return err
	}
	if p.sink.Status().SnapshotID == snap.ID() {
		p.logger.Debug("snapshot unchanged", "snapshot_id", snap.ID())
		return nil
	}
	_, err = p.sink.Load(ctx, snap)
	if analytics.IsSuperseded(err) {
		return nil
	}
	return err
}
