package analytics

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/resilience"
)

// SelectionSink reflects a row selection back to the host. Implementations
// may fail; the session swallows every error.
type SelectionSink interface {
	Push(ctx context.Context, ev SelectionEvent) error
}

// Publisher is the subset of the Kafka producer the collector needs.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector is a SelectionSink that queues events and publishes them from a
// background goroutine. Push never blocks: a full buffer drops the event.
type Collector struct {
	publisher Publisher
	breaker   *resilience.CircuitBreaker
	metrics   *metrics.Metrics
	eventCh   chan SelectionEvent
	logger    *slog.Logger
	done      chan struct{}
}

func NewCollector(publisher Publisher, bufferSize int, m *metrics.Metrics) *Collector {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Collector{
		publisher: publisher,
		breaker:   resilience.NewCircuitBreaker("selection-sink", resilience.BreakerConfig{}),
		metrics:   m,
		eventCh:   make(chan SelectionEvent, bufferSize),
		logger:    logger.WithComponent("selection-collector"),
		done:      make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case ev, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, ev)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("selection collector started", "buffer_size", cap(c.eventCh))
}

func (c *Collector) Push(_ context.Context, ev SelectionEvent) error {
	select {
	case c.eventCh <- ev:
	default:
		c.count("dropped")
		c.logger.Warn("selection event dropped (buffer full)")
	}
	return nil
}

// Close stops accepting events and waits for the queue to drain.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, ev SelectionEvent) {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.publisher.Publish(ctx, kafka.Event{Key: ev.SnapshotID, Value: ev})
	})
	if err != nil {
		c.count("failed")
		c.logger.Debug("selection push failed", "type", ev.Type, "error", err)
		return
	}
	if ev.Type == EventClear {
		c.count("cleared")
		return
	}
	c.count("sent")
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case ev, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), ev)
		default:
			return
		}
	}
}

func (c *Collector) count(status string) {
	if c.metrics != nil {
		c.metrics.SelectionPushesTotal.WithLabelValues(status).Inc()
	}
}
