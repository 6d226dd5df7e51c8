package source

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/kafka"
)

// SnapshotEvent is a host change notification. It either embeds the new
// snapshot, in the columns or rows shape, or only asks for a re-read.
type SnapshotEvent struct {
	Source   string          `json:"source"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
	Reload   bool            `json:"reload,omitempty"`
}

// HandleSnapshots returns a consumer handler feeding sink. reload may be nil
// when no table source is configured; reload requests are then ignored.
// Undecodable messages are logged and committed so they do not block the
// partition.
func HandleSnapshots(sink Sink, reload *Poller) kafka.MessageHandler {
	logger := slog.Default().With("component", "snapshot-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SnapshotEvent](value)
		if err != nil {
			logger.Error("failed to decode snapshot event", "error", err, "key", string(key))
			return nil
		}

		switch {
		case len(event.Snapshot) > 0:
			snap, err := dataset.Decode(event.Snapshot)
			if err != nil {
				logger.Error("snapshot event carries an invalid snapshot", "source", event.Source, "error", err)
				return nil
			}
			if _, err := sink.Load(ctx, snap); err != nil && !analytics.IsSuperseded(err) {
				return err
			}
		case event.Reload && reload != nil:
			if err := reload.Refresh(ctx); err != nil {
				return err
			}
		default:
			logger.Debug("snapshot event ignored", "source", event.Source, "reload", event.Reload)
		}
		return nil
	}
}
