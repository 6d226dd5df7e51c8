// Package seriescache is the Redis tier of the series cache. Entries are
// namespaced by snapshot fingerprint, so processes that loaded the same
// snapshot share computed series, and every new snapshot flushes the tier.
package seriescache

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/calendar"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/logger"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/redis"
)

const keyPrefix = "series:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Cache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

var _ analytics.SharedCache = (*Cache)(nil)

func New(store Store, ttl time.Duration) *Cache {
	return &Cache{
		store:  store,
		ttl:    ttl,
		logger: logger.WithComponent("series-cache"),
	}
}

func (c *Cache) Get(ctx context.Context, snapshotID, category string, g calendar.Granularity) (*analytics.Series, bool) {
	key := buildKey(snapshotID, category, g)
	data, err := c.store.GetBytes(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var s analytics.Series
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&s); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	for _, ids := range s.RowIDs {
		for i, id := range ids {
			ids[i] = dataset.NormalizeRowID(id)
		}
	}
	if s.Category != category || s.Granularity != g {
		c.logger.Warn("cache entry does not match its key", "key", key)
		return nil, false
	}
	c.logger.Debug("cache hit", "key", key)
	return &s, true
}

func (c *Cache) Put(ctx context.Context, snapshotID string, s *analytics.Series) {
	key := buildKey(snapshotID, s.Category, s.Granularity)
	data, err := json.Marshal(s)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.SetBytes(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Invalidate drops every series of every snapshot.
func (c *Cache) Invalidate(ctx context.Context) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		c.logger.Error("cache invalidation failed", "error", err)
		return
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
}

// buildKey hashes the category so arbitrary labels cannot collide with the
// key separators or glob characters.
func buildKey(snapshotID, category string, g calendar.Granularity) string {
	return keyPrefix + snapshotID + ":" + string(g) + ":" + strconv.FormatUint(xxhash.Sum64String(category), 16)
}
