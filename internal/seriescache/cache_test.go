package seriescache

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/calendar"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/redis"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) GetBytes(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *memStore) SetBytes(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func sampleSeries() *analytics.Series {
	return &analytics.Series{
		Category:    "Proj:1*",
		Granularity: calendar.Month,
		Keys:        []string{"2024-01", "2024-02"},
		Labels:      []string{"janv. 2024", "févr. 2024"},
		Counts:      []int{3, 0},
		RowIDs:      map[string][]dataset.RowID{"2024-01": {int64(4), "R-9", nil}},
		Total:       3,
	}
}

func exercise(t *testing.T, c *Cache) {
	t.Helper()
	ctx := context.Background()
	want := sampleSeries()

	if _, ok := c.Get(ctx, "snap1", want.Category, calendar.Month); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	c.Put(ctx, "snap1", want)
	got, ok := c.Get(ctx, "snap1", want.Category, calendar.Month)
	if !ok || !reflect.DeepEqual(got, want) {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	if _, ok := c.Get(ctx, "snap2", want.Category, calendar.Month); ok {
		t.Error("entries must be namespaced by snapshot")
	}
	if _, ok := c.Get(ctx, "snap1", want.Category, calendar.Week); ok {
		t.Error("entries must be keyed by granularity")
	}
	c.Invalidate(ctx)
	if _, ok := c.Get(ctx, "snap1", want.Category, calendar.Month); ok {
		t.Error("Invalidate left an entry behind")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	exercise(t, New(newMemStore(), time.Minute))
}

func TestCacheErrorsAreMisses(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute)
	store.err = errors.New("connection refused")
	c.Put(context.Background(), "snap", sampleSeries())
	if _, ok := c.Get(context.Background(), "snap", "Proj:1*", calendar.Month); ok {
		t.Fatal("a failing store must read as a miss")
	}
}

func TestCacheAgainstRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := pkgredis.NewClient(context.Background(), config.RedisConfig{Addr: addr, DB: 15, PoolSize: 2})
	if err != nil {
		t.Skipf("skipping: redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	exercise(t, New(client, time.Minute))
}
