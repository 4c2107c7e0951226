package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"calendar-aggregator/core/cache"
	"calendar-aggregator/modules/calendar/entity"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}, ttl: map[string]time.Duration{}}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttl[key] = ttl
	return nil
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl[key] = ttl
	return nil
}

func (m *memoryCache) Close() error { return nil }

func TestRedisEventsCacheStore_RoundTrip(t *testing.T) {
	mc := newMemoryCache()
	store := NewRedisEventsCacheStore(mc, time.Hour)
	ctx := context.Background()
	userID, workflowID := uuid.New(), uuid.New()

	row, err := store.Get(ctx, userID, workflowID)
	require.NoError(t, err)
	assert.Nil(t, row)

	updated := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	in := &entity.EventsCache{
		UserID:            userID,
		WorkflowID:        workflowID,
		EnabledAccountIDs: []string{"a", "b"},
		Events:            types.JSONText(`[{"id":"e1"}]`),
		ProviderCooldowns: types.JSONText(`{"google":"2025-03-10T12:01:00Z"}`),
		ProviderBackoff:   types.JSONText(`{"google":1}`),
		UpdatedAt:         updated,
	}
	require.NoError(t, store.Upsert(ctx, in))

	key := eventsCacheKey(userID, workflowID)
	assert.Equal(t, time.Hour, mc.ttl[key])

	out, err := store.Get(ctx, userID, workflowID)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, []string{"a", "b"}, []string(out.EnabledAccountIDs))
	assert.JSONEq(t, `[{"id":"e1"}]`, string(out.Events))
	assert.JSONEq(t, `{"google":1}`, string(out.ProviderBackoff))
	assert.True(t, updated.Equal(out.UpdatedAt))
}

func TestRedisEventsCacheStore_CorruptValueIsMiss(t *testing.T) {
	mc := newMemoryCache()
	store := NewRedisEventsCacheStore(mc, 0)
	userID, workflowID := uuid.New(), uuid.New()
	mc.data[eventsCacheKey(userID, workflowID)] = []byte("{not json")

	row, err := store.Get(context.Background(), userID, workflowID)
	require.NoError(t, err)
	assert.Nil(t, row)
}
