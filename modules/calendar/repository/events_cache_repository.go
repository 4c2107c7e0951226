package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"calendar-aggregator/core/cache"
	"calendar-aggregator/core/constants"
	"calendar-aggregator/core/database"
	"calendar-aggregator/core/logger"
	"calendar-aggregator/modules/calendar/entity"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// EventsCacheStore persists one row per (user, workflow). Upserts are
// last-write-wins.
type EventsCacheStore interface {
	// Get returns nil, nil when no row exists.
	Get(ctx context.Context, userID, workflowID uuid.UUID) (*entity.EventsCache, error)
	Upsert(ctx context.Context, row *entity.EventsCache) error
}

type postgresEventsCacheStore struct {
	db database.IDatabase
}

func NewPostgresEventsCacheStore(db database.IDatabase) EventsCacheStore {
	return &postgresEventsCacheStore{db: db}
}

func (s *postgresEventsCacheStore) Get(ctx context.Context, userID, workflowID uuid.UUID) (*entity.EventsCache, error) {
	query := `
		SELECT user_id, workflow_id, enabled_account_ids, events, provider_cooldowns, provider_backoff, updated_at
		FROM workflow_calendar_events_cache
		WHERE user_id = $1 AND workflow_id = $2
	`
	var row entity.EventsCache
	if err := s.db.GetContext(ctx, &row, query, userID, workflowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (s *postgresEventsCacheStore) Upsert(ctx context.Context, row *entity.EventsCache) error {
	query := `
		INSERT INTO workflow_calendar_events_cache
			(user_id, workflow_id, enabled_account_ids, events, provider_cooldowns, provider_backoff, updated_at)
		VALUES
			(:user_id, :workflow_id, :enabled_account_ids, :events, :provider_cooldowns, :provider_backoff, :updated_at)
		ON CONFLICT (user_id, workflow_id)
		DO UPDATE SET
			enabled_account_ids = EXCLUDED.enabled_account_ids,
			events = EXCLUDED.events,
			provider_cooldowns = EXCLUDED.provider_cooldowns,
			provider_backoff = EXCLUDED.provider_backoff,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.NamedExecContext(ctx, query, row)
	return err
}

type redisEventsCacheStore struct {
	cache     cache.Cache
	retention time.Duration
}

// NewRedisEventsCacheStore keeps rows in redis. retention only bounds
// storage; freshness is decided by the caller from UpdatedAt.
func NewRedisEventsCacheStore(c cache.Cache, retention time.Duration) EventsCacheStore {
	if retention <= 0 {
		retention = constants.CalendarRedisRetention
	}
	return &redisEventsCacheStore{cache: c, retention: retention}
}

func eventsCacheKey(userID, workflowID uuid.UUID) string {
	return constants.RedisKeyCalendarEventsCache + userID.String() + ":" + workflowID.String()
}

func (s *redisEventsCacheStore) Get(ctx context.Context, userID, workflowID uuid.UUID) (*entity.EventsCache, error) {
	raw, err := s.cache.Get(ctx, eventsCacheKey(userID, workflowID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var row entity.EventsCache
	if err := json.Unmarshal(raw, &row); err != nil {
		// A corrupt value is a miss; the next write replaces it.
		logger.Warn("RedisEventsCacheStore:Get:Decode:Error", "error", err, "user_id", userID, "workflow_id", workflowID)
		return nil, nil
	}
	return &row, nil
}

func (s *redisEventsCacheStore) Upsert(ctx context.Context, row *entity.EventsCache) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, eventsCacheKey(row.UserID, row.WorkflowID), raw, s.retention)
}
