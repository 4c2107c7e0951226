package service

import (
	"context"
	"hash/fnv"
	"slices"
	"time"

	"calendar-aggregator/core/constants"
	"calendar-aggregator/core/logger"
	"calendar-aggregator/modules/calendar/dto"
	"calendar-aggregator/modules/calendar/entity"
	"calendar-aggregator/modules/calendar/repository"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// CacheEntry is the decoded events cache row.
type CacheEntry struct {
	EnabledAccountIDs []string
	Events            []dto.EventResponse
	UpdatedAt         time.Time
	Backoff           BackoffState
}

type EventCache struct {
	store repository.EventsCacheStore
}

func NewEventCache(store repository.EventsCacheStore) *EventCache {
	return &EventCache{store: store}
}

// Read returns nil, nil on a miss. Rows that fail to decode are misses.
func (c *EventCache) Read(ctx context.Context, userID, workflowID uuid.UUID) (*CacheEntry, error) {
	row, err := c.store.Get(ctx, userID, workflowID)
	if err != nil || row == nil {
		return nil, err
	}

	entry := &CacheEntry{
		EnabledAccountIDs: []string(row.EnabledAccountIDs),
		UpdatedAt:         row.UpdatedAt,
	}
	if err := decodeJSONColumn(row.Events, &entry.Events); err != nil {
		logger.Warn("EventCache:Read:DecodeEvents:Error", "error", err, "user_id", userID, "workflow_id", workflowID)
		return nil, nil
	}

	var cooldowns map[string]time.Time
	var counts map[string]int
	if err := decodeJSONColumn(row.ProviderCooldowns, &cooldowns); err != nil {
		logger.Warn("EventCache:Read:DecodeCooldowns:Error", "error", err, "user_id", userID, "workflow_id", workflowID)
	}
	if err := decodeJSONColumn(row.ProviderBackoff, &counts); err != nil {
		logger.Warn("EventCache:Read:DecodeBackoff:Error", "error", err, "user_id", userID, "workflow_id", workflowID)
	}
	entry.Backoff = decodeBackoff(cooldowns, counts)
	if entry.Events == nil {
		entry.Events = []dto.EventResponse{}
	}
	return entry, nil
}

// Write never fails the caller; errors are logged.
func (c *EventCache) Write(ctx context.Context, userID, workflowID uuid.UUID, entry *CacheEntry) {
	cooldowns, counts := entry.Backoff.encode()

	events, err := json.Marshal(entry.Events)
	if err != nil {
		logger.Error("EventCache:Write:EncodeEvents:Error", "error", err)
		return
	}
	cooldownsRaw, _ := json.Marshal(cooldowns)
	countsRaw, _ := json.Marshal(counts)

	ids := slices.Clone(entry.EnabledAccountIDs)
	slices.Sort(ids)

	row := &entity.EventsCache{
		UserID:            userID,
		WorkflowID:        workflowID,
		EnabledAccountIDs: pq.StringArray(ids),
		Events:            types.JSONText(events),
		ProviderCooldowns: types.JSONText(cooldownsRaw),
		ProviderBackoff:   types.JSONText(countsRaw),
		UpdatedAt:         entry.UpdatedAt.UTC(),
	}
	if err := c.store.Upsert(ctx, row); err != nil {
		logger.Error("EventCache:Write:Upsert:Error", "error", err, "user_id", userID, "workflow_id", workflowID)
	}
}

// IsValid reports whether entry is younger than ttl and was computed for
// exactly enabledIDs, in any order.
func IsValid(entry *CacheEntry, enabledIDs []string, ttl time.Duration, now time.Time) bool {
	if entry == nil {
		return false
	}
	if now.Sub(entry.UpdatedAt) > ttl {
		return false
	}
	return sortedEqual(entry.EnabledAccountIDs, enabledIDs)
}

// CacheTTL is the base TTL plus a stable per-(user, workflow) offset so
// entries of different users do not expire together.
func CacheTTL(userID, workflowID uuid.UUID) time.Duration {
	h := fnv.New32a()
	_, _ = h.Write(userID[:])
	_, _ = h.Write(workflowID[:])
	jitterMs := h.Sum32() % uint32(constants.CalendarEventsCacheMaxJitter/time.Millisecond+1)
	return constants.CalendarEventsCacheTTL + time.Duration(jitterMs)*time.Millisecond
}

func sortedEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

func decodeJSONColumn(raw types.JSONText, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
