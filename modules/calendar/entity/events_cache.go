package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// EventsCache is the persisted aggregation result for one (user, workflow).
// Events, ProviderCooldowns and ProviderBackoff are JSON documents.
type EventsCache struct {
	UserID            uuid.UUID      `db:"user_id"`
	WorkflowID        uuid.UUID      `db:"workflow_id"`
	EnabledAccountIDs pq.StringArray `db:"enabled_account_ids"`
	Events            types.JSONText `db:"events"`
	ProviderCooldowns types.JSONText `db:"provider_cooldowns"`
	ProviderBackoff   types.JSONText `db:"provider_backoff"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (EventsCache) TableName() string {
	return "workflow_calendar_events_cache"
}
