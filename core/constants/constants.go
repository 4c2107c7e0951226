package constants

import "time"

// Timeouts
const (
	DefaultTimeout         = 10 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultProviderTimeout = 8 * time.Second
	ShutdownTimeout        = 10 * time.Second
)

// Database
const (
	DatabaseSSLMode         = "disable"
	DatabaseMaxOpenConns    = 25
	DatabaseMaxIdleConns    = 10
	DatabaseConnMaxLifetime = 30 // minutes
)

// Context keys
const (
	ContextTokenData = "token_data"
	ContextRequestID = "request_id"
)

const HeaderRequestID = "X-Request-ID"

// Redis keys
const (
	RedisKeyCalendarEventsCache = "calendar:events:cache:"
)

// Calendar aggregation
const (
	CalendarEventsCacheTTL       = 120 * time.Second
	CalendarEventsCacheMaxJitter = 30 * time.Second
	CalendarRedisRetention       = 24 * time.Hour
	CalendarTokenRefreshSkew     = 60 * time.Second
	CalendarLastErrorMaxLength   = 500
	CalendarPerAccountLimit      = 10
	CalendarMergedLimit          = 25
	CalendarWindowLookBack       = 10 * time.Minute
	CalendarWindowLookAhead      = 48 * time.Hour
)

// Provider backoff
const (
	BackoffBaseDelay       = 30 * time.Second
	BackoffMaxDelay        = 15 * time.Minute
	BackoffMaxFailureCount = 8
	BackoffMinJitter       = 250 * time.Millisecond
	BackoffJitterSpan      = 3 * time.Second
)

// Task queue
const (
	TaskCalendarWarmEvents = "calendar:events:warm"
	QueueCalendar          = "calendar"
)
