package provider

import (
	"context"
	"time"

	"calendar-aggregator/core/constants"
)

// Name identifies a calendar vendor.
type Name string

const (
	Google    Name = "google"
	Microsoft Name = "microsoft"
)

func (n Name) Valid() bool {
	return n == Google || n == Microsoft
}

// TimeWindow is the [Start, End) range events are listed for.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow starts slightly in the past so meetings that just began can
// still be joined.
func NewTimeWindow(now time.Time) TimeWindow {
	return TimeWindow{
		Start: now.Add(-constants.CalendarWindowLookBack).UTC(),
		End:   now.Add(constants.CalendarWindowLookAhead).UTC(),
	}
}

// Event is the provider-agnostic event shape. All-day events start at
// midnight UTC.
type Event struct {
	ID       string
	Title    string
	Start    time.Time
	End      *time.Time
	IsAllDay bool
	JoinURL  string
	OpenURL  string
}

// Token is the result of a refresh. RefreshToken is empty when the provider
// did not rotate it.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Adapter performs exactly one upstream round trip per call and never retries.
type Adapter interface {
	Name() Name
	ListEvents(ctx context.Context, accessToken string, window TimeWindow, limit int) ([]Event, error)
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)
}
