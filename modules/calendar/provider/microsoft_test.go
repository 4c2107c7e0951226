package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMicrosoftTestAdapter(t *testing.T, handler http.HandlerFunc) Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMicrosoftAdapter(MicrosoftConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		Tenant:       "common",
		HTTPClient:   srv.Client(),
		GraphBaseURL: srv.URL + "/v1.0",
		TokenURL:     srv.URL + "/token",
	})
}

func TestMicrosoftAdapter_ListEvents(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	var prefer, auth, start, top string
	adapter := newMicrosoftTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.0/me/calendarView", r.URL.Path)
		prefer = r.Header.Get("Prefer")
		auth = r.Header.Get("Authorization")
		start = r.URL.Query().Get("startDateTime")
		top = r.URL.Query().Get("$top")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":[
			{"id":"m1","subject":"Sync","start":{"dateTime":"2025-03-10T12:05:00.0000000","timeZone":"UTC"},"end":{"dateTime":"2025-03-10T12:35:00.0000000","timeZone":"UTC"},"webLink":"https://outlook.office365.com/owa/?itemid=m1","onlineMeeting":{"joinUrl":"https://teams.microsoft.com/l/meetup-join/m1"}},
			{"id":"m2","subject":"Holiday","isAllDay":true,"start":{"dateTime":"2025-03-11T00:00:00.0000000","timeZone":"UTC"},"end":{"dateTime":"2025-03-12T00:00:00.0000000","timeZone":"UTC"}},
			{"id":"m3","subject":"Gone","isCancelled":true,"start":{"dateTime":"2025-03-10T13:00:00.0000000","timeZone":"UTC"}},
			{"id":"m4","subject":"Legacy","start":{"dateTime":"2025-03-10T16:00:00","timeZone":"UTC"},"onlineMeetingUrl":"https://example.webex.com/meet/x"}
		]}`))
	})

	events, err := adapter.ListEvents(context.Background(), "ms-token", NewTimeWindow(now), 10)
	require.NoError(t, err)

	assert.Equal(t, `outlook.timezone="UTC"`, prefer)
	assert.Equal(t, "Bearer ms-token", auth)
	assert.Equal(t, "2025-03-10T11:50:00Z", start)
	assert.Equal(t, "10", top)

	require.Len(t, events, 3)
	assert.Equal(t, time.Date(2025, 3, 10, 12, 5, 0, 0, time.UTC), events[0].Start)
	assert.Equal(t, "https://teams.microsoft.com/l/meetup-join/m1", events[0].JoinURL)
	assert.Equal(t, "https://outlook.office365.com/owa/?itemid=m1", events[0].OpenURL)

	assert.True(t, events[1].IsAllDay)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), events[1].Start)

	assert.Equal(t, "https://example.webex.com/meet/x", events[2].JoinURL)
}

func TestMicrosoftAdapter_ListEvents_Throttled(t *testing.T) {
	adapter := newMicrosoftTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"ApplicationThrottled","message":"Application is over its MailboxConcurrency limit."}}`))
	})

	_, err := adapter.ListEvents(context.Background(), "tok", NewTimeWindow(time.Now()), 10)
	require.Error(t, err)
	assert.Equal(t, "[microsoft] 429 Application is over its MailboxConcurrency limit. retry-after=12s", err.Error())

	throttled, hint := IsThrottled(err)
	assert.True(t, throttled)
	assert.Equal(t, 12*time.Second, hint)
	assert.Equal(t, err.Error(), UserMessage(err))
}

func TestMicrosoftAdapter_ListEvents_Forbidden(t *testing.T) {
	adapter := newMicrosoftTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"ErrorAccessDenied","message":"Access is denied. Check credentials and try again. Rate"}}`))
	})

	_, err := adapter.ListEvents(context.Background(), "tok", NewTimeWindow(time.Now()), 10)
	require.Error(t, err)

	throttled, _ := IsThrottled(err)
	assert.False(t, throttled, "403 is never throttling for microsoft")
	assert.True(t, IsPermissionMissing(err))
	assert.Contains(t, UserMessage(err), "Reconnect your Microsoft account")
}

func TestMicrosoftAdapter_ListEvents_Timeout(t *testing.T) {
	adapter := newMicrosoftTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := adapter.ListEvents(ctx, "tok", NewTimeWindow(time.Now()), 10)
	require.Error(t, err)

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 0, ue.Status)
	throttled, _ := IsThrottled(err)
	assert.False(t, throttled)
}

func TestMicrosoftAdapter_RefreshToken_Rotates(t *testing.T) {
	adapter := newMicrosoftTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ms-new","refresh_token":"ms-refresh-2","token_type":"Bearer","expires_in":3599}`))
	})

	tok, err := adapter.RefreshToken(context.Background(), "ms-refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "ms-new", tok.AccessToken)
	assert.Equal(t, "ms-refresh-2", tok.RefreshToken)
}
