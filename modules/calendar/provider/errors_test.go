package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsThrottled(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"google 429", &UpstreamError{Provider: Google, Status: 429}, true},
		{"microsoft 429", &UpstreamError{Provider: Microsoft, Status: 429}, true},
		{"google 403 rate", &UpstreamError{Provider: Google, Status: 403, Message: "User Rate Limit Exceeded"}, true},
		{"google 403 quota upper", &UpstreamError{Provider: Google, Status: 403, Message: "QUOTA exceeded"}, true},
		{"google 403 usage", &UpstreamError{Provider: Google, Status: 403, Message: "Daily usage cap"}, true},
		{"google 403 auth", &UpstreamError{Provider: Google, Status: 403, Message: "The caller does not have permission"}, false},
		{"google 403 reason code ignored", &UpstreamError{Provider: Google, Status: 403, Code: "rateLimitExceeded", Message: "Forbidden"}, false},
		{"microsoft 403 quota text", &UpstreamError{Provider: Microsoft, Status: 403, Message: "quota"}, false},
		{"google 500", &UpstreamError{Provider: Google, Status: 500, Message: "rate"}, false},
		{"wrapped 429", fmt.Errorf("fetch: %w", &UpstreamError{Provider: Google, Status: 429}), true},
		{"plain", errors.New("429 rate limit"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := IsThrottled(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpstreamError_Format(t *testing.T) {
	g := &UpstreamError{Provider: Google, Status: 429, Message: "Rate Limit Exceeded", RetryAfter: 30 * time.Second}
	assert.Equal(t, "[google] 429 Rate Limit Exceeded", g.Error())
	assert.Equal(t, "Rate Limit Exceeded", UserMessage(g))

	m := &UpstreamError{Provider: Microsoft, Status: 503, Message: "Service Unavailable"}
	assert.Equal(t, "[microsoft] 503 Service Unavailable", m.Error())

	timeout := transportError(Microsoft, fmt.Errorf("do: %w", context.DeadlineExceeded))
	assert.Equal(t, "[microsoft] request timed out", timeout.Error())
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 7*time.Second, parseRetryAfter("7", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
}

func TestReconnectMessage(t *testing.T) {
	assert.Equal(t, "Reconnect required.", ReconnectMessage(Google))
	assert.Contains(t, ReconnectMessage(Microsoft), "organization")
}

func TestFindJoinURL(t *testing.T) {
	assert.Equal(t, "https://meet.google.com/xyz", findJoinURL("", "Join: https://meet.google.com/xyz."))
	assert.Equal(t, "", findJoinURL("see https://example.com/agenda"))
	assert.Equal(t, "https://zoom.us/j/1", findJoinURL("<a href=\"https://zoom.us/j/1\">zoom</a>"))
}

func TestNewTimeWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	w := NewTimeWindow(now)
	assert.Equal(t, now.Add(-10*time.Minute), w.Start)
	assert.Equal(t, now.Add(48*time.Hour), w.End)
}
