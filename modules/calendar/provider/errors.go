package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// UpstreamError is a failed provider call. Status is 0 for transport
// failures and timeouts.
type UpstreamError struct {
	Provider   Name
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Provider))
	b.WriteString("]")
	if e.Status > 0 {
		b.WriteString(" ")
		b.WriteString(strconv.Itoa(e.Status))
	}
	if e.Message != "" {
		b.WriteString(" ")
		b.WriteString(e.Message)
	}
	if e.Provider == Microsoft && e.RetryAfter > 0 {
		fmt.Fprintf(&b, " retry-after=%ds", int(e.RetryAfter/time.Second))
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// transportError wraps a failure that never produced an HTTP response.
func transportError(name Name, err error) *UpstreamError {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return &UpstreamError{Provider: name, Message: msg, Err: err}
}

var throttleWords = []string{"rate", "quota", "limit", "usage"}

// IsThrottled reports whether err is a rate-limit signal and returns the
// retry-after hint when the upstream supplied one.
func IsThrottled(err error) (bool, time.Duration) {
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return false, 0
	}
	switch {
	case ue.Status == http.StatusTooManyRequests:
		return true, ue.RetryAfter
	case ue.Provider == Google && ue.Status == http.StatusForbidden:
		// Google answers 403 for both auth and quota problems; only the
		// message text tells them apart.
		text := strings.ToLower(ue.Message)
		for _, w := range throttleWords {
			if strings.Contains(text, w) {
				return true, ue.RetryAfter
			}
		}
	}
	return false, 0
}

// IsPermissionMissing reports scope or consent errors that only a reconnect
// with the right grants can fix.
func IsPermissionMissing(err error) bool {
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Status != http.StatusForbidden {
		return false
	}
	if throttled, _ := IsThrottled(err); throttled {
		return false
	}
	switch ue.Provider {
	case Google:
		text := strings.ToLower(ue.Message + " " + ue.Code)
		return strings.Contains(text, "insufficient") || strings.Contains(text, "scope")
	case Microsoft:
		return ue.Code == "ErrorAccessDenied" || ue.Code == "Authorization_RequestDenied"
	}
	return false
}

// ReconnectMessage is shown on an account whose refresh token no longer works.
func ReconnectMessage(name Name) string {
	if name == Microsoft {
		return "Reconnect required. Your organization may be blocking access to Microsoft calendars; ask an admin to approve the app."
	}
	return "Reconnect required."
}

// UserMessage renders err for the account's lastError column.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return err.Error()
	}
	if IsPermissionMissing(err) {
		if ue.Provider == Microsoft {
			return "Calendar permission missing. Reconnect your Microsoft account and approve calendar access."
		}
		return "Calendar permission missing. Reconnect your Google account and allow calendar access."
	}
	if ue.Provider == Google {
		if ue.Message != "" {
			return ue.Message
		}
		if ue.Status > 0 {
			return http.StatusText(ue.Status)
		}
	}
	return ue.Error()
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}
