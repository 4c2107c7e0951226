package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"calendar-aggregator/core/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const googleDateLayout = "2006-01-02"

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	// HTTPClient carries the per-call timeout. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// APIEndpoint and TokenURL override Google's hosts in tests.
	APIEndpoint string
	TokenURL    string
}

type googleAdapter struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	endpoint   string
	now        func() time.Time
}

func NewGoogleAdapter(cfg GoogleConfig) Adapter {
	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &googleAdapter{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{calendar.CalendarReadonlyScope},
		},
		httpClient: client,
		endpoint:   cfg.APIEndpoint,
		now:        time.Now,
	}
}

func (a *googleAdapter) Name() Name {
	return Google
}

func (a *googleAdapter) ListEvents(ctx context.Context, accessToken string, window TimeWindow, limit int) ([]Event, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, transportError(Google, err)
	}

	resp, err := svc.Events.List("primary").
		TimeMin(window.Start.Format(time.RFC3339)).
		TimeMax(window.End.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, a.wrapError(err)
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev, ok := convertGoogleEvent(item)
		if !ok {
			continue
		}
		events = append(events, ev)
		if len(events) >= limit {
			break
		}
	}
	return events, nil
}

func (a *googleAdapter) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	tok, err := a.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		logger.Warn("GoogleAdapter:RefreshToken:Error", "error", err)
		return nil, refreshError(Google, err)
	}
	return toToken(tok, refreshToken, a.now()), nil
}

func (a *googleAdapter) wrapError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return transportError(Google, err)
	}
	ue := &UpstreamError{
		Provider: Google,
		Status:   gerr.Code,
		Message:  strings.TrimPrefix(gerr.Message, "googleapi: "),
		Err:      err,
	}
	if len(gerr.Errors) > 0 {
		ue.Code = gerr.Errors[0].Reason
	}
	if gerr.Header != nil {
		ue.RetryAfter = parseRetryAfter(gerr.Header.Get("Retry-After"), a.now())
	}
	return ue
}

func convertGoogleEvent(item *calendar.Event) (Event, bool) {
	if item == nil || item.Status == "cancelled" || item.Start == nil {
		return Event{}, false
	}

	start, allDay, ok := parseGoogleTime(item.Start)
	if !ok {
		return Event{}, false
	}

	ev := Event{
		ID:       item.Id,
		Title:    item.Summary,
		Start:    start,
		IsAllDay: allDay,
		OpenURL:  item.HtmlLink,
		JoinURL:  googleJoinURL(item),
	}
	if ev.Title == "" {
		ev.Title = "(No title)"
	}
	if item.End != nil {
		if end, _, ok := parseGoogleTime(item.End); ok {
			ev.End = &end
		}
	}
	return ev, true
}

func parseGoogleTime(dt *calendar.EventDateTime) (time.Time, bool, bool) {
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, false, false
		}
		return t.UTC(), false, true
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation(googleDateLayout, dt.Date, time.UTC)
		if err != nil {
			return time.Time{}, false, false
		}
		return t, true, true
	}
	return time.Time{}, false, false
}

func googleJoinURL(item *calendar.Event) string {
	if item.HangoutLink != "" {
		return item.HangoutLink
	}
	if item.ConferenceData != nil {
		for _, ep := range item.ConferenceData.EntryPoints {
			if ep != nil && ep.EntryPointType == "video" && ep.Uri != "" {
				return ep.Uri
			}
		}
	}
	return findJoinURL(item.Description, item.Location)
}

// refreshError keeps the token endpoint's HTTP status so callers can tell
// throttling from a revoked grant.
func refreshError(name Name, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		msg := re.ErrorDescription
		if msg == "" {
			msg = re.ErrorCode
		}
		if msg == "" {
			msg = http.StatusText(re.Response.StatusCode)
		}
		return &UpstreamError{
			Provider:   name,
			Status:     re.Response.StatusCode,
			Code:       re.ErrorCode,
			Message:    msg,
			RetryAfter: parseRetryAfter(re.Response.Header.Get("Retry-After"), time.Now()),
			Err:        err,
		}
	}
	return transportError(name, err)
}

func toToken(tok *oauth2.Token, previousRefresh string, now time.Time) *Token {
	out := &Token{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.Expiry,
	}
	if tok.RefreshToken != "" && tok.RefreshToken != previousRefresh {
		out.RefreshToken = tok.RefreshToken
	}
	if out.ExpiresAt.IsZero() {
		out.ExpiresAt = now.Add(time.Hour)
	}
	return out
}
