package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"calendar-aggregator/core/logger"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const (
	msGraphBaseURL = "https://graph.microsoft.com/v1.0"
	// Graph returns up to seven fractional digits and no zone when
	// outlook.timezone is set.
	graphTimeFormat = "2006-01-02T15:04:05.9999999"
	maxErrorBody    = 64 << 10
)

type MicrosoftConfig struct {
	ClientID     string
	ClientSecret string
	Tenant       string
	HTTPClient   *http.Client
	// GraphBaseURL and TokenURL override Microsoft's hosts in tests.
	GraphBaseURL string
	TokenURL     string
}

type microsoftAdapter struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	baseURL    string
	now        func() time.Time
}

func NewMicrosoftAdapter(cfg MicrosoftConfig) Adapter {
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}
	endpoint := microsoft.AzureADEndpoint(tenant)
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	baseURL := strings.TrimRight(cfg.GraphBaseURL, "/")
	if baseURL == "" {
		baseURL = msGraphBaseURL
	}
	return &microsoftAdapter{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{"offline_access", "Calendars.Read"},
		},
		httpClient: client,
		baseURL:    baseURL,
		now:        time.Now,
	}
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEvent struct {
	ID               string        `json:"id"`
	Subject          string        `json:"subject"`
	Start            graphDateTime `json:"start"`
	End              graphDateTime `json:"end"`
	IsAllDay         bool          `json:"isAllDay"`
	IsCancelled      bool          `json:"isCancelled"`
	WebLink          string        `json:"webLink"`
	OnlineMeetingURL string        `json:"onlineMeetingUrl"`
	OnlineMeeting    *struct {
		JoinURL string `json:"joinUrl"`
	} `json:"onlineMeeting"`
}

type graphErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *microsoftAdapter) Name() Name {
	return Microsoft
}

func (a *microsoftAdapter) ListEvents(ctx context.Context, accessToken string, window TimeWindow, limit int) ([]Event, error) {
	params := url.Values{}
	params.Set("startDateTime", window.Start.UTC().Format(time.RFC3339))
	params.Set("endDateTime", window.End.UTC().Format(time.RFC3339))
	params.Set("$top", fmt.Sprintf("%d", limit))
	params.Set("$orderby", "start/dateTime")
	params.Set("$select", "id,subject,start,end,isAllDay,isCancelled,webLink,onlineMeeting,onlineMeetingUrl")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/me/calendarView?"+params.Encode(), nil)
	if err != nil {
		return nil, transportError(Microsoft, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, transportError(Microsoft, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.decodeError(resp)
	}

	var result struct {
		Value []graphEvent `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, transportError(Microsoft, fmt.Errorf("decode calendarView: %w", err))
	}

	events := make([]Event, 0, len(result.Value))
	for _, item := range result.Value {
		ev, ok := convertGraphEvent(item)
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

func (a *microsoftAdapter) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	tok, err := a.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		logger.Warn("MicrosoftAdapter:RefreshToken:Error", "error", err)
		return nil, refreshError(Microsoft, err)
	}
	return toToken(tok, refreshToken, a.now()), nil
}

func (a *microsoftAdapter) decodeError(resp *http.Response) error {
	ue := &UpstreamError{
		Provider:   Microsoft,
		Status:     resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), a.now()),
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload graphErrorBody
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		ue.Code = payload.Error.Code
		ue.Message = payload.Error.Message
	} else {
		ue.Message = strings.TrimSpace(string(body))
	}
	if ue.Message == "" {
		ue.Message = http.StatusText(resp.StatusCode)
	}
	return ue
}

func convertGraphEvent(item graphEvent) (Event, bool) {
	if item.IsCancelled {
		return Event{}, false
	}
	start, ok := parseGraphTime(item.Start)
	if !ok {
		return Event{}, false
	}
	if item.IsAllDay {
		start = midnightUTC(start)
	}

	ev := Event{
		ID:       item.ID,
		Title:    item.Subject,
		Start:    start,
		IsAllDay: item.IsAllDay,
		OpenURL:  item.WebLink,
	}
	if ev.Title == "" {
		ev.Title = "(No title)"
	}
	if end, ok := parseGraphTime(item.End); ok {
		if item.IsAllDay {
			end = midnightUTC(end)
		}
		ev.End = &end
	}
	if item.OnlineMeeting != nil && item.OnlineMeeting.JoinURL != "" {
		ev.JoinURL = item.OnlineMeeting.JoinURL
	} else {
		ev.JoinURL = item.OnlineMeetingURL
	}
	return ev, true
}

func parseGraphTime(dt graphDateTime) (time.Time, bool) {
	if dt.DateTime == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, dt.DateTime); err == nil {
		return t.UTC(), true
	}
	t, err := time.ParseInLocation(graphTimeFormat, dt.DateTime, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
