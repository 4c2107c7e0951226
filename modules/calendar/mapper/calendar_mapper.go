package mapper

import (
	"calendar-aggregator/modules/calendar/dto"
	"calendar-aggregator/modules/calendar/entity"
	"calendar-aggregator/modules/calendar/provider"
)

func ToAccountResponse(account entity.CalendarAccount, enabled bool) dto.AccountResponse {
	return dto.AccountResponse{
		ID:          account.ID.String(),
		Provider:    account.Provider,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Enabled:     enabled,
		LastError:   account.LastError,
	}
}

// ToEventResponse annotates a provider event with its source account.
func ToEventResponse(ev provider.Event, account entity.CalendarAccount) dto.EventResponse {
	out := dto.EventResponse{
		ID:           ev.ID,
		Title:        ev.Title,
		Start:        ev.Start.UTC(),
		IsAllDay:     ev.IsAllDay,
		JoinURL:      optionalString(ev.JoinURL),
		OpenURL:      optionalString(ev.OpenURL),
		AccountID:    account.ID.String(),
		AccountEmail: account.Email,
		Provider:     account.Provider,
	}
	if ev.End != nil {
		end := ev.End.UTC()
		out.End = &end
	}
	return out
}

func ToEventResponses(events []provider.Event, account entity.CalendarAccount) []dto.EventResponse {
	out := make([]dto.EventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, ToEventResponse(ev, account))
	}
	return out
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
