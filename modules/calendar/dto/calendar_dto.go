package dto

import "time"

// ========== Account DTOs ==========

type AccountResponse struct {
	ID          string  `json:"id"`
	Provider    string  `json:"provider"`
	Email       string  `json:"email"`
	DisplayName *string `json:"displayName"`
	Enabled     bool    `json:"enabled"`
	LastError   *string `json:"lastError"`
}

type AccountsResponse struct {
	OK       bool              `json:"ok"`
	Accounts []AccountResponse `json:"accounts"`
}

// UpdateVisibilityRequest toggles an account inside one workflow.
type UpdateVisibilityRequest struct {
	WorkflowID string `json:"workflowId"`
	Enabled    *bool  `json:"enabled"`
}

type VisibilityResponse struct {
	OK         bool   `json:"ok"`
	AccountID  string `json:"accountId"`
	WorkflowID string `json:"workflowId"`
	Enabled    bool   `json:"enabled"`
}

// ========== Event DTOs ==========

// EventResponse is also the element type stored in the events cache.
type EventResponse struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Start        time.Time  `json:"start"`
	End          *time.Time `json:"end"`
	IsAllDay     bool       `json:"isAllDay"`
	JoinURL      *string    `json:"joinUrl"`
	OpenURL      *string    `json:"openUrl"`
	AccountID    string     `json:"accountId"`
	AccountEmail string     `json:"accountEmail"`
	Provider     string     `json:"provider"`
}

type EventsResponse struct {
	OK       bool              `json:"ok"`
	Accounts []AccountResponse `json:"accounts"`
	Events   []EventResponse   `json:"events"`
}
