package entity

import (
	"time"

	"calendar-aggregator/core/entity"

	"github.com/google/uuid"
)

// CalendarAccount is one connected calendar mailbox.
type CalendarAccount struct {
	entity.BaseEntity
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	Provider    string    `db:"provider" json:"provider"` // "google" | "microsoft"
	Email       string    `db:"email" json:"email"`
	DisplayName *string   `db:"display_name" json:"display_name"`
	LastError   *string   `db:"last_error" json:"last_error"`
}

func (CalendarAccount) TableName() string {
	return "calendar_accounts"
}

// CalendarAccountToken holds ciphertext only; decryption happens in the token store.
type CalendarAccountToken struct {
	CalendarAccountID uuid.UUID `db:"calendar_account_id"`
	AccessTokenEnc    string    `db:"access_token_enc"`
	RefreshTokenEnc   *string   `db:"refresh_token_enc"`
	ExpiresAt         time.Time `db:"expires_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (CalendarAccountToken) TableName() string {
	return "calendar_account_tokens"
}

// WorkflowVisibility decides whether an account shows up in a workflow. A
// missing row means enabled.
type WorkflowVisibility struct {
	WorkflowID        uuid.UUID `db:"workflow_id" json:"workflow_id"`
	CalendarAccountID uuid.UUID `db:"calendar_account_id" json:"calendar_account_id"`
	Enabled           bool      `db:"enabled" json:"enabled"`
}

func (WorkflowVisibility) TableName() string {
	return "workflow_calendar_visibility"
}
