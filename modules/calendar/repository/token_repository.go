package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"calendar-aggregator/core/database"
	"calendar-aggregator/core/logger"
	"calendar-aggregator/modules/calendar/entity"

	"github.com/google/uuid"
)

// TokenRepository is only used by the token store. Rows hold ciphertext.
type TokenRepository interface {
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*entity.CalendarAccountToken, error)
	Upsert(ctx context.Context, token *entity.CalendarAccountToken) error
	// UpdateAccessToken rewrites the row in place. A nil refreshTokenEnc keeps the stored one.
	UpdateAccessToken(ctx context.Context, accountID uuid.UUID, accessTokenEnc string, refreshTokenEnc *string, expiresAt time.Time) error
}

type tokenRepository struct {
	db database.IDatabase
}

func NewTokenRepository(db database.IDatabase) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*entity.CalendarAccountToken, error) {
	query := `
		SELECT calendar_account_id, access_token_enc, refresh_token_enc, expires_at, updated_at
		FROM calendar_account_tokens
		WHERE calendar_account_id = $1
	`
	var token entity.CalendarAccountToken
	if err := r.db.GetContext(ctx, &token, query, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		logger.Error("TokenRepository:GetByAccountID:Error", "error", err, "account_id", accountID)
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepository) Upsert(ctx context.Context, token *entity.CalendarAccountToken) error {
	query := `
		INSERT INTO calendar_account_tokens (calendar_account_id, access_token_enc, refresh_token_enc, expires_at, updated_at)
		VALUES (:calendar_account_id, :access_token_enc, :refresh_token_enc, :expires_at, NOW())
		ON CONFLICT (calendar_account_id)
		DO UPDATE SET
			access_token_enc = EXCLUDED.access_token_enc,
			refresh_token_enc = COALESCE(EXCLUDED.refresh_token_enc, calendar_account_tokens.refresh_token_enc),
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		logger.Error("TokenRepository:Upsert:Error", "error", err, "account_id", token.CalendarAccountID)
		return err
	}
	return nil
}

func (r *tokenRepository) UpdateAccessToken(ctx context.Context, accountID uuid.UUID, accessTokenEnc string, refreshTokenEnc *string, expiresAt time.Time) error {
	query := `
		UPDATE calendar_account_tokens
		SET access_token_enc = $2,
			refresh_token_enc = COALESCE($3, refresh_token_enc),
			expires_at = $4,
			updated_at = NOW()
		WHERE calendar_account_id = $1
	`
	if err := r.db.ExecContext(ctx, query, accountID, accessTokenEnc, refreshTokenEnc, expiresAt); err != nil {
		logger.Error("TokenRepository:UpdateAccessToken:Error", "error", err, "account_id", accountID)
		return err
	}
	return nil
}
