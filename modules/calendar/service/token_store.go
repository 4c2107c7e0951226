package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calendar-aggregator/core/constants"
	"calendar-aggregator/core/logger"
	"calendar-aggregator/core/utils"
	"calendar-aggregator/modules/calendar/entity"
	"calendar-aggregator/modules/calendar/provider"
	"calendar-aggregator/modules/calendar/repository"

	"github.com/google/uuid"
)

var (
	ErrTokenNotFound = errors.New("calendar token not found")
	// ErrRefreshFailed means the account needs to be reconnected. The
	// account's lastError has already been written when it is returned.
	ErrRefreshFailed = errors.New("calendar token refresh failed")
)

type TokenStore interface {
	Get(ctx context.Context, accountID uuid.UUID) (*provider.Token, error)
	// RefreshIfNeeded returns a usable access token, refreshing it first when
	// it expires within a minute.
	RefreshIfNeeded(ctx context.Context, account entity.CalendarAccount) (string, error)
	// Save stores tokens handed over by the OAuth connect flow.
	Save(ctx context.Context, accountID uuid.UUID, token provider.Token) error
}

type tokenStore struct {
	tokens   repository.TokenRepository
	accounts repository.AccountRepository
	cipher   utils.Cipher
	adapters map[provider.Name]provider.Adapter
	timeout  time.Duration
	now      func() time.Time
}

func NewTokenStore(
	tokens repository.TokenRepository,
	accounts repository.AccountRepository,
	cipher utils.Cipher,
	adapters map[provider.Name]provider.Adapter,
	timeout time.Duration,
) TokenStore {
	if timeout <= 0 {
		timeout = constants.DefaultTimeout
	}
	return &tokenStore{
		tokens:   tokens,
		accounts: accounts,
		cipher:   cipher,
		adapters: adapters,
		timeout:  timeout,
		now:      time.Now,
	}
}

func (s *tokenStore) Get(ctx context.Context, accountID uuid.UUID) (*provider.Token, error) {
	row, err := s.tokens.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrTokenNotFound
	}

	access, err := s.cipher.Decrypt(row.AccessTokenEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	tok := &provider.Token{AccessToken: access, ExpiresAt: row.ExpiresAt}
	if row.RefreshTokenEnc != nil && *row.RefreshTokenEnc != "" {
		refresh, err := s.cipher.Decrypt(*row.RefreshTokenEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
		tok.RefreshToken = refresh
	}
	return tok, nil
}

func (s *tokenStore) RefreshIfNeeded(ctx context.Context, account entity.CalendarAccount) (string, error) {
	name := provider.Name(account.Provider)

	tok, err := s.Get(ctx, account.ID)
	if err != nil {
		logger.Warn("TokenStore:RefreshIfNeeded:Get:Error", "error", err, "account_id", account.ID)
		s.markReconnect(ctx, account)
		if errors.Is(err, ErrTokenNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	if tok.ExpiresAt.After(s.now().Add(constants.CalendarTokenRefreshSkew)) {
		return tok.AccessToken, nil
	}

	adapter, ok := s.adapters[name]
	if !ok || tok.RefreshToken == "" {
		logger.Warn("TokenStore:RefreshIfNeeded:NoRefreshPath", "account_id", account.ID, "provider", name)
		s.markReconnect(ctx, account)
		return "", ErrRefreshFailed
	}

	refreshCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fresh, err := adapter.RefreshToken(refreshCtx, tok.RefreshToken)
	if err != nil {
		logger.Warn("TokenStore:RefreshIfNeeded:Refresh:Error", "error", err, "account_id", account.ID, "provider", name)
		s.markReconnect(ctx, account)
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	if err := s.persist(ctx, account.ID, fresh); err != nil {
		// The new token is still valid for this request.
		logger.Error("TokenStore:RefreshIfNeeded:Persist:Error", "error", err, "account_id", account.ID)
	}
	logger.Info("TokenStore:RefreshIfNeeded:Refreshed", "account_id", account.ID, "provider", name, "expires_at", fresh.ExpiresAt)
	return fresh.AccessToken, nil
}

func (s *tokenStore) Save(ctx context.Context, accountID uuid.UUID, token provider.Token) error {
	access, err := s.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return err
	}
	row := &entity.CalendarAccountToken{
		CalendarAccountID: accountID,
		AccessTokenEnc:    access,
		ExpiresAt:         token.ExpiresAt.UTC(),
	}
	if token.RefreshToken != "" {
		refresh, err := s.cipher.Encrypt(token.RefreshToken)
		if err != nil {
			return err
		}
		row.RefreshTokenEnc = &refresh
	}
	return s.tokens.Upsert(ctx, row)
}

func (s *tokenStore) persist(ctx context.Context, accountID uuid.UUID, fresh *provider.Token) error {
	access, err := s.cipher.Encrypt(fresh.AccessToken)
	if err != nil {
		return err
	}
	var refresh *string
	if fresh.RefreshToken != "" {
		enc, err := s.cipher.Encrypt(fresh.RefreshToken)
		if err != nil {
			return err
		}
		refresh = &enc
	}
	return s.tokens.UpdateAccessToken(ctx, accountID, access, refresh, fresh.ExpiresAt.UTC())
}

func (s *tokenStore) markReconnect(ctx context.Context, account entity.CalendarAccount) {
	msg := provider.ReconnectMessage(provider.Name(account.Provider))
	if err := s.accounts.UpdateLastError(ctx, account.ID, &msg); err != nil {
		logger.Error("TokenStore:markReconnect:Error", "error", err, "account_id", account.ID)
	}
}
