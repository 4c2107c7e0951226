package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"calendar-aggregator/core/database"
	"calendar-aggregator/modules/calendar/entity"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real Postgres when TEST_DATABASE_DSN is set.
func openTestDB(t *testing.T) database.IDatabase {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	conn, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	db := database.NewFromSQLx(conn)
	require.NoError(t, EnsureSchema(context.Background(), &db))
	return &db
}

func insertAccount(t *testing.T, db database.IDatabase, userID uuid.UUID, provider string, createdAt time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := db.ExecContext(context.Background(),
		`INSERT INTO calendar_accounts (id, user_id, provider, email, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, userID, provider, provider+"@example.com", createdAt)
	require.NoError(t, err)
	return id
}

func TestPostgres_AccountsAndVisibility(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewAccountRepository(db)

	userID, workflowID := uuid.New(), uuid.New()
	base := time.Now().Add(-time.Hour).UTC()
	second := insertAccount(t, db, userID, "microsoft", base.Add(time.Minute))
	first := insertAccount(t, db, userID, "google", base)

	accounts, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, first, accounts[0].ID)
	assert.Equal(t, second, accounts[1].ID)

	require.NoError(t, repo.UpsertVisibility(ctx, &entity.WorkflowVisibility{WorkflowID: workflowID, CalendarAccountID: second, Enabled: false}))
	require.NoError(t, repo.UpsertVisibility(ctx, &entity.WorkflowVisibility{WorkflowID: workflowID, CalendarAccountID: second, Enabled: true}))

	rows, err := repo.ListVisibility(ctx, workflowID, []uuid.UUID{first, second})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Enabled)

	msg := "Reconnect required."
	require.NoError(t, repo.UpdateLastError(ctx, first, &msg))
	got, err := repo.GetByID(ctx, userID, first)
	require.NoError(t, err)
	require.NotNil(t, got.LastError)
	assert.Equal(t, msg, *got.LastError)

	missing, err := repo.GetByID(ctx, uuid.New(), first)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPostgres_TokensAndEventsCache(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	userID, workflowID := uuid.New(), uuid.New()
	accountID := insertAccount(t, db, userID, "google", time.Now().UTC())

	tokens := NewTokenRepository(db)
	refresh := "enc-refresh"
	require.NoError(t, tokens.Upsert(ctx, &entity.CalendarAccountToken{
		CalendarAccountID: accountID, AccessTokenEnc: "enc-access", RefreshTokenEnc: &refresh, ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, tokens.UpdateAccessToken(ctx, accountID, "enc-access-2", nil, time.Now().Add(2*time.Hour)))

	tok, err := tokens.GetByAccountID(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, "enc-access-2", tok.AccessTokenEnc)
	require.NotNil(t, tok.RefreshTokenEnc)
	assert.Equal(t, "enc-refresh", *tok.RefreshTokenEnc)

	store := NewPostgresEventsCacheStore(db)
	row := &entity.EventsCache{
		UserID: userID, WorkflowID: workflowID,
		EnabledAccountIDs: []string{accountID.String()},
		Events:            types.JSONText(`[]`),
		ProviderCooldowns: types.JSONText(`{}`),
		ProviderBackoff:   types.JSONText(`{}`),
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, store.Upsert(ctx, row))
	require.NoError(t, store.Upsert(ctx, row))

	got, err := store.Get(ctx, userID, workflowID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{accountID.String()}, []string(got.EnabledAccountIDs))
}
