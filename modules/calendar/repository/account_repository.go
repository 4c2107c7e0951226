package repository

import (
	"context"
	"database/sql"
	"errors"

	"calendar-aggregator/core/database"
	"calendar-aggregator/core/logger"
	"calendar-aggregator/modules/calendar/entity"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type AccountRepository interface {
	// ListByUser returns accounts in creation order.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.CalendarAccount, error)
	GetByID(ctx context.Context, userID, accountID uuid.UUID) (*entity.CalendarAccount, error)
	UpdateLastError(ctx context.Context, accountID uuid.UUID, lastError *string) error

	ListVisibility(ctx context.Context, workflowID uuid.UUID, accountIDs []uuid.UUID) ([]entity.WorkflowVisibility, error)
	UpsertVisibility(ctx context.Context, v *entity.WorkflowVisibility) error
}

type accountRepository struct {
	db database.IDatabase
}

func NewAccountRepository(db database.IDatabase) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.CalendarAccount, error) {
	query := `
		SELECT id, user_id, provider, email, display_name, last_error, created_at, updated_at
		FROM calendar_accounts
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`
	accounts := []entity.CalendarAccount{}
	if err := r.db.SelectContext(ctx, &accounts, query, userID); err != nil {
		logger.Error("AccountRepository:ListByUser:Error", "error", err, "user_id", userID)
		return nil, err
	}
	return accounts, nil
}

// GetByID returns nil, nil when the account does not exist or belongs to another user.
func (r *accountRepository) GetByID(ctx context.Context, userID, accountID uuid.UUID) (*entity.CalendarAccount, error) {
	query := `
		SELECT id, user_id, provider, email, display_name, last_error, created_at, updated_at
		FROM calendar_accounts
		WHERE id = $1 AND user_id = $2
	`
	var account entity.CalendarAccount
	if err := r.db.GetContext(ctx, &account, query, accountID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		logger.Error("AccountRepository:GetByID:Error", "error", err, "account_id", accountID)
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) UpdateLastError(ctx context.Context, accountID uuid.UUID, lastError *string) error {
	query := `
		UPDATE calendar_accounts
		SET last_error = $2, updated_at = NOW()
		WHERE id = $1 AND last_error IS DISTINCT FROM $2
	`
	return r.db.ExecContext(ctx, query, accountID, lastError)
}

func (r *accountRepository) ListVisibility(ctx context.Context, workflowID uuid.UUID, accountIDs []uuid.UUID) ([]entity.WorkflowVisibility, error) {
	rows := []entity.WorkflowVisibility{}
	if len(accountIDs) == 0 {
		return rows, nil
	}

	ids := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT workflow_id, calendar_account_id, enabled
		FROM workflow_calendar_visibility
		WHERE workflow_id = $1 AND calendar_account_id = ANY($2::uuid[])
	`
	if err := r.db.SelectContext(ctx, &rows, query, workflowID, pq.StringArray(ids)); err != nil {
		logger.Error("AccountRepository:ListVisibility:Error", "error", err, "workflow_id", workflowID)
		return nil, err
	}
	return rows, nil
}

func (r *accountRepository) UpsertVisibility(ctx context.Context, v *entity.WorkflowVisibility) error {
	query := `
		INSERT INTO workflow_calendar_visibility (workflow_id, calendar_account_id, enabled)
		VALUES (:workflow_id, :calendar_account_id, :enabled)
		ON CONFLICT (workflow_id, calendar_account_id)
		DO UPDATE SET enabled = EXCLUDED.enabled
	`
	if _, err := r.db.NamedExecContext(ctx, query, v); err != nil {
		logger.Error("AccountRepository:UpsertVisibility:Error", "error", err,
			"workflow_id", v.WorkflowID, "account_id", v.CalendarAccountID)
		return err
	}
	return nil
}
