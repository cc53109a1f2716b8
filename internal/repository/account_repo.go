package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riplimit/backend/internal/models"
)

const accountColumns = `user_id, available_balance, held_balance, has_unpaid_auctions, created_at, updated_at`

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func scanAccount(row pgx.Row) (*models.CurrencyAccount, error) {
	var a models.CurrencyAccount
	if err := row.Scan(&a.UserID, &a.AvailableBalance, &a.HeldBalance, &a.HasUnpaidAuctions, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (r *AccountRepo) GetAccount(ctx context.Context, userID uuid.UUID) (*models.CurrencyAccount, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM riplimit_accounts WHERE user_id = $1`, userID))
}

// GetForUpdateTx locks the account row for update. Call within a transaction.
func (r *AccountRepo) GetForUpdateTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.CurrencyAccount, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM riplimit_accounts WHERE user_id = $1 FOR UPDATE`, userID))
}

// EnsureTx creates a zero account when none exists, then locks and returns it.
func (r *AccountRepo) EnsureTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.CurrencyAccount, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO riplimit_accounts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return nil, mapErr(err)
	}
	return r.GetForUpdateTx(ctx, tx, userID)
}

// UpdateTx writes balances computed after GetForUpdateTx in the same tx.
func (r *AccountRepo) UpdateTx(ctx context.Context, tx pgx.Tx, a *models.CurrencyAccount) error {
	_, err := tx.Exec(ctx, `
		UPDATE riplimit_accounts
		SET available_balance = $2, held_balance = $3, has_unpaid_auctions = $4, updated_at = $5
		WHERE user_id = $1
	`, a.UserID, a.AvailableBalance, a.HeldBalance, a.HasUnpaidAuctions, a.UpdatedAt)
	return mapErr(err)
}

func (r *AccountRepo) ListTransactions(ctx context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*models.CurrencyTransaction, error) {
	return listTransactions(ctx, r.pool, userID, before, limit)
}

func (r *AccountRepo) SumTransactions(ctx context.Context, userID uuid.UUID) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(sum(amount), 0) FROM riplimit_transactions WHERE user_id = $1`, userID).Scan(&sum)
	return sum, mapErr(err)
}
