package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riplimit/backend/internal/models"
)

type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// CreateTx appends a ledger entry inside the given transaction.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.CurrencyTransaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO riplimit_transactions (id, user_id, type, amount, balance_after, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.UserID, t.Type, t.Amount, t.BalanceAfter, t.Status, t.Metadata, t.CreatedAt)
	return mapErr(err)
}

func listTransactions(ctx context.Context, q querier, userID uuid.UUID, before *time.Time, limit int) ([]*models.CurrencyTransaction, error) {
	rows, err := q.Query(ctx, `
		SELECT id, user_id, type, amount, balance_after, status, metadata, created_at
		FROM riplimit_transactions
		WHERE user_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, before, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var list []*models.CurrencyTransaction
	for rows.Next() {
		var t models.CurrencyTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.BalanceAfter, &t.Status, &t.Metadata, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, mapErr(rows.Err())
}
