package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riplimit/backend/internal/models"
)

type RefundRepo struct {
	pool *pgxpool.Pool
}

func NewRefundRepo(pool *pgxpool.Pool) *RefundRepo {
	return &RefundRepo{pool: pool}
}

func (r *RefundRepo) CreateTx(ctx context.Context, tx pgx.Tx, rf *models.RefundRequest) error {
	var sealed, last4, ifsc, holder *string
	if bd := rf.BankDetails; bd != nil {
		sealed, last4, ifsc, holder = &bd.AccountNumberSealed, &bd.AccountLast4, &bd.IFSCCode, &bd.AccountHolderName
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO riplimit_refunds (id, user_id, riplimit_amount, inr_amount, fee_amount, net_amount, status, refund_method,
			bank_account_sealed, bank_account_last4, bank_ifsc_code, bank_account_holder, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, rf.ID, rf.UserID, rf.RipLimitAmount, rf.INRAmount, rf.FeeAmount, rf.NetAmount, rf.Status, rf.Method,
		sealed, last4, ifsc, holder, rf.CreatedAt)
	return mapErr(err)
}

func (r *RefundRepo) CountSinceTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, since time.Time, statuses []models.RefundStatus) (int, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	var n int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM riplimit_refunds
		WHERE user_id = $1 AND created_at >= $2 AND status = ANY($3)
	`, userID, since, names).Scan(&n)
	return n, mapErr(err)
}

// ListRefunds returns the user's refunds newest first.
func (r *RefundRepo) ListRefunds(ctx context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*models.RefundRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, riplimit_amount, inr_amount, fee_amount, net_amount, status, refund_method,
			bank_account_last4, bank_ifsc_code, bank_account_holder, created_at
		FROM riplimit_refunds
		WHERE user_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, before, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var list []*models.RefundRequest
	for rows.Next() {
		var (
			rf                  models.RefundRequest
			last4, ifsc, holder *string
		)
		if err := rows.Scan(&rf.ID, &rf.UserID, &rf.RipLimitAmount, &rf.INRAmount, &rf.FeeAmount, &rf.NetAmount, &rf.Status, &rf.Method,
			&last4, &ifsc, &holder, &rf.CreatedAt); err != nil {
			return nil, err
		}
		if rf.Method == models.RefundMethodBank && ifsc != nil {
			rf.BankDetails = &models.BankDetails{IFSCCode: *ifsc}
			if last4 != nil {
				rf.BankDetails.AccountLast4 = *last4
			}
			if holder != nil {
				rf.BankDetails.AccountHolderName = *holder
			}
		}
		list = append(list, &rf)
	}
	return list, mapErr(rows.Err())
}
