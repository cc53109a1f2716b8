package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/store"
)

var (
	// ErrInsufficientBalance is returned when a debit or hold would drive the available balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientHeld is returned when releasing more than is held.
	ErrInsufficientHeld = errors.New("insufficient held balance")
	// ErrAccountNotFound is returned for hold/release/debit on a user that was never credited.
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidAmount   = errors.New("amount must be positive")
)

// Entry is one balance mutation. Amount is the positive magnitude; the sign of the
// recorded transaction follows from Type.
type Entry struct {
	UserID   uuid.UUID
	Type     models.TransactionType
	Amount   int64
	Metadata models.TransactionMetadata
}

// Apply performs e inside uow: it locks the account, checks the invariant for e.Type,
// writes the new balances and appends the ledger row. Credits create the account when
// it does not exist yet; every other type requires an existing account.
func Apply(ctx context.Context, uow store.UnitOfWork, e Entry, now time.Time) (*models.CurrencyTransaction, error) {
	if e.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var (
		acc *models.CurrencyAccount
		err error
	)
	if e.Type == models.TransactionCredit {
		acc, err = uow.EnsureAccount(ctx, e.UserID)
	} else {
		acc, err = uow.GetAccountForUpdate(ctx, e.UserID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", e.UserID, ErrAccountNotFound)
	}
	if err != nil {
		return nil, err
	}

	var delta int64
	switch e.Type {
	case models.TransactionHold:
		if acc.AvailableBalance < e.Amount {
			return nil, ErrInsufficientBalance
		}
		acc.AvailableBalance -= e.Amount
		acc.HeldBalance += e.Amount
		acc.HasUnpaidAuctions = true
		delta = -e.Amount
	case models.TransactionRelease:
		if acc.HeldBalance < e.Amount {
			return nil, ErrInsufficientHeld
		}
		acc.HeldBalance -= e.Amount
		acc.AvailableBalance += e.Amount
		delta = e.Amount
	case models.TransactionDebit, models.TransactionRefund:
		if acc.AvailableBalance < e.Amount {
			return nil, ErrInsufficientBalance
		}
		acc.AvailableBalance -= e.Amount
		delta = -e.Amount
	case models.TransactionCredit:
		acc.AvailableBalance += e.Amount
		delta = e.Amount
	default:
		return nil, fmt.Errorf("unknown transaction type %q", e.Type)
	}
	acc.UpdatedAt = now

	if err := uow.UpdateAccount(ctx, acc); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	t := &models.CurrencyTransaction{
		ID:           uuid.New(),
		UserID:       e.UserID,
		Type:         e.Type,
		Amount:       delta,
		BalanceAfter: acc.AvailableBalance,
		Status:       models.TransactionStatusCompleted,
		Metadata:     e.Metadata,
		CreatedAt:    now,
	}
	if err := uow.AppendTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	return t, nil
}

// SetUnpaid sets the unpaid-auctions flag without moving any balance. The account is
// created when missing so a winner without RipLimit is still blocked from refunds.
func SetUnpaid(ctx context.Context, uow store.UnitOfWork, userID uuid.UUID, unpaid bool, now time.Time) error {
	acc, err := uow.EnsureAccount(ctx, userID)
	if err != nil {
		return err
	}
	if acc.HasUnpaidAuctions == unpaid {
		return nil
	}
	acc.HasUnpaidAuctions = unpaid
	acc.UpdatedAt = now
	return uow.UpdateAccount(ctx, acc)
}
