package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/riplimit/backend/internal/metrics"
	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/store"
)

const maxHistoryPage = 100

// Service is the Currency Account Store. Every mutation is its own unit of work, re-run
// on write conflict.
type Service interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)
	ApplyHold(ctx context.Context, userID uuid.UUID, amount int64, correlationID string) (*models.CurrencyTransaction, error)
	ReleaseHold(ctx context.Context, userID uuid.UUID, amount int64, correlationID string) (*models.CurrencyTransaction, error)
	Debit(ctx context.Context, userID uuid.UUID, amount int64, correlationID string) (*models.CurrencyTransaction, error)
	Credit(ctx context.Context, userID uuid.UUID, amount int64, correlationID string) (*models.CurrencyTransaction, error)
	History(ctx context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*models.CurrencyTransaction, error)
}

type service struct {
	tx       store.Transactor
	accounts store.AccountRepository
	retry    store.RetryPolicy
	metrics  metrics.Recorder
	now      func() time.Time
}

func NewService(tx store.Transactor, accounts store.AccountRepository, retry store.RetryPolicy, m metrics.Recorder) Service {
	if m == nil {
		m = metrics.NoOp()
	}
	return &service{tx: tx, accounts: accounts, retry: retry, metrics: m, now: time.Now}
}

var _ Service = (*service)(nil)

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	acc, err := s.accounts.GetAccount(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Balance{}, fmt.Errorf("user %s: %w", userID, ErrAccountNotFound)
	}
	if err != nil {
		return models.Balance{}, err
	}
	return acc.Balance(), nil
}

func (s *service) ApplyHold(ctx context.Context, userID uuid.UUID, amount int64, correlationID string) (*models.CurrencyTransaction, error) {
	return s.apply(ctx, Entry{UserID: userID, Type: models.TransactionHold, Amount: amount, Metadata: models.TransactionMetadata{CorrelationID: correlationID}})
}

func (s *service) ReleaseHold(ctx context.Context, userID uuid.UUID, amount int64, correlationID string) (*models.CurrencyTransaction, error) {
	return s.apply(ctx, Entry{UserID: userID, Type: models.TransactionRelease, Amount: amount, Metadata: models.TransactionMetadata{CorrelationID: correlationID}})
}

func (s *service) Debit(ctx context.Context, userID uuid.UUID, amount int64, correlationID string) (*models.CurrencyTransaction, error) {
	return s.apply(ctx, Entry{UserID: userID, Type: models.TransactionDebit, Amount: amount, Metadata: models.TransactionMetadata{CorrelationID: correlationID}})
}

func (s *service) Credit(ctx context.Context, userID uuid.UUID, amount int64, correlationID string) (*models.CurrencyTransaction, error) {
	return s.apply(ctx, Entry{UserID: userID, Type: models.TransactionCredit, Amount: amount, Metadata: models.TransactionMetadata{CorrelationID: correlationID}})
}

func (s *service) apply(ctx context.Context, e Entry) (*models.CurrencyTransaction, error) {
	var t *models.CurrencyTransaction
	err := store.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
			var err error
			t, err = Apply(ctx, uow, e, s.now().UTC())
			return err
		})
	})
	s.metrics.LedgerOp(string(e.Type), outcome(err))
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*models.CurrencyTransaction, error) {
	if limit <= 0 || limit > maxHistoryPage {
		limit = maxHistoryPage
	}
	return s.accounts.ListTransactions(ctx, userID, before, limit)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInsufficientHeld):
		return "insufficient"
	case errors.Is(err, ErrAccountNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid"
	default:
		return "error"
	}
}
