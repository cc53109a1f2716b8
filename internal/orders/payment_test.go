package orders

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riplimit/backend/internal/ledger"
	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/repository/memory"
	"github.com/riplimit/backend/internal/store"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	return NewService(st, st, store.DefaultRetryPolicy(), slog.New(slog.NewTextHandler(io.Discard, nil))), st
}

// wonOrder stores a pending order and places its hold the way settlement does.
func wonOrder(t *testing.T, st *memory.Store, buyer uuid.UUID, held int64) *models.Order {
	t.Helper()
	now := time.Now().UTC()
	o := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "RL-" + uuid.NewString()[:8],
		AuctionID:     uuid.New(),
		BuyerID:       buyer,
		SellerID:      uuid.New(),
		TotalAmount:   held,
		Status:        models.OrderStatusPendingPayment,
		PaymentStatus: models.PaymentStatusPending,
		Payment:       models.Payment{Method: models.OrderPaymentMethodAuction},
		RipLimitHeld:  held,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := st.WithinTx(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		if err := uow.CreateOrder(ctx, o); err != nil {
			return err
		}
		_, err := ledger.Apply(ctx, uow, ledger.Entry{UserID: buyer, Type: models.TransactionHold, Amount: held}, now)
		return err
	})
	require.NoError(t, err)
	return o
}

func TestRecordPayment_CapturedReleasesHold(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	buyer := uuid.New()
	_, err := ledger.NewService(st, st, store.DefaultRetryPolicy(), nil).Credit(ctx, buyer, 500, "seed")
	require.NoError(t, err)
	o := wonOrder(t, st, buyer, 200)

	got, err := svc.RecordPayment(ctx, o.ID, PaymentOutcome{Status: PaymentCaptured, Reference: "pay_123"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, got.Status)
	assert.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)
	assert.Equal(t, "pay_123", got.Payment.Reference)
	require.NotNil(t, got.Payment.PaidAt)

	acc, err := st.GetAccount(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, models.Balance{Available: 500}, acc.Balance())
	sum, err := st.SumTransactions(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, acc.AvailableBalance, sum)
}

func TestRecordPayment_UnpaidFlagTracksRemainingOrders(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	buyer := uuid.New()
	_, err := ledger.NewService(st, st, store.DefaultRetryPolicy(), nil).Credit(ctx, buyer, 500, "seed")
	require.NoError(t, err)
	first := wonOrder(t, st, buyer, 100)
	second := wonOrder(t, st, buyer, 100)

	_, err = svc.RecordPayment(ctx, first.ID, PaymentOutcome{Status: PaymentFailed})
	require.NoError(t, err)
	acc, _ := st.GetAccount(ctx, buyer)
	assert.True(t, acc.HasUnpaidAuctions, "second order is still pending")

	got, err := svc.RecordPayment(ctx, second.ID, PaymentOutcome{Status: PaymentCaptured})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, got.Status)
	acc, _ = st.GetAccount(ctx, buyer)
	assert.False(t, acc.HasUnpaidAuctions)
	assert.Equal(t, int64(0), acc.HeldBalance)
}

func TestRecordPayment_Idempotent(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	buyer := uuid.New()
	_, err := ledger.NewService(st, st, store.DefaultRetryPolicy(), nil).Credit(ctx, buyer, 500, "seed")
	require.NoError(t, err)
	o := wonOrder(t, st, buyer, 200)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordPayment(ctx, o.ID, PaymentOutcome{Status: PaymentCaptured})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	txs, err := st.ListTransactions(ctx, buyer, nil, 50)
	require.NoError(t, err)
	releases := 0
	for _, tx := range txs {
		if tx.Type == models.TransactionRelease {
			releases++
		}
	}
	assert.Equal(t, 1, releases)
}

func TestRecordPayment_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.RecordPayment(context.Background(), uuid.New(), PaymentOutcome{Status: "pending"})
	assert.ErrorIs(t, err, ErrInvalidOutcome)

	_, err = svc.RecordPayment(context.Background(), uuid.New(), PaymentOutcome{Status: PaymentCaptured})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestNumberGenerator(t *testing.T) {
	g, err := NewNumberGenerator(7)
	require.NoError(t, err)
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		n := g.Next()
		assert.True(t, strings.HasPrefix(n, "RL-"))
		assert.False(t, seen[n], "duplicate order number %s", n)
		seen[n] = true
	}

	_, err = NewNumberGenerator(5000)
	assert.Error(t, err)
}
