package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riplimit/backend/internal/auctions"
	"github.com/riplimit/backend/internal/auth"
	"github.com/riplimit/backend/internal/bids"
	"github.com/riplimit/backend/internal/ledger"
	"github.com/riplimit/backend/internal/middleware"
	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/orders"
	"github.com/riplimit/backend/internal/refunds"
	"github.com/riplimit/backend/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockLedger struct {
	balance models.Balance
	err     error
	txs     []*models.CurrencyTransaction
}

func (m *mockLedger) GetBalance(context.Context, uuid.UUID) (models.Balance, error) {
	return m.balance, m.err
}

func (m *mockLedger) History(context.Context, uuid.UUID, *time.Time, int) ([]*models.CurrencyTransaction, error) {
	return m.txs, m.err
}

type mockRefunds struct {
	decodeErr  error
	requestErr error
	got        refunds.Request
}

func (m *mockRefunds) Decode(body []byte) (refunds.Request, error) {
	if m.decodeErr != nil {
		return refunds.Request{}, m.decodeErr
	}
	var req refunds.Request
	err := json.Unmarshal(body, &req)
	return req, err
}

func (m *mockRefunds) Request(_ context.Context, userID uuid.UUID, req refunds.Request) (*models.RefundRequest, error) {
	m.got = req
	if m.requestErr != nil {
		return nil, m.requestErr
	}
	return &models.RefundRequest{
		ID: uuid.New(), UserID: userID, RipLimitAmount: req.Amount,
		INRAmount: decimal.NewFromInt(req.Amount), FeeAmount: decimal.Zero, NetAmount: decimal.NewFromInt(req.Amount),
		Status: models.RefundStatusRequested,
	}, nil
}

func (m *mockRefunds) History(context.Context, uuid.UUID, *time.Time, int) ([]*models.RefundRequest, error) {
	return nil, nil
}

type mockBids struct {
	err     error
	highest *models.Bid
	stream  chan models.Bid
}

func (m *mockBids) PlaceBid(_ context.Context, auctionID, bidderID uuid.UUID, amount int64) (*models.Bid, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Bid{ID: uuid.New(), AuctionID: auctionID, UserID: bidderID, Amount: amount, Timestamp: time.Now()}, nil
}

func (m *mockBids) BidsFor(context.Context, uuid.UUID, string, int) ([]*models.Bid, string, error) {
	return nil, "", m.err
}

func (m *mockBids) CurrentHighest(context.Context, uuid.UUID) (*models.Bid, error) {
	return m.highest, m.err
}

func (m *mockBids) Subscribe(context.Context, uuid.UUID) (<-chan models.Bid, error) {
	return m.stream, m.err
}

type mockAdmin struct {
	settleErr error
	sweepErr  error
	report    auctions.SweepReport
}

func (m *mockAdmin) Settle(_ context.Context, id uuid.UUID) (*auctions.Result, error) {
	if m.settleErr != nil {
		return nil, m.settleErr
	}
	return &auctions.Result{AuctionID: id, Outcome: auctions.OutcomeNoBids}, nil
}

func (m *mockAdmin) Run(context.Context) (auctions.SweepReport, error) { return m.report, m.sweepErr }

func (m *mockAdmin) Credit(_ context.Context, userID uuid.UUID, amount int64, _ string) (*models.CurrencyTransaction, error) {
	if amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	return &models.CurrencyTransaction{ID: uuid.New(), UserID: userID, Type: models.TransactionCredit, Amount: amount, BalanceAfter: amount}, nil
}

func (m *mockAdmin) RecordPayment(_ context.Context, id uuid.UUID, o orders.PaymentOutcome) (*models.Order, error) {
	if o.Status != orders.PaymentCaptured && o.Status != orders.PaymentFailed {
		return nil, orders.ErrInvalidOutcome
	}
	return &models.Order{ID: id, Status: models.OrderStatusConfirmed}, nil
}

// authed attaches an identity the way RequireUser would.
func authed(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithIdentity(req.Context(), auth.Identity{UserID: userID, Role: auth.RoleUser}))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		reason string
	}{
		{fmt.Errorf("wrap: %w", ledger.ErrInsufficientBalance), http.StatusConflict, ReasonInsufficientBalance},
		{ledger.ErrAccountNotFound, http.StatusNotFound, ReasonAccountNotFound},
		{refunds.ErrUnpaidAuctionsHeld, http.StatusConflict, ReasonUnpaidAuctionsHeld},
		{refunds.ErrBelowMinimum, http.StatusUnprocessableEntity, ReasonBelowMinimum},
		{refunds.ErrValidation, http.StatusUnprocessableEntity, ReasonValidation},
		{bids.ErrAuctionNotFound, http.StatusNotFound, ReasonNotFound},
		{bids.ErrAuctionNotOpen, http.StatusConflict, ReasonConflict},
		{auctions.ErrNotEnded, http.StatusConflict, ReasonConflict},
		{fmt.Errorf("apply credit: %w", store.ErrConflict), http.StatusConflict, ReasonConflict},
		{errors.New("db down"), http.StatusInternalServerError, ReasonInternal},
	}
	for _, tc := range cases {
		status, reason := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.reason, reason, tc.err.Error())
	}
}

// ---------------------------------------------------------------------------
// RipLimit
// ---------------------------------------------------------------------------

func TestGetBalance(t *testing.T) {
	h := &RipLimitHandler{Ledger: &mockLedger{balance: models.Balance{Available: 40, Held: 60, HasUnpaidAuctions: true}}, Logger: discard}
	rec := httptest.NewRecorder()
	h.GetBalance(rec, authed(httptest.NewRequest(http.MethodGet, "/api/v1/riplimit/balance", nil), uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"available":40,"held":60,"hasUnpaidAuctions":true}`, rec.Body.String())
}

func TestGetBalance_Unauthenticated(t *testing.T) {
	h := &RipLimitHandler{Ledger: &mockLedger{}, Logger: discard}
	rec := httptest.NewRecorder()
	h.GetBalance(rec, httptest.NewRequest(http.MethodGet, "/api/v1/riplimit/balance", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetBalance_AccountNotFound(t *testing.T) {
	h := &RipLimitHandler{Ledger: &mockLedger{err: ledger.ErrAccountNotFound}, Logger: discard}
	rec := httptest.NewRecorder()
	h.GetBalance(rec, authed(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New()))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ReasonAccountNotFound, decodeError(t, rec).Reason)
}

func TestListTransactions_BadParams(t *testing.T) {
	h := &RipLimitHandler{Ledger: &mockLedger{}, Logger: discard}
	for _, q := range []string{"?limit=0", "?limit=x", "?before=yesterday"} {
		rec := httptest.NewRecorder()
		h.ListTransactions(rec, authed(httptest.NewRequest(http.MethodGet, "/api/v1/riplimit/transactions"+q, nil), uuid.New()))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestListTransactions_EmptyIsArray(t *testing.T) {
	h := &RipLimitHandler{Ledger: &mockLedger{}, Logger: discard}
	rec := httptest.NewRecorder()
	h.ListTransactions(rec, authed(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"transactions":[]}`, rec.Body.String())
}

func TestRequestRefund(t *testing.T) {
	rf := &mockRefunds{}
	h := &RipLimitHandler{Refunds: rf, Logger: discard}
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"amount":150,"method":"original"}`)
	h.RequestRefund(rec, authed(httptest.NewRequest(http.MethodPost, "/api/v1/riplimit/refunds", body), uuid.New()))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(150), resp["ripLimitAmount"])
	assert.Equal(t, "requested", resp["status"])
	assert.Contains(t, resp, "refundId")
	assert.Equal(t, float64(150), resp["inrAmount"])
	assert.Equal(t, float64(0), resp["feeAmount"])
	assert.Equal(t, float64(150), resp["netAmount"])
	assert.Contains(t, rec.Body.String(), `"feeAmount":0`)
	assert.Equal(t, int64(150), rf.got.Amount)
}

func TestRequestRefund_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		refund *mockRefunds
		status int
		reason string
	}{
		{"schema", &mockRefunds{decodeErr: refunds.ErrValidation}, http.StatusUnprocessableEntity, ReasonValidation},
		{"minimum", &mockRefunds{requestErr: refunds.ErrBelowMinimum}, http.StatusUnprocessableEntity, ReasonBelowMinimum},
		{"unpaid", &mockRefunds{requestErr: refunds.ErrUnpaidAuctionsHeld}, http.StatusConflict, ReasonUnpaidAuctionsHeld},
		{"balance", &mockRefunds{requestErr: ledger.ErrInsufficientBalance}, http.StatusConflict, ReasonInsufficientBalance},
		{"internal", &mockRefunds{requestErr: errors.New("pg: connection reset")}, http.StatusInternalServerError, ReasonInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &RipLimitHandler{Refunds: tc.refund, Logger: discard}
			rec := httptest.NewRecorder()
			body := strings.NewReader(`{"amount":150,"method":"original"}`)
			h.RequestRefund(rec, authed(httptest.NewRequest(http.MethodPost, "/", body), uuid.New()))
			assert.Equal(t, tc.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tc.reason, resp.Reason)
			assert.NotContains(t, resp.Error, "connection reset")
		})
	}
}

// ---------------------------------------------------------------------------
// Bids
// ---------------------------------------------------------------------------

func bidRequest(method, target string, body io.Reader, auctionID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.SetPathValue("id", auctionID.String())
	return authed(req, uuid.New())
}

func TestPlaceBid(t *testing.T) {
	h := &BidHandler{Bids: &mockBids{}, Logger: discard}
	auctionID := uuid.New()
	rec := httptest.NewRecorder()
	h.PlaceBid(rec, bidRequest(http.MethodPost, "/", strings.NewReader(`{"amount":120}`), auctionID))

	require.Equal(t, http.StatusCreated, rec.Code)
	var b models.Bid
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, auctionID, b.AuctionID)
	assert.Equal(t, int64(120), b.Amount)
}

func TestPlaceBid_ClosedAuction(t *testing.T) {
	h := &BidHandler{Bids: &mockBids{err: bids.ErrAuctionNotOpen}, Logger: discard}
	rec := httptest.NewRecorder()
	h.PlaceBid(rec, bidRequest(http.MethodPost, "/", strings.NewReader(`{"amount":120}`), uuid.New()))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPlaceBid_BadID(t *testing.T) {
	h := &BidHandler{Bids: &mockBids{}, Logger: discard}
	req := authed(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":1}`)), uuid.New())
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	h.PlaceBid(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHighestBid_None(t *testing.T) {
	h := &BidHandler{Bids: &mockBids{}, Logger: discard}
	rec := httptest.NewRecorder()
	h.HighestBid(rec, bidRequest(http.MethodGet, "/", nil, uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bid":null}`, rec.Body.String())
}

func TestStreamHighestBid(t *testing.T) {
	stream := make(chan models.Bid, 1)
	h := &BidHandler{Bids: &mockBids{stream: stream}, Logger: discard, Heartbeat: time.Hour}
	auctionID := uuid.New()
	stream <- models.Bid{ID: uuid.New(), AuctionID: auctionID, Amount: 500}
	close(stream)

	rec := httptest.NewRecorder()
	h.StreamHighestBid(rec, bidRequest(http.MethodGet, "/", nil, auctionID))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: highest-bid")
	assert.Contains(t, rec.Body.String(), `"amount":500`)
}

// ---------------------------------------------------------------------------
// Admin
// ---------------------------------------------------------------------------

func adminHandler(m *mockAdmin) *AdminHandler {
	return &AdminHandler{Engine: m, Sweeper: m, Ledger: m, Payments: m, Logger: discard}
}

func TestSettleAuction(t *testing.T) {
	h := adminHandler(&mockAdmin{})
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.SetPathValue("id", uuid.NewString())
	rec := httptest.NewRecorder()
	h.SettleAuction(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"no_bids"`)

	h = adminHandler(&mockAdmin{settleErr: auctions.ErrNotEnded})
	rec = httptest.NewRecorder()
	h.SettleAuction(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunSweep_ReportsPartialFailures(t *testing.T) {
	h := adminHandler(&mockAdmin{
		report:   auctions.SweepReport{Scanned: 3, Settled: 2, Failed: 1},
		sweepErr: errors.New("auction x: timeout"),
	})
	rec := httptest.NewRecorder()
	h.RunSweep(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(3), resp["scanned"])
	assert.Equal(t, []any{"auction x: timeout"}, resp["errors"])
}

func TestCredit(t *testing.T) {
	h := adminHandler(&mockAdmin{})
	user := uuid.New()
	rec := httptest.NewRecorder()
	h.Credit(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"userId":"`+user.String()+`","amount":500,"correlationId":"pay_1"}`)))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	h.Credit(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"userId":"`+user.String()+`","amount":0}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	h.Credit(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"userId":"x","amount":5}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordPayment(t *testing.T) {
	h := adminHandler(&mockAdmin{})
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"captured","reference":"pay_9"}`))
	req.SetPathValue("id", uuid.NewString())
	rec := httptest.NewRecorder()
	h.RecordPayment(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"maybe"}`))
	req.SetPathValue("id", uuid.NewString())
	rec = httptest.NewRecorder()
	h.RecordPayment(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
