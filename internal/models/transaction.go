package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

// Ledger entry types. Amount is the signed delta applied to the available balance.
const (
	TransactionHold    TransactionType = "hold"
	TransactionRelease TransactionType = "release"
	TransactionDebit   TransactionType = "debit"
	TransactionCredit  TransactionType = "credit"
	TransactionRefund  TransactionType = "refund"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionHold, TransactionRelease, TransactionDebit, TransactionCredit, TransactionRefund:
		return true
	}
	return false
}

func (t *TransactionType) UnmarshalText(b []byte) error { return parseEnum(t, b, "transaction type") }

const TransactionStatusCompleted = "completed"

type TransactionMetadata struct {
	CorrelationID string     `json:"correlationId,omitempty"`
	RefundID      *uuid.UUID `json:"refundId,omitempty"`
	OrderID       *uuid.UUID `json:"orderId,omitempty"`
	AuctionID     *uuid.UUID `json:"auctionId,omitempty"`
}

type CurrencyTransaction struct {
	ID           uuid.UUID           `json:"id"`
	UserID       uuid.UUID           `json:"userId"`
	Type         TransactionType     `json:"type"`
	Amount       int64               `json:"amount"`
	BalanceAfter int64               `json:"balanceAfter"`
	Status       string              `json:"status"`
	Metadata     TransactionMetadata `json:"metadata"`
	CreatedAt    time.Time           `json:"createdAt"`
}
