package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Refund amounts are encoded as JSON numbers.
func init() { decimal.MarshalJSONWithoutQuotes = true }

type RefundMethod string

const (
	RefundMethodOriginal RefundMethod = "original"
	RefundMethodBank     RefundMethod = "bank"
)

func (m RefundMethod) Valid() bool { return m == RefundMethodOriginal || m == RefundMethodBank }

func (m *RefundMethod) UnmarshalText(b []byte) error { return parseEnum(m, b, "refund method") }

type RefundStatus string

const (
	RefundStatusRequested  RefundStatus = "requested"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusRejected   RefundStatus = "rejected"
)

func (s RefundStatus) Valid() bool {
	switch s {
	case RefundStatusRequested, RefundStatusProcessing, RefundStatusCompleted, RefundStatusRejected:
		return true
	}
	return false
}

func (s *RefundStatus) UnmarshalText(b []byte) error { return parseEnum(s, b, "refund status") }

// FeeCountingRefundStatuses are the statuses that count toward the monthly free refund.
var FeeCountingRefundStatuses = []RefundStatus{RefundStatusRequested, RefundStatusProcessing, RefundStatusCompleted}

// BankDetails holds the payout destination. AccountNumberSealed is never returned to clients.
type BankDetails struct {
	AccountNumberSealed string `json:"-"`
	AccountLast4        string `json:"accountLast4"`
	IFSCCode            string `json:"ifscCode"`
	AccountHolderName   string `json:"accountHolderName"`
}

type RefundRequest struct {
	ID             uuid.UUID       `json:"refundId"`
	UserID         uuid.UUID       `json:"userId"`
	RipLimitAmount int64           `json:"ripLimitAmount"`
	INRAmount      decimal.Decimal `json:"inrAmount"`
	FeeAmount      decimal.Decimal `json:"feeAmount"`
	NetAmount      decimal.Decimal `json:"netAmount"`
	Method         RefundMethod    `json:"refundMethod"`
	BankDetails    *BankDetails    `json:"bankDetails,omitempty"`
	Status         RefundStatus    `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
}
