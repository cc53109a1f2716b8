package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationAuctionWon      NotificationType = "auction_won"
	NotificationAuctionLost     NotificationType = "auction_lost"
	NotificationAuctionSold     NotificationType = "auction_sold"
	NotificationAuctionNoBids   NotificationType = "auction_no_bids"
	NotificationRefundRequested NotificationType = "refund_requested"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationAuctionWon, NotificationAuctionLost, NotificationAuctionSold, NotificationAuctionNoBids, NotificationRefundRequested:
		return true
	}
	return false
}

func (t *NotificationType) UnmarshalText(b []byte) error { return parseEnum(t, b, "notification type") }

// NotificationData is the structured payload. Only fields relevant to the type are set.
type NotificationData struct {
	AuctionID   *uuid.UUID `json:"auctionId,omitempty"`
	OrderID     *uuid.UUID `json:"orderId,omitempty"`
	OrderNumber string     `json:"orderNumber,omitempty"`
	RefundID    *uuid.UUID `json:"refundId,omitempty"`
	Amount      *int64     `json:"amount,omitempty"`
	WinningBid  *int64     `json:"winningBid,omitempty"`
	BidderCount *int       `json:"bidderCount,omitempty"`
	NetAmount   string     `json:"netAmount,omitempty"`
}

// Notification is write-once. DedupeKey is unique per (event, recipient).
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      NotificationData `json:"data"`
	Read      bool             `json:"read"`
	DedupeKey string           `json:"-"`
	CreatedAt time.Time        `json:"createdAt"`
}
