package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusConfirmed, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

func (s *OrderStatus) UnmarshalText(b []byte) error { return parseEnum(s, b, "order status") }

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

func (s *PaymentStatus) UnmarshalText(b []byte) error { return parseEnum(s, b, "payment status") }

// OrderPaymentMethodAuction marks orders created by auction settlement.
const OrderPaymentMethodAuction = "auction"

type OrderItem struct {
	ProductID uuid.UUID `json:"productId"`
	Name      string    `json:"name"`
	Image     string    `json:"image,omitempty"`
	Quantity  int       `json:"quantity"`
	Price     int64     `json:"price"`
}

type Payment struct {
	Method    string     `json:"method"`
	Reference string     `json:"reference,omitempty"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
}

type Order struct {
	ID            uuid.UUID     `json:"id"`
	OrderNumber   string        `json:"orderNumber"`
	AuctionID     uuid.UUID     `json:"auctionId"`
	BuyerID       uuid.UUID     `json:"buyerId"`
	SellerID      uuid.UUID     `json:"sellerId"`
	Items         []OrderItem   `json:"items"`
	Subtotal      int64         `json:"subtotal"`
	Shipping      int64         `json:"shipping"`
	Tax           int64         `json:"tax"`
	TotalAmount   int64         `json:"totalAmount"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Payment       Payment       `json:"payment"`
	RipLimitHeld  int64         `json:"ripLimitHeld"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}
