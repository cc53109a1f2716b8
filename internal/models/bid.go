package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid is append-only: never updated or deleted once stored.
type Bid struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"auctionId"`
	UserID    uuid.UUID `json:"userId"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Outbids reports whether b ranks above other: higher amount, then earlier
// placement, then lower id so the order is total.
func (b *Bid) Outbids(other *Bid) bool {
	if other == nil {
		return true
	}
	if b.Amount != other.Amount {
		return b.Amount > other.Amount
	}
	if !b.Timestamp.Equal(other.Timestamp) {
		return b.Timestamp.Before(other.Timestamp)
	}
	return b.ID.String() < other.ID.String()
}
