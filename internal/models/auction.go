package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AuctionStatus string

// Auction status enums. ended and cancelled are terminal.
const (
	AuctionStatusUpcoming  AuctionStatus = "upcoming"
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

func (s AuctionStatus) Valid() bool {
	switch s {
	case AuctionStatusUpcoming, AuctionStatusActive, AuctionStatusEnded, AuctionStatusCancelled:
		return true
	}
	return false
}

func (s *AuctionStatus) UnmarshalText(b []byte) error {
	return parseEnum(s, b, "auction status")
}

// Auction carries the product snapshot needed to build an order at settlement.
type Auction struct {
	ID          uuid.UUID     `json:"id"`
	SellerID    uuid.UUID     `json:"sellerId"`
	ProductID   uuid.UUID     `json:"productId"`
	Title       string        `json:"title"`
	Images      []string      `json:"images"`
	StartingBid int64         `json:"startingBid"`
	EndTime     time.Time     `json:"endTime"`
	Status      AuctionStatus `json:"status"`
	WinnerID    *uuid.UUID    `json:"winnerId,omitempty"`
	WinningBid  *int64        `json:"winningBid,omitempty"`
	BidCount    int           `json:"bidCount"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Image returns the first product image, or "" when the snapshot has none.
func (a *Auction) Image() string {
	if len(a.Images) == 0 {
		return ""
	}
	return a.Images[0]
}

// CanTransition reports whether the auction may move to status to.
func (a *Auction) CanTransition(to AuctionStatus) bool {
	switch a.Status {
	case AuctionStatusEnded, AuctionStatusCancelled:
		return false
	case AuctionStatusUpcoming:
		return to == AuctionStatusActive || to == AuctionStatusCancelled
	case AuctionStatusActive:
		return to == AuctionStatusEnded || to == AuctionStatusCancelled
	}
	return false
}

// End moves an active auction to ended and fixes its outcome. winner may be nil.
func (a *Auction) End(winner *uuid.UUID, amount *int64, bidCount int, at time.Time) error {
	if !a.CanTransition(AuctionStatusEnded) {
		return fmt.Errorf("auction %s: cannot end from status %q", a.ID, a.Status)
	}
	a.Status = AuctionStatusEnded
	a.WinnerID = winner
	a.WinningBid = amount
	a.BidCount = bidCount
	a.UpdatedAt = at
	return nil
}
