package models

import (
	"time"

	"github.com/google/uuid"
)

// CurrencyAccount is the per-user RipLimit account. AvailableBalance is a cache of the
// sum of the user's CurrencyTransaction amounts and is never negative.
type CurrencyAccount struct {
	UserID            uuid.UUID `json:"userId"`
	AvailableBalance  int64     `json:"availableBalance"`
	HeldBalance       int64     `json:"heldBalance"`
	HasUnpaidAuctions bool      `json:"hasUnpaidAuctions"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Balance is the read view returned by the account store.
type Balance struct {
	Available         int64 `json:"available"`
	Held              int64 `json:"held"`
	HasUnpaidAuctions bool  `json:"hasUnpaidAuctions"`
}

func (a *CurrencyAccount) Balance() Balance {
	return Balance{Available: a.AvailableBalance, Held: a.HeldBalance, HasUnpaidAuctions: a.HasUnpaidAuctions}
}
