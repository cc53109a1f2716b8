package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/riplimit/backend/internal/models"
)

// SettlementEvent is the outcome of one auction settlement, as needed for fanout.
type SettlementEvent struct {
	AuctionID uuid.UUID `json:"auction_id"`
	Title     string    `json:"title"`
	SellerID  uuid.UUID `json:"seller_id"`
	Winner    *Winner   `json:"winner,omitempty"`
	Bidders   []Bidder  `json:"bidders"`
}

type Winner struct {
	UserID      uuid.UUID `json:"user_id"`
	Amount      int64     `json:"amount"`
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
}

// Bidder is one distinct bidder and their best bid.
type Bidder struct {
	UserID  uuid.UUID `json:"user_id"`
	BestBid int64     `json:"best_bid"`
}

// DedupeKey is stable for an (event, recipient, type) triple so retried fanout is idempotent.
func DedupeKey(eventID uuid.UUID, recipient uuid.UUID, t models.NotificationType) string {
	sum := sha256.Sum256([]byte(string(t) + "|" + eventID.String() + "|" + recipient.String()))
	return hex.EncodeToString(sum[:])
}

// SettlementNotifications builds one notification per recipient: the winner, every other
// bidder and the seller. ID and CreatedAt are left for the caller.
func SettlementNotifications(ev SettlementEvent) []*models.Notification {
	auctionID := ev.AuctionID
	bidderCount := len(ev.Bidders)
	var out []*models.Notification

	if ev.Winner == nil {
		out = append(out, &models.Notification{
			UserID:    ev.SellerID,
			Type:      models.NotificationAuctionNoBids,
			Title:     fmt.Sprintf("Your auction for %s ended without bids", ev.Title),
			Message:   fmt.Sprintf("%q ended with no bids. You can relist it at any time.", ev.Title),
			Data:      models.NotificationData{AuctionID: &auctionID, BidderCount: &bidderCount},
			DedupeKey: DedupeKey(auctionID, ev.SellerID, models.NotificationAuctionNoBids),
		})
		return out
	}

	w := ev.Winner
	winning := w.Amount
	orderID := w.OrderID
	out = append(out, &models.Notification{
		UserID: w.UserID,
		Type:   models.NotificationAuctionWon,
		Title:  fmt.Sprintf("You won the auction for %s", ev.Title),
		Message: fmt.Sprintf("Your winning bid of %s secured %q. Complete payment for order %s to release your RipLimit hold.",
			Rupees(winning), ev.Title, w.OrderNumber),
		Data:      models.NotificationData{AuctionID: &auctionID, OrderID: &orderID, OrderNumber: w.OrderNumber, WinningBid: &winning},
		DedupeKey: DedupeKey(auctionID, w.UserID, models.NotificationAuctionWon),
	})

	for _, b := range ev.Bidders {
		if b.UserID == w.UserID {
			continue
		}
		best := b.BestBid
		out = append(out, &models.Notification{
			UserID: b.UserID,
			Type:   models.NotificationAuctionLost,
			Title:  fmt.Sprintf("Auction ended: %s", ev.Title),
			Message: fmt.Sprintf("The auction for %q was won with a bid of %s. Your highest bid was %s.",
				ev.Title, Rupees(winning), Rupees(best)),
			Data:      models.NotificationData{AuctionID: &auctionID, WinningBid: &winning, Amount: &best},
			DedupeKey: DedupeKey(auctionID, b.UserID, models.NotificationAuctionLost),
		})
	}

	out = append(out, &models.Notification{
		UserID: ev.SellerID,
		Type:   models.NotificationAuctionSold,
		Title:  fmt.Sprintf("Your auction for %s has sold", ev.Title),
		Message: fmt.Sprintf("%q sold for %s with bids from %s. Order %s is awaiting payment.",
			ev.Title, Rupees(winning), Plural(bidderCount, "bidder"), w.OrderNumber),
		Data:      models.NotificationData{AuctionID: &auctionID, OrderID: &orderID, OrderNumber: w.OrderNumber, WinningBid: &winning, BidderCount: &bidderCount},
		DedupeKey: DedupeKey(auctionID, ev.SellerID, models.NotificationAuctionSold),
	})
	return out
}

// RefundNotification confirms a refund request to its owner.
func RefundNotification(r *models.RefundRequest) *models.Notification {
	refundID := r.ID
	amount := r.RipLimitAmount
	fee := fmt.Sprintf("A fee of %s applies.", RupeesDecimal(r.FeeAmount))
	if r.FeeAmount.IsZero() {
		fee = "No fee applies to your first refund this month."
	}
	return &models.Notification{
		UserID: r.UserID,
		Type:   models.NotificationRefundRequested,
		Title:  "Refund request received",
		Message: fmt.Sprintf("We received your request to refund %s. %s You will receive %s.",
			RipLimit(amount), fee, RupeesDecimal(r.NetAmount)),
		Data:      models.NotificationData{RefundID: &refundID, Amount: &amount, NetAmount: r.NetAmount.StringFixed(2)},
		DedupeKey: DedupeKey(refundID, r.UserID, models.NotificationRefundRequested),
	}
}
