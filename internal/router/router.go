package router

import (
	"net/http"

	"github.com/riplimit/backend/internal/auth"
	"github.com/riplimit/backend/internal/handlers"
	"github.com/riplimit/backend/internal/middleware"
)

type Handlers struct {
	RipLimit      *handlers.RipLimitHandler
	Bids          *handlers.BidHandler
	Notifications *handlers.NotificationHandler
	Admin         *handlers.AdminHandler
}

// New returns an http.Handler that serves the API under /api/v1. Every route requires a
// bearer token; /admin routes also require the admin role.
func New(h Handlers, tokens middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	user := middleware.RequireUser(tokens)
	admin := func(next http.Handler) http.Handler {
		return user(middleware.RequireRole(auth.RoleAdmin)(next))
	}
	handle := func(pattern string, wrap func(http.Handler) http.Handler, fn http.HandlerFunc) {
		mux.Handle(pattern, wrap(fn))
	}

	handle("GET "+base+"/riplimit/balance", user, h.RipLimit.GetBalance)
	handle("GET "+base+"/riplimit/transactions", user, h.RipLimit.ListTransactions)
	handle("POST "+base+"/riplimit/refunds", user, h.RipLimit.RequestRefund)
	handle("GET "+base+"/riplimit/refunds", user, h.RipLimit.ListRefunds)

	handle("POST "+base+"/auctions/{id}/bids", user, h.Bids.PlaceBid)
	handle("GET "+base+"/auctions/{id}/bids", user, h.Bids.ListBids)
	handle("GET "+base+"/auctions/{id}/highest-bid", user, h.Bids.HighestBid)
	handle("GET "+base+"/auctions/{id}/highest-bid/stream", user, h.Bids.StreamHighestBid)

	handle("GET "+base+"/notifications", user, h.Notifications.List)

	handle("POST "+base+"/admin/auctions/{id}/settle", admin, h.Admin.SettleAuction)
	handle("POST "+base+"/admin/sweeps", admin, h.Admin.RunSweep)
	handle("POST "+base+"/admin/riplimit/credits", admin, h.Admin.Credit)
	handle("POST "+base+"/admin/orders/{id}/payment", admin, h.Admin.RecordPayment)

	return mux
}
