// Package memory is an in-process implementation of the store contracts. Units of work are
// serialized and run against a private copy of the transactional collections, which replaces
// the shared state only on commit. Bids and notifications live outside that copy since they are
// written without a unit of work.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riplimit/backend/internal/models"
	"github.com/riplimit/backend/internal/store"
)

type state struct {
	auctions     map[uuid.UUID]models.Auction
	orders       map[uuid.UUID]models.Order
	accounts     map[uuid.UUID]models.CurrencyAccount
	transactions []models.CurrencyTransaction
	refunds      []models.RefundRequest
}

func newState() *state {
	return &state{
		auctions: make(map[uuid.UUID]models.Auction),
		orders:   make(map[uuid.UUID]models.Order),
		accounts: make(map[uuid.UUID]models.CurrencyAccount),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.auctions {
		c.auctions[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	c.transactions = append([]models.CurrencyTransaction(nil), s.transactions...)
	c.refunds = append([]models.RefundRequest(nil), s.refunds...)
	return c
}

type Store struct {
	txMu sync.Mutex

	mu            sync.RWMutex
	committed     *state
	bids          map[uuid.UUID][]models.Bid
	notifications []models.Notification
	dedupe        map[string]struct{}

	hookMu       sync.Mutex
	beforeCommit func() error
}

func New() *Store {
	return &Store{
		committed: newState(),
		bids:      make(map[uuid.UUID][]models.Bid),
		dedupe:    make(map[string]struct{}),
	}
}

var (
	_ store.Transactor             = (*Store)(nil)
	_ store.AuctionRepository      = (*Store)(nil)
	_ store.BidRepository          = (*Store)(nil)
	_ store.AccountRepository      = (*Store)(nil)
	_ store.OrderRepository        = (*Store)(nil)
	_ store.RefundRepository       = (*Store)(nil)
	_ store.NotificationRepository = (*Store)(nil)
)

// BeforeCommit installs a hook run just before a unit of work commits. A non-nil
// error aborts the commit and is returned from WithinTx. Used to simulate conflicts.
func (s *Store) BeforeCommit(fn func() error) {
	s.hookMu.Lock()
	s.beforeCommit = fn
	s.hookMu.Unlock()
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow store.UnitOfWork) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.committed.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &unitOfWork{st: work}); err != nil {
		return err
	}

	s.hookMu.Lock()
	hook := s.beforeCommit
	s.hookMu.Unlock()
	if hook != nil {
		if err := hook(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.committed = work
	s.mu.Unlock()
	return nil
}

// PutAuction seeds or replaces an auction outside of any unit of work.
func (s *Store) PutAuction(a *models.Auction) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed.auctions[a.ID] = copyAuction(*a)
}

// Orders returns every stored order.
func (s *Store) Orders() []*models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Order, 0, len(s.committed.orders))
	for _, o := range s.committed.orders {
		c := copyOrder(o)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Notifications returns every stored notification in insertion order.
func (s *Store) Notifications() []*models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Notification, len(s.notifications))
	for i := range s.notifications {
		n := s.notifications[i]
		out[i] = &n
	}
	return out
}

// --- Auctions ---

func (s *Store) GetAuction(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.committed.auctions[id]
	if !ok {
		return nil, fmt.Errorf("auction %s: %w", id, store.ErrNotFound)
	}
	c := copyAuction(a)
	return &c, nil
}

func (s *Store) ListDue(_ context.Context, now time.Time, limit int) ([]*models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*models.Auction
	for _, a := range s.committed.auctions {
		if a.Status == models.AuctionStatusActive && !a.EndTime.After(now) {
			c := copyAuction(a)
			due = append(due, &c)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].EndTime.Equal(due[j].EndTime) {
			return due[i].EndTime.Before(due[j].EndTime)
		}
		return due[i].ID.String() < due[j].ID.String()
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// --- Bids ---

func (s *Store) InsertBid(_ context.Context, b *models.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bids[b.AuctionID] = append(s.bids[b.AuctionID], *b)
	return nil
}

func (s *Store) HighestBid(_ context.Context, auctionID uuid.UUID, cutoff time.Time) (*models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.Bid
	for i := range s.bids[auctionID] {
		b := s.bids[auctionID][i]
		if b.Timestamp.After(cutoff) {
			continue
		}
		if b.Outbids(best) {
			best = &b
		}
	}
	return best, nil
}

func (s *Store) ListBids(_ context.Context, auctionID uuid.UUID, after *store.BidCursor, limit int) ([]*models.Bid, error) {
	s.mu.RLock()
	all := append([]models.Bid(nil), s.bids[auctionID]...)
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return bidKeyLess(all[i].Timestamp, all[i].ID, all[j].Timestamp, all[j].ID) })
	var page []*models.Bid
	for i := range all {
		b := all[i]
		if after != nil && !bidKeyLess(after.Timestamp, after.ID, b.Timestamp, b.ID) {
			continue
		}
		page = append(page, &b)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func bidKeyLess(t1 time.Time, id1 uuid.UUID, t2 time.Time, id2 uuid.UUID) bool {
	if !t1.Equal(t2) {
		return t1.Before(t2)
	}
	return id1.String() < id2.String()
}

// --- Accounts ---

func (s *Store) GetAccount(_ context.Context, userID uuid.UUID) (*models.CurrencyAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.committed.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", userID, store.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) ListTransactions(_ context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*models.CurrencyTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CurrencyTransaction
	txs := s.committed.transactions
	for i := len(txs) - 1; i >= 0 && len(out) < limit; i-- {
		t := txs[i]
		if t.UserID != userID || (before != nil && !t.CreatedAt.Before(*before)) {
			continue
		}
		out = append(out, &t)
	}
	return out, nil
}

func (s *Store) SumTransactions(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	for _, t := range s.committed.transactions {
		if t.UserID == userID {
			sum += t.Amount
		}
	}
	return sum, nil
}

// --- Orders ---

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.committed.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	c := copyOrder(o)
	return &c, nil
}

func (s *Store) GetOrderByAuction(_ context.Context, auctionID uuid.UUID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.committed.orders {
		if o.AuctionID == auctionID {
			c := copyOrder(o)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("order for auction %s: %w", auctionID, store.ErrNotFound)
}

// --- Refunds ---

func (s *Store) ListRefunds(_ context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*models.RefundRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.RefundRequest
	rs := s.committed.refunds
	for i := len(rs) - 1; i >= 0 && len(out) < limit; i-- {
		r := rs[i]
		if r.UserID != userID || (before != nil && !r.CreatedAt.Before(*before)) {
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

// --- Notifications ---

func (s *Store) InsertNotification(_ context.Context, n *models.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.DedupeKey == "" {
		return false, errors.New("notification without dedupe key")
	}
	if _, dup := s.dedupe[n.DedupeKey]; dup {
		return false, nil
	}
	s.dedupe[n.DedupeKey] = struct{}{}
	s.notifications = append(s.notifications, *n)
	return true, nil
}

func (s *Store) ListNotifications(_ context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Notification
	for i := len(s.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		n := s.notifications[i]
		if n.UserID != userID || (before != nil && !n.CreatedAt.Before(*before)) {
			continue
		}
		out = append(out, &n)
	}
	return out, nil
}

func copyAuction(a models.Auction) models.Auction {
	a.Images = append([]string(nil), a.Images...)
	return a
}

func copyOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return o
}
