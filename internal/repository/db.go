// Package repository is the Postgres implementation of the store contracts.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riplimit/backend/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB bundles the per-collection repos and implements store.Transactor.
type DB struct {
	pool          *pgxpool.Pool
	Auctions      *AuctionRepo
	Bids          *BidRepo
	Orders        *OrderRepo
	Accounts      *AccountRepo
	Transactions  *TransactionRepo
	Refunds       *RefundRepo
	Notifications *NotificationRepo
}

func New(pool *pgxpool.Pool) *DB {
	return &DB{
		pool:          pool,
		Auctions:      NewAuctionRepo(pool),
		Bids:          NewBidRepo(pool),
		Orders:        NewOrderRepo(pool),
		Accounts:      NewAccountRepo(pool),
		Transactions:  NewTransactionRepo(pool),
		Refunds:       NewRefundRepo(pool),
		Notifications: NewNotificationRepo(pool),
	}
}

var _ store.Transactor = (*DB)(nil)

// WithinTx runs fn in a READ COMMITTED transaction. Rows read through the unit of work
// are locked with SELECT ... FOR UPDATE until commit.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, uow store.UnitOfWork) error) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &unitOfWork{tx: tx, db: db}); err != nil {
		return err
	}
	return mapErr(tx.Commit(ctx))
}

// Migrate applies the embedded schema files in name order. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := db.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

// mapErr translates driver errors into store sentinels, keeping the original in the chain.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %w", store.ErrConflict, err)
		case "23505":
			return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
		}
	}
	return err
}
