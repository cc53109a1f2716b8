package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"golang.org/x/sync/errgroup"

	"github.com/riplimit/backend/internal/auctions"
	"github.com/riplimit/backend/internal/auth"
	"github.com/riplimit/backend/internal/bids"
	"github.com/riplimit/backend/internal/config"
	"github.com/riplimit/backend/internal/handlers"
	"github.com/riplimit/backend/internal/jobs"
	"github.com/riplimit/backend/internal/ledger"
	"github.com/riplimit/backend/internal/logging"
	"github.com/riplimit/backend/internal/metrics"
	"github.com/riplimit/backend/internal/notify"
	"github.com/riplimit/backend/internal/orders"
	"github.com/riplimit/backend/internal/refunds"
	"github.com/riplimit/backend/internal/repository"
	"github.com/riplimit/backend/internal/repository/memory"
	"github.com/riplimit/backend/internal/router"
	"github.com/riplimit/backend/internal/secure"
	"github.com/riplimit/backend/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("riplimit exited", "error", err)
		os.Exit(1)
	}
}

// backend is the storage the services run on: Postgres or the in-memory store.
type backend struct {
	tx            store.Transactor
	auctions      store.AuctionRepository
	bids          store.BidRepository
	accounts      store.AccountRepository
	orders        store.OrderRepository
	refunds       store.RefundRepository
	notifications store.NotificationRepository
	pool          *pgxpool.Pool
}

func run() error {
	cfg, err := config.Load(os.Getenv("RIPLIMIT_CONFIG"))
	if err != nil {
		return err
	}
	logger, flush, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "riplimit"}, os.Stdout)
	if err != nil {
		return err
	}
	defer flush()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if be.pool != nil {
		defer be.pool.Close()
	}

	retry := store.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
		OnRetry:         func(int, error) { m.TxRetry() },
	}

	// Notifications
	sinks, closeSinks := buildSinks(cfg, logger)
	defer closeSinks()
	fanout := notify.NewFanout(be.notifications, logger, m, sinks...)
	settlementNotifier := jobs.NewEnqueuingNotifier(fanout, logger)

	// Bids
	var broadcaster bids.Broadcaster = bids.NewLocalBroadcaster()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		broadcaster = bids.NewRedisBroadcaster(rdb, cfg.Redis.HighestTTL.Milliseconds(), logger)
		logger.Info("highest-bid cache on redis", "addr", cfg.Redis.Addr)
	}
	bidLedger := bids.NewLedger(be.auctions, be.bids, broadcaster, logger)

	// Ledger, refunds, orders
	ledgerSvc := ledger.NewService(be.tx, be.accounts, retry, m)
	box, err := secure.NewBox(cfg.Secure.BankKey)
	if err != nil {
		return fmt.Errorf("bank details key: %w", err)
	}
	refundLoc, err := time.LoadLocation(cfg.Refund.Timezone)
	if err != nil {
		return fmt.Errorf("refund timezone: %w", err)
	}
	refundProc, err := refunds.NewProcessor(refunds.Config{
		MinAmount:      cfg.Refund.MinAmount,
		INRPerRipLimit: config.MustDecimal(cfg.Refund.INRPerRipLimit),
		FeeINR:         config.MustDecimal(cfg.Refund.FeeINR),
		Location:       refundLoc,
		Retry:          retry,
	}, be.tx, be.refunds, box, fanout, logger, m)
	if err != nil {
		return err
	}
	numbers, err := orders.NewNumberGenerator(cfg.Orders.NodeID)
	if err != nil {
		return err
	}
	payments := orders.NewService(be.tx, be.orders, retry, logger)

	// Settlement
	engine := auctions.NewEngine(be.tx, be.auctions, bidLedger, numbers, settlementNotifier, retry, logger, m)
	sweeper := auctions.NewSweeper(be.auctions, engine, auctions.SweepConfig{
		PageSize:      cfg.Sweep.PageSize,
		Concurrency:   cfg.Sweep.Concurrency,
		SettleTimeout: cfg.Sweep.SettleTimeout,
	}, logger, m)
	sweepTimeout := cfg.Sweep.SettleTimeout * time.Duration(max(cfg.Sweep.PageSize/max(cfg.Sweep.Concurrency, 1), 1))

	g, gctx := errgroup.WithContext(ctx)

	if be.pool != nil {
		riverClient, err := newRiverClient(gctx, be.pool, cfg, sweeper, sweepTimeout, fanout, logger)
		if err != nil {
			return err
		}
		settlementNotifier.Bind(riverClient)
		g.Go(func() error {
			if err := riverClient.Start(gctx); err != nil {
				return fmt.Errorf("start river: %w", err)
			}
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return riverClient.Stop(stopCtx)
		})
	} else {
		sched, err := jobs.NewLocalScheduler(cfg.SweepSchedule(), sweeper, sweepTimeout, logger)
		if err != nil {
			return err
		}
		sched.Start()
		logger.Info("settlement sweep scheduled in-process", "schedule", cfg.SweepSchedule())
		g.Go(func() error {
			<-gctx.Done()
			<-sched.Stop().Done()
			return nil
		})
	}

	tokens := auth.NewService([]byte(cfg.Auth.JWTSecret))
	api := router.New(router.Handlers{
		RipLimit:      &handlers.RipLimitHandler{Ledger: ledgerSvc, Refunds: refundProc, Logger: logger},
		Bids:          &handlers.BidHandler{Bids: bidLedger, Logger: logger},
		Notifications: &handlers.NotificationHandler{Notifications: be.notifications, Logger: logger},
		Admin:         &handlers.AdminHandler{Engine: engine, Sweeper: sweeper, Ledger: ledgerSvc, Payments: payments, Logger: logger},
	}, tokens)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + strconv.Itoa(cfg.HTTP.Port),
		Handler:           buildHandler(api, reg, be, cfg.HTTP.AllowedOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	if cfg.Database.URL == "" {
		logger.Warn("database.url not set, running on the in-memory store")
		st := memory.New()
		return &backend{tx: st, auctions: st, bids: st, accounts: st, orders: st, refunds: st, notifications: st}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL")

	db := repository.New(pool)
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		pool.Close()
		return nil, fmt.Errorf("river migrate up: %w", err)
	}
	logger.Info("migrations applied")

	return &backend{
		tx:            db,
		auctions:      db.Auctions,
		bids:          db.Bids,
		accounts:      db.Accounts,
		orders:        db.Orders,
		refunds:       db.Refunds,
		notifications: db.Notifications,
		pool:          pool,
	}, nil
}

func newRiverClient(
	ctx context.Context,
	pool *pgxpool.Pool,
	cfg *config.Config,
	sweeper jobs.SweepRunner,
	sweepTimeout time.Duration,
	fanout jobs.SettlementFanout,
	logger *slog.Logger,
) (*river.Client[pgx.Tx], error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, jobs.NewSweepWorker(sweeper, sweepTimeout))
	river.AddWorker(workers, jobs.NewFanoutWorker(fanout))

	periodic, err := jobs.PeriodicSweep(cfg.SweepSchedule())
	if err != nil {
		return nil, err
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Logger: logger,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{periodic},
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	logger.Info("settlement sweep scheduled on river", "schedule", cfg.SweepSchedule())
	return client, nil
}

// buildSinks returns the configured external notification sinks, each behind a breaker.
func buildSinks(cfg *config.Config, logger *slog.Logger) ([]notify.Sink, func()) {
	var sinks []notify.Sink
	var closers []func() error
	if len(cfg.Kafka.Brokers) > 0 {
		k := notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		sinks = append(sinks, notify.NewResilientSink(k, 5*time.Second, logger))
		closers = append(closers, k.Close)
		logger.Info("notification sink enabled", "sink", k.Name(), "topic", cfg.Kafka.Topic)
	}
	if cfg.Webhook.URL != "" {
		w := notify.NewWebhookSink(cfg.Webhook.URL, cfg.Webhook.Timeout)
		sinks = append(sinks, notify.NewResilientSink(w, cfg.Webhook.Timeout, logger))
		logger.Info("notification sink enabled", "sink", w.Name())
	}
	return sinks, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("close notification sink", "error", err)
			}
		}
	}
}
