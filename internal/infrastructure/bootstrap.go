package infrastructure

import (
	"context"

	"go.uber.org/zap"

	"scrivo/internal/auth"
	"scrivo/internal/completion"
	"scrivo/internal/config"
	"scrivo/internal/logger"
	"scrivo/internal/repository"
	transportHTTP "scrivo/internal/transport/http"
	transportNATS "scrivo/internal/transport/nats"
	"scrivo/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		db.Close()
		_ = rdb.Close()
		_ = log.Sync()
	})

	// ── Infrastructure wiring ──────────────────────────────────────────────
	var bus repository.MessageBus
	var servers []Server

	accounts := repository.NewAccountRepo(db)
	resources := repository.NewResourceRepo(db)
	events := repository.NewEventRepo(db)
	usage := repository.NewUsageRepo(db)
	dedup := repository.NewDeduper(rdb, events, log)

	if cfg.NatsEnabled() {
		nc, err := connectNats(cfg.NatsAddr())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		bus = transportNATS.NewBus(nc)
		cleanupFns = append(cleanupFns, nc.Close)

		payments := repository.NewPaymentRepo(db, bus, log, cfg.DefaultChargeCents)

		// Bus-side payment ingress and the audit worker.
		servers = append(servers, transportNATS.NewHandler(payments, dedup, nc, log))
		servers = append(servers, worker.NewAuditWorker(events, nc, log))

		if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
			servers = append(servers, httpServer(addr, cfg, accounts, resources, payments, dedup, usage, log))
		}
	} else {
		payments := repository.NewPaymentRepo(db, nil, log, cfg.DefaultChargeCents)

		if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
			servers = append(servers, httpServer(addr, cfg, accounts, resources, payments, dedup, usage, log))
		}
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

func httpServer(
	addr string,
	cfg *config.Config,
	accounts *repository.AccountRepo,
	resources *repository.ResourceRepo,
	payments *repository.PaymentRepo,
	dedup *repository.Deduper,
	usage *repository.UsageRepo,
	log *zap.Logger,
) Server {
	authSvc := auth.NewService(accounts, resources, cfg.JWTSecret, log)
	compl := completion.NewClient(cfg.CompletionAddr)
	h := transportHTTP.NewHandler(authSvc, resources, payments, accounts, dedup, usage, compl, log)
	return transportHTTP.NewServer(addr, h, log)
}

// runCleanup returns a single function that calls all cleanup functions in
// reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
