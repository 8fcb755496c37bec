package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	automationservice "subledger/internal/automation/service"
	"subledger/internal/config"
	custodyservice "subledger/internal/custody/service"
	"subledger/internal/events"
	"subledger/internal/indexer"
	"subledger/internal/logging"
	"subledger/internal/metrics"
	"subledger/internal/payment"
	"subledger/internal/server"
	"subledger/internal/subscription"
	subscriptionrepository "subledger/internal/subscription/repository"
	subscriptionservice "subledger/internal/subscription/service"
	"subledger/pkg/db"
)

type store interface {
	subscription.Repository
	subscription.CandidateSource
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat, "server")
	metrics.InitMetrics()

	ledgerCfg, err := cfg.Ledger()
	if err != nil {
		log.Fatal().Err(err).Msg("ledger config")
	}

	ctx := context.Background()

	repo, database, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if database != nil {
		defer database.Close()
	}
	log.Info().Str("driver", cfg.DatabaseDriver).Msg("store ready")

	gateway, tokenLedger := openGateway(cfg)

	var sinks []events.Sink
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, events will be retried per publish")
		}
		sinks = append(sinks, events.NewRedisPublisher(rdb, cfg.RedisChannel))
	}

	// --- layers ---
	clock := clockwork.NewRealClock()
	locks := subscription.NewLocks()
	outbox := events.NewOutbox(cfg.EventOutboxCapacity)
	dispatcher := events.NewDispatcher(outbox, clock, sinks...)

	subService, err := subscriptionservice.NewService(ledgerCfg, repo, gateway, clock, locks, dispatcher)
	if err != nil {
		log.Fatal().Err(err).Msg("subscription engine")
	}
	autoService := automationservice.NewService(subService, gateway)
	custodyService := custodyservice.NewService(custodyservice.StaticOwner(ledgerCfg.Owner), gateway, locks, dispatcher)

	deps := server.Deps{
		Subscriptions:       subService,
		Automation:          autoService,
		Custody:             custodyService,
		Outbox:              outbox,
		Indexer:             indexer.New(repo, clock),
		JWTSecret:           cfg.JWTSecret,
		CORSOrigins:         cfg.CORSOrigins,
		AutomationRateLimit: cfg.AutomationRateLimit,
		MetricsUser:         cfg.MetricsUser,
		MetricsPasswordHash: cfg.MetricsPasswordHash,
	}
	if cfg.DevFaucet {
		deps.Faucet = tokenLedger
		log.Warn().Msg("dev faucet enabled on POST /dev/faucet")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		log.Info().Msg("shutdown signal received, starting graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("fee", ledgerCfg.Fee.String()).
		Dur("period", ledgerCfg.Period).
		Str("token", ledgerCfg.PaymentToken).
		Msg("subledger API listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (store, *sql.DB, error) {
	if cfg.DatabaseDriver == "memory" {
		log.Warn().Msg("using in-memory store, state is lost on restart")
		return subscriptionrepository.NewMemoryRepository(), nil, nil
	}

	database, err := db.Connect(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	dialect := subscriptionrepository.DialectPostgres
	if cfg.DatabaseDriver == "sqlite" {
		dialect = subscriptionrepository.DialectSQLite
	}
	repo := subscriptionrepository.NewSQLRepository(database, dialect)
	if err := repo.Migrate(ctx); err != nil {
		database.Close()
		return nil, nil, err
	}
	return repo, database, nil
}

// openGateway returns the payment rail, plus the in-process ledger when no
// remote rail is configured.
func openGateway(cfg *config.Config) (payment.Gateway, *payment.TokenLedger) {
	if cfg.PaymentRailURL != "" {
		log.Info().Str("url", cfg.PaymentRailURL).Msg("using remote payment rail")
		client := &http.Client{Timeout: cfg.PaymentRailTimeout}
		return payment.NewHTTPGateway(cfg.PaymentRailURL, cfg.PaymentToken, cfg.CustodyAccount, client), nil
	}
	log.Warn().Msg("using in-process token ledger")
	ledger := payment.NewTokenLedger(cfg.PaymentToken, cfg.CustodyAccount)
	return ledger, ledger
}
