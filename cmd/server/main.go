package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	admissionconfig "spendgate/internal/admission/config"
	admissionmetrics "spendgate/internal/admission/metrics"
	admissionmw "spendgate/internal/admission/middleware"
	admissionservice "spendgate/internal/admission/service"
	"spendgate/internal/admission/store/window"
	ledgerhandler "spendgate/internal/ledger/handler"
	ledgermetrics "spendgate/internal/ledger/metrics"
	ledgerports "spendgate/internal/ledger/ports"
	ledgerservice "spendgate/internal/ledger/service"
	ledgermemory "spendgate/internal/ledger/store/memory"
	ledgerpostgres "spendgate/internal/ledger/store/postgres"
	ledgerredis "spendgate/internal/ledger/store/redis"
	"spendgate/internal/platform/config"
	"spendgate/internal/platform/httpserver"
	"spendgate/internal/platform/logger"
	platformmetrics "spendgate/internal/platform/metrics"
	platformmw "spendgate/internal/platform/middleware"
	platformredis "spendgate/internal/platform/redis"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ledgerStore, cleanup, err := buildLedgerStore(ctx, cfg)
	if err != nil {
		log.Error("failed to build ledger store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	ledgerSvc, err := ledgerservice.New(ledgerStore,
		ledgerservice.WithLogger(log),
		ledgerservice.WithMetrics(ledgermetrics.New()),
	)
	if err != nil {
		log.Error("failed to build ledger service", "error", err)
		os.Exit(1)
	}

	admissionSvc, err := admissionservice.New(window.NewMemoryStore(), admissionconfig.FromEnv(),
		admissionservice.WithLogger(log),
		admissionservice.WithMetrics(admissionmetrics.New()),
	)
	if err != nil {
		log.Error("failed to build admission service", "error", err)
		os.Exit(1)
	}
	admissionSvc.StartSweeper(ctx, cfg.SweepInterval)

	limiter := admissionmw.New(admissionSvc, log, admissionmw.WithDisabled(cfg.RateLimitDisabled))

	r := chi.NewRouter()
	r.Use(platformmetrics.New().Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(platformmw.Identity)
		r.Use(limiter.Limit(admissionconfig.PolicyAPI))
		ledgerhandler.New(ledgerSvc, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, r)

	log.Info("starting spendgate", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

// buildLedgerStore selects the ledger backend: postgres when a DSN is set,
// redis when a URL is set, in-memory otherwise.
func buildLedgerStore(ctx context.Context, cfg config.Server) (ledgerports.Store, func(), error) {
	switch {
	case cfg.PostgresDSN != "":
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		store := ledgerpostgres.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil
	case cfg.RedisURL != "":
		client, err := platformredis.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return ledgerredis.New(client.Client), func() { client.Close() }, nil
	default:
		return ledgermemory.New(), func() {}, nil
	}
}
