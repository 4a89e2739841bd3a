// main wires the watchlist matching engine: stores, sweeps, and the HTTP
// surface. Business logic lives in internal services; this file only builds
// the graph and owns the process lifecycle.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authhandler "stealwatch/internal/auth/handler"
	authjwt "stealwatch/internal/auth/jwt"
	authservice "stealwatch/internal/auth/service"
	authstore "stealwatch/internal/auth/store"
	"stealwatch/internal/audit"
	"stealwatch/internal/binref"
	"stealwatch/internal/platform/config"
	"stealwatch/internal/platform/httpserver"
	"stealwatch/internal/platform/logger"
	"stealwatch/internal/platform/metrics"
	"stealwatch/internal/platform/postgres"
	platformredis "stealwatch/internal/platform/redis"
	httptransport "stealwatch/internal/transport/http"
	"stealwatch/internal/watchlist/handler"
	"stealwatch/internal/watchlist/ports"
	alertsvc "stealwatch/internal/watchlist/service/alerts"
	"stealwatch/internal/watchlist/service/binmatch"
	criteriasvc "stealwatch/internal/watchlist/service/criteria"
	"stealwatch/internal/watchlist/service/matcher"
	"stealwatch/internal/watchlist/service/materializer"
	"stealwatch/internal/watchlist/service/reconciler"
	"stealwatch/internal/watchlist/service/scheduler"
	alertstore "stealwatch/internal/watchlist/store/alert"
	cardalertstore "stealwatch/internal/watchlist/store/cardalert"
	criteriastore "stealwatch/internal/watchlist/store/criteria"
	detailstore "stealwatch/internal/watchlist/store/detail"
	recordstore "stealwatch/internal/watchlist/store/record"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cache, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if cache != nil {
		defer cache.Close()
	}

	var auditPublisher ports.AuditPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := audit.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer kafka.Close()
		auditPublisher = kafka
	}

	bins, err := binref.Load()
	if err != nil {
		log.Error("failed to load bin reference data", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	criteriaStore := criteriastore.NewPostgres(db)
	recordStore := recordstore.NewPostgres(db)
	alertStore := alertstore.NewPostgres(db)
	cardAlertStore := cardalertstore.NewPostgres(db)
	detailStore := detailstore.NewPostgres(db)
	userStore := authstore.NewPostgres(db)

	materializerSvc, err := materializer.New(recordStore, detailStore,
		materializer.WithLogger(log),
		materializer.WithMetrics(m),
	)
	if err != nil {
		exitOnWiring(log, err)
	}
	matcherSvc, err := matcher.New(criteriaStore, recordStore, alertStore, materializerSvc,
		matcher.WithLogger(log),
		matcher.WithMetrics(m),
		matcher.WithAuditPublisher(auditPublisher),
		matcher.WithMatchLimit(cfg.Sweep.MatchLimit),
	)
	if err != nil {
		exitOnWiring(log, err)
	}
	binmatchSvc, err := binmatch.New(criteriaStore, recordStore, cardAlertStore,
		binmatch.WithLogger(log),
		binmatch.WithMetrics(m),
		binmatch.WithAuditPublisher(auditPublisher),
		binmatch.WithMatchLimit(cfg.Sweep.MatchLimit),
		binmatch.WithBINDirectory(bins),
	)
	if err != nil {
		exitOnWiring(log, err)
	}
	reconcilerSvc, err := reconciler.New(alertStore, materializerSvc,
		reconciler.WithLogger(log),
		reconciler.WithMetrics(m),
		reconciler.WithBatchSize(cfg.Sweep.ReconcileBatch),
		reconciler.WithCoverageCache(cache, config.CoverageCacheTTL),
	)
	if err != nil {
		exitOnWiring(log, err)
	}
	sched, err := scheduler.New(matcherSvc, binmatchSvc, reconcilerSvc,
		scheduler.WithLogger(log),
		scheduler.WithMetrics(m),
		scheduler.WithInterval(cfg.Sweep.Interval),
		scheduler.WithReconcileDisabled(!cfg.Sweep.ReconcileEnabled),
	)
	if err != nil {
		exitOnWiring(log, err)
	}
	criteriaSvc, err := criteriasvc.New(criteriaStore,
		criteriasvc.WithLogger(log),
		criteriasvc.WithAuditPublisher(auditPublisher),
		criteriasvc.WithBINDirectory(bins),
	)
	if err != nil {
		exitOnWiring(log, err)
	}
	alertsSvc, err := alertsvc.New(alertStore, cardAlertStore, detailStore, recordStore,
		alertsvc.WithLogger(log),
		alertsvc.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		exitOnWiring(log, err)
	}

	jwtService := authjwt.NewService(cfg.JWTSigningKey, "stealwatch", 0)
	authSvc, err := authservice.New(userStore, jwtService, authservice.WithLogger(log))
	if err != nil {
		exitOnWiring(log, err)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger: log,
		DB:     db,
		Redis:  cache,
		Handlers: []httptransport.Registrar{
			authhandler.New(authSvc, cfg.AdminToken, log),
			handler.New(criteriaSvc, alertsSvc, reconcilerSvc, sched, jwtService, cfg.AdminToken, log),
		},
	})

	go sched.Run(ctx)

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("stealwatch listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

func exitOnWiring(log *slog.Logger, err error) {
	log.Error("failed to wire services", "error", err)
	os.Exit(1)
}
