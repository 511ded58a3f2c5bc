package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	identityhandler "contactlink/internal/identity/handler"
	identitymetrics "contactlink/internal/identity/metrics"
	"contactlink/internal/identity/models"
	"contactlink/internal/identity/service"
	"contactlink/internal/platform/config"
	"contactlink/internal/platform/httpserver"
	"contactlink/internal/platform/logger"
	"contactlink/internal/platform/metrics"
	"contactlink/internal/platform/otel"
	"contactlink/internal/platform/redis"
	httptransport "contactlink/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	shutdownTracing, err := otel.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	strategy, err := models.ParseMatchStrategy(cfg.Identity.MatchStrategy)
	if err != nil {
		return err
	}

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open contact store: %w", err)
	}
	defer st.Close()

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	sink, err := openAuditSink(ctx, cfg.Kafka, st.db, log)
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}
	defer sink.Close()

	identity := service.New(st.store,
		service.WithTx(withLockBackend(cfg, st.tx, rdb)),
		service.WithTxTimeout(cfg.Identity.TxTimeout),
		service.WithMatchStrategy(strategy),
		service.WithStrictConsistency(cfg.Identity.StrictConsistency),
		service.WithLogger(log),
		service.WithMetrics(identitymetrics.New()),
		service.WithAuditPublisher(sink.publisher),
	)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Logger:   log,
		Metrics:  metrics.New(),
		Gatherer: prometheus.DefaultGatherer,
		CORS:     cfg.CORS,
		Ready:    readinessChecks(st, rdb),
		Handlers: []httptransport.Registrar{identityhandler.New(identity, log)},
	})
	srv := httpserver.New(cfg.Addr, router, cfg.HTTP)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting contactlink",
			"addr", cfg.Addr,
			"store", cfg.Database.Driver,
			"match_strategy", strategy,
			"lock_backend", cfg.Identity.LockBackend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
