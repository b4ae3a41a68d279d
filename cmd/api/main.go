package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"inspectpay/audit"
	"inspectpay/auth"
	"inspectpay/config"
	"inspectpay/db"
	"inspectpay/inspection"
	"inspectpay/inspector"
	"inspectpay/logging"
	"inspectpay/lot"
	"inspectpay/metrics"
	"inspectpay/preview"
)

func main() {
	cfg, err := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("api stopped")
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	rdb, err := preview.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb == nil {
		logger.Warn("REDIS_URL not set, inspector preview cache disabled")
	} else {
		defer rdb.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	publisher := audit.NewPublisher(
		audit.Tee{audit.NewPostgresStore(pool), audit.NewLogStore(logger)},
		cfg.AuditBuffer,
		logger,
	).WithDropHook(m.IncrementAuditDropped)
	auditCtx, stopAudit := context.WithCancel(context.Background())
	go func() { _ = publisher.Run(auditCtx) }()
	defer func() {
		stopAudit()
		<-publisher.Done()
	}()

	workloads := preview.NewCache(rdb, inspector.NewService(inspector.NewRepository(pool)), cfg.PreviewTTL, logger)

	lots := lot.NewService(pool, lot.NewRepository(), inspection.NewRepository()).
		WithAudit(publisher).
		WithInvalidator(workloads).
		WithMetrics(m).
		WithLogger(logger)

	srv := &Server{
		lots:      lots,
		workloads: workloads,
		verifier:  auth.NewService(cfg.JWTSecret),
		logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		metrics:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		health:    pool.Ping,
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.mount(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("api listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
