package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"familybudget/internal/amqp"
	"familybudget/internal/auth"
	"familybudget/internal/cli"
	apphttp "familybudget/internal/http"
	"familybudget/internal/ledger"
	"familybudget/internal/log"
	"familybudget/internal/middleware/ratelimit"
	"familybudget/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg)
	defer repo.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Item events go to AMQP when configured; otherwise they stay in process.
	var publisher ledger.EventPublisher = ledger.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, item events will not be published", log.FieldError, err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	l := ledger.New(repo, publisher, ledger.NewMetrics(reg), logger, ledger.Config{
		LockWait:    cfg.LockWaitTimeout,
		PageSize:    cfg.PageSize,
		MaxPageSize: cfg.MaxPageSize,
	})

	srv := apphttp.NewServer(apphttp.Config{
		Addr: ":" + cfg.Port,
		RateLimit: ratelimit.Config{
			RequestsPerDay: cfg.RateLimitPerDay,
			Burst:          cfg.RateLimitBurst,
		},
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, apphttp.Dependencies{
		Ledger:     l,
		Budgets:    services.NewBudgetService(repo, logger, cfg.PageSize, cfg.MaxPageSize),
		Users:      services.NewUserService(repo, l.Locks(), cfg.LockWaitTimeout, logger),
		Tokens:     auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL),
		Health:     repo,
		Registerer: reg,
		Gatherer:   reg,
		Logger:     logger,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting familybudget server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
