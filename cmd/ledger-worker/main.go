package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"familybudget/internal/amqp"
	"familybudget/internal/cli"
	"familybudget/internal/config"
	"familybudget/internal/journal"
	"familybudget/internal/journal/google"
	"familybudget/internal/journal/memory"
	"familybudget/internal/ledger"
	"familybudget/internal/log"
	"familybudget/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting ledger-worker", "journal_backend", cfg.JournalBackend)

	repo := cli.InitSQLite(logger, cfg)
	defer repo.Close()

	sink, err := newJournalSink(cfg)
	if err != nil {
		logger.Error("Failed to initialize journal sink", log.FieldError, err, "backend", cfg.JournalBackend)
		os.Exit(1)
	}

	checker := worker.NewDriftChecker(repo, ledger.NewMetrics(nil), logger)
	auditor := worker.NewDriftAuditor(repo, checker, worker.AuditorConfig{
		Interval:    cfg.DriftCheckInterval,
		Window:      cfg.DriftCheckWindow,
		BatchSize:   cfg.DriftCheckBatchSize,
		Concurrency: cfg.DriftCheckConcurrency,
	}, logger)

	ctx := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := auditor.Stop(ctx); err != nil {
			logger.Error("Drift auditor stop failed", log.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	if err := auditor.Start(gctx); err != nil {
		logger.Error("Failed to start drift auditor", log.FieldError, err)
		os.Exit(1)
	}

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		journalWorker := worker.NewJournalWorker(sink, checker, logger)
		g.Go(func() error {
			err := amqpClient.ConsumeItemEvents(gctx, journalWorker.HandleItemEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("Skipping item event consumption - no AMQP_URL provided")
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func newJournalSink(cfg *config.Config) (journal.Sink, error) {
	switch cfg.JournalBackend {
	case config.JournalSheets:
		sink, err := google.NewFromEnv(context.Background())
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return memory.New(), nil
	}
}
