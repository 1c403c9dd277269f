// Package cli provides common initialization for the familybudget binaries.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"familybudget/internal/config"
	"familybudget/internal/log"
	"familybudget/internal/storage"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(component string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(os.Getenv("LOG_LEVEL"))
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = format
	}
	cfg.Component = component

	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env when present. Call it before SetupLogger so
// LOG_LEVEL and LOG_FORMAT can come from the file. Variables already set
// in the environment win; a missing file is not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens the SQLite repository and applies migrations.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *log.Logger, cfg *config.Config) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, cfg.SQLiteBusyTimeout)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	return repo
}

// GracefulShutdown returns a context that is cancelled once SIGINT or
// SIGTERM has arrived and cleanup has returned. cleanup gets a context
// bounded by timeout.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) context.Context {
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	done, cancel := context.WithCancel(context.Background())

	go func() {
		<-sigCtx.Done()
		stop()
		logger.Info("Shutdown signal received", "timeout", timeout)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			logger.Warn("Shutdown timeout reached")
		}
		cancel()
	}()

	return done
}
