package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "familybudget/internal/errors"
	"familybudget/internal/log"
	"familybudget/internal/storage"
)

// AuditorConfig holds configuration for the periodic drift audit
type AuditorConfig struct {
	// Interval between audits (default: 10m)
	Interval time.Duration

	// Window selects users whose row changed within it (default: 24h)
	Window time.Duration

	// BatchSize is the max number of users audited per run (default: 200)
	BatchSize int

	// Concurrency bounds parallel user checks (default: 4)
	Concurrency int
}

func DefaultAuditorConfig() AuditorConfig {
	return AuditorConfig{
		Interval:    10 * time.Minute,
		Window:      24 * time.Hour,
		BatchSize:   200,
		Concurrency: 4,
	}
}

// AuditResult summarizes one audit run.
type AuditResult struct {
	Checked  int
	Drifted  int
	Failures int
}

// DriftAuditor periodically checks the aggregates of recently active users.
type DriftAuditor struct {
	storage *storage.SQLiteRepository
	checker *DriftChecker
	config  AuditorConfig
	logger  *log.Logger
	events  *log.StructuredLogger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewDriftAuditor(storage *storage.SQLiteRepository, checker *DriftChecker, config AuditorConfig, logger *log.Logger) *DriftAuditor {
	def := DefaultAuditorConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	l := logger.WithComponent(log.ComponentWorker)
	return &DriftAuditor{
		storage: storage,
		checker: checker,
		config:  config,
		logger:  l,
		events:  log.NewStructuredLogger(l),
	}
}

// Start begins the audit loop. Returns an error if already running.
func (a *DriftAuditor) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("drift auditor is already running")
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	a.mu.Unlock()

	go a.runLoop(ctx)

	a.logger.InfoContext(ctx, "Drift auditor started",
		"interval", a.config.Interval,
		"batch_size", a.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for the current run to finish.
func (a *DriftAuditor) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	stopCh, doneCh := a.stopCh, a.doneCh
	a.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		a.logger.InfoContext(ctx, "Drift auditor stopped gracefully")
	case <-ctx.Done():
		a.logger.WarnContext(ctx, "Drift auditor stop timed out")
		return ctx.Err()
	}

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return nil
}

func (a *DriftAuditor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *DriftAuditor) runLoop(ctx context.Context) {
	defer close(a.doneCh)

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	a.runOnce(ctx)

	for {
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runOnce(ctx)
		}
	}
}

func (a *DriftAuditor) runOnce(ctx context.Context) {
	res, err := a.AuditRecent(ctx)
	if err != nil {
		a.events.LogError(ctx, "Drift audit failed", err, log.OpAudit, nil)
		return
	}
	a.logger.InfoContext(ctx, "Drift audit completed",
		"checked", res.Checked,
		"drifted", res.Drifted,
		"failures", res.Failures)
}

// AuditRecent checks every user active within the window, a bounded number
// at a time.
func (a *DriftAuditor) AuditRecent(ctx context.Context) (AuditResult, error) {
	since := time.Now().Add(-a.config.Window)
	ids, err := a.storage.Queries().ListActiveUserIDs(ctx, since, a.config.BatchSize)
	if err != nil {
		return AuditResult{}, fmt.Errorf("list active users: %w", err)
	}

	var (
		mu  sync.Mutex
		res = AuditResult{Checked: len(ids)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			_, err := a.checker.CheckUser(gctx, id)
			if err == nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if apperrors.Is(err, apperrors.ErrConsistency) {
				res.Drifted++
				return nil
			}
			res.Failures++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, ctx.Err()
}
