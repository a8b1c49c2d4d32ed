// Package workers contains background workers for regiond.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/regiond/internal/core/domain"
	"github.com/artpar/regiond/internal/shell/store"
)

// Terminator tears a region down and releases everything it holds: engine
// resources, the network allocation, and the lifecycle state, with the
// state change published. Satisfied by the deployment controller.
type Terminator interface {
	Terminate(ctx context.Context, name string) (*domain.Region, error)
}

// ReaperConfig configures the failed-region reaper worker.
type ReaperConfig struct {
	// Interval is the time between sweep cycles.
	// Default: 5 minutes.
	Interval time.Duration

	// RetentionPeriod is how long a failed region is kept for inspection
	// before its leftovers are swept. Default: 1 hour.
	RetentionPeriod time.Duration
}

// DefaultReaperConfig returns the default configuration.
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		Interval:        5 * time.Minute,
		RetentionPeriod: time.Hour,
	}
}

// Reaper periodically sweeps failed regions: a provisioning attempt that died
// between creating containers and cleaning up can strand engine resources,
// and the sweep removes them once the retention period has passed.
type Reaper struct {
	store      store.Store
	terminator Terminator
	config     ReaperConfig
	logger     *slog.Logger

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReaper creates a new reaper worker.
func NewReaper(s store.Store, t Terminator, config ReaperConfig, logger *slog.Logger) *Reaper {
	if config.Interval == 0 {
		config.Interval = 5 * time.Minute
	}
	if config.RetentionPeriod == 0 {
		config.RetentionPeriod = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reaper{
		store:      s,
		terminator: t,
		config:     config,
		logger:     logger.With("component", "reaper"),
	}
}

// Start begins the reaper background goroutine.
func (r *Reaper) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.wg.Add(1)
	go r.run()

	r.logger.Info("reaper started",
		"interval", r.config.Interval,
		"retention", r.config.RetentionPeriod,
	)
}

// Stop gracefully stops the reaper, waiting for an in-progress sweep.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("reaper stopped")
}

// run is the main loop that sweeps periodically.
func (r *Reaper) run() {
	defer r.wg.Done()

	// Run immediately on start
	r.runCycle()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.runCycle()
		}
	}
}

// runCycle executes a single sweep over failed regions.
func (r *Reaper) runCycle() {
	ctx, cancel := context.WithTimeout(r.ctx, r.config.Interval)
	defer cancel()

	failed, err := r.store.ListRegionsByStatus(ctx, domain.StatusFailed, store.DefaultListOptions())
	if err != nil {
		r.logger.Error("failed to list failed regions", "error", err)
		return
	}

	swept := 0
	for i := range failed {
		region := &failed[i]
		if time.Since(region.UpdatedAt) < r.config.RetentionPeriod {
			continue
		}
		if err := r.sweep(ctx, region); err != nil {
			r.logger.Error("failed to sweep region",
				"region", region.Config.Name,
				"error", err,
			)
			continue
		}
		swept++
	}

	if swept > 0 {
		r.logger.Info("sweep cycle complete", "swept", swept)
	}
}

// sweep terminates a failed region through the controller, so stranded engine
// resources, a leaked allocation, and the audit trail are all handled the same
// way an operator-issued terminate is.
func (r *Reaper) sweep(ctx context.Context, region *domain.Region) error {
	if _, err := r.terminator.Terminate(ctx, region.Config.Name); err != nil {
		return err
	}

	r.logger.Info("swept failed region", "region", region.Config.Name)
	return nil
}
