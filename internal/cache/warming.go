package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// Prefetcher is implemented by the orchestrator to fill the cache for a coordinate
// without publishing state. Used by Warmer to avoid a dependency on the service package.
type Prefetcher interface {
	Prefetch(ctx context.Context, coord models.Coordinate) error
}

// Warmer warms the cache by prefetching every resource for a list of saved coordinates.
type Warmer struct {
	prefetcher Prefetcher
	logger     *zap.Logger
}

// NewWarmer creates a Warmer that uses the given prefetcher and logger.
func NewWarmer(prefetcher Prefetcher, logger *zap.Logger) *Warmer {
	return &Warmer{prefetcher: prefetcher, logger: logger}
}

// Warm prefetches each coordinate concurrently. Returns the joined errors of
// the coordinates that failed.
func (w *Warmer) Warm(ctx context.Context, coords []models.Coordinate) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("locations", len(coords)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(coords))
	for _, coord := range coords {
		coord := coord
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.prefetcher.Prefetch(ctx, coord); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", coord, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("locations", len(coords)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, coords []models.Coordinate, interval time.Duration) error {
	if err := w.Warm(ctx, coords); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, coords); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
