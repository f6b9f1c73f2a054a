package httpserver

import (
	"context"
	"log/slog"
	"time"

	"ephemeral-paste/internal/clock"
	"ephemeral-paste/internal/metrics"
	"ephemeral-paste/internal/storage"
)

// Janitor periodically removes expired pastes from stores that cannot expire
// keys on their own. Visibility never depends on it: an expired paste that has
// not been swept yet is still reported as not found.
type Janitor struct {
	Purger   storage.Purger
	Clock    clock.Clock
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Start launches the sweep loop. It stops when ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	}()
}

// Sweep runs one pass and returns the number of pastes removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	clk := j.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	removed, err := j.Purger.DeleteExpired(c, clk.Now())
	if err != nil {
		if j.Logger != nil {
			j.Logger.Error("janitor error", "error", err)
		}
		return 0
	}
	j.Metrics.Purged(removed)
	if removed > 0 && j.Logger != nil {
		j.Logger.Info("janitor removed expired pastes", "count", removed)
	}
	return removed
}
