package scheduler

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/linkmonitor/internal/monitor"
)

// Sweep runs one cycle of every collector, at most concurrency at a time,
// and returns the snapshots in collector order with all errors combined.
func Sweep(ctx context.Context, log *zap.Logger, collectors []monitor.Collector, concurrency int) ([]monitor.Snapshot, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	out := make([]monitor.Snapshot, len(collectors))
	errs := make([]error, len(collectors))

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, c := range collectors {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()

			snap, err := c.Collect(ctx)
			out[i], errs[i] = snap, err
			if err != nil {
				log.Warn("sweep_collect_error", zap.String("target", c.Name()), zap.Error(err))
				return
			}
			log.Debug("sweep_collected",
				zap.String("target", c.Name()),
				zap.Bool("reachable", snap.Result.Reachable),
				zap.Bool("persisted", snap.Persisted),
			)
		}()
	}
	wg.Wait()
	return out, multierr.Combine(errs...)
}
