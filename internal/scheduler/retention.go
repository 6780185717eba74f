package scheduler

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

type Pruner interface {
	PruneSnapshots(ctx context.Context, before time.Time) (int64, error)
}

// Retention deletes stability snapshots older than Age.
type Retention struct {
	Store Pruner
	Age   time.Duration
	Clock clock.Clock
	Log   *zap.Logger
}

func (r Retention) Run(ctx context.Context) (int64, error) {
	clk := r.Clock
	if clk == nil {
		clk = clock.New()
	}
	before := clk.Now().UTC().Add(-r.Age)
	n, err := r.Store.PruneSnapshots(ctx, before)
	if err != nil {
		return 0, err
	}
	if r.Log != nil {
		r.Log.Info("snapshots_pruned", zap.Int64("deleted", n), zap.Time("before", before))
	}
	return n, nil
}
