package repo

import (
	"context"
	"time"

	"github.com/hamed0406/linkmonitor/internal/domain"
)

// DefaultStatsWindow is the window used when a caller passes zero.
const DefaultStatsWindow = 30 * 24 * time.Hour

// RecentDisconnectionLimit bounds ConnectionStats.RecentDisconnections.
const RecentDisconnectionLimit = 10

// Store is the persistence port. Every method returning an error returns a
// *domain.StorageError for failures of the underlying engine.
//
// Writes that touch several tables are atomic: either all rows of one call
// are visible afterwards or none are.
type Store interface {
	TargetStore
	StatusWriter
	HistoryReader

	GetTargetStatus(ctx context.Context, name string) (domain.TargetStatus, error)
	GetConnectionStats(ctx context.Context, name string, window time.Duration) (domain.ConnectionStats, error)
	GetStabilityMetrics(ctx context.Context, name string, window time.Duration) (domain.StabilityReport, error)
	PruneSnapshots(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

type TargetStore interface {
	// EnsureTarget creates the target if missing and updates its description.
	EnsureTarget(ctx context.Context, name, description string) (domain.Target, error)
	ListTargets(ctx context.Context) ([]domain.Target, error)
}

// StatusWriter persists the outcome of one tick. Status.Target names the
// target, which is created lazily on first write.
type StatusWriter interface {
	// SaveStatus writes the accumulator for a tick without an edge.
	SaveStatus(ctx context.Context, st domain.TargetStatus) error
	// RecordConnection opens a session and logs a connected event, unless a
	// session is already active, and writes the accumulator.
	RecordConnection(ctx context.Context, st domain.TargetStatus) error
	// RecordDisconnection closes the active session and logs a disconnected
	// event with its duration. Without an active session only the accumulator
	// is written.
	RecordDisconnection(ctx context.Context, st domain.TargetStatus) error
}

// HistoryReader is the paginated read surface. Unknown targets yield
// domain.ErrTargetNotFound.
type HistoryReader interface {
	ListSessions(ctx context.Context, name string, page domain.Page) ([]domain.ConnectionSession, error)
	ListEvents(ctx context.Context, name string, page domain.Page) ([]domain.ConnectionEvent, error)
	ListSnapshots(ctx context.Context, name string, page domain.Page) ([]domain.StabilityMetricSnapshot, error)
	LatestStatuses(ctx context.Context) ([]domain.TargetStatus, error)
}

// Paginate returns the slice of items selected by p.
func Paginate[T any](items []T, p domain.Page) []T {
	p = p.Normalize()
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.PerPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
