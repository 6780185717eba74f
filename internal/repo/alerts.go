package repo

import (
	"context"
	"time"
)

// AlertRecord holds the last connectivity state we notified about for a
// target and when the last notification went out (used for cooldown).
type AlertRecord struct {
	Target     string
	LastState  bool
	LastSentAt *time.Time
}

// AlertStore is implemented by a persistence layer to store alert state.
type AlertStore interface {
	// GetAlert returns nil, nil if there's no record yet.
	GetAlert(ctx context.Context, target string) (*AlertRecord, error)
	// SetAlert upserts the record. If sentAt.IsZero() the previous send time
	// is kept so the cooldown still applies.
	SetAlert(ctx context.Context, target string, lastState bool, sentAt time.Time) error
}
