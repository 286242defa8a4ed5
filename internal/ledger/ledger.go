// Package ledger persists which offers have already been notified, so a
// bag that stays listed across poll cycles is announced exactly once per
// pickup window.
package ledger

import (
	"context"
	"time"

	"github.com/bkoehler/tgtg-notify/internal/models"
)

// Stats is a read-only aggregate for monitoring. A backend that cannot
// compute it returns the zero value rather than an error.
type Stats struct {
	TotalRecords int64 `json:"total_records"`
	Last24h      int64 `json:"records_24h"`
	Last7d       int64 `json:"records_7d"`
	StorageBytes int64 `json:"storage_bytes"`
}

// Ledger is the durable notification log. Reads are biased to fail open:
// when a backend cannot answer an existence check it reports the offer
// as unseen, preferring a duplicate notification over a missed one.
type Ledger interface {
	Exists(ctx context.Context, id models.OfferIdentity) (bool, error)
	Record(ctx context.Context, offer models.Offer) bool
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error)
	Stats(ctx context.Context) Stats
	Recent(ctx context.Context, window time.Duration) []models.NotificationRecord
}
