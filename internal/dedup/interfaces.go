package dedup

import (
	"context"
	"time"

	"github.com/bkoehler/tgtg-notify/internal/models"
)

// OfferFetcher abstracts the marketplace favorites feed.
type OfferFetcher interface {
	FetchFavoritedOffers(ctx context.Context) ([]models.Offer, error)
}

// OfferPusher abstracts the notification transport. Both methods report
// delivery success; they never panic or propagate transport errors.
type OfferPusher interface {
	PushOffer(ctx context.Context, offer models.Offer) bool
	PushText(ctx context.Context, text string) bool
}

// OfferLedger is the slice of the notification ledger this package needs.
type OfferLedger interface {
	Exists(ctx context.Context, id models.OfferIdentity) (bool, error)
	Record(ctx context.Context, offer models.Offer) bool
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}
