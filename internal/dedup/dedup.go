// Package dedup runs the poll cycle: fetch the favorites feed, decide
// which offers are new, push those, and record each one only after its
// push succeeded.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/bkoehler/tgtg-notify/internal/models"
)

type Deduplicator struct {
	fetcher   OfferFetcher
	pusher    OfferPusher
	ledger    OfferLedger
	limiter   *rate.Limiter
	retention time.Duration
}

// New builds a Deduplicator. sendDelay is the fixed pacing between
// consecutive offer pushes; retention bounds how long ledger records are
// kept.
func New(fetcher OfferFetcher, pusher OfferPusher, ledger OfferLedger, sendDelay, retention time.Duration) *Deduplicator {
	if sendDelay <= 0 {
		sendDelay = time.Second
	}
	return &Deduplicator{
		fetcher:   fetcher,
		pusher:    pusher,
		ledger:    ledger,
		limiter:   rate.NewLimiter(rate.Every(sendDelay), 1),
		retention: retention,
	}
}

// RunCycle executes one full poll cycle. A fetch failure aborts the
// cycle and is returned after a best-effort failure notice; push and
// ledger failures are absorbed per offer.
func (d *Deduplicator) RunCycle(ctx context.Context) error {
	offers, err := d.fetcher.FetchFavoritedOffers(ctx)
	if err != nil {
		slog.Error("Offer check failed", "error", err)
		d.pusher.PushText(ctx, fmt.Sprintf("❌ <b>Offer check failed</b>\n\n<code>%s</code>", err))
		return fmt.Errorf("failed to fetch favorited offers: %w", err)
	}
	slog.Info("Fetched favorited offers", "count", len(offers))

	newOffers, alreadySeen := d.partition(ctx, offers)

	var sent int
	for _, offer := range newOffers {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}

		if !d.pusher.PushOffer(ctx, offer) {
			// Not recorded: the offer stays eligible next cycle.
			slog.Error("Failed to push offer notification", "store", offer.StoreName, "item", offer.ItemID)
			continue
		}
		sent++

		if !d.ledger.Record(ctx, offer) {
			slog.Warn("Push succeeded but ledger write failed; offer may be re-notified next cycle",
				"store", offer.StoreName, "item", offer.ItemID)
		}
	}

	d.pusher.PushText(ctx, summaryText(len(newOffers), len(alreadySeen)))

	if _, err := d.ledger.PurgeOlderThan(ctx, d.retention); err != nil {
		slog.Warn("Ledger retention purge failed", "error", err)
	}

	slog.Info("Finished poll cycle", "new", len(newOffers), "already_seen", len(alreadySeen), "pushed", sent)
	return nil
}

// partition splits offers into never-notified and already-seen,
// preserving fetch order within each group. An existence-check error
// counts the offer as new: in doubt, notify.
func (d *Deduplicator) partition(ctx context.Context, offers []models.Offer) (newOffers, alreadySeen []models.Offer) {
	for _, offer := range offers {
		seen, err := d.ledger.Exists(ctx, offer.Identity())
		if err != nil {
			newOffers = append(newOffers, offer)
			continue
		}
		if seen {
			alreadySeen = append(alreadySeen, offer)
		} else {
			newOffers = append(newOffers, offer)
		}
	}
	return newOffers, alreadySeen
}

func summaryText(newCount, seenCount int) string {
	if newCount == 0 && seenCount == 0 {
		return "🔍 <b>Check complete</b>\n\nNo offers found in your favorites right now. Keep checking back! 🤞"
	}
	return fmt.Sprintf("🔍 <b>Check complete</b>\n\n🆕 New offers: <b>%d</b>\n♻️ Already notified: <b>%d</b>", newCount, seenCount)
}
