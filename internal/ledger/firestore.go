package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bkoehler/tgtg-notify/internal/models"
)

const firestoreCollection = "sent_offers"

// firestoreRecord is the stored document. The document ID is the
// identity fingerprint, which gives the same per-identity uniqueness the
// SQLite backend gets from its composite index.
type firestoreRecord struct {
	StoreID        int64     `firestore:"storeID"`
	ItemID         int64     `firestore:"itemID"`
	StoreName      string    `firestore:"storeName"`
	DisplayName    string    `firestore:"displayName"`
	ItemsAvailable int       `firestore:"itemsAvailable"`
	PickupStart    string    `firestore:"pickupStart"`
	PickupEnd      string    `firestore:"pickupEnd"`
	OfferHash      string    `firestore:"offerHash"`
	SentAt         time.Time `firestore:"sentAt"`
}

// FirestoreLedger is an alternative Ledger backend for deployments that
// already run on Google Cloud and don't want a local database file.
type FirestoreLedger struct {
	client *firestore.Client
}

func NewFirestore(ctx context.Context, projectID string) (*FirestoreLedger, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &FirestoreLedger{client: client}, nil
}

func (l *FirestoreLedger) Close() error {
	return l.client.Close()
}

func (l *FirestoreLedger) Exists(ctx context.Context, id models.OfferIdentity) (bool, error) {
	doc, err := l.client.Collection(firestoreCollection).Doc(id.Fingerprint()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		slog.Error("Ledger existence check failed, treating offer as unseen", "error", err)
		return false, fmt.Errorf("failed to check offer %d/%d: %w", id.StoreID, id.ItemID, err)
	}
	return doc.Exists(), nil
}

func (l *FirestoreLedger) Record(ctx context.Context, offer models.Offer) bool {
	id := offer.Identity()
	rec := firestoreRecord{
		StoreID:        offer.StoreID,
		ItemID:         offer.ItemID,
		StoreName:      offer.StoreName,
		DisplayName:    offer.DisplayName,
		ItemsAvailable: offer.ItemsAvailable,
		PickupStart:    offer.PickupStart,
		PickupEnd:      offer.PickupEnd,
		OfferHash:      id.Fingerprint(),
		SentAt:         time.Now(),
	}

	// Set is an upsert; a repeat write for the same identity replaces
	// the prior document.
	if _, err := l.client.Collection(firestoreCollection).Doc(id.Fingerprint()).Set(ctx, rec); err != nil {
		slog.Error("Failed to record sent offer", "store", offer.StoreName, "item", offer.ItemID, "error", err)
		return false
	}
	return true
}

func (l *FirestoreLedger) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	iter := l.client.Collection(firestoreCollection).
		Where("sentAt", "<", cutoff).
		Documents(ctx)
	defer iter.Stop()

	bulkWriter := l.client.BulkWriter(ctx)
	defer bulkWriter.End()

	var deleted int64
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return deleted, fmt.Errorf("failed to iterate records for purge: %w", err)
		}
		if _, err := bulkWriter.Delete(doc.Ref); err != nil {
			slog.Warn("Failed to queue ledger record delete", "id", doc.Ref.ID, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		bulkWriter.Flush()
		slog.Info("Purged old ledger records", "count", deleted, "retention", retention)
	}
	return deleted, nil
}

func (l *FirestoreLedger) Stats(ctx context.Context) Stats {
	now := time.Now()
	total, err := l.countWhere(ctx, time.Time{})
	if err != nil {
		slog.Error("Failed to read ledger stats", "error", err)
		return Stats{}
	}
	last24h, err := l.countWhere(ctx, now.Add(-24*time.Hour))
	if err != nil {
		slog.Error("Failed to read ledger stats", "error", err)
		return Stats{}
	}
	last7d, err := l.countWhere(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		slog.Error("Failed to read ledger stats", "error", err)
		return Stats{}
	}

	// Firestore has no file-size analogue; StorageBytes stays zero.
	return Stats{TotalRecords: total, Last24h: last24h, Last7d: last7d}
}

// countWhere runs a server-side count aggregation, optionally bounded to
// records sent after cutoff.
func (l *FirestoreLedger) countWhere(ctx context.Context, cutoff time.Time) (int64, error) {
	query := l.client.Collection(firestoreCollection).Query
	if !cutoff.IsZero() {
		query = query.Where("sentAt", ">", cutoff)
	}

	snapshot, err := query.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, err
	}
	value, ok := snapshot["all"]
	if !ok {
		return 0, fmt.Errorf("count aggregation result missing 'all' key")
	}
	return countValue(value)
}

// countValue extracts the integer from an aggregation result, which the
// client library surfaces either directly or as a protobuf value.
func countValue(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case *firestorepb.Value:
		return v.GetIntegerValue(), nil
	default:
		return 0, fmt.Errorf("count aggregation result has unexpected type %T", value)
	}
}

func (l *FirestoreLedger) Recent(ctx context.Context, window time.Duration) []models.NotificationRecord {
	iter := l.client.Collection(firestoreCollection).
		Where("sentAt", ">", time.Now().Add(-window)).
		OrderBy("sentAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var records []models.NotificationRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			slog.Error("Failed to list recent ledger records", "error", err)
			return nil
		}

		var rec firestoreRecord
		if err := doc.DataTo(&rec); err != nil {
			slog.Warn("Skipping malformed ledger record", "id", doc.Ref.ID, "error", err)
			continue
		}
		records = append(records, models.NotificationRecord{
			StoreID:        rec.StoreID,
			ItemID:         rec.ItemID,
			StoreName:      rec.StoreName,
			DisplayName:    rec.DisplayName,
			ItemsAvailable: rec.ItemsAvailable,
			PickupStart:    rec.PickupStart,
			PickupEnd:      rec.PickupEnd,
			OfferHash:      rec.OfferHash,
			SentAt:         rec.SentAt,
		})
	}
	return records
}
