package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bkoehler/tgtg-notify/internal/models"
)

// sentOffer is the persisted row. The composite unique index serializes
// conflicting writes for the same identity at the storage layer, so no
// application-level lock is needed around Record.
type sentOffer struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	StoreID        int64     `gorm:"column:store_id;not null;uniqueIndex:idx_store_item_pickup"`
	ItemID         int64     `gorm:"column:item_id;not null;uniqueIndex:idx_store_item_pickup"`
	PickupStart    string    `gorm:"column:pickup_start;uniqueIndex:idx_store_item_pickup"`
	PickupEnd      string    `gorm:"column:pickup_end;uniqueIndex:idx_store_item_pickup"`
	StoreName      string    `gorm:"column:store_name;not null"`
	DisplayName    string    `gorm:"column:display_name;not null"`
	ItemsAvailable int       `gorm:"column:items_available;not null"`
	OfferHash      string    `gorm:"column:offer_hash;not null"`
	SentAt         time.Time `gorm:"column:sent_at;index:idx_sent_at"`
}

func (sentOffer) TableName() string { return "sent_offers" }

// SQLiteLedger is the default Ledger backend, a single-file SQLite
// database.
type SQLiteLedger struct {
	db   *gorm.DB
	path string
}

// OpenSQLite establishes the SQLite connection and migrates the schema.
func OpenSQLite(path string) (*SQLiteLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&sentOffer{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger schema: %w", err)
	}

	slog.Info("Offer ledger initialized", "path", path)
	return &SQLiteLedger{db: db, path: path}, nil
}

func (l *SQLiteLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Exists reports whether a notification for this exact identity was
// already recorded. A failed read logs and reports false so an offer is
// never silently suppressed by a broken ledger.
func (l *SQLiteLedger) Exists(ctx context.Context, id models.OfferIdentity) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&sentOffer{}).
		Where("store_id = ? AND item_id = ? AND pickup_start = ? AND pickup_end = ?",
			id.StoreID, id.ItemID, id.PickupStart, id.PickupEnd).
		Count(&count).Error
	if err != nil {
		slog.Error("Ledger existence check failed, treating offer as unseen", "error", err)
		return false, err
	}
	return count > 0, nil
}

// Record upserts a notification record for the offer's identity. A
// repeat write for the same identity replaces the prior row.
func (l *SQLiteLedger) Record(ctx context.Context, offer models.Offer) bool {
	row := sentOffer{
		StoreID:        offer.StoreID,
		ItemID:         offer.ItemID,
		PickupStart:    offer.PickupStart,
		PickupEnd:      offer.PickupEnd,
		StoreName:      offer.StoreName,
		DisplayName:    offer.DisplayName,
		ItemsAvailable: offer.ItemsAvailable,
		OfferHash:      offer.Identity().Fingerprint(),
		SentAt:         time.Now(),
	}

	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "store_id"}, {Name: "item_id"},
			{Name: "pickup_start"}, {Name: "pickup_end"},
		},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		slog.Error("Failed to record sent offer", "store", offer.StoreName, "item", offer.ItemID, "error", err)
		return false
	}
	return true
}

// PurgeOlderThan deletes records whose sent_at precedes now-retention
// and returns how many were removed.
func (l *SQLiteLedger) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res := l.db.WithContext(ctx).Where("sent_at < ?", cutoff).Delete(&sentOffer{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge old ledger records: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		slog.Info("Purged old ledger records", "count", res.RowsAffected, "retention", retention)
	}
	return res.RowsAffected, nil
}

// Stats returns aggregate counts and the database file size. Any failure
// yields the zero value.
func (l *SQLiteLedger) Stats(ctx context.Context) Stats {
	var stats Stats

	if err := l.db.WithContext(ctx).Model(&sentOffer{}).Count(&stats.TotalRecords).Error; err != nil {
		slog.Error("Failed to read ledger stats", "error", err)
		return Stats{}
	}
	now := time.Now()
	if err := l.db.WithContext(ctx).Model(&sentOffer{}).
		Where("sent_at > ?", now.Add(-24*time.Hour)).Count(&stats.Last24h).Error; err != nil {
		slog.Error("Failed to read ledger stats", "error", err)
		return Stats{}
	}
	if err := l.db.WithContext(ctx).Model(&sentOffer{}).
		Where("sent_at > ?", now.Add(-7*24*time.Hour)).Count(&stats.Last7d).Error; err != nil {
		slog.Error("Failed to read ledger stats", "error", err)
		return Stats{}
	}
	if info, err := os.Stat(l.path); err == nil {
		stats.StorageBytes = info.Size()
	}
	return stats
}

// Recent lists records sent within the window, newest first. Errors
// yield an empty slice.
func (l *SQLiteLedger) Recent(ctx context.Context, window time.Duration) []models.NotificationRecord {
	var rows []sentOffer
	err := l.db.WithContext(ctx).
		Where("sent_at > ?", time.Now().Add(-window)).
		Order("sent_at DESC").
		Find(&rows).Error
	if err != nil {
		slog.Error("Failed to list recent ledger records", "error", err)
		return nil
	}

	records := make([]models.NotificationRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.NotificationRecord{
			StoreID:        row.StoreID,
			ItemID:         row.ItemID,
			StoreName:      row.StoreName,
			DisplayName:    row.DisplayName,
			ItemsAvailable: row.ItemsAvailable,
			PickupStart:    row.PickupStart,
			PickupEnd:      row.PickupEnd,
			OfferHash:      row.OfferHash,
			SentAt:         row.SentAt,
		})
	}
	return records
}
