// Package reservation owns the lifecycle of bag holds: create an order,
// keep it in a guarded in-memory table, and guarantee it is cancelled
// exactly once, whether by the auto-cancel timer, a manual request, or
// the defensive expiry sweep.
package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bkoehler/tgtg-notify/internal/models"
)

// OrderClient abstracts the marketplace order capability.
type OrderClient interface {
	CreateOrder(ctx context.Context, itemID int64) (string, error)
	AbortOrder(ctx context.Context, orderID string) error
}

// Notifier is the slice of the chat transport this package needs.
type Notifier interface {
	PushText(ctx context.Context, text string) bool
}

// Result reports the outcome of a reservation attempt. Err carries the
// marketplace error detail for display; it is nil on success.
type Result struct {
	OrderID      string
	AutoCancelAt time.Time
	Err          error
}

func (r Result) Success() bool { return r.Err == nil }

type Manager struct {
	client    OrderClient
	notifier  Notifier
	scheduler Scheduler
	store     *Store
	now       func() time.Time
}

func NewManager(client OrderClient, notifier Notifier, scheduler Scheduler) *Manager {
	return &Manager{
		client:    client,
		notifier:  notifier,
		scheduler: scheduler,
		store:     NewStore(),
		now:       time.Now,
	}
}

// Reserve creates an order for one bag and schedules its auto-cancel.
// On failure nothing enters the store and no retry is attempted; the
// error detail goes into the Result and a failure notice to the user.
func (m *Manager) Reserve(ctx context.Context, itemID int64, storeName string, autoCancelAfter time.Duration) Result {
	slog.Info("Attempting to reserve bag", "store", storeName, "item", itemID)

	orderID, err := m.client.CreateOrder(ctx, itemID)
	if err != nil {
		slog.Error("Failed to reserve bag", "store", storeName, "item", itemID, "error", err)
		m.notifier.PushText(ctx, fmt.Sprintf(
			"❌ <b>Reservation failed</b>\n\n🏪 <b>Store:</b> %s\n🚨 <b>Error:</b> %s", storeName, err))
		return Result{Err: fmt.Errorf("failed to reserve bag at %s: %w", storeName, err)}
	}

	now := m.now()
	res := models.Reservation{
		OrderID:      orderID,
		ItemID:       itemID,
		StoreName:    storeName,
		ReservedAt:   now,
		AutoCancelAt: now.Add(autoCancelAfter),
	}

	handle := m.scheduler.Schedule(autoCancelAfter, func() {
		slog.Info("Auto-cancel timer fired", "order", orderID)
		m.Cancel(context.Background(), orderID, false)
	})
	m.store.Put(orderID, res, handle)

	m.notifier.PushText(ctx, fmt.Sprintf(
		"✅ <b>Bag reserved!</b>\n\n"+
			"🏪 <b>Store:</b> %s\n"+
			"🆔 <b>Order ID:</b> <code>%s</code>\n"+
			"🚨 <b>Auto-cancel at:</b> %s\n\n"+
			"💡 Open the app and complete the payment before the hold expires, "+
			"or cancel to free the bag up for others.",
		storeName, orderID, res.AutoCancelAt.Format("15:04:05")))

	slog.Info("Reserved bag", "store", storeName, "order", orderID, "auto_cancel_at", res.AutoCancelAt)
	return Result{OrderID: orderID, AutoCancelAt: res.AutoCancelAt}
}

// Cancel is the sole terminal transition and is idempotent: the first
// caller to win the store removal aborts the order and notifies; any
// later caller finds nothing and returns true without side effects.
// False is returned only when the abort call itself fails.
func (m *Manager) Cancel(ctx context.Context, orderID string, manual bool) bool {
	res, ok := m.store.Remove(orderID)
	if !ok {
		// Already cancelled via the other trigger.
		slog.Debug("Cancel requested for unknown or already-cancelled order", "order", orderID)
		return true
	}

	if err := m.client.AbortOrder(ctx, orderID); err != nil {
		slog.Error("Failed to cancel reservation", "order", orderID, "error", err)
		m.notifier.PushText(ctx, fmt.Sprintf(
			"❌ <b>Cancellation failed</b>\n\n🆔 <b>Order ID:</b> <code>%s</code>\n🚨 <b>Error:</b> %s", orderID, err))
		return false
	}

	kind := "Automatic"
	if manual {
		kind = "Manual"
	}
	m.notifier.PushText(ctx, fmt.Sprintf(
		"🚫 <b>Reservation cancelled</b>\n\n"+
			"🏪 <b>Store:</b> %s\n"+
			"🆔 <b>Order ID:</b> <code>%s</code>\n"+
			"🔄 <b>Type:</b> %s cancellation\n\n"+
			"✅ The bag is available for other customers again.",
		res.StoreName, orderID, kind))

	slog.Info("Cancelled reservation", "order", orderID, "store", res.StoreName, "manual", manual)
	return true
}

// CleanupExpired cancels every reservation whose auto-cancel deadline
// has passed without its timer firing, e.g. after a missed timer. It
// returns how many reservations it reclaimed.
func (m *Manager) CleanupExpired(ctx context.Context) int {
	now := m.now()
	var cleaned int
	for orderID, res := range m.store.Snapshot() {
		if now.After(res.AutoCancelAt) {
			slog.Info("Cleaning up expired reservation", "order", orderID, "store", res.StoreName)
			if m.Cancel(ctx, orderID, false) {
				cleaned++
			}
		}
	}
	return cleaned
}

// Active returns a snapshot of the current reservations.
func (m *Manager) Active() map[string]models.Reservation {
	return m.store.Snapshot()
}
