// Package bot dispatches inbound chat updates: reserve/cancel button
// presses from offer notifications and the handful of status commands.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bkoehler/tgtg-notify/internal/models"
	"github.com/bkoehler/tgtg-notify/internal/notifier"
	"github.com/bkoehler/tgtg-notify/internal/reservation"
)

// ReservationManager is the slice of the reservation lifecycle this
// package drives.
type ReservationManager interface {
	Reserve(ctx context.Context, itemID int64, storeName string, autoCancelAfter time.Duration) reservation.Result
	Cancel(ctx context.Context, orderID string, manual bool) bool
	Active() map[string]models.Reservation
}

// Transport is the slice of the chat client the handler needs.
type Transport interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]notifier.Update, error)
	EditMessage(ctx context.Context, chatID, messageID int64, text string, cancelOrderID string) bool
	AnswerCallback(ctx context.Context, callbackID string)
	PushText(ctx context.Context, text string) bool
}

const (
	pollTimeout  = 30 * time.Second
	errorBackoff = 5 * time.Second
)

type Handler struct {
	transport       Transport
	manager         ReservationManager
	autoCancelAfter time.Duration
}

func New(transport Transport, manager ReservationManager, autoCancelAfter time.Duration) *Handler {
	return &Handler{
		transport:       transport,
		manager:         manager,
		autoCancelAfter: autoCancelAfter,
	}
}

// Run long-polls for updates until the context is cancelled.
func (h *Handler) Run(ctx context.Context) error {
	slog.Info("Bot update loop started")
	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := h.transport.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("Failed to fetch updates", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errorBackoff):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			h.dispatch(ctx, update)
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, update notifier.Update) {
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && strings.HasPrefix(update.Message.Text, "/"):
		h.handleCommand(ctx, update.Message)
	}
}

func (h *Handler) handleCallback(ctx context.Context, query *notifier.CallbackQuery) {
	h.transport.AnswerCallback(ctx, query.ID)
	slog.Info("Received callback", "data", query.Data)

	if query.Message == nil {
		slog.Warn("Callback without source message, ignoring", "data", query.Data)
		return
	}

	switch {
	case strings.HasPrefix(query.Data, "reserve:"):
		h.handleReserve(ctx, query)
	case strings.HasPrefix(query.Data, "cancel:"):
		h.handleCancel(ctx, query)
	case query.Data == "dismiss":
		h.edit(ctx, query, "🚫 <b>Offer dismissed</b>\n\nYou chose not to reserve this bag. You'll keep getting notified about new offers.", "")
	default:
		h.edit(ctx, query, "❌ Unknown action. Please try again.", "")
	}
}

func (h *Handler) handleReserve(ctx context.Context, query *notifier.CallbackQuery) {
	itemID, err := strconv.ParseInt(strings.TrimPrefix(query.Data, "reserve:"), 10, 64)
	if err != nil {
		h.edit(ctx, query, "❌ <b>Error:</b> malformed reserve action.", "")
		return
	}
	storeName := storeNameFromMessage(query.Message.Text)

	h.edit(ctx, query, fmt.Sprintf(
		"⏳ <b>Reserving bag...</b>\n\n🏪 <b>Store:</b> %s\n🆔 <b>Item ID:</b> <code>%d</code>", storeName, itemID), "")

	result := h.manager.Reserve(ctx, itemID, storeName, h.autoCancelAfter)
	if !result.Success() {
		h.edit(ctx, query, fmt.Sprintf(
			"❌ <b>Reservation failed</b>\n\n🏪 <b>Store:</b> %s\n🚨 <b>Error:</b> %s\n\nThe bag might already be taken.",
			storeName, result.Err), "")
		return
	}

	h.edit(ctx, query, fmt.Sprintf(
		"✅ <b>Reservation successful!</b>\n\n"+
			"🏪 <b>Store:</b> %s\n"+
			"🆔 <b>Order ID:</b> <code>%s</code>\n"+
			"🚨 <b>Auto-cancel at:</b> %s\n\n"+
			"💡 Quick, open the app and complete your payment!",
		storeName, result.OrderID, result.AutoCancelAt.Format("15:04:05")), result.OrderID)
}

func (h *Handler) handleCancel(ctx context.Context, query *notifier.CallbackQuery) {
	orderID := strings.TrimPrefix(query.Data, "cancel:")

	if h.manager.Cancel(ctx, orderID, true) {
		h.edit(ctx, query, fmt.Sprintf(
			"✅ <b>Reservation cancelled</b>\n\n🆔 <b>Order ID:</b> <code>%s</code>\n\nThe bag is available for other customers again.", orderID), "")
	} else {
		h.edit(ctx, query, fmt.Sprintf(
			"❌ <b>Cancellation failed</b>\n\n🆔 <b>Order ID:</b> <code>%s</code>\n\nThe reservation might have already expired.", orderID), "")
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *notifier.Message) {
	command := strings.Fields(msg.Text)[0]
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}

	switch command {
	case "/reservations":
		h.listReservations(ctx)
	case "/cancel_all":
		h.cancelAll(ctx)
	default:
		slog.Debug("Ignoring unknown command", "command", command)
	}
}

func (h *Handler) listReservations(ctx context.Context) {
	active := h.manager.Active()
	if len(active) == 0 {
		h.transport.PushText(ctx, "📭 <b>No active reservations</b>\n\nYou don't have any bag reservations right now.")
		return
	}

	orderIDs := make([]string, 0, len(active))
	for orderID := range active {
		orderIDs = append(orderIDs, orderID)
	}
	sort.Strings(orderIDs)

	lines := []string{"📋 <b>Active reservations</b>\n"}
	for _, orderID := range orderIDs {
		res := active[orderID]
		lines = append(lines, fmt.Sprintf(
			"🏪 <b>%s</b>\n🆔 Order: <code>%s</code>\n⏰ Reserved: %s\n🚨 Auto-cancel: %s\n",
			res.StoreName, orderID,
			res.ReservedAt.Format("15:04:05"), res.AutoCancelAt.Format("15:04:05")))
	}
	h.transport.PushText(ctx, strings.Join(lines, "\n"))
}

func (h *Handler) cancelAll(ctx context.Context) {
	active := h.manager.Active()
	if len(active) == 0 {
		h.transport.PushText(ctx, "📭 No active reservations to cancel.")
		return
	}

	var cancelled int
	for orderID := range active {
		if h.manager.Cancel(ctx, orderID, true) {
			cancelled++
		}
	}
	h.transport.PushText(ctx, fmt.Sprintf(
		"✅ <b>Bulk cancellation complete</b>\n\nCancelled %d out of %d reservations.", cancelled, len(active)))
}

func (h *Handler) edit(ctx context.Context, query *notifier.CallbackQuery, text, cancelOrderID string) {
	msg := query.Message
	h.transport.EditMessage(ctx, msg.Chat.ID, msg.MessageID, text, cancelOrderID)
}

// storeNameFromMessage recovers the store name from the first line of an
// offer notification, which renders as "🍽️ <store name>".
func storeNameFromMessage(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "🍽️"))
	if line == "" {
		return "Unknown Store"
	}
	return line
}
