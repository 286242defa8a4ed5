// Package notifier is the Telegram transport: it pushes offer and status
// messages to the configured chat and exposes the update long-poll the
// bot handler consumes.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bkoehler/tgtg-notify/internal/models"
)

const defaultBaseURL = "https://api.telegram.org"

type Client struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
	loc     *time.Location
}

// New creates a Telegram client for one bot token and one target chat.
// An unknown timezone falls back to UTC for pickup-window rendering.
func New(token, chatID, timezone string) *Client {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		slog.Warn("Unknown timezone, falling back to UTC", "timezone", timezone, "error", err)
		loc = time.UTC
	}
	return &Client{
		baseURL: defaultBaseURL,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 35 * time.Second},
		loc:     loc,
	}
}

// --- Wire types ---

type inlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

type sendMessagePayload struct {
	ChatID      string                `json:"chat_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *inlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

type editMessagePayload struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *inlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Update is one inbound event from getUpdates.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      Chat   `json:"chat"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data"`
	Message *Message `json:"message"`
}

// --- Outbound ---

// PushText sends a plain HTML-formatted message to the configured chat.
func (c *Client) PushText(ctx context.Context, text string) bool {
	payload := sendMessagePayload{ChatID: c.chatID, Text: text, ParseMode: "HTML"}
	if err := c.call(ctx, "sendMessage", payload, nil); err != nil {
		slog.Error("Failed to send Telegram message", "error", err)
		return false
	}
	return true
}

// PushOffer sends one offer notification with reserve/dismiss buttons.
func (c *Client) PushOffer(ctx context.Context, offer models.Offer) bool {
	payload := sendMessagePayload{
		ChatID:    c.chatID,
		Text:      formatOffer(offer, c.loc),
		ParseMode: "HTML",
		ReplyMarkup: &inlineKeyboardMarkup{InlineKeyboard: [][]inlineKeyboardButton{{
			{Text: "🛒 Reserve Bag", CallbackData: fmt.Sprintf("reserve:%d", offer.ItemID)},
			{Text: "🚫 Dismiss", CallbackData: "dismiss"},
		}}},
	}
	if err := c.call(ctx, "sendMessage", payload, nil); err != nil {
		slog.Error("Failed to send offer notification", "store", offer.StoreName, "item", offer.ItemID, "error", err)
		return false
	}
	return true
}

// EditMessage rewrites a previously sent message, optionally attaching a
// cancel button keyed by order ID.
func (c *Client) EditMessage(ctx context.Context, chatID, messageID int64, text string, cancelOrderID string) bool {
	payload := editMessagePayload{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: "HTML",
	}
	if cancelOrderID != "" {
		payload.ReplyMarkup = &inlineKeyboardMarkup{InlineKeyboard: [][]inlineKeyboardButton{{
			{Text: "🚫 Cancel Reservation", CallbackData: "cancel:" + cancelOrderID},
		}}}
	}
	if err := c.call(ctx, "editMessageText", payload, nil); err != nil {
		slog.Warn("Failed to edit Telegram message", "message_id", messageID, "error", err)
		return false
	}
	return true
}

// AnswerCallback acknowledges a button press so the client stops showing
// a spinner. Failures are logged only.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) {
	payload := map[string]string{"callback_query_id": callbackID}
	if err := c.call(ctx, "answerCallbackQuery", payload, nil); err != nil {
		slog.Warn("Failed to answer callback query", "error", err)
	}
}

// --- Inbound ---

// GetUpdates long-polls for inbound updates past offset. timeout is the
// server-side hold; the HTTP client allows a little extra on top.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	params.Set("allowed_updates", `["message","callback_query"]`)

	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", c.baseURL, c.token, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode getUpdates response: %w", err)
	}
	if !apiResp.OK {
		return nil, fmt.Errorf("telegram getUpdates failed: %s", apiResp.Description)
	}

	var updates []Update
	if err := json.Unmarshal(apiResp.Result, &updates); err != nil {
		return nil, fmt.Errorf("failed to decode updates: %w", err)
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return fmt.Errorf("telegram %s: status %s, body %s", method, resp.Status, string(respBody))
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram %s failed: %s", method, apiResp.Description)
	}
	if result != nil {
		return json.Unmarshal(apiResp.Result, result)
	}
	return nil
}

// formatOffer renders one offer notification. Pickup bounds are shown in
// the configured timezone; unparseable bounds fall back to the raw
// strings rather than dropping the window.
func formatOffer(offer models.Offer, loc *time.Location) string {
	store := offer.StoreName
	if offer.Branch != "" {
		store = fmt.Sprintf("%s (%s)", offer.StoreName, offer.Branch)
	}

	bags := "bags"
	if offer.ItemsAvailable == 1 {
		bags = "bag"
	}

	text := fmt.Sprintf(
		"🍽️ <b>%s</b>\n📍 %s, %s\n🛍️ <b>%s</b>\n📦 <b>%d</b> %s available",
		store, offer.AddressLine, offer.City, offer.DisplayName, offer.ItemsAvailable, bags)

	if window := formatPickupWindow(offer.PickupStart, offer.PickupEnd, loc); window != "" {
		text += "\n⏰ <b>Pickup:</b> " + window
	}
	return text
}

func formatPickupWindow(start, end string, loc *time.Location) string {
	if start == "" || end == "" {
		return ""
	}
	startAt, errStart := time.Parse(time.RFC3339, start)
	endAt, errEnd := time.Parse(time.RFC3339, end)
	if errStart != nil || errEnd != nil {
		return fmt.Sprintf("%s - %s", start, end)
	}
	startLocal := startAt.In(loc)
	endLocal := endAt.In(loc)
	return fmt.Sprintf("%s %s - %s",
		startLocal.Format("Mon 02 Jan"), startLocal.Format("15:04"), endLocal.Format("15:04"))
}
