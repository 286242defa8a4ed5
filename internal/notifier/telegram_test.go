package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bkoehler/tgtg-notify/internal/models"
)

func testOffer() models.Offer {
	return models.Offer{
		ItemID:         67890,
		StoreID:        12345,
		DisplayName:    "Surprise Bag",
		StoreName:      "Test Bakery",
		Branch:         "Mitte",
		AddressLine:    "Some Street 1",
		City:           "Berlin",
		ItemsAvailable: 2,
		PickupStart:    "2025-01-01T18:00:00Z",
		PickupEnd:      "2025-01-01T20:00:00Z",
	}
}

func TestFormatOffer(t *testing.T) {
	text := formatOffer(testOffer(), time.UTC)

	for _, want := range []string{
		"<b>Test Bakery (Mitte)</b>",
		"Some Street 1, Berlin",
		"<b>Surprise Bag</b>",
		"<b>2</b> bags available",
		"⏰ <b>Pickup:</b> Wed 01 Jan 18:00 - 20:00",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("formatted offer missing %q:\n%s", want, text)
		}
	}
}

func TestFormatOffer_SingleBagNoBranch(t *testing.T) {
	offer := testOffer()
	offer.Branch = ""
	offer.ItemsAvailable = 1

	text := formatOffer(offer, time.UTC)
	if !strings.Contains(text, "<b>1</b> bag available") {
		t.Errorf("expected singular form:\n%s", text)
	}
	if strings.Contains(text, "()") {
		t.Errorf("empty branch rendered:\n%s", text)
	}
}

func TestFormatPickupWindow(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		want       string
	}{
		{"empty", "", "", ""},
		{"unparseable falls back to raw", "soonish", "later", "soonish - later"},
		{"valid", "2025-01-01T18:00:00Z", "2025-01-01T20:00:00Z", "Wed 01 Jan 18:00 - 20:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatPickupWindow(tt.start, tt.end, time.UTC); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// newTestClient points a Client at a local httptest server.
func newTestClient(serverURL string) *Client {
	c := New("test-token", "42", "UTC")
	c.baseURL = serverURL
	return c
}

func TestPushText(t *testing.T) {
	var captured sendMessagePayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.Write([]byte(`{"ok": true, "result": {}}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if !c.PushText(context.Background(), "hello") {
		t.Fatal("PushText returned false")
	}
	if captured.ChatID != "42" || captured.Text != "hello" || captured.ParseMode != "HTML" {
		t.Errorf("payload = %+v", captured)
	}
}

func TestPushText_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "description": "chat not found"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if c.PushText(context.Background(), "hello") {
		t.Error("PushText reported success for an API error")
	}
}

func TestPushOffer_AttachesReserveKeyboard(t *testing.T) {
	var captured sendMessagePayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{"ok": true, "result": {}}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if !c.PushOffer(context.Background(), testOffer()) {
		t.Fatal("PushOffer returned false")
	}

	if captured.ReplyMarkup == nil || len(captured.ReplyMarkup.InlineKeyboard) != 1 {
		t.Fatalf("keyboard missing: %+v", captured.ReplyMarkup)
	}
	row := captured.ReplyMarkup.InlineKeyboard[0]
	if len(row) != 2 || row[0].CallbackData != "reserve:67890" || row[1].CallbackData != "dismiss" {
		t.Errorf("keyboard row = %+v", row)
	}
}

func TestEditMessage_CancelButton(t *testing.T) {
	var captured editMessagePayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/editMessageText") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{"ok": true, "result": {}}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if !c.EditMessage(context.Background(), 7, 99, "reserved", "order-1") {
		t.Fatal("EditMessage returned false")
	}
	if captured.ChatID != 7 || captured.MessageID != 99 {
		t.Errorf("payload = %+v", captured)
	}
	if captured.ReplyMarkup == nil ||
		captured.ReplyMarkup.InlineKeyboard[0][0].CallbackData != "cancel:order-1" {
		t.Errorf("cancel button missing: %+v", captured.ReplyMarkup)
	}
}

func TestGetUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("offset"); got != "100" {
			t.Errorf("offset = %s, want 100", got)
		}
		w.Write([]byte(`{"ok": true, "result": [
			{"update_id": 100, "callback_query": {"id": "cb1", "data": "reserve:67890",
				"message": {"message_id": 5, "chat": {"id": 42}, "text": "🍽️ Test Bakery"}}},
			{"update_id": 101, "message": {"message_id": 6, "chat": {"id": 42}, "text": "/reservations"}}
		]}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	updates, err := c.GetUpdates(context.Background(), 100, time.Second)
	if err != nil {
		t.Fatalf("GetUpdates failed: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("len = %d, want 2", len(updates))
	}
	if updates[0].CallbackQuery == nil || updates[0].CallbackQuery.Data != "reserve:67890" {
		t.Errorf("first update = %+v", updates[0])
	}
	if updates[1].Message == nil || updates[1].Message.Text != "/reservations" {
		t.Errorf("second update = %+v", updates[1])
	}
}

func TestGetUpdates_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "description": "unauthorized"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if _, err := c.GetUpdates(context.Background(), 0, time.Second); err == nil {
		t.Error("expected error, got nil")
	}
}
