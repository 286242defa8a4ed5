// Package tgtg is a thin client for the marketplace API: the favorites
// feed plus order creation and abortion. Credentials come from a prior
// email login; no auth flow lives here.
package tgtg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bkoehler/tgtg-notify/internal/models"
	"github.com/bkoehler/tgtg-notify/internal/util"
)

const (
	defaultBaseURL = "https://apptoogoodtogo.com/api"
	userAgent      = "TGTG/24.1.0 Dalvik/2.1.0 (Linux; U; Android 10)"

	itemsEndpoint       = "/item/v8/"
	createOrderEndpoint = "/order/v7/create/%d"
	abortOrderEndpoint  = "/order/v7/%s/abort"

	fetchRetries   = 2
	fetchBaseDelay = 2 * time.Second
)

type Client struct {
	baseURL      string
	accessToken  string
	refreshToken string
	cookie       string
	client       *http.Client
	retryDelay   time.Duration
}

func New(accessToken, refreshToken, cookie string) *Client {
	return &Client{
		baseURL:      defaultBaseURL,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		cookie:       cookie,
		client:       &http.Client{Timeout: 30 * time.Second},
		retryDelay:   fetchBaseDelay,
	}
}

type itemsRequest struct {
	FavoritesOnly bool `json:"favorites_only"`
	PageSize      int  `json:"page_size"`
	Page          int  `json:"page"`
}

type itemsResponse struct {
	Items []json.RawMessage `json:"items"`
}

// FetchFavoritedOffers returns the favorited listings that currently
// have bags available, in feed order. The fetch is retried a few times;
// a final failure aborts the caller's cycle.
func (c *Client) FetchFavoritedOffers(ctx context.Context) ([]models.Offer, error) {
	var resp itemsResponse
	err := util.RetryWithBackoff(ctx, fetchRetries, c.retryDelay, func(attempt int) error {
		if attempt > 0 {
			slog.Warn("Retrying favorites fetch", "attempt", attempt)
		}
		return c.post(ctx, itemsEndpoint, itemsRequest{FavoritesOnly: true, PageSize: 100, Page: 1}, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch favorites: %w", err)
	}

	offers := make([]models.Offer, 0, len(resp.Items))
	for _, raw := range resp.Items {
		offer, err := models.ParseOffer(raw)
		if err != nil {
			slog.Warn("Skipping malformed favorites item", "error", err)
			continue
		}
		if offer.ItemsAvailable > 0 {
			offers = append(offers, offer)
		}
	}
	return offers, nil
}

type createOrderRequest struct {
	ItemCount int `json:"item_count"`
}

type createOrderResponse struct {
	State string `json:"state"`
	Order struct {
		ID string `json:"id"`
	} `json:"order"`
}

// CreateOrder reserves one bag of the item and returns the order ID the
// marketplace assigned.
func (c *Client) CreateOrder(ctx context.Context, itemID int64) (string, error) {
	var resp createOrderResponse
	if err := c.post(ctx, fmt.Sprintf(createOrderEndpoint, itemID), createOrderRequest{ItemCount: 1}, &resp); err != nil {
		return "", fmt.Errorf("failed to create order for item %d: %w", itemID, err)
	}
	if resp.State != "SUCCESS" {
		return "", fmt.Errorf("order for item %d rejected: state %s", itemID, resp.State)
	}
	if resp.Order.ID == "" {
		return "", fmt.Errorf("order for item %d returned no order ID", itemID)
	}
	return resp.Order.ID, nil
}

type abortOrderRequest struct {
	CancelReasonID int `json:"cancellation_reason_id"`
}

type abortOrderResponse struct {
	State string `json:"state"`
}

// AbortOrder releases a previously created order. Failures are returned
// for the caller to surface; no retry is attempted.
func (c *Client) AbortOrder(ctx context.Context, orderID string) error {
	var resp abortOrderResponse
	if err := c.post(ctx, fmt.Sprintf(abortOrderEndpoint, orderID), abortOrderRequest{CancelReasonID: 1}, &resp); err != nil {
		return fmt.Errorf("failed to abort order %s: %w", orderID, err)
	}
	if resp.State != "SUCCESS" {
		return fmt.Errorf("abort of order %s rejected: state %s", orderID, resp.State)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("marketplace API status %s: %s", resp.Status, string(respBody))
	}
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode marketplace response: %w", err)
		}
	}
	return nil
}
