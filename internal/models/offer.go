package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// OfferIdentity is the tuple that distinguishes notifiable offer events.
// The same store/item recurring with a different pickup window is a new
// event and gets notified again.
type OfferIdentity struct {
	StoreID     int64
	ItemID      int64
	PickupStart string
	PickupEnd   string
}

// Fingerprint returns a stable digest over the identity fields. It is
// stored alongside each notification record and doubles as the Firestore
// document ID; the SQLite lookup keys on the raw tuple instead.
func (id OfferIdentity) Fingerprint() string {
	s := fmt.Sprintf("%d_%d_%s_%s", id.StoreID, id.ItemID, id.PickupStart, id.PickupEnd)
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

// Offer is one marketplace listing from the favorites feed.
type Offer struct {
	ItemID         int64  `validate:"required"`
	DisplayName    string `validate:"required"`
	Description    string
	ItemsAvailable int `validate:"gte=0"`
	PickupStart    string
	PickupEnd      string
	StoreID        int64  `validate:"required"`
	StoreName      string `validate:"required"`
	Branch         string
	AddressLine    string
	City           string
	Country        string
}

func (o Offer) Identity() OfferIdentity {
	return OfferIdentity{
		StoreID:     o.StoreID,
		ItemID:      o.ItemID,
		PickupStart: o.PickupStart,
		PickupEnd:   o.PickupEnd,
	}
}

// NotificationRecord is a persisted "already notified" fact plus the
// denormalized fields shown in stats and recency listings.
type NotificationRecord struct {
	StoreID        int64     `json:"store_id"`
	ItemID         int64     `json:"item_id"`
	StoreName      string    `json:"store_name"`
	DisplayName    string    `json:"display_name"`
	ItemsAvailable int       `json:"items_available"`
	PickupStart    string    `json:"pickup_start"`
	PickupEnd      string    `json:"pickup_end"`
	OfferHash      string    `json:"offer_hash"`
	SentAt         time.Time `json:"sent_at"`
}

// flexID tolerates the marketplace API switching between numeric and
// string IDs across endpoints.
type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("id %q is not numeric: %w", s, err)
		}
		*f = flexID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n)
	return nil
}

// apiItem mirrors the loosely-typed favorites payload. Only the fields
// this system consumes are declared.
type apiItem struct {
	Item struct {
		ItemID flexID `json:"item_id"`
	} `json:"item"`
	DisplayName    string `json:"display_name"`
	Description    string `json:"description"`
	ItemsAvailable int    `json:"items_available"`
	PickupInterval struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"pickup_interval"`
	Store struct {
		StoreID       flexID `json:"store_id"`
		StoreName     string `json:"store_name"`
		Branch        string `json:"branch"`
		StoreLocation struct {
			Address struct {
				AddressLine string `json:"address_line"`
				City        string `json:"city"`
				Country     struct {
					Name string `json:"name"`
				} `json:"country"`
			} `json:"address"`
		} `json:"store_location"`
	} `json:"store"`
}

// ParseOffer converts one raw favorites item into a typed Offer,
// validating required fields at the boundary.
func ParseOffer(raw json.RawMessage) (Offer, error) {
	var item apiItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return Offer{}, fmt.Errorf("failed to decode offer payload: %w", err)
	}

	offer := Offer{
		ItemID:         int64(item.Item.ItemID),
		DisplayName:    item.DisplayName,
		Description:    item.Description,
		ItemsAvailable: item.ItemsAvailable,
		PickupStart:    item.PickupInterval.Start,
		PickupEnd:      item.PickupInterval.End,
		StoreID:        int64(item.Store.StoreID),
		StoreName:      item.Store.StoreName,
		Branch:         item.Store.Branch,
		AddressLine:    item.Store.StoreLocation.Address.AddressLine,
		City:           item.Store.StoreLocation.Address.City,
		Country:        item.Store.StoreLocation.Address.Country.Name,
	}

	if err := validate.Struct(offer); err != nil {
		return Offer{}, fmt.Errorf("offer payload failed validation: %w", err)
	}
	return offer, nil
}
