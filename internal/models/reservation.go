package models

import "time"

// Reservation is a time-boxed hold on one bag, keyed by the order ID the
// marketplace assigned when the order was created. Reservations live only
// in memory; they do not survive a restart.
type Reservation struct {
	OrderID      string
	ItemID       int64
	StoreName    string
	ReservedAt   time.Time
	AutoCancelAt time.Time
}
