// Package readmodel derives the ongoing, history and cancellation views from
// the authoritative order record and keeps them in sync.
package readmodel

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/order"
)

// Collection names one of the derived views.
type Collection string

const (
	CollectionOngoing Collection = "ongoing"
	CollectionHistory Collection = "history"
	CollectionCancel  Collection = "cancel"
)

// Collections lists every view in sync order.
var Collections = []Collection{CollectionOngoing, CollectionHistory, CollectionCancel}

// Presence tells which views must hold an entry for an order.
type Presence struct {
	Ongoing bool
	History bool
	Cancel  bool
}

// Has reports whether c must hold an entry.
func (p Presence) Has(c Collection) bool {
	switch c {
	case CollectionOngoing:
		return p.Ongoing
	case CollectionHistory:
		return p.History
	case CollectionCancel:
		return p.Cancel
	}
	return false
}

// Plan maps an order status to the views that must contain it.
//
//	pending, confirmed, shipped -> ongoing
//	delivered                   -> history
//	cancelled, returned         -> history, cancel
func Plan(status order.Status) Presence {
	switch status {
	case order.StatusPending, order.StatusConfirmed, order.StatusShipped:
		return Presence{Ongoing: true}
	case order.StatusDelivered:
		return Presence{History: true}
	case order.StatusCancelled, order.StatusReturned:
		return Presence{History: true, Cancel: true}
	}
	return Presence{}
}

// Payment flags exposed by the views.
const (
	PaymentPaid    = "paid"
	PaymentPending = "pending"
	PaymentUnpaid  = "unpaid"
)

// Ongoing is an order still being fulfilled. CreatedAt is set once, when
// the entry first appears.
type Ongoing struct {
	OrderID       string
	UserID        string
	Status        order.Status
	PaymentStatus string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// History is a finished order with the card notes shown to the customer.
type History struct {
	OrderID   string
	UserID    string
	Status    order.Status
	Notes     string
	ArNotes   string
	At        time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cancellation records a cancelled or returned order awaiting refund
// handling. RefundAmount is never computed here.
type Cancellation struct {
	OrderID       string
	UserID        string
	Status        order.Status
	RefundReason  string
	PaymentStatus string
	RefundAmount  decimal.Decimal
	At            time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OngoingFor builds the ongoing entry for o.
func OngoingFor(o *order.Order, now time.Time) Ongoing {
	payment := PaymentPending
	if o.Payment == order.PaymentPaid {
		payment = PaymentPaid
	}
	return Ongoing{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentStatus: payment,
		CreatedAt:     now,
	}
}

// HistoryFor builds the history entry for o. At falls back to now for
// orders that never reached delivery.
func HistoryFor(o *order.Order, now time.Time) History {
	at := now
	if o.DeliveredAt != nil {
		at = *o.DeliveredAt
	}
	return History{
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  o.Status,
		Notes:   o.CardMessage,
		ArNotes: o.ArCardMessage,
		At:      at,
	}
}

// CancellationFor builds the cancellation entry for o.
func CancellationFor(o *order.Order, now time.Time) Cancellation {
	payment := PaymentUnpaid
	if o.Payment == order.PaymentPaid {
		payment = PaymentPaid
	}
	return Cancellation{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Status:        o.Status,
		RefundReason:  o.CancelReason,
		PaymentStatus: payment,
		RefundAmount:  decimal.Zero,
		At:            now,
	}
}

// Store persists the views. Upserts must leave unchanged rows untouched and
// keep first-insert fields (CreatedAt, At, RefundAmount) as they were;
// deletes of absent entries are no-ops.
type Store interface {
	UpsertOngoing(ctx context.Context, e Ongoing) error
	DeleteOngoing(ctx context.Context, orderIDs ...string) error
	UpsertHistory(ctx context.Context, e History) error
	DeleteHistory(ctx context.Context, orderID string) error
	UpsertCancellation(ctx context.Context, e Cancellation) error
	DeleteCancellation(ctx context.Context, orderID string) error
}

// Reader lists view entries, optionally for a single user.
type Reader interface {
	ListOngoing(ctx context.Context, userID string) ([]Ongoing, error)
	ListHistory(ctx context.Context, userID string) ([]History, error)
	ListCancellations(ctx context.Context, userID string) ([]Cancellation, error)
}
