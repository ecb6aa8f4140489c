// Package notify pushes hydrated order snapshots to external bookkeeping.
package notify

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/order"
)

const dateLayout = "2006-01-02"

// Snapshot is the flat row consumers upsert by Code.
type Snapshot struct {
	Code          string
	CreatedAt     time.Time
	DeliveredAt   *time.Time
	PlacedAt      time.Time
	Status        string
	Payment       string
	Customer      string
	SenderPhone   string
	ReceiverPhone string
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Tax           decimal.Decimal
	Coupon        string
	GrandTotal    decimal.Decimal
	DeliveryNotes string
	CardMessage   string
	CardImage     string
}

// SnapshotOf flattens a hydrated order.
func SnapshotOf(o *order.Order) Snapshot {
	s := Snapshot{
		Code:          o.Code,
		CreatedAt:     o.CreatedAt,
		DeliveredAt:   o.DeliveredAt,
		PlacedAt:      o.PlacedAt,
		Status:        string(o.Status),
		Payment:       string(o.Payment),
		Customer:      o.UserID,
		Subtotal:      o.Subtotal,
		Discount:      o.Discount,
		Tax:           o.Tax,
		Coupon:        o.CouponCode,
		GrandTotal:    o.GrandTotal,
		DeliveryNotes: o.DeliveryInstructions,
		CardMessage:   o.CardMessage,
		CardImage:     o.CardImage,
	}
	if s.PlacedAt.IsZero() {
		s.PlacedAt = o.CreatedAt
	}
	if a := o.ShippingAddress; a != nil {
		s.SenderPhone = a.SenderPhone
		s.ReceiverPhone = a.ReceiverPhone
	}
	return s
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

// Encode writes the snapshot as a JSON object.
func (s Snapshot) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Str(s.Code) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(fmtDate(s.CreatedAt)) })
		e.Field("deliveredAt", func(e *jx.Encoder) {
			if s.DeliveredAt == nil {
				e.Str("")
				return
			}
			e.Str(fmtDate(*s.DeliveredAt))
		})
		e.Field("placedAt", func(e *jx.Encoder) { e.Str(fmtDate(s.PlacedAt)) })
		e.Field("status", func(e *jx.Encoder) { e.Str(s.Status) })
		e.Field("payment", func(e *jx.Encoder) { e.Str(s.Payment) })
		e.Field("customer", func(e *jx.Encoder) { e.Str(s.Customer) })
		e.Field("senderPhone", func(e *jx.Encoder) { e.Str(s.SenderPhone) })
		e.Field("receiverPhone", func(e *jx.Encoder) { e.Str(s.ReceiverPhone) })
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(s.Subtotal.StringFixed(2)) })
		e.Field("discount", func(e *jx.Encoder) { e.Str(s.Discount.StringFixed(2)) })
		e.Field("tax", func(e *jx.Encoder) { e.Str(s.Tax.StringFixed(2)) })
		e.Field("coupon", func(e *jx.Encoder) { e.Str(s.Coupon) })
		e.Field("grandTotal", func(e *jx.Encoder) { e.Str(s.GrandTotal.StringFixed(2)) })
		e.Field("deliveryNotes", func(e *jx.Encoder) { e.Str(s.DeliveryNotes) })
		e.Field("cardMessage", func(e *jx.Encoder) { e.Str(s.CardMessage) })
		e.Field("cardImage", func(e *jx.Encoder) { e.Str(s.CardImage) })
	})
}

// Marshal returns the JSON encoding of the snapshot.
func (s Snapshot) Marshal() []byte {
	var e jx.Encoder
	s.Encode(&e)
	return e.Bytes()
}
