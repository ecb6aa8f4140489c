package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/order"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/readmodel"
)

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	if t.IsZero() {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeOptTime(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	encodeTime(e, *t)
}

func strField(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func encodeAddress(e *jx.Encoder, a *order.Address) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", a.ID)
		strField(e, "recipientName", a.RecipientName)
		strField(e, "senderPhone", a.SenderPhone)
		strField(e, "receiverPhone", a.ReceiverPhone)
		strField(e, "street", a.Street)
		strField(e, "city", a.City)
		strField(e, "country", a.Country)
		strField(e, "notes", a.Notes)
	})
}

func encodeItem(e *jx.Encoder, it order.LineItem) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", it.ID)
		e.Field("products", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, id := range it.ProductIDs {
					e.Str(id)
				}
			})
		})
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("unitPrice", func(e *jx.Encoder) { encodeMoney(e, it.UnitPrice) })
		e.Field("discount", func(e *jx.Encoder) { encodeMoney(e, it.Discount) })
		e.Field("totalAmount", func(e *jx.Encoder) { encodeMoney(e, it.Total) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", o.ID)
		strField(e, "code", o.Code)
		strField(e, "user", o.UserID)
		strField(e, "status", string(o.Status))
		strField(e, "payment", string(o.Payment))
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					encodeItem(e, it)
				}
			})
		})
		e.Field("totalItems", func(e *jx.Encoder) { e.Int(o.TotalItems) })
		e.Field("subtotalAmount", func(e *jx.Encoder) { encodeMoney(e, o.Subtotal) })
		e.Field("discountAmount", func(e *jx.Encoder) { encodeMoney(e, o.Discount) })
		e.Field("taxAmount", func(e *jx.Encoder) { encodeMoney(e, o.Tax) })
		e.Field("grandTotal", func(e *jx.Encoder) { encodeMoney(e, o.GrandTotal) })
		e.Field("appliedCoupon", func(e *jx.Encoder) {
			if o.CouponID == "" {
				e.Null()
				return
			}
			e.Obj(func(e *jx.Encoder) {
				strField(e, "id", o.CouponID)
				strField(e, "code", o.CouponCode)
			})
		})
		e.Field("couponRedeemed", func(e *jx.Encoder) { e.Bool(o.CouponRedeemed) })
		e.Field("shippingAddress", func(e *jx.Encoder) {
			if o.ShippingAddress != nil {
				encodeAddress(e, o.ShippingAddress)
				return
			}
			e.Str(o.ShippingAddressID)
		})
		strField(e, "deliveryInstructions", o.DeliveryInstructions)
		strField(e, "ar_deliveryInstructions", o.ArDeliveryInstructions)
		strField(e, "cardMessage", o.CardMessage)
		strField(e, "ar_cardMessage", o.ArCardMessage)
		strField(e, "cardImage", o.CardImage)
		strField(e, "satisfaction", o.Satisfaction)
		strField(e, "cancelReason", o.CancelReason)
		e.Field("placedAt", func(e *jx.Encoder) { encodeTime(e, o.PlacedAt) })
		e.Field("confirmedAt", func(e *jx.Encoder) { encodeOptTime(e, o.ConfirmedAt) })
		e.Field("deliveredAt", func(e *jx.Encoder) { encodeOptTime(e, o.DeliveredAt) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })
	})
}

func encodeOrders(orders []order.Order) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	}
}

func encodeOngoing(entries []readmodel.Ongoing) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, v := range entries {
				e.Obj(func(e *jx.Encoder) {
					strField(e, "order", v.OrderID)
					strField(e, "user", v.UserID)
					strField(e, "status", string(v.Status))
					strField(e, "paymentStatus", v.PaymentStatus)
					e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, v.CreatedAt) })
					e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, v.UpdatedAt) })
				})
			}
		})
	}
}

func encodeHistory(entries []readmodel.History) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, v := range entries {
				e.Obj(func(e *jx.Encoder) {
					strField(e, "order", v.OrderID)
					strField(e, "user", v.UserID)
					strField(e, "status", string(v.Status))
					strField(e, "notes", v.Notes)
					strField(e, "ar_notes", v.ArNotes)
					e.Field("at", func(e *jx.Encoder) { encodeTime(e, v.At) })
					e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, v.CreatedAt) })
					e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, v.UpdatedAt) })
				})
			}
		})
	}
}

func encodeCancellations(entries []readmodel.Cancellation) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, v := range entries {
				e.Obj(func(e *jx.Encoder) {
					strField(e, "order", v.OrderID)
					strField(e, "user", v.UserID)
					strField(e, "status", string(v.Status))
					strField(e, "refundReason", v.RefundReason)
					strField(e, "paymentStatus", v.PaymentStatus)
					e.Field("refundAmount", func(e *jx.Encoder) { encodeMoney(e, v.RefundAmount) })
					e.Field("at", func(e *jx.Encoder) { encodeTime(e, v.At) })
					e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, v.CreatedAt) })
					e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, v.UpdatedAt) })
				})
			}
		})
	}
}
