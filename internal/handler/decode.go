package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/order"
)

const dateLayout = "2006-01-02"

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, &order.ValidationError{Field: "body", Reason: "unreadable or too large"}
	}
	return data, nil
}

// asValidation keeps field-level errors and reports anything else as a
// malformed body.
func asValidation(err error) error {
	if err == nil {
		return nil
	}
	var vErr *order.ValidationError
	if errors.As(err, &vErr) {
		return vErr
	}
	return &order.ValidationError{Field: "body", Reason: "malformed JSON"}
}

func decodeStr(d *jx.Decoder, field string, dst *string) error {
	switch d.Next() {
	case jx.Null:
		return d.Null()
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return err
		}
		*dst = v
		return nil
	default:
		return &order.ValidationError{Field: field, Reason: "must be a string"}
	}
}

func decodeOptStr(d *jx.Decoder, field string, dst **string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	var v string
	if err := decodeStr(d, field, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

func decodeDecimal(d *jx.Decoder, field string, dst *decimal.Decimal) error {
	var raw string
	switch d.Next() {
	case jx.Null:
		return d.Null()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return err
		}
		raw = string(n)
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return err
		}
		raw = s
	default:
		return &order.ValidationError{Field: field, Reason: "must be a number"}
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return &order.ValidationError{Field: field, Reason: "must be a number"}
	}
	*dst = v
	return nil
}

func decodeItems(d *jx.Decoder) ([]order.Item, error) {
	if d.Next() != jx.Array {
		return nil, &order.ValidationError{Field: "items", Reason: "must be an array"}
	}
	var items []order.Item
	err := d.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.Object {
			return &order.ValidationError{Field: "items", Reason: "each item must be an object"}
		}
		var it order.Item
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "product":
				return decodeStr(d, "items.product", &it.ProductID)
			case "quantity":
				if d.Next() != jx.Number {
					return &order.ValidationError{Field: "items.quantity", Reason: "must be an integer"}
				}
				q, err := d.Int()
				if err != nil {
					return &order.ValidationError{Field: "items.quantity", Reason: "must be an integer"}
				}
				it.Quantity = q
				return nil
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

// decodeAddressRef accepts either an address id or inline address fields.
func decodeAddressRef(d *jx.Decoder) (order.AddressRef, error) {
	var ref order.AddressRef
	switch d.Next() {
	case jx.Null:
		return ref, d.Null()
	case jx.String:
		id, err := d.Str()
		ref.ID = id
		return ref, err
	case jx.Object:
		a := &order.Address{}
		err := d.Obj(func(d *jx.Decoder, key string) error {
			field := "shippingAddress." + key
			switch key {
			case "recipientName":
				return decodeStr(d, field, &a.RecipientName)
			case "senderPhone":
				return decodeStr(d, field, &a.SenderPhone)
			case "receiverPhone":
				return decodeStr(d, field, &a.ReceiverPhone)
			case "street":
				return decodeStr(d, field, &a.Street)
			case "city":
				return decodeStr(d, field, &a.City)
			case "country":
				return decodeStr(d, field, &a.Country)
			case "notes":
				return decodeStr(d, field, &a.Notes)
			default:
				return d.Skip()
			}
		})
		ref.Inline = a
		return ref, err
	default:
		return ref, &order.ValidationError{Field: "shippingAddress", Reason: "must be an id or an object"}
	}
}

func decodeCreate(data []byte) (order.CreateRequest, error) {
	var req order.CreateRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			return decodeStr(d, key, &req.Code)
		case "user":
			return decodeStr(d, key, &req.UserID)
		case "items":
			items, err := decodeItems(d)
			req.Items = items
			return err
		case "shippingAddress":
			ref, err := decodeAddressRef(d)
			req.ShippingAddress = ref
			return err
		case "couponCode", "appliedCoupon":
			var code string
			if err := decodeStr(d, key, &code); err != nil {
				return err
			}
			if code != "" {
				req.CouponCode = code
			}
			return nil
		case "taxAmount":
			return decodeDecimal(d, key, &req.Tax)
		case "deliveryInstructions":
			return decodeStr(d, key, &req.DeliveryInstructions)
		case "ar_deliveryInstructions":
			return decodeStr(d, key, &req.ArDeliveryInstructions)
		case "cardMessage":
			return decodeStr(d, key, &req.CardMessage)
		case "ar_cardMessage":
			return decodeStr(d, key, &req.ArCardMessage)
		case "cardImage":
			return decodeStr(d, key, &req.CardImage)
		default:
			return d.Skip()
		}
	})
	return req, asValidation(err)
}

// decodePatch reads the mutable fields only; everything else is ignored.
func decodePatch(data []byte) (order.Patch, error) {
	var p order.Patch
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			var v *string
			if err := decodeOptStr(d, key, &v); err != nil || v == nil {
				return err
			}
			st := order.Status(*v)
			p.Status = &st
			return nil
		case "payment":
			var v *string
			if err := decodeOptStr(d, key, &v); err != nil || v == nil {
				return err
			}
			pay := order.Payment(*v)
			p.Payment = &pay
			return nil
		case "confirmedAt":
			var v *string
			if err := decodeOptStr(d, key, &v); err != nil || v == nil {
				return err
			}
			t, err := time.Parse(time.RFC3339, *v)
			if err != nil {
				return &order.ValidationError{Field: key, Reason: "must be an RFC 3339 timestamp"}
			}
			p.ConfirmedAt = &t
			return nil
		case "cancelReason":
			return decodeOptStr(d, key, &p.CancelReason)
		case "satisfaction":
			return decodeOptStr(d, key, &p.Satisfaction)
		case "deliveryInstructions":
			return decodeOptStr(d, key, &p.DeliveryInstructions)
		case "ar_deliveryInstructions":
			return decodeOptStr(d, key, &p.ArDeliveryInstructions)
		case "cardMessage":
			return decodeOptStr(d, key, &p.CardMessage)
		case "ar_cardMessage":
			return decodeOptStr(d, key, &p.ArCardMessage)
		case "cardImage":
			return decodeOptStr(d, key, &p.CardImage)
		case "shippingAddress":
			ref, err := decodeAddressRef(d)
			if err != nil || ref.Empty() {
				return err
			}
			p.ShippingAddress = &ref
			return nil
		default:
			return d.Skip()
		}
	})
	return p, asValidation(err)
}

func decodeIDs(data []byte) ([]string, error) {
	var ids []string
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "ids" {
			return d.Skip()
		}
		if d.Next() != jx.Array {
			return &order.ValidationError{Field: "ids", Reason: "must be an array"}
		}
		return d.Arr(func(d *jx.Decoder) error {
			var id string
			if err := decodeStr(d, "ids", &id); err != nil {
				return err
			}
			if id != "" {
				ids = append(ids, id)
			}
			return nil
		})
	})
	return ids, asValidation(err)
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, &order.ValidationError{Field: field, Reason: "must be a date"}
	}
	return t, nil
}
