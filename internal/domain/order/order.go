package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusReturned  Status = "returned"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped,
		StatusDelivered, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

// Terminal reports whether no further fulfilment is expected.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusReturned
}

// Payment is the externally supplied payment state of an order.
type Payment string

const (
	PaymentPending  Payment = "pending"
	PaymentPaid     Payment = "paid"
	PaymentFailed   Payment = "failed"
	PaymentRefunded Payment = "refunded"
	PaymentPartial  Payment = "partial"
)

// Valid reports whether p is a known payment state.
func (p Payment) Valid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded, PaymentPartial:
		return true
	}
	return false
}

// Order is the authoritative record of a customer checkout.
type Order struct {
	ID     string
	Code   string
	UserID string

	Status  Status
	Payment Payment

	Items      []LineItem
	TotalItems int

	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal

	// CouponID is empty when no coupon was applied. CouponCode is only
	// populated on hydrated reads.
	CouponID       string
	CouponCode     string
	CouponRedeemed bool

	ShippingAddressID string
	ShippingAddress   *Address

	DeliveryInstructions   string
	ArDeliveryInstructions string
	CardMessage            string
	ArCardMessage          string
	CardImage              string
	Satisfaction           string
	CancelReason           string

	PlacedAt    time.Time
	ConfirmedAt *time.Time
	DeliveredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LineItem is a priced order line owned by exactly one order.
type LineItem struct {
	ID         string
	ProductIDs []string
	Quantity   int
	UnitPrice  decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
}

// Address is a shipping destination.
type Address struct {
	ID            string
	RecipientName string
	SenderPhone   string
	ReceiverPhone string
	Street        string
	City          string
	Country       string
	Notes         string
}

// AddressRef points at an existing address by ID or carries a new one to
// create inline. Exactly one of the two is set.
type AddressRef struct {
	ID     string
	Inline *Address
}

// Empty reports whether neither an ID nor inline fields were supplied.
func (r AddressRef) Empty() bool {
	return r.ID == "" && r.Inline == nil
}

// Item is a requested product and quantity.
type Item struct {
	ProductID string
	Quantity  int
}

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	Code            string
	UserID          string
	Items           []Item
	ShippingAddress AddressRef
	CouponCode      string
	Tax             decimal.Decimal

	DeliveryInstructions   string
	ArDeliveryInstructions string
	CardMessage            string
	ArCardMessage          string
	CardImage              string
}

// Patch is a sparse update restricted to the mutable order fields. Nil
// fields are left untouched.
type Patch struct {
	Status          *Status
	Payment         *Payment
	ConfirmedAt     *time.Time
	CancelReason    *string
	Satisfaction    *string
	ShippingAddress *AddressRef

	DeliveryInstructions   *string
	ArDeliveryInstructions *string
	CardMessage            *string
	ArCardMessage          *string
	CardImage              *string
}

// Filter narrows order listings. Zero values match everything; To is
// inclusive to the end of its day.
type Filter struct {
	UserID string
	Status Status
	From   time.Time
	To     time.Time
}
