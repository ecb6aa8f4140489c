package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/coupon"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/pricing"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/product"
)

// Service is the order transaction manager. Creation and updates run as a
// single transaction; read-model reflection and notification follow the
// commit and never fail the operation.
type Service struct {
	store     Store
	catalog   product.Catalog
	coupons   *coupon.Validator
	reflector Reflector
	notifier  Notifier
	tracer    trace.Tracer

	now   func() time.Time
	newID func() string

	// settleTimeout bounds the post-commit work, which outlives the request.
	settleTimeout time.Duration
}

// NewService creates an order Service with the required dependencies.
func NewService(
	store Store,
	catalog product.Catalog,
	reflector Reflector,
	notifier Notifier,
	tp trace.TracerProvider,
) *Service {
	return &Service{
		store:     store,
		catalog:   catalog,
		coupons:   coupon.NewValidator(),
		reflector: reflector,
		notifier:  notifier,
		tracer:    tp.Tracer("github.com/SagheerHussain/crunchy-cookies-server/internal/domain/order"),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },

		settleTimeout: 30 * time.Second,
	}
}

func validateCreate(req CreateRequest) error {
	switch {
	case strings.TrimSpace(req.Code) == "":
		return &ValidationError{Field: "code", Reason: "required"}
	case strings.TrimSpace(req.UserID) == "":
		return &ValidationError{Field: "user", Reason: "required"}
	case len(req.Items) == 0:
		return ErrEmptyItems
	case req.ShippingAddress.Empty():
		return &ValidationError{Field: "shippingAddress", Reason: "required"}
	case req.Tax.IsNegative():
		return &ValidationError{Field: "taxAmount", Reason: "must not be negative"}
	}
	for _, it := range req.Items {
		if it.ProductID == "" {
			return &ValidationError{Field: "items.product", Reason: "required"}
		}
		if it.Quantity < 1 {
			return &InvalidQuantityError{ProductID: it.ProductID}
		}
	}
	return nil
}

// priceLines resolves unit prices for the requested items. Any product
// missing from the catalog or priced at zero fails the whole request.
func (s *Service) priceLines(ctx context.Context, items []Item) ([]pricing.Line, error) {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	prices, err := s.catalog.PriceMap(ctx, product.UniqueIDs(ids))
	if err != nil {
		return nil, errors.Wrap(err, "resolve prices")
	}

	lines := make([]pricing.Line, len(items))
	for i, it := range items {
		price, ok := prices[it.ProductID]
		if !ok || !price.IsPositive() {
			return nil, &InvalidProductError{ProductID: it.ProductID}
		}
		lines[i] = pricing.Line{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: price}
	}
	return lines, nil
}

func (s *Service) resolveAddress(ctx context.Context, tx Tx, ref AddressRef) (string, error) {
	if ref.Inline != nil {
		a := *ref.Inline
		a.ID = s.newID()
		if err := tx.CreateAddress(ctx, &a); err != nil {
			return "", errors.Wrap(err, "create address")
		}
		return a.ID, nil
	}

	ok, err := tx.AddressExists(ctx, ref.ID)
	if err != nil {
		return "", errors.Wrap(err, "check address")
	}
	if !ok {
		return "", ErrAddressNotFound
	}
	return ref.ID, nil
}

// Create validates and prices the request, applies the coupon and persists
// the order with its line items and address in one transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create",
		trace.WithAttributes(attribute.String("order.code", req.Code)),
	)
	defer func() { endSpan(span, rerr) }()

	if err := validateCreate(req); err != nil {
		return nil, err
	}

	lines, err := s.priceLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	var created *Order
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockUser(ctx, req.UserID); err != nil {
			return errors.Wrap(err, "lock user")
		}
		ongoing, err := tx.HasOngoing(ctx, req.UserID)
		if err != nil {
			return errors.Wrap(err, "check ongoing order")
		}
		if ongoing {
			return ErrOngoingOrderExists
		}

		subtotal, _, err := pricing.Subtotal(lines)
		if err != nil {
			return err
		}

		var applied *coupon.Coupon
		if code := coupon.NormalizeCode(req.CouponCode); code != "" {
			c, err := tx.FindCouponByCode(ctx, code)
			if err != nil && !errors.Is(err, coupon.ErrInvalidCoupon) {
				return errors.Wrap(err, "find coupon")
			}
			if err := s.coupons.Validate(ctx, tx, c, req.UserID, subtotal); err != nil {
				return err
			}
			applied = c
		}

		var discounter pricing.Discounter
		if applied != nil {
			discounter = applied
		}
		totals, err := pricing.Compute(lines, discounter, req.Tax)
		if err != nil {
			return err
		}

		addressID, err := s.resolveAddress(ctx, tx, req.ShippingAddress)
		if err != nil {
			return err
		}

		now := s.now()
		o := &Order{
			ID:                     s.newID(),
			Code:                   strings.TrimSpace(req.Code),
			UserID:                 req.UserID,
			Status:                 StatusPending,
			Payment:                PaymentPending,
			Items:                  make([]LineItem, len(lines)),
			TotalItems:             totals.TotalItems,
			Subtotal:               totals.Subtotal,
			Discount:               totals.Discount,
			Tax:                    totals.Tax,
			GrandTotal:             totals.GrandTotal,
			ShippingAddressID:      addressID,
			DeliveryInstructions:   req.DeliveryInstructions,
			ArDeliveryInstructions: req.ArDeliveryInstructions,
			CardMessage:            req.CardMessage,
			ArCardMessage:          req.ArCardMessage,
			CardImage:              req.CardImage,
			PlacedAt:               now,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		if applied != nil {
			o.CouponID = applied.ID
			o.CouponCode = applied.Code
		}
		for i, l := range lines {
			o.Items[i] = LineItem{
				ID:         s.newID(),
				ProductIDs: []string{l.ProductID},
				Quantity:   l.Quantity,
				UnitPrice:  l.UnitPrice,
				Discount:   decimal.Zero,
				Total:      totals.LineTotals[i],
			}
		}

		if err := tx.CreateOrder(ctx, o); err != nil {
			if errors.Is(err, ErrDuplicateCode) {
				return ErrDuplicateCode
			}
			return errors.Wrap(err, "create order")
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, created, false)
	return created, nil
}

func validatePatch(p Patch) error {
	if p.Status != nil && !p.Status.Valid() {
		return &ValidationError{Field: "status", Reason: "unknown status " + string(*p.Status)}
	}
	if p.Payment != nil && !p.Payment.Valid() {
		return &ValidationError{Field: "payment", Reason: "unknown payment " + string(*p.Payment)}
	}
	if p.ShippingAddress != nil && p.ShippingAddress.Empty() {
		return &ValidationError{Field: "shippingAddress", Reason: "must not be empty"}
	}
	return nil
}

func (s *Service) applyPatch(o *Order, p Patch) {
	if p.Status != nil {
		if *p.Status == StatusDelivered && o.Status != StatusDelivered {
			now := s.now()
			o.DeliveredAt = &now
		}
		o.Status = *p.Status
	}
	if p.Payment != nil {
		o.Payment = *p.Payment
	}
	if p.ConfirmedAt != nil {
		t := *p.ConfirmedAt
		o.ConfirmedAt = &t
	}
	setString(&o.CancelReason, p.CancelReason)
	setString(&o.Satisfaction, p.Satisfaction)
	setString(&o.DeliveryInstructions, p.DeliveryInstructions)
	setString(&o.ArDeliveryInstructions, p.ArDeliveryInstructions)
	setString(&o.CardMessage, p.CardMessage)
	setString(&o.ArCardMessage, p.ArCardMessage)
	setString(&o.CardImage, p.CardImage)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// redeemCoupon records coupon usage on the order's first transition into
// paid. Cap checks and the increment share the caller's transaction.
func (s *Service) redeemCoupon(ctx context.Context, tx Tx, o *Order) error {
	c, err := tx.GetCouponForUpdate(ctx, o.CouponID)
	if errors.Is(err, coupon.ErrInvalidCoupon) {
		// Coupon deleted since the order was placed; nothing to redeem.
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "lock coupon")
	}

	if err := s.coupons.CheckCaps(ctx, tx, c, o.UserID, o.ID); err != nil {
		return err
	}

	ok, err := tx.RedeemCoupon(ctx, c.ID, o.UserID)
	if err != nil {
		return errors.Wrap(err, "redeem coupon")
	}
	if !ok {
		return coupon.ErrTotalUsageLimitReached
	}
	o.CouponRedeemed = true
	return nil
}

// Update applies an allow-listed patch to an order. A first transition of
// payment into paid redeems the applied coupon in the same transaction.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Update",
		trace.WithAttributes(attribute.String("order.id", id)),
	)
	defer func() { endSpan(span, rerr) }()

	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	var updated *Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotFound
			}
			return errors.Wrap(err, "load order")
		}

		if patch.ShippingAddress != nil {
			addressID, err := s.resolveAddress(ctx, tx, *patch.ShippingAddress)
			if err != nil {
				return err
			}
			o.ShippingAddressID = addressID
		}

		paidBefore := o.Payment == PaymentPaid
		s.applyPatch(o, patch)

		if !paidBefore && o.Payment == PaymentPaid && o.CouponID != "" && !o.CouponRedeemed {
			if err := s.redeemCoupon(ctx, tx, o); err != nil {
				return err
			}
		}

		o.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if hydrated := s.afterCommit(ctx, updated, true); hydrated != nil {
		return hydrated, nil
	}
	return updated, nil
}

// afterCommit reflects the committed order into the read models and pushes
// a snapshot to the notifier. Failures are logged, never returned. It
// returns the hydrated order, or nil if it could not be loaded.
//
// The order is already committed, so the work runs even if the caller's
// context is cancelled.
func (s *Service) afterCommit(ctx context.Context, o *Order, awaitNotify bool) *Order {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settleTimeout)
	defer cancel()

	lg := zctx.From(ctx).With(
		zap.String("order_code", o.Code),
		zap.String("order_id", o.ID),
	)

	if err := s.reflector.Reflect(ctx, o.ID); err != nil {
		lg.Error("Reflect order state", zap.Error(err))
	}

	hydrated, err := s.store.Get(ctx, o.ID)
	if err != nil {
		lg.Error("Load order for notification", zap.Error(err))
		return nil
	}

	if !awaitNotify {
		s.notifier.PushAsync(ctx, hydrated)
		return hydrated
	}
	if err := s.notifier.Push(ctx, hydrated); err != nil {
		lg.Error("Push order snapshot", zap.Error(err))
	}
	return hydrated
}

// Delete removes an order. History and cancellation entries are kept; the
// ongoing entry is cleaned up on a best-effort basis.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrap(err, "delete order")
	}

	if err := s.reflector.ForgetOngoing(ctx, []string{id}); err != nil {
		zctx.From(ctx).Error("Clean up ongoing order",
			zap.String("order_id", id),
			zap.Error(err),
		)
	}
	return nil
}

// BulkDelete removes all orders with the given ids and returns how many
// existed.
func (s *Service) BulkDelete(ctx context.Context, ids []string) (int, error) {
	ids = product.UniqueIDs(ids)
	if len(ids) == 0 {
		return 0, ErrEmptyIDs
	}

	n, err := s.store.BulkDelete(ctx, ids)
	if err != nil {
		return 0, errors.Wrap(err, "bulk delete orders")
	}

	if err := s.reflector.ForgetOngoing(ctx, ids); err != nil {
		zctx.From(ctx).Error("Clean up ongoing orders",
			zap.Strings("order_ids", ids),
			zap.Error(err),
		)
	}
	return n, nil
}

// Get returns the hydrated order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// List returns orders matching f, newest first. An unknown status is
// ignored rather than rejected.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, error) {
	if !f.Status.Valid() {
		f.Status = ""
	}
	orders, err := s.store.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// ListByUser returns every order placed by userID, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "userId", Reason: "required"}
	}
	return s.List(ctx, Filter{UserID: userID})
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
