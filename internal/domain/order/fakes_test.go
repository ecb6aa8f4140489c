package order

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/coupon"
)

// --- Catalog ---

type mockCatalog struct {
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (m *mockCatalog) PriceMap(_ context.Context, ids []string) (map[string]decimal.Decimal, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		if p, ok := m.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// --- Store ---

type memState struct {
	orders    map[string]Order
	addresses map[string]Address
	coupons   map[string]coupon.Coupon
	redeemers map[string]map[string]bool
	ongoing   map[string]string // user id -> order id
}

func newMemState() *memState {
	return &memState{
		orders:    map[string]Order{},
		addresses: map[string]Address{},
		coupons:   map[string]coupon.Coupon{},
		redeemers: map[string]map[string]bool{},
		ongoing:   map[string]string{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	for k, v := range s.coupons {
		c.coupons[k] = v
	}
	for k, v := range s.redeemers {
		set := make(map[string]bool, len(v))
		for u := range v {
			set[u] = true
		}
		c.redeemers[k] = set
	}
	for k, v := range s.ongoing {
		c.ongoing[k] = v
	}
	return c
}

// memStore keeps committed state and applies a transaction's writes only
// when its function succeeds.
type memStore struct {
	mu        sync.Mutex
	state     *memState
	txCount   int
	lockedFor []string
	deleteErr error

	// afterCommit runs once a transaction's writes are applied.
	afterCommit func()
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txCount++
	work := m.state.clone()
	if err := fn(ctx, &memTx{store: m, s: work}); err != nil {
		return err
	}
	m.state = work
	if m.afterCommit != nil {
		m.afterCommit()
	}
	return nil
}

func (m *memStore) hydrate(o Order) *Order {
	if o.CouponID != "" {
		o.CouponCode = m.state.coupons[o.CouponID].Code
	}
	if a, ok := m.state.addresses[o.ShippingAddressID]; ok {
		o.ShippingAddress = &a
	}
	return &o
}

func (m *memStore) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.hydrate(o), nil
}

func (m *memStore) List(_ context.Context, f Filter) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Order
	for _, o := range m.state.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *m.hydrate(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.state.orders[id]; !ok {
		return ErrNotFound
	}
	delete(m.state.orders, id)
	return nil
}

func (m *memStore) BulkDelete(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := m.state.orders[id]; ok {
			delete(m.state.orders, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) addCoupon(c coupon.Coupon) {
	m.state.coupons[c.ID] = c
}

func (m *memStore) coupon(id string) coupon.Coupon {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.coupons[id]
}

func (m *memStore) order(id string) Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.orders[id]
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.orders)
}

type memTx struct {
	store *memStore
	s     *memState
}

func (t *memTx) LockUser(_ context.Context, userID string) error {
	t.store.lockedFor = append(t.store.lockedFor, userID)
	return nil
}

func (t *memTx) HasOngoing(_ context.Context, userID string) (bool, error) {
	if _, ok := t.s.ongoing[userID]; ok {
		return true, nil
	}
	for _, o := range t.s.orders {
		if o.UserID == userID && !o.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CreateAddress(_ context.Context, a *Address) error {
	t.s.addresses[a.ID] = *a
	return nil
}

func (t *memTx) AddressExists(_ context.Context, id string) (bool, error) {
	_, ok := t.s.addresses[id]
	return ok, nil
}

func (t *memTx) CreateOrder(_ context.Context, o *Order) error {
	for _, existing := range t.s.orders {
		if existing.Code == o.Code {
			return fmt.Errorf("insert order: %w", ErrDuplicateCode)
		}
	}
	t.s.orders[o.ID] = *o
	return nil
}

func (t *memTx) GetForUpdate(_ context.Context, id string) (*Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *Order) error {
	t.s.orders[o.ID] = *o
	return nil
}

func (t *memTx) FindCouponByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	for _, c := range t.s.coupons {
		if strings.EqualFold(c.Code, code) {
			return &c, nil
		}
	}
	return nil, coupon.ErrInvalidCoupon
}

func (t *memTx) GetCouponForUpdate(_ context.Context, id string) (*coupon.Coupon, error) {
	c, ok := t.s.coupons[id]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return &c, nil
}

func (t *memTx) CountUserRedemptions(_ context.Context, couponID, userID, excludeOrderID string) (int, error) {
	n := 0
	for _, o := range t.s.orders {
		if o.CouponID != couponID || o.UserID != userID || o.ID == excludeOrderID {
			continue
		}
		if o.Payment == PaymentPaid || o.Payment == PaymentPartial {
			n++
		}
	}
	return n, nil
}

func (t *memTx) RedeemCoupon(_ context.Context, couponID, userID string) (bool, error) {
	c := t.s.coupons[couponID]
	if c.MaxUsesTotal > 0 && c.UsedCount >= c.MaxUsesTotal {
		return false, nil
	}
	c.UsedCount++
	t.s.coupons[couponID] = c
	if t.s.redeemers[couponID] == nil {
		t.s.redeemers[couponID] = map[string]bool{}
	}
	t.s.redeemers[couponID][userID] = true
	return true, nil
}

// --- Reflector ---

// memReflector maintains the ongoing view of a memStore the way the real
// reflector would.
type memReflector struct {
	store     *memStore
	err       error
	forgetErr error
	reflected []string
	forgotten []string
}

func (r *memReflector) Reflect(ctx context.Context, orderID string) error {
	r.reflected = append(r.reflected, orderID)
	if r.err != nil {
		return r.err
	}
	// Database writes fail on a done context.
	if err := ctx.Err(); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.state.orders[orderID]
	if !ok {
		return nil
	}
	if o.Status.Terminal() {
		delete(r.store.state.ongoing, o.UserID)
	} else {
		r.store.state.ongoing[o.UserID] = o.ID
	}
	return nil
}

func (r *memReflector) ForgetOngoing(_ context.Context, orderIDs []string) error {
	r.forgotten = append(r.forgotten, orderIDs...)
	return r.forgetErr
}

// --- Notifier ---

type mockNotifier struct {
	mu     sync.Mutex
	async  []string
	synced []string
	err    error
}

func (n *mockNotifier) PushAsync(_ context.Context, o *Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.async = append(n.async, o.Code)
}

func (n *mockNotifier) Push(_ context.Context, o *Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.synced = append(n.synced, o.Code)
	return n.err
}
