// Package handler exposes the order engine over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/order"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/readmodel"
)

// maxBodySize limits request bodies.
const maxBodySize = 1 << 20

// OrderService is the subset of the order service the handlers call.
type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	Update(ctx context.Context, id string, patch order.Patch) (*order.Order, error)
	Delete(ctx context.Context, id string) error
	BulkDelete(ctx context.Context, ids []string) (int, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	List(ctx context.Context, f order.Filter) ([]order.Order, error)
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
}

var _ OrderService = (*order.Service)(nil)

// Handler serves the order and read-model endpoints.
type Handler struct {
	orders OrderService
	views  readmodel.Reader
}

// New creates a Handler.
func New(orders OrderService, views readmodel.Reader) *Handler {
	return &Handler{orders: orders, views: views}
}

// Register mounts all API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("GET /api/orders/user/{userId}", h.listUserOrders)
	mux.HandleFunc("POST /api/orders", h.createOrder)
	mux.HandleFunc("PUT /api/orders/{id}", h.updateOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", h.deleteOrder)
	mux.HandleFunc("DELETE /api/orders", h.bulkDeleteOrders)

	mux.HandleFunc("GET /api/ongoing-orders", h.listOngoing)
	mux.HandleFunc("GET /api/order-history", h.listHistory)
	mux.HandleFunc("GET /api/order-cancellations", h.listCancellations)
}
