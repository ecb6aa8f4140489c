package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/order"
)

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate("from", q.Get("from"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := parseDate("to", q.Get("to"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	orders, err := h.orders.List(r.Context(), order.Filter{
		Status: order.Status(q.Get("status")),
		From:   from,
		To:     to,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Orders fetched successfully", encodeOrders(orders))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Order fetched successfully", func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Orders fetched successfully", encodeOrders(orders))
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeCreate(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, "Order created successfully", func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := decodePatch(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Order updated successfully", func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.orders.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Order deleted successfully", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) { strField(e, "id", id) })
	})
}

func (h *Handler) bulkDeleteOrders(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := decodeIDs(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	n, err := h.orders.BulkDelete(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Orders deleted successfully", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("deletedCount", func(e *jx.Encoder) { e.Int(n) })
		})
	})
}
