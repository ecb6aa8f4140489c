package handler

import "net/http"

func (h *Handler) listOngoing(w http.ResponseWriter, r *http.Request) {
	entries, err := h.views.ListOngoing(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Ongoing orders fetched successfully", encodeOngoing(entries))
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.views.ListHistory(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Order history fetched successfully", encodeHistory(entries))
}

func (h *Handler) listCancellations(w http.ResponseWriter, r *http.Request) {
	entries, err := h.views.ListCancellations(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Cancelled orders fetched successfully", encodeCancellations(entries))
}
