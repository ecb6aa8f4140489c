package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/coupon"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/order"
)

// writeJSON writes the {success, message, data} envelope. data may be nil.
func writeJSON(w http.ResponseWriter, status int, message string, data func(e *jx.Encoder)) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(status < http.StatusBadRequest) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		if data != nil {
			e.Field("data", data)
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status is already written; a failed write means the client left.
	_, _ = w.Write(e.Bytes())
}

// errorStatus maps domain errors to an HTTP status and a client message.
// Infrastructure failures get a generic message.
func errorStatus(err error) (int, string) {
	var productErr *order.InvalidProductError
	switch {
	case order.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, order.ErrOngoingOrderExists), errors.Is(err, order.ErrDuplicateCode):
		return http.StatusConflict, err.Error()
	case coupon.IsRejection(err), errors.As(err, &productErr):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, msg, nil)
}
