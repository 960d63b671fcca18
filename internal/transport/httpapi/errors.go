package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"slotbook/backend/internal/service/booking"
	"slotbook/backend/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeServiceError logs err at a level matching its class and writes the
// matching status. Unclassified errors become a bare 500.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, failure string, err error, attrs ...any) {
	args := append([]any{slog.Any("err", err)}, attrs...)

	var vErr *booking.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", args...)
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, store.ErrInvalidRange):
		log.Warn("invalid request", args...)
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		log.Info("not found", args...)
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrSlotAlreadyBooked):
		log.Info("booking conflict", args...)
		writeError(w, http.StatusConflict, "one of the selected availabilities is already booked")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict", args...)
		writeError(w, http.StatusConflict, "idempotency key was already used for a different appointment")
	case errors.Is(err, store.ErrDuplicateSlot),
		errors.Is(err, store.ErrSlotBound),
		errors.Is(err, store.ErrAppointmentCancelled):
		log.Info("conflict", args...)
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(failure, args...)
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		log.Error(failure, args...)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
