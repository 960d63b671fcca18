package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/service/booking"
	"slotbook/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type bookingService interface {
	ListSlots(ctx context.Context, q booking.SlotQuery) ([]domain.Slot, error)
	ListFreeSlots(ctx context.Context, q booking.SlotQuery) ([]domain.Slot, error)
	FindChains(ctx context.Context, serviceID int64, date domain.Date) ([]domain.Chain, error)
	Create(ctx context.Context, in booking.CreateInput) (domain.AppointmentView, error)
	Update(ctx context.Context, appointmentID uuid.UUID, in booking.UpdateInput) (domain.AppointmentView, error)
	Cancel(ctx context.Context, appointmentID uuid.UUID) (domain.Cancellation, error)
	DeleteSlot(ctx context.Context, slotID uuid.UUID) error
	DeleteProviderSlot(ctx context.Context, providerID int64, slotID uuid.UUID) error
	InsertSlots(ctx context.Context, providerID int64, entries []domain.SlotEntry) ([]domain.Slot, error)
	ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.AppointmentView, error)
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.AppointmentView, error)
}

type handlers struct {
	svc bookingService
	log *slog.Logger
}

func (h *handlers) logger(r *http.Request, route string) *slog.Logger {
	return h.log.With(slog.String("route", route), slog.String("request_id", middleware.GetReqID(r.Context())))
}

// GET /availabilities
func (h *handlers) listAvailabilities(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "list_availabilities")

	query := r.URL.Query()
	var q booking.SlotQuery
	var err error
	if q.ProviderID, err = optionalInt(query, "provider_id"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.DateFrom, err = optionalDate(query, "start_date"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.DateTo, err = optionalDate(query, "end_date"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.TimeFrom, err = optionalClock(query, "start_time"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.TimeTo, err = optionalClock(query, "end_time"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var slots []domain.Slot
	if raw := query.Get("booked"); raw != "" {
		booked, perr := strconv.ParseBool(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "booked must be true or false")
			return
		}
		q.Booked = &booked
		slots, err = h.svc.ListSlots(r.Context(), q)
	} else {
		slots, err = h.svc.ListFreeSlots(r.Context(), q)
	}
	if err != nil {
		writeServiceError(w, log, "availabilities list failed", err)
		return
	}
	if slots == nil {
		slots = []domain.Slot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"availabilities": slots})
}

// GET /availabilities/service/{serviceID}?date=YYYY-MM-DD
func (h *handlers) findChains(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "find_chains")

	serviceID, err := strconv.ParseInt(chi.URLParam(r, "serviceID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "service id must be an integer")
		return
	}
	date, err := domain.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	chains, err := h.svc.FindChains(r.Context(), serviceID, date)
	if err != nil {
		writeServiceError(w, log, "chain search failed", err, slog.Int64("service_id", serviceID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chains": chains})
}

type insertAvailabilitiesRequest struct {
	Availabilities []domain.SlotEntry `json:"availabilities"`
}

// POST /availabilities/{id}
func (h *handlers) insertAvailabilities(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "insert_availabilities")

	providerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "provider id must be an integer")
		return
	}
	claims, _ := ClaimsFromContext(r.Context())
	if claims.Role == RoleProvider && claims.ProviderID != providerID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req insertAvailabilitiesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	slots, err := h.svc.InsertSlots(r.Context(), providerID, req.Availabilities)
	if err != nil {
		writeServiceError(w, log, "availabilities insert failed", err, slog.Int64("provider_id", providerID))
		return
	}
	log.Info("availabilities inserted", slog.Int64("provider_id", providerID), slog.Int("count", len(slots)))
	writeJSON(w, http.StatusCreated, map[string]any{"availabilities": slots})
}

// DELETE /availabilities/{id}
func (h *handlers) deleteAvailability(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "delete_availability")

	slotID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "availability id must be a UUID")
		return
	}
	claims, _ := ClaimsFromContext(r.Context())
	if claims.Role == RoleProvider {
		err = h.svc.DeleteProviderSlot(r.Context(), claims.ProviderID, slotID)
	} else {
		err = h.svc.DeleteSlot(r.Context(), slotID)
	}
	if err != nil {
		writeServiceError(w, log, "availability delete failed", err, slog.String("availability_id", slotID.String()))
		return
	}
	log.Info("availability deleted", slog.String("availability_id", slotID.String()))
	w.WriteHeader(http.StatusNoContent)
}

// GET /appointments
func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "list_appointments")

	query := r.URL.Query()
	var f store.AppointmentFilter
	var err error
	if raw := query.Get("appointment_id"); raw != "" {
		id, perr := uuid.Parse(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "appointment_id must be a UUID")
			return
		}
		f.AppointmentID = &id
	}
	for _, p := range []struct {
		name string
		dst  **int64
	}{
		{"client_id", &f.ClientID},
		{"service_id", &f.ServiceID},
		{"provider_id", &f.ProviderID},
	} {
		if *p.dst, err = optionalInt(query, p.name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if f.DateFrom, err = optionalDate(query, "start_date"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.DateTo, err = optionalDate(query, "end_date"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		st := domain.AppointmentStatus(strings.ToLower(raw))
		f.Status = &st
	}

	// Clients and providers only ever see their own appointments.
	claims, _ := ClaimsFromContext(r.Context())
	switch claims.Role {
	case RoleClient:
		if f.ClientID != nil && *f.ClientID != claims.ClientID {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		f.ClientID = &claims.ClientID
	case RoleProvider:
		if f.ProviderID != nil && *f.ProviderID != claims.ProviderID {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		f.ProviderID = &claims.ProviderID
	}

	views, err := h.svc.ListAppointments(r.Context(), f)
	if err != nil {
		writeServiceError(w, log, "appointments list failed", err)
		return
	}
	if views == nil {
		views = []domain.AppointmentView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": views})
}

type createAppointmentRequest struct {
	ClientID       int64       `json:"client_id"`
	ServiceID      int64       `json:"service_id"`
	Availabilities []uuid.UUID `json:"availabilities"`
	ClientNote     string      `json:"client_note"`
}

// POST /appointments
func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "create_appointment")

	var req createAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	claims, _ := ClaimsFromContext(r.Context())
	if claims.Role == RoleClient && claims.ClientID != req.ClientID {
		writeError(w, http.StatusForbidden, "clients can only book for themselves")
		return
	}

	view, err := h.svc.Create(r.Context(), booking.CreateInput{
		ClientID:       req.ClientID,
		ServiceID:      req.ServiceID,
		SlotIDs:        req.Availabilities,
		Note:           req.ClientNote,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeServiceError(w, log, "appointment create failed", err,
			slog.Int64("client_id", req.ClientID),
			slog.Int64("service_id", req.ServiceID),
		)
		return
	}
	log.Info("appointment created",
		slog.String("appointment_id", view.ID.String()),
		slog.Int64("client_id", view.ClientID),
		slog.Int("slots", len(view.SlotIDs)),
	)
	writeJSON(w, http.StatusCreated, view)
}

// GET /appointments/{appointmentID}
func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "get_appointment")

	view, ok := h.ownedAppointment(w, r, log)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type updateAppointmentRequest struct {
	ServiceID  *int64  `json:"service_id"`
	ClientNote *string `json:"client_note"`
	Status     *string `json:"status"`
}

// PATCH /appointments/{appointmentID}
func (h *handlers) updateAppointment(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "update_appointment")

	current, ok := h.ownedAppointment(w, r, log)
	if !ok {
		return
	}
	var req updateAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := h.svc.Update(r.Context(), current.ID, booking.UpdateInput{
		ServiceID: req.ServiceID,
		Note:      req.ClientNote,
		Status:    req.Status,
	})
	if err != nil {
		writeServiceError(w, log, "appointment update failed", err, slog.String("appointment_id", current.ID.String()))
		return
	}
	log.Info("appointment updated", slog.String("appointment_id", view.ID.String()))
	writeJSON(w, http.StatusOK, view)
}

// PATCH /appointments/cancel/{appointmentID}
func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "cancel_appointment")

	current, ok := h.ownedAppointment(w, r, log)
	if !ok {
		return
	}
	c, err := h.svc.Cancel(r.Context(), current.ID)
	if err != nil {
		writeServiceError(w, log, "appointment cancel failed", err, slog.String("appointment_id", current.ID.String()))
		return
	}
	log.Info("appointment cancelled", slog.String("appointment_id", c.AppointmentID.String()), slog.Int("released", c.Released))
	writeJSON(w, http.StatusOK, c)
}

// ownedAppointment loads the appointment named in the path and checks the
// caller may act on it. It writes the error response itself.
func (h *handlers) ownedAppointment(w http.ResponseWriter, r *http.Request, log *slog.Logger) (domain.AppointmentView, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "appointment id must be a UUID")
		return domain.AppointmentView{}, false
	}
	view, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		writeServiceError(w, log, "appointment load failed", err, slog.String("appointment_id", id.String()))
		return domain.AppointmentView{}, false
	}
	claims, _ := ClaimsFromContext(r.Context())
	switch {
	case claims.Role == RoleClient && view.ClientID != claims.ClientID,
		claims.Role == RoleProvider && view.ProviderID != claims.ProviderID:
		// Same answer as a missing id so ids cannot be probed.
		writeError(w, http.StatusNotFound, store.ErrAppointmentNotFound.Error())
		return domain.AppointmentView{}, false
	}
	return view, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func optionalInt(q url.Values, name string) (*int64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.New(name + " must be an integer")
	}
	return &n, nil
}

func optionalDate(q url.Values, name string) (*domain.Date, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return nil, errors.New(name + " must be YYYY-MM-DD")
	}
	return &d, nil
}

func optionalClock(q url.Values, name string) (*domain.Clock, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	c, err := domain.ParseClock(raw)
	if err != nil {
		return nil, errors.New(name + " must be HH:MM or HH:MM:SS")
	}
	return &c, nil
}
