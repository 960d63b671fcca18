package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/service/booking"
	"slotbook/backend/internal/store"
)

type BookingServer struct {
	svc bookingService
	log *slog.Logger
}

type bookingService interface {
	ListFreeSlots(ctx context.Context, q booking.SlotQuery) ([]domain.Slot, error)
	FindChains(ctx context.Context, serviceID int64, date domain.Date) ([]domain.Chain, error)
	Create(ctx context.Context, in booking.CreateInput) (domain.AppointmentView, error)
	Update(ctx context.Context, appointmentID uuid.UUID, in booking.UpdateInput) (domain.AppointmentView, error)
	Cancel(ctx context.Context, appointmentID uuid.UUID) (domain.Cancellation, error)
	DeleteSlot(ctx context.Context, slotID uuid.UUID) error
	InsertSlots(ctx context.Context, providerID int64, entries []domain.SlotEntry) ([]domain.Slot, error)
	ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.AppointmentView, error)
}

var _ BookingServiceServer = (*BookingServer)(nil)

func NewBookingServer(svc bookingService, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.booking")),
	}
}

func (s *BookingServer) logger(ctx context.Context, rpc string) *slog.Logger {
	log := s.log.With(slog.String("rpc", rpc))
	if id := RequestIDFromContext(ctx); id != "" {
		log = log.With(slog.String("request_id", id))
	}
	return log
}

func (s *BookingServer) ListFreeSlots(ctx context.Context, req *ListFreeSlotsRequest) (*ListFreeSlotsResponse, error) {
	log := s.logger(ctx, "ListFreeSlots")

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	q, err := slotQuery(req)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	slots, err := s.svc.ListFreeSlots(ctx, q)
	if err != nil {
		return nil, statusFromError(log, "availabilities list failed", err)
	}
	if slots == nil {
		slots = []domain.Slot{}
	}

	log.Debug("availabilities listed", slog.Int("count", len(slots)))
	return &ListFreeSlotsResponse{Availabilities: slots}, nil
}

func (s *BookingServer) FindChains(ctx context.Context, req *FindChainsRequest) (*FindChainsResponse, error) {
	log := s.logger(ctx, "FindChains")

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.Int64("service_id", req.ServiceID))
		return nil, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
	}

	chains, err := s.svc.FindChains(ctx, req.ServiceID, date)
	if err != nil {
		return nil, statusFromError(log, "chain search failed", err, slog.Int64("service_id", req.ServiceID))
	}

	log.Debug("chains found",
		slog.Int64("service_id", req.ServiceID),
		slog.String("date", date.String()),
		slog.Int("count", len(chains)),
	)
	return &FindChainsResponse{Chains: chains}, nil
}

func (s *BookingServer) CreateAppointment(ctx context.Context, req *CreateAppointmentRequest) (*CreateAppointmentResponse, error) {
	log := s.logger(ctx, "CreateAppointment")

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	slotIDs, err := parseIDs(req.Availabilities)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.Int64("client_id", req.ClientID))
		return nil, status.Error(codes.InvalidArgument, "availabilities must be UUIDs")
	}

	view, err := s.svc.Create(ctx, booking.CreateInput{
		ClientID:       req.ClientID,
		ServiceID:      req.ServiceID,
		SlotIDs:        slotIDs,
		Note:           req.ClientNote,
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return nil, statusFromError(log, "appointment create failed", err,
			slog.Int64("client_id", req.ClientID),
			slog.Int64("service_id", req.ServiceID),
		)
	}

	log.Info("appointment created",
		slog.String("appointment_id", view.ID.String()),
		slog.Int64("client_id", view.ClientID),
		slog.Int64("provider_id", view.ProviderID),
		slog.Int("slots", len(view.SlotIDs)),
	)
	return &CreateAppointmentResponse{Appointment: view}, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (s *BookingServer) UpdateAppointment(ctx context.Context, req *UpdateAppointmentRequest) (*UpdateAppointmentResponse, error) {
	log := s.logger(ctx, "UpdateAppointment")

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}

	view, err := s.svc.Update(ctx, id, booking.UpdateInput{
		ServiceID: req.ServiceID,
		Note:      req.ClientNote,
		Status:    req.Status,
	})
	if err != nil {
		return nil, statusFromError(log, "appointment update failed", err, slog.String("appointment_id", id.String()))
	}

	log.Info("appointment updated", slog.String("appointment_id", id.String()), slog.String("status", string(view.Status)))
	return &UpdateAppointmentResponse{Appointment: view}, nil
}

func (s *BookingServer) CancelAppointment(ctx context.Context, req *CancelAppointmentRequest) (*CancelAppointmentResponse, error) {
	log := s.logger(ctx, "CancelAppointment")

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}

	c, err := s.svc.Cancel(ctx, id)
	if err != nil {
		return nil, statusFromError(log, "appointment cancel failed", err, slog.String("appointment_id", id.String()))
	}

	log.Info("appointment cancelled", slog.String("appointment_id", id.String()), slog.Int("released", c.Released))
	return &CancelAppointmentResponse{Cancellation: c}, nil
}

func (s *BookingServer) DeleteSlot(ctx context.Context, req *DeleteSlotRequest) (*DeleteSlotResponse, error) {
	log := s.logger(ctx, "DeleteSlot")

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AvailabilityID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "availability_id must be a UUID")
	}

	if err := s.svc.DeleteSlot(ctx, id); err != nil {
		return nil, statusFromError(log, "availability delete failed", err, slog.String("availability_id", id.String()))
	}

	log.Info("availability deleted", slog.String("availability_id", id.String()))
	return &DeleteSlotResponse{}, nil
}

func (s *BookingServer) InsertSlots(ctx context.Context, req *InsertSlotsRequest) (*InsertSlotsResponse, error) {
	log := s.logger(ctx, "InsertSlots")

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	slots, err := s.svc.InsertSlots(ctx, req.ProviderID, req.Availabilities)
	if err != nil {
		return nil, statusFromError(log, "availabilities insert failed", err, slog.Int64("provider_id", req.ProviderID))
	}

	log.Info("availabilities inserted", slog.Int64("provider_id", req.ProviderID), slog.Int("count", len(slots)))
	return &InsertSlotsResponse{Availabilities: slots}, nil
}

func (s *BookingServer) ListAppointments(ctx context.Context, req *ListAppointmentsRequest) (*ListAppointmentsResponse, error) {
	log := s.logger(ctx, "ListAppointments")

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	filter, err := appointmentFilter(req)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	views, err := s.svc.ListAppointments(ctx, filter)
	if err != nil {
		return nil, statusFromError(log, "appointments list failed", err)
	}
	if views == nil {
		views = []domain.AppointmentView{}
	}

	log.Debug("appointments listed", slog.Int("count", len(views)))
	return &ListAppointmentsResponse{Appointments: views}, nil
}

// statusFromError logs err at a level matching its class and converts it to a
// status. Only unclassified errors are hidden behind "internal error".
func statusFromError(log *slog.Logger, failure string, err error, attrs ...any) error {
	args := append([]any{slog.Any("err", err)}, attrs...)

	var vErr *booking.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, store.ErrInvalidRange):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		log.Info("not found", args...)
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrDuplicateSlot):
		log.Info("availability conflict", args...)
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, store.ErrSlotAlreadyBooked):
		log.Info("booking conflict", args...)
		return status.Error(codes.Aborted, "One of the selected availabilities is already booked. Pick a different slot.")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict", args...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, store.ErrSlotBound), errors.Is(err, store.ErrAppointmentCancelled):
		log.Info("precondition failed", args...)
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(failure, args...)
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		log.Info(failure, args...)
		return status.Error(codes.Canceled, "request cancelled")
	}
	log.Error(failure, args...)
	return status.Error(codes.Internal, "internal error")
}

func slotQuery(req *ListFreeSlotsRequest) (booking.SlotQuery, error) {
	var q booking.SlotQuery
	if req.ProviderID != 0 {
		id := req.ProviderID
		q.ProviderID = &id
	}
	var err error
	if q.DateFrom, err = optionalDate("start_date", req.StartDate); err != nil {
		return q, err
	}
	if q.DateTo, err = optionalDate("end_date", req.EndDate); err != nil {
		return q, err
	}
	if q.TimeFrom, err = optionalClock("start_time", req.StartTime); err != nil {
		return q, err
	}
	if q.TimeTo, err = optionalClock("end_time", req.EndTime); err != nil {
		return q, err
	}
	return q, nil
}

func appointmentFilter(req *ListAppointmentsRequest) (store.AppointmentFilter, error) {
	var f store.AppointmentFilter
	if req.AppointmentID != "" {
		id, err := uuid.Parse(req.AppointmentID)
		if err != nil {
			return f, errors.New("appointment_id must be a UUID")
		}
		f.AppointmentID = &id
	}
	if req.ClientID != 0 {
		f.ClientID = &req.ClientID
	}
	if req.ServiceID != 0 {
		f.ServiceID = &req.ServiceID
	}
	if req.ProviderID != 0 {
		f.ProviderID = &req.ProviderID
	}
	var err error
	if f.DateFrom, err = optionalDate("start_date", req.StartDate); err != nil {
		return f, err
	}
	if f.DateTo, err = optionalDate("end_date", req.EndDate); err != nil {
		return f, err
	}
	if req.Status != "" {
		st := domain.AppointmentStatus(strings.ToLower(strings.TrimSpace(req.Status)))
		f.Status = &st
	}
	return f, nil
}

func optionalDate(field, raw string) (*domain.Date, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return nil, errors.New(field + " must be YYYY-MM-DD")
	}
	return &d, nil
}

func optionalClock(field, raw string) (*domain.Clock, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	c, err := domain.ParseClock(raw)
	if err != nil {
		return nil, errors.New(field + " must be HH:MM or HH:MM:SS")
	}
	return &c, nil
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(strings.TrimSpace(r))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
