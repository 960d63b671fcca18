package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/observability"
	"slotbook/backend/internal/store"
)

const (
	maxNoteLength        = 2000
	maxIdempotencyKeyLen = 256
	maxSlotsPerBatch     = 500
)

// ValidationError reports a request the caller must fix. It may wrap the
// domain error that caused it.
type ValidationError struct {
	msg string
	err error
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Service struct {
	slots   store.SlotRepository
	appts   store.AppointmentRepository
	catalog store.Catalog
	metrics *observability.BookingMetrics
}

// NewService wires the booking operations. metrics may be nil.
func NewService(slots store.SlotRepository, appts store.AppointmentRepository, catalog store.Catalog, metrics *observability.BookingMetrics) *Service {
	return &Service{slots: slots, appts: appts, catalog: catalog, metrics: metrics}
}

type SlotQuery struct {
	ProviderID *int64
	DateFrom   *domain.Date
	DateTo     *domain.Date
	TimeFrom   *domain.Clock
	TimeTo     *domain.Clock
	Booked     *bool
}

func (q SlotQuery) filter() store.SlotFilter {
	return store.SlotFilter{
		ProviderID: q.ProviderID,
		DateFrom:   q.DateFrom,
		DateTo:     q.DateTo,
		TimeFrom:   q.TimeFrom,
		TimeTo:     q.TimeTo,
		Booked:     q.Booked,
	}
}

// ListSlots lists slots in (date, start, provider) order. Booked narrows to
// free or bound slots when set.
func (s *Service) ListSlots(ctx context.Context, q SlotQuery) (_ []domain.Slot, err error) {
	ctx, done := s.track(ctx, "list_slots")
	defer func() { done(err) }()

	if q.ProviderID != nil && *q.ProviderID <= 0 {
		return nil, validationError("provider_id must be positive")
	}
	return s.slots.List(ctx, q.filter())
}

func (s *Service) ListFreeSlots(ctx context.Context, q SlotQuery) ([]domain.Slot, error) {
	free := false
	q.Booked = &free
	return s.ListSlots(ctx, q)
}

// FindChains returns every run of free slots on date long enough for the
// service, ordered by provider and start time.
func (s *Service) FindChains(ctx context.Context, serviceID int64, date domain.Date) (_ []domain.Chain, err error) {
	ctx, done := s.track(ctx, "find_chains", attribute.Int64("service.id", serviceID))
	defer func() { done(err) }()

	if serviceID <= 0 {
		return nil, validationError("service_id is required")
	}
	if date.IsZero() {
		return nil, validationError("date is required")
	}

	svc, err := s.catalog.Service(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.DurationHours < 1 {
		return nil, fmt.Errorf("booking: service %d has no usable duration", serviceID)
	}

	free := false
	slots, err := s.slots.List(ctx, store.SlotFilter{DateFrom: &date, DateTo: &date, Booked: &free})
	if err != nil {
		return nil, err
	}

	chains := domain.MatchChains(slots, svc.DurationHours)
	if len(chains) == 0 {
		return []domain.Chain{}, nil
	}

	providerIDs := make([]int64, 0, len(chains))
	for _, c := range chains {
		providerIDs = append(providerIDs, c.ProviderID)
	}
	names, err := s.catalog.ProviderNames(ctx, providerIDs)
	if err != nil {
		return nil, err
	}
	for i := range chains {
		chains[i].ProviderName = names[chains[i].ProviderID]
	}
	return chains, nil
}

type CreateInput struct {
	ClientID       int64
	ServiceID      int64
	SlotIDs        []uuid.UUID
	Note           string
	IdempotencyKey string
}

// Create books the given slots for one appointment. With an idempotency key
// a retry of the same request returns the appointment it created.
func (s *Service) Create(ctx context.Context, in CreateInput) (_ domain.AppointmentView, err error) {
	ctx, done := s.track(ctx, "create_appointment",
		attribute.Int64("client.id", in.ClientID),
		attribute.Int64("service.id", in.ServiceID),
		attribute.Int("slots", len(in.SlotIDs)),
	)
	defer func() { done(err) }()

	if in.ClientID <= 0 {
		return domain.AppointmentView{}, validationError("client_id is required")
	}
	if in.ServiceID <= 0 {
		return domain.AppointmentView{}, validationError("service_id is required")
	}
	if len(in.SlotIDs) == 0 {
		return domain.AppointmentView{}, validationError("at least one availability is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(in.SlotIDs))
	for _, id := range in.SlotIDs {
		if id == uuid.Nil {
			return domain.AppointmentView{}, validationError("availability ids must be set")
		}
		if _, dup := seen[id]; dup {
			return domain.AppointmentView{}, validationError("availability " + id.String() + " is listed twice")
		}
		seen[id] = struct{}{}
	}
	if len(in.Note) > maxNoteLength {
		return domain.AppointmentView{}, validationError("client_note too long")
	}

	appt := domain.Appointment{
		ClientID:  in.ClientID,
		ServiceID: in.ServiceID,
		Note:      in.Note,
		Status:    domain.AppointmentStatusBooked,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > maxIdempotencyKeyLen {
			return domain.AppointmentView{}, validationError("idempotency_key too long")
		}
		appt.ID = idempotentAppointmentID(in.ClientID, key)
		if v, ok, err := s.replay(ctx, appt.ID, in); ok || err != nil {
			return v, err
		}
	}

	view, err := s.appts.Book(ctx, store.BookRequest{Appointment: appt, SlotIDs: in.SlotIDs})
	if err == nil {
		return view, nil
	}

	// A concurrent request with the same key may have won the race.
	if key != "" && (errors.Is(err, store.ErrDuplicateAppointment) || errors.Is(err, store.ErrSlotAlreadyBooked)) {
		if v, ok, rerr := s.replay(ctx, appt.ID, in); ok || rerr != nil {
			return v, rerr
		}
	}
	if errors.Is(err, store.ErrDuplicateAppointment) {
		return domain.AppointmentView{}, fmt.Errorf("%w: %v", store.ErrIdempotencyConflict, err)
	}
	return domain.AppointmentView{}, asValidation(err)
}

func idempotentAppointmentID(clientID int64, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("slotbook:create_appointment:"+strconv.FormatInt(clientID, 10)+":"+key))
}

// replay reports ok when an appointment already exists under id. It returns
// the stored view when it matches the request and a conflict otherwise.
func (s *Service) replay(ctx context.Context, id uuid.UUID, in CreateInput) (domain.AppointmentView, bool, error) {
	existing, err := s.appts.Get(ctx, id)
	if errors.Is(err, store.ErrAppointmentNotFound) {
		return domain.AppointmentView{}, false, nil
	}
	if err != nil {
		return domain.AppointmentView{}, false, err
	}
	if !sameBooking(existing, in) {
		return domain.AppointmentView{}, true, fmt.Errorf("%w: key already used for appointment %s", store.ErrIdempotencyConflict, id)
	}
	return existing, true, nil
}

func sameBooking(v domain.AppointmentView, in CreateInput) bool {
	if v.ClientID != in.ClientID || v.ServiceID != in.ServiceID || v.Note != in.Note {
		return false
	}
	if v.Status == domain.AppointmentStatusCancelled || len(v.SlotIDs) != len(in.SlotIDs) {
		return false
	}
	want := make(map[uuid.UUID]struct{}, len(in.SlotIDs))
	for _, id := range in.SlotIDs {
		want[id] = struct{}{}
	}
	for _, id := range v.SlotIDs {
		if _, ok := want[id]; !ok {
			return false
		}
	}
	return true
}

type UpdateInput struct {
	ServiceID *int64
	Note      *string
	Status    *string
}

// Update changes the service, note or status of an appointment. Bound slots
// are left alone; cancelling goes through Cancel.
func (s *Service) Update(ctx context.Context, appointmentID uuid.UUID, in UpdateInput) (_ domain.AppointmentView, err error) {
	ctx, done := s.track(ctx, "update_appointment", attribute.String("appointment.id", appointmentID.String()))
	defer func() { done(err) }()

	if appointmentID == uuid.Nil {
		return domain.AppointmentView{}, validationError("appointment_id is required")
	}

	var patch store.AppointmentPatch
	if in.ServiceID != nil {
		if *in.ServiceID <= 0 {
			return domain.AppointmentView{}, validationError("service_id must be positive")
		}
		patch.ServiceID = in.ServiceID
	}
	if in.Note != nil {
		if len(*in.Note) > maxNoteLength {
			return domain.AppointmentView{}, validationError("client_note too long")
		}
		patch.Note = in.Note
	}
	if in.Status != nil {
		status := domain.AppointmentStatus(strings.ToLower(strings.TrimSpace(*in.Status)))
		if !status.Valid() {
			return domain.AppointmentView{}, validationError("unknown status " + strconv.Quote(*in.Status))
		}
		if status == domain.AppointmentStatusCancelled {
			return domain.AppointmentView{}, validationError("use the cancel operation to cancel an appointment")
		}
		patch.Status = &status
	}
	if patch.Empty() {
		return domain.AppointmentView{}, validationError("nothing to update")
	}

	view, err := s.appts.Update(ctx, appointmentID, patch)
	if err != nil {
		return domain.AppointmentView{}, asValidation(err)
	}
	return view, nil
}

// Cancel cancels the appointment and frees its slots. Cancelling an already
// cancelled appointment succeeds and releases nothing.
func (s *Service) Cancel(ctx context.Context, appointmentID uuid.UUID) (_ domain.Cancellation, err error) {
	ctx, done := s.track(ctx, "cancel_appointment", attribute.String("appointment.id", appointmentID.String()))
	defer func() { done(err) }()

	if appointmentID == uuid.Nil {
		return domain.Cancellation{}, validationError("appointment_id is required")
	}
	released, err := s.appts.Cancel(ctx, appointmentID)
	if err != nil {
		return domain.Cancellation{}, err
	}
	s.metrics.AddSlotsReleased(released)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("slots.released", released))

	return domain.Cancellation{
		AppointmentID: appointmentID,
		Released:      released,
		Message:       fmt.Sprintf("appointment ID %s has been successfully cancelled.", appointmentID),
	}, nil
}

func (s *Service) ListAppointments(ctx context.Context, filter store.AppointmentFilter) (_ []domain.AppointmentView, err error) {
	ctx, done := s.track(ctx, "list_appointments")
	defer func() { done(err) }()

	if filter.Status != nil && !filter.Status.Valid() {
		return nil, validationError("unknown status " + strconv.Quote(string(*filter.Status)))
	}
	return s.appts.List(ctx, filter)
}

func (s *Service) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (_ domain.AppointmentView, err error) {
	ctx, done := s.track(ctx, "get_appointment")
	defer func() { done(err) }()

	if appointmentID == uuid.Nil {
		return domain.AppointmentView{}, validationError("appointment_id is required")
	}
	return s.appts.Get(ctx, appointmentID)
}

// InsertSlots publishes a provider's slots, all or none.
func (s *Service) InsertSlots(ctx context.Context, providerID int64, entries []domain.SlotEntry) (_ []domain.Slot, err error) {
	ctx, done := s.track(ctx, "insert_slots", attribute.Int64("provider.id", providerID), attribute.Int("slots", len(entries)))
	defer func() { done(err) }()

	if providerID <= 0 {
		return nil, validationError("provider_id is required")
	}
	if len(entries) == 0 {
		return nil, validationError("at least one availability is required")
	}
	if len(entries) > maxSlotsPerBatch {
		return nil, validationError("too many availabilities in one request")
	}
	for _, e := range entries {
		if e.Date.IsZero() {
			return nil, validationError("availability date is required")
		}
	}

	slots, err := s.slots.InsertBatch(ctx, providerID, entries)
	if err != nil {
		return nil, err
	}
	s.metrics.AddSlotsInserted(len(slots))
	return slots, nil
}

func (s *Service) DeleteSlot(ctx context.Context, slotID uuid.UUID) (err error) {
	ctx, done := s.track(ctx, "delete_slot", attribute.String("slot.id", slotID.String()))
	defer func() { done(err) }()

	if slotID == uuid.Nil {
		return validationError("availability_id is required")
	}
	return s.slots.Remove(ctx, slotID, nil)
}

// DeleteProviderSlot removes a slot only when providerID owns it. A slot of
// another provider is reported as not found.
func (s *Service) DeleteProviderSlot(ctx context.Context, providerID int64, slotID uuid.UUID) (err error) {
	ctx, done := s.track(ctx, "delete_slot",
		attribute.String("slot.id", slotID.String()),
		attribute.Int64("provider.id", providerID),
	)
	defer func() { done(err) }()

	if slotID == uuid.Nil {
		return validationError("availability_id is required")
	}
	if providerID <= 0 {
		return validationError("provider_id is required")
	}
	return s.slots.Remove(ctx, slotID, &providerID)
}

// asValidation turns chain violations into caller errors, keeping the
// original error reachable through errors.Is.
func asValidation(err error) error {
	if errors.Is(err, domain.ErrBrokenChain) || errors.Is(err, domain.ErrChainTooShort) {
		return &ValidationError{msg: err.Error(), err: err}
	}
	return err
}

func (s *Service) track(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := observability.Tracer().Start(ctx, "booking."+op, trace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.ObserveOperation(op, Outcome(err), time.Since(start))
	}
}

// Outcome buckets an operation result for metrics and logs.
func Outcome(err error) string {
	var vErr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &vErr), errors.Is(err, store.ErrInvalidRange):
		return "invalid"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrDuplicateSlot),
		errors.Is(err, store.ErrSlotAlreadyBooked),
		errors.Is(err, store.ErrSlotBound),
		errors.Is(err, store.ErrAppointmentCancelled),
		errors.Is(err, store.ErrIdempotencyConflict):
		return "conflict"
	}
	return "error"
}
