package store

import (
	"context"

	"github.com/google/uuid"

	"slotbook/backend/internal/domain"
)

type AppointmentRepository interface {
	Book(ctx context.Context, req BookRequest) (domain.AppointmentView, error)
	Get(ctx context.Context, appointmentID uuid.UUID) (domain.AppointmentView, error)
	List(ctx context.Context, filter AppointmentFilter) ([]domain.AppointmentView, error)
	Update(ctx context.Context, appointmentID uuid.UUID, patch AppointmentPatch) (domain.AppointmentView, error)
	Cancel(ctx context.Context, appointmentID uuid.UUID) (released int, err error)
}

// BookRequest asks for a new appointment holding exactly SlotIDs.
type BookRequest struct {
	Appointment domain.Appointment
	SlotIDs     []uuid.UUID
}

// BookingTx is what a booking or cancellation may do inside its transaction.
type BookingTx interface {
	Service(ctx context.Context, serviceID int64) (domain.Service, error)
	SlotsByID(ctx context.Context, slotIDs []uuid.UUID) ([]domain.Slot, error)
	SlotsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]domain.Slot, error)
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) error
	SetAppointmentStatus(ctx context.Context, appointmentID uuid.UUID, status domain.AppointmentStatus) error
	BindSlots(ctx context.Context, appointmentID uuid.UUID, slotIDs []uuid.UUID) error
	ReleaseSlots(ctx context.Context, appointmentID uuid.UUID) (int, error)
	AppendEvent(ctx context.Context, eventType string, payload domain.AppointmentEvent) error
	ClientName(ctx context.Context, clientID int64) (string, error)
	ProviderName(ctx context.Context, providerID int64) (string, error)
}
