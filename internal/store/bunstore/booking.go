package bunstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/store"
)

var errNoSlots = errors.New("bunstore: booking needs at least one slot")

// bookAppointment creates the appointment and binds its slots. The bound
// check on loaded slots only gives an early answer; BindSlots is what stops a
// concurrent booking of the same slots.
func bookAppointment(ctx context.Context, tx store.BookingTx, req store.BookRequest) (domain.AppointmentView, error) {
	if len(req.SlotIDs) == 0 {
		return domain.AppointmentView{}, errNoSlots
	}

	svc, err := tx.Service(ctx, req.Appointment.ServiceID)
	if err != nil {
		return domain.AppointmentView{}, err
	}

	slots, err := tx.SlotsByID(ctx, req.SlotIDs)
	if err != nil {
		return domain.AppointmentView{}, err
	}
	if missing := missingSlotIDs(req.SlotIDs, slots); len(missing) > 0 {
		return domain.AppointmentView{}, fmt.Errorf("%w: %v", store.ErrSlotNotFound, missing)
	}
	for _, s := range slots {
		if s.Booked() {
			return domain.AppointmentView{}, fmt.Errorf("%w: slot %s", store.ErrSlotAlreadyBooked, s.ID)
		}
	}
	if err := domain.ValidateChain(slots, svc.DurationHours); err != nil {
		return domain.AppointmentView{}, err
	}

	appt := req.Appointment
	appt.Status = domain.AppointmentStatusBooked
	created, err := tx.InsertAppointment(ctx, appt)
	if err != nil {
		return domain.AppointmentView{}, err
	}

	if err := tx.BindSlots(ctx, created.ID, req.SlotIDs); err != nil {
		return domain.AppointmentView{}, err
	}
	for i := range slots {
		id := created.ID
		slots[i].AppointmentID = &id
	}

	if err := tx.AppendEvent(ctx, domain.EventAppointmentBooked, appointmentEvent(created, slots)); err != nil {
		return domain.AppointmentView{}, err
	}

	return viewWithNames(ctx, tx, created, svc, slots)
}

// cancelAppointment marks the appointment cancelled and frees its slots.
// Cancelling twice is allowed and releases nothing the second time.
func cancelAppointment(ctx context.Context, tx store.BookingTx, appointmentID uuid.UUID) (int, error) {
	appt, err := tx.GetAppointment(ctx, appointmentID)
	if err != nil {
		return 0, err
	}
	slots, err := tx.SlotsByAppointment(ctx, appointmentID)
	if err != nil {
		return 0, err
	}

	if err := tx.SetAppointmentStatus(ctx, appointmentID, domain.AppointmentStatusCancelled); err != nil {
		return 0, err
	}
	released, err := tx.ReleaseSlots(ctx, appointmentID)
	if err != nil {
		return 0, err
	}

	if appt.Status == domain.AppointmentStatusCancelled && released == 0 {
		return 0, nil
	}
	appt.Status = domain.AppointmentStatusCancelled
	if err := tx.AppendEvent(ctx, domain.EventAppointmentCancelled, appointmentEvent(appt, slots)); err != nil {
		return 0, err
	}
	return released, nil
}

// updateAppointment applies a partial update. Slot bindings never change
// here; a new service must still fit in the slots already held.
func updateAppointment(ctx context.Context, tx store.BookingTx, appointmentID uuid.UUID, patch store.AppointmentPatch) (domain.AppointmentView, error) {
	appt, err := tx.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.AppointmentView{}, err
	}
	if appt.Status == domain.AppointmentStatusCancelled {
		return domain.AppointmentView{}, fmt.Errorf("%w: %s", store.ErrAppointmentCancelled, appointmentID)
	}

	slots, err := tx.SlotsByAppointment(ctx, appointmentID)
	if err != nil {
		return domain.AppointmentView{}, err
	}

	serviceID := appt.ServiceID
	if patch.ServiceID != nil {
		serviceID = *patch.ServiceID
	}
	svc, err := tx.Service(ctx, serviceID)
	if err != nil {
		return domain.AppointmentView{}, err
	}
	if serviceID != appt.ServiceID && len(slots) > 0 {
		if err := domain.ValidateChain(slots, svc.DurationHours); err != nil {
			return domain.AppointmentView{}, err
		}
	}

	appt.ServiceID = serviceID
	if patch.Note != nil {
		appt.Note = *patch.Note
	}
	if patch.Status != nil {
		appt.Status = *patch.Status
	}
	if err := tx.UpdateAppointment(ctx, appt); err != nil {
		return domain.AppointmentView{}, err
	}

	return viewWithNames(ctx, tx, appt, svc, slots)
}

func appointmentView(ctx context.Context, tx store.BookingTx, appt domain.Appointment) (domain.AppointmentView, error) {
	svc, err := tx.Service(ctx, appt.ServiceID)
	if err != nil && !errors.Is(err, store.ErrServiceNotFound) {
		return domain.AppointmentView{}, err
	}
	slots, err := tx.SlotsByAppointment(ctx, appt.ID)
	if err != nil {
		return domain.AppointmentView{}, err
	}
	return viewWithNames(ctx, tx, appt, svc, slots)
}

func viewWithNames(ctx context.Context, tx store.BookingTx, appt domain.Appointment, svc domain.Service, slots []domain.Slot) (domain.AppointmentView, error) {
	clientName, err := tx.ClientName(ctx, appt.ClientID)
	if err != nil {
		return domain.AppointmentView{}, err
	}
	var providerName string
	if len(slots) > 0 {
		providerName, err = tx.ProviderName(ctx, slots[0].ProviderID)
		if err != nil {
			return domain.AppointmentView{}, err
		}
	}
	return domain.NewAppointmentView(appt, svc, clientName, providerName, slots), nil
}

func appointmentEvent(appt domain.Appointment, slots []domain.Slot) domain.AppointmentEvent {
	ev := domain.AppointmentEvent{
		AppointmentID: appt.ID,
		ClientID:      appt.ClientID,
		ServiceID:     appt.ServiceID,
		Status:        string(appt.Status),
		SlotIDs:       make([]uuid.UUID, 0, len(slots)),
		OccurredAt:    time.Now().UTC(),
	}
	for _, s := range domain.SortSlots(slots) {
		ev.ProviderID = s.ProviderID
		ev.SlotIDs = append(ev.SlotIDs, s.ID)
	}
	return ev
}

func missingSlotIDs(want []uuid.UUID, found []domain.Slot) []uuid.UUID {
	have := make(map[uuid.UUID]struct{}, len(found))
	for _, s := range found {
		have[s.ID] = struct{}{}
	}
	var missing []uuid.UUID
	for _, id := range want {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
