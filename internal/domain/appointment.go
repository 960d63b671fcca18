package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentStatusBooked      AppointmentStatus = "booked"
	AppointmentStatusRescheduled AppointmentStatus = "rescheduled"
	AppointmentStatusCompleted   AppointmentStatus = "completed"
	AppointmentStatusCancelled   AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusBooked, AppointmentStatusRescheduled, AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

// Appointment does not list its slots; they point back at it through
// Slot.AppointmentID.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments,alias:a"`

	ID        uuid.UUID         `bun:"id,pk,type:uuid"`
	ClientID  int64             `bun:"client_id,notnull"`
	ServiceID int64             `bun:"service_id,notnull"`
	Note      string            `bun:"client_note"`
	Status    AppointmentStatus `bun:"status,notnull"`
	CreatedAt time.Time         `bun:"created_at,notnull"`
	UpdatedAt time.Time         `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// AppointmentView is the human-readable projection returned to callers.
type AppointmentView struct {
	ID            uuid.UUID         `json:"appointment_id"`
	ClientID      int64             `json:"client_id"`
	ClientName    string            `json:"client_name"`
	ServiceID     int64             `json:"service_id"`
	ServiceName   string            `json:"service_name"`
	ProviderID    int64             `json:"provider_id,omitempty"`
	ProviderName  string            `json:"provider_name,omitempty"`
	Date          *Date             `json:"date,omitempty"`
	Start         *Clock            `json:"start_time,omitempty"`
	End           *Clock            `json:"end_time,omitempty"`
	DurationHours int               `json:"duration_hours"`
	Note          string            `json:"client_note"`
	Status        AppointmentStatus `json:"status"`
	SlotIDs       []uuid.UUID       `json:"slot_ids"`
}

// NewAppointmentView assembles a view from the appointment, its catalog names
// and the slots currently bound to it. Cancelled appointments have no slots and
// therefore no provider, date or times.
func NewAppointmentView(a Appointment, svc Service, clientName, providerName string, slots []Slot) AppointmentView {
	v := AppointmentView{
		ID:            a.ID,
		ClientID:      a.ClientID,
		ClientName:    clientName,
		ServiceID:     a.ServiceID,
		ServiceName:   svc.Name,
		DurationHours: svc.DurationHours,
		Note:          a.Note,
		Status:        a.Status,
		SlotIDs:       make([]uuid.UUID, 0, len(slots)),
	}
	if len(slots) == 0 {
		return v
	}

	ordered := SortSlots(slots)
	first, last := ordered[0], ordered[len(ordered)-1]
	v.ProviderID = first.ProviderID
	v.ProviderName = providerName
	v.Date = &first.Date
	v.Start = &first.Start
	v.End = &last.End
	for _, s := range ordered {
		v.SlotIDs = append(v.SlotIDs, s.ID)
	}
	return v
}

// Cancellation confirms a cancel and reports how many slots went back to the
// free pool.
type Cancellation struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Released      int       `json:"released"`
	Message       string    `json:"result"`
}
