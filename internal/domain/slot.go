package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Slot is one provider-owned unit of bookable time. AppointmentID is nil while
// the slot is free.
type Slot struct {
	bun.BaseModel `bun:"table:slots,alias:s"`

	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	ProviderID    int64      `bun:"provider_id,notnull" json:"provider_id"`
	Date          Date       `bun:"slot_date,type:date,notnull" json:"date"`
	Start         Clock      `bun:"start_time,type:time,notnull" json:"start_time"`
	End           Clock      `bun:"end_time,type:time,notnull" json:"end_time"`
	AppointmentID *uuid.UUID `bun:"appointment_id,type:uuid" json:"appointment_id"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"-"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull" json:"-"`
}

func (s Slot) Booked() bool {
	return s.AppointmentID != nil
}

func (s Slot) Length() time.Duration {
	return s.End.Sub(s.Start)
}

func (s *Slot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

// SlotEntry is one requested slot in a batch insert.
type SlotEntry struct {
	Date  Date  `json:"date"`
	Start Clock `json:"start_time"`
	End   Clock `json:"end_time"`
}

// SlotKey identifies a slot by its natural key.
type SlotKey struct {
	ProviderID int64
	Date       Date
	Start      Clock
}

func (s Slot) Key() SlotKey {
	return SlotKey{ProviderID: s.ProviderID, Date: s.Date, Start: s.Start}
}
