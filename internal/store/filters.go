package store

import (
	"fmt"

	"github.com/google/uuid"

	"slotbook/backend/internal/domain"
)

// SlotFilter narrows slot listings. Every field is optional.
type SlotFilter struct {
	ProviderID *int64
	DateFrom   *domain.Date
	DateTo     *domain.Date
	TimeFrom   *domain.Clock
	TimeTo     *domain.Clock
	Booked     *bool
}

// Validate rejects inverted ranges. The time range is only compared when it
// applies to a single day, that is when both dates are equal or absent.
func (f SlotFilter) Validate() error {
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.Compare(*f.DateTo) > 0 {
		return fmt.Errorf("%w: start date %s exceeds end date %s", ErrInvalidRange, f.DateFrom, f.DateTo)
	}
	if f.TimeFrom == nil || f.TimeTo == nil {
		return nil
	}
	sameDay := (f.DateFrom == nil && f.DateTo == nil) ||
		(f.DateFrom != nil && f.DateTo != nil && f.DateFrom.Compare(*f.DateTo) == 0)
	if sameDay && f.TimeFrom.Compare(*f.TimeTo) > 0 {
		return fmt.Errorf("%w: start time %s exceeds end time %s", ErrInvalidRange, f.TimeFrom, f.TimeTo)
	}
	return nil
}

// AppointmentFilter narrows appointment listings. Every field is optional.
type AppointmentFilter struct {
	AppointmentID *uuid.UUID
	ClientID      *int64
	ServiceID     *int64
	ProviderID    *int64
	DateFrom      *domain.Date
	DateTo        *domain.Date
	Status        *domain.AppointmentStatus
}

func (f AppointmentFilter) Validate() error {
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.Compare(*f.DateTo) > 0 {
		return fmt.Errorf("%w: start of date range %s is later than end %s", ErrInvalidRange, f.DateFrom, f.DateTo)
	}
	return nil
}

// AppointmentPatch carries the fields of a partial update. Nil means unchanged.
type AppointmentPatch struct {
	ServiceID *int64
	Note      *string
	Status    *domain.AppointmentStatus
}

func (p AppointmentPatch) Empty() bool {
	return p.ServiceID == nil && p.Note == nil && p.Status == nil
}
