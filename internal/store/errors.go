package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrServiceNotFound     = fmt.Errorf("service %w", ErrNotFound)
	ErrSlotNotFound        = fmt.Errorf("slot %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)

	ErrInvalidRange         = errors.New("invalid range")
	ErrDuplicateSlot        = errors.New("duplicate slot")
	ErrSlotAlreadyBooked    = errors.New("slot already booked")
	ErrSlotBound            = errors.New("slot is bound to an appointment")
	ErrAppointmentCancelled = errors.New("appointment is cancelled")
	ErrIdempotencyConflict  = errors.New("idempotency key conflict")

	// ErrDuplicateAppointment reports a primary key collision on insert. The
	// booking service turns it into a replay or ErrIdempotencyConflict.
	ErrDuplicateAppointment = errors.New("appointment already exists")
)
