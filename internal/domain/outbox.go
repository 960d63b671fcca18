package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	EventAppointmentBooked    = "appointment.booked"
	EventAppointmentCancelled = "appointment.cancelled"
)

// OutboxEvent is written in the same transaction as the state change it
// describes and shipped to Kafka later.
type OutboxEvent struct {
	bun.BaseModel `bun:"table:outbox_events,alias:o"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid"`
	AggregateID string     `bun:"aggregate_id,notnull"`
	EventType   string     `bun:"event_type,notnull"`
	Payload     string     `bun:"payload,notnull"`
	Traceparent string     `bun:"traceparent"`
	Tracestate  string     `bun:"tracestate"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	PublishedAt *time.Time `bun:"published_at"`
}

func (e *OutboxEvent) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if e.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		e.ID = id
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

// AppointmentEvent is the outbox payload for booking lifecycle events.
type AppointmentEvent struct {
	AppointmentID uuid.UUID   `json:"appointment_id"`
	ClientID      int64       `json:"client_id"`
	ServiceID     int64       `json:"service_id"`
	ProviderID    int64       `json:"provider_id,omitempty"`
	Status        string      `json:"status"`
	SlotIDs       []uuid.UUID `json:"slot_ids"`
	OccurredAt    time.Time   `json:"occurred_at"`
}
