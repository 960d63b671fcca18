package store

import (
	"context"

	"github.com/google/uuid"

	"slotbook/backend/internal/domain"
)

type SlotRepository interface {
	List(ctx context.Context, filter SlotFilter) ([]domain.Slot, error)
	InsertBatch(ctx context.Context, providerID int64, entries []domain.SlotEntry) ([]domain.Slot, error)
	// Remove deletes a free slot. A non-nil providerID limits removal to
	// that provider's slots; anyone else's slot reads as not found.
	Remove(ctx context.Context, slotID uuid.UUID, providerID *int64) error
	SlotsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]domain.Slot, error)
}

// Catalog resolves the read-only reference data owned by other services.
type Catalog interface {
	Service(ctx context.Context, serviceID int64) (domain.Service, error)
	ProviderNames(ctx context.Context, providerIDs []int64) (map[int64]string, error)
}
