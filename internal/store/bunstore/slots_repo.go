package bunstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/store"
)

type SlotRepo struct {
	db *bun.DB
}

func NewSlotRepo(db *bun.DB) *SlotRepo {
	return &SlotRepo{db: db}
}

func (r *SlotRepo) List(ctx context.Context, filter store.SlotFilter) ([]domain.Slot, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var rows []domain.Slot
	q := r.db.NewSelect().Model(&rows)
	if filter.ProviderID != nil {
		q = q.Where("provider_id = ?", *filter.ProviderID)
	}
	if filter.DateFrom != nil {
		q = q.Where("slot_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		q = q.Where("slot_date <= ?", *filter.DateTo)
	}
	if filter.TimeFrom != nil {
		q = q.Where("start_time >= ?", *filter.TimeFrom)
	}
	if filter.TimeTo != nil {
		q = q.Where("end_time <= ?", *filter.TimeTo)
	}
	if filter.Booked != nil {
		if *filter.Booked {
			q = q.Where("appointment_id IS NOT NULL")
		} else {
			q = q.Where("appointment_id IS NULL")
		}
	}

	err := q.OrderExpr("slot_date ASC, start_time ASC, provider_id ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bunstore: list slots: %w", err)
	}
	return rows, nil
}

// InsertBatch stores every entry or none of them.
func (r *SlotRepo) InsertBatch(ctx context.Context, providerID int64, entries []domain.SlotEntry) ([]domain.Slot, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	rows := make([]domain.Slot, 0, len(entries))
	seen := make(map[domain.SlotKey]struct{}, len(entries))
	for _, e := range entries {
		if e.End.Compare(e.Start) <= 0 {
			return nil, fmt.Errorf("%w: slot on %s ends at %s before it starts at %s", store.ErrInvalidRange, e.Date, e.End, e.Start)
		}
		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		s := domain.Slot{
			ID:         id,
			ProviderID: providerID,
			Date:       e.Date,
			Start:      e.Start,
			End:        e.End,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if _, dup := seen[s.Key()]; dup {
			return nil, fmt.Errorf("%w: %s %s listed twice", store.ErrDuplicateSlot, e.Date, e.Start)
		}
		seen[s.Key()] = struct{}{}
		rows = append(rows, s)
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderSlots(ctx, tx, providerID); err != nil {
			return err
		}
		if err := ensureNoStoredSlots(ctx, tx, providerID, rows, seen); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: provider %d", store.ErrDuplicateSlot, providerID)
			}
			return fmt.Errorf("bunstore: insert slots: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return domain.SortSlots(rows), nil
}

// lockProviderSlots serializes batch inserts per provider on Postgres. The
// unique index still has the final say.
func lockProviderSlots(ctx context.Context, tx bun.Tx, providerID int64) error {
	if !isPostgres(tx) {
		return nil
	}
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "slots:"+strconv.FormatInt(providerID, 10)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: lock provider slots: %w", err)
	}
	return nil
}

func ensureNoStoredSlots(ctx context.Context, tx bun.Tx, providerID int64, rows []domain.Slot, keys map[domain.SlotKey]struct{}) error {
	dates := make([]domain.Date, 0, len(rows))
	seenDate := make(map[domain.Date]struct{}, len(rows))
	for _, s := range rows {
		if _, ok := seenDate[s.Date]; ok {
			continue
		}
		seenDate[s.Date] = struct{}{}
		dates = append(dates, s.Date)
	}

	var existing []domain.Slot
	err := tx.NewSelect().
		Model(&existing).
		Where("provider_id = ?", providerID).
		Where("slot_date IN (?)", bun.In(dates)).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: check existing slots: %w", err)
	}
	for _, s := range existing {
		if _, clash := keys[s.Key()]; clash {
			return fmt.Errorf("%w: %s %s already exists for provider %d", store.ErrDuplicateSlot, s.Date, s.Start, providerID)
		}
	}
	return nil
}

// Remove deletes a slot only while it is free.
func (r *SlotRepo) Remove(ctx context.Context, slotID uuid.UUID, providerID *int64) error {
	del := r.db.NewDelete().
		Model((*domain.Slot)(nil)).
		Where("id = ?", slotID).
		Where("appointment_id IS NULL")
	if providerID != nil {
		del = del.Where("provider_id = ?", *providerID)
	}
	res, err := del.Exec(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: delete slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	sel := r.db.NewSelect().
		Model((*domain.Slot)(nil)).
		Where("id = ?", slotID)
	if providerID != nil {
		sel = sel.Where("provider_id = ?", *providerID)
	}
	exists, err := sel.Exists(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: delete slot: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", store.ErrSlotBound, slotID)
	}
	return fmt.Errorf("%w: %s", store.ErrSlotNotFound, slotID)
}

func (r *SlotRepo) SlotsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]domain.Slot, error) {
	return slotsByAppointment(ctx, r.db, appointmentID)
}

func slotsByAppointment(ctx context.Context, db bun.IDB, appointmentID uuid.UUID) ([]domain.Slot, error) {
	var rows []domain.Slot
	err := db.NewSelect().
		Model(&rows).
		Where("appointment_id = ?", appointmentID).
		OrderExpr("slot_date ASC, start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bunstore: slots by appointment: %w", err)
	}
	return rows, nil
}
