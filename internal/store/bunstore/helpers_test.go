package bunstore

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/store"
)

var testDBSeq atomic.Int64

var testDay = domain.NewDate(2024, 1, 1)

// newTestDB opens a private in-memory SQLite database with the schema and a
// small catalog: a one-hour and a two-hour service, two providers, one client.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, testDBSeq.Add(1))
	db, err := Open(DriverSQLite, dsn, PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))

	services := []domain.Service{
		{ID: 1, Name: "Consultation", DurationHours: 1},
		{ID: 2, Name: "Deep tissue massage", DurationHours: 2},
		{ID: 3, Name: "Full treatment", DurationHours: 3},
	}
	providers := []domain.Provider{{ID: 10, Name: "Dana"}, {ID: 20, Name: "Eli"}}
	clients := []domain.Client{{ID: 100, Name: "Robin"}}
	_, err = db.NewInsert().Model(&services).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&providers).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&clients).Exec(ctx)
	require.NoError(t, err)
	return db
}

func entry(startHour, endHour int) domain.SlotEntry {
	return domain.SlotEntry{Date: testDay, Start: domain.NewClock(startHour, 0), End: domain.NewClock(endHour, 0)}
}

// seedSlots inserts back-to-back one-hour slots for the provider starting at
// firstHour, in order.
func seedSlots(t *testing.T, db *bun.DB, providerID int64, firstHour, count int) []domain.Slot {
	t.Helper()
	entries := make([]domain.SlotEntry, 0, count)
	for h := firstHour; h < firstHour+count; h++ {
		entries = append(entries, entry(h, h+1))
	}
	slots, err := NewSlotRepo(db).InsertBatch(context.Background(), providerID, entries)
	require.NoError(t, err)
	require.Len(t, slots, count)
	return slots
}

func slotIDs(slots []domain.Slot) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.ID)
	}
	return ids
}

func bookRequest(serviceID int64, slots ...domain.Slot) store.BookRequest {
	return store.BookRequest{
		Appointment: domain.Appointment{ClientID: 100, ServiceID: serviceID, Note: "first visit"},
		SlotIDs:     slotIDs(slots),
	}
}

func countRows(t *testing.T, db *bun.DB, model any) int {
	t.Helper()
	n, err := db.NewSelect().Model(model).Count(context.Background())
	require.NoError(t, err)
	return n
}

func loadSlot(t *testing.T, db *bun.DB, id uuid.UUID) domain.Slot {
	t.Helper()
	var s domain.Slot
	require.NoError(t, db.NewSelect().Model(&s).Where("id = ?", id).Scan(context.Background()))
	return s
}

func insertBareAppointment(t *testing.T, db bun.IDB) uuid.UUID {
	t.Helper()
	appt, err := bookingTx{db: db}.InsertAppointment(context.Background(), domain.Appointment{
		ClientID:  100,
		ServiceID: 1,
		Status:    domain.AppointmentStatusBooked,
	})
	require.NoError(t, err)
	return appt.ID
}
