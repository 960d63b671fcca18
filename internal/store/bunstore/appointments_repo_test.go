package bunstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/store"
)

func TestAppointmentRepo_BookThenCancelRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	slotRepo := NewSlotRepo(db)
	ctx := context.Background()

	slots := seedSlots(t, db, 10, 9, 3)

	view, err := repo.Book(ctx, bookRequest(2, slots[1], slots[0]))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, view.ID)
	assert.Equal(t, "Robin", view.ClientName)
	assert.Equal(t, "Deep tissue massage", view.ServiceName)
	assert.Equal(t, "Dana", view.ProviderName)
	assert.Equal(t, 2, view.DurationHours)
	assert.Equal(t, domain.AppointmentStatusBooked, view.Status)
	require.NotNil(t, view.Date)
	assert.Equal(t, testDay, *view.Date)
	assert.Equal(t, domain.NewClock(9, 0), *view.Start)
	assert.Equal(t, domain.NewClock(11, 0), *view.End)
	assert.Equal(t, []uuid.UUID{slots[0].ID, slots[1].ID}, view.SlotIDs)

	for _, s := range slots[:2] {
		bound := loadSlot(t, db, s.ID)
		require.NotNil(t, bound.AppointmentID)
		assert.Equal(t, view.ID, *bound.AppointmentID)
	}
	free := false
	remaining, err := slotRepo.List(ctx, store.SlotFilter{Booked: &free})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, slots[2].ID, remaining[0].ID)

	released, err := repo.Cancel(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	got, err := repo.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentStatusCancelled, got.Status)
	assert.Empty(t, got.SlotIDs)
	assert.Nil(t, got.Date)

	remaining, err = slotRepo.List(ctx, store.SlotFilter{Booked: &free})
	require.NoError(t, err)
	assert.Len(t, remaining, 3)

	released, err = repo.Cancel(ctx, view.ID)
	require.NoError(t, err)
	assert.Zero(t, released)

	var events []domain.OutboxEvent
	require.NoError(t, db.NewSelect().Model(&events).OrderExpr("created_at ASC, id ASC").Scan(ctx))
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventAppointmentBooked, events[0].EventType)
	assert.Equal(t, domain.EventAppointmentCancelled, events[1].EventType)
	assert.Equal(t, view.ID.String(), events[0].AggregateID)

	var payload domain.AppointmentEvent
	require.NoError(t, json.Unmarshal([]byte(events[1].Payload), &payload))
	assert.Equal(t, "cancelled", payload.Status)
	assert.Equal(t, int64(10), payload.ProviderID)
	assert.Len(t, payload.SlotIDs, 2)
}

func TestAppointmentRepo_BookAlreadyBoundLeavesCountUnchanged(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()

	slots := seedSlots(t, db, 10, 9, 2)
	_, err := repo.Book(ctx, bookRequest(1, slots[0]))
	require.NoError(t, err)
	require.Equal(t, 1, countRows(t, db, (*domain.Appointment)(nil)))

	_, err = repo.Book(ctx, bookRequest(2, slots[0], slots[1]))
	assert.ErrorIs(t, err, store.ErrSlotAlreadyBooked)
	assert.Equal(t, 1, countRows(t, db, (*domain.Appointment)(nil)))
	assert.Nil(t, loadSlot(t, db, slots[1].ID).AppointmentID)
}

func TestAppointmentRepo_BookRejectsInvalidChains(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()

	morning := seedSlots(t, db, 10, 9, 1)
	afternoon := seedSlots(t, db, 10, 14, 1)
	other := seedSlots(t, db, 20, 10, 1)

	_, err := repo.Book(ctx, bookRequest(2, morning[0], afternoon[0]))
	assert.ErrorIs(t, err, domain.ErrBrokenChain)

	_, err = repo.Book(ctx, bookRequest(2, morning[0], other[0]))
	assert.ErrorIs(t, err, domain.ErrBrokenChain)

	_, err = repo.Book(ctx, bookRequest(2, morning[0]))
	assert.ErrorIs(t, err, domain.ErrChainTooShort)

	assert.Zero(t, countRows(t, db, (*domain.Appointment)(nil)))
	assert.Zero(t, countRows(t, db, (*domain.OutboxEvent)(nil)))
}

func TestAppointmentRepo_BookUnknownReferences(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()
	slots := seedSlots(t, db, 10, 9, 1)

	_, err := repo.Book(ctx, bookRequest(99, slots[0]))
	assert.ErrorIs(t, err, store.ErrServiceNotFound)

	req := bookRequest(1, slots[0])
	req.SlotIDs = append(req.SlotIDs, uuid.New())
	_, err = repo.Book(ctx, req)
	assert.ErrorIs(t, err, store.ErrSlotNotFound)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	assert.Zero(t, countRows(t, db, (*domain.Appointment)(nil)))
}

func TestAppointmentRepo_BindShortfallRollsBackTransaction(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()

	slots := seedSlots(t, db, 10, 9, 2)
	require.NoError(t, bookingTx{db: db}.BindSlots(ctx, insertBareAppointment(t, db), []uuid.UUID{slots[1].ID}))
	before := countRows(t, db, (*domain.Appointment)(nil))

	// Skips the advisory bound check and goes straight to the conditional bind,
	// as a request that lost the race would.
	err := repo.InTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
		appt, err := tx.InsertAppointment(ctx, domain.Appointment{ClientID: 100, ServiceID: 2, Status: domain.AppointmentStatusBooked})
		if err != nil {
			return err
		}
		return tx.BindSlots(ctx, appt.ID, slotIDs(slots))
	})
	assert.ErrorIs(t, err, store.ErrSlotAlreadyBooked)

	assert.Equal(t, before, countRows(t, db, (*domain.Appointment)(nil)))
	assert.Nil(t, loadSlot(t, db, slots[0].ID).AppointmentID)
}

func TestAppointmentRepo_ConcurrentBookingsExactlyOneWins(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()

	slots := seedSlots(t, db, 10, 9, 2)
	req := bookRequest(2, slots...)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		other     []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.Book(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, store.ErrSlotAlreadyBooked):
				conflicts++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, 1, countRows(t, db, (*domain.Appointment)(nil)))

	first := loadSlot(t, db, slots[0].ID)
	second := loadSlot(t, db, slots[1].ID)
	require.NotNil(t, first.AppointmentID)
	require.NotNil(t, second.AppointmentID)
	assert.Equal(t, *first.AppointmentID, *second.AppointmentID)
}

func TestAppointmentRepo_CancelUnknown(t *testing.T) {
	db := newTestDB(t)
	_, err := NewAppointmentRepo(db).Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrAppointmentNotFound)
	assert.Zero(t, countRows(t, db, (*domain.OutboxEvent)(nil)))
}

func TestAppointmentRepo_DuplicateIDIsReported(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()
	slots := seedSlots(t, db, 10, 9, 2)

	req := bookRequest(1, slots[0])
	req.Appointment.ID = uuid.MustParse("00000000-0000-0000-0000-000000000901")
	_, err := repo.Book(ctx, req)
	require.NoError(t, err)

	again := bookRequest(1, slots[1])
	again.Appointment.ID = req.Appointment.ID
	_, err = repo.Book(ctx, again)
	assert.ErrorIs(t, err, store.ErrDuplicateAppointment)
	assert.Nil(t, loadSlot(t, db, slots[1].ID).AppointmentID)
}

func TestAppointmentRepo_Update(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()
	slots := seedSlots(t, db, 10, 9, 2)

	view, err := repo.Book(ctx, bookRequest(2, slots...))
	require.NoError(t, err)

	note := "bring the referral"
	status := domain.AppointmentStatusRescheduled
	oneHour := int64(1)
	updated, err := repo.Update(ctx, view.ID, store.AppointmentPatch{ServiceID: &oneHour, Note: &note, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, note, updated.Note)
	assert.Equal(t, status, updated.Status)
	assert.Equal(t, "Consultation", updated.ServiceName)
	assert.Len(t, updated.SlotIDs, 2)

	threeHours := int64(3)
	_, err = repo.Update(ctx, view.ID, store.AppointmentPatch{ServiceID: &threeHours})
	assert.ErrorIs(t, err, domain.ErrChainTooShort)

	missing := int64(99)
	_, err = repo.Update(ctx, view.ID, store.AppointmentPatch{ServiceID: &missing})
	assert.ErrorIs(t, err, store.ErrServiceNotFound)

	_, err = repo.Cancel(ctx, view.ID)
	require.NoError(t, err)
	_, err = repo.Update(ctx, view.ID, store.AppointmentPatch{Note: &note})
	assert.ErrorIs(t, err, store.ErrAppointmentCancelled)

	_, err = repo.Update(ctx, uuid.New(), store.AppointmentPatch{Note: &note})
	assert.ErrorIs(t, err, store.ErrAppointmentNotFound)
}

func TestAppointmentRepo_ListFiltersAndOrder(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()

	dana := seedSlots(t, db, 10, 9, 3)
	eli := seedSlots(t, db, 20, 8, 1)

	late, err := repo.Book(ctx, bookRequest(1, dana[2]))
	require.NoError(t, err)
	early, err := repo.Book(ctx, bookRequest(1, eli[0]))
	require.NoError(t, err)
	gone, err := repo.Book(ctx, bookRequest(1, dana[0]))
	require.NoError(t, err)
	_, err = repo.Cancel(ctx, gone.ID)
	require.NoError(t, err)

	all, err := repo.List(ctx, store.AppointmentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uuid.UUID{early.ID, late.ID, gone.ID}, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})

	provider := int64(10)
	byProvider, err := repo.List(ctx, store.AppointmentFilter{ProviderID: &provider})
	require.NoError(t, err)
	require.Len(t, byProvider, 1)
	assert.Equal(t, late.ID, byProvider[0].ID)
	assert.Equal(t, "Dana", byProvider[0].ProviderName)

	cancelled := domain.AppointmentStatusCancelled
	byStatus, err := repo.List(ctx, store.AppointmentFilter{Status: &cancelled})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, gone.ID, byStatus[0].ID)

	nextDay := domain.NewDate(2024, 1, 2)
	none, err := repo.List(ctx, store.AppointmentFilter{DateFrom: &nextDay})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = repo.List(ctx, store.AppointmentFilter{DateFrom: &nextDay, DateTo: &testDay})
	assert.ErrorIs(t, err, store.ErrInvalidRange)
}
