package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/service/booking"
	"slotbook/backend/internal/store"
)

type fakeBookingService struct {
	listFreeSlotsFn    func(ctx context.Context, q booking.SlotQuery) ([]domain.Slot, error)
	findChainsFn       func(ctx context.Context, serviceID int64, date domain.Date) ([]domain.Chain, error)
	createFn           func(ctx context.Context, in booking.CreateInput) (domain.AppointmentView, error)
	updateFn           func(ctx context.Context, appointmentID uuid.UUID, in booking.UpdateInput) (domain.AppointmentView, error)
	cancelFn           func(ctx context.Context, appointmentID uuid.UUID) (domain.Cancellation, error)
	deleteSlotFn       func(ctx context.Context, slotID uuid.UUID) error
	insertSlotsFn      func(ctx context.Context, providerID int64, entries []domain.SlotEntry) ([]domain.Slot, error)
	listAppointmentsFn func(ctx context.Context, filter store.AppointmentFilter) ([]domain.AppointmentView, error)
}

func (f *fakeBookingService) ListFreeSlots(ctx context.Context, q booking.SlotQuery) ([]domain.Slot, error) {
	if f.listFreeSlotsFn == nil {
		panic("ListFreeSlots not configured")
	}
	return f.listFreeSlotsFn(ctx, q)
}

func (f *fakeBookingService) FindChains(ctx context.Context, serviceID int64, date domain.Date) ([]domain.Chain, error) {
	if f.findChainsFn == nil {
		panic("FindChains not configured")
	}
	return f.findChainsFn(ctx, serviceID, date)
}

func (f *fakeBookingService) Create(ctx context.Context, in booking.CreateInput) (domain.AppointmentView, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, in)
}

func (f *fakeBookingService) Update(ctx context.Context, appointmentID uuid.UUID, in booking.UpdateInput) (domain.AppointmentView, error) {
	if f.updateFn == nil {
		panic("Update not configured")
	}
	return f.updateFn(ctx, appointmentID, in)
}

func (f *fakeBookingService) Cancel(ctx context.Context, appointmentID uuid.UUID) (domain.Cancellation, error) {
	if f.cancelFn == nil {
		panic("Cancel not configured")
	}
	return f.cancelFn(ctx, appointmentID)
}

func (f *fakeBookingService) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	if f.deleteSlotFn == nil {
		panic("DeleteSlot not configured")
	}
	return f.deleteSlotFn(ctx, slotID)
}

func (f *fakeBookingService) InsertSlots(ctx context.Context, providerID int64, entries []domain.SlotEntry) ([]domain.Slot, error) {
	if f.insertSlotsFn == nil {
		panic("InsertSlots not configured")
	}
	return f.insertSlotsFn(ctx, providerID, entries)
}

func (f *fakeBookingService) ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.AppointmentView, error) {
	if f.listAppointmentsFn == nil {
		panic("ListAppointments not configured")
	}
	return f.listAppointmentsFn(ctx, filter)
}

const testSlotID = "00000000-0000-0000-0000-000000000001"

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}
}

func TestCreateAppointment_RejectsMalformedSlotIDs(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{}, slog.Default())

	_, err := srv.CreateAppointment(context.Background(), &CreateAppointmentRequest{
		ClientID:       100,
		ServiceID:      1,
		Availabilities: []string{"not-a-uuid"},
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestCreateAppointment_PassesInputToService(t *testing.T) {
	var got booking.CreateInput

	srv := NewBookingServer(&fakeBookingService{
		createFn: func(ctx context.Context, in booking.CreateInput) (domain.AppointmentView, error) {
			got = in
			return domain.AppointmentView{ID: uuid.MustParse("00000000-0000-0000-0000-000000000010")}, nil
		},
	}, slog.Default())

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "k1"))
	resp, err := srv.CreateAppointment(ctx, &CreateAppointmentRequest{
		ClientID:       100,
		ServiceID:      1,
		Availabilities: []string{" " + testSlotID + " "},
		ClientNote:     "first visit",
	})
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}
	if resp.Appointment.ID.String() != "00000000-0000-0000-0000-000000000010" {
		t.Fatalf("appointment id = %s", resp.Appointment.ID)
	}
	if got.IdempotencyKey != "k1" {
		t.Fatalf("idempotency_key = %q, want %q", got.IdempotencyKey, "k1")
	}
	if got.ClientID != 100 || got.ServiceID != 1 || got.Note != "first visit" {
		t.Fatalf("input = %+v", got)
	}
	if len(got.SlotIDs) != 1 || got.SlotIDs[0] != uuid.MustParse(testSlotID) {
		t.Fatalf("slot ids = %v", got.SlotIDs)
	}
}

func TestCreateAppointment_MapsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"validation", &booking.ValidationError{}, codes.InvalidArgument},
		{"service missing", fmt.Errorf("%w: id 9", store.ErrServiceNotFound), codes.NotFound},
		{"slot missing", fmt.Errorf("%w: [x]", store.ErrSlotNotFound), codes.NotFound},
		{"already booked", fmt.Errorf("%w: claimed 1 of 2 slots", store.ErrSlotAlreadyBooked), codes.Aborted},
		{"idempotency", store.ErrIdempotencyConflict, codes.FailedPrecondition},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"unexpected", errors.New("bunstore: bind slots: connection reset"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewBookingServer(&fakeBookingService{
				createFn: func(ctx context.Context, in booking.CreateInput) (domain.AppointmentView, error) {
					return domain.AppointmentView{}, tt.err
				},
			}, slog.Default())

			_, err := srv.CreateAppointment(context.Background(), &CreateAppointmentRequest{
				ClientID:       100,
				ServiceID:      1,
				Availabilities: []string{testSlotID},
			})
			if status.Code(err) != tt.want {
				t.Fatalf("code = %s, want %s", status.Code(err), tt.want)
			}
		})
	}
}

func TestInternalErrorsDoNotLeakDetails(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{
		deleteSlotFn: func(ctx context.Context, slotID uuid.UUID) error {
			return errors.New("bunstore: delete slot: password authentication failed")
		},
	}, slog.Default())

	_, err := srv.DeleteSlot(context.Background(), &DeleteSlotRequest{AvailabilityID: testSlotID})
	if status.Convert(err).Message() != "internal error" {
		t.Fatalf("message = %q, want %q", status.Convert(err).Message(), "internal error")
	}
}

func TestDeleteSlot_MapsBoundAndMissing(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want codes.Code
	}{
		{store.ErrSlotBound, codes.FailedPrecondition},
		{store.ErrSlotNotFound, codes.NotFound},
	} {
		srv := NewBookingServer(&fakeBookingService{
			deleteSlotFn: func(ctx context.Context, slotID uuid.UUID) error {
				return tc.err
			},
		}, slog.Default())

		_, err := srv.DeleteSlot(context.Background(), &DeleteSlotRequest{AvailabilityID: testSlotID})
		if status.Code(err) != tc.want {
			t.Fatalf("%v: code = %s, want %s", tc.err, status.Code(err), tc.want)
		}
	}
}

func TestInsertSlots_MapsDuplicate(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{
		insertSlotsFn: func(ctx context.Context, providerID int64, entries []domain.SlotEntry) ([]domain.Slot, error) {
			if providerID != 5 || len(entries) != 1 {
				t.Fatalf("provider = %d, entries = %d", providerID, len(entries))
			}
			return nil, fmt.Errorf("%w: provider 5", store.ErrDuplicateSlot)
		},
	}, slog.Default())

	_, err := srv.InsertSlots(context.Background(), &InsertSlotsRequest{
		ProviderID: 5,
		Availabilities: []domain.SlotEntry{
			{Date: domain.NewDate(2024, 1, 1), Start: domain.NewClock(9, 0), End: domain.NewClock(10, 0)},
		},
	})
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.AlreadyExists)
	}
}

func TestListFreeSlots_ParsesFilters(t *testing.T) {
	var got booking.SlotQuery
	srv := NewBookingServer(&fakeBookingService{
		listFreeSlotsFn: func(ctx context.Context, q booking.SlotQuery) ([]domain.Slot, error) {
			got = q
			return nil, nil
		},
	}, slog.Default())

	resp, err := srv.ListFreeSlots(context.Background(), &ListFreeSlotsRequest{
		ProviderID: 5,
		StartDate:  "2024-01-01",
		StartTime:  "09:00",
	})
	if err != nil {
		t.Fatalf("ListFreeSlots error: %v", err)
	}
	if resp.Availabilities == nil {
		t.Fatalf("availabilities = nil, want empty slice")
	}
	if got.ProviderID == nil || *got.ProviderID != 5 {
		t.Fatalf("provider filter = %v", got.ProviderID)
	}
	if got.DateFrom == nil || *got.DateFrom != domain.NewDate(2024, 1, 1) || got.DateTo != nil {
		t.Fatalf("date filters = %v, %v", got.DateFrom, got.DateTo)
	}
	if got.TimeFrom == nil || *got.TimeFrom != domain.NewClock(9, 0) || got.TimeTo != nil {
		t.Fatalf("time filters = %v, %v", got.TimeFrom, got.TimeTo)
	}
}

func TestListFreeSlots_RejectsBadDateAndInvertedRange(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{
		listFreeSlotsFn: func(ctx context.Context, q booking.SlotQuery) ([]domain.Slot, error) {
			return nil, fmt.Errorf("%w: start date 2024-01-02 exceeds end date 2024-01-01", store.ErrInvalidRange)
		},
	}, slog.Default())

	_, err := srv.ListFreeSlots(context.Background(), &ListFreeSlotsRequest{StartDate: "01/02/2024"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad date code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}

	_, err = srv.ListFreeSlots(context.Background(), &ListFreeSlotsRequest{StartDate: "2024-01-02", EndDate: "2024-01-01"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("inverted range code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestListFreeSlots_RejectsFractionalSeconds(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{
		listFreeSlotsFn: func(ctx context.Context, q booking.SlotQuery) ([]domain.Slot, error) {
			t.Fatalf("service called with %+v", q)
			return nil, nil
		},
	}, slog.Default())

	for _, req := range []*ListFreeSlotsRequest{{StartTime: "09:00:00.5"}, {EndTime: "24:00"}} {
		_, err := srv.ListFreeSlots(context.Background(), req)
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("ListFreeSlots(%+v) code = %s, want %s", req, status.Code(err), codes.InvalidArgument)
		}
	}
}

func TestCancelAppointment(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000010")
	srv := NewBookingServer(&fakeBookingService{
		cancelFn: func(ctx context.Context, appointmentID uuid.UUID) (domain.Cancellation, error) {
			if appointmentID != id {
				return domain.Cancellation{}, store.ErrAppointmentNotFound
			}
			return domain.Cancellation{AppointmentID: id, Released: 2}, nil
		},
	}, slog.Default())

	resp, err := srv.CancelAppointment(context.Background(), &CancelAppointmentRequest{AppointmentID: id.String()})
	if err != nil {
		t.Fatalf("CancelAppointment error: %v", err)
	}
	if resp.Cancellation.Released != 2 {
		t.Fatalf("released = %d, want 2", resp.Cancellation.Released)
	}

	_, err = srv.CancelAppointment(context.Background(), &CancelAppointmentRequest{AppointmentID: testSlotID})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.NotFound)
	}

	_, err = srv.CancelAppointment(context.Background(), &CancelAppointmentRequest{AppointmentID: "nope"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestUpdateAppointment_MapsCancelled(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{
		updateFn: func(ctx context.Context, appointmentID uuid.UUID, in booking.UpdateInput) (domain.AppointmentView, error) {
			if in.Note == nil || *in.Note != "later" {
				t.Fatalf("note = %v", in.Note)
			}
			return domain.AppointmentView{}, store.ErrAppointmentCancelled
		},
	}, slog.Default())

	note := "later"
	_, err := srv.UpdateAppointment(context.Background(), &UpdateAppointmentRequest{
		AppointmentID: testSlotID,
		ClientNote:    &note,
	})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.FailedPrecondition)
	}
}

func TestListAppointments_BuildsFilter(t *testing.T) {
	var got store.AppointmentFilter
	srv := NewBookingServer(&fakeBookingService{
		listAppointmentsFn: func(ctx context.Context, filter store.AppointmentFilter) ([]domain.AppointmentView, error) {
			got = filter
			return nil, nil
		},
	}, slog.Default())

	resp, err := srv.ListAppointments(context.Background(), &ListAppointmentsRequest{
		ClientID: 100,
		EndDate:  "2024-02-01",
		Status:   " Booked ",
	})
	if err != nil {
		t.Fatalf("ListAppointments error: %v", err)
	}
	if resp.Appointments == nil {
		t.Fatalf("appointments = nil, want empty slice")
	}
	if got.ClientID == nil || *got.ClientID != 100 || got.ServiceID != nil {
		t.Fatalf("filter = %+v", got)
	}
	if got.Status == nil || *got.Status != domain.AppointmentStatusBooked {
		t.Fatalf("status = %v", got.Status)
	}
	if got.DateTo == nil || *got.DateTo != domain.NewDate(2024, 2, 1) {
		t.Fatalf("date to = %v", got.DateTo)
	}

	_, err = srv.ListAppointments(context.Background(), &ListAppointmentsRequest{AppointmentID: "x"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestFindChains_RequiresDate(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{}, slog.Default())

	_, err := srv.FindChains(context.Background(), &FindChainsRequest{ServiceID: 1})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}
