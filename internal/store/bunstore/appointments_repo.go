package bunstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/observability"
	"slotbook/backend/internal/store"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

// bookingTx runs against either the open transaction or, for reads, the
// database handle itself.
type bookingTx struct {
	db bun.IDB
}

func (r *AppointmentRepo) Book(ctx context.Context, req store.BookRequest) (domain.AppointmentView, error) {
	var out domain.AppointmentView
	err := r.InTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
		v, err := bookAppointment(ctx, tx, req)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return domain.AppointmentView{}, err
	}
	return out, nil
}

func (r *AppointmentRepo) Get(ctx context.Context, appointmentID uuid.UUID) (domain.AppointmentView, error) {
	tx := bookingTx{db: r.db}
	appt, err := tx.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.AppointmentView{}, err
	}
	return appointmentView(ctx, tx, appt)
}

func (r *AppointmentRepo) Update(ctx context.Context, appointmentID uuid.UUID, patch store.AppointmentPatch) (domain.AppointmentView, error) {
	var out domain.AppointmentView
	err := r.InTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
		v, err := updateAppointment(ctx, tx, appointmentID, patch)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return domain.AppointmentView{}, err
	}
	return out, nil
}

func (r *AppointmentRepo) Cancel(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	var released int
	err := r.InTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
		n, err := cancelAppointment(ctx, tx, appointmentID)
		if err != nil {
			return err
		}
		released = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// List returns appointment views ordered by date and start time. Cancelled
// appointments hold no slots and sort last.
func (r *AppointmentRepo) List(ctx context.Context, filter store.AppointmentFilter) ([]domain.AppointmentView, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var appts []domain.Appointment
	q := r.db.NewSelect().Model(&appts)
	if filter.AppointmentID != nil {
		q = q.Where("a.id = ?", *filter.AppointmentID)
	}
	if filter.ClientID != nil {
		q = q.Where("a.client_id = ?", *filter.ClientID)
	}
	if filter.ServiceID != nil {
		q = q.Where("a.service_id = ?", *filter.ServiceID)
	}
	if filter.Status != nil {
		q = q.Where("a.status = ?", *filter.Status)
	}
	if filter.ProviderID != nil || filter.DateFrom != nil || filter.DateTo != nil {
		sub := r.db.NewSelect().
			Model((*domain.Slot)(nil)).
			Column("appointment_id").
			Where("appointment_id IS NOT NULL")
		if filter.ProviderID != nil {
			sub = sub.Where("provider_id = ?", *filter.ProviderID)
		}
		if filter.DateFrom != nil {
			sub = sub.Where("slot_date >= ?", *filter.DateFrom)
		}
		if filter.DateTo != nil {
			sub = sub.Where("slot_date <= ?", *filter.DateTo)
		}
		q = q.Where("a.id IN (?)", sub)
	}
	if err := q.OrderExpr("a.created_at ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("bunstore: list appointments: %w", err)
	}
	if len(appts) == 0 {
		return []domain.AppointmentView{}, nil
	}

	views, err := r.assembleViews(ctx, appts)
	if err != nil {
		return nil, err
	}
	sortViews(views)
	return views, nil
}

func (r *AppointmentRepo) assembleViews(ctx context.Context, appts []domain.Appointment) ([]domain.AppointmentView, error) {
	ids := make([]uuid.UUID, 0, len(appts))
	serviceIDs := make([]int64, 0, len(appts))
	clientIDs := make([]int64, 0, len(appts))
	for _, a := range appts {
		ids = append(ids, a.ID)
		serviceIDs = append(serviceIDs, a.ServiceID)
		clientIDs = append(clientIDs, a.ClientID)
	}

	var slots []domain.Slot
	err := r.db.NewSelect().
		Model(&slots).
		Where("appointment_id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bunstore: load bound slots: %w", err)
	}
	byAppt := make(map[uuid.UUID][]domain.Slot, len(appts))
	providerIDs := make([]int64, 0, len(slots))
	for _, s := range slots {
		byAppt[*s.AppointmentID] = append(byAppt[*s.AppointmentID], s)
		providerIDs = append(providerIDs, s.ProviderID)
	}

	services, err := servicesByID(ctx, r.db, uniqueInt64(serviceIDs))
	if err != nil {
		return nil, err
	}
	clients, err := clientNames(ctx, r.db, uniqueInt64(clientIDs))
	if err != nil {
		return nil, err
	}
	providers, err := providerNames(ctx, r.db, uniqueInt64(providerIDs))
	if err != nil {
		return nil, err
	}

	out := make([]domain.AppointmentView, 0, len(appts))
	for _, a := range appts {
		bound := byAppt[a.ID]
		var providerName string
		if len(bound) > 0 {
			providerName = providers[bound[0].ProviderID]
		}
		out = append(out, domain.NewAppointmentView(a, services[a.ServiceID], clients[a.ClientID], providerName, bound))
	}
	return out, nil
}

func sortViews(views []domain.AppointmentView) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if (a.Date == nil) != (b.Date == nil) {
			return a.Date != nil
		}
		if a.Date == nil {
			return false
		}
		if c := a.Date.Compare(*b.Date); c != 0 {
			return c < 0
		}
		return a.Start.Compare(*b.Start) < 0
	})
}

// InTransaction hands fn a BookingTx bound to one database transaction. Any
// error from fn rolls the whole transaction back.
func (r *AppointmentRepo) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, bookingTx{db: tx})
	})
}

func (r bookingTx) Service(ctx context.Context, serviceID int64) (domain.Service, error) {
	return serviceByID(ctx, r.db, serviceID)
}

func (r bookingTx) SlotsByID(ctx context.Context, slotIDs []uuid.UUID) ([]domain.Slot, error) {
	if len(slotIDs) == 0 {
		return nil, nil
	}
	var rows []domain.Slot
	err := r.db.NewSelect().
		Model(&rows).
		Where("id IN (?)", bun.In(slotIDs)).
		OrderExpr("slot_date ASC, start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bunstore: load slots: %w", err)
	}
	return rows, nil
}

func (r bookingTx) SlotsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]domain.Slot, error) {
	return slotsByAppointment(ctx, r.db, appointmentID)
}

func (r bookingTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := domain.Appointment{
		ID:        appt.ID,
		ClientID:  appt.ClientID,
		ServiceID: appt.ServiceID,
		Note:      appt.Note,
		Status:    appt.Status,
		CreatedAt: appt.CreatedAt,
		UpdatedAt: appt.UpdatedAt,
	}
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Appointment{}, fmt.Errorf("%w: %s", store.ErrDuplicateAppointment, m.ID)
		}
		return domain.Appointment{}, fmt.Errorf("bunstore: insert appointment: %w", err)
	}
	return m, nil
}

func (r bookingTx) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().
		Model(&appt).
		Where("id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, fmt.Errorf("%w: %s", store.ErrAppointmentNotFound, appointmentID)
	}
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("bunstore: load appointment: %w", err)
	}
	return appt, nil
}

func (r bookingTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) error {
	res, err := r.db.NewUpdate().
		Model(&appt).
		Column("service_id", "client_note", "status", "updated_at").
		Where("id = ?", appt.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: update appointment: %w", err)
	}
	return expectAffected(res, store.ErrAppointmentNotFound, appt.ID)
}

func (r bookingTx) SetAppointmentStatus(ctx context.Context, appointmentID uuid.UUID, status domain.AppointmentStatus) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", appointmentID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: set appointment status: %w", err)
	}
	return expectAffected(res, store.ErrAppointmentNotFound, appointmentID)
}

// BindSlots claims every slot for the appointment or fails. The update only
// touches free slots, so a competing booking that committed first shows up
// as a short affected-row count.
func (r bookingTx) BindSlots(ctx context.Context, appointmentID uuid.UUID, slotIDs []uuid.UUID) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Slot)(nil)).
		Set("appointment_id = ?", appointmentID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id IN (?)", bun.In(slotIDs)).
		Where("appointment_id IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: bind slots: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bunstore: bind slots: %w", err)
	}
	if affected != int64(len(slotIDs)) {
		return fmt.Errorf("%w: claimed %d of %d slots", store.ErrSlotAlreadyBooked, affected, len(slotIDs))
	}
	return nil
}

func (r bookingTx) ReleaseSlots(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Slot)(nil)).
		Set("appointment_id = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("appointment_id = ?", appointmentID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("bunstore: release slots: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bunstore: release slots: %w", err)
	}
	return int(affected), nil
}

func (r bookingTx) AppendEvent(ctx context.Context, eventType string, payload domain.AppointmentEvent) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bunstore: encode %s event: %w", eventType, err)
	}
	traceparent, tracestate := observability.TraceContextStrings(ctx)
	ev := domain.OutboxEvent{
		AggregateID: payload.AppointmentID.String(),
		EventType:   eventType,
		Payload:     string(body),
		Traceparent: traceparent,
		Tracestate:  tracestate,
	}
	if _, err := r.db.NewInsert().Model(&ev).Exec(ctx); err != nil {
		return fmt.Errorf("bunstore: append %s event: %w", eventType, err)
	}
	return nil
}

func (r bookingTx) ProviderName(ctx context.Context, providerID int64) (string, error) {
	names, err := providerNames(ctx, r.db, []int64{providerID})
	if err != nil {
		return "", err
	}
	return names[providerID], nil
}

func (r bookingTx) ClientName(ctx context.Context, clientID int64) (string, error) {
	names, err := clientNames(ctx, r.db, []int64{clientID})
	if err != nil {
		return "", err
	}
	return names[clientID], nil
}

func expectAffected(res sql.Result, notFound error, id uuid.UUID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}
