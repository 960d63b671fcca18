package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"slotbook/backend/internal/domain"
)

type OutboxRepo struct {
	db *bun.DB
}

func NewOutboxRepo(db *bun.DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

// PublishPending hands up to limit unpublished events, oldest first, to fn
// and marks them published once fn succeeds. On Postgres the rows stay
// locked until then so concurrent publishers skip them. SQLite has a single
// connection, so there fn runs outside any transaction and bookings are not
// held behind the broker; a crash between fn and the mark re-sends the batch.
func (r *OutboxRepo) PublishPending(ctx context.Context, limit int, fn func(ctx context.Context, events []domain.OutboxEvent) error) (int, error) {
	if !isPostgres(r.db) {
		rows, err := pendingEvents(ctx, r.db, limit, false)
		if err != nil || len(rows) == 0 {
			return 0, err
		}
		if err := fn(ctx, rows); err != nil {
			return 0, err
		}
		if err := markPublished(ctx, r.db, rows); err != nil {
			return 0, err
		}
		return len(rows), nil
	}

	var published int
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rows, err := pendingEvents(ctx, tx, limit, true)
		if err != nil || len(rows) == 0 {
			return err
		}
		if err := fn(ctx, rows); err != nil {
			return err
		}
		if err := markPublished(ctx, tx, rows); err != nil {
			return err
		}
		published = len(rows)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

func pendingEvents(ctx context.Context, db bun.IDB, limit int, lock bool) ([]domain.OutboxEvent, error) {
	var rows []domain.OutboxEvent
	q := db.NewSelect().
		Model(&rows).
		Where("published_at IS NULL").
		OrderExpr("created_at ASC, id ASC").
		Limit(limit)
	if lock {
		q = q.For("UPDATE SKIP LOCKED")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bunstore: fetch outbox: %w", err)
	}
	return rows, nil
}

func markPublished(ctx context.Context, db bun.IDB, rows []domain.OutboxEvent) error {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.ID)
	}
	_, err := db.NewUpdate().
		Model((*domain.OutboxEvent)(nil)).
		Set("published_at = ?", time.Now().UTC()).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: mark outbox published: %w", err)
	}
	return nil
}

// Pending counts events not yet shipped. The publisher reports it as the
// outbox backlog gauge.
func (r *OutboxRepo) Pending(ctx context.Context) (int, error) {
	n, err := r.db.NewSelect().
		Model((*domain.OutboxEvent)(nil)).
		Where("published_at IS NULL").
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bunstore: count outbox: %w", err)
	}
	return n, nil
}
