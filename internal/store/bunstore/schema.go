package bunstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/uptrace/bun"

	"slotbook/backend/internal/domain"
	"slotbook/backend/migrations"
)

// Migrate brings the schema up to date. Postgres runs the embedded SQL
// migrations; SQLite has no migration history and gets the tables derived
// from the models.
func Migrate(ctx context.Context, db *bun.DB) error {
	if !isPostgres(db) {
		return CreateSchema(ctx, db)
	}

	// A dedicated connection keeps the pool open when the driver lets go.
	conn, err := db.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: migrate conn: %w", err)
	}
	defer func() { _ = conn.Close() }()

	dbDriver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("bunstore: migrate driver: %w", err)
	}
	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("bunstore: migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("bunstore: migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("bunstore: migrate up: %w", err)
	}
	return nil
}

// CreateSchema creates the tables and indexes straight from the bun models.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*domain.Service)(nil),
		(*domain.Provider)(nil),
		(*domain.Client)(nil),
		(*domain.Appointment)(nil),
		(*domain.Slot)(nil),
		(*domain.OutboxEvent)(nil),
	}
	for _, m := range models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("bunstore: create table: %w", err)
		}
	}

	indexes := []*bun.CreateIndexQuery{
		db.NewCreateIndex().
			Model((*domain.Slot)(nil)).
			Index("slots_provider_date_start_key").
			Unique().
			Column("provider_id", "slot_date", "start_time"),
		db.NewCreateIndex().
			Model((*domain.Slot)(nil)).
			Index("slots_appointment_id_idx").
			Column("appointment_id"),
		db.NewCreateIndex().
			Model((*domain.OutboxEvent)(nil)).
			Index("outbox_events_unpublished_idx").
			Column("published_at", "created_at"),
	}
	for _, q := range indexes {
		if _, err := q.IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("bunstore: create index: %w", err)
		}
	}
	return nil
}
