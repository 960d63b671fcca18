package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/store"
)

// CatalogRepo reads services, providers and clients. Those tables are
// maintained elsewhere.
type CatalogRepo struct {
	db *bun.DB
}

func NewCatalogRepo(db *bun.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

func (r *CatalogRepo) Service(ctx context.Context, serviceID int64) (domain.Service, error) {
	return serviceByID(ctx, r.db, serviceID)
}

func (r *CatalogRepo) ProviderNames(ctx context.Context, providerIDs []int64) (map[int64]string, error) {
	return providerNames(ctx, r.db, providerIDs)
}

func serviceByID(ctx context.Context, db bun.IDB, serviceID int64) (domain.Service, error) {
	var svc domain.Service
	err := db.NewSelect().
		Model(&svc).
		Where("id = ?", serviceID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Service{}, fmt.Errorf("%w: id %d", store.ErrServiceNotFound, serviceID)
	}
	if err != nil {
		return domain.Service{}, fmt.Errorf("bunstore: load service: %w", err)
	}
	return svc, nil
}

func servicesByID(ctx context.Context, db bun.IDB, serviceIDs []int64) (map[int64]domain.Service, error) {
	out := make(map[int64]domain.Service, len(serviceIDs))
	if len(serviceIDs) == 0 {
		return out, nil
	}
	var rows []domain.Service
	err := db.NewSelect().
		Model(&rows).
		Where("id IN (?)", bun.In(serviceIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bunstore: load services: %w", err)
	}
	for _, s := range rows {
		out[s.ID] = s
	}
	return out, nil
}

func providerNames(ctx context.Context, db bun.IDB, providerIDs []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(providerIDs))
	if len(providerIDs) == 0 {
		return out, nil
	}
	var rows []domain.Provider
	err := db.NewSelect().
		Model(&rows).
		Where("id IN (?)", bun.In(providerIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bunstore: load providers: %w", err)
	}
	for _, p := range rows {
		out[p.ID] = p.Name
	}
	return out, nil
}

func clientNames(ctx context.Context, db bun.IDB, clientIDs []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(clientIDs))
	if len(clientIDs) == 0 {
		return out, nil
	}
	var rows []domain.Client
	err := db.NewSelect().
		Model(&rows).
		Where("id IN (?)", bun.In(clientIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bunstore: load clients: %w", err)
	}
	for _, c := range rows {
		out[c.ID] = c.Name
	}
	return out, nil
}

func uniqueInt64(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
