package domain

import "github.com/uptrace/bun"

// Service, Provider and Client are owned by the catalog collaborator. The
// booking core only reads them.

type Service struct {
	bun.BaseModel `bun:"table:services,alias:svc"`

	ID            int64  `bun:"id,pk,autoincrement"`
	Name          string `bun:"service_name,notnull"`
	DurationHours int    `bun:"service_duration,notnull"`
}

type Provider struct {
	bun.BaseModel `bun:"table:providers,alias:p"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

type Client struct {
	bun.BaseModel `bun:"table:clients,alias:c"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}
