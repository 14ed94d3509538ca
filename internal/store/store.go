// Package store selects the lead store behind the commit gateway.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/leadflow/internal/config"
	"github.com/JonMunkholm/leadflow/internal/core"
	"github.com/JonMunkholm/leadflow/internal/store/postgres"
	"github.com/JonMunkholm/leadflow/internal/store/sqlite"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store is what the server and CLI need from a lead store.
type Store interface {
	core.DetailedGateway
	core.CampaignChecker
	core.CampaignLister
	core.AuditLog
	core.TemplateStore

	CreateCampaign(ctx context.Context, tenantID, name string) (core.Campaign, error)
	CountLeads(ctx context.Context, tenantID string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*postgres.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
)

// DriverFor guesses the driver from a connection string: postgres URLs
// select Postgres and anything else is a SQLite path.
func DriverFor(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open connects to the store named by cfg. An empty driver is inferred
// from the URL.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	driver := strings.ToLower(cfg.Driver)
	if driver == "" {
		driver = DriverFor(cfg.URL)
	}

	switch driver {
	case DriverPostgres:
		s, err := postgres.Open(ctx, cfg.URL, postgres.PoolConfig{
			MaxConns:        int32(cfg.MaxConns),
			MinConns:        int32(cfg.MinConns),
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := sqlite.Open(strings.TrimPrefix(cfg.URL, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
