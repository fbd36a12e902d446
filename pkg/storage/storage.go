package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

var (
	ErrSiteNotFound    = errors.New("site not found")
	ErrPayloadNotFound = errors.New("raw payload not found")
)

// Database defines the interface for persisting sites and the inputs of their
// load profiles.
type Database interface {
	// Settings
	GetSettings(ctx context.Context, siteID string) (types.Settings, int, error)
	SetSettings(ctx context.Context, siteID string, settings types.Settings, version int) error

	// Sites
	GetSite(ctx context.Context, siteID string) (types.Site, error)
	ListSites(ctx context.Context) ([]types.Site, error)
	UpsertSite(ctx context.Context, site types.Site) error

	// Tenants and meters, scoped to a site and ordered by ID.
	ListTenants(ctx context.Context, siteID string) ([]types.Tenant, error)
	UpsertTenant(ctx context.Context, siteID string, tenant types.Tenant) error
	ListMeters(ctx context.Context, siteID string) ([]types.Meter, error)
	UpsertMeter(ctx context.Context, siteID string, meter types.Meter) error

	// Raw payloads are large and only fetched when a profile is computed.
	GetRawPayload(ctx context.Context, siteID, meterID string) (types.RawPayload, error)
	UpsertRawPayload(ctx context.Context, siteID string, payload types.RawPayload) error

	// Shop types are shared by every site.
	ListShopTypes(ctx context.Context) ([]types.ShopType, error)
	UpsertShopType(ctx context.Context, shopType types.ShopType) error

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, sqlite)")

	var p struct{ Database }

	fs := configuredFirestore()
	sq := configuredSQLite()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "sqlite":
			if err := sq.Validate(); err != nil {
				panic(fmt.Sprintf("sqlite validation failed: %v", err))
			}
			p.Database = sq
			if err := sq.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("sqlite init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
