package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/levenlabs/go-lflag"
	_ "modernc.org/sqlite"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/log"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

//go:embed schema.sql
var sqliteSchema string

// SQLiteProvider implements Database on a local SQLite file. Rows store their
// value as JSON, the same as the Firestore documents.
type SQLiteProvider struct {
	db   *sql.DB
	path string
}

// configuredSQLite sets up the SQLite provider.
// It registers flags for configuration.
func configuredSQLite() *SQLiteProvider {
	path := lflag.String("sqlite-path", "greencalc.db", "Path of the SQLite database file (use :memory: for a throwaway database)")

	s := &SQLiteProvider{}

	lflag.Do(func() {
		s.path = *path
	})

	return s
}

// NewSQLite returns an uninitialized provider for path.
func NewSQLite(path string) *SQLiteProvider {
	return &SQLiteProvider{path: path}
}

// Validate checks if the provider is properly configured.
func (s *SQLiteProvider) Validate() error {
	if s.path == "" {
		return fmt.Errorf("sqlite-path is required")
	}
	return nil
}

// Init opens the database and creates any missing tables.
func (s *SQLiteProvider) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database (%s): %w", s.path, err)
	}
	// a single writer, and every connection to :memory: is its own database
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to sqlite database (%s): %w", s.path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "sqlite database ready", slog.String("path", s.path))
	s.db = db
	return nil
}

// Close closes the database.
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func queryJSON[T any](ctx context.Context, db *sql.DB, kind, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", kind, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", kind, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", kind, err)
	}
	return out, nil
}

func execJSON(ctx context.Context, db *sql.DB, kind, query string, v any, args ...any) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	args = append(args, string(jsonBytes))
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save %s: %w", kind, err)
	}
	return nil
}

// GetSettings returns the settings of a site, or zero settings and version 0
// when none were saved.
func (s *SQLiteProvider) GetSettings(ctx context.Context, siteID string) (types.Settings, int, error) {
	if siteID == "" {
		return types.Settings{}, 0, fmt.Errorf("siteID cannot be empty")
	}
	var raw string
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT json, version FROM settings WHERE site_id = ?", siteID).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Settings{}, 0, nil
	}
	if err != nil {
		return types.Settings{}, 0, fmt.Errorf("failed to fetch settings: %w", err)
	}
	var settings types.Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal settings json", slog.String("siteID", siteID), slog.Any("err", err))
		return types.Settings{}, 0, fmt.Errorf("failed to unmarshal settings json: %w", err)
	}
	return settings, version, nil
}

// SetSettings saves the settings of a site with their version.
func (s *SQLiteProvider) SetSettings(ctx context.Context, siteID string, settings types.Settings, version int) error {
	if siteID == "" {
		return fmt.Errorf("siteID cannot be empty")
	}
	jsonBytes, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (site_id, json, version) VALUES (?, ?, ?)
		ON CONFLICT (site_id) DO UPDATE SET json = excluded.json, version = excluded.version`,
		siteID, string(jsonBytes), version,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// GetSite returns a site or ErrSiteNotFound.
func (s *SQLiteProvider) GetSite(ctx context.Context, siteID string) (types.Site, error) {
	if siteID == "" {
		return types.Site{}, fmt.Errorf("siteID cannot be empty")
	}
	sites, err := queryJSON[types.Site](ctx, s.db, "site", "SELECT json FROM sites WHERE id = ?", siteID)
	if err != nil {
		return types.Site{}, err
	}
	if len(sites) == 0 {
		return types.Site{}, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
	}
	site := sites[0]
	site.ID = siteID
	return site, nil
}

// ListSites returns every site ordered by ID.
func (s *SQLiteProvider) ListSites(ctx context.Context) ([]types.Site, error) {
	return queryJSON[types.Site](ctx, s.db, "sites", "SELECT json FROM sites ORDER BY id")
}

// UpsertSite creates or replaces a site.
func (s *SQLiteProvider) UpsertSite(ctx context.Context, site types.Site) error {
	if site.ID == "" {
		return fmt.Errorf("siteID cannot be empty")
	}
	return execJSON(ctx, s.db, "site",
		"INSERT INTO sites (id, json) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET json = excluded.json",
		site, site.ID,
	)
}

// ListTenants returns the tenants of a site ordered by ID.
func (s *SQLiteProvider) ListTenants(ctx context.Context, siteID string) ([]types.Tenant, error) {
	if siteID == "" {
		return nil, fmt.Errorf("siteID cannot be empty")
	}
	return queryJSON[types.Tenant](ctx, s.db, "tenants", "SELECT json FROM tenants WHERE site_id = ? ORDER BY id", siteID)
}

// UpsertTenant creates or replaces a tenant of a site.
func (s *SQLiteProvider) UpsertTenant(ctx context.Context, siteID string, tenant types.Tenant) error {
	if siteID == "" {
		return fmt.Errorf("siteID cannot be empty")
	}
	if tenant.ID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	return execJSON(ctx, s.db, "tenant",
		"INSERT INTO tenants (site_id, id, json) VALUES (?, ?, ?) ON CONFLICT (site_id, id) DO UPDATE SET json = excluded.json",
		tenant, siteID, tenant.ID,
	)
}

// ListMeters returns the meter metadata of a site ordered by ID.
func (s *SQLiteProvider) ListMeters(ctx context.Context, siteID string) ([]types.Meter, error) {
	if siteID == "" {
		return nil, fmt.Errorf("siteID cannot be empty")
	}
	return queryJSON[types.Meter](ctx, s.db, "meters", "SELECT json FROM meters WHERE site_id = ? ORDER BY id", siteID)
}

// UpsertMeter creates or replaces meter metadata.
func (s *SQLiteProvider) UpsertMeter(ctx context.Context, siteID string, meter types.Meter) error {
	if siteID == "" {
		return fmt.Errorf("siteID cannot be empty")
	}
	if meter.ID == "" {
		return fmt.Errorf("meter id cannot be empty")
	}
	return execJSON(ctx, s.db, "meter",
		"INSERT INTO meters (site_id, id, json) VALUES (?, ?, ?) ON CONFLICT (site_id, id) DO UPDATE SET json = excluded.json",
		meter, siteID, meter.ID,
	)
}

// GetRawPayload returns the raw export of a meter or ErrPayloadNotFound.
func (s *SQLiteProvider) GetRawPayload(ctx context.Context, siteID, meterID string) (types.RawPayload, error) {
	if siteID == "" {
		return types.RawPayload{}, fmt.Errorf("siteID cannot be empty")
	}
	payloads, err := queryJSON[types.RawPayload](ctx, s.db, "raw payload",
		"SELECT json FROM raw_payloads WHERE site_id = ? AND meter_id = ?", siteID, meterID)
	if err != nil {
		return types.RawPayload{}, err
	}
	if len(payloads) == 0 {
		return types.RawPayload{}, fmt.Errorf("%w: %s", ErrPayloadNotFound, meterID)
	}
	p := payloads[0]
	p.MeterID = meterID
	return p, nil
}

// UpsertRawPayload stores the raw export of a meter, replacing any previous
// export.
func (s *SQLiteProvider) UpsertRawPayload(ctx context.Context, siteID string, payload types.RawPayload) error {
	if siteID == "" {
		return fmt.Errorf("siteID cannot be empty")
	}
	if payload.MeterID == "" {
		return fmt.Errorf("meter id cannot be empty")
	}
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal raw payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO raw_payloads (site_id, meter_id, json, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (site_id, meter_id) DO UPDATE SET json = excluded.json, updated_at = excluded.updated_at`,
		siteID, payload.MeterID, string(jsonBytes), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save raw payload: %w", err)
	}
	return nil
}

// ListShopTypes returns every shop type ordered by ID.
func (s *SQLiteProvider) ListShopTypes(ctx context.Context) ([]types.ShopType, error) {
	return queryJSON[types.ShopType](ctx, s.db, "shop types", "SELECT json FROM shop_types ORDER BY id")
}

// UpsertShopType creates or replaces a shop type.
func (s *SQLiteProvider) UpsertShopType(ctx context.Context, shopType types.ShopType) error {
	if shopType.ID == "" {
		return fmt.Errorf("shop type id cannot be empty")
	}
	return execJSON(ctx, s.db, "shop type",
		"INSERT INTO shop_types (id, json) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET json = excluded.json",
		shopType, shopType.ID,
	)
}
