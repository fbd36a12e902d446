// Package loadprofile loads a site's tenants and meter data from storage, runs
// the aggregation pipeline and memoizes the derived views.
package loadprofile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/levenlabs/go-lflag"
	"github.com/samber/lo"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/aggregate"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/interval"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/irradiance"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/log"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/metrics"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/profile"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/rawdata"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/storage"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

const (
	defaultPayloadCacheSize = 512
	defaultViewCacheSize    = 1024
	defaultViewTTL          = 30 * time.Minute
)

// Pipeline is the aggregated state of one site for one set of inputs.
type Pipeline struct {
	// Key identifies the inputs the pipeline was built from.
	Key      string
	Site     types.Site
	Settings types.Settings
	Builder  *profile.Builder
	// Tenants are the tenants taking part in the load profile.
	Tenants []types.Tenant
	Result  aggregate.Result
}

// Service runs and caches the load-profile pipeline of every site.
type Service struct {
	storage    storage.Database
	irradiance *irradiance.Service
	metrics    *metrics.Metrics
	defaults   types.Settings

	// parsed payloads keyed by site and meter id
	payloads *lru.Cache[string, parsedPayload]
	// pipelines and views keyed by site and input hash
	pipelines *expirable.LRU[string, *Pipeline]
	views     *expirable.LRU[string, any]
}

// New returns a Service using the built-in setting defaults.
func New(db storage.Database, irr *irradiance.Service, m *metrics.Metrics) *Service {
	payloads, err := lru.New[string, parsedPayload](defaultPayloadCacheSize)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &Service{
		storage:    db,
		irradiance: irr,
		metrics:    m,
		defaults:   types.DefaultSettings(),
		payloads:   payloads,
		pipelines:  expirable.NewLRU[string, *Pipeline](defaultViewCacheSize, nil, defaultViewTTL),
		views:      expirable.NewLRU[string, any](defaultViewCacheSize, nil, defaultViewTTL),
	}
}

// Configured registers the service flags and returns the Service.
func Configured(db storage.Database, irr *irradiance.Service, m *metrics.Metrics) *Service {
	s := New(db, irr, m)
	settingsFile := lflag.String("settings-file", "", "TOML file with default site settings")

	lflag.Do(func() {
		defaults, err := LoadDefaults(*settingsFile)
		if err != nil {
			panic(fmt.Sprintf("settings defaults failed: %v", err))
		}
		s.defaults = defaults
	})
	return s
}

// SetDefaults replaces the settings used for sites without saved settings.
func (s *Service) SetDefaults(defaults types.Settings) {
	s.defaults = defaults
	s.pipelines.Purge()
	s.views.Purge()
}

// Defaults returns the settings used for sites without saved settings.
func (s *Service) Defaults() types.Settings {
	return s.defaults
}

// Settings returns the effective settings of a site.
func (s *Service) Settings(ctx context.Context, siteID string) (types.Settings, error) {
	stored, version, err := s.storage.GetSettings(ctx, siteID)
	if err != nil {
		return types.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	return resolveSettings(stored, version, s.defaults)
}

// UpdateSettings validates and saves the settings of a site.
func (s *Service) UpdateSettings(ctx context.Context, siteID string, settings types.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.storage.SetSettings(ctx, siteID, settings, types.CurrentSettingsVersion); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	s.Invalidate(siteID)
	return nil
}

// Invalidate drops every cached payload, pipeline and view of a site. It is
// needed after raw payloads change, since they are not part of the input hash.
func (s *Service) Invalidate(siteID string) {
	prefix := siteID + "|"
	for _, k := range s.payloads.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.payloads.Remove(k)
		}
	}
	for _, k := range s.pipelines.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.pipelines.Remove(k)
		}
	}
	for _, k := range s.views.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.views.Remove(k)
		}
	}
}

// inputs is everything a pipeline run depends on apart from raw payloads.
type inputs struct {
	site      types.Site
	settings  types.Settings
	tenants   []types.Tenant
	meters    []types.Meter
	shopTypes []types.ShopType
}

func (s *Service) loadInputs(ctx context.Context, siteID string) (inputs, error) {
	var in inputs
	var err error
	in.site, err = s.storage.GetSite(ctx, siteID)
	if err != nil {
		return inputs{}, fmt.Errorf("failed to get site: %w", err)
	}
	in.settings, err = s.Settings(ctx, siteID)
	if err != nil {
		return inputs{}, err
	}
	in.tenants, err = s.storage.ListTenants(ctx, siteID)
	if err != nil {
		return inputs{}, fmt.Errorf("failed to list tenants: %w", err)
	}
	in.meters, err = s.storage.ListMeters(ctx, siteID)
	if err != nil {
		return inputs{}, fmt.Errorf("failed to list meters: %w", err)
	}
	in.shopTypes, err = s.storage.ListShopTypes(ctx)
	if err != nil {
		return inputs{}, fmt.Errorf("failed to list shop types: %w", err)
	}
	return in, nil
}

// hash identifies a set of inputs. Slices are sorted by id first so storage
// ordering does not matter.
func (in inputs) hash() (uint64, error) {
	tenants := slices.Clone(in.tenants)
	slices.SortFunc(tenants, func(a, b types.Tenant) int { return strings.Compare(a.ID, b.ID) })
	meters := slices.Clone(in.meters)
	slices.SortFunc(meters, func(a, b types.Meter) int { return strings.Compare(a.ID, b.ID) })
	shopTypes := slices.Clone(in.shopTypes)
	slices.SortFunc(shopTypes, func(a, b types.ShopType) int { return strings.Compare(a.ID, b.ID) })

	d := xxhash.New()
	enc := json.NewEncoder(d)
	for _, v := range []any{in.site, in.settings, tenants, meters, shopTypes} {
		if err := enc.Encode(v); err != nil {
			return 0, fmt.Errorf("failed to hash inputs: %w", err)
		}
	}
	return d.Sum64(), nil
}

// Load returns the pipeline of a site, running it when the inputs changed
// since the last run.
func (s *Service) Load(ctx context.Context, siteID string) (*Pipeline, error) {
	in, err := s.loadInputs(ctx, siteID)
	if err != nil {
		return nil, err
	}
	h, err := in.hash()
	if err != nil {
		return nil, err
	}
	key := siteID + "|" + strconv.FormatUint(h, 16)
	if p, ok := s.pipelines.Get(key); ok {
		s.metrics.CacheHit("pipeline")
		return p, nil
	}
	s.metrics.CacheMiss("pipeline")

	p, err := s.run(ctx, siteID, key, in)
	if err != nil {
		return nil, err
	}
	s.pipelines.Add(key, p)
	return p, nil
}

func (s *Service) run(ctx context.Context, siteID, key string, in inputs) (*Pipeline, error) {
	start := time.Now()
	ctx = log.WithAttrs(ctx, slog.String("siteID", siteID))

	meters := lo.KeyBy(in.meters, func(m types.Meter) string { return m.ID })
	included := lo.Filter(in.tenants, func(t types.Tenant, _ int) bool { return t.Included() })

	data := profile.MeterDays{}
	for _, t := range included {
		for _, ref := range t.MeterRefs() {
			if _, ok := data[ref.MeterID]; ok {
				continue
			}
			days, err := s.meterDays(ctx, siteID, meters[ref.MeterID], ref.MeterID)
			if err != nil {
				return nil, err
			}
			data[ref.MeterID] = days
		}
	}

	b := profile.NewBuilder(in.shopTypes, in.settings)
	series, estimated := b.Build(ctx, in.tenants, meters, data)
	res := aggregate.Aggregate(ctx, series, estimated, aggregate.OptionsFromSettings(in.settings))

	var outliers int
	for _, days := range res.OutlierDays {
		outliers += len(days)
	}
	s.metrics.DiscardedDays("outlier", outliers)
	s.metrics.DiscardedDays("outage", len(res.OutageDays))
	s.metrics.PipelineRun(time.Since(start))

	log.Ctx(ctx).DebugContext(
		ctx,
		"computed site load profile",
		slog.Int("tenants", len(included)),
		slog.Int("metered", len(res.Tenants)),
		slog.Int("estimated", res.EstimatedCount()),
		slog.Int("days", len(res.Site)),
		slog.Duration("took", time.Since(start)),
	)

	return &Pipeline{
		Key:      key,
		Site:     in.site,
		Settings: in.settings,
		Builder:  b,
		Tenants:  included,
		Result:   res,
	}, nil
}

type parsedPayload struct {
	samples []types.Sample
	unit    types.ValueUnit
}

// meterDays fetches, parses and corrects one meter's raw payload. A meter
// without a payload has no days.
func (s *Service) meterDays(ctx context.Context, siteID string, meter types.Meter, meterID string) (map[types.Date]types.HourlyProfile, error) {
	if meter.ID == "" {
		meter.ID = meterID
	}
	key := siteID + "|" + meterID
	parsed, ok := s.payloads.Get(key)
	if ok {
		s.metrics.CacheHit("payload")
	} else {
		s.metrics.CacheMiss("payload")
		payload, err := s.storage.GetRawPayload(ctx, siteID, meterID)
		if errors.Is(err, storage.ErrPayloadNotFound) {
			log.Ctx(ctx).DebugContext(ctx, "meter has no raw payload", slog.String("meterID", meterID))
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get raw payload for meter %s: %w", meterID, err)
		}
		parsed = parsedPayload{samples: rawdata.Parse(payload.Data), unit: payload.Unit}
		log.Ctx(ctx).DebugContext(
			ctx,
			"parsed raw payload",
			slog.String("meterID", meterID),
			slog.String("shape", rawdata.Detect(payload.Data).String()),
			slog.Int("samples", len(parsed.samples)),
		)
		s.payloads.Add(key, parsed)
	}
	// the meter record wins over the tag on the payload
	if meter.Unit == "" {
		meter.Unit = parsed.unit
	}
	return interval.MeterDays(parsed.samples, meter), nil
}
