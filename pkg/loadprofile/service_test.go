package loadprofile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/envelope"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/irradiance"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/metrics"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/storage"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/storage/storagemock"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// hourlyPayload returns a canonical payload of constant hourly kW readings.
func hourlyPayload(t *testing.T, start types.Date, days int, kw float64) json.RawMessage {
	type row struct {
		Date  string `json:"date"`
		Time  string `json:"time"`
		Value string `json:"value"`
	}
	var rows []row
	for i := range days {
		d := start.AddDays(i)
		for h := range types.HoursPerDay {
			rows = append(rows, row{Date: d.String(), Time: fmt.Sprintf("%02d:00", h), Value: fmt.Sprint(kw)})
		}
	}
	b, err := json.Marshal(rows)
	require.NoError(t, err)
	return b
}

func uniformPercentages() []float64 {
	p := make([]float64, types.HoursPerDay)
	for h := range p {
		p[h] = 100.0 / types.HoursPerDay
	}
	return p
}

// seedSite stores a site with one metered tenant at 5 kW, one estimated
// tenant at 10 kW and one excluded tenant, over 4 to 6 March 2024.
func seedSite(t *testing.T, db storage.Database) {
	ctx := context.Background()
	exclude := false
	require.NoError(t, db.UpsertSite(ctx, types.Site{ID: "site", Name: "Mall", Latitude: -26.1, Longitude: 28.0}))
	require.NoError(t, db.UpsertShopType(ctx, types.ShopType{ID: "retail", KWhPerSqmMonth: 72, Weekday: uniformPercentages()}))
	require.NoError(t, db.UpsertMeter(ctx, "site", types.Meter{ID: "m1", AreaSqm: 100, Unit: types.UnitKW}))
	require.NoError(t, db.UpsertRawPayload(ctx, "site", types.RawPayload{
		MeterID: "m1",
		Data:    hourlyPayload(t, types.NewDate(2024, time.March, 4), 3, 5),
	}))
	require.NoError(t, db.UpsertTenant(ctx, "site", types.Tenant{ID: "t1", Name: "Grocer", AreaSqm: 100, ScadaImportID: "m1"}))
	require.NoError(t, db.UpsertTenant(ctx, "site", types.Tenant{ID: "t2", Name: "Boutique", AreaSqm: 100, ShopTypeID: "retail"}))
	require.NoError(t, db.UpsertTenant(ctx, "site", types.Tenant{ID: "t3", AreaSqm: 500, IncludeInLoadProfile: &exclude}))
}

func newTestService(t *testing.T) (*Service, storage.Database) {
	db := storage.NewSQLite(":memory:")
	require.NoError(t, db.Init(context.Background()))
	t.Cleanup(func() { db.Close() })
	seedSite(t, db)
	return New(db, irradiance.NewService(irradiance.Static{}), metrics.New()), db
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	s, db := newTestService(t)

	p, err := s.Load(ctx, "site")
	require.NoError(t, err)
	assert.Len(t, p.Result.Site, 3)
	assert.Equal(t, 1, p.Result.EstimatedCount())
	require.Len(t, p.Result.Tenants, 1)
	assert.Equal(t, "t1", p.Result.Tenants[0].Tenant.ID)
	assert.Len(t, p.Tenants, 2)
	assert.InDelta(t, 120.0, p.Result.Site[types.NewDate(2024, time.March, 5)].Total(), 1e-9)

	t.Run("Cached", func(t *testing.T) {
		again, err := s.Load(ctx, "site")
		require.NoError(t, err)
		assert.Same(t, p, again)
	})

	t.Run("InputChange", func(t *testing.T) {
		require.NoError(t, db.UpsertTenant(ctx, "site", types.Tenant{ID: "t2", Name: "Boutique", AreaSqm: 200, ShopTypeID: "retail"}))
		changed, err := s.Load(ctx, "site")
		require.NoError(t, err)
		assert.NotSame(t, p, changed)
		assert.NotEqual(t, p.Key, changed.Key)
	})

	t.Run("PayloadChangeNeedsInvalidate", func(t *testing.T) {
		before, err := s.Load(ctx, "site")
		require.NoError(t, err)
		require.NoError(t, db.UpsertRawPayload(ctx, "site", types.RawPayload{
			MeterID: "m1",
			Data:    hourlyPayload(t, types.NewDate(2024, time.March, 4), 5, 5),
		}))

		stale, err := s.Load(ctx, "site")
		require.NoError(t, err)
		assert.Len(t, stale.Result.Site, 3)

		s.Invalidate("site")
		fresh, err := s.Load(ctx, "site")
		require.NoError(t, err)
		assert.NotSame(t, before, fresh)
		assert.Len(t, fresh.Result.Site, 5)
	})
}

func TestLoadErrors(t *testing.T) {
	db := &storagemock.MockDatabase{}
	db.On("GetSite", mock.Anything, "nope").Return(types.Site{}, fmt.Errorf("%w: nope", storage.ErrSiteNotFound))

	s := New(db, irradiance.NewService(nil), nil)
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrSiteNotFound)
	db.AssertExpectations(t)
}

func TestMissingPayload(t *testing.T) {
	db := &storagemock.MockDatabase{}
	db.On("GetSite", mock.Anything, "site").Return(types.Site{ID: "site"}, nil)
	db.On("GetSettings", mock.Anything, "site").Return(types.Settings{}, 0, nil)
	db.On("ListTenants", mock.Anything, "site").Return([]types.Tenant{{ID: "t1", AreaSqm: 50, ScadaImportID: "m1"}}, nil)
	db.On("ListMeters", mock.Anything, "site").Return([]types.Meter{{ID: "m1"}}, nil)
	db.On("ListShopTypes", mock.Anything).Return([]types.ShopType{}, nil)
	db.On("GetRawPayload", mock.Anything, "site", "m1").Return(types.RawPayload{}, storage.ErrPayloadNotFound)

	s := New(db, irradiance.NewService(nil), nil)
	p, err := s.Load(context.Background(), "site")
	require.NoError(t, err)
	assert.Empty(t, p.Result.Site)
	// the tenant falls back to an estimate
	assert.Equal(t, 1, p.Result.EstimatedCount())
}

func TestViews(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	t.Run("Series", func(t *testing.T) {
		series, err := s.Series(ctx, "site", types.NewDate(2024, time.March, 5), types.Date{})
		require.NoError(t, err)
		assert.Len(t, series, 2)
	})

	t.Run("Envelope", func(t *testing.T) {
		view, err := s.Envelope(ctx, "site", envelope.Filter{})
		require.NoError(t, err)
		assert.Equal(t, 3, view.Days)
		assert.Equal(t, 1, view.EstimatedCount)
		require.Len(t, view.Points, types.HoursPerDay)
		for _, pt := range view.Points {
			assert.InDelta(t, 15.0, pt.Avg, 1e-9)
			assert.InDelta(t, 15.0, pt.Min, 1e-9)
			assert.InDelta(t, 15.0, pt.Max, 1e-9)
		}

		empty, err := s.Envelope(ctx, "site", envelope.Filter{Months: []time.Month{time.July}})
		require.NoError(t, err)
		assert.Empty(t, empty.Points)
	})

	t.Run("Stacked", func(t *testing.T) {
		view, err := s.Stacked(ctx, "site", envelope.Filter{}, envelope.StackAvg)
		require.NoError(t, err)
		require.Len(t, view.Rows, types.HoursPerDay)
		assert.InDelta(t, 5.0, view.Rows[12].Values["t1"], 1e-9)
		assert.InDelta(t, 10.0, view.Rows[12].Values["t2"], 1e-9)
		require.Len(t, view.Legend, 2)
		assert.Equal(t, "Grocer", view.Legend[0].Label)
	})

	t.Run("Monthly", func(t *testing.T) {
		months, err := s.Monthly(ctx, "site", envelope.Filter{})
		require.NoError(t, err)
		require.Len(t, months, 1)
		assert.Equal(t, time.March, months[0].Month)
		assert.InDelta(t, 360.0, months[0].AvgDailyKWh, 1e-9)
	})

	t.Run("Day", func(t *testing.T) {
		view, err := s.Day(ctx, "site", types.NewDate(2024, time.March, 4))
		require.NoError(t, err)
		assert.InDelta(t, 15.0, view.Site[8], 1e-9)
		assert.InDelta(t, 10.0, view.Tenants["t2"][8], 1e-9)

		_, err = s.Day(ctx, "site", types.NewDate(2024, time.March, 10))
		assert.ErrorIs(t, err, ErrDayNotFound)
	})
}

func TestSimulate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	t.Run("NoPV", func(t *testing.T) {
		res, err := s.Simulate(ctx, "site", SimulationRequest{})
		require.NoError(t, err)
		assert.False(t, res.PV)
		require.Len(t, res.Points, types.HoursPerDay)
		assert.InDelta(t, 15.0, res.Points[3].GridImport, 1e-9)
		assert.InDelta(t, 360.0, res.Summary.LoadKWh, 1e-9)
	})

	t.Run("StaticPV", func(t *testing.T) {
		d := types.NewDate(2024, time.March, 5)
		res, err := s.Simulate(ctx, "site", SimulationRequest{
			Date: &d,
			Config: types.SimulationConfig{
				InverterKVA:      20,
				DCACRatio:        1.3,
				IrradianceSource: types.IrradianceStatic,
			},
		})
		require.NoError(t, err)
		assert.True(t, res.PV)
		assert.Greater(t, res.Summary.PVKWh, 0.0)
		assert.Equal(t, 0.0, res.Points[0].PVGeneration)
	})

	t.Run("MissingDay", func(t *testing.T) {
		d := types.NewDate(2023, time.January, 1)
		_, err := s.Simulate(ctx, "site", SimulationRequest{Date: &d})
		assert.ErrorIs(t, err, ErrDayNotFound)
	})
}

func TestTypicalDay(t *testing.T) {
	day := typicalDay([]types.Date{
		types.NewDate(2024, time.June, 1), // Saturday
		types.NewDate(2024, time.June, 8), // Saturday
		types.NewDate(2024, time.July, 3), // Wednesday
	})
	assert.Equal(t, time.June, day.Month)
	assert.Equal(t, time.Saturday, day.Weekday)
	assert.True(t, day.Weekend)

	assert.Equal(t, time.January, typicalDay(nil).Month)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("2023", "2024", "6,7, 8", "1,2,3,4,5")
	require.NoError(t, err)
	assert.Equal(t, 2023, f.YearFrom)
	assert.Equal(t, 2024, f.YearTo)
	assert.Equal(t, []time.Month{time.June, time.July, time.August}, f.Months)
	assert.Len(t, f.Days, 5)

	f, err = ParseFilter("", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, envelope.Filter{}, f)

	for _, tc := range []struct{ from, to, months, days string }{
		{from: "abc"},
		{months: "13"},
		{days: "7"},
		{days: "1,x"},
	} {
		_, err := ParseFilter(tc.from, tc.to, tc.months, tc.days)
		assert.Error(t, err, "%+v", tc)
	}

	assert.Equal(t, filterKey(envelope.Filter{Days: []time.Weekday{2, 1}}), filterKey(envelope.Filter{Days: []time.Weekday{1, 2}}))
}

func TestLoadDefaults(t *testing.T) {
	s, err := LoadDefaults("")
	require.NoError(t, err)
	assert.Equal(t, types.DefaultSettings(), s)

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("outage_threshold_kwh = 50.0\ndiversity_factor = 0.8\n"), 0o600))

	s, err = LoadDefaults(path)
	require.NoError(t, err)
	assert.Equal(t, 50.0, s.OutageThresholdKWh)
	assert.Equal(t, 0.8, s.DiversityFactor)
	assert.Equal(t, 20, s.OutlierMinDays)
	assert.Equal(t, "megaflex", s.TOUCalendar)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("outage_treshold = 1\n"), 0o600))
	_, err = LoadDefaults(bad)
	assert.ErrorContains(t, err, "unknown keys")

	invalid := filepath.Join(dir, "invalid.toml")
	require.NoError(t, os.WriteFile(invalid, []byte("power_factor = 1.5\n"), 0o600))
	_, err = LoadDefaults(invalid)
	assert.Error(t, err)

	_, err = LoadDefaults(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestResolveSettings(t *testing.T) {
	defaults := types.DefaultSettings()
	defaults.OutageThresholdKWh = 10

	s, err := resolveSettings(types.Settings{}, 0, defaults)
	require.NoError(t, err)
	assert.Equal(t, 10.0, s.OutageThresholdKWh)

	stored := types.DefaultSettings()
	stored.DiversityFactor = 0.9
	s, err = resolveSettings(stored, types.CurrentSettingsVersion, defaults)
	require.NoError(t, err)
	assert.Equal(t, 0.9, s.DiversityFactor)
	assert.Equal(t, 75.0, s.OutageThresholdKWh)
}
