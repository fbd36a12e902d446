package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

func flat(v float64) types.HourlyProfile {
	var p types.HourlyProfile
	for h := range p {
		p[h] = v
	}
	return p
}

func office() types.ShopType {
	weekday := make([]float64, 24)
	weekend := make([]float64, 24)
	for h := 8; h < 18; h++ {
		weekday[h] = 10
	}
	weekend[12] = 100
	return types.ShopType{ID: "office", KWhPerSqmMonth: 30, Weekday: weekday, Weekend: weekend}
}

var (
	mon = types.NewDate(2024, time.March, 4)
	tue = types.NewDate(2024, time.March, 5)
	sat = types.NewDate(2024, time.March, 9)
)

func TestTenantDays(t *testing.T) {
	b := NewBuilder(nil, types.DefaultSettings())
	meters := map[string]types.Meter{
		"m1": {ID: "m1", AreaSqm: 100},
		"m2": {ID: "m2", AreaSqm: 50},
		"m3": {ID: "m3"},
	}
	data := MeterDays{
		"m1": {mon: flat(10), tue: flat(10)},
		"m2": {mon: flat(10)},
		"m3": {mon: flat(4)},
	}

	t.Run("Single Meter Area Scaled", func(t *testing.T) {
		days := b.TenantDays(types.Tenant{ID: "t", AreaSqm: 200, ScadaImportID: "m1"}, meters, data)
		require.Len(t, days, 2)
		assert.Equal(t, flat(20), days[mon])
	})

	t.Run("Missing Meter Area", func(t *testing.T) {
		days := b.TenantDays(types.Tenant{ID: "t", AreaSqm: 200, ScadaImportID: "m3"}, meters, data)
		assert.Equal(t, flat(4), days[mon])
	})

	t.Run("Missing Tenant Area", func(t *testing.T) {
		days := b.TenantDays(types.Tenant{ID: "t", ScadaImportID: "m2"}, meters, data)
		assert.Equal(t, flat(10), days[mon])
	})

	t.Run("Multi Meter Weighted Intensity", func(t *testing.T) {
		tenant := types.Tenant{ID: "t", AreaSqm: 100, Meters: []types.TenantMeter{
			{MeterID: "m1", Weight: 3},
			{MeterID: "m2", Weight: 1},
		}}
		days := b.TenantDays(tenant, meters, data)
		require.Len(t, days, 2)
		// m1 is 0.1 kW/m2 and m2 is 0.2 kW/m2, weighted 3:1 at 100 m2
		for h, v := range days[mon] {
			assert.InDelta(t, 12.5, v, 1e-9, "hour %d", h)
		}
		// only m1 reported on tuesday so its weight becomes 1
		for h, v := range days[tue] {
			assert.InDelta(t, 10.0, v, 1e-9, "hour %d", h)
		}
	})

	t.Run("Default Weights", func(t *testing.T) {
		tenant := types.Tenant{ID: "t", AreaSqm: 100, Meters: []types.TenantMeter{{MeterID: "m1"}, {MeterID: "m2"}}}
		days := b.TenantDays(tenant, meters, data)
		assert.InDelta(t, 15.0, days[mon][0], 1e-9)
	})

	t.Run("No Data", func(t *testing.T) {
		assert.Nil(t, b.TenantDays(types.Tenant{ID: "t", ScadaImportID: "nope"}, meters, data))
		assert.Nil(t, b.TenantDays(types.Tenant{ID: "t"}, meters, data))
	})
}

func TestBuild(t *testing.T) {
	no := false
	b := NewBuilder(nil, types.DefaultSettings())
	tenants := []types.Tenant{
		{ID: "metered", ScadaImportID: "m1"},
		{ID: "broken", ScadaImportID: "m2"},
		{ID: "estimated", AreaSqm: 10},
		{ID: "excluded", ScadaImportID: "m1", IncludeInLoadProfile: &no},
	}
	data := MeterDays{"m1": {mon: flat(1)}, "m2": {}}

	metered, estimated := b.Build(context.Background(), tenants, nil, data)
	require.Len(t, metered, 1)
	assert.Equal(t, "metered", metered[0].Tenant.ID)
	require.Len(t, estimated, 2)
	assert.Equal(t, "broken", estimated[0].ID)
	assert.Equal(t, "estimated", estimated[1].ID)
}

func TestEstimate(t *testing.T) {
	b := NewBuilder([]types.ShopType{office()}, types.DefaultSettings())

	t.Run("Shop Type Daily Energy", func(t *testing.T) {
		tenant := types.Tenant{ID: "t", AreaSqm: 600, ShopTypeID: "office"}
		p := b.EstimateDay(tenant, mon)
		assert.InDelta(t, 30.0*600/30, p.Total(), 1e-9)
		assert.Equal(t, 0.0, p[3])
		assert.InDelta(t, 60.0, p[9], 1e-9)

		weekend := b.EstimateDay(tenant, sat)
		assert.InDelta(t, 600.0, weekend[12], 1e-9)
	})

	t.Run("Override", func(t *testing.T) {
		override := 3000.0
		tenant := types.Tenant{ID: "t", AreaSqm: 600, ShopTypeID: "office", MonthlyKWhOverride: &override}
		assert.Equal(t, 3000.0, b.MonthlyKWh(tenant))
		assert.InDelta(t, 100.0, b.EstimateDay(tenant, mon).Total(), 1e-9)
	})

	t.Run("Missing Weekend Uses Weekday", func(t *testing.T) {
		st := office()
		st.Weekend = nil
		b := NewBuilder([]types.ShopType{st}, types.DefaultSettings())
		tenant := types.Tenant{ID: "t", AreaSqm: 600, ShopTypeID: "office"}
		assert.Equal(t, b.EstimateDay(tenant, mon), b.EstimateDay(tenant, sat))
	})

	t.Run("No Shop Type Is Uniform", func(t *testing.T) {
		tenant := types.Tenant{ID: "t", AreaSqm: 30}
		p := b.EstimateDay(tenant, mon)
		// default intensity of 50 kWh/m2/month
		assert.InDelta(t, 50.0, p.Total(), 1e-9)
		for h := range p {
			assert.InDelta(t, 50.0/24, p[h], 1e-9)
		}
	})
}

func TestEstimateAverage(t *testing.T) {
	settings := types.DefaultSettings()
	settings.DayMultipliers[time.Monday] = 2
	b := NewBuilder([]types.ShopType{office()}, settings)
	tenant := types.Tenant{ID: "t", AreaSqm: 600, ShopTypeID: "office"}
	weekday := b.Estimate(tenant, false)

	avg := b.EstimateAverage(tenant, []time.Weekday{time.Monday, time.Tuesday})
	assert.InDelta(t, weekday.Total()*1.5, avg.Total(), 1e-9)

	week := b.EstimateAverage(tenant, nil)
	want := (weekday.Total()*6 + b.Estimate(tenant, true).Total()*2) / 7
	assert.InDelta(t, want, week.Total(), 1e-9)

	assert.Equal(t, types.HourlyProfile{}, b.EstimateAverage(tenant, []time.Weekday{9}))
}

func TestAreaRatio(t *testing.T) {
	assert.Equal(t, 2.0, AreaRatio(200, 100))
	assert.Equal(t, 1.0, AreaRatio(200, 0))
	assert.Equal(t, 1.0, AreaRatio(0, 100))
}
