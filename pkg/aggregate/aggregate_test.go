package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/interval"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/profile"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

func daily(total float64) types.HourlyProfile {
	var p types.HourlyProfile
	for h := range p {
		p[h] = total / 24
	}
	return p
}

func day(n int) types.Date {
	return types.NewDate(2024, time.January, 1).AddDays(n)
}

func series(id string, days map[types.Date]types.HourlyProfile) profile.TenantSeries {
	return profile.TenantSeries{Tenant: types.Tenant{ID: id}, Days: days}
}

func opts() Options {
	return OptionsFromSettings(types.DefaultSettings())
}

func TestAggregateUnion(t *testing.T) {
	metered := []profile.TenantSeries{
		series("a", map[types.Date]types.HourlyProfile{day(0): daily(100), day(1): daily(100)}),
		series("b", map[types.Date]types.HourlyProfile{day(0): daily(50)}),
		series("c", map[types.Date]types.HourlyProfile{day(0): daily(50), day(2): daily(80)}),
	}
	res := Aggregate(context.Background(), metered, nil, opts())

	require.Len(t, res.Site, 3)
	assert.InDelta(t, 200.0, res.Site[day(0)].Total(), 1e-9)
	// only a reported, b and c contribute zero
	assert.InDelta(t, 100.0, res.Site[day(1)].Total(), 1e-9)
	assert.InDelta(t, 80.0, res.Site[day(2)].Total(), 1e-9)
	assert.Empty(t, res.OutageDays)
	assert.Equal(t, 0, res.EstimatedCount())
}

func TestAggregateOutage(t *testing.T) {
	metered := []profile.TenantSeries{
		series("a", map[types.Date]types.HourlyProfile{day(0): daily(100), day(1): daily(40)}),
		series("b", map[types.Date]types.HourlyProfile{day(0): daily(100), day(1): daily(30)}),
	}
	res := Aggregate(context.Background(), metered, []types.Tenant{{ID: "e"}}, opts())

	require.Len(t, res.Site, 1)
	assert.NotContains(t, res.Site, day(1))
	assert.Equal(t, []types.Date{day(1)}, res.OutageDays)
	assert.Equal(t, 1, res.EstimatedCount())

	// tenant series follow the validated site dates
	for _, ts := range res.Tenants {
		assert.Len(t, ts.Days, 1)
		assert.Contains(t, ts.Days, day(0))
	}
}

func TestAggregateOutlier(t *testing.T) {
	days := map[types.Date]types.HourlyProfile{}
	for i := 0; i < 25; i++ {
		days[day(i)] = daily(99 + float64(i%3))
	}
	days[day(25)] = daily(10000)
	days[day(26)] = daily(400)

	res := Aggregate(context.Background(), []profile.TenantSeries{series("a", days)}, nil, opts())
	assert.NotContains(t, res.Site, day(25))
	assert.Contains(t, res.Site, day(26))
	assert.Equal(t, map[string][]types.Date{"a": {day(25)}}, res.OutlierDays)
	assert.Len(t, res.Site, 26)

	t.Run("Too Few Days", func(t *testing.T) {
		short := map[types.Date]types.HourlyProfile{}
		for i := 0; i < 10; i++ {
			short[day(i)] = daily(100)
		}
		short[day(10)] = daily(10000)
		res := Aggregate(context.Background(), []profile.TenantSeries{series("a", short)}, nil, opts())
		assert.Contains(t, res.Site, day(10))
		assert.Empty(t, res.OutlierDays)
	})

	t.Run("Other Tenants Keep The Date", func(t *testing.T) {
		other := map[types.Date]types.HourlyProfile{day(25): daily(200)}
		res := Aggregate(context.Background(), []profile.TenantSeries{series("a", days), series("b", other)}, nil, opts())
		require.Contains(t, res.Site, day(25))
		assert.InDelta(t, 200.0, res.Site[day(25)].Total(), 1e-9)
	})
}

func TestAggregateEmpty(t *testing.T) {
	res := Aggregate(context.Background(), nil, nil, opts())
	assert.Empty(t, res.Site)
	assert.NotNil(t, res.Site)
}

func TestAggregateEndToEnd(t *testing.T) {
	// three tenants on 30 minute meters, 48 readings of 5 kWh each per day
	var samples []types.Sample
	for d := 0; d < 3; d++ {
		for m := 0; m < 24*60; m += 30 {
			samples = append(samples, types.Sample{Date: day(d), Minute: m, Value: 5})
		}
	}
	meters := map[string]types.Meter{}
	data := profile.MeterDays{}
	var tenants []types.Tenant
	for _, id := range []string{"a", "b", "c"} {
		meter := types.Meter{ID: id, AreaSqm: 100, IntervalMinutes: 30}
		meters[id] = meter
		data[id] = interval.MeterDays(samples, meter)
		tenants = append(tenants, types.Tenant{ID: id, AreaSqm: 100, ScadaImportID: id})
	}

	b := profile.NewBuilder(nil, types.DefaultSettings())
	metered, estimated := b.Build(context.Background(), tenants, meters, data)
	require.Len(t, metered, 3)
	require.Empty(t, estimated)

	res := Aggregate(context.Background(), metered, estimated, opts())
	require.Len(t, res.Site, 3)
	for _, d := range res.Site.Dates() {
		assert.InDelta(t, 720.0, res.Site[d].Total(), 1e-9)
	}
}
