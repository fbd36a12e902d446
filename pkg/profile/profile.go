// Package profile builds one hourly kW series per tenant, at the tenant's own
// floor area, either from its corrected meter data or from a shop-type
// estimate when no meter data is usable.
package profile

import (
	"context"
	"log/slog"
	"time"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/log"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// DaysPerMonth converts monthly energy into a daily estimate.
const DaysPerMonth = 30

// MeterDays is the corrected hourly data of each meter, keyed by meter id.
type MeterDays map[string]map[types.Date]types.HourlyProfile

// TenantSeries is a metered tenant's hourly series per reported date.
type TenantSeries struct {
	Tenant types.Tenant
	Days   map[types.Date]types.HourlyProfile
}

// Builder turns tenants into hourly series. It is safe for concurrent use
// once created.
type Builder struct {
	shopTypes             map[string]types.ShopType
	defaultKWhPerSqmMonth float64
	dayMultipliers        [7]float64
}

// NewBuilder returns a Builder using the shop types and the estimate
// settings of a site.
func NewBuilder(shopTypes []types.ShopType, settings types.Settings) *Builder {
	b := &Builder{
		shopTypes:             make(map[string]types.ShopType, len(shopTypes)),
		defaultKWhPerSqmMonth: settings.DefaultKWhPerSqmMonth,
		dayMultipliers:        settings.DayMultipliers,
	}
	for _, st := range shopTypes {
		b.shopTypes[st.ID] = st
	}
	return b
}

// Build splits the included tenants into metered series and estimated
// tenants. A tenant is metered when at least one of its meters has a
// corrected day; every other included tenant is estimated.
func (b *Builder) Build(ctx context.Context, tenants []types.Tenant, meters map[string]types.Meter, data MeterDays) ([]TenantSeries, []types.Tenant) {
	var metered []TenantSeries
	var estimated []types.Tenant
	for _, t := range tenants {
		if !t.Included() {
			log.Ctx(ctx).DebugContext(ctx, "tenant excluded from load profile", slog.String("tenantID", t.ID))
			continue
		}
		days := b.TenantDays(t, meters, data)
		if len(days) == 0 {
			log.Ctx(ctx).DebugContext(
				ctx,
				"no usable meter data, estimating tenant",
				slog.String("tenantID", t.ID),
				slog.Int("meters", len(t.MeterRefs())),
				slog.String("shopTypeID", t.ShopTypeID),
			)
			estimated = append(estimated, t)
			continue
		}
		metered = append(metered, TenantSeries{Tenant: t, Days: days})
	}
	return metered, estimated
}

// TenantDays returns the tenant's metered series per date at the tenant's
// area, or nil when none of its meters reported.
//
// Each meter's profile is scaled to the tenant area by tenant/meter area,
// which is the meter's per-m² intensity times the tenant area. With several
// meters the scaled profiles of those reporting on a date are averaged with
// their weights normalized to sum to 1.
func (b *Builder) TenantDays(t types.Tenant, meters map[string]types.Meter, data MeterDays) map[types.Date]types.HourlyProfile {
	type weighted struct {
		sum    types.HourlyProfile
		weight float64
	}
	acc := map[types.Date]*weighted{}
	for _, ref := range t.MeterRefs() {
		days := data[ref.MeterID]
		if len(days) == 0 {
			continue
		}
		weight := ref.Weight
		if weight <= 0 {
			weight = 1
		}
		ratio := AreaRatio(t.AreaSqm, meters[ref.MeterID].AreaSqm)
		for d, p := range days {
			w, ok := acc[d]
			if !ok {
				w = &weighted{}
				acc[d] = w
			}
			w.sum = w.sum.Add(p.Scale(ratio * weight))
			w.weight += weight
		}
	}
	if len(acc) == 0 {
		return nil
	}

	out := make(map[types.Date]types.HourlyProfile, len(acc))
	for d, w := range acc {
		out[d] = w.sum.Scale(1 / w.weight)
	}
	return out
}

// AreaRatio is the factor that takes a meter's series to the tenant's area.
// A missing area on either side gives 1.
func AreaRatio(tenantArea, meterArea float64) float64 {
	if tenantArea <= 0 || meterArea <= 0 {
		return 1
	}
	return tenantArea / meterArea
}

// MonthlyKWh is the estimated monthly consumption of a tenant: the manual
// override when set, otherwise the shop type intensity times the tenant area.
func (b *Builder) MonthlyKWh(t types.Tenant) float64 {
	if t.MonthlyKWhOverride != nil && *t.MonthlyKWhOverride > 0 {
		return *t.MonthlyKWhOverride
	}
	intensity := b.defaultKWhPerSqmMonth
	if st, ok := b.shopTypes[t.ShopTypeID]; ok && st.KWhPerSqmMonth > 0 {
		intensity = st.KWhPerSqmMonth
	}
	return intensity * t.AreaSqm
}

// Estimate returns the tenant's shop-type estimate for a weekday or weekend
// day.
func (b *Builder) Estimate(t types.Tenant, weekend bool) types.HourlyProfile {
	daily := b.MonthlyKWh(t) / DaysPerMonth
	percent := b.percentages(t, weekend)
	var out types.HourlyProfile
	for h := range out {
		out[h] = daily * percent[h] / 100
	}
	return out
}

// EstimateDay returns the estimate for a specific date.
func (b *Builder) EstimateDay(t types.Tenant, d types.Date) types.HourlyProfile {
	return b.Estimate(t, d.IsWeekend())
}

// EstimateAverage averages the estimate over a set of days of the week after
// applying each day's multiplier. No days means the whole week.
func (b *Builder) EstimateAverage(t types.Tenant, days []time.Weekday) types.HourlyProfile {
	if len(days) == 0 {
		days = []time.Weekday{
			time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
			time.Thursday, time.Friday, time.Saturday,
		}
	}
	weekday := b.Estimate(t, false)
	weekend := b.Estimate(t, true)

	var sum types.HourlyProfile
	var n int
	for _, dow := range days {
		if dow < time.Sunday || dow > time.Saturday {
			continue
		}
		p := weekday
		if dow == time.Saturday || dow == time.Sunday {
			p = weekend
		}
		sum = sum.Add(p.Scale(b.multiplier(dow)))
		n++
	}
	if n == 0 {
		return types.HourlyProfile{}
	}
	return sum.Scale(1 / float64(n))
}

func (b *Builder) multiplier(dow time.Weekday) float64 {
	if m := b.dayMultipliers[dow]; m > 0 {
		return m
	}
	return 1
}

// percentages returns the shop type's percentage-of-day profile, the weekday
// one standing in for a missing weekend. A tenant without a usable shop type
// gets a flat profile.
func (b *Builder) percentages(t types.Tenant, weekend bool) []float64 {
	st, ok := b.shopTypes[t.ShopTypeID]
	if ok {
		if weekend && len(st.Weekend) == types.HoursPerDay {
			return st.Weekend
		}
		if len(st.Weekday) == types.HoursPerDay {
			return st.Weekday
		}
	}
	return uniform[:]
}

var uniform = func() (p [types.HoursPerDay]float64) {
	for h := range p {
		p[h] = 100.0 / types.HoursPerDay
	}
	return p
}()
