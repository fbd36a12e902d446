// Package aggregate validates per-tenant daily series and sums them into the
// site-level series.
package aggregate

import (
	"context"
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/log"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/profile"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// Options holds the validation thresholds.
type Options struct {
	// OutageThresholdKWh drops site days whose total is below it.
	OutageThresholdKWh float64
	// OutlierMinDays is the minimum number of days a tenant needs before its
	// outlier days are looked for.
	OutlierMinDays int
	// A tenant day is an outlier when its total exceeds both
	// Q3 + OutlierIQRMultiplier*IQR and OutlierMedianMultiplier*median.
	OutlierIQRMultiplier    float64
	OutlierMedianMultiplier float64
}

// OptionsFromSettings returns the validation thresholds of a site.
func OptionsFromSettings(s types.Settings) Options {
	return Options{
		OutageThresholdKWh:      s.OutageThresholdKWh,
		OutlierMinDays:          s.OutlierMinDays,
		OutlierIQRMultiplier:    s.OutlierIQRMultiplier,
		OutlierMedianMultiplier: s.OutlierMedianMultiplier,
	}
}

// Result is the validated site series plus what was needed to build it.
type Result struct {
	Site types.SiteSeries `json:"site"`
	// Tenants holds each metered tenant's series restricted to its validated
	// days that survived the outage filter.
	Tenants []profile.TenantSeries `json:"-"`
	// Estimated tenants have no meter data and are blended in statistically.
	Estimated []types.Tenant `json:"-"`
	// OutlierDays are the days excluded per tenant id.
	OutlierDays map[string][]types.Date `json:"outlierDays"`
	// OutageDays are the site days dropped below the outage threshold.
	OutageDays []types.Date `json:"outageDays"`
}

// EstimatedCount returns the number of tenants without meter data.
func (r Result) EstimatedCount() int {
	return len(r.Estimated)
}

// Aggregate sums the metered tenants into the site series over the union of
// their validated dates. A tenant missing a date contributes zero to it.
func Aggregate(ctx context.Context, metered []profile.TenantSeries, estimated []types.Tenant, opts Options) Result {
	res := Result{
		Site:        types.SiteSeries{},
		Estimated:   estimated,
		OutlierDays: map[string][]types.Date{},
	}

	validated := make([]profile.TenantSeries, 0, len(metered))
	for _, ts := range metered {
		days, outliers := filterOutliers(ts.Days, opts)
		if len(outliers) > 0 {
			res.OutlierDays[ts.Tenant.ID] = outliers
			log.Ctx(ctx).DebugContext(
				ctx,
				"discarded tenant outlier days",
				slog.String("tenantID", ts.Tenant.ID),
				slog.Int("days", len(outliers)),
				slog.Int("remaining", len(days)),
			)
		}
		validated = append(validated, profile.TenantSeries{Tenant: ts.Tenant, Days: days})
	}

	sums := map[types.Date]types.HourlyProfile{}
	for _, ts := range validated {
		for d, p := range ts.Days {
			sums[d] = sums[d].Add(p)
		}
	}

	for _, d := range types.SortedDates(sums) {
		p := sums[d]
		if p.Total() < opts.OutageThresholdKWh {
			res.OutageDays = append(res.OutageDays, d)
			continue
		}
		res.Site[d] = p
	}
	if len(res.OutageDays) > 0 {
		log.Ctx(ctx).DebugContext(
			ctx,
			"discarded site outage days",
			slog.Int("days", len(res.OutageDays)),
			slog.Float64("thresholdKWh", opts.OutageThresholdKWh),
		)
	}

	res.Tenants = make([]profile.TenantSeries, 0, len(validated))
	for _, ts := range validated {
		days := make(map[types.Date]types.HourlyProfile, len(ts.Days))
		for d, p := range ts.Days {
			if _, ok := res.Site[d]; ok {
				days[d] = p
			}
		}
		res.Tenants = append(res.Tenants, profile.TenantSeries{Tenant: ts.Tenant, Days: days})
	}
	return res
}

// filterOutliers returns the tenant's days without stuck-meter style spikes
// and the excluded dates in order.
func filterOutliers(days map[types.Date]types.HourlyProfile, opts Options) (map[types.Date]types.HourlyProfile, []types.Date) {
	if len(days) == 0 || len(days) < opts.OutlierMinDays {
		return days, nil
	}

	totals := make([]float64, 0, len(days))
	for _, p := range days {
		totals = append(totals, p.Total())
	}
	slices.Sort(totals)
	q1 := stat.Quantile(0.25, stat.Empirical, totals, nil)
	median := stat.Quantile(0.5, stat.Empirical, totals, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, totals, nil)
	iqrLimit := q3 + opts.OutlierIQRMultiplier*(q3-q1)
	medianLimit := opts.OutlierMedianMultiplier * median

	var outliers []types.Date
	kept := make(map[types.Date]types.HourlyProfile, len(days))
	for _, d := range types.SortedDates(days) {
		total := days[d].Total()
		if total > iqrLimit && total > medianLimit {
			outliers = append(outliers, d)
			continue
		}
		kept[d] = days[d]
	}
	return kept, outliers
}
