// Package envelope computes the statistical views of a site series: the
// min/avg/max envelope over a filtered set of days, per-tenant stacked
// breakdowns, monthly summaries and single-day playback.
package envelope

import (
	"math"
	"slices"
	"sort"
	"time"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/profile"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// Filter selects days of a series. Zero values select everything.
type Filter struct {
	// YearFrom and YearTo bound the year inclusively, 0 is unbounded.
	YearFrom int            `json:"yearFrom,omitempty"`
	YearTo   int            `json:"yearTo,omitempty"`
	Months   []time.Month   `json:"months,omitempty"`
	Days     []time.Weekday `json:"days,omitempty"`
}

// Match reports whether the date passes the filter.
func (f Filter) Match(d types.Date) bool {
	if f.YearFrom > 0 && d.Year < f.YearFrom {
		return false
	}
	if f.YearTo > 0 && d.Year > f.YearTo {
		return false
	}
	if len(f.Months) > 0 && !lo.Contains(f.Months, d.Month) {
		return false
	}
	if len(f.Days) > 0 && !lo.Contains(f.Days, d.Weekday()) {
		return false
	}
	return true
}

// Apply returns the matching dates of the series in ascending order.
func (f Filter) Apply(site types.SiteSeries) []types.Date {
	return lo.Filter(site.Dates(), func(d types.Date, _ int) bool {
		return f.Match(d)
	})
}

// Options controls how the envelope is built.
type Options struct {
	// LowPercentile and HighPercentile (0-100) pick the days reported as the
	// min and max curves.
	LowPercentile  float64
	HighPercentile float64
	// DiversityFactor scales every composite value.
	DiversityFactor float64
}

// OptionsFromSettings returns the envelope options of a site.
func OptionsFromSettings(s types.Settings) Options {
	return Options{
		LowPercentile:   s.EnvelopeLowPercentile,
		HighPercentile:  s.EnvelopeHighPercentile,
		DiversityFactor: s.DiversityFactor,
	}
}

func (o Options) diversity() float64 {
	if o.DiversityFactor <= 0 {
		return 1
	}
	return o.DiversityFactor
}

// Point is one hour of the envelope in kW.
type Point struct {
	Hour int     `json:"hour"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Avg  float64 `json:"avg"`
}

// EstimatedProfile is the constant contribution of tenants without meter
// data over the selected days of the week.
func EstimatedProfile(b *profile.Builder, tenants []types.Tenant, days []time.Weekday) types.HourlyProfile {
	var out types.HourlyProfile
	for _, t := range tenants {
		out = out.Add(b.EstimateAverage(t, days))
	}
	return out
}

// Compute returns the 24-hour envelope of the filtered days. Each day is the
// site profile plus the estimated profile, scaled by the diversity factor.
// Min and max are the whole days at the low and high percentile of daily
// totals, so a single-hour spike never shows up unless its day ranks there.
// Avg is the true hourly mean. No matching days gives an empty result.
func Compute(site types.SiteSeries, estimated types.HourlyProfile, f Filter, opts Options) []Point {
	dates := f.Apply(site)
	if len(dates) == 0 {
		return []Point{}
	}

	div := opts.diversity()
	days := make([]types.HourlyProfile, len(dates))
	for i, d := range dates {
		days[i] = site[d].Add(estimated).Scale(div)
	}

	ranked := rankByTotal(days)
	low := days[ranked[percentileIndex(days, ranked, opts.LowPercentile)]]
	high := days[ranked[percentileIndex(days, ranked, opts.HighPercentile)]]

	points := make([]Point, types.HoursPerDay)
	hour := make([]float64, len(days))
	for h := range points {
		for i, p := range days {
			hour[i] = p[h]
		}
		points[h] = Point{
			Hour: h,
			Min:  low[h],
			Max:  high[h],
			Avg:  stat.Mean(hour, nil),
		}
	}
	return points
}

// rankByTotal returns the indexes of days ordered by daily total. Ties keep
// date order.
func rankByTotal(days []types.HourlyProfile) []int {
	idx := make([]int, len(days))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		ta, tb := days[a].Total(), days[b].Total()
		switch {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		default:
			return 0
		}
	})
	return idx
}

// percentileIndex returns the position within ranked of the empirical
// percentile day: the first day whose total reaches the p-th percentile.
func percentileIndex(days []types.HourlyProfile, ranked []int, p float64) int {
	totals := make([]float64, len(ranked))
	for i, idx := range ranked {
		totals[i] = days[idx].Total()
	}
	q := stat.Quantile(math.Min(math.Max(p, 0), 100)/100, stat.Empirical, totals, nil)
	i := sort.SearchFloat64s(totals, q)
	return min(i, len(totals)-1)
}

// MonthStat summarizes the filtered days of one calendar month.
type MonthStat struct {
	Year        int                 `json:"year"`
	Month       time.Month          `json:"month"`
	Days        int                 `json:"days"`
	AvgDailyKWh float64             `json:"avgDailyKwh"`
	TotalKWh    float64             `json:"totalKwh"`
	PeakKW      float64             `json:"peakKw"`
	Profile     types.HourlyProfile `json:"profile"`
}

// Monthly groups the filtered composite days by calendar month.
func Monthly(site types.SiteSeries, estimated types.HourlyProfile, f Filter, opts Options) []MonthStat {
	type key struct {
		year  int
		month time.Month
	}
	div := opts.diversity()
	byMonth := map[key][]types.HourlyProfile{}
	var order []key
	for _, d := range f.Apply(site) {
		k := key{d.Year, d.Month}
		if _, ok := byMonth[k]; !ok {
			order = append(order, k)
		}
		byMonth[k] = append(byMonth[k], site[d].Add(estimated).Scale(div))
	}

	out := make([]MonthStat, 0, len(order))
	for _, k := range order {
		days := byMonth[k]
		totals := lo.Map(days, func(p types.HourlyProfile, _ int) float64 { return p.Total() })
		peaks := lo.Map(days, func(p types.HourlyProfile, _ int) float64 { return p.Peak() })

		var avg types.HourlyProfile
		for _, p := range days {
			avg = avg.Add(p)
		}
		total := floats.Sum(totals)
		out = append(out, MonthStat{
			Year:        k.year,
			Month:       k.month,
			Days:        len(days),
			AvgDailyKWh: total / float64(len(days)),
			TotalKWh:    total,
			PeakKW:      floats.Max(peaks),
			Profile:     avg.Scale(1 / float64(len(days))),
		})
	}
	return out
}
