package loadprofile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/envelope"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/irradiance"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/simulate"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/tou"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// ErrDayNotFound is returned for a date that is not part of the validated
// series.
var ErrDayNotFound = errors.New("day not in validated series")

// filterKey is a canonical string for a filter.
func filterKey(f envelope.Filter) string {
	months := slices.Sorted(slices.Values(f.Months))
	days := slices.Sorted(slices.Values(f.Days))
	return fmt.Sprintf("%d-%d|%v|%v", f.YearFrom, f.YearTo, months, days)
}

// memo returns the cached view for key or computes and caches it.
func memo[T any](s *Service, p *Pipeline, key string, compute func() T) T {
	key = p.Key + "|" + key
	if v, ok := s.views.Get(key); ok {
		if t, ok := v.(T); ok {
			s.metrics.CacheHit("view")
			return t
		}
	}
	s.metrics.CacheMiss("view")
	v := compute()
	s.views.Add(key, v)
	return v
}

func (p *Pipeline) envelopeOptions() envelope.Options {
	return envelope.OptionsFromSettings(p.Settings)
}

// estimatedByTenant evaluates every estimated tenant over the given days of
// the week.
func (p *Pipeline) estimatedByTenant(days []time.Weekday) map[string]types.HourlyProfile {
	out := make(map[string]types.HourlyProfile, len(p.Result.Estimated))
	for _, t := range p.Result.Estimated {
		out[t.ID] = p.Builder.EstimateAverage(t, days)
	}
	return out
}

// Series returns the validated site series between start and end inclusive.
// Zero dates are unbounded.
func (s *Service) Series(ctx context.Context, siteID string, start, end types.Date) (types.SiteSeries, error) {
	p, err := s.Load(ctx, siteID)
	if err != nil {
		return nil, err
	}
	out := types.SiteSeries{}
	for d, profile := range p.Result.Site {
		if !start.IsZero() && d.Before(start) {
			continue
		}
		if !end.IsZero() && end.Before(d) {
			continue
		}
		out[d] = profile
	}
	return out, nil
}

// EnvelopeView is the envelope of a filtered set of days.
type EnvelopeView struct {
	Points         []envelope.Point `json:"points"`
	Days           int              `json:"days"`
	EstimatedCount int              `json:"estimatedCount"`
	OutageDays     []types.Date     `json:"outageDays"`
}

// Envelope returns the min/avg/max envelope of the filtered days.
func (s *Service) Envelope(ctx context.Context, siteID string, f envelope.Filter) (EnvelopeView, error) {
	p, err := s.Load(ctx, siteID)
	if err != nil {
		return EnvelopeView{}, err
	}
	return memo(s, p, "envelope|"+filterKey(f), func() EnvelopeView {
		estimated := envelope.EstimatedProfile(p.Builder, p.Result.Estimated, f.Days)
		return EnvelopeView{
			Points:         envelope.Compute(p.Result.Site, estimated, f, p.envelopeOptions()),
			Days:           len(f.Apply(p.Result.Site)),
			EstimatedCount: p.Result.EstimatedCount(),
			OutageDays:     p.Result.OutageDays,
		}
	}), nil
}

// StackedView is the per-tenant breakdown with its legend.
type StackedView struct {
	Mode   envelope.StackMode     `json:"mode"`
	Rows   []envelope.StackRow    `json:"rows"`
	Legend []envelope.LegendEntry `json:"legend"`
}

// Stacked returns the per-tenant breakdown of the filtered days.
func (s *Service) Stacked(ctx context.Context, siteID string, f envelope.Filter, mode envelope.StackMode) (StackedView, error) {
	p, err := s.Load(ctx, siteID)
	if err != nil {
		return StackedView{}, err
	}
	return memo(s, p, "stacked|"+string(mode)+"|"+filterKey(f), func() StackedView {
		return StackedView{
			Mode:   mode,
			Rows:   envelope.Stacked(p.Result.Site, p.Result.Tenants, p.estimatedByTenant(f.Days), f, mode, p.envelopeOptions()),
			Legend: envelope.Legend(p.Tenants),
		}
	}), nil
}

// Monthly returns the per-month summary of the filtered days.
func (s *Service) Monthly(ctx context.Context, siteID string, f envelope.Filter) ([]envelope.MonthStat, error) {
	p, err := s.Load(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return memo(s, p, "monthly|"+filterKey(f), func() []envelope.MonthStat {
		estimated := envelope.EstimatedProfile(p.Builder, p.Result.Estimated, f.Days)
		return envelope.Monthly(p.Result.Site, estimated, f, p.envelopeOptions())
	}), nil
}

// Day returns the playback of one validated date. Estimated tenants are
// evaluated for that date.
func (s *Service) Day(ctx context.Context, siteID string, d types.Date) (envelope.DayView, error) {
	p, err := s.Load(ctx, siteID)
	if err != nil {
		return envelope.DayView{}, err
	}
	estimated := make(map[string]types.HourlyProfile, len(p.Result.Estimated))
	for _, t := range p.Result.Estimated {
		estimated[t.ID] = p.Builder.EstimateDay(t, d)
	}
	view, ok := envelope.Day(p.Result.Site, p.Result.Tenants, estimated, d, p.envelopeOptions())
	if !ok {
		return envelope.DayView{}, fmt.Errorf("%w: %s", ErrDayNotFound, d)
	}
	return view, nil
}

// SimulationRequest selects the load and the system of one simulation.
type SimulationRequest struct {
	Config types.SimulationConfig `json:"config"`
	Filter envelope.Filter        `json:"filter"`
	// Date simulates one validated day instead of the average of the filter.
	Date *types.Date      `json:"date,omitempty"`
	Unit types.DisplayUnit `json:"unit,omitempty"`
	// Latitude and Longitude override the site location for the forecast.
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lon,omitempty"`
}

// SimulationResult is the chart-ready simulation of one day.
type SimulationResult struct {
	Points  []simulate.ChartPoint `json:"points"`
	Summary simulate.Summary      `json:"summary"`
	// PV is false when no irradiance source was selected.
	PV bool `json:"pv"`
}

// Simulate runs the PV/battery simulation on the average day of the filter,
// or on a single validated day.
func (s *Service) Simulate(ctx context.Context, siteID string, req SimulationRequest) (SimulationResult, error) {
	p, err := s.Load(ctx, siteID)
	if err != nil {
		return SimulationResult{}, err
	}
	cfg := req.Config
	if cfg.PowerFactor <= 0 {
		cfg.PowerFactor = p.Settings.PowerFactor
	}
	opts := p.envelopeOptions()
	if cfg.DiversityFactor > 0 {
		opts.DiversityFactor = cfg.DiversityFactor
	}
	cal, err := tou.Lookup(p.Settings.TOUCalendar)
	if err != nil {
		return SimulationResult{}, err
	}

	var load types.HourlyProfile
	var day simulate.DayContext
	var irrReq irradiance.Request
	if req.Date != nil {
		d := *req.Date
		site, ok := p.Result.Site[d]
		if !ok {
			return SimulationResult{}, fmt.Errorf("%w: %s", ErrDayNotFound, d)
		}
		for _, t := range p.Result.Estimated {
			site = site.Add(p.Builder.EstimateDay(t, d))
		}
		div := opts.DiversityFactor
		if div <= 0 {
			div = 1
		}
		load = site.Scale(div)
		day = simulate.ContextOf(d)
		irrReq.Start, irrReq.End = d, d
	} else {
		estimated := envelope.EstimatedProfile(p.Builder, p.Result.Estimated, req.Filter.Days)
		points := envelope.Compute(p.Result.Site, estimated, req.Filter, opts)
		for _, pt := range points {
			load[pt.Hour] = pt.Avg
		}
		day = typicalDay(req.Filter.Apply(p.Result.Site))
	}

	irrReq.Latitude, irrReq.Longitude = p.Site.Latitude, p.Site.Longitude
	if req.Latitude != nil && req.Longitude != nil {
		irrReq.Latitude, irrReq.Longitude = *req.Latitude, *req.Longitude
	}
	irr, err := s.irradiance.Profile(ctx, cfg.IrradianceSource, irrReq)
	if err != nil {
		return SimulationResult{}, fmt.Errorf("failed to get irradiance: %w", err)
	}

	unit := req.Unit
	if unit == "" {
		unit = types.DisplayKW
	}
	hours := simulate.Simulate(ctx, load, irr, cfg, cal, day)
	return SimulationResult{
		Points:  simulate.Compose(hours, unit, cfg.PowerFactor),
		Summary: simulate.Summarize(hours),
		PV:      irr != nil,
	}, nil
}

// typicalDay returns the most common month and day of the week of the dates,
// which decide the TOU periods of an average day. No dates gives a January
// weekday.
func typicalDay(dates []types.Date) simulate.DayContext {
	if len(dates) == 0 {
		return simulate.DayContext{Month: time.January, Weekday: time.Wednesday}
	}
	months := lo.CountValuesBy(dates, func(d types.Date) time.Month { return d.Month })
	weekdays := lo.CountValuesBy(dates, func(d types.Date) time.Weekday { return d.Weekday() })
	month := modal(months)
	weekday := modal(weekdays)
	return simulate.DayContext{
		Month:   month,
		Weekday: weekday,
		Weekend: weekday == time.Saturday || weekday == time.Sunday,
	}
}

// modal returns the most frequent key, the smallest on ties.
func modal[K ~int](counts map[K]int) K {
	keys := lo.Keys(counts)
	slices.Sort(keys)
	return lo.MaxBy(keys, func(a, b K) bool { return counts[a] > counts[b] })
}

// ParseFilter builds a filter from the from, to, months and days query
// values. Lists are comma separated numbers.
func ParseFilter(from, to, months, days string) (envelope.Filter, error) {
	var f envelope.Filter
	var err error
	if from != "" {
		if f.YearFrom, err = parseInt(from, "from"); err != nil {
			return f, err
		}
	}
	if to != "" {
		if f.YearTo, err = parseInt(to, "to"); err != nil {
			return f, err
		}
	}
	for _, m := range splitList(months) {
		n, err := parseInt(m, "months")
		if err != nil {
			return f, err
		}
		if n < 1 || n > 12 {
			return f, fmt.Errorf("invalid month: %d", n)
		}
		f.Months = append(f.Months, time.Month(n))
	}
	for _, d := range splitList(days) {
		n, err := parseInt(d, "days")
		if err != nil {
			return f, err
		}
		if n < 0 || n > 6 {
			return f, fmt.Errorf("invalid day of week: %d", n)
		}
		f.Days = append(f.Days, time.Weekday(n))
	}
	return f, nil
}

func splitList(s string) []string {
	return lo.Filter(strings.Split(s, ","), func(v string, _ int) bool { return strings.TrimSpace(v) != "" })
}

func parseInt(s, name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return n, nil
}
