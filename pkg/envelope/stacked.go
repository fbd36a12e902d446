package envelope

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/profile"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// StackMode selects how the per-tenant breakdown is built.
type StackMode string

const (
	// StackAvg averages each tenant over the filtered days.
	StackAvg StackMode = "avg"
	// StackMax and StackMin show the single filtered day with the highest or
	// lowest site total, broken down by tenant.
	StackMax StackMode = "max"
	StackMin StackMode = "min"
)

// ParseStackMode parses a mode, defaulting to StackAvg when empty.
func ParseStackMode(s string) (StackMode, error) {
	switch StackMode(s) {
	case "", StackAvg:
		return StackAvg, nil
	case StackMax, StackMin:
		return StackMode(s), nil
	default:
		return "", fmt.Errorf("invalid stack mode: %q", s)
	}
}

// StackRow is one hour of the stacked view: tenant id to kW.
type StackRow struct {
	Hour   int
	Values map[string]float64
}

// MarshalJSON flattens the row into {"hour": h, "<tenantId>": value, ...}.
func (r StackRow) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Values)+1)
	for id, v := range r.Values {
		m[id] = v
	}
	m["hour"] = r.Hour
	return json.Marshal(m)
}

// UnmarshalJSON reverses MarshalJSON.
func (r *StackRow) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	r.Hour = int(m["hour"])
	delete(m, "hour")
	r.Values = m
	return nil
}

// Stacked returns the per-tenant breakdown of the filtered days. estimated
// holds the constant profile of each tenant without meter data. The day for
// StackMax and StackMin is ranked on the metered site total. No matching days
// gives an empty result.
func Stacked(site types.SiteSeries, tenants []profile.TenantSeries, estimated map[string]types.HourlyProfile, f Filter, mode StackMode, opts Options) []StackRow {
	dates := f.Apply(site)
	if len(dates) == 0 {
		return []StackRow{}
	}

	perTenant := make(map[string]types.HourlyProfile, len(tenants)+len(estimated))
	switch mode {
	case StackMax, StackMin:
		pick := lo.MaxBy(dates, func(a, b types.Date) bool {
			if mode == StackMin {
				return site[a].Total() < site[b].Total()
			}
			return site[a].Total() > site[b].Total()
		})
		for _, ts := range tenants {
			perTenant[ts.Tenant.ID] = ts.Days[pick]
		}
	default:
		for _, ts := range tenants {
			var sum types.HourlyProfile
			for _, d := range dates {
				sum = sum.Add(ts.Days[d])
			}
			perTenant[ts.Tenant.ID] = sum.Scale(1 / float64(len(dates)))
		}
	}
	for id, p := range estimated {
		perTenant[id] = p
	}

	div := opts.diversity()
	rows := make([]StackRow, types.HoursPerDay)
	for h := range rows {
		values := make(map[string]float64, len(perTenant))
		for id, p := range perTenant {
			values[id] = p[h] * div
		}
		rows[h] = StackRow{Hour: h, Values: values}
	}
	return rows
}

// LegendEntry labels and colours one tenant series.
type LegendEntry struct {
	TenantID string `json:"tenantId"`
	Label    string `json:"label"`
	Color    string `json:"color"`
}

var palette = []string{
	"#2563eb", "#16a34a", "#f59e0b", "#dc2626", "#7c3aed",
	"#0891b2", "#db2777", "#65a30d", "#ea580c", "#4f46e5",
	"#0d9488", "#ca8a04",
}

// Legend assigns each tenant a deterministic colour in tenant id order. The
// palette wraps around for large sites.
func Legend(tenants []types.Tenant) []LegendEntry {
	sorted := slices.Clone(tenants)
	slices.SortStableFunc(sorted, func(a, b types.Tenant) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	sorted = lo.UniqBy(sorted, func(t types.Tenant) string { return t.ID })

	out := make([]LegendEntry, len(sorted))
	for i, t := range sorted {
		out[i] = LegendEntry{
			TenantID: t.ID,
			Label:    t.Label(),
			Color:    palette[i%len(palette)],
		}
	}
	return out
}

// DayView is the playback of one validated date.
type DayView struct {
	Date    types.Date                     `json:"date"`
	Site    types.HourlyProfile            `json:"site"`
	Tenants map[string]types.HourlyProfile `json:"tenants"`
}

// Day returns the site and per-tenant profiles of one date, with estimated
// tenants (already evaluated for that date) folded in. The second return is
// false when the date is not part of the validated series.
func Day(site types.SiteSeries, tenants []profile.TenantSeries, estimated map[string]types.HourlyProfile, d types.Date, opts Options) (DayView, bool) {
	p, ok := site[d]
	if !ok {
		return DayView{}, false
	}
	div := opts.diversity()
	view := DayView{
		Date:    d,
		Tenants: make(map[string]types.HourlyProfile, len(tenants)+len(estimated)),
	}
	total := p
	for _, ts := range tenants {
		view.Tenants[ts.Tenant.ID] = ts.Days[d].Scale(div)
	}
	for id, e := range estimated {
		view.Tenants[id] = e.Scale(div)
		total = total.Add(e)
	}
	view.Site = total.Scale(div)
	return view, true
}
