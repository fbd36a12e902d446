package types

import (
	"encoding/json"
	"slices"
	"strings"
)

// HoursPerDay is the fixed length of every hourly profile.
const HoursPerDay = 24

// ValueUnit describes whether raw meter values are energy or power readings.
type ValueUnit string

const (
	// UnitKWh values are energy per interval and are summed within an hour.
	UnitKWh ValueUnit = "kWh"
	// UnitKW values are average power per interval and are averaged within an hour.
	UnitKW ValueUnit = "kW"
	// UnitKVA values are apparent power and are treated like kW.
	UnitKVA ValueUnit = "kVA"
)

// ParseValueUnit maps a free-form value_unit tag onto a ValueUnit. Anything
// not recognized as power falls back to energy semantics.
func ParseValueUnit(s string) ValueUnit {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kw", "power", "kw_avg", "average_kw":
		return UnitKW
	case "kva":
		return UnitKVA
	default:
		return UnitKWh
	}
}

// IsPower reports whether values of this unit are power readings.
func (u ValueUnit) IsPower() bool {
	return u == UnitKW || u == UnitKVA
}

// Sample is one canonical interval reading. Minute is minutes after local
// midnight of Date.
type Sample struct {
	Date   Date    `json:"date"`
	Minute int     `json:"minute"`
	Value  float64 `json:"value"`
}

// Meter is the metadata of one SCADA import. Its samples live in a RawPayload
// and are only fetched when a load profile is computed.
type Meter struct {
	ID      string  `json:"id"`
	Name    string  `json:"name,omitempty"`
	AreaSqm float64 `json:"area_sqm"`
	// IntervalMinutes is the declared sampling interval (15, 30 or 60). Zero
	// means undeclared.
	IntervalMinutes int       `json:"interval_minutes,omitempty"`
	Unit            ValueUnit `json:"value_unit,omitempty"`
}

// RawPayload is the opaque raw export of a meter.
type RawPayload struct {
	MeterID string          `json:"meter_id"`
	Unit    ValueUnit       `json:"value_unit,omitempty"`
	Data    json.RawMessage `json:"raw_data"`
}

// TenantMeter links a tenant to one of its meters with a load-sharing weight.
type TenantMeter struct {
	MeterID string  `json:"scada_import_id"`
	Weight  float64 `json:"weight,omitempty"`
}

// Tenant is a leasable unit of a site.
type Tenant struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name,omitempty"`
	AreaSqm            float64       `json:"area_sqm"`
	Weight             float64       `json:"weight,omitempty"`
	ScadaImportID      string        `json:"scada_import_id,omitempty"`
	Meters             []TenantMeter `json:"tenant_meters,omitempty"`
	ShopTypeID         string        `json:"shop_type_id,omitempty"`
	MonthlyKWhOverride *float64      `json:"monthly_kwh_override,omitempty"`
	// IncludeInLoadProfile defaults to true when unset.
	IncludeInLoadProfile *bool `json:"include_in_load_profile,omitempty"`
}

// Included reports whether the tenant takes part in the load profile.
func (t Tenant) Included() bool {
	return t.IncludeInLoadProfile == nil || *t.IncludeInLoadProfile
}

// MeterRefs returns the tenant's meters. A tenant with only a scada_import_id
// has a single meter weighted by the tenant weight.
func (t Tenant) MeterRefs() []TenantMeter {
	if len(t.Meters) > 0 {
		return t.Meters
	}
	if t.ScadaImportID != "" {
		return []TenantMeter{{MeterID: t.ScadaImportID, Weight: t.Weight}}
	}
	return nil
}

// Label returns the display label of the tenant.
func (t Tenant) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// ShopType is a statistical consumption template. Profiles are percentages of
// the daily energy per hour and should each sum to roughly 100.
type ShopType struct {
	ID             string    `json:"id"`
	Name           string    `json:"name,omitempty"`
	KWhPerSqmMonth float64   `json:"kwh_per_sqm_month"`
	Weekday        []float64 `json:"load_profile_weekday"`
	Weekend        []float64 `json:"load_profile_weekend,omitempty"`
}

// HourlyProfile holds average kW for each hour of a day, index = hour 0-23.
type HourlyProfile [HoursPerDay]float64

// Total returns the sum of all hours, equal to the kWh of the day.
func (p HourlyProfile) Total() float64 {
	var sum float64
	for _, v := range p {
		sum += v
	}
	return sum
}

// Add returns p + o hour by hour.
func (p HourlyProfile) Add(o HourlyProfile) HourlyProfile {
	for h := range p {
		p[h] += o[h]
	}
	return p
}

// Scale returns p multiplied by f.
func (p HourlyProfile) Scale(f float64) HourlyProfile {
	for h := range p {
		p[h] *= f
	}
	return p
}

// Peak returns the highest hourly value.
func (p HourlyProfile) Peak() float64 {
	return slices.Max(p[:])
}

// SiteSeries maps a validated date to the whole-site hourly profile.
type SiteSeries map[Date]HourlyProfile

// Dates returns the dates of the series in ascending order.
func (s SiteSeries) Dates() []Date {
	return SortedDates(s)
}

// SortedDates returns the keys of any date-keyed map in ascending order.
func SortedDates[V any](m map[Date]V) []Date {
	dates := make([]Date, 0, len(m))
	for d := range m {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b Date) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		default:
			return 0
		}
	})
	return dates
}
