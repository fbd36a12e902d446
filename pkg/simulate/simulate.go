// Package simulate runs the hourly PV and battery model on top of a site
// load profile.
package simulate

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/log"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/tou"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

const (
	// Battery state of charge bounds as fractions of capacity.
	InitialSoC = 0.20
	MaxSoC     = 0.95
	MinSoC     = 0.10

	// Panel output drops by DeratingPerDegree for every degree of air
	// temperature above DeratingReferenceC.
	DeratingPerDegree  = 0.004
	DeratingReferenceC = 25.0
)

// DayContext is the calendar context used for TOU gating of the battery.
// Month may be 0 and Weekday tou.AnyWeekday for an average day.
type DayContext struct {
	Month   time.Month
	Weekday time.Weekday
	Weekend bool
}

// ContextOf returns the context of a specific date.
func ContextOf(d types.Date) DayContext {
	return DayContext{Month: d.Month, Weekday: d.Weekday(), Weekend: d.IsWeekend()}
}

// Hour is one simulated hour. Power values are kW and, over one hour, equal
// to kWh.
type Hour struct {
	Hour             int        `json:"hour"`
	Load             float64    `json:"load"`
	DCOutput         float64    `json:"dcOutput"`
	ACOutput         float64    `json:"acOutput"`
	Clipping         float64    `json:"clipping"`
	Baseline1to1     float64    `json:"baseline1to1"`
	NetLoad          float64    `json:"netLoad"`
	GridImport       float64    `json:"gridImport"`
	GridExport       float64    `json:"gridExport"`
	BatteryCharge    float64    `json:"batteryCharge"`
	BatteryDischarge float64    `json:"batteryDischarge"`
	BatteryKWh       float64    `json:"batteryKwh"`
	BatterySoC       float64    `json:"batterySoc"`
	Period           tou.Period `json:"period"`
}

// Simulate runs one day. A nil irradiance profile disables PV, in which case
// only the load and grid import are reported. The battery starts at
// InitialSoC, charges from surplus PV up to MaxSoC and discharges to cover
// grid import during Peak and Standard hours only, never below MinSoC.
func Simulate(ctx context.Context, load types.HourlyProfile, irr *types.IrradianceProfile, cfg types.SimulationConfig, cal *tou.Calendar, day DayContext) []Hour {
	if cal == nil {
		cal = tou.Megaflex
	}
	capacity := math.Max(cfg.BatteryCapacityKWh, 0)
	power := math.Max(cfg.BatteryPowerKW, 0)
	soc := capacity * InitialSoC
	maxKWh := capacity * MaxSoC
	minKWh := capacity * MinSoC

	var dc, ac, clipping, baseline types.HourlyProfile
	if irr != nil {
		dc = DCOutput(*irr, cfg.DCCapacityKWp(), cfg.SystemLosses)
		ac, clipping = Clip(dc, cfg.InverterKVA)
		baseline, _ = Clip(DCOutput(*irr, cfg.InverterKVA, cfg.SystemLosses), cfg.InverterKVA)
	}

	hours := make([]Hour, types.HoursPerDay)
	for h := range hours {
		period := cal.Classify(h, day.Weekend, day.Month, day.Weekday)
		net := load[h] - ac[h]

		var charge, discharge float64
		if net < 0 {
			charge = math.Max(0, math.Min(power, math.Min(-net, maxKWh-soc)))
			soc += charge
		} else if net > 0 && (period == tou.Peak || period == tou.Standard) {
			discharge = math.Max(0, math.Min(power, math.Min(net, soc-minKWh)))
			soc -= discharge
		}

		grid := net + charge - discharge
		hours[h] = Hour{
			Hour:             h,
			Load:             load[h],
			DCOutput:         dc[h],
			ACOutput:         ac[h],
			Clipping:         clipping[h],
			Baseline1to1:     baseline[h],
			NetLoad:          net,
			GridImport:       math.Max(grid, 0),
			GridExport:       math.Max(-grid, 0),
			BatteryCharge:    charge,
			BatteryDischarge: discharge,
			BatteryKWh:       soc,
			BatterySoC:       socPercent(soc, capacity),
			Period:           period,
		}
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"simulated day",
		slog.Bool("pv", irr != nil),
		slog.Float64("dcKwp", cfg.DCCapacityKWp()),
		slog.Float64("inverterKva", cfg.InverterKVA),
		slog.Float64("batteryKwh", capacity),
		slog.Float64("endSoc", socPercent(soc, capacity)),
	)
	return hours
}

func socPercent(kwh, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return kwh / capacity * 100
}

// DCOutput returns the panel output for a system of kwp after losses and
// temperature derating.
func DCOutput(irr types.IrradianceProfile, kwp, losses float64) types.HourlyProfile {
	losses = math.Min(math.Max(losses, 0), 1)
	var out types.HourlyProfile
	for h := range out {
		derate := 1.0
		if t := irr.HourlyTemp[h]; t > DeratingReferenceC {
			derate = 1 - DeratingPerDegree*(t-DeratingReferenceC)
		}
		out[h] = math.Max(0, irr.NormalizedProfile[h]*kwp*(1-losses)*derate)
	}
	return out
}

// Clip limits dc to the inverter rating and returns the AC output and the
// clipped energy.
func Clip(dc types.HourlyProfile, inverterKVA float64) (ac, clipped types.HourlyProfile) {
	for h, v := range dc {
		ac[h] = math.Min(v, math.Max(inverterKVA, 0))
		clipped[h] = v - ac[h]
	}
	return ac, clipped
}
