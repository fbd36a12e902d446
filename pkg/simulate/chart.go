package simulate

import (
	"github.com/samber/lo"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/tou"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// Summary holds the daily totals of a simulated day in kWh.
type Summary struct {
	LoadKWh         float64 `json:"loadKwh"`
	PVKWh           float64 `json:"pvKwh"`
	PVDCKWh         float64 `json:"pvDcKwh"`
	ClippingKWh     float64 `json:"clippingKwh"`
	Baseline1to1KWh float64 `json:"baseline1to1Kwh"`
	// OversizeGainKWh is the extra AC yield over an unoversized system.
	OversizeGainKWh float64 `json:"oversizeGainKwh"`
	GridImportKWh   float64 `json:"gridImportKwh"`
	GridExportKWh   float64 `json:"gridExportKwh"`
	ChargeKWh       float64 `json:"chargeKwh"`
	DischargeKWh    float64 `json:"dischargeKwh"`
	PeakImportKW    float64 `json:"peakImportKw"`
	// SelfConsumption is the share of PV used on site, 0 without PV.
	SelfConsumption float64 `json:"selfConsumption"`
}

// Summarize totals a simulated day.
func Summarize(hours []Hour) Summary {
	sum := func(f func(Hour) float64) float64 { return lo.SumBy(hours, f) }
	s := Summary{
		LoadKWh:         sum(func(h Hour) float64 { return h.Load }),
		PVKWh:           sum(func(h Hour) float64 { return h.ACOutput }),
		PVDCKWh:         sum(func(h Hour) float64 { return h.DCOutput }),
		ClippingKWh:     sum(func(h Hour) float64 { return h.Clipping }),
		Baseline1to1KWh: sum(func(h Hour) float64 { return h.Baseline1to1 }),
		GridImportKWh:   sum(func(h Hour) float64 { return h.GridImport }),
		GridExportKWh:   sum(func(h Hour) float64 { return h.GridExport }),
		ChargeKWh:       sum(func(h Hour) float64 { return h.BatteryCharge }),
		DischargeKWh:    sum(func(h Hour) float64 { return h.BatteryDischarge }),
	}
	if len(hours) > 0 {
		s.PeakImportKW = lo.MaxBy(hours, func(a, b Hour) bool { return a.GridImport > b.GridImport }).GridImport
	}
	s.OversizeGainKWh = s.PVKWh - s.Baseline1to1KWh
	if s.PVKWh > 0 {
		s.SelfConsumption = (s.PVKWh - s.GridExportKWh) / s.PVKWh
	}
	return s
}

// ChartPoint is one chart-ready hour in the display unit. BatterySoC is a
// percentage of capacity and does not change with the unit.
type ChartPoint struct {
	Hour             int        `json:"hour"`
	Total            float64    `json:"total"`
	PVGeneration     float64    `json:"pvGeneration"`
	PVDCOutput       float64    `json:"pvDcOutput"`
	PVClipping       float64    `json:"pvClipping"`
	PV1to1Baseline   float64    `json:"pv1to1Baseline"`
	GridImport       float64    `json:"gridImport"`
	GridExport       float64    `json:"gridExport"`
	NetLoad          float64    `json:"netLoad"`
	BatteryCharge    float64    `json:"batteryCharge"`
	BatteryDischarge float64    `json:"batteryDischarge"`
	BatterySoC       float64    `json:"batterySoC"`
	TOUPeriod        tou.Period `json:"touPeriod"`
}

// Compose converts simulated hours to chart points. kVA divides every power
// value by the power factor; an unusable power factor leaves values in kW.
func Compose(hours []Hour, unit types.DisplayUnit, powerFactor float64) []ChartPoint {
	div := 1.0
	if unit == types.DisplayKVA && powerFactor > 0 && powerFactor <= 1 {
		div = powerFactor
	}
	return lo.Map(hours, func(h Hour, _ int) ChartPoint {
		return ChartPoint{
			Hour:             h.Hour,
			Total:            h.Load / div,
			PVGeneration:     h.ACOutput / div,
			PVDCOutput:       h.DCOutput / div,
			PVClipping:       h.Clipping / div,
			PV1to1Baseline:   h.Baseline1to1 / div,
			GridImport:       h.GridImport / div,
			GridExport:       h.GridExport / div,
			NetLoad:          h.NetLoad / div,
			BatteryCharge:    h.BatteryCharge / div,
			BatteryDischarge: h.BatteryDischarge / div,
			BatterySoC:       h.BatterySoC,
			TOUPeriod:        h.Period,
		}
	})
}
