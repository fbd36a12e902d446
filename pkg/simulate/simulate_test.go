package simulate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/tou"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

func flat(v float64) types.HourlyProfile {
	var p types.HourlyProfile
	for h := range p {
		p[h] = v
	}
	return p
}

var tuesdayMarch = DayContext{Month: time.March, Weekday: time.Tuesday}

func TestDCOutput(t *testing.T) {
	var irr types.IrradianceProfile
	irr.NormalizedProfile[10] = 1
	irr.HourlyTemp[10] = 20
	irr.NormalizedProfile[12] = 0.5
	irr.HourlyTemp[12] = 35

	dc := DCOutput(irr, 150, 0.1)
	assert.InDelta(t, 135.0, dc[10], 1e-9)
	// 10 degrees above 25 derates by 4%
	assert.InDelta(t, 0.5*150*0.9*0.96, dc[12], 1e-9)
	assert.Equal(t, 0.0, dc[0])

	ac, clipped := Clip(dc, 100)
	assert.Equal(t, 100.0, ac[10])
	assert.InDelta(t, 35.0, clipped[10], 1e-9)
	assert.InDelta(t, dc[12], ac[12], 1e-9)
	assert.Equal(t, 0.0, clipped[12])
}

func TestSimulatePV(t *testing.T) {
	var irr types.IrradianceProfile
	irr.NormalizedProfile[12] = 1
	cfg := types.SimulationConfig{InverterKVA: 100, DCACRatio: 1.5, SystemLosses: 0.1}

	hours := Simulate(context.Background(), flat(50), &irr, cfg, nil, tuesdayMarch)
	require.Len(t, hours, 24)
	h := hours[12]
	assert.InDelta(t, 135.0, h.DCOutput, 1e-9)
	assert.Equal(t, 100.0, h.ACOutput)
	assert.InDelta(t, 35.0, h.Clipping, 1e-9)
	assert.InDelta(t, 90.0, h.Baseline1to1, 1e-9)
	assert.Equal(t, -50.0, h.NetLoad)
	assert.Equal(t, 50.0, h.GridExport)
	assert.Equal(t, 0.0, h.GridImport)
	assert.Equal(t, 50.0, hours[0].GridImport)
	assert.Equal(t, tou.Standard, h.Period)
}

func TestSimulateWithoutPV(t *testing.T) {
	cfg := types.SimulationConfig{InverterKVA: 100, DCACRatio: 1.3}
	hours := Simulate(context.Background(), flat(10), nil, cfg, tou.Megaflex, tuesdayMarch)
	for _, h := range hours {
		assert.Equal(t, 0.0, h.ACOutput)
		assert.Equal(t, 0.0, h.DCOutput)
		assert.Equal(t, 10.0, h.GridImport)
		assert.Equal(t, 0.0, h.BatterySoC)
	}
}

func TestBatteryNoOffPeakDischarge(t *testing.T) {
	cfg := types.SimulationConfig{BatteryCapacityKWh: 100, BatteryPowerKW: 5}
	hours := Simulate(context.Background(), flat(100), nil, cfg, tou.Megaflex, tuesdayMarch)

	var discharged float64
	for _, h := range hours {
		if h.Period == tou.OffPeak {
			assert.Equal(t, 0.0, h.BatteryDischarge, "hour %d", h.Hour)
		}
		assert.GreaterOrEqual(t, h.BatterySoC, MinSoC*100-1e-9)
		discharged += h.BatteryDischarge
	}
	// the battery starts at 20% so 10 kWh is usable before the 10% floor,
	// first drawn at 06:00 which is standard time
	assert.Equal(t, 0.0, hours[5].BatteryDischarge)
	assert.Equal(t, 5.0, hours[6].BatteryDischarge)
	assert.Equal(t, 5.0, hours[7].BatteryDischarge)
	assert.InDelta(t, 10.0, discharged, 1e-9)
	assert.Equal(t, 95.0, hours[6].GridImport)

	t.Run("Sunday", func(t *testing.T) {
		sunday := DayContext{Month: time.March, Weekday: time.Sunday, Weekend: true}
		hours := Simulate(context.Background(), flat(100), nil, cfg, nil, sunday)
		for _, h := range hours {
			assert.Equal(t, 0.0, h.BatteryDischarge)
			assert.InDelta(t, 20.0, h.BatterySoC, 1e-9)
		}
	})
}

func TestBatteryChargeCeiling(t *testing.T) {
	var irr types.IrradianceProfile
	for h := 8; h < 17; h++ {
		irr.NormalizedProfile[h] = 1
	}
	cfg := types.SimulationConfig{InverterKVA: 500, BatteryCapacityKWh: 100, BatteryPowerKW: 60}
	hours := Simulate(context.Background(), flat(20), &irr, cfg, nil, tuesdayMarch)

	for _, h := range hours {
		assert.LessOrEqual(t, h.BatterySoC, MaxSoC*100+1e-9, "hour %d", h.Hour)
		assert.LessOrEqual(t, h.BatteryCharge, 60.0)
	}
	// the morning standard and peak hours drain the battery to 10%, then
	// charging is limited by battery power first and the 95% ceiling second
	assert.InDelta(t, 10.0, hours[7].BatterySoC, 1e-9)
	assert.InDelta(t, 60.0, hours[8].BatteryCharge, 1e-9)
	assert.InDelta(t, 25.0, hours[9].BatteryCharge, 1e-9)
	assert.InDelta(t, 95.0, hours[9].BatterySoC, 1e-9)
	assert.Equal(t, 0.0, hours[10].BatteryCharge)
	// surplus not absorbed by the battery is exported
	assert.InDelta(t, 480.0-60, hours[8].GridExport, 1e-9)
	assert.InDelta(t, 480.0, hours[10].GridExport, 1e-9)
}

func TestSummarize(t *testing.T) {
	var irr types.IrradianceProfile
	irr.NormalizedProfile[12] = 1
	cfg := types.SimulationConfig{InverterKVA: 100, DCACRatio: 1.5, SystemLosses: 0.1}
	hours := Simulate(context.Background(), flat(50), &irr, cfg, nil, tuesdayMarch)

	s := Summarize(hours)
	assert.InDelta(t, 1200.0, s.LoadKWh, 1e-9)
	assert.InDelta(t, 100.0, s.PVKWh, 1e-9)
	assert.InDelta(t, 35.0, s.ClippingKWh, 1e-9)
	assert.InDelta(t, 10.0, s.OversizeGainKWh, 1e-9)
	assert.InDelta(t, 50.0, s.GridExportKWh, 1e-9)
	assert.InDelta(t, 1150.0, s.GridImportKWh, 1e-9)
	assert.InDelta(t, 0.5, s.SelfConsumption, 1e-9)
	assert.Equal(t, 50.0, s.PeakImportKW)

	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestCompose(t *testing.T) {
	cfg := types.SimulationConfig{BatteryCapacityKWh: 100, BatteryPowerKW: 5}
	hours := Simulate(context.Background(), flat(90), nil, cfg, nil, tuesdayMarch)

	kw := Compose(hours, types.DisplayKW, 0.9)
	require.Len(t, kw, 24)
	assert.Equal(t, 90.0, kw[0].Total)
	assert.Equal(t, tou.OffPeak, kw[0].TOUPeriod)

	kva := Compose(hours, types.DisplayKVA, 0.9)
	assert.InDelta(t, 100.0, kva[0].Total, 1e-9)
	assert.InDelta(t, 85.0/0.9, kva[6].GridImport, 1e-9)
	assert.Equal(t, kw[6].BatterySoC, kva[6].BatterySoC)

	// a bad power factor leaves kW values
	assert.Equal(t, 90.0, Compose(hours, types.DisplayKVA, 0)[0].Total)
}
