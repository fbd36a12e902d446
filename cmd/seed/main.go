package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/log"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/storage"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	s := storage.Configured()
	siteID := lflag.String("site-id", "demo-mall", "ID of the site to seed")
	history := lflag.Duration("history", 90*24*time.Hour, "how much meter data to generate")
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	must := func(err error) {
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed", "error", err)
			os.Exit(1)
		}
	}

	must(s.UpsertSite(ctx, types.Site{
		ID:        *siteID,
		Name:      "Demo Mall",
		Latitude:  -26.1076,
		Longitude: 28.0567,
	}))

	retail := types.ShopType{
		ID:             "retail",
		Name:           "Retail",
		KWhPerSqmMonth: 55,
		Weekday:        tradingHours(8, 18),
		Weekend:        tradingHours(9, 15),
	}
	restaurant := types.ShopType{
		ID:             "restaurant",
		Name:           "Restaurant",
		KWhPerSqmMonth: 140,
		Weekday:        tradingHours(10, 22),
	}
	for _, st := range []types.ShopType{retail, restaurant} {
		must(s.UpsertShopType(ctx, st))
	}

	days := max(int(*history/(24*time.Hour)), 1)
	end := types.DateOf(time.Now()).AddDays(-1)
	start := end.AddDays(-(days - 1))

	// one meter per raw shape and interval
	meters := []struct {
		meter  types.Meter
		peakKW float64
		encode func(start types.Date, days, interval int, peakKW float64, rng *rand.Rand) json.RawMessage
	}{
		{types.Meter{Name: "Anchor Grocer", AreaSqm: 2400, IntervalMinutes: 30, Unit: types.UnitKWh}, 180, canonicalPayload},
		{types.Meter{Name: "Food Court", AreaSqm: 900, IntervalMinutes: 15, Unit: types.UnitKW}, 95, timestampPayload},
		{types.Meter{Name: "Pharmacy", AreaSqm: 350, IntervalMinutes: 60, Unit: types.UnitKWh}, 25, csvPayload},
	}
	var tenants []types.Tenant
	for _, m := range meters {
		m.meter.ID = uuid.NewString()
		must(s.UpsertMeter(ctx, *siteID, m.meter))
		must(s.UpsertRawPayload(ctx, *siteID, types.RawPayload{
			MeterID: m.meter.ID,
			Unit:    m.meter.Unit,
			Data:    m.encode(start, days, m.meter.IntervalMinutes, m.peakKW, rng),
		}))
		tenants = append(tenants, types.Tenant{
			ID:            uuid.NewString(),
			Name:          m.meter.Name,
			AreaSqm:       m.meter.AreaSqm,
			ScadaImportID: m.meter.ID,
		})
		log.Ctx(ctx).InfoContext(ctx, "seeded meter", "name", m.meter.Name, "meterID", m.meter.ID)
	}

	override := 4200.0
	excluded := false
	tenants = append(tenants,
		types.Tenant{ID: uuid.NewString(), Name: "Fashion Store", AreaSqm: 600, ShopTypeID: retail.ID},
		types.Tenant{ID: uuid.NewString(), Name: "Bistro", AreaSqm: 180, ShopTypeID: restaurant.ID, MonthlyKWhOverride: &override},
		types.Tenant{ID: uuid.NewString(), Name: "Vacant Unit", AreaSqm: 250},
		types.Tenant{ID: uuid.NewString(), Name: "Parking Lighting", AreaSqm: 0, IncludeInLoadProfile: &excluded},
	)
	for _, t := range tenants {
		must(s.UpsertTenant(ctx, *siteID, t))
	}

	log.Ctx(ctx).InfoContext(
		ctx,
		"seeded site",
		"siteID", *siteID,
		"start", start.String(),
		"end", end.String(),
		"tenants", len(tenants),
	)
}

// tradingHours returns hourly percentages concentrated between open and close
// with a small base load outside trading hours.
func tradingHours(open, closing int) []float64 {
	p := make([]float64, types.HoursPerDay)
	var sum float64
	for h := range p {
		p[h] = 1
		if h >= open && h < closing {
			p[h] = 8
		}
		sum += p[h]
	}
	for h := range p {
		p[h] = p[h] / sum * 100
	}
	return p
}

// demandKW is a shopping-centre curve peaking mid-afternoon, lower on Sundays.
func demandKW(d types.Date, minute int, peakKW float64, rng *rand.Rand) float64 {
	hour := float64(minute) / 60
	shape := 0.25 + 0.75*math.Exp(-math.Pow(hour-14, 2)/18)
	if d.Weekday() == time.Sunday {
		shape *= 0.7
	}
	return peakKW * shape * (0.9 + rng.Float64()*0.2)
}

// reading returns the value of the interval starting at minute, in the unit of
// the meter.
func reading(d types.Date, minute, interval int, peakKW float64, unit types.ValueUnit, rng *rand.Rand) float64 {
	kw := demandKW(d, minute+interval/2, peakKW, rng)
	if unit.IsPower() {
		return kw
	}
	return kw * float64(interval) / 60
}

func clock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

func canonicalPayload(start types.Date, days, interval int, peakKW float64, rng *rand.Rand) json.RawMessage {
	type row struct {
		Date  string `json:"date"`
		Time  string `json:"time"`
		Value string `json:"value"`
	}
	var rows []row
	for i := range days {
		d := start.AddDays(i)
		for minute := 0; minute < 24*60; minute += interval {
			rows = append(rows, row{
				Date:  d.String(),
				Time:  clock(minute),
				Value: fmt.Sprintf("%.3f", reading(d, minute, interval, peakKW, types.UnitKWh, rng)),
			})
		}
	}
	return mustJSON(rows)
}

func timestampPayload(start types.Date, days, interval int, peakKW float64, rng *rand.Rand) json.RawMessage {
	type row struct {
		Timestamp string  `json:"timestamp"`
		Value     float64 `json:"value"`
	}
	var rows []row
	for i := range days {
		d := start.AddDays(i)
		for minute := 0; minute < 24*60; minute += interval {
			ts := d.Time().Add(time.Duration(minute) * time.Minute)
			rows = append(rows, row{
				Timestamp: ts.Format("02 Jan 2006 15:04"),
				Value:     math.Round(reading(d, minute, interval, peakKW, types.UnitKW, rng)*1000) / 1000,
			})
		}
	}
	return mustJSON(rows)
}

func csvPayload(start types.Date, days, interval int, peakKW float64, rng *rand.Rand) json.RawMessage {
	var b strings.Builder
	b.WriteString("Meter export\nDate,Time,kWh\n")
	for i := range days {
		d := start.AddDays(i)
		for minute := 0; minute < 24*60; minute += interval {
			fmt.Fprintf(&b, "%s,%s,%.3f\n", d.String(), clock(minute), reading(d, minute, interval, peakKW, types.UnitKWh, rng))
		}
	}
	return mustJSON([]string{b.String()})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
