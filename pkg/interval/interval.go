// Package interval resamples a meter's native-resolution readings into 24
// hourly average-kW values per day.
package interval

import (
	"gonum.org/v1/gonum/stat"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/rawdata"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// Correct maps an hourly-or-finer array of power readings onto 24 average kW
// values. declared is the meter's declared sampling interval in minutes, 0
// when unknown.
//
// A 24-length array from a 30 or 15 minute meter was summed into hourly
// buckets upstream and is halved or quartered. Lengths 48 and 96 are averaged
// in pairs and quadruples, and any other length is remapped by bucketed
// averaging.
func Correct(values []float64, declared int) types.HourlyProfile {
	var out types.HourlyProfile
	switch len(values) {
	case 0:
		return out
	case 2 * types.HoursPerDay:
		return average(values, 2)
	case 4 * types.HoursPerDay:
		return average(values, 4)
	case types.HoursPerDay:
		divisor := 1.0
		switch declared {
		case 30:
			divisor = 2
		case 15:
			divisor = 4
		}
		for h, v := range values {
			out[h] = v / divisor
		}
		return out
	}
	return remap(values)
}

func average(values []float64, per int) types.HourlyProfile {
	var out types.HourlyProfile
	for h := range out {
		out[h] = stat.Mean(values[h*per:(h+1)*per], nil)
	}
	return out
}

// remap averages the values that fall into each hour's share of the array.
// Arrays shorter than 24 repeat their nearest value.
func remap(values []float64) types.HourlyProfile {
	var out types.HourlyProfile
	n := len(values)
	for h := range out {
		start := h * n / types.HoursPerDay
		end := (h + 1) * n / types.HoursPerDay
		if end <= start {
			out[h] = values[start]
			continue
		}
		out[h] = stat.Mean(values[start:end], nil)
	}
	return out
}

// DaySlots groups one meter's samples by date into slot arrays at the
// meter's resolution, slot i covering minutes [i*interval, (i+1)*interval).
// Energy readings are converted to average kW for their slot so every
// returned value is power. Slots without a reading are zero; a reading that
// lands in an already-filled slot is added to it.
func DaySlots(samples []types.Sample, intervalMinutes int, unit types.ValueUnit) map[types.Date][]float64 {
	if intervalMinutes <= 0 || (24*60)%intervalMinutes != 0 {
		intervalMinutes = 60
	}
	slots := (24 * 60) / intervalMinutes
	toKW := 1.0
	if !unit.IsPower() {
		toKW = 60 / float64(intervalMinutes)
	}

	days := map[types.Date][]float64{}
	for _, s := range samples {
		day, ok := days[s.Date]
		if !ok {
			day = make([]float64, slots)
			days[s.Date] = day
		}
		i := s.Minute / intervalMinutes
		if i < 0 || i >= slots {
			continue
		}
		day[i] += s.Value * toKW
	}
	return days
}

// MeterDays returns the corrected hourly kW profile of every date a meter
// reported. The sampling interval is detected from the samples, falling back
// to the meter's declared interval.
func MeterDays(samples []types.Sample, meter types.Meter) map[types.Date]types.HourlyProfile {
	if len(samples) == 0 {
		return nil
	}
	unit := meter.Unit
	if unit == "" {
		unit = types.UnitKWh
	}

	detected := rawdata.DetectInterval(samples)
	resolution := detected
	if resolution == 0 {
		resolution = meter.IntervalMinutes
	}

	// The declared interval only matters for power readings that were rolled
	// up to hourly spacing upstream. Energy is converted at the spacing it was
	// actually recorded at, so no further division applies.
	declared := 0
	if unit.IsPower() && resolution == 60 {
		declared = meter.IntervalMinutes
	}

	out := make(map[types.Date]types.HourlyProfile)
	for d, slots := range DaySlots(samples, resolution, unit) {
		out[d] = Correct(slots, declared)
	}
	return out
}
