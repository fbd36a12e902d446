// Package tou classifies hours into time-of-use periods for South African
// tariff calendars. Everything here is a pure function of its inputs so it
// can be used by chart rendering as well as the simulator.
package tou

import (
	"fmt"
	"sync"
	"time"
)

// Period is a time-of-use label.
type Period string

const (
	Peak     Period = "peak"
	Standard Period = "standard"
	OffPeak  Period = "off-peak"
	// HighDemand and LowDemand are the season labels (winter and summer).
	HighDemand Period = "high-demand"
	LowDemand  Period = "low-demand"
)

// AnyWeekday is passed to Classify when only the weekend flag is known.
const AnyWeekday time.Weekday = -1

// Band is a block of hours [HourStart, HourEnd) with a period.
type Band struct {
	HourStart int    `json:"hourStart"`
	HourEnd   int    `json:"hourEnd"`
	Period    Period `json:"period"`
}

// Contains reports whether the hour falls within the band.
func (b Band) Contains(hour int) bool {
	return hour >= b.HourStart && hour < b.HourEnd
}

// Schedule holds the bands of one season. Hours not covered by a band are
// off-peak.
type Schedule struct {
	Weekday  []Band `json:"weekday"`
	Saturday []Band `json:"saturday"`
	Sunday   []Band `json:"sunday"`
}

func (s Schedule) bands(isWeekend bool, dow time.Weekday) []Band {
	switch {
	case dow == time.Sunday:
		return s.Sunday
	case dow == time.Saturday || isWeekend:
		return s.Saturday
	default:
		return s.Weekday
	}
}

// Calendar is a tariff's TOU calendar.
type Calendar struct {
	Name             string       `json:"name"`
	HighDemandMonths []time.Month `json:"highDemandMonths"`
	HighDemand       Schedule     `json:"highDemand"`
	LowDemand        Schedule     `json:"lowDemand"`
}

// Season returns HighDemand or LowDemand for the month. An unknown month (0)
// is treated as low demand.
func (c *Calendar) Season(month time.Month) Period {
	for _, m := range c.HighDemandMonths {
		if m == month {
			return HighDemand
		}
	}
	return LowDemand
}

// Classify returns Peak, Standard or OffPeak for the hour. month may be 0 when
// unknown and dow may be AnyWeekday, in which case a weekend is classified
// with the Saturday bands.
func (c *Calendar) Classify(hour int, isWeekend bool, month time.Month, dow time.Weekday) Period {
	schedule := c.LowDemand
	if c.Season(month) == HighDemand {
		schedule = c.HighDemand
	}
	// hours outside 0-23 wrap so the function is total
	hour = ((hour % 24) + 24) % 24
	for _, b := range schedule.bands(isWeekend, dow) {
		if b.Contains(hour) {
			return b.Period
		}
	}
	return OffPeak
}

// ClassifyTime classifies the hour of t in t's location.
func (c *Calendar) ClassifyTime(t time.Time) Period {
	wd := t.Weekday()
	return c.Classify(t.Hour(), wd == time.Saturday || wd == time.Sunday, t.Month(), wd)
}

// Megaflex is Eskom's Megaflex/Miniflex calendar. High demand season runs
// June to August.
var Megaflex = &Calendar{
	Name:             "megaflex",
	HighDemandMonths: []time.Month{time.June, time.July, time.August},
	HighDemand: Schedule{
		Weekday: []Band{
			{HourStart: 6, HourEnd: 9, Period: Peak},
			{HourStart: 9, HourEnd: 17, Period: Standard},
			{HourStart: 17, HourEnd: 19, Period: Peak},
			{HourStart: 19, HourEnd: 22, Period: Standard},
		},
		Saturday: []Band{
			{HourStart: 7, HourEnd: 12, Period: Standard},
			{HourStart: 18, HourEnd: 20, Period: Standard},
		},
	},
	LowDemand: Schedule{
		Weekday: []Band{
			{HourStart: 6, HourEnd: 7, Period: Standard},
			{HourStart: 7, HourEnd: 10, Period: Peak},
			{HourStart: 10, HourEnd: 18, Period: Standard},
			{HourStart: 18, HourEnd: 20, Period: Peak},
			{HourStart: 20, HourEnd: 22, Period: Standard},
		},
		Saturday: []Band{
			{HourStart: 7, HourEnd: 12, Period: Standard},
			{HourStart: 18, HourEnd: 20, Period: Standard},
		},
	},
}

var (
	calendarsMu sync.Mutex
	calendars   = map[string]*Calendar{
		Megaflex.Name: Megaflex,
	}
)

// Lookup returns the named calendar.
func Lookup(name string) (*Calendar, error) {
	calendarsMu.Lock()
	defer calendarsMu.Unlock()

	if c, ok := calendars[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown tou calendar: %s", name)
}

// Register adds or replaces a calendar by name.
func Register(c *Calendar) {
	calendarsMu.Lock()
	defer calendarsMu.Unlock()
	calendars[c.Name] = c
}

// Classify classifies with the Megaflex calendar.
func Classify(hour int, isWeekend bool, month time.Month, dow time.Weekday) Period {
	return Megaflex.Classify(hour, isWeekend, month, dow)
}
