package rawdata

import (
	"strconv"
	"strings"
	"time"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"sept": time.September, "oct": time.October, "nov": time.November,
	"dec": time.December,
}

// monthFromName decodes English month names and their abbreviations.
func monthFromName(s string) (time.Month, bool) {
	s = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), "."))
	if m, ok := monthNames[s]; ok {
		return m, true
	}
	if len(s) > 3 {
		if m, ok := monthNames[s[:3]]; ok && strings.HasPrefix(strings.ToLower(m.String()), s) {
			return m, true
		}
	}
	return 0, false
}

// parseDate accepts YYYY-MM-DD, YYYY/MM/DD, DD/MM/YYYY, DD-MM-YYYY and
// DD Mon YYYY. Day-first is assumed for ambiguous numeric dates.
func parseDate(s string) (types.Date, bool) {
	s = strings.TrimSpace(s)
	// drop an ISO time part if present
	if i := strings.IndexAny(s, "T "); i == 10 {
		s = s[:i]
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '/' || r == '.' || r == ' '
	})
	if len(fields) != 3 {
		return types.Date{}, false
	}

	var y, m, d int
	var ok bool
	if len(fields[0]) == 4 {
		y, ok = atoi(fields[0])
		if !ok {
			return types.Date{}, false
		}
		if m, ok = atoi(fields[1]); !ok {
			return types.Date{}, false
		}
		if d, ok = atoi(fields[2]); !ok {
			return types.Date{}, false
		}
	} else {
		if d, ok = atoi(fields[0]); !ok {
			return types.Date{}, false
		}
		if m, ok = atoi(fields[1]); !ok {
			month, named := monthFromName(fields[1])
			if !named {
				return types.Date{}, false
			}
			m = int(month)
		}
		if y, ok = atoi(fields[2]); !ok {
			return types.Date{}, false
		}
		if y < 100 {
			y += 2000
		}
	}
	return validDate(y, m, d)
}

func validDate(y, m, d int) (types.Date, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 || y < 1900 || y > 2200 {
		return types.Date{}, false
	}
	date := types.NewDate(y, time.Month(m), d)
	// reject 31 Feb and friends instead of rolling over
	if date.Day != d {
		return types.Date{}, false
	}
	return date, true
}

// parseClock parses HH:MM or HH:MM:SS into minutes after midnight. 24:00 is
// allowed as the end-of-day label.
func parseClock(s string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	h, ok := atoi(parts[0])
	if !ok {
		return 0, false
	}
	m, ok := atoi(parts[1])
	if !ok || m < 0 || m > 59 {
		return 0, false
	}
	if h < 0 || h > 24 || (h == 24 && m != 0) {
		return 0, false
	}
	return h*60 + m, true
}

// parseMonthNameTimestamp parses "DD Mon YYYY HH:MM".
func parseMonthNameTimestamp(s string) (types.Date, int, bool) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return types.Date{}, 0, false
	}
	d, ok := atoi(fields[0])
	if !ok {
		return types.Date{}, 0, false
	}
	month, ok := monthFromName(fields[1])
	if !ok {
		return types.Date{}, 0, false
	}
	y, ok := atoi(fields[2])
	if !ok {
		return types.Date{}, 0, false
	}
	date, ok := validDate(y, int(month), d)
	if !ok {
		return types.Date{}, 0, false
	}
	minute, ok := parseClock(fields[3])
	if !ok {
		return types.Date{}, 0, false
	}
	return date, minute, true
}

// parseDateTime splits a combined "date time" field.
func parseDateTime(s string) (types.Date, int, bool) {
	s = strings.TrimSpace(s)
	if d, m, ok := parseMonthNameTimestamp(s); ok {
		return d, m, true
	}
	i := strings.LastIndexAny(s, "T ")
	if i < 0 {
		return types.Date{}, 0, false
	}
	d, ok := parseDate(s[:i])
	if !ok {
		return types.Date{}, 0, false
	}
	minute, ok := parseClock(s[i+1:])
	if !ok {
		return types.Date{}, 0, false
	}
	return d, minute, true
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return n, err == nil
}
