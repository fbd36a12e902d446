package rawdata

import (
	"encoding/csv"
	"strings"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

var (
	dateHeaders  = []string{"date", "datum", "rdate", "day", "timestamp", "datetime", "date/time"}
	timeHeaders  = []string{"time", "rtime", "tyd"}
	valueHeaders = []string{"value", "kwh", "kw", "kva", "p1", "energy", "reading"}
)

// csvColumns locates the columns of a CSV export. timeIdx is -1 when the date
// column also carries the time of day.
type csvColumns struct {
	dateIdx, timeIdx, valueIdx int
}

// parseCSV parses a CSV text blob. The separator is ',' or ';' and the first
// row naming a date column is taken as the header; rows before it are
// metadata and skipped.
func parseCSV(blob string) []types.Sample {
	r := csv.NewReader(strings.NewReader(blob))
	r.Comma = detectSeparator(blob)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil && len(records) == 0 {
		return nil
	}

	var cols csvColumns
	start := -1
	for i, rec := range records {
		if c, ok := headerColumns(rec); ok {
			cols, start = c, i+1
			break
		}
	}
	if start < 0 {
		return nil
	}

	var samples []types.Sample
	for _, rec := range records[start:] {
		if s, ok := csvSample(rec, cols); ok {
			samples = append(samples, s)
		}
	}
	return samples
}

func detectSeparator(blob string) rune {
	line, _, _ := strings.Cut(blob, "\n")
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}

func headerColumns(rec []string) (csvColumns, bool) {
	cols := csvColumns{dateIdx: -1, timeIdx: -1, valueIdx: -1}
	for i, field := range rec {
		name := strings.ToLower(strings.TrimSpace(field))
		switch {
		case cols.dateIdx < 0 && matchesHeader(name, dateHeaders):
			cols.dateIdx = i
		case cols.timeIdx < 0 && matchesHeader(name, timeHeaders):
			cols.timeIdx = i
		case cols.valueIdx < 0 && matchesHeader(name, valueHeaders):
			cols.valueIdx = i
		}
	}
	if cols.dateIdx < 0 {
		return cols, false
	}
	if cols.valueIdx < 0 {
		// no recognizable value column, take the first one after date/time
		cols.valueIdx = max(cols.dateIdx, cols.timeIdx) + 1
		if cols.valueIdx >= len(rec) {
			return cols, false
		}
	}
	return cols, true
}

func matchesHeader(name string, candidates []string) bool {
	for _, c := range candidates {
		if name == c || strings.HasPrefix(name, c+" ") || strings.HasPrefix(name, c+"(") {
			return true
		}
	}
	return false
}

func csvSample(rec []string, cols csvColumns) (types.Sample, bool) {
	if cols.dateIdx >= len(rec) || cols.valueIdx >= len(rec) || cols.timeIdx >= len(rec) {
		return types.Sample{}, false
	}
	value, ok := parseNumber(rec[cols.valueIdx])
	if !ok {
		return types.Sample{}, false
	}

	if cols.timeIdx >= 0 {
		d, ok := parseDate(rec[cols.dateIdx])
		if !ok {
			return types.Sample{}, false
		}
		minute, ok := parseClock(rec[cols.timeIdx])
		if !ok {
			return types.Sample{}, false
		}
		return newSample(d, minute, value), true
	}

	d, minute, ok := parseDateTime(rec[cols.dateIdx])
	if !ok {
		return types.Sample{}, false
	}
	return newSample(d, minute, value), true
}
