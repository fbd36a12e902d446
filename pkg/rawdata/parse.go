// Package rawdata turns the raw exports attached to SCADA imports into
// canonical samples. Parsing never fails: anything that cannot be understood
// is dropped, and an unrecognized payload yields no samples.
package rawdata

import (
	"bytes"
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// Shape is the detected layout of a raw payload.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeCanonical is an array of {date, time, value}.
	ShapeCanonical
	// ShapeTimestamp is an array of {timestamp: "DD Mon YYYY HH:MM", value}.
	ShapeTimestamp
	// ShapeCSV is a single element wrapping a CSV text blob.
	ShapeCSV
)

func (s Shape) String() string {
	switch s {
	case ShapeCanonical:
		return "canonical"
	case ShapeTimestamp:
		return "timestamp"
	case ShapeCSV:
		return "csv"
	default:
		return "unknown"
	}
}

type canonicalRow struct {
	Date  string     `json:"date"`
	Time  string     `json:"time"`
	Value flexNumber `json:"value"`
}

type timestampRow struct {
	Timestamp string     `json:"timestamp"`
	Value     flexNumber `json:"value"`
}

// payload is the decoded form of a raw blob; exactly one of the row fields is
// populated, selected by shape.
type payload struct {
	shape     Shape
	canonical []canonicalRow
	stamped   []timestampRow
	csv       string
}

// Detect reports the shape of a raw blob.
func Detect(raw []byte) Shape {
	return decode(raw).shape
}

// Parse returns the samples of a raw blob ordered by date and time.
func Parse(raw []byte) []types.Sample {
	p := decode(raw)

	var samples []types.Sample
	switch p.shape {
	case ShapeCanonical:
		for _, row := range p.canonical {
			if s, ok := canonicalSample(row); ok {
				samples = append(samples, s)
			}
		}
	case ShapeTimestamp:
		for _, row := range p.stamped {
			if s, ok := timestampSample(row); ok {
				samples = append(samples, s)
			}
		}
	case ShapeCSV:
		samples = parseCSV(p.csv)
	default:
		return nil
	}

	sortSamples(samples)
	return samples
}

func decode(raw []byte) payload {
	raw = bytes.TrimSpace(raw)
	// some collaborators hand over the array double-encoded as a JSON string
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err == nil {
			trimmed := strings.TrimSpace(inner)
			if strings.HasPrefix(trimmed, "[") {
				raw = []byte(trimmed)
			} else {
				return payload{shape: ShapeCSV, csv: inner}
			}
		}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil || len(elems) == 0 {
		return payload{}
	}

	var first map[string]json.RawMessage
	if err := json.Unmarshal(elems[0], &first); err == nil {
		_, hasDate := first["date"]
		_, hasTime := first["time"]
		_, hasValue := first["value"]
		_, hasTimestamp := first["timestamp"]
		switch {
		case hasDate && hasTime && hasValue:
			return payload{shape: ShapeCanonical, canonical: decodeRows[canonicalRow](elems)}
		case hasTimestamp && hasValue:
			return payload{shape: ShapeTimestamp, stamped: decodeRows[timestampRow](elems)}
		}
	}

	if len(elems) == 1 {
		if blob, ok := csvBlob(elems[0]); ok {
			return payload{shape: ShapeCSV, csv: blob}
		}
	}
	return payload{}
}

// decodeRows decodes each element on its own so one malformed row does not
// discard the rest.
func decodeRows[T any](elems []json.RawMessage) []T {
	rows := make([]T, 0, len(elems))
	for _, e := range elems {
		var row T
		if err := json.Unmarshal(e, &row); err != nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// csvBlob extracts the CSV text of a wrapped element: either a bare string
// or an object with a multi-line string field.
func csvBlob(elem json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(elem, &s); err == nil {
		return s, strings.Contains(s, "\n")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(elem, &obj); err != nil {
		return "", false
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := json.Unmarshal(obj[k], &s); err == nil && strings.Contains(s, "\n") {
			return s, true
		}
	}
	return "", false
}

func canonicalSample(row canonicalRow) (types.Sample, bool) {
	if !row.Value.valid {
		return types.Sample{}, false
	}
	d, ok := parseDate(row.Date)
	if !ok {
		return types.Sample{}, false
	}
	minute, ok := parseClock(row.Time)
	if !ok {
		return types.Sample{}, false
	}
	return newSample(d, minute, row.Value.value), true
}

func timestampSample(row timestampRow) (types.Sample, bool) {
	if !row.Value.valid {
		return types.Sample{}, false
	}
	d, minute, ok := parseMonthNameTimestamp(row.Timestamp)
	if !ok {
		return types.Sample{}, false
	}
	return newSample(d, minute, row.Value.value), true
}

// newSample maps a 24:00 end-of-day label onto midnight of the next day.
func newSample(d types.Date, minute int, value float64) types.Sample {
	if minute >= 24*60 {
		d = d.AddDays(minute / (24 * 60))
		minute %= 24 * 60
	}
	return types.Sample{Date: d, Minute: minute, Value: value}
}

func sortSamples(samples []types.Sample) {
	slices.SortStableFunc(samples, func(a, b types.Sample) int {
		switch {
		case a.Date.Before(b.Date):
			return -1
		case b.Date.Before(a.Date):
			return 1
		default:
			return a.Minute - b.Minute
		}
	})
}

// flexNumber accepts numbers and numeric strings.
type flexNumber struct {
	value float64
	valid bool
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		n.value, n.valid = f, true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if f, ok := parseNumber(s); ok {
			n.value, n.valid = f, true
		}
	}
	// an invalid value only invalidates its row
	return nil
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	// decimal commas are common in SCADA exports
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
