package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/envelope"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/irradiance"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/loadprofile"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// parseFilter reads the from, to, months and days query values.
func parseFilter(r *http.Request) (envelope.Filter, error) {
	q := r.URL.Query()
	return loadprofile.ParseFilter(q.Get("from"), q.Get("to"), q.Get("months"), q.Get("days"))
}

func parseOptionalDate(s string) (types.Date, error) {
	if s == "" {
		return types.Date{}, nil
	}
	return types.ParseDate(s)
}

type seriesDay struct {
	Date  types.Date          `json:"date"`
	Hours types.HourlyProfile `json:"hours"`
	Total float64             `json:"total"`
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start, err := parseOptionalDate(r.URL.Query().Get("start"))
	if err != nil {
		writeJSONError(w, "invalid start date", http.StatusBadRequest)
		return
	}
	end, err := parseOptionalDate(r.URL.Query().Get("end"))
	if err != nil {
		writeJSONError(w, "invalid end date", http.StatusBadRequest)
		return
	}
	series, err := s.loadProfile.Series(ctx, r.PathValue("siteID"), start, end)
	if err != nil {
		writeStorageError(ctx, w, "failed to load site series", err)
		return
	}
	days := make([]seriesDay, 0, len(series))
	for _, d := range series.Dates() {
		days = append(days, seriesDay{Date: d, Hours: series[d], Total: series[d].Total()})
	}
	writeJSON(w, days)
}

func (s *Server) handleEnvelope(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := parseFilter(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	view, err := s.loadProfile.Envelope(ctx, r.PathValue("siteID"), f)
	if err != nil {
		writeStorageError(ctx, w, "failed to compute envelope", err)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleStacked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := parseFilter(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode, err := envelope.ParseStackMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	view, err := s.loadProfile.Stacked(ctx, r.PathValue("siteID"), f, mode)
	if err != nil {
		writeStorageError(ctx, w, "failed to compute stacked view", err)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := parseFilter(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	months, err := s.loadProfile.Monthly(ctx, r.PathValue("siteID"), f)
	if err != nil {
		writeStorageError(ctx, w, "failed to compute monthly view", err)
		return
	}
	if months == nil {
		months = []envelope.MonthStat{}
	}
	writeJSON(w, months)
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, err := types.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeJSONError(w, "invalid date", http.StatusBadRequest)
		return
	}
	view, err := s.loadProfile.Day(ctx, r.PathValue("siteID"), d)
	if err != nil {
		writeStorageError(ctx, w, "failed to compute day view", err)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loadprofile.SimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	switch req.Config.IrradianceSource {
	case types.IrradianceNone, types.IrradianceStatic, types.IrradianceForecast:
	default:
		writeJSONError(w, "unknown irradiance source", http.StatusBadRequest)
		return
	}
	switch req.Unit {
	case "", types.DisplayKW, types.DisplayKVA:
	default:
		writeJSONError(w, "unit must be kW or kVA", http.StatusBadRequest)
		return
	}
	result, err := s.loadProfile.Simulate(ctx, r.PathValue("siteID"), req)
	if err != nil {
		if errors.Is(err, irradiance.ErrNoLocation) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeStorageError(ctx, w, "failed to simulate", err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	s.loadProfile.Invalidate(r.PathValue("siteID"))
	w.WriteHeader(http.StatusNoContent)
}
