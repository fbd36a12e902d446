package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/log"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/rawdata"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sites, err := s.storage.ListSites(ctx)
	if err != nil {
		writeStorageError(ctx, w, "failed to list sites", err)
		return
	}
	if sites == nil {
		sites = []types.Site{}
	}
	writeJSON(w, sites)
}

func (s *Server) handleUpsertSite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var site types.Site
	if err := json.NewDecoder(r.Body).Decode(&site); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	site.ID = r.PathValue("siteID")
	if strings.TrimSpace(site.ID) == "" {
		writeJSONError(w, "site id is required", http.StatusBadRequest)
		return
	}
	if err := s.storage.UpsertSite(ctx, site); err != nil {
		writeStorageError(ctx, w, "failed to save site", err)
		return
	}
	s.loadProfile.Invalidate(site.ID)
	log.Ctx(ctx).InfoContext(ctx, "site saved", slog.String("siteID", site.ID))
	writeJSON(w, site)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := s.loadProfile.Settings(ctx, r.PathValue("siteID"))
	if err != nil {
		writeStorageError(ctx, w, "failed to get settings", err)
		return
	}
	writeJSON(w, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := r.PathValue("siteID")
	if _, err := s.storage.GetSite(ctx, siteID); err != nil {
		writeStorageError(ctx, w, "failed to get site", err)
		return
	}

	// start from the current settings so partial updates keep other values
	settings, err := s.loadProfile.Settings(ctx, siteID)
	if err != nil {
		writeStorageError(ctx, w, "failed to get settings", err)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := settings.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.loadProfile.UpdateSettings(ctx, siteID, settings); err != nil {
		writeStorageError(ctx, w, "failed to save settings", err)
		return
	}
	writeJSON(w, settings)
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenants, err := s.storage.ListTenants(ctx, r.PathValue("siteID"))
	if err != nil {
		writeStorageError(ctx, w, "failed to list tenants", err)
		return
	}
	if tenants == nil {
		tenants = []types.Tenant{}
	}
	writeJSON(w, tenants)
}

func (s *Server) handleUpsertTenants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := r.PathValue("siteID")
	var tenants []types.Tenant
	if err := json.NewDecoder(r.Body).Decode(&tenants); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	for i, t := range tenants {
		if t.ID == "" {
			tenants[i].ID = uuid.NewString()
		}
		if t.AreaSqm < 0 {
			writeJSONError(w, "tenant area cannot be negative", http.StatusBadRequest)
			return
		}
	}
	if _, err := s.storage.GetSite(ctx, siteID); err != nil {
		writeStorageError(ctx, w, "failed to get site", err)
		return
	}
	for _, t := range tenants {
		if err := s.storage.UpsertTenant(ctx, siteID, t); err != nil {
			writeStorageError(ctx, w, "failed to save tenant", err)
			return
		}
	}
	s.loadProfile.Invalidate(siteID)
	writeJSON(w, tenants)
}

func (s *Server) handleListMeters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meters, err := s.storage.ListMeters(ctx, r.PathValue("siteID"))
	if err != nil {
		writeStorageError(ctx, w, "failed to list meters", err)
		return
	}
	if meters == nil {
		meters = []types.Meter{}
	}
	writeJSON(w, meters)
}

// meterImport is a meter together with its raw export.
type meterImport struct {
	types.Meter
	RawData json.RawMessage `json:"raw_data"`
}

type meterImportResponse struct {
	types.Meter
	Shape   string `json:"shape"`
	Samples int    `json:"samples"`
}

func (s *Server) handleImportMeter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := r.PathValue("siteID")
	var req meterImport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.RawData) == 0 {
		writeJSONError(w, "raw_data is required", http.StatusBadRequest)
		return
	}
	switch req.IntervalMinutes {
	case 0, 15, 30, 60:
	default:
		writeJSONError(w, "interval_minutes must be 15, 30 or 60", http.StatusBadRequest)
		return
	}
	if _, err := s.storage.GetSite(ctx, siteID); err != nil {
		writeStorageError(ctx, w, "failed to get site", err)
		return
	}

	meter := req.Meter
	if meter.ID == "" {
		meter.ID = uuid.NewString()
	}
	samples := rawdata.Parse(req.RawData)
	resp := meterImportResponse{
		Meter:   meter,
		Shape:   rawdata.Detect(req.RawData).String(),
		Samples: len(samples),
	}

	if err := s.storage.UpsertRawPayload(ctx, siteID, types.RawPayload{
		MeterID: meter.ID,
		Unit:    meter.Unit,
		Data:    req.RawData,
	}); err != nil {
		writeStorageError(ctx, w, "failed to save raw payload", err)
		return
	}
	if err := s.storage.UpsertMeter(ctx, siteID, meter); err != nil {
		writeStorageError(ctx, w, "failed to save meter", err)
		return
	}
	s.loadProfile.Invalidate(siteID)

	log.Ctx(ctx).InfoContext(
		ctx,
		"meter imported",
		slog.String("siteID", siteID),
		slog.String("meterID", meter.ID),
		slog.String("shape", resp.Shape),
		slog.Int("samples", resp.Samples),
	)
	writeJSON(w, resp)
}

func (s *Server) handleListShopTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopTypes, err := s.storage.ListShopTypes(ctx)
	if err != nil {
		writeStorageError(ctx, w, "failed to list shop types", err)
		return
	}
	if shopTypes == nil {
		shopTypes = []types.ShopType{}
	}
	writeJSON(w, shopTypes)
}

func (s *Server) handleUpsertShopTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var shopTypes []types.ShopType
	if err := json.NewDecoder(r.Body).Decode(&shopTypes); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	for _, st := range shopTypes {
		if st.ID == "" {
			writeJSONError(w, "shop type id is required", http.StatusBadRequest)
			return
		}
	}
	for _, st := range shopTypes {
		if err := s.storage.UpsertShopType(ctx, st); err != nil {
			writeStorageError(ctx, w, "failed to save shop type", err)
			return
		}
	}
	// shop types are part of every site's input hash
	writeJSON(w, shopTypes)
}
