package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// testDatabase exercises a provider through the Database interface. Sites are
// prefixed so runs against a shared emulator do not collide.
func testDatabase(t *testing.T, db Database, prefix string) {
	ctx := context.Background()
	siteID := prefix + "site-a"

	t.Run("Settings", func(t *testing.T) {
		s, version, err := db.GetSettings(ctx, siteID)
		require.NoError(t, err)
		assert.Equal(t, 0, version)
		assert.Equal(t, types.Settings{}, s)

		settings := types.DefaultSettings()
		settings.DiversityFactor = 0.8
		require.NoError(t, db.SetSettings(ctx, siteID, settings, types.CurrentSettingsVersion))

		got, version, err := db.GetSettings(ctx, siteID)
		require.NoError(t, err)
		assert.Equal(t, types.CurrentSettingsVersion, version)
		assert.Equal(t, settings, got)

		settings.DiversityFactor = 0.7
		require.NoError(t, db.SetSettings(ctx, siteID, settings, types.CurrentSettingsVersion))
		got, _, err = db.GetSettings(ctx, siteID)
		require.NoError(t, err)
		assert.Equal(t, 0.7, got.DiversityFactor)
	})

	t.Run("EmptySiteID", func(t *testing.T) {
		_, _, err := db.GetSettings(ctx, "")
		assert.ErrorContains(t, err, "siteID cannot be empty")
		_, err = db.ListTenants(ctx, "")
		assert.ErrorContains(t, err, "siteID cannot be empty")
	})

	t.Run("Sites", func(t *testing.T) {
		_, err := db.GetSite(ctx, prefix+"missing")
		assert.ErrorIs(t, err, ErrSiteNotFound)

		site := types.Site{ID: siteID, Name: "Mall", Latitude: -26.1, Longitude: 28.0}
		require.NoError(t, db.UpsertSite(ctx, site))
		require.NoError(t, db.UpsertSite(ctx, types.Site{ID: prefix + "site-b", Name: "Centre"}))

		got, err := db.GetSite(ctx, siteID)
		require.NoError(t, err)
		assert.Equal(t, site, got)

		site.Name = "Mall North"
		require.NoError(t, db.UpsertSite(ctx, site))
		got, err = db.GetSite(ctx, siteID)
		require.NoError(t, err)
		assert.Equal(t, "Mall North", got.Name)

		sites, err := db.ListSites(ctx)
		require.NoError(t, err)
		ids := make(map[string]bool)
		for _, s := range sites {
			ids[s.ID] = true
		}
		assert.True(t, ids[siteID])
		assert.True(t, ids[prefix+"site-b"])
	})

	t.Run("TenantsAndMeters", func(t *testing.T) {
		override := 1200.0
		exclude := false
		tenants := []types.Tenant{
			{ID: "t2", Name: "Bakery", AreaSqm: 80, ShopTypeID: "food", MonthlyKWhOverride: &override},
			{ID: "t1", Name: "Grocer", AreaSqm: 400, Meters: []types.TenantMeter{{MeterID: "m1", Weight: 2}}},
			{ID: "t3", AreaSqm: 20, IncludeInLoadProfile: &exclude},
		}
		for _, tenant := range tenants {
			require.NoError(t, db.UpsertTenant(ctx, siteID, tenant))
		}
		assert.Error(t, db.UpsertTenant(ctx, siteID, types.Tenant{}))

		got, err := db.ListTenants(ctx, siteID)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "t1", got[0].ID)
		assert.Equal(t, "t2", got[1].ID)
		require.NotNil(t, got[1].MonthlyKWhOverride)
		assert.Equal(t, 1200.0, *got[1].MonthlyKWhOverride)
		assert.False(t, got[2].Included())

		other, err := db.ListTenants(ctx, prefix+"site-b")
		require.NoError(t, err)
		assert.Empty(t, other)

		require.NoError(t, db.UpsertMeter(ctx, siteID, types.Meter{ID: "m1", AreaSqm: 500, IntervalMinutes: 30, Unit: types.UnitKWh}))
		meters, err := db.ListMeters(ctx, siteID)
		require.NoError(t, err)
		require.Len(t, meters, 1)
		assert.Equal(t, 30, meters[0].IntervalMinutes)
	})

	t.Run("RawPayloads", func(t *testing.T) {
		_, err := db.GetRawPayload(ctx, siteID, "m-missing")
		assert.ErrorIs(t, err, ErrPayloadNotFound)

		data := json.RawMessage(`[{"date":"2024-03-01","time":"00:30","value":"1,5"}]`)
		require.NoError(t, db.UpsertRawPayload(ctx, siteID, types.RawPayload{MeterID: "m1", Unit: types.UnitKWh, Data: data}))

		got, err := db.GetRawPayload(ctx, siteID, "m1")
		require.NoError(t, err)
		assert.Equal(t, "m1", got.MeterID)
		assert.Equal(t, types.UnitKWh, got.Unit)
		assert.JSONEq(t, string(data), string(got.Data))
	})

	t.Run("ShopTypes", func(t *testing.T) {
		st := types.ShopType{ID: prefix + "food", Name: "Food", KWhPerSqmMonth: 80, Weekday: make([]float64, 24)}
		require.NoError(t, db.UpsertShopType(ctx, st))

		got, err := db.ListShopTypes(ctx)
		require.NoError(t, err)
		var found bool
		for _, s := range got {
			if s.ID == st.ID {
				found = true
				assert.Equal(t, 80.0, s.KWhPerSqmMonth)
				assert.Len(t, s.Weekday, 24)
			}
		}
		assert.True(t, found)
	})
}

func TestSQLiteProvider(t *testing.T) {
	s := NewSQLite(":memory:")
	require.NoError(t, s.Validate())
	require.NoError(t, s.Init(context.Background()))
	defer s.Close()

	testDatabase(t, s, "")

	t.Run("InitIsIdempotent", func(t *testing.T) {
		_, err := s.db.Exec(sqliteSchema)
		assert.NoError(t, err)
	})
}

func TestSQLiteValidate(t *testing.T) {
	assert.Error(t, NewSQLite("").Validate())
}
