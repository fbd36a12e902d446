package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSettings(t *testing.T) {
	t.Run("v1: aggregation defaults", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{}, 0)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 75.0, s.OutageThresholdKWh)
		assert.Equal(t, 20, s.OutlierMinDays)
		assert.Equal(t, 3.0, s.OutlierIQRMultiplier)
		assert.Equal(t, 5.0, s.OutlierMedianMultiplier)
	})

	t.Run("v1 to v2: keeps explicit percentiles", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{EnvelopeLowPercentile: 5, EnvelopeHighPercentile: 95}, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 5.0, s.EnvelopeLowPercentile)
		assert.Equal(t, 95.0, s.EnvelopeHighPercentile)
		assert.Equal(t, 1.0, s.DiversityFactor)
		assert.Equal(t, 0.9, s.PowerFactor)
	})

	t.Run("v2 to v4: multipliers and calendar", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{}, 2)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, [7]float64{1, 1, 1, 1, 1, 1, 1}, s.DayMultipliers)
		assert.Equal(t, 50.0, s.DefaultKWhPerSqmMonth)
		assert.Equal(t, "megaflex", s.TOUCalendar)
		// earlier versions are not re-applied
		assert.Zero(t, s.OutageThresholdKWh)
	})

	t.Run("no change: current version", func(t *testing.T) {
		current := Settings{OutageThresholdKWh: 10, TOUCalendar: "megaflex"}
		s, changed, err := MigrateSettings(current, CurrentSettingsVersion)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, current, s)
	})
}

func TestSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())

	s := DefaultSettings()
	s.EnvelopeLowPercentile = 99
	s.EnvelopeHighPercentile = 1
	assert.Error(t, s.Validate())

	s = DefaultSettings()
	s.DiversityFactor = 1.5
	assert.Error(t, s.Validate())

	s = DefaultSettings()
	s.PowerFactor = 0
	assert.Error(t, s.Validate())
}
