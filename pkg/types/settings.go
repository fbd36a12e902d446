package types

import (
	"fmt"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 4

// Settings holds the per-site tuning values of the load-profile pipeline.
// They are stored with the site and can be changed without redeploying.
type Settings struct {
	// Aggregation
	// Aggregated site days below this many kWh are treated as power outages.
	OutageThresholdKWh float64 `json:"outageThresholdKWh" toml:"outage_threshold_kwh"`
	// A tenant needs at least this many validated days before outlier days
	// are looked for.
	OutlierMinDays int `json:"outlierMinDays" toml:"outlier_min_days"`
	// A day is an outlier when its total is above Q3 + IQRMultiplier*IQR and
	// above MedianMultiplier times the median daily total.
	OutlierIQRMultiplier    float64 `json:"outlierIQRMultiplier" toml:"outlier_iqr_multiplier"`
	OutlierMedianMultiplier float64 `json:"outlierMedianMultiplier" toml:"outlier_median_multiplier"`

	// Envelope
	// Percentile days (0-100) reported as the min and max envelope curves.
	EnvelopeLowPercentile  float64 `json:"envelopeLowPercentile" toml:"envelope_low_percentile"`
	EnvelopeHighPercentile float64 `json:"envelopeHighPercentile" toml:"envelope_high_percentile"`
	// Applied to every composite hourly value.
	DiversityFactor float64 `json:"diversityFactor" toml:"diversity_factor"`
	// Used to convert kW to kVA for display.
	PowerFactor float64 `json:"powerFactor" toml:"power_factor"`
	// Per day-of-week (Sunday = 0) multipliers for estimated tenants in the
	// average-day view.
	DayMultipliers [7]float64 `json:"dayMultipliers" toml:"day_multipliers"`

	// Estimates
	// Intensity used for tenants without a shop type or override.
	DefaultKWhPerSqmMonth float64 `json:"defaultKWhPerSqmMonth" toml:"default_kwh_per_sqm_month"`

	// TOU calendar name, see the tou package.
	TOUCalendar string `json:"touCalendar" toml:"tou_calendar"`
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made, and an error if migration failed.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	// Loop through versions to apply migrations sequentially
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: aggregation filters
			if s.OutageThresholdKWh == 0 {
				s.OutageThresholdKWh = 75
				migrated = true
			}
			if s.OutlierMinDays == 0 {
				s.OutlierMinDays = 20
				migrated = true
			}
			if s.OutlierIQRMultiplier == 0 {
				s.OutlierIQRMultiplier = 3
				migrated = true
			}
			if s.OutlierMedianMultiplier == 0 {
				s.OutlierMedianMultiplier = 5
				migrated = true
			}
		case 2:
			// version 2: envelope percentiles and diversity
			if s.EnvelopeLowPercentile == 0 && s.EnvelopeHighPercentile == 0 {
				s.EnvelopeLowPercentile = 1
				s.EnvelopeHighPercentile = 99
				migrated = true
			}
			if s.DiversityFactor == 0 {
				s.DiversityFactor = 1.0
				migrated = true
			}
			if s.PowerFactor == 0 {
				s.PowerFactor = 0.9
				migrated = true
			}
		case 3:
			// version 3: day-of-week multipliers and default intensity
			if s.DayMultipliers == [7]float64{} {
				s.DayMultipliers = [7]float64{1, 1, 1, 1, 1, 1, 1}
				migrated = true
			}
			if s.DefaultKWhPerSqmMonth == 0 {
				s.DefaultKWhPerSqmMonth = 50
				migrated = true
			}
		case 4:
			if s.TOUCalendar == "" {
				s.TOUCalendar = "megaflex"
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}

// DefaultSettings returns fully migrated zero settings.
func DefaultSettings() Settings {
	s, _, err := MigrateSettings(Settings{}, 0)
	if err != nil {
		// every version up to CurrentSettingsVersion is handled above
		panic(err)
	}
	return s
}

// Validate checks the settings for values the pipeline cannot work with.
func (s Settings) Validate() error {
	if s.OutageThresholdKWh < 0 {
		return fmt.Errorf("outageThresholdKWh cannot be negative")
	}
	if s.EnvelopeLowPercentile < 0 || s.EnvelopeHighPercentile > 100 || s.EnvelopeLowPercentile > s.EnvelopeHighPercentile {
		return fmt.Errorf("invalid envelope percentiles: %v/%v", s.EnvelopeLowPercentile, s.EnvelopeHighPercentile)
	}
	if s.DiversityFactor <= 0 || s.DiversityFactor > 1 {
		return fmt.Errorf("diversityFactor must be in (0, 1]: %v", s.DiversityFactor)
	}
	if s.PowerFactor <= 0 || s.PowerFactor > 1 {
		return fmt.Errorf("powerFactor must be in (0, 1]: %v", s.PowerFactor)
	}
	return nil
}
