package types

// IrradianceSource selects where PV generation shapes come from.
type IrradianceSource string

const (
	// IrradianceNone disables PV generation.
	IrradianceNone IrradianceSource = ""
	// IrradianceStatic uses the fixed clear-sky curve.
	IrradianceStatic IrradianceSource = "static"
	// IrradianceForecast fetches hourly GHI and temperature for the site.
	IrradianceForecast IrradianceSource = "forecast"
)

// DisplayUnit is the unit chart series are reported in.
type DisplayUnit string

const (
	DisplayKW  DisplayUnit = "kW"
	DisplayKVA DisplayUnit = "kVA"
)

// SimulationConfig is the immutable input of one PV/battery simulation run.
type SimulationConfig struct {
	// InverterKVA is the inverter AC output limit.
	InverterKVA float64 `json:"inverterKva"`
	// DCACRatio is installed DC capacity divided by the inverter AC limit.
	DCACRatio          float64          `json:"dcAcRatio"`
	BatteryCapacityKWh float64          `json:"batteryCapacityKwh"`
	BatteryPowerKW     float64          `json:"batteryPowerKw"`
	SystemLosses       float64          `json:"systemLosses"`
	PowerFactor        float64          `json:"powerFactor"`
	DiversityFactor    float64          `json:"diversityFactor"`
	IrradianceSource   IrradianceSource `json:"irradianceSource"`
}

// DCCapacityKWp returns the installed panel capacity.
func (c SimulationConfig) DCCapacityKWp() float64 {
	ratio := c.DCACRatio
	if ratio <= 0 {
		ratio = 1
	}
	return c.InverterKVA * ratio
}

// IrradianceProfile is an hourly generation shape for one representative day.
// NormalizedProfile is irradiance as a fraction of 1000 W/m^2.
type IrradianceProfile struct {
	NormalizedProfile HourlyProfile `json:"normalizedProfile"`
	HourlyTemp        HourlyProfile `json:"hourlyTemp"`
}

// Site is a commercial property whose tenants make up the load profile. Its
// Settings are stored separately with their version.
type Site struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// HasLocation reports whether the site has coordinates.
func (s Site) HasLocation() bool {
	return s.Latitude != 0 || s.Longitude != 0
}
