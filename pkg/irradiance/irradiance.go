// Package irradiance supplies the normalized generation shape and air
// temperatures the simulator runs on.
package irradiance

import (
	"context"
	"errors"
	"fmt"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/metrics"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// StandardIrradiance is the irradiance, in W/m², that produces rated output.
const StandardIrradiance = 1000.0

// ErrNoLocation is returned when a forecast is requested for a site without
// coordinates.
var ErrNoLocation = errors.New("site has no location for an irradiance forecast")

// Request describes the profile wanted for a site.
type Request struct {
	Latitude  float64
	Longitude float64
	Start     types.Date
	End       types.Date
}

// Provider returns an hourly irradiance profile.
type Provider interface {
	Profile(ctx context.Context, req Request) (types.IrradianceProfile, error)
}

// Service resolves an irradiance source to a profile.
type Service struct {
	static   Provider
	forecast Provider
}

// NewService returns a Service with the given forecast provider.
func NewService(forecast Provider) *Service {
	return &Service{static: Static{}, forecast: forecast}
}

// Configured registers the forecast provider flags and returns the Service.
func Configured(m *metrics.Metrics) *Service {
	return NewService(configuredOpenMeteo(m))
}

// Validate ensures the configuration is valid.
func (s *Service) Validate() error {
	if v, ok := s.forecast.(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}

// Profile returns the profile for a source. IrradianceNone returns nil so
// the simulator runs without PV; a profile is never made up for it.
func (s *Service) Profile(ctx context.Context, source types.IrradianceSource, req Request) (*types.IrradianceProfile, error) {
	var p Provider
	switch source {
	case types.IrradianceNone:
		return nil, nil
	case types.IrradianceStatic:
		p = s.static
	case types.IrradianceForecast:
		if req.Latitude == 0 && req.Longitude == 0 {
			return nil, ErrNoLocation
		}
		p = s.forecast
	default:
		return nil, fmt.Errorf("unknown irradiance source: %q", source)
	}
	profile, err := p.Profile(ctx, req)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Static is a fixed clear-sky curve for a South African site, with no
// temperature derating.
type Static struct{}

var staticCurve = types.HourlyProfile{
	0, 0, 0, 0, 0, 0.02,
	0.08, 0.22, 0.40, 0.58, 0.72, 0.81,
	0.84, 0.81, 0.72, 0.58, 0.40, 0.22,
	0.08, 0.02, 0, 0, 0, 0,
}

// Profile implements Provider.
func (Static) Profile(context.Context, Request) (types.IrradianceProfile, error) {
	return types.IrradianceProfile{NormalizedProfile: staticCurve}, nil
}
