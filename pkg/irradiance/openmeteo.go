package irradiance

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/levenlabs/go-lflag"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/common"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/log"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/metrics"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// OpenMeteo fetches hourly global horizontal irradiance and air temperature
// from the Open-Meteo API and reduces them to an average day.
type OpenMeteo struct {
	apiURL   string
	timezone string
	client   *http.Client
	metrics  *metrics.Metrics

	cache *expirable.LRU[string, types.IrradianceProfile]
}

// NewOpenMeteo returns a provider against apiURL with a one hour cache.
func NewOpenMeteo(apiURL string, client *http.Client, m *metrics.Metrics) *OpenMeteo {
	return &OpenMeteo{
		apiURL:   apiURL,
		timezone: "Africa/Johannesburg",
		client:   client,
		metrics:  m,
		cache:    expirable.NewLRU[string, types.IrradianceProfile](256, nil, time.Hour),
	}
}

// configuredOpenMeteo sets up flags for Open-Meteo and returns the instance.
func configuredOpenMeteo(m *metrics.Metrics) *OpenMeteo {
	o := NewOpenMeteo("", common.HTTPClient(15*time.Second), m)
	apiURL := lflag.String("open-meteo-api-url", "https://api.open-meteo.com/v1/forecast", "URL for the Open-Meteo forecast API")
	timezone := lflag.String("open-meteo-timezone", "Africa/Johannesburg", "Timezone hourly irradiance is reported in")

	lflag.Do(func() {
		o.apiURL = *apiURL
		o.timezone = *timezone
	})
	return o
}

// Validate ensures the configuration is valid.
func (o *OpenMeteo) Validate() error {
	if o.apiURL == "" {
		return fmt.Errorf("open-meteo-api-url is required")
	}
	if _, err := url.Parse(o.apiURL); err != nil {
		return fmt.Errorf("failed to parse open-meteo url (%s): %w", o.apiURL, err)
	}
	if _, err := time.LoadLocation(o.timezone); err != nil {
		return fmt.Errorf("invalid open-meteo-timezone (%s): %w", o.timezone, err)
	}
	return nil
}

type openMeteoResponse struct {
	Hourly struct {
		Time               []string   `json:"time"`
		ShortwaveRadiation []*float64 `json:"shortwave_radiation"`
		Temperature        []*float64 `json:"temperature_2m"`
	} `json:"hourly"`
}

func cacheKey(req Request) string {
	// two decimals is roughly 1km, well within the forecast grid
	return fmt.Sprintf("%.2f,%.2f,%s,%s", req.Latitude, req.Longitude, req.Start, req.End)
}

// Profile implements Provider. Missing readings are skipped when averaging.
func (o *OpenMeteo) Profile(ctx context.Context, req Request) (types.IrradianceProfile, error) {
	key := cacheKey(req)
	if p, ok := o.cache.Get(key); ok {
		o.metrics.CacheHit("irradiance")
		return p, nil
	}
	o.metrics.CacheMiss("irradiance")

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(req.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(req.Longitude, 'f', 4, 64))
	q.Set("hourly", "shortwave_radiation,temperature_2m")
	q.Set("timezone", o.timezone)
	if !req.Start.IsZero() {
		q.Set("start_date", req.Start.String())
	}
	if !req.End.IsZero() {
		q.Set("end_date", req.End.String())
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"fetching irradiance forecast",
		slog.Float64("lat", req.Latitude),
		slog.Float64("lon", req.Longitude),
		slog.String("start", req.Start.String()),
		slog.String("end", req.End.String()),
	)

	var resp openMeteoResponse
	if err := common.GetJSON(ctx, o.client, o.apiURL+"?"+q.Encode(), &resp); err != nil {
		o.metrics.IrradianceError()
		return types.IrradianceProfile{}, fmt.Errorf("failed to fetch irradiance: %w", err)
	}

	p, err := reduceHourly(resp)
	if err != nil {
		o.metrics.IrradianceError()
		return types.IrradianceProfile{}, err
	}
	o.cache.Add(key, p)
	return p, nil
}

// reduceHourly averages the hourly series by hour of day and normalizes the
// irradiance by StandardIrradiance.
func reduceHourly(resp openMeteoResponse) (types.IrradianceProfile, error) {
	var ghi, temp types.HourlyProfile
	var ghiN, tempN [types.HoursPerDay]int
	for i, ts := range resp.Hourly.Time {
		t, err := time.Parse("2006-01-02T15:04", ts)
		if err != nil {
			continue
		}
		h := t.Hour()
		if i < len(resp.Hourly.ShortwaveRadiation) && resp.Hourly.ShortwaveRadiation[i] != nil {
			ghi[h] += *resp.Hourly.ShortwaveRadiation[i]
			ghiN[h]++
		}
		if i < len(resp.Hourly.Temperature) && resp.Hourly.Temperature[i] != nil {
			temp[h] += *resp.Hourly.Temperature[i]
			tempN[h]++
		}
	}

	var total int
	var out types.IrradianceProfile
	for h := range out.NormalizedProfile {
		if ghiN[h] > 0 {
			out.NormalizedProfile[h] = max(ghi[h]/float64(ghiN[h]), 0) / StandardIrradiance
		}
		if tempN[h] > 0 {
			out.HourlyTemp[h] = temp[h] / float64(tempN[h])
		}
		total += ghiN[h]
	}
	if total == 0 {
		return types.IrradianceProfile{}, fmt.Errorf("irradiance response has no readings")
	}
	return out, nil
}
