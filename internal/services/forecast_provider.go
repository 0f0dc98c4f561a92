package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"callsheet/internal/models"

	"golang.org/x/time/rate"
)

// DefaultForecastBaseURL is the public Open-Meteo API
const DefaultForecastBaseURL = "https://api.open-meteo.com"

// OpenMeteoProvider fetches daily forecasts from an Open-Meteo compatible API.
// One request covers the whole forward window, so a single call serves many days.
type OpenMeteoProvider struct {
	baseURL    string
	days       int
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewOpenMeteoProvider creates a provider limited to ratePerSecond requests (burst 1)
func NewOpenMeteoProvider(baseURL string, days int, ratePerSecond float64, timeout time.Duration) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = DefaultForecastBaseURL
	}
	if days <= 0 || days > 16 {
		days = 16
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenMeteoProvider{
		baseURL:    baseURL,
		days:       days,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), 1),
	}
}

type openMeteoResponse struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Daily            struct {
		Time                        []int64    `json:"time"`
		WeatherCode                 []*int     `json:"weather_code"`
		PrecipitationProbabilityMax []*float64 `json:"precipitation_probability_max"`
		Sunrise                     []int64    `json:"sunrise"`
		Sunset                      []int64    `json:"sunset"`
	} `json:"daily"`
	Hourly struct {
		Time       []int64    `json:"time"`
		CloudCover []*float64 `json:"cloud_cover"`
	} `json:"hourly"`
}

// DailyForecast implements ForecastProvider
func (p *OpenMeteoProvider) DailyForecast(ctx context.Context, at models.Coordinate) ([]models.DayForecast, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(at.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(at.Longitude, 'f', 4, 64))
	q.Set("daily", "weather_code,precipitation_probability_max,sunrise,sunset")
	q.Set("hourly", "cloud_cover")
	q.Set("timezone", "auto")
	q.Set("timeformat", "unixtime")
	q.Set("forecast_days", strconv.Itoa(p.days))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build forecast request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("forecast provider returned %d: %s", resp.StatusCode, string(body))
	}

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode forecast: %w", err)
	}
	return payload.forecasts(), nil
}

// forecasts turns the columnar response into one entry per day.
// Dates are set to local noon so they land on the right calendar day in any nearby zone.
func (r *openMeteoResponse) forecasts() []models.DayForecast {
	zone := time.FixedZone("forecast", r.UTCOffsetSeconds)
	out := make([]models.DayForecast, 0, len(r.Daily.Time))

	for i, ts := range r.Daily.Time {
		midnight := time.Unix(ts, 0).In(zone)
		f := models.DayForecast{
			Date: time.Date(midnight.Year(), midnight.Month(), midnight.Day(), 12, 0, 0, 0, zone),
		}

		code := -1
		if i < len(r.Daily.WeatherCode) && r.Daily.WeatherCode[i] != nil {
			code = *r.Daily.WeatherCode[i]
		}
		f.Condition, f.Symbol = describeWeatherCode(code)

		if i < len(r.Daily.PrecipitationProbabilityMax) && r.Daily.PrecipitationProbabilityMax[i] != nil {
			f.PrecipitationChance = *r.Daily.PrecipitationProbabilityMax[i] / 100
		}
		if i < len(r.Daily.Sunrise) {
			f.Sunrise = time.Unix(r.Daily.Sunrise[i], 0).In(zone)
		}
		if i < len(r.Daily.Sunset) {
			f.Sunset = time.Unix(r.Daily.Sunset[i], 0).In(zone)
		}
		f.CloudCover = r.daylightCloudCover(f.Sunrise, f.Sunset)

		out = append(out, f)
	}
	return out
}

// daylightCloudCover averages hourly cloud cover between sunrise and sunset, as 0..1
func (r *openMeteoResponse) daylightCloudCover(sunrise, sunset time.Time) float64 {
	if sunrise.IsZero() || !sunset.After(sunrise) {
		return 0
	}
	from, to := sunrise.Unix(), sunset.Unix()

	var sum float64
	var n int
	for i, ts := range r.Hourly.Time {
		if ts < from || ts >= to || i >= len(r.Hourly.CloudCover) || r.Hourly.CloudCover[i] == nil {
			continue
		}
		sum += *r.Hourly.CloudCover[i]
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) / 100
}

// describeWeatherCode maps a WMO weather interpretation code to a label and icon name
func describeWeatherCode(code int) (condition, symbol string) {
	switch code {
	case 0:
		return "Clear sky", "sun.max"
	case 1:
		return "Mainly clear", "sun.max"
	case 2:
		return "Partly cloudy", "cloud.sun"
	case 3:
		return "Overcast", "cloud"
	case 45, 48:
		return "Fog", "cloud.fog"
	case 51, 53, 55:
		return "Drizzle", "cloud.drizzle"
	case 56, 57:
		return "Freezing drizzle", "cloud.sleet"
	case 61, 63, 65:
		return "Rain", "cloud.rain"
	case 66, 67:
		return "Freezing rain", "cloud.sleet"
	case 71, 73, 75, 77:
		return "Snow", "cloud.snow"
	case 80, 81, 82:
		return "Rain showers", "cloud.heavyrain"
	case 85, 86:
		return "Snow showers", "cloud.snow"
	case 95:
		return "Thunderstorm", "cloud.bolt"
	case 96, 99:
		return "Thunderstorm with hail", "cloud.bolt.rain"
	}
	return "Unknown", "questionmark"
}
