package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

const weatherFlowBaseURL = "https://swd.weatherflow.com/swd/rest"

var ErrUnavailable = errors.New("weather provider unavailable")

// Client fetches current conditions from the WeatherFlow station observation
// API. Stateless; no retries, no history.
type Client struct {
	client *resty.Client
	apiKey string
}

func NewClient(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("weatherflow api key not provided")
	}
	return &Client{
		client: resty.New().SetBaseURL(weatherFlowBaseURL).SetTimeout(10 * time.Second),
		apiKey: apiKey,
	}, nil
}

func NewClientWithBaseURL(apiKey, baseURL string) (*Client, error) {
	c, err := NewClient(apiKey)
	if err != nil {
		return nil, err
	}
	c.client.SetBaseURL(baseURL)
	return c, nil
}

type Observation struct {
	AirTemperature         float64 `json:"air_temperature"`
	FeelsLike              float64 `json:"feels_like"`
	RelativeHumidity       float64 `json:"relative_humidity"`
	WindGust               float64 `json:"wind_gust"`
	WindDirection          float64 `json:"wind_direction"`
	SeaLevelPressure       float64 `json:"sea_level_pressure"`
	PrecipAccumLastHour    float64 `json:"precip_accum_last_1hr"`
	Precip                 float64 `json:"precip"`
	SolarRadiation         float64 `json:"solar_radiation"`
	UV                     float64 `json:"uv"`
	LightningLastDistance  float64 `json:"lightning_strike_last_distance"`
}

type StationObservation struct {
	PublicName string        `json:"public_name"`
	Obs        []Observation `json:"obs"`
}

func (c *Client) StationObservation(ctx context.Context, stationID string) (*StationObservation, error) {
	if stationID == "" {
		return nil, fmt.Errorf("weatherflow station id not provided")
	}

	var out StationObservation
	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("api_key", c.apiKey).
		SetResult(&out).
		Get(fmt.Sprintf("/observations/station/%s", stationID))
	if err != nil {
		slog.Error("weatherflow request failed", "station_id", stationID, "error", err)
		return nil, ErrUnavailable
	}
	if !res.IsSuccess() {
		slog.Error("weatherflow returned error status", "station_id", stationID, "status", res.StatusCode())
		return nil, ErrUnavailable
	}
	if len(out.Obs) == 0 {
		slog.Error("weatherflow response contained no observations", "station_id", stationID)
		return nil, ErrUnavailable
	}

	return &out, nil
}
