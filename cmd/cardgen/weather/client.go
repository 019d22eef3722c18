package weather

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skylens/weathercard/common/clients"
	"github.com/skylens/weathercard/common/config"
	"github.com/skylens/weathercard/common/logger"
)

// Info is the resolved weather summary for a city
type Info struct {
	City             string    `json:"city"`
	ResolvedCityName string    `json:"resolved_city_name"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Date             time.Time `json:"date"`
	ConditionText    string    `json:"condition_text"`
	ConditionIcon    string    `json:"condition_icon"`
	TempMin          float64   `json:"temp_min"`
	TempMax          float64   `json:"temp_max"`
	CurrentTemp      float64   `json:"current_temp"`
}

type geocodeResult struct {
	Name        string  `json:"name"`
	CountryCode string  `json:"country_code"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type geocodeResponse struct {
	Results []geocodeResult `json:"results"`
}

type forecastResponse struct {
	Current *struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	Daily *struct {
		Time        []string  `json:"time"`
		TempMax     []float64 `json:"temperature_2m_max"`
		TempMin     []float64 `json:"temperature_2m_min"`
		WeatherCode []int     `json:"weather_code"`
	} `json:"daily"`
}

// Client resolves a free-text city name to coordinates and a current/
// daily weather summary via the Open-Meteo APIs
type Client struct {
	http *clients.HTTPClient
	cfg  config.WeatherConfig
	log  *logger.Logger
}

// NewClient creates a weather client
func NewClient(cfg config.WeatherConfig, log *logger.Logger) *Client {
	return &Client{
		http: clients.NewHTTPClient(&http.Client{Timeout: cfg.Timeout}, log),
		cfg:  cfg,
		log:  log,
	}
}

// Current fetches today's weather for a city. Any error here is
// non-fatal to the generation pipeline.
func (c *Client) Current(ctx context.Context, city string) (*Info, error) {
	geo, err := c.resolveCity(ctx, city)
	if err != nil {
		return nil, err
	}

	forecast, err := c.fetchForecast(ctx, geo.Latitude, geo.Longitude)
	if err != nil {
		return nil, err
	}

	current := forecast.Current
	daily := forecast.Daily
	if current == nil || daily == nil || len(daily.Time) == 0 ||
		len(daily.TempMin) == 0 || len(daily.TempMax) == 0 {
		return nil, fmt.Errorf("incomplete weather data for %s", city)
	}

	code := current.WeatherCode
	if len(daily.WeatherCode) > 0 {
		code = daily.WeatherCode[0]
	}
	cond := ConditionForCode(code)

	date, err := time.Parse("2006-01-02", daily.Time[0])
	if err != nil {
		date = time.Now()
	}

	return &Info{
		City:             city,
		ResolvedCityName: geo.Name,
		Latitude:         geo.Latitude,
		Longitude:        geo.Longitude,
		Date:             date,
		ConditionText:    cond.Text,
		ConditionIcon:    cond.Icon,
		TempMin:          math.Round(daily.TempMin[0]),
		TempMax:          math.Round(daily.TempMax[0]),
		CurrentTemp:      math.Round(current.Temperature),
	}, nil
}

// resolveCity geocodes a city name, preferring a mainland China match
// over the first result
func (c *Client) resolveCity(ctx context.Context, city string) (*geocodeResult, error) {
	query := strings.TrimSuffix(city, "市")

	u := fmt.Sprintf("%s?name=%s&count=10&language=zh&format=json",
		c.cfg.GeocodeBaseURL, url.QueryEscape(query))

	var resp geocodeResponse
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("geocode %s: %w", city, err)
	}

	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("no coordinates found for %s", city)
	}

	for i := range resp.Results {
		if resp.Results[i].CountryCode == "CN" {
			return &resp.Results[i], nil
		}
	}
	return &resp.Results[0], nil
}

func (c *Client) fetchForecast(ctx context.Context, lat, lon float64) (*forecastResponse, error) {
	u := fmt.Sprintf("%s?latitude=%f&longitude=%f"+
		"&current=temperature_2m,weather_code"+
		"&daily=weather_code,temperature_2m_max,temperature_2m_min"+
		"&forecast_days=1&timezone=%s",
		c.cfg.ForecastBaseURL, lat, lon, url.QueryEscape(c.cfg.Timezone))

	var resp forecastResponse
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}
	return &resp, nil
}
