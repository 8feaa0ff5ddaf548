package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/weathererr"
)

// WeatherClient issues one remote request per call and decodes the typed response.
// It neither caches nor retries.
type WeatherClient interface {
	CurrentWeather(ctx context.Context, lat, lon float64) (models.CurrentWeather, error)
	Forecast(ctx context.Context, lat, lon float64) (models.ForecastResponse, error)
	AirQuality(ctx context.Context, lat, lon float64) (models.AirQualityResponse, error)
	Alerts(ctx context.Context, lat, lon float64) (models.AlertsResponse, error)
	Geocode(ctx context.Context, query string, limit int) (models.GeocodingResults, error)
	TileURL(layer models.MapLayer, zoom, x, y int) (string, error)
	FetchTile(ctx context.Context, layer models.MapLayer, zoom, x, y int) ([]byte, error)
}

var ErrInvalidAPIKey = errors.New("invalid API key")

const (
	DefaultDataURL = "https://api.openweathermap.org/data/2.5"
	DefaultGeoURL  = "https://api.openweathermap.org/geo/1.0"
	DefaultTileURL = "https://tile.openweathermap.org/map"
)

// Endpoints holds the base URLs of the three OpenWeatherMap services.
// Empty fields use the public defaults.
type Endpoints struct {
	DataURL string
	GeoURL  string
	TileURL string
}

type OpenWeatherClient struct {
	apiKey    string
	endpoints Endpoints
	client    *http.Client
}

func NewOpenWeatherClient(apiKey string, endpoints Endpoints, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if endpoints.DataURL == "" {
		endpoints.DataURL = DefaultDataURL
	}
	if endpoints.GeoURL == "" {
		endpoints.GeoURL = DefaultGeoURL
	}
	if endpoints.TileURL == "" {
		endpoints.TileURL = DefaultTileURL
	}

	return &OpenWeatherClient{
		apiKey:    apiKey,
		endpoints: endpoints,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (c *OpenWeatherClient) CurrentWeather(ctx context.Context, lat, lon float64) (models.CurrentWeather, error) {
	var out models.CurrentWeather
	err := c.getJSON(ctx, "weather", c.endpoints.DataURL, "weather", coordParams(lat, lon), &out)
	return out, err
}

func (c *OpenWeatherClient) Forecast(ctx context.Context, lat, lon float64) (models.ForecastResponse, error) {
	var out models.ForecastResponse
	err := c.getJSON(ctx, "forecast", c.endpoints.DataURL, "forecast", coordParams(lat, lon), &out)
	return out, err
}

func (c *OpenWeatherClient) AirQuality(ctx context.Context, lat, lon float64) (models.AirQualityResponse, error) {
	var out models.AirQualityResponse
	err := c.getJSON(ctx, "air_pollution", c.endpoints.DataURL, "air_pollution", coordParams(lat, lon), &out)
	return out, err
}

// Alerts has no dedicated free endpoint: it fetches the current weather, builds
// the City from it, and returns an empty alert list. Errors are those of
// CurrentWeather.
func (c *OpenWeatherClient) Alerts(ctx context.Context, lat, lon float64) (models.AlertsResponse, error) {
	current, err := c.CurrentWeather(ctx, lat, lon)
	if err != nil {
		return models.AlertsResponse{}, err
	}
	return models.AlertsResponse{City: cityFromCurrent(current)}, nil
}

// cityFromCurrent uses the reported city id, or a random one in 1000..9999
// when the response carries none.
func cityFromCurrent(cw models.CurrentWeather) models.City {
	id := cw.ID
	if id == 0 {
		id = 1000 + rand.Intn(9000)
	}
	return models.City{
		ID:       id,
		Name:     cw.Name,
		Coord:    cw.Coord,
		Country:  cw.Sys.Country,
		Timezone: cw.Timezone,
		Sunrise:  cw.Sys.Sunrise,
		Sunset:   cw.Sys.Sunset,
	}
}

func (c *OpenWeatherClient) Geocode(ctx context.Context, query string, limit int) (models.GeocodingResults, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	var out models.GeocodingResults
	err := c.getJSON(ctx, "geocoding", c.endpoints.GeoURL, "direct", params, &out)
	return out, err
}

// TileURL builds {tileURL}/{layer}/{zoom}/{x}/{y}.png?appid=KEY. It performs no request.
func (c *OpenWeatherClient) TileURL(layer models.MapLayer, zoom, x, y int) (string, error) {
	u, err := c.buildURL(c.endpoints.TileURL, url.Values{},
		string(layer), strconv.Itoa(zoom), strconv.Itoa(x), strconv.Itoa(y)+".png")
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// FetchTile downloads the PNG for a tile.
func (c *OpenWeatherClient) FetchTile(ctx context.Context, layer models.MapLayer, zoom, x, y int) ([]byte, error) {
	u, err := c.buildURL(c.endpoints.TileURL, url.Values{},
		string(layer), strconv.Itoa(zoom), strconv.Itoa(x), strconv.Itoa(y)+".png")
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("tile", "error").Inc()
		return nil, err
	}
	return c.do(ctx, "tile", u, "image/png")
}

// ValidateAPIKey issues a single current-weather request and reports a rejected key.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.CurrentWeather(ctx, 51.5074, -0.1278)
	var apiErr *weathererr.Error
	if errors.As(err, &apiErr) && apiErr.Kind == weathererr.KindAPI && apiErr.Message == "Status code: 401" {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	return nil
}

func coordParams(lat, lon float64) url.Values {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("units", "metric")
	return params
}

func (c *OpenWeatherClient) buildURL(base string, params url.Values, elem ...string) (*url.URL, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, weathererr.New(weathererr.KindInvalidURL, err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, weathererr.New(weathererr.KindInvalidURL, fmt.Errorf("base URL %q is not absolute", base))
	}
	u := baseURL.JoinPath(elem...)
	params.Set("appid", c.apiKey)
	u.RawQuery = params.Encode()
	return u, nil
}

func (c *OpenWeatherClient) getJSON(ctx context.Context, endpoint, base, path string, params url.Values, out any) error {
	u, err := c.buildURL(base, params, path)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return err
	}
	body, err := c.do(ctx, endpoint, u, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return weathererr.New(weathererr.KindInvalidData, fmt.Errorf("decode %s: %w", endpoint, err))
	}
	return nil
}

// do performs the GET and maps failures onto the weathererr taxonomy. A
// cancelled ctx surfaces as a Network error wrapping context.Canceled.
func (c *OpenWeatherClient) do(ctx context.Context, endpoint string, u *url.URL, accept string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, weathererr.New(weathererr.KindInvalidURL, err)
	}
	req.Header.Set("Accept", accept)
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)
		return nil, weathererr.Network(err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, weathererr.New(weathererr.KindInvalidResponse, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errorFromBody(resp.StatusCode, body)
	}
	return body, nil
}

// errorFromBody prefers the server's {"message": ...} text over the bare status code.
func errorFromBody(statusCode int, body []byte) error {
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return weathererr.API(apiErr.Message)
	}
	return weathererr.APIStatus(statusCode)
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

var _ WeatherClient = (*OpenWeatherClient)(nil)
