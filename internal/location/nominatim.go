package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Placemark is the subset of a reverse-geocoding answer used for display names.
type Placemark struct {
	Locality           string
	SubLocality        string
	AdministrativeArea string
}

// ReverseGeocoder maps a coordinate to candidate placemarks, best first.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, coord models.Coordinate) ([]Placemark, error)
}

const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimConfig configures NominatimGeocoder. Zero values use defaults.
type NominatimConfig struct {
	BaseURL        string
	UserAgent      string
	RequestsPerSec float64
	Timeout        time.Duration
}

// NominatimGeocoder reverse-geocodes against OSM Nominatim, throttled to the
// service's usage policy (one request per second by default).
type NominatimGeocoder struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewNominatimGeocoder(config NominatimConfig) *NominatimGeocoder {
	if config.BaseURL == "" {
		config.BaseURL = DefaultNominatimURL
	}
	if config.UserAgent == "" {
		config.UserAgent = "weather-dashboard/1.0"
	}
	if config.RequestsPerSec == 0 {
		config.RequestsPerSec = 1
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &NominatimGeocoder{
		baseURL:   config.BaseURL,
		userAgent: config.UserAgent,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSec), 1),
	}
}

type nominatimAddress struct {
	City          string `json:"city"`
	Town          string `json:"town"`
	Village       string `json:"village"`
	Suburb        string `json:"suburb"`
	Neighbourhood string `json:"neighbourhood"`
	CityDistrict  string `json:"city_district"`
	State         string `json:"state"`
	County        string `json:"county"`
}

// ReverseGeocode returns at most one placemark. An empty slice means the
// service knows nothing at the coordinate (e.g. open sea).
func (n *NominatimGeocoder) ReverseGeocode(ctx context.Context, coord models.Coordinate) ([]Placemark, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"lat":    {strconv.FormatFloat(coord.Lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(coord.Lon, 'f', -1, 64)},
		"format": {"jsonv2"},
	}
	reqURL := fmt.Sprintf("%s/reverse?%s", n.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build reverse request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	var data struct {
		Error   string           `json:"error"`
		Address nominatimAddress `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode reverse response: %w", err)
	}
	if data.Error != "" {
		return nil, nil
	}

	a := data.Address
	return []Placemark{{
		Locality:           firstNonEmpty(a.City, a.Town, a.Village),
		SubLocality:        firstNonEmpty(a.Suburb, a.Neighbourhood, a.CityDistrict),
		AdministrativeArea: firstNonEmpty(a.State, a.County),
	}}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ ReverseGeocoder = (*NominatimGeocoder)(nil)
