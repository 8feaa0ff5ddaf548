package models

import (
	"fmt"
	"slices"
	"time"
)

// Coordinates is the OpenWeatherMap "coord" object.
type Coordinates struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

type WeatherCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type MainWeatherData struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	Humidity  int     `json:"humidity"`
	SeaLevel  *int    `json:"sea_level,omitempty"`
	GrndLevel *int    `json:"grnd_level,omitempty"`
}

// Equal compares all fields, dereferencing the optional pressure levels.
func (m MainWeatherData) Equal(o MainWeatherData) bool {
	return m.Temp == o.Temp &&
		m.FeelsLike == o.FeelsLike &&
		m.TempMin == o.TempMin &&
		m.TempMax == o.TempMax &&
		m.Pressure == o.Pressure &&
		m.Humidity == o.Humidity &&
		equalIntPtr(m.SeaLevel, o.SeaLevel) &&
		equalIntPtr(m.GrndLevel, o.GrndLevel)
}

type Wind struct {
	Speed float64  `json:"speed"`
	Deg   int      `json:"deg"`
	Gust  *float64 `json:"gust,omitempty"`
}

type Clouds struct {
	All int `json:"all"`
}

type Sys struct {
	Type    *int    `json:"type,omitempty"`
	ID      *int    `json:"id,omitempty"`
	Country string  `json:"country"`
	Sunrise float64 `json:"sunrise"`
	Sunset  float64 `json:"sunset"`
}

// CurrentWeather is the /weather response.
type CurrentWeather struct {
	Coord      Coordinates        `json:"coord"`
	Weather    []WeatherCondition `json:"weather"`
	Base       string             `json:"base"`
	Main       MainWeatherData    `json:"main"`
	Visibility int                `json:"visibility"`
	Wind       Wind               `json:"wind"`
	Clouds     Clouds             `json:"clouds"`
	Dt         float64            `json:"dt"`
	Sys        Sys                `json:"sys"`
	Timezone   int                `json:"timezone"`
	ID         int                `json:"id,omitempty"`
	Name       string             `json:"name"`
}

// Equal reports whether two observations are the same reading: same time,
// place, main block, and conditions.
func (c CurrentWeather) Equal(o CurrentWeather) bool {
	return c.Dt == o.Dt &&
		c.Name == o.Name &&
		c.Main.Equal(o.Main) &&
		slices.Equal(c.Weather, o.Weather)
}

func (c CurrentWeather) Date() time.Time { return unixTime(c.Dt) }

// IconURL returns the icon for the first condition, or "" when there is none.
func (c CurrentWeather) IconURL() string { return iconURL(c.Weather) }

// City is the "city" object shared by forecast and alerts responses.
type City struct {
	ID         int         `json:"id"`
	Name       string      `json:"name"`
	Coord      Coordinates `json:"coord"`
	Country    string      `json:"country"`
	Population int         `json:"population"`
	Timezone   int         `json:"timezone"`
	Sunrise    float64     `json:"sunrise"`
	Sunset     float64     `json:"sunset"`
}

type ForecastItem struct {
	Dt         float64            `json:"dt"`
	Main       MainWeatherData    `json:"main"`
	Weather    []WeatherCondition `json:"weather"`
	Clouds     Clouds             `json:"clouds"`
	Wind       Wind               `json:"wind"`
	Visibility int                `json:"visibility"`
	Pop        float64            `json:"pop"`
	DtTxt      string             `json:"dt_txt"`
}

func (f ForecastItem) Equal(o ForecastItem) bool {
	return f.Dt == o.Dt &&
		f.DtTxt == o.DtTxt &&
		f.Main.Equal(o.Main) &&
		slices.Equal(f.Weather, o.Weather)
}

func (f ForecastItem) Date() time.Time { return unixTime(f.Dt) }

func (f ForecastItem) IconURL() string { return iconURL(f.Weather) }

// ForecastResponse is the /forecast response (3-hourly, five days).
type ForecastResponse struct {
	List []ForecastItem `json:"list"`
	City City           `json:"city"`
}

func (f ForecastResponse) Equal(o ForecastResponse) bool {
	return f.City == o.City && slices.EqualFunc(f.List, o.List, ForecastItem.Equal)
}

type AirQualityMain struct {
	AQI int `json:"aqi"`
}

type AirQualityComponents struct {
	CO   float64 `json:"co"`
	NO   float64 `json:"no"`
	NO2  float64 `json:"no2"`
	O3   float64 `json:"o3"`
	SO2  float64 `json:"so2"`
	PM25 float64 `json:"pm2_5"`
	PM10 float64 `json:"pm10"`
	NH3  float64 `json:"nh3"`
}

type AirQualityData struct {
	Main       AirQualityMain       `json:"main"`
	Components AirQualityComponents `json:"components"`
	Dt         float64              `json:"dt"`
}

func (a AirQualityData) Equal(o AirQualityData) bool {
	return a.Dt == o.Dt && a.Main == o.Main && a.Components == o.Components
}

func (a AirQualityData) Date() time.Time { return unixTime(a.Dt) }

// QualityLevel names the AQI band (1 Good through 5 Very Poor).
func (a AirQualityData) QualityLevel() string {
	switch a.Main.AQI {
	case 1:
		return "Good"
	case 2:
		return "Fair"
	case 3:
		return "Moderate"
	case 4:
		return "Poor"
	case 5:
		return "Very Poor"
	default:
		return "Unknown"
	}
}

// AirQualityResponse is the /air_pollution response.
type AirQualityResponse struct {
	List []AirQualityData `json:"list"`
}

func (a AirQualityResponse) Equal(o AirQualityResponse) bool {
	return slices.EqualFunc(a.List, o.List, AirQualityData.Equal)
}

type WeatherAlert struct {
	SenderName  string   `json:"sender_name"`
	Event       string   `json:"event"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func (w WeatherAlert) Equal(o WeatherAlert) bool {
	return w.Start == o.Start &&
		w.End == o.End &&
		w.Event == o.Event &&
		w.SenderName == o.SenderName
}

func (w WeatherAlert) StartDate() time.Time { return unixTime(w.Start) }

func (w WeatherAlert) EndDate() time.Time { return unixTime(w.End) }

// AlertsResponse carries alerts for a city. Alerts is nil when the source
// reported none.
type AlertsResponse struct {
	Alerts []WeatherAlert `json:"alerts"`
	City   City           `json:"city"`
}

func (a AlertsResponse) Equal(o AlertsResponse) bool {
	return a.City == o.City && slices.EqualFunc(a.Alerts, o.Alerts, WeatherAlert.Equal)
}

// GeocodingResult is one entry of the /geo/1.0/direct response.
type GeocodingResult struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   *string `json:"state,omitempty"`
}

func (g GeocodingResult) Equal(o GeocodingResult) bool {
	return g.Name == o.Name &&
		g.Lat == o.Lat &&
		g.Lon == o.Lon &&
		g.Country == o.Country &&
		equalStringPtr(g.State, o.State)
}

// DisplayName renders "name, state, country", omitting a missing state.
func (g GeocodingResult) DisplayName() string {
	if g.State != nil {
		return fmt.Sprintf("%s, %s, %s", g.Name, *g.State, g.Country)
	}
	return fmt.Sprintf("%s, %s", g.Name, g.Country)
}

func (g GeocodingResult) Coordinate() Coordinate {
	return Coordinate{Lat: g.Lat, Lon: g.Lon}
}

// GeocodingResults is the ordered result list of a search.
type GeocodingResults []GeocodingResult

func (g GeocodingResults) Equal(o GeocodingResults) bool {
	return slices.EqualFunc(g, o, GeocodingResult.Equal)
}

func unixTime(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second))).UTC()
}

func iconURL(conditions []WeatherCondition) string {
	if len(conditions) == 0 {
		return ""
	}
	return "https://openweathermap.org/img/wn/" + conditions[0].Icon + "@2x.png"
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
