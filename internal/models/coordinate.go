package models

import (
	"fmt"
	"strings"
)

// Coordinate is a latitude/longitude pair in degrees; the key for every
// weather lookup.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%g, %g)", c.Lat, c.Lon)
}

// MapLayer is an OpenWeatherMap tile layer.
type MapLayer string

const (
	LayerPrecipitation MapLayer = "precipitation_new"
	LayerTemperature   MapLayer = "temp_new"
	LayerPressure      MapLayer = "pressure_new"
	LayerWind          MapLayer = "wind_new"
	LayerClouds        MapLayer = "clouds_new"
)

// MapLayers lists the supported layers in display order.
var MapLayers = []MapLayer{LayerPrecipitation, LayerTemperature, LayerPressure, LayerWind, LayerClouds}

// ParseMapLayer accepts either the tile name ("temp_new") or the short name ("temperature").
func ParseMapLayer(s string) (MapLayer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "precipitation", string(LayerPrecipitation):
		return LayerPrecipitation, nil
	case "temperature", "temp", string(LayerTemperature):
		return LayerTemperature, nil
	case "pressure", string(LayerPressure):
		return LayerPressure, nil
	case "wind", string(LayerWind):
		return LayerWind, nil
	case "clouds", string(LayerClouds):
		return LayerClouds, nil
	}
	return "", fmt.Errorf("unknown map layer %q", s)
}
