package service

import (
	"math"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// MapZoom is the fixed zoom level of the overview map tile.
const MapZoom = 2

// maxMercatorLat bounds latitude to the Web Mercator square.
const maxMercatorLat = 85.05

// TileCoordinates projects coord onto the slippy-map tile grid at zoom.
// Latitude is clamped to ±85.05 and the result to [0, 2^zoom-1], so the
// antimeridian (lon=180) maps to the last column.
func TileCoordinates(coord models.Coordinate, zoom int) (x, y int) {
	n := math.Exp2(float64(zoom))
	lat := math.Min(math.Max(coord.Lat, -maxMercatorLat), maxMercatorLat)
	latRad := lat * math.Pi / 180

	x = int(math.Floor((coord.Lon + 180) / 360 * n))
	y = int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))

	last := int(n) - 1
	return clampInt(x, 0, last), clampInt(y, 0, last)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
