package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

const (
	// DefaultTTL is the age after which an entry is treated as absent.
	DefaultTTL = 15 * time.Minute
	// DefaultMaxEntries bounds the in-memory backend.
	DefaultMaxEntries = 50
)

// Cache stores encoded payloads keyed by Key, GeocodingKey, or TileKey.
// Get and IsValid treat entries older than the TTL as absent; Get also removes them.
// Implementations must be safe for concurrent use.
type Cache interface {
	Put(ctx context.Context, key string, value []byte, now time.Time) error
	Get(ctx context.Context, key string, now time.Time) ([]byte, bool, error)
	IsValid(ctx context.Context, key string, now time.Time) (bool, error)
	Clear(ctx context.Context) error
}

// Resource identifies one of the four per-coordinate data sets.
type Resource string

const (
	ResourceCurrent    Resource = "current"
	ResourceForecast   Resource = "forecast"
	ResourceAirQuality Resource = "airquality"
	ResourceAlerts     Resource = "alerts"
)

// Resources lists the per-query resources in slot order.
var Resources = []Resource{ResourceCurrent, ResourceForecast, ResourceAirQuality, ResourceAlerts}

// Key returns "<resource>-<lat>-<lon>". The resource prefix keeps kinds from
// colliding at the same coordinate.
func Key(r Resource, c models.Coordinate) string {
	return string(r) + "-" + formatFloat(c.Lat) + "-" + formatFloat(c.Lon)
}

// GeocodingKey returns "geocoding-<query>".
func GeocodingKey(query string) string {
	return "geocoding-" + query
}

// TileKey returns "map-<layer>-<zoom>-<x>-<y>".
func TileKey(layer models.MapLayer, zoom, x, y int) string {
	return strings.Join([]string{"map", string(layer), strconv.Itoa(zoom), strconv.Itoa(x), strconv.Itoa(y)}, "-")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Entry is a stored payload with its insertion time.
type Entry struct {
	Payload    []byte    `json:"payload"`
	InsertedAt time.Time `json:"inserted_at"`
}

// expired reports whether an entry inserted at insertedAt is past ttl at now.
func expired(insertedAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(insertedAt) > ttl
}
