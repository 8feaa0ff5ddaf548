package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FailsWhenNoAPIKey(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Unsetenv("WEATHER_API_KEY")
	defer func() {
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when no WEATHER_API_KEY and no secrets file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "WEATHER_API_KEY") {
		t.Errorf("Load() error = %v, want message containing WEATHER_API_KEY", err)
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Unsetenv("WEATHER_API_KEY")
	defer func() {
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key-from-secrets-file\n")
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-secrets-file" {
		t.Errorf("WeatherAPIKey = %q, want key from secrets file", cfg.WeatherAPIKey)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	savedEnv := os.Getenv("ENV_NAME")
	os.Setenv("ENV_NAME", "nonexistent")
	defer func() {
		os.Setenv("ENV_NAME", savedEnv)
	}()

	origWd, _ := os.Getwd()
	os.Chdir(findProjectRoot(t))
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") && !strings.Contains(err.Error(), "config file") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_EmptyDurationFallsBackToDefault(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	defer func() {
		os.Unsetenv("WEATHER_API_KEY")
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	emptyDurationYAML := `
server:
  port: "8080"
weather_api:
  data_url: "https://api.example.com/data"
  timeout: ""
request:
  timeout: "5s"
cache:
  ttl: "5m"
reliability:
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, emptyDurationYAML)
	writeSecretsFile(t, dir, "weather_api_key: key\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPITimeout <= 0 {
		t.Error("Load() with empty duration should fall back to default (10s for weather_api.timeout)")
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	defer func() {
		os.Unsetenv("WEATHER_API_KEY")
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	invalidDurationYAML := `
server:
  port: "8080"
weather_api:
  data_url: "https://api.example.com/data"
  timeout: "2s"
request:
  timeout: "5s"
cache:
  ttl: "invalid"
reliability:
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, invalidDurationYAML)
	writeSecretsFile(t, dir, "weather_api_key: key\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}
	if cfg.CacheTTL <= 0 {
		t.Error("Load() with invalid duration should fall back to default CacheTTL")
	}
}

func TestLoad_ValidationFailsWhenWeatherAPITimeoutZero(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	defer func() {
		os.Unsetenv("WEATHER_API_KEY")
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	zeroTimeoutYAML := `
server:
  port: "8080"
weather_api:
  data_url: "https://api.example.com/data"
  timeout: "0s"
request:
  timeout: "5s"
cache:
  ttl: "5m"
reliability:
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, zeroTimeoutYAML)
	writeSecretsFile(t, dir, "weather_api_key: key\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when WeatherAPITimeout is zero, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "WEATHER_API_TIMEOUT") {
		t.Errorf("Load() error = %v, want message about WEATHER_API_TIMEOUT", err)
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Unsetenv("WEATHER_API_KEY")
	defer func() {
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "not valid: yaml: [[[")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid secrets YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "parse") && !strings.Contains(err.Error(), "secrets") {
		t.Errorf("Load() error = %v, want message about parse or secrets", err)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	defer func() {
		os.Unsetenv("WEATHER_API_KEY")
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	origWd, _ := os.Getwd()
	dir := t.TempDir()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte("not: valid: yaml: [[["), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid config YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "parse") && !strings.Contains(err.Error(), "config") {
		t.Errorf("Load() error = %v, want message about parse or config", err)
	}
}

func TestLoad_SucceedsWithEnvVar(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	defer func() {
		os.Unsetenv("WEATHER_API_KEY")
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	origWd, _ := os.Getwd()
	os.Chdir(findProjectRoot(t))
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}
	if cfg.WeatherAPIKey != "test-key-1234567890" {
		t.Errorf("WeatherAPIKey = %q, want test key", cfg.WeatherAPIKey)
	}
	if cfg.WeatherDataURL == "" || cfg.ServerPort == "" {
		t.Errorf("Load() did not populate config from config/dev.yaml")
	}
}

func TestLoad_HealthSearchLocationConfig(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key")
	defer func() {
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	extendedYAML := minimalEnvYAML + `
health:
  degraded_window: "30s"
  degraded_error_pct: 10
search:
  min_length: 2
  max_length: 40
  limit: 3
location:
  min_distance_meters: 750
  initial_authorization: "Granted"
  initial: { lat: 48.8566, lon: 2.3522 }
  nominatim:
    url: "http://nominatim.local"
    requests_per_sec: 2
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, extendedYAML)
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DegradedWindow != 30*time.Second {
		t.Errorf("DegradedWindow = %v, want 30s", cfg.DegradedWindow)
	}
	if cfg.DegradedErrorPct != 10 {
		t.Errorf("DegradedErrorPct = %d, want 10", cfg.DegradedErrorPct)
	}
	if cfg.SearchMinLength != 2 || cfg.SearchMaxLength != 40 || cfg.SearchLimit != 3 {
		t.Errorf("search = (%d, %d, %d), want (2, 40, 3)", cfg.SearchMinLength, cfg.SearchMaxLength, cfg.SearchLimit)
	}
	if cfg.LocationMinDistance != 750 {
		t.Errorf("LocationMinDistance = %v, want 750", cfg.LocationMinDistance)
	}
	if cfg.InitialAuthorization != "granted" {
		t.Errorf("InitialAuthorization = %q, want granted", cfg.InitialAuthorization)
	}
	if cfg.InitialLocation == nil || cfg.InitialLocation.Lat != 48.8566 || cfg.InitialLocation.Lon != 2.3522 {
		t.Errorf("InitialLocation = %v, want 48.8566,2.3522", cfg.InitialLocation)
	}
	if cfg.NominatimURL != "http://nominatim.local" || cfg.NominatimRPS != 2 {
		t.Errorf("nominatim = (%q, %v), want (http://nominatim.local, 2)", cfg.NominatimURL, cfg.NominatimRPS)
	}
	if cfg.NominatimUserAgent == "" {
		t.Error("NominatimUserAgent should default when omitted")
	}
}

func TestLoad_Defaults(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key")
	defer func() {
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, "server:\n  port: \"9090\"\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheTTL != 15*time.Minute {
		t.Errorf("CacheTTL = %v, want 15m", cfg.CacheTTL)
	}
	if cfg.CacheMaxEntries != 50 {
		t.Errorf("CacheMaxEntries = %d, want 50", cfg.CacheMaxEntries)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %q, want in_memory", cfg.CacheBackend)
	}
	if cfg.LocationMinDistance != 500 {
		t.Errorf("LocationMinDistance = %v, want 500", cfg.LocationMinDistance)
	}
	if cfg.InitialAuthorization != "not_determined" {
		t.Errorf("InitialAuthorization = %q, want not_determined", cfg.InitialAuthorization)
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		t.Errorf("RequestTimeout = %v, want > WeatherAPITimeout %v", cfg.RequestTimeout, cfg.WeatherAPITimeout)
	}
	if cfg.WarmingInterval != 0 || len(cfg.WarmingLocations) != 0 {
		t.Errorf("warming = (%v, %v), want disabled", cfg.WarmingInterval, cfg.WarmingLocations)
	}
}

func TestLoad_CacheBackendEnvOverrides(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "test-key")
	t.Setenv("CACHE_BACKEND", "Valkey")
	t.Setenv("VALKEY_ADDR", "valkey:6379")

	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheBackend != "valkey" {
		t.Errorf("CacheBackend = %q, want valkey", cfg.CacheBackend)
	}
	if cfg.ValkeyAddrs != "valkey:6379" {
		t.Errorf("ValkeyAddrs = %q, want valkey:6379", cfg.ValkeyAddrs)
	}
}

func TestLoad_WarmingLocations(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "test-key")

	warmingYAML := `
weather_api:
  timeout: "2s"
cache:
  ttl: "5m"
  warming:
    locations:
      - { lat: 51.5, lon: -0.12 }
      - { lat: 35.68, lon: 139.69 }
    interval: "10m"
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, warmingYAML)
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.WarmingLocations) != 2 {
		t.Fatalf("WarmingLocations = %v, want 2 entries", cfg.WarmingLocations)
	}
	if cfg.WarmingLocations[1].Lat != 35.68 || cfg.WarmingLocations[1].Lon != 139.69 {
		t.Errorf("WarmingLocations[1] = %v, want 35.68,139.69", cfg.WarmingLocations[1])
	}
	if cfg.WarmingInterval != 10*time.Minute {
		t.Errorf("WarmingInterval = %v, want 10m", cfg.WarmingInterval)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "test-key")

	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{"unknown backend", "", "cache.backend"},
		{"unknown authorization", "location:\n  initial_authorization: \"maybe\"\n", "initial_authorization"},
		{"search bounds inverted", "search:\n  min_length: 50\n  max_length: 10\n", "search.min_length"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantErr == "cache.backend" {
				t.Setenv("CACHE_BACKEND", "redis")
			}
			origWd, _ := os.Getwd()
			dir := t.TempDir()
			writeEnvFile(t, dir, minimalEnvYAML+tt.extra)
			os.Chdir(dir)
			defer os.Chdir(origWd)

			cfg, err := Load()
			if err == nil {
				t.Fatalf("Load() = %+v, want error", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want message containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_TestingModeDefaultsFalse(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key")
	defer func() {
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TestingMode {
		t.Error("TestingMode = true, want false when omitted (default)")
	}
}

func TestLoad_TestingModeTrue(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key")
	defer func() {
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	yamlWithTesting := minimalEnvYAML + "\ntesting_mode: true\n"
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, yamlWithTesting)
	writeSecretsFile(t, dir, "weather_api_key: key\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.TestingMode {
		t.Error("TestingMode = false, want true")
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
weather_api:
  data_url: "https://api.example.com/data"
  timeout: "2s"
request:
  timeout: "5s"
cache:
  ttl: "5m"
reliability:
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

// TestCoverageGaps_IntentionallyUntested documents paths we reviewed but chose not to test.
// Run with -v to see skip reasons. These gaps do not affect coverage targets.
func TestCoverageGaps_IntentionallyUntested(t *testing.T) {
	t.Run("loadAPIKeyFromSecrets_read_error", func(t *testing.T) {
		t.Skip("read-error path (non-IsNotExist) requires simulated ReadFile failure; would need OS-specific tricks or afero, not worth portability cost")
	})
	t.Run("Load_read_config_error", func(t *testing.T) {
		t.Skip("ReadFile error path (permission denied, etc.) same as loadAPIKeyFromSecrets; would require injecting failure")
	})
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
