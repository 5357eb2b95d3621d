package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Home    HomeConfig    `json:"home"`
	Engine  EngineConfig  `json:"engine"`
	OpenSky OpenSkyConfig `json:"opensky"`
	AeroAPI AeroAPIConfig `json:"aeroapi"`
	Cache   CacheConfig   `json:"cache"`
	Server  ServerConfig  `json:"server"`
	Display DisplayConfig `json:"display"`
}

// HomeConfig is the fixed observation point that all distances, bearings,
// and approach classifications are measured against.
type HomeConfig struct {
	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude"`
}

// EngineConfig tunes the fusion engine.
type EngineConfig struct {
	// RadiusKm is the tracking radius around home
	RadiusKm float64 `json:"radius_km"`

	// PollIntervalSeconds is how often the coarse source is polled
	PollIntervalSeconds int `json:"poll_interval_seconds"`

	// PollTimeoutSeconds bounds a single coarse request
	PollTimeoutSeconds int `json:"poll_timeout_seconds"`

	// ApproachToleranceDeg widens the tangential band around 90° of
	// bearing/heading divergence inside which an aircraft is classified
	// as neither approaching nor departing. Policy, not physics.
	ApproachToleranceDeg float64 `json:"approach_tolerance_deg"`
}

// OpenSkyConfig contains coarse-source (OpenSky Network) settings.
// Client credentials are optional; without them requests are anonymous
// and subject to the stricter anonymous rate limits.
type OpenSkyConfig struct {
	// ClientID for the OAuth2 client-credentials flow
	ClientID string `json:"client_id"`

	// ClientSecret for the OAuth2 client-credentials flow
	// (prefer the SKYFUSE_OPENSKY_CLIENT_SECRET environment variable)
	ClientSecret string `json:"client_secret"`

	// BaseURL overrides the API endpoint, mainly for testing
	BaseURL string `json:"base_url,omitempty"`
}

// AeroAPIConfig contains supplemental-source (FlightAware AeroAPI) settings.
type AeroAPIConfig struct {
	// Enabled determines whether supplemental enrichment runs at all
	Enabled bool `json:"enabled"`

	// APIKey for AeroAPI v4
	// (prefer the SKYFUSE_AEROAPI_KEY environment variable)
	APIKey string `json:"api_key"`

	// RequestsPerHour limits the API call rate.
	// Free tier: ~0.7 requests/hour (500/month)
	RequestsPerHour int `json:"requests_per_hour"`

	// Concurrency caps in-flight supplemental fetches
	Concurrency int `json:"concurrency"`

	// FetchTimeoutSeconds bounds a single supplemental request
	FetchTimeoutSeconds int `json:"fetch_timeout_seconds"`

	// FailureCooldownMinutes is how long a failed aircraft is left alone
	// before it becomes a fetch candidate again
	FailureCooldownMinutes int `json:"failure_cooldown_minutes"`

	// QuotaBackoffMinutes suspends the whole fetcher after the API
	// reports the quota exhausted
	QuotaBackoffMinutes int `json:"quota_backoff_minutes"`

	// BaseURL overrides the API endpoint, mainly for testing
	BaseURL string `json:"base_url,omitempty"`
}

// CacheConfig contains settings for the optional Postgres cache of
// supplemental flight details. The cache stretches a paid quota by
// reusing details fetched for a callsign within the TTL; the engine runs
// fully in-memory when disabled.
type CacheConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`

	// Password should be loaded from SKYFUSE_CACHE_PASSWORD
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-full)
	SSLMode string `json:"ssl_mode"`

	// TTLHours is how long a cached detail stays valid
	TTLHours int `json:"ttl_hours"`
}

// ServerConfig contains HTTP consumer-surface settings.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// DisplayConfig contains settings consumed by display clients, not the
// engine.
type DisplayConfig struct {
	// Count is how many closest aircraft the display shows
	Count int `json:"count"`

	// RefreshMillis is the display tick interval
	RefreshMillis int `json:"refresh_millis"`

	// QuietStart/QuietEnd define local hours (0-23) during which the
	// display dims itself. Equal values disable quiet hours.
	QuietStart int `json:"quiet_start"`
	QuietEnd   int `json:"quiet_end"`
}

// PollInterval returns the coarse poll interval as a Duration.
func (c EngineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// PollTimeout returns the per-cycle request timeout as a Duration.
func (c EngineConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSeconds) * time.Second
}

// FetchTimeout returns the per-fetch timeout as a Duration.
func (c AeroAPIConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// FailureCooldown returns the per-aircraft failure cooldown as a Duration.
func (c AeroAPIConfig) FailureCooldown() time.Duration {
	return time.Duration(c.FailureCooldownMinutes) * time.Minute
}

// QuotaBackoff returns the fetcher-wide quota backoff as a Duration.
func (c AeroAPIConfig) QuotaBackoff() time.Duration {
	return time.Duration(c.QuotaBackoffMinutes) * time.Minute
}

// TTL returns the cache entry lifetime as a Duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvironmentOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Home: HomeConfig{
			Latitude:  0.0,
			Longitude: 0.0,
		},
		Engine: EngineConfig{
			RadiusKm:             25.0,
			PollIntervalSeconds:  30,
			PollTimeoutSeconds:   15,
			ApproachToleranceDeg: 30.0,
		},
		OpenSky: OpenSkyConfig{},
		AeroAPI: AeroAPIConfig{
			Enabled:                false,
			RequestsPerHour:        10,
			Concurrency:            2,
			FetchTimeoutSeconds:    10,
			FailureCooldownMinutes: 15,
			QuotaBackoffMinutes:    60,
		},
		Cache: CacheConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     5432,
			Database: "skyfuse",
			Username: "skyfuse",
			SSLMode:  "disable",
			TTLHours: 6,
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		Display: DisplayConfig{
			Count:         3,
			RefreshMillis: 500,
			QuietStart:    0,
			QuietEnd:      0,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides.
// This allows secrets to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if id := os.Getenv("SKYFUSE_OPENSKY_CLIENT_ID"); id != "" {
		c.OpenSky.ClientID = id
	}
	if secret := os.Getenv("SKYFUSE_OPENSKY_CLIENT_SECRET"); secret != "" {
		c.OpenSky.ClientSecret = secret
	}
	if key := os.Getenv("SKYFUSE_AEROAPI_KEY"); key != "" {
		c.AeroAPI.APIKey = key
	}
	if pw := os.Getenv("SKYFUSE_CACHE_PASSWORD"); pw != "" {
		c.Cache.Password = pw
	}
	if port := os.Getenv("SKYFUSE_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
}
