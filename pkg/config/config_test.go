package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig verifies defaults are sane.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine.PollIntervalSeconds != 30 {
		t.Errorf("Expected 30s poll interval, got %d", cfg.Engine.PollIntervalSeconds)
	}
	if cfg.Engine.RadiusKm <= 0 {
		t.Error("Expected positive tracking radius")
	}
	if cfg.Engine.ApproachToleranceDeg <= 0 || cfg.Engine.ApproachToleranceDeg >= 90 {
		t.Errorf("Approach tolerance out of range: %f", cfg.Engine.ApproachToleranceDeg)
	}
	if cfg.AeroAPI.Enabled {
		t.Error("AeroAPI should be disabled by default (it costs money)")
	}
	if cfg.AeroAPI.Concurrency <= 0 {
		t.Error("Expected positive fetch concurrency")
	}
	if cfg.Cache.Enabled {
		t.Error("Cache should be disabled by default")
	}
}

// TestLoadMissingFile verifies a missing config file yields defaults.
func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Engine.PollIntervalSeconds != DefaultConfig().Engine.PollIntervalSeconds {
		t.Error("Expected default config for missing file")
	}
}

// TestSaveAndLoad verifies round-tripping through a file.
func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "skyfuse.json")

	cfg := DefaultConfig()
	cfg.Home.Latitude = 44.56
	cfg.Home.Longitude = -123.26
	cfg.Engine.RadiusKm = 40.0
	cfg.AeroAPI.Enabled = true

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Home.Latitude != 44.56 || loaded.Home.Longitude != -123.26 {
		t.Errorf("Home round-trip mismatch: %+v", loaded.Home)
	}
	if loaded.Engine.RadiusKm != 40.0 {
		t.Errorf("Expected radius 40, got %f", loaded.Engine.RadiusKm)
	}
	if !loaded.AeroAPI.Enabled {
		t.Error("AeroAPI enabled flag lost in round-trip")
	}
	// Fields absent from the file keep their defaults.
	if loaded.Engine.PollIntervalSeconds != 30 {
		t.Errorf("Expected default poll interval, got %d", loaded.Engine.PollIntervalSeconds)
	}
}

// TestPartialFileKeepsDefaults verifies unspecified sections fall back to
// defaults instead of zero values.
func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")
	partial := `{"home": {"latitude": 40.0, "longitude": -74.0}}`
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Home.Latitude != 40.0 {
		t.Errorf("Expected home latitude 40, got %f", cfg.Home.Latitude)
	}
	if cfg.Engine.PollIntervalSeconds != 30 {
		t.Errorf("Expected default poll interval, got %d", cfg.Engine.PollIntervalSeconds)
	}
	if cfg.Cache.Port != 5432 {
		t.Errorf("Expected default cache port, got %d", cfg.Cache.Port)
	}
}

// TestEnvironmentOverrides verifies secrets come from the environment.
func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SKYFUSE_OPENSKY_CLIENT_ID", "env-client")
	t.Setenv("SKYFUSE_OPENSKY_CLIENT_SECRET", "env-secret")
	t.Setenv("SKYFUSE_AEROAPI_KEY", "env-key")
	t.Setenv("SKYFUSE_CACHE_PASSWORD", "env-pass")
	t.Setenv("SKYFUSE_PORT", "9191")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.OpenSky.ClientID != "env-client" || cfg.OpenSky.ClientSecret != "env-secret" {
		t.Errorf("OpenSky credentials not overridden: %+v", cfg.OpenSky)
	}
	if cfg.AeroAPI.APIKey != "env-key" {
		t.Errorf("AeroAPI key not overridden: %q", cfg.AeroAPI.APIKey)
	}
	if cfg.Cache.Password != "env-pass" {
		t.Error("Cache password not overridden")
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Expected port 9191, got %d", cfg.Server.Port)
	}
}
