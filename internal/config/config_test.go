package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// setupConfigDir clears the env the loader reads and chdirs into a fresh temp dir.
func setupConfigDir(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"OPENWEATHER_API_KEY", "WEATHER_API_KEY", "PORT", "ENV_NAME"} {
		t.Setenv(name, "")
	}

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	return dir
}

func TestLoad_DefaultsWhenNoConfigFile(t *testing.T) {
	setupConfigDir(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "3000" {
		t.Errorf("ServerPort = %q, want 3000", cfg.ServerPort)
	}
	if cfg.WeatherAPIKey != "" {
		t.Errorf("WeatherAPIKey = %q, want empty", cfg.WeatherAPIKey)
	}
	if cfg.CatalogLimit != 1302 || cfg.SpeciesIDCeiling != 1025 || cfg.SampleSize != 8 || cfg.HabitatLimit != 3 {
		t.Errorf("catalog defaults = %d/%d/%d/%d, want 1302/1025/8/3",
			cfg.CatalogLimit, cfg.SpeciesIDCeiling, cfg.SampleSize, cfg.HabitatLimit)
	}
	if !reflect.DeepEqual(cfg.DescriptionLanguages, []string{"pt", "en"}) {
		t.Errorf("DescriptionLanguages = %v, want [pt en]", cfg.DescriptionLanguages)
	}
	if cfg.RetryAttempts != 1 {
		t.Errorf("RetryAttempts = %d, want 1 (no retries)", cfg.RetryAttempts)
	}
	if !cfg.CircuitBreakerEnabled {
		t.Error("CircuitBreakerEnabled = false, want true")
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"*"}) {
		t.Errorf("AllowedOrigins = %v, want [*]", cfg.AllowedOrigins)
	}
}

func TestLoad_ReadsConfigFile(t *testing.T) {
	dir := setupConfigDir(t)
	writeEnvFile(t, dir, `
server:
  port: "9090"
  allowed_origins: ["http://globe.example"]
poke_api:
  sample_size: 4
  description_languages: ["en"]
weather_api:
  timeout: "3s"
  lang: "en"
autocomplete:
  limit: 10
reliability:
  retry_max_attempts: 3
  circuit_breaker:
    enabled: false
lifecycle:
  degraded_error_pct: 25
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"http://globe.example"}) {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.SampleSize != 4 {
		t.Errorf("SampleSize = %d, want 4", cfg.SampleSize)
	}
	if cfg.HabitatLimit != 3 {
		t.Errorf("HabitatLimit = %d, want default 3", cfg.HabitatLimit)
	}
	if cfg.WeatherAPITimeout != 3*time.Second || cfg.WeatherLang != "en" {
		t.Errorf("weather = %v/%q, want 3s/en", cfg.WeatherAPITimeout, cfg.WeatherLang)
	}
	if cfg.AutocompleteLimit != 10 {
		t.Errorf("AutocompleteLimit = %d, want 10", cfg.AutocompleteLimit)
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want 3", cfg.RetryAttempts)
	}
	if cfg.CircuitBreakerEnabled {
		t.Error("CircuitBreakerEnabled = true, want false")
	}
	if cfg.DegradedErrorPct != 25 {
		t.Errorf("DegradedErrorPct = %d, want 25", cfg.DegradedErrorPct)
	}
}

func TestLoad_PortEnvOverridesFile(t *testing.T) {
	dir := setupConfigDir(t)
	writeEnvFile(t, dir, "server:\n  port: \"9090\"\n")
	t.Setenv("PORT", "4000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "4000" {
		t.Errorf("ServerPort = %q, want 4000", cfg.ServerPort)
	}
}

func TestLoad_WeatherKeySources(t *testing.T) {
	tests := []struct {
		name        string
		openweather string
		weather     string
		secrets     string
		want        string
	}{
		{"none", "", "", "", ""},
		{"secrets file", "", "", "weather_api_key: from-secrets\n", "from-secrets"},
		{"WEATHER_API_KEY beats secrets", "", "from-env", "weather_api_key: from-secrets\n", "from-env"},
		{"OPENWEATHER_API_KEY first", "from-openweather", "from-env", "", "from-openweather"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupConfigDir(t)
			t.Setenv("OPENWEATHER_API_KEY", tt.openweather)
			t.Setenv("WEATHER_API_KEY", tt.weather)
			if tt.secrets != "" {
				writeSecretsFile(t, dir, tt.secrets)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.WeatherAPIKey != tt.want {
				t.Errorf("WeatherAPIKey = %q, want %q", cfg.WeatherAPIKey, tt.want)
			}
		})
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := setupConfigDir(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENWEATHER_API_KEY=from-dotenv\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// godotenv does not override set variables, and setupConfigDir sets them to "".
	os.Unsetenv("OPENWEATHER_API_KEY")
	t.Cleanup(func() { os.Unsetenv("OPENWEATHER_API_KEY") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "from-dotenv" {
		t.Errorf("WeatherAPIKey = %q, want from-dotenv", cfg.WeatherAPIKey)
	}
}

func TestLoad_EnvNameSelectsFile(t *testing.T) {
	dir := setupConfigDir(t)
	writeConfigFile(t, dir, "prod.yaml", "server:\n  port: \"8443\"\n")
	t.Setenv("ENV_NAME", "prod")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "8443" {
		t.Errorf("ServerPort = %q, want 8443", cfg.ServerPort)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	dir := setupConfigDir(t)
	writeEnvFile(t, dir, `
countries_api:
  timeout: "soon"
shutdown:
  timeout: "-5s"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CountriesAPITimeout != 20*time.Second {
		t.Errorf("CountriesAPITimeout = %v, want 20s", cfg.CountriesAPITimeout)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
}

func TestLoad_RequestTimeoutRaisedAboveUpstreamTimeout(t *testing.T) {
	dir := setupConfigDir(t)
	writeEnvFile(t, dir, `
request:
  timeout: "2s"
poke_api:
  timeout: "8s"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 9*time.Second {
		t.Errorf("RequestTimeout = %v, want 9s", cfg.RequestTimeout)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"zero weather timeout", "weather_api:\n  timeout: \"0s\"\n", "weather_api.timeout"},
		{"artwork without id verb", "poke_api:\n  artwork_url: \"https://img.example/x.png\"\n", "artwork_url"},
		{"icon without code verb", "weather_api:\n  icon_url: \"https://img.example/x.png\"\n", "icon_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupConfigDir(t)
			writeEnvFile(t, dir, tt.yaml)

			cfg, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error, got config %+v", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want message containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	dir := setupConfigDir(t)
	writeEnvFile(t, dir, "server: [unclosed\n")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("Load() error = %v, want parse config file error", err)
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	dir := setupConfigDir(t)
	writeSecretsFile(t, dir, "weather_api_key: [unclosed\n")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse secrets file") {
		t.Errorf("Load() error = %v, want parse secrets file error", err)
	}
}

// TestLoad_ProjectDevConfig keeps config/dev.yaml loadable.
func TestLoad_ProjectDevConfig(t *testing.T) {
	root := findProjectRoot(t)
	for _, name := range []string{"OPENWEATHER_API_KEY", "WEATHER_API_KEY", "PORT", "ENV_NAME"} {
		t.Setenv(name, "")
	}
	origWd, _ := os.Getwd()
	if err := os.Chdir(root); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "3000" {
		t.Errorf("ServerPort = %q, want 3000", cfg.ServerPort)
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	writeConfigFile(t, dir, "dev.yaml", content)
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	writeConfigFile(t, dir, "secrets.yaml", content)
}

func writeConfigFile(t *testing.T, dir, name, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// TestCoverageGaps_IntentionallyUntested documents paths we reviewed but chose not to test.
// Run with -v to see skip reasons.
func TestCoverageGaps_IntentionallyUntested(t *testing.T) {
	t.Run("Load_read_config_error", func(t *testing.T) {
		t.Skip("ReadFile error path (permission denied, etc.) requires injecting failure; not worth portability cost")
	})
	t.Run("loadWeatherAPIKey_read_error", func(t *testing.T) {
		t.Skip("same as Load_read_config_error")
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
