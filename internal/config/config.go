package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort     string
	AllowedOrigins []string

	CountriesAPIURL     string
	CountriesAPITimeout time.Duration

	PokeAPIURL           string
	PokeAPITimeout       time.Duration
	CatalogLimit         int
	SpeciesIDCeiling     int
	SampleSize           int
	HabitatLimit         int
	DescriptionLanguages []string
	FallbackDescription  string
	ArtworkURL           string

	// WeatherAPIKey is optional; empty disables country-info.
	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	WeatherLang       string
	WeatherIconURL    string

	AutocompleteLimit int
	RequestTimeout    time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	WarmTimeout time.Duration

	ShutdownTimeout       time.Duration
	InFlightTimeout       time.Duration
	InFlightCheckInterval time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int
}

type fileConfig struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	CountriesAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"countries_api"`

	PokeAPI struct {
		URL                  string   `yaml:"url"`
		Timeout              string   `yaml:"timeout"`
		CatalogLimit         int      `yaml:"catalog_limit"`
		SpeciesIDCeiling     int      `yaml:"species_id_ceiling"`
		SampleSize           int      `yaml:"sample_size"`
		HabitatLimit         int      `yaml:"habitat_limit"`
		DescriptionLanguages []string `yaml:"description_languages"`
		FallbackDescription  string   `yaml:"fallback_description"`
		ArtworkURL           string   `yaml:"artwork_url"`
	} `yaml:"poke_api"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
		Lang    string `yaml:"lang"`
		IconURL string `yaml:"icon_url"`
	} `yaml:"weather_api"`

	Autocomplete struct {
		Limit int `yaml:"limit"`
	} `yaml:"autocomplete"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Startup struct {
		WarmTimeout string `yaml:"warm_timeout"`
	} `yaml:"startup"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"inflight_timeout"`
		InFlightCheckInterval string `yaml:"inflight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads .env, then config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// A missing config file means defaults. The weather key comes from OPENWEATHER_API_KEY,
// WEATHER_API_KEY or the secrets file and may be absent. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = strings.TrimSpace(os.Getenv("PORT"))
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "3000"
	}
	cfg.AllowedOrigins = fc.Server.AllowedOrigins
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	cfg.CountriesAPIURL = stringOr(fc.CountriesAPI.URL, "https://restcountries.com/v3.1/all")
	cfg.CountriesAPITimeout = parseDuration(fc.CountriesAPI.Timeout, 20*time.Second)

	cfg.PokeAPIURL = stringOr(fc.PokeAPI.URL, "https://pokeapi.co/api/v2")
	cfg.PokeAPITimeout = parseDuration(fc.PokeAPI.Timeout, 10*time.Second)
	cfg.CatalogLimit = intOr(fc.PokeAPI.CatalogLimit, 1302)
	cfg.SpeciesIDCeiling = intOr(fc.PokeAPI.SpeciesIDCeiling, 1025)
	cfg.SampleSize = intOr(fc.PokeAPI.SampleSize, 8)
	cfg.HabitatLimit = intOr(fc.PokeAPI.HabitatLimit, 3)
	cfg.DescriptionLanguages = fc.PokeAPI.DescriptionLanguages
	if len(cfg.DescriptionLanguages) == 0 {
		cfg.DescriptionLanguages = []string{"pt", "en"}
	}
	cfg.FallbackDescription = stringOr(fc.PokeAPI.FallbackDescription, "No description found.")
	cfg.ArtworkURL = stringOr(fc.PokeAPI.ArtworkURL,
		"https://raw.githubusercontent.com/PokeAPI/sprites/master/sprites/pokemon/other/official-artwork/%d.png")

	cfg.WeatherAPIKey, err = loadWeatherAPIKey(cwd)
	if err != nil {
		return nil, err
	}
	cfg.WeatherAPIURL = stringOr(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.WeatherLang = stringOr(fc.WeatherAPI.Lang, "pt_br")
	cfg.WeatherIconURL = stringOr(fc.WeatherAPI.IconURL, "https://openweathermap.org/img/wn/%s@2x.png")

	cfg.AutocompleteLimit = intOr(fc.Autocomplete.Limit, 5)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.RetryAttempts = intOr(fc.Reliability.RetryMaxAttempts, 1)
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = true
	if cb.Enabled != nil {
		cfg.CircuitBreakerEnabled = *cb.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = intOr(cb.FailureThreshold, 5)
	cfg.CircuitBreakerSuccessThreshold = intOr(cb.SuccessThreshold, 2)
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.WarmTimeout = parseDuration(fc.Startup.WarmTimeout, 60*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.InFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.InFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = intOr(fc.Lifecycle.DegradedErrorPct, 50)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadWeatherAPIKey checks OPENWEATHER_API_KEY, then WEATHER_API_KEY, then
// config/secrets.yaml. A missing key is not an error.
func loadWeatherAPIKey(cwd string) (string, error) {
	for _, name := range []string{"OPENWEATHER_API_KEY", "WEATHER_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, nil
		}
	}

	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	data, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

func stringOr(s, defaultVal string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return defaultVal
}

func intOr(n, defaultVal int) int {
	if n <= 0 {
		return defaultVal
	}
	return n
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. The request deadline must leave room for the
// slowest per-request upstream call, so RequestTimeout is raised when it would not.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	slowest := cfg.WeatherAPITimeout
	if cfg.PokeAPITimeout > slowest {
		slowest = cfg.PokeAPITimeout
	}
	if cfg.RequestTimeout <= slowest {
		cfg.RequestTimeout = slowest + time.Second
	}
	if !strings.Contains(cfg.ArtworkURL, "%d") {
		return fmt.Errorf("poke_api.artwork_url must contain %%d, got %q", cfg.ArtworkURL)
	}
	if !strings.Contains(cfg.WeatherIconURL, "%s") {
		return fmt.Errorf("weather_api.icon_url must contain %%s, got %q", cfg.WeatherIconURL)
	}
	return nil
}
