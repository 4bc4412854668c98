//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/pokeglobe-service/internal/cache"
	"github.com/kjstillabower/pokeglobe-service/internal/client"
	"github.com/kjstillabower/pokeglobe-service/internal/observability"
	"github.com/kjstillabower/pokeglobe-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	CountriesURL string
	PokeAPIURL   string
	// WeatherAPIKey is optional; without it the service runs with no weather client.
	WeatherAPIKey string
	WeatherAPIURL string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test unless POKEGLOBE_INTEGRATION is set, since every test hits live APIs.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	if os.Getenv("POKEGLOBE_INTEGRATION") == "" {
		t.Skip("POKEGLOBE_INTEGRATION not set, skipping integration test")
	}

	cfg := IntegrationTestConfig{
		CountriesURL:  envOr("COUNTRIES_API_URL", "https://restcountries.com/v3.1/all"),
		PokeAPIURL:    envOr("POKEAPI_URL", "https://pokeapi.co/api/v2"),
		WeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		WeatherAPIURL: envOr("WEATHER_API_URL", "https://api.openweathermap.org/data/2.5/weather"),
	}
	if cfg.WeatherAPIKey == "" {
		cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SetupIntegrationService builds a BiomeService over live upstreams and warms both
// caches before returning.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) *service.BiomeService {
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	countryClient, err := client.NewRestCountriesClient(cfg.CountriesURL, 20*time.Second, client.NoRetry)
	if err != nil {
		t.Fatalf("NewRestCountriesClient() error = %v", err)
	}
	speciesClient, err := client.NewPokeAPIClient(cfg.PokeAPIURL, 10*time.Second, client.NoRetry)
	if err != nil {
		t.Fatalf("NewPokeAPIClient() error = %v", err)
	}

	var weatherClient client.WeatherClient
	if cfg.WeatherAPIKey != "" {
		wc, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, "pt_br", 5*time.Second, client.NoRetry)
		if err != nil {
			t.Fatalf("NewOpenWeatherClient() error = %v", err)
		}
		weatherClient = wc
	}

	countries := cache.NewCountryCache()
	names := cache.NewNameCache()
	warmer := cache.NewWarmer(countries, names, countryClient, speciesClient, cache.WarmerConfig{
		CountriesTimeout: 30 * time.Second,
		NamesTimeout:     30 * time.Second,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := warmer.WarmCountries(ctx); err != nil {
		t.Fatalf("WarmCountries() error = %v", err)
	}
	if err := warmer.WarmNames(ctx); err != nil {
		t.Logf("WarmNames() error = %v, autocomplete will be empty", err)
	}

	return service.NewBiomeService(countries, names, speciesClient, weatherClient, service.DefaultOptions(), logger)
}
