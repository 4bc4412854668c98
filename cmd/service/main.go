package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/pokeglobe-service/internal/cache"
	"github.com/kjstillabower/pokeglobe-service/internal/circuitbreaker"
	"github.com/kjstillabower/pokeglobe-service/internal/client"
	"github.com/kjstillabower/pokeglobe-service/internal/config"
	httphandler "github.com/kjstillabower/pokeglobe-service/internal/http"
	"github.com/kjstillabower/pokeglobe-service/internal/lifecycle"
	"github.com/kjstillabower/pokeglobe-service/internal/observability"
	"github.com/kjstillabower/pokeglobe-service/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	retry := client.RetryPolicy{
		Attempts:  cfg.RetryAttempts,
		BaseDelay: cfg.RetryBaseDelay,
		MaxDelay:  cfg.RetryMaxDelay,
	}

	countryClient, err := client.NewRestCountriesClient(cfg.CountriesAPIURL, cfg.CountriesAPITimeout, retry)
	if err != nil {
		logger.Fatal("countries client", zap.Error(err))
	}
	speciesClient, err := client.NewPokeAPIClient(cfg.PokeAPIURL, cfg.PokeAPITimeout, retry)
	if err != nil {
		logger.Fatal("pokeapi client", zap.Error(err))
	}
	if cfg.CircuitBreakerEnabled {
		speciesClient.SetCircuitBreaker(newCircuitBreaker(cfg, client.UpstreamPokeAPI))
	}

	weatherClient := newWeatherClient(cfg, retry, logger)
	if cfg.CircuitBreakerEnabled {
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	countries := cache.NewCountryCache()
	names := cache.NewNameCache()
	observability.RegisterCacheGauges(countries.Len, names.Len)

	svc := service.NewBiomeService(countries, names, speciesClient, weatherClient, service.Options{
		DescriptionLanguages: cfg.DescriptionLanguages,
		FallbackDescription:  cfg.FallbackDescription,
		HabitatLimit:         cfg.HabitatLimit,
		SpeciesIDCeiling:     cfg.SpeciesIDCeiling,
		SampleSize:           cfg.SampleSize,
		AutocompleteLimit:    cfg.AutocompleteLimit,
		ArtworkURL:           cfg.ArtworkURL,
		IconURL:              cfg.WeatherIconURL,
		CoalesceTimeout:      cfg.PokeAPITimeout,
	}, logger)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
	}
	handler := httphandler.NewHandler(svc, healthConfig, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Warming runs alongside the listener; until the country cache is ready, data
	// endpoints answer NOT_READY and /health reports warming.
	warmer := cache.NewWarmer(countries, names, countryClient, speciesClient, cache.WarmerConfig{
		CountriesTimeout: cfg.WarmTimeout,
		NamesTimeout:     cfg.WarmTimeout,
		CatalogLimit:     cfg.CatalogLimit,
	}, logger)
	warmed := warmer.Start(ctx, func(err error) {
		logger.Fatal("country cache unavailable, cannot serve", zap.Error(err))
	})
	go func() {
		<-warmed
		logger.Info("startup warming finished",
			zap.Int("countries", countries.Len()),
			zap.Int("species", names.Len()))
	}()

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()
	lifecycle.SetPhase(lifecycle.PhaseServing)

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetPhase(lifecycle.PhaseShuttingDown)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.InFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	logger.Info("shutdown complete")
	if err := observability.FlushTelemetry(logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

// newWeatherClient returns nil when weather is off: no key, or a key the client rejects.
// The rest of the service keeps running either way.
func newWeatherClient(cfg *config.Config, retry client.RetryPolicy, logger *zap.Logger) client.WeatherClient {
	if cfg.WeatherAPIKey == "" {
		logger.Warn("weather API key not configured; country-info will return WEATHER_NOT_CONFIGURED")
		return nil
	}
	wc, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherLang, cfg.WeatherAPITimeout, retry)
	if err != nil {
		logger.Warn("weather client disabled; country-info will return WEATHER_NOT_CONFIGURED", zap.Error(err))
		return nil
	}
	if cfg.CircuitBreakerEnabled {
		wc.SetCircuitBreaker(newCircuitBreaker(cfg, client.UpstreamWeather))
	}
	// Returned as the interface only when non-nil; a nil *OpenWeatherClient would read as configured.
	return wc
}

// newCircuitBreaker builds a breaker for one upstream that reports transitions to metrics.
func newCircuitBreaker(cfg *config.Config, upstream string) *circuitbreaker.CircuitBreaker {
	component := upstream + "_api"
	observability.CircuitBreakerState.WithLabelValues(component).Set(float64(circuitbreaker.StateClosed))
	return circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		Component:        component,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
		},
	})
}
