package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/pokeglobe-service/internal/lifecycle"
	"github.com/kjstillabower/pokeglobe-service/internal/observability"
	"github.com/kjstillabower/pokeglobe-service/internal/service"
	"github.com/kjstillabower/pokeglobe-service/internal/traffic"
)

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	ServiceName      string
	DegradedWindow   time.Duration
	DegradedErrorPct int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc              *service.BiomeService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil, which disables the
// degraded check.
func NewHandler(svc *service.BiomeService, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		svc:          svc,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetCountryBiomes handles GET /api/country-biomes.
func (h *Handler) GetCountryBiomes(w http.ResponseWriter, r *http.Request) {
	biomes, err := h.svc.Biomes(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, biomes)
}

// GetCountryInfo handles GET /api/country-info/{code}.
func (h *Handler) GetCountryInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.CountryInfo(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetPokemonLocations handles GET /api/pokemon-locations?name=.
func (h *Handler) GetPokemonLocations(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.PokemonLocations(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetPokemonByCountry handles GET /api/pokemon-by-country?countryCode=.
func (h *Handler) GetPokemonByCountry(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.PokemonByCountry(r.Context(), r.URL.Query().Get("countryCode"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AutocompletePokemon handles GET /api/autocomplete/pokemon?query=.
func (h *Handler) AutocompletePokemon(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.AutocompletePokemon(r.URL.Query().Get("query")))
}

// AutocompleteCountry handles GET /api/autocomplete/country?query=.
func (h *Handler) AutocompleteCountry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.AutocompleteCountry(r.URL.Query().Get("query")))
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result, checks := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	serviceName := "pokeglobe-service"
	if h.healthConfig != nil && h.healthConfig.ServiceName != "" {
		serviceName = h.healthConfig.ServiceName
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   serviceName,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in priority order: shutting-down > warming > degraded >
// healthy. Checks are reported for every cache and every upstream seen so far.
func (h *Handler) computeHealthStatus() (healthResult, map[string]string) {
	checks := make(map[string]string)

	countriesReady, namesReady := h.svc.Readiness()
	checks["countryCache"] = readyLabel(countriesReady)
	checks["nameCache"] = readyLabel(namesReady)
	if !h.svc.WeatherConfigured() {
		checks["weather"] = "not_configured"
	}

	degradedUpstream := ""
	for _, upstream := range traffic.Upstreams() {
		if h.upstreamDegraded(upstream) {
			checks[upstream] = "unhealthy"
			if degradedUpstream == "" {
				degradedUpstream = upstream
			}
		} else {
			checks[upstream] = "healthy"
		}
	}

	switch {
	case lifecycle.IsShuttingDown():
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}, checks
	case !countriesReady:
		return healthResult{"warming", http.StatusServiceUnavailable, "country_cache_not_ready"}, checks
	case degradedUpstream != "":
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach:" + degradedUpstream}, checks
	}
	return healthResult{"healthy", http.StatusOK, ""}, checks
}

func (h *Handler) upstreamDegraded(upstream string) bool {
	if h.healthConfig == nil || h.healthConfig.DegradedWindow <= 0 || h.healthConfig.DegradedErrorPct <= 0 {
		return false
	}
	errs, total := traffic.ErrorRate(upstream, h.healthConfig.DegradedWindow)
	if total == 0 {
		return false
	}
	return float64(errs)*100/float64(total) >= float64(h.healthConfig.DegradedErrorPct)
}

func readyLabel(ready bool) string {
	if ready {
		return "ready"
	}
	return "warming"
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// serviceErrors maps service sentinels to status, code and, when set, a fixed message.
// An empty message means the error text is safe to show the caller.
var serviceErrors = []struct {
	err     error
	status  int
	code    string
	message string
}{
	{service.ErrNameRequired, http.StatusBadRequest, "NAME_REQUIRED", ""},
	{service.ErrCountryNotFound, http.StatusNotFound, "COUNTRY_NOT_FOUND", ""},
	{service.ErrSpeciesNotFound, http.StatusNotFound, "SPECIES_NOT_FOUND", ""},
	{service.ErrNoHabitat, http.StatusNotFound, "HABITAT_NOT_FOUND", ""},
	{service.ErrWeatherNotConfigured, http.StatusInternalServerError, "WEATHER_NOT_CONFIGURED", "Weather API key is not configured"},
	{service.ErrNotReady, http.StatusServiceUnavailable, "NOT_READY", "Country data is not ready yet"},
}

// writeServiceError maps a service error to its HTTP response. Anything unrecognised is an
// upstream failure; the service has already logged it with its context.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			writeError(w, r, m.status, m.code, msg)
			return
		}
	}
	observability.LoggerFromContext(r.Context(), nil).Debug("request failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "UPSTREAM_ERROR", "Unable to reach upstream data source")
}
