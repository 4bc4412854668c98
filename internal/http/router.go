package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/pokeglobe-service/internal/observability"
)

// RouterConfig carries the settings the router needs beyond the handler.
type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter wires every route with its middleware. CORS wraps the router so that
// preflight requests are answered before route matching. logger may be nil.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/country-biomes", h.GetCountryBiomes).Methods(http.MethodGet)
	api.HandleFunc("/country-info/{code}", h.GetCountryInfo).Methods(http.MethodGet)
	api.HandleFunc("/pokemon-locations", h.GetPokemonLocations).Methods(http.MethodGet)
	api.HandleFunc("/pokemon-by-country", h.GetPokemonByCountry).Methods(http.MethodGet)
	api.HandleFunc("/autocomplete/pokemon", h.AutocompletePokemon).Methods(http.MethodGet)
	api.HandleFunc("/autocomplete/country", h.AutocompleteCountry).Methods(http.MethodGet)

	return CORSMiddleware(cfg.AllowedOrigins)(router)
}
