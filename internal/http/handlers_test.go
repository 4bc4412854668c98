package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/pokeglobe-service/internal/cache"
	"github.com/kjstillabower/pokeglobe-service/internal/client"
	"github.com/kjstillabower/pokeglobe-service/internal/lifecycle"
	"github.com/kjstillabower/pokeglobe-service/internal/models"
	"github.com/kjstillabower/pokeglobe-service/internal/service"
	"github.com/kjstillabower/pokeglobe-service/internal/traffic"
)

type mockWeatherClient struct {
	obs models.WeatherObservation
	err error
}

func (m *mockWeatherClient) GetCurrentWeather(ctx context.Context, city string) (models.WeatherObservation, error) {
	return m.obs, m.err
}

type mockSpeciesClient struct {
	pokemon    map[string]models.Pokemon
	pokemonErr error
	texts      []models.FlavorText
	members    []models.TypeMember
	membersErr error
}

func (m *mockSpeciesClient) ListSpecies(ctx context.Context, limit int) ([]models.NameEntry, error) {
	return nil, nil
}

func (m *mockSpeciesClient) GetPokemon(ctx context.Context, name string) (models.Pokemon, error) {
	if m.pokemonErr != nil {
		return models.Pokemon{}, m.pokemonErr
	}
	p, ok := m.pokemon[name]
	if !ok {
		return models.Pokemon{}, fmt.Errorf("species %s: %w", name, client.ErrNotFound)
	}
	return p, nil
}

func (m *mockSpeciesClient) GetFlavorTexts(ctx context.Context, speciesURL string) ([]models.FlavorText, error) {
	return m.texts, nil
}

func (m *mockSpeciesClient) ListByType(ctx context.Context, t models.TypeLabel) ([]models.TypeMember, error) {
	return m.members, m.membersErr
}

type testEnv struct {
	countries *cache.CountryCache
	names     *cache.NameCache
	species   *mockSpeciesClient
	weather   client.WeatherClient
	health    *HealthConfig
}

func newTestEnv() *testEnv {
	countries := cache.NewCountryCache()
	countries.Populate([]models.Country{
		{Code: "BR", Name: "Brazil", Capital: "Brasília", Type: models.TypeGrass, Flag: "br.svg"},
		{Code: "JP", Name: "Japan", Capital: "Tokyo", Type: models.TypeElectric, Flag: "jp.svg"},
	})
	names := cache.NewNameCache()
	names.Populate([]models.NameEntry{{Name: "pikachu", ID: 25}, {Name: "pichu", ID: 172}})

	return &testEnv{
		countries: countries,
		names:     names,
		species: &mockSpeciesClient{
			pokemon: map[string]models.Pokemon{
				"pikachu": {ID: 25, Name: "pikachu", Types: []string{"electric"}, Abilities: []string{"lightning-rod"},
					Stats: []models.Stat{{Name: "special-attack", Base: 50}}, Height: 4, Weight: 60},
				"charmander": {ID: 4, Name: "charmander", Types: []string{"fire"}},
			},
			texts:   []models.FlavorText{{Language: "en", Text: "Electric\nmouse"}},
			members: []models.TypeMember{{Name: "bulbasaur", ID: 1}},
		},
		weather: &mockWeatherClient{obs: models.WeatherObservation{Temperature: 22, Main: "Rain", Description: "chuva", Icon: "10d"}},
	}
}

func (e *testEnv) router() http.Handler {
	svc := service.NewBiomeService(e.countries, e.names, e.species, e.weather, service.Options{}, zap.NewNop())
	h := NewHandler(svc, e.health, zap.NewNop())
	return NewRouter(h, RouterConfig{AllowedOrigins: []string{"*"}, RequestTimeout: 5 * time.Second}, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body
}

func TestGetCountryBiomes(t *testing.T) {
	w := do(t, newTestEnv().router(), http.MethodGet, "/api/country-biomes")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got map[string]models.CountryBiome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, map[string]models.CountryBiome{
		"BR": {Name: "Brazil", Type: models.TypeGrass},
		"JP": {Name: "Japan", Type: models.TypeElectric},
	}, got)
}

func TestGetCountryBiomes_NotReady(t *testing.T) {
	env := newTestEnv()
	env.countries = cache.NewCountryCache()
	w := do(t, env.router(), http.MethodGet, "/api/country-biomes")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "NOT_READY", decodeError(t, w).Error.Code)
}

func TestGetCountryInfo(t *testing.T) {
	w := do(t, newTestEnv().router(), http.MethodGet, "/api/country-info/br")
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "BR", got["code"])
	assert.Equal(t, "Brasília", got["capital"])
	assert.Equal(t, "grass", got["type"])
	weather, ok := got["weather"].(map[string]interface{})
	require.True(t, ok, "weather object, got %v", got["weather"])
	assert.Equal(t, 22.0, weather["temp"])
	assert.Equal(t, "chuva", weather["condition"])
	assert.Equal(t, "https://openweathermap.org/img/wn/10d@2x.png", weather["icon"])
	assert.Equal(t, "water", weather["eventType"])
}

func TestGetCountryInfo_WeatherFailureServesNull(t *testing.T) {
	env := newTestEnv()
	env.weather = &mockWeatherClient{err: client.ErrUpstreamFailure}
	w := do(t, env.router(), http.MethodGet, "/api/country-info/JP")
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	v, present := got["weather"]
	assert.True(t, present, "weather key is always present")
	assert.Nil(t, v)
}

func TestGetCountryInfo_Errors(t *testing.T) {
	tests := []struct {
		name       string
		noWeather  bool
		path       string
		wantStatus int
		wantCode   string
	}{
		{"unknown code", false, "/api/country-info/XX", http.StatusNotFound, "COUNTRY_NOT_FOUND"},
		{"missing credential", true, "/api/country-info/BR", http.StatusInternalServerError, "WEATHER_NOT_CONFIGURED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			if tt.noWeather {
				env.weather = nil
			}
			w := do(t, env.router(), http.MethodGet, tt.path)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Error.Code)
		})
	}
}

func TestGetPokemonLocations(t *testing.T) {
	w := do(t, newTestEnv().router(), http.MethodGet, "/api/pokemon-locations?name=Pikachu")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.PokemonLocations
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "pikachu", got.Name)
	assert.Equal(t, []models.HabitatCountry{{Code: "JP", Name: "Japan", Flag: "jp.svg"}}, got.Countries)
	assert.Equal(t, "Electric mouse", got.Description)
	assert.Equal(t, []string{"lightning rod"}, got.Abilities)
	assert.Equal(t, map[string]int{"sp-attack": 50}, got.Stats)
	assert.Equal(t, 0.4, got.Height)
}

func TestGetPokemonLocations_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		upstream   error
		wantStatus int
		wantCode   string
	}{
		{"missing name", "/api/pokemon-locations", nil, http.StatusBadRequest, "NAME_REQUIRED"},
		{"disallowed characters", "/api/pokemon-locations?name=pikachu!", nil, http.StatusNotFound, "SPECIES_NOT_FOUND"},
		{"markup in name", "/api/pokemon-locations?name=%3Cscript%3E", nil, http.StatusNotFound, "SPECIES_NOT_FOUND"},
		{"overlong name", "/api/pokemon-locations?name=" + strings.Repeat("a", 51), nil, http.StatusNotFound, "SPECIES_NOT_FOUND"},
		{"unknown species", "/api/pokemon-locations?name=missingno", nil, http.StatusNotFound, "SPECIES_NOT_FOUND"},
		{"no habitat", "/api/pokemon-locations?name=charmander", nil, http.StatusNotFound, "HABITAT_NOT_FOUND"},
		{"upstream failure", "/api/pokemon-locations?name=pikachu", client.ErrUpstreamFailure, http.StatusInternalServerError, "UPSTREAM_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.species.pokemonErr = tt.upstream
			w := do(t, env.router(), http.MethodGet, tt.target)
			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
			assert.NotEmpty(t, body.Error.RequestID)
		})
	}
}

func TestGetPokemonLocations_RejectedNameIsNamedInMessage(t *testing.T) {
	w := do(t, newTestEnv().router(), http.MethodGet, "/api/pokemon-locations?name=pikachu!")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decodeError(t, w).Error.Message, "pikachu!")
}

func TestCountryLookups_WhileWarmingAreNotFound(t *testing.T) {
	env := newTestEnv()
	env.countries = cache.NewCountryCache()
	router := env.router()

	for _, target := range []string{
		"/api/country-info/BR",
		"/api/country-info/ZZ",
		"/api/pokemon-by-country?countryCode=BR",
	} {
		w := do(t, router, http.MethodGet, target)
		assert.Equal(t, http.StatusNotFound, w.Code, target)
		assert.Equal(t, "COUNTRY_NOT_FOUND", decodeError(t, w).Error.Code, target)
	}
}

func TestUpstreamFailure_LoggedOnceAtError(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	env := newTestEnv()
	env.species.pokemonErr = client.ErrUpstreamFailure
	svc := service.NewBiomeService(env.countries, env.names, env.species, env.weather, service.Options{}, logger)
	router := NewRouter(NewHandler(svc, nil, logger), RouterConfig{}, logger)

	w := do(t, router, http.MethodGet, "/api/pokemon-locations?name=pikachu")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	errorsLogged := logs.FilterLevelExact(zap.ErrorLevel).All()
	require.Len(t, errorsLogged, 1)
	assert.Equal(t, "species lookup failed", errorsLogged[0].Message)
}

func TestNewRouter_NilLogger(t *testing.T) {
	env := newTestEnv()
	svc := service.NewBiomeService(env.countries, env.names, env.species, env.weather, service.Options{}, nil)
	router := NewRouter(NewHandler(svc, nil, nil), RouterConfig{}, nil)

	w := do(t, router, http.MethodGet, "/api/country-biomes")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(correlationHeader))
}

func TestGetPokemonLocations_NotReady(t *testing.T) {
	env := newTestEnv()
	env.countries = cache.NewCountryCache()
	w := do(t, env.router(), http.MethodGet, "/api/pokemon-locations?name=pikachu")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "NOT_READY", decodeError(t, w).Error.Code)
}

func TestGetPokemonByCountry(t *testing.T) {
	w := do(t, newTestEnv().router(), http.MethodGet, "/api/pokemon-by-country?countryCode=br")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.CountryPokemon
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "BR", got.Country.Code)
	require.Len(t, got.Pokemon, 1)
	assert.Equal(t, "bulbasaur", got.Pokemon[0].Name)
	assert.Contains(t, got.Pokemon[0].ImageURL, "/official-artwork/1.png")
}

func TestGetPokemonByCountry_Errors(t *testing.T) {
	env := newTestEnv()
	router := env.router()

	w := do(t, router, http.MethodGet, "/api/pokemon-by-country")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "COUNTRY_NOT_FOUND", decodeError(t, w).Error.Code)

	w = do(t, router, http.MethodGet, "/api/pokemon-by-country?countryCode=ZZ")
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.species.membersErr = errors.New("type listing down")
	w = do(t, router, http.MethodGet, "/api/pokemon-by-country?countryCode=JP")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "UPSTREAM_ERROR", decodeError(t, w).Error.Code)
}

func TestAutocomplete(t *testing.T) {
	router := newTestEnv().router()

	w := do(t, router, http.MethodGet, "/api/autocomplete/pokemon?query=PIK")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"name":"pikachu","id":25}]`, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/autocomplete/country?query=ja")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"code":"JP","name":"Japan","flag":"jp.svg"}]`, w.Body.String())

	for _, target := range []string{"/api/autocomplete/pokemon", "/api/autocomplete/country?query="} {
		w = do(t, router, http.MethodGet, target)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String(), target)
	}
}

func TestAutocompleteCountry_NotReadyIsEmpty(t *testing.T) {
	env := newTestEnv()
	env.countries = cache.NewCountryCache()
	w := do(t, env.router(), http.MethodGet, "/api/autocomplete/country?query=b")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGetHealth(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()
	lifecycle.SetPhase(lifecycle.PhaseServing)
	defer lifecycle.SetPhase(lifecycle.PhaseStarting)

	env := newTestEnv()
	env.health = &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50}

	tests := []struct {
		name       string
		setup      func()
		wantStatus int
		want       string
	}{
		{"healthy", func() {}, http.StatusOK, "healthy"},
		{"degraded", func() {
			traffic.RecordOutcome(client.UpstreamPokeAPI, nil)
			traffic.RecordOutcome(client.UpstreamPokeAPI, errors.New("boom"))
		}, http.StatusServiceUnavailable, "degraded"},
		{"warming", func() { env.countries = cache.NewCountryCache() }, http.StatusServiceUnavailable, "warming"},
		{"shutting down", func() { lifecycle.SetPhase(lifecycle.PhaseShuttingDown) }, http.StatusServiceUnavailable, "shutting-down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			w := do(t, env.router(), http.MethodGet, "/health")
			assert.Equal(t, tt.wantStatus, w.Code)

			var body struct {
				Status    string            `json:"status"`
				Service   string            `json:"service"`
				Checks    map[string]string `json:"checks"`
				Timestamp string            `json:"timestamp"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Status)
			assert.Equal(t, "pokeglobe-service", body.Service)
			assert.NotEmpty(t, body.Timestamp)
			assert.Contains(t, body.Checks, "countryCache")
		})
	}
}

func TestGetHealth_Checks(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()

	env := newTestEnv()
	env.weather = nil
	env.health = &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50}
	traffic.RecordOutcome(client.UpstreamCountries, nil)

	w := do(t, env.router(), http.MethodGet, "/health")
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{
		"countryCache": "ready",
		"nameCache":    "ready",
		"weather":      "not_configured",
		"countries":    "healthy",
	}, body.Checks)
}

func TestWriteServiceError_UnknownErrorIsUpstream(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	writeServiceError(w, r, fmt.Errorf("%w: boom", service.ErrUpstream))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "UPSTREAM_ERROR", body.Error.Code)
	assert.NotContains(t, body.Error.Message, "boom", "upstream detail stays in logs")
}
