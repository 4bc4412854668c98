package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/pokeglobe-service/internal/biome"
	"github.com/kjstillabower/pokeglobe-service/internal/cache"
	"github.com/kjstillabower/pokeglobe-service/internal/client"
	"github.com/kjstillabower/pokeglobe-service/internal/models"
	"github.com/kjstillabower/pokeglobe-service/internal/observability"
	"github.com/kjstillabower/pokeglobe-service/internal/validation"
)

// Errors returned by BiomeService. Each maps to one HTTP status in the handler layer.
var (
	ErrNotReady             = errors.New("country data not ready")
	ErrNameRequired         = errors.New("species name is required")
	ErrCountryNotFound      = errors.New("country not found")
	ErrSpeciesNotFound      = errors.New("species not found")
	ErrNoHabitat            = errors.New("no habitat for species type")
	ErrWeatherNotConfigured = errors.New("weather API key not configured")
	ErrUpstream             = errors.New("upstream request failed")
)

// Soft failure kinds, used as the softFailuresTotal label.
const (
	softFailureWeather     = "weather"
	softFailureDescription = "description"
)

// Options tunes BiomeService. Zero fields take the defaults below.
type Options struct {
	DescriptionLanguages []string
	FallbackDescription  string
	HabitatLimit         int
	SpeciesIDCeiling     int
	SampleSize           int
	AutocompleteLimit    int
	MaxNameLength        int
	// ArtworkURL is a fmt template taking the species id.
	ArtworkURL string
	// IconURL is a fmt template taking the upstream icon code.
	IconURL         string
	CoalesceTimeout time.Duration
}

// DefaultOptions returns the options the service runs with when nothing is configured.
func DefaultOptions() Options {
	return Options{
		DescriptionLanguages: []string{"pt", "en"},
		FallbackDescription:  "No description found.",
		HabitatLimit:         3,
		SpeciesIDCeiling:     1025,
		SampleSize:           8,
		AutocompleteLimit:    5,
		MaxNameLength:        50,
		ArtworkURL:           "https://raw.githubusercontent.com/PokeAPI/sprites/master/sprites/pokemon/other/official-artwork/%d.png",
		IconURL:              "https://openweathermap.org/img/wn/%s@2x.png",
		CoalesceTimeout:      10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if len(o.DescriptionLanguages) == 0 {
		o.DescriptionLanguages = d.DescriptionLanguages
	}
	if o.FallbackDescription == "" {
		o.FallbackDescription = d.FallbackDescription
	}
	if o.HabitatLimit <= 0 {
		o.HabitatLimit = d.HabitatLimit
	}
	if o.SpeciesIDCeiling <= 0 {
		o.SpeciesIDCeiling = d.SpeciesIDCeiling
	}
	if o.SampleSize <= 0 {
		o.SampleSize = d.SampleSize
	}
	if o.AutocompleteLimit <= 0 {
		o.AutocompleteLimit = d.AutocompleteLimit
	}
	if o.MaxNameLength <= 0 {
		o.MaxNameLength = d.MaxNameLength
	}
	if o.ArtworkURL == "" {
		o.ArtworkURL = d.ArtworkURL
	}
	if o.IconURL == "" {
		o.IconURL = d.IconURL
	}
	if o.CoalesceTimeout <= 0 {
		o.CoalesceTimeout = d.CoalesceTimeout
	}
	return o
}

// BiomeService answers the API's questions from the two caches and the upstreams.
type BiomeService struct {
	countries *cache.CountryCache
	names     *cache.NameCache
	species   client.SpeciesClient
	weather   client.WeatherClient
	opts      Options
	logger    *zap.Logger

	pokemon  *requestCoalescer[models.Pokemon]
	typeList *requestCoalescer[[]models.TypeMember]
}

// NewBiomeService wires the service. weather may be nil when no credential is
// configured; CountryInfo then fails with ErrWeatherNotConfigured.
func NewBiomeService(countries *cache.CountryCache, names *cache.NameCache, species client.SpeciesClient, weather client.WeatherClient, opts Options, logger *zap.Logger) *BiomeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &BiomeService{
		countries: countries,
		names:     names,
		species:   species,
		weather:   weather,
		opts:      opts,
		logger:    logger,
		pokemon: newRequestCoalescer[models.Pokemon](opts.CoalesceTimeout, func() {
			observability.RequestCoalescingHitsTotal.WithLabelValues("species").Inc()
		}),
		typeList: newRequestCoalescer[[]models.TypeMember](opts.CoalesceTimeout, func() {
			observability.RequestCoalescingHitsTotal.WithLabelValues("type").Inc()
		}),
	}
}

func (s *BiomeService) log(ctx context.Context) *zap.Logger {
	return observability.LoggerFromContext(ctx, s.logger)
}

// Readiness reports whether each cache has been populated.
func (s *BiomeService) Readiness() (countries, names bool) {
	return s.countries.IsReady(), s.names.IsReady()
}

// WeatherConfigured reports whether a weather client is wired.
func (s *BiomeService) WeatherConfigured() bool {
	return s.weather != nil
}

// Biomes returns every cached country projected to name and type.
func (s *BiomeService) Biomes(ctx context.Context) (map[string]models.CountryBiome, error) {
	all, err := s.countries.All()
	if err != nil {
		return nil, ErrNotReady
	}
	out := make(map[string]models.CountryBiome, len(all))
	for _, c := range all {
		out[c.Code] = models.CountryBiome{Name: c.Name, Type: c.Type}
	}
	return out, nil
}

// CountryInfo returns a cached country with current weather at its capital. A weather
// failure of any kind yields a nil Weather rather than an error. Before the country cache
// is ready every code is unknown.
func (s *BiomeService) CountryInfo(ctx context.Context, code string) (models.CountryInfo, error) {
	code = validation.NormalizeCountryCode(code)
	country, ok, err := s.countries.Get(code)
	if err != nil || !ok {
		return models.CountryInfo{}, fmt.Errorf("%w: %s", ErrCountryNotFound, code)
	}
	if s.weather == nil {
		return models.CountryInfo{}, ErrWeatherNotConfigured
	}

	info := models.CountryInfo{Country: country}
	obs, err := s.weather.GetCurrentWeather(ctx, country.Capital)
	if err != nil {
		observability.SoftFailuresTotal.WithLabelValues(softFailureWeather).Inc()
		s.log(ctx).Warn("weather lookup failed, serving country without weather",
			zap.String("country", country.Code),
			zap.String("capital", country.Capital),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err),
		)
		return info, nil
	}

	info.Weather = s.snapshot(obs)
	if info.Weather.Event != nil {
		observability.RecordWeatherEvent(string(*info.Weather.Event))
	} else {
		observability.RecordWeatherEvent("")
	}
	return info, nil
}

func (s *BiomeService) snapshot(obs models.WeatherObservation) *models.WeatherSnapshot {
	w := &models.WeatherSnapshot{
		Temperature: math.Round(obs.Temperature*10) / 10,
		Condition:   obs.Description,
	}
	if obs.Icon != "" {
		w.Icon = fmt.Sprintf(s.opts.IconURL, obs.Icon)
	}
	if event, ok := biome.WeatherEvent(obs.Main, obs.Temperature); ok {
		w.Event = &event
	}
	return w
}

// PokemonLocations returns species detail and the first countries whose biome matches
// the species' primary type.
func (s *BiomeService) PokemonLocations(ctx context.Context, input string) (models.PokemonLocations, error) {
	name, err := validation.ValidateSpeciesName(input, s.opts.MaxNameLength)
	if err != nil {
		if errors.Is(err, validation.ErrNameEmpty) {
			return models.PokemonLocations{}, ErrNameRequired
		}
		// No catalog slug contains these characters or runs this long.
		return models.PokemonLocations{}, fmt.Errorf("%w: %q (%v)", ErrSpeciesNotFound, strings.TrimSpace(input), err)
	}
	if !s.countries.IsReady() {
		return models.PokemonLocations{}, ErrNotReady
	}

	p, err := s.pokemon.GetOrDo(ctx, name, func(callCtx context.Context) (models.Pokemon, error) {
		return s.species.GetPokemon(callCtx, name)
	})
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return models.PokemonLocations{}, fmt.Errorf("%w: %q", ErrSpeciesNotFound, name)
		}
		s.log(ctx).Error("species lookup failed", zap.String("species", name), zap.Error(err))
		return models.PokemonLocations{}, fmt.Errorf("%w: species %s: %w", ErrUpstream, name, err)
	}
	if len(p.Types) == 0 {
		return models.PokemonLocations{}, fmt.Errorf("%w: %s has no types", ErrNoHabitat, name)
	}

	primary := models.TypeLabel(p.Types[0])
	observability.HabitatLookupsTotal.WithLabelValues(primary.String()).Inc()
	habitat := s.habitat(primary)
	if len(habitat) == 0 {
		return models.PokemonLocations{}, fmt.Errorf("%w: %q", ErrNoHabitat, primary)
	}

	return models.PokemonLocations{
		Name:        name,
		ID:          p.ID,
		Types:       p.Types,
		Countries:   habitat,
		Height:      float64(p.Height) / 10,
		Weight:      float64(p.Weight) / 10,
		Description: s.description(ctx, name, p.SpeciesURL),
		Abilities:   formatAbilities(p.Abilities),
		Stats:       formatStats(p.Stats),
	}, nil
}

// habitat returns up to HabitatLimit countries of type t in cache order.
func (s *BiomeService) habitat(t models.TypeLabel) []models.HabitatCountry {
	all, err := s.countries.All()
	if err != nil {
		return nil
	}
	out := make([]models.HabitatCountry, 0, s.opts.HabitatLimit)
	for _, c := range all {
		if c.Type != t {
			continue
		}
		out = append(out, models.HabitatCountry{Code: c.Code, Name: c.Name, Flag: c.Flag})
		if len(out) == s.opts.HabitatLimit {
			break
		}
	}
	return out
}

// description picks the first flavor text in the preferred language order. Any failure
// falls back to the configured text.
func (s *BiomeService) description(ctx context.Context, name, speciesURL string) string {
	texts, err := s.species.GetFlavorTexts(ctx, speciesURL)
	if err != nil {
		observability.SoftFailuresTotal.WithLabelValues(softFailureDescription).Inc()
		s.log(ctx).Warn("species description lookup failed, using fallback",
			zap.String("species", name),
			zap.Error(err),
		)
		return s.opts.FallbackDescription
	}
	for _, lang := range s.opts.DescriptionLanguages {
		for _, t := range texts {
			if t.Language == lang {
				return cleanFlavorText(t.Text)
			}
		}
	}
	return s.opts.FallbackDescription
}

// PokemonByCountry returns a sample of species whose type matches the country's biome.
// Before the country cache is ready every code is unknown.
func (s *BiomeService) PokemonByCountry(ctx context.Context, code string) (models.CountryPokemon, error) {
	code = validation.NormalizeCountryCode(code)
	if code == "" {
		return models.CountryPokemon{}, fmt.Errorf("%w: empty code", ErrCountryNotFound)
	}
	country, ok, err := s.countries.Get(code)
	if err != nil || !ok {
		return models.CountryPokemon{}, fmt.Errorf("%w: %s", ErrCountryNotFound, code)
	}

	members, err := s.typeList.GetOrDo(ctx, string(country.Type), func(callCtx context.Context) ([]models.TypeMember, error) {
		return s.species.ListByType(callCtx, country.Type)
	})
	if err != nil {
		s.log(ctx).Error("type listing failed",
			zap.String("country", code),
			zap.String("type", country.Type.String()),
			zap.Error(err),
		)
		return models.CountryPokemon{}, fmt.Errorf("%w: type %s: %w", ErrUpstream, country.Type, err)
	}

	sample := make([]models.PokemonSample, 0, s.opts.SampleSize)
	for _, m := range members {
		if m.ID >= s.opts.SpeciesIDCeiling {
			continue
		}
		sample = append(sample, models.PokemonSample{
			Name:     m.Name,
			ImageURL: fmt.Sprintf(s.opts.ArtworkURL, m.ID),
		})
		if len(sample) == s.opts.SampleSize {
			break
		}
	}
	return models.CountryPokemon{Country: country, Pokemon: sample}, nil
}

// AutocompletePokemon returns up to AutocompleteLimit species whose name starts with q.
func (s *BiomeService) AutocompletePokemon(q string) []models.NameEntry {
	q = validation.NormalizeQuery(q)
	out := []models.NameEntry{}
	if q == "" {
		return out
	}
	for _, e := range s.names.All() {
		if strings.HasPrefix(strings.ToLower(e.Name), q) {
			out = append(out, e)
			if len(out) == s.opts.AutocompleteLimit {
				break
			}
		}
	}
	return out
}

// AutocompleteCountry returns up to AutocompleteLimit countries whose name starts with q.
// Before the country cache is ready the list is empty.
func (s *BiomeService) AutocompleteCountry(q string) []models.CountrySuggestion {
	q = validation.NormalizeQuery(q)
	out := []models.CountrySuggestion{}
	if q == "" {
		return out
	}
	all, err := s.countries.All()
	if err != nil {
		return out
	}
	for _, c := range all {
		if strings.HasPrefix(strings.ToLower(c.Name), q) {
			out = append(out, models.CountrySuggestion{Code: c.Code, Name: c.Name, Flag: c.Flag})
			if len(out) == s.opts.AutocompleteLimit {
				break
			}
		}
	}
	return out
}

// formatAbilities replaces every hyphen with a space.
func formatAbilities(abilities []string) []string {
	out := make([]string, len(abilities))
	for i, a := range abilities {
		out[i] = strings.ReplaceAll(a, "-", " ")
	}
	return out
}

// formatStats keys base stats by name, shortening "special-" to "sp-".
func formatStats(stats []models.Stat) map[string]int {
	out := make(map[string]int, len(stats))
	for _, st := range stats {
		out[strings.Replace(st.Name, "special-", "sp-", 1)] = st.Base
	}
	return out
}

var flavorTextReplacer = strings.NewReplacer("\n", " ", "\f", " ")

func cleanFlavorText(s string) string {
	return flavorTextReplacer.Replace(s)
}
