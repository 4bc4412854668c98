package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/pokeglobe-service/internal/biome"
	"github.com/kjstillabower/pokeglobe-service/internal/models"
	"github.com/kjstillabower/pokeglobe-service/internal/observability"
)

// CountryFetcher returns the raw upstream country list.
type CountryFetcher interface {
	FetchCountries(ctx context.Context) ([]models.RawCountry, error)
}

// NameFetcher returns the species catalog.
type NameFetcher interface {
	ListSpecies(ctx context.Context, limit int) ([]models.NameEntry, error)
}

// WarmerConfig bounds the startup fetches.
type WarmerConfig struct {
	CountriesTimeout time.Duration
	NamesTimeout     time.Duration
	CatalogLimit     int
}

// Warmer builds both caches once at startup.
type Warmer struct {
	countries     *CountryCache
	names         *NameCache
	countryClient CountryFetcher
	nameClient    NameFetcher
	cfg           WarmerConfig
	logger        *zap.Logger
}

// NewWarmer creates a Warmer. logger may be nil.
func NewWarmer(countries *CountryCache, names *NameCache, cc CountryFetcher, nc NameFetcher, cfg WarmerConfig, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CatalogLimit <= 0 {
		cfg.CatalogLimit = 1302
	}
	return &Warmer{
		countries:     countries,
		names:         names,
		countryClient: cc,
		nameClient:    nc,
		cfg:           cfg,
		logger:        logger,
	}
}

// WarmCountries fetches, filters and classifies the country list, then publishes it.
// The cache is left untouched on error.
func (w *Warmer) WarmCountries(ctx context.Context) error {
	ctx, cancel := withOptionalTimeout(ctx, w.cfg.CountriesTimeout)
	defer cancel()

	done := w.observe("countries")
	raw, err := w.countryClient.FetchCountries(ctx)
	if err != nil {
		done(err)
		return fmt.Errorf("warm countries: %w", err)
	}

	countries := BuildCountries(raw)
	w.countries.Populate(countries)
	done(nil)
	w.logger.Info("country cache populated",
		zap.Int("fetched", len(raw)),
		zap.Int("cached", w.countries.Len()),
	)
	return nil
}

// WarmNames fetches the species catalog. On failure the cache is populated with an empty
// list so autocomplete answers with no suggestions instead of blocking.
func (w *Warmer) WarmNames(ctx context.Context) error {
	ctx, cancel := withOptionalTimeout(ctx, w.cfg.NamesTimeout)
	defer cancel()

	done := w.observe("names")
	entries, err := w.nameClient.ListSpecies(ctx, w.cfg.CatalogLimit)
	if err != nil {
		done(err)
		w.names.Populate(nil)
		w.logger.Warn("species name cache unavailable, autocomplete disabled", zap.Error(err))
		return fmt.Errorf("warm names: %w", err)
	}

	w.names.Populate(entries)
	done(nil)
	w.logger.Info("name cache populated", zap.Int("cached", len(entries)))
	return nil
}

// Start runs both warm tasks in the background. onFatal is called if the country cache
// cannot be built. The returned channel closes when both tasks have finished.
func (w *Warmer) Start(ctx context.Context, onFatal func(error)) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := w.WarmCountries(ctx); err != nil {
			w.logger.Error("country cache build failed", zap.Error(err))
			if onFatal != nil {
				onFatal(err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		_ = w.WarmNames(ctx)
	}()

	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func (w *Warmer) observe(cache string) func(error) {
	start := time.Now()
	observability.CacheWarmingTotal.WithLabelValues(cache).Inc()
	return func(err error) {
		observability.CacheWarmingDurationSeconds.WithLabelValues(cache).Observe(time.Since(start).Seconds())
		if err != nil {
			observability.CacheWarmingErrorsTotal.WithLabelValues(cache).Inc()
		}
	}
}

// BuildCountries keeps complete records and classifies each. A record is complete when
// it has a code, a non-empty capital, a positive area and a known population.
func BuildCountries(raw []models.RawCountry) []models.Country {
	out := make([]models.Country, 0, len(raw))
	for _, rc := range raw {
		capital := firstCapital(rc.Capitals)
		if rc.Code == "" || capital == "" || rc.Area <= 0 || rc.Population == nil {
			continue
		}
		out = append(out, models.Country{
			Code:    strings.ToUpper(rc.Code),
			Name:    rc.Name,
			Capital: capital,
			Type: biome.Classify(biome.Features{
				Code:       strings.ToUpper(rc.Code),
				Region:     rc.Region,
				Subregion:  rc.Subregion,
				Landlocked: rc.Landlocked,
				Area:       rc.Area,
				Population: *rc.Population,
			}),
			Flag: rc.FlagURL,
		})
	}
	return out
}

func firstCapital(capitals []string) string {
	for _, c := range capitals {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
