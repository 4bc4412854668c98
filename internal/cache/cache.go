package cache

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/kjstillabower/pokeglobe-service/internal/models"
)

// ErrNotReady is returned by reads against a cache that has not been populated.
var ErrNotReady = errors.New("cache not ready")

// countrySnapshot is immutable once published.
type countrySnapshot struct {
	order  []string
	byCode map[string]models.Country
}

// CountryCache holds the classified country list for the process lifetime. Populate
// publishes a complete snapshot in one atomic store, so readers never observe a partial
// build and never lock.
type CountryCache struct {
	snap atomic.Pointer[countrySnapshot]
}

// NewCountryCache returns an empty, not-ready cache.
func NewCountryCache() *CountryCache {
	return &CountryCache{}
}

// Populate replaces the cache contents with countries, keyed by upper-case code. On a
// duplicate code the later value wins but keeps the position of the first occurrence.
func (c *CountryCache) Populate(countries []models.Country) {
	s := &countrySnapshot{
		order:  make([]string, 0, len(countries)),
		byCode: make(map[string]models.Country, len(countries)),
	}
	for _, country := range countries {
		code := strings.ToUpper(country.Code)
		country.Code = code
		if _, seen := s.byCode[code]; !seen {
			s.order = append(s.order, code)
		}
		s.byCode[code] = country
	}
	c.snap.Store(s)
}

// IsReady reports whether Populate has completed.
func (c *CountryCache) IsReady() bool {
	return c.snap.Load() != nil
}

// Get returns the country for code (case-insensitive).
func (c *CountryCache) Get(code string) (models.Country, bool, error) {
	s := c.snap.Load()
	if s == nil {
		return models.Country{}, false, ErrNotReady
	}
	country, ok := s.byCode[strings.ToUpper(code)]
	return country, ok, nil
}

// All returns every country in population order.
func (c *CountryCache) All() ([]models.Country, error) {
	s := c.snap.Load()
	if s == nil {
		return nil, ErrNotReady
	}
	out := make([]models.Country, 0, len(s.order))
	for _, code := range s.order {
		out = append(out, s.byCode[code])
	}
	return out, nil
}

// Len returns the number of cached countries, 0 before population.
func (c *CountryCache) Len() int {
	s := c.snap.Load()
	if s == nil {
		return 0
	}
	return len(s.order)
}

// NameCache holds the species catalog used for autocomplete.
type NameCache struct {
	snap atomic.Pointer[[]models.NameEntry]
}

// NewNameCache returns an empty, not-ready cache.
func NewNameCache() *NameCache {
	return &NameCache{}
}

// Populate replaces the catalog. A nil slice still marks the cache ready.
func (c *NameCache) Populate(entries []models.NameEntry) {
	cp := make([]models.NameEntry, len(entries))
	copy(cp, entries)
	c.snap.Store(&cp)
}

// IsReady reports whether Populate has completed.
func (c *NameCache) IsReady() bool {
	return c.snap.Load() != nil
}

// All returns the catalog in upstream order, or nil before population.
func (c *NameCache) All() []models.NameEntry {
	s := c.snap.Load()
	if s == nil {
		return nil
	}
	return *s
}

// Len returns the number of cached names.
func (c *NameCache) Len() int {
	return len(c.All())
}
