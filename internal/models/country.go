package models

// RawCountry is a country as reported by the country-metadata upstream.
// Population is nil when the upstream omits it.
type RawCountry struct {
	Code       string
	Name       string
	Capitals   []string
	Region     string
	Subregion  string
	Landlocked bool
	Area       float64
	Population *int64
	FlagURL    string
}

// Country is the cached, classified form of a country.
type Country struct {
	Code    string    `json:"code"`
	Name    string    `json:"name"`
	Capital string    `json:"capital"`
	Type    TypeLabel `json:"type"`
	Flag    string    `json:"flag"`
}

// CountryBiome is the projection served by the biome listing.
type CountryBiome struct {
	Name string    `json:"name"`
	Type TypeLabel `json:"type"`
}

// CountryInfo is a cached country plus current weather at its capital.
// Weather is nil when the weather upstream could not be reached.
type CountryInfo struct {
	Country
	Weather *WeatherSnapshot `json:"weather"`
}

// CountrySuggestion is a country autocomplete entry.
type CountrySuggestion struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}
