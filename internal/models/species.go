package models

// NameEntry is a species name with its catalog id, used for autocomplete.
type NameEntry struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// Stat is a single base stat as reported upstream.
type Stat struct {
	Name string
	Base int
}

// Pokemon is the upstream species detail before reshaping.
// Height is in decimetres and Weight in hectograms, as the upstream reports them.
type Pokemon struct {
	ID         int
	Name       string
	Types      []string // slot order
	Abilities  []string
	Stats      []Stat
	Height     int
	Weight     int
	SpeciesURL string
}

// FlavorText is one description entry for a species.
type FlavorText struct {
	Language string
	Text     string
}

// TypeMember is a species listed under a type.
type TypeMember struct {
	Name string
	ID   int
}

// HabitatCountry is a country whose biome matches a species' primary type.
type HabitatCountry struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

// PokemonLocations is the species detail plus its habitat match.
type PokemonLocations struct {
	Name        string           `json:"name"`
	ID          int              `json:"id"`
	Types       []string         `json:"types"`
	Countries   []HabitatCountry `json:"countries"`
	Height      float64          `json:"height"`
	Weight      float64          `json:"weight"`
	Description string           `json:"description"`
	Abilities   []string         `json:"abilities"`
	Stats       map[string]int   `json:"stats"`
}

// PokemonSample is a species shown for a country.
type PokemonSample struct {
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// CountryPokemon is a country with a sample of species of its biome type.
type CountryPokemon struct {
	Country Country         `json:"country"`
	Pokemon []PokemonSample `json:"pokemon"`
}
