// Package biome assigns an elemental type to a country and derives weather events.
package biome

import (
	"github.com/kjstillabower/pokeglobe-service/internal/models"
)

// Features is the subset of country metadata the classifier looks at.
type Features struct {
	Code       string
	Region     string
	Subregion  string
	Landlocked bool
	Area       float64
	Population int64
}

// Rule pairs a predicate with the label it assigns.
type Rule struct {
	Name  string
	Label models.TypeLabel
	Match func(Features) bool
}

// Rules is evaluated top to bottom; the first match wins. Several codes satisfy more
// than one rule (e.g. SE is steel by code and ice by subregion), so order matters.
var Rules = []Rule{
	codes(models.TypeElectric, "JP", "KR", "US"),
	codes(models.TypeGhost, "GB", "RO", "MX"),
	codes(models.TypeSteel, "DE", "SE"),
	codes(models.TypeFairy, "FR", "CH"),
	codes(models.TypeDragon, "CN", "VN"),
	codes(models.TypePsychic, "IN", "EG", "GR", "PE"),
	codes(models.TypeGrass, "BR", "CG", "ID", "VE"),
	codes(models.TypeGround, "AU", "CL", "MN", "SA"),
	codes(models.TypeNormal, "PL", "AT"),
	codes(models.TypeBug, "TH", "MG", "CR", "PG"),
	codes(models.TypeRock, "ZA", "IT", "AF"),
	codes(models.TypeFighting, "GH", "BG", "RS"),
	codes(models.TypeFlying, "AR", "NZ", "KE"),
	codes(models.TypeFire, "IR", "TR", "ES"),
	codes(models.TypeDark, "NG", "SD"),
	codes(models.TypePoison, "CO", "MY"),
	subregions(models.TypeWater, "South-Eastern Asia", "Caribbean", "Polynesia"),
	{
		Name:  "ice:subregion+codes",
		Label: models.TypeIce,
		Match: func(f Features) bool {
			return f.Subregion == "Northern Europe" || f.Code == "GL" || f.Code == "RU"
		},
	},
	subregions(models.TypeGround, "Northern Africa", "Western Asia"),
}

// Default is returned when no rule matches.
const Default = models.TypeNormal

// Classify returns the label of the first matching rule, or Default.
func Classify(f Features) models.TypeLabel {
	for _, r := range Rules {
		if r.Match(f) {
			return r.Label
		}
	}
	return Default
}

func codes(label models.TypeLabel, cc ...string) Rule {
	set := make(map[string]struct{}, len(cc))
	for _, c := range cc {
		set[c] = struct{}{}
	}
	return Rule{
		Name:  string(label) + ":codes",
		Label: label,
		Match: func(f Features) bool {
			_, ok := set[f.Code]
			return ok
		},
	}
}

func subregions(label models.TypeLabel, names ...string) Rule {
	return Rule{
		Name:  string(label) + ":subregion",
		Label: label,
		Match: func(f Features) bool {
			for _, n := range names {
				if f.Subregion == n {
					return true
				}
			}
			return false
		},
	}
}
