package models

// TypeLabel is an elemental biome type. It is assigned to countries by the classifier
// and used as the join key between countries and species.
type TypeLabel string

const (
	TypeNormal   TypeLabel = "normal"
	TypeFire     TypeLabel = "fire"
	TypeWater    TypeLabel = "water"
	TypeGrass    TypeLabel = "grass"
	TypeElectric TypeLabel = "electric"
	TypeIce      TypeLabel = "ice"
	TypeFighting TypeLabel = "fighting"
	TypePoison   TypeLabel = "poison"
	TypeGround   TypeLabel = "ground"
	TypeFlying   TypeLabel = "flying"
	TypePsychic  TypeLabel = "psychic"
	TypeBug      TypeLabel = "bug"
	TypeRock     TypeLabel = "rock"
	TypeGhost    TypeLabel = "ghost"
	TypeDragon   TypeLabel = "dragon"
	TypeDark     TypeLabel = "dark"
	TypeSteel    TypeLabel = "steel"
	TypeFairy    TypeLabel = "fairy"
)

// AllTypeLabels lists the closed set of labels in canonical order.
var AllTypeLabels = []TypeLabel{
	TypeNormal, TypeFire, TypeWater, TypeGrass, TypeElectric, TypeIce,
	TypeFighting, TypePoison, TypeGround, TypeFlying, TypePsychic, TypeBug,
	TypeRock, TypeGhost, TypeDragon, TypeDark, TypeSteel, TypeFairy,
}

// Valid reports whether t is one of the 18 known labels.
func (t TypeLabel) Valid() bool {
	for _, l := range AllTypeLabels {
		if l == t {
			return true
		}
	}
	return false
}

func (t TypeLabel) String() string {
	return string(t)
}
