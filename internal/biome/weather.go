package biome

import "github.com/kjstillabower/pokeglobe-service/internal/models"

// heatThreshold is the temperature (°C) above which a clear sky counts as a fire event.
const heatThreshold = 30.0

// WeatherEvent maps an upstream condition group and temperature to a type event.
// Returns false when the conditions carry no event.
func WeatherEvent(main string, tempC float64) (models.TypeLabel, bool) {
	switch main {
	case "Rain", "Drizzle":
		return models.TypeWater, true
	case "Thunderstorm":
		return models.TypeElectric, true
	case "Snow":
		return models.TypeIce, true
	case "Clear":
		if tempC > heatThreshold {
			return models.TypeFire, true
		}
	}
	return "", false
}
