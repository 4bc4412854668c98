package models

// WeatherObservation is the upstream reading for a city, before reshaping.
type WeatherObservation struct {
	City        string
	Temperature float64
	Main        string // condition group, e.g. "Rain", "Clear"
	Description string
	Icon        string
}

// WeatherSnapshot is computed per request and never cached.
type WeatherSnapshot struct {
	Temperature float64    `json:"temp"`
	Condition   string     `json:"condition"`
	Icon        string     `json:"icon"`
	Event       *TypeLabel `json:"eventType"`
}
