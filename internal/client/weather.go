package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/kjstillabower/pokeglobe-service/internal/circuitbreaker"
	"github.com/kjstillabower/pokeglobe-service/internal/models"
)

// WeatherClient fetches current conditions for a city.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, city string) (models.WeatherObservation, error)
}

// OpenWeatherClient implements WeatherClient against the OpenWeatherMap current weather API.
type OpenWeatherClient struct {
	apiKey string
	apiURL string
	lang   string
	req    *requester
}

// NewOpenWeatherClient validates the key shape and returns a client. lang is passed to
// the upstream so condition descriptions come back localized ("" = upstream default).
func NewOpenWeatherClient(apiKey, apiURL, lang string, timeout time.Duration, retry RetryPolicy) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid weather API URL: %w", err)
	}

	return &OpenWeatherClient{
		apiKey: apiKey,
		apiURL: apiURL,
		lang:   lang,
		req:    newRequester(UpstreamWeather, timeout, retry),
	}, nil
}

// SetCircuitBreaker guards upstream calls with cb. Call before serving traffic.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.req.breaker = cb
}

type openWeatherResponse struct {
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Name string `json:"name"`
}

// GetCurrentWeather returns metric-unit conditions for city.
func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, city string) (models.WeatherObservation, error) {
	rawURL, err := c.buildURL(city)
	if err != nil {
		return models.WeatherObservation{}, err
	}

	body, err := c.req.get(ctx, rawURL)
	if err != nil {
		return models.WeatherObservation{}, fmt.Errorf("weather for %s: %w", city, err)
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherObservation{}, fmt.Errorf("parse weather response: %w", err)
	}
	if len(apiResp.Weather) == 0 {
		return models.WeatherObservation{}, fmt.Errorf("parse weather response: no conditions for %s", city)
	}
	return mapWeather(apiResp, city), nil
}

func (c *OpenWeatherClient) buildURL(city string) (string, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	if c.lang != "" {
		params.Set("lang", c.lang)
	}
	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}

func mapWeather(apiResp openWeatherResponse, city string) models.WeatherObservation {
	w := apiResp.Weather[0]
	name := apiResp.Name
	if name == "" {
		name = city
	}
	return models.WeatherObservation{
		City:        name,
		Temperature: apiResp.Main.Temp,
		Main:        w.Main,
		Description: w.Description,
		Icon:        w.Icon,
	}
}
