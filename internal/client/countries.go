package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/kjstillabower/pokeglobe-service/internal/models"
)

// countryFields limits the upstream payload to what the cache builder needs.
const countryFields = "name,capital,cca2,region,subregion,landlocked,area,population,flags"

// CountryClient fetches the full country list.
type CountryClient interface {
	FetchCountries(ctx context.Context) ([]models.RawCountry, error)
}

// RestCountriesClient implements CountryClient against the REST Countries v3.1 API.
type RestCountriesClient struct {
	apiURL string
	req    *requester
}

// NewRestCountriesClient returns a client for apiURL (the "/all" endpoint).
func NewRestCountriesClient(apiURL string, timeout time.Duration, retry RetryPolicy) (*RestCountriesClient, error) {
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid countries API URL: %w", err)
	}
	return &RestCountriesClient{
		apiURL: apiURL,
		req:    newRequester(UpstreamCountries, timeout, retry),
	}, nil
}

type restCountry struct {
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	Capital    []string `json:"capital"`
	CCA2       string   `json:"cca2"`
	Region     string   `json:"region"`
	Subregion  string   `json:"subregion"`
	Landlocked bool     `json:"landlocked"`
	Area       float64  `json:"area"`
	Population *int64   `json:"population"`
	Flags      struct {
		SVG string `json:"svg"`
		PNG string `json:"png"`
	} `json:"flags"`
}

// FetchCountries returns every country in upstream order, unfiltered.
func (c *RestCountriesClient) FetchCountries(ctx context.Context) ([]models.RawCountry, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	q := u.Query()
	q.Set("fields", countryFields)
	u.RawQuery = q.Encode()

	body, err := c.req.get(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("fetch countries: %w", err)
	}

	var payload []restCountry
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse countries response: %w", err)
	}

	out := make([]models.RawCountry, 0, len(payload))
	for _, rc := range payload {
		flag := rc.Flags.SVG
		if flag == "" {
			flag = rc.Flags.PNG
		}
		out = append(out, models.RawCountry{
			Code:       rc.CCA2,
			Name:       rc.Name.Common,
			Capitals:   rc.Capital,
			Region:     rc.Region,
			Subregion:  rc.Subregion,
			Landlocked: rc.Landlocked,
			Area:       rc.Area,
			Population: rc.Population,
			FlagURL:    flag,
		})
	}
	return out, nil
}
