package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kjstillabower/pokeglobe-service/internal/circuitbreaker"
	"github.com/kjstillabower/pokeglobe-service/internal/models"
)

// SpeciesClient reads species data from the species catalog.
type SpeciesClient interface {
	ListSpecies(ctx context.Context, limit int) ([]models.NameEntry, error)
	GetPokemon(ctx context.Context, name string) (models.Pokemon, error)
	GetFlavorTexts(ctx context.Context, speciesURL string) ([]models.FlavorText, error)
	ListByType(ctx context.Context, t models.TypeLabel) ([]models.TypeMember, error)
}

// PokeAPIClient implements SpeciesClient against PokeAPI v2.
type PokeAPIClient struct {
	baseURL string
	req     *requester
}

// NewPokeAPIClient returns a client rooted at baseURL (e.g. "https://pokeapi.co/api/v2").
func NewPokeAPIClient(baseURL string, timeout time.Duration, retry RetryPolicy) (*PokeAPIClient, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid PokeAPI URL: %w", err)
	}
	return &PokeAPIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		req:     newRequester(UpstreamPokeAPI, timeout, retry),
	}, nil
}

// SetCircuitBreaker guards upstream calls with cb. Unknown species do not trip it.
func (c *PokeAPIClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.req.breaker = cb
}

type namedResource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type pokemonListResponse struct {
	Results []namedResource `json:"results"`
}

// ListSpecies returns up to limit catalog entries in upstream order. Entries whose URL
// carries no numeric id are skipped.
func (c *PokeAPIClient) ListSpecies(ctx context.Context, limit int) ([]models.NameEntry, error) {
	rawURL := c.baseURL + "/pokemon?limit=" + strconv.Itoa(limit)
	body, err := c.req.get(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("list species: %w", err)
	}

	var resp pokemonListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse species list: %w", err)
	}

	out := make([]models.NameEntry, 0, len(resp.Results))
	for _, r := range resp.Results {
		id, err := idFromURL(r.URL)
		if err != nil {
			continue
		}
		out = append(out, models.NameEntry{Name: r.Name, ID: id})
	}
	return out, nil
}

type pokemonResponse struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Height int    `json:"height"`
	Weight int    `json:"weight"`
	Types  []struct {
		Slot int           `json:"slot"`
		Type namedResource `json:"type"`
	} `json:"types"`
	Abilities []struct {
		Ability namedResource `json:"ability"`
	} `json:"abilities"`
	Stats []struct {
		BaseStat int           `json:"base_stat"`
		Stat     namedResource `json:"stat"`
	} `json:"stats"`
	Species namedResource `json:"species"`
}

// GetPokemon returns species detail. Returns an error wrapping ErrNotFound when the
// catalog has no species by that name.
func (c *PokeAPIClient) GetPokemon(ctx context.Context, name string) (models.Pokemon, error) {
	body, err := c.req.get(ctx, c.baseURL+"/pokemon/"+url.PathEscape(name))
	if err != nil {
		return models.Pokemon{}, fmt.Errorf("species %s: %w", name, err)
	}

	var resp pokemonResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Pokemon{}, fmt.Errorf("parse species %s: %w", name, err)
	}

	p := models.Pokemon{
		ID:         resp.ID,
		Name:       resp.Name,
		Height:     resp.Height,
		Weight:     resp.Weight,
		SpeciesURL: resp.Species.URL,
	}
	// Slot 1 is the primary type.
	types := resp.Types
	sort.SliceStable(types, func(i, j int) bool { return types[i].Slot < types[j].Slot })
	for _, t := range types {
		p.Types = append(p.Types, t.Type.Name)
	}
	for _, a := range resp.Abilities {
		p.Abilities = append(p.Abilities, a.Ability.Name)
	}
	for _, s := range resp.Stats {
		p.Stats = append(p.Stats, models.Stat{Name: s.Stat.Name, Base: s.BaseStat})
	}
	return p, nil
}

// GetFlavorTexts returns every description entry of the species at speciesURL, in
// upstream order.
func (c *PokeAPIClient) GetFlavorTexts(ctx context.Context, speciesURL string) ([]models.FlavorText, error) {
	if speciesURL == "" {
		return nil, fmt.Errorf("species description: empty species url")
	}
	body, err := c.req.get(ctx, speciesURL)
	if err != nil {
		return nil, fmt.Errorf("species description: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("parse species description: invalid JSON")
	}

	var out []models.FlavorText
	gjson.GetBytes(body, "flavor_text_entries").ForEach(func(_, entry gjson.Result) bool {
		out = append(out, models.FlavorText{
			Language: entry.Get("language.name").String(),
			Text:     entry.Get("flavor_text").String(),
		})
		return true
	})
	return out, nil
}

// ListByType returns the species of type t in upstream order.
func (c *PokeAPIClient) ListByType(ctx context.Context, t models.TypeLabel) ([]models.TypeMember, error) {
	body, err := c.req.get(ctx, c.baseURL+"/type/"+url.PathEscape(string(t)))
	if err != nil {
		return nil, fmt.Errorf("species of type %s: %w", t, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("parse type %s: invalid JSON", t)
	}

	var out []models.TypeMember
	gjson.GetBytes(body, "pokemon.#.pokemon").ForEach(func(_, p gjson.Result) bool {
		id, err := idFromURL(p.Get("url").String())
		if err != nil {
			return true
		}
		out = append(out, models.TypeMember{Name: p.Get("name").String(), ID: id})
		return true
	})
	return out, nil
}
