// Package ors implements the routing provider port against an
// OpenRouteService-compatible HTTP API.
package ors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fleetops/transitcore/internal/domain"
	"github.com/fleetops/transitcore/internal/domain/run"
	"github.com/fleetops/transitcore/internal/port/routing"
	"github.com/fleetops/transitcore/internal/resilience"
)

// Client calls the routing provider over HTTP. It performs no internal
// retries; a single failed attempt is reported as ErrRouteOptimization (or
// ErrTrafficLookup) and retry policy is left to the caller. A circuit
// breaker sheds load while the provider is failing.
type Client struct {
	session *http.Client
	apiKey  string
	baseURL string
	profile string
	breaker *resilience.Breaker
	cache   *estimateCache
}

// Config holds the routing provider settings.
type Config struct {
	BaseURL      string
	APIKey       string
	Profile      string
	Timeout      time.Duration
	CacheMaxMB   int64
	CacheTTL     time.Duration
	BreakerMax   int
	BreakerReset time.Duration
}

// New creates a routing client. The API key is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("routing api key is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openrouteservice.org"
	}
	if cfg.Profile == "" {
		cfg.Profile = "driving-car"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	cache, err := newEstimateCache(cfg.CacheMaxMB, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("routing cache: %w", err)
	}

	return &Client{
		session: &http.Client{Timeout: cfg.Timeout},
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		profile: cfg.Profile,
		breaker: resilience.NewBreaker(cfg.BreakerMax, cfg.BreakerReset),
		cache:   cache,
	}, nil
}

// directionsRequest is the provider's route computation request body.
// Coordinates are [longitude, latitude] pairs, pickup first.
type directionsRequest struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

// directionsResponse is the subset of the provider response we consume.
type directionsResponse struct {
	Routes []struct {
		Summary struct {
			Distance float64 `json:"distance"` // meters
			Duration float64 `json:"duration"` // seconds
		} `json:"summary"`
		Geometry string `json:"geometry"`
		Traffic  string `json:"traffic,omitempty"`
	} `json:"routes"`
}

// Optimize computes the best route from pickup to dropoff through the given
// waypoints and returns a normalized estimate (km, minutes).
func (c *Client) Optimize(ctx context.Context, pickup, dropoff run.Location, waypoints []run.Location) (routing.Estimate, error) {
	key := cacheKey(pickup, dropoff, waypoints)
	if est, ok := c.cache.get(key); ok {
		return est, nil
	}

	coords := make([][2]float64, 0, len(waypoints)+2)
	coords = append(coords, [2]float64{pickup.Longitude, pickup.Latitude})
	for _, wp := range waypoints {
		coords = append(coords, [2]float64{wp.Longitude, wp.Latitude})
	}
	coords = append(coords, [2]float64{dropoff.Longitude, dropoff.Latitude})

	var resp directionsResponse
	err := c.breaker.Execute(func() error {
		url := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, c.profile)
		return c.postJSON(ctx, url, directionsRequest{Coordinates: coords}, &resp)
	})
	if err != nil {
		return routing.Estimate{}, fmt.Errorf("optimize route: %v: %w", err, domain.ErrRouteOptimization)
	}
	if len(resp.Routes) == 0 {
		return routing.Estimate{}, fmt.Errorf("optimize route: provider returned no routes: %w", domain.ErrRouteOptimization)
	}

	best := resp.Routes[0]
	traffic := best.Traffic
	if traffic == "" {
		traffic = "UNKNOWN"
	}
	est := routing.Estimate{
		DistanceKm:      best.Summary.Distance / 1000,
		DurationMinutes: best.Summary.Duration / 60,
		Route:           best.Geometry,
		Traffic:         traffic,
	}
	c.cache.set(key, est)
	return est, nil
}

// trafficResponse is the provider's traffic lookup response.
type trafficResponse struct {
	Condition    string  `json:"condition"`
	DelaySeconds float64 `json:"delay_seconds"`
}

// Traffic fetches current traffic conditions around a location. Simple
// pass-through with the same failure contract as Optimize.
func (c *Client) Traffic(ctx context.Context, loc run.Location) (routing.TrafficReport, error) {
	var resp trafficResponse
	err := c.breaker.Execute(func() error {
		url := fmt.Sprintf("%s/v2/traffic?lat=%f&lon=%f", c.baseURL, loc.Latitude, loc.Longitude)
		return c.getJSON(ctx, url, &resp)
	})
	if err != nil {
		return routing.TrafficReport{}, fmt.Errorf("traffic lookup: %v: %w", err, domain.ErrTrafficLookup)
	}
	return routing.TrafficReport{
		Condition: resp.Condition,
		DelayMin:  resp.DelaySeconds / 60,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.session.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
