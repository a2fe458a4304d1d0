// Package routing defines the route optimization provider port.
package routing

import (
	"context"

	"github.com/fleetops/transitcore/internal/domain/run"
)

// Estimate is the normalized result of a route optimization: provider
// meters and seconds are converted to kilometres and minutes before the
// estimate leaves the adapter.
type Estimate struct {
	DistanceKm      float64 `json:"distanceKm"`
	DurationMinutes float64 `json:"durationMinutes"`
	Route           string  `json:"route"`
	Traffic         string  `json:"traffic"`
}

// TrafficReport describes current traffic around a location.
type TrafficReport struct {
	Condition string  `json:"condition"`
	DelayMin  float64 `json:"delayMinutes"`
}

// Provider is the port interface for the external routing service.
// Implementations do not retry internally; retry or backoff policy belongs
// to the caller. Failures wrap domain.ErrRouteOptimization or
// domain.ErrTrafficLookup.
type Provider interface {
	Optimize(ctx context.Context, pickup, dropoff run.Location, waypoints []run.Location) (Estimate, error)
	Traffic(ctx context.Context, loc run.Location) (TrafficReport, error)
}
