package ors

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/fleetops/transitcore/internal/domain/run"
	"github.com/fleetops/transitcore/internal/port/routing"
)

// estimateCache is an in-process L1 cache of route estimates. Keys round
// coordinates to ~10 m so nearby requests for the same pair share an entry.
type estimateCache struct {
	c   *ristretto.Cache[string, []byte]
	ttl time.Duration
}

func newEstimateCache(maxMB int64, ttl time.Duration) (*estimateCache, error) {
	if maxMB <= 0 {
		maxMB = 16
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	maxCost := maxMB << 20
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCost / 100 * 10, // ~10x expected items
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &estimateCache{c: c, ttl: ttl}, nil
}

func (e *estimateCache) get(key string) (routing.Estimate, bool) {
	data, found := e.c.Get(key)
	if !found {
		return routing.Estimate{}, false
	}
	var est routing.Estimate
	if err := json.Unmarshal(data, &est); err != nil {
		return routing.Estimate{}, false
	}
	return est, true
}

func (e *estimateCache) set(key string, est routing.Estimate) {
	data, err := json.Marshal(est)
	if err != nil {
		return
	}
	e.c.SetWithTTL(key, data, int64(len(data)), e.ttl)
}

func cacheKey(pickup, dropoff run.Location, waypoints []run.Location) string {
	key := fmt.Sprintf("%.4f,%.4f>%.4f,%.4f",
		pickup.Latitude, pickup.Longitude, dropoff.Latitude, dropoff.Longitude)
	for _, wp := range waypoints {
		key += fmt.Sprintf("|%.4f,%.4f", wp.Latitude, wp.Longitude)
	}
	return key
}
