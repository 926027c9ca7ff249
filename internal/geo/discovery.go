package geo

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/storage"
)

// OverFetchFactor is how many candidates are read per requested result.
// Radius filtering cannot be pushed into the query without a spatial index.
const OverFetchFactor = 2

// Nearby is an open job with its distance from the search origin
type Nearby struct {
	Job        domain.OpenJob
	DistanceKm float64
}

// Discovery lists open jobs near a worker
type Discovery struct {
	store storage.Store
}

// NewDiscovery creates a Discovery reading from store
func NewDiscovery(store storage.Store) *Discovery {
	return &Discovery{store: store}
}

// ListOpenJobs returns open jobs within maxRadiusKm of origin, nearest first, at most limit.
// Jobs without coordinates never appear.
func (d *Discovery) ListOpenJobs(ctx context.Context, origin Point, limit int, maxRadiusKm float64) ([]Nearby, error) {
	if limit <= 0 {
		return []Nearby{}, nil
	}

	var candidates []domain.OpenJob
	err := d.store.View(ctx, func(r storage.Repository) error {
		var err error
		candidates, err = r.ListOpenJobCandidates(ctx, limit*OverFetchFactor)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list open job candidates: %w", err)
	}

	return Rank(candidates, origin, limit, maxRadiusKm), nil
}

// Rank computes distances, drops candidates outside maxRadiusKm, sorts ascending
// and truncates to limit, in that order
func Rank(candidates []domain.OpenJob, origin Point, limit int, maxRadiusKm float64) []Nearby {
	results := make([]Nearby, 0, len(candidates))
	for _, c := range candidates {
		if c.Lat == nil || c.Lon == nil {
			continue
		}
		dist := DistanceKm(origin, Point{Lat: *c.Lat, Lon: *c.Lon})
		if dist > maxRadiusKm {
			continue
		}
		results = append(results, Nearby{Job: c, DistanceKm: dist})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DistanceKm < results[j].DistanceKm
	})

	if len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		results[i].DistanceKm = round2(results[i].DistanceKm)
	}
	return results
}
