package database

import (
	"context"
	"fmt"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/domain/providers"
	"github.com/Yulya9904/cars-insurance/internal/domain/repositories"
	"github.com/Yulya9904/cars-insurance/internal/infrastructure/observability"
)

const vehicleOptionsCacheKey = "vehicles:options"

func vehicleCacheKey(id int64) string {
	return fmt.Sprintf("vehicles:%d", id)
}

// CachedVehicleAdapter wraps a VehicleRepository with read-through caching.
// Vehicles are owned by another part of the fleet system, so entries simply
// expire.
type CachedVehicleAdapter struct {
	adapter repositories.VehicleRepository
	cache   providers.CacheProvider
	metrics *observability.Metrics
}

// NewCachedVehicleAdapter creates a new cached vehicle adapter
func NewCachedVehicleAdapter(adapter repositories.VehicleRepository, cache providers.CacheProvider, metrics *observability.Metrics) *CachedVehicleAdapter {
	return &CachedVehicleAdapter{adapter: adapter, cache: cache, metrics: metrics}
}

var _ repositories.VehicleRepository = (*CachedVehicleAdapter)(nil)

// GetByID retrieves a vehicle with caching
func (a *CachedVehicleAdapter) GetByID(ctx context.Context, id int64) (*entities.Vehicle, error) {
	key := vehicleCacheKey(id)

	var cached entities.Vehicle
	if loadCached(ctx, a.cache, a.metrics, key, &cached) {
		return &cached, nil
	}

	vehicle, err := a.adapter.GetByID(ctx, id)
	if err != nil || vehicle == nil {
		return vehicle, err
	}
	storeCached(ctx, a.cache, key, vehicle, vehicleByIDTTL)
	return vehicle, nil
}

// ListForSelector retrieves selector options with caching
func (a *CachedVehicleAdapter) ListForSelector(ctx context.Context) ([]entities.VehicleOption, error) {
	var cached []entities.VehicleOption
	if loadCached(ctx, a.cache, a.metrics, vehicleOptionsCacheKey, &cached) {
		return cached, nil
	}

	options, err := a.adapter.ListForSelector(ctx)
	if err != nil {
		return nil, err
	}
	storeCached(ctx, a.cache, vehicleOptionsCacheKey, options, vehicleOptionsTTL)
	return options, nil
}
