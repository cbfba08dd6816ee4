package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/domain/providers"
	"github.com/Yulya9904/cars-insurance/internal/domain/repositories"
	"github.com/Yulya9904/cars-insurance/internal/infrastructure/observability"
)

// Cache TTLs (in seconds)
const (
	insuranceByIDTTL   = 300
	insurancesListTTL  = 180
	activeInsuranceTTL = 60
	vehicleByIDTTL     = 600
	vehicleOptionsTTL  = 600
)

func insurancesListCacheKey(filter repositories.InsuranceFilter) string {
	if filter.VehicleID == nil {
		return "insurances:list:all"
	}
	return fmt.Sprintf("insurances:list:vehicle:%d", *filter.VehicleID)
}

func activeInsuranceCacheKey(vehicleID int64, today time.Time) string {
	return fmt.Sprintf("insurances:active:%d:%s", vehicleID, entities.FormatDate(today))
}

// CachedInsuranceAdapter wraps an InsuranceRepository with read-through
// caching. Writes go straight to the wrapped repository and then drop every
// cached list and the written record.
type CachedInsuranceAdapter struct {
	adapter repositories.InsuranceRepository
	cache   providers.CacheProvider
	metrics *observability.Metrics
	now     func() time.Time
}

// NewCachedInsuranceAdapter creates a new cached insurance adapter
func NewCachedInsuranceAdapter(adapter repositories.InsuranceRepository, cache providers.CacheProvider, metrics *observability.Metrics) *CachedInsuranceAdapter {
	return &CachedInsuranceAdapter{
		adapter: adapter,
		cache:   cache,
		metrics: metrics,
		now:     time.Now,
	}
}

var _ repositories.InsuranceRepository = (*CachedInsuranceAdapter)(nil)

// List retrieves policies with caching
func (a *CachedInsuranceAdapter) List(ctx context.Context, filter repositories.InsuranceFilter) ([]*entities.Insurance, error) {
	key := insurancesListCacheKey(filter)

	var cached []*entities.Insurance
	if a.load(ctx, key, &cached) {
		return cached, nil
	}

	insurances, err := a.adapter.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	a.store(ctx, key, insurances, insurancesListTTL)
	return insurances, nil
}

// GetActive retrieves the active policy with caching, keyed by today's date
func (a *CachedInsuranceAdapter) GetActive(ctx context.Context, vehicleID int64) (*entities.Insurance, error) {
	key := activeInsuranceCacheKey(vehicleID, a.now())

	var cached entities.Insurance
	if a.load(ctx, key, &cached) {
		return &cached, nil
	}

	insurance, err := a.adapter.GetActive(ctx, vehicleID)
	if err != nil || insurance == nil {
		return insurance, err
	}
	a.store(ctx, key, insurance, activeInsuranceTTL)
	return insurance, nil
}

// GetByID retrieves a policy with caching
func (a *CachedInsuranceAdapter) GetByID(ctx context.Context, id int64) (*entities.Insurance, error) {
	key := providers.InsuranceCacheKey(id)

	var cached entities.Insurance
	if a.load(ctx, key, &cached) {
		return &cached, nil
	}

	insurance, err := a.adapter.GetByID(ctx, id)
	if err != nil || insurance == nil {
		return insurance, err
	}
	a.store(ctx, key, insurance, insuranceByIDTTL)
	return insurance, nil
}

// Create delegates and invalidates cached lists
func (a *CachedInsuranceAdapter) Create(ctx context.Context, insurance *entities.Insurance) (int64, error) {
	id, err := a.adapter.Create(ctx, insurance)
	if err != nil {
		return 0, err
	}
	a.invalidate(ctx, id)
	return id, nil
}

// Update delegates and invalidates the record and cached lists
func (a *CachedInsuranceAdapter) Update(ctx context.Context, insurance *entities.Insurance) error {
	if err := a.adapter.Update(ctx, insurance); err != nil {
		return err
	}
	a.invalidate(ctx, insurance.ID)
	return nil
}

// Delete delegates and invalidates the record and cached lists
func (a *CachedInsuranceAdapter) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := a.adapter.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		a.invalidate(ctx, id)
	}
	return deleted, nil
}

// IsPeriodAvailable is never cached
func (a *CachedInsuranceAdapter) IsPeriodAvailable(ctx context.Context, vehicleID int64, period entities.Period, excludeID *int64) (bool, error) {
	return a.adapter.IsPeriodAvailable(ctx, vehicleID, period, excludeID)
}

func (a *CachedInsuranceAdapter) invalidate(ctx context.Context, id int64) {
	logger := observability.LoggerFromContext(ctx)
	if err := a.cache.Delete(ctx, providers.InsuranceCacheKey(id)); err != nil {
		logger.Warn().Err(err).Int64("insurance_id", id).Msg("failed to invalidate cached insurance")
	}
	if err := a.cache.DeletePattern(ctx, providers.InsuranceListCachePattern); err != nil {
		logger.Warn().Err(err).Msg("failed to invalidate cached insurance lists")
	}
}

func (a *CachedInsuranceAdapter) load(ctx context.Context, key string, dest interface{}) bool {
	return loadCached(ctx, a.cache, a.metrics, key, dest)
}

func (a *CachedInsuranceAdapter) store(ctx context.Context, key string, value interface{}, ttl int) {
	storeCached(ctx, a.cache, key, value, ttl)
}

// loadCached decodes key into dest, reporting whether it was a usable hit.
func loadCached(ctx context.Context, cache providers.CacheProvider, metrics *observability.Metrics, key string, dest interface{}) bool {
	data, err := cache.Get(ctx, key)
	if err != nil || data == nil {
		observability.RecordCacheMiss(ctx, metrics, key)
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		observability.RecordCacheMiss(ctx, metrics, key)
		return false
	}
	observability.RecordCacheHit(ctx, metrics, key)
	return true
}

func storeCached(ctx context.Context, cache providers.CacheProvider, key string, value interface{}, ttl int) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := cache.Set(ctx, key, data, ttl); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("failed to cache value")
	}
}
