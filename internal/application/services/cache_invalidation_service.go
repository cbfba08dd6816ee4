package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/domain/providers"
	"github.com/Yulya9904/cars-insurance/internal/infrastructure/observability"
)

// CacheInvalidationService drops cached policies when insurance events
// arrive, so replicas sharing one Redis stop serving stale reads written by
// another replica.
type CacheInvalidationService struct {
	cache    providers.CacheProvider
	eventBus providers.EventBus
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(cache providers.CacheProvider, eventBus providers.EventBus) *CacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		cache:    cache,
		eventBus: eventBus,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins listening for events and invalidating cache
func (s *CacheInvalidationService) Start() error {
	eventChan, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelInsuranceUpdates)
	if err != nil {
		return fmt.Errorf("failed to subscribe to insurance updates: %w", err)
	}

	s.wg.Add(1)
	go s.processEvents(eventChan)
	observability.GetLogger().Info().Msg("Cache invalidation service started")
	return nil
}

// Stop stops the listener and waits for it to exit
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	s.wg.Wait()
	observability.GetLogger().Info().Msg("Cache invalidation service stopped")
}

func (s *CacheInvalidationService) processEvents(eventChan <-chan *entities.InsuranceEvent) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			s.handleEvent(event)
		}
	}
}

func (s *CacheInvalidationService) handleEvent(event *entities.InsuranceEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger := observability.GetLogger().With().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Int64("insurance_id", event.InsuranceID).
		Logger()

	if err := s.InvalidateInsurance(ctx, event.InsuranceID); err != nil {
		logger.Warn().Err(err).Msg("Failed to invalidate insurance cache")
		return
	}
	logger.Debug().Msg("Invalidated insurance cache")
}

// InvalidateInsurance drops one cached policy and every cached list or
// active lookup
func (s *CacheInvalidationService) InvalidateInsurance(ctx context.Context, insuranceID int64) error {
	if err := s.cache.Delete(ctx, providers.InsuranceCacheKey(insuranceID)); err != nil {
		return fmt.Errorf("failed to invalidate insurance %d: %w", insuranceID, err)
	}
	if err := s.cache.DeletePattern(ctx, providers.InsuranceListCachePattern); err != nil {
		return fmt.Errorf("failed to invalidate pattern %s: %w", providers.InsuranceListCachePattern, err)
	}
	return nil
}

// InvalidateVehicles drops every cached vehicle lookup. Vehicles are owned
// by another module and publish no events, so the server flushes them on
// startup.
func (s *CacheInvalidationService) InvalidateVehicles(ctx context.Context) error {
	if err := s.cache.DeletePattern(ctx, providers.VehicleCachePattern); err != nil {
		return fmt.Errorf("failed to invalidate pattern %s: %w", providers.VehicleCachePattern, err)
	}
	return nil
}
