package services_test

import (
	"context"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yulya9904/cars-insurance/internal/adapters/events"
	"github.com/Yulya9904/cars-insurance/internal/application/services"
	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/domain/providers"
)

// MockCacheProvider for testing
type MockCacheProvider struct {
	mu      sync.RWMutex
	data    map[string][]byte
	deleted []string
}

func NewMockCacheProvider() *MockCacheProvider {
	return &MockCacheProvider{data: make(map[string][]byte)}
}

func (m *MockCacheProvider) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if val, ok := m.data[key]; ok {
		return val, nil
	}
	return nil, providers.ErrCacheMiss
}

func (m *MockCacheProvider) Set(_ context.Context, key string, value []byte, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MockCacheProvider) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			delete(m.data, key)
			m.deleted = append(m.deleted, key)
		}
	}
	return nil
}

func (m *MockCacheProvider) DeletePattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.data, key)
			m.deleted = append(m.deleted, key)
		}
	}
	return nil
}

func (m *MockCacheProvider) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok
}

func seedCache(t *testing.T, cache *MockCacheProvider, keys ...string) {
	t.Helper()
	for _, key := range keys {
		require.NoError(t, cache.Set(context.Background(), key, []byte("data"), 300))
	}
}

func TestCacheInvalidationService_HandleEvent(t *testing.T) {
	cache := NewMockCacheProvider()
	bus := events.NewMemoryEventBus()
	service := services.NewCacheInvalidationService(cache, bus)

	require.NoError(t, service.Start())
	defer service.Stop()

	seedCache(t, cache,
		"insurance:5",
		"insurance:6",
		"insurances:list:all",
		"insurances:active:3:2024-03-01",
		"vehicles:options",
	)

	event := entities.NewInsuranceEvent(entities.InsuranceEventUpdated, 5, 3)
	require.NoError(t, bus.Publish(context.Background(), providers.EventChannelInsuranceUpdates, event))

	assert.Eventually(t, func() bool { return !cache.Has("insurance:5") }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return !cache.Has("insurances:list:all") }, time.Second, 10*time.Millisecond)
	assert.False(t, cache.Has("insurances:active:3:2024-03-01"))
	assert.True(t, cache.Has("insurance:6"))
	assert.True(t, cache.Has("vehicles:options"))
}

func TestCacheInvalidationService_StopsWhenBusCloses(t *testing.T) {
	bus := events.NewMemoryEventBus()
	service := services.NewCacheInvalidationService(NewMockCacheProvider(), bus)

	require.NoError(t, service.Start())
	require.NoError(t, bus.Close())

	done := make(chan struct{})
	go func() {
		service.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the bus closed")
	}
}

func TestCacheInvalidationService_StartFailsOnClosedBus(t *testing.T) {
	bus := events.NewMemoryEventBus()
	require.NoError(t, bus.Close())

	service := services.NewCacheInvalidationService(NewMockCacheProvider(), bus)

	assert.Error(t, service.Start())
}

func TestCacheInvalidationService_InvalidateVehicles(t *testing.T) {
	cache := NewMockCacheProvider()
	service := services.NewCacheInvalidationService(cache, events.NewMemoryEventBus())
	seedCache(t, cache, "vehicles:options", "vehicles:3", "insurance:5")

	require.NoError(t, service.InvalidateVehicles(context.Background()))

	assert.False(t, cache.Has("vehicles:options"))
	assert.False(t, cache.Has("vehicles:3"))
	assert.True(t, cache.Has("insurance:5"))
}
