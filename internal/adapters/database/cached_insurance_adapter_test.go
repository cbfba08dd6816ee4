package database

import (
	"context"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/domain/providers"
	"github.com/Yulya9904/cars-insurance/internal/domain/repositories"
)

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return nil, providers.ErrCacheMiss
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *fakeCache) DeletePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(c.data, k)
		}
	}
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

type mockInsuranceRepository struct {
	mock.Mock
}

func (m *mockInsuranceRepository) List(ctx context.Context, filter repositories.InsuranceFilter) ([]*entities.Insurance, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Insurance), args.Error(1)
}

func (m *mockInsuranceRepository) GetActive(ctx context.Context, vehicleID int64) (*entities.Insurance, error) {
	args := m.Called(ctx, vehicleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Insurance), args.Error(1)
}

func (m *mockInsuranceRepository) GetByID(ctx context.Context, id int64) (*entities.Insurance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Insurance), args.Error(1)
}

func (m *mockInsuranceRepository) Create(ctx context.Context, insurance *entities.Insurance) (int64, error) {
	args := m.Called(ctx, insurance)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockInsuranceRepository) Update(ctx context.Context, insurance *entities.Insurance) error {
	return m.Called(ctx, insurance).Error(0)
}

func (m *mockInsuranceRepository) Delete(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockInsuranceRepository) IsPeriodAvailable(ctx context.Context, vehicleID int64, period entities.Period, excludeID *int64) (bool, error) {
	args := m.Called(ctx, vehicleID, period, excludeID)
	return args.Bool(0), args.Error(1)
}

func TestCachedInsuranceAdapter_GetByIDReadsThrough(t *testing.T) {
	repo := new(mockInsuranceRepository)
	cache := newFakeCache()
	adapter := NewCachedInsuranceAdapter(repo, cache, nil)

	stored := &entities.Insurance{ID: 5, VehicleID: 3, InsurerName: "Acme", Cost: decimal.RequireFromString("100.50")}
	repo.On("GetByID", mock.Anything, int64(5)).Return(stored, nil).Once()

	first, err := adapter.GetByID(context.Background(), 5)
	require.NoError(t, err)
	second, err := adapter.GetByID(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, "Acme", second.InsurerName)
	assert.True(t, first.Cost.Equal(second.Cost))
	repo.AssertExpectations(t)
}

func TestCachedInsuranceAdapter_MissingRecordNotCached(t *testing.T) {
	repo := new(mockInsuranceRepository)
	cache := newFakeCache()
	adapter := NewCachedInsuranceAdapter(repo, cache, nil)

	repo.On("GetByID", mock.Anything, int64(9)).Return(nil, nil).Twice()

	for i := 0; i < 2; i++ {
		insurance, err := adapter.GetByID(context.Background(), 9)
		require.NoError(t, err)
		assert.Nil(t, insurance)
	}
	repo.AssertExpectations(t)
}

func TestCachedInsuranceAdapter_WritesInvalidate(t *testing.T) {
	repo := new(mockInsuranceRepository)
	cache := newFakeCache()
	adapter := NewCachedInsuranceAdapter(repo, cache, nil)
	adapter.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	vehicle := int64(3)
	filter := repositories.InsuranceFilter{VehicleID: &vehicle}
	repo.On("List", mock.Anything, filter).Return([]*entities.Insurance{{ID: 5}}, nil)
	repo.On("GetByID", mock.Anything, int64(5)).Return(&entities.Insurance{ID: 5}, nil)
	repo.On("GetActive", mock.Anything, int64(3)).Return(&entities.Insurance{ID: 5}, nil)
	repo.On("Update", mock.Anything, mock.Anything).Return(nil)

	_, err := adapter.List(context.Background(), filter)
	require.NoError(t, err)
	_, err = adapter.GetByID(context.Background(), 5)
	require.NoError(t, err)
	_, err = adapter.GetActive(context.Background(), 3)
	require.NoError(t, err)

	require.True(t, cache.has("insurances:list:vehicle:3"))
	require.True(t, cache.has("insurance:5"))
	require.True(t, cache.has("insurances:active:3:2024-03-01"))

	require.NoError(t, adapter.Update(context.Background(), &entities.Insurance{ID: 5, VehicleID: 3}))

	assert.False(t, cache.has("insurances:list:vehicle:3"))
	assert.False(t, cache.has("insurance:5"))
	assert.False(t, cache.has("insurances:active:3:2024-03-01"))
}

func TestCachedInsuranceAdapter_FailedWriteKeepsCache(t *testing.T) {
	repo := new(mockInsuranceRepository)
	cache := newFakeCache()
	adapter := NewCachedInsuranceAdapter(repo, cache, nil)

	require.NoError(t, cache.Set(context.Background(), "insurances:list:all", []byte("[]"), 60))
	repo.On("Delete", mock.Anything, int64(5)).Return(false, nil)

	deleted, err := adapter.Delete(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, cache.has("insurances:list:all"))
}
