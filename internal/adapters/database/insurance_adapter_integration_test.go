//go:build integration

package database

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/infrastructure/clients/postgres"
	"github.com/Yulya9904/cars-insurance/pkg/config"
	apperrors "github.com/Yulya9904/cars-insurance/pkg/errors"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func newTestPostgresClient(t *testing.T) *postgres.Client {
	t.Helper()
	if os.Getenv("TEST_DB_HOST") == "" {
		t.Skip("Skipping integration test: TEST_DB_HOST not set")
	}

	cfg := &config.DatabaseConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		Database: getEnv("TEST_DB_NAME", "cars_insurance_test"),
		SSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}

	client, err := postgres.NewClient(context.Background(), cfg)
	require.NoError(t, err, "Failed to create postgres client")
	t.Cleanup(func() { client.Close() })

	schema, err := os.ReadFile("../../../migrations/001_insurances.sql")
	require.NoError(t, err)
	_, err = client.DB().Exec(string(schema))
	require.NoError(t, err)

	_, err = client.DB().Exec(`TRUNCATE TABLE audit_log, insurances, cars, districts RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	_, err = client.DB().Exec(`INSERT INTO districts (district_id, district_name) VALUES (1, 'North')`)
	require.NoError(t, err)
	_, err = client.DB().Exec(`INSERT INTO cars (car_id, car_model, state_number, home_district_id) VALUES (3, 'Lada Vesta', 'A123BC', 1)`)
	require.NoError(t, err)
	return client
}

func TestInsuranceAdapterIntegration_RoundTripAndOverlap(t *testing.T) {
	client := newTestPostgresClient(t)
	adapter := NewInsuranceAdapter(client.X(), nil)
	ctx := context.Background()

	id, err := adapter.Create(ctx, newPolicy(t, "2024-01-01", "2024-06-30"))
	require.NoError(t, err)

	got, err := adapter.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Lada Vesta", got.VehicleModel)
	assert.Equal(t, "North", got.DistrictName)
	assert.Equal(t, "2024-06-30", entities.FormatDate(got.EndDate))
	assert.True(t, got.Cost.Equal(decimal.RequireFromString("100.50")))

	_, err = adapter.Create(ctx, newPolicy(t, "2024-06-30", "2024-12-31"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))

	_, err = adapter.Create(ctx, newPolicy(t, "2024-07-01", "2024-12-31"))
	assert.NoError(t, err)

	got.Cost = decimal.RequireFromString("120")
	require.NoError(t, adapter.Update(ctx, got))
}

func TestInsuranceAdapterIntegration_ConcurrentCreatesAdmitOne(t *testing.T) {
	client := newTestPostgresClient(t)
	adapter := NewInsuranceAdapter(client.X(), nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := adapter.Create(context.Background(), newPolicy(t, "2024-01-01", "2024-03-31")); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
}
