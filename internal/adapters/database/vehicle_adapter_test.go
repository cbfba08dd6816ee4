package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
)

func TestVehicleAdapter_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	adapter := NewVehicleAdapter(db, nil)

	mock.ExpectQuery(`FROM "cars" AS "c" LEFT JOIN "districts" AS "d"`).
		WillReturnRows(sqlmock.NewRows([]string{"car_id", "car_model", "state_number", "home_district_id", "district_name"}).
			AddRow(3, "Lada Vesta", "A123BC", 1, "North"))

	vehicle, err := adapter.GetByID(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, vehicle)
	assert.Equal(t, "Lada Vesta", vehicle.Model)
	assert.Equal(t, "North", vehicle.DistrictName)
	require.NotNil(t, vehicle.HomeDistrictID)
	assert.Equal(t, int64(1), *vehicle.HomeDistrictID)
}

func TestVehicleAdapter_GetByIDMissing(t *testing.T) {
	db, mock := setupMockDB(t)
	adapter := NewVehicleAdapter(db, nil)

	mock.ExpectQuery(`FROM "cars"`).
		WillReturnRows(sqlmock.NewRows([]string{"car_id", "car_model", "state_number", "home_district_id", "district_name"}))

	vehicle, err := adapter.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, vehicle)
}

func TestVehicleAdapter_ListForSelector(t *testing.T) {
	db, mock := setupMockDB(t)
	adapter := NewVehicleAdapter(db, nil)

	mock.ExpectQuery(`concat_ws.* ORDER BY "car_model" ASC, "state_number" ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"car_id", "label"}).
			AddRow(4, "Kia Rio B777OP").
			AddRow(3, "Lada Vesta A123BC"))

	options, err := adapter.ListForSelector(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []entities.VehicleOption{
		{ID: 4, Label: "Kia Rio B777OP"},
		{ID: 3, Label: "Lada Vesta A123BC"},
	}, options)
}

func TestAuditLogAdapter_Append(t *testing.T) {
	db, mock := setupMockDB(t)
	adapter := NewAuditLogAdapter(db)

	mock.ExpectQuery(`INSERT INTO "audit_log" .* RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	entry := &entities.AuditEntry{
		Author:      "fleet@example.com",
		Action:      entities.AuditActionAdd,
		RecordID:    7,
		Description: "added insurance #7",
	}
	require.NoError(t, adapter.Append(context.Background(), entry))

	assert.Equal(t, int64(42), entry.ID)
	assert.WithinDuration(t, time.Now(), entry.CreatedAt, time.Minute)
	assert.NoError(t, mock.ExpectationsWereMet())
}
