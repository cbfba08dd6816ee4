package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/domain/repositories"
	"github.com/Yulya9904/cars-insurance/internal/infrastructure/observability"
	apperrors "github.com/Yulya9904/cars-insurance/pkg/errors"
)

// VehicleAdapter implements VehicleRepository over the cars table
type VehicleAdapter struct {
	db      *sqlx.DB
	metrics *observability.Metrics
}

// NewVehicleAdapter creates a new vehicle adapter
func NewVehicleAdapter(db *sqlx.DB, metrics *observability.Metrics) *VehicleAdapter {
	return &VehicleAdapter{db: db, metrics: metrics}
}

var _ repositories.VehicleRepository = (*VehicleAdapter)(nil)

// GetByID retrieves a vehicle with its home district
func (a *VehicleAdapter) GetByID(ctx context.Context, id int64) (*entities.Vehicle, error) {
	defer func(start time.Time) {
		observability.RecordDBMetric(ctx, a.metrics, "vehicle.get", time.Since(start))
	}(time.Now())

	query, args, err := dialect.From(goqu.T(carsTable).As("c")).
		Prepared(true).
		Select(
			goqu.I("c.car_id"),
			goqu.I("c.car_model"),
			goqu.I("c.state_number"),
			goqu.I("c.home_district_id"),
			goqu.COALESCE(goqu.I("d.district_name"), "").As("district_name"),
		).
		LeftJoin(goqu.T(districtsTable).As("d"), goqu.On(goqu.I("d.district_id").Eq(goqu.I("c.home_district_id")))).
		Where(goqu.I("c.car_id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build vehicle query", err)
	}

	var vehicle entities.Vehicle
	err = a.db.GetContext(ctx, &vehicle, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get vehicle", err)
	}
	return &vehicle, nil
}

// ListForSelector retrieves every vehicle labelled "<model> <state number>"
func (a *VehicleAdapter) ListForSelector(ctx context.Context) ([]entities.VehicleOption, error) {
	defer func(start time.Time) {
		observability.RecordDBMetric(ctx, a.metrics, "vehicle.options", time.Since(start))
	}(time.Now())

	query, args, err := dialect.From(carsTable).
		Prepared(true).
		Select(
			goqu.C("car_id"),
			goqu.L(`concat_ws(' ', "car_model", "state_number")`).As("label"),
		).
		Order(goqu.C("car_model").Asc(), goqu.C("state_number").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build vehicle options query", err)
	}

	options := []entities.VehicleOption{}
	if err := a.db.SelectContext(ctx, &options, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list vehicles", err)
	}
	return options, nil
}
