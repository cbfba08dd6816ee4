package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/domain/repositories"
	"github.com/Yulya9904/cars-insurance/internal/infrastructure/observability"
	apperrors "github.com/Yulya9904/cars-insurance/pkg/errors"
)

const (
	insurancesTable = "insurances"
	carsTable       = "cars"
	districtsTable  = "districts"

	// SQLSTATE codes raised by the schema constraints.
	pqForeignKeyViolation = "23503"
	pqExclusionViolation  = "23P01"
	pqNumericOutOfRange   = "22003"
)

var dialect = goqu.Dialect("postgres")

// InsuranceAdapter implements InsuranceRepository on PostgreSQL. Writes run
// at READ COMMITTED with the vehicle row locked, so concurrent writers for
// one vehicle serialize and the later one sees the earlier one's period.
type InsuranceAdapter struct {
	db      *sqlx.DB
	metrics *observability.Metrics
}

// NewInsuranceAdapter creates a new insurance adapter
func NewInsuranceAdapter(db *sqlx.DB, metrics *observability.Metrics) *InsuranceAdapter {
	return &InsuranceAdapter{db: db, metrics: metrics}
}

var _ repositories.InsuranceRepository = (*InsuranceAdapter)(nil)

func (a *InsuranceAdapter) joinedInsurances() *goqu.SelectDataset {
	return dialect.From(goqu.T(insurancesTable).As("i")).
		Prepared(true).
		Select(
			goqu.I("i.insurance_id"),
			goqu.I("i.car_id"),
			goqu.I("i.insurer_name"),
			goqu.I("i.insurance_start_date"),
			goqu.I("i.insurance_end_date"),
			goqu.I("i.cost"),
			goqu.I("i.created_dt"),
			goqu.COALESCE(goqu.I("c.car_model"), "").As("car_model"),
			goqu.COALESCE(goqu.I("c.state_number"), "").As("state_number"),
			goqu.COALESCE(goqu.I("d.district_name"), "").As("district_name"),
		).
		LeftJoin(goqu.T(carsTable).As("c"), goqu.On(goqu.I("c.car_id").Eq(goqu.I("i.car_id")))).
		LeftJoin(goqu.T(districtsTable).As("d"), goqu.On(goqu.I("d.district_id").Eq(goqu.I("c.home_district_id"))))
}

// List retrieves policies, latest end date first, then by district name
func (a *InsuranceAdapter) List(ctx context.Context, filter repositories.InsuranceFilter) ([]*entities.Insurance, error) {
	ctx, span := observability.StartSpan(ctx, "InsuranceAdapter.List")
	defer span.End()
	defer a.observe(ctx, "insurance.list", time.Now())

	ds := a.joinedInsurances()
	if filter.VehicleID != nil {
		ds = ds.Where(goqu.I("i.car_id").Eq(*filter.VehicleID))
	}
	ds = ds.Order(
		goqu.I("i.insurance_end_date").Desc(),
		goqu.I("d.district_name").Asc(),
		goqu.I("i.insurance_id").Desc(),
	)

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	insurances := []*entities.Insurance{}
	if err := a.db.SelectContext(ctx, &insurances, query, args...); err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewInternalError("failed to list insurances", err)
	}
	return insurances, nil
}

// GetActive retrieves the vehicle's policy covering the current date
func (a *InsuranceAdapter) GetActive(ctx context.Context, vehicleID int64) (*entities.Insurance, error) {
	defer a.observe(ctx, "insurance.get_active", time.Now())

	ds := a.joinedInsurances().
		Where(
			goqu.I("i.car_id").Eq(vehicleID),
			goqu.I("i.insurance_start_date").Lte(goqu.L("CURRENT_DATE")),
			goqu.I("i.insurance_end_date").Gte(goqu.L("CURRENT_DATE")),
		).
		Order(goqu.I("i.insurance_end_date").Desc()).
		Limit(1)

	return a.getOne(ctx, ds)
}

// GetByID retrieves a policy by ID
func (a *InsuranceAdapter) GetByID(ctx context.Context, id int64) (*entities.Insurance, error) {
	defer a.observe(ctx, "insurance.get", time.Now())

	return a.getOne(ctx, a.joinedInsurances().Where(goqu.I("i.insurance_id").Eq(id)))
}

func (a *InsuranceAdapter) getOne(ctx context.Context, ds *goqu.SelectDataset) (*entities.Insurance, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var insurance entities.Insurance
	err = a.db.GetContext(ctx, &insurance, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get insurance", err)
	}
	return &insurance, nil
}

// Create stores a new policy inside a transaction guarded by the overlap check
func (a *InsuranceAdapter) Create(ctx context.Context, insurance *entities.Insurance) (int64, error) {
	ctx, span := observability.StartSpan(ctx, "InsuranceAdapter.Create")
	defer span.End()
	defer a.observe(ctx, "insurance.create", time.Now())

	var id int64
	err := a.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := a.lockVehicle(ctx, tx, insurance.VehicleID); err != nil {
			return err
		}
		if err := a.ensureAvailable(ctx, tx, insurance.VehicleID, insurance.Period(), nil); err != nil {
			return err
		}

		createdAt := time.Now().UTC()
		record := writableRecord(insurance)
		record["created_dt"] = createdAt

		query, args, err := dialect.Insert(insurancesTable).
			Prepared(true).
			Rows(record).
			Returning("insurance_id").
			ToSQL()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if err := tx.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
			return fmt.Errorf("insert insurance: %w", err)
		}
		insurance.CreatedAt = createdAt
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return 0, classifyWriteError(err, repositories.MsgCreateFailed)
	}

	insurance.ID = id
	return id, nil
}

// Update overwrites the writable fields, checking every other policy of the vehicle
func (a *InsuranceAdapter) Update(ctx context.Context, insurance *entities.Insurance) error {
	ctx, span := observability.StartSpan(ctx, "InsuranceAdapter.Update")
	defer span.End()
	defer a.observe(ctx, "insurance.update", time.Now())

	err := a.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := a.lockVehicle(ctx, tx, insurance.VehicleID); err != nil {
			return err
		}
		self := insurance.ID
		if err := a.ensureAvailable(ctx, tx, insurance.VehicleID, insurance.Period(), &self); err != nil {
			return err
		}

		query, args, err := dialect.Update(insurancesTable).
			Prepared(true).
			Set(writableRecord(insurance)).
			Where(goqu.C("insurance_id").Eq(insurance.ID)).
			ToSQL()
		if err != nil {
			return fmt.Errorf("build update: %w", err)
		}
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update insurance %d: %w", insurance.ID, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if rows == 0 {
			return apperrors.NewNotFoundError(fmt.Sprintf("insurance %d not found", insurance.ID))
		}
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return classifyWriteError(err, repositories.MsgUpdateFailed)
	}
	return nil
}

// Delete removes a policy unconditionally
func (a *InsuranceAdapter) Delete(ctx context.Context, id int64) (bool, error) {
	defer a.observe(ctx, "insurance.delete", time.Now())

	query, args, err := dialect.Delete(insurancesTable).
		Prepared(true).
		Where(goqu.C("insurance_id").Eq(id)).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build delete query", err)
	}

	result, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperrors.NewInternalError("failed to delete insurance", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewInternalError("failed to get rows affected", err)
	}
	return rows > 0, nil
}

// IsPeriodAvailable runs the overlap check outside a transaction
func (a *InsuranceAdapter) IsPeriodAvailable(ctx context.Context, vehicleID int64, period entities.Period, excludeID *int64) (bool, error) {
	defer a.observe(ctx, "insurance.period_available", time.Now())

	n, err := countOverlapping(ctx, a.db, vehicleID, period, excludeID)
	if err != nil {
		return false, apperrors.NewInternalError("failed to check insurance period", err)
	}
	return n == 0, nil
}

type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// countOverlapping counts the vehicle's policies sharing a day with period.
func countOverlapping(ctx context.Context, q queryer, vehicleID int64, period entities.Period, excludeID *int64) (int64, error) {
	ds := dialect.From(insurancesTable).
		Prepared(true).
		Select(goqu.COUNT("*")).
		Where(
			goqu.C("car_id").Eq(vehicleID),
			goqu.C("insurance_start_date").Lte(entities.FormatDate(period.End)),
			goqu.C("insurance_end_date").Gte(entities.FormatDate(period.Start)),
		)
	if excludeID != nil {
		ds = ds.Where(goqu.C("insurance_id").Neq(*excludeID))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build overlap query: %w", err)
	}
	var n int64
	if err := q.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("overlap query: %w", err)
	}
	return n, nil
}

func (a *InsuranceAdapter) ensureAvailable(ctx context.Context, tx *sqlx.Tx, vehicleID int64, period entities.Period, excludeID *int64) error {
	n, err := countOverlapping(ctx, tx, vehicleID, period, excludeID)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperrors.NewConflictError(repositories.MsgPeriodTaken)
	}
	return nil
}

// lockVehicle takes the vehicle row lock every writer of that vehicle waits on.
func (a *InsuranceAdapter) lockVehicle(ctx context.Context, tx *sqlx.Tx, vehicleID int64) error {
	query, args, err := dialect.From(carsTable).
		Prepared(true).
		Select("car_id").
		Where(goqu.C("car_id").Eq(vehicleID)).
		ForUpdate(exp.Wait).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build vehicle lock: %w", err)
	}

	var locked int64
	err = tx.GetContext(ctx, &locked, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewValidationError("vehicle_id", fmt.Sprintf("vehicle %d does not exist", vehicleID))
	}
	if err != nil {
		return fmt.Errorf("lock vehicle %d: %w", vehicleID, err)
	}
	return nil
}

func (a *InsuranceAdapter) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := a.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			observability.LoggerFromContext(ctx).Error().Err(rbErr).Msg("failed to roll back insurance transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (a *InsuranceAdapter) observe(ctx context.Context, operation string, start time.Time) {
	observability.RecordDBMetric(ctx, a.metrics, operation, time.Since(start))
}

// writableRecord lists the only columns a write may touch.
func writableRecord(insurance *entities.Insurance) goqu.Record {
	return goqu.Record{
		"car_id":               insurance.VehicleID,
		"insurer_name":         insurance.InsurerName,
		"insurance_start_date": entities.FormatDate(insurance.StartDate),
		"insurance_end_date":   entities.FormatDate(insurance.EndDate),
		"cost":                 insurance.Cost.String(),
	}
}

// classifyWriteError keeps domain errors and turns everything else into the
// generic retry-later failure.
func classifyWriteError(err error, failure string) error {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqExclusionViolation:
			return apperrors.NewConflictError(repositories.MsgPeriodTaken)
		case pqForeignKeyViolation:
			return apperrors.NewValidationError("vehicle_id", "vehicle does not exist")
		case pqNumericOutOfRange:
			return apperrors.NewValidationError("cost", "cost is out of range")
		}
	}

	return apperrors.NewInternalError(failure, err)
}
