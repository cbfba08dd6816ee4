package repositories

import (
	"context"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
)

// InsuranceRepository defines the interface for insurance policy storage.
// Lookups return nil without an error when the record does not exist.
type InsuranceRepository interface {
	// List retrieves policies joined with vehicle and district, latest end date first
	List(ctx context.Context, filter InsuranceFilter) ([]*entities.Insurance, error)

	// GetActive retrieves the policy covering today for a vehicle
	GetActive(ctx context.Context, vehicleID int64) (*entities.Insurance, error)

	// GetByID retrieves a policy by ID
	GetByID(ctx context.Context, id int64) (*entities.Insurance, error)

	// Create stores a new policy after checking it against the vehicle's
	// existing periods and returns the assigned ID
	Create(ctx context.Context, insurance *entities.Insurance) (int64, error)

	// Update overwrites the writable fields of an existing policy, checking
	// the new period against every other policy of the vehicle
	Update(ctx context.Context, insurance *entities.Insurance) error

	// Delete removes a policy and reports whether it existed
	Delete(ctx context.Context, id int64) (bool, error)

	// IsPeriodAvailable reports whether period collides with no policy of the
	// vehicle other than excludeID
	IsPeriodAvailable(ctx context.Context, vehicleID int64, period entities.Period, excludeID *int64) (bool, error)
}

// InsuranceFilter defines filters for listing policies
type InsuranceFilter struct {
	VehicleID *int64
}

// Conflict and failure messages shared by every store implementation.
const (
	MsgPeriodTaken  = "vehicle already has an active policy in that period"
	MsgCreateFailed = "failed to add insurance, please retry later"
	MsgUpdateFailed = "failed to update insurance, please retry later"
)
