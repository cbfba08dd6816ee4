package repositories

import (
	"context"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
)

// VehicleRepository resolves fleet vehicles for display joins and selectors
type VehicleRepository interface {
	// GetByID retrieves a vehicle with its home district, nil when missing
	GetByID(ctx context.Context, id int64) (*entities.Vehicle, error)

	// ListForSelector retrieves every vehicle ordered by model and state number
	ListForSelector(ctx context.Context) ([]entities.VehicleOption, error)
}
