package providers

import (
	"context"
	"strconv"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.InsuranceEvent) error

	// Subscribe subscribes to events on a channel until ctx is done
	Subscribe(ctx context.Context, channel string) (<-chan *entities.InsuranceEvent, error)

	// Close closes the event bus and all subscriptions
	Close() error
}

const (
	// EventChannelInsuranceUpdates is the channel for all insurance changes
	EventChannelInsuranceUpdates = "insurance:updates"

	// EventChannelVehiclePrefix is the prefix for per-vehicle channels
	EventChannelVehiclePrefix = "vehicle:"
)

// GetVehicleChannel returns the channel name for a specific vehicle
func GetVehicleChannel(vehicleID int64) string {
	return EventChannelVehiclePrefix + strconv.FormatInt(vehicleID, 10) + ":insurance"
}
