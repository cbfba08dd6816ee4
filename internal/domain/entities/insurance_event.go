package entities

import (
	"time"

	"github.com/google/uuid"
)

// InsuranceEventType represents the type of insurance event
type InsuranceEventType string

const (
	InsuranceEventCreated    InsuranceEventType = "created"
	InsuranceEventUpdated    InsuranceEventType = "updated"
	InsuranceEventDeleted    InsuranceEventType = "deleted"
	InsuranceEventAttachment InsuranceEventType = "attachment"
)

// InsuranceEvent is published after a committed change to a policy
type InsuranceEvent struct {
	ID          string             `json:"id"`
	Type        InsuranceEventType `json:"type"`
	InsuranceID int64              `json:"insurance_id"`
	VehicleID   int64              `json:"vehicle_id"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// NewInsuranceEvent creates a new insurance event
func NewInsuranceEvent(eventType InsuranceEventType, insuranceID, vehicleID int64) *InsuranceEvent {
	return &InsuranceEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		InsuranceID: insuranceID,
		VehicleID:   vehicleID,
		OccurredAt:  time.Now().UTC(),
	}
}
