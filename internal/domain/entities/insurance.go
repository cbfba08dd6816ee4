package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// Insurance represents one insurance policy held by one vehicle for one
// inclusive date interval.
type Insurance struct {
	ID           int64           `json:"id" db:"insurance_id"`
	VehicleID    int64           `json:"vehicle_id" db:"car_id"`
	VehicleModel string          `json:"vehicle_model" db:"car_model"`
	StateNumber  string          `json:"state_number" db:"state_number"`
	DistrictName string          `json:"district_name" db:"district_name"`
	InsurerName  string          `json:"insurer_name" db:"insurer_name"`
	StartDate    time.Time       `json:"start_date" db:"insurance_start_date"`
	EndDate      time.Time       `json:"end_date" db:"insurance_end_date"`
	Cost         decimal.Decimal `json:"cost" db:"cost"`
	CreatedAt    time.Time       `json:"created_at" db:"created_dt"`

	// Populated from the attachment provider, never persisted.
	AttachmentFolder string   `json:"attachment_folder,omitempty" db:"-"`
	AttachmentNames  []string `json:"attachment_names,omitempty" db:"-"`
}

// Freshness is the display indicator derived from how far away a policy ends.
type Freshness string

const (
	FreshnessGood    Freshness = "good"
	FreshnessAverage Freshness = "average"
	FreshnessBad     Freshness = "bad"
)

// Period returns the policy's inclusive coverage interval.
func (i Insurance) Period() Period {
	return Period{Start: i.StartDate, End: i.EndDate}
}

// Classify reports good when the policy ends more than a month after today,
// average when it ends more than 14 days after today, and bad otherwise.
func (i Insurance) Classify(today time.Time) Freshness {
	today = DateOf(today)
	end := DateOf(i.EndDate)

	switch {
	case end.After(today.AddDate(0, 1, 0)):
		return FreshnessGood
	case end.After(today.AddDate(0, 0, 14)):
		return FreshnessAverage
	default:
		return FreshnessBad
	}
}

// ApplyFields returns a copy of the record with every field present in f
// overwritten. The receiver is left untouched.
func (i Insurance) ApplyFields(f InsuranceFields) Insurance {
	out := i
	if f.VehicleID != nil {
		out.VehicleID = *f.VehicleID
	}
	if f.InsurerName != nil {
		out.InsurerName = *f.InsurerName
	}
	if f.StartDate != nil {
		out.StartDate = DateOf(*f.StartDate)
	}
	if f.EndDate != nil {
		out.EndDate = DateOf(*f.EndDate)
	}
	if f.Cost != nil {
		out.Cost = *f.Cost
	}
	if i.AttachmentNames != nil {
		out.AttachmentNames = append([]string(nil), i.AttachmentNames...)
	}
	return out
}

// InsuranceFields is a partial update of the writable policy fields. A nil
// pointer means the field was not supplied.
type InsuranceFields struct {
	VehicleID   *int64
	InsurerName *string
	StartDate   *time.Time
	EndDate     *time.Time
	Cost        *decimal.Decimal
}

// Vehicle is the read-only view of a fleet car used for display joins.
type Vehicle struct {
	ID             int64  `json:"id" db:"car_id"`
	Model          string `json:"model" db:"car_model"`
	StateNumber    string `json:"state_number" db:"state_number"`
	HomeDistrictID *int64 `json:"home_district_id,omitempty" db:"home_district_id"`
	DistrictName   string `json:"district_name" db:"district_name"`
}

// VehicleOption is one entry of a vehicle selector.
type VehicleOption struct {
	ID    int64  `json:"id" db:"car_id"`
	Label string `json:"label" db:"label"`
}

// AuditAction identifies the kind of change recorded in the audit log.
type AuditAction string

const (
	AuditActionAdd              AuditAction = "insurance-add"
	AuditActionEdit             AuditAction = "insurance-edit"
	AuditActionDelete           AuditAction = "insurance-delete"
	AuditActionAddAttachment    AuditAction = "insurance-add_attachment"
	AuditActionRemoveAttachment AuditAction = "insurance-remove_attachment"
)

// AuditEntry is one append-only change log record.
type AuditEntry struct {
	ID          int64       `json:"id" db:"id"`
	Author      string      `json:"author" db:"author"`
	Action      AuditAction `json:"action" db:"action"`
	RecordID    int64       `json:"record_id" db:"record_id"`
	Description string      `json:"description" db:"description"`
	CreatedAt   time.Time   `json:"created_at" db:"created_dt"`
}
