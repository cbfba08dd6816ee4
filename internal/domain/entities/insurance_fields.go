package entities

import "strconv"

// Field names a described attribute of an insurance record.
type Field string

const (
	FieldVehicle   Field = "vehicle_id"
	FieldDistrict  Field = "district_name"
	FieldInsurer   Field = "insurer_name"
	FieldStartDate Field = "start_date"
	FieldEndDate   Field = "end_date"
	FieldCost      Field = "cost"
)

// FieldLabel holds the change log wording of a field.
type FieldLabel struct {
	Add  string
	Edit string
}

var fieldLabels = map[Field]FieldLabel{
	FieldDistrict:  {Add: "district", Edit: "district"},
	FieldInsurer:   {Add: "insurer", Edit: "insurer"},
	FieldStartDate: {Add: "start date", Edit: "start date"},
	FieldEndDate:   {Add: "end date", Edit: "end date"},
	FieldCost:      {Add: "cost", Edit: "cost"},
}

// describedFields is the order fields appear in change log entries.
var describedFields = []Field{FieldVehicle, FieldDistrict, FieldInsurer, FieldStartDate, FieldEndDate, FieldCost}

// writableFields are the fields an edit can change; everything else is joined
// for display.
var writableFields = []Field{FieldVehicle, FieldInsurer, FieldStartDate, FieldEndDate, FieldCost}

// LabelFor returns the change log label of f, if it has one.
func LabelFor(f Field) (FieldLabel, bool) {
	l, ok := fieldLabels[f]
	return l, ok
}

// DescribedFields returns the fields in change log order.
func DescribedFields() []Field {
	return append([]Field(nil), describedFields...)
}

// Value renders the display value of f.
func (i Insurance) Value(f Field) string {
	switch f {
	case FieldVehicle:
		if i.VehicleID == 0 {
			return ""
		}
		return strconv.FormatInt(i.VehicleID, 10)
	case FieldDistrict:
		return i.DistrictName
	case FieldInsurer:
		return i.InsurerName
	case FieldStartDate:
		return FormatDate(i.StartDate)
	case FieldEndDate:
		return FormatDate(i.EndDate)
	case FieldCost:
		return i.Cost.StringFixed(2)
	}
	return ""
}

// IsEmpty reports whether f carries no value. Cost is required, so a zero
// cost is still a value.
func (i Insurance) IsEmpty(f Field) bool {
	return i.Value(f) == ""
}

// Change is the old and new display value of one modified field.
type Change struct {
	Field Field
	Old   string
	New   string
}

// Changes lists modified fields in change log order.
type Changes []Change

// Diff compares the writable fields of two versions of a record.
func Diff(old, updated Insurance) Changes {
	var changes Changes
	for _, f := range writableFields {
		if !fieldEqual(old, updated, f) {
			changes = append(changes, Change{Field: f, Old: old.Value(f), New: updated.Value(f)})
		}
	}
	return changes
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c) == 0
}

func fieldEqual(a, b Insurance, f Field) bool {
	switch f {
	case FieldCost:
		return a.Cost.Equal(b.Cost)
	case FieldStartDate:
		return DateOf(a.StartDate).Equal(DateOf(b.StartDate))
	case FieldEndDate:
		return DateOf(a.EndDate).Equal(DateOf(b.EndDate))
	}
	return a.Value(f) == b.Value(f)
}
