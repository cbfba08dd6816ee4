package entities

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/Yulya9904/cars-insurance/pkg/errors"
)

// MaxInsurerNameLength bounds the insurer name in characters.
const MaxInsurerNameLength = 250

// CostScale is the number of decimal places a cost may carry.
const CostScale = 2

// maxCost is the first amount that no longer fits NUMERIC(12,2).
var maxCost = decimal.New(1, 10)

// InsuranceForm is raw, unvalidated input for creating or editing a policy.
// Empty strings mean the field was not supplied.
type InsuranceForm struct {
	VehicleID   string `json:"vehicle_id"`
	InsurerName string `json:"insurer_name"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Cost        string `json:"cost"`
}

// Validate checks every field and returns the typed partial update. When
// requireVehicle is false a missing vehicle id is allowed, leaving the
// record's vehicle unchanged.
func (f InsuranceForm) Validate(requireVehicle bool) (InsuranceFields, error) {
	var out InsuranceFields

	vehicle := strings.TrimSpace(stripTags(f.VehicleID))
	switch {
	case vehicle == "" && requireVehicle:
		return out, apperrors.NewValidationError("vehicle_id", "vehicle is required")
	case vehicle != "":
		id, err := strconv.ParseInt(vehicle, 10, 64)
		if err != nil || id <= 0 {
			return out, apperrors.NewValidationError("vehicle_id", "vehicle must be a positive integer")
		}
		out.VehicleID = &id
	}

	insurer := norm.NFC.String(strings.TrimSpace(stripTags(f.InsurerName)))
	if insurer == "" {
		return out, apperrors.NewValidationError("insurer_name", "insurer is required")
	}
	if utf8.RuneCountInString(insurer) > MaxInsurerNameLength {
		return out, apperrors.NewValidationError("insurer_name", "insurer must be at most 250 characters")
	}
	out.InsurerName = &insurer

	start, err := requiredDate("start_date", f.StartDate)
	if err != nil {
		return out, err
	}
	end, err := requiredDate("end_date", f.EndDate)
	if err != nil {
		return out, err
	}
	if end.Before(start) {
		return out, apperrors.NewValidationError("end_date", "end date must not precede start date")
	}
	out.StartDate, out.EndDate = &start, &end

	cost, err := ParseCost(f.Cost)
	if err != nil {
		return out, err
	}
	out.Cost = &cost

	return out, nil
}

// ParseCost normalizes a decimal comma to a dot and parses the amount. The
// result has at most CostScale decimal places and stays below 1e10, so every
// store keeps it exactly.
func ParseCost(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(stripTags(raw))
	if s == "" {
		return decimal.Decimal{}, apperrors.NewValidationError("cost", "cost is required")
	}
	s = strings.ReplaceAll(s, ",", ".")
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return decimal.Decimal{}, apperrors.NewValidationError("cost", "cost must be a number")
	}
	cost, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, apperrors.NewValidationError("cost", "cost must be a number")
	}
	if !cost.Equal(cost.Round(CostScale)) {
		return decimal.Decimal{}, apperrors.NewValidationError("cost", "cost must have at most 2 decimal places")
	}
	if cost.Abs().GreaterThanOrEqual(maxCost) {
		return decimal.Decimal{}, apperrors.NewValidationError("cost", "cost must be less than 10000000000")
	}
	return cost.Round(CostScale), nil
}

func requiredDate(field, raw string) (t time.Time, err error) {
	if strings.TrimSpace(raw) == "" {
		return t, apperrors.NewValidationError(field, strings.ReplaceAll(field, "_", " ")+" is required")
	}
	t, err = ParseDate(raw)
	if err != nil {
		return t, apperrors.NewValidationError(field, strings.ReplaceAll(field, "_", " ")+" must be a YYYY-MM-DD date")
	}
	return t, nil
}

// stripTags drops markup and keeps only the text content.
func stripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
