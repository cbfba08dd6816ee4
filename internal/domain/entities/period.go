package entities

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of policy dates.
const DateLayout = "2006-01-02"

// Period is an inclusive range of calendar days.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod builds a period, rejecting an end that precedes the start.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: DateOf(start), End: DateOf(end)}
	if p.End.Before(p.Start) {
		return Period{}, fmt.Errorf("period end %s precedes start %s", FormatDate(p.End), FormatDate(p.Start))
	}
	return p, nil
}

// Overlaps reports whether the two periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return !DateOf(p.Start).After(DateOf(other.End)) && !DateOf(other.Start).After(DateOf(p.End))
}

// Contains reports whether day falls inside the period.
func (p Period) Contains(day time.Time) bool {
	day = DateOf(day)
	return !day.Before(DateOf(p.Start)) && !day.After(DateOf(p.End))
}

func (p Period) String() string {
	return FormatDate(p.Start) + ".." + FormatDate(p.End)
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

// FormatDate renders a date as YYYY-MM-DD, or an empty string for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
