package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func period(start, end string) Period {
	return Period{Start: day(start), End: day(end)}
}

func TestPeriod_Overlaps(t *testing.T) {
	existing := period("2024-01-01", "2024-06-30")

	tests := []struct {
		name      string
		candidate Period
		want      bool
	}{
		{"starts inside", period("2024-05-01", "2024-12-31"), true},
		{"ends inside", period("2023-10-01", "2024-02-01"), true},
		{"existing contains candidate", period("2024-02-01", "2024-03-01"), true},
		{"candidate contains existing", period("2023-12-01", "2024-07-31"), true},
		{"identical", period("2024-01-01", "2024-06-30"), true},
		{"shares last day", period("2024-06-30", "2024-12-31"), true},
		{"shares first day", period("2023-06-01", "2024-01-01"), true},
		{"single day inside", period("2024-03-15", "2024-03-15"), true},
		{"adjacent after", period("2024-07-01", "2024-12-31"), false},
		{"adjacent before", period("2023-01-01", "2023-12-31"), false},
		{"far apart", period("2025-01-01", "2025-12-31"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, existing.Overlaps(tt.candidate))
			assert.Equal(t, tt.want, tt.candidate.Overlaps(existing), "overlap must be symmetric")
		})
	}
}

func TestPeriod_OverlapsExhaustive(t *testing.T) {
	base := day("2024-01-01")
	const span = 6

	shares := func(a, b Period) bool {
		for d := a.Start; !d.After(a.End); d = d.AddDate(0, 0, 1) {
			if b.Contains(d) {
				return true
			}
		}
		return false
	}

	var periods []Period
	for s := 0; s < span; s++ {
		for e := s; e < span; e++ {
			periods = append(periods, Period{Start: base.AddDate(0, 0, s), End: base.AddDate(0, 0, e)})
		}
	}

	for _, a := range periods {
		for _, b := range periods {
			assert.Equal(t, shares(a, b), a.Overlaps(b), "%s vs %s", a, b)
			assert.Equal(t, a.Overlaps(b), b.Overlaps(a), "%s vs %s", a, b)
		}
	}
}

func TestPeriod_Contains(t *testing.T) {
	p := period("2024-01-01", "2024-01-31")

	assert.True(t, p.Contains(day("2024-01-01")))
	assert.True(t, p.Contains(time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, p.Contains(day("2024-02-01")))
	assert.False(t, p.Contains(day("2023-12-31")))
}

func TestNewPeriod(t *testing.T) {
	_, err := NewPeriod(day("2024-02-01"), day("2024-01-01"))
	assert.Error(t, err)

	p, err := NewPeriod(day("2024-01-01"), day("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01..2024-01-01", p.String())
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "", FormatDate(time.Time{}))
	assert.Equal(t, "2024-03-05", FormatDate(day("2024-03-05")))

	_, err := ParseDate("05.03.2024")
	assert.Error(t, err)
}
