package shared

import (
	"strings"
	"time"
)

// PeriodLayout is the canonical accounting period code, e.g. 2025-01.
const PeriodLayout = "2006-01"

// ErrInvalidPeriod indicates a malformed period code.
var ErrInvalidPeriod = Validationf("period must use YYYY-MM")

// ParsePeriod validates a period code and returns its first day in UTC.
func ParsePeriod(code string) (time.Time, error) {
	start, err := time.Parse(PeriodLayout, strings.TrimSpace(code))
	if err != nil {
		return time.Time{}, ErrInvalidPeriod
	}
	return start, nil
}

// NormalizePeriod returns the canonical form of a period code.
func NormalizePeriod(code string) (string, error) {
	start, err := ParsePeriod(code)
	if err != nil {
		return "", err
	}
	return start.Format(PeriodLayout), nil
}

// PreviousPeriod returns the period preceding t's month.
func PreviousPeriod(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -1, 0).Format(PeriodLayout)
}
