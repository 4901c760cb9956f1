// Package tally maintains the per-group, per-user, per-month message counts
// and renders them as ranked reports.
package tally

import (
	"errors"
	"fmt"
	"time"
)

const yearMonthLayout = "2006-01"

// ErrInvalidKey is returned when a Key misses one of its parts.
var ErrInvalidKey = errors.New("tally: group, user and year_month are required")

// Key identifies a single MessageCount row.
type Key struct {
	GroupID   string
	UserID    string
	YearMonth string
}

func (k Key) String() string {
	return k.GroupID + "/" + k.UserID + "/" + k.YearMonth
}

// Validate checks that all parts are set and YearMonth is canonical.
func (k Key) Validate() error {
	if k.GroupID == "" || k.UserID == "" || k.YearMonth == "" {
		return ErrInvalidKey
	}
	if _, err := ParseYearMonth(k.YearMonth); err != nil {
		return err
	}
	return nil
}

// Count is one user's tally inside a (group, year_month) bucket.
type Count struct {
	UserID string
	Count  int64
}

// MonthKey returns the YYYY-MM bucket of t in loc.
func MonthKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(yearMonthLayout)
}

// YearMonth formats a year and month as a canonical key.
func YearMonth(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// ParseYearMonth validates a YYYY-MM key.
func ParseYearMonth(s string) (time.Time, error) {
	t, err := time.Parse(yearMonthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("tally: malformed year_month %q: %w", s, err)
	}
	return t, nil
}
