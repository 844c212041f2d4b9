// Package period parses inclusive calendar-date ranges.
package period

import (
	"errors"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidDate  = errors.New("invalid_date")
	ErrInvertedDate = errors.New("end_before_start")
)

// Range covers Start through End inclusive, both at 00:00 UTC.
type Range struct {
	Start time.Time
	End   time.Time
}

func ParseDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

func Parse(start, end string) (Range, error) {
	s, err := ParseDate(start)
	if err != nil {
		return Range{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return Range{}, err
	}
	return New(s, e)
}

// New truncates both bounds to their UTC calendar date.
func New(start, end time.Time) (Range, error) {
	r := Range{Start: truncate(start), End: truncate(end)}
	if r.End.Before(r.Start) {
		return Range{}, ErrInvertedDate
	}
	return r, nil
}

// Until is the first instant after the range, for half-open SQL predicates.
func (r Range) Until() time.Time {
	return r.End.AddDate(0, 0, 1)
}

func (r Range) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(r.Start) && t.Before(r.Until())
}

func (r Range) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

func truncate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
