// Package period expands date ranges into the monthly periods used for
// payment compliance, and parses the report date formats.
package period

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/membros/internal/domain/model"
)

// Wire layouts.
const (
	LayoutBR  = "02/01/2006" // dd/MM/yyyy
	LayoutISO = "2006-01-02"
)

// endOfDay is the last instant representable by Postgres timestamps.
const endOfDay = 24*time.Hour - time.Microsecond

// Enumerate returns every (year, month) from start's month through end's
// month, inclusive. It returns nil when start is after end.
func Enumerate(start, end time.Time) []model.Period {
	if start.After(end) {
		return nil
	}
	last := model.PeriodOf(end)
	var out []model.Period
	for p := model.PeriodOf(start); !p.After(last); p = p.Next() {
		out = append(out, p)
	}
	return out
}

// Range is an inclusive reporting window. RawStart and RawEnd keep the
// values exactly as the caller sent them so reports can echo them back.
type Range struct {
	Start    time.Time
	End      time.Time
	RawStart string
	RawEnd   string
}

// NewRange builds a Range from instants, formatting the raw values as dd/MM/yyyy.
func NewRange(start, end time.Time) Range {
	return Range{Start: start, End: end, RawStart: FormatDate(start), RawEnd: FormatDate(end)}
}

// Periods enumerates the months the range spans.
func (r Range) Periods() []model.Period {
	return Enumerate(r.Start, r.End)
}

// ParseRange parses dd/MM/yyyy bounds in loc. The start is pinned to the
// first instant of its day and the end to the last.
func ParseRange(start, end string, loc *time.Location) (Range, error) {
	s, err := ParseDate(start, loc)
	if err != nil {
		return Range{}, fmt.Errorf("start date: %w", err)
	}
	e, err := ParseDate(end, loc)
	if err != nil {
		return Range{}, fmt.Errorf("end date: %w", err)
	}
	return Range{
		Start:    s,
		End:      e.Add(endOfDay),
		RawStart: start,
		RawEnd:   end,
	}, nil
}

// ParseDate parses a dd/MM/yyyy date at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return parse(LayoutBR, s, loc)
}

// ParseISODate parses a yyyy-MM-dd date at midnight in loc.
func ParseISODate(s string, loc *time.Location) (time.Time, error) {
	return parse(LayoutISO, s, loc)
}

// EndOfDay returns the last instant of t's day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).Add(endOfDay)
}

// FormatDate renders t as dd/MM/yyyy.
func FormatDate(t time.Time) string {
	return t.Format(LayoutBR)
}

func parse(layout, s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(layout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	if t.Year() < 1 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}
