package model

import (
	"fmt"
	"time"
)

// Period is a (year, month) pair.
type Period struct {
	Year  int
	Month int
}

// PeriodOf returns the period containing t (in t's location).
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Valid reports whether year >= 1 and month is in [1,12].
func (p Period) Valid() bool {
	return p.Year >= 1 && p.Month >= 1 && p.Month <= 12
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// After compares (year, month) lexicographically.
func (p Period) After(o Period) bool {
	return p.Year > o.Year || (p.Year == o.Year && p.Month > o.Month)
}

// Before is the inverse of After for distinct periods.
func (p Period) Before(o Period) bool {
	return o.After(p)
}

// Key encodes the period as year*100+month, e.g. 202511.
func (p Period) Key() int {
	return p.Year*100 + p.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// LatePayment records that a member was delinquent for a period. Absence of
// a record means the member paid on time. At most one exists per member and
// period.
type LatePayment struct {
	ID       int64
	MemberID int64
	Period   Period
	PaidAt   *time.Time
	Notes    *string
}
