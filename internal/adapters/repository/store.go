// Package repository defines the data providers the report service reads
// from, plus an in-memory implementation.
package repository

import (
	"context"
	"time"

	"github.com/okian/membros/internal/domain/model"
)

// DivisionFinder resolves divisions. ok is false when the id is unknown;
// err is reserved for lookup failures.
type DivisionFinder interface {
	FindDivision(ctx context.Context, id int64) (d model.Division, ok bool, err error)
}

// RosterProvider lists the active members of a division, in no particular order.
type RosterProvider interface {
	FindActiveMembers(ctx context.Context, divisionID int64) ([]model.Member, error)
}

// EventProvider lists a division's events dated within [start, end], ordered
// by date ascending. Participant sets only contain ids from memberIDs.
type EventProvider interface {
	FindEvents(ctx context.Context, divisionID int64, start, end time.Time, memberIDs []int64) ([]model.Event, error)
}

// LatePaymentProvider lists late payments of memberIDs in any of periods.
type LatePaymentProvider interface {
	FindLatePayments(ctx context.Context, memberIDs []int64, periods []model.Period) ([]model.LatePayment, error)
}

// SocialActionFilter narrows the social action listing. Nil fields are not applied.
type SocialActionFilter struct {
	RegionalID *int64
	Start      *time.Time
	End        *time.Time
}

// SocialActionRecord is a social action with its division and participants.
type SocialActionRecord struct {
	Event        model.Event
	Division     model.Division
	Participants []model.Member
}

// SocialActionLister lists social actions ordered by date descending.
type SocialActionLister interface {
	ListSocialActions(ctx context.Context, filter SocialActionFilter) ([]SocialActionRecord, error)
}

// LatePaymentRecorder stores a late payment and returns it with its id set.
// It fails with ErrNotFound for unknown members and ErrAlreadyExists when the
// member already has a record for the period.
type LatePaymentRecorder interface {
	RecordLatePayment(ctx context.Context, lp model.LatePayment) (model.LatePayment, error)
}

// LatePaymentLister pages through one member's late payments, newest period
// first. It fails with ErrNotFound for unknown members.
type LatePaymentLister interface {
	ListLatePayments(ctx context.Context, memberID int64, limit, offset int) ([]model.LatePayment, error)
}

// UserFinder resolves API users by email. ok is false when none matches.
type UserFinder interface {
	FindUserByEmail(ctx context.Context, email string) (u model.User, ok bool, err error)
}

// Store is everything the service needs from persistence.
type Store interface {
	DivisionFinder
	RosterProvider
	EventProvider
	LatePaymentProvider
	SocialActionLister
	LatePaymentRecorder
	LatePaymentLister
	UserFinder
}
