package repository

import (
	"context"
	"io"
	"time"

	"github.com/okian/membros/internal/domain/model"
	"github.com/okian/membros/pkg/metrics"
)

// Provider labels used for metrics.
const (
	ProviderDivision      = "division"
	ProviderRoster        = "roster"
	ProviderEvents        = "events"
	ProviderLatePayments  = "late_payments"
	ProviderSocialActions = "social_actions"
	ProviderRecordPayment = "record_late_payment"
	ProviderListPayments  = "list_late_payments"
	ProviderUsers         = "users"
)

// Instrumented wraps a Store and records latency and failures per provider.
type Instrumented struct {
	next Store
}

// Instrument returns s wrapped with provider metrics.
func Instrument(s Store) *Instrumented {
	return &Instrumented{next: s}
}

func observe(provider string, started time.Time, err error) {
	metrics.RecordProviderCall(provider, float64(time.Since(started).Microseconds())/1000, err != nil)
}

// FindDivision implements DivisionFinder.
func (i *Instrumented) FindDivision(ctx context.Context, id int64) (model.Division, bool, error) {
	started := time.Now()
	d, ok, err := i.next.FindDivision(ctx, id)
	observe(ProviderDivision, started, err)
	return d, ok, err
}

// FindActiveMembers implements RosterProvider.
func (i *Instrumented) FindActiveMembers(ctx context.Context, divisionID int64) ([]model.Member, error) {
	started := time.Now()
	out, err := i.next.FindActiveMembers(ctx, divisionID)
	observe(ProviderRoster, started, err)
	return out, err
}

// FindEvents implements EventProvider.
func (i *Instrumented) FindEvents(ctx context.Context, divisionID int64, start, end time.Time, memberIDs []int64) ([]model.Event, error) {
	started := time.Now()
	out, err := i.next.FindEvents(ctx, divisionID, start, end, memberIDs)
	observe(ProviderEvents, started, err)
	return out, err
}

// FindLatePayments implements LatePaymentProvider.
func (i *Instrumented) FindLatePayments(ctx context.Context, memberIDs []int64, periods []model.Period) ([]model.LatePayment, error) {
	started := time.Now()
	out, err := i.next.FindLatePayments(ctx, memberIDs, periods)
	observe(ProviderLatePayments, started, err)
	return out, err
}

// ListSocialActions implements SocialActionLister.
func (i *Instrumented) ListSocialActions(ctx context.Context, filter SocialActionFilter) ([]SocialActionRecord, error) {
	started := time.Now()
	out, err := i.next.ListSocialActions(ctx, filter)
	observe(ProviderSocialActions, started, err)
	return out, err
}

// RecordLatePayment implements LatePaymentRecorder.
func (i *Instrumented) RecordLatePayment(ctx context.Context, lp model.LatePayment) (model.LatePayment, error) {
	started := time.Now()
	out, err := i.next.RecordLatePayment(ctx, lp)
	observe(ProviderRecordPayment, started, err)
	if err == nil {
		metrics.RecordLatePayment()
	}
	return out, err
}

// ListLatePayments implements LatePaymentLister.
func (i *Instrumented) ListLatePayments(ctx context.Context, memberID int64, limit, offset int) ([]model.LatePayment, error) {
	started := time.Now()
	out, err := i.next.ListLatePayments(ctx, memberID, limit, offset)
	observe(ProviderListPayments, started, err)
	return out, err
}

// FindUserByEmail implements UserFinder.
func (i *Instrumented) FindUserByEmail(ctx context.Context, email string) (model.User, bool, error) {
	started := time.Now()
	u, ok, err := i.next.FindUserByEmail(ctx, email)
	observe(ProviderUsers, started, err)
	return u, ok, err
}

// Close closes the wrapped store when it holds resources.
func (i *Instrumented) Close() error {
	if c, ok := i.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
