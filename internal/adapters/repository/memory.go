package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/membros/internal/domain/model"
)

type paymentKey struct {
	memberID int64
	period   model.Period
}

// MemoryStore is a mutex-guarded in-memory Store. It backs development runs
// without a database and the service tests.
type MemoryStore struct {
	mu sync.RWMutex

	divisions map[int64]model.Division
	members   map[int64]model.Member
	events    map[int64]model.Event
	payments  map[paymentKey]model.LatePayment
	users     map[string]model.User
	nextID    int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		divisions: make(map[int64]model.Division),
		members:   make(map[int64]model.Member),
		events:    make(map[int64]model.Event),
		payments:  make(map[paymentKey]model.LatePayment),
		users:     make(map[string]model.User),
	}
}

// PutDivision inserts or replaces a division.
func (s *MemoryStore) PutDivision(d model.Division) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.divisions[d.ID] = d
}

// PutMember inserts or replaces a member.
func (s *MemoryStore) PutMember(m model.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m
}

// PutUser inserts or replaces a user, keyed by lowercased email.
func (s *MemoryStore) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(u.Email)] = u
}

// PutEvent inserts or replaces an event. The participant set is copied.
func (s *MemoryStore) PutEvent(e model.Event) {
	participants := make(model.IDSet, len(e.Participants))
	for id := range e.Participants {
		participants[id] = struct{}{}
	}
	e.Participants = participants

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
}

// FindDivision implements DivisionFinder.
func (s *MemoryStore) FindDivision(ctx context.Context, id int64) (model.Division, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Division{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.divisions[id]
	return d, ok, nil
}

// FindActiveMembers implements RosterProvider. Members are returned by id.
func (s *MemoryStore) FindActiveMembers(ctx context.Context, divisionID int64) ([]model.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Member
	for _, m := range s.members {
		if m.Active && m.DivisionID == divisionID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindEvents implements EventProvider.
func (s *MemoryStore) FindEvents(ctx context.Context, divisionID int64, start, end time.Time, memberIDs []int64) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	roster := model.NewIDSet(memberIDs...)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Event
	for _, e := range s.events {
		if e.DivisionID != divisionID || e.Date.Before(start) || e.Date.After(end) {
			continue
		}
		participants := make(model.IDSet)
		for id := range e.Participants {
			if roster.Has(id) {
				participants[id] = struct{}{}
			}
		}
		e.Participants = participants
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FindLatePayments implements LatePaymentProvider. Records are returned by id.
func (s *MemoryStore) FindLatePayments(ctx context.Context, memberIDs []int64, periods []model.Period) ([]model.LatePayment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.LatePayment
	for _, id := range memberIDs {
		for _, p := range periods {
			if lp, ok := s.payments[paymentKey{memberID: id, period: p}]; ok {
				out = append(out, lp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListSocialActions implements SocialActionLister.
func (s *MemoryStore) ListSocialActions(ctx context.Context, filter SocialActionFilter) ([]SocialActionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SocialActionRecord
	for _, e := range s.events {
		if _, ok := e.Category.(model.SocialAction); !ok {
			continue
		}
		if filter.Start != nil && e.Date.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && e.Date.After(*filter.End) {
			continue
		}
		d, ok := s.divisions[e.DivisionID]
		if !ok {
			continue
		}
		if filter.RegionalID != nil && d.RegionalID != *filter.RegionalID {
			continue
		}
		out = append(out, SocialActionRecord{Event: e, Division: d, Participants: s.participantsLocked(e.Participants)})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Event, out[j].Event
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *MemoryStore) participantsLocked(ids model.IDSet) []model.Member {
	out := make([]model.Member, 0, len(ids))
	for id := range ids {
		if m, ok := s.members[id]; ok {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RecordLatePayment implements LatePaymentRecorder.
func (s *MemoryStore) RecordLatePayment(ctx context.Context, lp model.LatePayment) (model.LatePayment, error) {
	if err := ctx.Err(); err != nil {
		return model.LatePayment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[lp.MemberID]; !ok {
		return model.LatePayment{}, fmt.Errorf("member %d: %w", lp.MemberID, ErrNotFound)
	}
	key := paymentKey{memberID: lp.MemberID, period: lp.Period}
	if _, ok := s.payments[key]; ok {
		return model.LatePayment{}, fmt.Errorf("late payment %d/%s: %w", lp.MemberID, lp.Period, ErrAlreadyExists)
	}
	s.nextID++
	lp.ID = s.nextID
	s.payments[key] = lp
	return lp, nil
}

// ListLatePayments implements LatePaymentLister.
func (s *MemoryStore) ListLatePayments(ctx context.Context, memberID int64, limit, offset int) ([]model.LatePayment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.members[memberID]; !ok {
		return nil, fmt.Errorf("member %d: %w", memberID, ErrNotFound)
	}
	all := make([]model.LatePayment, 0)
	for key, lp := range s.payments {
		if key.memberID == memberID {
			all = append(all, lp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[j].Period.Before(all[i].Period) })

	if offset >= len(all) {
		return []model.LatePayment{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// FindUserByEmail implements UserFinder. Emails match case-insensitively.
func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (model.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[strings.ToLower(email)]
	return u, ok, nil
}
