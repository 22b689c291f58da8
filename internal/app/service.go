// Package service assembles graduation and division reports from the
// repository providers and records late payments.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/okian/membros/internal/adapters/repository"
	"github.com/okian/membros/internal/domain/model"
	"github.com/okian/membros/internal/domain/period"
	"github.com/okian/membros/internal/domain/scoring"
	"github.com/okian/membros/internal/domain/types"
	"github.com/okian/membros/pkg/logger"
	"github.com/okian/membros/pkg/metrics"
)

// Service implements the report operations used by the HTTP API.
type Service struct {
	store  repository.Store
	scorer scoring.Scorer

	locale          language.Tag
	reportTimeout   time.Duration
	maxReportMonths int

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the data providers.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithScorer replaces the default rubric scorer.
func WithScorer(scorer scoring.Scorer) Option {
	return func(s *Service) {
		if scorer != nil {
			s.scorer = scorer
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLocale sets the collation used to order report rows.
func WithLocale(tag language.Tag) Option {
	return func(s *Service) {
		if tag != language.Und {
			s.locale = tag
		}
	}
}

// WithReportTimeout bounds each report generation. Zero disables the bound.
func WithReportTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.reportTimeout = d
		}
	}
}

// WithMaxReportMonths rejects graduation ranges spanning more months. Zero
// disables the check.
func WithMaxReportMonths(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxReportMonths = n
		}
	}
}

// New constructs a Service. Without WithStore it falls back to an empty
// in-memory store.
func New(opts ...Option) *Service {
	s := &Service{
		scorer: scoring.NewRubricScorer(),
		locale: language.BrazilianPortuguese,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	if s.store == nil {
		s.logger.Warn(context.Background(), "no store configured, using an empty in-memory store")
		s.store = repository.NewMemoryStore()
	}
	return s
}

// Close releases the store if it holds resources.
func (s *Service) Close() error {
	if c, ok := s.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.reportTimeout > 0 {
		return context.WithTimeout(ctx, s.reportTimeout)
	}
	return context.WithCancel(ctx)
}

// GraduationReport scores every active member of a division over r.
//
// It fails with ErrDivisionNotFound, before any other lookup, when the
// division does not exist. An existing division without active members
// yields a report with no rows. Provider errors are returned as is.
func (s *Service) GraduationReport(ctx context.Context, divisionID int64, r period.Range) (types.GraduationReport, error) {
	started := time.Now()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	echo := types.Period{Start: r.RawStart, End: r.RawEnd}
	log := s.logger.Named("graduation")

	report, outcome, err := s.graduationReport(ctx, divisionID, r, echo)
	elapsed := time.Since(started)
	metrics.RecordReport(metrics.ReportGraduation, outcome, float64(elapsed.Microseconds())/1000)

	switch outcome {
	case metrics.OutcomeError:
		log.Error(ctx, "graduation report failed",
			logger.Int64("divisionId", divisionID),
			logger.Error(err),
		)
	case metrics.OutcomeNotFound:
		log.Info(ctx, "graduation report for unknown division", logger.Int64("divisionId", divisionID))
	default:
		log.Info(ctx, "graduation report generated",
			logger.Int64("divisionId", divisionID),
			logger.String("start", r.RawStart),
			logger.String("end", r.RawEnd),
			logger.Int("members", len(report.Data)),
			logger.Duration("took", elapsed),
		)
	}
	return report, err
}

func (s *Service) graduationReport(ctx context.Context, divisionID int64, r period.Range, echo types.Period) (types.GraduationReport, string, error) {
	log := s.logger.Named("graduation")

	if _, ok, err := s.store.FindDivision(ctx, divisionID); err != nil {
		return types.GraduationReport{}, metrics.OutcomeError, fmt.Errorf("find division: %w", err)
	} else if !ok {
		return types.GraduationReport{}, metrics.OutcomeNotFound, fmt.Errorf("division %d: %w", divisionID, ErrDivisionNotFound)
	}

	periods := r.Periods()
	if s.maxReportMonths > 0 && len(periods) > s.maxReportMonths {
		return types.GraduationReport{}, metrics.OutcomeError,
			fmt.Errorf("%w: %d months exceeds the limit of %d", ErrInvalidRange, len(periods), s.maxReportMonths)
	}

	roster, err := s.store.FindActiveMembers(ctx, divisionID)
	if err != nil {
		return types.GraduationReport{}, metrics.OutcomeError, fmt.Errorf("find roster: %w", err)
	}
	if len(roster) == 0 {
		return types.NewGraduationReport(echo, nil), metrics.OutcomeEmpty, nil
	}
	log.Debug(ctx, "roster loaded",
		logger.Int64("divisionId", divisionID),
		logger.Int("members", len(roster)),
		logger.Int("periods", len(periods)),
	)

	ids := make([]int64, 0, len(roster))
	for _, m := range roster {
		ids = append(ids, m.ID)
	}

	var (
		events []model.Event
		late   []model.LatePayment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = s.store.FindEvents(gctx, divisionID, r.Start, r.End, ids)
		if err != nil {
			return fmt.Errorf("find events: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		late, err = s.store.FindLatePayments(gctx, ids, periods)
		if err != nil {
			return fmt.Errorf("find late payments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return types.GraduationReport{}, metrics.OutcomeError, err
	}
	log.Debug(ctx, "events and late payments loaded",
		logger.Int("events", len(events)),
		logger.Int("latePayments", len(late)),
	)

	byMember := scoring.GroupByMember(late)
	scores := make([]model.MemberScore, 0, len(roster))
	for _, m := range roster {
		ms := s.scorer.Score(m, events, byMember[m.ID])
		metrics.RecordMemberScore(ms.TotalScore)
		scores = append(scores, ms)
	}
	scoring.SortByShortName(s.locale, scores)

	return types.NewGraduationReport(echo, scores), metrics.OutcomeOK, nil
}

// DivisionFilter narrows DivisionReport. Nil fields are not applied.
type DivisionFilter struct {
	RegionalID *int64
	Start      *time.Time
	End        *time.Time
}

// DivisionReport lists social actions grouped by division and by
// sub-classification, newest first. Divisions are ordered by id and actions
// without a sub-classification are left out.
func (s *Service) DivisionReport(ctx context.Context, f DivisionFilter) ([]types.DivisionActions, error) {
	started := time.Now()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	records, err := s.store.ListSocialActions(ctx, repository.SocialActionFilter{
		RegionalID: f.RegionalID,
		Start:      f.Start,
		End:        f.End,
	})
	if err != nil {
		metrics.RecordReport(metrics.ReportDivision, metrics.OutcomeError, float64(time.Since(started).Microseconds())/1000)
		s.logger.Error(ctx, "division report failed", logger.Error(err))
		return nil, fmt.Errorf("list social actions: %w", err)
	}

	byDivision := make(map[int64]*types.DivisionActions)
	for _, rec := range records {
		sa, ok := rec.Event.Category.(model.SocialAction)
		if !ok {
			continue
		}
		d, seen := byDivision[rec.Division.ID]
		if !seen {
			da := types.NewDivisionActions(rec.Division.ID, rec.Division.Name)
			d = &da
			byDivision[rec.Division.ID] = d
		}
		participants := make([]types.Participant, 0, len(rec.Participants))
		for _, p := range rec.Participants {
			participants = append(participants, types.Participant{ID: p.ID, ShortName: p.ShortName, HierarchyLevel: p.HierarchyLevel})
		}
		d.Add(sa.Action, types.SocialAction{
			ID:           rec.Event.ID,
			Name:         rec.Event.Title,
			Date:         rec.Event.Date,
			Participants: participants,
		})
	}

	out := make([]types.DivisionActions, 0, len(byDivision))
	for _, d := range byDivision {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DivisionID < out[j].DivisionID })

	outcome := metrics.OutcomeOK
	if len(out) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	metrics.RecordReport(metrics.ReportDivision, outcome, float64(time.Since(started).Microseconds())/1000)
	s.logger.Info(ctx, "division report generated",
		logger.Int("divisions", len(out)),
		logger.Int("actions", len(records)),
	)
	return out, nil
}

// LatePaymentInput describes a delinquency to record.
type LatePaymentInput struct {
	PersonID int64
	Year     int
	Month    int
	PaidAt   *time.Time
	Notes    *string
}

// RecordLatePayment stores a late payment for a member and period. Unknown
// members fail with repository.ErrNotFound and repeated periods with
// repository.ErrAlreadyExists.
func (s *Service) RecordLatePayment(ctx context.Context, in LatePaymentInput) (types.LatePaymentRecord, error) {
	p := model.Period{Year: in.Year, Month: in.Month}
	if !p.Valid() {
		return types.LatePaymentRecord{}, fmt.Errorf("%w: %d/%d", ErrInvalidPeriod, in.Month, in.Year)
	}

	lp, err := s.store.RecordLatePayment(ctx, model.LatePayment{
		MemberID: in.PersonID,
		Period:   p,
		PaidAt:   in.PaidAt,
		Notes:    in.Notes,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrAlreadyExists) {
			s.logger.Warn(ctx, "late payment rejected", logger.Int64("personId", in.PersonID), logger.Error(err))
		} else {
			s.logger.Error(ctx, "late payment failed", logger.Int64("personId", in.PersonID), logger.Error(err))
		}
		return types.LatePaymentRecord{}, fmt.Errorf("record late payment: %w", err)
	}

	s.logger.Info(ctx, "late payment recorded",
		logger.Int64("id", lp.ID),
		logger.Int64("personId", lp.MemberID),
		logger.String("period", lp.Period.String()),
	)
	return types.NewLatePaymentRecord(lp), nil
}

// Late payment listing page sizes.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// LatePayments returns one page of a member's late payments, newest period
// first. page starts at 1; out of range page and limit values are clamped.
// Unknown members fail with repository.ErrNotFound.
func (s *Service) LatePayments(ctx context.Context, personID int64, page, limit int) ([]types.LatePaymentRecord, error) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit < 1:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	lps, err := s.store.ListLatePayments(ctx, personID, limit, (page-1)*limit)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error(ctx, "listing late payments failed", logger.Int64("personId", personID), logger.Error(err))
		}
		return nil, fmt.Errorf("list late payments: %w", err)
	}
	out := make([]types.LatePaymentRecord, 0, len(lps))
	for _, lp := range lps {
		out = append(out, types.NewLatePaymentRecord(lp))
	}
	s.logger.Debug(ctx, "late payments listed",
		logger.Int64("personId", personID),
		logger.Int("page", page),
		logger.Int("count", len(out)),
	)
	return out, nil
}

// Authenticate checks email and password against the stored bcrypt hash.
// Unknown emails and wrong passwords both fail with ErrInvalidCredentials;
// inactive users fail with ErrInactiveUser.
func (s *Service) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	u, ok, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		s.logger.Error(ctx, "user lookup failed", logger.Error(err))
		return model.User{}, fmt.Errorf("find user: %w", err)
	}
	if !ok {
		return model.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn(ctx, "login rejected", logger.Int64("userId", u.ID))
		return model.User{}, ErrInvalidCredentials
	}
	if !u.Active {
		s.logger.Warn(ctx, "login by inactive user", logger.Int64("userId", u.ID))
		return model.User{}, ErrInactiveUser
	}
	s.logger.Info(ctx, "user authenticated", logger.Int64("userId", u.ID), logger.String("role", u.Role))
	return u, nil
}
