// Package postgres implements the repository providers on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/okian/membros/internal/adapters/repository"
	"github.com/okian/membros/internal/domain/model"
)

// Postgres error codes mapped to repository errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store is a repository.Store backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ repository.Store = (*Store)(nil)

// Open connects to dsn, configures the pool and pings the server.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	o := options{
		maxOpenConns:    defaultMaxOpenConns,
		maxIdleConns:    defaultMaxIdleConns,
		connMaxLifetime: defaultConnMaxLifetime,
	}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxIdleConns)
	db.SetConnMaxLifetime(o.connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db), nil
}

// New wraps an existing connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle, for migrations.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type divisionRow struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	RegionalID int64  `db:"regional_id"`
}

func (r divisionRow) model() model.Division {
	return model.Division{ID: r.ID, Name: r.Name, RegionalID: r.RegionalID}
}

type personRow struct {
	ID             int64  `db:"id"`
	FullName       string `db:"full_name"`
	ShortName      string `db:"short_name"`
	HierarchyLevel string `db:"hierarchy_level"`
	Active         bool   `db:"is_active"`
	DivisionID     int64  `db:"division_id"`
}

func (r personRow) model() model.Member {
	return model.Member{
		ID:             r.ID,
		FullName:       r.FullName,
		ShortName:      r.ShortName,
		HierarchyLevel: r.HierarchyLevel,
		Active:         r.Active,
		DivisionID:     r.DivisionID,
	}
}

type eventRow struct {
	ID             int64          `db:"id"`
	Title          string         `db:"title"`
	Date           time.Time      `db:"date"`
	DivisionID     int64          `db:"division_id"`
	EventType      string         `db:"event_type"`
	ActionType     string         `db:"action_type"`
	ParticipantIDs pq.Int64Array  `db:"participant_ids"`
	DivisionName   sql.NullString `db:"division_name"`
	RegionalID     sql.NullInt64  `db:"regional_id"`
}

func (r eventRow) model() (model.Event, error) {
	c, err := model.ParseCategory(r.EventType, r.ActionType)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %d: %w", r.ID, err)
	}
	return model.Event{
		ID:           r.ID,
		Title:        r.Title,
		Date:         r.Date,
		DivisionID:   r.DivisionID,
		Category:     c,
		Participants: model.NewIDSet(r.ParticipantIDs...),
	}, nil
}

type latePaymentRow struct {
	ID       int64          `db:"id"`
	PersonID int64          `db:"person_id"`
	Year     int            `db:"year"`
	Month    int            `db:"month"`
	PaidAt   sql.NullTime   `db:"paid_at"`
	Notes    sql.NullString `db:"notes"`
}

func (r latePaymentRow) model() model.LatePayment {
	lp := model.LatePayment{
		ID:       r.ID,
		MemberID: r.PersonID,
		Period:   model.Period{Year: r.Year, Month: r.Month},
	}
	if r.PaidAt.Valid {
		t := r.PaidAt.Time
		lp.PaidAt = &t
	}
	if r.Notes.Valid {
		n := r.Notes.String
		lp.Notes = &n
	}
	return lp
}

const queryDivision = `SELECT id, name, regional_id FROM divisions WHERE id = $1`

// FindDivision implements repository.DivisionFinder.
func (s *Store) FindDivision(ctx context.Context, id int64) (model.Division, bool, error) {
	var row divisionRow
	err := s.db.GetContext(ctx, &row, queryDivision, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Division{}, false, nil
	}
	if err != nil {
		return model.Division{}, false, fmt.Errorf("find division %d: %w", id, err)
	}
	return row.model(), true, nil
}

const queryActiveMembers = `
SELECT id, full_name, short_name, COALESCE(hierarchy_level, '') AS hierarchy_level, is_active, division_id
FROM persons
WHERE division_id = $1 AND is_active
ORDER BY id`

// FindActiveMembers implements repository.RosterProvider.
func (s *Store) FindActiveMembers(ctx context.Context, divisionID int64) ([]model.Member, error) {
	var rows []personRow
	if err := s.db.SelectContext(ctx, &rows, queryActiveMembers, divisionID); err != nil {
		return nil, fmt.Errorf("find active members of division %d: %w", divisionID, err)
	}
	out := make([]model.Member, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

const queryEvents = `
SELECT e.id, e.title, e.date, e.division_id, e.event_type, COALESCE(e.action_type, '') AS action_type,
       COALESCE(array_agg(ehp.person_id) FILTER (WHERE ehp.person_id = ANY($4)), '{}') AS participant_ids
FROM events e
LEFT JOIN event_has_person ehp ON ehp.event_id = e.id
WHERE e.division_id = $1 AND e.date BETWEEN $2 AND $3
GROUP BY e.id
ORDER BY e.date ASC, e.id ASC`

// FindEvents implements repository.EventProvider.
func (s *Store) FindEvents(ctx context.Context, divisionID int64, start, end time.Time, memberIDs []int64) ([]model.Event, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, queryEvents, divisionID, start, end, pq.Int64Array(memberIDs)); err != nil {
		return nil, fmt.Errorf("find events of division %d: %w", divisionID, err)
	}
	out := make([]model.Event, 0, len(rows))
	for _, r := range rows {
		e, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

const queryLatePayments = `
SELECT id, person_id, year, month, paid_at, notes
FROM late_payments
WHERE person_id = ANY($1) AND (year * 100 + month) = ANY($2)
ORDER BY id`

// FindLatePayments implements repository.LatePaymentProvider.
func (s *Store) FindLatePayments(ctx context.Context, memberIDs []int64, periods []model.Period) ([]model.LatePayment, error) {
	if len(memberIDs) == 0 || len(periods) == 0 {
		return nil, nil
	}
	keys := make(pq.Int64Array, 0, len(periods))
	for _, p := range periods {
		keys = append(keys, int64(p.Key()))
	}

	var rows []latePaymentRow
	if err := s.db.SelectContext(ctx, &rows, queryLatePayments, pq.Int64Array(memberIDs), keys); err != nil {
		return nil, fmt.Errorf("find late payments: %w", err)
	}
	out := make([]model.LatePayment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

const querySocialActions = `
SELECT e.id, e.title, e.date, e.division_id, e.event_type, COALESCE(e.action_type, '') AS action_type,
       '{}'::bigint[] AS participant_ids, d.name AS division_name, d.regional_id
FROM events e
JOIN divisions d ON d.id = e.division_id
WHERE %s
ORDER BY e.date DESC, e.id ASC`

const queryParticipants = `
SELECT ehp.event_id, p.id, p.full_name, p.short_name, COALESCE(p.hierarchy_level, '') AS hierarchy_level,
       p.is_active, p.division_id
FROM event_has_person ehp
JOIN persons p ON p.id = ehp.person_id
WHERE ehp.event_id = ANY($1)
ORDER BY ehp.event_id, p.id`

type participantRow struct {
	EventID int64 `db:"event_id"`
	personRow
}

// ListSocialActions implements repository.SocialActionLister.
func (s *Store) ListSocialActions(ctx context.Context, filter repository.SocialActionFilter) ([]repository.SocialActionRecord, error) {
	where := []string{"e.event_type = 'social_action'"}
	var args []interface{}
	if filter.RegionalID != nil {
		args = append(args, *filter.RegionalID)
		where = append(where, fmt.Sprintf("d.regional_id = $%d", len(args)))
	}
	if filter.Start != nil {
		args = append(args, *filter.Start)
		where = append(where, fmt.Sprintf("e.date >= $%d", len(args)))
	}
	if filter.End != nil {
		args = append(args, *filter.End)
		where = append(where, fmt.Sprintf("e.date <= $%d", len(args)))
	}

	var rows []eventRow
	query := fmt.Sprintf(querySocialActions, strings.Join(where, " AND "))
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list social actions: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make(pq.Int64Array, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	var prows []participantRow
	if err := s.db.SelectContext(ctx, &prows, queryParticipants, ids); err != nil {
		return nil, fmt.Errorf("list social action participants: %w", err)
	}
	byEvent := make(map[int64][]model.Member, len(rows))
	for _, p := range prows {
		byEvent[p.EventID] = append(byEvent[p.EventID], p.model())
	}

	out := make([]repository.SocialActionRecord, 0, len(rows))
	for _, r := range rows {
		e, err := r.model()
		if err != nil {
			return nil, err
		}
		participants := byEvent[r.ID]
		e.Participants = make(model.IDSet, len(participants))
		for _, p := range participants {
			e.Participants[p.ID] = struct{}{}
		}
		out = append(out, repository.SocialActionRecord{
			Event:        e,
			Division:     model.Division{ID: r.DivisionID, Name: r.DivisionName.String, RegionalID: r.RegionalID.Int64},
			Participants: participants,
		})
	}
	return out, nil
}

const (
	queryPersonExists = `SELECT EXISTS (SELECT 1 FROM persons WHERE id = $1)`

	queryLatePaymentPage = `
SELECT id, person_id, year, month, paid_at, notes
FROM late_payments
WHERE person_id = $1
ORDER BY year DESC, month DESC
LIMIT $2 OFFSET $3`
)

// ListLatePayments implements repository.LatePaymentLister.
func (s *Store) ListLatePayments(ctx context.Context, memberID int64, limit, offset int) ([]model.LatePayment, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, queryPersonExists, memberID); err != nil {
		return nil, fmt.Errorf("find person %d: %w", memberID, err)
	}
	if !exists {
		return nil, fmt.Errorf("person %d: %w", memberID, repository.ErrNotFound)
	}

	var rows []latePaymentRow
	if err := s.db.SelectContext(ctx, &rows, queryLatePaymentPage, memberID, limit, offset); err != nil {
		return nil, fmt.Errorf("list late payments of person %d: %w", memberID, err)
	}
	out := make([]model.LatePayment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

type userRow struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Role         string `db:"role"`
	Active       bool   `db:"is_active"`
}

const queryUserByEmail = `
SELECT id, name, email, password_hash, role, is_active
FROM users
WHERE lower(email) = lower($1)`

// FindUserByEmail implements repository.UserFinder.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (model.User, bool, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, queryUserByEmail, email)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, fmt.Errorf("find user: %w", err)
	}
	return model.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Role:         row.Role,
		Active:       row.Active,
	}, true, nil
}

const insertLatePayment = `
INSERT INTO late_payments (person_id, year, month, paid_at, notes)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

// RecordLatePayment implements repository.LatePaymentRecorder.
func (s *Store) RecordLatePayment(ctx context.Context, lp model.LatePayment) (model.LatePayment, error) {
	var id int64
	err := s.db.QueryRowxContext(ctx, insertLatePayment,
		lp.MemberID, lp.Period.Year, lp.Period.Month, lp.PaidAt, lp.Notes,
	).Scan(&id)
	if err != nil {
		return model.LatePayment{}, mapWriteError(fmt.Sprintf("late payment %d/%s", lp.MemberID, lp.Period), err)
	}
	lp.ID = id
	return lp, nil
}

func mapWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", op, repository.ErrAlreadyExists)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
