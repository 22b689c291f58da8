package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	"github.com/okian/membros/internal/adapters/repository"
	service "github.com/okian/membros/internal/app"
	"github.com/okian/membros/internal/domain/model"
	"github.com/okian/membros/internal/domain/period"
	"github.com/okian/membros/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// recordingStore wraps a memory store, records which providers were called
// and can fail or block selected ones.
type recordingStore struct {
	*repository.MemoryStore

	mu        sync.Mutex
	calls     []string
	failOn    map[string]error
	blockOn   string
	eventsArg []int64
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: repository.NewMemoryStore(), failOn: map[string]error{}}
}

func (r *recordingStore) enter(ctx context.Context, name string) error {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	err := r.failOn[name]
	block := r.blockOn == name
	r.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (r *recordingStore) called() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recordingStore) FindDivision(ctx context.Context, id int64) (model.Division, bool, error) {
	if err := r.enter(ctx, "division"); err != nil {
		return model.Division{}, false, err
	}
	return r.MemoryStore.FindDivision(ctx, id)
}

func (r *recordingStore) FindActiveMembers(ctx context.Context, divisionID int64) ([]model.Member, error) {
	if err := r.enter(ctx, "roster"); err != nil {
		return nil, err
	}
	return r.MemoryStore.FindActiveMembers(ctx, divisionID)
}

func (r *recordingStore) FindEvents(ctx context.Context, divisionID int64, start, end time.Time, memberIDs []int64) ([]model.Event, error) {
	if err := r.enter(ctx, "events"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.eventsArg = memberIDs
	r.mu.Unlock()
	return r.MemoryStore.FindEvents(ctx, divisionID, start, end, memberIDs)
}

func (r *recordingStore) FindLatePayments(ctx context.Context, memberIDs []int64, periods []model.Period) ([]model.LatePayment, error) {
	if err := r.enter(ctx, "late_payments"); err != nil {
		return nil, err
	}
	return r.MemoryStore.FindLatePayments(ctx, memberIDs, periods)
}

func january(t *testing.T) period.Range {
	t.Helper()
	r, err := period.ParseRange("01/01/2025", "31/01/2025", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestGraduationReport_DivisionNotFound(t *testing.T) {
	Convey("Given a store without division 999", t, func() {
		store := newRecordingStore()
		svc := service.New(service.WithStore(store))

		Convey("When generating its report", func() {
			_, err := svc.GraduationReport(context.Background(), 999, january(t))

			Convey("Then ErrDivisionNotFound is returned", func() {
				So(errors.Is(err, service.ErrDivisionNotFound), ShouldBeTrue)
			})

			Convey("And no other provider is invoked", func() {
				So(store.called(), ShouldResemble, []string{"division"})
			})
		})
	})
}

func TestGraduationReport_EmptyRoster(t *testing.T) {
	Convey("Given a division without active members", t, func() {
		store := newRecordingStore()
		store.PutDivision(model.Division{ID: 1, Name: "Norte"})
		store.PutMember(model.Member{ID: 1, ShortName: "Ana", Active: false, DivisionID: 1})
		svc := service.New(service.WithStore(store))

		Convey("When generating its report", func() {
			report, err := svc.GraduationReport(context.Background(), 1, january(t))

			Convey("Then the report is empty but well formed", func() {
				So(err, ShouldBeNil)
				So(report.Period.Start, ShouldEqual, "01/01/2025")
				So(report.Period.End, ShouldEqual, "31/01/2025")
				So(report.Data, ShouldNotBeNil)
				So(report.Data, ShouldBeEmpty)
			})

			Convey("And events and payments are not fetched", func() {
				So(store.called(), ShouldResemble, []string{"division", "roster"})
			})
		})
	})
}

func TestGraduationReport_EndToEnd(t *testing.T) {
	Convey("Given division 1 with member M, a social action and a late payment", t, func() {
		ctx := context.Background()
		store := newRecordingStore()
		store.PutDivision(model.Division{ID: 1, Name: "Norte"})
		store.PutMember(model.Member{ID: 1, FullName: "Maria Silva", ShortName: "Maria", Active: true, DivisionID: 1})
		store.PutEvent(model.Event{
			ID: 1, Title: "Sopão", DivisionID: 1,
			Date:         time.Date(2025, 1, 31, 22, 0, 0, 0, time.UTC),
			Category:     model.SocialAction{Action: model.ActionExternal},
			Participants: model.NewIDSet(1),
		})
		svc := service.New(service.WithStore(store))
		_, err := svc.RecordLatePayment(ctx, service.LatePaymentInput{PersonID: 1, Year: 2025, Month: 1})
		So(err, ShouldBeNil)

		Convey("When generating the report", func() {
			report, err := svc.GraduationReport(ctx, 1, january(t))

			Convey("Then the member scores only the social action", func() {
				So(err, ShouldBeNil)
				So(len(report.Data), ShouldEqual, 1)
				row := report.Data[0]
				So(row.PersonID, ShouldEqual, 1)
				So(row.Scores.SocialAction, ShouldEqual, 1)
				So(row.Scores.Poll, ShouldEqual, 0)
				So(row.Scores.OtherEvents, ShouldEqual, 0)
				So(row.Scores.Payments, ShouldEqual, 0)
				So(row.TotalScore, ShouldEqual, 1)
			})

			Convey("And the audit trail is attached", func() {
				row := report.Data[0]
				So(len(row.Events), ShouldEqual, 1)
				So(row.Events[0].Participated, ShouldBeTrue)
				So(row.Events[0].EventType, ShouldEqual, model.KindSocialAction)
				So(len(row.LatePayments), ShouldEqual, 1)
				So(row.LatePayments[0].Month, ShouldEqual, 1)
			})

			Convey("And providers ran in dependency order", func() {
				calls := store.called()
				So(calls[:2], ShouldResemble, []string{"division", "roster"})
				So(calls[2:], ShouldContain, "events")
				So(calls[2:], ShouldContain, "late_payments")
			})
		})
	})
}

func TestGraduationReport_Ordering(t *testing.T) {
	Convey("Given members with accented short names", t, func() {
		store := newRecordingStore()
		store.PutDivision(model.Division{ID: 1})
		for i, name := range []string{"Ângela", "Bruno", "Ana"} {
			store.PutMember(model.Member{ID: int64(i + 1), ShortName: name, Active: true, DivisionID: 1})
		}
		store.PutMember(model.Member{ID: 9, ShortName: "Zeca", Active: true, DivisionID: 2})

		Convey("When generating the report", func() {
			svc := service.New(service.WithStore(store), service.WithLocale(language.BrazilianPortuguese))
			report, err := svc.GraduationReport(context.Background(), 1, january(t))
			So(err, ShouldBeNil)

			Convey("Then rows follow pt-BR collation", func() {
				var names []string
				for _, row := range report.Data {
					names = append(names, row.ShortName)
				}
				So(names, ShouldResemble, []string{"Ana", "Ângela", "Bruno"})
			})

			Convey("And every member defaults to compliant payments", func() {
				for _, row := range report.Data {
					So(row.Scores.Payments, ShouldEqual, 1)
					So(row.TotalScore, ShouldEqual, 1)
				}
			})

			Convey("And events are fetched for the roster only", func() {
				So(store.eventsArg, ShouldResemble, []int64{1, 2, 3})
			})
		})
	})
}

func TestGraduationReport_Failures(t *testing.T) {
	Convey("Given a division with one member", t, func() {
		store := newRecordingStore()
		store.PutDivision(model.Division{ID: 1})
		store.PutMember(model.Member{ID: 1, ShortName: "Ana", Active: true, DivisionID: 1})

		Convey("When the event provider fails", func() {
			boom := errors.New("connection refused")
			store.failOn["events"] = boom
			_, err := service.New(service.WithStore(store)).GraduationReport(context.Background(), 1, january(t))

			Convey("Then the error propagates unchanged in kind", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "find events")
			})
		})

		Convey("When the division lookup fails", func() {
			boom := errors.New("timeout")
			store.failOn["division"] = boom
			_, err := service.New(service.WithStore(store)).GraduationReport(context.Background(), 1, january(t))

			Convey("Then it is not reported as not found", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				So(errors.Is(err, service.ErrDivisionNotFound), ShouldBeFalse)
			})
		})

		Convey("When a provider outlives the report timeout", func() {
			store.blockOn = "late_payments"
			svc := service.New(service.WithStore(store), service.WithReportTimeout(20*time.Millisecond))
			_, err := svc.GraduationReport(context.Background(), 1, january(t))

			Convey("Then the report is abandoned", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})

		Convey("When the range spans more months than allowed", func() {
			r, err := period.ParseRange("01/01/2024", "31/12/2025", time.UTC)
			So(err, ShouldBeNil)
			_, err = service.New(service.WithStore(store), service.WithMaxReportMonths(12)).GraduationReport(context.Background(), 1, r)

			Convey("Then ErrInvalidRange is returned right after the division lookup", func() {
				So(errors.Is(err, service.ErrInvalidRange), ShouldBeTrue)
				So(store.called(), ShouldResemble, []string{"division"})
			})
		})

		Convey("When an unknown division is asked for a range longer than allowed", func() {
			r, err := period.ParseRange("01/01/2020", "31/12/2025", time.UTC)
			So(err, ShouldBeNil)
			_, err = service.New(service.WithStore(store), service.WithMaxReportMonths(12)).GraduationReport(context.Background(), 999, r)

			Convey("Then the division is reported as not found", func() {
				So(errors.Is(err, service.ErrDivisionNotFound), ShouldBeTrue)
				So(errors.Is(err, service.ErrInvalidRange), ShouldBeFalse)
				So(store.called(), ShouldResemble, []string{"division"})
			})
		})
	})
}

func TestDivisionReport(t *testing.T) {
	Convey("Given social actions in two divisions", t, func() {
		store := newRecordingStore()
		store.PutDivision(model.Division{ID: 2, Name: "Sul", RegionalID: 10})
		store.PutDivision(model.Division{ID: 1, Name: "Norte", RegionalID: 10})
		store.PutDivision(model.Division{ID: 3, Name: "Leste", RegionalID: 20})
		store.PutMember(model.Member{ID: 1, ShortName: "Ana", HierarchyLevel: "X: PP", Active: true, DivisionID: 1})

		day := func(d int) time.Time { return time.Date(2025, 3, d, 12, 0, 0, 0, time.UTC) }
		store.PutEvent(model.Event{ID: 1, DivisionID: 2, Date: day(1), Title: "Bazar", Category: model.SocialAction{Action: model.ActionFundraising}})
		store.PutEvent(model.Event{ID: 2, DivisionID: 1, Date: day(2), Title: "Sopão", Category: model.SocialAction{Action: model.ActionExternal}, Participants: model.NewIDSet(1)})
		store.PutEvent(model.Event{ID: 3, DivisionID: 1, Date: day(5), Title: "Reunião", Category: model.SocialAction{Action: model.ActionInternal}})
		store.PutEvent(model.Event{ID: 4, DivisionID: 1, Date: day(6), Title: "Antiga", Category: model.SocialAction{}})
		store.PutEvent(model.Event{ID: 5, DivisionID: 1, Date: day(7), Title: "Votação", Category: model.Poll{}})
		store.PutEvent(model.Event{ID: 6, DivisionID: 3, Date: day(7), Title: "Mutirão", Category: model.SocialAction{Action: model.ActionExternal}})
		svc := service.New(service.WithStore(store))

		Convey("When listing regional 10", func() {
			regional := int64(10)
			got, err := svc.DivisionReport(context.Background(), service.DivisionFilter{RegionalID: &regional})

			Convey("Then divisions are grouped and ordered by id", func() {
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 2)
				So(got[0].DivisionName, ShouldEqual, "Norte")
				So(got[1].DivisionName, ShouldEqual, "Sul")
			})

			Convey("Then actions land in their sub-classification with participants", func() {
				norte := got[0].SocialActions
				So(len(norte.Internal), ShouldEqual, 1)
				So(len(norte.External), ShouldEqual, 1)
				So(norte.Fundraising, ShouldBeEmpty)
				So(norte.External[0].Name, ShouldEqual, "Sopão")
				So(norte.External[0].Participants[0].ShortName, ShouldEqual, "Ana")
				So(norte.External[0].Participants[0].HierarchyLevel, ShouldEqual, "X: PP")
				So(got[1].SocialActions.Fundraising[0].ID, ShouldEqual, 1)
			})
		})

		Convey("When filtering by date", func() {
			start, end := day(2), day(5)
			got, err := svc.DivisionReport(context.Background(), service.DivisionFilter{Start: &start, End: &end})

			Convey("Then only actions inside the window are listed", func() {
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 1)
				So(got[0].DivisionID, ShouldEqual, 1)
				So(len(got[0].SocialActions.Internal)+len(got[0].SocialActions.External), ShouldEqual, 2)
			})
		})

		Convey("When nothing matches", func() {
			regional := int64(99)
			got, err := svc.DivisionReport(context.Background(), service.DivisionFilter{RegionalID: &regional})
			So(err, ShouldBeNil)
			So(got, ShouldNotBeNil)
			So(got, ShouldBeEmpty)
		})
	})
}

func TestRecordLatePayment(t *testing.T) {
	Convey("Given a member", t, func() {
		ctx := context.Background()
		store := newRecordingStore()
		store.PutMember(model.Member{ID: 1, Active: true, DivisionID: 1})
		svc := service.New(service.WithStore(store))
		notes := "pagou no dia 20"

		Convey("When recording a valid late payment", func() {
			got, err := svc.RecordLatePayment(ctx, service.LatePaymentInput{PersonID: 1, Year: 2025, Month: 3, Notes: &notes})

			Convey("Then it is stored with an id", func() {
				So(err, ShouldBeNil)
				So(got.ID, ShouldBeGreaterThan, 0)
				So(got.PersonID, ShouldEqual, 1)
				So(*got.Notes, ShouldEqual, notes)
			})

			Convey("And recording the same period again conflicts", func() {
				_, err := svc.RecordLatePayment(ctx, service.LatePaymentInput{PersonID: 1, Year: 2025, Month: 3})
				So(errors.Is(err, repository.ErrAlreadyExists), ShouldBeTrue)
			})
		})

		Convey("When the month is out of range", func() {
			_, err := svc.RecordLatePayment(ctx, service.LatePaymentInput{PersonID: 1, Year: 2025, Month: 13})
			So(errors.Is(err, service.ErrInvalidPeriod), ShouldBeTrue)
		})

		Convey("When the member is unknown", func() {
			_, err := svc.RecordLatePayment(ctx, service.LatePaymentInput{PersonID: 42, Year: 2025, Month: 1})
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_New(t *testing.T) {
	Convey("Given a service without a store", t, func() {
		svc := service.New(service.WithStore(nil), service.WithScorer(nil), service.WithLocale(language.Und))

		Convey("Then it falls back to an empty store", func() {
			_, err := svc.GraduationReport(context.Background(), 1, january(t))
			So(errors.Is(err, service.ErrDivisionNotFound), ShouldBeTrue)
			So(svc.Close(), ShouldBeNil)
		})
	})
}

func TestLatePayments(t *testing.T) {
	Convey("Given a member with twelve late payments", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		store.PutMember(model.Member{ID: 1, Active: true, DivisionID: 1})
		for m := 1; m <= 12; m++ {
			_, err := store.RecordLatePayment(ctx, model.LatePayment{MemberID: 1, Period: model.Period{Year: 2024, Month: m}})
			So(err, ShouldBeNil)
		}
		svc := service.New(service.WithStore(store))

		Convey("When no paging is given", func() {
			got, err := svc.LatePayments(ctx, 1, 0, 0)

			Convey("Then the first page of the default size is returned, newest first", func() {
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, service.DefaultPageSize)
				So(got[0].Month, ShouldEqual, 12)
				So(got[0].PersonID, ShouldEqual, 1)
				So(got[9].Month, ShouldEqual, 3)
			})
		})

		Convey("When asking for the second page", func() {
			got, err := svc.LatePayments(ctx, 1, 2, 5)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 5)
			So(got[0].Month, ShouldEqual, 7)
		})

		Convey("When the page is past the end", func() {
			got, err := svc.LatePayments(ctx, 1, 9, 10)
			So(err, ShouldBeNil)
			So(got, ShouldNotBeNil)
			So(got, ShouldBeEmpty)
		})

		Convey("When the limit is too large", func() {
			got, err := svc.LatePayments(ctx, 1, 1, 10_000)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 12)
		})

		Convey("When the member is unknown", func() {
			_, err := svc.LatePayments(ctx, 42, 1, 10)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestAuthenticate(t *testing.T) {
	Convey("Given stored users", t, func() {
		ctx := context.Background()
		hash, err := bcrypt.GenerateFromPassword([]byte("segredo"), bcrypt.MinCost)
		So(err, ShouldBeNil)
		store := repository.NewMemoryStore()
		store.PutUser(model.User{ID: 1, Name: "Ana", Email: "ana@membros.org", PasswordHash: string(hash), Role: "admin", Active: true})
		store.PutUser(model.User{ID: 2, Name: "Beto", Email: "beto@membros.org", PasswordHash: string(hash), Role: "user"})
		svc := service.New(service.WithStore(store))

		Convey("When the password matches", func() {
			u, err := svc.Authenticate(ctx, "ana@membros.org", "segredo")
			So(err, ShouldBeNil)
			So(u.ID, ShouldEqual, 1)
			So(u.Role, ShouldEqual, "admin")
		})

		Convey("When the password is wrong", func() {
			_, err := svc.Authenticate(ctx, "ana@membros.org", "errado")
			So(errors.Is(err, service.ErrInvalidCredentials), ShouldBeTrue)
		})

		Convey("When the email is unknown", func() {
			_, err := svc.Authenticate(ctx, "caio@membros.org", "segredo")
			So(errors.Is(err, service.ErrInvalidCredentials), ShouldBeTrue)
		})

		Convey("When the user is inactive", func() {
			_, err := svc.Authenticate(ctx, "beto@membros.org", "segredo")
			So(errors.Is(err, service.ErrInactiveUser), ShouldBeTrue)
		})
	})
}

type closingStore struct {
	*repository.MemoryStore
	closed bool
}

func (c *closingStore) Close() error {
	c.closed = true
	return nil
}

func TestService_Close(t *testing.T) {
	Convey("Given a service over an instrumented store holding resources", t, func() {
		inner := &closingStore{MemoryStore: repository.NewMemoryStore()}
		svc := service.New(service.WithStore(repository.Instrument(inner)))

		Convey("Then closing the service closes the store", func() {
			So(svc.Close(), ShouldBeNil)
			So(inner.closed, ShouldBeTrue)
		})
	})
}
