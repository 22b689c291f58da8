// Package types contains the report payloads shared by the service and the
// HTTP layer.
package types

import (
	"time"

	"github.com/okian/membros/internal/domain/model"
)

// Period echoes the requested window exactly as the caller sent it.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// GraduationReport is the graduation score report of one division.
type GraduationReport struct {
	Period Period        `json:"period"`
	Data   []MemberScore `json:"data"`
}

// Scores mirrors model.Scores on the wire.
type Scores struct {
	SocialAction int `json:"socialAction"`
	Poll         int `json:"poll"`
	OtherEvents  int `json:"otherEvents"`
	Payments     int `json:"payments"`
}

// MemberEvent is an event of the window annotated for one member.
type MemberEvent struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Date         time.Time `json:"date"`
	EventType    string    `json:"eventType"`
	Participated bool      `json:"participated"`
}

// LatePayment is a late payment record as listed in a report.
type LatePayment struct {
	Year   int        `json:"year"`
	Month  int        `json:"month"`
	PaidAt *time.Time `json:"paidAt"`
	Notes  *string    `json:"notes,omitempty"`
}

// MemberScore is one row of the graduation report.
type MemberScore struct {
	PersonID     int64         `json:"personId"`
	FullName     string        `json:"fullName"`
	ShortName    string        `json:"shortName"`
	Scores       Scores        `json:"scores"`
	TotalScore   int           `json:"totalScore"`
	Events       []MemberEvent `json:"events"`
	LatePayments []LatePayment `json:"latePayments"`
}

// NewGraduationReport converts scored members, already ordered, into a report.
func NewGraduationReport(p Period, scores []model.MemberScore) GraduationReport {
	data := make([]MemberScore, 0, len(scores))
	for _, s := range scores {
		data = append(data, FromMemberScore(s))
	}
	return GraduationReport{Period: p, Data: data}
}

// FromMemberScore converts a domain score to its wire form.
func FromMemberScore(s model.MemberScore) MemberScore {
	events := make([]MemberEvent, 0, len(s.Events))
	for _, ep := range s.Events {
		events = append(events, MemberEvent{
			ID:           ep.Event.ID,
			Title:        ep.Event.Title,
			Date:         ep.Event.Date,
			EventType:    ep.Event.Category.Kind(),
			Participated: ep.Participated,
		})
	}
	late := make([]LatePayment, 0, len(s.LatePayments))
	for _, lp := range s.LatePayments {
		late = append(late, FromLatePayment(lp))
	}
	return MemberScore{
		PersonID:  s.Member.ID,
		FullName:  s.Member.FullName,
		ShortName: s.Member.ShortName,
		Scores: Scores{
			SocialAction: s.Scores.SocialAction,
			Poll:         s.Scores.Poll,
			OtherEvents:  s.Scores.OtherEvents,
			Payments:     s.Scores.Payments,
		},
		TotalScore:   s.TotalScore,
		Events:       events,
		LatePayments: late,
	}
}

// FromLatePayment converts a late payment record to its wire form.
func FromLatePayment(lp model.LatePayment) LatePayment {
	return LatePayment{
		Year:   lp.Period.Year,
		Month:  lp.Period.Month,
		PaidAt: lp.PaidAt,
		Notes:  lp.Notes,
	}
}

// Participant is a member listed on a social action.
type Participant struct {
	ID             int64  `json:"id"`
	ShortName      string `json:"shortName"`
	HierarchyLevel string `json:"hierarchyLevel"`
}

// SocialAction is one social action event in the division report.
type SocialAction struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Date         time.Time     `json:"date"`
	Participants []Participant `json:"participants"`
}

// SocialActions groups a division's social actions by sub-classification.
type SocialActions struct {
	Internal    []SocialAction `json:"internal"`
	External    []SocialAction `json:"external"`
	Fundraising []SocialAction `json:"fundraising"`
}

// DivisionActions is the social action listing of one division.
type DivisionActions struct {
	DivisionID    int64         `json:"divisionId"`
	DivisionName  string        `json:"divisionName"`
	SocialActions SocialActions `json:"socialActions"`
}

// Add files action under its sub-classification. Unclassified actions are
// dropped and Add reports false.
func (d *DivisionActions) Add(action model.ActionType, sa SocialAction) bool {
	switch action {
	case model.ActionInternal:
		d.SocialActions.Internal = append(d.SocialActions.Internal, sa)
	case model.ActionExternal:
		d.SocialActions.External = append(d.SocialActions.External, sa)
	case model.ActionFundraising:
		d.SocialActions.Fundraising = append(d.SocialActions.Fundraising, sa)
	default:
		return false
	}
	return true
}

// NewDivisionActions returns an empty listing with non-nil groups so they
// serialize as [] rather than null.
func NewDivisionActions(id int64, name string) DivisionActions {
	return DivisionActions{
		DivisionID:   id,
		DivisionName: name,
		SocialActions: SocialActions{
			Internal:    []SocialAction{},
			External:    []SocialAction{},
			Fundraising: []SocialAction{},
		},
	}
}

// LatePaymentRecord is a stored late payment as returned by the
// late payment endpoints.
type LatePaymentRecord struct {
	ID       int64 `json:"id"`
	PersonID int64 `json:"personId"`
	LatePayment
}

// NewLatePaymentRecord converts a stored late payment.
func NewLatePaymentRecord(lp model.LatePayment) LatePaymentRecord {
	return LatePaymentRecord{ID: lp.ID, PersonID: lp.MemberID, LatePayment: FromLatePayment(lp)}
}
