// Package scoring applies the graduation rubric to a member and orders the
// results for reporting.
package scoring

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/okian/membros/internal/domain/model"
)

// Scorer computes a member's graduation score from the events of the window
// and the member's own late payments.
type Scorer interface {
	Score(member model.Member, events []model.Event, late []model.LatePayment) model.MemberScore
}

// RubricScorer implements Scorer with the fixed one-point-per-category rubric.
type RubricScorer struct{}

// NewRubricScorer returns the default scorer.
func NewRubricScorer() *RubricScorer {
	return &RubricScorer{}
}

// Score implements Scorer.
func (*RubricScorer) Score(member model.Member, events []model.Event, late []model.LatePayment) model.MemberScore {
	return ScoreMember(member, events, late)
}

// ScoreMember scores one member. Every event is listed in the result with a
// participated flag; each category scores at most 1 no matter how many
// events the member attended. Payments score 1 when late is empty.
func ScoreMember(member model.Member, events []model.Event, late []model.LatePayment) model.MemberScore {
	var scores model.Scores
	annotated := make([]model.EventParticipation, 0, len(events))

	for _, ev := range events {
		participated := ev.Participants.Has(member.ID)
		annotated = append(annotated, model.EventParticipation{Event: ev, Participated: participated})
		if !participated {
			continue
		}
		switch ev.Category.(type) {
		case model.SocialAction:
			scores.SocialAction = 1
		case model.Poll:
			scores.Poll = 1
		case model.Other:
			scores.OtherEvents = 1
		}
	}

	if len(late) == 0 {
		scores.Payments = 1
	}

	if late == nil {
		late = []model.LatePayment{}
	}

	return model.MemberScore{
		Member:       member,
		Scores:       scores,
		TotalScore:   scores.Total(),
		Events:       annotated,
		LatePayments: late,
	}
}

// GroupByMember indexes late payments by member id. Members without records
// are absent from the map.
func GroupByMember(late []model.LatePayment) map[int64][]model.LatePayment {
	out := make(map[int64][]model.LatePayment)
	for _, lp := range late {
		out[lp.MemberID] = append(out[lp.MemberID], lp)
	}
	return out
}

// SortByShortName orders scores by short name using the collation rules of
// tag. Equal names keep a stable order by member id.
func SortByShortName(tag language.Tag, scores []model.MemberScore) {
	// collate.Collator is not safe for concurrent use.
	c := collate.New(tag)
	sort.SliceStable(scores, func(i, j int) bool {
		if r := c.CompareString(scores[i].Member.ShortName, scores[j].Member.ShortName); r != 0 {
			return r < 0
		}
		return scores[i].Member.ID < scores[j].Member.ID
	})
}
