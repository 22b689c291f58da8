package model

// Scores holds the four graduation sub-scores, each 0 or 1.
type Scores struct {
	SocialAction int
	Poll         int
	OtherEvents  int
	Payments     int
}

// Total is the sum of the sub-scores, in [0,4].
func (s Scores) Total() int {
	return s.SocialAction + s.Poll + s.OtherEvents + s.Payments
}

// EventParticipation is an event of the window annotated for one member.
type EventParticipation struct {
	Event        Event
	Participated bool
}

// MemberScore is the graduation result for one member.
type MemberScore struct {
	Member       Member
	Scores       Scores
	TotalScore   int
	Events       []EventParticipation
	LatePayments []LatePayment
}
