// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Event kinds as stored and serialized.
const (
	KindSocialAction = "social_action"
	KindPoll         = "poll"
	KindOther        = "other"
)

// ActionType sub-classifies social actions.
type ActionType string

// Known social action sub-classifications. ActionUnspecified covers rows
// recorded before the sub-classification existed.
const (
	ActionUnspecified ActionType = ""
	ActionInternal    ActionType = "internal"
	ActionExternal    ActionType = "external"
	ActionFundraising ActionType = "fundraising"
)

// Category is the closed set of event categories. Only SocialAction
// carries a sub-classification.
type Category interface {
	Kind() string
	category()
}

// SocialAction is a social action event.
type SocialAction struct {
	Action ActionType
}

// Poll is a poll event.
type Poll struct{}

// Other is any other activity.
type Other struct{}

func (SocialAction) Kind() string { return KindSocialAction }
func (Poll) Kind() string         { return KindPoll }
func (Other) Kind() string        { return KindOther }

func (SocialAction) category() {}
func (Poll) category()         {}
func (Other) category()        {}

// ParseCategory builds a Category from its stored representation. The action
// type only matters for social actions and is ignored otherwise.
func ParseCategory(kind string, action string) (Category, error) {
	switch kind {
	case KindSocialAction:
		switch a := ActionType(action); a {
		case ActionUnspecified, ActionInternal, ActionExternal, ActionFundraising:
			return SocialAction{Action: a}, nil
		default:
			return nil, fmt.Errorf("%w: action type %q", ErrInvalidCategory, action)
		}
	case KindPoll:
		return Poll{}, nil
	case KindOther:
		return Other{}, nil
	default:
		return nil, fmt.Errorf("%w: event type %q", ErrInvalidCategory, kind)
	}
}

// IDSet is a set of member ids.
type IDSet map[int64]struct{}

// NewIDSet builds a set from ids, dropping duplicates.
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set. A nil set contains nothing.
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Event is a dated activity of a division.
type Event struct {
	ID           int64
	Title        string
	Date         time.Time
	DivisionID   int64
	Category     Category
	Participants IDSet
}
