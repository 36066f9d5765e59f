package domain

import "fmt"

// Action is the verdict class of a Decision.
type Action string

const (
	ActionAccept    Action = "accept"
	ActionReject    Action = "reject"
	ActionNegotiate Action = "negotiate"
)

// Score orders acceptable Proposals. A Score may be undefined: the component
// accepts but does not rank, and an undefined Score sorts below every defined
// one.
type Score struct {
	Value   float64
	Defined bool
}

// ScoreOf returns a defined Score.
func ScoreOf(v float64) Score {
	return Score{Value: v, Defined: true}
}

// Better reports whether s ranks strictly above other.
func (s Score) Better(other Score) bool {
	if !s.Defined {
		return false
	}
	if !other.Defined {
		return true
	}
	return s.Value > other.Value
}

func (s Score) String() string {
	if !s.Defined {
		return "undefined"
	}
	return fmt.Sprintf("%.3f", s.Value)
}

// Reason explains a rejection. Final means re-proposing cannot change the
// verdict; without it the counterparty may try again with amended terms.
type Reason struct {
	Message string
	Final   bool
}

// NewReason builds a non-final Reason.
func NewReason(format string, args ...any) *Reason {
	return &Reason{Message: fmt.Sprintf(format, args...)}
}

// AsFinal marks the Reason final and returns it for chaining.
func (r *Reason) AsFinal() *Reason {
	r.Final = true
	return r
}

func (r *Reason) String() string {
	if r == nil {
		return ""
	}
	if r.Final {
		return r.Message + " (final)"
	}
	return r.Message
}

// Decision is a component's verdict on one Proposal. Exactly one of the three
// actions applies; Score accompanies Accept, Reason accompanies Reject, and
// Counter accompanies Negotiate.
type Decision struct {
	Action  Action
	Score   Score
	Reason  *Reason
	Counter *Proposal
}

// Accept builds an accepting Decision with the given Score.
func Accept(score Score) Decision {
	return Decision{Action: ActionAccept, Score: score}
}

// Reject builds a rejecting Decision.
func Reject(reason *Reason) Decision {
	return Decision{Action: ActionReject, Reason: reason}
}

// Negotiate builds a countering Decision. The counter must not be nil.
func Negotiate(counter *Proposal) Decision {
	return Decision{Action: ActionNegotiate, Counter: counter}
}

func (d Decision) String() string {
	switch d.Action {
	case ActionAccept:
		return fmt.Sprintf("accept(score=%s)", d.Score)
	case ActionReject:
		return fmt.Sprintf("reject(%s)", d.Reason)
	case ActionNegotiate:
		if d.Counter != nil {
			return fmt.Sprintf("negotiate(counter=%s)", d.Counter.ID)
		}
		return "negotiate"
	}
	return string(d.Action)
}
