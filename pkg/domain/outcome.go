package domain

// Outcome is the single terminal result of a Session. Every Session, however
// it fails, ends in exactly one of these.
type Outcome string

const (
	OutcomeAccepted           Outcome = "accepted"
	OutcomeRejected           Outcome = "rejected"
	OutcomeTimedOut           Outcome = "timed_out"
	OutcomeRoundLimitExceeded Outcome = "round_limit_exceeded"
)

// Terminal reports whether o is a valid terminal outcome.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeAccepted, OutcomeRejected, OutcomeTimedOut, OutcomeRoundLimitExceeded:
		return true
	}
	return false
}
