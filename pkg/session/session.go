// Package session drives one negotiation conversation from first Proposal to
// terminal outcome through a component tree, enforcing the round and time
// safety valves. Rounds are strictly sequential: a new round never starts
// before the previous round's Decision is finalized.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raulk/clock"

	"github.com/gridmarket/negotiator/internal/metrics"
	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/ports"
)

// State is the lifecycle phase of a Session.
type State string

const (
	StateCreated            State = "created"
	StateEvaluating         State = "evaluating"
	StateDecided            State = "decided"
	StateClosed             State = "closed"
	StateTimedOut           State = "timed_out"
	StateRoundLimitExceeded State = "round_limit_exceeded"
)

// Config bounds a Session.
type Config struct {
	// MaxRounds caps the round counter; reaching it terminates the Session
	// with RoundLimitExceeded regardless of the round's Decision.
	MaxRounds int

	// Timeout is the wall/virtual-clock budget measured from creation.
	Timeout time.Duration
}

// TraceEntry records one evaluated Proposal and the Decision it produced.
type TraceEntry struct {
	Round    int
	Proposal *domain.Proposal
	Decision domain.Decision
	At       time.Time
}

// Session is the per-conversation state machine. All methods are safe for
// concurrent use; Receive calls serialize.
type Session struct {
	id     string
	role   domain.Role
	tree   ports.Component
	clock  clock.Clock
	logger *slog.Logger
	cfg    Config

	createdAt time.Time
	deadline  time.Time

	mu        sync.Mutex
	state     State
	round     int
	outcome   domain.Outcome
	agreement *domain.Agreement
	trace     []TraceEntry
	seen      map[string]bool

	cancelOnce sync.Once
	cancelled  chan struct{}
}

// New creates a Session in the Created state. The deadline starts counting
// immediately.
func New(role domain.Role, tree ports.Component, cfg Config, clk clock.Clock, logger *slog.Logger) *Session {
	now := clk.Now()
	return &Session{
		id:        uuid.NewString(),
		role:      role,
		tree:      tree,
		clock:     clk,
		logger:    logger,
		cfg:       cfg,
		createdAt: now,
		deadline:  now.Add(cfg.Timeout),
		state:     StateCreated,
		seen:      make(map[string]bool),
		cancelled: make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Role returns which side of the market this Session negotiates for.
func (s *Session) Role() domain.Role { return s.role }

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Round returns the monotonic round counter.
func (s *Session) Round() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

// Outcome returns the terminal outcome, valid once the Session is terminal.
func (s *Session) Outcome() domain.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Agreement returns the sealed Agreement after an Accepted outcome.
func (s *Session) Agreement() *domain.Agreement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agreement
}

// Trace returns the recorded proposal/decision history.
func (s *Session) Trace() []TraceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TraceEntry, len(s.trace))
	copy(out, s.trace)
	return out
}

func (s *Session) terminal() bool {
	switch s.state {
	case StateClosed, StateTimedOut, StateRoundLimitExceeded:
		return true
	}
	return false
}

// Receive evaluates one inbound Proposal through the component tree and
// returns the Decision. A Negotiate Decision increments the round counter; an
// Accept or Reject makes the Session terminal. Exceeding the round limit or
// the deadline makes the Session terminal regardless of in-flight component
// state, with ErrRoundLimitExceeded or ErrSessionTimeout.
func (s *Session) Receive(ctx context.Context, proposal *domain.Proposal) (domain.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal() {
		return domain.Decision{}, fmt.Errorf("%w: session %s is %s", domain.ErrSessionClosed, s.id, s.state)
	}
	now := s.clock.Now()
	if !now.Before(s.deadline) {
		s.terminate(StateTimedOut, domain.OutcomeTimedOut)
		return domain.Decision{}, fmt.Errorf("%w: session %s", domain.ErrSessionTimeout, s.id)
	}
	if s.seen[proposal.ID] {
		return domain.Decision{}, fmt.Errorf("%w: duplicate proposal id %s in session %s",
			domain.ErrConfigInvalid, proposal.ID, s.id)
	}
	s.seen[proposal.ID] = true
	s.state = StateEvaluating

	decision, err := s.evaluate(ctx, proposal)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDecisionTimeout):
		// A non-responsive root component is a "no vote": lean towards Reject
		// rather than killing the Session.
		decision = domain.Reject(domain.NewReason("no decision within call timeout"))
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		s.terminate(StateClosed, domain.OutcomeRejected)
		return domain.Decision{}, err
	default:
		s.terminate(StateTimedOut, domain.OutcomeTimedOut)
		return domain.Decision{}, err
	}

	s.logger.Debug("proposal evaluated",
		slog.String("session", s.id),
		slog.Int("round", s.round),
		slog.String("proposal", proposal.ID),
		slog.String("decision", decision.String()))

	s.trace = append(s.trace, TraceEntry{
		Round:    s.round,
		Proposal: proposal,
		Decision: decision,
		At:       s.clock.Now(),
	})

	metrics.Decisions.WithLabelValues(string(decision.Action)).Inc()

	switch decision.Action {
	case domain.ActionNegotiate:
		s.round++
		if s.round >= s.cfg.MaxRounds {
			s.terminate(StateRoundLimitExceeded, domain.OutcomeRoundLimitExceeded)
			return decision, fmt.Errorf("%w: session %s reached round %d",
				domain.ErrRoundLimitExceeded, s.id, s.round)
		}
		s.state = StateEvaluating
	case domain.ActionAccept:
		s.state = StateDecided
		s.agreement = domain.NewAgreement(proposal, s.clock.Now())
		s.terminate(StateClosed, domain.OutcomeAccepted)
	case domain.ActionReject:
		s.state = StateDecided
		s.terminate(StateClosed, domain.OutcomeRejected)
	}
	return decision, nil
}

// terminate records the single terminal outcome. Callers hold s.mu.
func (s *Session) terminate(state State, outcome domain.Outcome) {
	s.state = state
	s.outcome = outcome
	metrics.SessionsTerminated.WithLabelValues(string(outcome)).Inc()
}

// evaluate races the component tree against the session deadline and external
// cancellation. On either, the in-flight fan-out is abandoned through context
// cancellation and late replies are discarded by the composite layer.
func (s *Session) evaluate(ctx context.Context, proposal *domain.Proposal) (domain.Decision, error) {
	evalCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	info := domain.SessionInfo{
		SessionID: s.id,
		Round:     s.round,
		Deadline:  s.deadline,
	}

	type result struct {
		decision domain.Decision
		err      error
	}
	done := make(chan result, 1)
	go func() {
		d, err := s.tree.Decide(evalCtx, proposal, info)
		done <- result{decision: d, err: err}
	}()

	timer := s.clock.Timer(s.deadline.Sub(s.clock.Now()))
	defer timer.Stop()

	select {
	case r := <-done:
		return r.decision, r.err
	case <-timer.C:
		return domain.Decision{}, fmt.Errorf("%w: session %s", domain.ErrSessionTimeout, s.id)
	case <-s.cancelled:
		return domain.Decision{}, context.Canceled
	case <-ctx.Done():
		return domain.Decision{}, ctx.Err()
	}
}

// Cancel abandons the Session: any in-flight evaluation stops without
// re-invoking children, and the Session closes Rejected if it was not already
// terminal.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelled)
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.terminal() {
		s.terminate(StateClosed, domain.OutcomeRejected)
	}
}
