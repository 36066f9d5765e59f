package session_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmarket/negotiator/internal/logging"
	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/harness"
	"github.com/gridmarket/negotiator/pkg/session"
)

var defaultCfg = session.Config{MaxRounds: 8, Timeout: time.Minute}

func newProposal(mock *clock.Mock) *domain.Proposal {
	return domain.NewProposal(domain.RoleRequestor, map[string]any{"price": 1.0}, mock.Now())
}

func TestAcceptSealsAgreement(t *testing.T) {
	mock := clock.NewMock()
	tree := harness.NewScripted(mock, harness.ScriptEntry{Decision: domain.Accept(domain.ScoreOf(0.8))})
	s := session.New(domain.RoleProvider, tree, defaultCfg, mock, logging.NewNop())
	assert.Equal(t, session.StateCreated, s.State())

	p := newProposal(mock)
	d, err := s.Receive(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionAccept, d.Action)

	assert.Equal(t, session.StateClosed, s.State())
	assert.Equal(t, domain.OutcomeAccepted, s.Outcome())
	require.NotNil(t, s.Agreement())
	assert.Equal(t, p.ID, s.Agreement().Terms.ID)

	trace := s.Trace()
	require.Len(t, trace, 1)
	assert.Equal(t, 0, trace[0].Round)
	assert.Equal(t, p.ID, trace[0].Proposal.ID)
}

func TestRejectCloses(t *testing.T) {
	mock := clock.NewMock()
	tree := harness.NewScripted(mock, harness.ScriptEntry{
		Decision: domain.Reject(domain.NewReason("too expensive")),
	})
	s := session.New(domain.RoleProvider, tree, defaultCfg, mock, logging.NewNop())

	d, err := s.Receive(context.Background(), newProposal(mock))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionReject, d.Action)
	assert.Equal(t, domain.OutcomeRejected, s.Outcome())
	assert.Nil(t, s.Agreement())
}

func TestReceiveAfterTerminalFails(t *testing.T) {
	mock := clock.NewMock()
	tree := harness.NewScripted(mock, harness.ScriptEntry{Decision: domain.Accept(domain.Score{})})
	s := session.New(domain.RoleProvider, tree, defaultCfg, mock, logging.NewNop())

	_, err := s.Receive(context.Background(), newProposal(mock))
	require.NoError(t, err)

	_, err = s.Receive(context.Background(), newProposal(mock))
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestRoundLimit(t *testing.T) {
	mock := clock.NewMock()
	// Always counters: the session must pull the brake at MaxRounds.
	counter := func() domain.Decision {
		p := domain.NewProposal(domain.RoleProvider, map[string]any{"price": 0.9}, mock.Now())
		return domain.Negotiate(p)
	}
	tree := harness.NewScripted(mock,
		harness.ScriptEntry{Decision: counter()},
		harness.ScriptEntry{Decision: counter()},
		harness.ScriptEntry{Decision: counter()},
	)
	cfg := session.Config{MaxRounds: 3, Timeout: time.Minute}
	s := session.New(domain.RoleProvider, tree, cfg, mock, logging.NewNop())

	var err error
	for i := 0; i < 3; i++ {
		_, err = s.Receive(context.Background(), newProposal(mock))
		if err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, domain.ErrRoundLimitExceeded)
	assert.Equal(t, session.StateRoundLimitExceeded, s.State())
	assert.Equal(t, domain.OutcomeRoundLimitExceeded, s.Outcome())
	assert.Equal(t, 3, s.Round())
}

func TestDeadlineBeforeReceive(t *testing.T) {
	mock := clock.NewMock()
	tree := harness.NewScripted(mock, harness.ScriptEntry{Decision: domain.Accept(domain.Score{})})
	cfg := session.Config{MaxRounds: 8, Timeout: 30 * time.Second}
	s := session.New(domain.RoleProvider, tree, cfg, mock, logging.NewNop())

	mock.Add(31 * time.Second)

	_, err := s.Receive(context.Background(), newProposal(mock))
	assert.ErrorIs(t, err, domain.ErrSessionTimeout)
	assert.Equal(t, session.StateTimedOut, s.State())
	assert.Equal(t, domain.OutcomeTimedOut, s.Outcome())
}

func TestDeadlineDuringEvaluation(t *testing.T) {
	mock := clock.NewMock()
	cfg := session.Config{MaxRounds: 8, Timeout: time.Second}
	s := session.New(domain.RoleProvider, harness.Silent{}, cfg, mock, logging.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := s.Receive(context.Background(), newProposal(mock))
		done <- err
	}()

	for {
		select {
		case err := <-done:
			assert.ErrorIs(t, err, domain.ErrSessionTimeout)
			assert.Equal(t, domain.OutcomeTimedOut, s.Outcome())
			return
		default:
			mock.Add(100 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestDuplicateProposalID(t *testing.T) {
	mock := clock.NewMock()
	counter := domain.NewProposal(domain.RoleProvider, nil, mock.Now())
	tree := harness.NewScripted(mock, harness.ScriptEntry{Decision: domain.Negotiate(counter)})
	s := session.New(domain.RoleProvider, tree, defaultCfg, mock, logging.NewNop())

	p := newProposal(mock)
	_, err := s.Receive(context.Background(), p)
	require.NoError(t, err)

	_, err = s.Receive(context.Background(), p)
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
}

func TestDecisionTimeoutIsRejectNotFatal(t *testing.T) {
	mock := clock.NewMock()
	tree := harness.NewScripted(mock, harness.ScriptEntry{
		Err: fmt.Errorf("%w: root exceeded call budget", domain.ErrDecisionTimeout),
	})
	s := session.New(domain.RoleProvider, tree, defaultCfg, mock, logging.NewNop())

	d, err := s.Receive(context.Background(), newProposal(mock))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionReject, d.Action)
	assert.False(t, d.Reason.Final)
	assert.Equal(t, domain.OutcomeRejected, s.Outcome())
}

func TestCancelDuringEvaluation(t *testing.T) {
	mock := clock.NewMock()
	s := session.New(domain.RoleProvider, harness.Silent{}, defaultCfg, mock, logging.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := s.Receive(context.Background(), newProposal(mock))
		done <- err
	}()

	// Let the evaluation start before cancelling.
	time.Sleep(5 * time.Millisecond)
	s.Cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, session.StateClosed, s.State())
	assert.Equal(t, domain.OutcomeRejected, s.Outcome())
}

func TestNegotiateKeepsSessionOpen(t *testing.T) {
	mock := clock.NewMock()
	counter := domain.NewProposal(domain.RoleProvider, map[string]any{"price": 0.9}, mock.Now())
	tree := harness.NewScripted(mock,
		harness.ScriptEntry{Decision: domain.Negotiate(counter)},
		harness.ScriptEntry{Decision: domain.Accept(domain.ScoreOf(1))},
	)
	s := session.New(domain.RoleProvider, tree, defaultCfg, mock, logging.NewNop())

	d, err := s.Receive(context.Background(), newProposal(mock))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionNegotiate, d.Action)
	assert.Equal(t, 1, s.Round())
	assert.Equal(t, session.StateEvaluating, s.State())

	d, err = s.Receive(context.Background(), newProposal(mock))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionAccept, d.Action)
	assert.Equal(t, domain.OutcomeAccepted, s.Outcome())

	trace := s.Trace()
	require.Len(t, trace, 2)
	assert.Equal(t, 0, trace[0].Round)
	assert.Equal(t, 1, trace[1].Round)
}
