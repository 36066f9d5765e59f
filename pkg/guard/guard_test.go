package guard_test

import (
	"context"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmarket/negotiator/internal/logging"
	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/guard"
	"github.com/gridmarket/negotiator/pkg/harness"
)

func newProposal(mock *clock.Mock) *domain.Proposal {
	return domain.NewProposal(domain.RoleRequestor, map[string]any{"price": 1.0}, mock.Now())
}

func TestPanicTripsPermanently(t *testing.T) {
	mock := clock.NewMock()
	inner := harness.NewScripted(mock,
		harness.ScriptEntry{Panic: "boom"},
		harness.ScriptEntry{Decision: domain.Accept(domain.ScoreOf(1))},
	)
	g := guard.Wrap("victim", inner, mock, 0, logging.NewNop())

	d, err := g.Decide(context.Background(), newProposal(mock), domain.SessionInfo{})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionReject, d.Action)
	require.NotNil(t, d.Reason)
	assert.True(t, d.Reason.Final)
	assert.True(t, g.Tripped())

	// The second scripted entry would accept, but the stub answers instead.
	d, err = g.Decide(context.Background(), newProposal(mock), domain.SessionInfo{})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionReject, d.Action)
	assert.True(t, d.Reason.Final)
}

func TestErrorBecomesNonFinalReject(t *testing.T) {
	mock := clock.NewMock()
	inner := harness.NewScripted(mock, harness.ScriptEntry{Err: assert.AnError})
	g := guard.Wrap("flaky", inner, mock, 0, logging.NewNop())

	d, err := g.Decide(context.Background(), newProposal(mock), domain.SessionInfo{})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionReject, d.Action)
	assert.False(t, d.Reason.Final)
	assert.False(t, g.Tripped())
}

func TestInvalidDecisionTrips(t *testing.T) {
	t.Run("unknown action", func(t *testing.T) {
		mock := clock.NewMock()
		inner := harness.NewScripted(mock, harness.ScriptEntry{
			Decision: domain.Decision{Action: "approve"},
		})
		g := guard.Wrap("weird", inner, mock, 0, logging.NewNop())

		d, err := g.Decide(context.Background(), newProposal(mock), domain.SessionInfo{})
		require.NoError(t, err)
		assert.Equal(t, domain.ActionReject, d.Action)
		assert.True(t, g.Tripped())
	})

	t.Run("negotiate without counter", func(t *testing.T) {
		mock := clock.NewMock()
		inner := harness.NewScripted(mock, harness.ScriptEntry{
			Decision: domain.Decision{Action: domain.ActionNegotiate},
		})
		g := guard.Wrap("weird", inner, mock, 0, logging.NewNop())

		d, err := g.Decide(context.Background(), newProposal(mock), domain.SessionInfo{})
		require.NoError(t, err)
		assert.Equal(t, domain.ActionReject, d.Action)
		assert.True(t, g.Tripped())
	})
}

func TestCallTimeout(t *testing.T) {
	mock := clock.NewMock()
	g := guard.Wrap("hung", harness.Silent{}, mock, 100*time.Millisecond, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel() // releases the abandoned inner call

	done := make(chan error, 1)
	go func() {
		_, err := g.Decide(ctx, newProposal(mock), domain.SessionInfo{})
		done <- err
	}()

	for {
		select {
		case err := <-done:
			assert.ErrorIs(t, err, domain.ErrDecisionTimeout)
			// A timeout is "no vote", not a fault.
			assert.False(t, g.Tripped())
			return
		default:
			mock.Add(10 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestNotifyPanicTrips(t *testing.T) {
	mock := clock.NewMock()
	g := guard.Wrap("victim", panickyNotifier{}, mock, 0, logging.NewNop())

	g.Notify(domain.Event{Kind: domain.EventAgreementApproved})
	assert.True(t, g.Tripped())

	d, err := g.Decide(context.Background(), newProposal(mock), domain.SessionInfo{})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionReject, d.Action)
}

func TestControl(t *testing.T) {
	mock := clock.NewMock()

	t.Run("not controllable", func(t *testing.T) {
		g := guard.Wrap("plain", harness.Silent{}, mock, 0, logging.NewNop())
		_, err := g.Control(context.Background(), nil)
		assert.ErrorIs(t, err, domain.ErrNotControllable)
	})

	t.Run("tripped refuses commands", func(t *testing.T) {
		inner := harness.NewScripted(mock, harness.ScriptEntry{Panic: "boom"})
		g := guard.Wrap("victim", inner, mock, 0, logging.NewNop())
		_, _ = g.Decide(context.Background(), newProposal(mock), domain.SessionInfo{})
		require.True(t, g.Tripped())

		_, err := g.Control(context.Background(), nil)
		assert.ErrorIs(t, err, domain.ErrNotControllable)
	})
}

func TestShutdownPanicContained(t *testing.T) {
	mock := clock.NewMock()
	g := guard.Wrap("victim", panickyNotifier{}, mock, 0, logging.NewNop())

	err := g.Shutdown()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "victim")
}

// panickyNotifier faults on every side-channel call.
type panickyNotifier struct{}

func (panickyNotifier) Decide(context.Context, *domain.Proposal, domain.SessionInfo) (domain.Decision, error) {
	return domain.Accept(domain.Score{}), nil
}

func (panickyNotifier) Notify(domain.Event) { panic("notify fault") }

func (panickyNotifier) Shutdown() error { panic("shutdown fault") }
