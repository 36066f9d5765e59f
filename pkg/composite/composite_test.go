package composite_test

import (
	"context"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmarket/negotiator/internal/logging"
	"github.com/gridmarket/negotiator/pkg/composite"
	"github.com/gridmarket/negotiator/pkg/config"
	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/harness"
)

// decide runs the engine in a goroutine while the mock clock advances, so
// window timers and scripted delays fire deterministically.
func decide(t *testing.T, mock *clock.Mock, engine *composite.Engine) domain.Decision {
	t.Helper()

	proposal := domain.NewProposal(domain.RoleRequestor, map[string]any{"price": 1.0}, mock.Now())
	type result struct {
		decision domain.Decision
		err      error
	}
	done := make(chan result, 1)
	go func() {
		d, err := engine.Decide(context.Background(), proposal, domain.SessionInfo{})
		done <- result{d, err}
	}()

	for {
		select {
		case res := <-done:
			require.NoError(t, res.err)
			return res.decision
		default:
			mock.Add(10 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}

func accepting(mock *clock.Mock, delay time.Duration, score domain.Score) *harness.Scripted {
	return harness.NewScripted(mock, harness.ScriptEntry{Delay: delay, Decision: domain.Accept(score)})
}

func TestBestScoredAcceptWins(t *testing.T) {
	mock := clock.NewMock()
	engine := composite.New("root", config.CompositePolicy{Window: 500 * time.Millisecond}, mock, logging.NewNop())
	engine.Add("early-low", accepting(mock, 100*time.Millisecond, domain.ScoreOf(0.5)))
	engine.Add("late-high", accepting(mock, 200*time.Millisecond, domain.ScoreOf(0.9)))
	engine.Add("silent", harness.Silent{})

	d := decide(t, mock, engine)
	assert.Equal(t, domain.ActionAccept, d.Action)
	assert.Equal(t, domain.ScoreOf(0.9), d.Score)
}

func TestTieBreaksByRegistrationOrder(t *testing.T) {
	mock := clock.NewMock()
	engine := composite.New("root", config.CompositePolicy{Window: 500 * time.Millisecond}, mock, logging.NewNop())
	// The later-registered child replies first; the tie must still go to the
	// earlier registration.
	first := accepting(mock, 200*time.Millisecond, domain.ScoreOf(0.7))
	second := accepting(mock, 50*time.Millisecond, domain.ScoreOf(0.7))
	engine.Add("first", first)
	engine.Add("second", second)

	d := decide(t, mock, engine)
	assert.Equal(t, domain.ActionAccept, d.Action)
	assert.Equal(t, domain.ScoreOf(0.7), d.Score)
	// Both decisions carry the same score, so distinguish them by identity:
	// rebuild with distinct scores shifted by registration.
	engine2 := composite.New("root", config.CompositePolicy{Window: 500 * time.Millisecond}, mock, logging.NewNop())
	engine2.Add("first", harness.NewScripted(mock, harness.ScriptEntry{
		Delay:    200 * time.Millisecond,
		Decision: domain.Decision{Action: domain.ActionAccept, Score: domain.ScoreOf(0.7), Reason: domain.NewReason("first")},
	}))
	engine2.Add("second", harness.NewScripted(mock, harness.ScriptEntry{
		Delay:    50 * time.Millisecond,
		Decision: domain.Decision{Action: domain.ActionAccept, Score: domain.ScoreOf(0.7), Reason: domain.NewReason("second")},
	}))
	d2 := decide(t, mock, engine2)
	require.NotNil(t, d2.Reason)
	assert.Equal(t, "first", d2.Reason.Message)
}

func TestLateRepliesAreDiscarded(t *testing.T) {
	mock := clock.NewMock()
	engine := composite.New("root", config.CompositePolicy{Window: 100 * time.Millisecond}, mock, logging.NewNop())
	engine.Add("slow-high", accepting(mock, 300*time.Millisecond, domain.ScoreOf(0.9)))
	engine.Add("fast-low", accepting(mock, 50*time.Millisecond, domain.ScoreOf(0.2)))

	d := decide(t, mock, engine)
	assert.Equal(t, domain.ActionAccept, d.Action)
	assert.Equal(t, domain.ScoreOf(0.2), d.Score)
}

func TestRejectByDefault(t *testing.T) {
	mock := clock.NewMock()
	engine := composite.New("root", config.CompositePolicy{Window: 100 * time.Millisecond}, mock, logging.NewNop())
	engine.Add("silent", harness.Silent{})

	d := decide(t, mock, engine)
	assert.Equal(t, domain.ActionReject, d.Action)
	require.NotNil(t, d.Reason)
	assert.Contains(t, d.Reason.Message, "root")
}

func TestFallbackAcceptPolicy(t *testing.T) {
	mock := clock.NewMock()
	engine := composite.New("root", config.CompositePolicy{
		Window:   100 * time.Millisecond,
		Fallback: config.FallbackAccept,
	}, mock, logging.NewNop())
	engine.Add("silent", harness.Silent{})

	d := decide(t, mock, engine)
	assert.Equal(t, domain.ActionAccept, d.Action)
	assert.False(t, d.Score.Defined)
}

func TestUnscoredAcceptsFallThrough(t *testing.T) {
	mock := clock.NewMock()
	engine := composite.New("root", config.CompositePolicy{Window: 100 * time.Millisecond}, mock, logging.NewNop())
	engine.Add("unscored", accepting(mock, 0, domain.Score{}))

	d := decide(t, mock, engine)
	assert.Equal(t, domain.ActionReject, d.Action)
}

func TestNegotiateRanksBelowScoredAccept(t *testing.T) {
	mock := clock.NewMock()
	engine := composite.New("root", config.CompositePolicy{Window: 100 * time.Millisecond}, mock, logging.NewNop())

	counter := domain.NewProposal(domain.RoleProvider, map[string]any{"price": 0.8}, mock.Now())
	engine.Add("negotiator", harness.NewScripted(mock, harness.ScriptEntry{Decision: domain.Negotiate(counter)}))
	engine.Add("acceptor", accepting(mock, 0, domain.ScoreOf(0.1)))

	d := decide(t, mock, engine)
	assert.Equal(t, domain.ActionAccept, d.Action)
}

func TestNegotiateWinsOverFallback(t *testing.T) {
	mock := clock.NewMock()
	engine := composite.New("root", config.CompositePolicy{Window: 100 * time.Millisecond}, mock, logging.NewNop())

	counter := domain.NewProposal(domain.RoleProvider, map[string]any{"price": 0.8}, mock.Now())
	engine.Add("rejector", harness.NewScripted(mock, harness.ScriptEntry{
		Decision: domain.Reject(domain.NewReason("no")),
	}))
	engine.Add("negotiator", harness.NewScripted(mock, harness.ScriptEntry{Decision: domain.Negotiate(counter)}))

	d := decide(t, mock, engine)
	require.Equal(t, domain.ActionNegotiate, d.Action)
	assert.Equal(t, counter.ID, d.Counter.ID)
}

func TestChildErrorIsNoVote(t *testing.T) {
	mock := clock.NewMock()
	engine := composite.New("root", config.CompositePolicy{Window: 100 * time.Millisecond}, mock, logging.NewNop())
	engine.Add("failing", harness.NewScripted(mock, harness.ScriptEntry{
		Err: assert.AnError,
	}))
	engine.Add("acceptor", accepting(mock, 0, domain.ScoreOf(0.4)))

	d := decide(t, mock, engine)
	assert.Equal(t, domain.ActionAccept, d.Action)
	assert.Equal(t, domain.ScoreOf(0.4), d.Score)
}

func TestEmptyCompositeFallsBack(t *testing.T) {
	mock := clock.NewMock()
	engine := composite.New("root", config.CompositePolicy{Window: 100 * time.Millisecond}, mock, logging.NewNop())

	proposal := domain.NewProposal(domain.RoleRequestor, nil, mock.Now())
	d, err := engine.Decide(context.Background(), proposal, domain.SessionInfo{})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionReject, d.Action)
}

func TestCancellationAbandonsFanOut(t *testing.T) {
	mock := clock.NewMock()
	engine := composite.New("root", config.CompositePolicy{Window: time.Second}, mock, logging.NewNop())
	engine.Add("silent", harness.Silent{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	proposal := domain.NewProposal(domain.RoleRequestor, nil, mock.Now())
	go func() {
		_, err := engine.Decide(ctx, proposal, domain.SessionInfo{})
		done <- err
	}()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestShutdownCascades(t *testing.T) {
	mock := clock.NewMock()
	engine := composite.New("root", config.CompositePolicy{}, mock, logging.NewNop())
	a := accepting(mock, 0, domain.ScoreOf(1))
	b := accepting(mock, 0, domain.ScoreOf(1))
	engine.Add("a", a)
	engine.Add("b", b)

	require.NoError(t, engine.Shutdown())
	assert.True(t, a.ShutdownCalled())
	assert.True(t, b.ShutdownCalled())
}
