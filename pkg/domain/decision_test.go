package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gridmarket/negotiator/pkg/domain"
)

func TestScoreOrdering(t *testing.T) {
	t.Run("defined beats undefined", func(t *testing.T) {
		assert.True(t, domain.ScoreOf(0.1).Better(domain.Score{}))
		assert.False(t, domain.Score{}.Better(domain.ScoreOf(-5)))
	})

	t.Run("undefined never beats undefined", func(t *testing.T) {
		assert.False(t, domain.Score{}.Better(domain.Score{}))
	})

	t.Run("higher value wins", func(t *testing.T) {
		assert.True(t, domain.ScoreOf(0.9).Better(domain.ScoreOf(0.5)))
		assert.False(t, domain.ScoreOf(0.5).Better(domain.ScoreOf(0.9)))
	})

	t.Run("equal values tie", func(t *testing.T) {
		assert.False(t, domain.ScoreOf(0.5).Better(domain.ScoreOf(0.5)))
	})
}

func TestReasonFinal(t *testing.T) {
	r := domain.NewReason("price %v too high", 12)
	assert.Equal(t, "price 12 too high", r.Message)
	assert.False(t, r.Final)

	r.AsFinal()
	assert.True(t, r.Final)
	assert.Equal(t, "price 12 too high (final)", r.String())
}

func TestCounterAdvancesRound(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	initial := domain.NewProposal(domain.RoleRequestor, map[string]any{"price": 2.0}, now)
	assert.Equal(t, 0, initial.Round)

	counter := initial.Counter(domain.RoleProvider, map[string]any{"price": 1.5}, now.Add(time.Second))
	assert.Equal(t, 1, counter.Round)
	assert.NotEqual(t, initial.ID, counter.ID)
	assert.Equal(t, domain.RoleProvider, counter.Issuer)

	price, ok := counter.Attribute("price")
	assert.True(t, ok)
	assert.Equal(t, 1.5, price)
}

func TestCloneDetachesAttributes(t *testing.T) {
	p := domain.NewProposal(domain.RoleProvider, map[string]any{"cpu": 4}, time.Now())
	clone := p.Clone()
	clone.Attributes["cpu"] = 8

	cpu, _ := p.Attribute("cpu")
	assert.Equal(t, 4, cpu)
}

func TestRoleOpposite(t *testing.T) {
	assert.Equal(t, domain.RoleRequestor, domain.RoleProvider.Opposite())
	assert.Equal(t, domain.RoleProvider, domain.RoleRequestor.Opposite())
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "accept(score=0.900)", domain.Accept(domain.ScoreOf(0.9)).String())
	assert.Equal(t, "accept(score=undefined)", domain.Accept(domain.Score{}).String())
	assert.Equal(t, "reject(too slow)", domain.Reject(domain.NewReason("too slow")).String())
}
