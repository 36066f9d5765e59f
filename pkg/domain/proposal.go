// Package domain holds the core negotiation types: proposals and agreements,
// decisions with scores and reasons, market events, and the sentinel errors
// the rest of the system matches on. It has no dependencies on any other
// package in this module.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the side of the market a party negotiates for.
type Role string

const (
	RoleProvider  Role = "provider"
	RoleRequestor Role = "requestor"
)

// Opposite returns the counterparty's role.
func (r Role) Opposite() Role {
	if r == RoleProvider {
		return RoleRequestor
	}
	return RoleProvider
}

// Proposal is one offer or demand under negotiation. Proposals are immutable
// once issued; a revision is a new Proposal linked by the conversation, not a
// mutation.
type Proposal struct {
	// ID is unique per Proposal, counter-proposals included.
	ID string

	// Issuer is the side that put this Proposal forward.
	Issuer Role

	// Round is the ply this Proposal belongs to, starting at zero.
	Round int

	// Attributes are the negotiated terms, keyed by attribute name.
	Attributes map[string]any

	Timestamp time.Time
}

// NewProposal issues a fresh round-zero Proposal.
func NewProposal(issuer Role, attrs map[string]any, now time.Time) *Proposal {
	return &Proposal{
		ID:         uuid.NewString(),
		Issuer:     issuer,
		Round:      0,
		Attributes: copyAttrs(attrs),
		Timestamp:  now,
	}
}

// Counter issues the next-round reply to p with the given terms.
func (p *Proposal) Counter(issuer Role, attrs map[string]any, now time.Time) *Proposal {
	return &Proposal{
		ID:         uuid.NewString(),
		Issuer:     issuer,
		Round:      p.Round + 1,
		Attributes: copyAttrs(attrs),
		Timestamp:  now,
	}
}

// Attribute looks one term up by name.
func (p *Proposal) Attribute(key string) (any, bool) {
	v, ok := p.Attributes[key]
	return v, ok
}

// Clone returns a deep-enough copy: the attribute map is fresh, values are
// shared.
func (p *Proposal) Clone() *Proposal {
	out := *p
	out.Attributes = copyAttrs(p.Attributes)
	return &out
}

func copyAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// Agreement seals the accepted terms of a finished negotiation.
type Agreement struct {
	ID string

	// Terms is the Proposal both sides settled on.
	Terms *Proposal

	ReachedAt time.Time
}

// NewAgreement seals terms into an Agreement.
func NewAgreement(terms *Proposal, at time.Time) *Agreement {
	return &Agreement{
		ID:        uuid.NewString(),
		Terms:     terms,
		ReachedAt: at,
	}
}
