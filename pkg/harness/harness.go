// Package harness runs deterministic multi-party negotiations for tests and
// simulations. Every timing-sensitive path, composite windows, per-call
// timeouts and session deadlines included, runs against one shared mock clock
// that the framework advances in fixed virtual ticks, so a run's transcript
// is reproducible across machines and -race runs.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/raulk/clock"

	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/ports"
	"github.com/gridmarket/negotiator/pkg/session"
)

// DefaultTick is the virtual-clock step between scheduler passes.
const DefaultTick = 10 * time.Millisecond

// party is one side of the market: a component tree plus the session budget
// every negotiation it joins starts from.
type party struct {
	name string
	role domain.Role
	tree ports.Component
	cfg  session.Config
}

// Framework holds the negotiating parties and the shared virtual clock.
type Framework struct {
	clock  *clock.Mock
	logger *slog.Logger
	tick   time.Duration

	providers  []party
	requestors []party
}

// Option configures the Framework.
type Option func(*Framework)

// WithTick overrides the virtual-clock step.
func WithTick(d time.Duration) Option {
	return func(f *Framework) { f.tick = d }
}

// New creates an empty framework around its own mock clock.
func New(logger *slog.Logger, opts ...Option) *Framework {
	f := &Framework{
		clock:  clock.NewMock(),
		logger: logger,
		tick:   DefaultTick,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Clock exposes the shared mock clock; component trees joining the framework
// must be built against it.
func (f *Framework) Clock() clock.Clock { return f.clock }

// AddProvider registers a provider-side tree under a unique name.
func (f *Framework) AddProvider(name string, tree ports.Component, cfg session.Config) {
	f.providers = append(f.providers, party{name: name, role: domain.RoleProvider, tree: tree, cfg: cfg})
}

// AddRequestor registers a requestor-side tree under a unique name.
func (f *Framework) AddRequestor(name string, tree ports.Component, cfg session.Config) {
	f.requestors = append(f.requestors, party{name: name, role: domain.RoleRequestor, tree: tree, cfg: cfg})
}

// Step is one transcript line: the decision one party's session produced for
// one proposal, stamped with the virtual time it was finalized at.
type Step struct {
	Index    int
	Party    string
	Role     domain.Role
	Round    int
	Proposal *domain.Proposal
	Decision domain.Decision
	At       time.Time
}

// Record is the transcript of one provider/requestor negotiation.
type Record struct {
	Provider  string
	Requestor string
	Steps     []Step
	Outcome   domain.Outcome
	Agreement *domain.Agreement
	Err       error
}

// String renders the transcript for logs and failure messages.
func (r *Record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <-> %s: %s", r.Provider, r.Requestor, r.Outcome)
	if r.Err != nil {
		fmt.Fprintf(&b, " (%v)", r.Err)
	}
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "\n  [%d] %s %s round=%d proposal=%s decision=%s",
			s.Index, s.At.Format("15:04:05.000"), s.Party, s.Round, s.Proposal.ID, s.Decision)
	}
	return b.String()
}

// Negotiate runs one full conversation between the named provider and
// requestor. The initial proposal is issued requestor-side from attrs and
// ping-pongs between the two sessions until a terminal decision, a safety
// valve, or the virtual time budget. Both parties' clocks advance together.
func (f *Framework) Negotiate(ctx context.Context, provider, requestor string, attrs map[string]any) *Record {
	record := &Record{Provider: provider, Requestor: requestor}

	prov, err := findParty(f.providers, provider)
	if err != nil {
		record.Err = err
		return record
	}
	req, err := findParty(f.requestors, requestor)
	if err != nil {
		record.Err = err
		return record
	}

	sessions := map[domain.Role]*session.Session{
		domain.RoleProvider:  session.New(domain.RoleProvider, prov.tree, prov.cfg, f.clock, f.logger),
		domain.RoleRequestor: session.New(domain.RoleRequestor, req.tree, req.cfg, f.clock, f.logger),
	}
	names := map[domain.Role]string{
		domain.RoleProvider:  prov.name,
		domain.RoleRequestor: req.name,
	}

	initial := domain.NewProposal(domain.RoleRequestor, attrs, f.clock.Now())

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.converse(ctx, record, sessions, names, initial)
	}()
	f.drive(done)

	f.logger.Info("negotiation finished",
		slog.String("provider", provider),
		slog.String("requestor", requestor),
		slog.String("outcome", string(record.Outcome)),
		slog.Int("steps", len(record.Steps)))
	return record
}

// NegotiateAll crosses every provider with every requestor in registration
// order and returns the transcripts in that same order.
func (f *Framework) NegotiateAll(ctx context.Context, attrs map[string]any) []*Record {
	records := make([]*Record, 0, len(f.providers)*len(f.requestors))
	for _, prov := range f.providers {
		for _, req := range f.requestors {
			records = append(records, f.Negotiate(ctx, prov.name, req.name, attrs))
		}
	}
	return records
}

// converse is the ping-pong loop. Each proposal is evaluated by the side that
// did not issue it; a Negotiate decision hands its counter to the other side.
func (f *Framework) converse(ctx context.Context, record *Record,
	sessions map[domain.Role]*session.Session, names map[domain.Role]string,
	proposal *domain.Proposal) {

	for {
		receiver := proposal.Issuer.Opposite()
		sess := sessions[receiver]

		decision, err := sess.Receive(ctx, proposal)
		step := Step{
			Index:    len(record.Steps),
			Party:    names[receiver],
			Role:     receiver,
			Round:    step0Round(sess, decision),
			Proposal: proposal,
			Decision: decision,
			At:       f.clock.Now(),
		}
		record.Steps = append(record.Steps, step)

		if err != nil {
			record.Err = err
			record.Outcome = sess.Outcome()
			return
		}

		switch decision.Action {
		case domain.ActionAccept:
			record.Outcome = domain.OutcomeAccepted
			record.Agreement = sess.Agreement()
			// The issuing side already stands behind its own proposal; close
			// its session so both state machines end terminal.
			sessions[proposal.Issuer].Cancel()
			return
		case domain.ActionReject:
			record.Outcome = domain.OutcomeRejected
			sessions[proposal.Issuer].Cancel()
			return
		case domain.ActionNegotiate:
			proposal = decision.Counter
		}
	}
}

// step0Round labels the transcript line with the round the decision belongs
// to: a Negotiate has already advanced the session counter by the time
// Receive returns.
func step0Round(sess *session.Session, decision domain.Decision) int {
	round := sess.Round()
	if decision.Action == domain.ActionNegotiate && round > 0 {
		round--
	}
	return round
}

// drive advances the virtual clock in ticks until the conversation goroutine
// finishes. Session deadlines and round limits bound every conversation, so
// the loop always terminates. The short real sleep after each tick lets
// goroutines woken by mock timers run before the next advance.
func (f *Framework) drive(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		f.clock.Add(f.tick)
		time.Sleep(time.Millisecond)
	}
}

func findParty(parties []party, name string) (party, error) {
	for _, p := range parties {
		if p.name == name {
			return p, nil
		}
	}
	known := make([]string, len(parties))
	for i, p := range parties {
		known[i] = p.name
	}
	sort.Strings(known)
	return party{}, fmt.Errorf("unknown party %q (have %s)", name, strings.Join(known, ", "))
}
