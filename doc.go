/*
Package negotiator is a pluggable decision engine for decentralized compute
markets. Offers and demands meet in negotiation sessions, and the verdict on
every proposal comes from a tree of negotiator components: small decision
units that score, reject, or counter proposals independently and are combined
by composite nodes into a single answer.

# Concept

A negotiation strategy is configured, not programmed: a declarative tree names
the component instances, how each is loaded (compiled into the binary or
resolved from a shared library at runtime), and how their votes aggregate.
Composites fan a proposal out to their children, wait out a bounded window,
and pick the best scored acceptance, so one slow or crashed component can
never stall the market loop. Loaded code runs behind a fault guard: a
panicking component is replaced by a permanent rejecting stub while its
siblings keep negotiating.

# Key Features

  - Uniform component contract: statically linked, dynamically loaded and
    composite components are indistinguishable to the host.
  - Bounded aggregation: every composite decision lands within its window,
    with a reject-by-default fallback.
  - Session safety valves: per-session round limits and deadlines terminate
    runaway negotiations.
  - Event and control channels: agreement and invoice events fan out to
    subscribed instances, and live instances accept addressed control
    commands.
  - Deterministic testing: every timing path runs on an injected clock, and
    the harness package replays whole multi-party negotiations under a
    virtual one.

# Usage

Build a Negotiator from a component tree, then open a session per
counterparty conversation:

	package main

	import (
		"context"
		"log"
		"time"

		"github.com/gridmarket/negotiator"
		"github.com/gridmarket/negotiator/pkg/builtin"
		"github.com/gridmarket/negotiator/pkg/config"
		"github.com/gridmarket/negotiator/pkg/domain"
		"github.com/gridmarket/negotiator/pkg/session"
	)

	func main() {
		tree := &config.Tree{
			Nodes: []config.Node{
				{Name: "root", Mode: config.ModeComposite, Children: []int{1, 2}},
				{Name: "cap", Mode: config.ModeStatic, Component: builtin.NamePriceCap,
					Params: map[string]any{"max_price": 2.0}},
				{Name: "slots", Mode: config.ModeStatic, Component: builtin.NameMaxAgreements,
					Params: map[string]any{"max_agreements": 8}},
			},
		}

		n, err := negotiator.New(tree, negotiator.WithWorkDir("./state"))
		if err != nil {
			log.Fatal(err)
		}
		defer n.Close()

		s := n.NewSession(domain.RoleProvider, session.Config{
			MaxRounds: 8,
			Timeout:   time.Minute,
		})

		proposal := domain.NewProposal(domain.RoleRequestor,
			map[string]any{"price": 1.5}, time.Now())
		decision, err := s.Receive(context.Background(), proposal)
		if err != nil {
			log.Fatal(err)
		}
		log.Println("decision:", decision)
	}
*/
package negotiator
