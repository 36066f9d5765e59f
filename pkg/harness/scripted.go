package harness

import (
	"context"
	"sync"
	"time"

	"github.com/raulk/clock"

	"github.com/gridmarket/negotiator/pkg/domain"
)

// Scripted is a test component that replays a fixed sequence of decisions,
// each optionally after a virtual-clock delay. Once the script runs out it
// keeps repeating its last entry. Scripted records every event it is notified
// of, so tests can assert on delivery.
type Scripted struct {
	clock clock.Clock

	mu       sync.Mutex
	script   []ScriptEntry
	position int
	events   []domain.Event
	shutdown bool
}

// ScriptEntry is one scripted reply.
type ScriptEntry struct {
	Delay    time.Duration
	Decision domain.Decision
	Err      error
	Panic    any
}

// NewScripted builds a scripted component over the given clock. The script
// must not be empty.
func NewScripted(clk clock.Clock, script ...ScriptEntry) *Scripted {
	return &Scripted{clock: clk, script: script}
}

func (s *Scripted) next() ScriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.script[s.position]
	if s.position < len(s.script)-1 {
		s.position++
	}
	return entry
}

func (s *Scripted) Decide(ctx context.Context, _ *domain.Proposal, _ domain.SessionInfo) (domain.Decision, error) {
	entry := s.next()
	if entry.Delay > 0 {
		timer := s.clock.Timer(entry.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return domain.Decision{}, ctx.Err()
		}
	}
	if entry.Panic != nil {
		panic(entry.Panic)
	}
	return entry.Decision, entry.Err
}

func (s *Scripted) Notify(event domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *Scripted) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	return nil
}

// Events returns a copy of the notifications received so far.
func (s *Scripted) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}

// ShutdownCalled reports whether Shutdown ran.
func (s *Scripted) ShutdownCalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Silent is a component that never answers a Decide call until its context is
// cancelled. It stands in for a hung or unresponsive implementation.
type Silent struct{}

func (Silent) Decide(ctx context.Context, _ *domain.Proposal, _ domain.SessionInfo) (domain.Decision, error) {
	<-ctx.Done()
	return domain.Decision{}, ctx.Err()
}

func (Silent) Notify(domain.Event) {}

func (Silent) Shutdown() error { return nil }
