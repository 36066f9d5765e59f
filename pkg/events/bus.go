// Package events carries asynchronous notifications and addressed control
// commands to live component instances, outside the negotiation critical
// path. Broadcast delivery is best-effort and ordered per originating source;
// one slow subscriber never stalls the others.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raulk/clock"

	"github.com/gridmarket/negotiator/internal/metrics"
	"github.com/gridmarket/negotiator/pkg/domain"
	"github.com/gridmarket/negotiator/pkg/ports"
)

const (
	// DefaultQueueSize bounds each subscriber's pending-event queue.
	DefaultQueueSize = 64
	// DefaultDeliveryTimeout bounds one Notify call before the worker gives
	// up and logs the drop.
	DefaultDeliveryTimeout = time.Second
	// DefaultControlTimeout bounds one addressed control command.
	DefaultControlTimeout = 5 * time.Second
)

type subscriber struct {
	name      string
	component ports.Component
	kinds     map[domain.EventKind]bool
	queue     chan domain.Event

	// controlMu serializes commands to one instance; TryLock failures map to
	// Busy.
	controlMu sync.Mutex
}

func (s *subscriber) wants(kind domain.EventKind) bool {
	return s.kinds[kind]
}

// Bus is the event/control channel. The subscriber registry is mutated at
// startup and shutdown only; Publish reads it concurrently.
type Bus struct {
	clock           clock.Clock
	logger          *slog.Logger
	queueSize       int
	deliveryTimeout time.Duration
	controlTimeout  time.Duration

	mu          sync.RWMutex
	subscribers []*subscriber
	byName      map[string]*subscriber
	closed      bool

	wg sync.WaitGroup
}

// Option configures the Bus.
type Option func(*Bus)

// WithQueueSize bounds each subscriber's pending-event queue.
func WithQueueSize(n int) Option {
	return func(b *Bus) { b.queueSize = n }
}

// WithDeliveryTimeout bounds a single Notify delivery.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(b *Bus) { b.deliveryTimeout = d }
}

// WithControlTimeout bounds a single control command.
func WithControlTimeout(d time.Duration) Option {
	return func(b *Bus) { b.controlTimeout = d }
}

// NewBus creates an empty bus.
func NewBus(clk clock.Clock, logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		clock:           clk,
		logger:          logger,
		queueSize:       DefaultQueueSize,
		deliveryTimeout: DefaultDeliveryTimeout,
		controlTimeout:  DefaultControlTimeout,
		byName:          make(map[string]*subscriber),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a component instance under its unique name and starts
// its delivery worker. The kinds the instance receives come from the optional
// Subscriber interface; without it, every kind is delivered.
func (b *Bus) Subscribe(name string, component ports.Component) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}
	if _, exists := b.byName[name]; exists {
		return fmt.Errorf("subscriber %q already registered", name)
	}

	kinds := domain.AllEventKinds()
	if narrow, ok := component.(ports.Subscriber); ok {
		kinds = narrow.SubscribedEvents()
	}
	kindSet := make(map[domain.EventKind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}

	sub := &subscriber{
		name:      name,
		component: component,
		kinds:     kindSet,
		queue:     make(chan domain.Event, b.queueSize),
	}
	b.subscribers = append(b.subscribers, sub)
	b.byName[name] = sub

	b.wg.Add(1)
	go b.deliver(sub)
	return nil
}

// Publish broadcasts the event to every subscriber interested in its kind.
// It never blocks on a subscriber: a full queue drops the event for that
// subscriber with a log line. Enqueue order per caller is delivery order.
func (b *Bus) Publish(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subscribers {
		if !sub.wants(event.Kind) {
			continue
		}
		select {
		case sub.queue <- event:
		default:
			metrics.EventsDropped.WithLabelValues("queue_full").Inc()
			b.logger.Warn("event dropped, subscriber queue full",
				slog.String("subscriber", sub.name),
				slog.String("kind", string(event.Kind)))
		}
	}
}

// deliver is the per-subscriber worker: one event at a time, each bounded by
// the delivery timeout. An expired delivery is logged and abandoned; the
// lingering Notify call is the guard layer's problem, not ours.
func (b *Bus) deliver(sub *subscriber) {
	defer b.wg.Done()
	for event := range sub.queue {
		done := make(chan struct{})
		go func(ev domain.Event) {
			defer close(done)
			sub.component.Notify(ev)
		}(event)

		timer := b.clock.Timer(b.deliveryTimeout)
		select {
		case <-done:
			metrics.EventsDelivered.WithLabelValues(string(event.Kind)).Inc()
		case <-timer.C:
			metrics.EventsDropped.WithLabelValues("timeout").Inc()
			b.logger.Warn("event delivery timed out",
				slog.String("subscriber", sub.name),
				slog.String("kind", string(event.Kind)))
		}
		timer.Stop()
	}
}

// Control routes one addressed command to the named instance and waits for
// its response within the control timeout. A command to a busy instance
// returns Busy immediately instead of queueing.
func (b *Bus) Control(ctx context.Context, target string, params map[string]any) (map[string]any, error) {
	b.mu.RLock()
	sub, ok := b.byName[target]
	b.mu.RUnlock()
	if !ok {
		metrics.ControlCommands.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: %q", domain.ErrComponentNotFound, target)
	}

	if !sub.controlMu.TryLock() {
		metrics.ControlCommands.WithLabelValues("busy").Inc()
		return nil, fmt.Errorf("%w: %q", domain.ErrBusy, target)
	}
	defer sub.controlMu.Unlock()

	controllable, ok := sub.component.(ports.Controllable)
	if !ok {
		metrics.ControlCommands.WithLabelValues("not_controllable").Inc()
		return nil, fmt.Errorf("%w: %q", domain.ErrNotControllable, target)
	}

	type result struct {
		response map[string]any
		err      error
	}
	done := make(chan result, 1)
	cmdCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		response, err := controllable.Control(cmdCtx, params)
		done <- result{response: response, err: err}
	}()

	timer := b.clock.Timer(b.controlTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			metrics.ControlCommands.WithLabelValues("error").Inc()
			return nil, res.err
		}
		metrics.ControlCommands.WithLabelValues("ok").Inc()
		return res.response, nil
	case <-timer.C:
		metrics.ControlCommands.WithLabelValues("timeout").Inc()
		return nil, fmt.Errorf("%w: %q did not answer within %s", domain.ErrControlTimeout, target, b.controlTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribers returns the registered instance names in registration order.
func (b *Bus) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, len(b.subscribers))
	for i, sub := range b.subscribers {
		names[i] = sub.name
	}
	return names
}

// Close stops delivery workers after draining queued events. Safe to call
// once at host shutdown.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.queue)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
