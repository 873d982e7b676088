package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultSendTimeout bounds how long Publish waits on a full subscriber.
const DefaultSendTimeout = 100 * time.Millisecond

// Sink delivers events to an external system.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Deliver(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Publisher fires SKU lifecycle events. Delivery is at most once and never
// fails the caller: sink errors are logged and slow subscribers miss events.
type Publisher struct {
	bus     *Bus
	sinks   []Sink
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithSink adds an external sink.
func WithSink(s Sink) Option {
	return func(p *Publisher) {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
}

// WithSendTimeout replaces DefaultSendTimeout.
func WithSendTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.timeout = d
	}
}

// WithClock replaces time.Now for OccurredAt.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Publisher) {
		p.logger = l
	}
}

// NewPublisher returns a Publisher with its own Bus.
func NewPublisher(opts ...Option) *Publisher {
	p := &Publisher{
		bus:     NewBus(),
		timeout: DefaultSendTimeout,
		now:     time.Now,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers an in-process subscriber. See Bus.Subscribe.
func (p *Publisher) Subscribe(pattern string, bufferSize int) (<-chan Event, func()) {
	return p.bus.Subscribe(pattern, bufferSize)
}

// Publish fires ev. OccurredAt is set when zero.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if p == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now().UTC()
	}

	delivered := p.bus.Publish(ev, p.timeout)

	for _, s := range p.sinks {
		if err := s.Deliver(ctx, ev); err != nil {
			p.logger.Error().
				Err(err).
				Str("topic", ev.Topic()).
				Str("entity_type", ev.EntityType).
				Str("entity_id", ev.EntityID).
				Msg("failed to deliver sku event")
		}
	}

	p.logger.Debug().
		Str("topic", ev.Topic()).
		Str("entity_id", ev.EntityID).
		Int("subscribers", delivered).
		Msg("sku event published")
}

// Close shuts down every subscriber.
func (p *Publisher) Close() {
	p.bus.Shutdown()
}
