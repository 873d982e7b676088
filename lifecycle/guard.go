// Package lifecycle assigns SKUs on create and keeps them immutable
// afterwards unless a change is explicitly forced.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jacentio/skutrail/events"
	"github.com/jacentio/skutrail/history"
	"github.com/jacentio/skutrail/sku"
)

// Repository persists entities. Implementations enforce SKU uniqueness per
// table and report the SKU as last written.
type Repository interface {
	Insert(ctx context.Context, e sku.Entity) error
	Update(ctx context.Context, e sku.Entity) error
	Delete(ctx context.Context, e sku.Entity) error
	PersistedSku(ctx context.Context, e sku.Entity) (string, error)
}

// State is the SKU state of an entity.
type State int

const (
	// StateUnset means no SKU has been persisted.
	StateUnset State = iota
	// StateLocked means a SKU is persisted and only forced changes apply.
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateLocked:
		return "locked"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Guard runs the SKU lifecycle hooks around repository writes.
type Guard struct {
	gen     *sku.Generator
	repo    Repository
	history *history.Logger
	events  *events.Publisher
	logger  zerolog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithHistory records lifecycle transitions through l.
func WithHistory(l *history.Logger) Option {
	return func(g *Guard) {
		g.history = l
	}
}

// WithEvents publishes lifecycle events through p.
func WithEvents(p *events.Publisher) Option {
	return func(g *Guard) {
		g.events = p
	}
}

// WithLogger sets the logger for side-effect failures.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Guard) {
		g.logger = l
	}
}

// New returns a Guard generating SKUs with gen and persisting through repo.
func New(gen *sku.Generator, repo Repository, opts ...Option) *Guard {
	g := &Guard{
		gen:    gen,
		repo:   repo,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generator returns the guard's generator.
func (g *Guard) Generator() *sku.Generator {
	return g.gen
}

// History returns the history logger, or nil.
func (g *Guard) History() *history.Logger {
	return g.history
}

// State reports whether e has a persisted SKU.
func (g *Guard) State(ctx context.Context, e sku.Entity) (State, error) {
	persisted, err := g.repo.PersistedSku(ctx, e)
	if err != nil {
		return StateUnset, err
	}
	if persisted == "" {
		return StateUnset, nil
	}
	return StateLocked, nil
}

// Create generates a SKU for e when it has none and inserts it. On success
// a Created event is published and the creation is recorded.
func (g *Guard) Create(ctx context.Context, e sku.Entity) error {
	generated := false
	if e.Sku() == "" {
		value, err := g.gen.Generate(ctx, e)
		if err != nil {
			return err
		}
		e.SetSku(value)
		generated = true
	}

	if err := g.repo.Insert(ctx, e); err != nil {
		if generated {
			e.SetSku("")
		}
		return err
	}

	if value := e.Sku(); value != "" {
		g.publish(ctx, events.NewCreated(e, value))
		g.record(ctx, e, func(l *history.Logger) (*history.Record, error) {
			return l.LogCreation(ctx, e, value)
		})
	}
	return nil
}

// UpdateOptions controls Update.
type UpdateOptions struct {
	// Force lets a changed SKU through. Without it the SKU reverts to the
	// persisted value.
	Force bool

	// Reason is recorded with a forced change.
	Reason string
}

// Update persists e. A SKU that differs from the persisted one is silently
// reverted unless opts.Force is set, in which case the change is kept,
// published as Modified, and recorded. When the write fails e is left
// with the persisted SKU.
func (g *Guard) Update(ctx context.Context, e sku.Entity, opts UpdateOptions) error {
	persisted, err := g.repo.PersistedSku(ctx, e)
	if err != nil {
		return err
	}

	current := e.Sku()
	dirty := current != persisted
	if dirty && !opts.Force {
		g.logger.Debug().
			Str("entity_type", e.EntityType()).
			Str("entity_id", e.EntityID()).
			Str("attempted", current).
			Str("kept", persisted).
			Msg("reverted sku change without force")
		e.SetSku(persisted)
	}

	if err := g.repo.Update(ctx, e); err != nil {
		e.SetSku(persisted)
		return err
	}

	if dirty && opts.Force {
		g.publish(ctx, events.NewModified(e, persisted, current, opts.Reason))
		g.record(ctx, e, func(l *history.Logger) (*history.Record, error) {
			return l.LogModification(ctx, e, persisted, current, history.WithReason(opts.Reason))
		})
	}
	return nil
}

// ForceRegenerate replaces e's SKU with a newly generated one and persists
// it. It reports whether the write succeeded; on failure e keeps its
// previous SKU. A Regenerated event is published and recorded only when
// the SKU actually changed.
func (g *Guard) ForceRegenerate(ctx context.Context, e sku.Entity, reason string) (bool, error) {
	return g.forceRegenerate(ctx, g.gen, e, reason)
}

func (g *Guard) forceRegenerate(ctx context.Context, gen *sku.Generator, e sku.Entity, reason string) (bool, error) {
	oldSku := e.Sku()

	newSku, err := gen.Generate(ctx, e)
	if err != nil {
		return false, err
	}

	e.SetSku(newSku)
	if err := g.repo.Update(ctx, e); err != nil {
		e.SetSku(oldSku)
		return false, err
	}

	if oldSku != newSku {
		g.publish(ctx, events.NewRegenerated(e, oldSku, newSku, reason))
		g.record(ctx, e, func(l *history.Logger) (*history.Record, error) {
			return l.LogRegeneration(ctx, e, oldSku, newSku, history.WithReason(reason))
		})
	}
	return true, nil
}

// Delete publishes and records the deletion of e, then removes it.
func (g *Guard) Delete(ctx context.Context, e sku.Entity, reason string) error {
	g.NotifyDelete(ctx, e, reason)
	return g.repo.Delete(ctx, e)
}

// NotifyDelete publishes a Deleted event and records the deletion without
// touching the repository. Cascades that remove entities on their own use
// it directly. Entities without a SKU are ignored.
func (g *Guard) NotifyDelete(ctx context.Context, e sku.Entity, reason string) {
	value := e.Sku()
	if value == "" {
		return
	}
	g.publish(ctx, events.NewDeleted(e, value, reason))
	g.record(ctx, e, func(l *history.Logger) (*history.Record, error) {
		return l.LogDeletion(ctx, e, value, history.WithReason(reason))
	})
}

func (g *Guard) publish(ctx context.Context, ev events.Event) {
	if g.events == nil {
		return
	}
	g.events.Publish(ctx, ev)
}

func (g *Guard) record(ctx context.Context, e sku.Entity, fn func(*history.Logger) (*history.Record, error)) {
	if g.history == nil {
		return
	}
	if _, err := fn(g.history); err != nil {
		g.logger.Error().
			Err(err).
			Str("entity_type", e.EntityType()).
			Str("entity_id", e.EntityID()).
			Msg("failed to record sku history")
	}
}
