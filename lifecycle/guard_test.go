package lifecycle_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/skutrail/events"
	"github.com/jacentio/skutrail/history"
	"github.com/jacentio/skutrail/lifecycle"
	"github.com/jacentio/skutrail/memstore"
	"github.com/jacentio/skutrail/sku"
)

type category string

func (c category) Attr(field string) string {
	if field == "name" {
		return string(c)
	}
	return ""
}

type value string

func (v value) Attr(field string) string {
	if field == "value" {
		return string(v)
	}
	return ""
}

type product struct {
	id, name, sku string
	cat          category
}

func (p *product) EntityType() string { return "product" }
func (p *product) EntityID() string   { return p.id }
func (p *product) TableName() string  { return "products" }
func (p *product) Sku() string        { return p.sku }
func (p *product) SetSku(s string)    { p.sku = s }

func (p *product) Category(string) (sku.Ref, bool) {
	if p.cat == "" {
		return nil, false
	}
	return p.cat, true
}

type variant struct {
	id, sku string
	parent  *product
	values  []sku.Ref
}

func (v *variant) EntityType() string { return "variant" }
func (v *variant) EntityID() string   { return v.id }
func (v *variant) TableName() string  { return "product_variants" }
func (v *variant) Sku() string        { return v.sku }
func (v *variant) SetSku(s string)    { v.sku = s }

func (v *variant) Parent() sku.Entity {
	if v.parent == nil {
		return nil
	}
	return v.parent
}

func (v *variant) PropertyValues(string) []sku.Ref { return v.values }

// flakyRepo fails the next Update when failUpdate is set.
type flakyRepo struct {
	*memstore.Store
	failUpdate error
}

func (r *flakyRepo) Update(ctx context.Context, e sku.Entity) error {
	if r.failUpdate != nil {
		return r.failUpdate
	}
	return r.Store.Update(ctx, e)
}

type harness struct {
	guard   *lifecycle.Guard
	repo    *flakyRepo
	store   *memstore.HistoryStore
	history *history.Logger
	events  <-chan events.Event
}

func newHarness(t *testing.T, historyCfg history.Config, opts ...sku.GeneratorOption) *harness {
	t.Helper()

	repo := &flakyRepo{Store: memstore.New()}
	gen, err := sku.NewGenerator(sku.Config{
		Prefix:     "TM",
		UlidLength: 8,
		Models: map[string]sku.Kind{
			"product": sku.KindProduct,
			"variant": sku.KindVariant,
		},
	}, repo, opts...)
	require.NoError(t, err)

	hs := memstore.NewHistoryStore()
	hl := history.NewLogger(historyCfg, hs)

	pub := events.NewPublisher()
	ch, unsub := pub.Subscribe("*", 256)
	t.Cleanup(unsub)

	return &harness{
		guard:   lifecycle.New(gen, repo, lifecycle.WithHistory(hl), lifecycle.WithEvents(pub)),
		repo:    repo,
		store:   hs,
		history: hl,
		events:  ch,
	}
}

func (h *harness) drain() []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-h.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// counter returns a fragment source yielding distinct values.
func counter() sku.GeneratorOption {
	frags := []string{"AAAAAAAA", "BBBBBBBB", "CCCCCCCC", "DDDDDDDD", "EEEEEEEE", "FFFFFFFF"}
	i := 0
	return sku.WithFragmentSource(func() string {
		f := frags[i%len(frags)]
		i++
		return f
	})
}

func TestGuard_CreateGeneratesAndLocks(t *testing.T) {
	h := newHarness(t, history.DefaultConfig())
	ctx := context.Background()

	p := &product{id: "p1", cat: "Shirts"}
	state, err := h.guard.State(ctx, p)
	require.ErrorIs(t, err, memstore.ErrNotFound)
	assert.Equal(t, lifecycle.StateUnset, state)

	require.NoError(t, h.guard.Create(ctx, p))
	assert.Regexp(t, regexp.MustCompile(`^TM-SHI-[A-Z0-9]{8}$`), p.Sku())

	state, err = h.guard.State(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateLocked, state)
	assert.Equal(t, "locked", state.String())

	evs := h.drain()
	require.Len(t, evs, 1)
	assert.Equal(t, events.Created, evs[0].Kind)
	assert.Equal(t, p.Sku(), evs[0].Sku)

	records, err := h.history.History(ctx, p)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, history.EventCreated, records[0].EventType)
}

func TestGuard_CreateKeepsProvidedSku(t *testing.T) {
	h := newHarness(t, history.DefaultConfig())
	p := &product{id: "p1", sku: "LEGACY-1"}

	require.NoError(t, h.guard.Create(context.Background(), p))
	assert.Equal(t, "LEGACY-1", p.Sku())
}

func TestGuard_CreateGenerationFailure(t *testing.T) {
	h := newHarness(t, history.DefaultConfig())
	v := &variant{id: "v1"}

	err := h.guard.Create(context.Background(), v)
	require.ErrorIs(t, err, sku.ErrMissingParent)
	assert.Equal(t, 0, h.repo.Len("product_variants"))
	assert.Empty(t, h.drain())
}

func TestGuard_CreateInsertFailureClearsGeneratedSku(t *testing.T) {
	h := newHarness(t, history.DefaultConfig())
	ctx := context.Background()

	p := &product{id: "p1"}
	require.NoError(t, h.guard.Create(ctx, p))

	dup := &product{id: "p1"}
	err := h.guard.Create(ctx, dup)
	require.ErrorIs(t, err, memstore.ErrAlreadyExists)
	assert.Empty(t, dup.Sku())
}

func TestGuard_UpdateWithoutForceReverts(t *testing.T) {
	h := newHarness(t, history.DefaultConfig())
	ctx := context.Background()

	p := &product{id: "p1", name: "Tee"}
	require.NoError(t, h.guard.Create(ctx, p))
	original := p.Sku()
	h.drain()

	p.name = "Tee v2"
	require.NoError(t, h.guard.Update(ctx, p, lifecycle.UpdateOptions{}))
	assert.Equal(t, original, p.Sku(), "updating other fields never changes the sku")

	p.SetSku("HAND-EDITED")
	require.NoError(t, h.guard.Update(ctx, p, lifecycle.UpdateOptions{}))
	assert.Equal(t, original, p.Sku())

	persisted, err := h.repo.PersistedSku(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, original, persisted)
	assert.Empty(t, h.drain())
	assert.Equal(t, 1, h.store.Len())
}

func TestGuard_UpdateWithForce(t *testing.T) {
	h := newHarness(t, history.DefaultConfig())
	ctx := context.Background()

	p := &product{id: "p1"}
	require.NoError(t, h.guard.Create(ctx, p))
	original := p.Sku()
	h.drain()

	require.NoError(t, h.guard.Update(ctx, p, lifecycle.UpdateOptions{Force: true}))
	assert.Empty(t, h.drain(), "unchanged sku emits nothing")

	p.SetSku("MANUAL-1")
	require.NoError(t, h.guard.Update(ctx, p, lifecycle.UpdateOptions{Force: true, Reason: "supplier code"}))
	assert.Equal(t, "MANUAL-1", p.Sku())

	evs := h.drain()
	require.Len(t, evs, 1)
	assert.Equal(t, events.Modified, evs[0].Kind)
	assert.Equal(t, original, evs[0].OldSku)
	assert.Equal(t, "MANUAL-1", evs[0].NewSku)
	assert.Equal(t, "supplier code", evs[0].Reason)

	latest, err := h.history.Latest(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, history.EventModified, latest.EventType)
	assert.Equal(t, "supplier code", *latest.Reason)
}

func TestGuard_UpdateWithForceDuplicate(t *testing.T) {
	h := newHarness(t, history.DefaultConfig(), counter())
	ctx := context.Background()

	a := &product{id: "a"}
	b := &product{id: "b"}
	require.NoError(t, h.guard.Create(ctx, a))
	require.NoError(t, h.guard.Create(ctx, b))
	h.drain()

	kept := b.Sku()
	b.SetSku(a.Sku())
	err := h.guard.Update(ctx, b, lifecycle.UpdateOptions{Force: true})
	require.ErrorIs(t, err, memstore.ErrDuplicateSku)
	assert.Empty(t, h.drain())
	assert.Equal(t, kept, b.Sku())
}

func TestGuard_ForceRegenerate(t *testing.T) {
	h := newHarness(t, history.DefaultConfig(), counter())
	ctx := context.Background()

	p := &product{id: "p1", cat: "Hats"}
	require.NoError(t, h.guard.Create(ctx, p))
	oldSku := p.Sku()
	h.drain()

	ok, err := h.guard.ForceRegenerate(ctx, p, "rebrand")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEqual(t, oldSku, p.Sku())

	evs := h.drain()
	require.Len(t, evs, 1)
	assert.Equal(t, events.Regenerated, evs[0].Kind)
	assert.Equal(t, oldSku, evs[0].OldSku)
	assert.Equal(t, p.Sku(), evs[0].NewSku)
	assert.Equal(t, "rebrand", evs[0].Reason)

	persisted, err := h.repo.PersistedSku(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, p.Sku(), persisted)
}

func TestGuard_ForceRegenerateUnchangedEmitsNothing(t *testing.T) {
	h := newHarness(t, history.DefaultConfig())
	ctx := context.Background()

	parent := &product{id: "p1"}
	require.NoError(t, h.guard.Create(ctx, parent))
	v := &variant{id: "v1", parent: parent, values: []sku.Ref{value("red")}}
	require.NoError(t, h.guard.Create(ctx, v))
	h.drain()

	ok, err := h.guard.ForceRegenerate(ctx, v, "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, parent.Sku()+"-RED", v.Sku())
	assert.Empty(t, h.drain())
}

func TestGuard_ForceRegenerateFailureRestores(t *testing.T) {
	h := newHarness(t, history.DefaultConfig(), counter())
	ctx := context.Background()

	p := &product{id: "p1"}
	require.NoError(t, h.guard.Create(ctx, p))
	oldSku := p.Sku()
	h.drain()

	writeErr := errors.New("throttled")
	h.repo.failUpdate = writeErr

	ok, err := h.guard.ForceRegenerate(ctx, p, "")
	assert.False(t, ok)
	assert.ErrorIs(t, err, writeErr)
	assert.Equal(t, oldSku, p.Sku())
	assert.Empty(t, h.drain())

	h.repo.failUpdate = nil
	ok, err = h.guard.ForceRegenerate(ctx, p, "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuard_Delete(t *testing.T) {
	h := newHarness(t, history.DefaultConfig())
	ctx := context.Background()

	p := &product{id: "p1"}
	require.NoError(t, h.guard.Create(ctx, p))
	h.drain()

	require.NoError(t, h.guard.Delete(ctx, p, "discontinued"))
	assert.Equal(t, 0, h.repo.Len("products"))

	evs := h.drain()
	require.Len(t, evs, 1)
	assert.Equal(t, events.Deleted, evs[0].Kind)
	assert.Equal(t, p.Sku(), evs[0].Sku)
}

func TestGuard_HistoryOrderAcrossLifecycle(t *testing.T) {
	h := newHarness(t, history.DefaultConfig(), counter())
	ctx := context.Background()

	p := &product{id: "p1"}
	require.NoError(t, h.guard.Create(ctx, p))
	_, err := h.guard.ForceRegenerate(ctx, p, "")
	require.NoError(t, err)
	require.NoError(t, h.guard.Delete(ctx, p, ""))

	records, err := h.history.Find(ctx, history.ForSubject(p))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, history.EventCreated, records[0].EventType)
	assert.Equal(t, history.EventRegenerated, records[1].EventType)
	assert.Equal(t, history.EventDeleted, records[2].EventType)
	assert.False(t, records[2].CreatedAt.Before(records[0].CreatedAt))
}

func TestGuard_HistoryDisabled(t *testing.T) {
	cfg := history.DefaultConfig()
	cfg.Enabled = false
	h := newHarness(t, cfg, counter())
	ctx := context.Background()

	p := &product{id: "p1"}
	require.NoError(t, h.guard.Create(ctx, p))
	assert.NotEmpty(t, p.Sku())
	_, err := h.guard.ForceRegenerate(ctx, p, "")
	require.NoError(t, err)
	require.NoError(t, h.guard.Delete(ctx, p, ""))

	assert.Equal(t, 0, h.store.Len())
	assert.Len(t, h.drain(), 3, "events are still published")
}

type brokenHistory struct{ *memstore.HistoryStore }

func (brokenHistory) Append(context.Context, *history.Record) error {
	return errors.New("history table missing")
}

func TestGuard_SideEffectFailuresDoNotFail(t *testing.T) {
	repo := memstore.New()
	gen, err := sku.NewGenerator(sku.Config{
		UlidLength: 6,
		Models:     map[string]sku.Kind{"product": sku.KindProduct},
	}, repo)
	require.NoError(t, err)

	failing := events.NewPublisher(events.WithSink(events.SinkFunc(func(context.Context, events.Event) error {
		return errors.New("broker down")
	})), events.WithSendTimeout(time.Millisecond))
	hl := history.NewLogger(history.DefaultConfig(), brokenHistory{memstore.NewHistoryStore()})

	g := lifecycle.New(gen, repo, lifecycle.WithHistory(hl), lifecycle.WithEvents(failing))
	p := &product{id: "p1"}
	require.NoError(t, g.Create(context.Background(), p))
	assert.NotEmpty(t, p.Sku())
}
