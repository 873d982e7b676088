package lifecycle

import (
	"context"
	"fmt"

	"github.com/jacentio/skutrail/sku"
)

// DefaultChunkSize is the number of entities loaded per chunk.
const DefaultChunkSize = 100

// Lister walks all entities of a type in chunks.
type Lister interface {
	ListChunks(ctx context.Context, entityType string, size int, fn func([]sku.Entity) error) error
}

// BatchOptions controls RegenerateAll.
type BatchOptions struct {
	// ChunkSize bounds how many entities are held at once.
	ChunkSize int

	// DryRun computes new SKUs without writing them.
	DryRun bool

	// Reason is recorded with every regeneration.
	Reason string

	// CacheSize bounds the batch SKU cache. See sku.NewBatchCache.
	CacheSize int

	// Retry, when set, wraps each entity's regeneration.
	Retry func(fn func() error) error

	// OnItem is called after each entity is processed. Per-entity outcomes
	// are only reported here; BatchResult keeps counts.
	OnItem func(ItemResult)
}

// ItemResult is the outcome for one entity.
type ItemResult struct {
	EntityType string
	EntityID   string
	OldSku     string
	NewSku     string
	Err        error
}

// Changed reports whether the SKU was (or in a dry run would be) replaced.
func (r ItemResult) Changed() bool {
	return r.Err == nil && r.OldSku != r.NewSku
}

// BatchResult summarizes RegenerateAll.
type BatchResult struct {
	Processed int
	Succeeded int
	Failed    int

	// Unchanged counts successes whose SKU stayed the same.
	Unchanged int
}

// RegenerateAll force-regenerates the SKU of every entity of entityType.
//
// Entities are independent: a failure is recorded in the result and the
// batch continues. SKUs allocated earlier in the batch are cached so later
// entities never receive them, even before the writes are visible to the
// lookup. The returned error is set only when the batch itself could not
// run or was canceled.
func (g *Guard) RegenerateAll(ctx context.Context, lister Lister, entityType string, opts BatchOptions) (BatchResult, error) {
	var result BatchResult

	if _, ok := g.gen.KindOf(entityType); !ok {
		return result, &sku.UnmappedTypeError{EntityType: entityType}
	}

	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	cache := sku.NewBatchCache(g.gen.Lookup(), opts.CacheSize)
	gen := g.gen.WithLookup(cache)

	err := lister.ListChunks(ctx, entityType, size, func(chunk []sku.Entity) error {
		for _, e := range chunk {
			cache.Remember(e)
		}
		for _, e := range chunk {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := g.regenerateOne(ctx, gen, cache, e, opts)

			result.Processed++
			switch {
			case item.Err != nil:
				result.Failed++
				g.logger.Warn().
					Err(item.Err).
					Str("entity_type", item.EntityType).
					Str("entity_id", item.EntityID).
					Msg("failed to regenerate sku")
			case !item.Changed():
				result.Succeeded++
				result.Unchanged++
			default:
				result.Succeeded++
			}
			if opts.OnItem != nil {
				opts.OnItem(item)
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("regenerate %s: %w", entityType, err)
	}

	g.logger.Info().
		Str("entity_type", entityType).
		Bool("dry_run", opts.DryRun).
		Int("processed", result.Processed).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("sku regeneration finished")

	return result, nil
}

func (g *Guard) regenerateOne(ctx context.Context, gen *sku.Generator, cache *sku.BatchCache, e sku.Entity, opts BatchOptions) ItemResult {
	item := ItemResult{
		EntityType: e.EntityType(),
		EntityID:   e.EntityID(),
		OldSku:     e.Sku(),
	}

	if opts.DryRun {
		value, err := gen.Generate(ctx, e)
		if err != nil {
			item.Err = err
			return item
		}
		cache.Reserve(e, value)
		item.NewSku = value
		return item
	}

	op := func() error {
		_, err := g.forceRegenerate(ctx, gen, e, opts.Reason)
		return err
	}
	var err error
	if opts.Retry != nil {
		err = opts.Retry(op)
	} else {
		err = op()
	}
	if err != nil {
		item.Err = err
		return item
	}

	cache.Reserve(e, e.Sku())
	item.NewSku = e.Sku()
	return item
}
