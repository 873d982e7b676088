package sku

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Generator builds SKUs for configured entity types.
type Generator struct {
	cfg      Config
	resolver *Resolver
	lookup   Lookup
	fragment func() string
	logger   zerolog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithFragmentSource replaces the unique fragment source. The returned value
// is upper-cased and truncated to Config.UlidLength.
func WithFragmentSource(fn func() string) GeneratorOption {
	return func(g *Generator) {
		if fn != nil {
			g.fragment = fn
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l zerolog.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = l
	}
}

// NewGenerator validates cfg and returns a Generator resolving collisions
// against lookup.
func NewGenerator(cfg Config, lookup Lookup, opts ...GeneratorOption) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	g := &Generator{
		cfg:      cfg,
		lookup:   lookup,
		resolver: NewResolver(lookup, cfg.Separator),
		fragment: ulidFragment,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Config returns a copy of the generator's configuration with defaults applied.
func (g *Generator) Config() Config {
	return g.cfg.withDefaults()
}

// Lookup returns the lookup the generator resolves against.
func (g *Generator) Lookup() Lookup {
	return g.lookup
}

// WithLookup returns a copy of g resolving against l.
func (g *Generator) WithLookup(l Lookup) *Generator {
	c := *g
	c.lookup = l
	c.resolver = NewResolver(l, g.cfg.Separator)
	return &c
}

// KindOf returns the configured kind for an entity type.
func (g *Generator) KindOf(entityType string) (Kind, bool) {
	k, ok := g.cfg.Models[entityType]
	return k, ok
}

// Generate returns a new unique SKU for e according to its configured kind.
// e is not modified.
func (g *Generator) Generate(ctx context.Context, e Entity) (string, error) {
	kind, ok := g.cfg.Models[e.EntityType()]
	if !ok {
		return "", &UnmappedTypeError{EntityType: e.EntityType()}
	}
	switch kind {
	case KindProduct:
		return g.GenerateProduct(ctx, e)
	case KindVariant:
		return g.GenerateVariant(ctx, e)
	default:
		return "", &UnsupportedTypeTagError{Tag: string(kind), EntityType: e.EntityType()}
	}
}

// GenerateProduct returns PREFIX-CAT-FRAGMENT, disambiguated if taken.
func (g *Generator) GenerateProduct(ctx context.Context, e Entity) (string, error) {
	candidate := Join(g.cfg.Separator,
		g.cfg.Prefix,
		Code(g.categoryName(e), g.cfg.Category.Length),
		Code(g.fragment(), g.cfg.UlidLength),
	)

	g.logger.Debug().
		Str("entity_type", e.EntityType()).
		Str("entity_id", e.EntityID()).
		Str("candidate", candidate).
		Msg("generated product sku candidate")

	return g.resolver.Resolve(ctx, candidate, e)
}

func (g *Generator) categoryName(e Entity) string {
	cc := g.cfg.Category
	var ref Ref
	if cc.HasMany {
		if hc, ok := e.(HasCategories); ok {
			if refs := hc.Categories(cc.Accessor); len(refs) > 0 {
				ref = refs[0]
			}
		}
	} else if hc, ok := e.(HasCategory); ok {
		if r, ok := hc.Category(cc.Accessor); ok {
			ref = r
		}
	}
	if ref == nil {
		return Uncategorized
	}
	if name := ref.Attr(cc.Field); name != "" {
		return name
	}
	return Uncategorized
}

// GenerateVariant returns PARENT-CODES[-SUFFIX], disambiguated if taken.
// A variant without property codes starts from the parent SKU verbatim.
func (g *Generator) GenerateVariant(ctx context.Context, e Entity) (string, error) {
	hp, ok := e.(HasParent)
	if !ok {
		return "", &MissingParentError{EntityType: e.EntityType(), EntityID: e.EntityID(), Reason: "entity has no parent relation"}
	}
	parent := hp.Parent()
	if parent == nil {
		return "", &MissingParentError{EntityType: e.EntityType(), EntityID: e.EntityID(), Reason: "parent is not set"}
	}
	parentSku := parent.Sku()
	if parentSku == "" {
		return "", &MissingParentError{EntityType: e.EntityType(), EntityID: e.EntityID(), Reason: "parent has no sku"}
	}

	codes := g.propertyCodes(e)
	candidate := parentSku
	if len(codes) > 0 {
		candidate = parentSku + g.cfg.Separator + strings.Join(codes, g.cfg.Separator)
		if g.cfg.CustomSuffix != nil {
			if suffix := g.cfg.CustomSuffix(e); suffix != "" {
				candidate += g.cfg.Separator + Upper(suffix)
			}
		}
	}

	g.logger.Debug().
		Str("entity_type", e.EntityType()).
		Str("entity_id", e.EntityID()).
		Str("candidate", candidate).
		Msg("generated variant sku candidate")

	return g.resolver.Resolve(ctx, candidate, e)
}

// propertyCodes returns the variant's property codes in descending order.
func (g *Generator) propertyCodes(e Entity) []string {
	hp, ok := e.(HasPropertyValues)
	if !ok {
		return nil
	}
	pc := g.cfg.PropertyValues
	refs := hp.PropertyValues(pc.Accessor)
	codes := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref == nil {
			continue
		}
		if code := Code(ref.Attr(pc.Field), pc.Length); code != "" {
			codes = append(codes, code)
		}
	}
	slices.Sort(codes)
	slices.Reverse(codes)
	return codes
}
