package sku

import (
	"context"
	"strconv"
)

// Lookup answers whether a SKU is already taken in e's table by an entity
// other than e itself.
type Lookup interface {
	SkuExists(ctx context.Context, e Entity, sku string) (bool, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, e Entity, sku string) (bool, error)

func (f LookupFunc) SkuExists(ctx context.Context, e Entity, sku string) (bool, error) {
	return f(ctx, e, sku)
}

// Resolver appends a numeric disambiguator to a candidate SKU until the
// lookup reports it free.
//
// Resolution is a pre-check only. Two concurrent writers can both see a
// value as free; the persistence layer's unique constraint decides.
type Resolver struct {
	lookup    Lookup
	separator string
}

// NewResolver returns a Resolver using sep between the candidate and the
// counter. An empty sep uses DefaultSeparator.
func NewResolver(lookup Lookup, sep string) *Resolver {
	if sep == "" {
		sep = DefaultSeparator
	}
	return &Resolver{lookup: lookup, separator: sep}
}

// Resolve returns candidate when it is free, otherwise the first of
// candidate-1, candidate-2, ... that is.
func (r *Resolver) Resolve(ctx context.Context, candidate string, e Entity) (string, error) {
	value := candidate
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		taken, err := r.lookup.SkuExists(ctx, e, value)
		if err != nil {
			return "", &PersistenceError{Op: "check sku " + value, Err: err}
		}
		if !taken {
			return value, nil
		}
		value = candidate + r.separator + strconv.Itoa(n)
	}
}
