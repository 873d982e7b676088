package sku_test

import (
	"context"
	"errors"
	"sync"

	"github.com/jacentio/skutrail/sku"
)

type attrs map[string]string

func (a attrs) Attr(field string) string { return a[field] }

type testProduct struct {
	id         string
	sku        string
	category   sku.Ref
	categories []sku.Ref
}

func (p *testProduct) EntityType() string { return "product" }
func (p *testProduct) EntityID() string   { return p.id }
func (p *testProduct) TableName() string  { return "products" }
func (p *testProduct) Sku() string        { return p.sku }
func (p *testProduct) SetSku(s string)    { p.sku = s }

func (p *testProduct) Category(accessor string) (sku.Ref, bool) {
	if accessor != "category" || p.category == nil {
		return nil, false
	}
	return p.category, true
}

func (p *testProduct) Categories(accessor string) []sku.Ref {
	if accessor != "categories" {
		return nil
	}
	return p.categories
}

type testVariant struct {
	id     string
	sku    string
	parent sku.Entity
	values []sku.Ref
	color  string
}

func (v *testVariant) EntityType() string { return "variant" }
func (v *testVariant) EntityID() string   { return v.id }
func (v *testVariant) TableName() string  { return "product_variants" }
func (v *testVariant) Sku() string        { return v.sku }
func (v *testVariant) SetSku(s string)    { v.sku = s }
func (v *testVariant) Parent() sku.Entity { return v.parent }

func (v *testVariant) PropertyValues(accessor string) []sku.Ref {
	if accessor != "property_values" {
		return nil
	}
	return v.values
}

// plain has no capabilities at all.
type plain struct{ id string }

func (p *plain) EntityType() string { return "plain" }
func (p *plain) EntityID() string   { return p.id }
func (p *plain) TableName() string  { return "plain" }
func (p *plain) Sku() string        { return "" }
func (p *plain) SetSku(string)      {}

// takenLookup reports SKUs as taken by owner, per table.
type takenLookup struct {
	mu     sync.Mutex
	owners map[string]string
	calls  int
	err    error
}

func newTakenLookup() *takenLookup {
	return &takenLookup{owners: map[string]string{}}
}

func (l *takenLookup) take(table, sku, owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owners[table+"/"+sku] = owner
}

func (l *takenLookup) SkuExists(_ context.Context, e sku.Entity, s string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	owner, ok := l.owners[e.TableName()+"/"+s]
	return ok && owner != e.EntityID(), nil
}

var errLookup = errors.New("connection reset")

func fixedFragment(s string) sku.GeneratorOption {
	return sku.WithFragmentSource(func() string { return s })
}

func baseConfig() sku.Config {
	return sku.Config{
		Prefix:     "TM",
		Separator:  "-",
		UlidLength: 8,
		Models: map[string]sku.Kind{
			"product": sku.KindProduct,
			"variant": sku.KindVariant,
		},
	}
}
