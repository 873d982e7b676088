package store_test

import (
	"testing"

	"github.com/jacentio/skutrail/store"
)

func catalogRegistry() *store.Registry {
	r := store.NewRegistry()
	r.Register(store.Relationship{
		ParentType:     "product",
		ChildType:      "variant",
		ChildTableName: "product_variants",
		ParentKeyAttr:  "product_id",
	})
	return r
}

func TestRegistry_Register(t *testing.T) {
	r := catalogRegistry()

	rels := r.ChildrenOf("product")
	if len(rels) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(rels))
	}
	if rels[0].ChildTableName != "product_variants" {
		t.Errorf("expected ChildTableName 'product_variants', got %q", rels[0].ChildTableName)
	}
}

func TestRegistry_ChildrenOf(t *testing.T) {
	r := catalogRegistry()
	r.Register(store.Relationship{ParentType: "product", ChildType: "image", ChildTableName: "product_images"})

	children := r.ChildrenOf("product")
	if len(children) != 2 {
		t.Fatalf("expected 2 child relationships, got %d", len(children))
	}
	if children[0].ChildType != "variant" || children[1].ChildType != "image" {
		t.Errorf("expected registration order [variant image], got [%s %s]", children[0].ChildType, children[1].ChildType)
	}
	if got := r.ChildrenOf("variant"); len(got) != 0 {
		t.Errorf("expected no children for variant, got %d", len(got))
	}
}

func TestRegistry_HasChildren(t *testing.T) {
	r := catalogRegistry()
	if !r.HasChildren("product") {
		t.Error("expected product to have children")
	}
	if r.HasChildren("variant") {
		t.Error("expected variant to be a leaf")
	}
	if r.HasChildren("") {
		t.Error("expected empty type to have no children")
	}
}

func TestRegistry_ParentOf(t *testing.T) {
	r := catalogRegistry()

	rel, ok := r.ParentOf("variant")
	if !ok {
		t.Fatal("expected variant to have a parent relationship")
	}
	if rel.ParentType != "product" || rel.ParentKeyAttr != "product_id" {
		t.Errorf("unexpected relationship %+v", rel)
	}
	if _, ok := r.ParentOf("product"); ok {
		t.Error("expected product to be a root")
	}
}

func TestRegistry_Empty(t *testing.T) {
	r := store.NewRegistry()
	if _, ok := r.ParentOf("variant"); ok {
		t.Error("expected no relationships")
	}
	if r.ChildrenOf("product") != nil {
		t.Error("expected nil children for unknown type")
	}
}
