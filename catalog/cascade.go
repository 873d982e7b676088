package catalog

import (
	"context"
	"errors"

	"github.com/jacentio/skutrail/sku"
	"github.com/jacentio/skutrail/store"
	"github.com/jacentio/skutrail/stream"
)

// CascadeReason is recorded for variants removed together with their product.
const CascadeReason = "product deleted"

// Notifier records deletions without touching storage.
// *lifecycle.Guard satisfies it.
type Notifier interface {
	NotifyDelete(ctx context.Context, e sku.Entity, reason string)
}

// ParentGetter reports whether a product is still live.
type ParentGetter interface {
	Get(ctx context.Context, table string, key store.PK) (*store.Item, error)
}

// VariantDeleteHook returns a stream hook that records the deletion of
// variants removed by a product cascade. Variants deleted on their own
// have already been recorded by the guard and are skipped.
func VariantDeleteHook(n Notifier, parents ParentGetter) stream.DeleteHook {
	rel, _ := Registry().ParentOf(TypeVariant)
	return func(ctx context.Context, d stream.Deleted) error {
		v := VariantFromImage(d)
		if v.SKU == "" {
			return nil
		}
		_, err := parents.Get(ctx, ProductTable, idKey(d.Attr(rel.ParentKeyAttr)))
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		n.NotifyDelete(ctx, v, CascadeReason)
		return nil
	}
}

// VariantFromImage rebuilds the variant carried by a stream record.
func VariantFromImage(d stream.Deleted) *Variant {
	return &Variant{
		ID:        d.Attr("id"),
		ProductID: d.Attr("product_id"),
		Name:      d.Attr("name"),
		SKU:       d.Attr("sku"),
	}
}
