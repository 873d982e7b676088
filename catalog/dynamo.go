package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jacentio/skutrail/sku"
	"github.com/jacentio/skutrail/store"
)

// ErrUnsupportedEntity is returned for entities that are not catalog types.
var ErrUnsupportedEntity = errors.New("skutrail: unsupported catalog entity")

// Store is the subset of *store.Store the repository uses.
type Store interface {
	Create(ctx context.Context, entity store.Entity, item map[string]types.AttributeValue) error
	Get(ctx context.Context, table string, key store.PK) (*store.Item, error)
	Update(ctx context.Context, entity store.Entity, item map[string]types.AttributeValue, expectedVersion int64) error
	Delete(ctx context.Context, entity store.Entity, opts store.DeleteOptions) error
	UniqueOwner(ctx context.Context, table, field, value string) (string, bool, error)
	ScanChunks(ctx context.Context, table string, size int, fn func([]*store.Item) error) error
}

var _ Store = (*store.Store)(nil)

// record is a catalog entity as the repository sees it.
type record interface {
	sku.Entity
	store.Entity
	version() int64
	setVersion(v int64)
}

func (p *Product) version() int64     { return p.Version }
func (p *Product) setVersion(v int64) { p.Version = v }
func (v *Variant) version() int64     { return v.Version }
func (v *Variant) setVersion(n int64) { v.Version = n }

func asRecord(e sku.Entity) (record, error) {
	switch r := e.(type) {
	case *Product:
		return r, nil
	case *Variant:
		return r, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedEntity, e)
}

// DynamoRepository persists products and variants through the store. It
// implements lifecycle.Repository, lifecycle.Lister and sku.Lookup.
type DynamoRepository struct {
	store  Store
	logger zerolog.Logger

	// Cascade deletes a product's variants with it. Without it a product
	// that still has variants cannot be deleted.
	Cascade bool
}

// NewDynamoRepository returns a repository writing through s.
func NewDynamoRepository(s Store) *DynamoRepository {
	return &DynamoRepository{
		store:   s,
		logger:  log.Logger,
		Cascade: true,
	}
}

// WithLogger returns a copy of r logging to l.
func (r *DynamoRepository) WithLogger(l zerolog.Logger) *DynamoRepository {
	c := *r
	c.logger = l
	return &c
}

// Insert creates e. The version is set to 1 on success.
func (r *DynamoRepository) Insert(ctx context.Context, e sku.Entity) error {
	rec, err := asRecord(e)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", rec.EntityRef(), err)
	}
	if err := r.store.Create(ctx, rec, item); err != nil {
		return err
	}
	rec.setVersion(1)
	return nil
}

// Update writes e under its current version and bumps it on success.
func (r *DynamoRepository) Update(ctx context.Context, e sku.Entity) error {
	rec, err := asRecord(e)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", rec.EntityRef(), err)
	}
	if err := r.store.Update(ctx, rec, item, rec.version()); err != nil {
		return err
	}
	rec.setVersion(rec.version() + 1)
	return nil
}

// Delete marks e deleted. Variants, relationship records and SKU claims
// are released by the stream handler.
func (r *DynamoRepository) Delete(ctx context.Context, e sku.Entity) error {
	rec, err := asRecord(e)
	if err != nil {
		return err
	}
	return r.store.Delete(ctx, rec, store.DeleteOptions{
		Cascade:       r.Cascade,
		OrphanProtect: true,
	})
}

// PersistedSku reads the stored SKU of e.
func (r *DynamoRepository) PersistedSku(ctx context.Context, e sku.Entity) (string, error) {
	rec, err := asRecord(e)
	if err != nil {
		return "", err
	}
	item, err := r.store.Get(ctx, rec.TableName(), rec.GetKey())
	if err != nil {
		return "", err
	}
	return item.Attr("sku"), nil
}

// SkuExists implements sku.Lookup against the unique constraint table.
// A value claimed by e itself is reported free.
func (r *DynamoRepository) SkuExists(ctx context.Context, e sku.Entity, value string) (bool, error) {
	owner, found, err := r.store.UniqueOwner(ctx, e.TableName(), "sku", value)
	if err != nil || !found {
		return false, err
	}
	return owner != e.EntityType()+"#"+e.EntityID(), nil
}

// GetProduct loads a product by ID.
func (r *DynamoRepository) GetProduct(ctx context.Context, id string) (*Product, error) {
	item, err := r.store.Get(ctx, ProductTable, idKey(id))
	if err != nil {
		return nil, err
	}
	return decodeProduct(item)
}

// GetVariant loads a variant by ID together with its product.
func (r *DynamoRepository) GetVariant(ctx context.Context, id string) (*Variant, error) {
	item, err := r.store.Get(ctx, VariantTable, idKey(id))
	if err != nil {
		return nil, err
	}
	v, err := decodeVariant(item)
	if err != nil {
		return nil, err
	}
	p, err := r.GetProduct(ctx, v.ProductID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		v.Product = p
	}
	return v, nil
}

// ListChunks implements lifecycle.Lister by scanning the entity type's
// table. Variants come with their products loaded; a variant whose product
// is gone has none.
func (r *DynamoRepository) ListChunks(ctx context.Context, entityType string, size int, fn func([]sku.Entity) error) error {
	switch entityType {
	case TypeProduct:
		return r.store.ScanChunks(ctx, ProductTable, size, func(items []*store.Item) error {
			chunk := make([]sku.Entity, 0, len(items))
			for _, item := range items {
				p, err := decodeProduct(item)
				if err != nil {
					return err
				}
				chunk = append(chunk, p)
			}
			return fn(chunk)
		})
	case TypeVariant:
		return r.store.ScanChunks(ctx, VariantTable, size, func(items []*store.Item) error {
			chunk, err := r.variantChunk(ctx, items)
			if err != nil {
				return err
			}
			return fn(chunk)
		})
	}
	return &sku.UnmappedTypeError{EntityType: entityType}
}

// variantChunk decodes items and loads each distinct product once.
func (r *DynamoRepository) variantChunk(ctx context.Context, items []*store.Item) ([]sku.Entity, error) {
	products := make(map[string]*Product)
	chunk := make([]sku.Entity, 0, len(items))
	for _, item := range items {
		v, err := decodeVariant(item)
		if err != nil {
			return nil, err
		}
		p, seen := products[v.ProductID]
		if !seen {
			p, err = r.GetProduct(ctx, v.ProductID)
			if errors.Is(err, store.ErrNotFound) {
				r.logger.Warn().
					Str("variant_id", v.ID).
					Str("product_id", v.ProductID).
					Msg("variant without live product")
				err = nil
			}
			if err != nil {
				return nil, err
			}
			products[v.ProductID] = p
		}
		v.Product = p
		chunk = append(chunk, v)
	}
	return chunk, nil
}

func decodeProduct(item *store.Item) (*Product, error) {
	var p Product
	if err := attributevalue.UnmarshalMap(item.Raw, &p); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	p.Version = item.Version
	return &p, nil
}

func decodeVariant(item *store.Item) (*Variant, error) {
	var v Variant
	if err := attributevalue.UnmarshalMap(item.Raw, &v); err != nil {
		return nil, fmt.Errorf("decode variant: %w", err)
	}
	v.Version = item.Version
	return &v, nil
}
