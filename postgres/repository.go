package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jacentio/skutrail/catalog"
	"github.com/jacentio/skutrail/sku"
)

// Conn is a DBTX that can open transactions.
type Conn interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository persists catalog products and variants. It implements
// lifecycle.Repository, lifecycle.Lister and sku.Lookup.
type Repository struct {
	conn Conn

	// OnCascade, when set, is called for each variant removed together
	// with its product, after the delete commits.
	OnCascade func(ctx context.Context, v *catalog.Variant)
}

// NewRepository returns a repository using conn.
func NewRepository(conn Conn) *Repository {
	return &Repository{conn: conn}
}

func table(e sku.Entity) string {
	return pgx.Identifier{e.TableName()}.Sanitize()
}

// Insert creates e with version 1.
func (r *Repository) Insert(ctx context.Context, e sku.Entity) error {
	var err error
	switch v := e.(type) {
	case *catalog.Product:
		_, err = r.conn.Exec(ctx,
			`INSERT INTO `+table(v)+` (id, name, sku, category, categories, version) VALUES ($1, $2, $3, $4, $5, 1)`,
			v.ID, v.Name, v.SKU, v.PrimaryCategory, v.CategoryList)
		if err == nil {
			v.Version = 1
		}
	case *catalog.Variant:
		_, err = r.conn.Exec(ctx,
			`INSERT INTO `+table(v)+` (id, product_id, name, sku, property_values, version) VALUES ($1, $2, $3, $4, $5, 1)`,
			v.ID, v.ProductID, v.Name, v.SKU, v.Values)
		if err == nil {
			v.Version = 1
		}
	default:
		return fmt.Errorf("%w: %T", catalog.ErrUnsupportedEntity, e)
	}
	return mapError(err)
}

// Update writes e if its version is current and bumps the version.
func (r *Repository) Update(ctx context.Context, e sku.Entity) error {
	var (
		tag     pgconn.CommandTag
		err     error
		version int64
	)
	switch v := e.(type) {
	case *catalog.Product:
		version = v.Version
		tag, err = r.conn.Exec(ctx,
			`UPDATE `+table(v)+` SET name = $2, sku = $3, category = $4, categories = $5,
				version = version + 1, updated_at = now()
			WHERE id = $1 AND version = $6`,
			v.ID, v.Name, v.SKU, v.PrimaryCategory, v.CategoryList, v.Version)
		if err == nil && tag.RowsAffected() == 1 {
			v.Version++
		}
	case *catalog.Variant:
		version = v.Version
		tag, err = r.conn.Exec(ctx,
			`UPDATE `+table(v)+` SET name = $2, sku = $3, property_values = $4,
				version = version + 1, updated_at = now()
			WHERE id = $1 AND version = $5`,
			v.ID, v.Name, v.SKU, v.Values, v.Version)
		if err == nil && tag.RowsAffected() == 1 {
			v.Version++
		}
	default:
		return fmt.Errorf("%w: %T", catalog.ErrUnsupportedEntity, e)
	}
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, e, version)
	}
	return nil
}

func (r *Repository) missingOrStale(ctx context.Context, e sku.Entity, version int64) error {
	var current int64
	err := r.conn.QueryRow(ctx, `SELECT version FROM `+table(e)+` WHERE id = $1`, e.EntityID()).Scan(&current)
	if err != nil {
		return mapError(err)
	}
	return fmt.Errorf("%w: %s %s at version %d, have %d",
		ErrConcurrentModification, e.EntityType(), e.EntityID(), current, version)
}

// Delete removes e. Deleting a product removes its variants in the same
// transaction; OnCascade is told about each of them afterwards.
func (r *Repository) Delete(ctx context.Context, e sku.Entity) error {
	switch e.(type) {
	case *catalog.Product, *catalog.Variant:
	default:
		return fmt.Errorf("%w: %T", catalog.ErrUnsupportedEntity, e)
	}

	var removed []*catalog.Variant
	err := withTx(ctx, r.conn, func(tx pgx.Tx) error {
		if p, ok := e.(*catalog.Product); ok {
			rows, err := tx.Query(ctx,
				`DELETE FROM `+pgx.Identifier{catalog.VariantTable}.Sanitize()+` WHERE product_id = $1 RETURNING id, product_id, name, sku`,
				p.ID)
			if err != nil {
				return err
			}
			removed, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*catalog.Variant, error) {
				v := &catalog.Variant{Product: p}
				return v, row.Scan(&v.ID, &v.ProductID, &v.Name, &v.SKU)
			})
			if err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM `+table(e)+` WHERE id = $1`, e.EntityID())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return mapError(err)
	}

	if r.OnCascade != nil {
		for _, v := range removed {
			r.OnCascade(ctx, v)
		}
	}
	return nil
}

// PersistedSku reads the stored SKU of e.
func (r *Repository) PersistedSku(ctx context.Context, e sku.Entity) (string, error) {
	var value string
	err := r.conn.QueryRow(ctx, `SELECT sku FROM `+table(e)+` WHERE id = $1`, e.EntityID()).Scan(&value)
	if err != nil {
		return "", mapError(err)
	}
	return value, nil
}

// SkuExists implements sku.Lookup. The entity's own row does not count.
func (r *Repository) SkuExists(ctx context.Context, e sku.Entity, value string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table(e)+` WHERE sku = $1 AND id <> $2)`,
		value, e.EntityID()).Scan(&exists)
	return exists, err
}

// GetProduct loads a product by ID.
func (r *Repository) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	rows, err := r.conn.Query(ctx, selectProducts+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	return p, mapError(err)
}

// GetVariant loads a variant by ID with its product.
func (r *Repository) GetVariant(ctx context.Context, id string) (*catalog.Variant, error) {
	rows, err := r.conn.Query(ctx, selectVariants+` WHERE v.id = $1`, id)
	if err != nil {
		return nil, err
	}
	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	return v, mapError(err)
}

const (
	selectProducts = `SELECT id, name, sku, category, categories, version FROM products`

	selectVariants = `SELECT v.id, v.product_id, v.name, v.sku, v.property_values, v.version,
		p.id, p.name, p.sku, p.category, p.categories, p.version
		FROM product_variants v JOIN products p ON p.id = v.product_id`
)

func scanProduct(row pgx.CollectableRow) (*catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.PrimaryCategory, &p.CategoryList, &p.Version)
	return &p, err
}

func scanVariant(row pgx.CollectableRow) (*catalog.Variant, error) {
	var (
		v catalog.Variant
		p catalog.Product
	)
	err := row.Scan(&v.ID, &v.ProductID, &v.Name, &v.SKU, &v.Values, &v.Version,
		&p.ID, &p.Name, &p.SKU, &p.PrimaryCategory, &p.CategoryList, &p.Version)
	v.Product = &p
	return &v, err
}

// ListChunks implements lifecycle.Lister with keyset pagination on id.
func (r *Repository) ListChunks(ctx context.Context, entityType string, size int, fn func([]sku.Entity) error) error {
	if size <= 0 {
		size = 100
	}

	var query string
	var scan func(pgx.CollectableRow) (sku.Entity, error)
	switch entityType {
	case catalog.TypeProduct:
		query = selectProducts + ` WHERE id > $1 ORDER BY id LIMIT $2`
		scan = func(row pgx.CollectableRow) (sku.Entity, error) { return scanProduct(row) }
	case catalog.TypeVariant:
		query = selectVariants + ` WHERE v.id > $1 ORDER BY v.id LIMIT $2`
		scan = func(row pgx.CollectableRow) (sku.Entity, error) { return scanVariant(row) }
	default:
		return &sku.UnmappedTypeError{EntityType: entityType}
	}

	after := ""
	for {
		rows, err := r.conn.Query(ctx, query, after, size)
		if err != nil {
			return err
		}
		chunk, err := pgx.CollectRows(rows, scan)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		if len(chunk) < size {
			return nil
		}
		after = chunk[len(chunk)-1].EntityID()
	}
}
