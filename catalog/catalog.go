// Package catalog holds the product and variant entities that carry SKUs,
// and adapts the DynamoDB store to the SKU lifecycle.
package catalog

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/skutrail/sku"
	"github.com/jacentio/skutrail/store"
)

// Entity types, also used as keys in sku.Config.Models.
const (
	TypeProduct = "product"
	TypeVariant = "variant"
)

// Tables holding catalog entities. SKUs are unique per table.
const (
	ProductTable = "products"
	VariantTable = "product_variants"
)

// Accessors understood by Product and Variant.
const (
	AccessorCategory       = "category"
	AccessorCategories     = "categories"
	AccessorPropertyValues = "property_values"
	AccessorValues         = "values"
)

// NewID returns a new time-ordered entity ID.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Registry returns the relationships between catalog entity types.
func Registry() *store.Registry {
	r := store.NewRegistry()
	r.Register(store.Relationship{
		ParentType:     TypeProduct,
		ChildType:      TypeVariant,
		ChildTableName: VariantTable,
		ParentKeyAttr:  "product_id",
	})
	return r
}

// Category groups products. Its name feeds the product SKU.
type Category struct {
	ID   string `dynamodbav:"id" json:"id"`
	Name string `dynamodbav:"name" json:"name"`
	Slug string `dynamodbav:"slug,omitempty" json:"slug,omitempty"`
}

// Attr implements sku.Ref.
func (c Category) Attr(field string) string {
	switch field {
	case "id":
		return c.ID
	case "name":
		return c.Name
	case "slug":
		return c.Slug
	}
	return ""
}

// PropertyValue is one option of a variant, such as colour "Red".
type PropertyValue struct {
	ID       string `dynamodbav:"id" json:"id"`
	Property string `dynamodbav:"property" json:"property"`
	Value    string `dynamodbav:"value" json:"value"`
	Code     string `dynamodbav:"code,omitempty" json:"code,omitempty"`
}

// Attr implements sku.Ref.
func (v PropertyValue) Attr(field string) string {
	switch field {
	case "id":
		return v.ID
	case "property":
		return v.Property
	case "value":
		return v.Value
	case "code":
		return v.Code
	}
	return ""
}

// Product is a sellable item. Its SKU is derived from its category.
type Product struct {
	ID   string `dynamodbav:"id" json:"id"`
	Name string `dynamodbav:"name" json:"name"`
	SKU  string `dynamodbav:"sku" json:"sku"`

	// PrimaryCategory is read through the "category" accessor.
	PrimaryCategory *Category `dynamodbav:"category,omitempty" json:"category,omitempty"`

	// CategoryList is read through the "categories" accessor.
	CategoryList []Category `dynamodbav:"categories,omitempty" json:"categories,omitempty"`

	// Version is the optimistic lock version, managed by the repository.
	Version int64 `dynamodbav:"-" json:"version"`
}

var (
	_ sku.Entity            = (*Product)(nil)
	_ sku.HasCategory       = (*Product)(nil)
	_ sku.HasCategories     = (*Product)(nil)
	_ store.Entity          = (*Product)(nil)
	_ store.UniqueFielder   = (*Product)(nil)
	_ sku.HasPropertyValues = (*Variant)(nil)
	_ sku.HasParent         = (*Variant)(nil)
	_ store.ParentChecker   = (*Variant)(nil)
	_ store.UniqueFielder   = (*Variant)(nil)
)

func (p *Product) EntityType() string { return TypeProduct }
func (p *Product) EntityID() string   { return p.ID }
func (p *Product) TableName() string  { return ProductTable }
func (p *Product) Sku() string        { return p.SKU }
func (p *Product) SetSku(s string)    { p.SKU = s }
func (p *Product) EntityRef() string  { return TypeProduct + "#" + p.ID }

func (p *Product) GetKey() store.PK {
	return idKey(p.ID)
}

func (p *Product) UniqueFields() map[string]string {
	return map[string]string{"sku": p.SKU}
}

// Category implements sku.HasCategory.
func (p *Product) Category(accessor string) (sku.Ref, bool) {
	if accessor != AccessorCategory || p.PrimaryCategory == nil {
		return nil, false
	}
	return *p.PrimaryCategory, true
}

// Categories implements sku.HasCategories. The "category" accessor yields
// the primary category alone.
func (p *Product) Categories(accessor string) []sku.Ref {
	switch accessor {
	case AccessorCategories:
		refs := make([]sku.Ref, len(p.CategoryList))
		for i, c := range p.CategoryList {
			refs[i] = c
		}
		return refs
	case AccessorCategory:
		if p.PrimaryCategory != nil {
			return []sku.Ref{*p.PrimaryCategory}
		}
	}
	return nil
}

// Variant is a concrete option set of a product.
type Variant struct {
	ID        string          `dynamodbav:"id" json:"id"`
	ProductID string          `dynamodbav:"product_id" json:"product_id"`
	Name      string          `dynamodbav:"name" json:"name"`
	SKU       string          `dynamodbav:"sku" json:"sku"`
	Values    []PropertyValue `dynamodbav:"property_values,omitempty" json:"property_values,omitempty"`

	// Product is the loaded parent. It is not persisted with the variant.
	Product *Product `dynamodbav:"-" json:"-"`

	Version int64 `dynamodbav:"-" json:"version"`
}

func (v *Variant) EntityType() string { return TypeVariant }
func (v *Variant) EntityID() string   { return v.ID }
func (v *Variant) TableName() string  { return VariantTable }
func (v *Variant) Sku() string        { return v.SKU }
func (v *Variant) SetSku(s string)    { v.SKU = s }
func (v *Variant) EntityRef() string  { return TypeVariant + "#" + v.ID }

func (v *Variant) GetKey() store.PK {
	return idKey(v.ID)
}

func (v *Variant) UniqueFields() map[string]string {
	return map[string]string{"sku": v.SKU}
}

// ParentRef implements store.ParentChecker.
func (v *Variant) ParentRef() string {
	return TypeProduct + "#" + v.ProductID
}

// ParentCheck implements store.ParentChecker.
func (v *Variant) ParentCheck() *store.ConditionCheck {
	return &store.ConditionCheck{
		TableName: ProductTable,
		Key:       idKey(v.ProductID),
	}
}

// Parent implements sku.HasParent.
func (v *Variant) Parent() sku.Entity {
	if v.Product == nil {
		return nil
	}
	return v.Product
}

// PropertyValues implements sku.HasPropertyValues.
func (v *Variant) PropertyValues(accessor string) []sku.Ref {
	if accessor != AccessorPropertyValues && accessor != AccessorValues {
		return nil
	}
	refs := make([]sku.Ref, len(v.Values))
	for i, pv := range v.Values {
		refs[i] = pv
	}
	return refs
}

// SetProduct attaches the parent product and its ID.
func (v *Variant) SetProduct(p *Product) {
	v.Product = p
	if p != nil {
		v.ProductID = p.ID
	}
}

func idKey(id string) store.PK {
	return store.PK{"id": &types.AttributeValueMemberS{Value: id}}
}
