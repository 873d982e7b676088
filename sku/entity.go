package sku

// Entity is the base interface for anything that carries a SKU.
type Entity interface {
	// EntityType returns the type discriminator used as key into Config.Models.
	EntityType() string

	// EntityID returns the entity's unique persisted identifier.
	EntityID() string

	// TableName returns the table or collection the SKU must be unique in.
	TableName() string

	// Sku returns the current SKU, empty until the first generation.
	Sku() string

	// SetSku replaces the current SKU.
	SetSku(sku string)
}

// Ref is a related record whose attributes feed a SKU segment.
type Ref interface {
	// Attr returns the named attribute, or an empty string.
	Attr(field string) string
}

// HasCategory is implemented by products with a single category relation.
type HasCategory interface {
	// Category returns the category reached through accessor.
	Category(accessor string) (Ref, bool)
}

// HasCategories is implemented by products with a to-many category relation.
type HasCategories interface {
	// Categories returns the categories reached through accessor, in order.
	Categories(accessor string) []Ref
}

// HasPropertyValues is implemented by variants.
type HasPropertyValues interface {
	// PropertyValues returns the property values reached through accessor.
	PropertyValues(accessor string) []Ref
}

// HasParent is implemented by variants.
type HasParent interface {
	// Parent returns the owning product, or nil when it is not set.
	Parent() Entity
}
