package store

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// Entity is the base interface for all storable types.
type Entity interface {
	// TableName returns the DynamoDB table name for this entity type.
	TableName() string

	// GetKey returns the primary key for this entity.
	GetKey() PK

	// EntityRef returns the type-qualified reference (e.g., "variant#uuid").
	EntityRef() string

	// EntityType returns the entity type name (e.g., "variant").
	EntityType() string
}

// ParentChecker is implemented by entities that have a parent.
type ParentChecker interface {
	// ParentCheck returns the condition check for parent validation.
	// Returns nil for root entities or when parent validation should be skipped.
	ParentCheck() *ConditionCheck

	// ParentRef returns the parent's entity reference (e.g., "product#uuid").
	// Returns empty string for root entities.
	ParentRef() string
}

// ConditionCheck defines a parent existence check for transactions.
type ConditionCheck struct {
	TableName string
	Key       PK

	// ConditionExpr is an optional custom condition expression.
	// If empty, ParentExistsCondition() is used (checks existence and not deleted).
	ConditionExpr string
}

// UniqueFielder is implemented by entities with unique field constraints.
type UniqueFielder interface {
	// UniqueFields maps attribute names to values that must be unique
	// within the entity's table. Empty values are not constrained.
	UniqueFields() map[string]string
}

// Managed attributes written by the store.
const (
	attrEntityRef  = "entity_ref"
	attrEntityType = "entity_type"
	attrParentRef  = "parent_ref"
	attrVersion    = "version"
	attrCreatedAt  = "created_at"
	attrUpdatedAt  = "updated_at"
	attrTTL        = "ttl"
	attrUniquePKs  = "_unique_pks"
)

// managed reports whether callers may not set attr through Update.
func managed(attr string) bool {
	switch attr {
	case "id", attrEntityRef, attrEntityType, attrParentRef, attrVersion,
		attrCreatedAt, attrUpdatedAt, attrTTL, attrUniquePKs:
		return true
	}
	return false
}

// Item represents a retrieved DynamoDB item with common fields.
type Item struct {
	// Raw is the raw DynamoDB item.
	Raw map[string]types.AttributeValue

	// Version is the optimistic lock version.
	Version int64

	// CreatedAt is the ISO 8601 creation timestamp.
	CreatedAt string

	// UpdatedAt is the ISO 8601 last update timestamp.
	UpdatedAt string

	// EntityRef is the type-qualified entity reference.
	EntityRef string

	// EntityType is the entity type name.
	EntityType string

	// ParentRef is the parent's entity reference (empty for root entities).
	ParentRef string
}

// Attr returns the string attribute name, or "" when absent.
func (i *Item) Attr(name string) string {
	if v, ok := i.Raw[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// ChildRef represents a reference to a child entity in the relationship table.
type ChildRef struct {
	// Ref is the child's entity reference.
	Ref string

	// TableName is the DynamoDB table containing the child.
	TableName string

	// Key is the primary key to locate the child.
	Key PK

	// ShardPK is the relationship table partition key (for TTL updates).
	ShardPK string
}
