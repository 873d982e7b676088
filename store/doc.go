// Package store persists catalog entities and their SKU history in DynamoDB.
//
// Products and variants live in their own tables. Alongside them the store
// maintains three support tables:
//
//   - a relationship table linking each variant to its product, sharded by
//     parent so cascades can fan out
//   - a unique constraint table with one record per claimed value, scoped to
//     the owning entity's table, so a SKU is unique per table
//   - the SKU history table, partitioned by subject and sorted by time
//
// # Key Features
//
//   - Parent validation on child creation (atomic)
//   - Orphan protection (prevent deleting parents with children)
//   - Cascading deletes via DynamoDB Streams + TTL
//   - Per-table unique values, claimed and released transactionally
//   - Optimistic locking with version field
//   - Configurable write sharding for high throughput
//
// # Entity Interfaces
//
// All entities implement [Entity]. Children also implement [ParentChecker]
// and entities carrying a SKU implement [UniqueFielder]:
//
//	func (v Variant) UniqueFields() map[string]string {
//	    return map[string]string{"sku": v.SKU}
//	}
//
// Deleting an entity only sets its TTL. The stream handler then sets the
// same TTL on children, on the relationship record and on every claimed
// unique value. A claim whose TTL has passed may be taken by a new owner
// before DynamoDB removes it.
//
// # Errors
//
//   - [ErrNotFound] - entity doesn't exist or is deleted
//   - [ErrParentNotFound] - parent validation failed
//   - [ErrAlreadyExists] - entity with ID already exists
//   - [ErrHasChildren] - cannot delete entity with children
//   - [ErrConcurrentModification] - optimistic lock failed
//   - [ErrDuplicateValue] - unique value already claimed in the table
//   - [ErrAlreadyDeleted] - entity is missing or already carries a TTL
package store
