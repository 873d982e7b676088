package store

// Relationship defines a parent-child relationship for cascade operations.
type Relationship struct {
	// ParentType is the parent entity type (e.g., "product").
	ParentType string

	// ChildType is the child entity type (e.g., "variant").
	ChildType string

	// ChildTableName is the DynamoDB table name for the child (e.g., "product_variants").
	ChildTableName string

	// ParentKeyAttr is the attribute name in child that references parent (e.g., "product_id").
	ParentKeyAttr string
}

// Registry holds all known entity relationships for cascade operations.
type Registry struct {
	byParent map[string][]Relationship
	byChild  map[string]Relationship
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byParent: make(map[string][]Relationship),
		byChild:  make(map[string]Relationship),
	}
}

// Register adds a relationship to the registry. A child type has at most
// one parent type; registering it again replaces the earlier parent.
func (r *Registry) Register(rel Relationship) {
	r.byParent[rel.ParentType] = append(r.byParent[rel.ParentType], rel)
	r.byChild[rel.ChildType] = rel
}

// ChildrenOf returns all child relationships for a given parent type.
func (r *Registry) ChildrenOf(parentType string) []Relationship {
	return r.byParent[parentType]
}

// ParentOf returns the relationship in which childType is the child.
func (r *Registry) ParentOf(childType string) (Relationship, bool) {
	rel, ok := r.byChild[childType]
	return rel, ok
}

// HasChildren returns true if the parent type has any registered child relationships.
func (r *Registry) HasChildren(parentType string) bool {
	return len(r.byParent[parentType]) > 0
}
