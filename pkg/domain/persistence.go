package domain

import "context"

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	// RelationshipsForPerson lists every edge naming personID as either endpoint.
	RelationshipsForPerson(personID string) []Relationship
	// FindRelationshipBetween locates an edge of type t between a and b,
	// honouring direction only for PARENT_CHILD.
	FindRelationshipBetween(treeID, a, b string, t RelationshipType) (Relationship, bool)
}

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateFamilyTree(FamilyTree) (FamilyTree, error)
	UpdateFamilyTree(id string, mutator func(*FamilyTree) error) (FamilyTree, error)
	// AdjustTreeStatistics applies counter deltas in place, flooring each counter at zero.
	AdjustTreeStatistics(treeID string, persons, relationships int) (FamilyTree, error)
	CreatePerson(Person) (Person, error)
	UpdatePerson(id string, mutator func(*Person) error) (Person, error)
	DeletePerson(id string) error
	CreateRelationship(Relationship) (Relationship, error)
	DeleteRelationship(id string) error
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
