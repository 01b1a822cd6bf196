package core

import (
	"context"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

// Policy decides whether a user may read or change a family tree.
type Policy interface {
	CanEdit(ctx context.Context, treeID, userID string) (bool, error)
	CanView(ctx context.Context, treeID, userID string) (bool, error)
}

// TreePolicy grants access from the tree's owner, collaborators and
// visibility. Owners and editors may edit; viewers and anyone on a public tree
// may view.
type TreePolicy struct {
	store PersistentStore
}

var _ Policy = TreePolicy{}

// NewTreePolicy constructs the registry-backed policy.
func NewTreePolicy(store PersistentStore) TreePolicy {
	return TreePolicy{store: store}
}

func (p TreePolicy) lookup(ctx context.Context, treeID string) (FamilyTree, bool, error) {
	var (
		tree FamilyTree
		ok   bool
	)
	err := p.store.View(ctx, func(view TransactionView) error {
		tree, ok = view.FindFamilyTree(treeID)
		return nil
	})
	return tree, ok, err
}

// CanEdit implements Policy.
func (p TreePolicy) CanEdit(ctx context.Context, treeID, userID string) (bool, error) {
	tree, ok, err := p.lookup(ctx, treeID)
	if err != nil || !ok {
		return false, err
	}
	return canEdit(tree, userID), nil
}

// CanView implements Policy.
func (p TreePolicy) CanView(ctx context.Context, treeID, userID string) (bool, error) {
	tree, ok, err := p.lookup(ctx, treeID)
	if err != nil || !ok {
		return false, err
	}
	return canView(tree, userID), nil
}

func canEdit(tree FamilyTree, userID string) bool {
	if userID == "" {
		return false
	}
	if tree.OwnerID == userID {
		return true
	}
	role, ok := tree.CollaboratorRole(userID)
	return ok && role == domain.CollaboratorEditor
}

func canView(tree FamilyTree, userID string) bool {
	if tree.Visibility == domain.TreePublic || canEdit(tree, userID) {
		return true
	}
	_, ok := tree.CollaboratorRole(userID)
	return ok
}

// PolicyFuncs adapts plain functions to Policy. A nil function denies.
type PolicyFuncs struct {
	Edit func(ctx context.Context, treeID, userID string) (bool, error)
	View func(ctx context.Context, treeID, userID string) (bool, error)
}

// CanEdit implements Policy.
func (p PolicyFuncs) CanEdit(ctx context.Context, treeID, userID string) (bool, error) {
	if p.Edit == nil {
		return false, nil
	}
	return p.Edit(ctx, treeID, userID)
}

// CanView implements Policy.
func (p PolicyFuncs) CanView(ctx context.Context, treeID, userID string) (bool, error) {
	if p.View == nil {
		return false, nil
	}
	return p.View(ctx, treeID, userID)
}
