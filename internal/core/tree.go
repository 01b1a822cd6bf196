package core

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

// SystemActor is recorded as the actor of background maintenance operations.
const SystemActor = "system"

// FamilyTreeInput carries the fields of a new family tree.
type FamilyTreeInput struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Visibility  domain.TreeVisibility `json:"visibility,omitempty"`
}

// StatisticsDrift reports how far maintained counters were from the live
// row counts before reconciliation.
type StatisticsDrift struct {
	TreeID              string `json:"tree_id"`
	PersonsBefore       int    `json:"persons_before"`
	PersonsAfter        int    `json:"persons_after"`
	RelationshipsBefore int    `json:"relationships_before"`
	RelationshipsAfter  int    `json:"relationships_after"`
}

// Drifted reports whether any counter changed.
func (d StatisticsDrift) Drifted() bool {
	return d.PersonsBefore != d.PersonsAfter || d.RelationshipsBefore != d.RelationshipsAfter
}

// TreeDocument is a complete point-in-time copy of one tree.
type TreeDocument struct {
	Tree          FamilyTree     `json:"family_tree"`
	Persons       []Person       `json:"persons"`
	Relationships []Relationship `json:"relationships"`
	ExportedAt    time.Time      `json:"exported_at"`
}

// CreateFamilyTree registers a tree owned by the caller.
func (s *Service) CreateFamilyTree(ctx context.Context, actorID string, in FamilyTreeInput) (FamilyTree, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	treeID := uuid.NewString()
	ctx, op := s.begin(ctx, OpCreateFamilyTree, treeID, actorID)
	tree, err := s.createFamilyTree(ctx, treeID, actorID, in)
	op.end(ctx, tree.ID, err)
	return tree, err
}

func (s *Service) createFamilyTree(ctx context.Context, treeID, actorID string, in FamilyTreeInput) (FamilyTree, error) {
	if err := requireActor(actorID); err != nil {
		return FamilyTree{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return FamilyTree{}, invalid("family tree name is required")
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = domain.TreePrivate
	}
	if !visibility.Valid() {
		return FamilyTree{}, invalid("unknown family tree visibility %q", in.Visibility)
	}
	var created FamilyTree
	err := s.mutate(ctx, OpCreateFamilyTree, treeID, func(tx Transaction) error {
		tree, err := tx.CreateFamilyTree(FamilyTree{
			Base:        domain.Base{ID: treeID},
			Name:        name,
			Description: in.Description,
			OwnerID:     actorID,
			Visibility:  visibility,
		})
		created = tree
		return err
	})
	if err != nil {
		return FamilyTree{}, err
	}
	return created, nil
}

// GetFamilyTree returns tree metadata and statistics.
func (s *Service) GetFamilyTree(ctx context.Context, treeID, actorID string) (FamilyTree, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpGetFamilyTree, treeID, actorID)
	tree, err := s.getFamilyTree(ctx, treeID, actorID)
	op.end(ctx, treeID, err)
	return tree, err
}

func (s *Service) getFamilyTree(ctx context.Context, treeID, actorID string) (FamilyTree, error) {
	if err := s.authorizeView(ctx, treeID, actorID); err != nil {
		return FamilyTree{}, err
	}
	var tree FamilyTree
	err := s.view(ctx, func(view TransactionView) error {
		t, ok := view.FindFamilyTree(treeID)
		if !ok {
			return notFound("family tree %s not found", treeID)
		}
		tree = t
		return nil
	})
	return tree, err
}

// ListFamilyTrees returns the trees the caller may view.
func (s *Service) ListFamilyTrees(ctx context.Context, actorID string) ([]FamilyTree, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpListFamilyTrees, "", actorID)
	trees, err := s.listFamilyTrees(ctx, actorID)
	op.end(ctx, "", err)
	return trees, err
}

func (s *Service) listFamilyTrees(ctx context.Context, actorID string) ([]FamilyTree, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	var all []FamilyTree
	if err := s.view(ctx, func(view TransactionView) error {
		all = view.ListFamilyTrees()
		return nil
	}); err != nil {
		return nil, err
	}
	out := make([]FamilyTree, 0, len(all))
	for _, tree := range all {
		ok, err := s.policy.CanView(ctx, tree.ID, actorID)
		if err != nil {
			return nil, translate(err)
		}
		if ok {
			out = append(out, tree)
		}
	}
	return out, nil
}

// TreeIDs lists every family tree id. Background jobs use it without an actor.
func (s *Service) TreeIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.view(ctx, func(view TransactionView) error {
		for _, t := range view.ListFamilyTrees() {
			ids = append(ids, t.ID)
		}
		return nil
	})
	return ids, err
}

func (s *Service) requireOwner(ctx context.Context, treeID, actorID string) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	var (
		tree  FamilyTree
		found bool
	)
	if err := s.view(ctx, func(view TransactionView) error {
		tree, found = view.FindFamilyTree(treeID)
		return nil
	}); err != nil {
		return err
	}
	if !found {
		return notFound("family tree %s not found", treeID)
	}
	if tree.OwnerID != actorID {
		return forbidden("only the owner may manage collaborators of family tree %s", treeID)
	}
	return nil
}

// AddCollaborator grants userID a role on the tree, replacing any prior role.
// Only the owner may call it.
func (s *Service) AddCollaborator(ctx context.Context, treeID, actorID, userID string, role domain.CollaboratorRole) (FamilyTree, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpAddCollaborator, treeID, actorID)
	tree, err := s.addCollaborator(ctx, treeID, actorID, userID, role)
	op.end(ctx, treeID, err)
	return tree, err
}

func (s *Service) addCollaborator(ctx context.Context, treeID, actorID, userID string, role domain.CollaboratorRole) (FamilyTree, error) {
	if err := s.requireOwner(ctx, treeID, actorID); err != nil {
		return FamilyTree{}, err
	}
	if userID == "" {
		return FamilyTree{}, invalid("collaborator user id is required")
	}
	if userID == actorID {
		return FamilyTree{}, invalid("the owner cannot be added as a collaborator")
	}
	if !role.Valid() {
		return FamilyTree{}, invalid("unknown collaborator role %q", role)
	}
	var updated FamilyTree
	err := s.mutate(ctx, OpAddCollaborator, treeID, func(tx Transaction) error {
		tree, err := tx.UpdateFamilyTree(treeID, func(t *FamilyTree) error {
			t.Collaborators = slices.DeleteFunc(t.Collaborators, func(c domain.Collaborator) bool { return c.UserID == userID })
			t.Collaborators = append(t.Collaborators, domain.Collaborator{UserID: userID, Role: role})
			return nil
		})
		updated = tree
		return err
	})
	if err != nil {
		return FamilyTree{}, err
	}
	return updated, nil
}

// RemoveCollaborator revokes userID's access. Only the owner may call it.
func (s *Service) RemoveCollaborator(ctx context.Context, treeID, actorID, userID string) (FamilyTree, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpRemoveCollaborator, treeID, actorID)
	tree, err := s.removeCollaborator(ctx, treeID, actorID, userID)
	op.end(ctx, treeID, err)
	return tree, err
}

func (s *Service) removeCollaborator(ctx context.Context, treeID, actorID, userID string) (FamilyTree, error) {
	if err := s.requireOwner(ctx, treeID, actorID); err != nil {
		return FamilyTree{}, err
	}
	var updated FamilyTree
	err := s.mutate(ctx, OpRemoveCollaborator, treeID, func(tx Transaction) error {
		tree, err := tx.UpdateFamilyTree(treeID, func(t *FamilyTree) error {
			n := len(t.Collaborators)
			t.Collaborators = slices.DeleteFunc(t.Collaborators, func(c domain.Collaborator) bool { return c.UserID == userID })
			if len(t.Collaborators) == n {
				return notFound("user %s is not a collaborator on family tree %s", userID, treeID)
			}
			return nil
		})
		updated = tree
		return err
	})
	if err != nil {
		return FamilyTree{}, err
	}
	return updated, nil
}

// ReconcileStatistics recounts the tree's persons and relationships and
// repairs the maintained counters in one transaction.
func (s *Service) ReconcileStatistics(ctx context.Context, treeID string) (StatisticsDrift, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpReconcileStatistics, treeID, SystemActor)
	drift, err := s.reconcileStatistics(ctx, treeID)
	op.end(ctx, treeID, err)
	if err == nil && drift.Drifted() {
		s.logger.Warn("repaired family tree statistics",
			"tree_id", treeID,
			"persons_before", drift.PersonsBefore,
			"persons_after", drift.PersonsAfter,
			"relationships_before", drift.RelationshipsBefore,
			"relationships_after", drift.RelationshipsAfter,
		)
	}
	return drift, err
}

func (s *Service) reconcileStatistics(ctx context.Context, treeID string) (StatisticsDrift, error) {
	if err := s.requireTree(ctx, treeID); err != nil {
		return StatisticsDrift{}, err
	}
	var drift StatisticsDrift
	err := s.mutate(ctx, OpReconcileStatistics, treeID, func(tx Transaction) error {
		view := tx.Snapshot()
		tree, ok := view.FindFamilyTree(treeID)
		if !ok {
			return notFound("family tree %s not found", treeID)
		}
		persons := len(view.ListPersons(treeID))
		relationships := len(view.ListRelationships(treeID))
		drift = StatisticsDrift{
			TreeID:              treeID,
			PersonsBefore:       tree.Statistics.TotalPersons,
			PersonsAfter:        persons,
			RelationshipsBefore: tree.Statistics.TotalRelationships,
			RelationshipsAfter:  relationships,
		}
		_, err := tx.AdjustTreeStatistics(treeID, persons-tree.Statistics.TotalPersons, relationships-tree.Statistics.TotalRelationships)
		return err
	})
	if err != nil {
		return StatisticsDrift{}, err
	}
	return drift, nil
}

// TreeDocument returns a full copy of the tree as visible to the caller.
func (s *Service) TreeDocument(ctx context.Context, treeID, actorID string) (TreeDocument, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpTreeDocument, treeID, actorID)
	doc, err := s.treeDocument(ctx, treeID, actorID)
	op.end(ctx, treeID, err)
	return doc, err
}

func (s *Service) treeDocument(ctx context.Context, treeID, actorID string) (TreeDocument, error) {
	if err := s.authorizeView(ctx, treeID, actorID); err != nil {
		return TreeDocument{}, err
	}
	access, err := s.accessFor(ctx, treeID, actorID)
	if err != nil {
		return TreeDocument{}, err
	}
	return s.loadDocument(ctx, treeID, access)
}

// LoadTreeDocument returns the complete tree without authorization. It serves
// background exports.
func (s *Service) LoadTreeDocument(ctx context.Context, treeID string) (TreeDocument, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpTreeDocument, treeID, SystemActor)
	doc, err := s.loadDocument(ctx, treeID, fullAccess)
	op.end(ctx, treeID, err)
	return doc, err
}

func (s *Service) loadDocument(ctx context.Context, treeID string, access profileAccess) (TreeDocument, error) {
	var doc TreeDocument
	err := s.view(ctx, func(view TransactionView) error {
		tree, ok := view.FindFamilyTree(treeID)
		if !ok {
			return notFound("family tree %s not found", treeID)
		}
		doc = TreeDocument{
			Tree:          tree,
			Persons:       visiblePersons(view.ListPersons(treeID), access),
			Relationships: visibleRelationships(view, view.ListRelationships(treeID), access),
			ExportedAt:    s.clock.Now(),
		}
		return nil
	})
	return doc, err
}
