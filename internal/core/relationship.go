package core

import (
	"context"
	"time"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

// RelationshipInput describes an edge to create. For PARENT_CHILD, Person1ID
// is the parent. LegalType makes the edge a legal parent link; otherwise
// BiologicalRole or the parent's gender chooses the child's pointer slot.
type RelationshipInput struct {
	Person1ID      string                  `json:"person1_id"`
	Person2ID      string                  `json:"person2_id"`
	Type           domain.RelationshipType `json:"type"`
	LegalType      domain.LegalParentType  `json:"legal_type,omitempty"`
	BiologicalRole domain.BiologicalRole   `json:"biological_role,omitempty"`
	StartDate      *time.Time              `json:"start_date,omitempty"`
	EndDate        *time.Time              `json:"end_date,omitempty"`
	Notes          string                  `json:"notes,omitempty"`
}

func (in RelationshipInput) validate() error {
	if !in.Type.Valid() {
		return invalid("unknown relationship type %q", in.Type)
	}
	if in.Person1ID == "" || in.Person2ID == "" {
		return invalid("person1_id and person2_id are required")
	}
	if in.Person1ID == in.Person2ID {
		return invalid("a person cannot be related to themselves")
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return invalid("end date precedes start date")
	}
	return nil
}

// CreateRelationship persists an edge and mirrors it onto both persons.
func (s *Service) CreateRelationship(ctx context.Context, treeID, actorID string, in RelationshipInput) (Relationship, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpCreateRelationship, treeID, actorID)
	rel, err := s.createRelationship(ctx, treeID, actorID, in)
	op.end(ctx, rel.ID, err)
	return rel, err
}

func (s *Service) createRelationship(ctx context.Context, treeID, actorID string, in RelationshipInput) (Relationship, error) {
	if err := s.authorizeEdit(ctx, treeID, actorID); err != nil {
		return Relationship{}, err
	}
	if err := in.validate(); err != nil {
		return Relationship{}, err
	}
	var created Relationship
	err := s.mutate(ctx, OpCreateRelationship, treeID, func(tx Transaction) error {
		rel, err := connect(tx, edgeSpec{
			treeID:    treeID,
			person1:   in.Person1ID,
			person2:   in.Person2ID,
			relType:   in.Type,
			legalType: in.LegalType,
			role:      in.BiologicalRole,
			meta:      Relationship{StartDate: in.StartDate, EndDate: in.EndDate, Notes: in.Notes},
		})
		if err != nil {
			return err
		}
		if _, err := tx.AdjustTreeStatistics(treeID, 0, 1); err != nil {
			return err
		}
		created = rel
		return nil
	})
	if err != nil {
		return Relationship{}, err
	}
	return created, nil
}

// DeleteRelationship removes an edge by id together with its pointers.
func (s *Service) DeleteRelationship(ctx context.Context, treeID, actorID, relationshipID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpDeleteRelationship, treeID, actorID)
	err := s.removeRelationship(ctx, OpDeleteRelationship, treeID, actorID, func(view TransactionView) (Relationship, error) {
		rel, ok := view.FindRelationship(relationshipID)
		if !ok || rel.FamilyTreeID != treeID {
			return Relationship{}, notFound("relationship %s not found in family tree %s", relationshipID, treeID)
		}
		return rel, nil
	})
	op.end(ctx, relationshipID, err)
	return err
}

// DeleteRelationshipBetween removes the edge of type t between two persons.
// Direction matters only for PARENT_CHILD.
func (s *Service) DeleteRelationshipBetween(ctx context.Context, treeID, actorID, person1ID, person2ID string, t domain.RelationshipType) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpDeleteRelationshipBetween, treeID, actorID)
	var removedID string
	err := s.removeRelationship(ctx, OpDeleteRelationshipBetween, treeID, actorID, func(view TransactionView) (Relationship, error) {
		if !t.Valid() {
			return Relationship{}, invalid("unknown relationship type %q", t)
		}
		rel, ok := view.FindRelationshipBetween(treeID, person1ID, person2ID, t)
		if !ok {
			return Relationship{}, notFound("no %s relationship between %s and %s in family tree %s", t, person1ID, person2ID, treeID)
		}
		removedID = rel.ID
		return rel, nil
	})
	op.end(ctx, removedID, err)
	return err
}

func (s *Service) removeRelationship(ctx context.Context, op, treeID, actorID string, find func(TransactionView) (Relationship, error)) error {
	if err := s.authorizeEdit(ctx, treeID, actorID); err != nil {
		return err
	}
	return s.mutate(ctx, op, treeID, func(tx Transaction) error {
		rel, err := find(tx.Snapshot())
		if err != nil {
			return err
		}
		if err := disconnect(tx, rel); err != nil {
			return err
		}
		_, err = tx.AdjustTreeStatistics(treeID, 0, -1)
		return err
	})
}

// ListRelationships returns the edges of a tree, optionally only those naming
// personID. Edges touching a private profile are omitted for non-editors.
func (s *Service) ListRelationships(ctx context.Context, treeID, actorID, personID string) ([]Relationship, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpListRelationships, treeID, actorID)
	rels, err := s.listRelationships(ctx, treeID, actorID, personID)
	op.end(ctx, personID, err)
	return rels, err
}

func (s *Service) listRelationships(ctx context.Context, treeID, actorID, personID string) ([]Relationship, error) {
	if err := s.authorizeView(ctx, treeID, actorID); err != nil {
		return nil, err
	}
	access, err := s.accessFor(ctx, treeID, actorID)
	if err != nil {
		return nil, err
	}
	var out []Relationship
	err = s.view(ctx, func(view TransactionView) error {
		if personID != "" {
			if p, ok := view.FindPerson(personID); !ok || p.FamilyTreeID != treeID {
				return notFound("person %s not found in family tree %s", personID, treeID)
			}
		}
		out = visibleRelationships(view, view.ListRelationships(treeID), access)
		if personID == "" {
			return nil
		}
		filtered := out[:0]
		for _, rel := range out {
			if rel.Involves(personID) {
				filtered = append(filtered, rel)
			}
		}
		out = filtered
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

