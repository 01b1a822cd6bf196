package core

import (
	"context"
	"fmt"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

const relationshipConsistencyName = "relationship_consistency"

// RelationshipConsistencyRule checks that person pointers and relationship
// edges mirror each other exactly within every touched tree. Counter drift is
// reported as a warning.
func RelationshipConsistencyRule() domain.Rule {
	return relationshipConsistencyRule{}
}

type relationshipConsistencyRule struct{}

func (relationshipConsistencyRule) Name() string { return relationshipConsistencyName }

// edgeKey identifies an edge by type and endpoints; undirected types use
// ordered endpoints.
type edgeKey struct {
	typ   domain.RelationshipType
	a, b  string
	legal domain.LegalParentType
}

func keyFor(t domain.RelationshipType, a, b string, legal domain.LegalParentType) edgeKey {
	if !t.Directed() && b < a {
		a, b = b, a
	}
	return edgeKey{typ: t, a: a, b: b, legal: legal}
}

func (relationshipConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, treeID := range touchedTrees(view, changes) {
		tree, ok := view.FindFamilyTree(treeID)
		if !ok {
			continue
		}
		checkTree(&res, view, tree)
	}
	return res, nil
}

func checkTree(res *domain.Result, view domain.RuleView, tree domain.FamilyTree) {
	block := func(entity domain.EntityType, id, format string, args ...any) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     relationshipConsistencyName,
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf(format, args...),
			Entity:   entity,
			EntityID: id,
		})
	}

	persons := view.ListPersons(tree.ID)
	index := make(map[string]domain.Person, len(persons))
	for _, p := range persons {
		index[p.ID] = p
	}
	relationships := view.ListRelationships(tree.ID)

	edges := make(map[edgeKey]string, len(relationships))
	pairs := make(map[edgeKey]string, len(relationships))
	for _, rel := range relationships {
		if !rel.Type.Valid() {
			block(domain.EntityRelationship, rel.ID, "relationship %s has unknown type %q", rel.ID, rel.Type)
			continue
		}
		if rel.Person1ID == rel.Person2ID {
			block(domain.EntityRelationship, rel.ID, "relationship %s relates person %s to themselves", rel.ID, rel.Person1ID)
			continue
		}
		pair := keyFor(rel.Type, rel.Person1ID, rel.Person2ID, "")
		if other, dup := pairs[pair]; dup {
			block(domain.EntityRelationship, rel.ID, "relationship %s duplicates %s", rel.ID, other)
			continue
		}
		pairs[pair] = rel.ID
		edges[keyFor(rel.Type, rel.Person1ID, rel.Person2ID, rel.LegalType)] = rel.ID

		p1, ok1 := index[rel.Person1ID]
		p2, ok2 := index[rel.Person2ID]
		if !ok1 || !ok2 {
			block(domain.EntityRelationship, rel.ID, "relationship %s names a person missing from family tree %s", rel.ID, tree.ID)
			continue
		}
		if !mirrored(rel, p1, p2) {
			block(domain.EntityRelationship, rel.ID, "relationship %s is not mirrored on persons %s and %s", rel.ID, p1.ID, p2.ID)
		}
	}

	for _, p := range persons {
		checkPointer := func(targetID string, key edgeKey, what string) {
			if _, ok := index[targetID]; !ok {
				block(domain.EntityPerson, p.ID, "person %s %s %s does not exist in family tree %s", p.ID, what, targetID, tree.ID)
				return
			}
			if _, ok := edges[key]; !ok {
				block(domain.EntityPerson, p.ID, "person %s %s %s has no backing relationship", p.ID, what, targetID)
			}
		}
		if p.BiologicalMotherID != nil {
			checkPointer(*p.BiologicalMotherID, keyFor(domain.RelationshipParentChild, *p.BiologicalMotherID, p.ID, ""), "biological mother")
		}
		if p.BiologicalFatherID != nil {
			checkPointer(*p.BiologicalFatherID, keyFor(domain.RelationshipParentChild, *p.BiologicalFatherID, p.ID, ""), "biological father")
		}
		if p.BiologicalMotherID != nil && p.BiologicalFatherID != nil && *p.BiologicalMotherID == *p.BiologicalFatherID {
			block(domain.EntityPerson, p.ID, "person %s has the same biological mother and father", p.ID)
		}
		seen := make(map[string]struct{})
		for _, lp := range p.LegalParents {
			if _, dup := seen[lp.ParentID]; dup {
				block(domain.EntityPerson, p.ID, "person %s lists legal parent %s more than once", p.ID, lp.ParentID)
				continue
			}
			seen[lp.ParentID] = struct{}{}
			checkPointer(lp.ParentID, keyFor(domain.RelationshipParentChild, lp.ParentID, p.ID, lp.Type), "legal parent")
		}
		clear(seen)
		for _, s := range p.Spouses {
			if _, dup := seen[s.SpouseID]; dup {
				block(domain.EntityPerson, p.ID, "person %s lists spouse %s more than once", p.ID, s.SpouseID)
				continue
			}
			seen[s.SpouseID] = struct{}{}
			checkPointer(s.SpouseID, keyFor(domain.RelationshipSpouse, p.ID, s.SpouseID, ""), "spouse")
		}
		clear(seen)
		for _, s := range p.Siblings {
			if _, dup := seen[s.SiblingID]; dup {
				block(domain.EntityPerson, p.ID, "person %s lists sibling %s more than once", p.ID, s.SiblingID)
				continue
			}
			seen[s.SiblingID] = struct{}{}
			checkPointer(s.SiblingID, keyFor(domain.RelationshipSibling, p.ID, s.SiblingID, ""), "sibling")
		}
	}

	if tree.Statistics.TotalPersons != len(persons) || tree.Statistics.TotalRelationships != len(relationships) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     relationshipConsistencyName,
			Severity: domain.SeverityWarn,
			Message: fmt.Sprintf("family tree %s statistics report %d persons and %d relationships but holds %d and %d",
				tree.ID, tree.Statistics.TotalPersons, tree.Statistics.TotalRelationships, len(persons), len(relationships)),
			Entity:   domain.EntityFamilyTree,
			EntityID: tree.ID,
		})
	}
}

// mirrored reports whether both endpoints carry the pointer for rel.
func mirrored(rel domain.Relationship, p1, p2 domain.Person) bool {
	switch rel.Type {
	case domain.RelationshipParentChild:
		if rel.LegalType != "" {
			for _, lp := range p2.LegalParents {
				if lp.ParentID == p1.ID && lp.Type == rel.LegalType {
					return true
				}
			}
			return false
		}
		return (p2.BiologicalMotherID != nil && *p2.BiologicalMotherID == p1.ID) ||
			(p2.BiologicalFatherID != nil && *p2.BiologicalFatherID == p1.ID)
	case domain.RelationshipSpouse:
		return hasSpouse(p1, p2.ID) && hasSpouse(p2, p1.ID)
	case domain.RelationshipSibling:
		return hasSibling(p1, p2.ID) && hasSibling(p2, p1.ID)
	}
	return false
}

func hasSpouse(p domain.Person, id string) bool {
	for _, s := range p.Spouses {
		if s.SpouseID == id {
			return true
		}
	}
	return false
}

func hasSibling(p domain.Person, id string) bool {
	for _, s := range p.Siblings {
		if s.SiblingID == id {
			return true
		}
	}
	return false
}
